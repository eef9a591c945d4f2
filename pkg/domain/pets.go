package domain

// ══════════════════════════════════════════════════════════════════════════════
// PET CATALOG
// ══════════════════════════════════════════════════════════════════════════════

const (
	// MinPetTier and MaxPetTier bound the evolution ladder.
	MinPetTier = 1
	MaxPetTier = 3

	// CombinePetCount is the exact number of owned pets a combination
	// consumes. Checked locally before the procedure call.
	CombinePetCount = 4
)

// Rarity weights a pet's gacha draw probability. The weighting itself is
// server-side; the client only displays it.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// IsValid checks that the rarity is one of the known grades.
func (r Rarity) IsValid() bool {
	switch r {
	case RarityCommon, RarityRare, RarityEpic, RarityLegendary:
		return true
	default:
		return false
	}
}

// Pet is a catalog entry.
type Pet struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Rarity      Rarity `json:"rarity"`
	ImagePath   string `json:"imagePath"`
	Description string `json:"description"`
}

// ══════════════════════════════════════════════════════════════════════════════
// OWNED PETS
// ══════════════════════════════════════════════════════════════════════════════

// OwnedPet is one pet in a student's collection. FoodFed counts progress
// toward the next tier and resets to zero on every tier-up; Tier only moves
// up for a given pet, except through combination, which consumes pets and
// may produce a different one entirely.
type OwnedPet struct {
	PetID     string `json:"petId"`
	Name      string `json:"name"`
	Rarity    Rarity `json:"rarity"`
	Tier      int    `json:"tier"`
	Count     int    `json:"count"`
	FoodFed   int    `json:"foodFed"`
	ImagePath string `json:"imagePath"`
}

// AtMaxTier reports whether the pet can still evolve.
func (p OwnedPet) AtMaxTier() bool {
	return p.Tier >= MaxPetTier
}

// ══════════════════════════════════════════════════════════════════════════════
// PROCEDURE OUTCOMES
// ══════════════════════════════════════════════════════════════════════════════
//
// The backend procedures own the randomness and the transactional updates;
// these types carry the authoritative values they return, which the store
// patches into local state.

// DrawOutcome is the result of one gacha pull.
type DrawOutcome struct {
	Pet       Pet  `json:"pet"`
	IsNew     bool `json:"isNew"`
	CoinsLeft int  `json:"coinsLeft"`
}

// FeedOutcome is the result of feeding a pet. When TieredUp is set, FoodFed
// has already been reset by the backend.
type FeedOutcome struct {
	PetID    string `json:"petId"`
	FoodFed  int    `json:"foodFed"`
	Tier     int    `json:"tier"`
	TieredUp bool   `json:"tieredUp"`
	FoodLeft int    `json:"foodLeft"`
}

// EvolveOutcome is the result of an explicit evolution.
type EvolveOutcome struct {
	PetID string `json:"petId"`
	Tier  int    `json:"tier"`
}

// CombineOutcome is the result of combining four pets into one.
type CombineOutcome struct {
	ConsumedPetIDs []string `json:"consumedPetIds"`
	Result         Pet      `json:"result"`
	IsNew          bool     `json:"isNew"`
}

// ExchangeOutcome is the result of converting coins into pet food.
type ExchangeOutcome struct {
	CoinsSpent int `json:"coinsSpent"`
	FoodGained int `json:"foodGained"`
	CoinsLeft  int `json:"coinsLeft"`
	FoodTotal  int `json:"foodTotal"`
}
