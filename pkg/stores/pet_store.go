package stores

import (
	"context"
	"time"

	"github.com/studypet-hub/studypet-hub/config"
	"github.com/studypet-hub/studypet-hub/pkg/backend"
	"github.com/studypet-hub/studypet-hub/pkg/cache"
	"github.com/studypet-hub/studypet-hub/pkg/domain"
	"github.com/studypet-hub/studypet-hub/pkg/logger"
)

const (
	defaultPetTTL = 2 * time.Minute

	petImageSize = 256

	collectionTable = "student_pet_collection"
	petTable        = "pets"
	petImageBucket  = "pets"

	procDrawPet       = "draw_pet"
	procFeedPet       = "feed_pet"
	procEvolvePet     = "evolve_pet"
	procCombinePets   = "combine_pets"
	procExchangeCoins = "exchange_coins"
)

type petRow struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Rarity      string `json:"rarity"`
	ImagePath   string `json:"image_path"`
	Description string `json:"description"`
}

func (r petRow) toDomain() domain.Pet {
	return domain.Pet{
		ID:          r.ID,
		Name:        r.Name,
		Rarity:      domain.Rarity(r.Rarity),
		ImagePath:   r.ImagePath,
		Description: r.Description,
	}
}

type ownedPetRow struct {
	PetID     string `json:"pet_id"`
	Name      string `json:"name"`
	Rarity    string `json:"rarity"`
	Tier      int    `json:"tier"`
	Count     int    `json:"count"`
	FoodFed   int    `json:"food_fed"`
	ImagePath string `json:"image_path"`
}

func (r ownedPetRow) toDomain() domain.OwnedPet {
	return domain.OwnedPet{
		PetID:     r.PetID,
		Name:      r.Name,
		Rarity:    domain.Rarity(r.Rarity),
		Tier:      r.Tier,
		Count:     r.Count,
		FoodFed:   r.FoodFed,
		ImagePath: r.ImagePath,
	}
}

type drawPayload struct {
	Pet       petRow `json:"pet"`
	IsNew     bool   `json:"is_new"`
	CoinsLeft int    `json:"coins_left"`
}

type feedPayload struct {
	PetID    string `json:"pet_id"`
	FoodFed  int    `json:"food_fed"`
	Tier     int    `json:"tier"`
	TieredUp bool   `json:"tiered_up"`
	FoodLeft int    `json:"food_left"`
}

type evolvePayload struct {
	PetID string `json:"pet_id"`
	Tier  int    `json:"tier"`
}

type combinePayload struct {
	ConsumedPetIDs []string `json:"consumed_pet_ids"`
	Result         petRow   `json:"result"`
	IsNew          bool     `json:"is_new"`
}

type exchangePayload struct {
	CoinsSpent int `json:"coins_spent"`
	FoodGained int `json:"food_gained"`
	CoinsLeft  int `json:"coins_left"`
	FoodTotal  int `json:"food_total"`
}

// PetStoreConfig configures a PetStore.
type PetStoreConfig struct {
	Querier backend.RowQuerier
	Caller  backend.ProcedureCaller
	Storage backend.ObjectStorage
	Viewer  Viewer

	// Balances, when set, receives the authoritative coin and food totals
	// the economy procedures return.
	Balances BalancePatcher

	// Features, when set, gates the gacha and combination actions.
	Features *config.FeatureFlags

	TTL    time.Duration
	Logger *logger.Logger

	// Clock overrides time.Now for staleness checks. Tests only.
	Clock func() time.Time
}

// PetStore owns the student's pet collection and the pet catalog. All
// economy rules (draw odds, feed thresholds, combination results) run in
// backend procedures; the store validates what it can locally, calls the
// procedure, and patches the collection with the authoritative values the
// procedure returned instead of refetching after every action.
type PetStore struct {
	loadingFlag

	querier  backend.RowQuerier
	caller   backend.ProcedureCaller
	storage  backend.ObjectStorage
	viewer   Viewer
	balances BalancePatcher
	features *config.FeatureFlags
	ttl      time.Duration
	logger   *logger.Logger

	collection *cache.Value[[]domain.OwnedPet]
	catalog    *cache.Value[[]domain.Pet]
}

var _ Store = (*PetStore)(nil)

// NewPetStore creates a PetStore.
func NewPetStore(cfg PetStoreConfig) *PetStore {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultPetTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &PetStore{
		querier:    cfg.Querier,
		caller:     cfg.Caller,
		storage:    cfg.Storage,
		viewer:     cfg.Viewer,
		balances:   cfg.Balances,
		features:   cfg.Features,
		ttl:        cfg.TTL,
		logger:     cfg.Logger.Named("pets"),
		collection: cache.NewWithClock[[]domain.OwnedPet](cfg.Clock),
		catalog:    cache.NewWithClock[[]domain.Pet](cfg.Clock),
	}
}

func (s *PetStore) Name() string { return "pets" }

// Reset drops the collection and the catalog.
func (s *PetStore) Reset() {
	s.collection.Reset()
	s.catalog.Reset()
}

// Collection returns the signed-in student's pets.
func (s *PetStore) Collection(ctx context.Context) ([]domain.OwnedPet, error) {
	return s.fetchCollection(ctx, false)
}

// RefreshCollection refetches the collection regardless of freshness.
func (s *PetStore) RefreshCollection(ctx context.Context) ([]domain.OwnedPet, error) {
	return s.fetchCollection(ctx, true)
}

func (s *PetStore) fetchCollection(ctx context.Context, force bool) ([]domain.OwnedPet, error) {
	sess, err := currentSession(s.viewer)
	if err != nil {
		return nil, err
	}

	s.begin()
	defer s.end()

	return s.collection.Fetch(ctx, cache.FetchOptions{TTL: s.ttl, Force: force}, s.selectCollection(sess.UserID))
}

// Catalog returns every pet in the game, cached alongside the collection.
func (s *PetStore) Catalog(ctx context.Context) ([]domain.Pet, error) {
	s.begin()
	defer s.end()

	return s.catalog.Fetch(ctx, cache.FetchOptions{TTL: s.ttl}, func(ctx context.Context) ([]domain.Pet, error) {
		var rows []petRow
		q := backend.NewQuery(petTable).OrderAsc("name")
		if err := s.querier.Select(ctx, q, &rows); err != nil {
			return nil, wrapBackend("pets", "Catalog", "could not load the pet catalog", err)
		}

		pets := make([]domain.Pet, 0, len(rows))
		for _, r := range rows {
			pets = append(pets, r.toDomain())
		}
		return pets, nil
	})
}

// ImageURL builds the CDN URL for a pet image path. Catalog art changes by
// getting a new path, so no cache-busting version is attached.
func (s *PetStore) ImageURL(imagePath string) string {
	if imagePath == "" {
		return ""
	}
	return s.storage.PublicURL(petImageBucket, imagePath, &backend.ImageTransform{
		Width:   petImageSize,
		Height:  petImageSize,
		Quality: 80,
		Resize:  "contain",
	}, 0)
}

// DrawPet spends coins on one gacha pull. The backend owns the odds and the
// coin deduction; the returned outcome is patched into the collection and
// the profile balances.
func (s *PetStore) DrawPet(ctx context.Context) (domain.DrawOutcome, error) {
	sess, err := currentSession(s.viewer)
	if err != nil {
		return domain.DrawOutcome{}, err
	}
	if !s.featureOn(config.FeaturePetGacha, sess.UserID, sess.UserType) {
		return domain.DrawOutcome{}, domain.NewDomainError("pets", "DrawPet", domain.ErrForbidden, "the gacha is taking a break, check back soon")
	}

	s.begin()
	defer s.end()

	var payload drawPayload
	args := map[string]any{"student_id": sess.UserID}
	if err := s.caller.Call(ctx, procDrawPet, args, &payload); err != nil {
		return domain.DrawOutcome{}, wrapBackend("pets", "DrawPet", "the draw did not go through", err)
	}

	outcome := domain.DrawOutcome{
		Pet:       payload.Pet.toDomain(),
		IsNew:     payload.IsNew,
		CoinsLeft: payload.CoinsLeft,
	}

	patched := s.collection.Mutate(func(pets *[]domain.OwnedPet) {
		for i := range *pets {
			if (*pets)[i].PetID == outcome.Pet.ID {
				(*pets)[i].Count++
				return
			}
		}
		*pets = append(*pets, domain.OwnedPet{
			PetID:     outcome.Pet.ID,
			Name:      outcome.Pet.Name,
			Rarity:    outcome.Pet.Rarity,
			Tier:      domain.MinPetTier,
			Count:     1,
			FoodFed:   0,
			ImagePath: outcome.Pet.ImagePath,
		})
	})
	s.reconcile(ctx, "DrawPet", patched)
	s.patchBalances(&payload.CoinsLeft, nil)

	return outcome, nil
}

// FeedPet feeds one unit of food to an owned pet. The procedure returns the
// authoritative fed counter and tier; a tier-up arrives with the counter
// already reset.
func (s *PetStore) FeedPet(ctx context.Context, petID string) (domain.FeedOutcome, error) {
	sess, err := currentSession(s.viewer)
	if err != nil {
		return domain.FeedOutcome{}, err
	}
	if petID == "" {
		return domain.FeedOutcome{}, domain.NewDomainError("pets", "FeedPet", domain.ErrEmptyValue, "pet id is required")
	}
	if pets, ok := s.collection.Peek(); ok && findOwned(pets, petID) == nil {
		return domain.FeedOutcome{}, domain.ErrPetNotOwned
	}

	s.begin()
	defer s.end()

	var payload feedPayload
	args := map[string]any{"student_id": sess.UserID, "pet_id": petID}
	if err := s.caller.Call(ctx, procFeedPet, args, &payload); err != nil {
		return domain.FeedOutcome{}, wrapBackend("pets", "FeedPet", "feeding did not go through", err)
	}

	outcome := domain.FeedOutcome{
		PetID:    payload.PetID,
		FoodFed:  payload.FoodFed,
		Tier:     payload.Tier,
		TieredUp: payload.TieredUp,
		FoodLeft: payload.FoodLeft,
	}

	patched := s.patchPet(petID, func(p *domain.OwnedPet) {
		p.FoodFed = outcome.FoodFed
		p.Tier = outcome.Tier
	})
	s.reconcile(ctx, "FeedPet", patched)
	s.patchBalances(nil, &payload.FoodLeft)

	return outcome, nil
}

// EvolvePet promotes an owned pet one tier. The max-tier check runs locally
// so a pointless round trip is avoided; the backend still enforces it.
func (s *PetStore) EvolvePet(ctx context.Context, petID string) (domain.EvolveOutcome, error) {
	sess, err := currentSession(s.viewer)
	if err != nil {
		return domain.EvolveOutcome{}, err
	}
	if petID == "" {
		return domain.EvolveOutcome{}, domain.NewDomainError("pets", "EvolvePet", domain.ErrEmptyValue, "pet id is required")
	}
	if pets, ok := s.collection.Peek(); ok {
		owned := findOwned(pets, petID)
		if owned == nil {
			return domain.EvolveOutcome{}, domain.ErrPetNotOwned
		}
		if owned.AtMaxTier() {
			return domain.EvolveOutcome{}, domain.ErrPetMaxTier
		}
	}

	s.begin()
	defer s.end()

	var payload evolvePayload
	args := map[string]any{"student_id": sess.UserID, "pet_id": petID}
	if err := s.caller.Call(ctx, procEvolvePet, args, &payload); err != nil {
		return domain.EvolveOutcome{}, wrapBackend("pets", "EvolvePet", "evolution did not go through", err)
	}

	outcome := domain.EvolveOutcome{PetID: payload.PetID, Tier: payload.Tier}

	patched := s.patchPet(petID, func(p *domain.OwnedPet) {
		p.Tier = outcome.Tier
		p.FoodFed = 0
	})
	s.reconcile(ctx, "EvolvePet", patched)

	return outcome, nil
}

// CombinePets consumes exactly four owned pets and produces one, possibly
// entirely different, pet. The result reshapes the collection in ways a
// local patch cannot predict, so the collection is refetched instead.
func (s *PetStore) CombinePets(ctx context.Context, petIDs []string) (domain.CombineOutcome, error) {
	sess, err := currentSession(s.viewer)
	if err != nil {
		return domain.CombineOutcome{}, err
	}
	if len(petIDs) != domain.CombinePetCount {
		return domain.CombineOutcome{}, domain.ErrCombineCount
	}
	if !s.featureOn(config.FeaturePetCombine, sess.UserID, sess.UserType) {
		return domain.CombineOutcome{}, domain.NewDomainError("pets", "CombinePets", domain.ErrForbidden, "combining is not available right now")
	}

	pets, err := s.Collection(ctx)
	if err != nil {
		return domain.CombineOutcome{}, err
	}
	for _, id := range petIDs {
		if findOwned(pets, id) == nil {
			return domain.CombineOutcome{}, domain.ErrPetNotOwned
		}
	}

	s.begin()
	defer s.end()

	var payload combinePayload
	args := map[string]any{"student_id": sess.UserID, "pet_ids": petIDs}
	if err := s.caller.Call(ctx, procCombinePets, args, &payload); err != nil {
		return domain.CombineOutcome{}, wrapBackend("pets", "CombinePets", "combining did not go through", err)
	}

	outcome := domain.CombineOutcome{
		ConsumedPetIDs: payload.ConsumedPetIDs,
		Result:         payload.Result.toDomain(),
		IsNew:          payload.IsNew,
	}

	if _, err := s.collection.Fetch(ctx, cache.FetchOptions{TTL: s.ttl, Force: true}, s.selectCollection(sess.UserID)); err != nil {
		s.logger.Warn("collection refetch after combine failed", "error", err)
	}
	return outcome, nil
}

// ExchangeCoins converts coins into pet food at the backend's rate.
func (s *PetStore) ExchangeCoins(ctx context.Context, coins int) (domain.ExchangeOutcome, error) {
	sess, err := currentSession(s.viewer)
	if err != nil {
		return domain.ExchangeOutcome{}, err
	}
	if coins <= 0 {
		return domain.ExchangeOutcome{}, domain.NewDomainError("pets", "ExchangeCoins", domain.ErrValueOutOfRange, "exchange amount must be positive")
	}

	s.begin()
	defer s.end()

	var payload exchangePayload
	args := map[string]any{"student_id": sess.UserID, "coins": coins}
	if err := s.caller.Call(ctx, procExchangeCoins, args, &payload); err != nil {
		return domain.ExchangeOutcome{}, wrapBackend("pets", "ExchangeCoins", "the exchange did not go through", err)
	}

	s.patchBalances(&payload.CoinsLeft, &payload.FoodTotal)

	return domain.ExchangeOutcome{
		CoinsSpent: payload.CoinsSpent,
		FoodGained: payload.FoodGained,
		CoinsLeft:  payload.CoinsLeft,
		FoodTotal:  payload.FoodTotal,
	}, nil
}

// patchPet applies fn to one owned pet in the cached collection. Returns
// false when the collection is not loaded or the pet is missing from it.
func (s *PetStore) patchPet(petID string, fn func(p *domain.OwnedPet)) bool {
	found := false
	s.collection.Mutate(func(pets *[]domain.OwnedPet) {
		for i := range *pets {
			if (*pets)[i].PetID == petID {
				fn(&(*pets)[i])
				found = true
				return
			}
		}
	})
	return found
}

// reconcile finishes an optimistic update: a missed patch triggers one
// forced collection refetch, and a failed refetch is only logged because the
// procedure has already committed.
func (s *PetStore) reconcile(ctx context.Context, op string, patched bool) {
	sess, ok := s.viewer.Current()
	if !ok {
		return
	}
	err := patchOrRefetch(ctx, patched, func(ctx context.Context) error {
		_, err := s.collection.Fetch(ctx, cache.FetchOptions{TTL: s.ttl, Force: true}, s.selectCollection(sess.UserID))
		return err
	})
	if err != nil {
		s.logger.Warn("collection refetch failed", "op", op, "error", err)
	}
}

// selectCollection builds the fetch function shared by the cache paths.
func (s *PetStore) selectCollection(studentID string) func(ctx context.Context) ([]domain.OwnedPet, error) {
	return func(ctx context.Context) ([]domain.OwnedPet, error) {
		var rows []ownedPetRow
		q := backend.NewQuery(collectionTable).
			Eq("student_id", studentID).
			OrderAsc("pet_id")
		if err := s.querier.Select(ctx, q, &rows); err != nil {
			return nil, wrapBackend("pets", "Collection", "could not load your pets", err)
		}
		pets := make([]domain.OwnedPet, 0, len(rows))
		for _, r := range rows {
			pets = append(pets, r.toDomain())
		}
		return pets, nil
	}
}

func (s *PetStore) featureOn(name, userID string, userType domain.UserType) bool {
	if s.features == nil {
		return true
	}
	return s.features.IsEnabled(name, &config.FeatureContext{
		UserID:  userID,
		IsAdmin: userType.IsAdmin(),
	})
}

func (s *PetStore) patchBalances(coins, food *int) {
	if s.balances == nil {
		return
	}
	s.balances.PatchBalances(coins, food)
}

func findOwned(pets []domain.OwnedPet, petID string) *domain.OwnedPet {
	for i := range pets {
		if pets[i].PetID == petID {
			return &pets[i]
		}
	}
	return nil
}
