package domain

// Timeframe selects which leaderboard window a standings query covers.
type Timeframe string

const (
	TimeframeWeekly  Timeframe = "weekly"
	TimeframeAllTime Timeframe = "all_time"
)

// IsValid checks that the timeframe is one of the known windows.
func (t Timeframe) IsValid() bool {
	return t == TimeframeWeekly || t == TimeframeAllTime
}

// RankedStudent is one leaderboard row. Rank is always assigned
// client-side after the relevant population is known, never read from the
// backend, because client-side filtering (by grade level) changes the
// population a rank is relative to.
type RankedStudent struct {
	StudentID    string `json:"studentId"`
	DisplayName  string `json:"displayName"`
	GradeLevelID string `json:"gradeLevelId"`
	AvatarURL    string `json:"avatarUrl"`
	Score        int    `json:"score"`
	Rank         int    `json:"rank"`
}

// ScoreValue returns the score ranks are assigned from.
func (r *RankedStudent) ScoreValue() int { return r.Score }

// RankValue returns the currently assigned rank.
func (r *RankedStudent) RankValue() int { return r.Rank }

// SetRank records an assigned rank.
func (r *RankedStudent) SetRank(rank int) { r.Rank = rank }

// Standings is one leaderboard view: the top window (extended past the
// requested size when a tie crosses the boundary), the viewer's own row
// when it falls outside that window, and the true population size.
type Standings struct {
	Timeframe Timeframe        `json:"timeframe"`
	Entries   []*RankedStudent `json:"entries"`
	Self      *RankedStudent   `json:"self,omitempty"`
	Total     int              `json:"total"`
}
