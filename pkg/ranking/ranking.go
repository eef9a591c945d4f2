// Package ranking implements competition ranking ("1224" ranking) for
// leaderboard entries: entries with equal scores share a rank, and the entry
// after a tied group resumes at its 1-based list position. This matches the
// semantics of SQL's RANK() window function, so client-side ranking agrees
// with anything ranked by the database.
package ranking

import "sort"

// Rankable is implemented by entries that carry a score and a mutable rank.
// Use pointer elements so SetRank mutates the caller's entries.
type Rankable interface {
	ScoreValue() int
	RankValue() int
	SetRank(rank int)
}

// SortDesc sorts entries by score descending. less breaks ties for stable
// display order; a nil less keeps the incoming order for equal scores.
func SortDesc[T Rankable](entries []T, less func(a, b T) bool) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].ScoreValue() != entries[j].ScoreValue() {
			return entries[i].ScoreValue() > entries[j].ScoreValue()
		}
		if less != nil {
			return less(entries[i], entries[j])
		}
		return false
	})
}

// Assign walks entries already sorted by score descending and applies
// competition ranking. Equal scores inherit the previous entry's rank;
// a score drop resumes at the current 1-based position, skipping the
// values consumed by the tied group. Scores [500, 500, 300, 100] rank
// as [1, 1, 3, 4].
func Assign[T Rankable](entries []T) {
	for i, e := range entries {
		if i > 0 && e.ScoreValue() == entries[i-1].ScoreValue() {
			e.SetRank(entries[i-1].RankValue())
		} else {
			e.SetRank(i + 1)
		}
	}
}

// Rank sorts entries by score descending and assigns competition ranks.
func Rank[T Rankable](entries []T, less func(a, b T) bool) {
	SortDesc(entries, less)
	Assign(entries)
}

// TopWithTies returns the leading entries whose rank is <= n. The cut is
// applied to ranks, not positions: a tied group straddling the boundary is
// included whole, so the result may hold more than n entries. Entries must
// already be ranked.
func TopWithTies[T Rankable](entries []T, n int) []T {
	if n <= 0 {
		return nil
	}
	out := make([]T, 0, n)
	for _, e := range entries {
		if e.RankValue() > n {
			break
		}
		out = append(out, e)
	}
	return out
}
