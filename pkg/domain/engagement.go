package domain

import "time"

// EngagementStats summarizes how actively one student practices.
type EngagementStats struct {
	StudentID         string            `json:"studentId"`
	CurrentStreakDays int               `json:"currentStreakDays"`
	LongestStreakDays int               `json:"longestStreakDays"`
	SessionsThisWeek  int               `json:"sessionsThisWeek"`
	MinutesThisWeek   int               `json:"minutesThisWeek"`
	LastPracticeAt    *time.Time        `json:"lastPracticeAt"`
	Monthly           []MonthlyActivity `json:"monthly"`
}

// MonthlyActivity is one month's practice totals, keyed "2006-01". The
// monthly slice is ordered oldest first so it can feed a chart axis
// directly.
type MonthlyActivity struct {
	Month    string `json:"month"`
	Sessions int    `json:"sessions"`
	Minutes  int    `json:"minutes"`
}
