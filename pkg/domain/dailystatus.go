package domain

// ActivityKind is one of the daily activities a student can complete.
type ActivityKind string

const (
	ActivityPractice  ActivityKind = "practice"
	ActivityFeedPet   ActivityKind = "feed_pet"
	ActivityDailyQuiz ActivityKind = "daily_quiz"
)

// IsValid checks that the activity is one of the known kinds.
func (a ActivityKind) IsValid() bool {
	switch a {
	case ActivityPractice, ActivityFeedPet, ActivityDailyQuiz:
		return true
	default:
		return false
	}
}

// DailyStatus tracks which activities the student has completed today.
// Date is a UTC calendar day in "2006-01-02" form.
type DailyStatus struct {
	Date       string         `json:"date"`
	Completed  []ActivityKind `json:"completed"`
	StreakDays int            `json:"streakDays"`
}

// HasCompleted reports whether the activity is already done today.
func (d DailyStatus) HasCompleted(kind ActivityKind) bool {
	for _, k := range d.Completed {
		if k == kind {
			return true
		}
	}
	return false
}

// MarkCompleted records an activity as done. Idempotent.
func (d *DailyStatus) MarkCompleted(kind ActivityKind) {
	if d.HasCompleted(kind) {
		return
	}
	d.Completed = append(d.Completed, kind)
}
