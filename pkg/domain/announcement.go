package domain

import "time"

// Announcement is one platform notice. IsRead is personal to the current
// user and comes from the read-receipt rows, not the announcement itself.
type Announcement struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
	IsRead    bool      `json:"isRead"`
}
