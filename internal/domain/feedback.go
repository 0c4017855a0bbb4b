package domain

import "time"

const (
	MinRating = 1
	MaxRating = 5
)

// Feedback is the star rating a creator leaves after closure. Write-once
// per ticket.
type Feedback struct {
	TicketNumber string    `json:"ticket_number"`
	UserID       string    `json:"user_id"`
	Rating       int       `json:"rating"`
	Feedback     string    `json:"feedback"`
	Suggestions  string    `json:"suggestions,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// FeedbackWindow is an open invitation for the creator to rate a ticket.
type FeedbackWindow struct {
	TicketNumber string
	UserID       string
	ClosedBy     string
	Deadline     time.Time
}

// Expired reports whether the window can no longer be honored at now.
func (w FeedbackWindow) Expired(now time.Time) bool {
	return !now.Before(w.Deadline)
}
