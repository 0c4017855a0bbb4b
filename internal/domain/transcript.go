package domain

import "time"

// TranscriptMessage is one channel message captured at closure.
type TranscriptMessage struct {
	Author    string `json:"author"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// TranscriptTimeLayout formats message timestamps.
const TranscriptTimeLayout = "2006-01-02 15:04:05"

// Transcript is the document persisted for every closed ticket.
type Transcript struct {
	ID            string              `json:"_id,omitempty"`
	TicketNumber  string              `json:"ticket_number"`
	UserID        string              `json:"user_id"`
	Category      string              `json:"category"`
	Status        string              `json:"status"`
	CreatedAt     time.Time           `json:"created_at"`
	ClosedAt      time.Time           `json:"closed_at"`
	ClosedBy      string              `json:"closed_by"`
	ClosingReason string              `json:"closing_reason"`
	Messages      []TranscriptMessage `json:"messages"`
	Details       string              `json:"details"`
	ClaimedBy     string              `json:"claimed_by"`
	SavedAt       time.Time           `json:"saved_at,omitempty"`
}

// TranscriptFilter narrows a transcript search. Empty fields match all.
type TranscriptFilter struct {
	UserID       string
	Category     string
	TicketNumber string
	Limit        int
}

// UserTranscriptStats aggregates a user's transcript activity.
type UserTranscriptStats struct {
	UserID          string
	TotalTickets    int
	TranscriptCount int
	LastTicketDate  *time.Time
	MemberSince     time.Time
}

// CategoryCount is one row of the category breakdown.
type CategoryCount struct {
	Category string
	Count    int
}

// TranscriptStats aggregates the whole transcript store.
type TranscriptStats struct {
	TotalTranscripts int
	TotalUsers       int
	RecentActivity   int
	Categories       []CategoryCount
}
