package dto

import (
	"time"

	"github.com/carrydesk/carry-desk/internal/domain"
)

// SaveTranscriptRequest is the POST /api/transcripts payload. Optional
// fields left out get server-side defaults.
type SaveTranscriptRequest struct {
	TicketNumber  string                     `json:"ticket_number"`
	UserID        string                     `json:"user_id"`
	Category      string                     `json:"category"`
	Status        string                     `json:"status"`
	CreatedAt     *time.Time                 `json:"created_at"`
	ClosedAt      *time.Time                 `json:"closed_at"`
	ClosedBy      string                     `json:"closed_by"`
	ClosingReason string                     `json:"closing_reason"`
	Messages      []domain.TranscriptMessage `json:"messages"`
	Details       string                     `json:"details"`
	ClaimedBy     string                     `json:"claimed_by"`
}

// ToDomain maps the payload, keeping an absent messages field nil.
func (r SaveTranscriptRequest) ToDomain() domain.Transcript {
	t := domain.Transcript{
		TicketNumber:  r.TicketNumber,
		UserID:        r.UserID,
		Category:      r.Category,
		Status:        r.Status,
		ClosedBy:      r.ClosedBy,
		ClosingReason: r.ClosingReason,
		Messages:      r.Messages,
		Details:       r.Details,
		ClaimedBy:     r.ClaimedBy,
	}
	if r.CreatedAt != nil {
		t.CreatedAt = r.CreatedAt.UTC()
	}
	if r.ClosedAt != nil {
		t.ClosedAt = r.ClosedAt.UTC()
	}
	return t
}

// SaveTranscriptResponse acknowledges a stored transcript.
type SaveTranscriptResponse struct {
	Success      bool   `json:"success"`
	TranscriptID string `json:"transcript_id"`
	Message      string `json:"message"`
}

// TranscriptSummary is a transcript without its messages.
type TranscriptSummary struct {
	ID            string    `json:"_id"`
	TicketNumber  string    `json:"ticket_number"`
	UserID        string    `json:"user_id,omitempty"`
	Category      string    `json:"category"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	ClosedAt      time.Time `json:"closed_at"`
	ClosingReason string    `json:"closing_reason,omitempty"`
}

// TranscriptListResponse lists summaries.
type TranscriptListResponse struct {
	Success     bool                `json:"success"`
	Transcripts []TranscriptSummary `json:"transcripts"`
	Count       int                 `json:"count"`
}

// TranscriptDetailResponse carries one full transcript.
type TranscriptDetailResponse struct {
	Success    bool              `json:"success"`
	Transcript domain.Transcript `json:"transcript"`
}

// UserStats is the per-user activity block.
type UserStats struct {
	UserID          string     `json:"user_id"`
	TotalTickets    int        `json:"total_tickets"`
	TranscriptCount int        `json:"transcript_count"`
	LastTicketDate  *time.Time `json:"last_ticket_date"`
	MemberSince     time.Time  `json:"member_since"`
}

type UserStatsResponse struct {
	Success bool      `json:"success"`
	Stats   UserStats `json:"stats"`
}

// CategoryCount mirrors the aggregate group shape {_id, count}.
type CategoryCount struct {
	Category string `json:"_id"`
	Count    int    `json:"count"`
}

type StoreStats struct {
	TotalTranscripts int             `json:"total_transcripts"`
	TotalUsers       int             `json:"total_users"`
	RecentActivity   int             `json:"recent_activity"`
	Categories       []CategoryCount `json:"categories"`
}

type StoreStatsResponse struct {
	Success bool       `json:"success"`
	Stats   StoreStats `json:"stats"`
}

// Summaries converts transcripts to their list form.
func Summaries(ts []domain.Transcript) []TranscriptSummary {
	out := make([]TranscriptSummary, 0, len(ts))
	for _, t := range ts {
		out = append(out, TranscriptSummary{
			ID:            t.ID,
			TicketNumber:  t.TicketNumber,
			UserID:        t.UserID,
			Category:      t.Category,
			Status:        t.Status,
			CreatedAt:     t.CreatedAt,
			ClosedAt:      t.ClosedAt,
			ClosingReason: t.ClosingReason,
		})
	}
	return out
}

func NewUserStats(s *domain.UserTranscriptStats) UserStats {
	return UserStats{
		UserID:          s.UserID,
		TotalTickets:    s.TotalTickets,
		TranscriptCount: s.TranscriptCount,
		LastTicketDate:  s.LastTicketDate,
		MemberSince:     s.MemberSince,
	}
}

func NewStoreStats(s *domain.TranscriptStats) StoreStats {
	categories := make([]CategoryCount, 0, len(s.Categories))
	for _, c := range s.Categories {
		categories = append(categories, CategoryCount{Category: c.Category, Count: c.Count})
	}
	return StoreStats{
		TotalTranscripts: s.TotalTranscripts,
		TotalUsers:       s.TotalUsers,
		RecentActivity:   s.RecentActivity,
		Categories:       categories,
	}
}
