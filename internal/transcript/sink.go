// Package transcript delivers closed-ticket transcripts to the transcript
// API, falling back to a local JSON file when the API cannot take them.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/carrydesk/carry-desk/internal/config"
	"github.com/carrydesk/carry-desk/internal/domain"
	"github.com/carrydesk/carry-desk/internal/observability"
	"github.com/carrydesk/carry-desk/internal/persistence"
)

// Outcome reports where a transcript ended up.
type Outcome string

const (
	OutcomeStored   Outcome = "stored"
	OutcomeDegraded Outcome = "degraded"
)

// TokenSource mints bearer tokens for the API.
type TokenSource interface {
	Token() (string, error)
}

// Sink posts transcripts to POST /api/transcripts.
type Sink struct {
	endpoint string
	timeout  time.Duration
	tokens   TokenSource
	fallback *persistence.JSONTable
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewSink builds a sink. tokens may be nil when the API runs without auth.
func NewSink(cfg config.SinkConfig, tokens TokenSource, fallback *persistence.JSONTable, logger *zap.Logger, metrics *observability.Metrics) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Sink{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/api/transcripts",
		timeout:  timeout,
		tokens:   tokens,
		fallback: fallback,
		logger:   logger,
		metrics:  metrics,
	}
}

// Store delivers t and never fails: any transport error or non-201 reply
// diverts the payload to the fallback file.
func (s *Sink) Store(ctx context.Context, t domain.Transcript) Outcome {
	err := s.post(ctx, t)
	if err == nil {
		s.metrics.RecordTranscriptOutcome(string(OutcomeStored))
		s.logger.Info("transcript stored",
			zap.String("ticket_number", t.TicketNumber),
			zap.Int("message_count", len(t.Messages)))
		return OutcomeStored
	}

	s.logger.Warn("transcript api unavailable, writing fallback",
		zap.String("ticket_number", t.TicketNumber),
		zap.Error(err))
	s.metrics.RecordTranscriptOutcome(string(OutcomeDegraded))
	if s.fallback == nil {
		return OutcomeDegraded
	}
	if t.SavedAt.IsZero() {
		t.SavedAt = time.Now().UTC()
	}
	if ferr := s.fallback.Append(t.TicketNumber, t); ferr != nil {
		s.logger.Error("transcript fallback write failed",
			zap.String("ticket_number", t.TicketNumber),
			zap.String("path", s.fallback.Path()),
			zap.Error(ferr))
	}
	return OutcomeDegraded
}

func (s *Sink) post(ctx context.Context, t domain.Transcript) error {
	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return context.DeadlineExceeded
		}
		if remaining < timeout {
			timeout = remaining
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	agent := fiber.Post(s.endpoint)
	if s.tokens != nil {
		token, err := s.tokens.Token()
		if err != nil {
			return fmt.Errorf("sign service token: %w", err)
		}
		agent.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	agent.JSON(t).Timeout(timeout)
	if err := agent.Parse(); err != nil {
		return fmt.Errorf("prepare request: %w", err)
	}

	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if status != fiber.StatusCreated {
		return fmt.Errorf("unexpected status %d: %s", status, truncate(string(body), 200))
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
