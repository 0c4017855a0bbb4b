package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/carrydesk/carry-desk/internal/api/dto"
	"github.com/carrydesk/carry-desk/internal/domain"
	"github.com/carrydesk/carry-desk/internal/service"
	apperrors "github.com/carrydesk/carry-desk/pkg/util/errorutil"
)

// TranscriptsHandler serves the transcript store.
type TranscriptsHandler struct {
	service *service.TranscriptService
}

// NewTranscriptsHandler constructs handler.
func NewTranscriptsHandler(transcripts *service.TranscriptService) *TranscriptsHandler {
	return &TranscriptsHandler{service: transcripts}
}

// Save handles POST /api/transcripts.
func (h *TranscriptsHandler) Save(c *fiber.Ctx) error {
	if len(c.Body()) == 0 {
		return apperrors.NewValidationError("no data provided", nil)
	}
	var req dto.SaveTranscriptRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	saved, err := h.service.Save(c.UserContext(), req.ToDomain())
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.SaveTranscriptResponse{
		Success:      true,
		TranscriptID: saved.ID,
		Message:      "Transcript saved successfully",
	})
}

// ListByUser handles GET /api/transcripts/:user_id.
func (h *TranscriptsHandler) ListByUser(c *fiber.Ctx) error {
	transcripts, err := h.service.ListByUser(c.UserContext(), c.Params("user_id"))
	if err != nil {
		return err
	}
	return c.JSON(listResponse(transcripts))
}

// Get handles GET /api/transcript/:ticket_number/:user_id.
func (h *TranscriptsHandler) Get(c *fiber.Ctx) error {
	t, err := h.service.Get(c.UserContext(), c.Params("ticket_number"), c.Params("user_id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.TranscriptDetailResponse{Success: true, Transcript: *t})
}

// UserStats handles GET /api/users/:user_id/stats.
func (h *TranscriptsHandler) UserStats(c *fiber.Ctx) error {
	stats, err := h.service.UserStats(c.UserContext(), c.Params("user_id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.UserStatsResponse{Success: true, Stats: dto.NewUserStats(stats)})
}

// Search handles GET /api/transcripts/search.
func (h *TranscriptsHandler) Search(c *fiber.Ctx) error {
	transcripts, err := h.service.Search(c.UserContext(), domain.TranscriptFilter{
		UserID:       strings.TrimSpace(c.Query("user_id")),
		Category:     strings.TrimSpace(c.Query("category")),
		TicketNumber: strings.TrimSpace(c.Query("ticket_number")),
	})
	if err != nil {
		return err
	}
	return c.JSON(listResponse(transcripts))
}

// Stats handles GET /api/transcripts/stats.
func (h *TranscriptsHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(dto.StoreStatsResponse{Success: true, Stats: dto.NewStoreStats(stats)})
}

func listResponse(ts []domain.Transcript) dto.TranscriptListResponse {
	summaries := dto.Summaries(ts)
	return dto.TranscriptListResponse{Success: true, Transcripts: summaries, Count: len(summaries)}
}
