package service

import (
	"github.com/carrydesk/carry-desk/internal/repository"
	apperrors "github.com/carrydesk/carry-desk/pkg/util/errorutil"
)

// Sentinels returned by the services. Callers match them with errors.Is;
// copies carrying details still match.
var (
	ErrPermissionDenied = apperrors.NewForbidden("you do not have permission to do that")

	ErrDuplicateTicket    = apperrors.NewConflict("you already have an open ticket", nil)
	ErrInactiveCategory   = apperrors.NewValidationError("unknown or inactive ticket category", nil)
	ErrInvalidPriority    = apperrors.NewValidationError("unknown priority", nil)
	ErrTicketClosed       = apperrors.NewConflict("ticket is closed", nil)
	ErrAlreadyClaimed     = apperrors.NewConflict("ticket already claimed by another staff member", nil)
	ErrNotClaimed         = apperrors.NewConflict("ticket is not claimed", nil)
	ErrPriorityAlreadySet = apperrors.NewConflict("priority can only be selected once per ticket", nil)
	ErrHelpCooldown       = apperrors.NewConflict("help was already called for this ticket recently", nil)
	ErrNotParticipant     = apperrors.NewForbidden("only the ticket creator or staff can do that")

	ErrInvalidCarryType   = apperrors.NewValidationError("invalid carry type, use dungeon or slayer", nil)
	ErrInvalidGrade       = apperrors.NewValidationError("invalid grade, use s or s+", nil)
	ErrInvalidRuns        = apperrors.NewValidationError("number of runs must be positive", nil)
	ErrInvalidFloorOrTier = apperrors.NewValidationError("invalid floor or tier for this carry type", nil)
	ErrStaffRequired      = apperrors.NewValidationError("the staff member who carried is required", nil)
	ErrSelfApproval       = apperrors.NewForbidden("you cannot approve your own carry request")
	ErrReasonRequired     = apperrors.NewValidationError("a reason is required", nil)
	ErrInvalidAmount      = apperrors.NewValidationError("points must be positive", nil)
	ErrNoPointsToDeduct   = apperrors.NewValidationError("carrier has no points to deduct", nil)
	ErrSameCarrier        = apperrors.NewValidationError("replacement must be a different staff member", nil)
	ErrCarryNotFound      = repository.ErrCarryNotFound

	ErrInvalidRating        = apperrors.NewValidationError("rating must be between 1 and 5", nil)
	ErrFeedbackRequired     = apperrors.NewValidationError("feedback text is required", nil)
	ErrNotTicketCreator     = apperrors.NewForbidden("only the ticket creator can leave feedback")
	ErrFeedbackWindowClosed = apperrors.NewConflict("the feedback window for this ticket has closed", nil)
	ErrAlreadySubmitted     = repository.ErrFeedbackExists
)

var ErrTranscriptFieldMissing = apperrors.NewValidationError("missing required field", nil)
