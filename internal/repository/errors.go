package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/carrydesk/carry-desk/pkg/util/errorutil"
)

// Storage level sentinels. They are DomainErrors so handlers can render
// them directly; compare with errors.Is.
var (
	ErrTicketNotFound      = apperrors.NewNotFound("ticket", nil)
	ErrTicketAlreadyClosed = apperrors.NewConflict("ticket already closed", nil)
	ErrOpenTicketExists    = apperrors.NewConflict("creator already has an open ticket", nil)
	ErrCarryNotFound       = apperrors.NewNotFound("pending carry", nil)
	ErrFeedbackExists      = apperrors.NewConflict("feedback already submitted for this ticket", nil)
	ErrWindowNotFound      = apperrors.NewNotFound("feedback window", nil)
	ErrTranscriptNotFound  = apperrors.NewNotFound("transcript", nil)
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
