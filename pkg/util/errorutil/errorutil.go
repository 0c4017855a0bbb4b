package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes carried in API error bodies.
const (
	CodeValidation   = "VALIDATION_FAILED"
	CodeNotFound     = "NOT_FOUND"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeConflict     = "CONFLICT"
	CodeCollaborator = "COLLABORATOR_FAILED"
	CodeInternal     = "INTERNAL_ERROR"
)

const genericUserMessage = "Something went wrong while processing your request."

// DomainError is an application failure with a stable code, an HTTP
// status and optional structured details.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// Is compares code and message, so copies made by WithDetails or Wrap
// still match the sentinel they came from.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code && t.Message == e.Message
}

// WithDetails returns a copy of e carrying details.
func (e *DomainError) WithDetails(details map[string]any) *DomainError {
	cp := *e
	cp.Details = details
	return &cp
}

// Wrap returns a copy of e with cause attached.
func (e *DomainError) Wrap(cause error) *DomainError {
	cp := *e
	cp.Err = cause
	return &cp
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) *DomainError {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) *DomainError {
	return NewDomainError(CodeNotFound, resource+" not found", http.StatusNotFound, details)
}

func NewUnauthorized(message string) *DomainError {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) *DomainError {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) *DomainError {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

// NewCollaboratorError reports a failed call to the chat platform or
// another external dependency.
func NewCollaboratorError(message string, err error) *DomainError {
	return NewDomainError(CodeCollaborator, message, http.StatusBadGateway, nil).Wrap(err)
}

func NewInternalError(err error) *DomainError {
	return NewDomainError(CodeInternal, "internal server error", http.StatusInternalServerError, nil).Wrap(err)
}

// ToDomainError classifies err. pgx.ErrNoRows becomes a not found error,
// anything unknown an internal one.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var de *DomainError
	switch {
	case errors.As(err, &de):
		return de
	case errors.Is(err, pgx.ErrNoRows):
		return NewNotFound("resource", nil)
	default:
		return NewInternalError(err)
	}
}

// UserMessage renders err for chat replies. Internal failures get a
// generic sentence; collaborator failures keep their message.
func UserMessage(err error) string {
	de := ToDomainError(err)
	switch {
	case de == nil:
		return ""
	case de.HTTPStatus >= http.StatusInternalServerError && de.Code != CodeCollaborator:
		return genericUserMessage
	default:
		return de.Message
	}
}
