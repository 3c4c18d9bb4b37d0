package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/payless2025/payless/internal/observability/obscontext"
	streamdomain "github.com/payless2025/payless/internal/stream/domain"
)

// apiError is the wire form of a request failure.
type apiError struct {
	status    int
	Code      string `json:"code"`
	Field     string `json:"field,omitempty"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func (e *apiError) Error() string { return e.Code }

var (
	ErrNotFound = &apiError{
		status:  http.StatusNotFound,
		Code:    "not_found",
		Message: "resource not found",
	}
	ErrTooManyRequests = &apiError{
		status:  http.StatusTooManyRequests,
		Code:    "rate_limited",
		Message: "too many requests",
	}
)

func invalidRequestError() *apiError {
	return &apiError{
		status:  http.StatusBadRequest,
		Code:    "invalid_request",
		Message: "malformed request body",
	}
}

func newValidationError(field, code, message string) *apiError {
	return &apiError{
		status:  http.StatusBadRequest,
		Code:    code,
		Field:   field,
		Message: message,
	}
}

// AbortWithError translates server and ledger errors into HTTP
// responses: unknown streams map to 404, transitions that are not valid
// from the current status map to 409, bad input to 400.
func AbortWithError(c *gin.Context, err error) {
	requestID := obscontext.RequestIDFromGin(c)

	var apiErr *apiError
	if errors.As(err, &apiErr) {
		// Copy before stamping: sentinel errors are shared.
		out := *apiErr
		out.RequestID = requestID
		c.AbortWithStatusJSON(out.status, gin.H{"error": &out})
		return
	}

	status := statusForLedgerError(err)
	c.AbortWithStatusJSON(status, gin.H{"error": &apiError{
		status:    status,
		Code:      err.Error(),
		Message:   strings.ReplaceAll(err.Error(), "_", " "),
		RequestID: requestID,
	}})
}

func statusForLedgerError(err error) int {
	switch {
	case errors.Is(err, streamdomain.ErrStreamNotFound):
		return http.StatusNotFound
	case errors.Is(err, streamdomain.ErrStreamNotActive),
		errors.Is(err, streamdomain.ErrStreamNotPaused):
		return http.StatusConflict
	case errors.Is(err, streamdomain.ErrInvalidWallet),
		errors.Is(err, streamdomain.ErrInvalidRate),
		errors.Is(err, streamdomain.ErrInvalidInterval),
		errors.Is(err, streamdomain.ErrInvalidService),
		errors.Is(err, streamdomain.ErrInvalidBalance),
		errors.Is(err, streamdomain.ErrInvalidAmount):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
