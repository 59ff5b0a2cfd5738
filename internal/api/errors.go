package api

import (
	"errors"
	"log"
	"net/http"

	"quizroom/internal/broadcast"
	"quizroom/internal/gateway"
	"quizroom/pkg/interfaces"
	"quizroom/pkg/types"
)

var (
	ErrInvalidJSON     = errors.New("invalid JSON body")
	ErrInvalidQuery    = errors.New("invalid query parameter")
	ErrUnauthenticated = errors.New("X-User-ID header is required")
	ErrUnknownUser     = errors.New("unknown user")
)

// ErrorResponse is the body of every non-2xx API response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

var validationErrors = []error{
	ErrInvalidJSON,
	ErrInvalidQuery,
	types.ErrEmptyContent,
	types.ErrContentTooLarge,
	types.ErrInvalidQuizStatus,
	types.ErrInvalidProgress,
	types.ErrInvalidSessionType,
	types.ErrInvalidSeverity,
	gateway.ErrMissingQuizID,
	gateway.ErrEmptyRoomName,
	gateway.ErrInvalidReply,
	gateway.ErrMessageDeleted,
	broadcast.ErrMissingQuizID,
	broadcast.ErrMissingStudyGroupID,
	broadcast.ErrMissingSender,
	broadcast.ErrMissingMessage,
}

// statusFor maps a component error onto an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, gateway.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, gateway.ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrUnknownUser), errors.Is(err, gateway.ErrMissingCaller):
		return http.StatusUnauthorized
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// sendError writes err with its mapped status. Internal errors are logged
// and reported without detail.
func (s *Server) sendError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		log.Printf("API internal error: %v", err)
		message = "internal server error"
	}
	s.writeJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}
