package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/repository"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			message := cs.Message
			if message == "" {
				message = err.Error()
			}
			c.JSON(cs.Status, NewErrorResponse(c, message))
			return
		}
	}

	_ = c.Error(err)
	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}

// mappedMessage returns the client-facing message for err, used by form handlers.
func mappedMessage(err error, cases []ErrorCase) string {
	for _, cs := range cases {
		if cs.Err != nil && errors.Is(err, cs.Err) {
			if cs.Message != "" {
				return cs.Message
			}
			return err.Error()
		}
	}
	return "unexpected error"
}

// storeErrorCases are appended to every mapping so timeouts surface as retryable.
var storeErrorCases = []ErrorCase{
	{Err: repository.ErrStoreTimeout, Status: http.StatusServiceUnavailable, Message: "storage temporarily unavailable, retry later"},
	{Err: repository.ErrTooManyConflicts, Status: http.StatusServiceUnavailable, Message: "request conflicted with concurrent updates, retry later"},
}

var tempCodeErrorCases = append([]ErrorCase{
	{Err: usecase.ErrValidation, Status: http.StatusBadRequest},
	{Err: usecase.ErrInvalidDuration, Status: http.StatusBadRequest},
	{Err: usecase.ErrInvalidLockID, Status: http.StatusBadRequest},
	{Err: usecase.ErrTempCodeNotFound, Status: http.StatusNotFound, Message: "Code not found"},
	{Err: usecase.ErrCodeSpaceExhausted, Status: http.StatusServiceUnavailable, Message: "could not allocate a unique code, retry later"},
	{Err: usecase.ErrCodeWriteUnconfirmed, Status: http.StatusInternalServerError, Message: "temporary code could not be stored"},
}, storeErrorCases...)

var lockErrorCases = append([]ErrorCase{
	{Err: usecase.ErrValidation, Status: http.StatusBadRequest},
	{Err: usecase.ErrInvalidLockID, Status: http.StatusBadRequest},
	{Err: usecase.ErrInvalidLockName, Status: http.StatusBadRequest},
	{Err: usecase.ErrLockNotFound, Status: http.StatusNotFound},
	{Err: usecase.ErrLockExists, Status: http.StatusConflict},
	{Err: usecase.ErrPendingUserNotFound, Status: http.StatusNotFound},
}, storeErrorCases...)

var authErrorCases = append([]ErrorCase{
	{Err: usecase.ErrMissingCredentials, Status: http.StatusBadRequest, Message: "username and password are required"},
	{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid username or password"},
	{Err: usecase.ErrBruteForceBlocked, Status: http.StatusTooManyRequests, Message: "too many failed login attempts, try again later"},
}, storeErrorCases...)

var jobErrorCases = []ErrorCase{
	{Err: usecase.ErrUnknownJob, Status: http.StatusNotFound},
	{Err: usecase.ErrJobNotConfigured, Status: http.StatusConflict},
}
