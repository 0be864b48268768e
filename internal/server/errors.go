package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/consigna/internal/audit/domain"
	balancedomain "github.com/smallbiznis/consigna/internal/balance/domain"
	ledgerdomain "github.com/smallbiznis/consigna/internal/ledger/domain"
	referencedomain "github.com/smallbiznis/consigna/internal/reference/domain"
	seqdomain "github.com/smallbiznis/consigna/internal/sequence/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// genericFailure is all a caller learns about server-side failures; the reason is logged.
const genericFailure = "could not complete operation"

// validationSentinels are reported as 400 with their code.
var validationSentinels = []error{
	ErrInvalidRequest,
	seqdomain.ErrInvalidKind,
	seqdomain.ErrInvalidSiteCode,
	seqdomain.ErrMalformedNumber,
	ledgerdomain.ErrInvalidSiteCode,
	ledgerdomain.ErrInvalidClientCode,
	ledgerdomain.ErrInvalidAmount,
	ledgerdomain.ErrInvalidPallets,
	ledgerdomain.ErrInvalidStatus,
	ledgerdomain.ErrInvalidActor,
	ledgerdomain.ErrFieldNotApplicable,
	ledgerdomain.ErrUnknownSite,
	ledgerdomain.ErrUnknownClient,
	balancedomain.ErrInvalidClientCode,
	balancedomain.ErrInvalidSiteCode,
	auditdomain.ErrInvalidPageToken,
	auditdomain.ErrInvalidTimeRange,
	referencedomain.ErrInvalidSite,
	referencedomain.ErrInvalidClient,
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: genericFailure,
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if code, ok := validationErrorCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, ledgerdomain.ErrSequenceCollision),
		errors.Is(err, seqdomain.ErrSequenceExhausted):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: genericFailure,
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, balancedomain.ErrLockTimeout),
		errors.Is(err, seqdomain.ErrSequenceContended):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: genericFailure,
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: genericFailure,
		}
	}
}

// classifyErrorForLog returns the error type and code written on the request log line.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	var persistErr *balancedomain.PersistenceError
	if errors.As(err, &persistErr) {
		return payload.Type, "balance_persistence"
	}
	return payload.Type, http.StatusText(status)
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ledgerdomain.ErrNotFound),
		errors.Is(err, balancedomain.ErrNotFound),
		errors.Is(err, referencedomain.ErrSiteNotFound),
		errors.Is(err, referencedomain.ErrClientNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) (string, bool) {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error(), true
		}
	}
	return "", false
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	if strings.HasPrefix(code, "unknown_") {
		return strings.TrimPrefix(code, "unknown_") + "_code"
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "unknown_site", "unknown_client":
		return "unknown reference"
	case "field_not_applicable":
		return "field does not apply to this document"
	default:
		return "invalid value"
	}
}
