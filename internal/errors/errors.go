package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
)

// Error kinds surfaced by the tax core. Handlers translate them to status codes,
// callers should match on the kind and never on the message.
var (
	ErrNotFound            = new(ErrCodeNotFound, "resource not found")
	ErrValidation          = new(ErrCodeValidation, "validation error")
	ErrOverlapConflict     = new(ErrCodeOverlapConflict, "tax rule overlaps an existing rule")
	ErrPermissionDenied    = new(ErrCodePermissionDenied, "permission denied")
	ErrTenantNotFound      = new(ErrCodeTenantNotFound, "tenant not found")
	ErrUpstreamUnavailable = new(ErrCodeUpstreamUnavailable, "upstream service unavailable")
	ErrDatabase            = new(ErrCodeDatabase, "database error")
	ErrSystem              = new(ErrCodeSystemError, "system error")

	// maps errors to http status codes
	statusCodeMap = map[error]int{
		ErrNotFound:            http.StatusNotFound,
		ErrValidation:          http.StatusBadRequest,
		ErrOverlapConflict:     http.StatusConflict,
		ErrPermissionDenied:    http.StatusUnauthorized,
		ErrTenantNotFound:      http.StatusNotFound,
		ErrUpstreamUnavailable: http.StatusBadGateway,
		ErrDatabase:            http.StatusInternalServerError,
		ErrSystem:              http.StatusInternalServerError,
	}
)

const (
	ErrCodeNotFound            = "not_found"
	ErrCodeValidation          = "validation_error"
	ErrCodeOverlapConflict     = "overlap_conflict"
	ErrCodePermissionDenied    = "permission_denied"
	ErrCodeTenantNotFound      = "tenant_not_found"
	ErrCodeUpstreamUnavailable = "upstream_unavailable"
	ErrCodeDatabase            = "database_error"
	ErrCodeSystemError         = "system_error"
)

// InternalError represents a domain error kind
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

func new(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsOverlapConflict(err error) bool {
	return errors.Is(err, ErrOverlapConflict)
}

func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

func IsTenantNotFound(err error) bool {
	return errors.Is(err, ErrTenantNotFound)
}

func IsUpstreamUnavailable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable)
}

func IsDatabase(err error) bool {
	return errors.Is(err, ErrDatabase)
}

// Code returns the machine-readable kind of err, or the system error code for
// errors that were never marked.
func Code(err error) string {
	for kind := range statusCodeMap {
		if errors.Is(err, kind) {
			return kind.(*InternalError).Code
		}
	}
	return ErrCodeSystemError
}

func HTTPStatusFromErr(err error) int {
	for e, status := range statusCodeMap {
		if errors.Is(err, e) {
			return status
		}
	}
	return http.StatusInternalServerError
}

// DisplayMessage returns the first hint attached to err, falling back to the
// display message of its kind. Internal causes are never exposed.
func DisplayMessage(err error) string {
	if hints := errors.GetAllHints(err); len(hints) > 0 {
		return hints[0]
	}
	for kind := range statusCodeMap {
		if errors.Is(err, kind) {
			return kind.(*InternalError).Message
		}
	}
	return ErrSystem.Message
}

// jsonDetailsPrefix marks safe-detail payloads written by WithReportableDetails
const jsonDetailsPrefix = "__json__:"

// ReportableDetails collects the structured details attached with
// WithReportableDetails anywhere in the chain.
func ReportableDetails(err error) map[string]any {
	details := make(map[string]any)
	for _, sdp := range errors.GetAllSafeDetails(err) {
		for _, payload := range sdp.SafeDetails {
			if !strings.HasPrefix(payload, jsonDetailsPrefix) {
				continue
			}
			var parsed map[string]any
			if err := json.Unmarshal([]byte(strings.TrimPrefix(payload, jsonDetailsPrefix)), &parsed); err == nil {
				for k, v := range parsed {
					details[k] = v
				}
			}
		}
	}
	return details
}
