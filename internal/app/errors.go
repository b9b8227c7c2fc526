package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/CDLUC3/dmptool-narrative-generator/internal/export"
	"github.com/CDLUC3/dmptool-narrative-generator/internal/reconcile"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
	Err     error
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func domainError(status int, code, message string, err error) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// errPlanNotFound is shared by missing and forbidden plans so the two
// responses are byte-identical.
func errPlanNotFound(err error) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", "Plan not found", err)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, reconcile.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Plan not found", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusNotAcceptable, "UNSUPPORTED_FORMAT", "Requested format is not supported", nil
	case errors.Is(err, reconcile.ErrGenerationFailed):
		return http.StatusInternalServerError, "GENERATION_FAILED", "Unable to generate the narrative", nil
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusInternalServerError, "PDF_UNAVAILABLE", "PDF rendering is unavailable", nil
	case errors.Is(err, export.ErrRenderFailed):
		return http.StatusInternalServerError, "RENDER_FAILED", "Unable to render the narrative", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
