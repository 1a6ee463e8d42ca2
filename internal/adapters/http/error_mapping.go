package httpadapter

import (
	"net/http"

	"github.com/daehwan-dev/policy-assistant/internal/core/domain"
)

// statusForError maps domain error kinds onto HTTP statuses plus a
// machine-readable code clients can branch on.
func statusForError(err error) (int, string) {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case domain.IsKind(err, domain.ErrPolicyNotFound):
		return http.StatusNotFound, "policy_not_found"
	case domain.IsKind(err, domain.ErrPolicyNotInitialized):
		return http.StatusPreconditionFailed, "policy_not_initialized"
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable, "temporary_failure"
	case domain.IsKind(err, domain.ErrUpstream):
		return http.StatusBadGateway, "upstream_failure"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusForError(err)
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  code,
	})
}
