package controllers

import (
	"errors"
	"log/slog"
	"net/http"

	"accesscontrol/internal/delivery/http/helpers"
	"accesscontrol/internal/domain"
)

// writeServiceError maps a service error onto the response envelope. tokenStatus is the
// status used for domain.ErrInvalidOrExpiredToken, which differs between verify and enroll.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, tokenStatus int) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidOrExpiredToken):
		helpers.WriteJSONError(w, tokenStatus, helpers.ErrCodeInvalidToken, "invalid or expired token")
	case errors.Is(err, domain.ErrSiteNotFound):
		helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, "site not found")
	case errors.Is(err, domain.ErrStorageFailure), errors.Is(err, domain.ErrTokenSpaceExhausted):
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		w.Header().Set("Retry-After", "5")
		helpers.WriteJSONError(w, http.StatusServiceUnavailable, helpers.ErrCodeStorageUnavailable, "service temporarily unavailable, retry later")
	default:
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, "internal error")
	}
}
