package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/arailymkabykenova/MemeBattle/internal/game"
)

func statusFor(kind game.ErrorKind) int {
	switch kind {
	case game.KindNotFound:
		return http.StatusNotFound
	case game.KindPermissionDenied:
		return http.StatusForbidden
	case game.KindValidationFailed:
		return http.StatusBadRequest
	case game.KindAuthenticationFailed:
		return http.StatusUnauthorized
	case game.KindConflict:
		return http.StatusConflict
	case game.KindExternalUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// codeFor is the machine-readable error code used in websocket error
// frames, where HTTP status numbers would be out of place.
func codeFor(kind game.ErrorKind) string {
	switch kind {
	case game.KindNotFound:
		return "not_found"
	case game.KindPermissionDenied:
		return "permission_denied"
	case game.KindValidationFailed:
		return "validation_failed"
	case game.KindAuthenticationFailed:
		return "authentication_failed"
	case game.KindConflict:
		return "conflict"
	case game.KindExternalUnavailable:
		return "external_unavailable"
	default:
		return "internal"
	}
}

// writeError maps a domain error onto its HTTP status. Internal
// errors are logged in full but leave the process as a generic
// message.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	kind := game.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.Error(err))
		msg = "internal error"
	}
	h.writeJSON(w, status, map[string]any{
		"error": msg,
		"code":  codeFor(kind),
	})
}
