package rotation

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// TriggerHandler exposes the rotation run to the external periodic trigger.
// The caller must present the shared secret; anything else is rejected before
// any side effect happens.
type TriggerHandler struct {
	scheduler *Scheduler
	secret    string
}

// NewTriggerHandler creates the HTTP handler for the rotation trigger.
func NewTriggerHandler(scheduler *Scheduler, secret string) *TriggerHandler {
	return &TriggerHandler{scheduler: scheduler, secret: secret}
}

func (h *TriggerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	if !h.authorized(r) {
		log.Warn().Str("remote", r.RemoteAddr).Msg("rejected rotation trigger: bad credential")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	result, err := h.scheduler.Run(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("rotation run failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *TriggerHandler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) == 1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write rotation response")
	}
}
