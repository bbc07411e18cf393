package cron

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// cronAuth checks the shared secret the scheduler sends with every request.
type cronAuth struct {
	secret string
	logger *zap.Logger
}

// authenticate accepts the secret in X-Cron-Secret or as a bearer token.
// An empty configured secret rejects every request.
func (a cronAuth) authenticate(r *http.Request) bool {
	if a.secret == "" {
		return false
	}
	if header := r.Header.Get("X-Cron-Secret"); header != "" {
		return secretEqual(header, a.secret)
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		return secretEqual(auth, "Bearer "+a.secret)
	}
	return false
}

// guard rejects non-POST and unauthenticated requests, writing the error
// response itself.
func (a cronAuth) guard(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		a.respondError(w, http.StatusMethodNotAllowed, "only POST method is allowed")
		return false
	}
	if !a.authenticate(r) {
		a.logger.Warn("Unauthorized cron request",
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
		)
		a.respondError(w, http.StatusUnauthorized, "unauthorized")
		return false
	}
	return true
}

func secretEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (a cronAuth) respondJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (a cronAuth) respondError(w http.ResponseWriter, statusCode int, message string) {
	a.respondJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
