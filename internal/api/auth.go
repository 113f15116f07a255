package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var (
	errNoCredentials = errors.New("missing Authorization header")
	errNotBearer     = errors.New("authorization must use the Bearer scheme")
	errEmptyKey      = errors.New("missing API key")
	errWrongKey      = errors.New("invalid API key")
)

// bearerKey pulls the operator key out of "Authorization: Bearer <key>".
func bearerKey(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errNoCredentials
	}
	scheme, key, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", errNotBearer
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errEmptyKey
	}
	return key, nil
}

// keyMatches compares in constant time. An unset expected key never matches.
func keyMatches(presented, expected string) bool {
	if expected == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}

// requireKey rejects requests that do not carry the configured operator key.
func (s *Server) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, err := bearerKey(r)
		if err == nil && !keyMatches(key, s.config.APIKey) {
			err = errWrongKey
		}
		if err != nil {
			s.logger.Warn("rejected API request", "path", r.URL.Path, "reason", err.Error())
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
