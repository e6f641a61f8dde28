package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
)

var (
	ErrNoCredentials      = errors.New("no credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Identity is the authenticated caller.
type Identity struct {
	// Subject identifies the key without revealing it.
	Subject string
	Method  string
}

// Authenticator decides whether a request carries a known caller.
// It returns ErrNoCredentials or ErrInvalidCredentials on rejection.
type Authenticator interface {
	Authenticate(r *http.Request) (Identity, error)
}

// APIKeyAuthenticator accepts static API keys sent as
// "Authorization: Bearer <key>" or "X-API-Key: <key>".
// The key set can be replaced while serving.
type APIKeyAuthenticator struct {
	mu   sync.RWMutex
	keys []string
}

func NewAPIKeyAuthenticator(keys []string) *APIKeyAuthenticator {
	a := &APIKeyAuthenticator{}
	a.SetKeys(keys)
	return a
}

// SetKeys replaces the accepted keys. Blank entries are ignored.
func (a *APIKeyAuthenticator) SetKeys(keys []string) {
	cleaned := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			cleaned = append(cleaned, k)
		}
	}

	a.mu.Lock()
	a.keys = cleaned
	a.mu.Unlock()
}

func (a *APIKeyAuthenticator) KeyCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.keys)
}

func (a *APIKeyAuthenticator) Authenticate(r *http.Request) (Identity, error) {
	candidate, method := extractAPIKey(r)
	if candidate == "" {
		return Identity{}, ErrNoCredentials
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	// Compare against every key so timing does not depend on the match position.
	matched := false
	for _, key := range a.keys {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1 {
			matched = true
		}
	}
	if !matched {
		return Identity{}, ErrInvalidCredentials
	}

	sum := sha256.Sum256([]byte(candidate))
	return Identity{
		Subject: "key:" + hex.EncodeToString(sum[:4]),
		Method:  method,
	}, nil
}

func extractAPIKey(r *http.Request) (string, string) {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")), "bearer"
	}

	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key, "x-api-key"
	}

	return "", ""
}

type identityKey struct{}

// IdentityFrom returns the caller stored by RequireAuth.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// RequireAuth rejects requests without credentials with 401 and requests
// with unknown credentials with 403.
func RequireAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := auth.Authenticate(r)
			if err != nil {
				if errors.Is(err, ErrNoCredentials) {
					w.Header().Set("WWW-Authenticate", `Bearer realm="ai-gateway"`)
					writeMessage(w, http.StatusUnauthorized, "Authentication required")
					return
				}
				writeMessage(w, http.StatusForbidden, "Invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), identityKey{}, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
