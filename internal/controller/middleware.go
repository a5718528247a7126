package controller

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"github.com/unclebandit/attestation-service/internal/service"
)

// Identity headers set by the upstream auth boundary.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
	HeaderUserRole  = "X-User-Role"

	// HeaderServiceToken authenticates internal callers such as the identity system.
	HeaderServiceToken = "X-Service-Token"
)

type actorKey struct{}

// WithActor stores the caller in ctx.
func WithActor(ctx context.Context, a service.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFrom(ctx context.Context) (service.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(service.Actor)
	return a, ok
}

// Identity rejects requests without a usable caller identity.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(HeaderUserID)), 10, 64)
		email := strings.TrimSpace(r.Header.Get(HeaderUserEmail))
		if err != nil || id <= 0 || email == "" {
			WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
			return
		}
		actor := service.Actor{
			UserID: id,
			Email:  email,
			Role:   strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserRole))),
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, ok := ActorFrom(r.Context())
		if !ok || !a.IsAdmin() {
			WriteJSON(w, http.StatusForbidden, map[string]string{"error": "admin role required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ServiceToken admits requests carrying the shared internal token. An empty
// token disables the routes it guards.
func ServiceToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(HeaderServiceToken)
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "service token required"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// actor is only called behind Identity.
func actor(r *http.Request) service.Actor {
	a, _ := ActorFrom(r.Context())
	return a
}
