package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iksnae/chatrelay/internal"
)

// Resolver maps a request to the owner whose sessions it may touch. It may
// set cookies on w, so it runs before anything is written to the body.
type Resolver interface {
	Resolve(w http.ResponseWriter, r *http.Request) (internal.OwnerKey, error)
}

// HeaderResolver trusts a user id header set by an upstream auth proxy and
// falls back to an anonymous guest cookie, issuing one when absent.
type HeaderResolver struct {
	UserHeader string
	Cookie     string
	// Secure marks issued cookies as HTTPS-only.
	Secure bool
}

const guestCookieMaxAge = 365 * 24 * time.Hour

// NewHeaderResolver builds a resolver from the server configuration.
func NewHeaderResolver(cfg internal.ServerConfig) *HeaderResolver {
	return &HeaderResolver{UserHeader: cfg.UserHeader, Cookie: cfg.GuestCookie}
}

// Resolve implements Resolver.
func (h *HeaderResolver) Resolve(w http.ResponseWriter, r *http.Request) (internal.OwnerKey, error) {
	if h.UserHeader != "" {
		if id := strings.TrimSpace(r.Header.Get(h.UserHeader)); id != "" {
			return internal.UserOwner(id), nil
		}
	}

	if c, err := r.Cookie(h.Cookie); err == nil && strings.TrimSpace(c.Value) != "" {
		return internal.GuestOwner(c.Value), nil
	}

	token := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     h.Cookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(guestCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return internal.GuestOwner(token), nil
}
