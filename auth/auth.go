// Package auth resolves the caller identity from the request's session.
// Credential issuance and cookie exchange belong to the identity
// collaborator; this package only maps a presented token to a user.
package auth

import (
	"context"
	"log"
	"net/http"
	"strings"

	"chatrelay/domain"

	"github.com/labstack/echo/v4"
)

// SessionCookie is the cookie carrying the session token.
const SessionCookie = "session"

const identityKey = "chatrelay.identity"

// SessionReader is the subset of the store needed to resolve sessions.
type SessionReader interface {
	GetSession(ctx context.Context, token string) (*domain.Session, error)
}

// Resolver maps a session token to an identity. A nil identity with a nil
// error means the token is unknown.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*domain.Identity, error)
}

// StoreResolver resolves sessions against the durable store.
type StoreResolver struct {
	Sessions SessionReader
}

// Resolve implements Resolver.
func (r *StoreResolver) Resolve(ctx context.Context, token string) (*domain.Identity, error) {
	if token == "" {
		return nil, nil
	}
	session, err := r.Sessions.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}
	return &domain.Identity{UserID: session.UserID}, nil
}

// Middleware attaches the resolved identity to the request context. It never
// rejects a request itself; handlers decide whether an identity is required.
func Middleware(resolver Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity, err := resolver.Resolve(c.Request().Context(), Token(c.Request()))
			if err != nil {
				log.Printf("ERROR: failed to resolve session: %v", err)
			} else if identity != nil {
				c.Set(identityKey, identity)
			}
			return next(c)
		}
	}
}

// CurrentUser returns the identity attached to the request, if any.
func CurrentUser(c echo.Context) (*domain.Identity, bool) {
	identity, ok := c.Get(identityKey).(*domain.Identity)
	return identity, ok
}

// Token extracts the session token from the request: the session cookie
// first, then a bearer Authorization header.
func Token(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
