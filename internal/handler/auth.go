package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v4"

	"github.com/xenking/bistro/internal/domain/auth"
)

// Claims are the JWT claims issued by the account service. Subject holds the
// user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates an Authenticator for tokens signed with secret.
func NewAuthenticator(secret []byte) *Authenticator {
	return &Authenticator{secret: secret}
}

// Principal resolves the caller from a raw token.
func (a *Authenticator) Principal(raw string) (auth.Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return auth.Principal{}, auth.ErrUnauthenticated
	}
	if claims.Subject == "" {
		return auth.Principal{}, auth.ErrUnauthenticated
	}
	role, err := auth.ParseRole(claims.Role)
	if err != nil {
		return auth.Principal{}, auth.ErrUnauthenticated
	}
	return auth.NewPrincipal(claims.Subject, role), nil
}

// Middleware requires a valid bearer token and stores the principal in the
// request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			writeError(w, r, auth.ErrUnauthenticated)
			return
		}
		p, err := a.Principal(strings.TrimSpace(raw))
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

// requireCap rejects callers lacking c before the handler runs.
func requireCap(c auth.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.PrincipalFrom(r.Context())
			if !ok {
				writeError(w, r, auth.ErrUnauthenticated)
				return
			}
			if err := p.Require(c); err != nil {
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}
