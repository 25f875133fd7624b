package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/linkkey/linkkey/internal/constants"
	"github.com/linkkey/linkkey/internal/processing/links"
	"github.com/linkkey/linkkey/pkg/httputils"
)

type contextKey string

const principalContextKey contextKey = "principal"

// AuthMiddleware resolves the request principal from a bearer token.
// Requests without an Authorization header pass through as anonymous;
// a malformed or badly signed token is rejected outright so a client
// never silently loses its identity.
func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	secret := []byte(jwtSecret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header == "" {
				next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), links.Anonymous())))
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || len(secret) == 0 {
				httputils.WriteAPIError(w, r, constants.ErrUnauthorized)
				return
			}

			userID, err := parseSubject(token, secret)
			if err != nil {
				httputils.WriteAPIError(w, r, constants.ErrUnauthorized)
				return
			}

			principal := links.Principal{ID: userID, Authenticated: true}
			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
		})
	}
}

func parseSubject(raw string, secret []byte) (string, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return "", err
	}

	subject, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("token has no subject")
	}
	return subject, nil
}

func withPrincipal(ctx context.Context, p links.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFrom returns the request principal stored by AuthMiddleware,
// falling back to anonymous when the middleware did not run.
func PrincipalFrom(ctx context.Context) links.Principal {
	if p, ok := ctx.Value(principalContextKey).(links.Principal); ok {
		return p
	}
	return links.Anonymous()
}
