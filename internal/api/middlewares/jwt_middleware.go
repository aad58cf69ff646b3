package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/markdave123-py/knowledgevault/internal/models"
)

type ctxKey struct{}

// WithIdentity attaches the caller to ctx.
func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IdentityFrom returns the caller attached by JWTMiddleware.
func IdentityFrom(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(models.Identity)
	return id, ok && id.Subject != ""
}

// JWTMiddleware reads the bearer token and attaches the caller's identity to the request context.
// With an empty secret the token is assumed to be verified upstream (API gateway authorizer)
// and only its claims are read.
func JWTMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				unauthorized(w, "missing or invalid token")
				return
			}

			claims, err := parseClaims(strings.TrimPrefix(auth, "Bearer "), secret)
			if err != nil {
				unauthorized(w, "invalid token")
				return
			}

			id, err := identityFromClaims(claims)
			if err != nil {
				unauthorized(w, "invalid token claims")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func parseClaims(tokenStr, secret string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if secret == "" {
		if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
			return nil, err
		}
		return claims, nil
	}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func identityFromClaims(claims jwt.MapClaims) (models.Identity, error) {
	sub, _ := claims.GetSubject()
	if sub == "" {
		return models.Identity{}, errors.New("missing sub")
	}
	id := models.Identity{Subject: sub}
	for _, name := range []string{"cognito:groups", "groups"} {
		if g := stringList(claims[name]); len(g) > 0 {
			id.Groups = g
			break
		}
	}
	return id, nil
}

// stringList accepts a JSON array of strings or a single space/comma separated string.
func stringList(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if s, ok := x.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	case string:
		return strings.FieldsFunc(t, func(r rune) bool { return r == ',' || r == ' ' })
	}
	return nil
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
