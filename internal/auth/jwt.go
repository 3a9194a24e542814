// Package auth validates the bearer tokens spec.md §6 requires on
// every sync endpoint and resolves them to a server-side user record.
// Token *issuance* is out of scope (spec.md §1: "authentication/JWT
// issuance internals" are an external collaborator) — this package
// only validates tokens presented to it.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/enginerepair/engshopsync/internal/apperr"
)

type ctxKey string

const (
	ctxUserID   ctxKey = "uid"
	ctxUsername ctxKey = "username"
	ctxRole     ctxKey = "role"
)

// JWTCfg configures bearer-token validation. This spec has one
// tenant-less deployment behind its own HS256 secret — no external
// IdP, so there is no JWKS/RS256/audience machinery here.
type JWTCfg struct {
	HS256Secret string
	DevMode     bool // allow X-Debug-Sub to bypass JWT validation (local dev only)
}

// ValidateToken validates an HS256 JWT and returns its subject claim
// (the username to resolve against the users table).
func ValidateToken(tokenString string, cfg JWTCfg) (string, error) {
	if tokenString == "" {
		return "", errors.New("token is empty")
	}
	if cfg.HS256Secret == "" {
		return "", errors.New("HS256 secret not configured")
	}

	claims := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(cfg.HS256Secret), nil
	})
	if err != nil || !tok.Valid {
		return "", errors.New("jwt validation failed")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing or invalid sub claim")
	}
	return sub, nil
}

// Middleware authenticates every request, resolving the bearer token
// (or, in DevMode, an X-Debug-Sub header) to a row in `users` and
// attaching its id/username/role to the request context. Unlike the
// teacher's auto-provisioning middleware, it never creates a user:
// user provisioning is an administrative action outside the sync
// path, same as row ownership reassignment (spec.md §9).
func Middleware(pool *pgxpool.Pool, cfg JWTCfg) func(http.Handler) http.Handler {
	if cfg.DevMode {
		log.Warn().Msg("auth: dev mode enabled, X-Debug-Sub bypasses JWT validation")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := ""
			if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				tok = strings.TrimPrefix(h, "Bearer ")
			}

			sub := ""
			if cfg.DevMode && tok == "" {
				sub = r.Header.Get("X-Debug-Sub")
			}
			if tok != "" {
				var err error
				sub, err = ValidateToken(tok, cfg)
				if err != nil {
					writeAuthError(w, apperr.AuthRequired("invalid or expired token"))
					return
				}
			}
			if sub == "" {
				writeAuthError(w, apperr.AuthRequired("missing bearer token"))
				return
			}

			var userID, role string
			err := pool.QueryRow(r.Context(), `
				SELECT id, role FROM users WHERE username = $1 AND deleted_at IS NULL AND is_active
			`, sub).Scan(&userID, &role)
			if err == pgx.ErrNoRows {
				writeAuthError(w, apperr.AuthRequired("unknown or inactive user"))
				return
			}
			if err != nil {
				log.Error().Err(err).Str("username", sub).Msg("auth: user lookup failed")
				writeAuthError(w, apperr.Internal(err))
				return
			}

			ctx := context.WithValue(r.Context(), ctxUserID, userID)
			ctx = context.WithValue(ctx, ctxUsername, sub)
			ctx = context.WithValue(ctx, ctxRole, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, aerr *apperr.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(aerr.Code.HTTPStatus())
	_, _ = w.Write([]byte(`{"ok":false,"code":"` + string(aerr.Code) + `","message":"` + aerr.Message + `"}`))
}

// UserID extracts the authenticated user's id from request context.
func UserID(ctx context.Context) string { return strFromCtx(ctx, ctxUserID) }

// Username extracts the authenticated user's username from request context.
func Username(ctx context.Context) string { return strFromCtx(ctx, ctxUsername) }

// Role extracts the authenticated user's role from request context.
func Role(ctx context.Context) string { return strFromCtx(ctx, ctxRole) }

func strFromCtx(ctx context.Context, key ctxKey) string {
	if v := ctx.Value(key); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
