package adminrpc

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/enginerepair/engshopsync/internal/auth"
)

type ctxKey string

const (
	ctxUserID   ctxKey = "admin_uid"
	ctxUsername ctxKey = "admin_username"
)

// UserID returns the authenticated caller's user id, set by
// AuthInterceptor.
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(ctxUserID).(string)
	return v
}

// Username returns the authenticated caller's username.
func Username(ctx context.Context) string {
	v, _ := ctx.Value(ctxUsername).(string)
	return v
}

// CorrelationInterceptor mirrors httpapi.CorrelationMiddleware: reads
// (or generates) a correlation id and attaches it to the per-request
// logger.
func CorrelationInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		correlationID := ""
		if vals := md.Get("x-correlation-id"); len(vals) > 0 {
			correlationID = vals[0]
		}
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		logger := log.With().Str("correlation_id", correlationID).Str("grpc_method", info.FullMethod).Logger()
		ctx = logger.WithContext(ctx)
		return handler(ctx, req)
	}
}

// RecoveryInterceptor converts a panicking handler into codes.Internal
// instead of crashing the process.
func RecoveryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Ctx(ctx).Error().Interface("panic", r).Str("method", info.FullMethod).Msg("panic recovered in admin rpc handler")
				err = status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

// AuthInterceptor validates the bearer token on the `authorization`
// metadata key, resolving it to a `users` row as auth.Middleware does
// for HTTP — this gRPC surface shares the same user table and never
// auto-provisions. One difference: in DevMode a non-empty
// x-debug-sub is used even when a bearer token is also present,
// whereas the HTTP middleware only falls back to X-Debug-Sub when no
// token is sent.
func AuthInterceptor(pool *pgxpool.Pool, cfg auth.JWTCfg) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		sub := ""
		if cfg.DevMode {
			if vals := md.Get("x-debug-sub"); len(vals) > 0 && vals[0] != "" {
				sub = vals[0]
			}
		}
		if sub == "" {
			authHeaders := md.Get("authorization")
			if len(authHeaders) == 0 || !strings.HasPrefix(authHeaders[0], "Bearer ") {
				return nil, status.Error(codes.Unauthenticated, "missing bearer token")
			}
			tok := strings.TrimPrefix(authHeaders[0], "Bearer ")
			s, err := auth.ValidateToken(tok, cfg)
			if err != nil {
				return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
			}
			sub = s
		}

		var userID string
		err := pool.QueryRow(ctx, `
			SELECT id FROM users WHERE username = $1 AND deleted_at IS NULL AND is_active
		`, sub).Scan(&userID)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "unknown or inactive user")
		}

		ctx = context.WithValue(ctx, ctxUserID, userID)
		ctx = context.WithValue(ctx, ctxUsername, sub)
		return handler(ctx, req)
	}
}
