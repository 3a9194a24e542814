package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/enginerepair/engshopsync/internal/apperr"
	"github.com/enginerepair/engshopsync/internal/auth"
	"github.com/enginerepair/engshopsync/internal/compat"
	"github.com/enginerepair/engshopsync/internal/pullservice"
	"github.com/enginerepair/engshopsync/internal/pushservice"
)

// Server holds the dependencies every HTTP handler needs.
type Server struct {
	DB                  *pgxpool.Pool
	Log                 zerolog.Logger
	RateLimitConfig     RateLimitInfo // sync endpoints
	AuthRateLimitConfig RateLimitInfo // bootstrap endpoint
	JWTCfg              auth.JWTCfg

	Push   *pushservice.Service
	Pull   *pullservice.Service
	Compat *compat.Gate
}

// DefaultRateLimitConfig is the sustained rate for push/pull traffic.
var DefaultRateLimitConfig = RateLimitInfo{
	WindowSeconds: 60,
	MaxRequests:   600,
	Burst:         120,
}

// DefaultAuthRateLimitConfig is the stricter rate for session bootstrap.
var DefaultAuthRateLimitConfig = RateLimitInfo{
	WindowSeconds: 60,
	MaxRequests:   60,
	Burst:         20,
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}

// errorResponse is the wire-level failure shape spec.md §7 requires:
// clients see ok:false with a code and message, never a stack trace.
type errorResponse struct {
	OK            bool   `json:"ok"`
	Code          string `json:"code"`
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id"`
}

// writeAppError maps an *apperr.Error to its wire status code and body.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	aerr, ok := apperr.As(err)
	if !ok {
		aerr = apperr.Internal(err)
	}
	writeError(w, r, aerr.Code.HTTPStatus(), string(aerr.Code), aerr.Message)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	correlationID := GetCorrelationID(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{
		OK:            false,
		Code:          code,
		Error:         message,
		CorrelationID: correlationID,
	})
}

// Routes builds the HTTP router: health check and schema descriptor
// are unauthenticated; bootstrap, push, pull, and change-request
// decisions require a bearer token.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(CorrelationMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Default().Handler)

	r.Get("/v1/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/sync/schema", s.GetSchema)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.DB, s.JWTCfg))

		r.Group(func(r chi.Router) {
			r.Use(AuthRateLimitMiddleware(s.AuthRateLimitConfig))
			r.Post("/v1/sync/bootstrap", s.Bootstrap)
		})

		r.Group(func(r chi.Router) {
			r.Use(RateLimitMiddleware(s.RateLimitConfig))
			r.Post("/sync/push", s.Push_)
			r.Post("/sync/pull", s.Pull_)
			r.Post("/changes/apply", s.ChangesApply)
			r.Post("/changes/reject", s.ChangesReject)
		})
	})

	log.Info().Msg("HTTP routes registered")
	return r
}
