package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/Shivanand-hulikatti/volunteer-admission/internal/logging"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/model"
)

// Headers set by the authenticating proxy in front of this service.
const (
	HeaderIdentitySubject = "X-Identity-Subject"
	HeaderIdentityEmail   = "X-Identity-Email"
)

type identityKey struct{}

// IdentityFromContext returns the caller resolved by Identity, or a zero Identity.
func IdentityFromContext(ctx context.Context) model.Identity {
	id, _ := ctx.Value(identityKey{}).(model.Identity)
	return id
}

// Identity reads the caller from the proxy headers. It never rejects a request.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject := strings.TrimSpace(r.Header.Get(HeaderIdentitySubject))
		if subject == "" {
			next.ServeHTTP(w, r)
			return
		}
		id := model.Identity{
			Subject: subject,
			Email:   strings.TrimSpace(r.Header.Get(HeaderIdentityEmail)),
		}
		ctx := context.WithValue(r.Context(), identityKey{}, id)
		ctx = logging.ContextWithIdentity(ctx, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireIdentity rejects requests without a caller with 401.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IdentityFromContext(r.Context()).Subject == "" {
			writeError(w, http.StatusUnauthorized, "authentication required", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Logger writes one access log line per request and carries chi's request ID
// into the logging context.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		if rid := chimiddleware.GetReqID(ctx); rid != "" {
			ctx = logging.ContextWithRequestID(ctx, rid)
			r = r.WithContext(ctx)
		}
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		ev := logging.Ctx(r.Context()).Info()
		if status >= http.StatusInternalServerError {
			ev = logging.Ctx(r.Context()).Error()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// CORS allows the given origins to call the API, including the identity headers.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id", HeaderIdentitySubject, HeaderIdentityEmail},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	})
}

// RateLimit limits requests per client IP per minute. A non-positive limit disables it.
func RateLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusTooManyRequests, "too many registration attempts, try again later", "")
		}),
	)
}
