package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/fastprodman/walletpay/internal/infra/logging"
	"github.com/fastprodman/walletpay/internal/infra/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserIDHeader carries the caller identity set by the upstream authenticator.
const UserIDHeader = "X-User-ID"

type userIDKey struct{}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey{}).(uuid.UUID)
	return id, ok
}

// mustUserID is only valid behind requireUser.
func mustUserID(r *http.Request) uuid.UUID {
	id, _ := UserIDFromContext(r.Context())
	return id
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.Header.Get(UserIDHeader))
		if err != nil || id == uuid.Nil {
			writeError(w, r, http.StatusUnauthorized, "missing or invalid "+UserIDHeader)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey{}, id)
		ctx = logging.ContextWithLogger(ctx, logging.FromContext(ctx, nil).With(zap.String("user_id", id.String())))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLogger puts a request scoped logger into the context and logs
// each finished request.
func requestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := base.With(
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r.WithContext(logging.ContextWithLogger(r.Context(), log)))

			log.Debug("request served",
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

// instrument records request counts and latency by route pattern.
func instrument(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}
