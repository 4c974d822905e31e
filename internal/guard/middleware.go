package guard

import (
	"fmt"
	"net/http"

	"integration-hub/internal/common/errors"
)

// HTTPMiddleware enforces the given operation class on every request. The
// pre-request check denies blocked or over-limit keys; error responses are
// reported back so failed attempts escalate.
func (g *Guard) HTTPMiddleware(class string, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			decision, err := g.CheckAndRecord(r.Context(), class, key, false)
			if err != nil {
				// Guard store trouble must not take the API down.
				next.ServeHTTP(w, r)
				return
			}

			if !decision.Allowed {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(decision.RetryAfter.Seconds())))
				if decision.Reason == errors.ErrTypeIPBlocked {
					http.Error(w, "Temporarily blocked", http.StatusForbidden)
				} else {
					http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				}
				return
			}

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)

			if recorder.status >= http.StatusBadRequest {
				_ = g.RecordFailure(r.Context(), class, key)
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// IPBasedKey identifies the caller by IP, honouring proxy headers.
func IPBasedKey(r *http.Request) string {
	ip := r.Header.Get("X-Forwarded-For")
	if ip == "" {
		ip = r.Header.Get("X-Real-IP")
	}
	if ip == "" {
		ip = r.RemoteAddr
	}
	return "ip:" + ip
}
