package api

import (
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"ms-booking/internal/logger"
)

// RequestLogger logs every request with method, path, status and latency.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			status := fmt.Sprintf("%d", rec.status)
			duration := time.Since(start).String()
			if rec.status >= 500 {
				log.Error("API", fmt.Sprintf("%s %s - %s (%s)", r.Method, r.URL.Path, status, duration))
			} else if rec.status >= 400 {
				log.Warn("API", fmt.Sprintf("%s %s - %s (%s)", r.Method, r.URL.Path, status, duration))
			} else {
				log.LogAPI(r.Method, r.URL.Path, status, duration)
			}
		})
	}
}

// RateLimit applies a token-bucket limit, used on the payment callback so a
// misbehaving gateway retry storm cannot take the service down.
func RateLimit(rps rate.Limit, burst int, log *logger.Logger) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rps, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				log.Warn("API", fmt.Sprintf("rate limit exceeded for %s %s", r.Method, r.URL.Path))
				writeError(w, http.StatusTooManyRequests, "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
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
