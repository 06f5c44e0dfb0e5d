// Package middleware holds the HTTP handler wrappers used by webapp.
package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

type Clock interface {
	Now() time.Time
}

// RequestLogger writes an access log line per request.  Server errors log at
// warn so they stand out.
type RequestLogger struct {
	next  http.Handler
	clock Clock
	log   *zap.Logger
}

func NewRequestLogger(next http.Handler, clock Clock, log *zap.Logger) *RequestLogger {
	return &RequestLogger{next: next, clock: clock, log: log}
}

// Logging is NewRequestLogger in the shape chi's Use wants.
func Logging(clock Clock, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return NewRequestLogger(next, clock, log)
	}
}

func remoteAddr(r *http.Request) string {
	if r.Header.Get("X-Forwarded-For") != "" {
		return r.Header.Get("X-Forwarded-For")
	}
	return r.RemoteAddr
}

func (rl *RequestLogger) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := rl.clock.Now()
	ww := &codeWatcher{w: w}
	rl.next.ServeHTTP(ww, r)
	code := ww.Code()
	fields := []zap.Field{
		zap.Int("status", code),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("remote", remoteAddr(r)),
		zap.Int("bytes", ww.bytes),
		zap.Duration("duration", rl.clock.Now().Sub(start)),
	}
	if code >= 500 {
		rl.log.Warn("access", fields...)
		return
	}
	rl.log.Info("access", fields...)
}
