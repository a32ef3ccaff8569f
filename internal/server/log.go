package server

import (
	"log/slog"
	"net/http"
	"time"
)

// recordingWriter remembers what a handler answered so the request can be
// logged after it returns.
type recordingWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *recordingWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *recordingWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *recordingWriter) statusCode() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// logMiddleware logs each request under its route pattern, so lookups for
// different songs share one log key. Server errors are logged at warn.
func logMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &recordingWriter{ResponseWriter: w}
		next.ServeHTTP(rw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		level := slog.LevelDebug
		if rw.statusCode() >= 500 {
			level = slog.LevelWarn
		}
		logger.Log(r.Context(), level, "http request",
			slog.String("route", route),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.statusCode()),
			slog.Int("bytes", rw.bytes),
			slog.Duration("duration", time.Since(start)))
	})
}
