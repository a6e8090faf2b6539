package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// startedWriter notes whether a handler has begun its response.
type startedWriter struct {
	http.ResponseWriter
	started bool
}

func (w *startedWriter) WriteHeader(code int) {
	w.started = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *startedWriter) Write(b []byte) (int, error) {
	w.started = true
	return w.ResponseWriter.Write(b)
}

func (w *startedWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Recoverer turns a handler panic into a logged stack trace and a JSON 500.
// If the handler already started its response, the response is left as is.
// http.ErrAbortHandler is re-raised for net/http to handle.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &startedWriter{ResponseWriter: w}
			defer func() {
				rvr := recover()
				if rvr == nil {
					return
				}
				if err, ok := rvr.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rvr)
				}

				attrs := []any{
					slog.String("request_id", GetRequestID(r.Context())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Any("panic", rvr),
					slog.Bool("response_started", sw.started),
					slog.String("stack", string(debug.Stack())),
				}
				if caller := recordedCaller(r.Context()); caller != nil {
					attrs = append(attrs, slog.String("user_id", caller.UserID))
				}
				logger.Error("handler panic", attrs...)

				if !sw.started {
					writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
				}
			}()

			next.ServeHTTP(sw, r)
		})
	}
}
