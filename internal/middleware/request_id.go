package middleware

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/platformx/platformx/internal/model"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLength = 128

// requestInfo is shared by every middleware that handles one request. The
// auth guards run deeper in the chain than the access log, so they record the
// caller here instead of on a derived context the logger never sees.
type requestInfo struct {
	id string

	mu     sync.Mutex
	caller *model.AuthContext
}

type requestInfoKey struct{}

// RequestID tags each request with an id. A well-formed id sent by the client
// is kept; anything else is replaced with a fresh UUID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if !validRequestID(id) {
			id = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestInfoKey{}, &requestInfo{id: id})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.' || c == ':':
		default:
			return false
		}
	}
	return true
}

func infoFromContext(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(*requestInfo)
	return info
}

// GetRequestID returns the request id, or "" outside the RequestID middleware.
func GetRequestID(ctx context.Context) string {
	if info := infoFromContext(ctx); info != nil {
		return info.id
	}
	return ""
}

// recordCaller notes the authenticated caller for the access log.
func recordCaller(ctx context.Context, caller *model.AuthContext) {
	info := infoFromContext(ctx)
	if info == nil {
		return
	}
	info.mu.Lock()
	info.caller = caller
	info.mu.Unlock()
}

func recordedCaller(ctx context.Context) *model.AuthContext {
	info := infoFromContext(ctx)
	if info == nil {
		return nil
	}
	info.mu.Lock()
	defer info.mu.Unlock()
	return info.caller
}
