package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRecoverer(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	handler := RequestID(Recoverer(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/usage", nil)
	req.Header.Set(RequestIDHeader, "req-panic-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assertErrorCode(t, rec, http.StatusInternalServerError, "INTERNAL_ERROR")

	line := decodeLogLine(t, &logs)
	if line["msg"] != "handler panic" || line["panic"] != "boom" || line["request_id"] != "req-panic-1" {
		t.Errorf("unexpected log line %v", line)
	}
	if stack, _ := line["stack"].(string); !strings.Contains(stack, "recovery.go") {
		t.Error("log line should carry the stack")
	}
}

func TestRecoverer_ResponseAlreadyStarted(t *testing.T) {
	handler := Recoverer(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"partial":`))
		panic("mid-body")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want the handler's 202", rec.Code)
	}
	if body := rec.Body.String(); body != `{"partial":` {
		t.Errorf("body = %q, error JSON must not be appended", body)
	}
}

func TestRecoverer_ReraisesAbortHandler(t *testing.T) {
	handler := Recoverer(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rvr := recover(); rvr != http.ErrAbortHandler {
			t.Errorf("recovered %v, want http.ErrAbortHandler", rvr)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
