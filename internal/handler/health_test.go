package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func upChecker() HealthChecker { return pingFunc(func(context.Context) error { return nil }) }

func TestHealthz_ChecksNothing(t *testing.T) {
	h := NewHealthHandler(nil, nil)

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Checks != nil {
		t.Errorf("response = %+v, want bare ok", resp)
	}
}

func TestReadyz(t *testing.T) {
	dbDown := pingFunc(func(context.Context) error {
		return errors.New("dial tcp 10.0.0.5:5432: connection refused")
	})

	tests := []struct {
		name       string
		db, redis  HealthChecker
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name: "postgres and redis up", db: upChecker(), redis: upChecker(),
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"postgres": "ok", "redis": "ok"},
		},
		{
			name: "postgres down", db: dbDown, redis: upChecker(),
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"postgres": "unavailable", "redis": "ok"},
		},
		{
			name: "redis not wired", db: upChecker(), redis: nil,
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"postgres": "ok", "redis": "not configured"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.db, tt.redis)

			rec := httptest.NewRecorder()
			h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			body := rec.Body.String()
			if strings.Contains(body, "10.0.0.5") {
				t.Errorf("readiness body leaks dependency error: %s", body)
			}

			var resp HealthResponse
			if err := json.Unmarshal([]byte(body), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			for name, want := range tt.wantChecks {
				if resp.Checks[name] != want {
					t.Errorf("checks[%s] = %q, want %q", name, resp.Checks[name], want)
				}
			}
		})
	}
}

func TestReadyz_PingsUseRequestDeadline(t *testing.T) {
	var hadDeadline bool
	h := NewHealthHandler(pingFunc(func(ctx context.Context) error {
		_, hadDeadline = ctx.Deadline()
		return nil
	}), upChecker())

	h.Readyz(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if !hadDeadline {
		t.Error("dependency ping ran without a deadline")
	}
}
