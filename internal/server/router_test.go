package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/platformx/platformx/internal/auth"
	"github.com/platformx/platformx/internal/handler"
	"github.com/platformx/platformx/internal/handler/dto"
	"github.com/platformx/platformx/internal/middleware"
	"github.com/platformx/platformx/internal/model"
	"github.com/platformx/platformx/internal/service"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type stubCatalog struct{}

func (stubCatalog) List(context.Context) ([]*model.BaseModel, error) {
	return []*model.BaseModel{{ID: "bm-1", DisplayName: "Gemini Pro", GenericName: "gemini-1.5-pro"}}, nil
}

func (stubCatalog) Get(_ context.Context, id string) (*model.BaseModel, error) {
	return nil, service.ErrBaseModelNotFound
}

type stubMarketplace struct {
	handler.MarketplaceService
	contentCalls int
}

func (s *stubMarketplace) Content(_ context.Context, id string) (*model.MarketplaceContent, error) {
	s.contentCalls++
	return &model.MarketplaceContent{DatasetID: id, Data: []map[string]any{{"city": "Lagos"}}}, nil
}

type stubKeys struct {
	keys []*model.APIKey
}

func (s *stubKeys) GetAPIKeysByPrefix(_ context.Context, prefix string) ([]*model.APIKey, error) {
	var out []*model.APIKey
	for _, k := range s.keys {
		if k.KeyPrefix == prefix {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *stubKeys) UpdateAPIKeyLastUsed(context.Context, string) error { return nil }

type mapAuthCache struct {
	mu sync.Mutex
	m  map[string]*model.AuthContext
}

func (c *mapAuthCache) GetAuthContext(_ context.Context, key string) (*model.AuthContext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[key], nil
}

func (c *mapAuthCache) SetAuthContext(_ context.Context, key string, a *model.AuthContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = a
	return nil
}

type okChecker struct{}

func (okChecker) Ping(context.Context) error { return nil }

type testRouter struct {
	handler     http.Handler
	marketplace *stubMarketplace
	userToken   string
	apiKey      string
}

func newTestRouter(t *testing.T) *testRouter {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	issuer := auth.NewTokenIssuer(testSecret, "platformx", time.Hour)
	token, _, err := issuer.Issue("user-1", "ada@example.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	generated, err := auth.GenerateAPIKey(auth.EnvTest)
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	keys := &stubKeys{keys: []*model.APIKey{{
		ID:            "key-1",
		UserID:        "user-1",
		KeyHash:       generated.Hash,
		KeyPrefix:     generated.Prefix,
		Scopes:        []string{model.ScopeDataRead},
		RateLimitTier: model.TierFree,
	}}}

	marketplace := &stubMarketplace{}
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "# metrics\n")
	})

	router := NewRouter(RouterConfig{
		Logger: logger,
		Handlers: Handlers{
			Root:          handler.New(),
			Health:        handler.NewHealthHandler(okChecker{}, okChecker{}),
			Users:         handler.NewUserHandler(nil, logger),
			Chat:          handler.NewChatHandler(nil, logger),
			Marketplace:   handler.NewMarketplaceHandler(marketplace, logger),
			BaseModels:    handler.NewBaseModelHandler(stubCatalog{}, logger),
			DerivedModels: handler.NewDerivedModelHandler(nil, logger),
			APIKeys:       handler.NewAPIKeyHandler(nil, logger),
		},
		Tokens:             issuer,
		Keys:               keys,
		AuthCache:          &mapAuthCache{m: map[string]*model.AuthContext{}},
		KeyAuthMinDuration: time.Millisecond,
		CORS:               middleware.DefaultCORSConfig(),
		Security:           middleware.DefaultSecurityConfig(),
		Metrics:            metricsHandler,
	})

	return &testRouter{
		handler:     router,
		marketplace: marketplace,
		userToken:   token,
		apiKey:      generated.Plaintext,
	}
}

func (tr *testRouter) do(method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	tr.handler.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body dto.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body.Code
}

func TestRouter_DataAPIRequiresAPIKey(t *testing.T) {
	tr := newTestRouter(t)
	path := "/api/v1/datamarketplace/dataapi/ds-1"

	rec := tr.do(http.MethodGet, path, map[string]string{"Authorization": "Bearer " + tr.userToken})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("user token: status = %d, want 401", rec.Code)
	}
	if code := errorCode(t, rec); code != "UNAUTHORIZED" {
		t.Errorf("code = %q, want UNAUTHORIZED", code)
	}
	if tr.marketplace.contentCalls != 0 {
		t.Fatal("data must not be served to a user token")
	}

	rec = tr.do(http.MethodGet, path, map[string]string{"X-API-Key": tr.apiKey})
	if rec.Code != http.StatusOK {
		t.Fatalf("api key: status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	var content model.MarketplaceContent
	if err := json.Unmarshal(rec.Body.Bytes(), &content); err != nil {
		t.Fatalf("decode content: %v", err)
	}
	if content.DatasetID != "ds-1" || len(content.Data) != 1 {
		t.Errorf("unexpected content: %+v", content)
	}
}

func TestRouter_TokenRoutesRejectAPIKey(t *testing.T) {
	tr := newTestRouter(t)

	rec := tr.do(http.MethodGet, "/api/v1/basemodel", map[string]string{"X-API-Key": tr.apiKey})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("api key on token route: status = %d, want 401", rec.Code)
	}

	rec = tr.do(http.MethodGet, "/api/v1/basemodel", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no credentials: status = %d, want 401", rec.Code)
	}

	rec = tr.do(http.MethodGet, "/api/v1/basemodel", map[string]string{"Authorization": "Bearer " + tr.userToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("user token: status = %d, want 200", rec.Code)
	}

	rec = tr.do(http.MethodGet, "/api/v1/basemodel/missing", map[string]string{"Authorization": "Bearer " + tr.userToken})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown base model: status = %d, want 404", rec.Code)
	}
}

func TestRouter_Operational(t *testing.T) {
	tr := newTestRouter(t)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/healthz", http.StatusOK},
		{"/readyz", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/", http.StatusOK},
		{"/api/v1/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := tr.do(http.MethodGet, tt.path, nil)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
				t.Error("security headers missing")
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Error("request id header missing")
			}
		})
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	tr := newTestRouter(t)

	rec := tr.do(http.MethodPut, "/healthz", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
	if code := errorCode(t, rec); code != "METHOD_NOT_ALLOWED" {
		t.Errorf("code = %q", code)
	}
}
