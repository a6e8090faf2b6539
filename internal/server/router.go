package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/platformx/platformx/internal/handler"
	"github.com/platformx/platformx/internal/middleware"
)

// Handlers groups the HTTP handlers the router mounts.
type Handlers struct {
	Root          *handler.Handler
	Health        *handler.HealthHandler
	Users         *handler.UserHandler
	Chat          *handler.ChatHandler
	Marketplace   *handler.MarketplaceHandler
	BaseModels    *handler.BaseModelHandler
	DerivedModels *handler.DerivedModelHandler
	APIKeys       *handler.APIKeyHandler
}

// RouterConfig holds everything NewRouter needs besides the handlers.
type RouterConfig struct {
	Logger   *slog.Logger
	Handlers Handlers

	Tokens    middleware.TokenVerifier
	Keys      middleware.KeyStore
	AuthCache middleware.AuthCache
	// KeyAuthMinDuration overrides the API key guard's padding; zero keeps the default.
	KeyAuthMinDuration time.Duration

	RateLimit middleware.RateLimitConfig
	CORS      middleware.CORSConfig
	Security  middleware.SecurityConfig

	// Metrics is served at /metrics when set.
	Metrics http.Handler
}

// NewRouter builds the chi router with all routes and middleware.
//
// Browser routes sit behind the user token guard. The raw data API sits
// behind the API key guard only, so a signed-in user token is not enough
// to pull data.
func NewRouter(cfg RouterConfig) *chi.Mux {
	h := cfg.Handlers
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(middleware.Security(cfg.Security))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.MaxBodySize(cfg.Security.MaxRequestBodySize))

	r.Get("/healthz", h.Health.Healthz)
	r.Get("/readyz", h.Health.Readyz)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	r.Get("/", h.Root.Root)

	tokenAuth := middleware.TokenAuth(middleware.TokenAuthConfig{
		Logger:   cfg.Logger,
		Verifier: cfg.Tokens,
	})
	keyAuth := middleware.APIKeyAuth(middleware.APIKeyAuthConfig{
		Logger:      cfg.Logger,
		Keys:        cfg.Keys,
		Cache:       cfg.AuthCache,
		MinDuration: cfg.KeyAuthMinDuration,
	})
	rateLimitCfg := cfg.RateLimit
	rateLimitCfg.Logger = cfg.Logger

	r.Route("/api/v1", func(r chi.Router) {
		// OTP login is unauthenticated, so it is limited per client IP.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitIP(rateLimitCfg))
			r.Post("/auth/generate-otp", h.Users.GenerateOTP)
			r.Post("/auth/verify-otp", h.Users.VerifyOTP)
		})

		r.Group(func(r chi.Router) {
			r.Use(tokenAuth)
			r.Use(middleware.RateLimitSubject(rateLimitCfg))

			r.Get("/user/me", h.Users.Me)
			r.Patch("/user/me", h.Users.UpdateMe)

			r.Post("/chat", h.Chat.Generate)
			r.Get("/chat/threads", h.Chat.Threads)
			r.Get("/chat/threads/{threadId}", h.Chat.Thread)
			r.Get("/chat/usage", h.Chat.Usage)

			r.Get("/datamarketplace/filters-and-sort-options", h.Marketplace.FiltersAndSortOptions)
			r.Post("/datamarketplace/listings", h.Marketplace.Listings)
			r.Get("/datamarketplace/viewdataset/{datasetId}", h.Marketplace.ViewDataset)

			r.Get("/basemodel", h.BaseModels.List)
			r.Get("/basemodel/{id}", h.BaseModels.Get)

			r.Post("/derivedmodel/create", h.DerivedModels.Create)
			r.Get("/derivedmodel/listings", h.DerivedModels.List)
			r.Get("/derivedmodel/filters", h.DerivedModels.Filters)
			r.Get("/derivedmodel/mybuilds", h.DerivedModels.MyBuilds)
			r.Get("/derivedmodel/{modelId}", h.DerivedModels.Get)
			r.Get("/derivedmodel/{modelId}/usage", h.DerivedModels.Usage)

			r.Get("/favourites", h.DerivedModels.Favourites)
			r.Post("/favourites/{modelId}", h.DerivedModels.AddFavourite)
			r.Delete("/favourites/{modelId}", h.DerivedModels.RemoveFavourite)

			r.Get("/apikeys", h.APIKeys.List)
			r.Post("/apikeys", h.APIKeys.Create)
			r.Delete("/apikeys/{keyId}", h.APIKeys.Revoke)
			r.Post("/apikeys/{keyId}/rotate", h.APIKeys.Rotate)
		})

		r.Group(func(r chi.Router) {
			r.Use(keyAuth)
			r.Use(middleware.RateLimitSubject(rateLimitCfg))
			r.With(middleware.RequireDataRead()).Get("/datamarketplace/dataapi/{datasetId}", h.Marketplace.DataAPI)
		})
	})

	r.NotFound(h.Root.NotFound)
	r.MethodNotAllowed(h.Root.MethodNotAllowed)

	return r
}
