package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/gdg-garage/achievement-atlas-api/internal/apperr"
	"github.com/gdg-garage/achievement-atlas-api/internal/auth"
	"github.com/gdg-garage/achievement-atlas-api/internal/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handlers struct {
	Auth        *auth.AuthHandler
	Manifest    *ManifestHandler
	Character   *CharacterHandler
	Achievement *AchievementHandler
}

func RegisterRoutes(r *chi.Mux, cfg *config.Config, h Handlers) huma.API {
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if cfg.EnableCORS {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{cfg.AppOrigin},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "X-Admin-Key"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(h.Auth.AuthMiddleware)

	// Initialize Huma API
	config := huma.DefaultConfig("Achievement Atlas API", "1.0.0")
	// Bodies are plain JSON; no $schema links.
	config.CreateHooks = nil
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"cookieAuth": {
			Type: "apiKey",
			In:   "cookie",
			Name: auth.CookieName,
		},
		"adminKey": {
			Type: "apiKey",
			In:   "header",
			Name: "X-Admin-Key",
		},
	}
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return apperr.FromStatus(status, msg, errs...)
	}
	api := humachi.New(r, config)

	// Public routes
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	})

	// Auth redirects
	r.Get("/auth/login", h.Auth.HandleLogin)
	r.Get("/auth/callback", h.Auth.HandleCallback)
	r.Post("/auth/logout", h.Auth.HandleLogout)

	huma.Get(api, "/api/manifest", h.Manifest.HandleGet)
	huma.Get(api, "/api/character/{realm}/{name}/achievements", h.Character.HandleAchievements)
	huma.Get(api, "/api/achievement/{id}", h.Achievement.HandleGet)
	huma.Get(api, "/api/achievement/{id}/help", h.Achievement.HandleHelp)

	// Session routes
	cookieAuth := func(o *huma.Operation) {
		o.Security = []map[string][]string{{"cookieAuth": {}}}
	}
	huma.Get(api, "/api/me", h.Auth.HandleMe, cookieAuth)
	huma.Get(api, "/api/me/characters", h.Character.HandleMyCharacters, cookieAuth)
	huma.Post(api, "/api/me/merge", h.Character.HandleMerge, cookieAuth)

	// Admin routes
	adminAuth := func(o *huma.Operation) {
		o.Security = []map[string][]string{{"adminKey": {}}}
	}
	huma.Get(api, "/api/admin/build-manifest", h.Manifest.HandleBuildStatus, adminAuth)
	huma.Post(api, "/api/admin/build-manifest", h.Manifest.HandleBuildStep, adminAuth)

	return api
}
