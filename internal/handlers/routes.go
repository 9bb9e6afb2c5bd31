package handlers

import (
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/moolinks/backend/internal/middleware"
)

// RegisterRoutes wires HTTP handlers into the provided router.
func RegisterRoutes(r chi.Router, deps Dependencies) {
	health := HealthHandler{DB: deps.DB}
	authHandler := AuthHandler{
		Users:      deps.Users,
		Sessions:   deps.Sessions,
		Limiter:    deps.AuthLimiter,
		CookieName: deps.CookieName,
	}
	meta := MetadataHandler{Provider: deps.Metadata, Limiter: deps.MetadataLimiter}
	folders := FolderHandler{Folders: deps.Folders}
	links := LinkHandler{Links: deps.Links, Metadata: deps.Metadata, CreateTimeout: deps.CreateTimeout}
	transfer := BookmarkHandler{Folders: deps.Folders, Links: deps.Links, Importer: deps.Importer}

	r.Get("/healthz", health.Handle)

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/login", authHandler.Login)
		r.Post("/signup", authHandler.SignUp)
		r.Post("/refresh", authHandler.Refresh)
		r.Post("/logout", authHandler.Logout)
		r.Post("/password-reset", authHandler.RequestPasswordReset)
		r.With(middleware.Authenticate(deps.Authenticator, deps.CookieName)).Get("/me", authHandler.Me)
	})

	r.Get("/api/metadata", meta.Get)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(deps.Authenticator, deps.CookieName))

		r.Get("/api/folders", folders.List)
		r.Post("/api/folders", folders.Create)
		r.Patch("/api/folders/{id}", folders.Update)
		r.Delete("/api/folders/{id}", folders.Delete)

		r.Get("/api/links", links.List)
		r.Post("/api/links", links.Create)
		r.Post("/api/links/move", links.Move)
		r.Post("/api/links/reorder", links.Reorder)
		r.Patch("/api/links/{id}", links.Update)
		r.Delete("/api/links/{id}", links.Delete)

		r.Get("/api/export", transfer.Export)
		r.Post("/api/import", transfer.Import)
	})
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users         UserStore
	Sessions      SessionManager
	Authenticator middleware.Authenticator
	Folders       FolderStore
	Links         LinkStore
	Metadata      MetadataProvider
	Importer      BookmarkImporter
	DB            Pinger

	AuthLimiter     RateLimiter
	MetadataLimiter RateLimiter

	CookieName    string
	CreateTimeout time.Duration
}
