package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/genrelay/internal/api"
	apiMiddleware "github.com/phrazzld/genrelay/internal/api/middleware"
)

// setupRouter creates the router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	return newRouter(routerDeps{
		generations: api.NewGenerationHandler(app.generations, app.logger),
		credentials: api.NewCredentialHandler(app.credentialService, app.logger),
		adminAuth:   apiMiddleware.NewAdminAuth(app.tokens),
		mediaDir:    app.config.Enhance.PublicDir,
		logger:      app.logger,
	})
}

type routerDeps struct {
	generations *api.GenerationHandler
	credentials *api.CredentialHandler
	adminAuth   *apiMiddleware.AdminAuth
	mediaDir    string
	logger      *slog.Logger
}

func newRouter(deps routerDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware(deps.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/generations", deps.generations.CreateGeneration)
		r.Get("/generations/{id}", deps.generations.GetGeneration)

		r.Route("/admin/credentials", func(r chi.Router) {
			r.Use(deps.adminAuth.Authenticate)
			r.Get("/", deps.credentials.ListCredentials)
			r.Post("/", deps.credentials.CreateCredential)
			r.Post("/refresh", deps.credentials.RefreshCredentials)
			r.Get("/{id}", deps.credentials.GetCredential)
			r.Patch("/{id}", deps.credentials.UpdateCredential)
			r.Delete("/{id}", deps.credentials.DeleteCredential)
		})
	})

	// Published enhancement artifacts
	if deps.mediaDir != "" {
		r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(deps.mediaDir))))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			deps.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
