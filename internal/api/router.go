package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/evolve/internal/authgate"
	"github.com/starford/evolve/internal/dashboard"
	"github.com/starford/evolve/internal/storage"
	"github.com/starford/evolve/internal/store"
)

// Deps are the services the HTTP routes are built on. Clients and Images
// are optional; their routes are skipped when nil.
type Deps struct {
	Dashboard    *dashboard.Service
	Sessions     *authgate.Sessions
	PasswordHash string
	SecureCookie bool
	Clients      store.ClientStore
	Images       *storage.FS
	// Events, if non-nil, is mounted at GET /api/events behind the session check.
	Events http.Handler
}

// NewRouter creates the dashboard API router, meant to be mounted at /api.
func NewRouter(h *Handler, sessions *authgate.Sessions, events http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	r.Get("/session", h.Session)

	r.Group(func(r chi.Router) {
		r.Use(SessionMiddleware(sessions))

		r.Get("/clients", h.ListClients)
		r.Post("/clients/sort", h.SortClients)
		r.Post("/clients/reload", h.ReloadClients)
		r.Get("/avatars/{index}", h.Avatar)

		if events != nil {
			r.Get("/events", events.ServeHTTP)
		}
	})

	return r
}

// Mount registers every application route on r: the record source, the
// encrypted image directory, the object store and the dashboard API.
func Mount(r chi.Router, d Deps) {
	h := NewHandler(d.Dashboard, d.Sessions, d.PasswordHash, d.SecureCookie)

	if d.Clients != nil {
		rh := NewRecordHandler(d.Clients)
		r.Get("/clients", rh.ListClients)
		r.Get("/client/{id}", rh.GetClient)
		r.Get("/client", rh.FindClients)
	}

	if d.Images != nil {
		r.Get("/images/{file}", NewImageHandler(d.Images).ServeFile)
	}

	r.With(SessionMiddleware(d.Sessions)).Get("/objects/{id}", h.Object)

	r.Mount("/api", NewRouter(h, d.Sessions, d.Events))
}
