// internal/app/features/stats/routes.go
package statsfeature

import (
	"github.com/dalemusser/stratasocial/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes returns the router for the stats feature.
// Access requires a signed-in identity.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Get("/identities", h.ServeIdentities)

	return r
}
