package mockapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/izzyreal/nodeagent/internal/protocol"
)

func buildRouter(s *server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthzHandler)

	r.Route("/"+protocol.APIVersion, func(r chi.Router) {
		r.Use(s.requireAgentVersion)
		r.Post("/drivers/"+protocol.LookupDriver+"/vendor_passthru/lookup", s.lookupHandler)
		r.Post("/nodes/{uuid}/vendor_passthru/heartbeat", s.heartbeatHandler)
		r.Get("/nodes", s.listNodesHandler)
	})
	return r
}
