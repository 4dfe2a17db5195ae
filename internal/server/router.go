// Package server implements the HTTP API boundary and routing logic.
package server

import (
	"net/http"

	"github.com/itaober/memogit/internal/server/handlers"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(mh *handlers.MemoHandler, ah *handlers.AssetHandler, hh *handlers.HealthHandler) http.Handler {
	mux := &http.ServeMux{}

	mux.Handle("GET /api/health", Wrap(hh.Health))

	mux.Handle("GET /api/memos", Wrap(mh.List))
	mux.Handle("GET /api/memos/index", Wrap(mh.Index))
	mux.Handle("POST /api/memos", Wrap(mh.Create))
	mux.Handle("PUT /api/memos/{id}", Wrap(mh.Update))
	mux.Handle("DELETE /api/memos/{id}", Wrap(mh.Delete))

	mux.Handle("POST /api/assets", Wrap(ah.Upload))

	return Logging(RequestCache(mux))
}
