package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-chi/render"
	httpapi "github.com/yourorg/guessr-api/http"
	httpv1 "github.com/yourorg/guessr-api/http/v1"
	"github.com/yourorg/guessr-api/internal/logger"
)

type RouterDeps struct {
	Property httpapi.PropertyDeps
	Listings httpapi.ListingsDeps
	Images   httpapi.ImageDeps
	// Resolve is registered only when a cache is configured.
	Resolve httpv1.ResolveDeps
	// RequestsPerMinute is the per-IP limit; each listing request can
	// cost dozens of upstream fetches.
	RequestsPerMinute int
}

// BuildRouter returns the API handler. The request id is assigned
// outside the access log so every logged line carries it.
func BuildRouter(deps RouterDeps) http.Handler {
	limit := deps.RequestsPerMinute
	if limit <= 0 {
		limit = 60
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httprate.LimitByIP(limit, 1*time.Minute))
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"ok":true}`)) })

	httpapi.RegisterPropertyInfo(r, deps.Property)
	httpapi.RegisterListings(r, deps.Listings)
	httpapi.RegisterImageProxy(r, deps.Images)

	if deps.Resolve.Cache != nil {
		httpv1.RegisterResolve(r, deps.Resolve)
	}
	return middleware.RequestID(logger.Middleware(r))
}
