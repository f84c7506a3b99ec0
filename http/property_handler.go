package httpapi

import (
    "context"
    "errors"
    "log/slog"
    "net/http"

    "github.com/go-chi/chi/v5"
    "github.com/go-chi/render"
    "github.com/yourorg/guessr-api/internal/ingest"
    "github.com/yourorg/guessr-api/internal/refresh"
    "github.com/yourorg/guessr-api/zillow"
)

// ListingSource produces one validated listing, retrying internally.
type ListingSource interface {
    FetchListing(ctx context.Context) (zillow.Listing, error)
}

type PropertyDeps struct {
    Source ListingSource
    // WriteBehind persists live listings; nil disables it.
    WriteBehind *refresh.Refresher
}

func RegisterPropertyInfo(r chi.Router, d PropertyDeps) {
    // page/attempt query params are cache busters from the client and
    // carry no meaning here.
    r.Get("/api/property_info", func(w http.ResponseWriter, req *http.Request) {
        w.Header().Set("Cache-Control", "no-store")
        listing, err := d.Source.FetchListing(req.Context())
        if err != nil {
            switch {
            case errors.Is(err, zillow.ErrNoCities):
                slog.Error("property_info: configuration error", "error", err)
                writeError(w, req, http.StatusInternalServerError, "config_error", "candidate city list is empty")
            case req.Context().Err() != nil:
                // client went away; nothing useful to send
            default:
                slog.Warn("property_info: no listing", "error", err)
                writeError(w, req, http.StatusBadGateway, "no_listing", "could not load a listing, try again")
            }
            return
        }
        if d.WriteBehind != nil {
            if key := ingest.Key(listing); key != "" {
                d.WriteBehind.Enqueue(refresh.Job{Key: key, Listing: listing})
            }
        }
        render.JSON(w, req, listing)
    })
}
