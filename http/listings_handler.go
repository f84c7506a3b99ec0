package httpapi

import (
    "context"
    "errors"
    "log/slog"
    "net/http"

    "github.com/go-chi/chi/v5"
    "github.com/go-chi/render"
    "github.com/google/uuid"
    "github.com/yourorg/guessr-api/internal/store"
    "github.com/yourorg/guessr-api/zillow"
)

type ListingReader interface {
    GetListing(ctx context.Context, id string) (store.Row, error)
    SampleListing(ctx context.Context) (store.Row, error)
}

type RecentSampler interface {
    RandomRecent(ctx context.Context) (string, bool, error)
    RemoveRecent(ctx context.Context, id string) error
}

type ListingsDeps struct {
    Store    ListingReader
    Recent   RecentSampler
    MaxPrice int
}

func RegisterListings(r chi.Router, d ListingsDeps) {
    r.Get("/api/listings/sample", func(w http.ResponseWriter, req *http.Request) {
        if d.Store == nil {
            writeError(w, req, http.StatusServiceUnavailable, "store_disabled", "")
            return
        }
        row, err := sampleRow(req.Context(), d)
        if errors.Is(err, store.ErrNotFound) {
            writeError(w, req, http.StatusNotFound, "no_listings", "the listing store is empty")
            return
        }
        if err != nil {
            slog.Warn("sample listing failed", "error", err)
            writeError(w, req, http.StatusInternalServerError, "store_error", "")
            return
        }
        respondRow(w, req, d, row)
    })

    r.Get("/api/listings/{listingID}", func(w http.ResponseWriter, req *http.Request) {
        if d.Store == nil {
            writeError(w, req, http.StatusServiceUnavailable, "store_disabled", "")
            return
        }
        id, err := uuid.Parse(chi.URLParam(req, "listingID"))
        if err != nil {
            writeError(w, req, http.StatusBadRequest, "invalid_id", "")
            return
        }
        row, err := d.Store.GetListing(req.Context(), id.String())
        if errors.Is(err, store.ErrNotFound) {
            writeError(w, req, http.StatusNotFound, "not_found", "")
            return
        }
        if err != nil {
            slog.Warn("get listing failed", "id", id, "error", err)
            writeError(w, req, http.StatusInternalServerError, "store_error", "")
            return
        }
        respondRow(w, req, d, row)
    })
}

// sampleRow prefers the recent index; stale ids are pruned and the
// database picks a random row instead.
func sampleRow(ctx context.Context, d ListingsDeps) (store.Row, error) {
    if d.Recent != nil {
        id, ok, err := d.Recent.RandomRecent(ctx)
        if err != nil {
            slog.Warn("recent sample failed, using database", "error", err)
        } else if ok {
            row, err := d.Store.GetListing(ctx, id)
            if err == nil { return row, nil }
            if errors.Is(err, store.ErrNotFound) {
                _ = d.Recent.RemoveRecent(ctx, id)
            } else {
                slog.Warn("recent listing lookup failed", "id", id, "error", err)
            }
        }
    }
    return d.Store.SampleListing(ctx)
}

func respondRow(w http.ResponseWriter, req *http.Request, d ListingsDeps, row store.Row) {
    maxPrice := d.MaxPrice
    if maxPrice <= 0 { maxPrice = zillow.DefaultMaxPrice }
    listing, ok := zillow.Restore(zillow.Fields{
        ID:        row.ID,
        PhotoURLs: row.Photos,
        Price:     row.Price,
        Beds:      row.Beds,
        Baths:     row.Baths,
        Sqft:      row.Sqft,
        Street:    row.Address1,
        City:      row.City,
        State:     row.State,
        Zip:       row.Zip,
        DetailURL: row.DetailURL.String,
    }, maxPrice)
    if !ok {
        slog.Warn("stored listing failed validation", "id", row.ID)
        writeError(w, req, http.StatusUnprocessableEntity, "invalid_listing", "")
        return
    }
    render.JSON(w, req, listing)
}
