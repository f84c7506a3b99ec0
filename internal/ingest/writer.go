package ingest

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/yourorg/guessr-api/internal/canon"
	"github.com/yourorg/guessr-api/internal/events"
	"github.com/yourorg/guessr-api/internal/store"
	"github.com/yourorg/guessr-api/zillow"
)

// ListingStore is the slice of *store.Store the writer needs.
type ListingStore interface {
	UpsertListing(ctx context.Context, in store.Row) (string, error)
}

// Writer persists validated listings and announces them.
type Writer struct {
	Store ListingStore
	Pub   events.Publisher
	Now   func() time.Time
}

func (w *Writer) Enabled() bool { return w != nil && w.Store != nil }

// Write stores l under its canonical property key and returns the
// listing id.
func (w *Writer) Write(ctx context.Context, l zillow.Listing) (string, error) {
	if !w.Enabled() {
		return "", errors.New("ingest: writer has no store")
	}
	addr := canon.Canonicalize(l.StreetAddress(), l.City(), l.State(), l.Zip())
	key := addr.Key()
	if key == "" {
		return "", errors.New("ingest: empty property key")
	}
	id, err := w.Store.UpsertListing(ctx, store.Row{
		PropertyKey: key,
		DetailURL:   sqlNullString(l.DetailURL()),
		Price:       l.Price(),
		Beds:        l.Beds(),
		Baths:       l.Baths(),
		Sqft:        l.SquareFootage(),
		Address1:    l.StreetAddress(),
		City:        l.City(),
		State:       l.State(),
		Zip:         l.Zip(),
		Photos:      l.PhotoURLs(),
	})
	if err != nil {
		return "", err
	}
	if w.Pub != nil {
		w.Pub.PublishListingStored(ctx, events.ListingStored{
			ListingID:   id,
			PropertyKey: key,
			Price:       l.Price(),
			StoredAt:    w.now(),
		})
	}
	return id, nil
}

// Key is the dedup key used for write-behind jobs.
func Key(l zillow.Listing) string {
	return canon.Canonicalize(l.StreetAddress(), l.City(), l.State(), l.Zip()).Key()
}

func (w *Writer) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func sqlNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
