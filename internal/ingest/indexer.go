package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/yourorg/guessr-api/internal/events"
)

// RecentIndex is where stored listing ids are recorded for sampling.
type RecentIndex interface {
	AddRecent(ctx context.Context, id string, at time.Time) error
}

// Indexer consumes listing.stored events and records each id in the
// recent index.
type Indexer struct {
	Pub    events.Publisher
	Index  RecentIndex
	Logger *slog.Logger
}

func (i *Indexer) Run(ctx context.Context) {
	log := i.Logger
	if log == nil {
		log = slog.Default()
	}
	sub := i.Pub.SubscribeListingStored()
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-sub:
			if err := i.Index.AddRecent(ctx, evt.ListingID, evt.StoredAt); err != nil {
				log.Warn("indexer: recent add failed", "listing_id", evt.ListingID, "error", err)
				continue
			}
			log.Debug("indexer: listing.stored", "listing_id", evt.ListingID, "property_key", evt.PropertyKey)
		}
	}
}
