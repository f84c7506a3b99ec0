package events

import (
    "context"
    "time"
)

type ListingStored struct {
    ListingID   string
    PropertyKey string
    Price       int
    StoredAt    time.Time
}

type Publisher interface {
    PublishListingStored(ctx context.Context, evt ListingStored)
    SubscribeListingStored() <-chan ListingStored
}

type inMemory struct { ch chan ListingStored }

// NewInMemory returns a single-consumer publisher. Publishing never
// blocks; events are dropped when the buffer is full.
func NewInMemory(buffer int) Publisher {
    if buffer <= 0 { buffer = 256 }
    return &inMemory{ ch: make(chan ListingStored, buffer) }
}

func (m *inMemory) PublishListingStored(_ context.Context, evt ListingStored) {
    select { case m.ch <- evt: default: }
}

func (m *inMemory) SubscribeListingStored() <-chan ListingStored { return m.ch }
