// Package refresh runs write-behind jobs on a small worker pool, at most
// one in flight per key.
package refresh

import (
    "context"
    "sync"
    "sync/atomic"
    "time"

    "github.com/yourorg/guessr-api/zillow"
)

// Job carries either a listing to persist or a detail URL to re-resolve.
type Job struct {
    Key     string
    Listing zillow.Listing
    URL     string
}

type Refresher struct {
    ch      chan Job
    inFly   sync.Map // key -> struct{}
    wg      sync.WaitGroup
    once    sync.Once
    dropped atomic.Int64
    Timeout time.Duration
    Do      func(ctx context.Context, j Job)
}

func New(capacity int, workerCount int, do func(ctx context.Context, j Job)) *Refresher {
    if capacity <= 0 { capacity = 256 }
    if workerCount <= 0 { workerCount = 2 }
    r := &Refresher{ ch: make(chan Job, capacity), Do: do, Timeout: 15 * time.Second }
    r.wg.Add(workerCount)
    for i := 0; i < workerCount; i++ {
        go r.worker()
    }
    return r
}

// Enqueue reports false when the key is already queued or the queue is
// saturated.
func (r *Refresher) Enqueue(j Job) bool {
    if _, exists := r.inFly.LoadOrStore(j.Key, struct{}{}); exists {
        return false
    }
    select {
    case r.ch <- j:
        return true
    default:
        r.inFly.Delete(j.Key)
        r.dropped.Add(1)
        return false
    }
}

func (r *Refresher) Dropped() int64 { return r.dropped.Load() }

// Close stops accepting work and waits for queued jobs to finish.
// Enqueue must not be called after Close.
func (r *Refresher) Close() {
    r.once.Do(func() { close(r.ch) })
    r.wg.Wait()
}

func (r *Refresher) worker() {
    defer r.wg.Done()
    for j := range r.ch {
        ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
        func() {
            defer func() {
                r.inFly.Delete(j.Key)
                cancel()
            }()
            if r.Do != nil { r.Do(ctx, j) }
        }()
    }
}
