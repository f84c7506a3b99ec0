package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yourorg/guessr-api/zillow"
)

// ListingSource yields one validated listing per call.
type ListingSource interface {
	FetchListing(ctx context.Context) (zillow.Listing, error)
}

type JobConfig struct {
	// PerRun is how many listings one run tries to store.
	PerRun               int
	Interval             time.Duration
	PauseBetweenRequests time.Duration
	RequestTimeout       time.Duration
}

// Job fills the listing store in the background so the sample endpoint
// can answer without touching the upstream site.
type Job struct {
	Source ListingSource
	Writer *Writer
	Logger *slog.Logger
	Config JobConfig
}

func (j *Job) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *Job) validate() error {
	if j == nil {
		return errors.New("nil ingest job")
	}
	if j.Source == nil {
		return errors.New("ingest job missing listing source")
	}
	if !j.Writer.Enabled() {
		return errors.New("ingest job requires a writer with a store")
	}
	return nil
}

func (j *Job) Run(ctx context.Context) error {
	if err := j.validate(); err != nil {
		return err
	}
	interval := j.Config.Interval
	if interval <= 0 {
		_, err := j.RunOnce(ctx)
		return err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	j.logger().Info("ingest job starting", "interval", interval, "per_run", j.perRun())
	if _, err := j.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		j.logger().Warn("ingest job initial run error", "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			j.logger().Info("ingest job stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				j.logger().Warn("ingest job iteration error", "error", err)
			}
		}
	}
}

// RunOnce stores up to PerRun listings and returns how many were stored.
// Per-listing failures are joined; a configuration error stops the run.
func (j *Job) RunOnce(ctx context.Context) (int, error) {
	if err := j.validate(); err != nil {
		return 0, err
	}
	timeout := j.Config.RequestTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	var joined error
	stored := 0
	for i := 0; i < j.perRun(); i++ {
		if ctx.Err() != nil {
			return stored, ctx.Err()
		}
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		l, err := j.Source.FetchListing(reqCtx)
		cancel()
		if err != nil {
			if errors.Is(err, zillow.ErrNoCities) {
				return stored, err
			}
			if ctx.Err() != nil {
				return stored, ctx.Err()
			}
			joined = errors.Join(joined, fmt.Errorf("listing %d fetch: %w", i+1, err))
		} else if id, err := j.Writer.Write(ctx, l); err != nil {
			joined = errors.Join(joined, fmt.Errorf("listing %d write: %w", i+1, err))
		} else {
			stored++
			j.logger().Debug("ingest stored listing", "id", id, "detail_url", l.DetailURL())
		}
		if pause := j.Config.PauseBetweenRequests; pause > 0 && i+1 < j.perRun() {
			select {
			case <-ctx.Done():
				return stored, ctx.Err()
			case <-time.After(pause):
			}
		}
	}
	if stored > 0 {
		j.logger().Info("ingest run persisted listings", "count", stored)
	}
	return stored, joined
}

func (j *Job) perRun() int {
	if j.Config.PerRun > 0 {
		return j.Config.PerRun
	}
	return 10
}
