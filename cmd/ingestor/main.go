package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yourorg/guessr-api/internal/app"
	"github.com/yourorg/guessr-api/internal/env"
	"github.com/yourorg/guessr-api/internal/events"
	"github.com/yourorg/guessr-api/internal/ingest"
	"github.com/yourorg/guessr-api/internal/logger"
)

func main() {
	env.Load()
	lg := logger.New(env.Get("LOG_LEVEL", "info"))
	slog.SetDefault(lg)

	cfg := app.FromEnv()
	cfg.PostgresDSN = env.Must("PG_DSN")

	cityList, err := app.LoadCities(cfg.CitiesPath, lg)
	if err != nil {
		log.Fatalf("load cities: %v", err)
	}
	if len(cityList) == 0 {
		log.Fatal("CITIES_PATH must list at least one city")
	}

	perRun := env.GetInt("INGEST_PER_RUN", 10)
	interval := env.GetDuration("INGEST_INTERVAL", 30*time.Minute)
	pause := env.GetDuration("INGEST_PAUSE", 2*time.Second)
	requestTimeout := env.GetDuration("INGEST_REQUEST_TIMEOUT", 2*time.Minute)
	runOnce := env.GetBool("INGEST_RUN_ONCE", false)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := app.OpenStore(rootCtx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("postgres open error: %v", err)
	}
	defer st.Close()

	rc, err := app.OpenRedis(rootCtx, cfg)
	if err != nil {
		log.Fatalf("redis connect error: %v", err)
	}

	pub := events.NewInMemory(256)
	if rc != nil {
		defer rc.Close()
		go (&ingest.Indexer{Pub: pub, Index: rc, Logger: lg}).Run(rootCtx)
	}

	sc := app.NewScraper(cfg, cityList, rc, lg)
	job := &ingest.Job{
		Source: sc.Scraper,
		Writer: &ingest.Writer{Store: st, Pub: pub},
		Logger: lg,
		Config: ingest.JobConfig{
			PerRun:               perRun,
			Interval:             interval,
			PauseBetweenRequests: pause,
			RequestTimeout:       requestTimeout,
		},
	}

	if runOnce {
		n, err := job.RunOnce(rootCtx)
		log.Printf("[INFO] ingest run stored %d listings", n)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("ingest run failed: %v", err)
		}
		return
	}

	if err := job.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("ingest job stopped with error: %v", err)
	}
}
