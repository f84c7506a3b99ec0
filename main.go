package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	httpapi "github.com/yourorg/guessr-api/http"
	httpv1 "github.com/yourorg/guessr-api/http/v1"
	"github.com/yourorg/guessr-api/internal/app"
	"github.com/yourorg/guessr-api/internal/env"
	"github.com/yourorg/guessr-api/internal/events"
	"github.com/yourorg/guessr-api/internal/ingest"
	"github.com/yourorg/guessr-api/internal/logger"
	"github.com/yourorg/guessr-api/internal/refresh"
	"github.com/yourorg/guessr-api/zillow"
)

func main() {
	env.Load()
	lg := logger.New(env.Get("LOG_LEVEL", "info"))
	slog.SetDefault(lg)

	port := env.GetInt("PORT", 4002)
	cfg := app.FromEnv()

	cityList, err := app.LoadCities(cfg.CitiesPath, lg)
	if err != nil {
		log.Fatalf("load cities: %v", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rc, err := app.OpenRedis(rootCtx, cfg)
	if err != nil {
		log.Fatalf("redis connect error: %v", err)
	}
	st, err := app.OpenStore(rootCtx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("postgres open error: %v", err)
	}

	sc := app.NewScraper(cfg, cityList, rc, lg)
	deps := RouterDeps{
		Property:          httpapi.PropertyDeps{Source: sc.Scraper},
		Images:            httpapi.ImageDeps{Images: sc.Client},
		Listings:          httpapi.ListingsDeps{MaxPrice: cfg.MaxPrice},
		RequestsPerMinute: env.GetInt("RATE_LIMIT_PER_MINUTE", 60),
	}

	var wb *refresh.Refresher
	if st != nil {
		defer st.Close()
		pub := events.NewInMemory(256)
		writer := &ingest.Writer{Store: st, Pub: pub}
		wb = refresh.New(256, 2, func(ctx context.Context, j refresh.Job) {
			if _, err := writer.Write(ctx, j.Listing); err != nil {
				lg.Warn("write-behind failed", "key", j.Key, "error", err)
			}
		})
		deps.Property.WriteBehind = wb
		deps.Listings.Store = st
		if rc != nil {
			deps.Listings.Recent = rc
			go (&ingest.Indexer{Pub: pub, Index: rc, Logger: lg}).Run(rootCtx)
		}
	}
	var resolveRefresh *refresh.Refresher
	if rc != nil {
		defer rc.Close()
		resolveDeps := httpv1.ResolveDeps{
			Cache:       rc,
			Pages:       sc.Client,
			Extractor:   zillow.Extractor{MaxPrice: cfg.MaxPrice},
			BaseURL:     cfg.BaseURL,
			WriteBehind: wb,
			CacheTTL:    env.GetDuration("RESOLVE_CACHE_TTL", 6*time.Hour),
			StaleAfter:  env.GetDuration("RESOLVE_STALE_AFTER", 15*time.Minute),
			NegativeTTL: env.GetDuration("RESOLVE_NEGATIVE_TTL", 10*time.Minute),
		}
		refetch := resolveDeps
		resolveRefresh = refresh.New(64, 1, func(ctx context.Context, j refresh.Job) {
			if err := refetch.Refetch(ctx, j.URL); err != nil {
				lg.Warn("resolve refresh failed", "url", j.URL, "error", err)
			}
		})
		resolveDeps.Refresh = resolveRefresh
		deps.Resolve = resolveDeps
	}

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           BuildRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-rootCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[INFO] guessr-api listening on %s (cities=%d store=%t redis=%t)", srv.Addr, len(cityList), st != nil, rc != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	if resolveRefresh != nil {
		resolveRefresh.Close()
	}
	if wb != nil {
		wb.Close()
	}
}
