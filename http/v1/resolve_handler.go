package v1

import (
    "context"
    "crypto/sha1"
    "encoding/hex"
    "encoding/json"
    "errors"
    "log/slog"
    "net/http"
    "strings"
    "time"

    "github.com/go-chi/chi/v5"
    "github.com/go-chi/render"
    "github.com/yourorg/guessr-api/internal/ingest"
    "github.com/yourorg/guessr-api/internal/refresh"
    "github.com/yourorg/guessr-api/zillow"
)

// Cache is the slice of redisx the resolver needs.
type Cache interface {
    Get(ctx context.Context, key string) (string, bool, error)
    Set(ctx context.Context, key string, val string, ttl time.Duration) error
    Del(ctx context.Context, key string) error
    Exists(ctx context.Context, key string) (bool, error)
    SetNX(ctx context.Context, key string, val string, ttl time.Duration) (bool, error)
}

type ResolveDeps struct {
    Cache     Cache
    Pages     zillow.Fetcher
    Extractor zillow.Extractor
    BaseURL   string
    // WriteBehind persists fresh results; nil disables it.
    WriteBehind *refresh.Refresher
    // Refresh re-resolves stale cache entries in the background; its
    // worker should call Refetch. nil serves stale entries until TTL.
    Refresh *refresh.Refresher
    // TTL and staleness tuning
    CacheTTL    time.Duration
    StaleAfter  time.Duration
    NegativeTTL time.Duration
    LockTTL     time.Duration
    Now         func() time.Time
}

type ResolveRequest struct {
    URL string `json:"url"`
}

type cachedEnvelope struct {
    Data json.RawMessage `json:"data"`
    Meta struct {
        LastFetch  time.Time `json:"last_fetch_at"`
        StaleAfter time.Time `json:"stale_after"`
        TTLSeconds int       `json:"ttl_seconds"`
    } `json:"meta"`
}

func RegisterResolve(r chi.Router, d ResolveDeps) {
    r.Route("/v1/listings", func(r chi.Router) {
        r.Post("/resolve", func(w http.ResponseWriter, req *http.Request) {
            var body ResolveRequest
            if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
                writeError(w, req, http.StatusBadRequest, map[string]any{"error": "invalid_json", "detail": err.Error()})
                return
            }
            resolve(w, req, d, body)
        })
        r.Get("/resolve", func(w http.ResponseWriter, req *http.Request) {
            resolve(w, req, d, ResolveRequest{URL: req.URL.Query().Get("url")})
        })
    })
}

func resolve(w http.ResponseWriter, req *http.Request, d ResolveDeps, body ResolveRequest) {
    target := strings.TrimSpace(body.URL)
    if !isDetailURL(d.baseURL(), target) {
        writeError(w, req, http.StatusBadRequest, map[string]any{"error": "invalid_url", "detail": "url must be a listing detail page"})
        return
    }
    ctx := req.Context()
    key := urlKey(target)
    missKey := "listing:miss:" + key
    cacheKey := "listing:url:" + key
    lockKey := "listing:lock:" + key

    if ok, _ := d.Cache.Exists(ctx, missKey); ok {
        writeError(w, req, http.StatusNotFound, map[string]any{"error": "not_found", "url": target, "cache_miss_cooldown": true})
        return
    }

    if val, ok, err := d.Cache.Get(ctx, cacheKey); err == nil && ok {
        var env cachedEnvelope
        if err := json.Unmarshal([]byte(val), &env); err == nil {
            stale := d.now().After(env.Meta.StaleAfter)
            if stale && d.Refresh != nil {
                d.Refresh.Enqueue(refresh.Job{Key: "resolve:" + key, URL: target})
            }
            render.JSON(w, req, map[string]any{
                "ok":     true,
                "source": "cache",
                "stale":  stale,
                "url":    target,
                "data":   env.Data,
            })
            return
        }
    }

    // Cache miss: take a short lock so concurrent callers don't all hit upstream.
    ok, err := d.Cache.SetNX(ctx, lockKey, "1", maxDur(d.LockTTL, 15*time.Second))
    if err != nil {
        slog.Warn("resolve: lock failed", "url", target, "error", err)
    } else if !ok {
        writeError(w, req, http.StatusAccepted, map[string]any{"ok": false, "in_progress": true, "url": target})
        return
    }
    if ok {
        defer func() { _ = d.Cache.Del(context.WithoutCancel(ctx), lockKey) }()
    }

    data, err := d.fetchAndCache(ctx, target)
    switch {
    case errors.Is(err, errNoListing):
        _ = d.Cache.Set(ctx, missKey, "1", maxDur(d.NegativeTTL, 10*time.Minute))
        writeError(w, req, http.StatusNotFound, map[string]any{"error": "not_found", "url": target})
        return
    case err != nil:
        slog.Warn("resolve: fetch failed", "url", target, "error", err)
        writeError(w, req, http.StatusBadGateway, map[string]any{"error": "upstream_error", "url": target})
        return
    }

    render.JSON(w, req, map[string]any{
        "ok":     true,
        "source": "fresh",
        "stale":  false,
        "url":    target,
        "data":   json.RawMessage(data),
    })
}

var errNoListing = errors.New("resolve: page did not yield a listing")

// Refetch re-resolves a detail URL and overwrites its cache entry. A
// failed refetch leaves the stale entry in place.
func (d ResolveDeps) Refetch(ctx context.Context, target string) error {
    lockKey := "listing:lock:" + urlKey(target)
    ok, err := d.Cache.SetNX(ctx, lockKey, "1", maxDur(d.LockTTL, 15*time.Second))
    if err != nil {
        return err
    }
    if !ok {
        return nil
    }
    defer func() { _ = d.Cache.Del(context.WithoutCancel(ctx), lockKey) }()
    _, err = d.fetchAndCache(ctx, target)
    return err
}

// fetchAndCache fetches and extracts target, stores the envelope and
// queues write-behind. It returns the listing JSON.
func (d ResolveDeps) fetchAndCache(ctx context.Context, target string) ([]byte, error) {
    html, err := d.Pages.Fetch(ctx, target)
    if err != nil {
        return nil, err
    }
    listing, found := d.Extractor.Extract(html)
    if !found {
        return nil, errNoListing
    }
    listing = listing.WithDetailURL(target)
    data, err := json.Marshal(listing)
    if err != nil {
        return nil, err
    }

    env := cachedEnvelope{Data: data}
    env.Meta.LastFetch = d.now()
    env.Meta.StaleAfter = env.Meta.LastFetch.Add(maxDur(d.StaleAfter, 15*time.Minute))
    env.Meta.TTLSeconds = int(maxDur(d.CacheTTL, 6*time.Hour).Seconds())
    if b, err := json.Marshal(env); err == nil {
        _ = d.Cache.Set(ctx, "listing:url:"+urlKey(target), string(b), time.Duration(env.Meta.TTLSeconds)*time.Second)
    }

    if d.WriteBehind != nil {
        if pk := ingest.Key(listing); pk != "" {
            d.WriteBehind.Enqueue(refresh.Job{Key: pk, Listing: listing})
        }
    }
    return data, nil
}

func isDetailURL(base, u string) bool {
    return strings.HasPrefix(u, base+"/homedetails/") && len(u) > len(base)+len("/homedetails/")
}

func urlKey(u string) string {
    sum := sha1.Sum([]byte(u))
    return hex.EncodeToString(sum[:])
}

func writeError(w http.ResponseWriter, req *http.Request, status int, body map[string]any) {
    render.Status(req, status)
    render.JSON(w, req, body)
}

func (d ResolveDeps) baseURL() string {
    if d.BaseURL == "" { return zillow.DefaultBaseURL }
    return strings.TrimRight(d.BaseURL, "/")
}

func (d ResolveDeps) now() time.Time {
    if d.Now != nil { return d.Now() }
    return time.Now()
}

func maxDur(a, b time.Duration) time.Duration { if a > 0 { return a }; return b }
