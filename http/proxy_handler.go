package httpapi

import (
    "context"
    "errors"
    "net/http"
    "strconv"

    "github.com/go-chi/chi/v5"
    "github.com/yourorg/guessr-api/zillow"
)

type ImageFetcher interface {
    FetchImage(ctx context.Context, rawURL string) (zillow.Image, error)
}

type ImageDeps struct {
    Images ImageFetcher
}

// RegisterImageProxy serves listing photos from our origin so browsers
// never hit the photo CDN directly.
func RegisterImageProxy(r chi.Router, d ImageDeps) {
    r.Get("/api/proxy-image", func(w http.ResponseWriter, req *http.Request) {
        target := req.URL.Query().Get("url")
        if target == "" {
            writeError(w, req, http.StatusBadRequest, "url_required", "")
            return
        }
        img, err := d.Images.FetchImage(req.Context(), target)
        if errors.Is(err, zillow.ErrForeignHost) {
            writeError(w, req, http.StatusBadRequest, "forbidden_host", "")
            return
        }
        if err != nil {
            writeError(w, req, http.StatusBadGateway, "upstream_error", "")
            return
        }
        w.Header().Set("Content-Type", img.ContentType)
        w.Header().Set("Content-Length", strconv.Itoa(len(img.Body)))
        w.Header().Set("Cache-Control", "public, max-age=86400")
        _, _ = w.Write(img.Body)
    })
}
