package httpapi

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "net/http/httptest"
    "sync"
    "testing"
    "time"

    "github.com/go-chi/chi/v5"
    "github.com/go-chi/render"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "github.com/yourorg/guessr-api/internal/refresh"
    "github.com/yourorg/guessr-api/internal/retry"
    "github.com/yourorg/guessr-api/internal/store"
    "github.com/yourorg/guessr-api/zillow"
)

func photos(n int) []string {
    out := make([]string, 0, n)
    for i := 1; i <= n; i++ {
        out = append(out, fmt.Sprintf("https://photos.zillowstatic.com/fp/p%d-cc_ft_960.jpg", i))
    }
    return out
}

func melody(t *testing.T) zillow.Listing {
    t.Helper()
    l, ok := zillow.Restore(zillow.Fields{
        PhotoURLs: photos(4),
        Price:     375000,
        Beds:      "4",
        Baths:     "2",
        Sqft:      "2,139",
        Street:    "4933 W Melody Ln",
        City:      "Laveen",
        State:     "AZ",
        Zip:       "85339",
        DetailURL: "https://www.zillow.com/homedetails/4933-W-Melody-Ln/123_zpid/",
    }, 0)
    require.True(t, ok)
    return l
}

func newRouter() chi.Router {
    r := chi.NewRouter()
    r.Use(render.SetContentType(render.ContentTypeJSON))
    return r
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
    t.Helper()
    var out map[string]any
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
    return out
}

type sourceFunc func(ctx context.Context) (zillow.Listing, error)

func (f sourceFunc) FetchListing(ctx context.Context) (zillow.Listing, error) { return f(ctx) }

func TestPropertyInfoReturnsListing(t *testing.T) {
    l := melody(t)
    var mu sync.Mutex
    var stored []string
    wb := refresh.New(4, 1, func(_ context.Context, j refresh.Job) {
        mu.Lock()
        stored = append(stored, j.Key)
        mu.Unlock()
    })

    r := newRouter()
    RegisterPropertyInfo(r, PropertyDeps{
        Source:      sourceFunc(func(context.Context) (zillow.Listing, error) { return l, nil }),
        WriteBehind: wb,
    })
    rec := httptest.NewRecorder()
    r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/property_info?page=1&attempt=0", nil))
    wb.Close()

    require.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
    body := decode(t, rec)
    assert.EqualValues(t, 375000, body["value"])
    assert.Equal(t, "4", body["beds"])
    assert.Equal(t, "2", body["baths"])
    assert.Equal(t, "2,139", body["square_footage"])
    assert.Equal(t, "4933 W Melody Ln", body["address"])
    assert.Equal(t, "Laveen, AZ 85339", body["city_state_zipcode"])
    assert.Len(t, body["urls"], 4)
    assert.Equal(t, l.DetailURL(), body["detailUrl"])

    mu.Lock()
    defer mu.Unlock()
    assert.Equal(t, []string{"4933 w melody ln|laveen|az|85339"}, stored)
}

func TestPropertyInfoExhaustedIs502(t *testing.T) {
    r := newRouter()
    RegisterPropertyInfo(r, PropertyDeps{
        Source: sourceFunc(func(context.Context) (zillow.Listing, error) {
            return zillow.Listing{}, fmt.Errorf("%w after 20 attempts: %w", retry.ErrExhausted, zillow.ErrNoRecord)
        }),
    })
    rec := httptest.NewRecorder()
    r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/property_info", nil))

    assert.Equal(t, http.StatusBadGateway, rec.Code)
    assert.Equal(t, "no_listing", decode(t, rec)["error"])
}

func TestPropertyInfoConfigErrorIs500(t *testing.T) {
    r := newRouter()
    RegisterPropertyInfo(r, PropertyDeps{
        Source: sourceFunc(func(context.Context) (zillow.Listing, error) { return zillow.Listing{}, zillow.ErrNoCities }),
    })
    rec := httptest.NewRecorder()
    r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/property_info", nil))

    assert.Equal(t, http.StatusInternalServerError, rec.Code)
    assert.Equal(t, "config_error", decode(t, rec)["error"])
}

type fakeReader struct {
    rows    map[string]store.Row
    sampled int
}

func (f *fakeReader) GetListing(_ context.Context, id string) (store.Row, error) {
    row, ok := f.rows[id]
    if !ok { return store.Row{}, store.ErrNotFound }
    return row, nil
}

func (f *fakeReader) SampleListing(context.Context) (store.Row, error) {
    f.sampled++
    for _, row := range f.rows {
        return row, nil
    }
    return store.Row{}, store.ErrNotFound
}

type fakeRecent struct {
    id      string
    err     error
    removed []string
}

func (f *fakeRecent) RandomRecent(context.Context) (string, bool, error) {
    return f.id, f.id != "", f.err
}

func (f *fakeRecent) RemoveRecent(_ context.Context, id string) error {
    f.removed = append(f.removed, id)
    return nil
}

const storedID = "7d9f6a3e-2b1c-4e8f-9a0d-5c6b7e8f9a01"

func storedRow() store.Row {
    return store.Row{
        ID:          storedID,
        PropertyKey: "4933 w melody ln|laveen|az|85339",
        DetailURL:   sql.NullString{String: "https://www.zillow.com/homedetails/x/1_zpid/", Valid: true},
        Price:       375000,
        Beds:        "4",
        Baths:       "2",
        Sqft:        "2,139",
        Address1:    "4933 W MELODY LN",
        City:        "LAVEEN",
        State:       "AZ",
        Zip:         "85339",
        Photos:      photos(3),
        LastFetchAt: time.Now(),
    }
}

func TestListingByID(t *testing.T) {
    r := newRouter()
    RegisterListings(r, ListingsDeps{Store: &fakeReader{rows: map[string]store.Row{storedID: storedRow()}}})

    rec := httptest.NewRecorder()
    r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/listings/"+storedID, nil))
    require.Equal(t, http.StatusOK, rec.Code)
    body := decode(t, rec)
    assert.Equal(t, storedID, body["id"])
    assert.Equal(t, "LAVEEN, AZ 85339", body["city_state_zipcode"])

    rec = httptest.NewRecorder()
    r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/listings/not-a-uuid", nil))
    assert.Equal(t, http.StatusBadRequest, rec.Code)

    rec = httptest.NewRecorder()
    r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/listings/00000000-0000-4000-8000-000000000000", nil))
    assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStoredRowFailingValidationIsRejected(t *testing.T) {
    row := storedRow()
    row.Photos = photos(2)
    r := newRouter()
    RegisterListings(r, ListingsDeps{Store: &fakeReader{rows: map[string]store.Row{storedID: row}}})

    rec := httptest.NewRecorder()
    r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/listings/"+storedID, nil))
    assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSamplePrefersRecentIndex(t *testing.T) {
    reader := &fakeReader{rows: map[string]store.Row{storedID: storedRow()}}
    r := newRouter()
    RegisterListings(r, ListingsDeps{Store: reader, Recent: &fakeRecent{id: storedID}})

    rec := httptest.NewRecorder()
    r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/listings/sample", nil))
    require.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, storedID, decode(t, rec)["id"])
    assert.Zero(t, reader.sampled)
}

func TestSamplePrunesStaleRecentID(t *testing.T) {
    reader := &fakeReader{rows: map[string]store.Row{storedID: storedRow()}}
    recent := &fakeRecent{id: "11111111-1111-4111-8111-111111111111"}
    r := newRouter()
    RegisterListings(r, ListingsDeps{Store: reader, Recent: recent})

    rec := httptest.NewRecorder()
    r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/listings/sample", nil))
    require.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, []string{recent.id}, recent.removed)
    assert.Equal(t, 1, reader.sampled)
}

func TestSampleRecentErrorFallsBack(t *testing.T) {
    reader := &fakeReader{rows: map[string]store.Row{storedID: storedRow()}}
    r := newRouter()
    RegisterListings(r, ListingsDeps{Store: reader, Recent: &fakeRecent{err: errors.New("redis down")}})

    rec := httptest.NewRecorder()
    r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/listings/sample", nil))
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, 1, reader.sampled)
}

func TestSampleEmptyAndDisabled(t *testing.T) {
    r := newRouter()
    RegisterListings(r, ListingsDeps{Store: &fakeReader{}})
    rec := httptest.NewRecorder()
    r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/listings/sample", nil))
    assert.Equal(t, http.StatusNotFound, rec.Code)

    r = newRouter()
    RegisterListings(r, ListingsDeps{})
    rec = httptest.NewRecorder()
    r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/listings/sample", nil))
    assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type imageFunc func(ctx context.Context, u string) (zillow.Image, error)

func (f imageFunc) FetchImage(ctx context.Context, u string) (zillow.Image, error) { return f(ctx, u) }

func TestImageProxy(t *testing.T) {
    jpeg := []byte{0xff, 0xd8, 0xff, 0xe0}
    r := newRouter()
    RegisterImageProxy(r, ImageDeps{Images: imageFunc(func(_ context.Context, u string) (zillow.Image, error) {
        switch u {
        case "https://photos.zillowstatic.com/fp/a-cc_ft_960.jpg":
            return zillow.Image{ContentType: "image/jpeg", Body: jpeg}, nil
        case "https://evil.example.com/x.jpg":
            return zillow.Image{}, zillow.ErrForeignHost
        default:
            return zillow.Image{}, &zillow.StatusError{URL: u, Status: 404}
        }
    })})

    rec := httptest.NewRecorder()
    r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/proxy-image?url=https://photos.zillowstatic.com/fp/a-cc_ft_960.jpg", nil))
    require.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
    assert.Equal(t, "public, max-age=86400", rec.Header().Get("Cache-Control"))
    assert.Equal(t, jpeg, rec.Body.Bytes())

    rec = httptest.NewRecorder()
    r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/proxy-image?url=https://evil.example.com/x.jpg", nil))
    assert.Equal(t, http.StatusBadRequest, rec.Code)

    rec = httptest.NewRecorder()
    r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/proxy-image?url=https://photos.zillowstatic.com/missing.jpg", nil))
    assert.Equal(t, http.StatusBadGateway, rec.Code)

    rec = httptest.NewRecorder()
    r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/proxy-image", nil))
    assert.Equal(t, http.StatusBadRequest, rec.Code)
}
