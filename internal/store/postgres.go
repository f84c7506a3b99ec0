package store

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"
)

var ErrNotFound = errors.New("store: listing not found")

type Store struct { DB *sql.DB }

func Open(dsn string) (*Store, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil { return nil, err }
    db.SetMaxOpenConns(10)
    db.SetMaxIdleConns(5)
    db.SetConnMaxLifetime(30 * time.Minute)
    return &Store{DB: db}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

func (s *Store) Close() error { return s.DB.Close() }

func (s *Store) Migrate(ctx context.Context) error {
    stmts := []string{
        `CREATE TABLE IF NOT EXISTS listings (
            id              UUID PRIMARY KEY,
            property_key    TEXT NOT NULL,
            detail_url      TEXT,
            price           INTEGER NOT NULL CHECK (price > 0),
            beds            TEXT NOT NULL,
            baths           TEXT NOT NULL,
            sqft            TEXT NOT NULL,
            address_line1   TEXT NOT NULL,
            city            TEXT NOT NULL,
            state           TEXT NOT NULL,
            zip             TEXT NOT NULL,
            created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
            last_fetch_at   TIMESTAMPTZ NOT NULL DEFAULT now()
        );`,
        `CREATE UNIQUE INDEX IF NOT EXISTS ux_listings_property_key ON listings(property_key);`,
        `CREATE INDEX IF NOT EXISTS idx_listings_last_fetch ON listings(last_fetch_at DESC);`,
        `CREATE TABLE IF NOT EXISTS listing_photos (
            listing_id    UUID NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
            href          TEXT NOT NULL,
            position      INTEGER NOT NULL,
            PRIMARY KEY (listing_id, position)
        );`,
    }
    for _, q := range stmts {
        if _, err := s.DB.ExecContext(ctx, q); err != nil { return err }
    }
    return nil
}

// Row is the stored shape of one listing.
type Row struct {
    ID          string
    PropertyKey string
    DetailURL   sql.NullString
    Price       int
    Beds        string
    Baths       string
    Sqft        string
    Address1    string
    City        string
    State       string
    Zip         string
    Photos      []string
    LastFetchAt time.Time
}

// UpsertListing inserts or refreshes the listing identified by
// PropertyKey and replaces its photo set. It returns the listing id.
func (s *Store) UpsertListing(ctx context.Context, in Row) (string, error) {
    if s.DB == nil { return "", errors.New("nil db") }
    if in.PropertyKey == "" { return "", errors.New("store: empty property key") }
    tx, err := s.DB.BeginTx(ctx, nil)
    if err != nil { return "", err }
    defer func() { if err != nil { _ = tx.Rollback() } }()

    var id string
    err = tx.QueryRowContext(ctx, `
        INSERT INTO listings (id, property_key, detail_url, price, beds, baths, sqft, address_line1, city, state, zip)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        ON CONFLICT (property_key)
        DO UPDATE SET detail_url=EXCLUDED.detail_url, price=EXCLUDED.price, beds=EXCLUDED.beds, baths=EXCLUDED.baths, sqft=EXCLUDED.sqft,
            address_line1=EXCLUDED.address_line1, city=EXCLUDED.city, state=EXCLUDED.state, zip=EXCLUDED.zip, updated_at=now(), last_fetch_at=now()
        RETURNING id`,
        uuid.NewString(), in.PropertyKey, in.DetailURL, in.Price, in.Beds, in.Baths, in.Sqft, in.Address1, in.City, in.State, in.Zip,
    ).Scan(&id)
    if err != nil { return "", err }

    if _, err = tx.ExecContext(ctx, `DELETE FROM listing_photos WHERE listing_id=$1`, id); err != nil { return "", err }
    for i, href := range in.Photos {
        if href == "" { continue }
        if _, err = tx.ExecContext(ctx, `INSERT INTO listing_photos (listing_id, href, position) VALUES ($1,$2,$3)`, id, href, i); err != nil { return "", err }
    }

    if err = tx.Commit(); err != nil { return "", err }
    return id, nil
}

const selectListing = `
    SELECT id, property_key, detail_url, price, beds, baths, sqft, address_line1, city, state, zip, last_fetch_at
    FROM listings`

func (s *Store) GetListing(ctx context.Context, id string) (Row, error) {
    return s.scanOne(ctx, selectListing+` WHERE id=$1`, id)
}

// SampleListing returns one stored listing chosen at random.
func (s *Store) SampleListing(ctx context.Context) (Row, error) {
    return s.scanOne(ctx, selectListing+` ORDER BY random() LIMIT 1`)
}

func (s *Store) CountListings(ctx context.Context) (int, error) {
    var n int
    err := s.DB.QueryRowContext(ctx, `SELECT count(*) FROM listings`).Scan(&n)
    return n, err
}

func (s *Store) scanOne(ctx context.Context, q string, args ...any) (Row, error) {
    var r Row
    err := s.DB.QueryRowContext(ctx, q, args...).Scan(
        &r.ID, &r.PropertyKey, &r.DetailURL, &r.Price, &r.Beds, &r.Baths, &r.Sqft,
        &r.Address1, &r.City, &r.State, &r.Zip, &r.LastFetchAt,
    )
    if errors.Is(err, sql.ErrNoRows) { return Row{}, ErrNotFound }
    if err != nil { return Row{}, err }
    r.Photos, err = s.fetchPhotos(ctx, r.ID)
    if err != nil { return Row{}, err }
    return r, nil
}

func (s *Store) fetchPhotos(ctx context.Context, listingID string) ([]string, error) {
    rows, err := s.DB.QueryContext(ctx, `SELECT href FROM listing_photos WHERE listing_id=$1 ORDER BY position`, listingID)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []string
    for rows.Next() {
        var href string
        if err := rows.Scan(&href); err != nil { return nil, err }
        out = append(out, href)
    }
    return out, rows.Err()
}
