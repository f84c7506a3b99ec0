package zillow

import (
	"encoding/json"
	"strconv"
)

// Listing is a validated listing record. The zero value is not a valid
// listing; only the extractor and Restore build one.
type Listing struct {
	id        string
	photoURLs []string
	price     int
	beds      string
	baths     string
	sqft      string
	street    string
	city      string
	state     string
	zip       string
	detailURL string
}

func (l Listing) ID() string            { return l.id }
func (l Listing) Price() int            { return l.price }
func (l Listing) Beds() string          { return l.beds }
func (l Listing) Baths() string         { return l.baths }
func (l Listing) SquareFootage() string { return l.sqft }
func (l Listing) StreetAddress() string { return l.street }
func (l Listing) City() string          { return l.city }
func (l Listing) State() string         { return l.state }
func (l Listing) Zip() string           { return l.zip }
func (l Listing) DetailURL() string     { return l.detailURL }

// PhotoURLs returns a copy so callers cannot mutate the record.
func (l Listing) PhotoURLs() []string { return append([]string(nil), l.photoURLs...) }

// CityStateZip renders "City, ST 12345".
func (l Listing) CityStateZip() string { return l.city + ", " + l.state + " " + l.zip }

// WithDetailURL returns a copy of l pointing at its source page.
func (l Listing) WithDetailURL(u string) Listing {
	l.photoURLs = l.PhotoURLs()
	l.detailURL = u
	return l
}

// WithID returns a copy of l carrying a persistence identifier.
func (l Listing) WithID(id string) Listing {
	l.photoURLs = l.PhotoURLs()
	l.id = id
	return l
}

// Fields is the flat form used to rebuild a Listing from storage.
type Fields struct {
	ID        string
	PhotoURLs []string
	Price     int
	Beds      string
	Baths     string
	Sqft      string
	Street    string
	City      string
	State     string
	Zip       string
	DetailURL string
}

// Restore rebuilds a stored listing, applying the same validation as
// extraction so a corrupt row never surfaces as a record.
func Restore(f Fields, maxPrice int) (Listing, bool) {
	c := candidate{
		price:  strconv.Itoa(f.Price),
		beds:   f.Beds,
		baths:  f.Baths,
		sqft:   f.Sqft,
		street: f.Street,
		city:   f.City,
		state:  f.State,
		zip:    f.Zip,
	}
	l, ok := assemble(c, dedupe(f.PhotoURLs), maxPrice, DefaultMinPhotos)
	if !ok {
		return Listing{}, false
	}
	l.id = f.ID
	l.detailURL = f.DetailURL
	return l, true
}

// payload is the JSON wire shape consumed by the game client.
type payload struct {
	ID           string   `json:"id,omitempty"`
	URLs         []string `json:"urls"`
	Value        int      `json:"value"`
	Beds         string   `json:"beds"`
	Baths        string   `json:"baths"`
	SquareFeet   string   `json:"square_footage"`
	Address      string   `json:"address"`
	CityStateZip string   `json:"city_state_zipcode"`
	DetailURL    string   `json:"detailUrl,omitempty"`
}

func (l Listing) MarshalJSON() ([]byte, error) {
	return json.Marshal(payload{
		ID:           l.id,
		URLs:         l.PhotoURLs(),
		Value:        l.price,
		Beds:         l.beds,
		Baths:        l.baths,
		SquareFeet:   l.sqft,
		Address:      l.street,
		CityStateZip: l.CityStateZip(),
		DetailURL:    l.detailURL,
	})
}
