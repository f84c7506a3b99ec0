package zillow

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	// DefaultMaxPrice is the sanity bound on list prices; anything above
	// it is almost always a mis-captured number.
	DefaultMaxPrice = 20_000_000
	// DefaultMinPhotos is the fewest photos a playable listing may have.
	DefaultMinPhotos = 3
)

var (
	// One pass over the whole summary block, e.g.
	//   "$375,000 4 bd 2 ba 2,139 sqft ... 4933 W Melody Ln, Laveen, AZ 85339"
	//   "$375,000 4 beds, 2 baths, 2,139 Square Feet ... located at 4933 W Melody Ln, Laveen, AZ 85339"
	comboPattern = regexp.MustCompile(`(?is)(?P<price>\$\d{1,3}(?:,\d{3})*)[^$]{0,120}?` +
		`(?P<beds>\d+(?:\.\d+)?)\s*(?:bd|beds?)[^$]{0,120}?` +
		`(?P<baths>\d+(?:\.\d+)?)\s*(?:ba|baths?)[^$]{0,160}?` +
		`(?P<sqft>[\d,]+)\s*(?:sqft|square\s*feet)[^$]{0,200}?` +
		`(?P<street>\d{1,6}[\w\s.\-#']+?),\s*(?P<city>[A-Za-z.\-'\s]+?),\s*(?P<state>[A-Z]{2})\s+(?P<zip>\d{5})`)

	pricePattern = regexp.MustCompile(`\$(\d{1,3}(?:,\d{3})*)`)
	bedsPattern  = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:bd|beds?)`)
	bathsPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:ba|baths?)`)
	sqftPattern  = regexp.MustCompile(`(?i)([\d,]+)\s*(?:sqft|square\s*feet)`)

	cityStateZipPattern = regexp.MustCompile(`(?i)([A-Za-z.\-'\s]+),\s*([A-Z]{2})\s+(\d{5})`)
	bodyStreetPattern   = regexp.MustCompile(`(\d{1,6}\s+[A-Za-z0-9.\-#'\s]+),\s*[A-Za-z.\-'\s]+,\s*[A-Z]{2}\s+\d{5}`)

	// Titles usually read "4933 W Melody Ln, Laveen, AZ 85339 | MLS #...".
	titleStreetPattern = regexp.MustCompile(`^(.+?),\s*[A-Za-z.\-'\s]+,\s*[A-Z]{2}\s+\d{5}`)
	titleSplitPattern  = regexp.MustCompile(`(.+?),\s*([A-Za-z.\-'\s]+),\s*([A-Z]{2})\s+(\d{5})`)

	priceCleaner = strings.NewReplacer("$", "", ",", "")
)

// Extractor turns a listing detail page into a Listing. The zero value
// uses the defaults.
type Extractor struct {
	MaxPrice int
	// MinPhotos can only raise the photo floor, never lower it below
	// DefaultMinPhotos.
	MinPhotos int
}

// Extract runs the default Extractor.
func Extract(html string) (Listing, bool) {
	return Extractor{}.Extract(html)
}

// Extract reports false whenever the page does not yield a complete,
// in-range record. It is a pure function of html.
func (e Extractor) Extract(html string) (Listing, bool) {
	minPhotos := max(e.MinPhotos, DefaultMinPhotos)
	photos := ExtractPhotos(html)
	if len(photos) < minPhotos {
		return Listing{}, false
	}

	p := &page{html: html}
	var c candidate
	for _, s := range strategies {
		c = s.apply(p, c)
		if c.complete() {
			break
		}
	}
	return assemble(c, photos, e.maxPrice(), minPhotos)
}

func (e Extractor) maxPrice() int {
	if e.MaxPrice > 0 {
		return e.MaxPrice
	}
	return DefaultMaxPrice
}

// candidate holds raw captures before validation.
type candidate struct {
	price, beds, baths, sqft string
	street, city, state, zip string
}

func (c candidate) complete() bool {
	for _, v := range []string{c.price, c.beds, c.baths, c.sqft, c.street, c.city, c.state, c.zip} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

func (c candidate) hasLocation() bool {
	return c.street != "" && c.city != "" && c.state != "" && c.zip != ""
}

type strategy struct {
	name  string
	apply func(p *page, prev candidate) candidate
}

// Order matters: a later strategy only runs when the earlier ones left
// the candidate incomplete.
var strategies = []strategy{
	{name: "combined", apply: combined},
	{name: "independent", apply: independent},
	{name: "title", apply: titleOnly},
}

func combined(p *page, prev candidate) candidate {
	m := comboPattern.FindStringSubmatch(p.html)
	if m == nil {
		return prev
	}
	group := func(name string) string { return m[comboPattern.SubexpIndex(name)] }
	return candidate{
		price:  group("price"),
		beds:   group("beds"),
		baths:  group("baths"),
		sqft:   group("sqft"),
		street: group("street"),
		city:   group("city"),
		state:  group("state"),
		zip:    group("zip"),
	}
}

// independent ignores prev: each field comes from its own pattern
// anywhere in the document.
func independent(p *page, _ candidate) candidate {
	c := candidate{
		price: first(pricePattern, p.html),
		beds:  first(bedsPattern, p.html),
		baths: first(bathsPattern, p.html),
		sqft:  first(sqftPattern, p.html),
	}
	m := cityStateZipPattern.FindStringSubmatch(p.html)
	if m == nil {
		return c
	}
	c.city = strings.TrimSpace(m[1])
	c.state = strings.TrimSpace(m[2])
	c.zip = strings.TrimSpace(m[3])

	if title := p.title(); title != "" {
		c.street = first(titleStreetPattern, title)
	}
	if c.street == "" {
		c.street = first(bodyStreetPattern, p.html)
	}
	return c
}

// titleOnly fills whatever location parts are still missing by splitting
// the page title.
func titleOnly(p *page, prev candidate) candidate {
	if prev.hasLocation() {
		return prev
	}
	title := p.title()
	if title == "" {
		return prev
	}
	m := titleSplitPattern.FindStringSubmatch(title)
	if m == nil {
		return prev
	}
	c := prev
	c.street = orElse(c.street, strings.TrimSpace(m[1]))
	c.city = orElse(c.city, strings.TrimSpace(m[2]))
	c.state = orElse(c.state, strings.TrimSpace(m[3]))
	c.zip = orElse(c.zip, strings.TrimSpace(m[4]))
	return c
}

func assemble(c candidate, photos []string, maxPrice, minPhotos int) (Listing, bool) {
	if len(photos) < max(minPhotos, DefaultMinPhotos) || !c.complete() {
		return Listing{}, false
	}
	price, err := strconv.Atoi(priceCleaner.Replace(strings.TrimSpace(c.price)))
	if err != nil || price <= 0 || price > maxPrice {
		return Listing{}, false
	}
	return Listing{
		photoURLs: append([]string(nil), photos...),
		price:     price,
		beds:      strings.TrimSpace(c.beds),
		baths:     strings.TrimSpace(c.baths),
		sqft:      strings.TrimSpace(c.sqft),
		street:    strings.TrimSpace(c.street),
		city:      strings.TrimSpace(c.city),
		state:     strings.TrimSpace(c.state),
		zip:       strings.TrimSpace(c.zip),
	}, true
}

// page memoizes the parsed title; the HTML parse only happens if a
// fallback strategy needs it.
type page struct {
	html      string
	titleText string
	parsed    bool
}

func (p *page) title() string {
	if p.parsed {
		return p.titleText
	}
	p.parsed = true
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.html))
	if err != nil {
		return ""
	}
	p.titleText = strings.TrimSpace(doc.Find("title").First().Text())
	return p.titleText
}

func first(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func orElse(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
