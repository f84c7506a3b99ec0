package zillow

import (
	"regexp"
)

// Listing photos are served in several sizes; the 960px rendition is the
// one the game shows.
var photoPattern = regexp.MustCompile(`https?://[^,\s"'<>]+_960\.jpg`)

// ExtractPhotos returns every 960px photo URL in html, first occurrence
// order, without duplicates.
func ExtractPhotos(html string) []string {
	return dedupe(photoPattern.FindAllString(html, -1))
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
