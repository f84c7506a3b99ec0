// Package cities loads the candidate city path segments used by discovery.
package cities

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrEmpty means the list had no usable entries. It is a configuration
// error: discovery can never produce a candidate without cities.
var ErrEmpty = errors.New("cities: list is empty")

// Load reads a newline-delimited city list from path.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cities: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse trims every line and skips blanks. Both \n and \r\n endings work.
func Parse(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		out = append(out, strings.Trim(line, "/"))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("cities: read: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrEmpty
	}
	return out, nil
}
