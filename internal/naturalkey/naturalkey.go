// Package naturalkey parses catalog labels into the (title, year, id) tuple
// used to identify a movie independently of its storage row.
package naturalkey

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// labelPattern matches "<title> (<year>[/<roman>]) <id>".
var labelPattern = regexp.MustCompile(`^(.*?)\s*\((\d{4})(?:/[ivxlcdmIVXLCDM]+)?\)\s*(\d+)$`)

// Key is the resolved natural key of a label.
type Key struct {
	Title      string `json:"title"`
	Year       *int   `json:"year,omitempty"`
	ExternalID *int   `json:"external_id,omitempty"`
}

// String renders the key for logs.
func (k Key) String() string {
	return fmt.Sprintf("%q year=%s id=%s", k.Title, optional(k.Year), optional(k.ExternalID))
}

// Complete reports whether both optional parts are present.
func (k Key) Complete() bool {
	return k.Year != nil && k.ExternalID != nil
}

// Resolve never fails. Labels without a well-formed suffix resolve to the
// trimmed label with no year and no id.
func Resolve(raw string) Key {
	label := strings.TrimSpace(raw)
	m := labelPattern.FindStringSubmatch(label)
	if m == nil {
		return Key{Title: label}
	}
	title := strings.TrimSpace(m[1])
	if title == "" {
		return Key{Title: label}
	}
	year, err := strconv.Atoi(m[2])
	if err != nil {
		return Key{Title: label}
	}
	id, err := strconv.Atoi(m[3])
	if err != nil {
		return Key{Title: label}
	}
	return Key{Title: title, Year: &year, ExternalID: &id}
}

func optional(v *int) string {
	if v == nil {
		return "null"
	}
	return strconv.Itoa(*v)
}
