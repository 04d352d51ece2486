// Package catalog defines core types shared across subsystems.
package catalog

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// AppID identifies one item in the remote store catalog. IDs are
// always positive; zero means "no identifier".
type AppID int64

// Valid reports whether the ID refers to a real catalog item.
func (id AppID) Valid() bool { return id > 0 }

// String renders the ID the way the remote API keys its responses.
func (id AppID) String() string { return strconv.FormatInt(int64(id), 10) }

// Record is the opaque attribute bag returned by the details endpoint
// (name, type, price_overview, genres, categories, developers,
// publishers, ...). The crawler never interprets fields beyond the
// ones below; consumers get the bag as-is.
type Record map[string]any

// Name returns the record's display name, or "" when absent.
func (r Record) Name() string {
	name, _ := r["name"].(string)
	return name
}

// Type returns the record's item type (game, dlc, software, ...).
func (r Record) Type() string {
	t, _ := r["type"].(string)
	return t
}

// InitialPrice returns the pre-discount price in currency units and
// whether a price_overview block was present. The remote API stores
// prices in cents.
func (r Record) InitialPrice() (float64, bool) {
	overview, ok := r["price_overview"].(map[string]any)
	if !ok {
		return 0, false
	}
	initial, ok := toFloat(overview["initial"])
	if !ok {
		return 0, false
	}
	return initial / 100, true
}

// IsFree reports whether the record is flagged free-to-play.
func (r Record) IsFree() bool {
	free, _ := r["is_free"].(bool)
	return free
}

// descriptionsContain scans a list of {description: ...} objects for a
// case-insensitive substring match. Genres and categories share this
// shape.
func (r Record) descriptionsContain(field, needle string) bool {
	list, ok := r[field].([]any)
	if !ok {
		return false
	}
	needle = strings.ToLower(needle)
	for _, raw := range list {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		desc, ok := entry["description"].(string)
		if ok && strings.Contains(strings.ToLower(desc), needle) {
			return true
		}
	}
	return false
}

// HasGenre reports whether any genre description contains genre.
func (r Record) HasGenre(genre string) bool {
	return r.descriptionsContain("genres", genre)
}

// HasTag reports whether any category description contains tag.
func (r Record) HasTag(tag string) bool {
	return r.descriptionsContain("categories", tag)
}

// stringsContain scans a plain string list field for a substring match.
func (r Record) stringsContain(field, needle string) bool {
	list, ok := r[field].([]any)
	if !ok {
		return false
	}
	needle = strings.ToLower(needle)
	for _, raw := range list {
		s, ok := raw.(string)
		if ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

// HasDeveloper reports whether any developer name contains dev.
func (r Record) HasDeveloper(dev string) bool {
	return r.stringsContain("developers", dev)
}

// HasPublisher reports whether any publisher name contains pub.
func (r Record) HasPublisher(pub string) bool {
	return r.stringsContain("publishers", pub)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Apps is the item dataset: app ID to attribute bag. encoding/json
// round-trips the integer keys as strings, matching the remote API.
type Apps map[AppID]Record

// Clone returns a shallow copy safe for concurrent readers.
func (a Apps) Clone() Apps {
	out := make(Apps, len(a))
	for id, rec := range a {
		out[id] = rec
	}
	return out
}

// IDList is an ordered ledger of app IDs with no duplicates.
type IDList []AppID

// Contains reports whether id is already in the ledger.
func (l IDList) Contains(id AppID) bool {
	for _, have := range l {
		if have == id {
			return true
		}
	}
	return false
}

// AppendUnique appends id unless it is already present.
func (l IDList) AppendUnique(id AppID) IDList {
	if l.Contains(id) {
		return l
	}
	return append(l, id)
}

// ListingEntry is one row of a category listing page after bundle
// filtering, with the app ID extracted from its logo URL. AppID is
// zero when no identifier could be extracted.
type ListingEntry struct {
	Name  string `json:"name"`
	Logo  string `json:"logo"`
	AppID AppID  `json:"appid"`
}

// logoAppID extracts the numeric item identifier embedded in listing
// logo URLs (".../steam/<kind>/<digits>/...").
var logoAppID = regexp.MustCompile(`steam/\w+/(\d+)`)

// ExtractAppID pulls the app ID out of a logo URL, returning zero when
// the URL carries none.
func ExtractAppID(logo string) AppID {
	m := logoAppID.FindStringSubmatch(logo)
	if m == nil {
		return 0
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0
	}
	return AppID(n)
}

// IsBundle reports whether the logo URL points at a bundle, which is
// not an individually fetchable item.
func IsBundle(logo string) bool {
	return strings.Contains(logo, "bundles")
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// RunToken formats the date token that scopes artifact naming to one
// crawl run. Zero-padded so lexicographic order is chronological.
const runTokenLayout = "20060102"

// RunToken derives the run token for a crawl started at t.
func RunToken(t time.Time) string {
	return t.Format(runTokenLayout)
}
