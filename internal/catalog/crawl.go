package catalog

import "context"

// Kind names one of the mutually exclusive crawl types.
type Kind string

// Crawl kinds gated by the single-active-crawl invariant.
const (
	// KindTrending walks the fixed category listings (top sellers,
	// specials, ...) and fetches details for every entry discovered.
	KindTrending Kind = "trending"
	// KindCatalog syncs against the full app index, fetching details
	// for IDs the ledgers have never seen.
	KindCatalog Kind = "catalog"
)

// ParseKind validates a kind string from config or the API.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindTrending, KindCatalog:
		return Kind(s), true
	default:
		return "", false
	}
}

// Status is the lifecycle state of a crawl kind.
type Status string

// Status values reported by Progress. Paused reflects intent: the
// worker may still be winding down when it is observed.
const (
	StatusIdle      Status = "idle"
	StatusStarting  Status = "starting"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// Progress is a point-in-time snapshot of a crawl kind's counters.
// Done is an approximate pacing indicator, not an exact count of fetch
// attempts: entries without an extractable ID still advance it, and a
// skipped category advances it by a fixed increment.
type Progress struct {
	Total  int    `json:"total"`
	Done   int    `json:"done"`
	Status Status `json:"status"`
}

// Outcome classifies the result of one detail fetch.
type Outcome string

// Fetch outcomes. Failed marks a fetch-infrastructure error distinct
// from the content judgement Excluded carries.
const (
	OutcomeFetched  Outcome = "fetched"
	OutcomeExcluded Outcome = "excluded"
	OutcomeFailed   Outcome = "failed"
)

// FetchResult is what the detail fetcher returns for one app ID.
// Record is non-nil only for OutcomeFetched.
type FetchResult struct {
	AppID   AppID
	Outcome Outcome
	Record  Record
}

// ListingQuery selects one category listing page.
type ListingQuery struct {
	// Filter is the category filter parameter; empty selects the
	// specials listing (paired with Specials=true).
	Filter   string
	Specials bool
	Page     int
}

// ListingClient fetches one page of a category listing.
type ListingClient interface {
	SearchResults(ctx context.Context, q ListingQuery) ([]ListingEntry, error)
}

// DetailResponse is the raw outcome of one details request: the HTTP
// status plus, for 200s, the success flag and data payload keyed by
// the requested ID.
type DetailResponse struct {
	StatusCode int
	Success    bool
	Data       Record
}

// DetailClient issues a single details request without retrying;
// status-code policy lives in the fetcher.
type DetailClient interface {
	AppDetails(ctx context.Context, id AppID) (DetailResponse, error)
}

// AppIndexEntry is one row of the full application index.
type AppIndexEntry struct {
	AppID AppID  `json:"appid"`
	Name  string `json:"name"`
}

// AppListClient fetches the full application index.
type AppListClient interface {
	AppList(ctx context.Context) ([]AppIndexEntry, error)
}
