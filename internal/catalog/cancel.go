package catalog

import "sync/atomic"

// CancelToken is the cooperative cancellation flag handed to a crawl
// worker. Pause sets it; the worker checks it before each category,
// page, and item fetch. Checks are best-effort: an in-flight retry
// wait finishes before the next check, so pausing can lag by one wait
// interval.
type CancelToken struct {
	flag atomic.Bool
}

// Cancel requests a cooperative stop.
func (t *CancelToken) Cancel() { t.flag.Store(true) }

// Cancelled reports whether a stop has been requested.
func (t *CancelToken) Cancelled() bool {
	if t == nil {
		return false
	}
	return t.flag.Load()
}
