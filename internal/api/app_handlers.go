package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/appdex/catalog-crawler/internal/catalog"
	"github.com/appdex/catalog-crawler/internal/crawl"
)

// appDetails handles GET /v1/apps/{app_id}. It returns the raw record
// as stored in the dataset, or 404 for unknown IDs.
func (s *Server) appDetails(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "app_id")
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || !catalog.AppID(n).Valid() {
		writeError(w, http.StatusBadRequest, "invalid app_id")
		return
	}
	rec, ok := s.retriever.AppDetails(catalog.AppID(n))
	if !ok {
		writeError(w, http.StatusNotFound, "app not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"app_id":  catalog.AppID(n),
		"details": rec,
	})
}

// queryApps handles GET /v1/apps with at most one filter parameter:
// name, type, genre, tag, developer, publisher, or min_price/max_price
// as a pair. No filter lists every ID.
func (s *Server) queryApps(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var ids []catalog.AppID
	switch {
	case q.Get("name") != "":
		ids = s.retriever.SearchByName(q.Get("name"))
	case q.Get("type") != "":
		ids = s.retriever.FilterByType(q.Get("type"))
	case q.Get("genre") != "":
		ids = s.retriever.AppsWithGenre(q.Get("genre"))
	case q.Get("tag") != "":
		ids = s.retriever.AppsWithTag(q.Get("tag"))
	case q.Get("developer") != "":
		ids = s.retriever.AppsByDeveloper(q.Get("developer"))
	case q.Get("publisher") != "":
		ids = s.retriever.AppsByPublisher(q.Get("publisher"))
	case q.Get("min_price") != "" || q.Get("max_price") != "":
		min, max, err := parsePriceRange(q.Get("min_price"), q.Get("max_price"))
		if err != "" {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		ids = s.retriever.FilterByPriceRange(min, max)
	default:
		ids = s.retriever.AllAppIDs()
	}

	if ids == nil {
		ids = []catalog.AppID{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(ids),
		"app_ids": ids,
	})
}

// parsePriceRange parses the optional bounds, defaulting the missing
// side to an open range. It returns a message instead of an error
// value because the handlers only ever surface the text.
func parsePriceRange(minRaw, maxRaw string) (float64, float64, string) {
	min := 0.0
	max := float64(1<<62 - 1)
	if minRaw != "" {
		v, err := strconv.ParseFloat(strings.TrimSpace(minRaw), 64)
		if err != nil || v < 0 {
			return 0, 0, "invalid min_price"
		}
		min = v
	}
	if maxRaw != "" {
		v, err := strconv.ParseFloat(strings.TrimSpace(maxRaw), 64)
		if err != nil || v < 0 {
			return 0, 0, "invalid max_price"
		}
		max = v
	}
	if min > max {
		return 0, 0, "min_price exceeds max_price"
	}
	return min, max, ""
}

// stats handles GET /v1/stats.
func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.retriever.Stats())
}

// categories handles GET /v1/categories, returning the fixed category
// list in crawl order.
func (s *Server) categories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": crawl.CategoryNames(),
	})
}

// searchResults handles GET /v1/searchresults: the newest run's merged,
// de-duplicated category listings.
func (s *Server) searchResults(w http.ResponseWriter, _ *http.Request) {
	entries, err := s.retriever.LatestSearchResults()
	if err != nil {
		s.logger.Error("loading search results failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load search results")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(entries),
		"entries": entries,
	})
}
