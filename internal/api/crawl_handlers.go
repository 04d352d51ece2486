package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/appdex/catalog-crawler/internal/catalog"
	"github.com/appdex/catalog-crawler/internal/runner"
)

func parseKindParam(r *http.Request) (catalog.Kind, bool) {
	return catalog.ParseKind(chi.URLParam(r, "kind"))
}

// startCrawl handles POST /v1/crawls/{kind}/start. It returns 202 with
// the kind's progress snapshot when the crawl was launched, 400 for an
// unknown kind, and 409 while any crawl is already active.
func (s *Server) startCrawl(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKindParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown crawl kind")
		return
	}
	if err := s.runner.Start(kind); err != nil {
		switch {
		case errors.Is(err, runner.ErrAlreadyRunning):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, runner.ErrUnknownKind):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("start crawl failed", zap.String("kind", string(kind)), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to start crawl")
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"kind":     kind,
		"progress": s.runner.Progress(kind),
	})
}

// pauseCrawl handles POST /v1/crawls/{kind}/pause. Pausing a kind that
// is not running is a no-op and still returns the current snapshot.
func (s *Server) pauseCrawl(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKindParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown crawl kind")
		return
	}
	if err := s.runner.Pause(kind); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kind":     kind,
		"progress": s.runner.Progress(kind),
	})
}

// crawlProgress handles GET /v1/crawls/{kind}/progress.
func (s *Server) crawlProgress(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKindParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown crawl kind")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kind":     kind,
		"progress": s.runner.Progress(kind),
	})
}
