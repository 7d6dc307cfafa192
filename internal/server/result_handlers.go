package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/Gotti0/kimum-trade-sub000/internal/artifacts"
	"github.com/Gotti0/kimum-trade-sub000/internal/screener"
	"github.com/Gotti0/kimum-trade-sub000/internal/universe"
)

// ResultHandlers serves persisted run artefacts, screen results, the run
// index, and the instrument universe.
type ResultHandlers struct {
	artifacts *artifacts.Store
	runIndex  *artifacts.RunIndex
	screens   *screener.Store
	universe  *universe.Repository
	log       zerolog.Logger
}

func NewResultHandlers(store *artifacts.Store, runIndex *artifacts.RunIndex, screens *screener.Store, repo *universe.Repository, log zerolog.Logger) *ResultHandlers {
	return &ResultHandlers{
		artifacts: store,
		runIndex:  runIndex,
		screens:   screens,
		universe:  repo,
		log:       log.With().Str("component", "result_handlers").Logger(),
	}
}

// HandleLatestResult responds to GET /api/results/{strategy}/latest.
func (h *ResultHandlers) HandleLatestResult(w http.ResponseWriter, r *http.Request) {
	strategy := chi.URLParam(r, "strategy")
	artifact, err := h.artifacts.Latest(strategy)
	if err != nil {
		writeError(w, err)
		return
	}
	if artifact == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no result for strategy " + strategy})
		return
	}
	writeJSON(w, http.StatusOK, artifact)
}

// HandleRecentRuns responds to GET /api/results/runs?strategy=&limit=.
func (h *ResultHandlers) HandleRecentRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	entries, err := h.runIndex.Recent(r.Context(), r.URL.Query().Get("strategy"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": entries})
}

// HandleLatestScreen responds to GET /api/screens/{kind}/latest.
func (h *ResultHandlers) HandleLatestScreen(w http.ResponseWriter, r *http.Request) {
	kind := screener.Kind(chi.URLParam(r, "kind"))
	if kind != screener.KindSwing && kind != screener.KindPullback {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown screen kind " + string(kind)})
		return
	}

	result, err := h.screens.Latest(kind)
	if err != nil {
		writeError(w, err)
		return
	}
	if result == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no screen result for " + string(kind)})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleUniverse responds to GET /api/universe with stored instrument records.
func (h *ResultHandlers) HandleUniverse(w http.ResponseWriter, r *http.Request) {
	records, err := h.universe.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"instruments": records, "count": len(records)})
}
