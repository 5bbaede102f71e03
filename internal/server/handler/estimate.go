package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/costsim/internal/domain"
	"github.com/alanyoungcy/costsim/internal/simulator"
)

// EstimateReader reads the last stored estimate for a symbol from a warm
// store. Implemented by the Redis estimate cache; nil when caching is
// disabled.
type EstimateReader interface {
	GetLatest(ctx context.Context, symbol string) (simulator.View, error)
}

// EstimateHandler serves the latest cost estimate and the order parameters
// it is computed for.
type EstimateHandler struct {
	ctrl   *simulator.Controller
	cache  EstimateReader
	symbol string
	logger *slog.Logger
}

// NewEstimateHandler creates an EstimateHandler bound to the controller.
// cache may be nil; when present it backfills estimates across restarts.
func NewEstimateHandler(ctrl *simulator.Controller, cache EstimateReader, symbol string, logger *slog.Logger) *EstimateHandler {
	return &EstimateHandler{
		ctrl:   ctrl,
		cache:  cache,
		symbol: symbol,
		logger: logger.With(slog.String("handler", "estimate")),
	}
}

// GetEstimate returns the latest published view: result, connectivity, and
// error state. Before the first computation of this process it falls back to
// the cached estimate when one is still warm.
// GET /api/estimate
func (h *EstimateHandler) GetEstimate(w http.ResponseWriter, r *http.Request) {
	view := h.ctrl.Latest()
	if view.Result == nil && h.cache != nil {
		cached, err := h.cache.GetLatest(r.Context(), h.symbol)
		switch {
		case err == nil && cached.Result != nil:
			writeJSON(w, http.StatusOK, cached)
			return
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			h.logger.WarnContext(r.Context(), "cache read failed",
				slog.String("symbol", h.symbol),
				slog.String("error", err.Error()),
			)
		}
	}
	writeJSON(w, http.StatusOK, view)
}

// GetParams returns the current order parameters.
// GET /api/params
func (h *EstimateHandler) GetParams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Params())
}

// UpdateParams replaces the order parameters wholesale. The new parameters
// take effect on the next snapshot.
// PUT /api/params
func (h *EstimateHandler) UpdateParams(w http.ResponseWriter, r *http.Request) {
	var params domain.OrderParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.ctrl.SetParams(params); err != nil {
		if errors.Is(err, domain.ErrInvalidParams) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "update params failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}

	writeJSON(w, http.StatusOK, h.ctrl.Params())
}
