package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/roll-pressure/internal/market"
	"github.com/dgnsrekt/roll-pressure/internal/rollpressure"
	"github.com/dgnsrekt/roll-pressure/internal/store"
)

// HistoryStore reads persisted rows across runs.
type HistoryStore interface {
	Latest(ctx context.Context, market string) (*store.Record, error)
	History(ctx context.Context, market string, from, to time.Time) ([]store.Record, error)
}

// HistoryHandler serves the Postgres-backed history endpoints.
type HistoryHandler struct {
	repo   HistoryStore
	logger *zap.Logger
	now    func() time.Time
}

func NewHistoryHandler(repo HistoryStore, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{repo: repo, logger: logger, now: time.Now}
}

type historyResponse struct {
	Market string                    `json:"market"`
	Count  int                       `json:"count"`
	Rows   []rollpressure.DerivedRow `json:"rows"`
}

// GetHistory returns stored rows of one market, ?market=&from=&to=, oldest first.
// A missing to defaults to today.
func (h *HistoryHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	mkt, ok := requireMarket(w, q.Get("market"))
	if !ok {
		return
	}
	from, to, err := parseRange(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if to.IsZero() {
		to = h.now().UTC()
	}

	recs, err := h.repo.History(r.Context(), mkt, from, to)
	if err != nil {
		h.logger.Error("history query failed", zap.String("market", mkt), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}

	rows := make([]rollpressure.DerivedRow, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, rec.Derived())
	}
	writeJSON(w, http.StatusOK, historyResponse{Market: mkt, Count: len(rows), Rows: rows})
}

// GetLatest returns the most recent stored row of ?market=.
func (h *HistoryHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	mkt, ok := requireMarket(w, r.URL.Query().Get("market"))
	if !ok {
		return
	}

	rec, err := h.repo.Latest(r.Context(), mkt)
	switch {
	case errors.Is(err, store.ErrNoRows):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		h.logger.Error("latest query failed", zap.String("market", mkt), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "latest query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id": rec.RunID,
		"row":    rec.Derived(),
	})
}

func requireMarket(w http.ResponseWriter, raw string) (string, bool) {
	if raw == "" {
		writeError(w, http.StatusBadRequest, "market is required")
		return "", false
	}
	spec, err := market.Lookup(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return spec.Name, true
}
