package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/roll-pressure/internal/data"
	"github.com/dgnsrekt/roll-pressure/internal/market"
	"github.com/dgnsrekt/roll-pressure/internal/rollpressure"
)

type Server struct {
	store  *data.Store
	reload *ReloadManager
	logger *zap.Logger
}

func NewServer(store *data.Store, reload *ReloadManager, logger *zap.Logger) *Server {
	return &Server{
		store:  store,
		reload: reload,
		logger: logger,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status    string     `json:"status"`
	RunID     string     `json:"run_id,omitempty"`
	Source    string     `json:"source,omitempty"`
	LoadedAt  *time.Time `json:"loaded_at,omitempty"`
	Rows      int        `json:"rows"`
	Reloading bool       `json:"reloading"`
}

type marketInfo struct {
	Name     string `json:"name"`
	Display  string `json:"display"`
	Exchange string `json:"exchange"`
	CFTCCode string `json:"cftc_code"`
	Rows     int    `json:"rows"`
}

type rowsResponse struct {
	RunID string                    `json:"run_id"`
	Count int                       `json:"count"`
	Rows  []rollpressure.DerivedRow `json:"rows"`
}

type alertsResponse struct {
	RunID  string                    `json:"run_id"`
	Count  int                       `json:"count"`
	Alerts []rollpressure.DerivedRow `json:"alerts"`
}

// GetHealth reports liveness and the loaded snapshot, if any.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Reloading: s.reload != nil && s.reload.IsReloading()}
	if snap, err := s.store.Current(); err == nil {
		resp.RunID = snap.RunID
		resp.Source = snap.Source
		resp.LoadedAt = &snap.LoadedAt
		resp.Rows = len(snap.Rows)
	} else {
		resp.Status = "no_data"
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetMarkets lists the supported markets with their loaded row counts.
func (s *Server) GetMarkets(w http.ResponseWriter, r *http.Request) {
	counts := make(map[string]int)
	if snap, err := s.store.Current(); err == nil {
		for _, row := range snap.Rows {
			counts[row.Market]++
		}
	}

	markets := make([]marketInfo, 0)
	for _, name := range market.Names() {
		spec, _ := market.Lookup(name)
		markets = append(markets, marketInfo{
			Name:     spec.Name,
			Display:  spec.Display,
			Exchange: spec.Exchange,
			CFTCCode: spec.CFTCCode,
			Rows:     counts[spec.Name],
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": markets})
}

// GetRollPressure returns derived rows filtered by ?market=&from=&to=.
func (s *Server) GetRollPressure(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	mkt := ""
	if raw := q.Get("market"); raw != "" {
		spec, err := market.Lookup(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		mkt = spec.Name
	}

	from, to, err := parseRange(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, ok := s.snapshot(w)
	if !ok {
		return
	}

	rows := snap.Filter(mkt, from, to)
	writeJSON(w, http.StatusOK, rowsResponse{RunID: snap.RunID, Count: len(rows), Rows: rows})
}

// GetLatestAlerts returns the latest alerting row per market.
func (s *Server) GetLatestAlerts(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	alerts := snap.Alerts()
	writeJSON(w, http.StatusOK, alertsResponse{RunID: snap.RunID, Count: len(alerts), Alerts: alerts})
}

// GetSummary returns batch statistics of the loaded snapshot.
func (s *Server) GetSummary(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":  snap.RunID,
		"summary": snap.Summary,
	})
}

// PostReload reloads the latest processed output.
func (s *Server) PostReload(w http.ResponseWriter, r *http.Request) {
	if s.reload == nil {
		writeError(w, http.StatusNotImplemented, "reload not configured")
		return
	}

	result, err := s.reload.Reload(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, ErrReloadInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, data.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("reload failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) snapshot(w http.ResponseWriter) (*data.Snapshot, bool) {
	snap, err := s.store.Current()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "no data loaded")
		return nil, false
	}
	return snap, true
}

// parseRange reads the optional from/to query dates.
func parseRange(q url.Values) (from, to time.Time, err error) {
	if from, err = parseDateParam(q.Get("from")); err != nil {
		return from, to, errors.New("invalid from: expected YYYY-MM-DD")
	}
	if to, err = parseDateParam(q.Get("to")); err != nil {
		return from, to, errors.New("invalid to: expected YYYY-MM-DD")
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return from, to, errors.New("to is before from")
	}
	return from, to, nil
}

func parseDateParam(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(rollpressure.DateLayout, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
