// Package api exposes the pull-based HTTP query surface over the pipeline.
// The presentation layer polls these endpoints; it does not own ingestion.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"livequant/internal/alert"
	"livequant/internal/analytics"
	"livequant/internal/config"
	"livequant/internal/export"
	"livequant/internal/market"
	"livequant/internal/service"
)

// Handler serves the HTTP API backed by a pipeline.
type Handler struct {
	pipeline    *service.Pipeline
	log         zerolog.Logger
	granularity time.Duration
	window      int
}

// New builds a handler with the configured analytics defaults.
func New(pipeline *service.Pipeline, granularity time.Duration, window int, log zerolog.Logger) *Handler {
	return &Handler{pipeline: pipeline, log: log, granularity: granularity, window: window}
}

// Router wires all endpoints.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/ticks", h.handleTicks).Methods(http.MethodGet)
	r.HandleFunc("/api/bars", h.handleBars).Methods(http.MethodGet)
	r.HandleFunc("/api/pair", h.handlePair).Methods(http.MethodGet)
	r.HandleFunc("/api/upload", h.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/api/export", h.handleExport).Methods(http.MethodGet)
	r.HandleFunc("/api/alerts", h.handleListAlerts).Methods(http.MethodGet)
	r.HandleFunc("/api/alerts", h.handleAddAlert).Methods(http.MethodPost)
	r.HandleFunc("/api/alerts/events", h.handleAlertEvents).Methods(http.MethodGet)
	r.HandleFunc("/api/alerts/{name}", h.handleDeleteAlert).Methods(http.MethodDelete)
	r.HandleFunc("/api/alerts/{name}/reset", h.handleResetAlert).Methods(http.MethodPost)
	return r
}

// Serve starts the API server on addr.
func (h *Handler) Serve(addr string) *http.Server {
	srv := &http.Server{Addr: addr, Handler: h.Router()}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn().Err(err).Msg("encode response failed")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// parseTime accepts RFC3339 or epoch milliseconds.
func parseTime(field string) (time.Time, error) {
	if parsed, err := time.Parse(time.RFC3339, field); err == nil {
		return parsed.UTC(), nil
	}
	ms, err := strconv.ParseInt(field, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("time %q is neither RFC3339 nor epoch millis", field)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// parseRange reads start/end query params, defaulting to the last hour.
func parseRange(r *http.Request) (start, end time.Time, err error) {
	end = time.Now().UTC()
	if raw := r.URL.Query().Get("end"); raw != "" {
		if end, err = parseTime(raw); err != nil {
			return
		}
	}
	start = end.Add(-time.Hour)
	if raw := r.URL.Query().Get("start"); raw != "" {
		if start, err = parseTime(raw); err != nil {
			return
		}
	}
	if end.Before(start) {
		err = fmt.Errorf("end precedes start")
	}
	return
}

func (h *Handler) parseGranularity(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("granularity")
	if raw == "" {
		return h.granularity, nil
	}
	return config.ParseGranularity(raw)
}

type tickJSON struct {
	Ts     time.Time `json:"ts"`
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Qty    float64   `json:"qty"`
}

func (h *Handler) handleTicks(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("symbol is required"))
		return
	}
	start, end, err := parseRange(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	ticks, err := h.pipeline.Ticks(r.Context(), symbol, start, end)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]tickJSON, len(ticks))
	for i, tk := range ticks {
		out[i] = tickJSON{Ts: tk.Ts, Symbol: tk.Symbol, Price: tk.Price, Qty: tk.Qty}
	}
	h.writeJSON(w, http.StatusOK, out)
}

type barJSON struct {
	Start  time.Time `json:"start"`
	Symbol string    `json:"symbol"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

func toBarJSON(bars []market.Bar) []barJSON {
	out := make([]barJSON, len(bars))
	for i, b := range bars {
		out[i] = barJSON{Start: b.Start, Symbol: b.Symbol, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
	}
	return out
}

func (h *Handler) handleBars(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("symbol is required"))
		return
	}
	start, end, err := parseRange(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	granularity, err := h.parseGranularity(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	bars, err := h.pipeline.Bars(r.Context(), symbol, start, end, granularity)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toBarJSON(bars))
}

// pointJSON carries NaN-safe sample values: undefined points (rolling window
// warmup) serialize as null, never as zero.
type pointJSON struct {
	Ts    time.Time `json:"ts"`
	Value *float64  `json:"value"`
}

func toPointJSON(points []market.Point) []pointJSON {
	out := make([]pointJSON, len(points))
	for i, p := range points {
		out[i] = pointJSON{Ts: p.Ts}
		if !math.IsNaN(p.Value) && !math.IsInf(p.Value, 0) {
			v := p.Value
			out[i].Value = &v
		}
	}
	return out
}

type adfJSON struct {
	Stat   float64 `json:"stat"`
	PValue float64 `json:"p_value"`
}

type pairJSON struct {
	SymbolY    string      `json:"symbol_y"`
	SymbolX    string      `json:"symbol_x"`
	HedgeRatio float64     `json:"hedge_ratio"`
	Spread     []pointJSON `json:"spread"`
	ZScore     []pointJSON `json:"zscore"`
	// ADF is null when the aligned series is too short for the test.
	ADF *adfJSON `json:"adf"`
}

func (h *Handler) handlePair(w http.ResponseWriter, r *http.Request) {
	symbolY := r.URL.Query().Get("symbol_y")
	symbolX := r.URL.Query().Get("symbol_x")
	if symbolY == "" || symbolX == "" {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("symbol_y and symbol_x are required"))
		return
	}
	start, end, err := parseRange(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	granularity, err := h.parseGranularity(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	window := h.window
	if raw := r.URL.Query().Get("window"); raw != "" {
		if window, err = strconv.Atoi(raw); err != nil || window < 2 {
			h.writeError(w, http.StatusBadRequest, fmt.Errorf("window must be an integer >= 2"))
			return
		}
	}

	snap, err := h.pipeline.Pair(r.Context(), symbolY, symbolX, start, end, granularity, window)
	if err != nil {
		if errors.Is(err, analytics.ErrInsufficientData) {
			h.writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	out := pairJSON{
		SymbolY:    snap.SymbolY,
		SymbolX:    snap.SymbolX,
		HedgeRatio: snap.HedgeRatio,
		Spread:     toPointJSON(snap.Spread),
		ZScore:     toPointJSON(snap.ZScore),
	}
	if !math.IsNaN(snap.ADFStat) {
		out.ADF = &adfJSON{Stat: snap.ADFStat, PValue: snap.ADFPValue}
	}
	h.writeJSON(w, http.StatusOK, out)
}

type uploadResponse struct {
	Uploaded int `json:"uploaded"`
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	bars, err := export.ReadBarsCSV(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	n := h.pipeline.UploadBars(bars)
	h.log.Info().Int("bars", n).Msg("accepted bar upload")
	h.writeJSON(w, http.StatusOK, uploadResponse{Uploaded: n})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("symbol is required"))
		return
	}
	start, end, err := parseRange(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		kind = "ticks"
	}

	switch kind {
	case "ticks":
		ticks, err := h.pipeline.Ticks(r.Context(), symbol, start, end)
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, err)
			return
		}
		h.streamExport(w, format, symbol, func() error { return export.WriteTicksCSV(w, ticks) }, func() error { return export.WriteTicksParquet(w, ticks) })
	case "bars":
		granularity, err := h.parseGranularity(r)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		bars, err := h.pipeline.Bars(r.Context(), symbol, start, end, granularity)
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, err)
			return
		}
		h.streamExport(w, format, symbol, func() error { return export.WriteBarsCSV(w, bars) }, func() error { return export.WriteBarsParquet(w, bars) })
	default:
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("kind must be ticks or bars"))
	}
}

func (h *Handler) streamExport(w http.ResponseWriter, format, symbol string, writeCSV, writeParquet func() error) {
	var err error
	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", symbol))
		err = writeCSV()
	case "parquet":
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.parquet", symbol))
		err = writeParquet()
	default:
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("format must be csv or parquet"))
		return
	}
	if err != nil {
		h.log.Warn().Err(err).Msg("export stream failed")
	}
}

type addAlertRequest struct {
	Name      string          `json:"name"`
	Symbol    string          `json:"symbol"`
	Condition alert.Condition `json:"condition"`
	Message   string          `json:"message"`
}

func (h *Handler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.pipeline.Alerts().Alerts())
}

func (h *Handler) handleAddAlert(w http.ResponseWriter, r *http.Request) {
	var req addAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("decode alert: %w", err))
		return
	}
	if err := h.pipeline.Alerts().Add(req.Name, req.Symbol, req.Condition, req.Message); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, req)
}

func (h *Handler) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	h.pipeline.Alerts().Remove(mux.Vars(r)["name"])
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleResetAlert(w http.ResponseWriter, r *http.Request) {
	h.pipeline.Alerts().Reset(mux.Vars(r)["name"])
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAlertEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		var err error
		if limit, err = strconv.Atoi(raw); err != nil {
			h.writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be an integer"))
			return
		}
	}
	h.writeJSON(w, http.StatusOK, h.pipeline.Alerts().Events(limit))
}
