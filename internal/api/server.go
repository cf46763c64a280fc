package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"osintwarn/internal/config"
	"osintwarn/internal/history"
	"osintwarn/internal/metrics"
	"osintwarn/internal/model"
)

const SourceHTTP = "http"

type Definitions interface {
	Lookup(id string) (model.IndicatorDefinition, bool)
	List() []model.IndicatorDefinition
	Len() int
}

type Evaluator interface {
	Evaluate(ev model.Event) model.Evaluation
}

type Options struct {
	Config      *config.Config
	ConfigPath  string
	Definitions Definitions
	Engine      Evaluator
	History     *history.Store
	Logger      *slog.Logger
	Version     string
}

type Server struct {
	cfg     *config.Config
	path    string
	defs    Definitions
	engine  Evaluator
	history *history.Store
	logger  *slog.Logger
	version string
	started time.Time
}

type statusResponse struct {
	Status      string       `json:"status"`
	Time        string       `json:"time"`
	Uptime      string       `json:"uptime"`
	Version     string       `json:"version"`
	ConfigPath  string       `json:"config_path"`
	Indicators  int          `json:"indicators"`
	Evaluations int          `json:"evaluations"`
	Definitions string       `json:"definitions_source"`
	Ingest      ingestStatus `json:"ingest"`
	Storage     bool         `json:"storage"`
	Metrics     bool         `json:"metrics"`
}

type ingestStatus struct {
	Kafka bool `json:"kafka"`
}

type eventRequest struct {
	IndicatorID *string         `json:"indicator_id"`
	Payload     json.RawMessage `json:"payload"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func New(opts Options) *Server {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	h := opts.History
	if h == nil {
		h = history.NewStore(cfg.History.StoreLimit)
	}
	return &Server{
		cfg:     cfg,
		path:    opts.ConfigPath,
		defs:    opts.Definitions,
		engine:  opts.Engine,
		history: h,
		logger:  opts.Logger,
		version: opts.Version,
		started: time.Now().UTC(),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/indicators", s.handleIndicators)
	mux.HandleFunc("/indicators/", s.handleIndicator)
	mux.HandleFunc("/event", s.handleEvent)
	mux.HandleFunc("/evaluations", s.handleEvaluations)
	if s.cfg.Metrics.Enabled {
		mux.Handle("/metrics", promhttp.Handler())
	}
	// Logging wraps Recovery so recovered panics are counted as 500s.
	return Chain(mux, Logging(s.logger), Recovery(s.logger))
}

// Start binds cfg.API.Addr and serves the API until ctx is cancelled. A bind
// failure is returned directly; later serve failures arrive on the channel.
func Start(ctx context.Context, s *Server) (*http.Server, <-chan error, error) {
	addr := s.cfg.API.Addr
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	if s.logger != nil {
		s.logger.Info("api enabled", "addr", ln.Addr().String())
	}
	httpServer := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if s.logger != nil {
				s.logger.Error("api server error", "err", err)
			}
			errCh <- err
		}
	}()
	return httpServer, errCh, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	count := 0
	if s.defs != nil {
		count = s.defs.Len()
	}
	now := time.Now().UTC()
	writeJSON(w, http.StatusOK, statusResponse{
		Status:      "ok",
		Time:        now.Format(time.RFC3339Nano),
		Uptime:      now.Sub(s.started).Truncate(time.Second).String(),
		Version:     s.version,
		ConfigPath:  s.path,
		Indicators:  count,
		Evaluations: s.history.Len(),
		Definitions: s.cfg.Definitions.Source,
		Ingest:      ingestStatus{Kafka: s.cfg.Ingest.Kafka.Enabled},
		Storage:     s.cfg.Storage.Enabled,
		Metrics:     s.cfg.Metrics.Enabled,
	})
}

func (s *Server) handleIndicators(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	list := []model.IndicatorDefinition{}
	if s.defs != nil {
		list = s.defs.List()
	}
	writeJSON(w, http.StatusOK, map[string]any{"indicators": list})
}

func (s *Server) handleIndicator(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/indicators/")
	if id == "" {
		s.handleIndicators(w, r)
		return
	}
	if s.defs == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Detail: "Indicator not found"})
		return
	}
	def, ok := s.defs.Lookup(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Detail: "Indicator not found"})
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ev, err := s.decodeEvent(w, r)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: err.Error()})
		return
	}
	result := s.engine.Evaluate(ev)
	metrics.ObserveEvaluation(SourceHTTP, result)
	s.history.Record(SourceHTTP, ev, result)
	if !result.Matched {
		if s.logger != nil {
			s.logger.Info("indicator unmatched", "source", SourceHTTP, "reason", result.Reason)
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: result.Reason})
		return
	}
	if s.logger != nil {
		s.logger.Info("indicator matched",
			"source", SourceHTTP,
			"indicator_id", result.IndicatorID,
			"confidence", result.Confidence,
		)
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) decodeEvent(w http.ResponseWriter, r *http.Request) (model.Event, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.API.MaxBodyBytes))
	if err != nil {
		return model.Event{}, errors.New("request body unreadable or too large")
	}
	var req eventRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return model.Event{}, errors.New("request body must be a JSON object with a string indicator_id")
	}
	if req.IndicatorID == nil {
		return model.Event{}, errors.New("indicator_id is required")
	}
	ev := model.Event{IndicatorID: *req.IndicatorID, Payload: map[string]any{}}
	if raw := bytes.TrimSpace(req.Payload); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if err := json.Unmarshal(raw, &ev.Payload); err != nil {
			return model.Event{}, errors.New("payload must be a JSON object")
		}
	}
	return ev, nil
}

func (s *Server) handleEvaluations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	var list []model.EvaluationRecord
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.history.Since(ts)
	} else {
		list = s.history.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"evaluations": list,
		"count":       len(list),
	})
}

// writeJSON encodes before touching the response so an unencodable payload
// becomes a 500 instead of a committed status with an empty body.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("encode response", "err", err)
		status = http.StatusInternalServerError
		data, _ = json.Marshal(errorResponse{Detail: "response could not be encoded"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}
