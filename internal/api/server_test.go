package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"osintwarn/internal/config"
	"osintwarn/internal/engine"
	"osintwarn/internal/history"
	"osintwarn/internal/indicators"
	"osintwarn/internal/logging"
	"osintwarn/internal/metrics"
	"osintwarn/internal/model"
)

const testDefinitions = `
indicators:
  - id: ind-1
    description: desc
    data_signals: [a, b, c]
    pir: 2
    coa: mdcoa
    region: strait
  - id: ind-2
    description: travel bans
    data_signals: [travel]
    pir: 1
    coa: mlcoa
`

func newTestServer(t *testing.T) (*Server, *history.Store) {
	t.Helper()
	defs, err := indicators.Parse([]byte(testDefinitions))
	require.NoError(t, err)
	h := history.NewStore(10)
	s := New(Options{
		Config:      config.DefaultConfig(),
		Definitions: defs,
		Engine:      engine.NewEngine(defs),
		History:     h,
		Logger:      logging.Discard(),
		Version:     "test",
	})
	return s, h
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestGetIndicators(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s.Handler(), http.MethodGet, "/indicators", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Indicators []map[string]any `json:"indicators"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Indicators, 2)
	assert.Equal(t, "ind-1", resp.Indicators[0]["id"])
	assert.Equal(t, "strait", resp.Indicators[0]["region"])
	assert.Equal(t, []any{"a", "b", "c"}, resp.Indicators[0]["data_signals"])
	assert.Equal(t, "ind-2", resp.Indicators[1]["id"])
}

func TestGetIndicatorsWithNumericKeys(t *testing.T) {
	defs, err := indicators.Parse([]byte(`
indicators:
  - id: lv
    levels: {1: low, 2: high}
`))
	require.NoError(t, err)
	s := New(Options{Definitions: defs, Engine: engine.NewEngine(defs), Logger: logging.Discard()})

	w := do(t, s.Handler(), http.MethodGet, "/indicators", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Body.Bytes())
	var resp struct {
		Indicators []map[string]any `json:"indicators"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Indicators, 1)
	assert.Equal(t, map[string]any{"1": "low", "2": "high"}, resp.Indicators[0]["levels"])
}

func TestWriteJSONEncodeFailure(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, map[string]any{"ch": make(chan int)})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Detail)
}

func TestGetIndicatorByID(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s.Handler(), http.MethodGet, "/indicators/ind-2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var def model.IndicatorDefinition
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &def))
	assert.Equal(t, "travel bans", def.Description)

	w = do(t, s.Handler(), http.MethodGet, "/indicators/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPostEventMatched(t *testing.T) {
	s, h := newTestServer(t)
	w := do(t, s.Handler(), http.MethodPost, "/event", `{"indicator_id":"ind-1","payload":{"ships":4}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["matched"])
	assert.Equal(t, "ind-1", resp["indicator_id"])
	assert.Equal(t, "desc", resp["description"])
	assert.Equal(t, 0.6, resp["confidence"])
	assert.Equal(t, engine.TaskSARImagery, resp["recommended_task"])
	assert.NotContains(t, resp, "reason")

	records := h.List(0)
	require.Len(t, records, 1)
	assert.Equal(t, SourceHTTP, records[0].Source)
	assert.Equal(t, "ind-1", records[0].IndicatorID)

	w = do(t, s.Handler(), http.MethodGet, "/evaluations", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "ships")
}

func TestPostEventUnmatched(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s.Handler(), http.MethodPost, "/event", `{"indicator_id":"nope"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Unknown indicator ID: nope", resp.Detail)
}

func TestPostEventValidation(t *testing.T) {
	s, h := newTestServer(t)
	for _, body := range []string{
		``,
		`not json`,
		`{}`,
		`{"indicator_id": 7}`,
		`{"indicator_id":"ind-1","payload":[1,2]}`,
	} {
		w := do(t, s.Handler(), http.MethodPost, "/event", body)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "body %q", body)
	}
	assert.Equal(t, 0, h.Len())
}

func TestPostEventEmptyIndicatorID(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s.Handler(), http.MethodPost, "/event", `{"indicator_id":""}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Unknown indicator ID: ")
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s.Handler(), http.MethodGet, "/event", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s.Handler(), http.MethodPost, "/indicators", "{}").Code)
}

func TestEvaluationsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	handler := s.Handler()
	do(t, handler, http.MethodPost, "/event", `{"indicator_id":"ind-1"}`)
	do(t, handler, http.MethodPost, "/event", `{"indicator_id":"nope"}`)

	w := do(t, handler, http.MethodGet, "/evaluations?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Evaluations []model.EvaluationRecord `json:"evaluations"`
		Count       int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.False(t, resp.Evaluations[0].Evaluation.Matched)
	assert.Equal(t, "Unknown indicator ID: nope", resp.Evaluations[0].Evaluation.Reason)

	assert.Equal(t, http.StatusBadRequest, do(t, handler, http.MethodGet, "/evaluations?since=yesterday", "").Code)
}

func TestStatusAndHealth(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s.Handler(), http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st statusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, 2, st.Indicators)
	assert.Equal(t, 0, st.Evaluations)
	assert.Equal(t, "test", st.Version)
	assert.Equal(t, config.SourceFile, st.Definitions)

	w = do(t, s.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	do(t, s.Handler(), http.MethodPost, "/event", `{"indicator_id":"ind-1"}`)
	do(t, s.Handler(), http.MethodPost, "/event", `{"indicator_id":"nope"}`)
	w = do(t, s.Handler(), http.MethodGet, "/status", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, 2, st.Evaluations)
}

func TestStartFailsOnBusyAddress(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := config.DefaultConfig()
	cfg.API.Addr = ln.Addr().String()
	s := New(Options{Config: cfg, Logger: logging.Discard()})
	srv, errCh, err := Start(context.Background(), s)
	require.Error(t, err)
	assert.Nil(t, srv)
	assert.Nil(t, errCh)
}

func TestStartServesUntilCancelled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.API.Addr = "127.0.0.1:0"
	s := New(Options{Config: cfg, Logger: logging.Discard()})
	ctx, cancel := context.WithCancel(context.Background())
	srv, errCh, err := Start(ctx, s)
	require.NoError(t, err)

	resp, err := http.Get("http://" + srv.Addr + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	for err := range errCh {
		t.Fatalf("unexpected serve error: %v", err)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	handler := s.Handler()
	do(t, handler, http.MethodPost, "/event", `{"indicator_id":"ind-2"}`)
	w := do(t, handler, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "osintwarn_evaluations_total")
}

func TestRecoveryMiddleware(t *testing.T) {
	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "other", "500")
	before := testutil.ToFloat64(counter)

	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), Logging(nil), Recovery(nil))
	w := do(t, h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(counter)-before)
}
