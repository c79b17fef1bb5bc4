package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/GoSim-25-26J-441/simtune/pkg/logger"
	"github.com/GoSim-25-26J-441/simtune/pkg/models"
)

func TestHTTPHealthz(t *testing.T) {
	srv := NewHTTPServer(NewStore(0), nil, logger.Discard())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %v", body)
	}
}

func TestHTTPProgressNoRun(t *testing.T) {
	srv := NewHTTPServer(NewStore(0), nil, logger.Discard())
	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodGet, "/v1/progress"},
		{http.MethodGet, "/v1/progress/history"},
		{http.MethodPost, "/v1/run:stop"},
		{http.MethodGet, "/v1/progress/stream"},
	} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s %s: expected 404, got %d", tc.method, tc.path, rec.Code)
		}
	}
}

func TestHTTPProgressAndHistory(t *testing.T) {
	store := NewStore(0)
	newRun(t, store)
	for i := 1; i <= 5; i++ {
		store.Observe(models.Evaluation{Index: i, X: []float64{float64(i)}, Fitness: float64(10 - i), BestFitness: float64(10 - i), Improved: true})
	}
	srv := NewHTTPServer(store, nil, logger.Discard())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/progress", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var p Progress
	if err := json.NewDecoder(rec.Body).Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Run.ID != "run-test" || p.Run.Evaluations != 5 || *p.Run.BestFitness != 5 {
		t.Fatalf("unexpected progress %+v", p.Run)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/progress/history?limit=2", nil))
	var body struct {
		Evaluations []models.Evaluation `json:"evaluations"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Evaluations) != 2 || body.Evaluations[0].Index != 4 {
		t.Fatalf("expected evaluations 4 and 5, got %+v", body.Evaluations)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/progress/history?limit=x", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestHTTPStop(t *testing.T) {
	store := NewStore(0)
	ctx := newRun(t, store)
	srv := NewHTTPServer(store, nil, logger.Discard())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/run:stop", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/run:stop", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if ctx.Err() == nil {
		t.Fatal("expected run context canceled")
	}

	store.Finish(models.RunStatusInterrupted, "interrupted", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/run:stop", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 after finish, got %d", rec.Code)
	}
}

func TestHTTPMetricsMount(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("simtune_objective_evaluations_total 3\n"))
	})
	srv := NewHTTPServer(NewStore(0), metrics, logger.Discard())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "simtune_objective_evaluations_total") {
		t.Fatalf("expected metrics body, got %q", rec.Body.String())
	}
}

func TestHTTPStream(t *testing.T) {
	store := NewStore(0)
	newRun(t, store)
	ts := httptest.NewServer(NewHTTPServer(store, nil, logger.Discard()).Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/progress/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg StreamMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != MessageProgress || msg.Progress == nil || msg.Progress.Run.ID != "run-test" {
		t.Fatalf("expected initial progress frame, got %+v", msg)
	}

	// The subscription exists once the initial frame is written.
	store.Observe(models.Evaluation{Index: 1, X: []float64{10, 1}, Fitness: 5, BestFitness: 5, Improved: true})
	msg = StreamMessage{}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != MessageEvaluation || msg.Evaluation == nil || msg.Evaluation.Fitness != 5 {
		t.Fatalf("expected evaluation frame, got %+v", msg)
	}

	store.Finish(models.RunStatusCompleted, "converged", nil)
	msg = StreamMessage{}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != MessageFinished || msg.Progress.Run.Status != models.RunStatusCompleted {
		t.Fatalf("expected finished frame, got %+v", msg)
	}
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close, got %v", err)
	}
}
