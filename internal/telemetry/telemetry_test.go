package telemetry

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"

	"github.com/GoSim-25-26J-441/simtune/pkg/config"
)

func TestSetupDisabled(t *testing.T) {
	tel, err := Setup(nil, io.Discard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tel.MetricsEnabled() {
		t.Fatal("expected metrics disabled")
	}

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}
}

func TestMetricsHandlerExportsInstruments(t *testing.T) {
	tel, err := Setup(&config.Telemetry{Metrics: true}, io.Discard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer tel.Shutdown(context.Background())

	counter, err := otel.Meter("simtune/test").Int64Counter("simtune.test.runs")
	if err != nil {
		t.Fatalf("failed to create counter: %v", err)
	}
	counter.Add(context.Background(), 3)

	srv := httptest.NewServer(tel.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "simtune_test_runs") {
		t.Fatalf("expected counter in scrape output, got:\n%s", body)
	}
}

func TestTracingWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	tel, err := Setup(&config.Telemetry{Tracing: true}, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, span := otel.Tracer("simtune/test").Start(context.Background(), "test.span")
	span.End()

	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}
	if !strings.Contains(buf.String(), "test.span") {
		t.Fatalf("expected span in trace output, got %q", buf.String())
	}
}
