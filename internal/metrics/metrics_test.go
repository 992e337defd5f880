package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/quentinrf/plant-monitor/services/noise-reporter/internal/adapters/memory"
	"github.com/quentinrf/plant-monitor/services/noise-reporter/internal/adapters/mock"
)

type brokenPublisher struct{ *memory.Publisher }

func (brokenPublisher) Publish(ctx context.Context, payload []byte) (string, error) {
	return "", errors.New("unavailable")
}

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return m, reg
}

func TestSensor_RecordsLevel(t *testing.T) {
	m, _ := newTestMetrics(t)
	s := m.Sensor(mock.NewFakeSensor(60.1, 0))

	for i := 0; i < 3; i++ {
		if _, err := s.ReadLevel(context.Background()); err != nil {
			t.Fatalf("ReadLevel failed: %v", err)
		}
	}

	if got := testutil.ToFloat64(m.level); got != 60.1 {
		t.Errorf("expected level gauge 60.1, got %v", got)
	}
	if got := testutil.ToFloat64(m.readings.WithLabelValues("ok")); got != 3 {
		t.Errorf("expected 3 ok readings, got %v", got)
	}
}

func TestPublisher_CountsResults(t *testing.T) {
	m, _ := newTestMetrics(t)
	ctx := context.Background()

	ok := m.Publisher(memory.NewPublisher("t"))
	if _, err := ok.Publish(ctx, []byte(`{}`)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	bad := m.Publisher(brokenPublisher{memory.NewPublisher("t")})
	if _, err := bad.Publish(ctx, []byte(`{}`)); err == nil {
		t.Fatal("expected error from broken publisher")
	}

	if got := testutil.ToFloat64(m.publishes.WithLabelValues("ok")); got != 1 {
		t.Errorf("expected 1 ok publish, got %v", got)
	}
	if got := testutil.ToFloat64(m.publishes.WithLabelValues("error")); got != 1 {
		t.Errorf("expected 1 failed publish, got %v", got)
	}
	if got := testutil.CollectAndCount(m.publishDuration); got != 1 {
		t.Errorf("expected 1 histogram series, got %d", got)
	}
}

func TestPublisher_KeepsDestination(t *testing.T) {
	m, _ := newTestMetrics(t)
	p := m.Publisher(memory.NewPublisher("measurements"))

	if got := p.Destination(); got != "memory://measurements" {
		t.Errorf("unexpected destination %q", got)
	}
}

func TestNew_DoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg); err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := New(reg); err == nil {
		t.Error("expected error registering collectors twice")
	}
}

func TestHandler_ServesMetrics(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.level.Set(42.3)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "noise_reporter_decibel_level 42.3") {
		t.Errorf("expected decibel gauge in output, got:\n%s", body)
	}
}
