package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewTimer(t *testing.T) {
	timer := NewTimer()

	if timer == nil {
		t.Fatal("NewTimer() returned nil")
	}
	if timer.start.IsZero() {
		t.Error("NewTimer() start time is zero")
	}
}

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()

	sleepDuration := 100 * time.Millisecond
	time.Sleep(sleepDuration)

	duration := timer.Duration()
	if duration < sleepDuration {
		t.Errorf("Timer.Duration() = %v, want >= %v", duration, sleepDuration)
	}
}

func TestTimerObserveDuration(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration histogram",
		Buckets: prometheus.DefBuckets,
	})

	timer := NewTimer()
	time.Sleep(50 * time.Millisecond)
	timer.ObserveDuration(histogram)

	m := &dto.Metric{}
	if err := histogram.Write(m); err != nil {
		t.Fatalf("failed to read histogram: %v", err)
	}
	if m.GetHistogram().GetSampleCount() != 1 {
		t.Errorf("expected 1 observation, got %d", m.GetHistogram().GetSampleCount())
	}
	if m.GetHistogram().GetSampleSum() < 0.05 {
		t.Errorf("expected at least 50ms recorded, got %fs", m.GetHistogram().GetSampleSum())
	}
}
