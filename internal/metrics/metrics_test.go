package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var pb dto.Metric
	if err := c.Write(&pb); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if pb.Counter != nil {
		return pb.GetCounter().GetValue()
	}
	return pb.GetGauge().GetValue()
}

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveAnswer("enhanced", 120*time.Millisecond)
	m.ObserveAnswer("enhanced", 80*time.Millisecond)
	m.StageFailed("retrieve_enhanced")
	m.Feedback("positive")
	m.Reloaded(12, nil)
	m.Reloaded(0, errors.New("boom"))

	if got := value(t, m.AnswersTotal.WithLabelValues("enhanced")); got != 2 {
		t.Errorf("answers = %v, want 2", got)
	}
	if got := value(t, m.StageFailuresTotal.WithLabelValues("retrieve_enhanced")); got != 1 {
		t.Errorf("stage failures = %v, want 1", got)
	}
	if got := value(t, m.FeedbackTotal.WithLabelValues("positive")); got != 1 {
		t.Errorf("feedback = %v, want 1", got)
	}
	if got := value(t, m.IndexedChunks); got != 12 {
		t.Errorf("indexed chunks = %v, want 12", got)
	}
	if got := value(t, m.ReloadsTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("failed reloads = %v, want 1", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveAnswer("basic", time.Second)
	m.StageFailed("x")
	m.Feedback("negative")
	m.Reloaded(1, nil)
}
