package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the answer pipeline. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	AnswersTotal       *prometheus.CounterVec
	AnswerDuration     *prometheus.HistogramVec
	StageFailuresTotal *prometheus.CounterVec
	FeedbackTotal      *prometheus.CounterVec
	ReloadsTotal       *prometheus.CounterVec
	IndexedChunks      prometheus.Gauge
}

// New registers the twind_* collectors with reg.
//
//   - twind_answers_total{path}
//   - twind_answer_duration_seconds{path}
//   - twind_stage_failures_total{stage}
//   - twind_feedback_total{feedback}
//   - twind_reloads_total{result}
//   - twind_indexed_chunks
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AnswersTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "twind_answers_total",
				Help: "Answers produced, by pipeline path.",
			},
			[]string{"path"},
		),
		AnswerDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "twind_answer_duration_seconds",
				Help:    "Time to produce an answer, by pipeline path.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"path"},
		),
		StageFailuresTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "twind_stage_failures_total",
				Help: "Pipeline stage failures that triggered a fallback.",
			},
			[]string{"stage"},
		),
		FeedbackTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "twind_feedback_total",
				Help: "Feedback submissions, by kind.",
			},
			[]string{"feedback"},
		),
		ReloadsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "twind_reloads_total",
				Help: "Profile index reloads, by result.",
			},
			[]string{"result"},
		),
		IndexedChunks: f.NewGauge(prometheus.GaugeOpts{
			Name: "twind_indexed_chunks",
			Help: "Profile chunks written by the last reload.",
		}),
	}
}

func (m *Metrics) ObserveAnswer(path string, d time.Duration) {
	if m == nil {
		return
	}
	m.AnswersTotal.WithLabelValues(path).Inc()
	m.AnswerDuration.WithLabelValues(path).Observe(d.Seconds())
}

func (m *Metrics) StageFailed(stage string) {
	if m == nil {
		return
	}
	m.StageFailuresTotal.WithLabelValues(stage).Inc()
}

func (m *Metrics) Feedback(kind string) {
	if m == nil {
		return
	}
	m.FeedbackTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) Reloaded(chunks int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ReloadsTotal.WithLabelValues("error").Inc()
		return
	}
	m.ReloadsTotal.WithLabelValues("ok").Inc()
	m.IndexedChunks.Set(float64(chunks))
}
