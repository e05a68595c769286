package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trueframe_jobs_processed_total",
		Help: "Total number of analysis jobs processed, by outcome",
	}, []string{"status"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trueframe_stage_duration_seconds",
		Help:    "Duration of each analysis pipeline stage",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	FramesSampledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trueframe_frames_sampled_total",
		Help: "Total number of frames sampled across all jobs",
	})

	VerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trueframe_verdicts_total",
		Help: "Total number of verdicts produced, by result",
	}, []string{"result"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trueframe_active_workers",
		Help: "Number of workers currently running the analysis pipeline",
	})
)
