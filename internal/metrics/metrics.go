package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SubmissionsTotal количество отправок пакетов по результату
	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synxron_submissions_total",
			Help: "Total number of plugin package submissions",
		},
		[]string{"result"},
	)

	// ReviewDecisionsTotal количество решений ревьюеров
	ReviewDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synxron_review_decisions_total",
			Help: "Total number of applied review decisions",
		},
		[]string{"decision"},
	)

	// DownloadsTotal количество успешных разрешений версии для скачивания
	DownloadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "synxron_downloads_total",
			Help: "Total number of resolved plugin downloads",
		},
	)

	// CleanupFailuresTotal ошибки компенсирующей очистки артефактов
	CleanupFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "synxron_cleanup_failures_total",
			Help: "Total number of failed compensating cleanup steps",
		},
	)

	// BackgroundTaskFailuresTotal ошибки фоновых задач
	BackgroundTaskFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synxron_background_task_failures_total",
			Help: "Total number of failed or dropped background tasks",
		},
		[]string{"task"},
	)

	// ArtifactOperationDuration длительность операций с хранилищем артефактов
	ArtifactOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "synxron_artifact_operation_duration_seconds",
			Help:    "Duration of artifact store operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"operation"},
	)
)

// Register регистрирует все метрики в реестре
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		SubmissionsTotal,
		ReviewDecisionsTotal,
		DownloadsTotal,
		CleanupFailuresTotal,
		BackgroundTaskFailuresTotal,
		ArtifactOperationDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
