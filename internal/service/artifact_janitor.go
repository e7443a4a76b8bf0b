package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"synxronmarket/internal/metrics"
)

const janitorBatchSize = 100

// ArtifactJanitor удаляет временные артефакты, оставшиеся у версий
// в конечном статусе после неудачного удаления
type ArtifactJanitor struct {
	versions  VersionRepository
	artifacts *ArtifactService
	interval  time.Duration
	log       *zap.Logger
}

func NewArtifactJanitor(versions VersionRepository, artifacts *ArtifactService, interval time.Duration, log *zap.Logger) *ArtifactJanitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ArtifactJanitor{
		versions:  versions,
		artifacts: artifacts,
		interval:  interval,
		log:       log,
	}
}

// Run запускает очистку по тикеру до отмены контекста
func (j *ArtifactJanitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := j.Sweep(ctx); err != nil {
				j.log.Error("artifact sweep failed", zap.Error(err))
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Sweep один проход очистки. Возвращает число очищенных версий
func (j *ArtifactJanitor) Sweep(ctx context.Context) (int, error) {
	stale, err := j.versions.ListStaleTempArtifacts(ctx, janitorBatchSize)
	if err != nil {
		return 0, err
	}

	cleaned := 0
	for _, v := range stale {
		if v.TempStoragePath == nil {
			continue
		}
		bucket := j.artifacts.TempBucket()
		if v.TempStorageBucket != nil && *v.TempStorageBucket != "" {
			bucket = *v.TempStorageBucket
		}

		if err := j.artifacts.Delete(ctx, *v.TempStoragePath, bucket); err != nil {
			metrics.CleanupFailuresTotal.Inc()
			j.log.Warn("failed to delete stale artifact",
				zap.String("version_id", v.ID.String()), zap.String("path", *v.TempStoragePath), zap.Error(err))
			continue
		}
		if err := j.versions.ClearTempPath(ctx, v.ID); err != nil {
			j.log.Warn("failed to clear temp path", zap.String("version_id", v.ID.String()), zap.Error(err))
			continue
		}
		cleaned++
	}

	if cleaned > 0 {
		j.log.Info("stale artifacts removed", zap.Int("count", cleaned))
	}
	return cleaned, nil
}
