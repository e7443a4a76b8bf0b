package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"synxronmarket/internal/domain"
	"synxronmarket/internal/metrics"
)

const (
	defaultReviewTimeout = 30 * time.Second
	latestUpdateAttempts = 5
)

type ReviewService struct {
	plugins   PluginRepository
	versions  VersionRepository
	artifacts *ArtifactService
	safety    SafetyCheck
	timeout   time.Duration
	log       *zap.Logger
	now       func() time.Time
}

func NewReviewService(
	plugins PluginRepository,
	versions VersionRepository,
	artifacts *ArtifactService,
	safety SafetyCheck,
	timeout time.Duration,
	log *zap.Logger,
) *ReviewService {
	if timeout <= 0 {
		timeout = defaultReviewTimeout
	}
	if safety == nil {
		safety = SafetyChecks{}
	}
	return &ReviewService{
		plugins:   plugins,
		versions:  versions,
		artifacts: artifacts,
		safety:    safety,
		timeout:   timeout,
		log:       log,
		now:       time.Now,
	}
}

// ListPending версии, ожидающие решения, старые первыми
func (s *ReviewService) ListPending(ctx context.Context, limit, offset int) ([]domain.PluginVersion, error) {
	return s.versions.ListByStatus(ctx, domain.PendingStatuses, limit, offset)
}

// Decide применяет решение ревьюера к ожидающей версии
func (s *ReviewService) Decide(ctx context.Context, versionID uuid.UUID, req domain.ReviewRequest) (*domain.PluginDetails, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	details, err := s.decide(ctx, versionID, req)
	if err != nil {
		err = deadlineError(ctx, err, "review", s.timeout)
		s.log.Warn("review decision failed",
			zap.String("version_id", versionID.String()),
			zap.String("decision", string(req.Decision)),
			zap.Error(err))
		return nil, err
	}

	metrics.ReviewDecisionsTotal.WithLabelValues(strings.ToLower(string(req.Decision))).Inc()
	s.log.Info("review decision applied",
		zap.String("version_id", versionID.String()),
		zap.String("decision", string(req.Decision)),
		zap.String("reviewer", req.ReviewerID))
	return details, nil
}

func (s *ReviewService) decide(ctx context.Context, versionID uuid.UUID, req domain.ReviewRequest) (*domain.PluginDetails, error) {
	if req.Decision != domain.DecisionPublish && req.Decision != domain.DecisionReject {
		return nil, fmt.Errorf("%w: unknown decision %q", domain.ErrInvalidTransition, req.Decision)
	}

	version, err := s.versions.GetByID(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if !version.Status.IsPending() {
		return nil, fmt.Errorf("%w: version %s is %s", domain.ErrInvalidTransition, version.ID, version.Status)
	}

	plugin, err := s.plugins.GetByID(ctx, version.PluginID)
	if err != nil {
		return nil, err
	}

	if req.Decision == domain.DecisionPublish {
		return s.publish(ctx, plugin, version, req.ReviewerID)
	}
	return s.reject(ctx, plugin, version, req.ReviewerID, req.Reason)
}

// publish проверяет версию, переносит артефакт и делает версию последней.
// Проверка безопасности выполняется до любых изменений
func (s *ReviewService) publish(ctx context.Context, plugin *domain.Plugin, version *domain.PluginVersion, reviewer string) (*domain.PluginDetails, error) {
	if err := s.safety.Check(ctx, version); err != nil {
		return nil, fmt.Errorf("%w: safety check failed: %v", domain.ErrInvalidTransition, err)
	}
	if version.TempStoragePath == nil {
		return nil, fmt.Errorf("%w: version %s has no staged artifact", domain.ErrStorageFailure, version.ID)
	}

	dest, err := s.artifacts.Promote(ctx, *version.TempStoragePath, plugin.PackageID, version.Version)
	if err != nil {
		return nil, err
	}

	art := domain.PublishedArtifact{
		StoragePath:   dest,
		StorageBucket: s.artifacts.PermanentBucket(),
		ReviewedBy:    reviewer,
		ReviewedAt:    s.now().UTC(),
	}
	// Версия и ссылка плагина на нее меняются в одной транзакции
	ok, err := s.versions.MarkPublished(ctx, version.ID, art)
	if err != nil {
		// Постоянная копия остается: повторная публикация подхватит ее
		return nil, err
	}
	if !ok {
		s.discardLostPublish(ctx, version.ID, dest)
		return nil, fmt.Errorf("%w: version %s was decided concurrently", domain.ErrInvalidTransition, version.ID)
	}

	version.Status = domain.VersionStatusPublished
	version.StoragePath = &art.StoragePath
	version.StorageBucket = &art.StorageBucket
	version.TempStoragePath = nil
	version.TempStorageBucket = nil
	version.ReviewedBy = &art.ReviewedBy
	version.ReviewedAt = &art.ReviewedAt
	version.PublishedAt = &art.ReviewedAt
	plugin.LatestVersionID = &version.ID
	plugin.Status = domain.PluginStatusPublished
	plugin.LockVersion++

	return &domain.PluginDetails{Plugin: plugin, Version: version}, nil
}

// discardLostPublish убирает постоянную копию, если версию параллельно отклонили.
// Если параллельно победила публикация, копия принадлежит ей
func (s *ReviewService) discardLostPublish(ctx context.Context, versionID uuid.UUID, dest string) {
	current, err := s.versions.GetByID(ctx, versionID)
	if err != nil {
		// Без подтвержденного состояния копию не трогаем: путь общий с победившей публикацией
		s.log.Warn("failed to re-read version after lost publish, keeping artifact",
			zap.String("version_id", versionID.String()), zap.String("path", dest), zap.Error(err))
		return
	}
	if current.Status == domain.VersionStatusPublished {
		return
	}
	if err := s.artifacts.Delete(context.WithoutCancel(ctx), dest, s.artifacts.PermanentBucket()); err != nil {
		metrics.CleanupFailuresTotal.Inc()
		s.log.Error("failed to remove artifact of lost publish", zap.String("path", dest), zap.Error(err))
	}
}

func (s *ReviewService) reject(ctx context.Context, plugin *domain.Plugin, version *domain.PluginVersion, reviewer, reason string) (*domain.PluginDetails, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: rejection reason is required", domain.ErrInvalidTransition)
	}

	at := s.now().UTC()
	ok, err := s.versions.MarkRejected(ctx, version.ID, reviewer, reason, at)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: version %s was decided concurrently", domain.ErrInvalidTransition, version.ID)
	}

	version.Status = domain.VersionStatusRejected
	version.RejectionReason = &reason
	version.ReviewedBy = &reviewer
	version.ReviewedAt = &at

	if version.TempStoragePath != nil {
		bucket := s.artifacts.TempBucket()
		if version.TempStorageBucket != nil && *version.TempStorageBucket != "" {
			bucket = *version.TempStorageBucket
		}
		if err := s.artifacts.Delete(ctx, *version.TempStoragePath, bucket); err != nil {
			// Путь остается в записи, артефакт удалит ArtifactJanitor
			metrics.CleanupFailuresTotal.Inc()
			s.log.Warn("failed to delete rejected artifact", zap.String("path", *version.TempStoragePath), zap.Error(err))
		} else if err := s.versions.ClearTempPath(ctx, version.ID); err != nil {
			s.log.Warn("failed to clear temp path", zap.String("version_id", version.ID.String()), zap.Error(err))
		} else {
			version.TempStoragePath = nil
			version.TempStorageBucket = nil
		}
	}

	switch {
	case plugin.LatestVersionID != nil && *plugin.LatestVersionID == version.ID:
		if err := s.reassignLatest(ctx, plugin, version.ID); err != nil {
			return nil, err
		}
	case plugin.LatestVersionID == nil:
		if err := s.settleUnpublished(ctx, plugin); err != nil {
			return nil, err
		}
	}

	return &domain.PluginDetails{Plugin: plugin, Version: version}, nil
}

// Flag снимает опубликованную версию с выдачи
func (s *ReviewService) Flag(ctx context.Context, versionID uuid.UUID, reason string) (*domain.PluginDetails, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: flag reason is required", domain.ErrInvalidTransition)
	}

	version, err := s.versions.GetByID(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if version.Status != domain.VersionStatusPublished {
		return nil, fmt.Errorf("%w: only published versions can be flagged, version %s is %s",
			domain.ErrInvalidTransition, version.ID, version.Status)
	}

	ok, err := s.versions.MarkFlagged(ctx, version.ID, reason)
	if err != nil {
		return nil, deadlineError(ctx, err, "flag", s.timeout)
	}
	if !ok {
		return nil, fmt.Errorf("%w: version %s changed concurrently", domain.ErrInvalidTransition, version.ID)
	}
	version.Status = domain.VersionStatusFlagged
	version.IsFlagged = true
	version.FlagReason = &reason

	plugin, err := s.plugins.GetByID(ctx, version.PluginID)
	if err != nil {
		return nil, err
	}
	if err := s.reassignLatest(ctx, plugin, version.ID); err != nil {
		return nil, deadlineError(ctx, err, "flag", s.timeout)
	}

	metrics.ReviewDecisionsTotal.WithLabelValues("flag").Inc()
	s.log.Info("version flagged", zap.String("version_id", version.ID.String()), zap.String("reason", reason))
	return &domain.PluginDetails{Plugin: plugin, Version: version}, nil
}

// Unflag возвращает версию в PUBLISHED. Если у плагина не осталось
// последней версии, она снова становится последней
func (s *ReviewService) Unflag(ctx context.Context, versionID uuid.UUID) (*domain.PluginDetails, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	version, err := s.versions.GetByID(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if version.Status != domain.VersionStatusFlagged {
		return nil, fmt.Errorf("%w: version %s is not flagged", domain.ErrInvalidTransition, version.ID)
	}

	ok, err := s.versions.MarkUnflagged(ctx, version.ID)
	if err != nil {
		return nil, deadlineError(ctx, err, "unflag", s.timeout)
	}
	if !ok {
		return nil, fmt.Errorf("%w: version %s changed concurrently", domain.ErrInvalidTransition, version.ID)
	}
	version.Status = domain.VersionStatusPublished
	version.IsFlagged = false
	version.FlagReason = nil

	plugin, err := s.plugins.GetByID(ctx, version.PluginID)
	if err != nil {
		return nil, err
	}
	err = s.updateLatest(ctx, plugin,
		func(p *domain.Plugin) bool { return p.LatestVersionID == nil },
		func(context.Context) (*uuid.UUID, error) { return &version.ID, nil })
	if err != nil {
		return nil, deadlineError(ctx, err, "unflag", s.timeout)
	}

	metrics.ReviewDecisionsTotal.WithLabelValues("unflag").Inc()
	s.log.Info("version unflagged", zap.String("version_id", version.ID.String()))
	return &domain.PluginDetails{Plugin: plugin, Version: version}, nil
}

// reassignLatest выбирает последней самую новую опубликованную версию кроме
// снятой. Если такой нет, ссылка очищается и плагин получает статус REJECTED.
// Замена нужна, только пока плагин все еще ссылается на снятую версию
func (s *ReviewService) reassignLatest(ctx context.Context, plugin *domain.Plugin, demoted uuid.UUID) error {
	return s.updateLatest(ctx, plugin,
		func(p *domain.Plugin) bool {
			return p.LatestVersionID != nil && *p.LatestVersionID == demoted
		},
		func(ctx context.Context) (*uuid.UUID, error) {
			versions, err := s.versions.ListByPlugin(ctx, plugin.ID)
			if err != nil {
				return nil, err
			}
			return newestDownloadable(versions, demoted), nil
		})
}

// updateLatest условно меняет ссылку плагина на последнюю версию. needed решает
// по текущему состоянию плагина, нужна ли замена, pick выбирает новую ссылку.
// Если плагин изменился между чтением и записью, он перечитывается и попытка повторяется
func (s *ReviewService) updateLatest(
	ctx context.Context,
	plugin *domain.Plugin,
	needed func(p *domain.Plugin) bool,
	pick func(ctx context.Context) (*uuid.UUID, error),
) error {
	for attempt := 0; attempt < latestUpdateAttempts; attempt++ {
		if !needed(plugin) {
			return nil
		}

		next, err := pick(ctx)
		if err != nil {
			return err
		}

		ok, err := s.plugins.SetLatestVersion(ctx, plugin.ID, next, plugin.LockVersion)
		if err != nil {
			return err
		}
		if ok {
			plugin.LatestVersionID = next
			plugin.LockVersion++
			if next != nil {
				plugin.Status = domain.PluginStatusPublished
			} else {
				plugin.Status = domain.PluginStatusRejected
			}
			return nil
		}

		s.log.Debug("plugin changed concurrently, retrying latest update",
			zap.String("plugin_id", plugin.ID.String()), zap.Int("attempt", attempt+1))
		fresh, err := s.plugins.GetByID(ctx, plugin.ID)
		if err != nil {
			return err
		}
		*plugin = *fresh
	}
	return fmt.Errorf("%w: plugin %s keeps changing concurrently", domain.ErrInvalidTransition, plugin.ID)
}

// settleUnpublished закрывает плагин без опубликованных версий, когда
// на рассмотрении у него больше ничего нет
func (s *ReviewService) settleUnpublished(ctx context.Context, plugin *domain.Plugin) error {
	if plugin.Status == domain.PluginStatusPublished || plugin.Status == domain.PluginStatusRejected {
		return nil
	}

	versions, err := s.versions.ListByPlugin(ctx, plugin.ID)
	if err != nil {
		return err
	}
	for i := range versions {
		if versions[i].Status.IsPending() || versions[i].IsDownloadable() {
			return nil
		}
	}

	ok, err := s.plugins.AdvanceStatus(ctx, plugin.ID, plugin.Status, domain.PluginStatusRejected)
	if err != nil {
		return err
	}
	if ok {
		plugin.Status = domain.PluginStatusRejected
	}
	return nil
}

func newestDownloadable(versions []domain.PluginVersion, exclude uuid.UUID) *uuid.UUID {
	var next *uuid.UUID
	var newest time.Time
	for i := range versions {
		v := &versions[i]
		if v.ID == exclude || !v.IsDownloadable() {
			continue
		}
		if next == nil || v.CreatedAt.After(newest) {
			id := v.ID
			next = &id
			newest = v.CreatedAt
		}
	}
	return next
}
