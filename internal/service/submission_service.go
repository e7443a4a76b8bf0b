package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"synxronmarket/internal/domain"
	"synxronmarket/internal/metrics"
)

const defaultSubmissionTimeout = 10 * time.Second

// SubmitRequest пакет, присланный разработчиком
type SubmitRequest struct {
	PackageID    string
	Data         []byte
	ReleaseNotes string
}

type SubmissionService struct {
	plugins   PluginRepository
	versions  VersionRepository
	artifacts *ArtifactService
	reader    *PackageReader
	timeout   time.Duration
	log       *zap.Logger
}

func NewSubmissionService(
	plugins PluginRepository,
	versions VersionRepository,
	artifacts *ArtifactService,
	reader *PackageReader,
	timeout time.Duration,
	log *zap.Logger,
) *SubmissionService {
	if timeout <= 0 {
		timeout = defaultSubmissionTimeout
	}
	return &SubmissionService{
		plugins:   plugins,
		versions:  versions,
		artifacts: artifacts,
		reader:    reader,
		timeout:   timeout,
		log:       log,
	}
}

// Submit принимает пакет: новый плагин или новая версия существующего.
// Любая ошибка после загрузки артефакта откатывает записанное
func (s *SubmissionService) Submit(ctx context.Context, req SubmitRequest) (*domain.PluginDetails, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	details, err := s.submit(ctx, req)
	if err != nil {
		err = deadlineError(ctx, err, "submission", s.timeout)
		metrics.SubmissionsTotal.WithLabelValues(strings.ToLower(string(domain.KindOf(err)))).Inc()
		s.log.Warn("submission failed",
			zap.String("package_id", req.PackageID),
			zap.String("kind", string(domain.KindOf(err))),
			zap.Error(err))
		return nil, err
	}

	metrics.SubmissionsTotal.WithLabelValues("success").Inc()
	s.log.Info("package submitted",
		zap.String("package_id", req.PackageID),
		zap.String("version", details.Version.Version),
		zap.String("version_id", details.Version.ID.String()))
	return details, nil
}

func (s *SubmissionService) submit(ctx context.Context, req SubmitRequest) (details *domain.PluginDetails, err error) {
	pkg, err := s.reader.Read(req.Data, req.PackageID)
	if err != nil {
		return nil, err
	}
	if notes := strings.TrimSpace(req.ReleaseNotes); notes != "" {
		pkg.ReleaseNotes = notes
	}

	plugin, err := s.findPlugin(ctx, req.PackageID)
	if err != nil {
		return nil, err
	}
	if plugin != nil {
		if err := s.checkDuplicate(ctx, plugin.ID, pkg.Version); err != nil {
			return nil, err
		}
	}

	undo := newCompensation(s.log)
	defer func() {
		if err != nil {
			undo.run(ctx)
		}
	}()

	if plugin == nil {
		plugin, err = s.createPlugin(ctx, req.PackageID, pkg, undo)
		if err != nil {
			return nil, err
		}
	}

	staged, err := s.artifacts.Stage(ctx, req.Data, packageContentType, req.PackageID, pkg.Version)
	if err != nil {
		return nil, err
	}
	undo.push("delete staged artifact", func(ctx context.Context) error {
		return s.artifacts.Delete(ctx, staged.Path, staged.Bucket)
	})

	var iconKey string
	if len(pkg.Icon) > 0 {
		key := IconKey(s.artifacts.Checksum(pkg.Icon), pkg.IconName)
		path, uploaded, err := s.artifacts.StoreIcon(ctx, pkg.Icon, pkg.IconName, key)
		if err != nil {
			return nil, err
		}
		if uploaded {
			undo.push("delete icon", func(ctx context.Context) error {
				return s.artifacts.Delete(ctx, path, s.artifacts.IconBucket())
			})
		}
		iconKey = path
	}

	version := &domain.PluginVersion{
		ID:                uuid.New(),
		PluginID:          plugin.ID,
		Version:           pkg.Version,
		TempStoragePath:   &staged.Path,
		TempStorageBucket: &staged.Bucket,
		FileSizeBytes:     staged.Size,
		ChecksumSHA256:    staged.Checksum,
		Manifest:          pkg.Manifest,
		MinAppVersion:     pkg.MinAppVersion,
		ReleaseNotes:      pkg.ReleaseNotes,
		Status:            domain.VersionStatusSubmitted,
	}
	if err := s.versions.Create(ctx, version); err != nil {
		return nil, err
	}
	undo.push("delete version record", func(ctx context.Context) error {
		return s.versions.Delete(ctx, version.ID)
	})

	if plugin.Status == domain.PluginStatusSubmitted {
		advanced, err := s.plugins.AdvanceStatus(ctx, plugin.ID, domain.PluginStatusSubmitted, domain.PluginStatusPendingReview)
		if err != nil {
			return nil, err
		}
		if advanced {
			plugin.Status = domain.PluginStatusPendingReview
		}
	}

	if iconKey != "" && (plugin.IconKey == nil || *plugin.IconKey != iconKey) {
		if err := s.plugins.UpdateIcon(ctx, plugin.ID, iconKey); err != nil {
			return nil, err
		}
		plugin.IconKey = &iconKey
	}

	return &domain.PluginDetails{
		Plugin:   plugin,
		Version:  version,
		Download: s.signStaged(ctx, staged),
	}, nil
}

func (s *SubmissionService) findPlugin(ctx context.Context, packageID string) (*domain.Plugin, error) {
	plugin, err := s.plugins.GetByPackageID(ctx, packageID)
	if errors.Is(err, domain.ErrResourceNotFound) {
		return nil, nil
	}
	return plugin, err
}

// checkDuplicate быстрая проверка до загрузки артефакта. Окончательно
// дубликат отсекает уникальный индекс при создании версии
func (s *SubmissionService) checkDuplicate(ctx context.Context, pluginID uuid.UUID, version string) error {
	existing, err := s.versions.GetByPluginAndVersion(ctx, pluginID, version)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: version %s already submitted", domain.ErrVersionConflict, version)
	}
	return nil
}

// createPlugin создает плагин со статусом SUBMITTED. Если параллельный запрос
// успел создать плагин раньше, используется существующая запись
func (s *SubmissionService) createPlugin(ctx context.Context, packageID string, pkg *ExtractedPackage, undo *compensation) (*domain.Plugin, error) {
	plugin := &domain.Plugin{
		ID:          uuid.New(),
		PackageID:   packageID,
		Name:        pkg.Name,
		Description: pkg.Description,
		Author:      pkg.Author,
		Category:    pkg.Category,
		Tags:        pkg.Tags,
		SourceURL:   pkg.SourceURL,
		Status:      domain.PluginStatusSubmitted,
	}

	err := s.plugins.Create(ctx, plugin)
	if errors.Is(err, domain.ErrPluginExists) {
		existing, err := s.plugins.GetByPackageID(ctx, packageID)
		if err != nil {
			return nil, err
		}
		if err := s.checkDuplicate(ctx, existing.ID, pkg.Version); err != nil {
			return nil, err
		}
		return existing, nil
	}
	if err != nil {
		return nil, err
	}

	undo.push("delete plugin record", func(ctx context.Context) error {
		// Параллельная отправка могла успеть добавить свою версию
		versions, err := s.versions.ListByPlugin(ctx, plugin.ID)
		if err != nil {
			return err
		}
		if len(versions) > 0 {
			return nil
		}
		return s.plugins.Delete(ctx, plugin.ID)
	})
	return plugin, nil
}

func (s *SubmissionService) signStaged(ctx context.Context, staged *StagedArtifact) *domain.DownloadInfo {
	signed, err := s.artifacts.Sign(ctx, staged.Path, staged.Bucket)
	if err != nil {
		s.log.Warn("failed to sign staged artifact", zap.String("path", staged.Path), zap.Error(err))
		return &domain.DownloadInfo{}
	}
	return &domain.DownloadInfo{URL: &signed.URL, ExpiresAt: &signed.ExpiresAt}
}
