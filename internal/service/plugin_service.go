package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"synxronmarket/internal/domain"
	"synxronmarket/internal/metrics"
)

const listResolveConcurrency = 8

type PluginService struct {
	plugins    PluginRepository
	versions   VersionRepository
	artifacts  *ArtifactService
	dispatcher *Dispatcher
	log        *zap.Logger
}

func NewPluginService(
	plugins PluginRepository,
	versions VersionRepository,
	artifacts *ArtifactService,
	dispatcher *Dispatcher,
	log *zap.Logger,
) *PluginService {
	return &PluginService{
		plugins:    plugins,
		versions:   versions,
		artifacts:  artifacts,
		dispatcher: dispatcher,
		log:        log,
	}
}

// GetPlugin возвращает плагин и версию: совместимую с appVersion или последнюю.
// Если совместимой версии нет, плагин возвращается без версии
func (s *PluginService) GetPlugin(ctx context.Context, id uuid.UUID, appVersion string) (*domain.PluginDetails, error) {
	if err := validateAppVersion(appVersion); err != nil {
		return nil, err
	}

	plugin, err := s.plugins.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	version, err := s.selectVersion(ctx, plugin, appVersion)
	switch {
	case errors.Is(err, domain.ErrInvalidVersion), errors.Is(err, domain.ErrResourceNotFound):
		return &domain.PluginDetails{Plugin: plugin}, nil
	case err != nil:
		return nil, err
	}
	return &domain.PluginDetails{Plugin: plugin, Version: version}, nil
}

// ListPlugins список плагинов. С appVersion к каждому плагину добавляется
// совместимая версия, плагины без нее не попадают в выдачу
func (s *PluginService) ListPlugins(ctx context.Context, filter domain.PluginFilter, appVersion string) ([]domain.PluginDetails, error) {
	if err := validateAppVersion(appVersion); err != nil {
		return nil, err
	}

	plugins, err := s.plugins.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	result := make([]domain.PluginDetails, len(plugins))
	if appVersion == "" {
		for i := range plugins {
			result[i] = domain.PluginDetails{Plugin: &plugins[i]}
		}
		return result, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listResolveConcurrency)
	for i := range plugins {
		i := i
		plugin := &plugins[i]
		g.Go(func() error {
			versions, err := s.versions.ListByPlugin(gctx, plugin.ID)
			if err != nil {
				return err
			}
			version, err := SelectCompatible(versions, appVersion)
			if errors.Is(err, domain.ErrInvalidVersion) {
				return nil
			}
			if err != nil {
				return err
			}
			result[i] = domain.PluginDetails{Plugin: plugin, Version: version}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	compatible := make([]domain.PluginDetails, 0, len(result))
	for _, d := range result {
		if d.Version != nil {
			compatible = append(compatible, d)
		}
	}
	return compatible, nil
}

// ListVersions все неудаленные версии плагина, новые первыми
func (s *PluginService) ListVersions(ctx context.Context, pluginID uuid.UUID) ([]domain.PluginVersion, error) {
	if _, err := s.plugins.GetByID(ctx, pluginID); err != nil {
		return nil, err
	}
	return s.versions.ListByPlugin(ctx, pluginID)
}

// ResolveDownload выбирает версию для скачивания и выдает подписанную ссылку.
// Счетчик скачиваний увеличивается в фоне, ошибка подписи дает пустую ссылку
func (s *PluginService) ResolveDownload(ctx context.Context, pluginID uuid.UUID, appVersion string) (*domain.PluginDetails, error) {
	plugin, err := s.plugins.GetByID(ctx, pluginID)
	if err != nil {
		return nil, err
	}

	version, err := s.selectVersion(ctx, plugin, appVersion)
	if err != nil {
		return nil, err
	}

	versionID := version.ID
	s.dispatcher.Dispatch(Task{
		Name: "download_count",
		Run: func(ctx context.Context) error {
			return s.versions.IncrementDownloadCount(ctx, versionID)
		},
	})
	metrics.DownloadsTotal.Inc()

	return &domain.PluginDetails{
		Plugin:   plugin,
		Version:  version,
		Download: s.signPublished(ctx, version),
	}, nil
}

// DeletePlugin мягко удаляет плагин вместе с версиями
func (s *PluginService) DeletePlugin(ctx context.Context, pluginID uuid.UUID) error {
	if err := s.plugins.SoftDelete(ctx, pluginID); err != nil {
		return err
	}
	s.log.Info("plugin deleted", zap.String("plugin_id", pluginID.String()))
	return nil
}

// selectVersion без appVersion берет последнюю опубликованную версию,
// иначе лучшую совместимую
func (s *PluginService) selectVersion(ctx context.Context, plugin *domain.Plugin, appVersion string) (*domain.PluginVersion, error) {
	if appVersion == "" {
		if plugin.LatestVersionID == nil {
			return nil, fmt.Errorf("%w: plugin %s has no published version", domain.ErrResourceNotFound, plugin.ID)
		}
		version, err := s.versions.GetByID(ctx, *plugin.LatestVersionID)
		if err != nil {
			return nil, err
		}
		if !version.IsDownloadable() {
			return nil, fmt.Errorf("%w: latest version of plugin %s is not available", domain.ErrResourceNotFound, plugin.ID)
		}
		return version, nil
	}

	versions, err := s.versions.ListByPlugin(ctx, plugin.ID)
	if err != nil {
		return nil, err
	}
	return SelectCompatible(versions, appVersion)
}

func (s *PluginService) signPublished(ctx context.Context, version *domain.PluginVersion) *domain.DownloadInfo {
	if version.StoragePath == nil {
		return &domain.DownloadInfo{}
	}
	bucket := s.artifacts.PermanentBucket()
	if version.StorageBucket != nil && *version.StorageBucket != "" {
		bucket = *version.StorageBucket
	}

	signed, err := s.artifacts.Sign(ctx, *version.StoragePath, bucket)
	if err != nil {
		s.log.Warn("failed to sign artifact", zap.String("version_id", version.ID.String()), zap.Error(err))
		return &domain.DownloadInfo{}
	}
	return &domain.DownloadInfo{URL: &signed.URL, ExpiresAt: &signed.ExpiresAt}
}

func validateAppVersion(appVersion string) error {
	if appVersion == "" {
		return nil
	}
	if _, err := semver.NewVersion(appVersion); err != nil {
		return fmt.Errorf("%w: invalid app version %q", domain.ErrInvalidVersion, appVersion)
	}
	return nil
}
