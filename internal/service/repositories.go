package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"synxronmarket/internal/domain"
)

// PluginRepository реестр плагинов
type PluginRepository interface {
	Create(ctx context.Context, plugin *domain.Plugin) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Plugin, error)
	GetByPackageID(ctx context.Context, packageID string) (*domain.Plugin, error)
	List(ctx context.Context, filter domain.PluginFilter) ([]domain.Plugin, error)
	AdvanceStatus(ctx context.Context, id uuid.UUID, from, to domain.PluginStatus) (bool, error)
	SetLatestVersion(ctx context.Context, id uuid.UUID, versionID *uuid.UUID, lockVersion int64) (bool, error)
	UpdateIcon(ctx context.Context, id uuid.UUID, iconKey string) error
	Delete(ctx context.Context, id uuid.UUID) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// VersionRepository реестр версий плагинов
type VersionRepository interface {
	Create(ctx context.Context, version *domain.PluginVersion) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PluginVersion, error)
	GetByPluginAndVersion(ctx context.Context, pluginID uuid.UUID, version string) (*domain.PluginVersion, error)
	ListByPlugin(ctx context.Context, pluginID uuid.UUID) ([]domain.PluginVersion, error)
	ListByStatus(ctx context.Context, statuses []domain.VersionStatus, limit, offset int) ([]domain.PluginVersion, error)
	MarkPublished(ctx context.Context, id uuid.UUID, art domain.PublishedArtifact) (bool, error)
	MarkRejected(ctx context.Context, id uuid.UUID, reviewer, reason string, at time.Time) (bool, error)
	ClearTempPath(ctx context.Context, id uuid.UUID) error
	MarkFlagged(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	MarkUnflagged(ctx context.Context, id uuid.UUID) (bool, error)
	IncrementDownloadCount(ctx context.Context, id uuid.UUID) error
	ListStaleTempArtifacts(ctx context.Context, limit int) ([]domain.PluginVersion, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
