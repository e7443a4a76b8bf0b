package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"synxronmarket/internal/domain"
)

const versionColumns = `id, plugin_id, version, storage_path, storage_bucket, temp_storage_path, temp_storage_bucket,
        file_size_bytes, checksum_sha256, manifest, min_app_version, release_notes, status, rejection_reason,
        reviewed_by, reviewed_at, published_at, is_flagged, flag_reason, download_count,
        created_at, updated_at, deleted_at, lock_version`

type PluginVersionRepository struct {
	db *sqlx.DB
}

func NewPluginVersionRepository(db *sqlx.DB) *PluginVersionRepository {
	return &PluginVersionRepository{db: db}
}

// Create вставляет новую версию. Уникальный индекс (plugin_id, version)
// является окончательной защитой от дубликатов
func (r *PluginVersionRepository) Create(ctx context.Context, version *domain.PluginVersion) error {
	query := `
        INSERT INTO plugin_versions (
            id, plugin_id, version, temp_storage_path, temp_storage_bucket,
            file_size_bytes, checksum_sha256, manifest, min_app_version, release_notes, status
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        RETURNING created_at, updated_at, lock_version`

	err := r.db.QueryRowContext(
		ctx,
		query,
		version.ID,
		version.PluginID,
		version.Version,
		version.TempStoragePath,
		version.TempStorageBucket,
		version.FileSizeBytes,
		version.ChecksumSHA256,
		version.Manifest,
		version.MinAppVersion,
		version.ReleaseNotes,
		version.Status,
	).Scan(&version.CreatedAt, &version.UpdatedAt, &version.LockVersion)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", domain.ErrVersionConflict, version.Version)
	}
	if err != nil {
		return fmt.Errorf("failed to create plugin version: %w", err)
	}
	return nil
}

func (r *PluginVersionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PluginVersion, error) {
	var version domain.PluginVersion
	query := `SELECT ` + versionColumns + ` FROM plugin_versions WHERE id = $1 AND deleted_at IS NULL`

	if err := r.db.GetContext(ctx, &version, query, id); err != nil {
		return nil, notFound(err, "plugin version "+id.String())
	}
	return &version, nil
}

// GetByPluginAndVersion возвращает nil, nil если такой версии нет
func (r *PluginVersionRepository) GetByPluginAndVersion(ctx context.Context, pluginID uuid.UUID, version string) (*domain.PluginVersion, error) {
	var v domain.PluginVersion
	query := `
        SELECT ` + versionColumns + `
        FROM plugin_versions
        WHERE plugin_id = $1
        AND version = $2
        AND deleted_at IS NULL
        LIMIT 1`

	err := r.db.GetContext(ctx, &v, query, pluginID, version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error checking version existence: %w", err)
	}
	return &v, nil
}

// ListByPlugin возвращает все версии плагина, новые первыми
func (r *PluginVersionRepository) ListByPlugin(ctx context.Context, pluginID uuid.UUID) ([]domain.PluginVersion, error) {
	versions := []domain.PluginVersion{}
	query := `
        SELECT ` + versionColumns + `
        FROM plugin_versions
        WHERE plugin_id = $1 AND deleted_at IS NULL
        ORDER BY created_at DESC`

	if err := r.db.SelectContext(ctx, &versions, query, pluginID); err != nil {
		return nil, fmt.Errorf("failed to list plugin versions: %w", err)
	}
	return versions, nil
}

// ListByStatus возвращает версии в указанных статусах, старые первыми
func (r *PluginVersionRepository) ListByStatus(ctx context.Context, statuses []domain.VersionStatus, limit, offset int) ([]domain.PluginVersion, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	versions := []domain.PluginVersion{}
	query := `
        SELECT ` + versionColumns + `
        FROM plugin_versions
        WHERE status = ANY($1) AND deleted_at IS NULL
        ORDER BY created_at ASC
        LIMIT $2 OFFSET $3`

	if err := r.db.SelectContext(ctx, &versions, query, pq.Array(names), limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list versions by status: %w", err)
	}
	return versions, nil
}

// MarkPublished в одной транзакции переводит ожидающую версию в PUBLISHED и
// делает ее последней версией плагина. Возвращает false, если версия уже
// не в ожидающем статусе
func (r *PluginVersionRepository) MarkPublished(ctx context.Context, id uuid.UUID, art domain.PublishedArtifact) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var pluginID uuid.UUID
	err = tx.QueryRowxContext(ctx, `
        UPDATE plugin_versions
        SET status = 'PUBLISHED',
            storage_path = $2,
            storage_bucket = $3,
            temp_storage_path = NULL,
            temp_storage_bucket = NULL,
            reviewed_by = $4,
            reviewed_at = $5,
            published_at = $5,
            updated_at = CURRENT_TIMESTAMP,
            lock_version = lock_version + 1
        WHERE id = $1
          AND status IN ('SUBMITTED', 'PENDING_REVIEW')
          AND deleted_at IS NULL
        RETURNING plugin_id`,
		id, art.StoragePath, art.StorageBucket, art.ReviewedBy, art.ReviewedAt,
	).Scan(&pluginID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to publish version: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
        UPDATE plugins
        SET latest_version_id = $2,
            status = 'PUBLISHED',
            updated_at = CURRENT_TIMESTAMP,
            lock_version = lock_version + 1
        WHERE id = $1 AND deleted_at IS NULL`, pluginID, id)
	if err != nil {
		return false, fmt.Errorf("failed to set latest version: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("%w: plugin %s", domain.ErrResourceNotFound, pluginID)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// MarkRejected переводит ожидающую версию в REJECTED. Временный путь
// остается до удаления артефакта
func (r *PluginVersionRepository) MarkRejected(ctx context.Context, id uuid.UUID, reviewer, reason string, at time.Time) (bool, error) {
	query := `
        UPDATE plugin_versions
        SET status = 'REJECTED',
            rejection_reason = $2,
            reviewed_by = $3,
            reviewed_at = $4,
            updated_at = CURRENT_TIMESTAMP,
            lock_version = lock_version + 1
        WHERE id = $1
          AND status IN ('SUBMITTED', 'PENDING_REVIEW')
          AND deleted_at IS NULL`

	res, err := r.db.ExecContext(ctx, query, id, reason, reviewer, at)
	if err != nil {
		return false, fmt.Errorf("failed to reject version: %w", err)
	}
	return affected(res)
}

func (r *PluginVersionRepository) ClearTempPath(ctx context.Context, id uuid.UUID) error {
	query := `
        UPDATE plugin_versions
        SET temp_storage_path = NULL,
            temp_storage_bucket = NULL,
            updated_at = CURRENT_TIMESTAMP,
            lock_version = lock_version + 1
        WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to clear temp path: %w", err)
	}
	return nil
}

// MarkFlagged помечает опубликованную версию
func (r *PluginVersionRepository) MarkFlagged(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	query := `
        UPDATE plugin_versions
        SET status = 'FLAGGED',
            is_flagged = TRUE,
            flag_reason = $2,
            updated_at = CURRENT_TIMESTAMP,
            lock_version = lock_version + 1
        WHERE id = $1 AND status = 'PUBLISHED' AND deleted_at IS NULL`

	res, err := r.db.ExecContext(ctx, query, id, reason)
	if err != nil {
		return false, fmt.Errorf("failed to flag version: %w", err)
	}
	return affected(res)
}

// MarkUnflagged снимает пометку и возвращает версию в PUBLISHED
func (r *PluginVersionRepository) MarkUnflagged(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
        UPDATE plugin_versions
        SET status = 'PUBLISHED',
            is_flagged = FALSE,
            flag_reason = NULL,
            updated_at = CURRENT_TIMESTAMP,
            lock_version = lock_version + 1
        WHERE id = $1 AND status = 'FLAGGED' AND deleted_at IS NULL`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to unflag version: %w", err)
	}
	return affected(res)
}

func (r *PluginVersionRepository) IncrementDownloadCount(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE plugin_versions SET download_count = download_count + 1 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to increment download count: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: plugin version %s", domain.ErrResourceNotFound, id)
	}
	return nil
}

// ListStaleTempArtifacts версии с завершенным ревью, у которых остался временный артефакт
func (r *PluginVersionRepository) ListStaleTempArtifacts(ctx context.Context, limit int) ([]domain.PluginVersion, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	versions := []domain.PluginVersion{}
	query := `
        SELECT ` + versionColumns + `
        FROM plugin_versions
        WHERE status IN ('PUBLISHED', 'REJECTED', 'FLAGGED')
          AND temp_storage_path IS NOT NULL
        ORDER BY updated_at ASC
        LIMIT $1`

	if err := r.db.SelectContext(ctx, &versions, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list stale temp artifacts: %w", err)
	}
	return versions, nil
}

// Delete удаляет версию физически. Используется только компенсацией при отправке
func (r *PluginVersionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM plugin_versions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete plugin version: %w", err)
	}
	return nil
}
