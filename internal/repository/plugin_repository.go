package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"synxronmarket/internal/domain"
)

const pluginColumns = `id, package_id, name, description, author, icon_key, category, tags,
        source_url, status, latest_version_id, created_at, updated_at, deleted_at, lock_version`

const defaultListLimit = 50

type PluginRepository struct {
	db *sqlx.DB
}

func NewPluginRepository(db *sqlx.DB) *PluginRepository {
	return &PluginRepository{db: db}
}

// Create вставляет новый плагин. Если плагин с таким packageId уже есть,
// возвращает domain.ErrPluginExists
func (r *PluginRepository) Create(ctx context.Context, plugin *domain.Plugin) error {
	query := `
        INSERT INTO plugins (id, package_id, name, description, author, icon_key, category, tags, source_url, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (package_id) WHERE deleted_at IS NULL DO NOTHING
        RETURNING created_at, updated_at, lock_version`

	err := r.db.QueryRowContext(
		ctx,
		query,
		plugin.ID,
		plugin.PackageID,
		plugin.Name,
		plugin.Description,
		plugin.Author,
		plugin.IconKey,
		plugin.Category,
		plugin.Tags,
		plugin.SourceURL,
		plugin.Status,
	).Scan(&plugin.CreatedAt, &plugin.UpdatedAt, &plugin.LockVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrPluginExists, plugin.PackageID)
	}
	if err != nil {
		return fmt.Errorf("failed to create plugin: %w", err)
	}
	return nil
}

func (r *PluginRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Plugin, error) {
	var plugin domain.Plugin
	query := `SELECT ` + pluginColumns + ` FROM plugins WHERE id = $1 AND deleted_at IS NULL`

	if err := r.db.GetContext(ctx, &plugin, query, id); err != nil {
		return nil, notFound(err, "plugin "+id.String())
	}
	return &plugin, nil
}

func (r *PluginRepository) GetByPackageID(ctx context.Context, packageID string) (*domain.Plugin, error) {
	var plugin domain.Plugin
	query := `SELECT ` + pluginColumns + ` FROM plugins WHERE package_id = $1 AND deleted_at IS NULL`

	if err := r.db.GetContext(ctx, &plugin, query, packageID); err != nil {
		return nil, notFound(err, "plugin "+packageID)
	}
	return &plugin, nil
}

// List возвращает плагины по фильтру, новые первыми
func (r *PluginRepository) List(ctx context.Context, filter domain.PluginFilter) ([]domain.Plugin, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
        SELECT ` + pluginColumns + `
        FROM plugins
        WHERE deleted_at IS NULL
          AND ($1 = '' OR status = $1)
          AND ($2 = '' OR category = $2)
        ORDER BY created_at DESC
        LIMIT $3 OFFSET $4`

	plugins := []domain.Plugin{}
	err := r.db.SelectContext(ctx, &plugins, query, string(filter.Status), filter.Category, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list plugins: %w", err)
	}
	return plugins, nil
}

// AdvanceStatus меняет статус, только если текущий равен from
func (r *PluginRepository) AdvanceStatus(ctx context.Context, id uuid.UUID, from, to domain.PluginStatus) (bool, error) {
	query := `
        UPDATE plugins
        SET status = $3,
            updated_at = CURRENT_TIMESTAMP,
            lock_version = lock_version + 1
        WHERE id = $1 AND status = $2 AND deleted_at IS NULL`

	res, err := r.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return false, fmt.Errorf("failed to update plugin status: %w", err)
	}
	return affected(res)
}

// SetLatestVersion выставляет последнюю опубликованную версию, если плагин не
// менялся с момента чтения (lock_version). Статус выводится из ссылки:
// есть версия - PUBLISHED, нет - REJECTED. false означает конкурентное изменение
func (r *PluginRepository) SetLatestVersion(ctx context.Context, id uuid.UUID, versionID *uuid.UUID, lockVersion int64) (bool, error) {
	status := domain.PluginStatusRejected
	if versionID != nil {
		status = domain.PluginStatusPublished
	}

	query := `
        UPDATE plugins
        SET latest_version_id = $2,
            status = $3,
            updated_at = CURRENT_TIMESTAMP,
            lock_version = lock_version + 1
        WHERE id = $1 AND lock_version = $4 AND deleted_at IS NULL`

	res, err := r.db.ExecContext(ctx, query, id, versionID, status, lockVersion)
	if err != nil {
		return false, fmt.Errorf("failed to set latest version: %w", err)
	}
	return affected(res)
}

func (r *PluginRepository) UpdateIcon(ctx context.Context, id uuid.UUID, iconKey string) error {
	query := `
        UPDATE plugins
        SET icon_key = $2,
            updated_at = CURRENT_TIMESTAMP,
            lock_version = lock_version + 1
        WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, id, iconKey)
	if err != nil {
		return fmt.Errorf("failed to update plugin icon: %w", err)
	}
	return nil
}

// Delete удаляет плагин физически вместе с версиями (каскад)
func (r *PluginRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM plugins WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete plugin: %w", err)
	}
	return nil
}

// SoftDelete помечает плагин и все его версии удаленными
func (r *PluginRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
        UPDATE plugins
        SET deleted_at = CURRENT_TIMESTAMP,
            updated_at = CURRENT_TIMESTAMP,
            lock_version = lock_version + 1
        WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to delete plugin: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: plugin %s", domain.ErrResourceNotFound, id)
	}

	_, err = tx.ExecContext(ctx, `
        UPDATE plugin_versions
        SET deleted_at = CURRENT_TIMESTAMP,
            updated_at = CURRENT_TIMESTAMP,
            lock_version = lock_version + 1
        WHERE plugin_id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to delete plugin versions: %w", err)
	}

	return tx.Commit()
}
