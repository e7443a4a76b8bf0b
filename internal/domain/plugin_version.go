// domain/plugin_version.go
package domain

import (
	"github.com/google/uuid"
	"time"
)

type VersionStatus string

const (
	VersionStatusSubmitted     VersionStatus = "SUBMITTED"
	VersionStatusPendingReview VersionStatus = "PENDING_REVIEW"
	VersionStatusPublished     VersionStatus = "PUBLISHED"
	VersionStatusRejected      VersionStatus = "REJECTED"
	VersionStatusFlagged       VersionStatus = "FLAGGED"
)

// PendingStatuses статусы, из которых разрешено решение ревьюера
var PendingStatuses = []VersionStatus{VersionStatusSubmitted, VersionStatusPendingReview}

func (s VersionStatus) IsPending() bool {
	return s == VersionStatusSubmitted || s == VersionStatusPendingReview
}

type PluginVersion struct {
	ID                uuid.UUID     `json:"id" db:"id"`
	PluginID          uuid.UUID     `json:"plugin_id" db:"plugin_id"`
	Version           string        `json:"version" db:"version"`
	StoragePath       *string       `json:"storage_path,omitempty" db:"storage_path"`
	StorageBucket     *string       `json:"storage_bucket,omitempty" db:"storage_bucket"`
	TempStoragePath   *string       `json:"temp_storage_path,omitempty" db:"temp_storage_path"`
	TempStorageBucket *string       `json:"temp_storage_bucket,omitempty" db:"temp_storage_bucket"`
	FileSizeBytes     int64         `json:"file_size_bytes" db:"file_size_bytes"`
	ChecksumSHA256    string        `json:"checksum_sha256" db:"checksum_sha256"`
	Manifest          Manifest      `json:"manifest" db:"manifest"`
	MinAppVersion     string        `json:"min_app_version" db:"min_app_version"`
	ReleaseNotes      string        `json:"release_notes" db:"release_notes"`
	Status            VersionStatus `json:"status" db:"status"`
	RejectionReason   *string       `json:"rejection_reason,omitempty" db:"rejection_reason"`
	ReviewedBy        *string       `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAt        *time.Time    `json:"reviewed_at,omitempty" db:"reviewed_at"`
	PublishedAt       *time.Time    `json:"published_at,omitempty" db:"published_at"`
	IsFlagged         bool          `json:"is_flagged" db:"is_flagged"`
	FlagReason        *string       `json:"flag_reason,omitempty" db:"flag_reason"`
	DownloadCount     int64         `json:"download_count" db:"download_count"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at" db:"updated_at"`
	DeletedAt         *time.Time    `json:"deleted_at,omitempty" db:"deleted_at"`
	LockVersion       int64         `json:"-" db:"lock_version"`
}

// IsDownloadable версия опубликована и не помечена
func (v *PluginVersion) IsDownloadable() bool {
	return v.Status == VersionStatusPublished && !v.IsFlagged && v.DeletedAt == nil
}

// PublishedArtifact данные о постоянном размещении артефакта при публикации
type PublishedArtifact struct {
	StoragePath   string
	StorageBucket string
	ReviewedBy    string
	ReviewedAt    time.Time
}
