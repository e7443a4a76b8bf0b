package domain

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
	"time"
)

type PluginStatus string

const (
	PluginStatusSubmitted     PluginStatus = "SUBMITTED"
	PluginStatusPendingReview PluginStatus = "PENDING_REVIEW"
	PluginStatusPublished     PluginStatus = "PUBLISHED"
	PluginStatusRejected      PluginStatus = "REJECTED"
)

// Plugin представляет запись о плагине (одна на packageId)
type Plugin struct {
	ID              uuid.UUID      `json:"id" db:"id"`
	PackageID       string         `json:"package_id" db:"package_id"`
	Name            string         `json:"name" db:"name"`
	Description     string         `json:"description" db:"description"`
	Author          string         `json:"author" db:"author"`
	IconKey         *string        `json:"icon_key,omitempty" db:"icon_key"`
	Category        string         `json:"category" db:"category"`
	Tags            pq.StringArray `json:"tags" db:"tags"`
	SourceURL       string         `json:"source_url" db:"source_url"`
	Status          PluginStatus   `json:"status" db:"status"`
	LatestVersionID *uuid.UUID     `json:"latest_version_id,omitempty" db:"latest_version_id"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
	DeletedAt       *time.Time     `json:"deleted_at,omitempty" db:"deleted_at"`
	LockVersion     int64          `json:"-" db:"lock_version"`
}

// PluginFilter параметры выборки списка плагинов
type PluginFilter struct {
	Status   PluginStatus
	Category string
	Limit    int
	Offset   int
}
