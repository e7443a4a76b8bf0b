package domain

import "time"

// DownloadInfo подписанная ссылка на артефакт. URL пустой, если подпись не удалась
type DownloadInfo struct {
	URL       *string    `json:"url"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// PluginDetails объединенное представление плагина и выбранной версии
type PluginDetails struct {
	Plugin   *Plugin        `json:"plugin"`
	Version  *PluginVersion `json:"version,omitempty"`
	Download *DownloadInfo  `json:"download,omitempty"`
}

type ReviewDecision string

const (
	DecisionPublish ReviewDecision = "PUBLISH"
	DecisionReject  ReviewDecision = "REJECT"
)

// ReviewRequest решение администратора по версии
type ReviewRequest struct {
	Decision   ReviewDecision `json:"decision"`
	Reason     string         `json:"reason,omitempty"`
	ReviewerID string         `json:"reviewer_id"`
}
