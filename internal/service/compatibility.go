package service

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"synxronmarket/internal/domain"
)

// SelectCompatible выбирает лучшую опубликованную версию для версии приложения:
// максимальный minAppVersion не выше appVersion, при равенстве - самая новая.
// Сравнение числовое по компонентам, "1.10.0" > "1.9.0"
func SelectCompatible(versions []domain.PluginVersion, appVersion string) (*domain.PluginVersion, error) {
	requested, err := semver.NewVersion(appVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid app version %q", domain.ErrInvalidVersion, appVersion)
	}

	var (
		best    *domain.PluginVersion
		bestMin *semver.Version
	)
	for i := range versions {
		v := &versions[i]
		if !v.IsDownloadable() {
			continue
		}
		minApp, err := semver.NewVersion(v.MinAppVersion)
		if err != nil {
			continue
		}
		if minApp.GreaterThan(requested) {
			continue
		}
		if best == nil ||
			minApp.GreaterThan(bestMin) ||
			(minApp.Equal(bestMin) && v.CreatedAt.After(best.CreatedAt)) {
			best = v
			bestMin = minApp
		}
	}

	if best == nil {
		return nil, fmt.Errorf("%w: plugin requires an app newer than %s", domain.ErrInvalidVersion, appVersion)
	}
	return best, nil
}
