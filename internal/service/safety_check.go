package service

import (
	"context"
	"fmt"
	"strings"

	"synxronmarket/internal/domain"
)

// SafetyCheck проверка версии перед публикацией. Ошибка блокирует публикацию
type SafetyCheck interface {
	Check(ctx context.Context, version *domain.PluginVersion) error
}

type SafetyCheckFunc func(ctx context.Context, version *domain.PluginVersion) error

func (f SafetyCheckFunc) Check(ctx context.Context, version *domain.PluginVersion) error {
	return f(ctx, version)
}

// SafetyChecks выполняет проверки по порядку до первой ошибки
type SafetyChecks []SafetyCheck

func (c SafetyChecks) Check(ctx context.Context, version *domain.PluginVersion) error {
	for _, check := range c {
		if err := check.Check(ctx, version); err != nil {
			return err
		}
	}
	return nil
}

// PermissionDenylist отклоняет манифесты, запрашивающие запрещенные разрешения
type PermissionDenylist struct {
	denied map[string]struct{}
}

func NewPermissionDenylist(permissions []string) *PermissionDenylist {
	denied := make(map[string]struct{}, len(permissions))
	for _, p := range permissions {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			denied[p] = struct{}{}
		}
	}
	return &PermissionDenylist{denied: denied}
}

func (d *PermissionDenylist) Check(_ context.Context, version *domain.PluginVersion) error {
	if len(d.denied) == 0 {
		return nil
	}
	for _, p := range version.Manifest.StringSlice("permissions") {
		if _, ok := d.denied[strings.ToLower(p)]; ok {
			return fmt.Errorf("permission %q is not allowed", p)
		}
	}
	return nil
}
