package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"synxronmarket/internal/domain"
)

func TestSafetyChecks(t *testing.T) {
	ctx := context.Background()
	version := &domain.PluginVersion{Manifest: domain.Manifest{"permissions": []any{"storage", "Shell"}}}

	assert.NoError(t, SafetyChecks{}.Check(ctx, version))
	assert.NoError(t, NewPermissionDenylist(nil).Check(ctx, version))
	assert.NoError(t, NewPermissionDenylist([]string{"network"}).Check(ctx, version))
	assert.Error(t, NewPermissionDenylist([]string{" shell "}).Check(ctx, version))

	calls := 0
	chain := SafetyChecks{
		SafetyCheckFunc(func(context.Context, *domain.PluginVersion) error { calls++; return errors.New("veto") }),
		SafetyCheckFunc(func(context.Context, *domain.PluginVersion) error { calls++; return nil }),
	}
	assert.EqualError(t, chain.Check(ctx, version), "veto")
	assert.Equal(t, 1, calls)
}
