package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"synxronmarket/internal/metrics"
)

const cleanupTimeout = 15 * time.Second

type undoStep struct {
	name string
	fn   func(ctx context.Context) error
}

// compensation стек отмены побочных эффектов. Шаги выполняются в обратном
// порядке даже после отмены исходного контекста, ошибки только логируются
type compensation struct {
	steps []undoStep
	log   *zap.Logger
}

func newCompensation(log *zap.Logger) *compensation {
	return &compensation{log: log}
}

func (c *compensation) push(name string, fn func(ctx context.Context) error) {
	c.steps = append(c.steps, undoStep{name: name, fn: fn})
}

func (c *compensation) run(ctx context.Context) {
	if len(c.steps) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	for i := len(c.steps) - 1; i >= 0; i-- {
		step := c.steps[i]
		if err := step.fn(ctx); err != nil {
			metrics.CleanupFailuresTotal.Inc()
			c.log.Error("compensating cleanup failed", zap.String("step", step.name), zap.Error(err))
		}
	}
	c.steps = nil
}
