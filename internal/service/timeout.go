package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"synxronmarket/internal/domain"
)

// deadlineError помечает ошибку как таймаут, если истек срок операции.
// Ошибки хранилища оборачивают причину через %v, поэтому смотрим на сам контекст
func deadlineError(ctx context.Context, err error, op string, limit time.Duration) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
		return fmt.Errorf("%w: %s exceeded %s: %w", domain.ErrTimeout, op, limit, err)
	}
	return err
}
