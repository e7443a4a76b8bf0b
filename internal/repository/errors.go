package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"synxronmarket/internal/domain"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// notFound переводит sql.ErrNoRows в доменную ошибку
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrResourceNotFound, what)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

func affected(res sql.Result) (bool, error) {
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows > 0, nil
}
