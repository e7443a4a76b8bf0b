package domain

import (
	"context"
	"errors"
)

// Ошибки ядра. Оборачиваются через fmt.Errorf("%w: ...")
var (
	ErrPackageInvalid    = errors.New("package invalid")
	ErrVersionConflict   = errors.New("version already exists")
	ErrResourceNotFound  = errors.New("resource not found")
	ErrInvalidVersion    = errors.New("no compatible version")
	ErrInvalidTransition = errors.New("invalid review transition")
	ErrStorageFailure    = errors.New("storage operation failed")
	ErrTimeout           = errors.New("operation timed out")
)

// ErrorKind стабильный машиночитаемый вид ошибки
type ErrorKind string

const (
	KindPackageInvalid    ErrorKind = "PACKAGE_INVALID"
	KindVersionConflict   ErrorKind = "VERSION_CONFLICT"
	KindResourceNotFound  ErrorKind = "RESOURCE_NOT_FOUND"
	KindInvalidVersion    ErrorKind = "INVALID_VERSION"
	KindInvalidTransition ErrorKind = "INVALID_TRANSITION"
	KindStorageFailure    ErrorKind = "STORAGE_FAILURE"
	KindTimeout           ErrorKind = "TIMEOUT"
	KindInternal          ErrorKind = "INTERNAL"
)

func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPackageInvalid):
		return KindPackageInvalid
	case errors.Is(err, ErrVersionConflict):
		return KindVersionConflict
	case errors.Is(err, ErrResourceNotFound):
		return KindResourceNotFound
	case errors.Is(err, ErrInvalidVersion):
		return KindInvalidVersion
	case errors.Is(err, ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrStorageFailure):
		return KindStorageFailure
	default:
		return KindInternal
	}
}

// ErrPluginExists плагин с таким packageId уже создан параллельным запросом
var ErrPluginExists = errors.New("plugin already exists")
