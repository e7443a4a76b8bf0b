// storage.go
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrObjectNotFound возвращается, когда объекта нет по указанному ключу
var ErrObjectNotFound = errors.New("object not found")

// S3Object определяет интерфейс для объектов S3
type S3Object interface {
	io.ReadCloser
	ContentLength() int64
	ContentType() string
}

// s3Object реализует интерфейс S3Object
type s3Object struct {
	io.ReadCloser
	contentLength int64
	contentType   string
}

func (o *s3Object) ContentLength() int64 {
	return o.contentLength
}

func (o *s3Object) ContentType() string {
	return o.contentType
}

// Storage определяет интерфейс для работы с S3-совместимым хранилищем.
// Все операции адресуются парой (bucket, key).
type Storage interface {
	PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error
	GetObject(ctx context.Context, bucket, key string) (S3Object, error)
	// DeleteObject не возвращает ошибку, если объекта уже нет
	DeleteObject(ctx context.Context, bucket, key string) error
	ObjectExists(ctx context.Context, bucket, key string) (bool, error)
	PresignGetObject(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// NewStorage создает хранилище по драйверу из конфигурации
func NewStorage(conf *Config) (Storage, error) {
	if conf == nil {
		return nil, fmt.Errorf("configuration is required")
	}

	switch conf.Driver {
	case DriverS3, "":
		return NewClient(conf)
	case DriverMinio:
		return NewMinioClient(conf)
	case DriverMemory:
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", conf.Driver)
	}
}
