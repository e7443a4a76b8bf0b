package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"synxronmarket/internal/domain"
	"synxronmarket/internal/metrics"
	"synxronmarket/internal/service/s3"
)

const (
	packageContentType     = "application/zip"
	defaultIconContentType = "image/png"
	permanentArtifactName  = "plugin.synx"
	iconPrefix             = "icons/"
)

var iconContentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".webp": "image/webp",
}

type ArtifactConfig struct {
	TempBucket      string
	PermanentBucket string
	IconBucket      string
	SignedURLTTL    time.Duration
}

// StagedArtifact артефакт во временном хранилище
type StagedArtifact struct {
	Path     string
	Bucket   string
	Size     int64
	Checksum string
}

type SignedURL struct {
	URL       string
	ExpiresAt time.Time
}

// ArtifactService граница хранилища артефактов: загрузка, перенос, подпись и удаление
type ArtifactService struct {
	storage s3.Storage
	conf    ArtifactConfig
	log     *zap.Logger
	now     func() time.Time
}

func NewArtifactService(storage s3.Storage, conf ArtifactConfig, log *zap.Logger) *ArtifactService {
	if conf.IconBucket == "" {
		conf.IconBucket = conf.PermanentBucket
	}
	if conf.SignedURLTTL <= 0 {
		conf.SignedURLTTL = time.Hour
	}
	return &ArtifactService{
		storage: storage,
		conf:    conf,
		log:     log,
		now:     time.Now,
	}
}

func (s *ArtifactService) TempBucket() string      { return s.conf.TempBucket }
func (s *ArtifactService) PermanentBucket() string { return s.conf.PermanentBucket }
func (s *ArtifactService) IconBucket() string      { return s.conf.IconBucket }

// Checksum SHA-256 в hex
func (s *ArtifactService) Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Stage загружает пакет во временный бакет. Ключ включает время и uuid,
// поэтому разные отправки не пересекаются
func (s *ArtifactService) Stage(ctx context.Context, data []byte, contentType, packageID, version string) (*StagedArtifact, error) {
	defer observe("stage", time.Now())

	if contentType == "" {
		contentType = packageContentType
	}
	key := fmt.Sprintf("%s/%s/%d-%s.synx", packageID, version, s.now().UnixNano(), uuid.NewString())

	if err := s.storage.PutObject(ctx, s.conf.TempBucket, key, data, contentType); err != nil {
		return nil, fmt.Errorf("%w: stage artifact: %v", domain.ErrStorageFailure, err)
	}

	return &StagedArtifact{
		Path:     key,
		Bucket:   s.conf.TempBucket,
		Size:     int64(len(data)),
		Checksum: s.Checksum(data),
	}, nil
}

// Sign выдает подписанную ссылку с фиксированным сроком действия
func (s *ArtifactService) Sign(ctx context.Context, path, bucket string) (*SignedURL, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty artifact path", domain.ErrStorageFailure)
	}

	expiresAt := s.now().Add(s.conf.SignedURLTTL)
	url, err := s.storage.PresignGetObject(ctx, bucket, path, s.conf.SignedURLTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: sign artifact: %v", domain.ErrStorageFailure, err)
	}
	return &SignedURL{URL: url, ExpiresAt: expiresAt}, nil
}

// PermanentPath детерминированный путь опубликованного артефакта
func PermanentPath(packageID, version string) string {
	return fmt.Sprintf("%s/v%s/%s", packageID, version, permanentArtifactName)
}

// Promote переносит артефакт в постоянный бакет: скачать, загрузить, удалить исходник.
// Исходник удаляется только после подтвержденной записи. Повтор после
// завершенного переноса (исходника нет, копия есть) считается успехом
func (s *ArtifactService) Promote(ctx context.Context, tempPath, packageID, version string) (string, error) {
	defer observe("promote", time.Now())

	dest := PermanentPath(packageID, version)

	obj, err := s.storage.GetObject(ctx, s.conf.TempBucket, tempPath)
	if err != nil {
		if errors.Is(err, s3.ErrObjectNotFound) {
			exists, existsErr := s.storage.ObjectExists(ctx, s.conf.PermanentBucket, dest)
			if existsErr == nil && exists {
				s.log.Info("artifact already promoted", zap.String("path", dest))
				return dest, nil
			}
		}
		return "", fmt.Errorf("%w: download staged artifact: %v", domain.ErrStorageFailure, err)
	}
	data, err := readAll(obj)
	if err != nil {
		return "", fmt.Errorf("%w: read staged artifact: %v", domain.ErrStorageFailure, err)
	}

	if err := s.storage.PutObject(ctx, s.conf.PermanentBucket, dest, data, packageContentType); err != nil {
		return "", fmt.Errorf("%w: upload permanent artifact: %v", domain.ErrStorageFailure, err)
	}

	if err := s.storage.DeleteObject(ctx, s.conf.TempBucket, tempPath); err != nil {
		// Копия уже записана, временный объект останется мусором
		s.log.Warn("failed to delete staged artifact after promotion",
			zap.String("path", tempPath), zap.Error(err))
	}

	return dest, nil
}

// Delete идемпотентно удаляет объект
func (s *ArtifactService) Delete(ctx context.Context, path, bucket string) error {
	defer observe("delete", time.Now())

	if path == "" {
		return nil
	}
	if err := s.storage.DeleteObject(ctx, bucket, path); err != nil {
		if errors.Is(err, s3.ErrObjectNotFound) {
			return nil
		}
		return fmt.Errorf("%w: delete %s/%s: %v", domain.ErrStorageFailure, bucket, path, err)
	}
	return nil
}

// Exists явная проверка наличия объекта
func (s *ArtifactService) Exists(ctx context.Context, path, bucket string) (bool, error) {
	ok, err := s.storage.ObjectExists(ctx, bucket, path)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrStorageFailure, err)
	}
	return ok, nil
}

// IconKey ключ иконки по содержимому
func IconKey(checksum, originalName string) string {
	return iconPrefix + checksum + strings.ToLower(filepath.Ext(originalName))
}

// StoreIcon сохраняет иконку по ключу от содержимого. Если объект уже есть,
// загрузка пропускается; uploaded сообщает, была ли запись в этом вызове
func (s *ArtifactService) StoreIcon(ctx context.Context, data []byte, originalName, key string) (path string, uploaded bool, err error) {
	defer observe("store_icon", time.Now())

	exists, err := s.Exists(ctx, key, s.conf.IconBucket)
	if err != nil {
		return "", false, err
	}
	if exists {
		return key, false, nil
	}

	if err := s.storage.PutObject(ctx, s.conf.IconBucket, key, data, IconContentType(originalName)); err != nil {
		return "", false, fmt.Errorf("%w: upload icon: %v", domain.ErrStorageFailure, err)
	}
	return key, true, nil
}

// IconContentType тип содержимого по расширению
func IconContentType(name string) string {
	if ct, ok := iconContentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return defaultIconContentType
}

func observe(operation string, start time.Time) {
	metrics.ArtifactOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func readAll(obj s3.S3Object) ([]byte, error) {
	defer obj.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, obj); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
