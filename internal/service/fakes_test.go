package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"synxronmarket/internal/domain"
	"synxronmarket/internal/service/s3"
)

// fakeClock монотонные отметки времени для created_at
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) tick() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fakePluginRepo struct {
	mu      sync.Mutex
	clock   *fakeClock
	plugins map[uuid.UUID]domain.Plugin
	fail    map[string]error
}

func newFakePluginRepo(clock *fakeClock) *fakePluginRepo {
	return &fakePluginRepo{clock: clock, plugins: map[uuid.UUID]domain.Plugin{}, fail: map[string]error{}}
}

func (r *fakePluginRepo) failWith(method string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[method] = err
}

func (r *fakePluginRepo) get(id uuid.UUID) (domain.Plugin, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plugins[id]
	return p, ok
}

func (r *fakePluginRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.plugins)
}

func (r *fakePluginRepo) Create(_ context.Context, plugin *domain.Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail["Create"]; err != nil {
		return err
	}
	for _, p := range r.plugins {
		if p.PackageID == plugin.PackageID && p.DeletedAt == nil {
			return fmt.Errorf("%w: %s", domain.ErrPluginExists, plugin.PackageID)
		}
	}
	now := r.clock.tick()
	plugin.CreatedAt, plugin.UpdatedAt = now, now
	r.plugins[plugin.ID] = *plugin
	return nil
}

func (r *fakePluginRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Plugin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plugins[id]
	if !ok || p.DeletedAt != nil {
		return nil, fmt.Errorf("%w: plugin %s", domain.ErrResourceNotFound, id)
	}
	return &p, nil
}

func (r *fakePluginRepo) GetByPackageID(_ context.Context, packageID string) (*domain.Plugin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail["GetByPackageID"]; err != nil {
		return nil, err
	}
	for _, p := range r.plugins {
		if p.PackageID == packageID && p.DeletedAt == nil {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("%w: plugin %s", domain.ErrResourceNotFound, packageID)
}

func (r *fakePluginRepo) List(_ context.Context, filter domain.PluginFilter) ([]domain.Plugin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Plugin{}
	for _, p := range r.plugins {
		if p.DeletedAt != nil {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fakePluginRepo) AdvanceStatus(_ context.Context, id uuid.UUID, from, to domain.PluginStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail["AdvanceStatus"]; err != nil {
		return false, err
	}
	p, ok := r.plugins[id]
	if !ok || p.Status != from || p.DeletedAt != nil {
		return false, nil
	}
	p.Status = to
	p.LockVersion++
	r.plugins[id] = p
	return true, nil
}

func (r *fakePluginRepo) SetLatestVersion(_ context.Context, id uuid.UUID, versionID *uuid.UUID, lockVersion int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail["SetLatestVersion"]; err != nil {
		return false, err
	}
	p, ok := r.plugins[id]
	if !ok || p.DeletedAt != nil || p.LockVersion != lockVersion {
		return false, nil
	}
	p.LatestVersionID = versionID
	if versionID != nil {
		p.Status = domain.PluginStatusPublished
	} else {
		p.Status = domain.PluginStatusRejected
	}
	p.LockVersion++
	r.plugins[id] = p
	return true, nil
}

// publishLatest часть транзакции публикации, которая меняет плагин
func (r *fakePluginRepo) publishLatest(id, versionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail["SetLatestVersion"]; err != nil {
		return err
	}
	p, ok := r.plugins[id]
	if !ok || p.DeletedAt != nil {
		return fmt.Errorf("%w: plugin %s", domain.ErrResourceNotFound, id)
	}
	p.LatestVersionID = &versionID
	p.Status = domain.PluginStatusPublished
	p.LockVersion++
	r.plugins[id] = p
	return nil
}

func (r *fakePluginRepo) UpdateIcon(_ context.Context, id uuid.UUID, iconKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail["UpdateIcon"]; err != nil {
		return err
	}
	p := r.plugins[id]
	p.IconKey = &iconKey
	p.LockVersion++
	r.plugins[id] = p
	return nil
}

func (r *fakePluginRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.plugins, id)
	return nil
}

func (r *fakePluginRepo) SoftDelete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plugins[id]
	if !ok || p.DeletedAt != nil {
		return fmt.Errorf("%w: plugin %s", domain.ErrResourceNotFound, id)
	}
	now := r.clock.tick()
	p.DeletedAt = &now
	r.plugins[id] = p
	return nil
}

type fakeVersionRepo struct {
	mu       sync.Mutex
	clock    *fakeClock
	plugins  *fakePluginRepo
	versions map[uuid.UUID]domain.PluginVersion
	fail     map[string]error
	// beforeUpdate вызывается перед условным обновлением, эмулирует гонку
	beforeUpdate func(id uuid.UUID)
	// afterList вызывается после чтения версий плагина, эмулирует гонку
	afterList func(pluginID uuid.UUID)
	// skipLookup прячет существующие версии от предварительной проверки
	skipLookup bool
}

func newFakeVersionRepo(clock *fakeClock, plugins *fakePluginRepo) *fakeVersionRepo {
	return &fakeVersionRepo{
		clock:    clock,
		plugins:  plugins,
		versions: map[uuid.UUID]domain.PluginVersion{},
		fail:     map[string]error{},
	}
}

func (r *fakeVersionRepo) failWith(method string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[method] = err
}

func (r *fakeVersionRepo) get(id uuid.UUID) (domain.PluginVersion, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.versions[id]
	return v, ok
}

func (r *fakeVersionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.versions)
}

// put добавляет версию напрямую, минуя отправку
func (r *fakeVersionRepo) put(v domain.PluginVersion) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = r.clock.tick()
	}
	r.versions[v.ID] = v
}

func (r *fakeVersionRepo) update(id uuid.UUID, pending func(v domain.PluginVersion) bool, apply func(v *domain.PluginVersion)) bool {
	if r.beforeUpdate != nil {
		r.beforeUpdate(id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.versions[id]
	if !ok || v.DeletedAt != nil || !pending(v) {
		return false
	}
	apply(&v)
	v.UpdatedAt = r.clock.tick()
	r.versions[id] = v
	return true
}

func (r *fakeVersionRepo) Create(_ context.Context, version *domain.PluginVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail["Create"]; err != nil {
		return err
	}
	for _, v := range r.versions {
		if v.PluginID == version.PluginID && v.Version == version.Version && v.DeletedAt == nil {
			return fmt.Errorf("%w: %s", domain.ErrVersionConflict, version.Version)
		}
	}
	now := r.clock.tick()
	version.CreatedAt, version.UpdatedAt = now, now
	r.versions[version.ID] = *version
	return nil
}

func (r *fakeVersionRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.PluginVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail["GetByID"]; err != nil {
		return nil, err
	}
	v, ok := r.versions[id]
	if !ok || v.DeletedAt != nil {
		return nil, fmt.Errorf("%w: plugin version %s", domain.ErrResourceNotFound, id)
	}
	return &v, nil
}

func (r *fakeVersionRepo) GetByPluginAndVersion(_ context.Context, pluginID uuid.UUID, version string) (*domain.PluginVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail["GetByPluginAndVersion"]; err != nil {
		return nil, err
	}
	if r.skipLookup {
		return nil, nil
	}
	for _, v := range r.versions {
		if v.PluginID == pluginID && v.Version == version && v.DeletedAt == nil {
			return &v, nil
		}
	}
	return nil, nil
}

func (r *fakeVersionRepo) ListByPlugin(_ context.Context, pluginID uuid.UUID) ([]domain.PluginVersion, error) {
	out, err := r.listByPlugin(pluginID)
	if err != nil {
		return nil, err
	}
	if r.afterList != nil {
		r.afterList(pluginID)
	}
	return out, nil
}

func (r *fakeVersionRepo) listByPlugin(pluginID uuid.UUID) ([]domain.PluginVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail["ListByPlugin"]; err != nil {
		return nil, err
	}
	out := []domain.PluginVersion{}
	for _, v := range r.versions {
		if v.PluginID == pluginID && v.DeletedAt == nil {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeVersionRepo) ListByStatus(_ context.Context, statuses []domain.VersionStatus, limit, offset int) ([]domain.PluginVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.PluginVersion{}
	for _, v := range r.versions {
		if v.DeletedAt != nil {
			continue
		}
		for _, s := range statuses {
			if v.Status == s {
				out = append(out, v)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if offset >= len(out) {
		return []domain.PluginVersion{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// MarkPublished меняет версию и плагин атомарно: при ошибке плагина версия остается прежней
func (r *fakeVersionRepo) MarkPublished(_ context.Context, id uuid.UUID, art domain.PublishedArtifact) (bool, error) {
	if err := r.failure("MarkPublished"); err != nil {
		return false, err
	}
	if r.beforeUpdate != nil {
		r.beforeUpdate(id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.versions[id]
	if !ok || v.DeletedAt != nil || !v.Status.IsPending() {
		return false, nil
	}
	if err := r.plugins.publishLatest(v.PluginID, id); err != nil {
		return false, err
	}
	v.Status = domain.VersionStatusPublished
	v.StoragePath = &art.StoragePath
	v.StorageBucket = &art.StorageBucket
	v.TempStoragePath = nil
	v.TempStorageBucket = nil
	v.ReviewedBy = &art.ReviewedBy
	v.ReviewedAt = &art.ReviewedAt
	v.PublishedAt = &art.ReviewedAt
	v.UpdatedAt = r.clock.tick()
	r.versions[id] = v
	return true, nil
}

func (r *fakeVersionRepo) MarkRejected(_ context.Context, id uuid.UUID, reviewer, reason string, at time.Time) (bool, error) {
	if err := r.failure("MarkRejected"); err != nil {
		return false, err
	}
	return r.update(id,
		func(v domain.PluginVersion) bool { return v.Status.IsPending() },
		func(v *domain.PluginVersion) {
			v.Status = domain.VersionStatusRejected
			v.RejectionReason = &reason
			v.ReviewedBy = &reviewer
			v.ReviewedAt = &at
		}), nil
}

func (r *fakeVersionRepo) ClearTempPath(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.versions[id]
	v.TempStoragePath = nil
	v.TempStorageBucket = nil
	r.versions[id] = v
	return nil
}

func (r *fakeVersionRepo) MarkFlagged(_ context.Context, id uuid.UUID, reason string) (bool, error) {
	return r.update(id,
		func(v domain.PluginVersion) bool { return v.Status == domain.VersionStatusPublished },
		func(v *domain.PluginVersion) {
			v.Status = domain.VersionStatusFlagged
			v.IsFlagged = true
			v.FlagReason = &reason
		}), nil
}

func (r *fakeVersionRepo) MarkUnflagged(_ context.Context, id uuid.UUID) (bool, error) {
	return r.update(id,
		func(v domain.PluginVersion) bool { return v.Status == domain.VersionStatusFlagged },
		func(v *domain.PluginVersion) {
			v.Status = domain.VersionStatusPublished
			v.IsFlagged = false
			v.FlagReason = nil
		}), nil
}

func (r *fakeVersionRepo) IncrementDownloadCount(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail["IncrementDownloadCount"]; err != nil {
		return err
	}
	v, ok := r.versions[id]
	if !ok {
		return fmt.Errorf("%w: plugin version %s", domain.ErrResourceNotFound, id)
	}
	v.DownloadCount++
	r.versions[id] = v
	return nil
}

func (r *fakeVersionRepo) ListStaleTempArtifacts(_ context.Context, limit int) ([]domain.PluginVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.PluginVersion{}
	for _, v := range r.versions {
		if v.TempStoragePath != nil && !v.Status.IsPending() {
			out = append(out, v)
		}
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeVersionRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.versions, id)
	return nil
}

func (r *fakeVersionRepo) failure(method string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fail[method]
}

// failingStorage оборачивает MemoryStorage и отказывает по заданным операциям
type failingStorage struct {
	*s3.MemoryStorage
	mu   sync.Mutex
	fail map[string]error
}

func newFailingStorage() *failingStorage {
	return &failingStorage{MemoryStorage: s3.NewMemoryStorage(), fail: map[string]error{}}
}

// failOn операция и бакет в виде "put:temp"; пустой бакет означает любой
func (s *failingStorage) failOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[op] = err
}

func (s *failingStorage) check(op, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[op+":"+bucket]; err != nil {
		return err
	}
	return s.fail[op]
}

func (s *failingStorage) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	if err := s.check("put", bucket); err != nil {
		return err
	}
	return s.MemoryStorage.PutObject(ctx, bucket, key, data, contentType)
}

func (s *failingStorage) GetObject(ctx context.Context, bucket, key string) (s3.S3Object, error) {
	if err := s.check("get", bucket); err != nil {
		return nil, err
	}
	return s.MemoryStorage.GetObject(ctx, bucket, key)
}

func (s *failingStorage) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := s.check("delete", bucket); err != nil {
		return err
	}
	return s.MemoryStorage.DeleteObject(ctx, bucket, key)
}

func (s *failingStorage) ObjectExists(ctx context.Context, bucket, key string) (bool, error) {
	if err := s.check("exists", bucket); err != nil {
		return false, err
	}
	return s.MemoryStorage.ObjectExists(ctx, bucket, key)
}

func (s *failingStorage) PresignGetObject(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if err := s.check("presign", bucket); err != nil {
		return "", err
	}
	return s.MemoryStorage.PresignGetObject(ctx, bucket, key, ttl)
}
