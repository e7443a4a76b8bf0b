package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorage_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStorage()

	require.NoError(t, m.PutObject(ctx, "temp", "a/b.synx", []byte("payload"), "application/zip"))
	assert.True(t, m.Has("temp", "a/b.synx"))
	assert.Equal(t, []string{"a/b.synx"}, m.Keys("temp"))

	obj, err := m.GetObject(ctx, "temp", "a/b.synx")
	require.NoError(t, err)
	defer obj.Close()
	data, err := io.ReadAll(obj)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.Equal(t, int64(7), obj.ContentLength())
	assert.Equal(t, "application/zip", obj.ContentType())

	require.NoError(t, m.DeleteObject(ctx, "temp", "a/b.synx"))
	assert.False(t, m.Has("temp", "a/b.synx"))

	// повторное удаление не ошибка
	require.NoError(t, m.DeleteObject(ctx, "temp", "a/b.synx"))
	require.NoError(t, m.DeleteObject(ctx, "unknown-bucket", "x"))
}

func TestMemoryStorage_GetMissing(t *testing.T) {
	_, err := NewMemoryStorage().GetObject(context.Background(), "temp", "nope")
	assert.True(t, errors.Is(err, ErrObjectNotFound))
}

func TestMemoryStorage_Presign(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStorage()

	_, err := m.PresignGetObject(ctx, "perm", "p/v1.0.0/plugin.synx", time.Minute)
	assert.Error(t, err)

	require.NoError(t, m.PutObject(ctx, "perm", "p/v1.0.0/plugin.synx", []byte("x"), ""))
	u, err := m.PresignGetObject(ctx, "perm", "p/v1.0.0/plugin.synx", time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "memory://perm/p/v1.0.0/plugin.synx?expires="))
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{Driver: DriverMemory, TempBucket: "temp", PermanentBucket: "perm"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "perm", cfg.IconBucket)
	assert.Equal(t, time.Hour, cfg.SignedURLTTL)

	cfg = &Config{Driver: DriverS3, TempBucket: "temp", PermanentBucket: "perm"}
	assert.Error(t, cfg.Validate())

	cfg = &Config{Driver: DriverMemory, PermanentBucket: "perm"}
	assert.Error(t, cfg.Validate())
}

func TestNewStorage_Memory(t *testing.T) {
	st, err := NewStorage(&Config{Driver: DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStorage{}, st)

	_, err = NewStorage(&Config{Driver: "ftp"})
	assert.Error(t, err)
}
