package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synxronmarket/internal/domain"
)

func TestArtifactService_Stage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	data := []byte("package bytes")

	staged, err := env.artifacts.Stage(ctx, data, "", testPackageID, "1.0.0")
	require.NoError(t, err)

	assert.Equal(t, testTempBucket, staged.Bucket)
	assert.True(t, strings.HasPrefix(staged.Path, testPackageID+"/1.0.0/"))
	assert.True(t, strings.HasSuffix(staged.Path, ".synx"))
	assert.Equal(t, int64(len(data)), staged.Size)
	assert.Equal(t, env.artifacts.Checksum(data), staged.Checksum)
	assert.Len(t, staged.Checksum, 64)
	assert.True(t, env.storage.Has(testTempBucket, staged.Path))

	// одинаковые пакеты не пересекаются по ключу
	again, err := env.artifacts.Stage(ctx, data, "", testPackageID, "1.0.0")
	require.NoError(t, err)
	assert.NotEqual(t, staged.Path, again.Path)
}

func TestArtifactService_StageFailure(t *testing.T) {
	env := newTestEnv(t)
	env.storage.failOn("put", errors.New("bucket unavailable"))

	_, err := env.artifacts.Stage(context.Background(), []byte("x"), "", testPackageID, "1.0.0")
	assert.ErrorIs(t, err, domain.ErrStorageFailure)
}

func TestArtifactService_Sign(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	env.artifacts.now = func() time.Time { return fixed }

	require.NoError(t, env.storage.PutObject(ctx, testPermanentBucket, "a/v1.0.0/plugin.synx", []byte("x"), ""))

	signed, err := env.artifacts.Sign(ctx, "a/v1.0.0/plugin.synx", testPermanentBucket)
	require.NoError(t, err)
	assert.NotEmpty(t, signed.URL)
	assert.Equal(t, fixed.Add(15*time.Minute), signed.ExpiresAt)

	_, err = env.artifacts.Sign(ctx, "", testPermanentBucket)
	assert.ErrorIs(t, err, domain.ErrStorageFailure)
}

func TestArtifactService_Promote(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	staged, err := env.artifacts.Stage(ctx, []byte("payload"), "", testPackageID, "1.2.0")
	require.NoError(t, err)

	dest, err := env.artifacts.Promote(ctx, staged.Path, testPackageID, "1.2.0")
	require.NoError(t, err)
	assert.Equal(t, "com.example.weather/v1.2.0/plugin.synx", dest)
	assert.True(t, env.storage.Has(testPermanentBucket, dest))
	assert.False(t, env.storage.Has(testTempBucket, staged.Path))

	// повтор после завершенного переноса
	again, err := env.artifacts.Promote(ctx, staged.Path, testPackageID, "1.2.0")
	require.NoError(t, err)
	assert.Equal(t, dest, again)
}

func TestArtifactService_PromoteKeepsSourceOnUploadFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	staged, err := env.artifacts.Stage(ctx, []byte("payload"), "", testPackageID, "1.2.0")
	require.NoError(t, err)

	env.storage.failOn("put:"+testPermanentBucket, errors.New("write failed"))
	_, err = env.artifacts.Promote(ctx, staged.Path, testPackageID, "1.2.0")
	assert.ErrorIs(t, err, domain.ErrStorageFailure)
	assert.True(t, env.storage.Has(testTempBucket, staged.Path))
	assert.Empty(t, env.storage.Keys(testPermanentBucket))
}

func TestArtifactService_PromoteSourceDeleteFailureIsLogged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	staged, err := env.artifacts.Stage(ctx, []byte("payload"), "", testPackageID, "1.2.0")
	require.NoError(t, err)

	env.storage.failOn("delete:"+testTempBucket, errors.New("delete failed"))
	dest, err := env.artifacts.Promote(ctx, staged.Path, testPackageID, "1.2.0")
	require.NoError(t, err)
	assert.True(t, env.storage.Has(testPermanentBucket, dest))
	assert.True(t, env.storage.Has(testTempBucket, staged.Path))
}

func TestArtifactService_PromoteMissingSource(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.artifacts.Promote(context.Background(), "nowhere.synx", testPackageID, "9.9.9")
	assert.ErrorIs(t, err, domain.ErrStorageFailure)
}

func TestArtifactService_DeleteIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	assert.NoError(t, env.artifacts.Delete(ctx, "missing/object.synx", testTempBucket))
	assert.NoError(t, env.artifacts.Delete(ctx, "", testTempBucket))

	require.NoError(t, env.storage.PutObject(ctx, testTempBucket, "k", []byte("x"), ""))
	assert.NoError(t, env.artifacts.Delete(ctx, "k", testTempBucket))
	assert.NoError(t, env.artifacts.Delete(ctx, "k", testTempBucket))
	assert.False(t, env.storage.Has(testTempBucket, "k"))
}

func TestArtifactService_StoreIcon(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	icon := []byte("icon bytes")
	key := IconKey(env.artifacts.Checksum(icon), "Logo.PNG")
	assert.Equal(t, "icons/"+env.artifacts.Checksum(icon)+".png", key)

	path, uploaded, err := env.artifacts.StoreIcon(ctx, icon, "Logo.PNG", key)
	require.NoError(t, err)
	assert.True(t, uploaded)
	assert.Equal(t, key, path)
	assert.True(t, env.storage.Has(testIconBucket, key))

	// повторная загрузка пропускается
	env.storage.failOn("put", errors.New("must not upload"))
	path, uploaded, err = env.artifacts.StoreIcon(ctx, icon, "Logo.PNG", key)
	require.NoError(t, err)
	assert.False(t, uploaded)
	assert.Equal(t, key, path)
}

func TestIconContentType(t *testing.T) {
	tests := map[string]string{
		"icon.png":  "image/png",
		"icon.JPG":  "image/jpeg",
		"icon.jpeg": "image/jpeg",
		"icon.gif":  "image/gif",
		"icon.svg":  "image/svg+xml",
		"icon.webp": "image/webp",
		"icon.bmp":  "image/png",
		"icon":      "image/png",
	}
	for name, want := range tests {
		assert.Equal(t, want, IconContentType(name), name)
	}
}
