package service

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const (
	testTempBucket      = "plugins-temp"
	testPermanentBucket = "plugins"
	testIconBucket      = "plugin-icons"
	testPackageID       = "com.example.weather"
)

type testEnv struct {
	clock      *fakeClock
	plugins    *fakePluginRepo
	versions   *fakeVersionRepo
	storage    *failingStorage
	artifacts  *ArtifactService
	submission *SubmissionService
	review     *ReviewService
	catalog    *PluginService
	dispatcher *Dispatcher
	log        *zap.Logger
}

func newTestEnv(t *testing.T, checks ...SafetyCheck) *testEnv {
	t.Helper()

	log := zaptest.NewLogger(t)
	clock := newFakeClock()
	plugins := newFakePluginRepo(clock)
	env := &testEnv{
		clock:    clock,
		plugins:  plugins,
		versions: newFakeVersionRepo(clock, plugins),
		storage:  newFailingStorage(),
		log:      log,
	}
	env.artifacts = NewArtifactService(env.storage, ArtifactConfig{
		TempBucket:      testTempBucket,
		PermanentBucket: testPermanentBucket,
		IconBucket:      testIconBucket,
		SignedURLTTL:    15 * time.Minute,
	}, log)
	env.dispatcher = NewDispatcher(1, 16, time.Second, log)
	t.Cleanup(env.dispatcher.Close)

	env.submission = NewSubmissionService(env.plugins, env.versions, env.artifacts, NewPackageReader(1<<20), time.Second, log)
	env.review = NewReviewService(env.plugins, env.versions, env.artifacts, SafetyChecks(checks), time.Second, log)
	env.catalog = NewPluginService(env.plugins, env.versions, env.artifacts, env.dispatcher, log)
	return env
}

// buildPackage собирает zip-пакет из набора файлов
func buildPackage(t *testing.T, files map[string][]byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, data := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func manifestJSON(t *testing.T, fields map[string]any) []byte {
	t.Helper()
	data, err := json.Marshal(fields)
	require.NoError(t, err)
	return data
}

// pluginPackage пакет с манифестом, кодом и иконкой
func pluginPackage(t *testing.T, version, minApp string) []byte {
	t.Helper()
	return buildPackage(t, map[string][]byte{
		"manifest.json": manifestJSON(t, map[string]any{
			"name":            "Weather",
			"version":         version,
			"author":          "Example Inc",
			"min_app_version": minApp,
			"permissions":     []string{"network"},
		}),
		"index.js": []byte("export default function main() {}"),
		"icon.png": []byte("\x89PNG fake icon"),
	})
}

func strPtr(s string) *string {
	return &s
}
