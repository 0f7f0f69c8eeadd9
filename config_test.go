package avload

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.NativeLogLevel)
	assert.False(t, cfg.StrictVersions)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.NotNil(t, cfg.Paths)
}

func TestConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("AVLOAD_LIB_PATH", "/a"+string(os.PathListSeparator)+"/b")
	t.Setenv("AVLOAD_STRICT_VERSIONS", "true")
	t.Setenv("AVLOAD_NATIVE_LOG_LEVEL", "debug")
	t.Setenv("AVLOAD_LOG_FORMAT", "json")
	t.Setenv("AVLOAD_AVCODEC_PATH", "/opt/libavcodec.so.61")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/b"}, cfg.SearchPaths)
	assert.True(t, cfg.StrictVersions)
	assert.Equal(t, "debug", cfg.NativeLogLevel)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "/opt/libavcodec.so.61", cfg.Paths["avcodec"])
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "avload.yaml")
	err := os.WriteFile(path, []byte(`
search_paths:
  - /srv/ffmpeg/lib
strict_versions: true
native_log_level: error
paths:
  swresample: /srv/ffmpeg/lib/libswresample.so.5
log:
  level: debug
`), 0o644)
	require.NoError(t, err)

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/srv/ffmpeg/lib"}, cfg.SearchPaths)
	assert.True(t, cfg.StrictVersions)
	assert.Equal(t, "error", cfg.NativeLogLevel)
	assert.Equal(t, "/srv/ffmpeg/lib/libswresample.so.5", cfg.Paths["swresample"])
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigFile_EnvWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "avload.yaml")
	require.NoError(t, os.WriteFile(path, []byte("native_log_level: error\n"), 0o644))
	t.Setenv("AVLOAD_NATIVE_LOG_LEVEL", "info")

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.NativeLogLevel)
}

func TestLoadConfigFile_Missing(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
