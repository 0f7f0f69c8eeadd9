package avload

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLibraryFileNames(t *testing.T) {
	tests := []struct {
		goos  string
		m     Module
		first string
		last  string
		count int
	}{
		{"linux", ModuleCodec, "libavcodec.so.62", "libavcodec.so", 6},
		{"linux", ModuleResample, "libswresample.so.6", "libswresample.so", 5},
		{"darwin", ModuleUtil, "libavutil.60.dylib", "libavutil.dylib", 6},
		{"windows", ModuleFormat, "avformat-62.dll", "avformat.dll", 6},
	}
	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.m.String(), func(t *testing.T) {
			names := libraryFileNames(tt.m, tt.goos)
			require.Len(t, names, tt.count)
			assert.Equal(t, tt.first, names[0])
			assert.Equal(t, tt.last, names[len(names)-1])
		})
	}
}

func TestCandidatePaths_Order(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Paths["avcodec"] = "/opt/ffmpeg/libavcodec.so.61"
	cfg.SearchPaths = []string{"/custom"}

	paths := candidatePaths(ModuleCodec, cfg, "linux")
	require.NotEmpty(t, paths)
	assert.Equal(t, "/opt/ffmpeg/libavcodec.so.61", paths[0])
	assert.Equal(t, filepath.Join("/custom", "libavcodec.so.62"), paths[1])
	assert.Contains(t, paths, "libavcodec.so.58")
	assert.Contains(t, paths, filepath.Join("/usr/lib", "libavcodec.so.60"))

	bare := indexOf(paths, "libavcodec.so.62")
	system := indexOf(paths, filepath.Join("/usr/local/lib", "libavcodec.so.62"))
	assert.Less(t, indexOf(paths, filepath.Join("/custom", "libavcodec.so")), bare)
	assert.Less(t, bare, system)
}

func TestCandidatePaths_NoDuplicates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SearchPaths = []string{"/usr/lib", "/usr/lib"}
	seen := map[string]bool{}
	for _, p := range candidatePaths(ModuleUtil, cfg, "linux") {
		assert.False(t, seen[p], "duplicate %s", p)
		seen[p] = true
	}
}

func TestCandidatePaths_OtherModuleNotPinned(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Paths["avcodec"] = "/opt/ffmpeg/libavcodec.so.61"
	assert.NotContains(t, candidatePaths(ModuleUtil, cfg, "linux"), "/opt/ffmpeg/libavcodec.so.61")
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
