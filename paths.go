package avload

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// libraryFileNames returns the file names a module may be installed under on
// goos, versioned names first (newest major first), then the unversioned
// development name.
func libraryFileNames(m Module, goos string) []string {
	r := SupportedRange(m)
	base := m.String()

	var names []string
	for major := r.Max; major >= r.Min; major-- {
		switch goos {
		case "darwin":
			names = append(names, fmt.Sprintf("lib%s.%d.dylib", base, major))
		case "windows":
			names = append(names, fmt.Sprintf("%s-%d.dll", base, major))
		default:
			names = append(names, fmt.Sprintf("lib%s.so.%d", base, major))
		}
	}
	switch goos {
	case "darwin":
		names = append(names, "lib"+base+".dylib")
	case "windows":
		names = append(names, base+".dll")
	default:
		names = append(names, "lib"+base+".so")
	}
	return names
}

// systemLibraryDirs are searched after every configured location.
func systemLibraryDirs(goos string) []string {
	switch goos {
	case "darwin":
		return []string{
			"/opt/homebrew/lib",
			"/opt/homebrew/opt/ffmpeg/lib",
			"/usr/local/lib",
			"/usr/local/opt/ffmpeg/lib",
		}
	case "windows":
		return nil
	default:
		return []string{
			"/usr/local/lib",
			"/usr/lib",
			"/usr/lib64",
			"/usr/lib/x86_64-linux-gnu",
			"/usr/lib/aarch64-linux-gnu",
		}
	}
}

// CandidatePaths returns the ordered list of files to try for module m.
//
// Order:
//   - explicit per-module path from the configuration
//   - each configured search directory (AVLOAD_LIB_PATH)
//   - the executable's directory and ../lib next to it
//   - build/ under the module root (development checkouts)
//   - bare file names, resolved by the platform loader's own search path
//   - well-known system directories
func CandidatePaths(m Module, cfg Config) []string {
	return candidatePaths(m, cfg, runtime.GOOS)
}

func candidatePaths(m Module, cfg Config, goos string) []string {
	names := libraryFileNames(m, goos)
	seen := make(map[string]struct{})
	var paths []string
	add := func(p string) {
		if p == "" {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		paths = append(paths, p)
	}
	addDir := func(dir string) {
		if dir == "" {
			return
		}
		for _, n := range names {
			add(filepath.Join(dir, n))
		}
	}

	if p, ok := cfg.Paths[m.String()]; ok {
		add(p)
	}

	for _, dir := range cfg.SearchPaths {
		addDir(dir)
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		addDir(exeDir)
		addDir(filepath.Join(exeDir, "..", "lib"))
	}

	if moduleRoot := findModuleRoot(); moduleRoot != "" {
		addDir(filepath.Join(moduleRoot, "build"))
	}

	for _, n := range names {
		add(n)
	}

	for _, dir := range systemLibraryDirs(goos) {
		addDir(dir)
	}
	return paths
}

// findModuleRoot walks up from the working directory to the directory
// containing go.mod.
func findModuleRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}
