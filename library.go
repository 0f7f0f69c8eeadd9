package avload

import "sync"

// SymbolSource resolves exported symbols by name.
type SymbolSource interface {
	// Resolve returns the address of name, or false if it is not exported.
	Resolve(name string) (uintptr, bool)
}

// dynamicLibrary is a SymbolSource that can be opened and closed. Library is
// the production implementation; tests substitute in-memory fakes.
type dynamicLibrary interface {
	SymbolSource
	Load(path string) bool
	Unload()
	Path() string
	LastError() string
}

// Library owns at most one OS handle to a shared object.
type Library struct {
	mu      sync.Mutex
	path    string
	handle  uintptr
	lastErr string
}

// NewLibrary returns an unloaded Library.
func NewLibrary() *Library {
	return &Library{}
}

// Load opens the shared object at path, releasing any handle held before.
// It returns false when the file is missing, is not a shared object, or the
// platform loader rejects it; LastError holds the loader's reason.
func (l *Library) Load(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.unloadLocked()

	handle, err := openSharedObject(path)
	if err != nil || handle == 0 {
		if err != nil {
			l.lastErr = err.Error()
		} else {
			l.lastErr = "null handle"
		}
		return false
	}
	l.handle = handle
	l.path = path
	l.lastErr = ""
	return true
}

// Unload releases the OS handle. It is a no-op when nothing is loaded.
func (l *Library) Unload() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unloadLocked()
}

func (l *Library) unloadLocked() {
	if l.handle == 0 {
		return
	}
	if err := closeSharedObject(l.handle); err != nil {
		l.lastErr = err.Error()
	}
	l.handle = 0
	l.path = ""
}

// Resolve looks up one exported symbol. It never panics.
func (l *Library) Resolve(name string) (uintptr, bool) {
	l.mu.Lock()
	handle := l.handle
	l.mu.Unlock()

	if handle == 0 {
		return 0, false
	}
	addr, err := resolveSymbol(handle, name)
	if err != nil || addr == 0 {
		return 0, false
	}
	return addr, true
}

// Loaded reports whether a handle is held.
func (l *Library) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handle != 0
}

// Path returns the path of the loaded object, or "" when unloaded.
func (l *Library) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// LastError returns the reason of the last failed Load or Unload.
func (l *Library) LastError() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}
