//go:build darwin || freebsd || linux

package avload

import "github.com/ebitengine/purego"

func openSharedObject(path string) (uintptr, error) {
	return purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
}

func resolveSymbol(handle uintptr, name string) (uintptr, error) {
	return purego.Dlsym(handle, name)
}

func closeSharedObject(handle uintptr) error {
	return purego.Dlclose(handle)
}

// registerFunc installs a C function address into a Go func variable.
// Tests replace it to bind Go implementations instead of native code.
var registerFunc = purego.RegisterFunc

var newCallback = purego.NewCallback
