//go:build !(darwin || freebsd || linux)

package avload

import (
	"errors"
	"runtime"
)

var errPlatform = errors.New("dynamic loading not supported on " + runtime.GOOS)

func openSharedObject(string) (uintptr, error) { return 0, errPlatform }

func resolveSymbol(uintptr, string) (uintptr, error) { return 0, errPlatform }

func closeSharedObject(uintptr) error { return nil }

var registerFunc = func(fptr any, cfn uintptr) {
	panic("avload: " + errPlatform.Error())
}

var newCallback = func(fn any) uintptr { return 0 }
