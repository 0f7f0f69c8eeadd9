package avload

import (
	"fmt"
	"reflect"
	"runtime"
	"sync"
	"testing"
	"unsafe"

	"github.com/rs/zerolog"
)

// The tests never open a real shared object. Symbols resolve to fake
// addresses that registerFunc maps back to Go implementations.
var (
	fakeMu    sync.Mutex
	fakeFuncs = map[uintptr]any{}
	fakeNext  uintptr
)

func fakeAddr(fn any) uintptr {
	fakeMu.Lock()
	defer fakeMu.Unlock()
	fakeNext += 16
	addr := 0x10000 + fakeNext
	fakeFuncs[addr] = fn
	return addr
}

func init() {
	registerFunc = func(fptr any, cfn uintptr) {
		fakeMu.Lock()
		fn, ok := fakeFuncs[cfn]
		fakeMu.Unlock()
		if !ok {
			panic(fmt.Sprintf("no fake function at %#x", cfn))
		}
		reflect.ValueOf(fptr).Elem().Set(reflect.ValueOf(fn))
	}
	newCallback = func(fn any) uintptr { return fakeAddr(fn) }
}

// fakeSymbols maps symbol names to Go implementations.
type fakeSymbols map[string]any

// fakeSystem maps file paths to the symbols the file exports.
type fakeSystem map[string]fakeSymbols

func (fs fakeSystem) newLibrary() dynamicLibrary { return &fakeLib{system: fs} }

type fakeLib struct {
	system  fakeSystem
	path    string
	syms    fakeSymbols
	addrs   map[string]uintptr
	lastErr string
	unloads int
}

func (l *fakeLib) Load(path string) bool {
	syms, ok := l.system[path]
	if !ok {
		l.lastErr = path + ": cannot open shared object file"
		return false
	}
	l.path, l.syms, l.addrs = path, syms, map[string]uintptr{}
	return true
}

func (l *fakeLib) Unload() {
	if l.path != "" {
		l.unloads++
	}
	l.path, l.syms = "", nil
}

func (l *fakeLib) Path() string      { return l.path }
func (l *fakeLib) LastError() string { return l.lastErr }

func (l *fakeLib) Resolve(name string) (uintptr, bool) {
	fn, ok := l.syms[name]
	if !ok {
		return 0, false
	}
	if addr, ok := l.addrs[name]; ok {
		return addr, true
	}
	addr := fakeAddr(fn)
	l.addrs[name] = addr
	return addr, true
}

// stubSymbols exports every symbol of m's table as a function returning
// zero values, plus version, configuration and license.
func stubSymbols(m Module, version uint32) fakeSymbols {
	syms := fakeSymbols{}
	for _, s := range newTable(m).symbols() {
		typ := reflect.TypeOf(s.fn).Elem()
		syms[s.name] = reflect.MakeFunc(typ, func([]reflect.Value) []reflect.Value {
			out := make([]reflect.Value, typ.NumOut())
			for i := range out {
				out[i] = reflect.Zero(typ.Out(i))
			}
			return out
		}).Interface()
	}
	syms[m.versionSymbol()] = func() uint32 { return version }
	syms[m.String()+"_configuration"] = func() string { return "--enable-shared" }
	syms[m.String()+"_license"] = func() string { return "LGPL version 2.1 or later" }
	return syms
}

// Versions of the FFmpeg release lines, as AV_VERSION_INT per module.
var releaseVersions = map[string][moduleCount]uint32{
	"4.x": {0x382A64, 0x3A1D64, 0x3A3664, 0x030964},
	"5.x": {0x391C64, 0x3B1B64, 0x3B3764, 0x040A64},
	"6.x": {0x3A0264, 0x3C0364, 0x3C0364, 0x040A64},
	"7.x": {0x3B2764, 0x3D0764, 0x3D1364, 0x050364},
	"8.x": {0x3C0864, 0x3E0364, 0x3E0B64, 0x060164},
}

func fakePath(m Module) string { return "/fake/lib" + m.String() + ".so" }

// fakeRelease exports stubs of every module at the versions of one release.
func fakeRelease(name string) fakeSystem {
	v := releaseVersions[name]
	fs := fakeSystem{}
	for _, m := range Modules() {
		fs[fakePath(m)] = stubSymbols(m, v[m])
	}
	return fs
}

func newFakeLoader(fs fakeSystem, cfg Config) (*Loader, *LogSink) {
	sink := NewLogSink(zerolog.Nop())
	l := NewLoader(cfg, WithSink(sink), WithCandidatePaths(func(m Module) []string {
		return []string{fakePath(m)}
	}))
	l.newLibrary = fs.newLibrary
	return l, sink
}

// loadFake loads a fake release and unloads it when the test ends.
func loadFake(t *testing.T, fs fakeSystem) *Runtime {
	t.Helper()
	l, _ := newFakeLoader(fs, DefaultConfig())
	rt, _, err := l.TryLoad()
	if err != nil {
		t.Fatalf("TryLoad: %v", err)
	}
	t.Cleanup(l.UnloadAll)
	return rt
}

// arena keeps Go memory handed out as native pointers reachable for the
// duration of a test.
type arena struct {
	keep []any
}

func newArena(t *testing.T) *arena {
	a := &arena{}
	t.Cleanup(func() { runtime.KeepAlive(a) })
	return a
}

// str returns a NUL-terminated copy of s.
func (a *arena) str(s string) uintptr {
	b := append([]byte(s), 0)
	a.keep = append(a.keep, b)
	return uintptr(unsafe.Pointer(&b[0]))
}

// strs returns a NULL-terminated array of C strings.
func (a *arena) strs(ss ...string) uintptr {
	arr := make([]uintptr, len(ss)+1)
	for i, s := range ss {
		arr[i] = a.str(s)
	}
	return a.ptrs(arr...)
}

func (a *arena) ptrs(ps ...uintptr) uintptr {
	arr := append([]uintptr(nil), ps...)
	a.keep = append(a.keep, arr)
	return uintptr(unsafe.Pointer(&arr[0]))
}

func (a *arena) bytes(b []byte) uintptr {
	a.keep = append(a.keep, b)
	return uintptr(unsafe.Pointer(&b[0]))
}

// pin keeps v reachable and returns its address.
func pin[T any](a *arena, v *T) uintptr {
	a.keep = append(a.keep, v)
	return uintptr(unsafe.Pointer(v))
}
