package avload

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// State is the loader's lifecycle state.
type State int32

const (
	StateUnloaded State = iota
	StateLoading
	StateLoaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Loader locates, opens, binds and validates the FFmpeg libraries.
//
// TryLoad runs synchronously on the calling goroutine. A failed attempt
// leaves no library loaded.
type Loader struct {
	mu    sync.Mutex
	cfg   Config
	sink  *LogSink
	state State
	rt    *Runtime

	logger     *zerolog.Logger
	newLibrary func() dynamicLibrary
	candidates func(Module) []string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithSink sets the log sink. The default is DefaultSink.
func WithSink(s *LogSink) LoaderOption {
	return func(l *Loader) { l.sink = s }
}

// WithLogger mirrors load log entries to logger. It applies to the sink
// given by WithSink in any option order; without WithSink the loader gets
// its own sink and DefaultSink is left alone.
func WithLogger(logger zerolog.Logger) LoaderOption {
	return func(l *Loader) { l.logger = &logger }
}

// WithCandidatePaths overrides candidate path generation.
func WithCandidatePaths(fn func(Module) []string) LoaderOption {
	return func(l *Loader) { l.candidates = fn }
}

// NewLoader creates a loader in StateUnloaded.
func NewLoader(cfg Config, opts ...LoaderOption) *Loader {
	l := &Loader{
		cfg:        cfg,
		sink:       DefaultSink,
		newLibrary: func() dynamicLibrary { return NewLibrary() },
	}
	l.candidates = func(m Module) []string { return CandidatePaths(m, l.cfg) }
	for _, opt := range opts {
		opt(l)
	}
	if l.logger != nil {
		if l.sink == DefaultSink {
			l.sink = NewLogSink(*l.logger)
		} else {
			l.sink.SetLogger(*l.logger)
		}
	}
	return l
}

// State returns the current state.
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Log returns the entries of the last attempt, plus anything the native
// library logged since.
func (l *Loader) Log() []LogEntry {
	return l.sink.Entries()
}

// Runtime returns the loaded runtime, or nil.
func (l *Loader) Runtime() *Runtime {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rt
}

// TryLoad loads every module in order avutil, avformat, avcodec,
// swresample. On success it returns the runtime; on failure every module
// loaded so far is unloaded again. The returned log is complete in both
// cases. Calling TryLoad while loaded tears the current runtime down first.
func (l *Loader) TryLoad() (*Runtime, []LogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rt != nil {
		l.unloadLocked()
	}

	l.sink.Reset()
	l.state = StateLoading

	rt, err := l.load()
	if err != nil {
		l.state = StateFailed
		return nil, l.sink.Entries(), err
	}
	l.rt = rt
	l.state = StateLoaded
	return rt, l.sink.Entries(), nil
}

func (l *Loader) load() (*Runtime, error) {
	root := moduleLog{sink: l.sink}
	rt := &Runtime{sink: l.sink}
	tables := [moduleCount]functionTable{}

	rollback := func() {
		for i := len(rt.libs) - 1; i >= 0; i-- {
			rt.libs[i].Unload()
		}
		rt.libs = nil
		root.Debug("rolled back all loaded modules")
	}

	for _, m := range Modules() {
		log := moduleLog{sink: l.sink, module: m.String()}

		lib, err := l.open(m, log)
		if err != nil {
			rollback()
			return nil, err
		}
		rt.libs = append(rt.libs, lib)
		rt.paths[m] = lib.Path()

		t := newTable(m)
		caps, err := bindTable(t, lib, log)
		if err != nil {
			if v, ok := readVersion(m, lib); ok {
				log.Info(fmt.Sprintf("detected version %s", v))
			}
			rollback()
			return nil, err
		}
		rt.caps |= caps
		tables[m] = t
	}

	rt.Util = tables[ModuleUtil].(*UtilFuncs)
	rt.Format = tables[ModuleFormat].(*FormatFuncs)
	rt.Codec = tables[ModuleCodec].(*CodecFuncs)
	rt.Resample = tables[ModuleResample].(*ResampleFuncs)

	for _, m := range Modules() {
		v := DecodeVersion(tables[m].versionFunc()())
		rt.versions.set(m, v)
		moduleLog{sink: l.sink, module: m.String()}.Info(fmt.Sprintf("version %s", v))
	}

	res := ValidateCombination(rt.versions)
	switch {
	case res.Blocking():
		root.Error(res.Err.Error())
		rollback()
		return nil, res.Err
	case res.Err != nil && l.cfg.StrictVersions:
		root.Error(fmt.Sprintf("untested combination (%s) rejected by strict_versions", rt.versions))
		rollback()
		return nil, res.Err
	case res.Err != nil:
		root.Warn(fmt.Sprintf("untested combination: %s", rt.versions))
	default:
		rt.release = res.Release
		root.Info(fmt.Sprintf("FFmpeg %s (%s)", res.Release, rt.versions))
	}

	rt.bridge = installLogBridge(rt, l.sink, parseNativeLevel(l.cfg.NativeLogLevel))
	root.Debug("native log bridge installed")

	if rt.caps.Has(CapLegacyRegisterAll) {
		rt.Format.RegisterAll()
	}
	if ret := rt.Format.NetworkInit(); ret < 0 {
		root.Warn(fmt.Sprintf("avformat_network_init returned %d", ret))
	}

	rt.refs.Store(1)
	return rt, nil
}

// open tries every candidate path for m until one loads.
func (l *Loader) open(m Module, log moduleLog) (dynamicLibrary, error) {
	paths := l.candidates(m)
	lib := l.newLibrary()
	last := ""
	for _, p := range paths {
		if lib.Load(p) {
			log.Info(fmt.Sprintf("loaded %s", p))
			return lib, nil
		}
		last = lib.LastError()
		log.Debug(fmt.Sprintf("cannot load %s: %s", p, last))
	}
	err := &LibraryError{Module: m, Tried: len(paths), Last: last}
	log.Error(err.Error())
	return nil, err
}

// UnloadAll releases the loader's runtime. The shared objects close once
// every wrapper holding the runtime has been closed. It is safe to call in
// any state and more than once.
func (l *Loader) UnloadAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unloadLocked()
}

func (l *Loader) unloadLocked() {
	if l.rt != nil {
		l.rt.closing.Store(true)
		l.rt.Release()
		l.rt = nil
	}
	l.state = StateUnloaded
}

var (
	defaultOnce    sync.Once
	defaultLoader  *Loader
	defaultRuntime *Runtime
	defaultErr     error
)

// Load loads the libraries once per process using ConfigFromEnv and
// DefaultSink.
func Load() (*Runtime, error) {
	defaultOnce.Do(func() {
		cfg, err := ConfigFromEnv()
		if err != nil {
			defaultErr = err
			return
		}
		defaultLoader = NewLoader(cfg)
		defaultRuntime, _, defaultErr = defaultLoader.TryLoad()
	})
	return defaultRuntime, defaultErr
}

// IsAvailable reports whether the FFmpeg libraries can be loaded.
func IsAvailable() bool {
	rt, err := Load()
	return err == nil && rt != nil
}

// IsLibraryNotFound reports whether err means no library file was found.
func IsLibraryNotFound(err error) bool {
	return errors.Is(err, ErrLibraryNotFound)
}
