package avload

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Runtime is a successfully loaded set of FFmpeg libraries. The function
// tables and versions are immutable and safe for concurrent use.
//
// A Runtime is reference counted: wrappers that keep native objects alive
// (Demuxer, Decoder, Packet, Frame) hold a reference, and the shared objects
// are only closed once the loader has released its own reference and every
// wrapper has been closed.
type Runtime struct {
	Util     *UtilFuncs
	Format   *FormatFuncs
	Codec    *CodecFuncs
	Resample *ResampleFuncs

	versions LibraryVersions
	caps     Capabilities
	release  string
	paths    [moduleCount]string

	libs   []dynamicLibrary // load order
	bridge *logBridge
	sink   *LogSink

	refs       atomic.Int32
	closing    atomic.Bool
	unloadOnce sync.Once
}

// Versions returns the detected library versions.
func (r *Runtime) Versions() LibraryVersions { return r.versions }

// Major returns the detected major version of m.
func (r *Runtime) Major(m Module) int { return r.versions.Of(m).Major }

// Capabilities returns the optional API paths available.
func (r *Runtime) Capabilities() Capabilities { return r.caps }

// ReleaseLine returns the matching FFmpeg release line ("6.x"), or "" when
// the version combination is not a known one.
func (r *Runtime) ReleaseLine() string { return r.release }

// Path returns the file the module was loaded from.
func (r *Runtime) Path(m Module) string {
	if m >= moduleCount {
		return ""
	}
	return r.paths[m]
}

// Configuration returns the build configuration string of m.
func (r *Runtime) Configuration(m Module) string {
	if info := r.info(m); info != nil {
		return info.Configuration()
	}
	return ""
}

// License returns the license string of m.
func (r *Runtime) License(m Module) string {
	if info := r.info(m); info != nil {
		return info.License()
	}
	return ""
}

func (r *Runtime) info(m Module) *moduleInfo {
	switch m {
	case ModuleUtil:
		return &r.Util.moduleInfo
	case ModuleFormat:
		return &r.Format.moduleInfo
	case ModuleCodec:
		return &r.Codec.moduleInfo
	case ModuleResample:
		return &r.Resample.moduleInfo
	}
	return nil
}

// SetNativeLogLevel changes the av_log threshold forwarded to the log sink.
func (r *Runtime) SetNativeLogLevel(level zerolog.Level) {
	native := levelToNative(level)
	r.Util.LogSetLevel(native)
	if r.bridge != nil {
		r.bridge.level.Store(native)
	}
}

// NativeLogLevel reports the av_log threshold libavutil currently applies.
func (r *Runtime) NativeLogLevel() zerolog.Level {
	level := r.Util.LogGetLevel()
	if level <= avLogQuiet {
		return zerolog.Disabled
	}
	return nativeToLevel(level)
}

// Acquire takes a reference that keeps the libraries loaded. It fails once
// unloading has been requested.
func (r *Runtime) Acquire() error {
	for {
		n := r.refs.Load()
		if n <= 0 || r.closing.Load() {
			return ErrRuntimeClosed
		}
		if r.refs.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// Release drops a reference. The last release unloads the libraries.
func (r *Runtime) Release() {
	if r.refs.Add(-1) == 0 {
		r.unload()
	}
}

// Closed reports whether the libraries have been unloaded.
func (r *Runtime) Closed() bool {
	return r.refs.Load() <= 0
}

func (r *Runtime) unload() {
	r.unloadOnce.Do(func() {
		if len(r.libs) > 0 {
			removeLogBridge(r.bridge, r.libs[0])
		}
		for i := len(r.libs) - 1; i >= 0; i-- {
			r.libs[i].Unload()
		}
		if r.sink != nil {
			r.sink.Append(LogEntry{Level: zerolog.DebugLevel, Source: SourceLoader, Message: "libraries unloaded"})
		}
	})
}

// averror converts a negative return code into an *AVError.
func (r *Runtime) averror(op string, code int32) error {
	if code >= 0 {
		return nil
	}
	return &AVError{Code: int(code), Op: op, Msg: r.Strerror(code)}
}

// Strerror describes an FFmpeg error code.
func (r *Runtime) Strerror(code int32) string {
	buf := make([]byte, 128)
	if r.Util.Strerror(code, bufPtr(buf), uintptr(len(buf))) < 0 {
		return fmt.Sprintf("unknown error %d", code)
	}
	return fixedString(buf)
}

// MediaTypeString returns the name of an AVMediaType ("video", "audio", ...).
func (r *Runtime) MediaTypeString(t MediaType) string {
	return goString(r.Util.MediaTypeString(int32(t)))
}

// MediaType mirrors enum AVMediaType.
type MediaType int32

const (
	MediaTypeUnknown    MediaType = -1
	MediaTypeVideo      MediaType = 0
	MediaTypeAudio      MediaType = 1
	MediaTypeData       MediaType = 2
	MediaTypeSubtitle   MediaType = 3
	MediaTypeAttachment MediaType = 4
)

func (t MediaType) String() string {
	switch t {
	case MediaTypeVideo:
		return "video"
	case MediaTypeAudio:
		return "audio"
	case MediaTypeData:
		return "data"
	case MediaTypeSubtitle:
		return "subtitle"
	case MediaTypeAttachment:
		return "attachment"
	default:
		return "unknown"
	}
}
