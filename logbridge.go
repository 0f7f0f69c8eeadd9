package avload

import (
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/rs/zerolog"
)

// av_log levels.
const (
	avLogQuiet   = -8
	avLogPanic   = 0
	avLogFatal   = 8
	avLogError   = 16
	avLogWarning = 24
	avLogInfo    = 32
	avLogVerbose = 40
	avLogDebug   = 48
	avLogTrace   = 56
)

const logLineSize = 1024

// The av_log callback has a fixed C signature and no user pointer, so the
// bridge state lives in a package variable. Only one runtime can own the
// native callback at a time; it is the last one installed.
var (
	bridgeOnce     sync.Once
	bridgeCallback uintptr
	bridgeTarget   atomic.Pointer[logBridge]
)

type logBridge struct {
	sink  *LogSink
	util  *UtilFuncs
	line2 bool
	level atomic.Int32 // av_log level threshold
}

// avLogCallback is invoked by libavutil, possibly from its own threads.
// Signature: void (*)(void *avcl, int level, const char *fmt, va_list vl).
func avLogCallback(avcl uintptr, level int32, format uintptr, vl uintptr) {
	b := bridgeTarget.Load()
	if b == nil || level > b.level.Load() {
		return
	}

	line := make([]byte, logLineSize)
	printPrefix := new(int32)
	*printPrefix = 1

	linePtr := uintptr(unsafe.Pointer(&line[0]))
	prefixPtr := uintptr(unsafe.Pointer(printPrefix))
	if b.line2 {
		b.util.LogFormatLine2(avcl, level, format, vl, linePtr, logLineSize, prefixPtr)
	} else {
		b.util.LogFormatLine(avcl, level, format, vl, linePtr, logLineSize, prefixPtr)
	}
	runtime.KeepAlive(line)
	runtime.KeepAlive(printPrefix)

	msg := strings.TrimRight(fixedString(line), "\r\n")
	if msg == "" {
		return
	}
	b.sink.Append(LogEntry{Level: nativeToLevel(level), Source: SourceNative, Message: msg})
}

// installLogBridge routes av_log output of rt into sink.
func installLogBridge(rt *Runtime, sink *LogSink, level int32) *logBridge {
	bridgeOnce.Do(func() {
		bridgeCallback = newCallback(avLogCallback)
	})

	b := &logBridge{
		sink:  sink,
		util:  rt.Util,
		line2: rt.caps.Has(CapLogFormatLine2),
	}
	b.level.Store(level)
	bridgeTarget.Store(b)

	rt.Util.LogSetLevel(level)
	if bridgeCallback != 0 {
		rt.Util.LogSetCallback(bridgeCallback)
	}
	return b
}

// removeLogBridge restores libavutil's default callback if b is still the
// active bridge.
func removeLogBridge(b *logBridge, src SymbolSource) {
	if b == nil || !bridgeTarget.CompareAndSwap(b, nil) {
		return
	}
	if addr, ok := src.Resolve("av_log_default_callback"); ok {
		b.util.LogSetCallback(addr)
	}
}

// nativeToLevel maps an av_log level to a zerolog level.
func nativeToLevel(level int32) zerolog.Level {
	switch {
	case level <= avLogPanic:
		return zerolog.PanicLevel
	case level <= avLogFatal:
		return zerolog.FatalLevel
	case level <= avLogError:
		return zerolog.ErrorLevel
	case level <= avLogWarning:
		return zerolog.WarnLevel
	case level <= avLogInfo:
		return zerolog.InfoLevel
	case level <= avLogDebug:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// levelToNative maps a zerolog level to the av_log threshold that lets the
// same severities through.
func levelToNative(level zerolog.Level) int32 {
	switch level {
	case zerolog.TraceLevel:
		return avLogTrace
	case zerolog.DebugLevel:
		return avLogDebug
	case zerolog.InfoLevel:
		return avLogInfo
	case zerolog.WarnLevel:
		return avLogWarning
	case zerolog.ErrorLevel:
		return avLogError
	case zerolog.FatalLevel:
		return avLogFatal
	case zerolog.PanicLevel:
		return avLogPanic
	default:
		return avLogQuiet
	}
}

// parseNativeLevel parses a Config.NativeLogLevel value.
func parseNativeLevel(s string) int32 {
	switch strings.ToLower(s) {
	case "", "warn", "warning":
		return avLogWarning
	case "quiet", "off", "disabled":
		return avLogQuiet
	case "verbose":
		return avLogVerbose
	}
	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return avLogWarning
	}
	return levelToNative(level)
}
