package avload

import (
	"fmt"
	"runtime"
	"strings"
	"unsafe"
)

// AVFMT_* flags relevant to demuxers.
const (
	FormatFlagNoFile       = 0x0001
	FormatFlagNeedNumber   = 0x0002
	FormatFlagShowIDs      = 0x0008
	FormatFlagNoTimestamps = 0x0080
	FormatFlagGenericIndex = 0x0100
	FormatFlagTSDiscont    = 0x0200
	FormatFlagNoBinSearch  = 0x2000
	FormatFlagNoGenSearch  = 0x4000
	FormatFlagNoByteSeek   = 0x8000
	FormatFlagSeekToPTS    = 0x4000000
)

// InputFormat describes a demuxer.
type InputFormat struct {
	Name       string // comma separated short names, e.g. "mov,mp4,m4a"
	LongName   string
	Flags      int
	Extensions []string
	MimeTypes  []string

	NoFile       bool
	NoTimestamps bool
	NoByteSeek   bool
}

// Names splits Name into its short names.
func (f InputFormat) Names() []string {
	return splitList(f.Name)
}

// avInputFormat mirrors the public prefix of AVInputFormat. avformat 58 also
// carries a next pointer, but only after the fields read here.
type avInputFormat struct {
	name       uintptr
	longName   uintptr
	flags      int32
	extensions uintptr
	codecTag   uintptr
	privClass  uintptr
	mimeType   uintptr
}

var inputFormatOverlay = newOverlay("AVInputFormat", ModuleFormat, supportedRanges[ModuleFormat],
	variant(58, 62, decodeInputFormat),
)

func decodeInputFormat(ptr uintptr) (InputFormat, error) {
	raw := overlayAt[avInputFormat](ptr)

	var strs [4]string
	for i, p := range []uintptr{raw.name, raw.longName, raw.extensions, raw.mimeType} {
		s, err := cString(p)
		if err != nil {
			return InputFormat{}, err
		}
		strs[i] = s
	}

	flags := int(raw.flags)
	return InputFormat{
		Name:         strs[0],
		LongName:     strs[1],
		Flags:        flags,
		Extensions:   splitList(strs[2]),
		MimeTypes:    splitList(strs[3]),
		NoFile:       flags&FormatFlagNoFile != 0,
		NoTimestamps: flags&FormatFlagNoTimestamps != 0,
		NoByteSeek:   flags&FormatFlagNoByteSeek != 0,
	}, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// InputFormats lists every registered demuxer.
func (r *Runtime) InputFormats() ([]InputFormat, error) {
	major := r.Major(ModuleFormat)
	opaque := new(uintptr)
	defer runtime.KeepAlive(opaque)

	var out []InputFormat
	for i := 0; i < maxArrayLen; i++ {
		p := r.Format.DemuxerIterate(uintptr(unsafe.Pointer(opaque)))
		if p == 0 {
			return out, nil
		}
		f, err := inputFormatOverlay.Decode(p, major)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return nil, fmt.Errorf("%w: demuxer list exceeds %d entries", ErrMalformedNativeData, maxArrayLen)
}

// FindInputFormat looks a demuxer up by short name.
func (r *Runtime) FindInputFormat(name string) (InputFormat, error) {
	ptr := r.Format.FindInputFormat(name)
	if ptr == 0 {
		return InputFormat{}, fmt.Errorf("input format %q: %w", name, ErrNotFound)
	}
	return inputFormatOverlay.Decode(ptr, r.Major(ModuleFormat))
}
