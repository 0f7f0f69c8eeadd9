package avload

import (
	"fmt"
	"math/bits"
	"runtime"
	"strings"
	"unsafe"
)

// ChannelOrder mirrors enum AVChannelOrder.
type ChannelOrder int32

const (
	ChannelOrderUnspec    ChannelOrder = 0
	ChannelOrderNative    ChannelOrder = 1
	ChannelOrderCustom    ChannelOrder = 2
	ChannelOrderAmbisonic ChannelOrder = 3
)

func (o ChannelOrder) String() string {
	switch o {
	case ChannelOrderUnspec:
		return "unspec"
	case ChannelOrderNative:
		return "native"
	case ChannelOrderCustom:
		return "custom"
	case ChannelOrderAmbisonic:
		return "ambisonic"
	default:
		return fmt.Sprintf("order(%d)", int32(o))
	}
}

// CustomChannel is one entry of a custom channel map.
type CustomChannel struct {
	ID   int // enum AVChannel
	Name string
}

// ChannelLayout is an owned audio channel layout. Mask is meaningful for
// native and ambisonic orders, Custom for the custom order.
type ChannelLayout struct {
	Order    ChannelOrder
	Channels int
	Mask     uint64
	Custom   []CustomChannel
}

// LegacyChannelLayout builds a layout from the pre-avutil 57 channel_layout
// mask and channel count. A zero mask yields an unspecified order.
func LegacyChannelLayout(mask uint64, channels int) ChannelLayout {
	if mask == 0 {
		return ChannelLayout{Order: ChannelOrderUnspec, Channels: channels}
	}
	if channels == 0 {
		channels = bits.OnesCount64(mask)
	}
	return ChannelLayout{Order: ChannelOrderNative, Channels: channels, Mask: mask}
}

// IsZero reports whether the layout carries no information.
func (l ChannelLayout) IsZero() bool {
	return l.Channels == 0 && l.Mask == 0 && len(l.Custom) == 0
}

// avChannelLayout mirrors AVChannelLayout (avutil 57+).
type avChannelLayout struct {
	order      int32
	nbChannels int32
	u          uint64 // mask, or AVChannelCustom* for the custom order
	opaque     uintptr
}

// avChannelCustom mirrors AVChannelCustom.
type avChannelCustom struct {
	id     int32
	name   [16]byte
	opaque uintptr
}

// AVChannelLayout first appeared in avutil 57.
var channelLayoutOverlay = newOverlay("AVChannelLayout", ModuleUtil, VersionRange{Min: 57, Max: 60},
	variant(57, 60, decodeChannelLayout),
)

func decodeChannelLayout(ptr uintptr) (ChannelLayout, error) {
	raw := overlayAt[avChannelLayout](ptr)
	l := ChannelLayout{Order: ChannelOrder(raw.order), Channels: int(raw.nbChannels)}
	if l.Channels < 0 || l.Channels > maxArrayLen {
		return ChannelLayout{}, fmt.Errorf("%w: %d channels", ErrMalformedNativeData, l.Channels)
	}
	if l.Order != ChannelOrderCustom {
		l.Mask = raw.u
		return l, nil
	}
	if raw.u == 0 {
		return l, nil
	}
	l.Custom = make([]CustomChannel, l.Channels)
	base := uintptr(raw.u)
	for i := range l.Custom {
		c := overlayAt[avChannelCustom](base + uintptr(i)*unsafe.Sizeof(avChannelCustom{}))
		l.Custom[i] = CustomChannel{ID: int(c.id), Name: fixedString(c.name[:])}
	}
	return l, nil
}

// encode builds a native AVChannelLayout in Go memory. The returned map
// slice backs the custom order and must stay reachable while the layout is
// used.
func (l ChannelLayout) encode() (*avChannelLayout, []avChannelCustom) {
	raw := &avChannelLayout{order: int32(l.Order), nbChannels: int32(l.Channels), u: l.Mask}
	if l.Order != ChannelOrderCustom || len(l.Custom) == 0 {
		return raw, nil
	}
	m := make([]avChannelCustom, len(l.Custom))
	for i, c := range l.Custom {
		m[i].id = int32(c.ID)
		copy(m[i].name[:len(m[i].name)-1], c.Name)
	}
	raw.nbChannels = int32(len(m))
	raw.u = uint64(uintptr(unsafe.Pointer(&m[0])))
	return raw, m
}

// DescribeChannelLayout renders a layout the way FFmpeg prints it
// ("stereo", "5.1(side)", ...). It uses av_channel_layout_describe when
// available and falls back to the legacy mask API.
func (r *Runtime) DescribeChannelLayout(l ChannelLayout) (string, error) {
	buf := make([]byte, 256)
	switch {
	case r.caps.Has(CapChannelLayout):
		raw, m := l.encode()
		ret := r.Util.ChannelLayoutDescribe(uintptr(unsafe.Pointer(raw)), bufPtr(buf), uintptr(len(buf)))
		runtime.KeepAlive(raw)
		runtime.KeepAlive(m)
		if ret < 0 {
			return "", r.averror("av_channel_layout_describe", ret)
		}
	case r.caps.Has(CapLegacyChannelLayout) && l.Order != ChannelOrderCustom:
		r.Util.ChannelLayoutString(bufPtr(buf), int32(len(buf)), int32(l.Channels), l.Mask)
	default:
		return "", fmt.Errorf("describe channel layout: %w", ErrNotSupported)
	}
	return strings.TrimSpace(fixedString(buf)), nil
}

// DefaultChannelLayout returns FFmpeg's default layout for n channels.
func (r *Runtime) DefaultChannelLayout(n int) (ChannelLayout, error) {
	if !r.caps.Has(CapChannelLayout) {
		return ChannelLayout{}, fmt.Errorf("default channel layout: %w", ErrNotSupported)
	}
	raw := new(avChannelLayout)
	r.Util.ChannelLayoutDefault(uintptr(unsafe.Pointer(raw)), int32(n))
	l, err := channelLayoutOverlay.Decode(uintptr(unsafe.Pointer(raw)), r.Major(ModuleUtil))
	runtime.KeepAlive(raw)
	return l, err
}
