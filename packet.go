package avload

import (
	"errors"
	"fmt"
	"unsafe"
)

// AV_PKT_FLAG_* bits.
const (
	PacketFlagKey     = 0x0001
	PacketFlagCorrupt = 0x0002
	PacketFlagDiscard = 0x0004
)

const maxPacketSize = 1 << 30

// PacketInfo is an owned snapshot of an AVPacket's header. The payload is
// copied separately by Packet.Data.
type PacketInfo struct {
	PTS         int64
	DTS         int64
	Size        int
	StreamIndex int
	Flags       int
	Duration    int64
	Pos         int64
	NbSideData  int

	data uintptr
}

// KeyFrame reports whether the packet starts a key frame.
func (p PacketInfo) KeyFrame() bool { return p.Flags&PacketFlagKey != 0 }

// Corrupt reports whether the demuxer flagged the packet as corrupt.
func (p PacketInfo) Corrupt() bool { return p.Flags&PacketFlagCorrupt != 0 }

// avPacket mirrors the public prefix of AVPacket, stable from avcodec 58 to
// 62. Later fields (opaque, time_base) are not read.
type avPacket struct {
	buf           uintptr
	pts           int64
	dts           int64
	data          uintptr
	size          int32
	streamIndex   int32
	flags         int32
	sideData      uintptr
	sideDataElems int32
	duration      int64
	pos           int64
}

var packetOverlay = newOverlay("AVPacket", ModuleCodec, supportedRanges[ModuleCodec],
	variant(58, 62, decodePacket),
)

func decodePacket(ptr uintptr) (PacketInfo, error) {
	raw := overlayAt[avPacket](ptr)
	if raw.size < 0 {
		return PacketInfo{}, fmt.Errorf("%w: packet size %d", ErrMalformedNativeData, raw.size)
	}
	return PacketInfo{
		PTS:         raw.pts,
		DTS:         raw.dts,
		Size:        int(raw.size),
		StreamIndex: int(raw.streamIndex),
		Flags:       int(raw.flags),
		Duration:    raw.duration,
		Pos:         raw.pos,
		NbSideData:  int(raw.sideDataElems),
		data:        raw.data,
	}, nil
}

// Packet owns an AVPacket. It holds a runtime reference until Free.
type Packet struct {
	r   *Runtime
	ptr *uintptr // AVPacket*, boxed so av_packet_free can clear it
}

// NewPacket allocates an empty packet.
func (r *Runtime) NewPacket() (*Packet, error) {
	if err := r.Acquire(); err != nil {
		return nil, err
	}
	p := r.Codec.PacketAlloc()
	if p == 0 {
		r.Release()
		return nil, errors.New("av_packet_alloc: out of memory")
	}
	return &Packet{r: r, ptr: &p}, nil
}

func (p *Packet) native() uintptr {
	if p == nil || p.ptr == nil {
		return 0
	}
	return *p.ptr
}

// Info decodes the packet header.
func (p *Packet) Info() (PacketInfo, error) {
	if p.native() == 0 {
		return PacketInfo{}, ErrNullRecord
	}
	return packetOverlay.Decode(p.native(), p.r.Major(ModuleCodec))
}

// Data copies the packet payload.
func (p *Packet) Data() ([]byte, error) {
	info, err := p.Info()
	if err != nil {
		return nil, err
	}
	return copyBytes(info.data, info.Size, maxPacketSize)
}

// Unref drops the payload so the packet can be reused.
func (p *Packet) Unref() {
	if ptr := p.native(); ptr != 0 {
		p.r.Codec.PacketUnref(ptr)
	}
}

// Free releases the packet. It is safe to call more than once.
func (p *Packet) Free() {
	if p.native() == 0 {
		return
	}
	p.r.Codec.PacketFree(uintptr(unsafe.Pointer(p.ptr)))
	*p.ptr = 0
	p.r.Release()
}
