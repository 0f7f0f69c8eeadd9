package avload

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

// RTPConfig configures a StreamPacketizer.
type RTPConfig struct {
	SSRC        uint32
	PayloadType uint8
	MTU         uint16 // default 1200
	Timestamp   uint32 // RTP timestamp of PTS 0
}

const defaultMTU = 1200

// rtpCodec describes how one codec is carried over RTP.
type rtpCodec struct {
	mimeType  string
	clockRate uint32
	channels  uint16
	payloader func() rtp.Payloader
}

// Codecs with an RTP payload format, keyed by FFmpeg codec name.
var rtpCodecs = map[string]rtpCodec{
	"h264":      {mimeType: "video/H264", clockRate: 90000, payloader: func() rtp.Payloader { return &codecs.H264Payloader{} }},
	"vp8":       {mimeType: "video/VP8", clockRate: 90000, payloader: func() rtp.Payloader { return &codecs.VP8Payloader{EnablePictureID: true} }},
	"vp9":       {mimeType: "video/VP9", clockRate: 90000, payloader: func() rtp.Payloader { return &codecs.VP9Payloader{} }},
	"av1":       {mimeType: "video/AV1", clockRate: 90000, payloader: func() rtp.Payloader { return &codecs.AV1Payloader{} }},
	"opus":      {mimeType: "audio/opus", clockRate: 48000, channels: 2, payloader: func() rtp.Payloader { return &codecs.OpusPayloader{} }},
	"pcm_mulaw": {mimeType: "audio/PCMU", clockRate: 8000, channels: 1, payloader: func() rtp.Payloader { return &codecs.G711Payloader{} }},
	"pcm_alaw":  {mimeType: "audio/PCMA", clockRate: 8000, channels: 1, payloader: func() rtp.Payloader { return &codecs.G711Payloader{} }},
}

// ErrNoRTPPayloadFormat is returned for codecs without an RTP mapping.
var ErrNoRTPPayloadFormat = errors.New("avload: codec has no RTP payload format")

// StreamPacketizer turns demuxed packets of one stream into RTP packets.
// RTP timestamps follow the packet PTS rescaled to the codec clock.
type StreamPacketizer struct {
	mu         sync.Mutex
	codec      string
	info       rtpCodec
	timeBase   Rational
	packetizer rtp.Packetizer
	base       uint32

	// H.264 in MP4/MKV is length-prefixed (avcC); RTP wants Annex B.
	nalLengthSize int
	paramSets     []byte
}

// NewStreamPacketizer creates a packetizer for stream s carrying codec
// (an FFmpeg codec name such as "h264").
func NewStreamPacketizer(codec string, s StreamInfo, cfg RTPConfig) (*StreamPacketizer, error) {
	info, ok := rtpCodecs[codec]
	if !ok {
		return nil, fmt.Errorf("%s: %w", codec, ErrNoRTPPayloadFormat)
	}
	if s.TimeBase.Den == 0 {
		return nil, fmt.Errorf("stream %d: zero time base", s.Index)
	}
	mtu := cfg.MTU
	if mtu == 0 {
		mtu = defaultMTU
	}

	sp := &StreamPacketizer{
		codec:      codec,
		info:       info,
		timeBase:   s.TimeBase,
		base:       cfg.Timestamp,
		packetizer: rtp.NewPacketizer(mtu, cfg.PayloadType, cfg.SSRC, info.payloader(), rtp.NewRandomSequencer(), info.clockRate),
	}
	if codec == "h264" {
		size, sets, err := parseAVCC(s.Codec.Extradata)
		if err != nil {
			return nil, fmt.Errorf("stream %d: %w", s.Index, err)
		}
		sp.nalLengthSize, sp.paramSets = size, sets
	}
	return sp, nil
}

// NewStreamPacketizer resolves the codec name of s and creates a packetizer.
func (r *Runtime) NewStreamPacketizer(s StreamInfo, cfg RTPConfig) (*StreamPacketizer, error) {
	return NewStreamPacketizer(r.CodecName(s.Codec.CodecID), s, cfg)
}

// Codec is the FFmpeg codec name the packetizer was created for.
func (sp *StreamPacketizer) Codec() string { return sp.codec }

// MimeType is the RTP MIME type of the stream.
func (sp *StreamPacketizer) MimeType() string { return sp.info.mimeType }

// ClockRate is the RTP clock rate of the stream.
func (sp *StreamPacketizer) ClockRate() uint32 { return sp.info.clockRate }

// Packetize splits one demuxed packet into RTP packets. The last packet
// carries the marker bit.
func (sp *StreamPacketizer) Packetize(info PacketInfo, data []byte) ([]*rtp.Packet, error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if len(data) == 0 {
		return nil, nil
	}
	payload := data
	if sp.nalLengthSize > 0 {
		var err error
		if payload, err = sp.annexB(data, info.KeyFrame()); err != nil {
			return nil, err
		}
	}

	ts := info.PTS
	if ts == NoPTS {
		ts = info.DTS
	}
	rtpTS := sp.base + uint32(rescale(ts, sp.timeBase, int64(sp.info.clockRate)))

	pkts := sp.packetizer.Packetize(payload, 0)
	for _, p := range pkts {
		p.Timestamp = rtpTS
	}
	return pkts, nil
}

// rescale converts ts from units of tb to units of 1/rate.
func rescale(ts int64, tb Rational, rate int64) int64 {
	if ts == NoPTS || tb.Den == 0 {
		return 0
	}
	return ts * int64(tb.Num) * rate / int64(tb.Den)
}

var annexBStartCode = []byte{0, 0, 0, 1}

// annexB rewrites length-prefixed NAL units with start codes and prepends
// SPS/PPS to key frames.
func (sp *StreamPacketizer) annexB(data []byte, key bool) ([]byte, error) {
	out := make([]byte, 0, len(data)+len(sp.paramSets)+16)
	if key {
		out = append(out, sp.paramSets...)
	}
	n := sp.nalLengthSize
	for len(data) > 0 {
		if len(data) < n {
			return nil, fmt.Errorf("%w: truncated NAL length", ErrMalformedNativeData)
		}
		var size int
		for _, b := range data[:n] {
			size = size<<8 | int(b)
		}
		data = data[n:]
		if size > len(data) {
			return nil, fmt.Errorf("%w: NAL unit of %d bytes exceeds packet", ErrMalformedNativeData, size)
		}
		out = append(out, annexBStartCode...)
		out = append(out, data[:size]...)
		data = data[size:]
	}
	return out, nil
}

// parseAVCC reads an AVCDecoderConfigurationRecord. Extradata that is not
// avcC (empty, or already Annex B) yields a zero length size.
func parseAVCC(extra []byte) (lengthSize int, paramSets []byte, err error) {
	if len(extra) < 7 || extra[0] != 1 {
		return 0, nil, nil
	}
	lengthSize = int(extra[4]&0x03) + 1
	if lengthSize == 3 {
		return 0, nil, fmt.Errorf("%w: avcC length size 3", ErrMalformedNativeData)
	}

	rest := extra[5:]
	readSets := func(count int) error {
		for i := 0; i < count; i++ {
			if len(rest) < 2 {
				return fmt.Errorf("%w: truncated avcC", ErrMalformedNativeData)
			}
			size := int(binary.BigEndian.Uint16(rest))
			rest = rest[2:]
			if size > len(rest) {
				return fmt.Errorf("%w: truncated avcC parameter set", ErrMalformedNativeData)
			}
			paramSets = append(paramSets, annexBStartCode...)
			paramSets = append(paramSets, rest[:size]...)
			rest = rest[size:]
		}
		return nil
	}

	numSPS := int(rest[0] & 0x1F)
	rest = rest[1:]
	if err := readSets(numSPS); err != nil {
		return 0, nil, err
	}
	if len(rest) < 1 {
		return 0, nil, fmt.Errorf("%w: avcC without PPS count", ErrMalformedNativeData)
	}
	numPPS := int(rest[0])
	rest = rest[1:]
	if err := readSets(numPPS); err != nil {
		return 0, nil, err
	}
	return lengthSize, paramSets, nil
}
