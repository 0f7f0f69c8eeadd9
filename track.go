package avload

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// StreamTrack publishes one demuxed stream as a WebRTC local track. Packets
// written to it are packetized once and forwarded to every peer connection
// the track is bound to, with each binding's SSRC and payload type.
type StreamTrack struct {
	id       string
	streamID string
	codec    webrtc.RTPCodecCapability
	pz       *StreamPacketizer

	mu       sync.RWMutex
	bindings []trackBinding
}

type trackBinding struct {
	id          string
	ssrc        webrtc.SSRC
	payloadType webrtc.PayloadType
	writer      webrtc.TrackLocalWriter
}

// NewStreamTrack creates a track for stream s carrying codec.
func NewStreamTrack(codec string, s StreamInfo, id, streamID string) (*StreamTrack, error) {
	pz, err := NewStreamPacketizer(codec, s, RTPConfig{})
	if err != nil {
		return nil, err
	}
	info := rtpCodecs[codec]
	capability := webrtc.RTPCodecCapability{
		MimeType:  info.mimeType,
		ClockRate: info.clockRate,
		Channels:  info.channels,
	}
	if codec == "h264" {
		capability.SDPFmtpLine = "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f"
	}
	if codec == "opus" {
		capability.SDPFmtpLine = "minptime=10;useinbandfec=1"
	}
	return &StreamTrack{id: id, streamID: streamID, codec: capability, pz: pz}, nil
}

// NewStreamTrack resolves the codec name of s and creates a track.
func (r *Runtime) NewStreamTrack(s StreamInfo, id, streamID string) (*StreamTrack, error) {
	return NewStreamTrack(r.CodecName(s.Codec.CodecID), s, id, streamID)
}

// ID implements webrtc.TrackLocal.
func (t *StreamTrack) ID() string { return t.id }

// RID implements webrtc.TrackLocal.
func (t *StreamTrack) RID() string { return "" }

// StreamID implements webrtc.TrackLocal.
func (t *StreamTrack) StreamID() string { return t.streamID }

// Kind implements webrtc.TrackLocal.
func (t *StreamTrack) Kind() webrtc.RTPCodecType {
	if strings.HasPrefix(t.codec.MimeType, "audio/") {
		return webrtc.RTPCodecTypeAudio
	}
	return webrtc.RTPCodecTypeVideo
}

// Codec returns the codec capability offered to peers.
func (t *StreamTrack) Codec() webrtc.RTPCodecCapability { return t.codec }

// Bind implements webrtc.TrackLocal.
func (t *StreamTrack) Bind(ctx webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	for _, p := range ctx.CodecParameters() {
		if !strings.EqualFold(p.MimeType, t.codec.MimeType) {
			continue
		}
		t.mu.Lock()
		t.bindings = append(t.bindings, trackBinding{
			id:          ctx.ID(),
			ssrc:        ctx.SSRC(),
			payloadType: p.PayloadType,
			writer:      ctx.WriteStream(),
		})
		t.mu.Unlock()
		return p, nil
	}
	return webrtc.RTPCodecParameters{}, fmt.Errorf("%s: %w", t.codec.MimeType, webrtc.ErrUnsupportedCodec)
}

// Unbind implements webrtc.TrackLocal.
func (t *StreamTrack) Unbind(ctx webrtc.TrackLocalContext) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, b := range t.bindings {
		if b.id == ctx.ID() {
			t.bindings = append(t.bindings[:i], t.bindings[i+1:]...)
			return nil
		}
	}
	return nil
}

// Bindings returns the number of peer connections the track is bound to.
func (t *StreamTrack) Bindings() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.bindings)
}

// WritePacket packetizes one demuxed packet and forwards it to every
// binding. It returns the RTP packets produced.
func (t *StreamTrack) WritePacket(info PacketInfo, data []byte) ([]*rtp.Packet, error) {
	pkts, err := t.pz.Packetize(info, data)
	if err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, b := range t.bindings {
		for _, p := range pkts {
			h := p.Header
			h.SSRC = uint32(b.ssrc)
			h.PayloadType = uint8(b.payloadType)
			if _, err := b.writer.WriteRTP(&h, p.Payload); err != nil {
				return pkts, fmt.Errorf("track %s: %w", t.id, err)
			}
		}
	}
	return pkts, nil
}

var _ webrtc.TrackLocal = (*StreamTrack)(nil)
