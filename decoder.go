package avload

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"
)

// Decoder is an opened AVCodecContext for one stream. It holds a runtime
// reference until Close.
type Decoder struct {
	r      *Runtime
	codec  CodecDescriptor
	stream int

	mu      sync.Mutex
	ctx     *uintptr // AVCodecContext*, boxed so avcodec_free_context can clear it
	avcodec uintptr  // const AVCodec*, static in libavcodec
	config  supportedConfig
}

// newDecoder opens the default decoder for s. s.codecpar must still be
// owned by an open format context.
func (r *Runtime) newDecoder(s streamRecord) (*Decoder, error) {
	if s.codecpar == 0 {
		return nil, fmt.Errorf("stream %d: %w", s.Index, ErrNullRecord)
	}
	if err := r.Acquire(); err != nil {
		return nil, err
	}

	codec := r.Codec.FindDecoder(int32(s.Codec.CodecID))
	if codec == 0 {
		r.Release()
		return nil, fmt.Errorf("no decoder for %s: %w", r.CodecName(s.Codec.CodecID), ErrNotSupported)
	}

	ctx := new(uintptr)
	*ctx = r.Codec.AllocContext3(codec)
	if *ctx == 0 {
		r.Release()
		return nil, errors.New("avcodec_alloc_context3: out of memory")
	}
	fail := func(err error) (*Decoder, error) {
		r.Codec.FreeContext(uintptr(unsafe.Pointer(ctx)))
		r.Release()
		return nil, err
	}

	if ret := r.Codec.ParametersToContext(*ctx, s.codecpar); ret < 0 {
		return fail(r.averror("avcodec_parameters_to_context", ret))
	}
	if ret := r.Codec.Open2(*ctx, codec, 0); ret < 0 {
		return fail(r.averror("avcodec_open2", ret))
	}

	desc, err := r.CodecDescriptorByID(s.Codec.CodecID)
	if err != nil {
		desc = CodecDescriptor{ID: s.Codec.CodecID, Name: r.CodecName(s.Codec.CodecID)}
	}
	return &Decoder{r: r, codec: desc, stream: s.Index, ctx: ctx, avcodec: codec}, nil
}

// Codec describes the decoded codec.
func (d *Decoder) Codec() CodecDescriptor { return d.codec }

// StreamIndex is the index of the stream the decoder was opened for.
func (d *Decoder) StreamIndex() int { return d.stream }

// enum AVCodecConfig.
const (
	codecConfigPixFormat    = 0
	codecConfigSampleRate   = 2
	codecConfigSampleFormat = 3
)

// supportedConfig receives the out parameters of
// avcodec_get_supported_config. It lives in the Decoder so the addresses
// handed to native code stay valid for the call.
type supportedConfig struct {
	values uintptr
	count  int32
}

// supported returns the values libavcodec lists for config. A nil slice
// means the decoder places no restriction.
func (d *Decoder) supported(config int32) ([]int32, error) {
	if !d.r.caps.Has(CapSupportedConfig) {
		return nil, fmt.Errorf("avcodec_get_supported_config: %w", ErrNotSupported)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil || *d.ctx == 0 {
		return nil, ErrRuntimeClosed
	}

	d.config = supportedConfig{}
	ret := d.r.Codec.GetSupportedConfig(*d.ctx, d.avcodec, config, 0,
		uintptr(unsafe.Pointer(&d.config.values)), uintptr(unsafe.Pointer(&d.config.count)))
	if ret < 0 {
		return nil, d.r.averror("avcodec_get_supported_config", ret)
	}
	if d.config.values == 0 {
		return nil, nil
	}
	n := int(d.config.count)
	if n < 0 || n > maxArrayLen {
		return nil, fmt.Errorf("%w: %d supported configs", ErrMalformedNativeData, n)
	}
	out := make([]int32, n)
	copy(out, unsafe.Slice((*int32)(unsafe.Pointer(d.config.values)), n))
	return out, nil
}

// SupportedPixelFormats lists the AVPixelFormat values the decoder can
// output. It needs avcodec_get_supported_config (FFmpeg 7.1 and later).
func (d *Decoder) SupportedPixelFormats() ([]int, error) {
	vals, err := d.supported(codecConfigPixFormat)
	if err != nil || vals == nil {
		return nil, err
	}
	out := make([]int, len(vals))
	for i, v := range vals {
		out[i] = int(v)
	}
	return out, nil
}

// SupportedSampleFormats lists the sample formats the decoder can output.
func (d *Decoder) SupportedSampleFormats() ([]SampleFormat, error) {
	vals, err := d.supported(codecConfigSampleFormat)
	if err != nil || vals == nil {
		return nil, err
	}
	out := make([]SampleFormat, len(vals))
	for i, v := range vals {
		out[i] = SampleFormat(v)
	}
	return out, nil
}

// SupportedSampleRates lists the sample rates the decoder can output.
func (d *Decoder) SupportedSampleRates() ([]int, error) {
	vals, err := d.supported(codecConfigSampleRate)
	if err != nil || vals == nil {
		return nil, err
	}
	out := make([]int, len(vals))
	for i, v := range vals {
		out[i] = int(v)
	}
	return out, nil
}

// Send feeds one packet. A nil packet starts draining. The error matches
// ErrAgain when frames must be received first.
func (d *Decoder) Send(p *Packet) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil || *d.ctx == 0 {
		return ErrRuntimeClosed
	}
	var pkt uintptr
	if p != nil {
		pkt = p.native()
	}
	if ret := d.r.Codec.SendPacket(*d.ctx, pkt); ret < 0 {
		return d.r.averror("avcodec_send_packet", ret)
	}
	return nil
}

// Receive fetches the next decoded frame into f. The error matches ErrAgain
// when more input is needed and ErrEOF once drained.
func (d *Decoder) Receive(f *Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil || *d.ctx == 0 {
		return ErrRuntimeClosed
	}
	frame := f.native()
	if frame == 0 {
		return errors.New("receive frame: frame is freed")
	}
	if ret := d.r.Codec.ReceiveFrame(*d.ctx, frame); ret < 0 {
		return d.r.averror("avcodec_receive_frame", ret)
	}
	return nil
}

// Close frees the codec context. It is safe to call more than once.
func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil || *d.ctx == 0 {
		return nil
	}
	d.r.Codec.FreeContext(uintptr(unsafe.Pointer(d.ctx)))
	*d.ctx = 0
	d.r.Release()
	return nil
}
