package avload

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unsafe"
)

// Demuxer reads packets from a container opened with avformat_open_input.
// It holds a runtime reference until Close.
type Demuxer struct {
	r   *Runtime
	url string

	mu  sync.Mutex
	ctx *uintptr // AVFormatContext*, boxed so avformat_close_input can clear it
}

// OpenInput opens url and reads its stream info. opts are passed to the
// demuxer as an AVDictionary; options it does not recognise are logged.
func (r *Runtime) OpenInput(url string, opts map[string]string) (*Demuxer, error) {
	if err := r.Acquire(); err != nil {
		return nil, err
	}

	dict, err := r.newNativeDict(opts)
	if err != nil {
		r.Release()
		return nil, err
	}

	ctx := new(uintptr)
	ret := r.Format.OpenInput(uintptr(unsafe.Pointer(ctx)), url, 0, dict.addr())
	unused := dict.leftover()
	dict.free()
	if ret < 0 {
		r.Release()
		return nil, r.averror("avformat_open_input "+url, ret)
	}
	if len(unused) > 0 && r.sink != nil {
		moduleLog{sink: r.sink, module: ModuleFormat.String()}.
			Warn(fmt.Sprintf("%s: unused options: %s", url, strings.Join(unused, ", ")))
	}

	if ret := r.Format.FindStreamInfo(*ctx, 0); ret < 0 {
		r.Format.CloseInput(uintptr(unsafe.Pointer(ctx)))
		r.Release()
		return nil, r.averror("avformat_find_stream_info "+url, ret)
	}

	return &Demuxer{r: r, url: url, ctx: ctx}, nil
}

func (d *Demuxer) native() (uintptr, error) {
	if d.ctx == nil || *d.ctx == 0 {
		return 0, fmt.Errorf("demuxer %s: %w", d.url, ErrRuntimeClosed)
	}
	return *d.ctx, nil
}

// format decodes the format context. d.mu must be held.
func (d *Demuxer) format() (FormatContextInfo, error) {
	ctx, err := d.native()
	if err != nil {
		return FormatContextInfo{}, err
	}
	return formatContextOverlay.Decode(ctx, d.r.Major(ModuleFormat))
}

// Format returns a snapshot of the format context.
func (d *Demuxer) Format() (FormatContextInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.format()
}

// InputFormat describes the demuxer that was selected for the input.
func (d *Demuxer) InputFormat() (InputFormat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info, err := d.format()
	if err != nil {
		return InputFormat{}, err
	}
	return inputFormatOverlay.Decode(info.iformat, d.r.Major(ModuleFormat))
}

// Metadata copies the container-level metadata.
func (d *Demuxer) Metadata() (Dictionary, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info, err := d.format()
	if err != nil {
		return nil, err
	}
	return d.r.dictionary(info.metadata)
}

// stream decodes stream i of info with its codec parameters and metadata.
// d.mu must be held.
func (d *Demuxer) stream(info FormatContextInfo, i int) (streamRecord, error) {
	s, err := streamOverlay.Decode(pointerAt(info.streams, i), d.r.Major(ModuleFormat))
	if err != nil {
		return streamRecord{}, fmt.Errorf("stream %d: %w", i, err)
	}
	if s.Codec, err = codecParametersOverlay.Decode(s.codecpar, d.r.Major(ModuleCodec)); err != nil {
		return streamRecord{}, fmt.Errorf("stream %d: %w", i, err)
	}
	if s.Metadata, err = d.r.dictionary(s.metadata); err != nil {
		return streamRecord{}, fmt.Errorf("stream %d: %w", i, err)
	}
	return s, nil
}

// Streams decodes every stream together with its codec parameters and
// metadata.
func (d *Demuxer) Streams() ([]StreamInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info, err := d.format()
	if err != nil {
		return nil, err
	}
	if info.NbStreams < 0 || info.NbStreams > maxArrayLen {
		return nil, fmt.Errorf("%w: %d streams", ErrMalformedNativeData, info.NbStreams)
	}

	out := make([]StreamInfo, 0, info.NbStreams)
	for i := 0; i < info.NbStreams; i++ {
		s, err := d.stream(info, i)
		if err != nil {
			return nil, err
		}
		out = append(out, s.StreamInfo)
	}
	return out, nil
}

// NewDecoder opens the default decoder for stream index. The codec
// parameters are copied into the decoder while the input is open, so the
// decoder stays usable after Close.
func (d *Demuxer) NewDecoder(index int) (*Decoder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info, err := d.format()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= info.NbStreams {
		return nil, fmt.Errorf("stream %d of %d: %w", index, info.NbStreams, ErrNotFound)
	}
	s, err := d.stream(info, index)
	if err != nil {
		return nil, err
	}
	return d.r.newDecoder(s)
}

// BestStream returns the index of the best stream of the given type.
func (d *Demuxer) BestStream(t MediaType) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ctx, err := d.native()
	if err != nil {
		return -1, err
	}
	ret := d.r.Format.FindBestStream(ctx, int32(t), -1, -1, 0, 0)
	if ret < 0 {
		return -1, d.r.averror("av_find_best_stream "+t.String(), ret)
	}
	return int(ret), nil
}

// ReadPacket reads the next packet into p, replacing its previous content.
// At the end of input the error matches ErrEOF.
func (d *Demuxer) ReadPacket(p *Packet) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ctx, err := d.native()
	if err != nil {
		return err
	}
	pkt := p.native()
	if pkt == 0 {
		return errors.New("read packet: packet is freed")
	}
	d.r.Codec.PacketUnref(pkt)
	if ret := d.r.Format.ReadFrame(ctx, pkt); ret < 0 {
		return d.r.averror("av_read_frame", ret)
	}
	return nil
}

// Close closes the input and releases the runtime reference. It is safe to
// call more than once.
func (d *Demuxer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil || *d.ctx == 0 {
		return nil
	}
	d.r.Format.CloseInput(uintptr(unsafe.Pointer(d.ctx)))
	*d.ctx = 0
	d.r.Release()
	return nil
}
