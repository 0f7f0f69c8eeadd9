package avload

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unsafe"
)

// AudioFormat describes one side of a resampler.
type AudioFormat struct {
	SampleFormat  SampleFormat
	SampleRate    int
	ChannelLayout ChannelLayout
}

// planes returns the number of data planes for this format.
func (f AudioFormat) planes() int {
	if f.SampleFormat.IsPlanar() {
		return f.ChannelLayout.Channels
	}
	return 1
}

// planeBytes returns the size of one plane holding samples per channel.
func (f AudioFormat) planeBytes(samples int) int {
	n := samples * f.SampleFormat.BytesPerSample()
	if !f.SampleFormat.IsPlanar() {
		n *= f.ChannelLayout.Channels
	}
	return n
}

func (f AudioFormat) validate() error {
	if f.SampleFormat.BytesPerSample() == 0 || f.SampleRate <= 0 || f.ChannelLayout.Channels <= 0 {
		return fmt.Errorf("invalid audio format %s/%d/%d channels", f.SampleFormat, f.SampleRate, f.ChannelLayout.Channels)
	}
	return nil
}

// Resampler converts audio between sample formats, rates and channel
// layouts with libswresample. It holds a runtime reference until Close.
type Resampler struct {
	r       *Runtime
	in, out AudioFormat

	mu  sync.Mutex
	ctx *uintptr // SwrContext*, boxed so swr_free can clear it
}

// NewResampler creates and initializes a resampler. It needs
// swr_alloc_set_opts2 (FFmpeg 5.1 and later).
func (r *Runtime) NewResampler(in, out AudioFormat) (*Resampler, error) {
	if !r.caps.Has(CapSwrAllocSetOpts2) {
		return nil, fmt.Errorf("resampler: %w", ErrNotSupported)
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := out.validate(); err != nil {
		return nil, err
	}
	if err := r.Acquire(); err != nil {
		return nil, err
	}

	ctx := new(uintptr)
	*ctx = r.Resample.Alloc()
	if *ctx == 0 {
		r.Release()
		return nil, errors.New("swr_alloc: out of memory")
	}
	fail := func(err error) (*Resampler, error) {
		r.Resample.Free(uintptr(unsafe.Pointer(ctx)))
		r.Release()
		return nil, err
	}

	outLayout, outMap := out.ChannelLayout.encode()
	inLayout, inMap := in.ChannelLayout.encode()
	ret := r.Resample.AllocSetOpts2(uintptr(unsafe.Pointer(ctx)),
		uintptr(unsafe.Pointer(outLayout)), int32(out.SampleFormat), int32(out.SampleRate),
		uintptr(unsafe.Pointer(inLayout)), int32(in.SampleFormat), int32(in.SampleRate),
		0, 0)
	runtime.KeepAlive(outLayout)
	runtime.KeepAlive(outMap)
	runtime.KeepAlive(inLayout)
	runtime.KeepAlive(inMap)
	if ret < 0 {
		return fail(r.averror("swr_alloc_set_opts2", ret))
	}
	if ret := r.Resample.Init(*ctx); ret < 0 {
		return fail(r.averror("swr_init", ret))
	}
	return &Resampler{r: r, in: in, out: out, ctx: ctx}, nil
}

// Delay returns the number of buffered input samples, in input sample
// rate units.
func (s *Resampler) Delay() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil || *s.ctx == 0 {
		return 0
	}
	return s.r.Resample.GetDelay(*s.ctx, int64(s.in.SampleRate))
}

// Convert resamples samples per channel from in, which holds one slice per
// plane (a single slice for packed formats). A nil in flushes buffered
// samples. It returns the output planes trimmed to the converted length.
func (s *Resampler) Convert(in [][]byte, samples int) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil || *s.ctx == 0 {
		return nil, ErrRuntimeClosed
	}

	var inPtrs []uintptr
	if in != nil {
		if len(in) != s.in.planes() {
			return nil, fmt.Errorf("convert: got %d planes, want %d", len(in), s.in.planes())
		}
		need := s.in.planeBytes(samples)
		inPtrs = make([]uintptr, len(in))
		for i, p := range in {
			if len(p) < need {
				return nil, fmt.Errorf("convert: plane %d has %d bytes, want %d", i, len(p), need)
			}
			if need > 0 {
				inPtrs[i] = bufPtr(p)
			}
		}
	} else {
		samples = 0
	}

	delay := s.r.Resample.GetDelay(*s.ctx, int64(s.in.SampleRate))
	capacity := int((delay+int64(samples))*int64(s.out.SampleRate)/int64(s.in.SampleRate)) + 32
	out := make([][]byte, s.out.planes())
	outPtrs := make([]uintptr, len(out))
	for i := range out {
		out[i] = make([]byte, s.out.planeBytes(capacity))
		outPtrs[i] = bufPtr(out[i])
	}

	var inArg uintptr
	if len(inPtrs) > 0 {
		inArg = uintptr(unsafe.Pointer(&inPtrs[0]))
	}
	n := s.r.Resample.Convert(*s.ctx, uintptr(unsafe.Pointer(&outPtrs[0])), int32(capacity), inArg, int32(samples))
	runtime.KeepAlive(in)
	runtime.KeepAlive(inPtrs)
	runtime.KeepAlive(out)
	runtime.KeepAlive(outPtrs)
	if n < 0 {
		return nil, s.r.averror("swr_convert", n)
	}
	for i := range out {
		out[i] = out[i][:s.out.planeBytes(int(n))]
	}
	return out, nil
}

// Close frees the resampler. It is safe to call more than once.
func (s *Resampler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil || *s.ctx == 0 {
		return nil
	}
	s.r.Resample.Free(uintptr(unsafe.Pointer(s.ctx)))
	*s.ctx = 0
	s.r.Release()
	return nil
}
