package avload

import (
	"testing"
	"unsafe"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeInput is an mp4 with one H.264 and one Opus stream, exported through
// the avformat 62 / avcodec 62 layouts of the 8.x release.
type fakeInput struct {
	a       *arena
	dicts   *fakeDicts
	ctx     *avFormatContext61
	packets []avPacket
	read    int
	closed  int
}

func newFakeInput(t *testing.T) *fakeInput {
	a := newArena(t)
	in := &fakeInput{a: a, dicts: newFakeDicts(a)}

	video := &avCodecParameters61{
		codecType: int32(MediaTypeVideo),
		codecID:   27,
		width:     1280,
		height:    720,
		frameRate: avRational{30, 1},
	}
	audio := &avCodecParameters61{
		codecType:                  int32(MediaTypeAudio),
		codecID:                    86076,
		format:                     int32(SampleFormatFLTP),
		chLayout:                   avChannelLayout{order: int32(ChannelOrderNative), nbChannels: 2, u: chLayoutStereo},
		avCodecParametersAudioTail: avCodecParametersAudioTail{sampleRate: 48000},
	}
	streams := a.ptrs(
		pin(a, &avStream61{index: 0, id: 1, codecpar: pin(a, video), avStreamCommon: avStreamCommon{
			timeBase:    avRational{1, 90000},
			disposition: DispositionDefault,
			metadata:    in.dicts.create("handler_name", "VideoHandler"),
		}}),
		pin(a, &avStream61{index: 1, id: 2, codecpar: pin(a, audio), avStreamCommon: avStreamCommon{
			timeBase: avRational{1, 48000},
			metadata: in.dicts.create("language", "eng"),
		}}),
	)
	in.ctx = &avFormatContext61{
		avFormatContextHead: avFormatContextHead{
			iformat:   pin(a, movInputFormat(a)),
			nbStreams: 2,
			streams:   streams,
		},
		url:      a.str("in.mp4"),
		duration: 10 * avTimeBase,
		metadata: in.dicts.create("major_brand", "isom"),
	}
	in.packets = []avPacket{
		{pts: 0, dts: 0, data: a.bytes([]byte{0, 0, 0, 1, 0x65}), size: 5, streamIndex: 0, flags: PacketFlagKey},
		{pts: 0, dts: 0, data: a.bytes([]byte{0xfc, 0xff}), size: 2, streamIndex: 1},
	}
	return in
}

func (in *fakeInput) install(fs fakeSystem) {
	in.dicts.install(fs[fakePath(ModuleUtil)])

	format := fs[fakePath(ModuleFormat)]
	format["avformat_open_input"] = func(ps uintptr, url string, fmt, options uintptr) int32 {
		if url != "in.mp4" {
			return -2 // ENOENT
		}
		*(*uintptr)(unsafe.Pointer(ps)) = pin(in.a, in.ctx)
		return 0
	}
	format["avformat_close_input"] = func(ps uintptr) {
		*(*uintptr)(unsafe.Pointer(ps)) = 0
		in.closed++
	}
	format["av_find_best_stream"] = func(ctx uintptr, mediaType, wanted, related int32, decoderRet uintptr, flags int32) int32 {
		switch MediaType(mediaType) {
		case MediaTypeVideo:
			return 0
		case MediaTypeAudio:
			return 1
		}
		return -0x4D525453 // AVERROR_STREAM_NOT_FOUND
	}
	format["av_read_frame"] = func(ctx, pkt uintptr) int32 {
		if in.read >= len(in.packets) {
			return averrorEOF
		}
		*(*avPacket)(unsafe.Pointer(pkt)) = in.packets[in.read]
		in.read++
		return 0
	}

	codec := fs[fakePath(ModuleCodec)]
	codec["av_packet_alloc"] = func() uintptr { return pin(in.a, &avPacket{}) }
	codec["av_packet_free"] = func(pp uintptr) { *(*uintptr)(unsafe.Pointer(pp)) = 0 }
}

func TestDemuxer(t *testing.T) {
	in := newFakeInput(t)
	fs := fakeRelease("8.x")
	in.install(fs)

	l, sink := newFakeLoader(fs, DefaultConfig())
	rt, _, err := l.TryLoad()
	require.NoError(t, err)
	defer l.UnloadAll()

	d, err := rt.OpenInput("in.mp4", map[string]string{"probesize": "32"})
	require.NoError(t, err)
	assert.True(t, logContains(sink.Entries(), zerolog.WarnLevel, "unused options: probesize"))

	info, err := d.Format()
	require.NoError(t, err)
	assert.Equal(t, "in.mp4", info.URL)
	assert.Equal(t, 2, info.NbStreams)
	assert.Equal(t, int64(10*avTimeBase), info.Duration)

	f, err := d.InputFormat()
	require.NoError(t, err)
	assert.Equal(t, "QuickTime / MOV", f.LongName)

	md, err := d.Metadata()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"major_brand": "isom"}, md.Map())

	streams, err := d.Streams()
	require.NoError(t, err)
	require.Len(t, streams, 2)
	assert.True(t, streams[0].IsDefault())
	assert.Equal(t, MediaTypeVideo, streams[0].Codec.MediaType)
	assert.Equal(t, 1280, streams[0].Codec.Width)
	assert.Equal(t, Rational{30, 1}, streams[0].Codec.FrameRate)
	assert.Equal(t, 48000, streams[1].Codec.SampleRate)
	assert.Equal(t, 2, streams[1].Codec.ChannelLayout.Channels)
	lang, _ := streams[1].Metadata.Get("language")
	assert.Equal(t, "eng", lang)

	best, err := d.BestStream(MediaTypeAudio)
	require.NoError(t, err)
	assert.Equal(t, 1, best)
	_, err = d.BestStream(MediaTypeSubtitle)
	assert.Error(t, err)

	p, err := rt.NewPacket()
	require.NoError(t, err)
	defer p.Free()

	var got []PacketInfo
	for {
		err := d.ReadPacket(p)
		if err != nil {
			assert.ErrorIs(t, err, ErrEOF)
			break
		}
		info, err := p.Info()
		require.NoError(t, err)
		got = append(got, info)
	}
	require.Len(t, got, 2)
	assert.True(t, got[0].KeyFrame())
	assert.Equal(t, 1, got[1].StreamIndex)

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	assert.Equal(t, 1, in.closed)
	_, err = d.Format()
	assert.ErrorIs(t, err, ErrRuntimeClosed)
	assert.ErrorIs(t, d.ReadPacket(p), ErrRuntimeClosed)
}

func TestDemuxer_OpenFails(t *testing.T) {
	in := newFakeInput(t)
	fs := fakeRelease("8.x")
	in.install(fs)
	fs[fakePath(ModuleUtil)]["av_strerror"] = func(errnum int32, buf, size uintptr) int32 {
		copy(unsafe.Slice((*byte)(unsafe.Pointer(buf)), size), "No such file or directory\x00")
		return 0
	}

	rt := loadFake(t, fs)
	_, err := rt.OpenInput("missing.mp4", nil)
	var averr *AVError
	require.ErrorAs(t, err, &averr)
	assert.Equal(t, -2, averr.Code)
	assert.Equal(t, "avformat_open_input missing.mp4", averr.Op)
	assert.Contains(t, err.Error(), "No such file or directory")
}

func TestDemuxer_FindStreamInfoFails(t *testing.T) {
	in := newFakeInput(t)
	fs := fakeRelease("8.x")
	in.install(fs)
	fs[fakePath(ModuleFormat)]["avformat_find_stream_info"] = func(ctx, options uintptr) int32 { return averrorEOF }

	rt := loadFake(t, fs)
	_, err := rt.OpenInput("in.mp4", nil)
	assert.ErrorIs(t, err, ErrEOF)
	assert.Equal(t, 1, in.closed)
}

func TestDecoder(t *testing.T) {
	in := newFakeInput(t)
	fs := fakeRelease("8.x")
	in.install(fs)

	codec := fs[fakePath(ModuleCodec)]
	var ctxFreed int
	codec["avcodec_find_decoder"] = func(id int32) uintptr {
		if id == 27 {
			return 0xc0dec
		}
		return 0
	}
	codec["avcodec_alloc_context3"] = func(c uintptr) uintptr { return in.a.ptrs(c) }
	codec["avcodec_free_context"] = func(pctx uintptr) {
		*(*uintptr)(unsafe.Pointer(pctx)) = 0
		ctxFreed++
	}
	pending := 0
	codec["avcodec_send_packet"] = func(ctx, pkt uintptr) int32 {
		if pending > 0 {
			return int32(averrorEAGAIN)
		}
		pending++
		return 0
	}
	codec["avcodec_receive_frame"] = func(ctx, frame uintptr) int32 {
		if pending == 0 {
			return int32(averrorEAGAIN)
		}
		pending--
		return 0
	}
	fs[fakePath(ModuleUtil)]["av_frame_alloc"] = func() uintptr { return pin(in.a, &avFrame60{}) }
	fs[fakePath(ModuleUtil)]["av_frame_free"] = func(pp uintptr) { *(*uintptr)(unsafe.Pointer(pp)) = 0 }

	rt := loadFake(t, fs)
	d, err := rt.OpenInput("in.mp4", nil)
	require.NoError(t, err)
	defer d.Close()

	_, err = d.NewDecoder(1)
	assert.ErrorIs(t, err, ErrNotSupported)
	_, err = d.NewDecoder(2)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = d.NewDecoder(-1)
	assert.ErrorIs(t, err, ErrNotFound)

	dec, err := d.NewDecoder(0)
	require.NoError(t, err)
	assert.Equal(t, 27, dec.Codec().ID)
	assert.Equal(t, 0, dec.StreamIndex())

	p, err := rt.NewPacket()
	require.NoError(t, err)
	defer p.Free()
	f, err := rt.NewFrame()
	require.NoError(t, err)
	defer f.Free()

	require.NoError(t, d.ReadPacket(p))
	require.NoError(t, dec.Send(p))
	assert.ErrorIs(t, dec.Send(p), ErrAgain)
	require.NoError(t, dec.Receive(f))
	assert.ErrorIs(t, dec.Receive(f), ErrAgain)

	require.NoError(t, dec.Close())
	require.NoError(t, dec.Close())
	assert.Equal(t, 1, ctxFreed)
	assert.ErrorIs(t, dec.Send(p), ErrRuntimeClosed)
}

func TestDecoder_OpenFails(t *testing.T) {
	in := newFakeInput(t)
	fs := fakeRelease("8.x")
	in.install(fs)

	codec := fs[fakePath(ModuleCodec)]
	var ctxFreed int
	codec["avcodec_find_decoder"] = func(id int32) uintptr { return 0xc0dec }
	codec["avcodec_alloc_context3"] = func(c uintptr) uintptr { return in.a.ptrs(c) }
	codec["avcodec_free_context"] = func(pctx uintptr) {
		*(*uintptr)(unsafe.Pointer(pctx)) = 0
		ctxFreed++
	}
	codec["avcodec_open2"] = func(ctx, c, options uintptr) int32 { return -22 }

	l, _ := newFakeLoader(fs, DefaultConfig())
	rt, _, err := l.TryLoad()
	require.NoError(t, err)

	d, err := rt.OpenInput("in.mp4", nil)
	require.NoError(t, err)

	_, err = d.NewDecoder(0)
	var averr *AVError
	require.ErrorAs(t, err, &averr)
	assert.Equal(t, "avcodec_open2", averr.Op)
	assert.Equal(t, 1, ctxFreed)

	require.NoError(t, d.Close())
	l.UnloadAll()
	assert.True(t, rt.Closed(), "failed decoder must not leak a reference")
}

// installDecoder fakes a decoder that accepts every codec.
func installDecoder(in *fakeInput, fs fakeSystem) (params *uintptr, freed *int) {
	params, freed = new(uintptr), new(int)
	codec := fs[fakePath(ModuleCodec)]
	codec["avcodec_find_decoder"] = func(id int32) uintptr { return 0xc0dec }
	codec["avcodec_alloc_context3"] = func(c uintptr) uintptr { return in.a.ptrs(c) }
	codec["avcodec_free_context"] = func(pctx uintptr) {
		*(*uintptr)(unsafe.Pointer(pctx)) = 0
		*freed++
	}
	codec["avcodec_parameters_to_context"] = func(ctx, par uintptr) int32 {
		*params = par
		return 0
	}
	return params, freed
}

func TestDemuxer_NewDecoderAfterClose(t *testing.T) {
	in := newFakeInput(t)
	fs := fakeRelease("8.x")
	in.install(fs)
	params, freed := installDecoder(in, fs)

	l, _ := newFakeLoader(fs, DefaultConfig())
	rt, _, err := l.TryLoad()
	require.NoError(t, err)

	d, err := rt.OpenInput("in.mp4", nil)
	require.NoError(t, err)
	dec, err := d.NewDecoder(1)
	require.NoError(t, err)
	streams := *(*[2]uintptr)(unsafe.Pointer(in.ctx.streams))
	assert.Equal(t, (*avStream61)(unsafe.Pointer(streams[1])).codecpar, *params,
		"codec parameters come from the open format context")

	require.NoError(t, d.Close())
	*params = 0
	_, err = d.NewDecoder(0)
	assert.ErrorIs(t, err, ErrRuntimeClosed)
	assert.Zero(t, *params, "no native call after close")

	// A decoder opened earlier does not depend on the input.
	p, err := rt.NewPacket()
	require.NoError(t, err)
	require.NoError(t, dec.Send(p))
	p.Free()
	require.NoError(t, dec.Close())
	assert.Equal(t, 1, *freed)

	l.UnloadAll()
	assert.True(t, rt.Closed())
}

func TestDecoder_SupportedConfig(t *testing.T) {
	in := newFakeInput(t)
	fs := fakeRelease("8.x")
	in.install(fs)
	installDecoder(in, fs)

	formats := []int32{int32(SampleFormatFLTP), int32(SampleFormatS16)}
	rates := []int32{48000}
	var asked []int32
	fs[fakePath(ModuleCodec)]["avcodec_get_supported_config"] = func(ctx, codec uintptr, config int32, flags uint32, out, num uintptr) int32 {
		asked = append(asked, config)
		assert.Equal(t, uintptr(0xc0dec), codec)
		var list []int32
		switch config {
		case codecConfigSampleFormat:
			list = formats
		case codecConfigSampleRate:
			list = rates
		default:
			return 0 // unrestricted
		}
		*(*uintptr)(unsafe.Pointer(out)) = uintptr(unsafe.Pointer(&list[0]))
		*(*int32)(unsafe.Pointer(num)) = int32(len(list))
		return 0
	}

	rt := loadFake(t, fs)
	require.True(t, rt.Capabilities().Has(CapSupportedConfig))
	d, err := rt.OpenInput("in.mp4", nil)
	require.NoError(t, err)
	defer d.Close()
	dec, err := d.NewDecoder(1)
	require.NoError(t, err)

	sfmts, err := dec.SupportedSampleFormats()
	require.NoError(t, err)
	assert.Equal(t, []SampleFormat{SampleFormatFLTP, SampleFormatS16}, sfmts)
	srates, err := dec.SupportedSampleRates()
	require.NoError(t, err)
	assert.Equal(t, []int{48000}, srates)
	pix, err := dec.SupportedPixelFormats()
	require.NoError(t, err)
	assert.Nil(t, pix)
	assert.Equal(t, []int32{codecConfigSampleFormat, codecConfigSampleRate, codecConfigPixFormat}, asked)

	require.NoError(t, dec.Close())
	_, err = dec.SupportedSampleFormats()
	assert.ErrorIs(t, err, ErrRuntimeClosed)
}

func TestDecoder_SupportedConfigMissing(t *testing.T) {
	in := newFakeInput(t)
	fs := fakeRelease("7.x")
	in.install(fs)
	installDecoder(in, fs)
	delete(fs[fakePath(ModuleCodec)], "avcodec_get_supported_config")

	rt := loadFake(t, fs)
	assert.False(t, rt.Capabilities().Has(CapSupportedConfig))
	d, err := rt.OpenInput("in.mp4", nil)
	require.NoError(t, err)
	defer d.Close()
	dec, err := d.NewDecoder(1)
	require.NoError(t, err)
	defer dec.Close()

	_, err = dec.SupportedSampleFormats()
	assert.ErrorIs(t, err, ErrNotSupported)
	_, err = dec.SupportedPixelFormats()
	assert.ErrorIs(t, err, ErrNotSupported)
}
