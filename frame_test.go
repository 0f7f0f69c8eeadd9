package avload

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleFormat(t *testing.T) {
	tests := []struct {
		format SampleFormat
		name   string
		bytes  int
		planar bool
	}{
		{SampleFormatU8, "u8", 1, false},
		{SampleFormatS16, "s16", 2, false},
		{SampleFormatFLT, "flt", 4, false},
		{SampleFormatFLTP, "fltp", 4, true},
		{SampleFormatDBLP, "dblp", 8, true},
		{SampleFormatS64, "s64", 8, false},
		{SampleFormatS64P, "s64p", 8, true},
		{SampleFormatNone, "none", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.format.String())
			assert.Equal(t, tt.bytes, tt.format.BytesPerSample())
			assert.Equal(t, tt.planar, tt.format.IsPlanar())
		})
	}
}

func TestPictureType_String(t *testing.T) {
	assert.Equal(t, "I", PictureTypeI.String())
	assert.Equal(t, "B", PictureTypeB.String())
	assert.Equal(t, "BI", PictureTypeBI.String())
	assert.Equal(t, "?", PictureTypeNone.String())
}

func videoHead() avFrameHead {
	return avFrameHead{
		data:     [8]uintptr{0x1000, 0x2000, 0x3000},
		linesize: [8]int32{1280, 640, 640},
		width:    1280,
		height:   720,
		format:   0,
	}
}

var videoColor = avFrameColor{colorRange: 1, colorPrimaries: 1, colorTRC: 1, colorSpace: 1, chromaLocation: 1}

func TestFrameOverlay_VideoAcrossLayouts(t *testing.T) {
	a := newArena(t)
	const flags = FrameFlagKey

	raw56 := &avFrame56{
		avFrameHead:         videoHead(),
		keyFrame:            1,
		pictType:            int32(PictureTypeI),
		sampleAspectRatio:   avRational{1, 1},
		pts:                 3000,
		pktPts:              3000,
		pktDts:              0,
		quality:             10,
		repeatPict:          0,
		flags:               flags,
		avFrameColor:        videoColor,
		bestEffortTimestamp: 3000,
		pktPos:              48,
		pktDuration:         3000,
		pktSize:             4096,
	}
	raw57 := &avFrame57{
		avFrameHead:         videoHead(),
		keyFrame:            1,
		pictType:            int32(PictureTypeI),
		sampleAspectRatio:   avRational{1, 1},
		pts:                 3000,
		quality:             10,
		flags:               flags,
		avFrameColor:        videoColor,
		bestEffortTimestamp: 3000,
		pktPos:              48,
		pktDuration:         3000,
		pktSize:             4096,
	}
	raw59 := &avFrame59{
		avFrameHead:         videoHead(),
		keyFrame:            1,
		pictType:            int32(PictureTypeI),
		sampleAspectRatio:   avRational{1, 1},
		pts:                 3000,
		quality:             10,
		flags:               flags,
		avFrameColor:        videoColor,
		bestEffortTimestamp: 3000,
		pktPos:              48,
		pktSize:             4096,
		avFrameTail59:       avFrameTail59{duration: 3000},
	}
	raw60 := &avFrame60{
		avFrameHead:         videoHead(),
		pictType:            int32(PictureTypeI),
		sampleAspectRatio:   avRational{1, 1},
		pts:                 3000,
		quality:             10,
		flags:               flags,
		avFrameColor:        videoColor,
		bestEffortTimestamp: 3000,
		avFrameTail59:       avFrameTail59{duration: 3000},
	}

	cases := map[int]uintptr{56: pin(a, raw56), 57: pin(a, raw57), 58: pin(a, raw57), 59: pin(a, raw59)}
	want, err := frameOverlay.Decode(cases[56], 56)
	require.NoError(t, err)
	for major, ptr := range cases {
		got, err := frameOverlay.Decode(ptr, major)
		require.NoError(t, err, "major %d", major)
		assert.Equal(t, want, got, "major %d", major)
	}
	assert.Equal(t, int64(48), want.PktPos)
	assert.Equal(t, 4096, want.PktSize)

	// avutil 60 no longer carries the source packet position and size.
	got, err := frameOverlay.Decode(pin(a, raw60), 60)
	require.NoError(t, err)
	want60 := want
	want60.PktPos, want60.PktSize = -1, 0
	assert.Equal(t, want60, got)

	assert.Equal(t, 1280, want.Width)
	assert.Equal(t, [8]int{1280, 640, 640}, want.Linesize)
	assert.True(t, want.KeyFrame)
	assert.Equal(t, PictureTypeI, want.PictType)
	assert.Equal(t, int64(3000), want.Duration)
	assert.Equal(t, 1, want.ColorSpace)
	assert.True(t, want.ChannelLayout.IsZero())
}

func TestFrameOverlay_AudioChannelLayout(t *testing.T) {
	a := newArena(t)
	head := avFrameHead{nbSamples: 960, format: int32(SampleFormatFLTP)}
	stereo := ChannelLayout{Order: ChannelOrderNative, Channels: 2, Mask: chLayoutStereo}

	raw57 := &avFrame57{avFrameHead: head, sampleRate: 48000, channelLayout: chLayoutStereo, channels: 2, timeBase: avRational{1, 48000}}
	got, err := frameOverlay.Decode(pin(a, raw57), 57)
	require.NoError(t, err)
	assert.Equal(t, stereo, got.ChannelLayout)
	assert.Equal(t, SampleFormatFLTP, got.SampleFormat())
	assert.Equal(t, Rational{1, 48000}, got.TimeBase)

	raw60 := &avFrame60{avFrameHead: head, sampleRate: 48000, timeBase: avRational{1, 48000}}
	raw60.chLayout = avChannelLayout{order: int32(ChannelOrderNative), nbChannels: 2, u: chLayoutStereo}
	got, err = frameOverlay.Decode(pin(a, raw60), 60)
	require.NoError(t, err)
	assert.Equal(t, stereo, got.ChannelLayout)
	assert.Equal(t, 960, got.NbSamples)
	assert.Equal(t, 48000, got.SampleRate)

	raw60.chLayout.nbChannels = -2
	_, err = frameOverlay.Decode(pin(a, raw60), 60)
	assert.ErrorIs(t, err, ErrMalformedNativeData)
}

func TestFrameOverlay_InterlacedFlags(t *testing.T) {
	a := newArena(t)
	raw := &avFrame60{avFrameHead: videoHead(), flags: FrameFlagInterlaced | FrameFlagTopFieldFirst}
	got, err := frameOverlay.Decode(pin(a, raw), 60)
	require.NoError(t, err)
	assert.False(t, got.KeyFrame)
	assert.True(t, got.Interlaced)
	assert.True(t, got.TopFieldFirst)

	old := &avFrame56{avFrameHead: videoHead(), interlacedFrame: 1}
	got, err = frameOverlay.Decode(pin(a, old), 56)
	require.NoError(t, err)
	assert.True(t, got.Interlaced)
	assert.False(t, got.TopFieldFirst)
}

func TestFrameSideDataOverlay(t *testing.T) {
	a := newArena(t)
	payload := a.bytes([]byte{0xde, 0xad, 0xbe, 0xef})

	old, err := frameSideDataOverlay.Decode(pin(a, &avFrameSideData56{typ: 5, data: payload, size: 4}), 56)
	require.NoError(t, err)
	cur, err := frameSideDataOverlay.Decode(pin(a, &avFrameSideData57{typ: 5, data: payload, size: 4}), 59)
	require.NoError(t, err)
	assert.Equal(t, old, cur)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, cur.Data)

	_, err = frameSideDataOverlay.Decode(pin(a, &avFrameSideData57{data: payload, size: maxSideDataSize + 1}), 60)
	assert.ErrorIs(t, err, ErrMalformedNativeData)

	_, err = frameSideDataOverlay.Decode(pin(a, &avFrameSideData56{data: payload, size: -1}), 56)
	assert.ErrorIs(t, err, ErrMalformedNativeData)
}

func TestRuntime_NewFrame(t *testing.T) {
	a := newArena(t)
	dicts := newFakeDicts(a)

	sd := &avFrameSideData57{typ: 3, data: a.bytes([]byte("A53")), size: 3, metadata: dicts.create("source", "sei")}
	raw := &avFrame60{avFrameHead: videoHead(), flags: FrameFlagKey, metadata: dicts.create("lavfi.scene_score", "0.4")}
	raw.sideData = a.ptrs(pin(a, sd))
	raw.nbSideData = 1

	fs := fakeRelease("8.x")
	util := fs[fakePath(ModuleUtil)]
	dicts.install(util)
	var freed, unrefs int
	util["av_frame_alloc"] = func() uintptr { return pin(a, raw) }
	util["av_frame_unref"] = func(uintptr) { unrefs++ }
	util["av_frame_free"] = func(pp uintptr) {
		*(*uintptr)(unsafe.Pointer(pp)) = 0
		freed++
	}
	util["av_frame_side_data_name"] = func(typ int32) uintptr {
		if typ == 3 {
			return a.str("ATSC A53 Part 4 Closed Captions")
		}
		return 0
	}

	rt := loadFake(t, fs)
	f, err := rt.NewFrame()
	require.NoError(t, err)

	info, err := f.Info()
	require.NoError(t, err)
	assert.True(t, info.KeyFrame)
	assert.Equal(t, 720, info.Height)

	md, err := f.Metadata()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"lavfi.scene_score": "0.4"}, md.Map())

	side, err := f.SideData()
	require.NoError(t, err)
	require.Len(t, side, 1)
	assert.Equal(t, "ATSC A53 Part 4 Closed Captions", side[0].Name)
	assert.Equal(t, []byte("A53"), side[0].Data)
	v, _ := side[0].Metadata.Get("source")
	assert.Equal(t, "sei", v)

	f.Unref()
	assert.Equal(t, 1, unrefs)

	f.Free()
	f.Free()
	assert.Equal(t, 1, freed)
	_, err = f.Info()
	assert.ErrorIs(t, err, ErrNullRecord)
}

func TestRuntime_NewFrameOutOfMemory(t *testing.T) {
	rt := loadFake(t, fakeRelease("7.x"))
	_, err := rt.NewFrame()
	assert.Error(t, err)
}
