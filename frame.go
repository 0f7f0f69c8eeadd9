package avload

import (
	"errors"
	"fmt"
	"unsafe"
)

// SampleFormat mirrors enum AVSampleFormat.
type SampleFormat int

const (
	SampleFormatNone SampleFormat = -1
	SampleFormatU8   SampleFormat = 0
	SampleFormatS16  SampleFormat = 1
	SampleFormatS32  SampleFormat = 2
	SampleFormatFLT  SampleFormat = 3
	SampleFormatDBL  SampleFormat = 4
	SampleFormatU8P  SampleFormat = 5
	SampleFormatS16P SampleFormat = 6
	SampleFormatS32P SampleFormat = 7
	SampleFormatFLTP SampleFormat = 8
	SampleFormatDBLP SampleFormat = 9
	SampleFormatS64  SampleFormat = 10
	SampleFormatS64P SampleFormat = 11
)

func (s SampleFormat) String() string {
	switch s {
	case SampleFormatU8:
		return "u8"
	case SampleFormatS16:
		return "s16"
	case SampleFormatS32:
		return "s32"
	case SampleFormatFLT:
		return "flt"
	case SampleFormatDBL:
		return "dbl"
	case SampleFormatU8P:
		return "u8p"
	case SampleFormatS16P:
		return "s16p"
	case SampleFormatS32P:
		return "s32p"
	case SampleFormatFLTP:
		return "fltp"
	case SampleFormatDBLP:
		return "dblp"
	case SampleFormatS64:
		return "s64"
	case SampleFormatS64P:
		return "s64p"
	default:
		return "none"
	}
}

// BytesPerSample returns the size of one sample of one channel.
func (s SampleFormat) BytesPerSample() int {
	switch s {
	case SampleFormatU8, SampleFormatU8P:
		return 1
	case SampleFormatS16, SampleFormatS16P:
		return 2
	case SampleFormatS32, SampleFormatS32P, SampleFormatFLT, SampleFormatFLTP:
		return 4
	case SampleFormatDBL, SampleFormatDBLP, SampleFormatS64, SampleFormatS64P:
		return 8
	default:
		return 0
	}
}

// IsPlanar reports whether each channel has its own plane.
func (s SampleFormat) IsPlanar() bool {
	return s >= SampleFormatU8P && s <= SampleFormatDBLP || s == SampleFormatS64P
}

// PictureType mirrors enum AVPictureType.
type PictureType int

const (
	PictureTypeNone PictureType = iota
	PictureTypeI
	PictureTypeP
	PictureTypeB
	PictureTypeS
	PictureTypeSI
	PictureTypeSP
	PictureTypeBI
)

func (p PictureType) String() string {
	switch p {
	case PictureTypeI:
		return "I"
	case PictureTypeP:
		return "P"
	case PictureTypeB:
		return "B"
	case PictureTypeS:
		return "S"
	case PictureTypeSI:
		return "SI"
	case PictureTypeSP:
		return "SP"
	case PictureTypeBI:
		return "BI"
	default:
		return "?"
	}
}

// AV_FRAME_FLAG_* bits.
const (
	FrameFlagCorrupt       = 1 << 0
	FrameFlagKey           = 1 << 1
	FrameFlagDiscard       = 1 << 2
	FrameFlagInterlaced    = 1 << 3
	FrameFlagTopFieldFirst = 1 << 4
)

// FrameInfo is an owned snapshot of an AVFrame's properties. Plane data is
// not copied.
type FrameInfo struct {
	Width             int
	Height            int
	NbSamples         int
	Format            int // AVPixelFormat for video, AVSampleFormat for audio
	KeyFrame          bool
	PictType          PictureType
	SampleAspectRatio Rational
	PTS               int64
	PktDTS            int64
	TimeBase          Rational // zero before avutil 57
	Quality           int
	RepeatPict        int
	Interlaced        bool
	TopFieldFirst     bool
	SampleRate        int
	ChannelLayout     ChannelLayout
	Flags             int
	ColorRange        int
	ColorPrimaries    int
	ColorTRC          int
	ColorSpace        int
	ChromaLocation    int
	BestEffortPTS     int64
	PktPos            int64 // -1 from avutil 60 on
	Duration          int64
	DecodeErrorFlags  int
	PktSize           int // 0 from avutil 60 on
	Linesize          [8]int
	NbSideData        int

	sideData uintptr
	metadata uintptr
}

// SampleFormat interprets Format for audio frames.
func (f FrameInfo) SampleFormat() SampleFormat { return SampleFormat(f.Format) }

// avFrameHead is the run up to format shared by every avutil major.
type avFrameHead struct {
	data         [8]uintptr
	linesize     [8]int32
	extendedData uintptr
	width        int32
	height       int32
	nbSamples    int32
	format       int32
}

// avFrameColor is the color description run, unchanged since avutil 56.
type avFrameColor struct {
	colorRange     int32
	colorPrimaries int32
	colorTRC       int32
	colorSpace     int32
	chromaLocation int32
}

type avFrame56 struct {
	avFrameHead
	keyFrame             int32
	pictType             int32
	sampleAspectRatio    avRational
	pts                  int64
	pktPts               int64
	pktDts               int64
	codedPictureNumber   int32
	displayPictureNumber int32
	quality              int32
	opaque               uintptr
	errs                 [8]uint64
	repeatPict           int32
	interlacedFrame      int32
	topFieldFirst        int32
	paletteHasChanged    int32
	reorderedOpaque      int64
	sampleRate           int32
	channelLayout        uint64
	buf                  [8]uintptr
	extendedBuf          uintptr
	nbExtendedBuf        int32
	sideData             uintptr
	nbSideData           int32
	flags                int32
	avFrameColor
	bestEffortTimestamp int64
	pktPos              int64
	pktDuration         int64
	metadata            uintptr
	decodeErrorFlags    int32
	channels            int32
	pktSize             int32
}

// avutil 57 dropped pkt_pts and error and added time_base.
type avFrame57 struct {
	avFrameHead
	keyFrame             int32
	pictType             int32
	sampleAspectRatio    avRational
	pts                  int64
	pktDts               int64
	timeBase             avRational
	codedPictureNumber   int32
	displayPictureNumber int32
	quality              int32
	opaque               uintptr
	repeatPict           int32
	interlacedFrame      int32
	topFieldFirst        int32
	paletteHasChanged    int32
	reorderedOpaque      int64
	sampleRate           int32
	channelLayout        uint64
	buf                  [8]uintptr
	extendedBuf          uintptr
	nbExtendedBuf        int32
	sideData             uintptr
	nbSideData           int32
	flags                int32
	avFrameColor
	bestEffortTimestamp int64
	pktPos              int64
	pktDuration         int64
	metadata            uintptr
	decodeErrorFlags    int32
	channels            int32
	pktSize             int32
}

// avFrameTail59 follows pkt_size from avutil 59 on.
type avFrameTail59 struct {
	hwFramesCtx uintptr
	opaqueRef   uintptr
	cropTop     uintptr
	cropBottom  uintptr
	cropLeft    uintptr
	cropRight   uintptr
	privateRef  uintptr
	chLayout    avChannelLayout
	duration    int64
}

// avutil 59 dropped the picture numbers, reordered_opaque, the legacy
// channel fields and pkt_duration.
type avFrame59 struct {
	avFrameHead
	keyFrame          int32
	pictType          int32
	sampleAspectRatio avRational
	pts               int64
	pktDts            int64
	timeBase          avRational
	quality           int32
	opaque            uintptr
	repeatPict        int32
	interlacedFrame   int32
	topFieldFirst     int32
	paletteHasChanged int32
	sampleRate        int32
	buf               [8]uintptr
	extendedBuf       uintptr
	nbExtendedBuf     int32
	sideData          uintptr
	nbSideData        int32
	flags             int32
	avFrameColor
	bestEffortTimestamp int64
	pktPos              int64
	metadata            uintptr
	decodeErrorFlags    int32
	pktSize             int32
	avFrameTail59
}

// avutil 60 moved key_frame, interlaced_frame and top_field_first into
// flags and dropped palette_has_changed, pkt_pos and pkt_size.
type avFrame60 struct {
	avFrameHead
	pictType          int32
	sampleAspectRatio avRational
	pts               int64
	pktDts            int64
	timeBase          avRational
	quality           int32
	opaque            uintptr
	repeatPict        int32
	sampleRate        int32
	buf               [8]uintptr
	extendedBuf       uintptr
	nbExtendedBuf     int32
	sideData          uintptr
	nbSideData        int32
	flags             int32
	avFrameColor
	bestEffortTimestamp int64
	metadata            uintptr
	decodeErrorFlags    int32
	avFrameTail59
}

var frameOverlay = newOverlay("AVFrame", ModuleUtil, supportedRanges[ModuleUtil],
	variant(56, 56, decodeFrame56),
	variant(57, 58, decodeFrame57),
	variant(59, 59, decodeFrame59),
	variant(60, 60, decodeFrame60),
)

func (f *FrameInfo) setHead(h *avFrameHead) {
	f.Width = int(h.width)
	f.Height = int(h.height)
	f.NbSamples = int(h.nbSamples)
	f.Format = int(h.format)
	for i, l := range h.linesize {
		f.Linesize[i] = int(l)
	}
}

func (f *FrameInfo) setColor(c *avFrameColor) {
	f.ColorRange = int(c.colorRange)
	f.ColorPrimaries = int(c.colorPrimaries)
	f.ColorTRC = int(c.colorTRC)
	f.ColorSpace = int(c.colorSpace)
	f.ChromaLocation = int(c.chromaLocation)
}

func decodeFrame56(ptr uintptr) (FrameInfo, error) {
	raw := overlayAt[avFrame56](ptr)
	f := FrameInfo{
		KeyFrame:          raw.keyFrame != 0,
		PictType:          PictureType(raw.pictType),
		SampleAspectRatio: raw.sampleAspectRatio.value(),
		PTS:               raw.pts,
		PktDTS:            raw.pktDts,
		Quality:           int(raw.quality),
		RepeatPict:        int(raw.repeatPict),
		Interlaced:        raw.interlacedFrame != 0,
		TopFieldFirst:     raw.topFieldFirst != 0,
		SampleRate:        int(raw.sampleRate),
		ChannelLayout:     LegacyChannelLayout(raw.channelLayout, int(raw.channels)),
		Flags:             int(raw.flags),
		BestEffortPTS:     raw.bestEffortTimestamp,
		PktPos:            raw.pktPos,
		Duration:          raw.pktDuration,
		DecodeErrorFlags:  int(raw.decodeErrorFlags),
		PktSize:           int(raw.pktSize),
		NbSideData:        int(raw.nbSideData),
		sideData:          raw.sideData,
		metadata:          raw.metadata,
	}
	f.setHead(&raw.avFrameHead)
	f.setColor(&raw.avFrameColor)
	return f, nil
}

func decodeFrame57(ptr uintptr) (FrameInfo, error) {
	raw := overlayAt[avFrame57](ptr)
	f := FrameInfo{
		KeyFrame:          raw.keyFrame != 0,
		PictType:          PictureType(raw.pictType),
		SampleAspectRatio: raw.sampleAspectRatio.value(),
		PTS:               raw.pts,
		PktDTS:            raw.pktDts,
		TimeBase:          raw.timeBase.value(),
		Quality:           int(raw.quality),
		RepeatPict:        int(raw.repeatPict),
		Interlaced:        raw.interlacedFrame != 0,
		TopFieldFirst:     raw.topFieldFirst != 0,
		SampleRate:        int(raw.sampleRate),
		ChannelLayout:     LegacyChannelLayout(raw.channelLayout, int(raw.channels)),
		Flags:             int(raw.flags),
		BestEffortPTS:     raw.bestEffortTimestamp,
		PktPos:            raw.pktPos,
		Duration:          raw.pktDuration,
		DecodeErrorFlags:  int(raw.decodeErrorFlags),
		PktSize:           int(raw.pktSize),
		NbSideData:        int(raw.nbSideData),
		sideData:          raw.sideData,
		metadata:          raw.metadata,
	}
	f.setHead(&raw.avFrameHead)
	f.setColor(&raw.avFrameColor)
	return f, nil
}

func decodeFrame59(ptr uintptr) (FrameInfo, error) {
	raw := overlayAt[avFrame59](ptr)
	layout, err := decodeChannelLayout(uintptr(unsafe.Pointer(&raw.chLayout)))
	if err != nil {
		return FrameInfo{}, fmt.Errorf("ch_layout: %w", err)
	}
	f := FrameInfo{
		KeyFrame:          raw.flags&FrameFlagKey != 0,
		PictType:          PictureType(raw.pictType),
		SampleAspectRatio: raw.sampleAspectRatio.value(),
		PTS:               raw.pts,
		PktDTS:            raw.pktDts,
		TimeBase:          raw.timeBase.value(),
		Quality:           int(raw.quality),
		RepeatPict:        int(raw.repeatPict),
		Interlaced:        raw.flags&FrameFlagInterlaced != 0,
		TopFieldFirst:     raw.flags&FrameFlagTopFieldFirst != 0,
		SampleRate:        int(raw.sampleRate),
		ChannelLayout:     layout,
		Flags:             int(raw.flags),
		BestEffortPTS:     raw.bestEffortTimestamp,
		PktPos:            raw.pktPos,
		Duration:          raw.duration,
		DecodeErrorFlags:  int(raw.decodeErrorFlags),
		PktSize:           int(raw.pktSize),
		NbSideData:        int(raw.nbSideData),
		sideData:          raw.sideData,
		metadata:          raw.metadata,
	}
	f.setHead(&raw.avFrameHead)
	f.setColor(&raw.avFrameColor)
	return f, nil
}

func decodeFrame60(ptr uintptr) (FrameInfo, error) {
	raw := overlayAt[avFrame60](ptr)
	layout, err := decodeChannelLayout(uintptr(unsafe.Pointer(&raw.chLayout)))
	if err != nil {
		return FrameInfo{}, fmt.Errorf("ch_layout: %w", err)
	}
	f := FrameInfo{
		KeyFrame:          raw.flags&FrameFlagKey != 0,
		PictType:          PictureType(raw.pictType),
		SampleAspectRatio: raw.sampleAspectRatio.value(),
		PTS:               raw.pts,
		PktDTS:            raw.pktDts,
		TimeBase:          raw.timeBase.value(),
		Quality:           int(raw.quality),
		RepeatPict:        int(raw.repeatPict),
		Interlaced:        raw.flags&FrameFlagInterlaced != 0,
		TopFieldFirst:     raw.flags&FrameFlagTopFieldFirst != 0,
		SampleRate:        int(raw.sampleRate),
		ChannelLayout:     layout,
		Flags:             int(raw.flags),
		BestEffortPTS:     raw.bestEffortTimestamp,
		PktPos:            -1,
		Duration:          raw.duration,
		DecodeErrorFlags:  int(raw.decodeErrorFlags),
		NbSideData:        int(raw.nbSideData),
		sideData:          raw.sideData,
		metadata:          raw.metadata,
	}
	f.setHead(&raw.avFrameHead)
	f.setColor(&raw.avFrameColor)
	return f, nil
}

// FrameSideData is an owned copy of one AVFrameSideData block.
type FrameSideData struct {
	Type     int
	Name     string
	Data     []byte
	Metadata Dictionary

	metadata uintptr
}

const maxSideDataSize = 1 << 26

type avFrameSideData56 struct {
	typ      int32
	data     uintptr
	size     int32
	metadata uintptr
	buf      uintptr
}

// avutil 57 widened size to size_t.
type avFrameSideData57 struct {
	typ      int32
	data     uintptr
	size     uint64
	metadata uintptr
	buf      uintptr
}

var frameSideDataOverlay = newOverlay("AVFrameSideData", ModuleUtil, supportedRanges[ModuleUtil],
	variant(56, 56, func(ptr uintptr) (FrameSideData, error) {
		raw := overlayAt[avFrameSideData56](ptr)
		return frameSideData(raw.typ, raw.data, int64(raw.size), raw.metadata)
	}),
	variant(57, 60, func(ptr uintptr) (FrameSideData, error) {
		raw := overlayAt[avFrameSideData57](ptr)
		if raw.size > maxSideDataSize {
			return FrameSideData{}, fmt.Errorf("%w: side data size %d", ErrMalformedNativeData, raw.size)
		}
		return frameSideData(raw.typ, raw.data, int64(raw.size), raw.metadata)
	}),
)

func frameSideData(typ int32, data uintptr, size int64, metadata uintptr) (FrameSideData, error) {
	b, err := copyBytes(data, int(size), maxSideDataSize)
	if err != nil {
		return FrameSideData{}, err
	}
	return FrameSideData{Type: int(typ), Data: b, metadata: metadata}, nil
}

// Frame owns an AVFrame. It holds a runtime reference until Free.
type Frame struct {
	r   *Runtime
	ptr *uintptr // AVFrame*, boxed so av_frame_free can clear it
}

// NewFrame allocates an empty frame.
func (r *Runtime) NewFrame() (*Frame, error) {
	if err := r.Acquire(); err != nil {
		return nil, err
	}
	p := r.Util.FrameAlloc()
	if p == 0 {
		r.Release()
		return nil, errors.New("av_frame_alloc: out of memory")
	}
	return &Frame{r: r, ptr: &p}, nil
}

func (f *Frame) native() uintptr {
	if f == nil || f.ptr == nil {
		return 0
	}
	return *f.ptr
}

// Info decodes the frame's properties.
func (f *Frame) Info() (FrameInfo, error) {
	if f.native() == 0 {
		return FrameInfo{}, ErrNullRecord
	}
	return frameOverlay.Decode(f.native(), f.r.Major(ModuleUtil))
}

// Metadata copies the frame's metadata dictionary.
func (f *Frame) Metadata() (Dictionary, error) {
	info, err := f.Info()
	if err != nil {
		return nil, err
	}
	return f.r.dictionary(info.metadata)
}

// SideData copies every side data block attached to the frame.
func (f *Frame) SideData() ([]FrameSideData, error) {
	info, err := f.Info()
	if err != nil {
		return nil, err
	}
	if info.NbSideData < 0 || info.NbSideData > maxArrayLen {
		return nil, fmt.Errorf("%w: %d side data blocks", ErrMalformedNativeData, info.NbSideData)
	}
	if info.NbSideData == 0 || info.sideData == 0 {
		return nil, nil
	}

	major := f.r.Major(ModuleUtil)
	out := make([]FrameSideData, 0, info.NbSideData)
	for i := 0; i < info.NbSideData; i++ {
		sd, err := frameSideDataOverlay.Decode(pointerAt(info.sideData, i), major)
		if err != nil {
			return nil, err
		}
		sd.Name = goString(f.r.Util.FrameSideDataName(int32(sd.Type)))
		if sd.Metadata, err = f.r.dictionary(sd.metadata); err != nil {
			return nil, err
		}
		out = append(out, sd)
	}
	return out, nil
}

// Unref drops the frame's buffers so it can be reused.
func (f *Frame) Unref() {
	if p := f.native(); p != 0 {
		f.r.Util.FrameUnref(p)
	}
}

// Free releases the frame. It is safe to call more than once.
func (f *Frame) Free() {
	if f.native() == 0 {
		return
	}
	f.r.Util.FrameFree(uintptr(unsafe.Pointer(f.ptr)))
	*f.ptr = 0
	f.r.Release()
}
