package avload

import (
	"fmt"
	"math"
	"time"
	"unsafe"
)

// NoPTS is AV_NOPTS_VALUE.
const NoPTS = math.MinInt64

const avTimeBase = 1000000 // AV_TIME_BASE

// Rational mirrors AVRational.
type Rational struct {
	Num int
	Den int
}

// Float returns Num/Den, or 0 when Den is 0.
func (q Rational) Float() float64 {
	if q.Den == 0 {
		return 0
	}
	return float64(q.Num) / float64(q.Den)
}

// Rescale converts ts from units of q to a time.Duration.
func (q Rational) Rescale(ts int64) time.Duration {
	if ts == NoPTS || q.Den == 0 {
		return 0
	}
	return time.Duration(float64(ts) * float64(q.Num) / float64(q.Den) * float64(time.Second))
}

func (q Rational) String() string {
	return fmt.Sprintf("%d/%d", q.Num, q.Den)
}

type avRational struct {
	num int32
	den int32
}

func (q avRational) value() Rational { return Rational{Num: int(q.num), Den: int(q.den)} }

// FormatContextInfo is an owned snapshot of an AVFormatContext.
type FormatContextInfo struct {
	URL        string
	NbStreams  int
	NbChapters int
	NbPrograms int
	StartTime  int64 // AV_TIME_BASE units, NoPTS when unknown
	Duration   int64 // AV_TIME_BASE units, NoPTS when unknown
	BitRate    int64
	Flags      int
	CtxFlags   int
	ProbeSize  int64

	iformat  uintptr
	streams  uintptr
	metadata uintptr
}

// DurationTime returns Duration as a time.Duration, or 0 when unknown.
func (f FormatContextInfo) DurationTime() time.Duration {
	if f.Duration == NoPTS {
		return 0
	}
	return time.Duration(f.Duration) * time.Second / avTimeBase
}

// avFormatContextHead is shared by every avformat major.
type avFormatContextHead struct {
	avClass   uintptr
	iformat   uintptr
	oformat   uintptr
	privData  uintptr
	pb        uintptr
	ctxFlags  int32
	nbStreams uint32
	streams   uintptr
}

// avFormatContextTail follows the stream array (and, in 58, filename) up to
// metadata in avformat 58 to 60.
type avFormatContextTail struct {
	url                uintptr
	startTime          int64
	duration           int64
	bitRate            int64
	packetSize         uint32
	maxDelay           int32
	flags              int32
	probeSize          int64
	maxAnalyzeDuration int64
	key                uintptr
	keyLen             int32
	nbPrograms         uint32
	programs           uintptr
	videoCodecID       int32
	audioCodecID       int32
	subtitleCodecID    int32
	maxIndexSize       uint32
	maxPictureBuffer   uint32
	nbChapters         uint32
	chapters           uintptr
	metadata           uintptr
}

type avFormatContext58 struct {
	avFormatContextHead
	filename [1024]byte
	avFormatContextTail
}

type avFormatContext59 struct {
	avFormatContextHead
	avFormatContextTail
}

// avFormatContext61 moved chapters ahead of url and added stream groups.
type avFormatContext61 struct {
	avFormatContextHead
	nbStreamGroups     uint32
	streamGroups       uintptr
	nbChapters         uint32
	chapters           uintptr
	url                uintptr
	startTime          int64
	duration           int64
	bitRate            int64
	packetSize         uint32
	maxDelay           int32
	flags              int32
	probeSize          int64
	maxAnalyzeDuration int64
	key                uintptr
	keyLen             int32
	nbPrograms         uint32
	programs           uintptr
	videoCodecID       int32
	audioCodecID       int32
	subtitleCodecID    int32
	dataCodecID        int32
	metadata           uintptr
}

var formatContextOverlay = newOverlay("AVFormatContext", ModuleFormat, supportedRanges[ModuleFormat],
	variant(58, 58, func(ptr uintptr) (FormatContextInfo, error) {
		raw := overlayAt[avFormatContext58](ptr)
		return formatContextInfo(&raw.avFormatContextHead, &raw.avFormatContextTail)
	}),
	variant(59, 60, func(ptr uintptr) (FormatContextInfo, error) {
		raw := overlayAt[avFormatContext59](ptr)
		return formatContextInfo(&raw.avFormatContextHead, &raw.avFormatContextTail)
	}),
	variant(61, 62, decodeFormatContext61),
)

func formatContextInfo(h *avFormatContextHead, t *avFormatContextTail) (FormatContextInfo, error) {
	url, err := cString(t.url)
	if err != nil {
		return FormatContextInfo{}, fmt.Errorf("url: %w", err)
	}
	return FormatContextInfo{
		URL:        url,
		NbStreams:  int(h.nbStreams),
		NbChapters: int(t.nbChapters),
		NbPrograms: int(t.nbPrograms),
		StartTime:  t.startTime,
		Duration:   t.duration,
		BitRate:    t.bitRate,
		Flags:      int(t.flags),
		CtxFlags:   int(h.ctxFlags),
		ProbeSize:  t.probeSize,
		iformat:    h.iformat,
		streams:    h.streams,
		metadata:   t.metadata,
	}, nil
}

func decodeFormatContext61(ptr uintptr) (FormatContextInfo, error) {
	raw := overlayAt[avFormatContext61](ptr)
	url, err := cString(raw.url)
	if err != nil {
		return FormatContextInfo{}, fmt.Errorf("url: %w", err)
	}
	return FormatContextInfo{
		URL:        url,
		NbStreams:  int(raw.nbStreams),
		NbChapters: int(raw.nbChapters),
		NbPrograms: int(raw.nbPrograms),
		StartTime:  raw.startTime,
		Duration:   raw.duration,
		BitRate:    raw.bitRate,
		Flags:      int(raw.flags),
		CtxFlags:   int(raw.ctxFlags),
		ProbeSize:  raw.probeSize,
		iformat:    raw.iformat,
		streams:    raw.streams,
		metadata:   raw.metadata,
	}, nil
}

// AV_DISPOSITION_* bits.
const (
	DispositionDefault         = 1 << 0
	DispositionDub             = 1 << 1
	DispositionOriginal        = 1 << 2
	DispositionComment         = 1 << 3
	DispositionLyrics          = 1 << 4
	DispositionKaraoke         = 1 << 5
	DispositionForced          = 1 << 6
	DispositionHearingImpaired = 1 << 7
	DispositionVisualImpaired  = 1 << 8
	DispositionCleanEffects    = 1 << 9
	DispositionAttachedPic     = 1 << 10
)

// StreamInfo is an owned snapshot of an AVStream. Codec and Metadata are
// filled by Demuxer.Streams.
type StreamInfo struct {
	Index             int
	ID                int
	TimeBase          Rational
	StartTime         int64
	Duration          int64 // in TimeBase units
	NbFrames          int64
	Disposition       int
	SampleAspectRatio Rational
	AvgFrameRate      Rational

	Codec    CodecParameters
	Metadata Dictionary

	metadata uintptr
}

// streamRecord is a decoded AVStream together with its codecpar pointer.
// The pointer is borrowed from the format context and is only used while
// the demuxer lock is held.
type streamRecord struct {
	StreamInfo
	codecpar uintptr
}

// IsDefault reports whether the stream carries AV_DISPOSITION_DEFAULT.
func (s StreamInfo) IsDefault() bool { return s.Disposition&DispositionDefault != 0 }

// IsAttachedPic reports whether the stream is a cover image.
func (s StreamInfo) IsAttachedPic() bool { return s.Disposition&DispositionAttachedPic != 0 }

// DurationTime returns Duration rescaled by TimeBase.
func (s StreamInfo) DurationTime() time.Duration { return s.TimeBase.Rescale(s.Duration) }

// avStreamCommon is the run of AVStream fields from time_base to
// avg_frame_rate, identical in every avformat major.
type avStreamCommon struct {
	timeBase          avRational
	startTime         int64
	duration          int64
	nbFrames          int64
	disposition       int32
	discard           int32
	sampleAspectRatio avRational
	metadata          uintptr
	avgFrameRate      avRational
}

// avformat 58: deprecated codec context pointer, 88 byte AVPacket.
type avStream58 struct {
	index    int32
	id       int32
	codec    uintptr
	privData uintptr
	avStreamCommon
	attachedPic                     [11]uint64
	sideData                        uintptr
	nbSideData                      int32
	eventFlags                      int32
	rFrameRate                      avRational
	recommendedEncoderConfiguration uintptr
	codecpar                        uintptr
}

// avformat 59 and 60: 104 byte AVPacket, codecpar still at the end.
type avStream59 struct {
	index    int32
	id       int32
	privData uintptr
	avStreamCommon
	attachedPic [13]uint64
	sideData    uintptr
	nbSideData  int32
	eventFlags  int32
	rFrameRate  avRational
	codecpar    uintptr
}

// avformat 61+: AVClass first, codecpar moved to the front.
type avStream61 struct {
	avClass  uintptr
	index    int32
	id       int32
	codecpar uintptr
	privData uintptr
	avStreamCommon
}

var streamOverlay = newOverlay("AVStream", ModuleFormat, supportedRanges[ModuleFormat],
	variant(58, 58, func(ptr uintptr) (streamRecord, error) {
		raw := overlayAt[avStream58](ptr)
		return newStreamRecord(raw.index, raw.id, raw.codecpar, &raw.avStreamCommon), nil
	}),
	variant(59, 60, func(ptr uintptr) (streamRecord, error) {
		raw := overlayAt[avStream59](ptr)
		return newStreamRecord(raw.index, raw.id, raw.codecpar, &raw.avStreamCommon), nil
	}),
	variant(61, 62, func(ptr uintptr) (streamRecord, error) {
		raw := overlayAt[avStream61](ptr)
		return newStreamRecord(raw.index, raw.id, raw.codecpar, &raw.avStreamCommon), nil
	}),
)

func newStreamRecord(index, id int32, codecpar uintptr, c *avStreamCommon) streamRecord {
	return streamRecord{
		StreamInfo: StreamInfo{
			Index:             int(index),
			ID:                int(id),
			TimeBase:          c.timeBase.value(),
			StartTime:         c.startTime,
			Duration:          c.duration,
			NbFrames:          c.nbFrames,
			Disposition:       int(c.disposition),
			SampleAspectRatio: c.sampleAspectRatio.value(),
			AvgFrameRate:      c.avgFrameRate.value(),
			metadata:          c.metadata,
		},
		codecpar: codecpar,
	}
}

// maxExtradataSize bounds extradata copies.
const maxExtradataSize = 1 << 24

// CodecParameters is an owned copy of AVCodecParameters.
type CodecParameters struct {
	MediaType          MediaType
	CodecID            int
	CodecTag           uint32
	Extradata          []byte
	Format             int // AVPixelFormat or AVSampleFormat
	BitRate            int64
	BitsPerCodedSample int
	BitsPerRawSample   int
	Profile            int
	Level              int
	Width              int
	Height             int
	SampleAspectRatio  Rational
	FrameRate          Rational // avcodec 61+ only
	FieldOrder         int
	ColorRange         int
	ColorPrimaries     int
	ColorTRC           int
	ColorSpace         int
	ChromaLocation     int
	VideoDelay         int
	ChannelLayout      ChannelLayout
	SampleRate         int
	BlockAlign         int
	FrameSize          int
	InitialPadding     int
	TrailingPadding    int
	SeekPreroll        int
}

// avCodecParametersAudioTail ends AVCodecParameters in every avcodec major.
type avCodecParametersAudioTail struct {
	sampleRate      int32
	blockAlign      int32
	frameSize       int32
	initialPadding  int32
	trailingPadding int32
	seekPreroll     int32
}

// avCodecParameters58 carries the legacy channel mask. avcodec 60 appends
// an AVChannelLayout after seek_preroll.
type avCodecParameters58 struct {
	codecType          int32
	codecID            int32
	codecTag           uint32
	extradata          uintptr
	extradataSize      int32
	format             int32
	bitRate            int64
	bitsPerCodedSample int32
	bitsPerRawSample   int32
	profile            int32
	level              int32
	width              int32
	height             int32
	sampleAspectRatio  avRational
	fieldOrder         int32
	colorRange         int32
	colorPrimaries     int32
	colorTRC           int32
	colorSpace         int32
	chromaLocation     int32
	videoDelay         int32
	channelLayout      uint64
	channels           int32
	avCodecParametersAudioTail
}

type avCodecParameters60 struct {
	avCodecParameters58
	chLayout avChannelLayout
}

type avCodecParameters61 struct {
	codecType          int32
	codecID            int32
	codecTag           uint32
	extradata          uintptr
	extradataSize      int32
	codedSideData      uintptr
	nbCodedSideData    int32
	format             int32
	bitRate            int64
	bitsPerCodedSample int32
	bitsPerRawSample   int32
	profile            int32
	level              int32
	width              int32
	height             int32
	sampleAspectRatio  avRational
	frameRate          avRational
	fieldOrder         int32
	colorRange         int32
	colorPrimaries     int32
	colorTRC           int32
	colorSpace         int32
	chromaLocation     int32
	videoDelay         int32
	chLayout           avChannelLayout
	avCodecParametersAudioTail
}

var codecParametersOverlay = newOverlay("AVCodecParameters", ModuleCodec, supportedRanges[ModuleCodec],
	variant(58, 59, func(ptr uintptr) (CodecParameters, error) {
		raw := overlayAt[avCodecParameters58](ptr)
		p, err := codecParameters58(raw)
		if err != nil {
			return CodecParameters{}, err
		}
		p.ChannelLayout = LegacyChannelLayout(raw.channelLayout, int(raw.channels))
		return p, nil
	}),
	variant(60, 60, func(ptr uintptr) (CodecParameters, error) {
		raw := overlayAt[avCodecParameters60](ptr)
		p, err := codecParameters58(&raw.avCodecParameters58)
		if err != nil {
			return CodecParameters{}, err
		}
		p.ChannelLayout, err = decodeChannelLayout(uintptr(unsafe.Pointer(&raw.chLayout)))
		if err != nil {
			return CodecParameters{}, fmt.Errorf("ch_layout: %w", err)
		}
		if p.ChannelLayout.IsZero() {
			p.ChannelLayout = LegacyChannelLayout(raw.channelLayout, int(raw.channels))
		}
		return p, nil
	}),
	variant(61, 62, decodeCodecParameters61),
)

func codecParameters58(raw *avCodecParameters58) (CodecParameters, error) {
	extradata, err := copyBytes(raw.extradata, int(raw.extradataSize), maxExtradataSize)
	if err != nil {
		return CodecParameters{}, fmt.Errorf("extradata: %w", err)
	}
	a := &raw.avCodecParametersAudioTail
	return CodecParameters{
		MediaType:          MediaType(raw.codecType),
		CodecID:            int(raw.codecID),
		CodecTag:           raw.codecTag,
		Extradata:          extradata,
		Format:             int(raw.format),
		BitRate:            raw.bitRate,
		BitsPerCodedSample: int(raw.bitsPerCodedSample),
		BitsPerRawSample:   int(raw.bitsPerRawSample),
		Profile:            int(raw.profile),
		Level:              int(raw.level),
		Width:              int(raw.width),
		Height:             int(raw.height),
		SampleAspectRatio:  raw.sampleAspectRatio.value(),
		FieldOrder:         int(raw.fieldOrder),
		ColorRange:         int(raw.colorRange),
		ColorPrimaries:     int(raw.colorPrimaries),
		ColorTRC:           int(raw.colorTRC),
		ColorSpace:         int(raw.colorSpace),
		ChromaLocation:     int(raw.chromaLocation),
		VideoDelay:         int(raw.videoDelay),
		SampleRate:         int(a.sampleRate),
		BlockAlign:         int(a.blockAlign),
		FrameSize:          int(a.frameSize),
		InitialPadding:     int(a.initialPadding),
		TrailingPadding:    int(a.trailingPadding),
		SeekPreroll:        int(a.seekPreroll),
	}, nil
}

func decodeCodecParameters61(ptr uintptr) (CodecParameters, error) {
	raw := overlayAt[avCodecParameters61](ptr)
	extradata, err := copyBytes(raw.extradata, int(raw.extradataSize), maxExtradataSize)
	if err != nil {
		return CodecParameters{}, fmt.Errorf("extradata: %w", err)
	}
	layout, err := decodeChannelLayout(uintptr(unsafe.Pointer(&raw.chLayout)))
	if err != nil {
		return CodecParameters{}, fmt.Errorf("ch_layout: %w", err)
	}
	a := &raw.avCodecParametersAudioTail
	return CodecParameters{
		MediaType:          MediaType(raw.codecType),
		CodecID:            int(raw.codecID),
		CodecTag:           raw.codecTag,
		Extradata:          extradata,
		Format:             int(raw.format),
		BitRate:            raw.bitRate,
		BitsPerCodedSample: int(raw.bitsPerCodedSample),
		BitsPerRawSample:   int(raw.bitsPerRawSample),
		Profile:            int(raw.profile),
		Level:              int(raw.level),
		Width:              int(raw.width),
		Height:             int(raw.height),
		SampleAspectRatio:  raw.sampleAspectRatio.value(),
		FrameRate:          raw.frameRate.value(),
		FieldOrder:         int(raw.fieldOrder),
		ColorRange:         int(raw.colorRange),
		ColorPrimaries:     int(raw.colorPrimaries),
		ColorTRC:           int(raw.colorTRC),
		ColorSpace:         int(raw.colorSpace),
		ChromaLocation:     int(raw.chromaLocation),
		VideoDelay:         int(raw.videoDelay),
		ChannelLayout:      layout,
		SampleRate:         int(a.sampleRate),
		BlockAlign:         int(a.blockAlign),
		FrameSize:          int(a.frameSize),
		InitialPadding:     int(a.initialPadding),
		TrailingPadding:    int(a.trailingPadding),
		SeekPreroll:        int(a.seekPreroll),
	}, nil
}
