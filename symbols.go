package avload

import "strings"

// Capability flags an optional API path whose symbols were all resolved at
// bind time. Callers test capabilities instead of version numbers.
type Capability uint32

const (
	CapLogFormatLine2      Capability = 1 << iota // av_log_format_line2
	CapChannelLayout                              // AVChannelLayout API (av_channel_layout_*)
	CapLegacyChannelLayout                        // av_get_channel_layout_string
	CapDictIterate                                // av_dict_iterate
	CapSupportedConfig                            // avcodec_get_supported_config
	CapLegacyRegisterAll                          // av_register_all
	CapSwrAllocSetOpts2                           // swr_alloc_set_opts2
	capabilityEnd
)

var capabilityNames = map[Capability]string{
	CapLogFormatLine2:      "log_format_line2",
	CapChannelLayout:       "channel_layout",
	CapLegacyChannelLayout: "legacy_channel_layout",
	CapDictIterate:         "dict_iterate",
	CapSupportedConfig:     "supported_config",
	CapLegacyRegisterAll:   "legacy_register_all",
	CapSwrAllocSetOpts2:    "swr_alloc_set_opts2",
}

// Capabilities is a set of Capability flags.
type Capabilities uint32

// Has reports whether every capability in c is present.
func (cs Capabilities) Has(c Capability) bool { return Capability(cs)&c == c }

func (cs Capabilities) String() string {
	var names []string
	for c := Capability(1); c < capabilityEnd; c <<= 1 {
		if cs.Has(c) {
			names = append(names, capabilityNames[c])
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// symbol declares one native function a table binds.
type symbol struct {
	name     string
	fn       any // pointer to a func field
	optional bool
	cap      Capability // capability granted when every symbol sharing it resolves
}

// functionTable is implemented by each module's table.
type functionTable interface {
	module() Module
	symbols() []symbol
	versionFunc() func() uint32
}

// moduleInfo holds the functions every FFmpeg library exports.
type moduleInfo struct {
	Version       func() uint32
	Configuration func() string
	License       func() string
}

func (m *moduleInfo) infoSymbols(mod Module) []symbol {
	prefix := mod.String()
	return []symbol{
		{name: prefix + "_version", fn: &m.Version},
		{name: prefix + "_configuration", fn: &m.Configuration},
		{name: prefix + "_license", fn: &m.License},
	}
}

func (m *moduleInfo) versionFunc() func() uint32 { return m.Version }

// UtilFuncs is the libavutil function table.
type UtilFuncs struct {
	moduleInfo

	LogSetCallback    func(callback uintptr)
	LogSetLevel       func(level int32)
	LogGetLevel       func() int32
	LogFormatLine     func(avcl uintptr, level int32, format, vl, line uintptr, lineSize int32, printPrefix uintptr)
	LogFormatLine2    func(avcl uintptr, level int32, format, vl, line uintptr, lineSize int32, printPrefix uintptr) int32
	Strerror          func(errnum int32, buf, bufSize uintptr) int32
	FrameAlloc        func() uintptr
	FrameFree         func(frame uintptr)
	FrameUnref        func(frame uintptr)
	FrameSideDataName func(typ int32) uintptr
	DictGet           func(m uintptr, key string, prev uintptr, flags int32) uintptr
	DictSet           func(pm uintptr, key, value string, flags int32) int32
	DictCount         func(m uintptr) int32
	DictFree          func(pm uintptr)
	DictIterate       func(m, prev uintptr) uintptr
	PixFmtDescGet     func(pixFmt int32) uintptr
	PixFmtDescNext    func(prev uintptr) uintptr
	PixFmtDescGetID   func(desc uintptr) int32
	MediaTypeString   func(mediaType int32) uintptr

	ChannelLayoutDescribe func(layout, buf, bufSize uintptr) int32
	ChannelLayoutDefault  func(layout uintptr, nbChannels int32)
	ChannelLayoutUninit   func(layout uintptr)
	ChannelLayoutString   func(buf uintptr, bufSize, nbChannels int32, layout uint64)
}

func (*UtilFuncs) module() Module { return ModuleUtil }

func (t *UtilFuncs) symbols() []symbol {
	return append(t.infoSymbols(ModuleUtil),
		symbol{name: "av_log_set_callback", fn: &t.LogSetCallback},
		symbol{name: "av_log_set_level", fn: &t.LogSetLevel},
		symbol{name: "av_log_get_level", fn: &t.LogGetLevel},
		symbol{name: "av_log_format_line", fn: &t.LogFormatLine},
		symbol{name: "av_log_format_line2", fn: &t.LogFormatLine2, optional: true, cap: CapLogFormatLine2},
		symbol{name: "av_strerror", fn: &t.Strerror},
		symbol{name: "av_frame_alloc", fn: &t.FrameAlloc},
		symbol{name: "av_frame_free", fn: &t.FrameFree},
		symbol{name: "av_frame_unref", fn: &t.FrameUnref},
		symbol{name: "av_frame_side_data_name", fn: &t.FrameSideDataName},
		symbol{name: "av_dict_get", fn: &t.DictGet},
		symbol{name: "av_dict_set", fn: &t.DictSet},
		symbol{name: "av_dict_count", fn: &t.DictCount},
		symbol{name: "av_dict_free", fn: &t.DictFree},
		symbol{name: "av_dict_iterate", fn: &t.DictIterate, optional: true, cap: CapDictIterate},
		symbol{name: "av_pix_fmt_desc_get", fn: &t.PixFmtDescGet},
		symbol{name: "av_pix_fmt_desc_next", fn: &t.PixFmtDescNext},
		symbol{name: "av_pix_fmt_desc_get_id", fn: &t.PixFmtDescGetID},
		symbol{name: "av_get_media_type_string", fn: &t.MediaTypeString},
		symbol{name: "av_channel_layout_describe", fn: &t.ChannelLayoutDescribe, optional: true, cap: CapChannelLayout},
		symbol{name: "av_channel_layout_default", fn: &t.ChannelLayoutDefault, optional: true, cap: CapChannelLayout},
		symbol{name: "av_channel_layout_uninit", fn: &t.ChannelLayoutUninit, optional: true, cap: CapChannelLayout},
		symbol{name: "av_get_channel_layout_string", fn: &t.ChannelLayoutString, optional: true, cap: CapLegacyChannelLayout},
	)
}

// FormatFuncs is the libavformat function table.
type FormatFuncs struct {
	moduleInfo

	NetworkInit     func() int32
	OpenInput       func(ps uintptr, url string, format, options uintptr) int32
	FindStreamInfo  func(ctx, options uintptr) int32
	CloseInput      func(ps uintptr)
	ReadFrame       func(ctx, pkt uintptr) int32
	FindBestStream  func(ctx uintptr, mediaType, wanted, related int32, decoderRet uintptr, flags int32) int32
	DemuxerIterate  func(opaque uintptr) uintptr
	FindInputFormat func(shortName string) uintptr
	RegisterAll     func()
}

func (*FormatFuncs) module() Module { return ModuleFormat }

func (t *FormatFuncs) symbols() []symbol {
	return append(t.infoSymbols(ModuleFormat),
		symbol{name: "avformat_network_init", fn: &t.NetworkInit},
		symbol{name: "avformat_open_input", fn: &t.OpenInput},
		symbol{name: "avformat_find_stream_info", fn: &t.FindStreamInfo},
		symbol{name: "avformat_close_input", fn: &t.CloseInput},
		symbol{name: "av_read_frame", fn: &t.ReadFrame},
		symbol{name: "av_find_best_stream", fn: &t.FindBestStream},
		symbol{name: "av_demuxer_iterate", fn: &t.DemuxerIterate},
		symbol{name: "av_find_input_format", fn: &t.FindInputFormat},
		symbol{name: "av_register_all", fn: &t.RegisterAll, optional: true, cap: CapLegacyRegisterAll},
	)
}

// CodecFuncs is the libavcodec function table.
type CodecFuncs struct {
	moduleInfo

	DescriptorGet       func(id int32) uintptr
	DescriptorNext      func(prev uintptr) uintptr
	DescriptorGetByName func(name string) uintptr
	GetName             func(id int32) uintptr
	ProfileName         func(id, profile int32) uintptr
	PacketAlloc         func() uintptr
	PacketFree          func(pp uintptr)
	PacketUnref         func(pkt uintptr)
	FindDecoder         func(id int32) uintptr
	AllocContext3       func(codec uintptr) uintptr
	FreeContext         func(pctx uintptr)
	ParametersToContext func(ctx, par uintptr) int32
	Open2               func(ctx, codec, options uintptr) int32
	SendPacket          func(ctx, pkt uintptr) int32
	ReceiveFrame        func(ctx, frame uintptr) int32
	GetSupportedConfig  func(ctx, codec uintptr, config int32, flags uint32, outConfigs, outNum uintptr) int32
}

func (*CodecFuncs) module() Module { return ModuleCodec }

func (t *CodecFuncs) symbols() []symbol {
	return append(t.infoSymbols(ModuleCodec),
		symbol{name: "avcodec_descriptor_get", fn: &t.DescriptorGet},
		symbol{name: "avcodec_descriptor_next", fn: &t.DescriptorNext},
		symbol{name: "avcodec_descriptor_get_by_name", fn: &t.DescriptorGetByName},
		symbol{name: "avcodec_get_name", fn: &t.GetName},
		symbol{name: "avcodec_profile_name", fn: &t.ProfileName},
		symbol{name: "av_packet_alloc", fn: &t.PacketAlloc},
		symbol{name: "av_packet_free", fn: &t.PacketFree},
		symbol{name: "av_packet_unref", fn: &t.PacketUnref},
		symbol{name: "avcodec_find_decoder", fn: &t.FindDecoder},
		symbol{name: "avcodec_alloc_context3", fn: &t.AllocContext3},
		symbol{name: "avcodec_free_context", fn: &t.FreeContext},
		symbol{name: "avcodec_parameters_to_context", fn: &t.ParametersToContext},
		symbol{name: "avcodec_open2", fn: &t.Open2},
		symbol{name: "avcodec_send_packet", fn: &t.SendPacket},
		symbol{name: "avcodec_receive_frame", fn: &t.ReceiveFrame},
		symbol{name: "avcodec_get_supported_config", fn: &t.GetSupportedConfig, optional: true, cap: CapSupportedConfig},
	)
}

// ResampleFuncs is the libswresample function table.
type ResampleFuncs struct {
	moduleInfo

	Alloc         func() uintptr
	Init          func(s uintptr) int32
	Free          func(ps uintptr)
	Convert       func(s, out uintptr, outCount int32, in uintptr, inCount int32) int32
	GetDelay      func(s uintptr, base int64) int64
	AllocSetOpts2 func(ps, outLayout uintptr, outFmt, outRate int32, inLayout uintptr, inFmt, inRate, logOffset int32, logCtx uintptr) int32
}

func (*ResampleFuncs) module() Module { return ModuleResample }

func (t *ResampleFuncs) symbols() []symbol {
	return append(t.infoSymbols(ModuleResample),
		symbol{name: "swr_alloc", fn: &t.Alloc},
		symbol{name: "swr_init", fn: &t.Init},
		symbol{name: "swr_free", fn: &t.Free},
		symbol{name: "swr_convert", fn: &t.Convert},
		symbol{name: "swr_get_delay", fn: &t.GetDelay},
		symbol{name: "swr_alloc_set_opts2", fn: &t.AllocSetOpts2, optional: true, cap: CapSwrAllocSetOpts2},
	)
}

// newTable returns an empty table for m.
func newTable(m Module) functionTable {
	switch m {
	case ModuleUtil:
		return &UtilFuncs{}
	case ModuleFormat:
		return &FormatFuncs{}
	case ModuleCodec:
		return &CodecFuncs{}
	case ModuleResample:
		return &ResampleFuncs{}
	}
	return nil
}
