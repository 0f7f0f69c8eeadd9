package avload

import "fmt"

// AV_CODEC_PROP_* bits.
const (
	CodecPropIntraOnly = 1 << 0
	CodecPropLossy     = 1 << 1
	CodecPropLossless  = 1 << 2
	CodecPropReorder   = 1 << 3
	CodecPropFields    = 1 << 4
	CodecPropBitmapSub = 1 << 16
	CodecPropTextSub   = 1 << 17
)

// profileUnknown terminates AVProfile arrays (AV_PROFILE_UNKNOWN).
const profileUnknown = -99

// Profile is one entry of a codec's profile table.
type Profile struct {
	ID   int
	Name string
}

// CodecDescriptor describes a codec ID independently of any implementation.
type CodecDescriptor struct {
	ID       int
	Type     MediaType
	Name     string
	LongName string
	Props    uint32 // raw AV_CODEC_PROP_* bits

	IntraOnly bool
	Lossy     bool
	Lossless  bool
	Reorder   bool
	Fields    bool
	Bitmaps   bool
	TextSub   bool

	MimeTypes []string
	Profiles  []Profile
}

// avCodecDescriptor mirrors AVCodecDescriptor, unchanged from avcodec 58 to 62.
type avCodecDescriptor struct {
	id        int32
	typ       int32
	name      uintptr
	longName  uintptr
	props     int32
	mimeTypes uintptr
	profiles  uintptr
}

// avProfile mirrors AVProfile.
type avProfile struct {
	profile int32
	name    uintptr
}

var codecDescriptorOverlay = newOverlay("AVCodecDescriptor", ModuleCodec, supportedRanges[ModuleCodec],
	variant(58, 62, decodeCodecDescriptor),
)

func decodeCodecDescriptor(ptr uintptr) (CodecDescriptor, error) {
	raw := overlayAt[avCodecDescriptor](ptr)

	name, err := cString(raw.name)
	if err != nil {
		return CodecDescriptor{}, fmt.Errorf("name: %w", err)
	}
	longName, err := cString(raw.longName)
	if err != nil {
		return CodecDescriptor{}, fmt.Errorf("long_name: %w", err)
	}
	mimes, err := cStringArray(raw.mimeTypes)
	if err != nil {
		return CodecDescriptor{}, fmt.Errorf("mime_types: %w", err)
	}

	var profiles []Profile
	err = walkRecords(raw.profiles,
		func(p *avProfile) bool { return p.profile == profileUnknown || p.name == 0 },
		func(p *avProfile) error {
			s, err := cString(p.name)
			if err != nil {
				return err
			}
			profiles = append(profiles, Profile{ID: int(p.profile), Name: s})
			return nil
		})
	if err != nil {
		return CodecDescriptor{}, fmt.Errorf("profiles: %w", err)
	}

	props := uint32(raw.props)
	return CodecDescriptor{
		ID:        int(raw.id),
		Type:      MediaType(raw.typ),
		Name:      name,
		LongName:  longName,
		Props:     props,
		IntraOnly: props&CodecPropIntraOnly != 0,
		Lossy:     props&CodecPropLossy != 0,
		Lossless:  props&CodecPropLossless != 0,
		Reorder:   props&CodecPropReorder != 0,
		Fields:    props&CodecPropFields != 0,
		Bitmaps:   props&CodecPropBitmapSub != 0,
		TextSub:   props&CodecPropTextSub != 0,
		MimeTypes: mimes,
		Profiles:  profiles,
	}, nil
}

// CodecDescriptors lists every codec descriptor known to libavcodec.
func (r *Runtime) CodecDescriptors() ([]CodecDescriptor, error) {
	major := r.Major(ModuleCodec)
	var out []CodecDescriptor
	var prev uintptr
	for i := 0; i < maxArrayLen; i++ {
		prev = r.Codec.DescriptorNext(prev)
		if prev == 0 {
			return out, nil
		}
		d, err := codecDescriptorOverlay.Decode(prev, major)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return nil, fmt.Errorf("%w: codec descriptor list exceeds %d entries", ErrMalformedNativeData, maxArrayLen)
}

// CodecDescriptorByID returns the descriptor for an AVCodecID.
func (r *Runtime) CodecDescriptorByID(id int) (CodecDescriptor, error) {
	ptr := r.Codec.DescriptorGet(int32(id))
	if ptr == 0 {
		return CodecDescriptor{}, fmt.Errorf("codec id %d: %w", id, ErrNotFound)
	}
	return codecDescriptorOverlay.Decode(ptr, r.Major(ModuleCodec))
}

// CodecDescriptorByName returns the descriptor for a codec name such as "h264".
func (r *Runtime) CodecDescriptorByName(name string) (CodecDescriptor, error) {
	ptr := r.Codec.DescriptorGetByName(name)
	if ptr == 0 {
		return CodecDescriptor{}, fmt.Errorf("codec %q: %w", name, ErrNotFound)
	}
	return codecDescriptorOverlay.Decode(ptr, r.Major(ModuleCodec))
}

// CodecName returns the name of a codec ID, or "unknown_codec".
func (r *Runtime) CodecName(id int) string {
	return goString(r.Codec.GetName(int32(id)))
}

// ProfileName returns the name of a codec profile, or "".
func (r *Runtime) ProfileName(id, profile int) string {
	return goString(r.Codec.ProfileName(int32(id), int32(profile)))
}
