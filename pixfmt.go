package avload

import "fmt"

// AV_PIX_FMT_FLAG_* bits.
const (
	PixFmtFlagBE        = 1 << 0
	PixFmtFlagPal       = 1 << 1
	PixFmtFlagBitstream = 1 << 2
	PixFmtFlagHWAccel   = 1 << 3
	PixFmtFlagPlanar    = 1 << 4
	PixFmtFlagRGB       = 1 << 5
	PixFmtFlagPseudoPal = 1 << 6
	PixFmtFlagAlpha     = 1 << 7
	PixFmtFlagBayer     = 1 << 8
	PixFmtFlagFloat     = 1 << 9
	PixFmtFlagXYZ       = 1 << 10
)

// ComponentDescriptor locates one color component in memory.
type ComponentDescriptor struct {
	Plane  int
	Step   int // bytes (or bits for bitstream formats) between pixels
	Offset int
	Shift  int
	Depth  int
}

// PixelFormatDescriptor describes the memory layout of a pixel format.
type PixelFormatDescriptor struct {
	ID          int
	Name        string
	Alias       string
	Components  []ComponentDescriptor
	Log2ChromaW int
	Log2ChromaH int
	Flags       uint64
}

// IsPlanar reports whether components live in separate planes.
func (d PixelFormatDescriptor) IsPlanar() bool { return d.Flags&PixFmtFlagPlanar != 0 }

// HasAlpha reports whether the format carries an alpha channel.
func (d PixelFormatDescriptor) HasAlpha() bool { return d.Flags&PixFmtFlagAlpha != 0 }

// IsRGB reports whether the format is RGB-like rather than YUV.
func (d PixelFormatDescriptor) IsRGB() bool { return d.Flags&PixFmtFlagRGB != 0 }

// IsHWAccel reports whether the format is an opaque hardware surface.
func (d PixelFormatDescriptor) IsHWAccel() bool { return d.Flags&PixFmtFlagHWAccel != 0 }

// IsBigEndian reports whether multi-byte components are big endian.
func (d PixelFormatDescriptor) IsBigEndian() bool { return d.Flags&PixFmtFlagBE != 0 }

// IsFloat reports whether components are IEEE floats.
func (d PixelFormatDescriptor) IsFloat() bool { return d.Flags&PixFmtFlagFloat != 0 }

// Planes returns the number of distinct planes referenced by the components.
func (d PixelFormatDescriptor) Planes() int {
	n := 0
	for _, c := range d.Components {
		if c.Plane+1 > n {
			n = c.Plane + 1
		}
	}
	return n
}

// BitsPerPixel returns the average bits per pixel, accounting for chroma
// subsampling. Padding bits are not counted.
func (d PixelFormatDescriptor) BitsPerPixel() int {
	log2Pixels := d.Log2ChromaW + d.Log2ChromaH
	bits := 0
	for i, c := range d.Components {
		shift := log2Pixels
		if i == 1 || i == 2 {
			shift = 0
		}
		bits += c.Depth << shift
	}
	return bits >> log2Pixels
}

// ChromaSize returns the chroma plane size for a luma size of w x h.
func (d PixelFormatDescriptor) ChromaSize(w, h int) (int, int) {
	cw := -((-w) >> d.Log2ChromaW)
	ch := -((-h) >> d.Log2ChromaH)
	return cw, ch
}

// avComponentDescriptor56 still carries the minus1/plus1 fields dropped in
// avutil 57.
type avComponentDescriptor56 struct {
	plane       int32
	step        int32
	offset      int32
	shift       int32
	depth       int32
	stepMinus1  int32
	depthMinus1 int32
	offsetPlus1 int32
}

type avComponentDescriptor57 struct {
	plane  int32
	step   int32
	offset int32
	shift  int32
	depth  int32
}

type avPixFmtDescriptor[C any] struct {
	name         uintptr
	nbComponents uint8
	log2ChromaW  uint8
	log2ChromaH  uint8
	flags        uint64
	comp         [4]C
	alias        uintptr
}

var pixFmtOverlay = newOverlay("AVPixFmtDescriptor", ModuleUtil, supportedRanges[ModuleUtil],
	variant(56, 56, decodePixFmt(func(c *avComponentDescriptor56) ComponentDescriptor {
		return ComponentDescriptor{Plane: int(c.plane), Step: int(c.step), Offset: int(c.offset), Shift: int(c.shift), Depth: int(c.depth)}
	})),
	variant(57, 60, decodePixFmt(func(c *avComponentDescriptor57) ComponentDescriptor {
		return ComponentDescriptor{Plane: int(c.plane), Step: int(c.step), Offset: int(c.offset), Shift: int(c.shift), Depth: int(c.depth)}
	})),
)

func decodePixFmt[C any](comp func(*C) ComponentDescriptor) func(uintptr) (PixelFormatDescriptor, error) {
	return func(ptr uintptr) (PixelFormatDescriptor, error) {
		raw := overlayAt[avPixFmtDescriptor[C]](ptr)
		if raw.nbComponents > 4 {
			return PixelFormatDescriptor{}, fmt.Errorf("%w: %d components", ErrMalformedNativeData, raw.nbComponents)
		}
		name, err := cString(raw.name)
		if err != nil {
			return PixelFormatDescriptor{}, fmt.Errorf("name: %w", err)
		}
		alias, err := cString(raw.alias)
		if err != nil {
			return PixelFormatDescriptor{}, fmt.Errorf("alias: %w", err)
		}
		d := PixelFormatDescriptor{
			ID:          -1,
			Name:        name,
			Alias:       alias,
			Log2ChromaW: int(raw.log2ChromaW),
			Log2ChromaH: int(raw.log2ChromaH),
			Flags:       raw.flags,
			Components:  make([]ComponentDescriptor, raw.nbComponents),
		}
		for i := range d.Components {
			d.Components[i] = comp(&raw.comp[i])
		}
		return d, nil
	}
}

// PixelFormats lists every pixel format descriptor in ID order.
func (r *Runtime) PixelFormats() ([]PixelFormatDescriptor, error) {
	major := r.Major(ModuleUtil)
	var out []PixelFormatDescriptor
	var prev uintptr
	for i := 0; i < maxArrayLen; i++ {
		prev = r.Util.PixFmtDescNext(prev)
		if prev == 0 {
			return out, nil
		}
		d, err := pixFmtOverlay.Decode(prev, major)
		if err != nil {
			return nil, err
		}
		d.ID = int(r.Util.PixFmtDescGetID(prev))
		out = append(out, d)
	}
	return nil, fmt.Errorf("%w: pixel format list exceeds %d entries", ErrMalformedNativeData, maxArrayLen)
}

// PixelFormat returns the descriptor of an AVPixelFormat value.
func (r *Runtime) PixelFormat(id int) (PixelFormatDescriptor, error) {
	ptr := r.Util.PixFmtDescGet(int32(id))
	if ptr == 0 {
		return PixelFormatDescriptor{}, fmt.Errorf("pixel format %d: %w", id, ErrNotFound)
	}
	d, err := pixFmtOverlay.Decode(ptr, r.Major(ModuleUtil))
	if err != nil {
		return PixelFormatDescriptor{}, err
	}
	d.ID = id
	return d, nil
}

// PixelFormatByName finds a pixel format by name or alias.
func (r *Runtime) PixelFormatByName(name string) (PixelFormatDescriptor, error) {
	all, err := r.PixelFormats()
	if err != nil {
		return PixelFormatDescriptor{}, err
	}
	for _, d := range all {
		if d.Name == name || (d.Alias != "" && d.Alias == name) {
			return d, nil
		}
	}
	return PixelFormatDescriptor{}, fmt.Errorf("pixel format %q: %w", name, ErrNotFound)
}
