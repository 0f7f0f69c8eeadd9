package avload

import (
	"fmt"
	"sort"
)

// overlayVariant decodes one byte layout, valid for an inclusive range of
// major versions.
type overlayVariant[T any] struct {
	Range  VersionRange
	decode func(ptr uintptr) (T, error)
}

// variant is a helper for declaring overlay variants.
func variant[T any](min, max int, decode func(ptr uintptr) (T, error)) overlayVariant[T] {
	return overlayVariant[T]{Range: VersionRange{Min: min, Max: max}, decode: decode}
}

// Overlay maps the major versions of one module to the byte layout of a
// native struct. The variant ranges partition the overlay's version space
// exactly; a version outside it is reported, never approximated.
type Overlay[T any] struct {
	entity   string
	module   Module
	space    VersionRange
	variants []overlayVariant[T]
}

// newOverlay builds an overlay. It panics if the variants leave a gap in,
// overlap within, or extend past space, since that is a table error.
func newOverlay[T any](entity string, module Module, space VersionRange, variants ...overlayVariant[T]) *Overlay[T] {
	if err := checkPartition(space, variants); err != nil {
		panic(fmt.Sprintf("avload: overlay %s: %v", entity, err))
	}
	sorted := make([]overlayVariant[T], len(variants))
	copy(sorted, variants)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Range.Min < sorted[j].Range.Min })
	return &Overlay[T]{entity: entity, module: module, space: space, variants: sorted}
}

func checkPartition[T any](space VersionRange, variants []overlayVariant[T]) error {
	if len(variants) == 0 {
		return fmt.Errorf("no variants")
	}
	ranges := make([]VersionRange, len(variants))
	for i, v := range variants {
		if v.Range.Min > v.Range.Max {
			return fmt.Errorf("empty range %s", v.Range)
		}
		if v.decode == nil {
			return fmt.Errorf("range %s has no decoder", v.Range)
		}
		ranges[i] = v.Range
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Min < ranges[j].Min })

	if ranges[0].Min != space.Min {
		return fmt.Errorf("gap: %d not covered", space.Min)
	}
	for i := 1; i < len(ranges); i++ {
		prev, cur := ranges[i-1], ranges[i]
		if cur.Min <= prev.Max {
			return fmt.Errorf("ranges %s and %s overlap", prev, cur)
		}
		if cur.Min != prev.Max+1 {
			return fmt.Errorf("gap between %s and %s", prev, cur)
		}
	}
	if last := ranges[len(ranges)-1]; last.Max != space.Max {
		return fmt.Errorf("range %s does not end at %d", last, space.Max)
	}
	return nil
}

// Entity is the name of the decoded native struct.
func (o *Overlay[T]) Entity() string { return o.entity }

// Module is the library whose major version selects the layout.
func (o *Overlay[T]) Module() Module { return o.module }

// Space is the range of majors the overlay covers.
func (o *Overlay[T]) Space() VersionRange { return o.space }

// Ranges returns the variant ranges in ascending order.
func (o *Overlay[T]) Ranges() []VersionRange {
	out := make([]VersionRange, len(o.variants))
	for i, v := range o.variants {
		out[i] = v.Range
	}
	return out
}

// Supports reports whether a layout exists for major.
func (o *Overlay[T]) Supports(major int) bool {
	_, ok := o.lookup(major)
	return ok
}

func (o *Overlay[T]) lookup(major int) (overlayVariant[T], bool) {
	for _, v := range o.variants {
		if v.Range.Contains(major) {
			return v, true
		}
	}
	return overlayVariant[T]{}, false
}

// Decode copies the record at ptr into an owned value using the layout for
// major. The pointer is only read during the call.
func (o *Overlay[T]) Decode(ptr uintptr, major int) (T, error) {
	var zero T
	v, ok := o.lookup(major)
	if !ok {
		return zero, &DecodeError{Entity: o.entity, Major: major, Err: ErrUnsupportedVersion}
	}
	if ptr == 0 {
		return zero, &DecodeError{Entity: o.entity, Major: major, Err: ErrNullRecord}
	}
	val, err := v.decode(ptr)
	if err != nil {
		return zero, &DecodeError{Entity: o.entity, Major: major, Err: err}
	}
	return val, nil
}
