package avload

import (
	"fmt"
	"strconv"
)

// Module identifies one native FFmpeg library.
type Module uint8

// Modules in load order: avutil first since the others reference its types,
// swresample last.
const (
	ModuleUtil Module = iota
	ModuleFormat
	ModuleCodec
	ModuleResample
	moduleCount
)

var moduleNames = [moduleCount]string{
	ModuleUtil:     "avutil",
	ModuleFormat:   "avformat",
	ModuleCodec:    "avcodec",
	ModuleResample: "swresample",
}

// Modules returns every module in load order.
func Modules() []Module {
	return []Module{ModuleUtil, ModuleFormat, ModuleCodec, ModuleResample}
}

func (m Module) String() string {
	if m >= moduleCount {
		return "unknown"
	}
	return moduleNames[m]
}

// versionSymbol is the module's version-reporting function.
func (m Module) versionSymbol() string {
	return m.String() + "_version"
}

// VersionPart is a minor or micro component that may be left unset.
type VersionPart struct {
	Value int
	Set   bool
}

// Part returns a set component.
func Part(v int) VersionPart { return VersionPart{Value: v, Set: true} }

func (o VersionPart) matches(other VersionPart) bool {
	return !o.Set || !other.Set || o.Value == other.Value
}

func (o VersionPart) String() string {
	if !o.Set {
		return "x"
	}
	return strconv.Itoa(o.Value)
}

// Version is a library version. Minor and Micro may be unset, in which case
// they match any value.
type Version struct {
	Major int
	Minor VersionPart
	Micro VersionPart
}

// V builds a fully specified version.
func V(major, minor, micro int) Version {
	return Version{Major: major, Minor: Part(minor), Micro: Part(micro)}
}

// MajorOnly builds a version that matches any minor and micro.
func MajorOnly(major int) Version {
	return Version{Major: major}
}

// MajorMinor builds a version that matches any micro.
func MajorMinor(major, minor int) Version {
	return Version{Major: major, Minor: Part(minor)}
}

// DecodeVersion unpacks FFmpeg's AV_VERSION_INT encoding.
func DecodeVersion(v uint32) Version {
	return V(int(v>>16&0xFF), int(v>>8&0xFF), int(v&0xFF))
}

// Packed re-encodes the version as AV_VERSION_INT. Unset parts encode as 0.
func (v Version) Packed() uint32 {
	return uint32(v.Major&0xFF)<<16 | uint32(v.Minor.Value&0xFF)<<8 | uint32(v.Micro.Value&0xFF)
}

// Matches reports whether two versions are equal, treating unset minor or
// micro on either side as a wildcard.
func (v Version) Matches(other Version) bool {
	return v.Major == other.Major && v.Minor.matches(other.Minor) && v.Micro.matches(other.Micro)
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%s.%s", v.Major, v.Minor, v.Micro)
}

// LibraryVersions holds the detected version of each module.
type LibraryVersions struct {
	Util     Version
	Format   Version
	Codec    Version
	Resample Version
}

// Of returns the version of one module.
func (lv LibraryVersions) Of(m Module) Version {
	switch m {
	case ModuleUtil:
		return lv.Util
	case ModuleFormat:
		return lv.Format
	case ModuleCodec:
		return lv.Codec
	case ModuleResample:
		return lv.Resample
	}
	return Version{}
}

func (lv *LibraryVersions) set(m Module, v Version) {
	switch m {
	case ModuleUtil:
		lv.Util = v
	case ModuleFormat:
		lv.Format = v
	case ModuleCodec:
		lv.Codec = v
	case ModuleResample:
		lv.Resample = v
	}
}

func (lv LibraryVersions) String() string {
	return fmt.Sprintf("avutil %s, avformat %s, avcodec %s, swresample %s",
		lv.Util, lv.Format, lv.Codec, lv.Resample)
}

// VersionRange is an inclusive range of major versions.
type VersionRange struct {
	Min, Max int
}

// Contains reports whether major lies in the range.
func (r VersionRange) Contains(major int) bool {
	return major >= r.Min && major <= r.Max
}

func (r VersionRange) String() string {
	if r.Min == r.Max {
		return strconv.Itoa(r.Min)
	}
	return fmt.Sprintf("%d-%d", r.Min, r.Max)
}

// Supported major versions per module. These are also the version spaces the
// struct overlays of each module must cover.
var supportedRanges = [moduleCount]VersionRange{
	ModuleUtil:     {56, 60},
	ModuleFormat:   {58, 62},
	ModuleCodec:    {58, 62},
	ModuleResample: {3, 6},
}

// SupportedRange returns the supported major versions of a module.
func SupportedRange(m Module) VersionRange {
	if m >= moduleCount {
		return VersionRange{}
	}
	return supportedRanges[m]
}

// release is a known-compatible combination of module versions.
type release struct {
	Name   string
	Ranges [moduleCount]VersionRange
}

// Known-compatible combinations, one per FFmpeg release line. Minor and micro
// drift within a major is treated as compatible.
var releases = []release{
	{"4.x", [moduleCount]VersionRange{{56, 56}, {58, 58}, {58, 58}, {3, 3}}},
	{"5.x", [moduleCount]VersionRange{{57, 57}, {59, 59}, {59, 59}, {4, 4}}},
	{"6.x", [moduleCount]VersionRange{{58, 58}, {60, 60}, {60, 60}, {4, 4}}},
	{"7.x", [moduleCount]VersionRange{{59, 59}, {61, 61}, {61, 61}, {5, 5}}},
	{"8.x", [moduleCount]VersionRange{{60, 60}, {62, 62}, {62, 62}, {6, 6}}},
}

// ValidationResult is the outcome of ValidateCombination.
type ValidationResult struct {
	// Release names the matching FFmpeg release line, empty if none matched.
	Release string
	// Err is a *VersionError when a module is outside its supported range
	// (blocking), or ErrVersionCombinationUnknown when every module is
	// supported but the combination is untested (non-blocking).
	Err error
}

// Blocking reports whether loading must be aborted.
func (r ValidationResult) Blocking() bool {
	return r.Err != nil && r.Err != ErrVersionCombinationUnknown
}

// ValidateCombination checks detected versions against the supported ranges
// and the table of known-compatible combinations.
func ValidateCombination(lv LibraryVersions) ValidationResult {
	for _, m := range Modules() {
		if v := lv.Of(m); !supportedRanges[m].Contains(v.Major) {
			return ValidationResult{Err: &VersionError{Module: m, Version: v}}
		}
	}
	for _, rel := range releases {
		ok := true
		for _, m := range Modules() {
			if !rel.Ranges[m].Contains(lv.Of(m).Major) {
				ok = false
				break
			}
		}
		if ok {
			return ValidationResult{Release: rel.Name}
		}
	}
	return ValidationResult{Err: ErrVersionCombinationUnknown}
}
