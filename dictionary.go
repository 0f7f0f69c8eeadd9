package avload

import (
	"fmt"
	"runtime"
	"sort"
	"unsafe"
)

const avDictIgnoreSuffix = 2 // AV_DICT_IGNORE_SUFFIX

// DictionaryEntry is one key/value pair of an AVDictionary.
type DictionaryEntry struct {
	Key   string
	Value string
}

// Dictionary is an owned copy of an AVDictionary, in native order.
type Dictionary []DictionaryEntry

// Get returns the first value stored under key.
func (d Dictionary) Get(key string) (string, bool) {
	for _, e := range d {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Map returns the entries as a map. Later duplicates win.
func (d Dictionary) Map() map[string]string {
	m := make(map[string]string, len(d))
	for _, e := range d {
		m[e.Key] = e.Value
	}
	return m
}

// avDictionaryEntry mirrors AVDictionaryEntry.
type avDictionaryEntry struct {
	key   uintptr
	value uintptr
}

var dictEntryOverlay = newOverlay("AVDictionaryEntry", ModuleUtil, supportedRanges[ModuleUtil],
	variant(56, 60, decodeDictEntry),
)

func decodeDictEntry(ptr uintptr) (DictionaryEntry, error) {
	raw := overlayAt[avDictionaryEntry](ptr)
	key, err := cString(raw.key)
	if err != nil {
		return DictionaryEntry{}, fmt.Errorf("key: %w", err)
	}
	value, err := cString(raw.value)
	if err != nil {
		return DictionaryEntry{}, fmt.Errorf("value: %w", err)
	}
	return DictionaryEntry{Key: key, Value: value}, nil
}

// dictionary copies the AVDictionary at m. A null dictionary is empty.
func (r *Runtime) dictionary(m uintptr) (Dictionary, error) {
	if m == 0 {
		return nil, nil
	}
	next := func(prev uintptr) uintptr {
		return r.Util.DictGet(m, "", prev, avDictIgnoreSuffix)
	}
	if r.caps.Has(CapDictIterate) {
		next = func(prev uintptr) uintptr { return r.Util.DictIterate(m, prev) }
	}

	count := int(r.Util.DictCount(m))
	if count < 0 || count > maxArrayLen {
		return nil, fmt.Errorf("%w: dictionary count %d", ErrMalformedNativeData, count)
	}
	if count == 0 {
		return nil, nil
	}

	major := r.Major(ModuleUtil)
	out := make(Dictionary, 0, count)
	var prev uintptr
	for i := 0; i < maxArrayLen; i++ {
		prev = next(prev)
		if prev == 0 {
			return out, nil
		}
		e, err := dictEntryOverlay.Decode(prev, major)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return nil, fmt.Errorf("%w: dictionary exceeds %d entries", ErrMalformedNativeData, maxArrayLen)
}

// nativeDict is an AVDictionary built from Go options and owned by the
// caller until free.
type nativeDict struct {
	r   *Runtime
	ptr *uintptr // AVDictionary**
}

func (r *Runtime) newNativeDict(opts map[string]string) (*nativeDict, error) {
	d := &nativeDict{r: r, ptr: new(uintptr)}
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if ret := r.Util.DictSet(d.addr(), k, opts[k], 0); ret < 0 {
			d.free()
			return nil, r.averror("av_dict_set "+k, ret)
		}
	}
	return d, nil
}

// addr is the AVDictionary** to pass to native calls.
func (d *nativeDict) addr() uintptr {
	if d == nil {
		return 0
	}
	return uintptr(unsafe.Pointer(d.ptr))
}

// leftover returns the keys the native call did not consume.
func (d *nativeDict) leftover() []string {
	if d == nil || *d.ptr == 0 {
		return nil
	}
	entries, err := d.r.dictionary(*d.ptr)
	if err != nil {
		return nil
	}
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys
}

func (d *nativeDict) free() {
	if d == nil {
		return
	}
	if *d.ptr != 0 {
		d.r.Util.DictFree(d.addr())
	}
	runtime.KeepAlive(d.ptr)
}
