package avload

import (
	"fmt"
	"unsafe"
)

// Bounds on walks over native memory. A string or array that runs past them
// is treated as malformed rather than read indefinitely.
const (
	maxCStringLen = 4096
	maxArrayLen   = 4096
)

// cString copies a NUL-terminated C string. A null pointer yields "".
func cString(ptr uintptr) (string, error) {
	if ptr == 0 {
		return "", nil
	}
	for n := 0; n < maxCStringLen; n++ {
		if *(*byte)(unsafe.Pointer(ptr + uintptr(n))) == 0 {
			if n == 0 {
				return "", nil
			}
			return string(unsafe.Slice((*byte)(unsafe.Pointer(ptr)), n)), nil
		}
	}
	return "", fmt.Errorf("%w: string exceeds %d bytes", ErrMalformedNativeData, maxCStringLen)
}

// goString is cString for call sites that only log or display the text;
// an unterminated string becomes "".
func goString(ptr uintptr) string {
	s, _ := cString(ptr)
	return s
}

// fixedString copies a char[N] field up to its first NUL.
func fixedString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// cStringArray copies a NULL-terminated array of C strings, excluding the
// terminator.
func cStringArray(ptr uintptr) ([]string, error) {
	if ptr == 0 {
		return nil, nil
	}
	var out []string
	for i := 0; i < maxArrayLen; i++ {
		p := *(*uintptr)(unsafe.Pointer(ptr + uintptr(i)*unsafe.Sizeof(uintptr(0))))
		if p == 0 {
			return out, nil
		}
		s, err := cString(p)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return nil, fmt.Errorf("%w: string array exceeds %d entries", ErrMalformedNativeData, maxArrayLen)
}

// walkRecords visits a contiguous array of T starting at ptr until sentinel
// reports true for an element. The sentinel element is not visited.
func walkRecords[T any](ptr uintptr, sentinel func(*T) bool, visit func(*T) error) error {
	if ptr == 0 {
		return nil
	}
	size := unsafe.Sizeof(*new(T))
	for i := 0; i < maxArrayLen; i++ {
		rec := (*T)(unsafe.Pointer(ptr + uintptr(i)*size))
		if sentinel(rec) {
			return nil
		}
		if err := visit(rec); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: record array exceeds %d entries", ErrMalformedNativeData, maxArrayLen)
}

// pointerAt reads the i-th pointer of a native pointer array.
func pointerAt(array uintptr, i int) uintptr {
	return *(*uintptr)(unsafe.Pointer(array + uintptr(i)*unsafe.Sizeof(uintptr(0))))
}

// overlayAt reinterprets ptr as a *T.
func overlayAt[T any](ptr uintptr) *T {
	return (*T)(unsafe.Pointer(ptr))
}

// bufPtr returns the address of a non-empty Go buffer passed to C. The
// caller keeps b reachable until the call returns.
func bufPtr(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}

// copyBytes copies n bytes at ptr. A null pointer or zero length yields nil.
func copyBytes(ptr uintptr, n, limit int) ([]byte, error) {
	if ptr == 0 || n == 0 {
		return nil, nil
	}
	if n < 0 || n > limit {
		return nil, fmt.Errorf("%w: length %d", ErrMalformedNativeData, n)
	}
	out := make([]byte, n)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(ptr)), n))
	return out, nil
}
