package avload

import (
	"errors"
	"fmt"
	"runtime"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAVError_Is(t *testing.T) {
	err := fmt.Errorf("read: %w", &AVError{Code: averrorEOF, Op: "av_read_frame", Msg: "End of file"})
	assert.ErrorIs(t, err, ErrEOF)
	assert.NotErrorIs(t, err, ErrAgain)
	assert.NotErrorIs(t, err, ErrNotSupported)

	assert.Equal(t, "av_read_frame: averror -541478725: End of file", errors.Unwrap(err).Error())
	assert.Equal(t, fmt.Sprintf("averror %d: resource temporarily unavailable", -int(syscall.EAGAIN)), ErrAgain.Error())
}

func TestErrAgain_PlatformErrno(t *testing.T) {
	assert.Equal(t, -int(syscall.EAGAIN), ErrAgain.Code)
	switch runtime.GOOS {
	case "linux":
		assert.Equal(t, -11, ErrAgain.Code)
	case "darwin":
		assert.Equal(t, -35, ErrAgain.Code)
	}

	// A native return code is matched whatever operation produced it.
	err := fmt.Errorf("decode: %w", &AVError{Code: -int(syscall.EAGAIN), Op: "avcodec_receive_frame"})
	assert.ErrorIs(t, err, ErrAgain)
}

func TestTypedErrors_Unwrap(t *testing.T) {
	assert.ErrorIs(t, &LibraryError{Module: ModuleCodec, Tried: 3}, ErrLibraryNotFound)
	assert.ErrorIs(t, &SymbolError{Module: ModuleUtil, Symbols: []string{"av_malloc"}}, ErrMandatorySymbolMissing)
	assert.ErrorIs(t, &VersionError{Module: ModuleFormat, Version: Version{Major: 57}}, ErrUnsupportedVersion)
	assert.ErrorIs(t, &DecodeError{Entity: "AVFrame", Major: 61, Err: ErrUnsupportedVersion}, ErrUnsupportedVersion)

	assert.Equal(t, "avcodec: no candidate opened (3 tried)", (&LibraryError{Module: ModuleCodec, Tried: 3}).Error())
	assert.Equal(t, "avcodec: no candidate opened (1 tried, last: not found)",
		(&LibraryError{Module: ModuleCodec, Tried: 1, Last: "not found"}).Error())
	assert.Equal(t, "avutil: mandatory symbols missing: av_free, av_malloc",
		(&SymbolError{Module: ModuleUtil, Symbols: []string{"av_free", "av_malloc"}}).Error())
}
