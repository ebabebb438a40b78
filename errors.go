package hwc

import (
	"errors"
	"fmt"

	"github.com/gogpu/hwc/overlay"
)

// Sentinel errors for the hwc package.
var (
	// ErrFallback is wrapped by every Prepare error: the display must be
	// composed entirely by the GPU/software path this frame.
	ErrFallback = errors.New("hwc: fall back to framebuffer composition")

	// ErrDisabled is returned when overlay composition is disabled.
	ErrDisabled = errors.New("hwc: overlay composition disabled")

	// ErrInvalidList is returned for a nil layer list or a layer without a buffer.
	ErrInvalidList = errors.New("hwc: invalid layer list")

	// ErrNoStrategy is returned when no composition strategy fits the frame.
	ErrNoStrategy = errors.New("hwc: no composition strategy fits")

	// ErrNoPipes is returned when a pipe or rotator cannot be acquired.
	ErrNoPipes = errors.New("hwc: no overlay pipe available")

	// ErrNotPrepared is returned by Draw when the frame was not programmed.
	ErrNotPrepared = errors.New("hwc: frame not prepared")

	// ErrInvalidConfig is returned by NewComposer for an unusable configuration.
	ErrInvalidConfig = errors.New("hwc: invalid configuration")

	// ErrExternalConfiguring is returned while an external display is being
	// connected.
	ErrExternalConfiguring = errors.New("hwc: external display configuring")

	// ErrClosed is returned by Prepare after Close.
	ErrClosed = errors.New("hwc: composer closed")
)

// PipeError reports a driver failure on a specific pipe.
type PipeError struct {
	Op    string // "configure", "commit", "queue", "rotate"
	Layer int    // app layer index, -1 for the base or framebuffer pipe
	Pipe  overlay.Pipe
	Err   error
}

func (e *PipeError) Error() string {
	return fmt.Sprintf("hwc: %s pipe %d (layer %d): %v", e.Op, e.Pipe, e.Layer, e.Err)
}

func (e *PipeError) Unwrap() error { return e.Err }

// fallback wraps cause so that errors.Is(err, ErrFallback) holds.
func fallback(cause error) error {
	return fmt.Errorf("%w: %w", ErrFallback, cause)
}
