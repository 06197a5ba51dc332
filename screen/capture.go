package screen

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/go-vgo/robotgo"
	"go.uber.org/zap"

	"github.com/zkkken/heidi/types"
)

// Capturer is the screen-capture boundary. It returns a PNG screenshot of
// the primary display together with the pixel size of the captured image;
// the logical display size comes from DisplaySize so callers can resolve
// the capture density.
type Capturer interface {
	Capture(ctx context.Context) (png []byte, captured Size, err error)
	DisplaySize() (Size, error)
}

// DesktopCapturer captures the primary display through the OS.
type DesktopCapturer struct {
	logger *zap.Logger

	// override, when non-zero, replaces the probed logical size. Set from
	// config when the OS reports pixels instead of points.
	override Size
}

// NewDesktopCapturer creates a capturer for the primary display. A non-zero
// override pins the logical display size instead of probing it.
func NewDesktopCapturer(logger *zap.Logger, override Size) *DesktopCapturer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DesktopCapturer{
		logger:   logger.With(zap.String("component", "screen")),
		override: override,
	}
}

// Capture grabs a full-screen PNG. The returned size is in capture pixels,
// which on HiDPI panels differs from the logical size.
func (c *DesktopCapturer) Capture(ctx context.Context) ([]byte, Size, error) {
	if err := ctx.Err(); err != nil {
		return nil, Size{}, err
	}

	img := robotgo.CaptureImg()
	if img == nil {
		return nil, Size{}, fmt.Errorf("screen capture returned no image")
	}

	bounds := img.Bounds()
	captured := Size{Width: bounds.Dx(), Height: bounds.Dy()}

	data, err := encodePNG(img)
	if err != nil {
		return nil, Size{}, fmt.Errorf("failed to encode screenshot: %w", err)
	}

	c.logger.Debug("screen captured",
		zap.Int("width", captured.Width),
		zap.Int("height", captured.Height),
		zap.Int("bytes", len(data)))

	return data, captured, nil
}

// DisplaySize returns the logical size of the primary display.
func (c *DesktopCapturer) DisplaySize() (Size, error) {
	if !c.override.IsZero() {
		return c.override, nil
	}
	w, h := robotgo.GetScreenSize()
	if w <= 0 || h <= 0 {
		return Size{}, types.NewError(types.ErrScaleMismatch, "could not determine logical display size")
	}
	return Size{Width: w, Height: h}, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
