package screen

import (
	"fmt"
	"math"

	"github.com/zkkken/heidi/types"
)

// DefaultScaleTolerance is the accepted deviation of a capture density from
// the integer bands 1x, 2x, 3x.
const DefaultScaleTolerance = 0.05

// acceptedDensities are the pixel densities we know how to correct for.
// HiDPI panels report 2x or 3x; anything in between means the OS is doing
// fractional scaling we cannot invert reliably.
var acceptedDensities = []float64{1, 2, 3}

// ResolveScale returns the ratio of capture pixels to logical display points.
// Both axes must agree on the same density band within tolerance; any other
// ratio yields a SCALE_MISMATCH error and the caller must not click.
// Idempotent: same inputs always produce the same scale.
func ResolveScale(captured, display Size, tolerance float64) (float64, error) {
	if tolerance <= 0 {
		tolerance = DefaultScaleTolerance
	}
	if display.Width <= 0 || display.Height <= 0 {
		return 0, types.NewError(types.ErrScaleMismatch,
			fmt.Sprintf("invalid display size %dx%d", display.Width, display.Height))
	}
	if captured.Width <= 0 || captured.Height <= 0 {
		return 0, types.NewError(types.ErrScaleMismatch,
			fmt.Sprintf("invalid capture size %dx%d", captured.Width, captured.Height))
	}

	rx := float64(captured.Width) / float64(display.Width)
	ry := float64(captured.Height) / float64(display.Height)

	for _, d := range acceptedDensities {
		if math.Abs(rx-d) <= tolerance && math.Abs(ry-d) <= tolerance {
			return d, nil
		}
	}

	return 0, types.NewError(types.ErrScaleMismatch,
		fmt.Sprintf("capture %dx%d vs display %dx%d: density x=%.3f y=%.3f matches no accepted band",
			captured.Width, captured.Height, display.Width, display.Height, rx, ry))
}
