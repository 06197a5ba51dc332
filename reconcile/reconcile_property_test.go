// Property-based tests for the deviation arbitration.
package reconcile

import (
	"math"
	"testing"

	"pgregory.net/rapid"

	"github.com/zkkken/heidi/anchor"
	"github.com/zkkken/heidi/locator"
	"github.com/zkkken/heidi/screen"
)

// drawDisplay produces a plausible logical display size.
func drawDisplay(t *rapid.T) screen.Size {
	return screen.Size{
		Width:  rapid.IntRange(640, 3840).Draw(t, "width"),
		Height: rapid.IntRange(480, 2160).Draw(t, "height"),
	}
}

// drawEstimate produces a found estimate strictly inside the image so the
// rounded point stays in bounds.
func drawEstimate(t *rapid.T) *locator.FractionalEstimate {
	return &locator.FractionalEstimate{
		XFrac: rapid.Float64Range(0.01, 0.99).Draw(t, "x_frac"),
		YFrac: rapid.Float64Range(0.01, 0.99).Draw(t, "y_frac"),
		Found: true,
	}
}

func TestReconcile_TrustMatchesDeviationBand(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		display := drawDisplay(t)
		est := drawEstimate(t)
		anc := &anchor.AnchorPoint{
			Name:           "p",
			X:              rapid.IntRange(0, display.Width-1).Draw(t, "anchor_x"),
			Y:              rapid.IntRange(0, display.Height-1).Draw(t, "anchor_y"),
			CapturedWidth:  display.Width,
			CapturedHeight: display.Height,
		}
		th := DefaultThresholds()

		got, err := Reconcile(est, anc, display, th)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		aiX := int(math.Round(est.XFrac * float64(display.Width)))
		aiY := int(math.Round(est.YFrac * float64(display.Height)))
		deviation := math.Hypot(float64(aiX-anc.X), float64(aiY-anc.Y))

		switch {
		case deviation <= th.DeviationPx:
			if got.Trust != TrustAI || got.X != aiX || got.Y != aiY {
				t.Fatalf("deviation %.2f within trust band but got %s at (%d,%d), want AI at (%d,%d)",
					deviation, got.Trust, got.X, got.Y, aiX, aiY)
			}
		case deviation <= th.SafePx:
			if got.Trust != TrustBlended || got.X != anc.X || got.Y != anc.Y {
				t.Fatalf("deviation %.2f in blended band but got %s at (%d,%d), want BLENDED at anchor (%d,%d)",
					deviation, got.Trust, got.X, got.Y, anc.X, anc.Y)
			}
		default:
			if got.Trust != TrustAnchor || got.X != anc.X || got.Y != anc.Y {
				t.Fatalf("deviation %.2f beyond safe band but got %s at (%d,%d), want ANCHOR at (%d,%d)",
					deviation, got.Trust, got.X, got.Y, anc.X, anc.Y)
			}
		}
	})
}

func TestReconcile_ResultAlwaysInBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		display := drawDisplay(t)
		est := drawEstimate(t)
		anc := &anchor.AnchorPoint{
			Name:           "p",
			X:              rapid.IntRange(0, display.Width-1).Draw(t, "anchor_x"),
			Y:              rapid.IntRange(0, display.Height-1).Draw(t, "anchor_y"),
			CapturedWidth:  display.Width,
			CapturedHeight: display.Height,
		}

		got, err := Reconcile(est, anc, display, DefaultThresholds())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !display.Contains(got.Point()) {
			t.Fatalf("resolved point (%d,%d) escaped display %dx%d", got.X, got.Y, display.Width, display.Height)
		}
	})
}

func TestReconcile_Deterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		display := drawDisplay(t)
		est := drawEstimate(t)

		a, err1 := Reconcile(est, nil, display, DefaultThresholds())
		b, err2 := Reconcile(est, nil, display, DefaultThresholds())
		if (err1 == nil) != (err2 == nil) || a != b {
			t.Fatalf("same inputs produced different results: %+v vs %+v", a, b)
		}
	})
}
