// Package reconcile arbitrates between a vision estimate and a calibrated
// anchor. The vision model sees the real screen but drifts; the anchor is
// exact but goes stale when the layout shifts. Agreement decides which one
// to believe.
package reconcile

import (
	"fmt"
	"math"

	"github.com/zkkken/heidi/anchor"
	"github.com/zkkken/heidi/locator"
	"github.com/zkkken/heidi/screen"
	"github.com/zkkken/heidi/types"
)

// Trust records which source produced a resolved point.
type Trust string

const (
	// TrustAI means the vision estimate was used as-is.
	TrustAI Trust = "AI"
	// TrustAnchor means the calibrated anchor coordinates were used.
	TrustAnchor Trust = "ANCHOR"
	// TrustBlended means both sources existed and disagreed moderately;
	// the anchor coordinates win but the drift is surfaced.
	TrustBlended Trust = "BLENDED"
)

// Thresholds are the deviation bands in logical pixels.
type Thresholds struct {
	// DeviationPx: at or below this, the estimate is trusted outright.
	DeviationPx float64
	// SafePx: above this, the estimate is considered unreliable and the
	// anchor is used alone.
	SafePx float64
}

// DefaultThresholds returns the calibrated production bands.
func DefaultThresholds() Thresholds {
	return Thresholds{DeviationPx: 50, SafePx: 150}
}

// ResolvedPoint is a final clickable position in logical display points.
// Transient: consumed by exactly one click and never cached across steps.
type ResolvedPoint struct {
	X           int
	Y           int
	Trust       Trust
	DeviationPx float64
}

// Point returns the resolved position as a screen point.
func (r ResolvedPoint) Point() screen.Point {
	return screen.Point{X: r.X, Y: r.Y}
}

// Reconcile merges an optional vision estimate with an optional anchor into
// one resolved point. est is ignored when nil or when est.Found is false.
//
//   - estimate only            -> AI
//   - anchor only              -> ANCHOR
//   - both, deviation <= DeviationPx -> AI
//   - both, deviation <= SafePx      -> BLENDED (anchor coordinates)
//   - both, deviation >  SafePx      -> ANCHOR
//   - neither                  -> NO_LOCATION_AVAILABLE
//
// Pure: no I/O, no clock, no logging. Deterministic for identical inputs.
func Reconcile(est *locator.FractionalEstimate, anc *anchor.AnchorPoint, display screen.Size, th Thresholds) (ResolvedPoint, error) {
	if th.DeviationPx <= 0 && th.SafePx <= 0 {
		th = DefaultThresholds()
	}

	hasEstimate := est != nil && est.Found
	hasAnchor := anc != nil

	if !hasEstimate && !hasAnchor {
		return ResolvedPoint{}, types.NewError(types.ErrNoLocationAvailable,
			"no vision estimate and no anchor for this element")
	}

	if hasEstimate && !hasAnchor {
		p := toLogical(est, display)
		return boundsChecked(ResolvedPoint{X: p.X, Y: p.Y, Trust: TrustAI}, display)
	}

	if !hasEstimate {
		return boundsChecked(ResolvedPoint{X: anc.X, Y: anc.Y, Trust: TrustAnchor}, display)
	}

	aiPt := toLogical(est, display)
	dx := float64(aiPt.X - anc.X)
	dy := float64(aiPt.Y - anc.Y)
	deviation := math.Hypot(dx, dy)

	switch {
	case deviation <= th.DeviationPx:
		return boundsChecked(ResolvedPoint{X: aiPt.X, Y: aiPt.Y, Trust: TrustAI, DeviationPx: deviation}, display)
	case deviation <= th.SafePx:
		return boundsChecked(ResolvedPoint{X: anc.X, Y: anc.Y, Trust: TrustBlended, DeviationPx: deviation}, display)
	default:
		return boundsChecked(ResolvedPoint{X: anc.X, Y: anc.Y, Trust: TrustAnchor, DeviationPx: deviation}, display)
	}
}

// toLogical converts a fractional estimate to logical pixels on the active
// display. Fractions are display-independent, so no scale factor applies
// here; scale correction happened when the screenshot was interpreted.
func toLogical(est *locator.FractionalEstimate, display screen.Size) screen.Point {
	return screen.Point{
		X: int(math.Round(est.XFrac * float64(display.Width))),
		Y: int(math.Round(est.YFrac * float64(display.Height))),
	}
}

func boundsChecked(r ResolvedPoint, display screen.Size) (ResolvedPoint, error) {
	if !display.Contains(r.Point()) {
		return ResolvedPoint{}, types.NewError(types.ErrOutOfBounds,
			fmt.Sprintf("resolved point (%d,%d) outside display %dx%d",
				r.X, r.Y, display.Width, display.Height))
	}
	return r, nil
}
