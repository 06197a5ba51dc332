// Package pointer drives the OS cursor. The click sequence is built for
// legacy desktop UIs that ignore fast synthetic clicks: move, press, dwell,
// jitter while held, release.
package pointer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/zkkken/heidi/reconcile"
	"github.com/zkkken/heidi/screen"
)

// Mode selects the click style.
type Mode string

const (
	// ModeTap is a plain press-release.
	ModeTap Mode = "TAP"
	// ModeHold presses, dwells with slight jitter, then releases. Some
	// EMR list rows only register a click that looks like a human one.
	ModeHold Mode = "HOLD"
)

// Device is the OS pointer boundary.
type Device interface {
	// MoveTo moves the cursor to a logical point over the given duration.
	MoveTo(p screen.Point, over time.Duration)
	// Toggle presses (down=true) or releases the left button.
	Toggle(down bool)
	// Position reports the current cursor position.
	Position() screen.Point
}

// Config tunes the click sequence.
type Config struct {
	// Dwell is how long the button stays pressed in HOLD mode.
	Dwell time.Duration
	// JitterPx is the amplitude of the held-down wiggle.
	JitterPx int
	// MoveDuration is how long the cursor travel takes.
	MoveDuration time.Duration
	// ConfirmTap retries once with a plain tap when verification fails.
	ConfirmTap bool
}

// DefaultConfig returns the production click tuning.
func DefaultConfig() Config {
	return Config{
		Dwell:        120 * time.Millisecond,
		JitterPx:     1,
		MoveDuration: 300 * time.Millisecond,
		ConfirmTap:   true,
	}
}

// Option customizes a single click.
type Option func(*clickOpts)

type clickOpts struct {
	verify func(ctx context.Context) bool
}

// WithVerify attaches a post-click check. When it reports false and
// ConfirmTap is enabled, the engine performs one confirmatory tap; the
// engine never assumes a click is idempotent beyond that.
func WithVerify(fn func(ctx context.Context) bool) Option {
	return func(o *clickOpts) { o.verify = fn }
}

// Engine performs clicks on resolved points.
type Engine struct {
	device Device
	cfg    Config
	logger *zap.Logger

	// sleep is swappable in tests
	sleep func(time.Duration)
}

// NewEngine creates a click engine over a pointer device.
func NewEngine(device Device, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Dwell <= 0 {
		cfg.Dwell = DefaultConfig().Dwell
	}
	return &Engine{
		device: device,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "pointer")),
		sleep:  time.Sleep,
	}
}

// Click performs one click at the resolved point. Blocks until the full
// sequence completes.
func (e *Engine) Click(ctx context.Context, pt reconcile.ResolvedPoint, mode Mode, opts ...Option) error {
	var o clickOpts
	for _, opt := range opts {
		opt(&o)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	e.logger.Info("clicking",
		zap.Int("x", pt.X),
		zap.Int("y", pt.Y),
		zap.String("mode", string(mode)),
		zap.String("trust", string(pt.Trust)))

	target := pt.Point()
	switch mode {
	case ModeHold:
		e.holdClick(target)
	default:
		e.tap(target)
	}

	if o.verify == nil {
		return nil
	}
	if o.verify(ctx) {
		return nil
	}
	if !e.cfg.ConfirmTap {
		e.logger.Warn("click produced no observable change", zap.Int("x", pt.X), zap.Int("y", pt.Y))
		return nil
	}

	e.logger.Info("click not confirmed, tapping once more", zap.Int("x", pt.X), zap.Int("y", pt.Y))
	e.tap(target)
	if !o.verify(ctx) {
		e.logger.Warn("confirmatory tap also unconfirmed", zap.Int("x", pt.X), zap.Int("y", pt.Y))
	}
	return nil
}

// tap is a plain press-release at the target.
func (e *Engine) tap(p screen.Point) {
	e.device.MoveTo(p, e.cfg.MoveDuration)
	e.device.Toggle(true)
	e.device.Toggle(false)
}

// holdClick is the robust sequence: press, dwell, wiggle, release.
func (e *Engine) holdClick(p screen.Point) {
	e.device.MoveTo(p, e.cfg.MoveDuration)
	e.device.Toggle(true)
	e.sleep(e.cfg.Dwell)

	if e.cfg.JitterPx > 0 {
		j := e.cfg.JitterPx
		e.device.MoveTo(screen.Point{X: p.X + j, Y: p.Y}, 0)
		e.device.MoveTo(screen.Point{X: p.X - j, Y: p.Y}, 0)
		e.device.MoveTo(p, 0)
	}

	e.device.Toggle(false)
}
