package pointer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkkken/heidi/reconcile"
	"github.com/zkkken/heidi/screen"
)

// mockDevice records every pointer operation in order.
type mockDevice struct {
	ops []string
	pos screen.Point
}

func (m *mockDevice) MoveTo(p screen.Point, over time.Duration) {
	m.pos = p
	m.ops = append(m.ops, fmt.Sprintf("move(%d,%d)", p.X, p.Y))
}

func (m *mockDevice) Toggle(down bool) {
	if down {
		m.ops = append(m.ops, "press")
	} else {
		m.ops = append(m.ops, "release")
	}
}

func (m *mockDevice) Position() screen.Point { return m.pos }

func newTestEngine(d Device, cfg Config) (*Engine, *[]time.Duration) {
	e := NewEngine(d, cfg, nil)
	var slept []time.Duration
	e.sleep = func(d time.Duration) { slept = append(slept, d) }
	return e, &slept
}

func pt(x, y int) reconcile.ResolvedPoint {
	return reconcile.ResolvedPoint{X: x, Y: y, Trust: reconcile.TrustAI}
}

func TestClick_Tap(t *testing.T) {
	d := &mockDevice{}
	e, slept := newTestEngine(d, DefaultConfig())

	require.NoError(t, e.Click(context.Background(), pt(500, 240), ModeTap))

	assert.Equal(t, []string{"move(500,240)", "press", "release"}, d.ops)
	assert.Empty(t, *slept, "tap must not dwell")
}

func TestClick_HoldSequence(t *testing.T) {
	d := &mockDevice{}
	cfg := DefaultConfig()
	cfg.JitterPx = 1
	e, slept := newTestEngine(d, cfg)

	require.NoError(t, e.Click(context.Background(), pt(480, 250), ModeHold))

	// move, press, dwell, jitter right/left/back, release — in that order
	assert.Equal(t, []string{
		"move(480,250)",
		"press",
		"move(481,250)",
		"move(479,250)",
		"move(480,250)",
		"release",
	}, d.ops)
	require.Len(t, *slept, 1)
	assert.Equal(t, cfg.Dwell, (*slept)[0])
}

func TestClick_HoldWithoutJitter(t *testing.T) {
	d := &mockDevice{}
	cfg := DefaultConfig()
	cfg.JitterPx = 0
	e, _ := newTestEngine(d, cfg)

	require.NoError(t, e.Click(context.Background(), pt(10, 10), ModeHold))
	assert.Equal(t, []string{"move(10,10)", "press", "release"}, d.ops)
}

func TestClick_VerifyPassesNoExtraTap(t *testing.T) {
	d := &mockDevice{}
	e, _ := newTestEngine(d, DefaultConfig())

	calls := 0
	err := e.Click(context.Background(), pt(1, 2), ModeTap, WithVerify(func(context.Context) bool {
		calls++
		return true
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"move(1,2)", "press", "release"}, d.ops)
}

func TestClick_VerifyFailsConfirmTap(t *testing.T) {
	d := &mockDevice{}
	e, _ := newTestEngine(d, DefaultConfig())

	calls := 0
	err := e.Click(context.Background(), pt(1, 2), ModeTap, WithVerify(func(context.Context) bool {
		calls++
		return calls > 1 // first check fails, confirmatory tap succeeds
	}))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	// two full tap sequences
	assert.Equal(t, []string{
		"move(1,2)", "press", "release",
		"move(1,2)", "press", "release",
	}, d.ops)
}

func TestClick_VerifyFailsConfirmTapDisabled(t *testing.T) {
	d := &mockDevice{}
	cfg := DefaultConfig()
	cfg.ConfirmTap = false
	e, _ := newTestEngine(d, cfg)

	err := e.Click(context.Background(), pt(1, 2), ModeTap, WithVerify(func(context.Context) bool {
		return false
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"move(1,2)", "press", "release"}, d.ops)
}

func TestClick_CancelledContext(t *testing.T) {
	d := &mockDevice{}
	e, _ := newTestEngine(d, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Click(ctx, pt(1, 2), ModeTap)
	require.Error(t, err)
	assert.Empty(t, d.ops, "no pointer activity after cancellation")
}
