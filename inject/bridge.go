package inject

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zkkken/heidi/types"
)

// Scripter evaluates JavaScript in the target document. Implementations
// attach to a real browser tab; tests script it.
type Scripter interface {
	// Ready reports whether the target document is reachable.
	Ready(ctx context.Context) error
	// Evaluate runs expr and decodes the result into out.
	Evaluate(ctx context.Context, expr string, out any) error
}

// CoordinateClicker dispatches a trusted mouse click at viewport
// coordinates. Scripters that implement it (the Chrome session does) get
// their button clicks delivered as real input events; the rest fall back
// to a synthetic element.click().
type CoordinateClicker interface {
	ClickAt(ctx context.Context, x, y float64) error
}

// Config tunes write confirmation.
type Config struct {
	// ConfirmPoll is the interval between rendered-value reads.
	ConfirmPoll time.Duration
	// ConfirmTimeout bounds the total confirmation wait per field.
	ConfirmTimeout time.Duration
}

// DefaultConfig returns the production confirmation tuning.
func DefaultConfig() Config {
	return Config{
		ConfirmPoll:    100 * time.Millisecond,
		ConfirmTimeout: 3 * time.Second,
	}
}

// Bridge injects payloads into a reactive document.
type Bridge struct {
	scripter Scripter
	writer   ReactiveFieldWriter
	cfg      Config
	logger   *zap.Logger
}

// NewBridge creates a bridge over a scripter and a framework writer.
func NewBridge(scripter Scripter, writer ReactiveFieldWriter, cfg Config, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConfirmPoll <= 0 {
		cfg.ConfirmPoll = DefaultConfig().ConfirmPoll
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfig().ConfirmTimeout
	}
	return &Bridge{
		scripter: scripter,
		writer:   writer,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "inject")),
	}
}

// writeOutcome mirrors the JSON produced by ReactiveFieldWriter.WriteJS.
type writeOutcome struct {
	Found bool   `json:"found"`
	How   string `json:"how"`
}

// Inject writes every field of the payload in order. A failing field is
// recorded and its siblings still get written; only an unreachable
// document fails the payload as a whole.
func (b *Bridge) Inject(ctx context.Context, payload Payload) (Result, error) {
	if err := b.scripter.Ready(ctx); err != nil {
		return Result{}, types.NewError(types.ErrDocumentUnavailable,
			fmt.Sprintf("document %q not reachable", payload.Document)).WithCause(err)
	}

	var result Result
	for _, f := range payload.Fields {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if reason := b.injectField(ctx, f); reason != "" {
			b.logger.Warn("field injection failed",
				zap.String("field", f.Name),
				zap.String("reason", reason))
			result.Failed = append(result.Failed, FieldFailure{Field: f.Name, Reason: reason})
			continue
		}
		result.Confirmed = append(result.Confirmed, f.Name)
	}

	b.logger.Info("injection finished",
		zap.String("document", payload.Document),
		zap.Int("confirmed", len(result.Confirmed)),
		zap.Int("failed", len(result.Failed)))

	if len(result.Failed) > 0 {
		return result, types.NewError(types.ErrInjectionFieldFailure,
			fmt.Sprintf("%d of %d fields failed", len(result.Failed), len(payload.Fields)))
	}

	// submit only a fully confirmed form; a partial one is the operator's call
	if payload.SubmitLabel != "" {
		if err := b.ClickButton(ctx, payload.SubmitLabel); err != nil {
			return result, err
		}
	}
	return result, nil
}

// injectField writes one field and confirms it stuck. Returns a failure
// reason, empty on success.
func (b *Bridge) injectField(ctx context.Context, f Field) string {
	var raw string
	if err := b.scripter.Evaluate(ctx, b.writer.WriteJS(f), &raw); err != nil {
		return fmt.Sprintf("write script failed: %v", err)
	}
	var outcome writeOutcome
	if err := json.Unmarshal([]byte(raw), &outcome); err != nil {
		return fmt.Sprintf("unexpected write result %q", raw)
	}
	if !outcome.Found {
		return "no selector resolved the element"
	}

	b.logger.Debug("field written",
		zap.String("field", f.Name),
		zap.String("resolved_by", outcome.How))

	return b.confirm(ctx, f)
}

// confirm polls the rendered value until it matches the intended one.
// The reactive framework applies the value asynchronously, hence the poll.
func (b *Bridge) confirm(ctx context.Context, f Field) string {
	want, err := Canonicalize(f.Value, f.Kind)
	if err != nil {
		return err.Error()
	}

	deadline := time.Now().Add(b.cfg.ConfirmTimeout)
	for {
		var rendered *string
		if err := b.scripter.Evaluate(ctx, b.writer.ReadJS(f), &rendered); err != nil {
			return fmt.Sprintf("read-back failed: %v", err)
		}
		if rendered != nil {
			got, err := Canonicalize(*rendered, f.Kind)
			if err == nil && got == want {
				return ""
			}
		}
		if time.Now().After(deadline) {
			if rendered == nil {
				return "element disappeared before confirmation"
			}
			return fmt.Sprintf("rendered value %q never matched %q", *rendered, f.Value)
		}
		select {
		case <-ctx.Done():
			return ctx.Err().Error()
		case <-time.After(b.cfg.ConfirmPoll):
		}
	}
}

// buttonLocation mirrors the JSON produced by buttonLocateJS.
type buttonLocation struct {
	Found bool    `json:"found"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// ClickButton clicks a button identified by its visible text. When the
// scripter can dispatch raw input events, the click lands at the button's
// viewport center as a trusted event; otherwise a synthetic click serves.
func (b *Bridge) ClickButton(ctx context.Context, text string) error {
	var raw string
	if err := b.scripter.Evaluate(ctx, buttonLocateJS(text), &raw); err != nil {
		return types.NewError(types.ErrDocumentUnavailable, "button locate script failed").WithCause(err)
	}
	var loc buttonLocation
	if err := json.Unmarshal([]byte(raw), &loc); err != nil {
		return types.NewError(types.ErrDocumentUnavailable,
			fmt.Sprintf("unexpected locate result %q", raw)).WithCause(err)
	}
	if !loc.Found {
		return types.NewError(types.ErrInjectionFieldFailure,
			fmt.Sprintf("no button with text %q", text))
	}

	if cc, ok := b.scripter.(CoordinateClicker); ok {
		if err := cc.ClickAt(ctx, loc.X, loc.Y); err != nil {
			return types.NewError(types.ErrDocumentUnavailable, "button click failed").WithCause(err)
		}
		b.logger.Debug("button clicked",
			zap.String("text", text),
			zap.Float64("x", loc.X),
			zap.Float64("y", loc.Y))
		return nil
	}

	var clicked bool
	if err := b.scripter.Evaluate(ctx, buttonClickJS(text), &clicked); err != nil {
		return types.NewError(types.ErrDocumentUnavailable, "button click script failed").WithCause(err)
	}
	if !clicked {
		return types.NewError(types.ErrInjectionFieldFailure,
			fmt.Sprintf("no button with text %q", text))
	}
	return nil
}

// dateLayouts are the renderings we accept back from date inputs.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"2 January 2006",
	"Jan 2, 2006",
}

// Canonicalize normalizes a value for comparison. Dates collapse to
// ISO YYYY-MM-DD; everything else is whitespace-trimmed.
func Canonicalize(value string, kind Kind) (string, error) {
	v := strings.TrimSpace(value)
	if kind != KindDate || v == "" {
		return v, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("unrecognized date %q", value)
}
