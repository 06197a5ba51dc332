package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zkkken/heidi/anchor"
	"github.com/zkkken/heidi/config"
	"github.com/zkkken/heidi/extract"
	"github.com/zkkken/heidi/inject"
	"github.com/zkkken/heidi/internal/metrics"
	"github.com/zkkken/heidi/internal/store"
	"github.com/zkkken/heidi/locator"
	"github.com/zkkken/heidi/pointer"
	"github.com/zkkken/heidi/reconcile"
	"github.com/zkkken/heidi/screen"
	"github.com/zkkken/heidi/types"
)

// Locator is the vision-locating dependency.
type Locator interface {
	Locate(ctx context.Context, image []byte, description string) (locator.FractionalEstimate, error)
}

// Clicker is the pointer dependency.
type Clicker interface {
	Click(ctx context.Context, pt reconcile.ResolvedPoint, mode pointer.Mode, opts ...pointer.Option) error
}

// Injector is the web-injection dependency.
type Injector interface {
	Inject(ctx context.Context, payload inject.Payload) (inject.Result, error)
}

// Sender delivers the merged record through the documentation API. The
// API-first path, used when the web document is not open for injection.
type Sender interface {
	SendRecord(ctx context.Context, record *types.PatientRecord) (sessionID string, err error)
}

// PayloadBuilder turns the merged patient record into an injection payload
// for the given target document. Called fresh on every attempt so a retry
// never replays stale values.
type PayloadBuilder func(target string, record *types.PatientRecord) inject.Payload

// Options wires the orchestrator.
type Options struct {
	Capturer   screen.Capturer
	Anchors    *anchor.Table
	Locator    Locator
	Clicker    Clicker
	Injector   Injector
	Sender     Sender
	Extractor  extract.Extractor
	Payload    PayloadBuilder
	Thresholds reconcile.Thresholds
	// ScaleTolerance for the capture density check.
	ScaleTolerance float64
	// ClickMode for NAVIGATE clicks. Defaults to HOLD.
	ClickMode pointer.Mode

	// Store and Metrics are optional.
	Store   *store.Store
	Metrics *metrics.Collector
	Logger  *zap.Logger
}

// Orchestrator executes steps sequentially. Single-threaded by design:
// every operation blocks, and no state is shared with other goroutines.
type Orchestrator struct {
	opts  Options
	state State

	logger *zap.Logger
}

// New creates an orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Capturer == nil || opts.Locator == nil || opts.Clicker == nil {
		return nil, fmt.Errorf("capturer, locator and clicker are required")
	}
	if opts.Anchors == nil {
		opts.Anchors = anchor.Empty()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ClickMode == "" {
		opts.ClickMode = pointer.ModeHold
	}
	return &Orchestrator{
		opts:   opts,
		state:  StatePending,
		logger: opts.Logger.With(zap.String("component", "pipeline")),
	}, nil
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	return o.state
}

func (o *Orchestrator) setState(to State) error {
	if !canTransition(o.state, to) {
		return types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("cannot transition %s -> %s", o.state, to))
	}
	o.state = to
	return nil
}

// Run executes the steps in order. On abort the report still carries every
// step outcome up to and including the failed one.
func (o *Orchestrator) Run(ctx context.Context, steps []Step) (*Report, error) {
	report := &Report{State: StatePending}

	if o.opts.Store != nil {
		if runID, err := o.opts.Store.StartRun(); err != nil {
			o.logger.Warn("run ledger unavailable", zap.Error(err))
		} else {
			report.RunID = runID
		}
	}

	if err := o.setState(StateRunning); err != nil {
		return report, err
	}
	report.State = StateRunning

	for _, step := range steps {
		stepReport, err := o.runStep(ctx, step, report)
		report.Steps = append(report.Steps, stepReport)
		o.persistStep(report.RunID, stepReport)

		if err != nil {
			o.state = StateAborted
			report.State = StateAborted
			o.finishRun(report, err.Error())
			return report, types.NewError(types.ErrPipelineAborted,
				fmt.Sprintf("step %s failed after %d attempts", step.ID, stepReport.Attempts)).
				WithStep(step.ID).
				WithCause(err)
		}
		report.FurthestCompleted = step.ID
	}

	if err := o.setState(StateCompleted); err != nil {
		return report, err
	}
	report.State = StateCompleted
	o.finishRun(report, "")

	o.logger.Info("pipeline completed",
		zap.String("run_id", report.RunID),
		zap.Int("steps", len(report.Steps)))
	return report, nil
}

// runStep attempts a step within its retry budget.
func (o *Orchestrator) runStep(ctx context.Context, step Step, report *Report) (StepReport, error) {
	sr := StepReport{StepID: step.ID, Action: step.Action, Status: "FAILED"}

	maxAttempts := step.RetryBudget + 1
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			sr.Attempts = attempt - 1
			sr.Err = err.Error()
			return sr, err
		}

		if attempt > 1 {
			if err := o.setState(StateRetrying); err != nil {
				return sr, err
			}
			if err := o.setState(StateRunning); err != nil {
				return sr, err
			}
			if o.opts.Metrics != nil {
				o.opts.Metrics.RecordRetry(step.ID)
			}
			o.logger.Info("retrying step",
				zap.String("step", step.ID),
				zap.Int("attempt", attempt),
				zap.Int("budget", step.RetryBudget))
		}

		sr.Attempts = attempt
		start := time.Now()
		lastErr = o.execute(ctx, step, &sr, report)
		if o.opts.Metrics != nil {
			status := "ok"
			if lastErr != nil {
				status = "failed"
			}
			o.opts.Metrics.RecordStep(string(step.Action), status, time.Since(start))
		}
		if lastErr == nil {
			sr.Status = "COMPLETED"
			sr.Err = ""
			return sr, nil
		}

		sr.Err = lastErr.Error()
		o.logger.Warn("step attempt failed",
			zap.String("step", step.ID),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
	}

	return sr, lastErr
}

// execute dispatches one attempt of a step.
func (o *Orchestrator) execute(ctx context.Context, step Step, sr *StepReport, report *Report) error {
	switch step.Action {
	case ActionNavigate:
		return o.runNavigate(ctx, step, sr)
	case ActionExtract:
		return o.runExtract(ctx, report)
	case ActionInject:
		return o.runInject(ctx, step, sr, report)
	case ActionSend:
		return o.runSend(ctx, report)
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
}

// runNavigate captures the screen, resolves the click position and clicks.
// A locator failure with a valid anchor is not a step failure: the anchor
// serves alone and the retry budget stays untouched.
func (o *Orchestrator) runNavigate(ctx context.Context, step Step, sr *StepReport) error {
	image, captured, err := o.opts.Capturer.Capture(ctx)
	if err != nil {
		return err
	}
	display, err := o.opts.Capturer.DisplaySize()
	if err != nil {
		return err
	}
	scale, err := screen.ResolveScale(captured, display, o.opts.ScaleTolerance)
	if err != nil {
		return err
	}
	o.logger.Debug("scale resolved", zap.Float64("scale", scale))

	anc, err := o.opts.Anchors.Resolve(step.Target, display)
	if err != nil {
		return err
	}

	var est *locator.FractionalEstimate
	start := time.Now()
	result, locErr := o.opts.Locator.Locate(ctx, image, step.Description)
	if o.opts.Metrics != nil {
		status := "ok"
		if locErr != nil {
			status = "unavailable"
		} else if !result.Found {
			status = "not_found"
		}
		o.opts.Metrics.RecordLocate(status, time.Since(start))
	}
	switch {
	case locErr == nil:
		est = &result
	case anc != nil:
		// anchor fallback, no budget consumed
		o.logger.Warn("locator unavailable, falling back to anchor",
			zap.String("step", step.ID),
			zap.String("anchor", step.Target),
			zap.Error(locErr))
	default:
		return locErr
	}

	resolved, err := reconcile.Reconcile(est, anc, display, o.opts.Thresholds)
	if err != nil {
		return err
	}
	sr.Trust = string(resolved.Trust)
	sr.DeviationPx = resolved.DeviationPx
	if o.opts.Metrics != nil {
		o.opts.Metrics.RecordReconcile(string(resolved.Trust), resolved.DeviationPx)
	}
	if resolved.Trust == reconcile.TrustBlended {
		o.logger.Warn("vision estimate drifted from anchor",
			zap.String("step", step.ID),
			zap.Float64("deviation_px", resolved.DeviationPx))
	}

	return o.opts.Clicker.Click(ctx, resolved, o.opts.ClickMode)
}

// runExtract reads the current screen and merges the result into the run's
// patient record.
func (o *Orchestrator) runExtract(ctx context.Context, report *Report) error {
	if o.opts.Extractor == nil {
		return fmt.Errorf("no extractor configured")
	}
	image, _, err := o.opts.Capturer.Capture(ctx)
	if err != nil {
		return err
	}
	record, err := o.opts.Extractor.Extract(ctx, image)
	if err != nil {
		return err
	}
	if report.Record == nil {
		report.Record = record
	} else {
		report.Record.Merge(record)
	}
	return nil
}

// runInject builds a fresh payload from the merged record and writes it.
// Any failed field fails the step.
func (o *Orchestrator) runInject(ctx context.Context, step Step, sr *StepReport, report *Report) error {
	if o.opts.Injector == nil {
		return fmt.Errorf("no injector configured")
	}
	if o.opts.Payload == nil {
		return fmt.Errorf("no payload builder configured")
	}
	if report.Record == nil {
		return types.NewError(types.ErrExtractionEmpty, "nothing extracted before inject step")
	}

	payload := o.opts.Payload(step.Target, report.Record)
	result, err := o.opts.Injector.Inject(ctx, payload)
	sr.FailedFields = result.Failed
	if o.opts.Metrics != nil {
		for range result.Confirmed {
			o.opts.Metrics.RecordField("confirmed")
		}
		for range result.Failed {
			o.opts.Metrics.RecordField("failed")
		}
	}
	return err
}

// runSend delivers the merged record through the documentation API.
func (o *Orchestrator) runSend(ctx context.Context, report *Report) error {
	if o.opts.Sender == nil {
		return fmt.Errorf("no sender configured")
	}
	if report.Record == nil {
		return types.NewError(types.ErrExtractionEmpty, "nothing extracted before send step")
	}
	sessionID, err := o.opts.Sender.SendRecord(ctx, report.Record)
	if err != nil {
		return err
	}
	report.SessionID = sessionID
	return nil
}

func (o *Orchestrator) persistStep(runID string, sr StepReport) {
	if o.opts.Store == nil || runID == "" {
		return
	}
	failures := make([]store.FieldFailureRecord, 0, len(sr.FailedFields))
	for _, f := range sr.FailedFields {
		failures = append(failures, store.FieldFailureRecord{Field: f.Field, Reason: f.Reason})
	}
	if err := o.opts.Store.RecordStep(runID, store.StepOutcome{
		StepID:      sr.StepID,
		Action:      string(sr.Action),
		Status:      sr.Status,
		Attempts:    sr.Attempts,
		Trust:       sr.Trust,
		DeviationPx: sr.DeviationPx,
		Failures:    failures,
	}); err != nil {
		o.logger.Warn("failed to persist step", zap.Error(err))
	}
}

func (o *Orchestrator) finishRun(report *Report, abortReason string) {
	if o.opts.Metrics != nil {
		o.opts.Metrics.RecordRun(string(report.State))
	}
	if o.opts.Store == nil || report.RunID == "" {
		return
	}
	if err := o.opts.Store.FinishRun(report.RunID, string(report.State), report.FurthestCompleted, abortReason); err != nil {
		o.logger.Warn("failed to persist run result", zap.Error(err))
	}
}

// DefaultPayload maps the patient record onto the Heidi patient form.
func DefaultPayload(target string, record *types.PatientRecord) inject.Payload {
	return inject.Payload{
		Document:    target,
		SubmitLabel: "Save",
		Fields: []inject.Field{
			{Name: "first_name", SelectorHint: "[data-testid=patient-first-name]", LabelText: "First name", Position: 0, Value: record.FirstName, Kind: inject.KindText},
			{Name: "last_name", SelectorHint: "[data-testid=patient-last-name]", LabelText: "Last name", Position: 1, Value: record.LastName, Kind: inject.KindText},
			{Name: "birth_date", SelectorHint: "[data-testid=patient-dob]", LabelText: "Date of birth", Position: 2, Value: record.BirthDate, Kind: inject.KindDate},
			{Name: "gender", SelectorHint: "[data-testid=patient-gender]", LabelText: "Gender", Position: 3, Value: record.Gender, Kind: inject.KindSelect},
		},
	}
}

// StepsFromConfig converts config step definitions.
func StepsFromConfig(defs []config.StepConfig) ([]Step, error) {
	steps := make([]Step, 0, len(defs))
	for _, d := range defs {
		action, err := ParseAction(d.Action)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", d.ID, err)
		}
		steps = append(steps, Step{
			ID:          d.ID,
			Action:      action,
			Target:      d.Target,
			Description: d.Description,
			RetryBudget: d.RetryBudget,
		})
	}
	return steps, nil
}
