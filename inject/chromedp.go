package inject

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/zkkken/heidi/types"
)

// ChromeSession is the chromedp-backed Scripter. It attaches to a running
// Chrome over the DevTools protocol when a remote URL is configured, or
// launches a headed instance otherwise — the operator watches the
// injection happen.
type ChromeSession struct {
	ctx     context.Context
	cancels []context.CancelFunc
	logger  *zap.Logger
}

// NewChromeSession connects to Chrome and navigates to the target document
// when documentURL is non-empty.
func NewChromeSession(ctx context.Context, remoteURL, documentURL string, logger *zap.Logger) (*ChromeSession, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "chrome"))

	var cancels []context.CancelFunc

	if remoteURL != "" {
		allocCtx, cancel := chromedp.NewRemoteAllocator(ctx, remoteURL)
		cancels = append(cancels, cancel)
		ctx = allocCtx
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", false),
		)
		allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
		cancels = append(cancels, cancel)
		ctx = allocCtx
	}

	browserCtx, cancel := chromedp.NewContext(ctx)
	cancels = append(cancels, cancel)

	s := &ChromeSession{ctx: browserCtx, cancels: cancels, logger: logger}

	if documentURL != "" {
		if err := s.Navigate(ctx, documentURL); err != nil {
			s.Close()
			return nil, err
		}
		logger.Info("document opened", zap.String("url", documentURL))
	}

	return s, nil
}

// Ready checks the document finished loading.
func (s *ChromeSession) Ready(ctx context.Context) error {
	var state string
	if err := s.run(ctx, chromedp.Evaluate(`document.readyState`, &state)); err != nil {
		return err
	}
	if state != "complete" && state != "interactive" {
		return fmt.Errorf("document not ready: %s", state)
	}
	return nil
}

// Evaluate runs expr in the page and decodes the result into out.
func (s *ChromeSession) Evaluate(ctx context.Context, expr string, out any) error {
	return s.run(ctx, chromedp.Evaluate(expr, out))
}

// Navigate loads a different document in the same tab.
func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return types.NewError(types.ErrDocumentUnavailable,
			fmt.Sprintf("failed to open %q", url)).WithCause(err)
	}
	return nil
}

// ClickAt dispatches a raw mouse click at viewport coordinates. Unlike a
// synthetic element.click(), these events carry isTrusted=true; the bridge
// routes button clicks through here.
func (s *ChromeSession) ClickAt(ctx context.Context, x, y float64) error {
	press := input.DispatchMouseEvent(input.MousePressed, x, y).
		WithButton(input.Left).
		WithClickCount(1)
	release := input.DispatchMouseEvent(input.MouseReleased, x, y).
		WithButton(input.Left).
		WithClickCount(1)
	return s.run(ctx, press, release)
}

// run executes actions in the browser context while honoring the caller's
// deadline.
func (s *ChromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(s.ctx, actions...) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Close tears the session down.
func (s *ChromeSession) Close() {
	for i := len(s.cancels) - 1; i >= 0; i-- {
		s.cancels[i]()
	}
}
