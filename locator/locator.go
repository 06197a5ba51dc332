// Package locator turns a screenshot plus a natural-language description
// into a fractional screen position using a vision model. Estimates are
// resolution independent: the model reports fractions of the image, never
// absolute pixels, so the same answer holds on any display density.
package locator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/zkkken/heidi/types"
)

// FractionalEstimate is one locate result. Coordinates are fractions of the
// analyzed image in [0,1]. Found=false is a legitimate miss, not an error.
type FractionalEstimate struct {
	XFrac     float64
	YFrac     float64
	Found     bool
	Reasoning string
}

// VisionProvider is the vision-model boundary. It receives a base64 PNG and
// a prompt and returns the raw model text.
type VisionProvider interface {
	AnalyzeImage(ctx context.Context, imageB64, prompt string) (string, error)
}

// Options configures a Locator.
type Options struct {
	// Timeout bounds a single locate call.
	Timeout time.Duration
	// RateLimit is the maximum locate requests per second. Zero disables
	// limiting.
	RateLimit float64
}

// Locator asks a vision provider where a described element sits on screen.
type Locator struct {
	provider VisionProvider
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   *zap.Logger
}

// New creates a Locator around a vision provider.
func New(provider VisionProvider, opts Options, logger *zap.Logger) *Locator {
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Locator{
		provider: provider,
		limiter:  limiter,
		timeout:  timeout,
		logger:   logger.With(zap.String("component", "locator")),
	}
}

// locateResponse is the JSON shape the prompt demands from the model.
type locateResponse struct {
	Found     bool    `json:"found"`
	XPercent  float64 `json:"x_percent"`
	YPercent  float64 `json:"y_percent"`
	Reasoning string  `json:"reasoning"`
}

// Locate analyzes the screenshot for the described element. Transport
// failures, timeouts, and malformed model output all map to
// LOCATOR_UNAVAILABLE so the caller can fall back to an anchor.
func (l *Locator) Locate(ctx context.Context, image []byte, description string) (FractionalEstimate, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return FractionalEstimate{}, types.NewError(types.ErrLocatorUnavailable, "rate limit wait interrupted").WithCause(err)
		}
	}

	start := time.Now()
	raw, err := l.provider.AnalyzeImage(ctx, base64.StdEncoding.EncodeToString(image), locatePrompt(description))
	if err != nil {
		return FractionalEstimate{}, types.NewError(types.ErrLocatorUnavailable, "vision request failed").WithCause(err)
	}

	est, err := parseEstimate(raw)
	if err != nil {
		l.logger.Warn("vision model returned unparseable output",
			zap.String("description", description),
			zap.Error(err))
		return FractionalEstimate{}, err
	}

	l.logger.Info("locate completed",
		zap.String("description", description),
		zap.Bool("found", est.Found),
		zap.Float64("x_frac", est.XFrac),
		zap.Float64("y_frac", est.YFrac),
		zap.Duration("elapsed", time.Since(start)))

	return est, nil
}

// parseEstimate strips code fences and decodes the model's JSON answer.
func parseEstimate(raw string) (FractionalEstimate, error) {
	cleaned := stripFences(raw)

	var resp locateResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return FractionalEstimate{}, types.NewError(types.ErrLocatorUnavailable, "malformed locate response").WithCause(err)
	}

	if !resp.Found {
		return FractionalEstimate{Found: false, Reasoning: resp.Reasoning}, nil
	}

	if resp.XPercent < 0 || resp.XPercent > 1 || resp.YPercent < 0 || resp.YPercent > 1 {
		return FractionalEstimate{}, types.NewError(types.ErrLocatorUnavailable,
			fmt.Sprintf("coordinates out of [0,1]: x=%.4f y=%.4f", resp.XPercent, resp.YPercent))
	}

	return FractionalEstimate{
		XFrac:     resp.XPercent,
		YFrac:     resp.YPercent,
		Found:     true,
		Reasoning: resp.Reasoning,
	}, nil
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag, from the model output.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// drop the language tag line ("json", "JSON", or empty)
		first := strings.TrimSpace(s[:idx])
		if first == "" || strings.EqualFold(first, "json") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// locatePrompt builds the locate instruction. The contract with the model:
// strictly relative coordinates and an explicit found flag, answered as
// bare JSON.
func locatePrompt(description string) string {
	return fmt.Sprintf(`You are a precise UI element locator. Analyze the screenshot and find: %s

Think step by step:
1. Describe the overall layout of the screen.
2. Search for the target element.
3. If found, determine the exact center of the element.

Respond with ONLY a JSON object, no markdown, in this exact shape:
{"found": true, "x_percent": 0.5, "y_percent": 0.3, "reasoning": "short explanation"}

Rules:
- x_percent and y_percent are FRACTIONS of the image size between 0.0 and 1.0, measured from the top-left corner. NEVER return absolute pixel values.
- If the element is not visible, respond {"found": false, "x_percent": 0, "y_percent": 0, "reasoning": "why not"}.
- Do not guess: found must be false unless you can see the element.`, description)
}
