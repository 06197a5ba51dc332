package locator

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkkken/heidi/types"
)

// fakeProvider returns a scripted response or error.
type fakeProvider struct {
	response string
	err      error

	lastImageB64 string
	lastPrompt   string
}

func (f *fakeProvider) AnalyzeImage(_ context.Context, imageB64, prompt string) (string, error) {
	f.lastImageB64 = imageB64
	f.lastPrompt = prompt
	return f.response, f.err
}

func newTestLocator(p VisionProvider) *Locator {
	return New(p, Options{}, nil)
}

func TestLocate_Found(t *testing.T) {
	p := &fakeProvider{response: `{"found": true, "x_percent": 0.5, "y_percent": 0.3, "reasoning": "button in the upper half"}`}
	l := newTestLocator(p)

	est, err := l.Locate(context.Background(), []byte("png-bytes"), "the Save button")
	require.NoError(t, err)
	assert.True(t, est.Found)
	assert.Equal(t, 0.5, est.XFrac)
	assert.Equal(t, 0.3, est.YFrac)
	assert.Equal(t, "button in the upper half", est.Reasoning)

	// the image travels base64 encoded, the description lands in the prompt
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("png-bytes")), p.lastImageB64)
	assert.Contains(t, p.lastPrompt, "the Save button")
	assert.Contains(t, p.lastPrompt, "FRACTIONS")
}

func TestLocate_NotFoundIsNotAnError(t *testing.T) {
	p := &fakeProvider{response: `{"found": false, "x_percent": 0, "y_percent": 0, "reasoning": "list is empty"}`}
	l := newTestLocator(p)

	est, err := l.Locate(context.Background(), nil, "first patient row")
	require.NoError(t, err)
	assert.False(t, est.Found)
	assert.Equal(t, "list is empty", est.Reasoning)
}

func TestLocate_FencedResponse(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"json fence", "```json\n{\"found\": true, \"x_percent\": 0.25, \"y_percent\": 0.75, \"reasoning\": \"ok\"}\n```"},
		{"bare fence", "```\n{\"found\": true, \"x_percent\": 0.25, \"y_percent\": 0.75, \"reasoning\": \"ok\"}\n```"},
		{"surrounding whitespace", "  \n{\"found\": true, \"x_percent\": 0.25, \"y_percent\": 0.75, \"reasoning\": \"ok\"}\n  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLocator(&fakeProvider{response: tt.response})
			est, err := l.Locate(context.Background(), nil, "x")
			require.NoError(t, err)
			assert.Equal(t, 0.25, est.XFrac)
			assert.Equal(t, 0.75, est.YFrac)
		})
	}
}

func TestLocate_TransportFailure(t *testing.T) {
	l := newTestLocator(&fakeProvider{err: errors.New("connection reset")})

	_, err := l.Locate(context.Background(), nil, "x")
	require.Error(t, err)
	assert.Equal(t, types.ErrLocatorUnavailable, types.GetErrorCode(err))
}

func TestLocate_MalformedResponse(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"prose", "The button is roughly in the middle of the screen."},
		{"truncated json", `{"found": true, "x_percent":`},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLocator(&fakeProvider{response: tt.response})
			_, err := l.Locate(context.Background(), nil, "x")
			require.Error(t, err)
			assert.Equal(t, types.ErrLocatorUnavailable, types.GetErrorCode(err))
		})
	}
}

func TestLocate_OutOfRangeCoordinates(t *testing.T) {
	// an absolute-pixel answer violates the contract and must be rejected
	l := newTestLocator(&fakeProvider{response: `{"found": true, "x_percent": 480, "y_percent": 250, "reasoning": "pixels"}`})

	_, err := l.Locate(context.Background(), nil, "x")
	require.Error(t, err)
	assert.Equal(t, types.ErrLocatorUnavailable, types.GetErrorCode(err))
}

func TestLocate_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// with a rate limiter the cancelled context surfaces before the request
	l := New(&fakeProvider{response: "{}"}, Options{RateLimit: 0.001}, nil)
	_, err := l.Locate(ctx, nil, "x")
	require.Error(t, err)
	assert.Equal(t, types.ErrLocatorUnavailable, types.GetErrorCode(err))
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences(`{"a":1}`))
}
