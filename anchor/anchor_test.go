package anchor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkkken/heidi/screen"
	"github.com/zkkken/heidi/types"
)

const sampleYAML = `
anchors:
  - name: patient_row
    x: 480
    y: 250
    captured_width: 1000
    captured_height: 800
  - name: detail_tab
    x: 120
    y: 64
    captured_width: 1000
    captured_height: 800
`

func TestParse(t *testing.T) {
	table, err := Parse([]byte(sampleYAML), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())

	a, ok := table.Lookup("patient_row")
	require.True(t, ok)
	assert.Equal(t, 480, a.X)
	assert.Equal(t, 250, a.Y)
	assert.Equal(t, screen.Point{X: 480, Y: 250}, a.Point())

	_, ok = table.Lookup("missing")
	assert.False(t, ok)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty name", "anchors:\n  - x: 1\n    y: 2\n    captured_width: 100\n    captured_height: 100\n"},
		{"duplicate", sampleYAML + "  - name: patient_row\n    x: 1\n    y: 2\n    captured_width: 1000\n    captured_height: 800\n"},
		{"missing captured size", "anchors:\n  - name: a\n    x: 1\n    y: 2\n"},
		{"not yaml", "{{{{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), nil)
			assert.Error(t, err)
		})
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anchors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0644))

	table, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	table, err := Parse([]byte(sampleYAML), nil)
	require.NoError(t, err)

	// matching geometry
	a, err := table.Resolve("patient_row", screen.Size{Width: 1000, Height: 800})
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, 480, a.X)

	// unknown anchor: miss, not an error
	a, err = table.Resolve("missing", screen.Size{Width: 1000, Height: 800})
	require.NoError(t, err)
	assert.Nil(t, a)

	// stale geometry: treated as absent
	a, err = table.Resolve("patient_row", screen.Size{Width: 1920, Height: 1080})
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestResolve_OutOfBounds(t *testing.T) {
	table, err := Parse([]byte(`
anchors:
  - name: broken
    x: 1200
    y: 50
    captured_width: 1000
    captured_height: 800
`), nil)
	require.NoError(t, err)

	_, err = table.Resolve("broken", screen.Size{Width: 1000, Height: 800})
	require.Error(t, err)
	assert.Equal(t, types.ErrOutOfBounds, types.GetErrorCode(err))
}

func TestEmpty(t *testing.T) {
	table := Empty()
	assert.Equal(t, 0, table.Len())
	a, err := table.Resolve("anything", screen.Size{Width: 1000, Height: 800})
	require.NoError(t, err)
	assert.Nil(t, a)
}
