// Package anchor holds the calibrated fallback coordinates for known UI
// elements. The table is maintained by operators in a YAML file and loaded
// once at startup; entries are immutable afterwards.
package anchor

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/zkkken/heidi/screen"
	"github.com/zkkken/heidi/types"
)

// AnchorPoint is a manually calibrated logical coordinate for one UI
// element, valid only for the display geometry it was captured on.
type AnchorPoint struct {
	Name           string `yaml:"name"`
	X              int    `yaml:"x"`
	Y              int    `yaml:"y"`
	CapturedWidth  int    `yaml:"captured_width"`
	CapturedHeight int    `yaml:"captured_height"`
}

// Point returns the anchor's logical position.
func (a *AnchorPoint) Point() screen.Point {
	return screen.Point{X: a.X, Y: a.Y}
}

// ValidFor reports whether the anchor was calibrated on a display of the
// given logical size. An anchor captured on different geometry is stale and
// must not be trusted.
func (a *AnchorPoint) ValidFor(display screen.Size) bool {
	return a.CapturedWidth == display.Width && a.CapturedHeight == display.Height
}

// Table is the set of named anchors for the target application.
type Table struct {
	anchors map[string]AnchorPoint
	logger  *zap.Logger
}

// tableFile is the YAML layout of the anchor file.
type tableFile struct {
	Anchors []AnchorPoint `yaml:"anchors"`
}

// Load reads an anchor table from a YAML file.
func Load(path string, logger *zap.Logger) (*Table, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read anchor table: %w", err)
	}
	return Parse(data, logger)
}

// Parse builds an anchor table from YAML bytes.
func Parse(data []byte, logger *zap.Logger) (*Table, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse anchor table: %w", err)
	}

	t := &Table{
		anchors: make(map[string]AnchorPoint, len(file.Anchors)),
		logger:  logger.With(zap.String("component", "anchor")),
	}
	for _, a := range file.Anchors {
		if a.Name == "" {
			return nil, fmt.Errorf("anchor table entry with empty name")
		}
		if _, dup := t.anchors[a.Name]; dup {
			return nil, fmt.Errorf("duplicate anchor %q", a.Name)
		}
		if a.CapturedWidth <= 0 || a.CapturedHeight <= 0 {
			return nil, fmt.Errorf("anchor %q: captured display size is required", a.Name)
		}
		t.anchors[a.Name] = a
	}

	t.logger.Info("anchor table loaded", zap.Int("anchors", len(t.anchors)))
	return t, nil
}

// Empty returns a table with no anchors. Lookups always miss.
func Empty() *Table {
	return &Table{anchors: map[string]AnchorPoint{}, logger: zap.NewNop()}
}

// Lookup returns the anchor for name, if present.
func (t *Table) Lookup(name string) (AnchorPoint, bool) {
	a, ok := t.anchors[name]
	return a, ok
}

// Resolve returns the anchor for name only if it is valid for the given
// display geometry. A stale anchor is reported as absent, with a warning,
// so callers fall back to the vision estimate alone.
func (t *Table) Resolve(name string, display screen.Size) (*AnchorPoint, error) {
	a, ok := t.anchors[name]
	if !ok {
		return nil, nil
	}
	if !a.ValidFor(display) {
		t.logger.Warn("anchor calibrated on different display geometry, ignoring",
			zap.String("anchor", name),
			zap.Int("captured_width", a.CapturedWidth),
			zap.Int("captured_height", a.CapturedHeight),
			zap.Int("display_width", display.Width),
			zap.Int("display_height", display.Height))
		return nil, nil
	}
	if !display.Contains(a.Point()) {
		return nil, types.NewError(types.ErrOutOfBounds,
			fmt.Sprintf("anchor %q at (%d,%d) outside display %dx%d",
				name, a.X, a.Y, display.Width, display.Height))
	}
	return &a, nil
}

// Len returns the number of anchors in the table.
func (t *Table) Len() int {
	return len(t.anchors)
}
