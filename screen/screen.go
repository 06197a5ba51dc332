// Package screen owns display geometry: logical sizes, capture, and the
// capture-pixel to logical-point scale. No other package performs scale
// arithmetic.
package screen

// Size is a width/height pair in a single coordinate space, either logical
// points or capture pixels depending on context.
type Size struct {
	Width  int
	Height int
}

// Point is a position in logical display points.
type Point struct {
	X int
	Y int
}

// Contains reports whether p lies within the display bounds [0,W)x[0,H).
func (s Size) Contains(p Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < s.Width && p.Y < s.Height
}

// IsZero reports whether the size is unset.
func (s Size) IsZero() bool {
	return s.Width == 0 && s.Height == 0
}
