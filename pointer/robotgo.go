package pointer

import (
	"time"

	"github.com/go-vgo/robotgo"

	"github.com/zkkken/heidi/screen"
)

// RobotDevice drives the real OS cursor.
type RobotDevice struct{}

// NewRobotDevice returns the OS-backed pointer device.
func NewRobotDevice() *RobotDevice {
	return &RobotDevice{}
}

// MoveTo moves the cursor smoothly when a travel duration is given,
// instantly otherwise. Smooth travel keeps hover handlers on the path from
// firing all at once at the target.
func (d *RobotDevice) MoveTo(p screen.Point, over time.Duration) {
	if over <= 0 {
		robotgo.Move(p.X, p.Y)
		return
	}
	robotgo.MoveSmooth(p.X, p.Y, 1.0, over.Seconds()*10)
}

// Toggle presses or releases the left button.
func (d *RobotDevice) Toggle(down bool) {
	if down {
		robotgo.Toggle("left", "down")
	} else {
		robotgo.Toggle("left", "up")
	}
}

// Position reports the current cursor position.
func (d *RobotDevice) Position() screen.Point {
	x, y := robotgo.Location()
	return screen.Point{X: x, Y: y}
}
