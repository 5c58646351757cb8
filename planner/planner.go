// Package planner contains the motion execution core: the planner buffer
// ring, the group-aware forward planner, and the segment executor that turns
// queued straight-line moves into timed, jerk-limited velocity segments for
// the stepper prep interface.
//
// The pipeline is modeled on interrupt-nested firmware. The executor
// (ExecMove and the aline chain) plays the high-priority interrupt: it emits
// exactly one segment per call and never blocks. The forward planner
// (PlanMove) plays the lower-priority interrupt: it ramps and disperses the
// next group of blocks while the executor runs. The two communicate through
// the dual-buffered runtime slots and through buffer-state transitions on
// the queue.
package planner

import (
	"go.viam.com/motioncore/config"
)

// Axis and motor counts of the machine. Axis-space vectors are indexed
// 0..NumAxes-1 (X, Y, Z, A, B, C); motor arrays by physical motor.
const (
	NumAxes   = 6
	NumMotors = 6
)

// Settings are the resolved execution tunables.
type Settings struct {
	// NomSegmentTime is the nominal segment duration in seconds.
	NomSegmentTime float64
	// MinSegmentTime is the hard floor for a segment duration in seconds.
	MinSegmentTime float64
	// QueueSize is the number of entries in the buffer ring.
	QueueSize int
}

// SettingsFromConfig converts the config tunables into Settings.
func SettingsFromConfig(cfg config.Motion) Settings {
	return Settings{
		NomSegmentTime: cfg.NomSegmentUsec / 1e6,
		MinSegmentTime: cfg.MinSegmentUsec / 1e6,
		QueueSize:      cfg.QueueSize,
	}
}
