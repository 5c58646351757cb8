package config

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Default segment timing. A nominal segment is the slice of a section handed
// to the stepper prep; the minimum is the hard floor below which a section
// cannot be subdivided.
const (
	DefaultNomSegmentUsec = 5000.0
	DefaultMinSegmentUsec = 1250.0
)

// Motion holds the tunables of the execution pipeline.
type Motion struct {
	// NomSegmentUsec is the nominal segment duration in microseconds.
	NomSegmentUsec float64 `json:"nom_segment_usec"`
	// MinSegmentUsec is the minimum allowed segment duration in microseconds.
	MinSegmentUsec float64 `json:"min_segment_usec"`
	// QueueSize is the number of entries in the planner buffer ring.
	QueueSize int `json:"queue_size"`
	// StepsPerMM maps each motor to its full-step resolution.
	StepsPerMM []float64 `json:"steps_per_mm"`
	// MotorAxes maps each motor to the axis it drives.
	MotorAxes []int `json:"motor_axes"`
}

// DefaultMotion returns a Motion config with reasonable defaults for a
// six-axis, six-motor Cartesian machine.
func DefaultMotion() Motion {
	return Motion{
		NomSegmentUsec: DefaultNomSegmentUsec,
		MinSegmentUsec: DefaultMinSegmentUsec,
		QueueSize:      48,
		StepsPerMM:     []float64{80, 80, 400, 80, 80, 80},
		MotorAxes:      []int{0, 1, 2, 3, 4, 5},
	}
}

// MotionFromAttributes decodes a Motion config from an attribute map,
// filling unset fields from the defaults.
func MotionFromAttributes(am AttributeMap) (Motion, error) {
	cfg := DefaultMotion()
	if err := am.Decode(&cfg); err != nil {
		return Motion{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Motion{}, err
	}
	return cfg, nil
}

// Validate checks the config for inconsistencies.
func (m Motion) Validate() error {
	var err error
	if m.NomSegmentUsec <= 0 {
		err = multierr.Append(err, errors.New("nom_segment_usec must be positive"))
	}
	if m.MinSegmentUsec <= 0 || m.MinSegmentUsec > m.NomSegmentUsec {
		err = multierr.Append(err, errors.New("min_segment_usec must be positive and no greater than nom_segment_usec"))
	}
	if m.QueueSize < 4 {
		err = multierr.Append(err, errors.New("queue_size must be at least 4"))
	}
	if len(m.StepsPerMM) != len(m.MotorAxes) {
		err = multierr.Append(err, errors.Errorf(
			"steps_per_mm has %d motors but motor_axes has %d", len(m.StepsPerMM), len(m.MotorAxes)))
	}
	for i, spm := range m.StepsPerMM {
		if spm <= 0 {
			err = multierr.Append(err, errors.Errorf("steps_per_mm[%d] must be positive", i))
		}
	}
	return err
}
