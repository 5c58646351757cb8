package kinematics

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/motioncore/config"
	"go.viam.com/motioncore/logging"
)

// Cartesian is a one-motor-per-axis machine. Step counts are a straight
// scale of the axis position; no cross-axis coupling.
type Cartesian struct {
	stepsPerMM []float64
	motorAxes  []int

	// Workspace bounds apply to the XYZ linear axes only. The check is off
	// until SetWorkspace is called.
	boundsMin, boundsMax r3.Vector
	checkBounds          bool

	logger logging.Logger
}

// NewCartesian builds Cartesian kinematics from the machine config.
func NewCartesian(cfg config.Motion, logger logging.Logger) (*Cartesian, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Cartesian{
		stepsPerMM: append([]float64(nil), cfg.StepsPerMM...),
		motorAxes:  append([]int(nil), cfg.MotorAxes...),
		logger:     logger,
	}, nil
}

// SetWorkspace sets an axis-aligned XYZ bounding box that targets must stay
// inside.
func (c *Cartesian) SetWorkspace(min, max r3.Vector) error {
	if min.X > max.X || min.Y > max.Y || min.Z > max.Z {
		return errors.Errorf("workspace min %v exceeds max %v", min, max)
	}
	c.boundsMin, c.boundsMax = min, max
	c.checkBounds = true
	return nil
}

// Inverse converts the axis target into motor steps.
func (c *Cartesian) Inverse(target, steps []float64) error {
	if len(steps) < len(c.motorAxes) {
		return errors.Errorf("steps has %d motors, config has %d", len(steps), len(c.motorAxes))
	}
	if c.checkBounds && len(target) >= 3 {
		point := r3.Vector{X: target[0], Y: target[1], Z: target[2]}
		if err := c.checkWorkspace(point); err != nil {
			return err
		}
	}
	for m, axis := range c.motorAxes {
		if axis >= len(target) {
			return errors.Errorf("motor %d mapped to axis %d but target has %d axes", m, axis, len(target))
		}
		steps[m] = target[axis] * c.stepsPerMM[m]
	}
	return nil
}

func (c *Cartesian) checkWorkspace(point r3.Vector) error {
	var err error
	if point.X < c.boundsMin.X || point.X > c.boundsMax.X {
		err = multierr.Append(err, errors.Errorf("x target %.3f outside workspace [%.3f, %.3f]", point.X, c.boundsMin.X, c.boundsMax.X))
	}
	if point.Y < c.boundsMin.Y || point.Y > c.boundsMax.Y {
		err = multierr.Append(err, errors.Errorf("y target %.3f outside workspace [%.3f, %.3f]", point.Y, c.boundsMin.Y, c.boundsMax.Y))
	}
	if point.Z < c.boundsMin.Z || point.Z > c.boundsMax.Z {
		err = multierr.Append(err, errors.Errorf("z target %.3f outside workspace [%.3f, %.3f]", point.Z, c.boundsMin.Z, c.boundsMax.Z))
	}
	return err
}
