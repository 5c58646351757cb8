package planner

import (
	"github.com/pkg/errors"

	"go.viam.com/motioncore/machine"
)

// execSegment emits one fixed-duration segment into the stepper prep.
//
// Step error correction: commandedSteps is targetSteps delayed by two
// segments, which lines it up in time with the encoder readings so a
// following error can be computed. The error is positive when the encoder
// is ahead of the commanded steps and negative when behind, regardless of
// travel direction.
func (e *Engine) execSegment() (ExecResult, error) {
	mr := e.mr
	var target [NumAxes]float64
	var travelSteps [NumMotors]float64

	// Set the target position for the segment. If the segment ends a
	// section, synchronize to the section waypoint instead of integrating,
	// which cancels accumulated float error. No waypoint correction while
	// going into a hold: the hold rewrites the profile mid-section.
	mr.segmentCount--
	if mr.segmentCount == 0 && mr.sectionState == SectionSecondHalf &&
		e.mach.MotionState() != machine.MotionHold {
		target = mr.waypoint[mr.section]
	} else {
		segmentLength := mr.segmentVelocity * mr.segmentTime
		for a := 0; a < NumAxes; a++ {
			target[a] = mr.position[a] + mr.unit[a]*segmentLength
		}
	}

	// Bucket-brigade the step pipeline down one segment before getting the
	// new target from kinematics.
	for m := 0; m < NumMotors; m++ {
		mr.commandedSteps[m] = mr.positionSteps[m] // delayed by one more segment
		mr.positionSteps[m] = mr.targetSteps[m]    // previous segment's target becomes position
		mr.encoderSteps[m] = e.enc.ReadSteps(m)    // time-aligns with commandedSteps
		mr.followingError[m] = mr.encoderSteps[m] - mr.commandedSteps[m]
	}
	if err := e.kin.Inverse(target[:], mr.targetSteps[:]); err != nil {
		return ExecNoop, e.mach.Panic(errors.Wrap(err, "inverse kinematics"))
	}
	for m := 0; m < NumMotors; m++ {
		travelSteps[m] = mr.targetSteps[m] - mr.positionSteps[m]
	}

	// The remaining-time estimate is missing the current segment until it
	// loads; that is fine.
	e.queue.runTimeRemaining -= mr.segmentTime
	if e.queue.runTimeRemaining < 0 {
		e.queue.runTimeRemaining = 0
	}

	if err := e.prep.PrepLine(travelSteps[:], mr.followingError[:], mr.segmentTime); err != nil {
		return ExecNoop, errors.Wrap(err, "prep line")
	}
	mr.position = target // update position from the segment target

	if mr.segmentCount == 0 {
		return ExecDone, nil // this section has run all its segments
	}
	return ExecAgain, nil // this section still has more segments to run
}
