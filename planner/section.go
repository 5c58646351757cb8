package planner

import (
	"math"

	"go.viam.com/motioncore/utils"
)

// Section runners. Each section breaks into segments of roughly the nominal
// segment time. The first segment of a forward-differenced section runs in
// FirstHalf; every later segment advances the difference registers in
// SecondHalf. A section whose count collapses to one segment skips the
// forward differences entirely and runs at the mean of its boundary
// velocities.

// execHead runs the acceleration section.
func (e *Engine) execHead(bf *Block) (ExecResult, error) {
	mr := e.mr
	r := mr.r()

	if mr.sectionState == SectionNew {
		if utils.ApproxZero(r.headLength) {
			mr.section = SectionBody
			return e.execBody(bf) // skip ahead to the body generator
		}
		mr.segments = math.Ceil(r.headTime / e.cfg.NomSegmentTime)
		mr.segmentTime = r.headTime / mr.segments
		mr.segmentCount = uint32(mr.segments)

		if mr.segmentCount == 1 {
			mr.segmentVelocity = (mr.entryVelocity + r.cruiseVelocity) / 2
			mr.fd.f5 = 0 // prevent the velocity from being adjusted
			mr.sectionState = SectionSecondHalf
		} else {
			mr.initForwardDiffs(
				mr.entryVelocity, r.cruiseVelocity,
				mr.entryAcceleration, r.cruiseAcceleration,
				mr.entryJerk, r.cruiseJerk,
				r.headTime)
			mr.sectionState = SectionFirstHalf
		}
		if mr.segmentTime < e.cfg.MinSegmentTime {
			// Discard the move without advancing position; the encoders
			// absorb the difference.
			e.logger.Warnw("minimum time move in head", "segment_time", mr.segmentTime)
			return ExecDone, nil
		}
		mr.section = SectionHead
	}

	// The first segment of a forward-differenced section runs in FirstHalf;
	// a one-segment section has already skipped to SecondHalf.
	if mr.sectionState == SectionFirstHalf {
		res, err := e.execSegment()
		if err != nil {
			return ExecNoop, err
		}
		if res == ExecDone {
			mr.section = SectionBody
			mr.sectionState = SectionNew
		} else {
			mr.sectionState = SectionSecondHalf
		}
		return ExecAgain, nil
	}
	if mr.sectionState == SectionSecondHalf {
		mr.segmentVelocity += mr.fd.f5
		res, err := e.execSegment()
		if err != nil {
			return ExecNoop, err
		}
		if res == ExecDone {
			if utils.ApproxZero(r.bodyLength) && utils.ApproxZero(r.tailLength) {
				return ExecDone, nil // ends the move
			}
			mr.section = SectionBody
			mr.sectionState = SectionNew
		} else {
			mr.fd.advance()
		}
	}
	return ExecAgain, nil
}

// execBody runs the cruise section. The body is broken into segments even
// though it is a straight line so that feedholds can land mid-line with
// minimal latency. It re-enters through SectionNew after every completion
// so a body extension planned mid-flight is picked up.
func (e *Engine) execBody(bf *Block) (ExecResult, error) {
	mr := e.mr
	r := mr.r()

	if mr.segmentVelocity < 0 {
		return ExecNoop, e.mach.Panic(ErrNegativeSegmentVelocity)
	}

	if mr.sectionState == SectionNew {
		remainingBodyLength := r.bodyLength - mr.executedBodyLength
		if utils.ApproxZero(remainingBodyLength) {
			mr.section = SectionTail
			return e.execTail(bf) // skip ahead to the tail
		}

		if !utils.ApproxZero(mr.executedBodyLength) {
			// The body was extended: rebase the waypoints on the current
			// position, which sits at the end of the previously executed
			// body length.
			for a := 0; a < NumAxes; a++ {
				mr.waypoint[SectionBody][a] = mr.position[a] + mr.unit[a]*remainingBodyLength
				mr.waypoint[SectionTail][a] = mr.position[a] + mr.unit[a]*(remainingBodyLength+r.tailLength)
			}
		}

		bodyTime := r.bodyTime - mr.executedBodyTime
		mr.segments = math.Ceil(bodyTime / e.cfg.NomSegmentTime)
		mr.segmentTime = bodyTime / mr.segments
		mr.segmentVelocity = r.cruiseVelocity
		mr.segmentCount = uint32(mr.segments)
		if mr.segmentTime < e.cfg.MinSegmentTime {
			e.logger.Warnw("minimum time move in body", "segment_time", mr.segmentTime)
			return ExecDone, nil
		}

		mr.executedBodyLength = r.bodyLength
		mr.executedBodyTime = r.bodyTime

		mr.section = SectionBody
		mr.sectionState = SectionSecondHalf // so last-segment detection works
	}
	if mr.sectionState == SectionSecondHalf {
		res, err := e.execSegment()
		if err != nil {
			return ExecNoop, err
		}
		if res == ExecDone {
			// Try the body again in case it was extended; it jumps to the
			// tail if not.
			mr.sectionState = SectionNew
		}
	}
	return ExecAgain, nil
}

// execTail runs the deceleration section.
func (e *Engine) execTail(bf *Block) (ExecResult, error) {
	mr := e.mr
	r := mr.r()

	if mr.sectionState == SectionNew {
		// Once the tail starts the block cannot be replanned.
		bf.plannable = false

		// Release the running group for reuse. If it is not DONE it is
		// still handing out tail sections to blocks.
		if mr.rGroup().state == GroupDone {
			mr.rGroup().state = GroupOff
		}

		if utils.ApproxZero(r.tailLength) {
			return ExecDone, nil // ends the move
		}
		mr.segments = math.Ceil(r.tailTime / e.cfg.NomSegmentTime)
		mr.segmentTime = r.tailTime / mr.segments
		mr.segmentCount = uint32(mr.segments)

		if mr.segmentCount == 1 {
			mr.segmentVelocity = (r.cruiseVelocity + r.exitVelocity) / 2
			mr.fd.f5 = 0
			mr.sectionState = SectionSecondHalf
		} else {
			mr.initForwardDiffs(
				r.cruiseVelocity, r.exitVelocity,
				r.cruiseAcceleration, r.exitAcceleration,
				r.cruiseJerk, r.exitJerk,
				r.tailTime)
			mr.sectionState = SectionFirstHalf
		}
		if mr.segmentTime < e.cfg.MinSegmentTime {
			e.logger.Warnw("minimum time move in tail", "segment_time", mr.segmentTime)
			return ExecDone, nil
		}
		mr.section = SectionTail
	}

	if mr.sectionState == SectionFirstHalf {
		res, err := e.execSegment()
		if err != nil {
			return ExecNoop, err
		}
		mr.sectionState = SectionSecondHalf
		if res == ExecDone {
			// Only one segment in this section; it completes the move.
			return ExecDone, nil
		}
		return ExecAgain, nil
	}
	if mr.sectionState == SectionSecondHalf {
		mr.segmentVelocity += mr.fd.f5
		res, err := e.execSegment()
		if err != nil {
			return ExecNoop, err
		}
		if res == ExecDone {
			return ExecDone, nil
		}
		mr.fd.advance()
	}
	return ExecAgain, nil
}
