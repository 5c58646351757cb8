package planner

import (
	"go.viam.com/motioncore/machine"
	"go.viam.com/motioncore/utils"
)

// Feedhold processing. The cases, in rough sequence order:
//
//	(1)  a block is midway through normal execution when a hold arrives
//	(1a)   the deceleration fits in the length remaining in the running block
//	(1b)   the deceleration does not fit and must span into following blocks
//	(1c)   1a, but the remaining length matches the braking length exactly
//	(2)  a new block and a hold request arrive at the same time
//	(3)  the running block is already decelerating (no-op, not trapped)
//	(4)  a block decelerated to some velocity > zero (continues next block)
//	(5)  a block decelerated to zero velocity
//	(6)  runtime work is done; waiting for the steppers to drain
//	(7)  the steppers have stopped; no motion may occur
//	(8)  hold released with queued motion   (handled by ExitHoldState)
//	(9)  hold released with no queued motion (handled by ExitHoldState)
//
// processHold returns handled=true when the executor must return without
// dispatching a section: the machine is holding, draining, or rewinding.
// Cases 1, 2 and 4 rebuild the runtime as a tail-only move and fall through
// to the normal section dispatch.
func (e *Engine) processHold(bf *Block) (ExecResult, bool, error) {
	mr := e.mr

	switch e.mach.HoldState() {
	case machine.HoldHold:
		// Case (7): all motion has ceased. It is very important to exit as
		// a no-op so nothing further is loaded.
		return ExecNoop, true, nil

	case machine.HoldPending:
		// Case (6): wait for the steppers to actually clear out.
		if e.prep.RuntimeIsIdle() {
			e.mach.SetHoldState(machine.HoldHold)
			// Zero the reported velocity now that motion has ceased.
			mr.segmentVelocity = 0
			e.prep.ZeroSegmentVelocity()
			e.mach.RequestStatusReport(machine.ReportImmediate)
			e.mach.ControllerReady() // remove the host readline pause
		}
		return ExecDone, true, nil

	case machine.HoldDecelEnd:
		// Case (5): decelerated to zero. Rewind the run buffer to cover the
		// untravelled remainder of the move and force a replan of the whole
		// queue from the hold point.
		mr.moveState = MoveOff // reset the runtime for the reused buffer
		bf.moveState = MoveNew
		bf.length = utils.AxisVectorLength(mr.target[:], mr.position[:])
		bf.groupLength = bf.length
		bf.moveTime = e.estimateMoveTime(bf.length, bf.cruiseVmax, bf.jerk)
		e.queue.ReplanQueue(e.queue.runIdx)
		// The dispersal state of both groups refers to the profile that was
		// abandoned mid-flight; restart them from the standstill.
		e.mr.rGroup().reset()
		e.mr.pGroup().reset()
		e.mr.r().planned = false
		e.mr.p().planned = false
		e.mr.entryVelocity = 0
		e.mr.entryAcceleration = 0
		e.mr.entryJerk = 0
		e.mach.SetHoldState(machine.HoldPending)
		return ExecDone, true, nil

	case machine.HoldSync, machine.HoldDecelContinue:
		// Case (3) continues an in-flight deceleration untouched.
		if e.mach.HoldState() == machine.HoldDecelContinue && mr.moveState != MoveNew {
			return ExecNoop, false, nil
		}

		// Cases (1a, 1b, 1c), (2), (4): build a tail-only move from here
		// and decelerate as fast as possible in the space we have.
		if mr.section == SectionTail {
			// Already decelerating; don't start over.
			if utils.ApproxZero(mr.r().exitVelocity) {
				e.mach.SetHoldState(machine.HoldDecelToZero)
			} else {
				e.mach.SetHoldState(machine.HoldDecelContinue)
			}
		} else {
			r := mr.r()
			mr.entryVelocity = mr.segmentVelocity
			if mr.section == SectionHead {
				// Project forward one segment to the velocity this new
				// segment would have run at.
				mr.entryVelocity += mr.fd.f5
			}
			r.cruiseVelocity = mr.entryVelocity

			mr.section = SectionTail
			mr.sectionState = SectionNew
			mr.jerk = bf.jerk
			r.headLength = 0
			r.bodyLength = 0
			r.headTime = 0
			r.bodyTime = 0

			availableLength := utils.AxisVectorLength(mr.target[:], mr.position[:])
			r.tailLength = targetLength(0, r.cruiseVelocity, bf) // braking length

			switch {
			case utils.ApproxZero(availableLength - r.tailLength):
				// (1c) the braking length matches the remaining length.
				e.mach.SetHoldState(machine.HoldDecelToZero)
				r.exitVelocity = 0
				r.tailLength = availableLength
			case availableLength < r.tailLength:
				// (1b) the deceleration has to span multiple moves.
				e.mach.SetHoldState(machine.HoldDecelContinue)
				r.tailLength = availableLength
				r.exitVelocity = r.cruiseVelocity - targetVelocity(0, r.tailLength, bf)
				if r.exitVelocity < 0 {
					r.exitVelocity = 0
				}
			default:
				// (1a) the deceleration fits in the current move.
				e.mach.SetHoldState(machine.HoldDecelToZero)
				r.exitVelocity = 0
			}
			if r.exitVelocity+r.cruiseVelocity > 0 {
				r.tailTime = r.tailLength * 2 / (r.exitVelocity + r.cruiseVelocity)
			} else {
				r.tailTime = 0
			}
		}
	}
	return ExecNoop, false, nil
}
