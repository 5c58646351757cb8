package planner

import (
	"github.com/pkg/errors"

	"go.viam.com/motioncore/machine"
	"go.viam.com/motioncore/utils"
)

// ExecMove is the execution entry point, modeled on the high-priority
// interrupt: it dequeues the run buffer and executes the move continuation
// for exactly one segment. It must never block and never emit more than one
// segment per call; the stepper loading sequence depends on it.
func (e *Engine) ExecMove() (ExecResult, error) {
	bf := e.queue.RunBuffer()
	if bf == nil {
		e.prep.PrepNull()
		return ExecNoop, nil
	}

	if bf.moveType == MoveTypeALine {
		// First-time operations for a new run buffer.
		if bf.bufferState != BufferRunning {
			if bf.bufferState < BufferPrepped {
				e.prep.PrepNull()
				return ExecNoop, e.mach.Panic(errors.Wrap(ErrBufferNotPrepped, "exec move"))
			}
			if nx := e.queue.get(bf.nx); nx.bufferState < BufferPrepped && nx.bufferState != BufferEmpty {
				e.logger.Debugw("next buffer is not prepped", "buffer", nx.idx)
			}
			if bf.bufferState == BufferPrepped {
				if e.mach.MotionState() == machine.MotionRun {
					// Running without a planned block: the planner fell
					// behind the executor. Recoverable, but worth noting.
					e.logger.Warnw("buffer not planned while running", "buffer", bf.idx)
				}
				// Not planned yet. Ask for a plan rather than planning here:
				// planning runs at a lower priority level.
				e.prep.RequestPlan()
				return ExecNoop, nil
			}

			bf.bufferState = BufferRunning // must precede the time accounting
			e.queue.PlannerTimeAccounting()
		}

		// Ask for forward planning of the next move. The request is
		// edge-triggered and serviced after this call returns, which lets
		// the aline executor advance the planning slot first.
		e.prep.RequestPlan()

		if ms := e.mach.MotionState(); ms != machine.MotionRun && ms != machine.MotionHold {
			e.mach.SetMotionState(machine.MotionRun)
		}
	}

	switch bf.moveType {
	case MoveTypeALine:
		return e.execALine(bf)
	case MoveTypeDwell:
		return e.execDwell(bf)
	case MoveTypeCommand:
		return e.execCommand(bf)
	}
	return ExecNoop, e.mach.Panic(errors.Wrap(ErrInternal, "exec move: unknown move type"))
}

// execDwell emits the dwell as one zero-travel segment.
func (e *Engine) execDwell(bf *Block) (ExecResult, error) {
	bf.bufferState = BufferRunning
	var zeros [NumMotors]float64
	var zerr [NumMotors]float64
	if err := e.prep.PrepLine(zeros[:], zerr[:], bf.dwellTime); err != nil {
		return ExecNoop, errors.Wrap(err, "dwell prep")
	}
	return e.finishSimpleMove(bf)
}

// execCommand runs the queued callback.
func (e *Engine) execCommand(bf *Block) (ExecResult, error) {
	bf.bufferState = BufferRunning
	bf.command()
	e.prep.PrepNull()
	return e.finishSimpleMove(bf)
}

func (e *Engine) finishSimpleMove(bf *Block) (ExecResult, error) {
	bf.moveState = MoveRun
	if e.queue.FreeRunBuffer() && e.mach.HoldState() == machine.HoldOff {
		e.mach.CycleEnd()
	}
	return ExecDone, nil
}

// execALine runs one segment of an acceleration-managed line.
//
// Return contract (the interrupt sequencing depends on it being exact):
// ExecDone means the move is finished, ExecAgain means more segments remain,
// ExecNoop means nothing was loaded. A non-nil error is fatal; one returned
// by a section runner also ends the move and frees the buffer, while one
// raised during new-move setup leaves the buffer in place.
func (e *Engine) execALine(bf *Block) (ExecResult, error) {
	if bf.moveState == MoveOff {
		return ExecNoop, nil
	}
	mr := e.mr

	// The settle and rewind ends of a feedhold run before (and instead of)
	// new-move setup: the runtime there describes the abandoned profile,
	// and initializing the reused buffer would clobber the replan.
	if e.mach.MotionState() == machine.MotionHold {
		switch e.mach.HoldState() {
		case machine.HoldDecelEnd, machine.HoldPending, machine.HoldHold:
			res, _, err := e.processHold(bf)
			return res, err
		}
	}

	// Initialize all new blocks, regardless of normal or feedhold operation.
	if mr.moveState == MoveOff {
		if utils.ApproxZero(bf.length) {
			// Too-short lines are removed upstream; seeing one here is a
			// planner assertion failure but not worth stopping the machine.
			e.logger.Warnw("zero length move in executor", "buffer", bf.idx)
		}

		bf.moveState = MoveRun
		mr.moveState = MoveNew
		mr.section = SectionHead
		mr.sectionState = SectionNew
		mr.jerk = bf.jerk

		// Handle the group slots. This must happen before the run and plan
		// block slots are switched.
		if mr.rGroup().state == GroupOff {
			mr.groupEntryVelocity = mr.rGroup().exitVelocity
			mr.swapGroupSlots()
		} else {
			// Same group continuing into this block: bank the completed
			// lengths so a multi-block body can be extended.
			mr.rGroup().completedBodyLength += mr.r().bodyLength
			mr.rGroup().completedHeadLength += mr.r().headLength
		}

		mr.swapBlockSlots()
		mr.p().planned = false

		// Maintain the group links through the queue.
		if bf.nxGroup != bf.nx {
			// Not the last block of the group: carry the group data forward.
			nx := e.queue.get(bf.nx)
			nx.nxGroup = bf.nxGroup
			nx.plannable = bf.plannable
			nx.groupLength = bf.groupLength
			nx.cruiseVmax = bf.cruiseVmax
			nx.cruiseVelocity = bf.cruiseVelocity
			nx.exitVmax = bf.exitVmax
			nx.exitVelocity = bf.exitVelocity
			if utils.ApproxNE(nx.jerk, bf.jerk) {
				nx.copyJerkFrom(bf)
			}
		}
		e.queue.get(bf.nxGroup).pvGroup = bf.idx
		bf.pvGroup = bf.pv
		e.queue.get(bf.pv).nxGroup = bf.idx
		if mr.rGroup().firstBlock == bf.pv {
			mr.rGroup().firstBlock = bf.idx
		}

		mr.executedBodyLength = 0
		mr.executedBodyTime = 0

		// The entry/cruise/exit ordering must hold even for head- or
		// tail-only moves: a head is always entry->cruise and a tail always
		// cruise->exit.

		r := mr.r()

		// Merge sections shorter than the minimum segment time, preserving
		// total length and arrival velocity.
		if !utils.ApproxZero(r.headLength) && r.headTime < e.cfg.MinSegmentTime {
			r.bodyTime += r.headLength / r.cruiseVelocity
			r.headTime = 0
			r.bodyLength += r.headLength
			r.headLength = 0
		}
		if !utils.ApproxZero(r.tailLength) && r.tailTime < e.cfg.MinSegmentTime {
			r.bodyTime += r.tailLength / r.cruiseVelocity
			r.tailTime = 0
			r.bodyLength += r.tailLength
			r.tailLength = 0
		}

		// The head and/or tail may already have merged into the body. If the
		// body is still too brief, push it into whichever ramp sections
		// remain (saved for last since it is the most expensive).
		if !utils.ApproxZero(r.bodyLength) && r.bodyTime < e.cfg.MinSegmentTime {
			if !utils.ApproxZero(r.cruiseJerk) {
				// A partial head/tail remnant: the ramps cannot absorb a
				// body. Drop it and let the encoders catch the position up.
				r.bodyLength = 0
				r.bodyTime = 0
			} else if r.bodyLength > 0 && r.tailLength > 0 && r.headLength > 0 {
				// Split the body across head and tail.
				bodySplit := r.bodyLength / 2.0
				r.bodyLength = 0
				r.headLength += bodySplit
				r.tailLength += bodySplit
				// The linear-average time update is a stated approximation.
				r.headTime += (2.0 * bodySplit) / (mr.entryVelocity + r.cruiseVelocity)
				r.tailTime += (2.0 * bodySplit) / (r.cruiseVelocity + r.exitVelocity)
				r.bodyTime = 0
			} else if r.tailLength > 0 {
				r.tailLength += r.bodyLength
				r.tailTime += (2.0 * r.bodyLength) / (r.cruiseVelocity + r.exitVelocity)
				r.bodyLength = 0
				r.bodyTime = 0
			} else if r.headLength > 0 {
				r.headLength += r.bodyLength
				r.headTime += (2.0 * r.bodyLength) / (mr.entryVelocity + r.cruiseVelocity)
				r.bodyLength = 0
				r.bodyTime = 0
			} else {
				// An all-body move that is still too short.
				return ExecNoop, e.mach.Panic(ErrAllBodyTooShort)
			}
		}

		mr.unit = bf.unit
		mr.target = bf.target // the final target of the move
		mr.axisFlags = bf.axisFlags

		// Generate the waypoints for position correction at section ends.
		for a := 0; a < NumAxes; a++ {
			mr.waypoint[SectionHead][a] = mr.position[a] + mr.unit[a]*r.headLength
			mr.waypoint[SectionBody][a] = mr.position[a] + mr.unit[a]*(r.headLength+r.bodyLength)
			mr.waypoint[SectionTail][a] = mr.position[a] + mr.unit[a]*(r.headLength+r.bodyLength+r.tailLength)
		}

		e.queue.runTimeRemaining = bf.moveTime
	}

	// Feedhold processing traps the move into a controlled deceleration.
	if e.mach.MotionState() == machine.MotionHold {
		if res, handled, err := e.processHold(bf); handled {
			return res, err
		}
	}

	mr.moveState = MoveRun

	// From this point on the contents of the buffer do not affect execution.

	var res ExecResult
	var err error
	switch mr.section {
	case SectionHead:
		res, err = e.execHead(bf)
	case SectionBody:
		res, err = e.execBody(bf)
	case SectionTail:
		res, err = e.execTail(bf)
	default:
		return ExecNoop, e.mach.Panic(errors.Wrap(ErrInternal, "exec aline: bad section"))
	}

	if err == nil {
		// The head may have called into body, and body into tail, so the
		// plannable update waits until after the dispatch. A body that has
		// not started yet still carries the head's spent segment count.
		if mr.section == SectionTail ||
			(mr.section == SectionBody && mr.sectionState != SectionNew && mr.segmentCount < 3) {
			bf.plannable = false
		}

		// Look for the end of a hold deceleration.
		if e.mach.HoldState() == machine.HoldDecelToZero && res == ExecDone {
			e.mach.SetHoldState(machine.HoldDecelEnd)
			bf.moveState = MoveNew // restart the rest of the move from the hold point
		}
	}

	// Three things can happen from here:
	//
	//	result     bf.moveState  description
	//	---------  ------------  -----------------------------------------
	//	ExecAgain  (any)         the runtime has more segments to run
	//	ExecDone   MoveRun       runtime and buffer are both done
	//	ExecDone   MoveNew       runtime done; buffer is reused by feedhold
	if res == ExecAgain && err == nil {
		e.mach.RequestStatusReport(machine.ReportTimed)
	} else {
		mr.moveState = MoveOff // invalidate the runtime for the next move
		mr.sectionState = SectionOff
		e.queue.runTimeRemaining = 0

		if mr.rGroup().state == GroupDone {
			mr.rGroup().state = GroupOff
		}

		// Feed the old exit into the next move's entry.
		mr.entryVelocity = mr.r().exitVelocity
		mr.entryAcceleration = mr.r().exitAcceleration
		mr.entryJerk = mr.r().exitJerk

		if bf.moveState == MoveRun {
			if e.queue.FreeRunBuffer() && e.mach.HoldState() == machine.HoldOff {
				e.mach.CycleEnd() // free buffer and end cycle if the queue is empty
			}
		}
	}
	return res, err
}

// ExitHoldState ends a feedhold: motion resumes if there is queued work,
// otherwise the machine stops.
func (e *Engine) ExitHoldState() {
	e.mach.SetHoldState(machine.HoldOff)
	if e.queue.HasRunnableBuffer() {
		e.mach.SetMotionState(machine.MotionRun)
		e.prep.RequestPlan()
		e.prep.RequestExec()
		e.mach.RequestStatusReport(machine.ReportImmediate)
	} else {
		e.mach.SetMotionState(machine.MotionStop)
	}
}
