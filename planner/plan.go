package planner

import (
	"go.viam.com/motioncore/utils"
)

// PlanMove is the forward-planning entry point, modeled on the
// lower-priority interrupt. It ramps and disperses blocks ahead of the
// executor.
//
// Group/state cheat sheet:
//
//	GroupOff     the group needs ramping.
//	GroupRamped  ramped, but head/body/tail dispersal has not started.
//	GroupHead..  currently dispersing sections out to member blocks.
//	GroupDone    dispersal finished. Kept around in case the body extends;
//	             planning skips ahead to the other group slot.
//
// Choosing between the running and planning group slots, top to bottom
// ("--" is "don't care"):
//
//	group    state  extended  use
//	-------  -----  --------  -------
//	running  OFF    --        planning
//	running  DONE   no        planning
//	running  DONE   yes       running (extension may still be rejected)
//	running  --     --        running
//
// The planner only ever writes the planning block slot, the non-running
// group, and buffer-state downgrades on blocks that have not started
// running; the one exception is an accepted extension of the running group,
// which re-disperses into the running block slot.
func (e *Engine) PlanMove() (ExecResult, error) {
	bf := e.queue.RunBuffer()
	if bf == nil {
		// Nothing is running; this is fine.
		return ExecNoop, nil
	}

	if bf.moveType != MoveTypeALine {
		bf.bufferState = BufferPlanned
		return ExecDone, nil
	}

	mr := e.mr

	// Reasons to alter a group.
	groupExtended := false
	velocityChanged := false

	if mr.rGroup().state != GroupOff {
		if err := e.checkGroupChanges(mr.rGroup(), &groupExtended, &velocityChanged); err != nil {
			return ExecNoop, err
		}
	}

	var group *groupRuntime
	if groupExtended || velocityChanged ||
		(mr.rGroup().state != GroupOff && mr.rGroup().state != GroupDone) {
		// The running group is still dispersing (or just changed), use it.
		group = mr.rGroup()
	} else {
		group = mr.pGroup()
		if group.state != GroupOff {
			if err := e.checkGroupChanges(group, &groupExtended, &velocityChanged); err != nil {
				return ExecNoop, err
			}
		}
	}

	// Choose the buffer and runtime block slot to plan into:
	//
	//	extended  bf state    group    use bf  use slot  use entry
	//	--------  ---------   -------  ------  --------  ----------------
	//	--        < running   --       bf      p         mr entry values
	//	no        = running   --       bf.nx   p         r exit values
	//	yes       = running   running  bf      r         mr entry values
	//	yes       = running   planning bf.nx   p         r exit values
	block := mr.p()
	entryVelocity := mr.entryVelocity
	entryAcceleration := mr.entryAcceleration
	entryJerk := mr.entryJerk

	if bf.bufferState == BufferRunning {
		switch {
		case (groupExtended || velocityChanged) && mr.isRunGroup(group):
			// Replan the running move in place.
			block = mr.r()

		case group == mr.pGroup() && group.state == GroupDone:
			// Nothing left to do for now.
			return ExecNoop, nil

		default:
			bf = e.queue.get(bf.nx)
			if bf.bufferState == BufferEmpty {
				return ExecNoop, nil
			}
			if bf.moveType != MoveTypeALine {
				bf.bufferState = BufferPlanned
				return ExecDone, nil
			}
			entryVelocity = mr.r().exitVelocity
			entryAcceleration = mr.r().exitAcceleration
			entryJerk = mr.r().exitJerk
		}
	}

	if bf.bufferState < BufferPrepped {
		// Nothing to plan yet.
		return ExecNoop, nil
	}

	// Only one block may be Planned at a time: that is what keeps the
	// planning slot in sync with the next planned buffer. The slot only
	// advances in the aline executor, after the run/plan swap.
	if bf.bufferState == BufferPrepped && group.state == GroupOff {
		calculateRamps(bf, group, entryVelocity)
		if group.headLength < 0 || group.bodyLength < 0 || group.tailLength < 0 {
			return ExecNoop, e.mach.Panic(ErrNegativeSectionLength)
		}

		// Reset the group for dispersal.
		group.completedBodyLength = 0
		group.completedHeadLength = 0
		group.firstBlock = bf.idx
		group.length = bf.groupLength
		group.lengthIntoSection = 0
		group.tIntoSection = 0
		group.state = GroupRamped
	}

	if group.state == GroupRamped {
		// Back-planning only looks at the first block of a group to decide
		// plannability, so find the first block that is not all locked
		// head/body and present it as the group's first block.
		lockLengthLeft := (group.headLength - group.completedHeadLength) +
			(group.bodyLength - group.completedBodyLength)
		look := bf
		for look.length+0.0001 < lockLengthLeft {
			if look.bufferState == BufferEmpty {
				break
			}
			lockLengthLeft -= look.length
			look = e.queue.get(look.nx)
		}

		// look now points at the first block of the tail, if any.
		e.queue.get(bf.nxGroup).pvGroup = look.idx
		group.firstBlock = look.idx
		look.nxGroup = bf.nxGroup

		// Zero the entry the back planner would see; anything higher it
		// finds is acceptable since forward planning is already done.
		prev := e.queue.get(look.pv)
		prev.exitVmax = 0
		prev.exitVelocity = 0

		// The cruise is locked in; only the exit may still improve.
		look.cruiseVmax = group.cruiseVelocity
		look.exitVmax = group.cruiseVelocity
		look.exitVelocity = group.exitVelocity
		look.cruiseVelocity = group.cruiseVelocity
		look.groupLength = group.length

		group.state = GroupHead
	}

	// Dispersal: map the group's sections onto this block's runtime.
	if group.state > GroupRamped && group.state != GroupDone && bf.bufferState != BufferPlanned {
		if group.headLength < 0 || group.bodyLength < 0 || group.tailLength < 0 {
			return ExecNoop, e.mach.Panic(ErrNegativeSectionLength)
		}

		status := calculateBlock(bf, group, block, entryVelocity, entryAcceleration, entryJerk)

		if block.exitVelocity > block.cruiseVelocity+utils.Epsilon {
			return ExecNoop, e.mach.Panic(ErrExitAboveCruise)
		}
		if block.headLength < 0.001 && block.bodyLength < 0.001 && block.tailLength < 0.001 {
			return ExecNoop, e.mach.Panic(ErrNegativeSectionLength)
		}

		block.planned = true

		if status == ExecDone {
			group.state = GroupDone
		}
		bf.bufferState = BufferPlanned
		return ExecDone, nil
	}

	// We did nothing.
	return ExecNoop, nil
}

// checkGroupChanges detects a pending extension or exit-velocity change on
// a group and attempts to apply it.
func (e *Engine) checkGroupChanges(group *groupRuntime, groupExtended, velocityChanged *bool) error {
	if group.firstBlock == noBlock {
		return nil
	}
	first := e.queue.get(group.firstBlock)

	if !utils.ApproxGE(group.length, first.groupLength) {
		*groupExtended = true
	}

	// The back-planner may be interrupted by exec, leaving the exit above
	// the limits exec set. Correct that race before continuing.
	if first.exitVelocity > first.exitVmax {
		first.exitVelocity = first.exitVmax
	}

	if !utils.ApproxGE(group.exitVelocity, first.exitVelocity) {
		*velocityChanged = true
	}

	return e.attemptExtension(group, groupExtended, velocityChanged)
}

// attemptExtension applies a group extension and/or exit velocity change.
// On failure both flags are cleared (or a fatal error raised).
//
// The group may be in one of a few places: still waiting for its head to be
// handed out, mid-body (partial reset), or in its tail, in which case no
// change can be attempted.
func (e *Engine) attemptExtension(group *groupRuntime, groupExtended, velocityChanged *bool) error {
	if !*groupExtended && !*velocityChanged {
		return nil
	}
	mr := e.mr
	first := e.queue.get(group.firstBlock)

	if mr.isRunGroup(group) && mr.section == SectionTail {
		if *groupExtended {
			// The move cannot be stretched once it is decelerating; it
			// would have to be split, which this planner does not do.
			return e.mach.Panic(ErrGroupExtendInTail)
		}
		// Play the tail out as planned.
		*velocityChanged = false
		return nil
	}

	if utils.ApproxNE(first.exitVelocity, group.cruiseVelocity) {
		// The group will keep a tail. Watch for the inversion case, where a
		// smaller velocity change takes *longer* to decelerate; quintics
		// are weird.
		tailLength := targetLength(first.exitVelocity, group.cruiseVelocity, first)

		if *groupExtended && mr.isRunGroup(group) && mr.section == SectionBody {
			// An extension cannot shrink the body below what has already
			// been handed to the steppers.
			newBody := first.groupLength - (tailLength + group.headLength)
			executedBody := group.completedBodyLength + mr.executedBodyLength
			if newBody < executedBody {
				return e.mach.Panic(ErrBodyShrunkPastExecuted)
			}
		}

		if *groupExtended || !mr.isRunGroup(group) || tailLength < group.tailLength {
			if *groupExtended {
				group.length = first.groupLength
			}
			group.exitVelocity = first.exitVelocity
			group.tailLength = tailLength
			group.bodyLength = group.length - (group.tailLength + group.headLength)
			group.bodyTime = group.bodyLength / group.cruiseVelocity
			group.tailTime = (group.tailLength * 2.0) / (group.exitVelocity + group.cruiseVelocity)
		} else {
			// Inversion zone on a pure exit-velocity upgrade: accepting it
			// would lengthen the tail and shorten the body. Put the exit
			// back so we don't keep coming back in here.
			first.exitVelocity = group.exitVelocity
			*velocityChanged = false
		}
	} else {
		// The group cruises to its end.
		if *groupExtended {
			group.length = first.groupLength
		}
		group.exitVelocity = group.cruiseVelocity
		group.bodyLength = group.length - group.headLength
		group.bodyTime = group.bodyLength / group.cruiseVelocity
		group.tailLength = 0
		group.tailTime = 0
	}

	if *groupExtended || *velocityChanged {
		group.state = GroupRamped
		group.lengthIntoSection = 0
		group.tIntoSection = 0

		// Running buffers replan implicitly; Planned ones must drop back to
		// Prepped.
		if first.bufferState == BufferPlanned {
			first.bufferState = BufferPrepped
		}

		// If the next move is planned already, force it to replan too.
		nx := e.queue.get(first.nx)
		if nx.bufferState == BufferPlanned {
			nx.bufferState = BufferPrepped
			if mr.isRunGroup(group) {
				// That plan came from the planning group; it must re-ramp.
				mr.pGroup().state = GroupOff
			}
		}

		if group.headLength < 0 || group.bodyLength < 0 || group.tailLength < 0 {
			return e.mach.Panic(ErrNegativeSectionLength)
		}
	}
	return nil
}
