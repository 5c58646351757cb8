package planner

import (
	"math"

	"go.viam.com/motioncore/utils"
)

// targetLength returns the distance needed to change velocity from v0 to v1
// under the block's jerk limit:
//
//	L = (v0 + v1) * sqrt(|v1 - v0| / j)
func targetLength(v0, v1 float64, bf *Block) float64 {
	return (v0 + v1) * math.Sqrt(math.Abs(v1-v0)*bf.recipJerk)
}

// targetVelocity returns the velocity reachable from vi over length under
// the block's jerk limit; the inverse of targetLength in its upper branch.
// For vi == 0 it has the closed form (L^2 * j)^(1/3); otherwise the root is
// bracketed and bisected, which is cheap and has no convergence corners.
func targetVelocity(vi, length float64, bf *Block) float64 {
	if length <= 0 {
		return vi
	}
	if utils.ApproxZero(vi) {
		return math.Cbrt(length * length * bf.jerk)
	}
	lo := vi
	hi := vi + math.Cbrt(length*length*bf.jerk)
	for i := 0; i < 48; i++ {
		mid := (lo + hi) / 2
		if targetLength(vi, mid, bf) < length {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

// solveExitVelocity returns the lowest velocity reachable when decelerating
// from vBig over length: the v in [0, vBig] with targetLength(v, vBig) ==
// length. If a full stop fits in the length the answer is zero.
func solveExitVelocity(vBig, length float64, bf *Block) float64 {
	if length <= 0 {
		return vBig
	}
	if targetLength(0, vBig, bf) <= length {
		return 0
	}
	lo, hi := 0.0, vBig
	for i := 0; i < 48; i++ {
		mid := (lo + hi) / 2
		// targetLength rises for exits below vBig/3 and falls above it; every
		// exit below the root needs more than a full stop, which is more than
		// length here, so the comparison flips exactly once.
		if targetLength(mid, vBig, bf) > length {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

// calculateRamps plans the head/body/tail ramp of a group: given the entry
// velocity and the first block's velocity limits, it fills the group's
// section lengths, times and boundary velocities. Boundary accelerations
// and jerks are zero; sections always ramp entry->cruise and cruise->exit.
func calculateRamps(bf *Block, g *groupRuntime, entryVelocity float64) {
	length := bf.groupLength

	cruise := bf.cruiseVmax
	if cruise < entryVelocity {
		// A forced deceleration: cruise pins to the entry and the whole
		// move is tail.
		cruise = entryVelocity
	}
	exit := bf.exitVelocity
	if exit > bf.exitVmax {
		exit = bf.exitVmax
	}
	if exit > cruise {
		exit = cruise
	}

	head := targetLength(entryVelocity, cruise, bf)
	tail := targetLength(exit, cruise, bf)

	if head+tail > length {
		floor := math.Max(entryVelocity, exit)
		if targetLength(entryVelocity, floor, bf)+targetLength(exit, floor, bf) > length {
			// The ramp cannot fit even without a cruise plateau; the move is
			// a single ramp and the exit has to give.
			if exit >= entryVelocity {
				exit = targetVelocity(entryVelocity, length, bf)
				cruise = exit
				head, tail = length, 0
			} else {
				exit = solveExitVelocity(entryVelocity, length, bf)
				cruise = entryVelocity
				head, tail = 0, length
			}
		} else {
			// Bisect the highest cruise whose ramps fit in the length.
			lo, hi := floor, cruise
			for i := 0; i < 48; i++ {
				mid := (lo + hi) / 2
				if targetLength(entryVelocity, mid, bf)+targetLength(exit, mid, bf) <= length {
					lo = mid
				} else {
					hi = mid
				}
			}
			cruise = lo
			head = targetLength(entryVelocity, cruise, bf)
			tail = targetLength(exit, cruise, bf)
		}
	}

	body := length - (head + tail)
	if body < 0 {
		// Bisection residue only.
		body = 0
	}

	g.headLength = head
	g.bodyLength = body
	g.tailLength = tail
	g.cruiseVelocity = cruise
	g.exitVelocity = exit
	g.cruiseAcceleration = 0
	g.exitAcceleration = 0
	g.cruiseJerk = 0
	g.exitJerk = 0

	if cruise > 0 {
		g.bodyTime = body / cruise
	} else {
		g.bodyTime = 0
	}
	if exit+cruise > 0 {
		g.tailTime = (tail * 2.0) / (exit + cruise)
	} else {
		g.tailTime = 0
	}
}

// calculateBlock disperses the group's head/body/tail onto one member
// block's runtime. It walks the block's length through the group's sections
// in order, carrying the dispersal cursor in the group state, and returns
// ExecAgain while the group has more blocks or ExecDone when this block
// consumes the last of it.
//
// Section splits across block boundaries are velocity-chained with
// targetVelocity, which lands exactly on cruise/exit at section ends; a
// block holding a partial head or tail gets the block jerk stored in
// cruiseJerk as the partial-section sentinel.
func calculateBlock(bf *Block, g *groupRuntime, blk *blockRuntime, entryVelocity, entryAcceleration, entryJerk float64) ExecResult {
	blk.headLength, blk.bodyLength, blk.tailLength = 0, 0, 0
	blk.headTime, blk.bodyTime, blk.tailTime = 0, 0, 0
	blk.cruiseVelocity = g.cruiseVelocity
	blk.cruiseAcceleration = 0
	blk.cruiseJerk = 0
	blk.exitAcceleration = 0
	blk.exitJerk = 0

	if g.state == GroupRamped {
		g.state = GroupHead
		g.lengthIntoSection = 0
		g.tIntoSection = 0
	}

	remaining := bf.length
	cursorV := entryVelocity
	exitV := entryVelocity
	partial := false

	for remaining > utils.Epsilon {
		switch g.state {
		case GroupHead:
			avail := g.headLength - g.lengthIntoSection
			if avail <= utils.Epsilon {
				g.state = GroupBody
				g.lengthIntoSection = 0
				continue
			}
			take := math.Min(avail, remaining)
			startV := cursorV
			blk.headLength += take
			g.lengthIntoSection += take
			remaining -= take
			if g.headLength-g.lengthIntoSection <= utils.Epsilon {
				cursorV = g.cruiseVelocity
				g.state = GroupBody
				g.lengthIntoSection = 0
			} else {
				cursorV = math.Min(targetVelocity(startV, take, bf), g.cruiseVelocity)
				partial = true
			}
			blk.headTime += (take * 2.0) / (startV + cursorV)
			exitV = cursorV

		case GroupBody:
			avail := g.bodyLength - g.lengthIntoSection
			if avail <= utils.Epsilon {
				g.state = GroupTail
				g.lengthIntoSection = 0
				continue
			}
			take := math.Min(avail, remaining)
			blk.bodyLength += take
			g.lengthIntoSection += take
			remaining -= take
			cursorV = g.cruiseVelocity
			if g.bodyLength-g.lengthIntoSection <= utils.Epsilon {
				g.state = GroupTail
				g.lengthIntoSection = 0
			}
			blk.bodyTime += take / g.cruiseVelocity
			exitV = cursorV

		case GroupTail:
			avail := g.tailLength - g.lengthIntoSection
			if avail <= utils.Epsilon {
				// Group exhausted with block length left over; fold the
				// residue into the tail to conserve length.
				blk.tailLength += remaining
				remaining = 0
				exitV = g.exitVelocity
				continue
			}
			take := math.Min(avail, remaining)
			startV := cursorV
			blk.tailLength += take
			g.lengthIntoSection += take
			remaining -= take
			if g.tailLength-g.lengthIntoSection <= utils.Epsilon {
				cursorV = g.exitVelocity
				g.lengthIntoSection = g.tailLength
			} else {
				after := g.tailLength - g.lengthIntoSection
				cursorV = math.Max(targetVelocity(g.exitVelocity, after, bf), g.exitVelocity)
				cursorV = math.Min(cursorV, g.cruiseVelocity)
				partial = true
			}
			blk.tailTime += (take * 2.0) / (startV + cursorV)
			exitV = cursorV

		default:
			// GroupOff/GroupDone cannot legally reach the dispersal walk;
			// treat as exhausted.
			remaining = 0
		}
	}

	blk.exitVelocity = exitV
	if blk.exitVelocity > blk.cruiseVelocity {
		blk.exitVelocity = blk.cruiseVelocity
	}
	if partial {
		blk.cruiseJerk = bf.jerk
	}

	if g.state == GroupTail && g.tailLength-g.lengthIntoSection <= utils.Epsilon {
		return ExecDone
	}
	if g.state == GroupBody && utils.ApproxZero(g.tailLength) && g.bodyLength-g.lengthIntoSection <= utils.Epsilon {
		return ExecDone
	}
	if g.state == GroupHead && utils.ApproxZero(g.tailLength) && utils.ApproxZero(g.bodyLength) &&
		g.headLength-g.lengthIntoSection <= utils.Epsilon {
		return ExecDone
	}
	return ExecAgain
}
