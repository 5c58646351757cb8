package planner

import (
	"math"
	"testing"

	"go.viam.com/test"

	"go.viam.com/motioncore/machine"
)

func TestExecSymmetricTrapezoid(t *testing.T) {
	rig := newTestRig(t)
	rig.lineTo(10, 100, 1e6)
	rig.drain(200)

	segments := rig.rec.Segments()
	// head and tail are 1mm each (0.02s -> 4 segments at 5ms), the 8mm body
	// cruises for 0.08s -> 16 segments. Segment counts are ceilings of float
	// ratios, so allow one extra per section.
	test.That(t, len(segments), test.ShouldBeBetweenOrEqual, 24, 27)

	// The segment stream integrates to the move length.
	test.That(t, rig.segmentDistance(), test.ShouldAlmostEqual, 10, 1e-4)
	// Waypoint snapping makes the final position exact.
	test.That(t, rig.eng.Position()[0], test.ShouldAlmostEqual, 10, 1e-9)

	// Each segment's velocity stays within the planned cruise.
	for _, seg := range segments {
		v := seg.Travel[0] / seg.Time
		test.That(t, v, test.ShouldBeGreaterThan, 0)
		test.That(t, v, test.ShouldBeLessThan, 100+1e-6)
	}
	// Cruise segments run at the cruise velocity.
	mid := segments[len(segments)/2]
	test.That(t, mid.Travel[0]/mid.Time, test.ShouldAlmostEqual, 100, 1e-6)

	test.That(t, rig.mach.MotionState(), test.ShouldEqual, machine.MotionStop)
}

func TestExecVelocityOrderingInvariant(t *testing.T) {
	rig := newTestRig(t)
	rig.lineTo(5, 80, 1e6)
	// Degenerate requests are rejected at the queue edge.
	test.That(t, rig.eng.AppendALine(ALineRequest{}), test.ShouldNotBeNil)

	for i := 0; i < 200; i++ {
		rig.step()
		r := rig.eng.mr.r()
		if rig.eng.mr.moveState != MoveOff {
			test.That(t, rig.eng.mr.entryVelocity, test.ShouldBeLessThanOrEqualTo, r.cruiseVelocity+1e-6)
			test.That(t, r.exitVelocity, test.ShouldBeLessThanOrEqualTo, r.cruiseVelocity+1e-6)
			test.That(t, r.headLength, test.ShouldBeGreaterThanOrEqualTo, 0)
			test.That(t, r.bodyLength, test.ShouldBeGreaterThanOrEqualTo, 0)
			test.That(t, r.tailLength, test.ShouldBeGreaterThanOrEqualTo, 0)
		}
		if rig.eng.Queue().Len() == 0 && rig.mach.MotionState() != machine.MotionRun {
			break
		}
	}
	test.That(t, rig.eng.Queue().Len(), test.ShouldEqual, 0)
}

func TestExecHeadOnlyMove(t *testing.T) {
	// entry = 0, exit = cruise = 100, length exactly the 0->100 ramp: the
	// whole move is head.
	rig := newTestRig(t)
	jerkBlock := rampBlock(1e6)
	length := targetLength(0, 100, jerkBlock)
	headTime := 2 * length / 100

	rig.stageMove(length, 0, blockRuntime{
		headLength:     length,
		headTime:       headTime,
		cruiseVelocity: 100,
		exitVelocity:   100,
	})
	rig.drain(100)

	wantSegments := int(math.Ceil(headTime / rig.eng.cfg.NomSegmentTime))
	test.That(t, len(rig.rec.Segments()), test.ShouldEqual, wantSegments)
	test.That(t, rig.eng.Position()[0], test.ShouldAlmostEqual, length, 1e-9)
	// The exit velocity feeds the next move's entry.
	test.That(t, rig.eng.mr.entryVelocity, test.ShouldAlmostEqual, 100, 1e-9)
}

func TestExecShortHeadMergesIntoBody(t *testing.T) {
	// A head shorter than the minimum segment time dissolves into the body;
	// total length and the arrival position are preserved.
	rig := newTestRig(t)
	minTime := rig.eng.cfg.MinSegmentTime

	headTime := minTime / 2
	headLength := 100 * headTime / 2 // rough ramp length at cruise 100
	bodyLength := 5.0

	rig.stageMove(headLength+bodyLength, 99.0, blockRuntime{
		headLength:     headLength,
		headTime:       headTime,
		bodyLength:     bodyLength,
		bodyTime:       bodyLength / 100,
		cruiseVelocity: 100,
		exitVelocity:   100,
	})

	// One step starts the move and runs the first segment.
	rig.step()
	r := rig.eng.mr.r()
	test.That(t, r.headLength, test.ShouldEqual, 0)
	test.That(t, r.headTime, test.ShouldEqual, 0)
	test.That(t, r.bodyLength, test.ShouldAlmostEqual, headLength+bodyLength, 1e-9)

	rig.drain(100)
	test.That(t, rig.eng.Position()[0], test.ShouldAlmostEqual, headLength+bodyLength, 1e-9)
}

func TestExecShortBodySplitsIntoRamps(t *testing.T) {
	// A too-brief body between a real head and tail is split across them.
	rig := newTestRig(t)
	minTime := rig.eng.cfg.MinSegmentTime
	jerkBlock := rampBlock(1e6)

	head := targetLength(0, 100, jerkBlock)
	tail := targetLength(0, 100, jerkBlock)
	body := 100 * minTime / 4 // bodyTime = minTime/4

	rig.stageMove(head+body+tail, 0, blockRuntime{
		headLength:     head,
		headTime:       2 * head / 100,
		bodyLength:     body,
		bodyTime:       body / 100,
		tailLength:     tail,
		tailTime:       2 * tail / 100,
		cruiseVelocity: 100,
		exitVelocity:   0,
	})

	rig.step()
	r := rig.eng.mr.r()
	test.That(t, r.bodyLength, test.ShouldEqual, 0)
	test.That(t, r.headLength, test.ShouldAlmostEqual, head+body/2, 1e-9)
	test.That(t, r.tailLength, test.ShouldAlmostEqual, tail+body/2, 1e-9)

	rig.drain(100)
	test.That(t, rig.eng.Position()[0], test.ShouldAlmostEqual, head+body+tail, 1e-9)
}

func TestExecPartialRemnantBodyIsDropped(t *testing.T) {
	// With the partial-section sentinel set, a too-brief body cannot merge
	// into the ramps and is dropped; the encoders absorb the difference.
	rig := newTestRig(t)
	minTime := rig.eng.cfg.MinSegmentTime
	jerkBlock := rampBlock(1e6)

	head := targetLength(0, 100, jerkBlock)
	body := 100 * minTime / 4

	rig.stageMove(head+body, 0, blockRuntime{
		headLength:     head,
		headTime:       2 * head / 100,
		bodyLength:     body,
		bodyTime:       body / 100,
		cruiseVelocity: 100,
		exitVelocity:   100,
		cruiseJerk:     1e6, // partial head/tail remnant
	})

	rig.step()
	r := rig.eng.mr.r()
	test.That(t, r.bodyLength, test.ShouldEqual, 0)
	test.That(t, r.headLength, test.ShouldAlmostEqual, head, 1e-9)
	rig.drain(100)
}

func TestExecRepeatedBlockProducesIdenticalSegments(t *testing.T) {
	// Feeding the same block twice in succession produces identical
	// segment sequences given identical entry velocity.
	run := func() []float64 {
		rig := newTestRig(t)
		rig.lineTo(10, 100, 1e6)
		rig.drain(200)
		var out []float64
		for _, seg := range rig.rec.Segments() {
			out = append(out, seg.Travel[0], seg.Time)
		}
		return out
	}

	first := run()
	second := run()
	test.That(t, len(first), test.ShouldEqual, len(second))
	for i := range first {
		test.That(t, second[i], test.ShouldAlmostEqual, first[i], 1e-12)
	}
}

func TestExecBackToBackMoves(t *testing.T) {
	// Two non-co-linear moves run as separate groups; the junction between
	// them comes to a velocity the second move can enter with.
	rig := newTestRig(t)
	rig.lineTo(10, 100, 1e6)
	var target [NumAxes]float64
	target[0] = 10
	target[1] = 10
	err := rig.eng.AppendALine(ALineRequest{Target: target, FeedRate: 100, Jerk: 1e6})
	test.That(t, err, test.ShouldBeNil)

	rig.drain(400)
	pos := rig.eng.Position()
	test.That(t, pos[0], test.ShouldAlmostEqual, 10, 1e-6)
	test.That(t, pos[1], test.ShouldAlmostEqual, 10, 1e-6)
}

func TestExecDwellAndCommand(t *testing.T) {
	rig := newTestRig(t)
	ran := false
	test.That(t, rig.eng.AppendCommand(func() { ran = true }), test.ShouldBeNil)
	test.That(t, rig.eng.AppendDwell(0.05), test.ShouldBeNil)
	rig.lineTo(2, 100, 1e6)
	rig.drain(200)

	test.That(t, ran, test.ShouldBeTrue)
	segments := rig.rec.Segments()
	// The dwell contributes one zero-travel segment of its full duration.
	var sawDwell bool
	for _, seg := range segments {
		if seg.Time == 0.05 && seg.Travel[0] == 0 {
			sawDwell = true
		}
	}
	test.That(t, sawDwell, test.ShouldBeTrue)
	test.That(t, rig.eng.Position()[0], test.ShouldAlmostEqual, 2, 1e-9)
}

func TestExecSegmentCountReachesZeroOncePerSection(t *testing.T) {
	rig := newTestRig(t)
	rig.lineTo(10, 100, 1e6)

	zeroCrossings := 0
	var lastCount uint32
	for i := 0; i < 200; i++ {
		rig.step()
		if rig.eng.mr.segmentCount == 0 && lastCount != 0 {
			zeroCrossings++
		}
		lastCount = rig.eng.mr.segmentCount
		if rig.eng.Queue().Len() == 0 && rig.mach.MotionState() != machine.MotionRun {
			break
		}
	}
	// Three sections, three completions.
	test.That(t, zeroCrossings, test.ShouldEqual, 3)
}
