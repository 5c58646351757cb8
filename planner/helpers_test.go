package planner

import (
	"testing"

	"go.viam.com/test"

	"go.viam.com/motioncore/config"
	"go.viam.com/motioncore/encoder"
	"go.viam.com/motioncore/kinematics"
	"go.viam.com/motioncore/logging"
	"go.viam.com/motioncore/machine"
	"go.viam.com/motioncore/stepper"
)

// testRig wires an engine to a recorder with 1 step/mm on every motor so
// recorded travel steps read directly as distance.
type testRig struct {
	t    *testing.T
	eng  *Engine
	rec  *stepper.Recorder
	mach *machine.Machine
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	logger := logging.NewTestLogger(t)

	cfg := config.DefaultMotion()
	cfg.StepsPerMM = []float64{1, 1, 1, 1, 1, 1}

	kin, err := kinematics.NewCartesian(cfg, logger)
	test.That(t, err, test.ShouldBeNil)

	rec := stepper.NewRecorder(NumMotors)
	enc := encoder.Source(func(motor int) float64 {
		return rec.StepPositionAgo(motor, 1)
	})
	mach := machine.New(logger)
	eng := NewEngine(SettingsFromConfig(cfg), rec, kin, enc, mach, logger)
	return &testRig{t: t, eng: eng, rec: rec, mach: mach}
}

// step runs one scheduler tick the way the interrupt nest would: executor
// first, then drain planner requests.
func (rig *testRig) step() {
	rig.t.Helper()
	rig.rec.Advance(1)
	_, err := rig.eng.ExecMove()
	test.That(rig.t, err, test.ShouldBeNil)
	for rig.rec.TakePlanRequest() {
		_, err := rig.eng.PlanMove()
		test.That(rig.t, err, test.ShouldBeNil)
	}
	rig.rec.TakeExecRequest()
	rig.checkBufferStates()
}

// drain steps until the queue empties and motion stops.
func (rig *testRig) drain(maxSteps int) {
	rig.t.Helper()
	for i := 0; i < maxSteps; i++ {
		rig.step()
		if rig.eng.Queue().Len() == 0 && rig.mach.MotionState() != machine.MotionRun {
			return
		}
	}
	rig.t.Fatalf("pipeline did not drain in %d steps", maxSteps)
}

// stepUntil steps until cond holds.
func (rig *testRig) stepUntil(maxSteps int, cond func() bool) {
	rig.t.Helper()
	for i := 0; i < maxSteps; i++ {
		if cond() {
			return
		}
		rig.step()
	}
	rig.t.Fatalf("condition not reached in %d steps", maxSteps)
}

// checkBufferStates asserts the queue-wide buffer state invariants: at most
// one Running and at most one Planned entry.
func (rig *testRig) checkBufferStates() {
	rig.t.Helper()
	running, planned := 0, 0
	for i := range rig.eng.queue.blocks {
		switch rig.eng.queue.blocks[i].bufferState {
		case BufferRunning:
			running++
		case BufferPlanned:
			planned++
		}
	}
	if running > 1 || planned > 1 {
		rig.t.Fatalf("buffer state invariant broken: %d running, %d planned", running, planned)
	}
}

// lineTo queues a straight X-axis move.
func (rig *testRig) lineTo(x, feed, jerk float64) {
	rig.t.Helper()
	var target [NumAxes]float64
	target[0] = x
	err := rig.eng.AppendALine(ALineRequest{Target: target, FeedRate: feed, Jerk: jerk})
	test.That(rig.t, err, test.ShouldBeNil)
}

// stageMove bypasses the planner: it queues a block already marked Planned
// with the given runtime in the planning slot, for driving the executor
// with exact section values.
func (rig *testRig) stageMove(length, entryVelocity float64, blk blockRuntime) *Block {
	rig.t.Helper()
	bf := rig.eng.queue.writeBuffer()
	test.That(rig.t, bf, test.ShouldNotBeNil)
	bf.moveType = MoveTypeALine
	bf.length = length
	bf.groupLength = length
	bf.unit[0] = 1
	pos := rig.eng.Position()
	bf.target = pos
	bf.target[0] += length
	bf.axisFlags[0] = true
	bf.setJerk(1e6)
	bf.cruiseVmax = blk.cruiseVelocity
	bf.cruiseVelocity = blk.cruiseVelocity
	bf.exitVmax = blk.exitVelocity
	bf.exitVelocity = blk.exitVelocity
	bf.moveTime = blk.headTime + blk.bodyTime + blk.tailTime
	bf.plannable = true
	rig.eng.queue.commitWriteBuffer()
	bf.bufferState = BufferPlanned

	*rig.eng.mr.p() = blk
	rig.eng.mr.p().planned = true
	rig.eng.mr.entryVelocity = entryVelocity
	return bf
}

// segmentDistance sums the motor-0 travel of all recorded segments.
func (rig *testRig) segmentDistance() float64 {
	var total float64
	for _, seg := range rig.rec.Segments() {
		total += seg.Travel[0]
	}
	return total
}
