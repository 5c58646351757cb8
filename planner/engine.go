package planner

import (
	"math"

	"github.com/pkg/errors"

	"go.viam.com/motioncore/encoder"
	"go.viam.com/motioncore/kinematics"
	"go.viam.com/motioncore/logging"
	"go.viam.com/motioncore/machine"
	"go.viam.com/motioncore/stepper"
	"go.viam.com/motioncore/utils"
)

// colinearity threshold for joining two blocks into one group.
const groupColinearCos = 0.999999

// Engine owns the buffer ring, the motion runtime and the collaborator
// interfaces, and exposes the two "interrupt" entry points ExecMove and
// PlanMove plus the queue-side loader.
type Engine struct {
	cfg    Settings
	logger logging.Logger

	queue *Queue
	mr    *motionRuntime

	prep stepper.Prep
	kin  kinematics.InverseKinematics
	enc  encoder.Encoder
	mach *machine.Machine

	// Loader state: the last committed target and the open group accumulator.
	loadTarget     [NumAxes]float64
	lastALine      uint16
	groupFirst     uint16
	haveOpenALine  bool
	haveOpenGroup  bool
}

// NewEngine wires an execution pipeline.
func NewEngine(
	cfg Settings,
	prep stepper.Prep,
	kin kinematics.InverseKinematics,
	enc encoder.Encoder,
	mach *machine.Machine,
	logger logging.Logger,
) *Engine {
	return &Engine{
		cfg:    cfg,
		logger: logger,
		queue:  newQueue(cfg.QueueSize),
		mr:     newMotionRuntime(),
		prep:   prep,
		kin:    kin,
		enc:    enc,
		mach:   mach,
	}
}

// Queue exposes the buffer ring.
func (e *Engine) Queue() *Queue { return e.queue }

// Position returns the runtime's current axis-space position.
func (e *Engine) Position() [NumAxes]float64 { return e.mr.Position() }

// SegmentVelocity returns the velocity of the most recent segment.
func (e *Engine) SegmentVelocity() float64 { return e.mr.segmentVelocity }

// SetPosition seeds the runtime and loader position, e.g. after homing.
func (e *Engine) SetPosition(position [NumAxes]float64) {
	e.mr.position = position
	e.loadTarget = position
}

// ALineRequest describes one straight-line move to queue.
type ALineRequest struct {
	// Target is the absolute axis-space end position.
	Target [NumAxes]float64
	// FeedRate is the requested cruise velocity limit.
	FeedRate float64
	// Jerk is the jerk limit for the move.
	Jerk float64
}

// AppendALine queues an acceleration-managed line. Consecutive co-linear
// requests with matching jerk and feed rate are chained into one group so the executor can
// run them under a single head/body/tail ramp.
func (e *Engine) AppendALine(req ALineRequest) error {
	if req.FeedRate <= 0 {
		return errors.New("feed rate must be positive")
	}
	if req.Jerk <= 0 {
		return errors.New("jerk must be positive")
	}

	var unit [NumAxes]float64
	var lengthSq float64
	for a := 0; a < NumAxes; a++ {
		d := req.Target[a] - e.loadTarget[a]
		unit[a] = d
		lengthSq += d * d
	}
	length := math.Sqrt(lengthSq)
	if utils.ApproxZero(length) {
		return errors.New("zero length move")
	}
	for a := 0; a < NumAxes; a++ {
		unit[a] /= length
	}

	bf := e.queue.writeBuffer()
	if bf == nil {
		return ErrQueueFull
	}

	bf.moveType = MoveTypeALine
	bf.length = length
	bf.groupLength = length
	bf.nxGroup = bf.nx
	bf.pvGroup = bf.pv
	bf.unit = unit
	bf.target = req.Target
	for a := 0; a < NumAxes; a++ {
		bf.axisFlags[a] = !utils.ApproxZero(unit[a])
	}
	bf.setJerk(req.Jerk)
	bf.cruiseVmax = req.FeedRate
	bf.cruiseVelocity = req.FeedRate
	// Until a following move proves otherwise, the queue tail stops.
	bf.exitVmax = 0
	bf.exitVelocity = 0
	bf.moveTime = e.estimateMoveTime(length, req.FeedRate, req.Jerk)
	bf.plannable = true

	joined := false
	if e.haveOpenALine {
		// A block stays extendable while it is plannable, even once it is
		// running; plannable goes false at the tail or near the body's end.
		prev := e.queue.get(e.lastALine)
		if prev.bufferState != BufferEmpty && prev.plannable &&
			prev.moveType == MoveTypeALine {
			joined = e.tryJoinGroup(prev, bf)
			if !joined {
				// Raise the junction: the previous group may now exit at the
				// slower of the two cruise limits. The group's exit velocity
				// lives on its first block, where the planner reads it.
				junction := math.Min(prev.cruiseVmax, req.FeedRate)
				first := prev
				if e.haveOpenGroup {
					if f := e.queue.get(e.groupFirst); f.bufferState != BufferEmpty {
						first = f
					}
				}
				if first.plannable {
					first.exitVmax = junction
					first.exitVelocity = junction
				}
			}
		}
	}
	if !joined {
		e.groupFirst = bf.idx
		e.haveOpenGroup = true
	}

	e.loadTarget = req.Target
	e.lastALine = bf.idx
	e.haveOpenALine = true
	e.queue.commitWriteBuffer()
	e.prep.RequestExec()
	return nil
}

// tryJoinGroup extends the open group with bf when the path is co-linear
// and the jerk and cruise limit match. Returns whether the block joined.
func (e *Engine) tryJoinGroup(prev, bf *Block) bool {
	if !e.haveOpenGroup {
		return false
	}
	first := e.queue.get(e.groupFirst)
	if first.bufferState == BufferEmpty || !first.plannable {
		return false
	}
	if utils.ApproxNE(prev.jerk, bf.jerk) {
		return false
	}
	// One ramp means one cruise: a feed change breaks the group.
	if utils.ApproxNE(first.cruiseVmax, bf.cruiseVmax) {
		return false
	}
	var dot float64
	for a := 0; a < NumAxes; a++ {
		dot += prev.unit[a] * bf.unit[a]
	}
	if dot < groupColinearCos {
		return false
	}

	total := first.groupLength + bf.length
	for idx := e.groupFirst; ; {
		member := e.queue.get(idx)
		member.groupLength = total
		member.nxGroup = bf.nx
		if idx == bf.idx {
			break
		}
		idx = member.nx
	}
	bf.pvGroup = bf.pv
	// The group's exit is unchanged: it still ends wherever the new last
	// block ends, which for the queue tail is a stop.
	return true
}

// AppendDwell queues a timed pause.
func (e *Engine) AppendDwell(seconds float64) error {
	if seconds <= 0 {
		return errors.New("dwell must be positive")
	}
	bf := e.queue.writeBuffer()
	if bf == nil {
		return ErrQueueFull
	}
	bf.moveType = MoveTypeDwell
	bf.dwellTime = seconds
	bf.moveTime = seconds
	bf.target = e.loadTarget
	e.haveOpenGroup = false
	e.haveOpenALine = false
	e.queue.commitWriteBuffer()
	e.prep.RequestExec()
	return nil
}

// AppendCommand queues a synchronous command callback.
func (e *Engine) AppendCommand(command func()) error {
	if command == nil {
		return errors.New("command must not be nil")
	}
	bf := e.queue.writeBuffer()
	if bf == nil {
		return ErrQueueFull
	}
	bf.moveType = MoveTypeCommand
	bf.command = command
	bf.target = e.loadTarget
	e.haveOpenGroup = false
	e.haveOpenALine = false
	e.queue.commitWriteBuffer()
	e.prep.RequestExec()
	return nil
}

// estimateMoveTime is the loader's coarse duration estimate used for the
// queue's remaining-time accounting.
func (e *Engine) estimateMoveTime(length, feedRate, jerk float64) float64 {
	rampTime := 2 * math.Sqrt(feedRate/jerk)
	return length/feedRate + rampTime
}
