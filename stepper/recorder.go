package stepper

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// Segment is one recorded PrepLine call.
type Segment struct {
	Travel         []float64
	FollowingError []float64
	Time           float64
}

// Recorder implements Prep by recording everything the executor emits. It
// stands in for the DDA in tests and in the host-side simulator: prepped
// segments pile up as pending and Advance drains them, modeling the stepper
// consuming its load.
type Recorder struct {
	mu           sync.Mutex
	segments     []Segment
	stepPosition []float64
	// history[k] is the absolute step position after segment k, kept so a
	// simulated encoder can read with pipeline-aligned lag.
	history [][]float64
	pending int
	nulls   int

	execRequested atomic.Bool
	planRequested atomic.Bool
	velocityZero  atomic.Bool

	failNext error
}

// NewRecorder returns a Recorder for the given number of motors.
func NewRecorder(motors int) *Recorder {
	return &Recorder{stepPosition: make([]float64, motors)}
}

// PrepLine records the segment and advances the absolute step position.
func (r *Recorder) PrepLine(travelSteps, followingError []float64, segmentTime float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	if len(travelSteps) != len(r.stepPosition) {
		return errors.Errorf("prep got %d motors, recorder has %d", len(travelSteps), len(r.stepPosition))
	}
	seg := Segment{
		Travel:         append([]float64(nil), travelSteps...),
		FollowingError: append([]float64(nil), followingError...),
		Time:           segmentTime,
	}
	for m, travel := range travelSteps {
		r.stepPosition[m] += travel
	}
	r.segments = append(r.segments, seg)
	r.history = append(r.history, append([]float64(nil), r.stepPosition...))
	r.pending++
	return nil
}

// PrepNull records that the executor had nothing to load.
func (r *Recorder) PrepNull() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nulls++
}

// RequestExec latches an exec request.
func (r *Recorder) RequestExec() { r.execRequested.Store(true) }

// RequestPlan latches a plan request.
func (r *Recorder) RequestPlan() { r.planRequested.Store(true) }

// TakeExecRequest consumes a pending exec request.
func (r *Recorder) TakeExecRequest() bool { return r.execRequested.Swap(false) }

// TakePlanRequest consumes a pending plan request.
func (r *Recorder) TakePlanRequest() bool { return r.planRequested.Swap(false) }

// RuntimeIsIdle reports whether all prepped segments have drained.
func (r *Recorder) RuntimeIsIdle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending == 0
}

// ZeroSegmentVelocity latches the report-velocity-zero signal.
func (r *Recorder) ZeroSegmentVelocity() { r.velocityZero.Store(true) }

// VelocityZeroed reports whether ZeroSegmentVelocity has been called.
func (r *Recorder) VelocityZeroed() bool { return r.velocityZero.Load() }

// Advance drains up to n pending segments, as the DDA would.
func (r *Recorder) Advance(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending -= n
	if r.pending < 0 {
		r.pending = 0
	}
}

// FailNextPrep makes the next PrepLine return err, for error-path tests.
func (r *Recorder) FailNextPrep(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = err
}

// Segments returns a copy of all recorded segments.
func (r *Recorder) Segments() []Segment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Segment(nil), r.segments...)
}

// Nulls returns how many times PrepNull was called.
func (r *Recorder) Nulls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nulls
}

// StepPosition returns the current absolute step position of a motor.
func (r *Recorder) StepPosition(motor int) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stepPosition[motor]
}

// StepPositionAgo returns the absolute step position of a motor as of `lag`
// segments ago. With no history it returns zero.
func (r *Recorder) StepPositionAgo(motor, lag int) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := len(r.history) - 1 - lag
	if idx < 0 {
		return 0
	}
	return r.history[idx][motor]
}

// TotalTime sums the durations of all recorded segments.
func (r *Recorder) TotalTime() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total float64
	for _, seg := range r.segments {
		total += seg.Time
	}
	return total
}
