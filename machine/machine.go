// Package machine owns the top-level motion and feedhold state of the
// controller. It is the piece the execution pipeline reports into and reads
// its run/hold gating from; everything above it (G-code parsing, host I/O)
// is out of scope.
package machine

import (
	"go.uber.org/atomic"

	"go.viam.com/motioncore/logging"
)

// MotionState describes what the machine as a whole is doing.
type MotionState int32

// Motion states.
const (
	MotionStop MotionState = iota
	MotionRun
	MotionHold
)

func (s MotionState) String() string {
	switch s {
	case MotionStop:
		return "stop"
	case MotionRun:
		return "run"
	case MotionHold:
		return "hold"
	}
	return "unknown"
}

// HoldState is the feedhold sequencer state. Transitions are driven by the
// executor; requests come in from the host side via StartHold.
type HoldState int32

// Feedhold states.
const (
	HoldOff HoldState = iota
	HoldSync
	HoldDecelContinue
	HoldDecelToZero
	HoldDecelEnd
	HoldPending
	HoldHold
)

func (s HoldState) String() string {
	switch s {
	case HoldOff:
		return "off"
	case HoldSync:
		return "sync"
	case HoldDecelContinue:
		return "decel-continue"
	case HoldDecelToZero:
		return "decel-to-zero"
	case HoldDecelEnd:
		return "decel-end"
	case HoldPending:
		return "pending"
	case HoldHold:
		return "hold"
	}
	return "unknown"
}

// ReportRequest is the urgency of a requested status report.
type ReportRequest int

// Report request kinds.
const (
	ReportTimed ReportRequest = iota
	ReportImmediate
)

// Machine is the concrete canonical-machine shim. Its state words are
// atomics: the executor and planner read them from their own contexts while
// the host side writes hold requests asynchronously.
type Machine struct {
	motionState atomic.Int32
	holdState   atomic.Int32
	// paused mirrors the host controller's readline pause latch during a hold.
	paused atomic.Bool

	report func(ReportRequest)
	logger logging.Logger
}

// New returns a Machine in the stopped state.
func New(logger logging.Logger) *Machine {
	return &Machine{logger: logger}
}

// SetReportFunc installs the hook invoked for status report requests. Status
// reporting itself lives outside this subsystem.
func (m *Machine) SetReportFunc(report func(ReportRequest)) {
	m.report = report
}

// MotionState returns the current motion state.
func (m *Machine) MotionState() MotionState {
	return MotionState(m.motionState.Load())
}

// SetMotionState transitions the motion state.
func (m *Machine) SetMotionState(state MotionState) {
	old := MotionState(m.motionState.Swap(int32(state)))
	if old != state {
		m.logger.Debugw("motion state changed", "from", old, "to", state)
	}
}

// HoldState returns the current feedhold state.
func (m *Machine) HoldState() HoldState {
	return HoldState(m.holdState.Load())
}

// SetHoldState transitions the feedhold state.
func (m *Machine) SetHoldState(state HoldState) {
	old := HoldState(m.holdState.Swap(int32(state)))
	if old != state {
		m.logger.Debugw("hold state changed", "from", old, "to", state)
	}
}

// StartHold requests a feedhold. It only latches while motion is running;
// the executor picks up HoldSync on its next segment.
func (m *Machine) StartHold() {
	if m.MotionState() != MotionRun {
		return
	}
	m.SetHoldState(HoldSync)
	m.SetMotionState(MotionHold)
	m.paused.Store(true)
}

// ControllerReady clears the host pause latch once a hold has fully settled.
func (m *Machine) ControllerReady() {
	m.paused.Store(false)
}

// Paused reports whether the host controller is paused for a hold.
func (m *Machine) Paused() bool {
	return m.paused.Load()
}

// CycleEnd is called when the planner queue drains with no hold active.
func (m *Machine) CycleEnd() {
	m.SetMotionState(MotionStop)
}

// RequestStatusReport forwards a report request to the installed hook.
func (m *Machine) RequestStatusReport(kind ReportRequest) {
	if m.report != nil {
		m.report(kind)
	}
}

// Panic logs and records a fatal pipeline error and halts motion. The
// original firmware would trap to a breakpoint here; the error is returned
// so callers can propagate it.
func (m *Machine) Panic(err error) error {
	m.logger.Errorw("motion pipeline panic", "error", err)
	m.SetMotionState(MotionStop)
	m.SetHoldState(HoldOff)
	return err
}
