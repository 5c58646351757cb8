// Package sim drives the execution pipeline on a host machine. On the MCU
// the executor and planner run from nested interrupts; here a single
// cooperative scheduler tick services the executor first and then drains
// planner requests, which preserves the priority ordering the pipeline's
// ownership rules assume.
package sim

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/motioncore/logging"
	"go.viam.com/motioncore/machine"
	"go.viam.com/motioncore/planner"
	"go.viam.com/motioncore/stepper"
)

// Driver pumps the pipeline at the segment rate.
type Driver struct {
	eng    *planner.Engine
	rec    *stepper.Recorder
	mach   *machine.Machine
	clk    clock.Clock
	tick   time.Duration
	logger logging.Logger

	// The background pump: a single goroutine whose lifetime is bracketed
	// by Start and Close.
	cancelPump func()
	pumpDone   sync.WaitGroup
}

// NewDriver wires a driver around an engine and its recorder. The tick
// duration should match the nominal segment time.
func NewDriver(
	eng *planner.Engine,
	rec *stepper.Recorder,
	mach *machine.Machine,
	clk clock.Clock,
	tick time.Duration,
	logger logging.Logger,
) *Driver {
	return &Driver{eng: eng, rec: rec, mach: mach, clk: clk, tick: tick, logger: logger}
}

// Step runs one scheduler tick: drain one loaded segment, run the executor
// for at most one new segment, then service any planner requests it raised.
func (d *Driver) Step() error {
	d.rec.Advance(1)

	if _, err := d.eng.ExecMove(); err != nil {
		return errors.Wrap(err, "exec")
	}
	// The planner runs at a lower priority: strictly after the executor
	// returns, and repeatedly until its requests drain.
	for d.rec.TakePlanRequest() {
		if _, err := d.eng.PlanMove(); err != nil {
			return errors.Wrap(err, "plan")
		}
	}
	d.rec.TakeExecRequest()
	return nil
}

// Idle reports whether the pipeline has nothing left to do.
func (d *Driver) Idle() bool {
	return d.eng.Queue().Len() == 0 &&
		d.rec.RuntimeIsIdle() &&
		d.mach.MotionState() != machine.MotionRun
}

// Drain steps the pipeline until it goes idle, a hold settles, or the
// context is canceled.
func (d *Driver) Drain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.Step(); err != nil {
			return err
		}
		if d.Idle() || d.mach.HoldState() == machine.HoldHold {
			return nil
		}
	}
}

// Start runs the pipeline in the background at the tick rate until Close.
func (d *Driver) Start() {
	cancelCtx, cancel := context.WithCancel(context.Background())
	d.cancelPump = cancel
	d.pumpDone.Add(1)
	goutils.PanicCapturingGo(func() {
		defer d.pumpDone.Done()
		ticker := d.clk.Ticker(d.tick)
		defer ticker.Stop()
		for {
			select {
			case <-cancelCtx.Done():
				return
			case <-ticker.C:
			}
			if err := d.Step(); err != nil {
				d.logger.Errorw("pipeline stopped", "error", err)
				return
			}
		}
	})
}

// Close stops the background pump and waits for it to exit.
func (d *Driver) Close() {
	if d.cancelPump != nil {
		d.cancelPump()
		d.pumpDone.Wait()
		d.cancelPump = nil
	}
}

// WaitForIdle polls until the pipeline is idle or the context ends.
func (d *Driver) WaitForIdle(ctx context.Context) error {
	for !d.Idle() {
		if !goutils.SelectContextOrWait(ctx, d.tick) {
			return ctx.Err()
		}
	}
	return nil
}
