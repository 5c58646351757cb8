// Package main runs a queued motion profile through the execution pipeline
// and reports the emitted segment stream.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"go.viam.com/motioncore/config"
	"go.viam.com/motioncore/encoder"
	"go.viam.com/motioncore/kinematics"
	"go.viam.com/motioncore/logging"
	"go.viam.com/motioncore/machine"
	"go.viam.com/motioncore/planner"
	"go.viam.com/motioncore/sim"
	"go.viam.com/motioncore/stepper"
)

type profile struct {
	Attributes config.AttributeMap `json:"attributes"`
	Moves      []profileMove       `json:"moves"`
}

type profileMove struct {
	Target   []float64 `json:"target"`
	FeedRate float64   `json:"feed_rate"`
	Jerk     float64   `json:"jerk"`
	Dwell    float64   `json:"dwell"`
}

func main() {
	app := &cli.App{
		Name:  "motionsim",
		Usage: "run a motion profile through the segment execution pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "profile",
				Usage:    "path to a JSON motion profile",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level: debug, info, warn or error",
				Value: "info",
			},
			&cli.Float64Flag{
				Name:  "hold-after",
				Usage: "request a feedhold after this many seconds of motion (0 disables)",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger := logging.NewLogger("motionsim")
	level, err := logging.LevelFromString(c.String("log-level"))
	if err != nil {
		return err
	}
	logger.SetLevel(level)

	data, err := os.ReadFile(c.String("profile"))
	if err != nil {
		return errors.Wrap(err, "read profile")
	}
	var prof profile
	if err := json.Unmarshal(data, &prof); err != nil {
		return errors.Wrap(err, "parse profile")
	}

	cfg, err := config.MotionFromAttributes(prof.Attributes)
	if err != nil {
		return errors.Wrap(err, "motion config")
	}

	kin, err := kinematics.NewCartesian(cfg, logger.Sublogger("kinematics"))
	if err != nil {
		return err
	}
	rec := stepper.NewRecorder(planner.NumMotors)
	enc := encoder.Source(func(motor int) float64 {
		return rec.StepPositionAgo(motor, 1)
	})
	mach := machine.New(logger.Sublogger("machine"))
	eng := planner.NewEngine(planner.SettingsFromConfig(cfg), rec, kin, enc, mach, logger.Sublogger("planner"))

	for _, mv := range prof.Moves {
		if mv.Dwell > 0 {
			if err := eng.AppendDwell(mv.Dwell); err != nil {
				return errors.Wrap(err, "queue dwell")
			}
			continue
		}
		var target [planner.NumAxes]float64
		copy(target[:], mv.Target)
		if err := eng.AppendALine(planner.ALineRequest{
			Target:   target,
			FeedRate: mv.FeedRate,
			Jerk:     mv.Jerk,
		}); err != nil {
			return errors.Wrap(err, "queue move")
		}
	}

	tick := time.Duration(cfg.NomSegmentUsec) * time.Microsecond
	driver := sim.NewDriver(eng, rec, mach, clock.New(), tick, logger.Sublogger("sim"))

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer cancel()
		if holdAfter := c.Float64("hold-after"); holdAfter > 0 {
			deadline := time.Duration(holdAfter * float64(time.Second))
			timer := time.NewTimer(deadline)
			defer timer.Stop()
			go func() {
				select {
				case <-ctx.Done():
				case <-timer.C:
					logger.Infow("requesting feedhold")
					mach.StartHold()
				}
			}()
		}
		return driver.Drain(ctx)
	})
	group.Go(func() error {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				pos := eng.Position()
				logger.Infow("progress",
					"position", fmt.Sprintf("%.3f,%.3f,%.3f", pos[0], pos[1], pos[2]),
					"queue", eng.Queue().Len(),
					"time_remaining", fmt.Sprintf("%.3fs", eng.Queue().RunTimeRemaining()),
				)
			}
		}
	})
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	segments := rec.Segments()
	pos := eng.Position()
	logger.Infow("profile complete",
		"segments", len(segments),
		"motion_time", fmt.Sprintf("%.3fs", rec.TotalTime()),
		"final_position", fmt.Sprintf("%.3f,%.3f,%.3f", pos[0], pos[1], pos[2]),
		"hold_state", mach.HoldState(),
	)
	return nil
}
