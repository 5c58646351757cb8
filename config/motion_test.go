package config

import (
	"testing"

	"go.viam.com/test"
)

func TestAttributeMap(t *testing.T) {
	am := AttributeMap{
		"f": 2.5,
		"i": 3.0, // JSON numbers arrive as float64
		"b": true,
		"s": "x",
	}
	test.That(t, am.Has("f"), test.ShouldBeTrue)
	test.That(t, am.Has("missing"), test.ShouldBeFalse)
	test.That(t, am.Float64("f", 0), test.ShouldEqual, 2.5)
	test.That(t, am.Float64("missing", 7), test.ShouldEqual, 7.0)
	test.That(t, am.Int("i", 0), test.ShouldEqual, 3)
	test.That(t, am.Bool("b", false), test.ShouldBeTrue)
	test.That(t, am.String("s"), test.ShouldEqual, "x")
	test.That(t, am.String("missing"), test.ShouldEqual, "")
}

func TestMotionFromAttributes(t *testing.T) {
	cfg, err := MotionFromAttributes(AttributeMap{
		"nom_segment_usec": 4000.0,
		"steps_per_mm":     []interface{}{100.0, 100.0},
		"motor_axes":       []interface{}{0.0, 1.0},
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.NomSegmentUsec, test.ShouldEqual, 4000.0)
	// Unset fields keep their defaults.
	test.That(t, cfg.MinSegmentUsec, test.ShouldEqual, DefaultMinSegmentUsec)
	test.That(t, cfg.QueueSize, test.ShouldEqual, 48)
	test.That(t, len(cfg.StepsPerMM), test.ShouldEqual, 2)
}

func TestMotionValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*Motion)
		ok     bool
	}{
		{"defaults", func(*Motion) {}, true},
		{"zero nominal", func(m *Motion) { m.NomSegmentUsec = 0 }, false},
		{"min above nominal", func(m *Motion) { m.MinSegmentUsec = m.NomSegmentUsec * 2 }, false},
		{"tiny queue", func(m *Motion) { m.QueueSize = 2 }, false},
		{"motor count mismatch", func(m *Motion) { m.MotorAxes = m.MotorAxes[:3] }, false},
		{"negative steps", func(m *Motion) { m.StepsPerMM[0] = -1 }, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultMotion()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok {
				test.That(t, err, test.ShouldBeNil)
			} else {
				test.That(t, err, test.ShouldNotBeNil)
			}
		})
	}
}
