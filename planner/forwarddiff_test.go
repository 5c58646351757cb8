package planner

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestForwardDiffsMatchCubicForm(t *testing.T) {
	// With zero boundary accelerations and jerks the quintic collapses to
	// the three-coefficient form A = -6v0+6v1, B = 15v0-15v1, C = -10v0+10v1.
	mr := newMotionRuntime()
	mr.segments = 8
	v0, v1 := 20.0, 120.0
	mr.initForwardDiffs(v0, v1, 0, 0, 0, 0, 0.04)

	a := -6.0*v0 + 6.0*v1
	b := 15.0*v0 - 15.0*v1
	c := -10.0*v0 + 10.0*v1

	h := 1.0 / mr.segments
	ah5 := a * math.Pow(h, 5)
	bh4 := b * math.Pow(h, 4)
	ch3 := c * math.Pow(h, 3)

	test.That(t, mr.fd.f5, test.ShouldAlmostEqual, (121.0/16.0)*ah5+5.0*bh4+(13.0/4.0)*ch3, 1e-9)
	test.That(t, mr.fd.f4, test.ShouldAlmostEqual, (165.0/2.0)*ah5+29.0*bh4+9.0*ch3, 1e-9)
	test.That(t, mr.fd.f3, test.ShouldAlmostEqual, 255.0*ah5+48.0*bh4+6.0*ch3, 1e-9)
	test.That(t, mr.fd.f2, test.ShouldAlmostEqual, 300.0*ah5+24.0*bh4, 1e-9)
	test.That(t, mr.fd.f1, test.ShouldAlmostEqual, 120.0*ah5, 1e-9)

	// First velocity is the curve at h/2.
	half := h / 2
	want := a*math.Pow(half, 5) + b*math.Pow(half, 4) + c*math.Pow(half, 3) + v0
	test.That(t, mr.segmentVelocity, test.ShouldAlmostEqual, want, 1e-9)
}

func TestForwardDiffsIterateToTargetVelocity(t *testing.T) {
	for _, tc := range []struct {
		name     string
		v0, v1   float64
		segments float64
	}{
		{"accel", 0, 100, 20},
		{"decel", 250, 10, 16},
		{"short", 5, 8, 3},
		{"fine", 40, 90, 200},
	} {
		t.Run(tc.name, func(t *testing.T) {
			mr := newMotionRuntime()
			mr.segments = tc.segments
			T := 0.05
			mr.initForwardDiffs(tc.v0, tc.v1, 0, 0, 0, 0, T)

			v := mr.segmentVelocity
			sum := v
			for i := 1; i < int(tc.segments); i++ {
				v += mr.fd.f5
				mr.fd.advance()
				sum += v
			}
			// Forward differencing must land exactly on the direct curve
			// evaluation at the last midpoint, 1 - h/2.
			h := 1.0 / tc.segments
			test.That(t, v, test.ShouldAlmostEqual, evalQuintic(tc.v0, tc.v1, 1-h/2), 1e-6)
			// The endpoint of the curve is the target velocity; with enough
			// segments the last midpoint is indistinguishable from it.
			if tc.segments >= 16 {
				test.That(t, v, test.ShouldAlmostEqual, tc.v1, math.Abs(tc.v1-tc.v0)*1e-2+1e-6)
			}
			// Midpoint-sampled segments integrate to the mean-velocity
			// distance of the symmetric quintic.
			dist := sum * (T / tc.segments)
			test.That(t, dist, test.ShouldAlmostEqual, (tc.v0+tc.v1)/2*T, math.Abs(tc.v1-tc.v0)*T*1e-3+1e-9)
		})
	}
}

// evalQuintic evaluates the zero-boundary-accel velocity curve from v0 to
// v1 at parametric t.
func evalQuintic(v0, v1, t float64) float64 {
	a := -6.0*v0 + 6.0*v1
	b := 15.0*v0 - 15.0*v1
	c := -10.0*v0 + 10.0*v1
	return a*math.Pow(t, 5) + b*math.Pow(t, 4) + c*math.Pow(t, 3) + v0
}

func TestForwardDiffsVelocityMonotone(t *testing.T) {
	mr := newMotionRuntime()
	mr.segments = 40
	mr.initForwardDiffs(10, 200, 0, 0, 0, 0, 0.2)
	prev := mr.segmentVelocity
	v := prev
	for i := 1; i < 40; i++ {
		v += mr.fd.f5
		mr.fd.advance()
		test.That(t, v, test.ShouldBeGreaterThan, prev)
		prev = v
	}
}
