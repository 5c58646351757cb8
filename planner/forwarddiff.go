package planner

// The velocity through a section follows a quintic (fifth-degree) Bezier
// polynomial, which gives a "linear pop" curve: velocity 1st, acceleration
// 2nd, jerk 3rd, snap 4th, crackle 5th, pop 6th derivative of position.
//
// With boundary velocities v_0, v_1, accelerations a_0, a_1, jerks j_0, j_1
// and section time T, the control points are:
//
//	P_0 = v_0
//	P_1 = v_0 + (1/5) T a_0
//	P_2 = v_0 + (2/5) T a_0 + (1/20) T^2 j_0
//	P_3 = v_1 - (2/5) T a_1 + (1/20) T^2 j_1
//	P_4 = v_1 - (1/5) T a_1
//	P_5 = v_1
//
// Expanding the Bernstein basis gives V(t) = A t^5 + B t^4 + C t^3 + D t^2
// + E t + F with:
//
//	A =  5( P_1 - P_4 + 2(P_3 - P_2) ) + P_5 - P_0
//	B =  5( P_0 + P_4 - 4(P_3 + P_1) + 6 P_2 )
//	C = 10( P_3 - P_0 + 3(P_1 - P_2) )
//	D = 10( P_0 + P_2 - 2 P_1 )
//	E =  5( P_1 - P_0 )
//	F =     P_0
//
// Each section is evaluated by forward differencing: with a parametric step
// h = 1/segments, the registers are advanced once per segment as
//
//	V   += F_5
//	F_5 += F_4; F_4 += F_3; F_3 += F_2; F_2 += F_1
//
// The registers are initialized so that the first returned velocity is
// V(h/2) rather than V(0) — each segment runs at the curve velocity of its
// midpoint, which makes the summed distance of the segments match the
// section length. Centering at h/2 gives:
//
//	F_5 = (121/16) A h^5 +  5 B h^4 + (13/4) C h^3 + 2 D h^2 + E h
//	F_4 =  (165/2) A h^5 + 29 B h^4 +     9 C h^3 + 2 D h^2
//	F_3 =      255 A h^5 + 48 B h^4 +     6 C h^3
//	F_2 =      300 A h^5 + 24 B h^4
//	F_1 =      120 A h^5
func (mr *motionRuntime) initForwardDiffs(v0, v1, a0, a1, j0, j1, T float64) {
	fifthT := T * 0.2         // (1/5) T
	twoFifthsT := T * 0.4     // (2/5) T
	twentiethT2 := T * T * 0.05 // (1/20) T^2

	p0 := v0
	p1 := v0 + fifthT*a0
	p2 := v0 + twoFifthsT*a0 + twentiethT2*j0
	p3 := v1 - twoFifthsT*a1 + twentiethT2*j1
	p4 := v1 - fifthT*a1
	p5 := v1

	a := 5*(p1-p4+2*(p3-p2)) + p5 - p0
	b := 5 * (p0 + p4 - 4*(p3+p1) + 6*p2)
	c := 10 * (p3 - p0 + 3*(p1-p2))
	d := 10 * (p0 + p2 - 2*p1)
	e := 5 * (p1 - p0)

	h := 1.0 / mr.segments
	h2 := h * h
	h3 := h2 * h
	h4 := h3 * h
	h5 := h4 * h

	ah5 := a * h5
	bh4 := b * h4
	ch3 := c * h3
	dh2 := d * h2
	eh := e * h

	const (
		const1 = 7.5625 // 121/16
		const2 = 3.25   // 13/4
		const3 = 82.5   // 165/2
	)

	mr.fd.f5 = const1*ah5 + 5.0*bh4 + const2*ch3 + 2.0*dh2 + eh
	mr.fd.f4 = const3*ah5 + 29.0*bh4 + 9.0*ch3 + 2.0*dh2
	mr.fd.f3 = 255.0*ah5 + 48.0*bh4 + 6.0*ch3
	mr.fd.f2 = 300.0*ah5 + 24.0*bh4
	mr.fd.f1 = 120.0 * ah5

	// The initial segment velocity is V(h/2).
	halfH := h * 0.5
	halfH2 := halfH * halfH
	halfH3 := halfH2 * halfH
	halfH4 := halfH3 * halfH
	halfH5 := halfH4 * halfH

	mr.segmentVelocity = a*halfH5 + b*halfH4 + c*halfH3 + d*halfH2 + e*halfH + v0
}
