package utils

import "gonum.org/v1/gonum/floats"

// AxisVectorLength returns the euclidean distance between two axis-space
// positions.
func AxisVectorLength(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}

// CopyVector copies src into dst. The slices must be the same length.
func CopyVector(dst, src []float64) {
	copy(dst, src)
}

// AddScaled sets dst[i] = pos[i] + unit[i]*scale for each axis.
func AddScaled(dst, pos, unit []float64, scale float64) {
	copy(dst, pos)
	floats.AddScaled(dst, scale, unit)
}
