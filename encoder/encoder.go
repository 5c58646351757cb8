// Package encoder provides the executor's view of motor position feedback.
// Readings time-align with the commanded step pipeline two segments back, so
// the following error the executor computes is a true like-for-like delta.
package encoder

// Encoder reads the current position of a motor in steps. Called from the
// execution context; must not block.
type Encoder interface {
	ReadSteps(motor int) float64
}

// Source is an Encoder backed by a read function, typically the stepper
// recorder's lagged step history.
type Source func(motor int) float64

// ReadSteps calls the function.
func (s Source) ReadSteps(motor int) float64 {
	if s == nil {
		return 0
	}
	return s(motor)
}

// Zero is an encoder that always reads zero, for machines with no feedback.
type Zero struct{}

// ReadSteps returns zero.
func (Zero) ReadSteps(int) float64 { return 0 }
