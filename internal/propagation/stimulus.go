package propagation

import (
	"math"
	"math/rand"
)

// NoiseSource supplies the noise term of the input stimulus.
// *rand.Rand satisfies it.
type NoiseSource interface {
	Float64() float64
}

// NewSeededNoise returns a deterministic noise source for the given seed.
func NewSeededNoise(seed int64) NoiseSource {
	return rand.New(rand.NewSource(seed))
}

// ConstantNoise always returns the same value. Useful for exact trajectories.
type ConstantNoise float64

// Float64 implements NoiseSource.
func (c ConstantNoise) Float64() float64 {
	return float64(c)
}

// Stimulus produces the activation of an Input node for a tick.
type Stimulus interface {
	Value(iteration uint64, noise float64) float64
}

// StimulusFunc adapts a plain function to Stimulus.
type StimulusFunc func(iteration uint64, noise float64) float64

// Value implements Stimulus.
func (f StimulusFunc) Value(iteration uint64, noise float64) float64 {
	return f(iteration, noise)
}

// Oscillator is the reference stimulus: 0.5 + 0.5*sin(0.1*iteration + noise).
// Its range is [0,1].
type Oscillator struct{}

// Value implements Stimulus.
func (Oscillator) Value(iteration uint64, noise float64) float64 {
	return 0.5 + 0.5*math.Sin(0.1*float64(iteration)+noise)
}
