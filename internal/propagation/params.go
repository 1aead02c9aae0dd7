package propagation

import "math"

// Control parameter domains. Values outside are clamped, never rejected.
const (
	MinRecursionDepth = 1
	MaxRecursionDepth = 5

	MinIntrospectionRate = 0.1
	MaxIntrospectionRate = 1.0
)

// Params are the two external control parameters of the engine.
type Params struct {
	// RecursionDepth scales the input of Recursive nodes. Domain: 1-5.
	RecursionDepth int `json:"recursion_depth" yaml:"recursion_depth"`

	// IntrospectionRate scales the input of Recursive nodes. Domain: 0.1-1.0.
	IntrospectionRate float64 `json:"introspection_rate" yaml:"introspection_rate"`
}

// DefaultParams returns depth 3 and rate 0.7.
func DefaultParams() Params {
	return Params{
		RecursionDepth:    3,
		IntrospectionRate: 0.7,
	}
}

// Clamp returns p with both parameters limited to their domains.
// A NaN rate becomes the minimum rate.
func (p Params) Clamp() Params {
	return Params{
		RecursionDepth:    ClampDepth(p.RecursionDepth),
		IntrospectionRate: ClampRate(p.IntrospectionRate),
	}
}

// ClampDepth limits d to [MinRecursionDepth, MaxRecursionDepth].
func ClampDepth(d int) int {
	if d < MinRecursionDepth {
		return MinRecursionDepth
	}
	if d > MaxRecursionDepth {
		return MaxRecursionDepth
	}
	return d
}

// ClampRate limits r to [MinIntrospectionRate, MaxIntrospectionRate].
func ClampRate(r float64) float64 {
	if math.IsNaN(r) || r < MinIntrospectionRate {
		return MinIntrospectionRate
	}
	if r > MaxIntrospectionRate {
		return MaxIntrospectionRate
	}
	return r
}
