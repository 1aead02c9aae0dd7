package propagation

import (
	"math"
	"testing"
)

func TestParams_Clamp(t *testing.T) {
	tests := []struct {
		name string
		in   Params
		want Params
	}{
		{"in range", Params{3, 0.7}, Params{3, 0.7}},
		{"depth low", Params{0, 0.5}, Params{1, 0.5}},
		{"depth high", Params{12, 0.5}, Params{5, 0.5}},
		{"rate low", Params{2, 0.01}, Params{2, 0.1}},
		{"rate high", Params{2, 1.5}, Params{2, 1.0}},
		{"rate NaN", Params{2, math.NaN()}, Params{2, 0.1}},
		{"both edges", Params{1, 0.1}, Params{1, 0.1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Clamp()
			if got != tt.want {
				t.Errorf("Clamp(%+v) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	if p.RecursionDepth != 3 || p.IntrospectionRate != 0.7 {
		t.Errorf("DefaultParams() = %+v", p)
	}
}

func TestOscillator(t *testing.T) {
	var o Oscillator
	if got := o.Value(0, 0); got != 0.5 {
		t.Errorf("Value(0, 0) = %v, want 0.5", got)
	}
	for i := uint64(0); i < 200; i++ {
		v := o.Value(i, float64(i%7)/7)
		if v < 0 || v > 1 {
			t.Errorf("Value(%d) = %v out of [0,1]", i, v)
		}
	}
}

func TestNewSeededNoise_Repeatable(t *testing.T) {
	a, b := NewSeededNoise(3), NewSeededNoise(3)
	for i := 0; i < 10; i++ {
		if a.Float64() != b.Float64() {
			t.Fatal("seeded noise sources diverged")
		}
	}
}
