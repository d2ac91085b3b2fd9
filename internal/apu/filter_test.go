package apu

import (
	"math"
	"testing"
)

func TestLowPassPassesDC(t *testing.T) {
	f := NewLowPassRC(44100, 14000)
	for i := 0; i < 10000; i++ {
		f.Consume(0.5)
	}
	if got := f.Output(); math.Abs(float64(got-0.5)) > 0.01 {
		t.Errorf("low-pass DC output = %f, want ~0.5", got)
	}
}

func TestHighPassRemovesDC(t *testing.T) {
	f := NewHighPassIIR(44100, 90)
	for i := 0; i < 100000; i++ {
		f.Consume(0.5)
	}
	if got := f.Output(); math.Abs(float64(got)) > 0.01 {
		t.Errorf("high-pass DC output = %f, want ~0", got)
	}
}

func TestFilterChainOrdering(t *testing.T) {
	var chain FilterChain
	chain.Add(NewLowPassRC(44100, 14000), 44100)
	chain.Add(NewHighPassIIR(44100, 90), 44100)

	dt := float32(1.0 / 44100)
	for i := 0; i < 100000; i++ {
		chain.Consume(0.5, dt)
	}
	if got := chain.Output(); math.Abs(float64(got)) > 0.01 {
		t.Errorf("chain DC output = %f, want ~0", got)
	}
}
