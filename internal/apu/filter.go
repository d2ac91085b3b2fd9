package apu

import "math"

// DspFilter consumes one raw sample and produces a smoothed output.
type DspFilter interface {
	Consume(sample float32)
	Output() float32
}

// LowPassRC models a single-pole RC low-pass filter running at a fixed
// sample rate.
type LowPassRC struct {
	accumulator float32
	alpha       float32
}

func NewLowPassRC(sampleRate, cutoff float32) *LowPassRC {
	return &LowPassRC{
		alpha: float32(math.Exp(-2 * math.Pi * float64(cutoff) / float64(sampleRate))),
	}
}

func (l *LowPassRC) Consume(sample float32) {
	l.accumulator = (l.alpha * l.accumulator) + ((1 - l.alpha) * sample)
}

func (l *LowPassRC) Output() float32 {
	return l.accumulator
}

// HighPassIIR is a single-pole high-pass, used to strip DC offsets from
// channel debug output before it lands in the sample history.
type HighPassIIR struct {
	alpha          float32
	previousOutput float32
	previousInput  float32
}

func NewHighPassIIR(sampleRate, cutoff float32) *HighPassIIR {
	dt := 1 / sampleRate
	rc := 1 / (2 * math.Pi * cutoff)
	return &HighPassIIR{
		alpha: rc / (rc + dt),
	}
}

func (h *HighPassIIR) Consume(sample float32) {
	h.previousOutput = h.alpha*h.previousOutput + h.alpha*(sample-h.previousInput)
	h.previousInput = sample
}

func (h *HighPassIIR) Output() float32 {
	return h.previousOutput
}

type chainedFilter struct {
	filter DspFilter
	period float32 // seconds between samples at this filter's clock rate
	timer  float32
}

// FilterChain is an ordered list of filters, each running at its own clock
// rate. A consumed sample is fed to the first filter whenever its clock is
// due, and each filter's output becomes the next filter's input.
type FilterChain struct {
	links []chainedFilter
}

func (c *FilterChain) Add(filter DspFilter, sampleRate float32) {
	c.links = append(c.links, chainedFilter{
		filter: filter,
		period: 1 / sampleRate,
	})
}

// Consume advances every filter in the chain by dt seconds, feeding sample
// through the chain as each filter's clock comes due.
func (c *FilterChain) Consume(sample float32, dt float32) {
	input := sample
	for i := range c.links {
		link := &c.links[i]
		link.timer += dt
		for link.timer >= link.period {
			link.timer -= link.period
			link.filter.Consume(input)
		}
		input = link.filter.Output()
	}
}

// Output returns the output of the final filter in the chain, or 0 for an
// empty chain.
func (c *FilterChain) Output() float32 {
	if len(c.links) == 0 {
		return 0
	}
	return c.links[len(c.links)-1].filter.Output()
}
