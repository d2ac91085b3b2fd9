package apu

// ClockRate is the NTSC 2A03 clock in Hz. Everything in the emulation is
// derived from it; there is no wall-clock dependency anywhere.
const ClockRate = 1789773

const cpuClockRate = float64(ClockRate)

// ExpansionChannel is a channel provided by a cartridge expansion chip. It
// is clocked by the APU front-end alongside the 2A03 channels and mixed
// linearly into the final output.
type ExpansionChannel interface {
	Channel

	// Clock advances the channel by one CPU cycle.
	Clock()

	// Level is the channel's current output scaled to the same loudness
	// domain as the 2A03 mixer output.
	Level() float32
}

// APU is the 2A03 audio unit plus any attached expansion channels. It is
// clocked in CPU cycles and produces signed 16-bit samples at a configured
// output rate.
type APU struct {
	pulse1   *squareChannel
	pulse2   *squareChannel
	triangle *triangleChannel
	noise    *noiseChannel
	dmc      *dmcChannel

	expansion []ExpansionChannel

	frameCycles uint32
	fiveStep    bool
	apuCycle    bool

	sampleRate   int
	sampleAccum  int
	outputFilter FilterChain

	samples []int16
}

// New returns an APU. readMemory is used by the DMC channel to fetch
// sample bytes.
func New(readMemory func(uint16) uint8) *APU {
	a := &APU{
		pulse1:   newSquareChannel("Pulse 1", true),
		pulse2:   newSquareChannel("Pulse 2", false),
		triangle: newTriangleChannel(),
		noise:    newNoiseChannel(),
		dmc:      newDMCChannel(readMemory),
	}
	a.SetSampleRate(44100)
	return a
}

// SetSampleRate sets the output rate and rebuilds the hardware output
// filter chain (two high-pass poles and the 14 kHz low-pass) at that rate.
func (a *APU) SetSampleRate(rate int) {
	a.sampleRate = rate
	a.outputFilter = FilterChain{}
	a.outputFilter.Add(NewHighPassIIR(float32(rate), 90), float32(rate))
	a.outputFilter.Add(NewHighPassIIR(float32(rate), 440), float32(rate))
	a.outputFilter.Add(NewLowPassRC(float32(rate), 14000), float32(rate))
}

func (a *APU) SampleRate() int {
	return a.sampleRate
}

// AttachExpansion adds an expansion chip channel to the clocking and mix
// chain. Called once per chip at cartridge load.
func (a *APU) AttachExpansion(c ExpansionChannel) {
	a.expansion = append(a.expansion, c)
}

// Channels returns every channel, 2A03 first, in a stable order.
func (a *APU) Channels() []Channel {
	channels := []Channel{a.pulse1, a.pulse2, a.triangle, a.noise, a.dmc}
	for _, e := range a.expansion {
		channels = append(channels, e)
	}
	return channels
}

// ApplySettings mutes or unmutes channels by their typed identity.
func (a *APU) ApplySettings(settings map[ChannelID]ChannelSettings) {
	for _, c := range a.Channels() {
		s, ok := settings[ChannelID{Chip: c.Chip(), Name: c.Name()}]
		if !ok {
			continue
		}
		if s.Muted {
			c.Mute()
		} else {
			c.Unmute()
		}
	}
}

// WriteRegister dispatches a CPU write in $4000-$4017.
func (a *APU) WriteRegister(addr uint16, v uint8) {
	switch addr {
	case 0x4000:
		a.pulse1.writeDuty(v)
	case 0x4001:
		a.pulse1.writeSweep(v)
	case 0x4002:
		a.pulse1.writeTimerLow(v)
	case 0x4003:
		a.pulse1.writeTimerHigh(v)
	case 0x4004:
		a.pulse2.writeDuty(v)
	case 0x4005:
		a.pulse2.writeSweep(v)
	case 0x4006:
		a.pulse2.writeTimerLow(v)
	case 0x4007:
		a.pulse2.writeTimerHigh(v)
	case 0x4008:
		a.triangle.writeLinear(v)
	case 0x400A:
		a.triangle.writeTimerLow(v)
	case 0x400B:
		a.triangle.writeTimerHigh(v)
	case 0x400C:
		a.noise.writeVolume(v)
	case 0x400E:
		a.noise.writePeriod(v)
	case 0x400F:
		a.noise.writeLength(v)
	case 0x4010:
		a.dmc.writeControl(v)
	case 0x4011:
		a.dmc.writeDirectLoad(v)
	case 0x4012:
		a.dmc.writeSampleAddress(v)
	case 0x4013:
		a.dmc.writeSampleLength(v)
	case 0x4015:
		a.pulse1.env.length.setEnabled(v&0x01 != 0)
		a.pulse2.env.length.setEnabled(v&0x02 != 0)
		a.triangle.length.setEnabled(v&0x04 != 0)
		a.noise.env.length.setEnabled(v&0x08 != 0)
		a.dmc.setEnabled(v&0x10 != 0)
	case 0x4017:
		a.fiveStep = v&0x80 != 0
		a.frameCycles = 0
		if a.fiveStep {
			// writing mode 1 clocks the units immediately
			a.quarterFrame()
			a.halfFrame()
		}
	}
}

// ReadRegister serves the $4015 status register; every other APU register
// is write-only.
func (a *APU) ReadRegister(addr uint16) uint8 {
	if addr != 0x4015 {
		return 0
	}
	var v uint8
	if a.pulse1.env.length.status() {
		v |= 0x01
	}
	if a.pulse2.env.length.status() {
		v |= 0x02
	}
	if a.triangle.length.status() {
		v |= 0x04
	}
	if a.noise.env.length.status() {
		v |= 0x08
	}
	if a.dmc.bytesRemaining > 0 {
		v |= 0x10
	}
	return v
}

func (a *APU) quarterFrame() {
	a.pulse1.env.tick()
	a.pulse2.env.tick()
	a.triangle.tickLinearCounter()
	a.noise.env.tick()
}

func (a *APU) halfFrame() {
	a.pulse1.env.length.tick()
	a.pulse2.env.length.tick()
	a.triangle.length.tick()
	a.noise.env.length.tick()
	a.pulse1.tickSweep()
	a.pulse2.tickSweep()
}

func (a *APU) clockFrameSequencer() {
	a.frameCycles++
	if !a.fiveStep {
		switch a.frameCycles {
		case 7457, 22371:
			a.quarterFrame()
		case 14913:
			a.quarterFrame()
			a.halfFrame()
		case 29829:
			a.quarterFrame()
			a.halfFrame()
			a.frameCycles = 0
		}
	} else {
		switch a.frameCycles {
		case 7457, 22371:
			a.quarterFrame()
		case 14913:
			a.quarterFrame()
			a.halfFrame()
		case 37281:
			a.quarterFrame()
			a.halfFrame()
			a.frameCycles = 0
		}
	}
}

// Clock advances the APU and all expansion channels by the given number of
// CPU cycles, emitting output samples as the downsampler comes due.
func (a *APU) Clock(cycles int) {
	for i := 0; i < cycles; i++ {
		a.clockFrameSequencer()

		a.triangle.clock()
		a.dmc.clock()

		// the pulse and noise timers run at half the CPU clock
		a.apuCycle = !a.apuCycle
		if a.apuCycle {
			a.pulse1.clock()
			a.pulse2.clock()
			a.noise.clock()
		}

		for _, e := range a.expansion {
			e.Clock()
		}

		a.sampleAccum += a.sampleRate
		if a.sampleAccum >= ClockRate {
			a.sampleAccum -= ClockRate
			a.generateSample()
		}
	}
}

func (a *APU) mix() float32 {
	var p1, p2, t, n, d float64
	if !a.pulse1.Muted() {
		p1 = float64(a.pulse1.output)
	}
	if !a.pulse2.Muted() {
		p2 = float64(a.pulse2.output)
	}
	if !a.triangle.Muted() {
		t = float64(a.triangle.output)
	}
	if !a.noise.Muted() {
		n = float64(a.noise.output)
	}
	if !a.dmc.Muted() {
		d = float64(a.dmc.output)
	}

	var pulseOut float64
	if p1+p2 > 0 {
		pulseOut = 95.88 / (8128/(p1+p2) + 100)
	}
	var tndOut float64
	if tnd := t/8227 + n/12241 + d/22638; tnd > 0 {
		tndOut = 159.79 / (1/tnd + 100)
	}

	mix := float32(pulseOut + tndOut)
	for _, e := range a.expansion {
		if !e.Muted() {
			mix += e.Level()
		}
	}
	return mix
}

func (a *APU) generateSample() {
	a.outputFilter.Consume(a.mix(), 1/float32(a.sampleRate))

	out := a.outputFilter.Output() * 32767
	if out > 32767 {
		out = 32767
	} else if out < -32767 {
		out = -32767
	}
	a.samples = append(a.samples, int16(out))

	for _, c := range a.Channels() {
		c.RecordCurrentOutput()
	}
}

// SamplesQueued reports how many output samples are buffered.
func (a *APU) SamplesQueued() int {
	return len(a.samples)
}

// ConsumeSamples drains and returns every buffered output sample.
func (a *APU) ConsumeSamples() []int16 {
	out := a.samples
	a.samples = nil
	return out
}
