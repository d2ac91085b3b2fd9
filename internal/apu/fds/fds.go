// Package fds emulates the Famicom Disk System expansion audio: a 64-entry
// wavetable fed by a modulator unit and two hardware envelopes.
package fds

import (
	"github.com/thelolagemann/go-nsf/internal/apu"
)

const channelBufferLength = 32768

// Channel aggregates the FDS wave unit, modulator and envelopes into one
// expansion channel.
type Channel struct {
	wave    *WaveTable
	mod     *ModTable
	volEnv  *Envelope
	modEnv  *Envelope

	masterEnvelopeSpeed uint8

	currentVolume float32
	outputFilter  apu.FilterChain

	sampleBuffer *apu.RingBuffer
	edgeBuffer   *apu.RingBuffer
	lastEdge     bool
	debugDisable bool
	debugFilter  *apu.HighPassIIR
}

// NewChannel returns an FDS channel producing output at the given sample
// rate. The filter chain models the chip's ~2 kHz RC pole at the native
// clock plus a ~6 kHz pole at the output rate to suppress modulation
// aliasing introduced by downsampling.
func NewChannel(sampleRate int) *Channel {
	c := &Channel{
		wave:   NewWaveTable(),
		mod:    NewModTable(),
		volEnv: NewEnvelope(),
		modEnv: NewEnvelope(),

		masterEnvelopeSpeed: 0xFF,

		sampleBuffer: apu.NewRingBuffer(channelBufferLength),
		edgeBuffer:   apu.NewRingBuffer(channelBufferLength),
		debugFilter:  apu.NewHighPassIIR(float32(sampleRate), 300),
	}
	c.outputFilter.Add(apu.NewLowPassRC(apu.ClockRate, 2000), apu.ClockRate)
	c.outputFilter.Add(apu.NewLowPassRC(float32(sampleRate), 6000), float32(sampleRate))
	return c
}

// NSFInit reproduces the register writes the FDS BIOS performs at track
// start. Drivers rely on this exact sequence; deviating detunes the first
// notes after track load.
func (c *Channel) NSFInit() {
	// $4080 <- 0x80
	c.volEnv.WriteConfig(0x80)
	// $408A <- 0xE8
	c.masterEnvelopeSpeed = 0xE8
	// $4082 <- 0x00
	c.wave.WriteFrequencyLow(0)
	// $4083 <- 0x80
	c.wave.WriteFrequencyHigh(0x80)
	// $4084 <- 0x80
	c.modEnv.WriteConfig(0x80)
	// $4085 <- 0x00
	c.mod.pos = 0
	// $4086 <- 0x00
	c.mod.WriteFrequencyLow(0)
	// $4087 <- 0x80
	c.mod.WriteFrequencyHigh(0x80)
	// $4089 <- 0x00
	c.modEnv.WriteConfig(0)
}

// WriteRegister dispatches a CPU write in $4040-$408A.
func (c *Channel) WriteRegister(addr uint16, v uint8) {
	switch {
	case addr >= 0x4040 && addr <= 0x407F:
		c.wave.WriteSample(int(addr&0x3F), v)
	case addr == 0x4080:
		c.volEnv.WriteConfig(v)
	case addr == 0x4082:
		c.wave.WriteFrequencyLow(v)
	case addr == 0x4083:
		c.wave.WriteFrequencyHigh(v)
	case addr == 0x4084:
		c.modEnv.WriteConfig(v)
	case addr == 0x4085:
		c.mod.WritePosition(v)
	case addr == 0x4086:
		c.mod.WriteFrequencyLow(v)
	case addr == 0x4087:
		c.mod.WriteFrequencyHigh(v)
	case addr == 0x4088:
		c.mod.WriteTableEntry(v)
	case addr == 0x4089:
		c.wave.WriteConfig(v)
	case addr == 0x408A:
		c.masterEnvelopeSpeed = v
	}
}

// ReadRegister serves the envelope output registers.
func (c *Channel) ReadRegister(addr uint16) uint8 {
	switch addr {
	case 0x4090:
		return c.volEnv.out | 0x40
	case 0x4092:
		return c.modEnv.out | 0x40
	}
	return 0x40
}

// Clock advances the whole channel by one CPU cycle. The update order
// matters: envelope timers are zeroed by a pending halt latch, envelopes
// clock before the tables, and the modulator clocks before the wave unit so
// the wave sees the updated position.
func (c *Channel) Clock() {
	if c.wave.envHaltTicked {
		c.modEnv.resetTimer()
		c.volEnv.resetTimer()
	}

	if !c.wave.waveHalt && !c.wave.envHalt && c.masterEnvelopeSpeed != 0 {
		c.modEnv.Clock(c.masterEnvelopeSpeed)
		c.volEnv.Clock(c.masterEnvelopeSpeed)
	}

	oldWaveIdx := c.wave.index()

	c.mod.Clock()
	c.wave.Clock(c.mod.pos, c.modEnv.out)

	volOut := int32(c.volEnv.out)
	if volOut > 32 {
		volOut = 32
	}

	if !c.wave.writeEnable {
		waveIdx := c.wave.index()
		wave := int32(c.wave.table[waveIdx]) * volOut

		volume := float32(wave * 2 / (int32(c.wave.masterVolume) + 2))
		c.outputFilter.Consume(volume, 1.0/apu.ClockRate)
		c.currentVolume = c.outputFilter.Output()
		c.lastEdge = oldWaveIdx > waveIdx
	}
}

// Level feeds the mixer; the filtered output tops out around 2016
// (63 * 32), scaled here to sit against the 2A03 mix domain.
func (c *Channel) Level() float32 {
	return c.currentVolume / 4096
}

func (c *Channel) Name() string { return "Wavetable" }

func (c *Channel) Chip() apu.Chip { return apu.ChipFDS }

func (c *Channel) SampleBuffer() *apu.RingBuffer { return c.sampleBuffer }

func (c *Channel) EdgeBuffer() *apu.RingBuffer { return c.edgeBuffer }

func (c *Channel) RecordCurrentOutput() {
	c.debugFilter.Consume(c.currentVolume)
	c.sampleBuffer.Push(int16(c.debugFilter.Output() * -1.2))
	if c.lastEdge {
		c.edgeBuffer.Push(1)
	} else {
		c.edgeBuffer.Push(0)
	}
	c.lastEdge = false
}

func (c *Channel) MinSample() int16 { return -2048 }

func (c *Channel) MaxSample() int16 { return 2048 }

func (c *Channel) Muted() bool { return c.debugDisable }

func (c *Channel) Mute() { c.debugDisable = true }

func (c *Channel) Unmute() { c.debugDisable = false }

func (c *Channel) Playing() bool { return true }

func (c *Channel) Rate() apu.PlaybackRate {
	frequency := (apu.ClockRate / 65535.0) * (float64(c.wave.tickFrequency) / 64.0)
	return apu.PlaybackRate{Kind: apu.RateFundamental, Frequency: frequency}
}

func (c *Channel) Timbre() (apu.Timbre, bool) {
	return apu.Timbre{}, false
}

func (c *Channel) Amplitude() float64 {
	a := float64(c.currentVolume) / 2048
	if a > 1 {
		a = 1
	} else if a < 0 {
		a = 0
	}
	return a
}

// Wave exposes the wave unit for tests and pitch display.
func (c *Channel) Wave() *WaveTable { return c.wave }

// Mod exposes the modulator unit.
func (c *Channel) Mod() *ModTable { return c.mod }

// VolumeEnvelope exposes the volume envelope.
func (c *Channel) VolumeEnvelope() *Envelope { return c.volEnv }

// ModEnvelope exposes the modulation envelope.
func (c *Channel) ModEnvelope() *Envelope { return c.modEnv }
