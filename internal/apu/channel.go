package apu

import "strings"

// Chip identifies the sound hardware a channel belongs to.
type Chip uint8

const (
	Chip2A03 Chip = iota
	ChipFDS
	ChipVRC6
	ChipVRC7
	ChipN163
	ChipMMC5
	ChipS5B
)

func (c Chip) String() string {
	switch c {
	case Chip2A03:
		return "2A03"
	case ChipFDS:
		return "FDS"
	case ChipVRC6:
		return "VRC6"
	case ChipVRC7:
		return "VRC7"
	case ChipN163:
		return "N163"
	case ChipMMC5:
		return "MMC5"
	case ChipS5B:
		return "S5B"
	}
	return "???"
}

// ParseChip resolves a chip name as written in channel selection flags,
// case insensitively.
func ParseChip(s string) (Chip, bool) {
	for c := Chip2A03; c <= ChipS5B; c++ {
		if strings.EqualFold(c.String(), s) {
			return c, true
		}
	}
	return 0, false
}

// RateKind discriminates how a channel's playback rate should be read.
type RateKind uint8

const (
	// RateFundamental reports the fundamental frequency of a periodic wave.
	RateFundamental RateKind = iota
	// RateLFSR reports the clock rate of a noise shift register.
	RateLFSR
	// RateFixedSample reports the playback rate of a sample channel.
	RateFixedSample
)

// PlaybackRate describes what a channel is currently playing, in Hz.
type PlaybackRate struct {
	Kind      RateKind
	Frequency float64
}

// TimbreKind discriminates the timbre descriptor a channel exposes for
// visualization. It never affects synthesis.
type TimbreKind uint8

const (
	TimbreDuty TimbreKind = iota
	TimbreLFSRMode
	TimbrePatch
)

// Timbre is a small index into a channel's set of distinguishable sounds,
// e.g. the duty setting of a pulse channel.
type Timbre struct {
	Kind  TimbreKind
	Index int
	Max   int
}

// Channel is the capability every chip's channel implements. The renderer
// and the visualizer iterate heterogeneous chip channels through this
// surface without per-chip branching.
type Channel interface {
	Name() string
	Chip() Chip

	// SampleBuffer and EdgeBuffer always have identical length and write
	// cursor; an edge marker is recorded alongside every sample.
	SampleBuffer() *RingBuffer
	EdgeBuffer() *RingBuffer

	// RecordCurrentOutput pushes the channel's current synthesized sample
	// and its pending edge flag into the ring buffers.
	RecordCurrentOutput()

	MinSample() int16
	MaxSample() int16

	Muted() bool
	Mute()
	Unmute()

	// Playing reports whether the channel currently produces audible output.
	Playing() bool

	Rate() PlaybackRate

	// Timbre returns the channel's timbre descriptor, if it has one.
	Timbre() (Timbre, bool)

	// Amplitude is the channel's current output level scaled to [0, 1],
	// used purely for visualization.
	Amplitude() float64
}

// ChannelID is a strongly typed (chip, channel) key, so per-channel
// settings cannot be attached to free-form string pairs.
type ChannelID struct {
	Chip Chip
	Name string
}

// ChannelSettings carries per-channel presentation state.
type ChannelSettings struct {
	Hidden bool
	Muted  bool
}

// channelBase carries the buffer and mute plumbing shared by every concrete
// channel type.
type channelBase struct {
	name         string
	chip         Chip
	debugDisable bool

	sampleBuffer *RingBuffer
	edgeBuffer   *RingBuffer
	lastEdge     bool
}

const channelBufferLength = 32768

func newChannelBase(chip Chip, name string) channelBase {
	return channelBase{
		name:         name,
		chip:         chip,
		sampleBuffer: NewRingBuffer(channelBufferLength),
		edgeBuffer:   NewRingBuffer(channelBufferLength),
	}
}

func (c *channelBase) Name() string { return c.name }

func (c *channelBase) Chip() Chip { return c.chip }

func (c *channelBase) SampleBuffer() *RingBuffer { return c.sampleBuffer }

func (c *channelBase) EdgeBuffer() *RingBuffer { return c.edgeBuffer }

func (c *channelBase) Muted() bool { return c.debugDisable }

func (c *channelBase) Mute() { c.debugDisable = true }

func (c *channelBase) Unmute() { c.debugDisable = false }

func (c *channelBase) record(sample int16) {
	c.sampleBuffer.Push(sample)
	if c.lastEdge {
		c.edgeBuffer.Push(1)
	} else {
		c.edgeBuffer.Push(0)
	}
	c.lastEdge = false
}
