package apu

var noisePeriods = [16]uint16{
	4, 8, 16, 32, 64, 96, 128, 160, 202, 254, 380, 508, 762, 1016, 2034, 4068,
}

type noiseChannel struct {
	channelBase
	env envelope

	shiftReg uint16
	mode     bool

	period uint16
	timer  uint16
	output uint8
}

func newNoiseChannel() *noiseChannel {
	return &noiseChannel{
		channelBase: newChannelBase(Chip2A03, "Noise"),
		shiftReg:    1,
		period:      noisePeriods[0] - 1,
	}
}

func (n *noiseChannel) writeVolume(v uint8) {
	n.env.init(v)
}

func (n *noiseChannel) writePeriod(v uint8) {
	n.period = noisePeriods[v&0x0F] - 1
	n.mode = v&0x80 != 0
}

func (n *noiseChannel) writeLength(v uint8) {
	n.env.length.load(v >> 3)
	n.env.restart()
}

// clock advances the channel by one APU cycle.
func (n *noiseChannel) clock() {
	if n.timer == 0 {
		n.timer = n.period

		// feedback is bit 0 XOR bit 6 (mode) or bit 1
		modeBit := uint16(1)
		if n.mode {
			modeBit = 6
		}
		feedback := (n.shiftReg & 0x01) ^ ((n.shiftReg >> modeBit) & 0x01)
		n.shiftReg >>= 1
		n.shiftReg |= feedback << 14

		if n.shiftReg&0x01 == 0x01 {
			n.output = 0
		} else {
			n.output = n.env.output()
		}
	} else {
		n.timer--
	}
}

func (n *noiseChannel) RecordCurrentOutput() {
	n.record(int16(n.output))
}

func (n *noiseChannel) MinSample() int16 { return 0 }

func (n *noiseChannel) MaxSample() int16 { return 15 }

func (n *noiseChannel) Playing() bool {
	return n.env.length.status() && n.env.output() > 0
}

func (n *noiseChannel) Rate() PlaybackRate {
	return PlaybackRate{
		Kind:      RateLFSR,
		Frequency: cpuClockRate / (2 * (float64(n.period) + 1)),
	}
}

func (n *noiseChannel) Timbre() (Timbre, bool) {
	mode := 0
	if n.mode {
		mode = 1
	}
	return Timbre{Kind: TimbreLFSRMode, Index: mode, Max: 2}, true
}

func (n *noiseChannel) Amplitude() float64 {
	return float64(n.env.output()) / 15
}
