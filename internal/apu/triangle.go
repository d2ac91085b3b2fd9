package apu

var triangleSequence = [32]uint8{
	15, 14, 13, 12, 11, 10, 9, 8,
	7, 6, 5, 4, 3, 2, 1, 0,
	0, 1, 2, 3, 4, 5, 6, 7,
	8, 9, 10, 11, 12, 13, 14, 15,
}

type triangleChannel struct {
	channelBase
	length lengthCounter

	linearCounter uint8
	linearReload  uint8
	reloadFlag    bool
	control       bool

	period uint16
	timer  uint16
	pos    uint8

	output uint8
}

func newTriangleChannel() *triangleChannel {
	return &triangleChannel{
		channelBase: newChannelBase(Chip2A03, "Triangle"),
	}
}

func (t *triangleChannel) writeLinear(v uint8) {
	t.control = v&0x80 != 0
	t.linearReload = v & 0x7F
	t.length.halt = t.control
}

func (t *triangleChannel) writeTimerLow(v uint8) {
	t.period = (t.period & 0xFF00) | uint16(v)
}

func (t *triangleChannel) writeTimerHigh(v uint8) {
	t.length.load(v >> 3)
	t.period = (t.period & 0xFF) | (uint16(v&0x07) << 8)
	// side effect: the linear counter reloads on the next quarter frame
	t.reloadFlag = true
}

// clock advances the channel by one CPU cycle.
func (t *triangleChannel) clock() {
	if t.timer == 0 {
		t.timer = t.period
		if t.length.status() && t.linearCounter > 0 {
			t.pos = (t.pos + 1) & 0x1F
			if t.pos == 0 {
				t.lastEdge = true
			}
			if t.period >= 2 {
				// ultrasonic periods are left at the last output level to
				// avoid pops
				t.output = triangleSequence[t.pos]
			}
		}
	} else {
		t.timer--
	}
}

func (t *triangleChannel) tickLinearCounter() {
	if t.reloadFlag {
		t.linearCounter = t.linearReload
	} else if t.linearCounter > 0 {
		t.linearCounter--
	}
	if !t.control {
		t.reloadFlag = false
	}
}

func (t *triangleChannel) RecordCurrentOutput() {
	t.record(int16(t.output))
}

func (t *triangleChannel) MinSample() int16 { return 0 }

func (t *triangleChannel) MaxSample() int16 { return 15 }

func (t *triangleChannel) Playing() bool {
	return t.length.status() && t.linearCounter > 0 && t.period >= 2
}

func (t *triangleChannel) Rate() PlaybackRate {
	return PlaybackRate{
		Kind:      RateFundamental,
		Frequency: cpuClockRate / (32 * (float64(t.period) + 1)),
	}
}

func (t *triangleChannel) Timbre() (Timbre, bool) {
	return Timbre{}, false
}

func (t *triangleChannel) Amplitude() float64 {
	if !t.Playing() {
		return 0
	}
	return 1
}
