package apu

var dutySequences = [4][8]uint8{
	{0, 0, 0, 0, 0, 0, 0, 1},
	{0, 0, 0, 0, 0, 0, 1, 1},
	{0, 0, 0, 0, 1, 1, 1, 1},
	{1, 1, 1, 1, 1, 1, 0, 0},
}

type squareChannel struct {
	channelBase
	env envelope

	isChannel1 bool

	duty    uint8
	dutyPos uint8

	sweepEnabled bool
	sweepPeriod  uint8
	sweepNegate  bool
	sweepShift   uint8
	sweepReload  bool
	sweepDivider uint8
	sweepTarget  uint32
	realPeriod   uint16

	timer  uint16 // counts APU cycles down to the next sequencer step
	output uint8
}

func newSquareChannel(name string, isChannel1 bool) *squareChannel {
	return &squareChannel{
		channelBase: newChannelBase(Chip2A03, name),
		isChannel1:  isChannel1,
	}
}

func (s *squareChannel) writeDuty(v uint8) {
	s.env.init(v)
	s.duty = (v & 0xC0) >> 6
	s.updateOutput()
}

func (s *squareChannel) writeSweep(v uint8) {
	s.sweepEnabled = v&0x80 != 0
	s.sweepNegate = v&0x08 != 0
	// the divider's period is P + 1
	s.sweepPeriod = ((v & 0x70) >> 4) + 1
	s.sweepShift = v & 0x07

	s.updateTargetPeriod()
	s.sweepReload = true
}

func (s *squareChannel) writeTimerLow(v uint8) {
	s.setPeriod((s.realPeriod & 0x0700) | uint16(v))
}

func (s *squareChannel) writeTimerHigh(v uint8) {
	s.env.length.load(v >> 3)
	s.setPeriod((s.realPeriod & 0xFF) | (uint16(v&0x07) << 8))

	// the sequencer restarts at the first value of the current sequence,
	// and the envelope restarts with it
	s.dutyPos = 0
	s.env.restart()
	s.updateOutput()
}

func (s *squareChannel) setPeriod(period uint16) {
	s.realPeriod = period
	s.updateTargetPeriod()
}

func (s *squareChannel) updateTargetPeriod() {
	shift := s.realPeriod >> s.sweepShift
	if s.sweepNegate {
		s.sweepTarget = uint32(s.realPeriod - shift)
		if s.isChannel1 {
			// pulse 1's adder is off by one in negate mode
			s.sweepTarget--
		}
	} else {
		s.sweepTarget = uint32(s.realPeriod) + uint32(shift)
	}
}

func (s *squareChannel) silenced() bool {
	// a period below 8 silences the channel, as does a sweep overflow
	return s.realPeriod < 8 || (!s.sweepNegate && s.sweepTarget > 0x7FF)
}

func (s *squareChannel) updateOutput() {
	if s.silenced() {
		s.output = 0
		return
	}
	s.output = dutySequences[s.duty][s.dutyPos] * s.env.output()
}

// clock advances the channel by one APU cycle.
func (s *squareChannel) clock() {
	if s.timer == 0 {
		s.timer = s.realPeriod
		s.dutyPos = (s.dutyPos - 1) & 0x07
		if s.dutyPos == 0 {
			s.lastEdge = true
		}
		s.updateOutput()
	} else {
		s.timer--
	}
}

func (s *squareChannel) tickSweep() {
	s.sweepDivider--
	if s.sweepDivider == 0 {
		if s.sweepShift > 0 && s.sweepEnabled && s.realPeriod >= 8 && s.sweepTarget <= 0x7FF {
			s.setPeriod(uint16(s.sweepTarget))
		}
		s.sweepDivider = s.sweepPeriod
	}

	if s.sweepReload {
		s.sweepDivider = s.sweepPeriod
		s.sweepReload = false
	}
}

func (s *squareChannel) RecordCurrentOutput() {
	s.record(int16(s.output))
}

func (s *squareChannel) MinSample() int16 { return 0 }

func (s *squareChannel) MaxSample() int16 { return 15 }

func (s *squareChannel) Playing() bool {
	return s.env.length.status() && !s.silenced() && s.env.output() > 0
}

func (s *squareChannel) Rate() PlaybackRate {
	return PlaybackRate{
		Kind:      RateFundamental,
		Frequency: cpuClockRate / (16 * (float64(s.realPeriod) + 1)),
	}
}

func (s *squareChannel) Timbre() (Timbre, bool) {
	return Timbre{Kind: TimbreDuty, Index: int(s.duty), Max: 4}, true
}

func (s *squareChannel) Amplitude() float64 {
	return float64(s.env.output()) / 15
}
