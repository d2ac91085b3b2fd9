package apu

var dmcPeriods = [16]uint16{
	428, 380, 340, 320, 286, 254, 226, 214, 190, 160, 142, 128, 106, 84, 72, 54,
}

// dmcChannel plays 1-bit delta-encoded samples fetched from CPU memory.
type dmcChannel struct {
	channelBase

	readMemory func(uint16) uint8

	period uint16
	timer  uint16
	loop   bool

	sampleAddress uint16
	sampleLength  uint16

	currentAddress uint16
	bytesRemaining uint16

	shiftReg     uint8
	bitsLeft     uint8
	silence      bool
	sampleBuffer uint8
	bufferFilled bool

	output uint8 // 7-bit DAC level
}

func newDMCChannel(readMemory func(uint16) uint8) *dmcChannel {
	return &dmcChannel{
		channelBase: newChannelBase(Chip2A03, "DMC"),
		readMemory:  readMemory,
		period:      dmcPeriods[0],
		bitsLeft:    8,
		silence:     true,
	}
}

func (d *dmcChannel) writeControl(v uint8) {
	d.period = dmcPeriods[v&0x0F]
	d.loop = v&0x40 != 0
	// the IRQ enable bit is ignored: NSF playback never services DMC IRQs
}

func (d *dmcChannel) writeDirectLoad(v uint8) {
	d.output = v & 0x7F
}

func (d *dmcChannel) writeSampleAddress(v uint8) {
	d.sampleAddress = 0xC000 + uint16(v)*64
}

func (d *dmcChannel) writeSampleLength(v uint8) {
	d.sampleLength = uint16(v)*16 + 1
}

func (d *dmcChannel) setEnabled(enabled bool) {
	if !enabled {
		d.bytesRemaining = 0
	} else if d.bytesRemaining == 0 {
		d.restart()
	}
}

func (d *dmcChannel) restart() {
	d.currentAddress = d.sampleAddress
	d.bytesRemaining = d.sampleLength
}

func (d *dmcChannel) fillBuffer() {
	if d.bufferFilled || d.bytesRemaining == 0 {
		return
	}
	d.sampleBuffer = d.readMemory(d.currentAddress)
	d.bufferFilled = true
	if d.currentAddress == 0xFFFF {
		d.currentAddress = 0x8000
	} else {
		d.currentAddress++
	}
	d.bytesRemaining--
	if d.bytesRemaining == 0 && d.loop {
		d.restart()
	}
}

// clock advances the channel by one CPU cycle.
func (d *dmcChannel) clock() {
	d.fillBuffer()

	if d.timer > 0 {
		d.timer--
		return
	}
	d.timer = d.period - 1

	if !d.silence {
		if d.shiftReg&0x01 != 0 {
			if d.output <= 125 {
				d.output += 2
			}
		} else if d.output >= 2 {
			d.output -= 2
		}
	}
	d.shiftReg >>= 1

	d.bitsLeft--
	if d.bitsLeft == 0 {
		d.bitsLeft = 8
		if d.bufferFilled {
			d.silence = false
			d.shiftReg = d.sampleBuffer
			d.bufferFilled = false
			d.lastEdge = true
		} else {
			d.silence = true
		}
	}
}

func (d *dmcChannel) RecordCurrentOutput() {
	d.record(int16(d.output))
}

func (d *dmcChannel) MinSample() int16 { return 0 }

func (d *dmcChannel) MaxSample() int16 { return 127 }

func (d *dmcChannel) Playing() bool {
	return d.bytesRemaining > 0
}

func (d *dmcChannel) Rate() PlaybackRate {
	return PlaybackRate{
		Kind:      RateFixedSample,
		Frequency: cpuClockRate / float64(d.period),
	}
}

func (d *dmcChannel) Timbre() (Timbre, bool) {
	return Timbre{}, false
}

func (d *dmcChannel) Amplitude() float64 {
	return float64(d.output) / 127
}
