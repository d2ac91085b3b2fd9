package apu

var lengthTable = [32]uint8{
	10, 254, 20, 2, 40, 4, 80, 6, 160, 8, 60, 10, 14, 12, 26, 14,
	12, 16, 24, 18, 48, 20, 96, 22, 192, 24, 72, 26, 16, 28, 32, 30,
}

type lengthCounter struct {
	enabled bool
	halt    bool
	counter uint8
}

func (l *lengthCounter) load(index uint8) {
	if l.enabled {
		l.counter = lengthTable[index&0x1F]
	}
}

func (l *lengthCounter) tick() {
	if !l.halt && l.counter > 0 {
		l.counter--
	}
}

func (l *lengthCounter) setEnabled(enabled bool) {
	l.enabled = enabled
	if !enabled {
		l.counter = 0
	}
}

func (l *lengthCounter) status() bool {
	return l.counter > 0
}

// envelope is the 2A03 volume envelope shared by the pulse and noise
// channels.
type envelope struct {
	length lengthCounter

	constantVolume bool
	volume         uint8

	start   bool
	divider int8
	counter uint8
}

func (e *envelope) init(v uint8) {
	e.length.halt = v&0x20 != 0
	e.constantVolume = v&0x10 != 0
	e.volume = v & 0x0F
}

func (e *envelope) restart() {
	e.start = true
}

func (e *envelope) tick() {
	if !e.start {
		e.divider--
		if e.divider < 0 {
			e.divider = int8(e.volume)
			if e.counter > 0 {
				e.counter--
			} else if e.length.halt {
				e.counter = 15
			}
		}
	} else {
		e.start = false
		e.counter = 15
		e.divider = int8(e.volume)
	}
}

func (e *envelope) output() uint8 {
	if !e.length.status() {
		return 0
	}
	if e.constantVolume {
		return e.volume
	}
	return e.counter
}
