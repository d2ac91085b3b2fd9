package fds

// Envelope is one of the two FDS hardware envelopes (volume and
// modulation). Output rises toward 32 or falls toward 0 depending on mode.
type Envelope struct {
	mode    bool
	disable bool
	timer   uint32
	speed   uint8
	out     uint8
}

func NewEnvelope() *Envelope {
	return &Envelope{disable: true}
}

// Clock advances the envelope. The period scales with both the envelope's
// own 6-bit speed and the chip-wide master speed divisor.
func (e *Envelope) Clock(masterSpeed uint8) {
	if e.disable {
		return
	}

	e.timer++
	period := (uint32(e.speed) + 1) * uint32(masterSpeed) << 3
	if period == 0 {
		return
	}

	for e.timer >= period {
		if e.mode && e.out < 32 {
			e.out++
		} else if !e.mode && e.out > 0 {
			e.out--
		}
		e.timer -= period
	}
}

// WriteConfig sets speed, disable and mode from the register bit fields and
// resets the timer. Disabling forces the output to equal the speed value, a
// hardware quirk drivers rely on to set volume directly.
func (e *Envelope) WriteConfig(v uint8) {
	e.speed = v & 0x3F
	e.timer = 0
	e.disable = v&0x80 != 0
	e.mode = v&0x40 != 0

	if e.disable {
		e.out = e.speed
	}
}

// Output returns the raw envelope output. Values above 32 are possible via
// the disable quirk; consumers clamp.
func (e *Envelope) Output() uint8 {
	return e.out
}

func (e *Envelope) resetTimer() {
	e.timer = 0
}
