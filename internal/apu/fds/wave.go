package fds

// WaveTable is the FDS output unit: a 64-entry 6-bit wavetable stepped by a
// 16-bit frequency through a 22-bit phase accumulator, perturbed each clock
// by the modulator.
type WaveTable struct {
	table         [64]uint8
	frequency     uint16
	phase         uint32
	writeEnable   bool
	masterVolume  uint8
	waveHalt      bool
	envHalt       bool
	envHaltTicked bool

	// last computed per-clock step, used only for pitch display
	tickFrequency float32
}

func NewWaveTable() *WaveTable {
	return &WaveTable{waveHalt: true, envHalt: true}
}

// Clock advances the wavetable by one CPU cycle, applying the modulation
// quantity derived from the modulator position and the modulation envelope
// output.
//
// The two rounding corrections below reproduce undocumented hardware
// behavior; deviating from them is audible as a pitch/timbre regression.
func (w *WaveTable) Clock(modPos uint32, modOut uint8) {
	w.envHaltTicked = false

	if w.waveHalt {
		return
	}

	var modQuantity int32
	if modOut != 0 {
		// interpret the position as 7-bit two's complement
		pos7 := int32(modPos - ((modPos & 0x40) << 1))
		modQuantity = pos7 * int32(modOut)

		rem := modQuantity & 0x0F
		modQuantity >>= 4

		if rem > 0 && modQuantity&0x80 == 0 {
			if pos7 < 0 {
				modQuantity -= 1
			} else {
				modQuantity += 2
			}
		}

		for modQuantity >= 192 {
			modQuantity -= 256
		}
		for modQuantity < -64 {
			modQuantity += 256
		}

		modQuantity *= int32(w.frequency)

		rem = modQuantity & 0x3F
		modQuantity >>= 6

		if rem >= 32 {
			modQuantity++
		}
	}

	w.phase = uint32(int32(w.phase)+int32(w.frequency)+modQuantity) & 0x3FFFFF

	w.tickFrequency = float32(int32(w.frequency) + modQuantity)
}

func (w *WaveTable) WriteFrequencyLow(v uint8) {
	w.frequency = (w.frequency & 0xF00) | uint16(v)
}

func (w *WaveTable) WriteFrequencyHigh(v uint8) {
	w.frequency = (w.frequency & 0xFF) | (uint16(v) << 8)
	w.waveHalt = v&0x80 != 0
	w.envHalt = v&0x40 != 0
	if w.waveHalt {
		w.phase = 0
	}
	if w.envHalt {
		w.envHaltTicked = true
	}
}

// WriteConfig sets the wavetable write-enable flag and the 2-bit master
// volume divisor selector.
func (w *WaveTable) WriteConfig(v uint8) {
	w.writeEnable = v&0x80 != 0
	w.masterVolume = v & 0x03
}

// WriteSample stores a 6-bit sample. Only honored while write-enable is
// set.
func (w *WaveTable) WriteSample(index int, v uint8) {
	if w.writeEnable {
		w.table[index&0x3F] = v & 0x3F
	}
}

// Phase returns the 22-bit phase accumulator.
func (w *WaveTable) Phase() uint32 {
	return w.phase
}

func (w *WaveTable) index() uint32 {
	return (w.phase >> 16) & 0x3F
}
