package fds

import "fmt"

// ModTable is the FDS modulation unit: a 64-entry command table stepped by
// a 12-bit frequency through a 22-bit phase accumulator, driving a 7-bit
// position counter.
type ModTable struct {
	table     [64]uint8
	frequency uint32
	phase     uint32
	halt      bool
	pos       uint32
	writePos  uint32
}

func NewModTable() *ModTable {
	return &ModTable{halt: true}
}

// Clock advances the modulator by one CPU cycle. Every table-entry boundary
// the phase crosses executes one command against the position counter.
func (m *ModTable) Clock() {
	if m.halt {
		return
	}

	start := m.phase >> 16
	m.phase += m.frequency
	end := m.phase >> 16

	m.phase &= 0x3FFFFF

	for p := start; p < end; p++ {
		switch m.table[p&0x3F] {
		case 0:
		case 1:
			m.pos += 1
		case 2:
			m.pos += 2
		case 3:
			m.pos += 4
		case 4:
			m.pos = 0
		case 5:
			m.pos -= 4
		case 6:
			m.pos -= 2
		case 7:
			m.pos -= 1
		default:
			panic(fmt.Sprintf("invalid modulator table entry %d", m.table[p&0x3F]))
		}
		m.pos &= 0x7F
	}
}

func (m *ModTable) WriteFrequencyLow(v uint8) {
	m.frequency = (m.frequency & 0xF00) | uint32(v)
}

func (m *ModTable) WriteFrequencyHigh(v uint8) {
	m.frequency = (m.frequency & 0xFF) | (uint32(v&0x0F) << 8)
	m.halt = v&0x80 != 0

	if m.halt {
		// halting keeps only the coarse table position
		m.phase &= 0x3F0000
	}
}

// WritePosition sets the position counter and the pending table write
// cursor.
func (m *ModTable) WritePosition(v uint8) {
	m.pos = uint32(v & 0x7F)
	m.writePos = m.pos
}

// WriteTableEntry stores a 3-bit command into two consecutive table slots.
// Only honored while the modulator is halted, as on hardware.
func (m *ModTable) WriteTableEntry(v uint8) {
	if !m.halt {
		return
	}
	for i := 0; i < 2; i++ {
		m.table[m.writePos&0x3F] = v & 0x07
		m.writePos++
	}
}

// Pos returns the 7-bit position counter.
func (m *ModTable) Pos() uint32 {
	return m.pos
}

// Phase returns the 22-bit phase accumulator.
func (m *ModTable) Phase() uint32 {
	return m.phase
}
