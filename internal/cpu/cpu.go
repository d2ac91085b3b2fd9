// Package cpu implements the 2A03's 6502 core (no decimal mode). It exists
// purely as a clock source for the audio hardware: the driver's INIT and
// PLAY routines run on it, and the cycles they burn advance the APU.
package cpu

// Bus is the memory the core executes against.
type Bus interface {
	Read(addr uint16) uint8
	Write(addr uint16, v uint8)
}

const (
	flagC uint8 = 1 << 0
	flagZ uint8 = 1 << 1
	flagI uint8 = 1 << 2
	flagD uint8 = 1 << 3
	flagB uint8 = 1 << 4
	flagU uint8 = 1 << 5
	flagV uint8 = 1 << 6
	flagN uint8 = 1 << 7
)

// returnSentinel is where Call plants its fake return address. Execution
// stops when an RTS lands here.
const returnSentinel uint16 = 0x4100

// cycles holds the base cycle cost per opcode. Page-cross and branch
// penalties are folded in where they apply; sub-cycle accuracy does not
// matter for a clock source.
var cycles = [256]int{
	0x00: 7, 0x01: 6, 0x05: 3, 0x06: 5, 0x08: 3, 0x09: 2, 0x0A: 2, 0x0D: 4, 0x0E: 6,
	0x10: 2, 0x11: 5, 0x15: 4, 0x16: 6, 0x18: 2, 0x19: 4, 0x1D: 4, 0x1E: 7,
	0x20: 6, 0x21: 6, 0x24: 3, 0x25: 3, 0x26: 5, 0x28: 4, 0x29: 2, 0x2A: 2, 0x2C: 4, 0x2D: 4, 0x2E: 6,
	0x30: 2, 0x31: 5, 0x35: 4, 0x36: 6, 0x38: 2, 0x39: 4, 0x3D: 4, 0x3E: 7,
	0x40: 6, 0x41: 6, 0x45: 3, 0x46: 5, 0x48: 3, 0x49: 2, 0x4A: 2, 0x4C: 3, 0x4D: 4, 0x4E: 6,
	0x50: 2, 0x51: 5, 0x55: 4, 0x56: 6, 0x58: 2, 0x59: 4, 0x5D: 4, 0x5E: 7,
	0x60: 6, 0x61: 6, 0x65: 3, 0x66: 5, 0x68: 4, 0x69: 2, 0x6A: 2, 0x6C: 5, 0x6D: 4, 0x6E: 6,
	0x70: 2, 0x71: 5, 0x75: 4, 0x76: 6, 0x78: 2, 0x79: 4, 0x7D: 4, 0x7E: 7,
	0x81: 6, 0x84: 3, 0x85: 3, 0x86: 3, 0x88: 2, 0x8A: 2, 0x8C: 4, 0x8D: 4, 0x8E: 4,
	0x90: 2, 0x91: 6, 0x94: 4, 0x95: 4, 0x96: 4, 0x98: 2, 0x99: 5, 0x9A: 2, 0x9D: 5,
	0xA0: 2, 0xA1: 6, 0xA2: 2, 0xA4: 3, 0xA5: 3, 0xA6: 3, 0xA8: 2, 0xA9: 2, 0xAA: 2, 0xAC: 4, 0xAD: 4, 0xAE: 4,
	0xB0: 2, 0xB1: 5, 0xB4: 4, 0xB5: 4, 0xB6: 4, 0xB8: 2, 0xB9: 4, 0xBA: 2, 0xBC: 4, 0xBD: 4, 0xBE: 4,
	0xC0: 2, 0xC1: 6, 0xC4: 3, 0xC5: 3, 0xC6: 5, 0xC8: 2, 0xC9: 2, 0xCA: 2, 0xCC: 4, 0xCD: 4, 0xCE: 6,
	0xD0: 2, 0xD1: 5, 0xD5: 4, 0xD6: 6, 0xD8: 2, 0xD9: 4, 0xDD: 4, 0xDE: 7,
	0xE0: 2, 0xE1: 6, 0xE4: 3, 0xE5: 3, 0xE6: 5, 0xE8: 2, 0xE9: 2, 0xEA: 2, 0xEC: 4, 0xED: 4, 0xEE: 6,
	0xF0: 2, 0xF1: 5, 0xF5: 4, 0xF6: 6, 0xF8: 2, 0xF9: 4, 0xFD: 4, 0xFE: 7,
}

// CPU is a 6502 interpreter. Registers are exported for callers that need
// to set up the NSF calling convention (A = song index, X = region flag).
type CPU struct {
	A, X, Y uint8
	SP      uint8
	PC      uint16
	P       uint8

	// Cycles counts every cycle executed since Reset.
	Cycles uint64

	bus Bus
}

func New(bus Bus) *CPU {
	c := &CPU{bus: bus}
	c.Reset()
	return c
}

// Reset puts the core into the power-on state. The PC is not loaded from
// the reset vector; entry points are dispatched through Call.
func (c *CPU) Reset() {
	c.A, c.X, c.Y = 0, 0, 0
	c.SP = 0xFD
	c.P = flagU | flagI
	c.PC = returnSentinel
	c.Cycles = 0
}

func (c *CPU) fetch() uint8 {
	v := c.bus.Read(c.PC)
	c.PC++
	return v
}

func (c *CPU) fetch16() uint16 {
	lo := c.fetch()
	hi := c.fetch()
	return uint16(lo) | uint16(hi)<<8
}

// addressing modes

func (c *CPU) zp() uint16  { return uint16(c.fetch()) }
func (c *CPU) zpX() uint16 { return uint16(c.fetch() + c.X) }
func (c *CPU) zpY() uint16 { return uint16(c.fetch() + c.Y) }
func (c *CPU) abs() uint16 { return c.fetch16() }

func (c *CPU) absX() uint16 { return c.fetch16() + uint16(c.X) }
func (c *CPU) absY() uint16 { return c.fetch16() + uint16(c.Y) }

func (c *CPU) indX() uint16 {
	z := c.fetch() + c.X
	lo := c.bus.Read(uint16(z))
	hi := c.bus.Read(uint16(z + 1))
	return uint16(lo) | uint16(hi)<<8
}

func (c *CPU) indY() uint16 {
	z := c.fetch()
	lo := c.bus.Read(uint16(z))
	hi := c.bus.Read(uint16(z + 1))
	return (uint16(lo) | uint16(hi)<<8) + uint16(c.Y)
}

// stack and flag helpers

func (c *CPU) push(v uint8) {
	c.bus.Write(0x100+uint16(c.SP), v)
	c.SP--
}

func (c *CPU) pop() uint8 {
	c.SP++
	return c.bus.Read(0x100 + uint16(c.SP))
}

func (c *CPU) push16(v uint16) {
	c.push(uint8(v >> 8))
	c.push(uint8(v))
}

func (c *CPU) pop16() uint16 {
	lo := c.pop()
	hi := c.pop()
	return uint16(lo) | uint16(hi)<<8
}

func (c *CPU) setFlag(flag uint8, on bool) {
	if on {
		c.P |= flag
	} else {
		c.P &^= flag
	}
}

func (c *CPU) setNZ(v uint8) uint8 {
	c.setFlag(flagZ, v == 0)
	c.setFlag(flagN, v&0x80 != 0)
	return v
}

func (c *CPU) branch(taken bool) {
	off := int8(c.fetch())
	if taken {
		c.PC = uint16(int32(c.PC) + int32(off))
		c.Cycles++
	}
}

// arithmetic helpers

func (c *CPU) adc(v uint8) {
	sum := uint16(c.A) + uint16(v)
	if c.P&flagC != 0 {
		sum++
	}
	r := uint8(sum)
	c.setFlag(flagC, sum > 0xFF)
	c.setFlag(flagV, (c.A^r)&(v^r)&0x80 != 0)
	c.A = c.setNZ(r)
}

func (c *CPU) sbc(v uint8) {
	c.adc(^v)
}

func (c *CPU) cmp(reg, v uint8) {
	c.setFlag(flagC, reg >= v)
	c.setNZ(reg - v)
}

func (c *CPU) asl(v uint8) uint8 {
	c.setFlag(flagC, v&0x80 != 0)
	return c.setNZ(v << 1)
}

func (c *CPU) lsr(v uint8) uint8 {
	c.setFlag(flagC, v&0x01 != 0)
	return c.setNZ(v >> 1)
}

func (c *CPU) rol(v uint8) uint8 {
	carry := c.P&flagC != 0
	c.setFlag(flagC, v&0x80 != 0)
	v <<= 1
	if carry {
		v |= 0x01
	}
	return c.setNZ(v)
}

func (c *CPU) ror(v uint8) uint8 {
	carry := c.P&flagC != 0
	c.setFlag(flagC, v&0x01 != 0)
	v >>= 1
	if carry {
		v |= 0x80
	}
	return c.setNZ(v)
}

func (c *CPU) bit(v uint8) {
	c.setFlag(flagZ, c.A&v == 0)
	c.setFlag(flagV, v&0x40 != 0)
	c.setFlag(flagN, v&0x80 != 0)
}

func (c *CPU) rmw(addr uint16, op func(uint8) uint8) {
	c.bus.Write(addr, op(c.bus.Read(addr)))
}

// Step executes one instruction and returns the cycles it consumed.
func (c *CPU) Step() int {
	op := c.fetch()
	n := cycles[op]
	if n == 0 {
		// undocumented opcode; treat as a 2-cycle NOP so a stray byte in
		// a sloppy rip cannot wedge the player
		n = 2
	}
	c.Cycles += uint64(n)

	switch op {
	// loads
	case 0xA9:
		c.A = c.setNZ(c.fetch())
	case 0xA5:
		c.A = c.setNZ(c.bus.Read(c.zp()))
	case 0xB5:
		c.A = c.setNZ(c.bus.Read(c.zpX()))
	case 0xAD:
		c.A = c.setNZ(c.bus.Read(c.abs()))
	case 0xBD:
		c.A = c.setNZ(c.bus.Read(c.absX()))
	case 0xB9:
		c.A = c.setNZ(c.bus.Read(c.absY()))
	case 0xA1:
		c.A = c.setNZ(c.bus.Read(c.indX()))
	case 0xB1:
		c.A = c.setNZ(c.bus.Read(c.indY()))
	case 0xA2:
		c.X = c.setNZ(c.fetch())
	case 0xA6:
		c.X = c.setNZ(c.bus.Read(c.zp()))
	case 0xB6:
		c.X = c.setNZ(c.bus.Read(c.zpY()))
	case 0xAE:
		c.X = c.setNZ(c.bus.Read(c.abs()))
	case 0xBE:
		c.X = c.setNZ(c.bus.Read(c.absY()))
	case 0xA0:
		c.Y = c.setNZ(c.fetch())
	case 0xA4:
		c.Y = c.setNZ(c.bus.Read(c.zp()))
	case 0xB4:
		c.Y = c.setNZ(c.bus.Read(c.zpX()))
	case 0xAC:
		c.Y = c.setNZ(c.bus.Read(c.abs()))
	case 0xBC:
		c.Y = c.setNZ(c.bus.Read(c.absX()))

	// stores
	case 0x85:
		c.bus.Write(c.zp(), c.A)
	case 0x95:
		c.bus.Write(c.zpX(), c.A)
	case 0x8D:
		c.bus.Write(c.abs(), c.A)
	case 0x9D:
		c.bus.Write(c.absX(), c.A)
	case 0x99:
		c.bus.Write(c.absY(), c.A)
	case 0x81:
		c.bus.Write(c.indX(), c.A)
	case 0x91:
		c.bus.Write(c.indY(), c.A)
	case 0x86:
		c.bus.Write(c.zp(), c.X)
	case 0x96:
		c.bus.Write(c.zpY(), c.X)
	case 0x8E:
		c.bus.Write(c.abs(), c.X)
	case 0x84:
		c.bus.Write(c.zp(), c.Y)
	case 0x94:
		c.bus.Write(c.zpX(), c.Y)
	case 0x8C:
		c.bus.Write(c.abs(), c.Y)

	// transfers
	case 0xAA:
		c.X = c.setNZ(c.A)
	case 0xA8:
		c.Y = c.setNZ(c.A)
	case 0x8A:
		c.A = c.setNZ(c.X)
	case 0x98:
		c.A = c.setNZ(c.Y)
	case 0xBA:
		c.X = c.setNZ(c.SP)
	case 0x9A:
		c.SP = c.X

	// stack
	case 0x48:
		c.push(c.A)
	case 0x68:
		c.A = c.setNZ(c.pop())
	case 0x08:
		c.push(c.P | flagB | flagU)
	case 0x28:
		c.P = c.pop()&^flagB | flagU

	// logic
	case 0x29:
		c.A = c.setNZ(c.A & c.fetch())
	case 0x25:
		c.A = c.setNZ(c.A & c.bus.Read(c.zp()))
	case 0x35:
		c.A = c.setNZ(c.A & c.bus.Read(c.zpX()))
	case 0x2D:
		c.A = c.setNZ(c.A & c.bus.Read(c.abs()))
	case 0x3D:
		c.A = c.setNZ(c.A & c.bus.Read(c.absX()))
	case 0x39:
		c.A = c.setNZ(c.A & c.bus.Read(c.absY()))
	case 0x21:
		c.A = c.setNZ(c.A & c.bus.Read(c.indX()))
	case 0x31:
		c.A = c.setNZ(c.A & c.bus.Read(c.indY()))
	case 0x09:
		c.A = c.setNZ(c.A | c.fetch())
	case 0x05:
		c.A = c.setNZ(c.A | c.bus.Read(c.zp()))
	case 0x15:
		c.A = c.setNZ(c.A | c.bus.Read(c.zpX()))
	case 0x0D:
		c.A = c.setNZ(c.A | c.bus.Read(c.abs()))
	case 0x1D:
		c.A = c.setNZ(c.A | c.bus.Read(c.absX()))
	case 0x19:
		c.A = c.setNZ(c.A | c.bus.Read(c.absY()))
	case 0x01:
		c.A = c.setNZ(c.A | c.bus.Read(c.indX()))
	case 0x11:
		c.A = c.setNZ(c.A | c.bus.Read(c.indY()))
	case 0x49:
		c.A = c.setNZ(c.A ^ c.fetch())
	case 0x45:
		c.A = c.setNZ(c.A ^ c.bus.Read(c.zp()))
	case 0x55:
		c.A = c.setNZ(c.A ^ c.bus.Read(c.zpX()))
	case 0x4D:
		c.A = c.setNZ(c.A ^ c.bus.Read(c.abs()))
	case 0x5D:
		c.A = c.setNZ(c.A ^ c.bus.Read(c.absX()))
	case 0x59:
		c.A = c.setNZ(c.A ^ c.bus.Read(c.absY()))
	case 0x41:
		c.A = c.setNZ(c.A ^ c.bus.Read(c.indX()))
	case 0x51:
		c.A = c.setNZ(c.A ^ c.bus.Read(c.indY()))
	case 0x24:
		c.bit(c.bus.Read(c.zp()))
	case 0x2C:
		c.bit(c.bus.Read(c.abs()))

	// arithmetic
	case 0x69:
		c.adc(c.fetch())
	case 0x65:
		c.adc(c.bus.Read(c.zp()))
	case 0x75:
		c.adc(c.bus.Read(c.zpX()))
	case 0x6D:
		c.adc(c.bus.Read(c.abs()))
	case 0x7D:
		c.adc(c.bus.Read(c.absX()))
	case 0x79:
		c.adc(c.bus.Read(c.absY()))
	case 0x61:
		c.adc(c.bus.Read(c.indX()))
	case 0x71:
		c.adc(c.bus.Read(c.indY()))
	case 0xE9:
		c.sbc(c.fetch())
	case 0xE5:
		c.sbc(c.bus.Read(c.zp()))
	case 0xF5:
		c.sbc(c.bus.Read(c.zpX()))
	case 0xED:
		c.sbc(c.bus.Read(c.abs()))
	case 0xFD:
		c.sbc(c.bus.Read(c.absX()))
	case 0xF9:
		c.sbc(c.bus.Read(c.absY()))
	case 0xE1:
		c.sbc(c.bus.Read(c.indX()))
	case 0xF1:
		c.sbc(c.bus.Read(c.indY()))
	case 0xC9:
		c.cmp(c.A, c.fetch())
	case 0xC5:
		c.cmp(c.A, c.bus.Read(c.zp()))
	case 0xD5:
		c.cmp(c.A, c.bus.Read(c.zpX()))
	case 0xCD:
		c.cmp(c.A, c.bus.Read(c.abs()))
	case 0xDD:
		c.cmp(c.A, c.bus.Read(c.absX()))
	case 0xD9:
		c.cmp(c.A, c.bus.Read(c.absY()))
	case 0xC1:
		c.cmp(c.A, c.bus.Read(c.indX()))
	case 0xD1:
		c.cmp(c.A, c.bus.Read(c.indY()))
	case 0xE0:
		c.cmp(c.X, c.fetch())
	case 0xE4:
		c.cmp(c.X, c.bus.Read(c.zp()))
	case 0xEC:
		c.cmp(c.X, c.bus.Read(c.abs()))
	case 0xC0:
		c.cmp(c.Y, c.fetch())
	case 0xC4:
		c.cmp(c.Y, c.bus.Read(c.zp()))
	case 0xCC:
		c.cmp(c.Y, c.bus.Read(c.abs()))

	// increments and decrements
	case 0xE6:
		c.rmw(c.zp(), func(v uint8) uint8 { return c.setNZ(v + 1) })
	case 0xF6:
		c.rmw(c.zpX(), func(v uint8) uint8 { return c.setNZ(v + 1) })
	case 0xEE:
		c.rmw(c.abs(), func(v uint8) uint8 { return c.setNZ(v + 1) })
	case 0xFE:
		c.rmw(c.absX(), func(v uint8) uint8 { return c.setNZ(v + 1) })
	case 0xC6:
		c.rmw(c.zp(), func(v uint8) uint8 { return c.setNZ(v - 1) })
	case 0xD6:
		c.rmw(c.zpX(), func(v uint8) uint8 { return c.setNZ(v - 1) })
	case 0xCE:
		c.rmw(c.abs(), func(v uint8) uint8 { return c.setNZ(v - 1) })
	case 0xDE:
		c.rmw(c.absX(), func(v uint8) uint8 { return c.setNZ(v - 1) })
	case 0xE8:
		c.X = c.setNZ(c.X + 1)
	case 0xC8:
		c.Y = c.setNZ(c.Y + 1)
	case 0xCA:
		c.X = c.setNZ(c.X - 1)
	case 0x88:
		c.Y = c.setNZ(c.Y - 1)

	// shifts and rotates
	case 0x0A:
		c.A = c.asl(c.A)
	case 0x06:
		c.rmw(c.zp(), c.asl)
	case 0x16:
		c.rmw(c.zpX(), c.asl)
	case 0x0E:
		c.rmw(c.abs(), c.asl)
	case 0x1E:
		c.rmw(c.absX(), c.asl)
	case 0x4A:
		c.A = c.lsr(c.A)
	case 0x46:
		c.rmw(c.zp(), c.lsr)
	case 0x56:
		c.rmw(c.zpX(), c.lsr)
	case 0x4E:
		c.rmw(c.abs(), c.lsr)
	case 0x5E:
		c.rmw(c.absX(), c.lsr)
	case 0x2A:
		c.A = c.rol(c.A)
	case 0x26:
		c.rmw(c.zp(), c.rol)
	case 0x36:
		c.rmw(c.zpX(), c.rol)
	case 0x2E:
		c.rmw(c.abs(), c.rol)
	case 0x3E:
		c.rmw(c.absX(), c.rol)
	case 0x6A:
		c.A = c.ror(c.A)
	case 0x66:
		c.rmw(c.zp(), c.ror)
	case 0x76:
		c.rmw(c.zpX(), c.ror)
	case 0x6E:
		c.rmw(c.abs(), c.ror)
	case 0x7E:
		c.rmw(c.absX(), c.ror)

	// jumps and subroutines
	case 0x4C:
		c.PC = c.fetch16()
	case 0x6C:
		ptr := c.fetch16()
		lo := c.bus.Read(ptr)
		// the 6502 wraps the pointer high byte within the page
		hi := c.bus.Read(ptr&0xFF00 | (ptr+1)&0x00FF)
		c.PC = uint16(lo) | uint16(hi)<<8
	case 0x20:
		target := c.fetch16()
		c.push16(c.PC - 1)
		c.PC = target
	case 0x60:
		c.PC = c.pop16() + 1
	case 0x40:
		c.P = c.pop()&^flagB | flagU
		c.PC = c.pop16()
	case 0x00:
		c.PC++
		c.push16(c.PC)
		c.push(c.P | flagB | flagU)
		c.P |= flagI
		c.PC = uint16(c.bus.Read(0xFFFE)) | uint16(c.bus.Read(0xFFFF))<<8

	// branches
	case 0x10:
		c.branch(c.P&flagN == 0)
	case 0x30:
		c.branch(c.P&flagN != 0)
	case 0x50:
		c.branch(c.P&flagV == 0)
	case 0x70:
		c.branch(c.P&flagV != 0)
	case 0x90:
		c.branch(c.P&flagC == 0)
	case 0xB0:
		c.branch(c.P&flagC != 0)
	case 0xD0:
		c.branch(c.P&flagZ == 0)
	case 0xF0:
		c.branch(c.P&flagZ != 0)

	// flags
	case 0x18:
		c.P &^= flagC
	case 0x38:
		c.P |= flagC
	case 0x58:
		c.P &^= flagI
	case 0x78:
		c.P |= flagI
	case 0xB8:
		c.P &^= flagV
	case 0xD8:
		c.P &^= flagD
	case 0xF8:
		c.P |= flagD

	case 0xEA:
		// nop
	}

	return n
}

// BeginCall pushes a fake return address and jumps to addr, so stepping
// will execute the subroutine until its final RTS lands on the sentinel.
// Callers that need to interleave other hardware step the core themselves.
func (c *CPU) BeginCall(addr uint16) {
	c.push16(returnSentinel - 1)
	c.PC = addr
}

// Call runs the subroutine at addr until it returns or the cycle budget is
// exhausted, and reports the cycles consumed.
func (c *CPU) Call(addr uint16, budget uint64) uint64 {
	c.BeginCall(addr)

	var used uint64
	for c.PC != returnSentinel && used < budget {
		used += uint64(c.Step())
	}
	return used
}

// Returned reports whether the core is parked at the sentinel, i.e. the
// last Call finished.
func (c *CPU) Returned() bool {
	return c.PC == returnSentinel
}
