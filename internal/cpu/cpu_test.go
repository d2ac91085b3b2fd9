package cpu

import "testing"

type flatBus struct {
	mem [0x10000]uint8
}

func (b *flatBus) Read(addr uint16) uint8     { return b.mem[addr] }
func (b *flatBus) Write(addr uint16, v uint8) { b.mem[addr] = v }

func load(b *flatBus, addr uint16, code ...uint8) {
	copy(b.mem[addr:], code)
}

func TestCallRunsUntilRTS(t *testing.T) {
	b := &flatBus{}
	// LDA #$42; STA $0200; RTS
	load(b, 0x8000, 0xA9, 0x42, 0x8D, 0x00, 0x02, 0x60)

	c := New(b)
	used := c.Call(0x8000, 10000)

	if !c.Returned() {
		t.Fatal("call did not return")
	}
	if b.mem[0x0200] != 0x42 {
		t.Errorf("mem[$0200] = %#x, want 0x42", b.mem[0x0200])
	}
	if used != 2+4+6 {
		t.Errorf("cycles = %d, want 12", used)
	}
}

func TestCallBudgetStopsRunawayRoutine(t *testing.T) {
	b := &flatBus{}
	// JMP $8000 (infinite loop)
	load(b, 0x8000, 0x4C, 0x00, 0x80)

	c := New(b)
	used := c.Call(0x8000, 1000)

	if c.Returned() {
		t.Fatal("infinite loop reported as returned")
	}
	if used < 1000 {
		t.Errorf("used = %d, want >= budget", used)
	}
}

func TestArithmeticFlags(t *testing.T) {
	tests := []struct {
		name    string
		code    []uint8
		wantA   uint8
		wantC   bool
		wantV   bool
		wantN   bool
		wantZ   bool
		presetC bool
	}{
		{name: "adc simple", code: []uint8{0xA9, 0x10, 0x69, 0x22, 0x60}, wantA: 0x32},
		{name: "adc carry out", code: []uint8{0xA9, 0xFF, 0x69, 0x01, 0x60}, wantA: 0x00, wantC: true, wantZ: true},
		{name: "adc overflow", code: []uint8{0xA9, 0x7F, 0x69, 0x01, 0x60}, wantA: 0x80, wantV: true, wantN: true},
		{name: "adc carry in", code: []uint8{0xA9, 0x10, 0x69, 0x22, 0x60}, wantA: 0x33, presetC: true},
		{name: "sbc borrow", code: []uint8{0x38, 0xA9, 0x05, 0xE9, 0x06, 0x60}, wantA: 0xFF, wantN: true},
		{name: "sbc exact", code: []uint8{0x38, 0xA9, 0x05, 0xE9, 0x05, 0x60}, wantA: 0x00, wantC: true, wantZ: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &flatBus{}
			load(b, 0x8000, tt.code...)
			c := New(b)
			if tt.presetC {
				c.P |= flagC
			}
			c.Call(0x8000, 10000)

			if c.A != tt.wantA {
				t.Errorf("A = %#x, want %#x", c.A, tt.wantA)
			}
			for _, f := range []struct {
				flag uint8
				want bool
				name string
			}{
				{flagC, tt.wantC, "C"},
				{flagV, tt.wantV, "V"},
				{flagN, tt.wantN, "N"},
				{flagZ, tt.wantZ, "Z"},
			} {
				if got := c.P&f.flag != 0; got != f.want {
					t.Errorf("flag %s = %v, want %v", f.name, got, f.want)
				}
			}
		})
	}
}

func TestIndexedIndirectStore(t *testing.T) {
	b := &flatBus{}
	// pointer table at $10: -> $0300
	b.mem[0x14] = 0x00
	b.mem[0x15] = 0x03
	// LDX #$04; LDA #$AB; STA ($10,X); RTS
	load(b, 0x8000, 0xA2, 0x04, 0xA9, 0xAB, 0x81, 0x10, 0x60)

	c := New(b)
	c.Call(0x8000, 10000)

	if b.mem[0x0300] != 0xAB {
		t.Errorf("mem[$0300] = %#x, want 0xAB", b.mem[0x0300])
	}
}

func TestIndirectIndexedLoad(t *testing.T) {
	b := &flatBus{}
	b.mem[0x10] = 0x00
	b.mem[0x11] = 0x03
	b.mem[0x0305] = 0x77
	// LDY #$05; LDA ($10),Y; RTS
	load(b, 0x8000, 0xA0, 0x05, 0xB1, 0x10, 0x60)

	c := New(b)
	c.Call(0x8000, 10000)

	if c.A != 0x77 {
		t.Errorf("A = %#x, want 0x77", c.A)
	}
}

func TestLoopWritesSequence(t *testing.T) {
	b := &flatBus{}
	// LDX #$00; loop: TXA; STA $0200,X; INX; CPX #$08; BNE loop; RTS
	load(b, 0x8000,
		0xA2, 0x00,
		0x8A,
		0x9D, 0x00, 0x02,
		0xE8,
		0xE0, 0x08,
		0xD0, 0xF7,
		0x60,
	)

	c := New(b)
	c.Call(0x8000, 100000)

	for i := uint16(0); i < 8; i++ {
		if b.mem[0x0200+i] != uint8(i) {
			t.Errorf("mem[$02%02X] = %#x, want %#x", i, b.mem[0x0200+i], i)
		}
	}
}

func TestJMPIndirectPageWrap(t *testing.T) {
	b := &flatBus{}
	b.mem[0x02FF] = 0x00
	b.mem[0x0200] = 0x90 // high byte read wraps within the page
	// JMP ($02FF); at $9000: RTS
	load(b, 0x8000, 0x6C, 0xFF, 0x02)
	load(b, 0x9000, 0x60)

	c := New(b)
	c.Call(0x8000, 10000)

	if !c.Returned() {
		t.Fatal("call did not return through wrapped vector")
	}
}

func TestUndocumentedOpcodeDoesNotWedge(t *testing.T) {
	b := &flatBus{}
	// $80 is an undocumented NOP variant; core must skip it and reach RTS
	load(b, 0x8000, 0x80, 0x60)

	c := New(b)
	c.Call(0x8000, 100)

	if !c.Returned() {
		t.Fatal("undocumented opcode wedged the core")
	}
}
