package emulator

import (
	"github.com/thelolagemann/go-nsf/internal/apu"
	"github.com/thelolagemann/go-nsf/internal/apu/fds"
	"github.com/thelolagemann/go-nsf/internal/nsf"
)

const bankSize = 0x1000

// bus is the player's memory map: 2 KiB internal RAM mirrored through
// $1FFF, the APU and expansion registers, bank-select registers at
// $5FF6-$5FFF, and the program image in $6000-$FFFF.
type bus struct {
	ram [0x800]uint8

	apu *apu.APU
	fds *fds.Channel

	// flat image of $6000-$FFFF when the module does not bank-switch
	mem []uint8

	banked bool
	banks  [][]uint8
	// page table for the ten 4 KiB pages at $6000-$FFFF; -1 selects the
	// dedicated work RAM
	pages [10]int
	wram  [0x2000]uint8

	fdsMode bool
}

func newBus(file *nsf.File) *bus {
	b := &bus{fdsMode: file.FDS()}

	program := file.Program()
	if file.UsesBanking() {
		b.banked = true

		// the program starts at (load & 0xFFF) into the first bank
		offset := int(file.LoadAddress()) & (bankSize - 1)
		padded := make([]uint8, (offset+len(program)+bankSize-1)/bankSize*bankSize)
		copy(padded[offset:], program)
		for i := 0; i < len(padded); i += bankSize {
			b.banks = append(b.banks, padded[i:i+bankSize])
		}

		init := file.BankInit()
		for i := 0; i < 8; i++ {
			b.pages[2+i] = int(init[i]) % len(b.banks)
		}
		if b.fdsMode {
			b.pages[0] = int(init[6]) % len(b.banks)
			b.pages[1] = int(init[7]) % len(b.banks)
		} else {
			b.pages[0] = -1
			b.pages[1] = -1
		}
	} else {
		b.mem = make([]uint8, 0xA000)
		if load := int(file.LoadAddress()); load >= 0x6000 {
			copy(b.mem[load-0x6000:], program)
		}
	}

	return b
}

// writable reports whether a program-space address accepts writes. The
// FDS maps RAM through $DFFF; otherwise only $6000-$7FFF is RAM.
func (b *bus) writable(addr uint16) bool {
	if b.fdsMode {
		return addr < 0xE000
	}
	return addr < 0x8000
}

func (b *bus) Read(addr uint16) uint8 {
	switch {
	case addr < 0x2000:
		return b.ram[addr&0x7FF]
	case addr == 0x4015:
		return b.apu.ReadRegister(addr)
	case b.fds != nil && addr >= 0x4090 && addr <= 0x4092:
		return b.fds.ReadRegister(addr)
	case addr >= 0x6000:
		page := int(addr-0x6000) / bankSize
		if !b.banked {
			return b.mem[addr-0x6000]
		}
		if b.pages[page] < 0 {
			return b.wram[addr-0x6000]
		}
		return b.banks[b.pages[page]][addr&(bankSize-1)]
	}
	return 0
}

func (b *bus) Write(addr uint16, v uint8) {
	switch {
	case addr < 0x2000:
		b.ram[addr&0x7FF] = v
	case addr >= 0x4000 && addr <= 0x4017:
		b.apu.WriteRegister(addr, v)
	case b.fds != nil && addr >= 0x4040 && addr <= 0x408A:
		b.fds.WriteRegister(addr, v)
	case b.banked && addr >= 0x5FF6 && addr <= 0x5FFF:
		b.pages[addr-0x5FF6] = int(v) % len(b.banks)
	case addr >= 0x6000:
		page := int(addr-0x6000) / bankSize
		if !b.banked {
			if b.writable(addr) {
				b.mem[addr-0x6000] = v
			}
			return
		}
		if b.pages[page] < 0 {
			b.wram[addr-0x6000] = v
			return
		}
		if b.writable(addr) {
			b.banks[b.pages[page]][addr&(bankSize-1)] = v
		}
	}
}
