// Package nsf decodes the NES Sound Format container and its NSFe/NSF2
// chunked metadata extension.
package nsf

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Framerate is the NTSC frame rate derived from the 2A03 clock and the
// PPU's 29780.5-cycle frame.
const Framerate = 1789772.7272727 / 29780.5

// headerLength is the fixed NSF header size; program bytes follow.
const headerLength = 0x80

var (
	magicNSF  = []byte("NESM\x1A")
	magicNSFe = []byte("NSFE")
)

// DriverType identifies the in-ROM playback routine, when recognizable.
// Only the FamiTracker family exposes a stable song-position layout.
type DriverType int

const (
	DriverUnknown DriverType = iota
	DriverFTClassic
	DriverFT0CC
	DriverFTDn
)

func (d DriverType) String() string {
	switch d {
	case DriverFTClassic:
		return "FamiTracker"
	case DriverFT0CC:
		return "0CC-FamiTracker"
	case DriverFTDn:
		return "Dn-FamiTracker"
	}
	return "Unknown"
}

// File is a parsed NSF module. NSFe input is converted to the equivalent
// NSF2 image on load, so the rest of the code deals with one layout.
type File struct {
	data   []byte
	driver DriverType
	meta   *Metadata
}

// New parses an NSF or NSFe image.
func New(data []byte) (*File, error) {
	if bytes.HasPrefix(data, magicNSFe) {
		converted, err := nsfeToNSF2(data)
		if err != nil {
			return nil, fmt.Errorf("converting NSFe: %w", err)
		}
		data = converted
	}

	if len(data) < headerLength {
		return nil, fmt.Errorf("file too short for an NSF header: %d bytes", len(data))
	}
	if !bytes.HasPrefix(data, magicNSF) {
		return nil, fmt.Errorf("bad magic %q", data[:5])
	}

	f := &File{data: data, driver: detectDriver(data)}

	if f.Version() == 2 && f.nsf2HasMetadata() {
		offset := int(f.nsf2ProgramLength()) + headerLength
		if offset < len(data) {
			meta, err := parseMetadata(data[offset:])
			if err != nil {
				return nil, fmt.Errorf("parsing NSFe metadata: %w", err)
			}
			f.meta = meta
		}
	}

	return f, nil
}

func detectDriver(data []byte) DriverType {
	switch {
	case bytes.Contains(data, []byte("FTDRV")):
		return DriverFTClassic
	case bytes.Contains(data, []byte("0CCFT")):
		return DriverFT0CC
	case bytes.Contains(data, []byte("DN-FT")), bytes.Contains(data, []byte("Dn-FT")):
		return DriverFTDn
	}
	return DriverUnknown
}

func (f *File) Version() uint8 { return f.data[5] }

// Songs is the total track count.
func (f *File) Songs() uint8 { return f.data[6] }

// StartingSong is 1-based.
func (f *File) StartingSong() uint8 { return f.data[7] }

func (f *File) LoadAddress() uint16 { return binary.LittleEndian.Uint16(f.data[0x08:]) }
func (f *File) InitAddress() uint16 { return binary.LittleEndian.Uint16(f.data[0x0A:]) }
func (f *File) PlayAddress() uint16 { return binary.LittleEndian.Uint16(f.data[0x0C:]) }

func (f *File) Title() string     { return f.headerString(0x0E) }
func (f *File) Artist() string    { return f.headerString(0x2E) }
func (f *File) Copyright() string { return f.headerString(0x4E) }

func (f *File) headerString(offset int) string {
	field := f.data[offset : offset+0x20]
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	return string(field)
}

// BankInit returns the eight initial bank registers from the header.
func (f *File) BankInit() [8]uint8 {
	var banks [8]uint8
	copy(banks[:], f.data[0x70:0x78])
	return banks
}

// UsesBanking reports whether any initial bank register is set; a fully
// zero set means the program maps flat at the load address.
func (f *File) UsesBanking() bool {
	return f.BankInit() != [8]uint8{}
}

func (f *File) expansion(mask uint8) bool { return f.data[0x7B]&mask != 0 }

func (f *File) VRC6() bool { return f.expansion(0x01) }
func (f *File) VRC7() bool { return f.expansion(0x02) }
func (f *File) FDS() bool  { return f.expansion(0x04) }
func (f *File) MMC5() bool { return f.expansion(0x08) }
func (f *File) N163() bool { return f.expansion(0x10) }
func (f *File) S5B() bool  { return f.expansion(0x20) }

func (f *File) nsf2HasMetadata() bool { return f.data[0x7C]&0x80 != 0 }

func (f *File) nsf2ProgramLength() uint32 {
	return (binary.LittleEndian.Uint32(f.data[0x7C:0x80]) & 0xFFFFFF00) >> 8
}

// Program returns the 6502 program image that follows the header. Under
// NSF2 the declared program length separates it from trailing metadata.
func (f *File) Program() []byte {
	program := f.data[headerLength:]
	if f.Version() == 2 {
		if n := int(f.nsf2ProgramLength()); n > 0 && n <= len(program) {
			program = program[:n]
		}
	}
	return program
}

// Driver returns the recognized playback driver family, or DriverUnknown.
func (f *File) Driver() DriverType {
	return f.driver
}

// Metadata returns the parsed NSFe metadata, or nil when the file carries
// none.
func (f *File) Metadata() *Metadata {
	return f.meta
}
