package nsf

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func buildNSF(t *testing.T, mutate func(header []byte), program []byte) []byte {
	t.Helper()
	header := make([]byte, headerLength)
	copy(header, magicNSF)
	header[5] = 1  // version
	header[6] = 3  // songs
	header[7] = 1  // starting song
	binary.LittleEndian.PutUint16(header[0x08:], 0x8000)
	binary.LittleEndian.PutUint16(header[0x0A:], 0x8000)
	binary.LittleEndian.PutUint16(header[0x0C:], 0x8003)
	copy(header[0x0E:], "Test Module")
	copy(header[0x2E:], "An Author")
	copy(header[0x4E:], "2026")
	if mutate != nil {
		mutate(header)
	}
	return append(header, program...)
}

func TestParseHeader(t *testing.T) {
	f, err := New(buildNSF(t, nil, []byte{0x60}))
	if err != nil {
		t.Fatal(err)
	}

	if f.Songs() != 3 {
		t.Errorf("Songs() = %d, want 3", f.Songs())
	}
	if f.StartingSong() != 1 {
		t.Errorf("StartingSong() = %d, want 1", f.StartingSong())
	}
	if f.LoadAddress() != 0x8000 || f.InitAddress() != 0x8000 || f.PlayAddress() != 0x8003 {
		t.Errorf("addresses = %#x/%#x/%#x", f.LoadAddress(), f.InitAddress(), f.PlayAddress())
	}
	if f.Title() != "Test Module" {
		t.Errorf("Title() = %q", f.Title())
	}
	if f.Artist() != "An Author" {
		t.Errorf("Artist() = %q", f.Artist())
	}
	if f.FDS() {
		t.Error("FDS() = true for plain 2A03 module")
	}
	if f.UsesBanking() {
		t.Error("UsesBanking() = true with zero bank table")
	}
}

func TestBadMagic(t *testing.T) {
	data := buildNSF(t, func(h []byte) { h[0] = 'X' }, nil)
	if _, err := New(data); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestExpansionFlags(t *testing.T) {
	f, err := New(buildNSF(t, func(h []byte) { h[0x7B] = 0x04 | 0x01 }, nil))
	if err != nil {
		t.Fatal(err)
	}
	if !f.FDS() || !f.VRC6() {
		t.Error("FDS/VRC6 flags not decoded")
	}
	if f.MMC5() || f.N163() {
		t.Error("unset expansion flags decoded as set")
	}
}

func TestDriverDetection(t *testing.T) {
	tests := []struct {
		signature string
		want      DriverType
	}{
		{"FTDRV", DriverFTClassic},
		{"0CCFT", DriverFT0CC},
		{"DN-FT", DriverFTDn},
		{"Dn-FT", DriverFTDn},
		{"none here", DriverUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.signature, func(t *testing.T) {
			program := append([]byte{0x60, 0x00}, []byte(tt.signature)...)
			f, err := New(buildNSF(t, nil, program))
			if err != nil {
				t.Fatal(err)
			}
			if f.Driver() != tt.want {
				t.Errorf("Driver() = %v, want %v", f.Driver(), tt.want)
			}
		})
	}
}

func appendChunk(data []byte, fourCC string, payload []byte) []byte {
	data = binary.LittleEndian.AppendUint32(data, uint32(len(payload)))
	data = append(data, fourCC...)
	return append(data, payload...)
}

func buildNSFe(t *testing.T) []byte {
	t.Helper()
	info := []byte{
		0x00, 0x80, // load
		0x00, 0x80, // init
		0x03, 0x80, // play
		0x00, // NTSC
		0x04, // FDS
		0x02, // songs
		0x00, // starting song - 1
	}

	data := []byte("NSFE")
	data = appendChunk(data, "INFO", info)
	data = appendChunk(data, "DATA", []byte{0x60, 0x60, 0x60, 0x60})
	data = appendChunk(data, "auth", []byte("Game\x00Composer\x001986 Studio\x00Ripper"))
	data = appendChunk(data, "tlbl", []byte("Overworld\x00Dungeon"))

	// 2000 ms and 90000 ms durations
	times := binary.LittleEndian.AppendUint32(nil, 2000)
	times = binary.LittleEndian.AppendUint32(times, 90000)
	data = appendChunk(data, "time", times)

	data = appendChunk(data, "NEND", nil)
	return data
}

func TestNSFeConversion(t *testing.T) {
	f, err := New(buildNSFe(t))
	if err != nil {
		t.Fatal(err)
	}

	if f.Version() != 2 {
		t.Errorf("Version() = %d, want 2", f.Version())
	}
	if f.Songs() != 2 {
		t.Errorf("Songs() = %d, want 2", f.Songs())
	}
	if f.StartingSong() != 1 {
		t.Errorf("StartingSong() = %d, want 1", f.StartingSong())
	}
	if !f.FDS() {
		t.Error("FDS flag lost in conversion")
	}
	if f.Title() != "Game" || f.Artist() != "Composer" {
		t.Errorf("metadata = %q / %q", f.Title(), f.Artist())
	}
	if !bytes.Equal(f.Program(), []byte{0x60, 0x60, 0x60, 0x60}) {
		t.Errorf("Program() = %v", f.Program())
	}
}

func TestNSFeTrackMetadata(t *testing.T) {
	f, err := New(buildNSFe(t))
	if err != nil {
		t.Fatal(err)
	}

	meta := f.Metadata()
	if meta == nil {
		t.Fatal("Metadata() = nil after NSFe conversion")
	}

	track := meta.TrackInfo(1)
	if track == nil {
		t.Fatal("TrackInfo(1) = nil")
	}
	if !track.HasLabel || track.Label != "Overworld" {
		t.Errorf("track 1 label = %q", track.Label)
	}
	if !track.HasDuration {
		t.Fatal("track 1 has no duration")
	}
	// 2000 ms at the NTSC frame rate
	if want := millisecondsToFrames(2000); track.Duration != want {
		t.Errorf("track 1 duration = %d frames, want %d", track.Duration, want)
	}

	if track2 := meta.TrackInfo(2); track2 == nil || track2.Label != "Dungeon" {
		t.Error("track 2 label missing")
	}
	if meta.TrackInfo(3) != nil {
		t.Error("TrackInfo(3) should be nil")
	}
}

func TestNSFeMissingInfoChunk(t *testing.T) {
	data := []byte("NSFE")
	data = appendChunk(data, "DATA", []byte{0x60})
	data = appendChunk(data, "NEND", nil)

	if _, err := New(data); err == nil {
		t.Fatal("expected error for NSFe without INFO chunk")
	}
}

func TestTruncatedChunk(t *testing.T) {
	data := []byte("NSFE")
	data = binary.LittleEndian.AppendUint32(data, 100)
	data = append(data, "INFO"...)
	data = append(data, 0x00)

	if _, err := New(data); err == nil {
		t.Fatal("expected error for truncated chunk")
	}
}
