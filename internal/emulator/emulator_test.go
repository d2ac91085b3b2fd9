package emulator

import (
	"encoding/binary"
	"testing"

	"github.com/thelolagemann/go-nsf/internal/nsf"
	"github.com/thelolagemann/go-nsf/pkg/log"
)

// buildModule assembles a minimal NSF image: INIT at $8000, PLAY at
// $8010, program body as given.
func buildModule(t *testing.T, program []byte, mutate func(header []byte)) *nsf.File {
	t.Helper()
	header := make([]byte, 0x80)
	copy(header, "NESM\x1A")
	header[5] = 1
	header[6] = 1
	header[7] = 1
	binary.LittleEndian.PutUint16(header[0x08:], 0x8000)
	binary.LittleEndian.PutUint16(header[0x0A:], 0x8000)
	binary.LittleEndian.PutUint16(header[0x0C:], 0x8010)
	if mutate != nil {
		mutate(header)
	}

	f, err := nsf.New(append(header, program...))
	if err != nil {
		t.Fatal(err)
	}
	return f
}

// program returns 32 bytes: INIT (RTS) at offset 0, play at offset 0x10.
func program(play ...byte) []byte {
	p := make([]byte, 0x20)
	p[0] = 0x60
	copy(p[0x10:], play)
	return p
}

func newTestEmulator(t *testing.T, f *nsf.File) *Emulator {
	t.Helper()
	e := New(f, 44100, log.NewNullLogger())
	if err := e.SelectTrack(1); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestStepFrameCallsPlayOncePerFrame(t *testing.T) {
	// PLAY: INC $F0; RTS
	f := buildModule(t, program(0xE6, 0xF0, 0x60), nil)
	e := newTestEmulator(t, f)

	for i := 1; i <= 3; i++ {
		e.StepFrame()
		if got := e.bus.ram[0xF0]; got != uint8(i) {
			t.Fatalf("after %d frames ram[$F0] = %d", i, got)
		}
	}
	if e.Frame() != 3 {
		t.Errorf("Frame() = %d, want 3", e.Frame())
	}
}

func TestSelectTrackBoundsRunawayInit(t *testing.T) {
	// INIT: JMP $8000, an infinite loop
	p := make([]byte, 0x20)
	copy(p, []byte{0x4C, 0x00, 0x80})
	p[0x10] = 0x60
	f := buildModule(t, p, nil)
	e := New(f, 44100, log.NewNullLogger())

	// ten frames of cycles and not a cycle more
	if err := e.SelectTrack(1); err != nil {
		t.Fatal(err)
	}
	if e.cpu.Cycles < initCycleBudget || e.cpu.Cycles > initCycleBudget+10 {
		t.Errorf("init consumed %d cycles, budget is %d", e.cpu.Cycles, initCycleBudget)
	}
}

func TestStepFrameProducesAudio(t *testing.T) {
	f := buildModule(t, program(0x60), nil)
	e := newTestEmulator(t, f)
	e.ClearSampleBuffer()

	// the first frame is short: stepping starts at scanline 0 and only
	// runs up to the vblank boundary
	e.StepFrame()
	e.StepFrame()
	// two NTSC frames at 44.1 kHz are ~1400 samples
	queued := e.APU().SamplesQueued()
	if queued < 1300 || queued > 1500 {
		t.Errorf("SamplesQueued() = %d after two frames", queued)
	}
}

func TestSelectTrackOutOfRange(t *testing.T) {
	f := buildModule(t, program(0x60), nil)
	e := New(f, 44100, log.NewNullLogger())

	if err := e.SelectTrack(0); err == nil {
		t.Error("SelectTrack(0) succeeded")
	}
	if err := e.SelectTrack(2); err == nil {
		t.Error("SelectTrack(2) succeeded on a 1-track module")
	}
}

func withDriverSignature(sig string) func([]byte) []byte {
	return func(p []byte) []byte { return append(p, []byte(sig)...) }
}

func TestSongPositionUnavailableWithoutDriver(t *testing.T) {
	f := buildModule(t, program(0x60), nil)
	e := newTestEmulator(t, f)

	if _, ok := e.SongPosition(); ok {
		t.Error("SongPosition() available with unknown driver")
	}
	if _, ok := e.LoopCount(); ok {
		t.Error("LoopCount() available with unknown driver")
	}
}

func TestSongPositionDecoding(t *testing.T) {
	f := buildModule(t, withDriverSignature("FTDRV")(program(0x60)), nil)
	e := newTestEmulator(t, f)

	set := func(playerFlags, row, frame, engineFlags uint8) {
		e.bus.ram[0x211] = playerFlags
		e.bus.ram[0x212] = row
		e.bus.ram[0x213] = frame
		e.bus.ram[0x214] = engineFlags
	}

	set(0, 7, 3, 0)
	if p, ok := e.SongPosition(); !ok || p != (SongPosition{Frame: 3, Row: 7}) {
		t.Errorf("position = %v, %v", p, ok)
	}

	// engine mid frame-load forces row to 0
	set(0, 7, 3, 1)
	if p, _ := e.SongPosition(); p != (SongPosition{Frame: 3}) {
		t.Errorf("position during frame load = %v", p)
	}

	// halt effect reports end
	set(2, 7, 3, 0)
	if p, _ := e.SongPosition(); !p.Ended {
		t.Errorf("position after halt = %v", p)
	}
}

func TestSongPositionOffsetShiftsForFDS(t *testing.T) {
	f := buildModule(t, withDriverSignature("0CCFT")(program(0x60)), func(h []byte) {
		h[0x7B] = 0x04
	})
	e := newTestEmulator(t, f)

	// 0CC driver base 0x215, +2 for the FDS
	e.bus.ram[0x217] = 0
	e.bus.ram[0x218] = 9
	e.bus.ram[0x219] = 4
	e.bus.ram[0x21A] = 0

	if p, ok := e.SongPosition(); !ok || p != (SongPosition{Frame: 4, Row: 9}) {
		t.Errorf("position = %v, %v", p, ok)
	}
}

func TestLoopDetection(t *testing.T) {
	f := buildModule(t, withDriverSignature("FTDRV")(program(0x60)), nil)
	e := newTestEmulator(t, f)

	setPosition := func(frame, row uint8) {
		e.bus.ram[0x211] = 0
		e.bus.ram[0x212] = row
		e.bus.ram[0x213] = frame
		e.bus.ram[0x214] = 0
	}

	// 70 distinct positions, one per emulated frame
	for i := 0; i < 70; i++ {
		setPosition(uint8(5+i), 0)
		e.StepFrame()
	}
	setPosition(250, 3)
	e.StepFrame()

	if n, _ := e.LoopCount(); n != 0 {
		t.Fatalf("loop count = %d before wrap", n)
	}

	// frame counter wraps back to an already-seen position
	setPosition(5, 0)
	e.StepFrame()

	if n, _ := e.LoopCount(); n != 1 {
		t.Errorf("loop count = %d, want 1", n)
	}

	start, length, ok := e.LoopDuration()
	if !ok {
		t.Fatal("loop window not memoized")
	}
	// position (5,0) was first seen on emulated frame 1, recurred on
	// frame 72
	if start != 1 || length != 71 {
		t.Errorf("loop window = (%d, %d), want (1, 71)", start, length)
	}
}

func TestLoopWindowRequiresMinimumDistance(t *testing.T) {
	f := buildModule(t, withDriverSignature("FTDRV")(program(0x60)), nil)
	e := newTestEmulator(t, f)

	setPosition := func(frame uint8) {
		e.bus.ram[0x213] = frame
	}

	for i := 0; i < 10; i++ {
		setPosition(uint8(100 + i))
		e.StepFrame()
	}
	setPosition(100)
	e.StepFrame()

	if _, _, ok := e.LoopDuration(); ok {
		t.Error("loop window memoized below the 60-frame minimum")
	}
}

func TestScaleSample(t *testing.T) {
	tests := []struct {
		sample  int16
		divisor int16
		want    int16
	}{
		{3000, 1, 4000},
		{3000, 3, 1333},
		{-3000, 1, -4000},
		{0, 5, 0},
		{30000, 1, 32767}, // saturates
	}
	for _, tt := range tests {
		if got := scaleSample(tt.sample, tt.divisor); got != tt.want {
			t.Errorf("scaleSample(%d, %d) = %d, want %d", tt.sample, tt.divisor, got, tt.want)
		}
	}
}

func TestConsumeSamplesBatching(t *testing.T) {
	f := buildModule(t, program(0x60), nil)
	e := newTestEmulator(t, f)
	e.ClearSampleBuffer()

	if got := e.ConsumeSamples(100, 1); got != nil {
		t.Fatalf("ConsumeSamples returned %d samples from an empty buffer", len(got))
	}

	e.StepFrame()
	batch := e.ConsumeSamples(500, 1)
	if len(batch) != 500 {
		t.Fatalf("batch length = %d, want 500", len(batch))
	}
}

func TestMetadataFallsBackToHeader(t *testing.T) {
	f := buildModule(t, program(0x60), func(h []byte) {
		copy(h[0x0E:], "Module Title")
		copy(h[0x2E:], "Module Artist")
		copy(h[0x4E:], "1990")
	})
	e := newTestEmulator(t, f)

	title, artist, copyright := e.Metadata()
	if title != "Module Title" || artist != "Module Artist" || copyright != "1990" {
		t.Errorf("metadata = %q/%q/%q", title, artist, copyright)
	}
}
