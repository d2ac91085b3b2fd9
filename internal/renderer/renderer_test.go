package renderer

import (
	"encoding/binary"
	"testing"

	"github.com/thelolagemann/go-nsf/internal/emulator"
	"github.com/thelolagemann/go-nsf/internal/nsf"
	"github.com/thelolagemann/go-nsf/pkg/log"
)

// buildEmulator assembles a minimal one-track module: INIT returns
// immediately, PLAY runs the given bytes (RTS when empty).
func buildEmulator(t *testing.T, driverSignature string, play ...byte) *emulator.Emulator {
	t.Helper()
	header := make([]byte, 0x80)
	copy(header, "NESM\x1A")
	header[5] = 1
	header[6] = 1
	header[7] = 1
	binary.LittleEndian.PutUint16(header[0x08:], 0x8000)
	binary.LittleEndian.PutUint16(header[0x0A:], 0x8000)
	binary.LittleEndian.PutUint16(header[0x0C:], 0x8010)

	if len(play) == 0 {
		play = []byte{0x60}
	}
	program := make([]byte, 0x20)
	program[0] = 0x60
	copy(program[0x10:], play)
	program = append(program, []byte(driverSignature)...)

	f, err := nsf.New(append(header, program...))
	if err != nil {
		t.Fatal(err)
	}
	e := emulator.New(f, 44100, log.NewNullLogger())
	if err := e.SelectTrack(1); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestValidateOptionsLoopsNeedsDriver(t *testing.T) {
	options := DefaultOptions()
	options.StopCondition = StopCondition{Kind: StopLoops, Value: 2}

	if err := validateOptions(buildEmulator(t, ""), options); err == nil {
		t.Error("loops stop condition accepted for an unrecognized driver")
	}
	if err := validateOptions(buildEmulator(t, "FTDRV"), options); err != nil {
		t.Errorf("loops stop condition rejected for a FamiTracker module: %v", err)
	}
}

func TestValidateOptionsNsfeNeedsDuration(t *testing.T) {
	options := DefaultOptions()
	options.StopCondition = StopCondition{Kind: StopNsfeDuration}

	if err := validateOptions(buildEmulator(t, ""), options); err == nil {
		t.Error("time:nsfe accepted without track duration metadata")
	}
}

func TestValidateOptionsNegativeFadeout(t *testing.T) {
	options := DefaultOptions()
	options.FadeoutLength = -1

	if err := validateOptions(buildEmulator(t, ""), options); err == nil {
		t.Error("negative fade-out length accepted")
	}
}

func TestVolumeDivisor(t *testing.T) {
	r := &Renderer{options: Options{FadeoutLength: 180}}

	if got := r.volumeDivisor(); got != 1 {
		t.Errorf("divisor before fade-out = %d, want 1", got)
	}

	r.fadeoutActive = true
	tests := []struct {
		timer int
		want  int16
	}{
		{180, 1},
		{90, 2},
		{60, 3},
		{1, 180},
	}
	for _, tt := range tests {
		r.fadeoutTimer = tt.timer
		if got := r.volumeDivisor(); got != tt.want {
			t.Errorf("divisor at timer %d = %d, want %d", tt.timer, got, tt.want)
		}
	}
}

func TestFadeoutTriggersOnFrameCount(t *testing.T) {
	e := buildEmulator(t, "")
	r := &Renderer{
		options: Options{
			StopCondition: StopCondition{Kind: StopFrames, Value: 2},
			FadeoutLength: 3,
		},
		emulator: e,
	}

	r.advanceFadeout()
	if r.fadeoutActive {
		t.Fatal("fade-out started before the frame threshold")
	}

	e.StepFrame()
	e.StepFrame()
	r.advanceFadeout()
	if !r.fadeoutActive || r.fadeoutTimer != 3 {
		t.Fatalf("fade-out state = %v/%d after trigger", r.fadeoutActive, r.fadeoutTimer)
	}

	// one tick per frame, holding at zero
	for _, want := range []int{2, 1, 0, 0} {
		r.advanceFadeout()
		if r.fadeoutTimer != want {
			t.Errorf("fadeout timer = %d, want %d", r.fadeoutTimer, want)
		}
	}
}

func TestFadeoutTriggersOnSongEnd(t *testing.T) {
	// PLAY raises the driver's halt flag: LDA #$02; STA $0211; RTS
	e := buildEmulator(t, "FTDRV", 0xA9, 0x02, 0x8D, 0x11, 0x02, 0x60)
	r := &Renderer{
		options: Options{
			StopCondition: StopCondition{Kind: StopFrames, Value: 100000},
			FadeoutLength: 180,
		},
		emulator: e,
	}

	r.advanceFadeout()
	if r.fadeoutActive {
		t.Fatal("fade-out started while the song is still playing")
	}

	e.StepFrame()
	r.advanceFadeout()
	if !r.fadeoutActive {
		t.Error("fade-out did not start when the song ended")
	}
}

func TestExpectedDurationForFrameStop(t *testing.T) {
	r := &Renderer{
		options: Options{
			StopCondition: StopCondition{Kind: StopFrames, Value: 600},
			FadeoutLength: 180,
		},
		emulator: buildEmulator(t, ""),
	}

	r.advanceExpectedDuration()
	if !r.expectedKnown || r.expectedDuration != 780 {
		t.Errorf("expected duration = %d (known %v), want 780", r.expectedDuration, r.expectedKnown)
	}
}

func TestExpectedDurationForLoopsUnknownUntilMemoized(t *testing.T) {
	r := &Renderer{
		options: Options{
			StopCondition: StopCondition{Kind: StopLoops, Value: 2},
			FadeoutLength: 180,
		},
		emulator: buildEmulator(t, "FTDRV"),
	}

	r.advanceExpectedDuration()
	if r.expectedKnown {
		t.Error("loop duration reported before a loop was observed")
	}
	if _, ok := r.ExpectedDuration(); ok {
		t.Error("ExpectedDuration() available before a loop was observed")
	}
}
