// Package emulator drives the 6502 core and the audio hardware by whole
// frames, and inspects driver memory for loop detection.
package emulator

import (
	"fmt"

	"github.com/thelolagemann/go-nsf/internal/apu"
	"github.com/thelolagemann/go-nsf/internal/apu/fds"
	"github.com/thelolagemann/go-nsf/internal/cpu"
	"github.com/thelolagemann/go-nsf/internal/nsf"
	"github.com/thelolagemann/go-nsf/pkg/log"
	"github.com/thelolagemann/go-nsf/pkg/utils"
)

const (
	scanlinesPerFrame = 262
	vblankScanline    = 242
	cyclesPerFrame    = 29780.5
	cyclesPerScanline = cyclesPerFrame / scanlinesPerFrame

	// minimum distance between recurring positions before the window is
	// trusted as the song's loop duration
	minLoopWindow = 60

	// generous ceiling for the INIT routine; some modules decompress
	// sample data here
	initCycleBudget = 10 * 29781
)

// Emulator owns the CPU, bus and APU for one loaded module and exposes
// frame-level stepping to the renderer.
type Emulator struct {
	log  log.Logger
	file *nsf.File

	bus *bus
	cpu *cpu.CPU
	apu *apu.APU
	fds *fds.Channel

	trackIndex int
	scanline   int
	remainder  float64
	frame      uint32

	sampleBuffer []int16

	songPositions map[SongPosition]uint32
	lastPosition  *SongPosition
	loopStart     int
	loopLength    int
	loopMemoized  bool
	loopCount     int
}

// New builds an emulator around an already-parsed module.
func New(file *nsf.File, sampleRate int, logger log.Logger) *Emulator {
	e := &Emulator{
		log:           logger,
		file:          file,
		trackIndex:    int(file.StartingSong()),
		songPositions: make(map[SongPosition]uint32),
	}

	e.bus = newBus(file)
	e.apu = apu.New(e.bus.Read)
	e.apu.SetSampleRate(sampleRate)
	e.bus.apu = e.apu
	if file.FDS() {
		e.fds = fds.NewChannel(sampleRate)
		e.apu.AttachExpansion(e.fds)
		e.bus.fds = e.fds
	}
	e.cpu = cpu.New(e.bus)

	e.logModuleInfo()
	return e
}

// Open loads an NSF or NSFe file from disk. Compressed containers
// (gzip, zip, 7z) are unpacked transparently.
func Open(path string, sampleRate int, logger log.Logger) (*Emulator, error) {
	data, err := utils.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading input file %s: %w", path, err)
	}
	file, err := nsf.New(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return New(file, 44100, logger), nil
}

func (e *Emulator) logModuleInfo() {
	e.log.Infof("NSF version: %d", e.file.Version())
	e.log.Infof("Title: %s", e.file.Title())
	e.log.Infof("Artist: %s", e.file.Artist())
	e.log.Infof("Copyright: %s", e.file.Copyright())

	chips := "2A03"
	for _, c := range []struct {
		name string
		set  bool
	}{
		{"FDS", e.file.FDS()},
		{"N163", e.file.N163()},
		{"MMC5", e.file.MMC5()},
		{"VRC6", e.file.VRC6()},
		{"VRC7", e.file.VRC7()},
		{"S5B", e.file.S5B()},
	} {
		if c.set {
			chips += ", " + c.name
		}
	}
	e.log.Infof("Chips: %s", chips)
	e.log.Infof("Driver type: %s", e.file.Driver())
}

// File exposes the loaded module.
func (e *Emulator) File() *nsf.File { return e.file }

// APU exposes the audio unit for sample-rate and channel configuration.
func (e *Emulator) APU() *apu.APU { return e.apu }

// Channels returns every audio channel for visualization.
func (e *Emulator) Channels() []apu.Channel { return e.apu.Channels() }

// TrackCount is the number of tracks the module declares.
func (e *Emulator) TrackCount() int { return int(e.file.Songs()) }

// TrackIndex is the 1-based selected track.
func (e *Emulator) TrackIndex() int { return e.trackIndex }

// SelectTrack resets the machine and runs the module's INIT routine for
// the given 1-based track.
func (e *Emulator) SelectTrack(index int) error {
	if index < 1 || index > e.TrackCount() {
		return fmt.Errorf("track %d out of range 1-%d", index, e.TrackCount())
	}
	e.trackIndex = index

	e.bus.ram = [0x800]uint8{}
	e.bus.wram = [0x2000]uint8{}
	e.cpu.Reset()

	e.frame = 0
	e.scanline = 0
	e.remainder = 0
	e.sampleBuffer = nil
	e.songPositions = make(map[SongPosition]uint32)
	e.lastPosition = nil
	e.loopMemoized = false
	e.loopCount = 0

	// standard power-on register state
	for addr := uint16(0x4000); addr <= 0x4013; addr++ {
		e.bus.Write(addr, 0)
	}
	e.bus.Write(0x4015, 0x0F)
	e.bus.Write(0x4017, 0x40)
	if e.fds != nil {
		e.fds.NSFInit()
	}

	e.cpu.A = uint8(index - 1)
	e.cpu.X = 0 // NTSC
	e.runCall(e.file.InitAddress(), initCycleBudget)
	if !e.cpu.Returned() {
		e.log.Errorf("INIT routine did not return within %d cycles", initCycleBudget)
	}
	return nil
}

func (e *Emulator) runCall(addr uint16, budget int) {
	e.cpu.BeginCall(addr)
	for !e.cpu.Returned() && budget > 0 {
		n := e.cpu.Step()
		e.apu.Clock(n)
		budget -= n
	}
}

// StepFrame advances emulation by exactly one video frame: past the
// vertical-blank scanline, then until it is reached again. Loop
// bookkeeping updates once per frame.
func (e *Emulator) StepFrame() {
	for e.scanline == vblankScanline {
		e.runScanline()
	}
	for e.scanline != vblankScanline {
		e.runScanline()
	}
	e.frame++
	e.updateLoopDetection()
}

func (e *Emulator) runScanline() {
	budget := cyclesPerScanline + e.remainder
	cycles := int(budget)
	e.remainder = budget - float64(cycles)

	// the driver's PLAY routine fires once per frame at vblank start
	if e.scanline == vblankScanline-1 && e.cpu.Returned() {
		e.cpu.BeginCall(e.file.PlayAddress())
	}

	for cycles > 0 {
		if e.cpu.Returned() {
			e.apu.Clock(cycles)
			break
		}
		n := e.cpu.Step()
		e.apu.Clock(n)
		cycles -= n
	}

	e.scanline = (e.scanline + 1) % scanlinesPerFrame
}

// Frame is the number of frames stepped since track selection.
func (e *Emulator) Frame() uint32 { return e.frame }

// Driver returns the recognized playback driver family.
func (e *Emulator) Driver() nsf.DriverType { return e.file.Driver() }

// SongPosition reads the driver's pattern cursor from emulated RAM, when
// the driver family is recognized.
func (e *Emulator) SongPosition() (SongPosition, bool) {
	switch e.file.Driver() {
	case nsf.DriverFTClassic:
		return e.famitrackerPosition(0x211), true
	case nsf.DriverFT0CC, nsf.DriverFTDn:
		return e.famitrackerPosition(0x215), true
	}
	return SongPosition{}, false
}

func (e *Emulator) famitrackerPosition(ptr int) SongPosition {
	if e.file.FDS() {
		// the driver reserves two extra state bytes for the FDS
		ptr += 2
	}

	playerFlags := e.bus.ram[ptr]
	row := e.bus.ram[ptr+1]
	frame := e.bus.ram[ptr+2]
	engineFlags := e.bus.ram[ptr+3]

	if playerFlags&0x2 != 0 {
		// a halt effect was issued
		return SongPosition{Ended: true}
	}
	if engineFlags&0x1 != 0 {
		// mid frame-load the row byte is transient garbage
		return SongPosition{Frame: frame}
	}
	return SongPosition{Frame: frame, Row: row}
}

func (e *Emulator) updateLoopDetection() {
	position, ok := e.SongPosition()
	if !ok {
		return
	}

	if firstSeen, seen := e.songPositions[position]; seen {
		if e.lastPosition != nil && position.Frame < e.lastPosition.Frame {
			e.loopCount++
		}
		if !e.loopMemoized {
			if window := int(e.frame) - int(firstSeen); window >= minLoopWindow {
				e.loopStart = int(firstSeen)
				e.loopLength = window
				e.loopMemoized = true
			}
		}
	} else {
		e.songPositions[position] = e.frame
	}

	p := position
	e.lastPosition = &p
}

// LoopCount reports how many times the song has looped; ok is false when
// the driver is unrecognized and loop detection is unavailable.
func (e *Emulator) LoopCount() (int, bool) {
	if e.file.Driver() == nsf.DriverUnknown {
		return 0, false
	}
	return e.loopCount, true
}

// LoopDuration returns the memoized loop window as (start frame, length
// in frames).
func (e *Emulator) LoopDuration() (int, int, bool) {
	return e.loopStart, e.loopLength, e.loopMemoized
}

// NsfeDuration returns the NSFe-declared duration of the selected track
// in frames.
func (e *Emulator) NsfeDuration() (int, bool) {
	meta := e.file.Metadata()
	if meta == nil {
		return 0, false
	}
	track := meta.TrackInfo(e.trackIndex)
	if track == nil || !track.HasDuration {
		return 0, false
	}
	return track.Duration, true
}

// NsfeFadeout returns the NSFe-declared fade-out of the selected track in
// frames.
func (e *Emulator) NsfeFadeout() (int, bool) {
	meta := e.file.Metadata()
	if meta == nil {
		return 0, false
	}
	track := meta.TrackInfo(e.trackIndex)
	if track == nil || !track.HasFadeout {
		return 0, false
	}
	return track.Fadeout, true
}

// Metadata resolves the displayed title/artist/copyright, preferring
// per-track NSFe fields over module-wide ones over the fixed header.
func (e *Emulator) Metadata() (title, artist, copyright string) {
	title, artist, copyright = e.file.Title(), e.file.Artist(), e.file.Copyright()

	meta := e.file.Metadata()
	if meta == nil {
		return
	}
	if meta.Title != "" {
		title = meta.Title
	}
	if meta.Artist != "" {
		artist = meta.Artist
	}
	if meta.Copyright != "" {
		copyright = meta.Copyright
	}
	if track := meta.TrackInfo(e.trackIndex); track != nil {
		if track.HasLabel {
			title = track.Label
		}
		if track.HasAuthor {
			artist = track.Author
		}
	}
	return
}

// ConsumeSamples drains sampleCount samples once enough are buffered,
// applying the fade-out divisor and a fixed +1/3 gain. Returns nil until
// a full batch is available.
func (e *Emulator) ConsumeSamples(sampleCount int, volumeDivisor int16) []int16 {
	if e.apu.SamplesQueued() < 256 {
		return nil
	}
	e.sampleBuffer = append(e.sampleBuffer, e.apu.ConsumeSamples()...)
	if len(e.sampleBuffer) < sampleCount {
		return nil
	}

	if volumeDivisor == 0 {
		volumeDivisor = 1
	}

	out := make([]int16, sampleCount)
	for i, s := range e.sampleBuffer[:sampleCount] {
		out[i] = scaleSample(s, volumeDivisor)
	}
	e.sampleBuffer = e.sampleBuffer[sampleCount:]
	return out
}

// scaleSample applies the fade-out divisor, then a fixed +1/3 makeup gain
// with saturation.
func scaleSample(s, divisor int16) int16 {
	s /= divisor
	sum := int32(s) + int32(s/3)
	if sum > 32767 {
		sum = 32767
	} else if sum < -32768 {
		sum = -32768
	}
	return int16(sum)
}

// ClearSampleBuffer drops all pending audio, used to swallow the
// initialization transient after priming.
func (e *Emulator) ClearSampleBuffer() {
	e.apu.ConsumeSamples()
	e.sampleBuffer = nil
}

// Progress is a short status string for the console progress line.
func (e *Emulator) Progress() string {
	generic := fmt.Sprintf("frame=%d", e.frame)
	if position, ok := e.SongPosition(); ok {
		return fmt.Sprintf("%s pos=%s loop=%d", generic, position, e.loopCount)
	}
	if e.file.Driver() != nsf.DriverUnknown {
		return fmt.Sprintf("%s pos=? loop=%d", generic, e.loopCount)
	}
	return generic
}
