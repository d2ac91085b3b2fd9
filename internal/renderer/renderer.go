// Package renderer orchestrates the emulator, visualization and encoder
// into a bounded-length render with loop detection and fade-out.
package renderer

import (
	"fmt"
	"time"

	"github.com/thelolagemann/go-nsf/internal/emulator"
	"github.com/thelolagemann/go-nsf/internal/encoder"
	"github.com/thelolagemann/go-nsf/internal/nsf"
	"github.com/thelolagemann/go-nsf/internal/viz"
	"github.com/thelolagemann/go-nsf/pkg/log"
)

// State tracks the render lifecycle.
type State int

const (
	StateIdle State = iota
	StatePriming
	StateStepping
	StateDraining
	StateDone
	StateError
)

// audioBatchSize is the sample count pulled from the emulator per frame,
// matching the encoder's audio frame size.
const audioBatchSize = 1024

// fpsWindow bounds the rolling frame-time window for FPS averages.
const fpsWindow = 600

// defaultFadeoutLength is used when the module declares no fade of its
// own, three seconds of NTSC frames.
const defaultFadeoutLength = 180

// Renderer drives one render run frame by frame.
type Renderer struct {
	options Options
	log     log.Logger

	emulator   *emulator.Emulator
	viz        *viz.Renderer
	video      *encoder.VideoBuilder
	background *VideoBackground

	state State

	encodeStart    time.Time
	frameTimestamp float64
	frameTimes     []float64

	fadeoutTimer     int
	fadeoutActive    bool
	expectedDuration int
	expectedKnown    bool

	lastFrame []byte
}

// New opens the input, selects the track, validates the configuration
// and wires up the encoder. Configuration errors surface here, before
// any frame is rendered.
func New(options Options, logger log.Logger) (*Renderer, error) {
	emu, err := emulator.Open(options.InputPath, options.SampleRate, logger)
	if err != nil {
		return nil, err
	}
	emu.APU().SetSampleRate(options.SampleRate)
	if options.TrackIndex == 0 {
		options.TrackIndex = int(emu.File().StartingSong())
	}
	if err := emu.SelectTrack(options.TrackIndex); err != nil {
		return nil, err
	}
	if options.FadeoutLength < 0 {
		if fadeout, ok := emu.NsfeFadeout(); ok {
			options.FadeoutLength = fadeout
		} else {
			options.FadeoutLength = defaultFadeoutLength
		}
	}
	if err := validateOptions(emu, options); err != nil {
		return nil, err
	}
	emu.APU().ApplySettings(options.ChannelSettings)

	vizRenderer := viz.New(options.Width, options.Height, emu.Channels())
	vizRenderer.ApplySettings(options.ChannelSettings)

	title, artist, copyright := emu.Metadata()
	encoderOptions := encoder.Options{
		OutputPath: options.OutputPath,
		Metadata: map[string]string{
			"title":   title,
			"artist":  artist,
			"album":   copyright,
			"track":   fmt.Sprintf("%d/%d", options.TrackIndex, emu.TrackCount()),
			"comment": "Encoded with go-nsf",
		},
		InputWidth:   options.Width,
		InputHeight:  options.Height,
		OutputWidth:  options.OutputWidth,
		OutputHeight: options.OutputHeight,
		SampleRate:   options.SampleRate,
		FFmpegPath:   options.FFmpegPath,
	}
	video, err := encoder.NewVideoBuilder(encoder.NewFFmpegBackend(encoderOptions), encoderOptions)
	if err != nil {
		return nil, err
	}

	var background *VideoBackground
	if options.BackgroundPath != "" {
		background, err = OpenVideoBackground(options.BackgroundPath, options.Width, options.Height, options.BackgroundAlpha, options.FFmpegPath)
		if err != nil {
			return nil, fmt.Errorf("opening background: %w", err)
		}
	}

	return &Renderer{
		options:    options,
		log:        logger,
		emulator:   emu,
		viz:        vizRenderer,
		video:      video,
		background: background,
	}, nil
}

// validateOptions rejects stop conditions the loaded module cannot
// satisfy.
func validateOptions(emu *emulator.Emulator, options Options) error {
	switch options.StopCondition.Kind {
	case StopLoops:
		if emu.Driver() == nsf.DriverUnknown {
			return fmt.Errorf("loop detection is not supported for this NSF (unrecognized driver); use time: or frames: instead")
		}
	case StopNsfeDuration:
		if _, ok := emu.NsfeDuration(); !ok {
			return fmt.Errorf("no NSFe/NSF2 duration specified for track %d; use time: or frames: instead", options.TrackIndex)
		}
	}
	if options.FadeoutLength < 0 {
		return fmt.Errorf("fade-out length must be non-negative")
	}
	return nil
}

// StartEncoding opens the container and primes the emulator: one frame
// runs and its audio is discarded to suppress the initialization pop.
func (r *Renderer) StartEncoding() error {
	r.state = StatePriming
	if err := r.video.StartEncoding(); err != nil {
		r.state = StateError
		return err
	}
	r.encodeStart = time.Now()

	r.emulator.StepFrame()
	r.emulator.ClearSampleBuffer()

	r.state = StateStepping
	return nil
}

// Step renders one frame and returns false when the render is complete.
func (r *Renderer) Step() (bool, error) {
	if r.state != StateStepping {
		return false, fmt.Errorf("renderer is not stepping")
	}

	r.emulator.StepFrame()

	var backdrop []byte
	if r.background != nil {
		backdrop = r.background.NextFrame()
	}
	frame := append([]byte(nil), r.viz.Draw(backdrop)...)
	r.lastFrame = frame
	if err := r.video.PushVideoData(frame); err != nil {
		r.state = StateError
		return false, err
	}

	if audio := r.emulator.ConsumeSamples(audioBatchSize, r.volumeDivisor()); audio != nil {
		if err := r.video.PushAudioData(audio); err != nil {
			r.state = StateError
			return false, err
		}
	}

	if err := r.video.StepEncoding(); err != nil {
		r.state = StateError
		return false, err
	}

	elapsed := r.Elapsed().Seconds()
	r.frameTimes = append([]float64{elapsed - r.frameTimestamp}, r.frameTimes...)
	if len(r.frameTimes) > fpsWindow {
		r.frameTimes = r.frameTimes[:fpsWindow]
	}
	r.frameTimestamp = elapsed

	r.advanceExpectedDuration()
	r.advanceFadeout()

	if r.fadeoutActive && r.fadeoutTimer == 0 {
		return false, nil
	}
	return true, nil
}

// FinishEncoding flushes and closes the container.
func (r *Renderer) FinishEncoding() error {
	r.state = StateDraining
	if r.background != nil {
		r.background.Close()
	}
	if err := r.video.FinishEncoding(); err != nil {
		r.state = StateError
		return err
	}
	r.state = StateDone
	return nil
}

// volumeDivisor implements the coarse linear fade: full length over
// remaining ticks, never zero.
func (r *Renderer) volumeDivisor() int16 {
	if !r.fadeoutActive || r.fadeoutTimer <= 0 {
		return 1
	}
	return int16(r.options.FadeoutLength / r.fadeoutTimer)
}

// advanceExpectedDuration memoizes the total expected frame count once
// it becomes knowable.
func (r *Renderer) advanceExpectedDuration() {
	if r.expectedKnown {
		return
	}
	switch r.options.StopCondition.Kind {
	case StopFrames:
		r.expectedDuration = r.options.StopCondition.Value + r.options.FadeoutLength
		r.expectedKnown = true
	case StopLoops:
		if start, length, ok := r.emulator.LoopDuration(); ok {
			r.expectedDuration = r.options.FadeoutLength + start + length*r.options.StopCondition.Value
			r.expectedKnown = true
		}
	case StopNsfeDuration:
		if duration, ok := r.emulator.NsfeDuration(); ok {
			r.expectedDuration = duration + r.options.FadeoutLength
			r.expectedKnown = true
		}
	}
}

// advanceFadeout starts the fade-out when a stop trigger fires and
// counts it down once per frame afterwards.
func (r *Renderer) advanceFadeout() {
	if r.fadeoutActive {
		if r.fadeoutTimer > 0 {
			r.fadeoutTimer--
		}
		return
	}

	if position, ok := r.emulator.SongPosition(); ok && position.Ended {
		r.beginFadeout()
		return
	}

	switch r.options.StopCondition.Kind {
	case StopLoops:
		if loops, ok := r.emulator.LoopCount(); ok && loops >= r.options.StopCondition.Value {
			r.beginFadeout()
		}
	case StopFrames:
		if int(r.emulator.Frame()) >= r.options.StopCondition.Value {
			r.beginFadeout()
		}
	case StopNsfeDuration:
		if duration, ok := r.emulator.NsfeDuration(); ok && int(r.emulator.Frame()) >= duration {
			r.beginFadeout()
		}
	}
}

func (r *Renderer) beginFadeout() {
	r.fadeoutActive = true
	r.fadeoutTimer = r.options.FadeoutLength
}

// State reports the render lifecycle state.
func (r *Renderer) State() State { return r.state }

// CurrentFrame is the emulated frame counter.
func (r *Renderer) CurrentFrame() int { return int(r.emulator.Frame()) }

// Elapsed is the wall-clock time since StartEncoding.
func (r *Renderer) Elapsed() time.Duration { return time.Since(r.encodeStart) }

// InstantaneousFPS derives the rate from the latest frame time.
func (r *Renderer) InstantaneousFPS() int {
	if len(r.frameTimes) == 0 || r.frameTimes[0] <= 0 {
		return 0
	}
	return int(1 / r.frameTimes[0])
}

// AverageFPS averages over the rolling window.
func (r *Renderer) AverageFPS() int {
	if len(r.frameTimes) == 0 {
		return 0
	}
	var sum float64
	for _, t := range r.frameTimes {
		sum += t
	}
	if sum <= 0 {
		return 0
	}
	return int(float64(len(r.frameTimes)) / sum)
}

// EncodeRate is the render speed relative to real time.
func (r *Renderer) EncodeRate() float64 {
	return float64(r.AverageFPS()) / nsf.Framerate
}

// EncodedDuration is the length of video muxed so far.
func (r *Renderer) EncodedDuration() time.Duration {
	return time.Duration(r.video.EncodedDuration() * float64(time.Second))
}

// EncodedSize is the container size so far in bytes.
func (r *Renderer) EncodedSize() int64 { return r.video.EncodedSize() }

// ExpectedDuration estimates the final render length, once knowable.
func (r *Renderer) ExpectedDuration() (time.Duration, bool) {
	if !r.expectedKnown {
		return 0, false
	}
	return time.Duration(float64(r.expectedDuration) / nsf.Framerate * float64(time.Second)), true
}

// ETA estimates total wall-clock time to completion.
func (r *Renderer) ETA() (time.Duration, bool) {
	if !r.expectedKnown {
		return 0, false
	}
	remaining := float64(r.expectedDuration-r.CurrentFrame()) / nsf.Framerate
	return r.Elapsed() + time.Duration(remaining*float64(time.Second)), true
}

// Progress is the emulator's status line.
func (r *Renderer) Progress() string { return r.emulator.Progress() }

// LastFrame returns the most recent rendered RGBA frame, for the
// preview server. The slice is not reused.
func (r *Renderer) LastFrame() []byte { return r.lastFrame }

// FrameSize reports the rendered frame geometry.
func (r *Renderer) FrameSize() (int, int) { return r.viz.Width(), r.viz.Height() }
