// Package encoder turns raw RGBA frames and signed 16-bit samples into a
// muxed audio+video container.
package encoder

import (
	"errors"
	"fmt"
)

// One NTSC frame lasts 29781 2A03 cycles out of 1789773 per second; the
// container timebase uses the same ratio so audio and video stay locked.
const (
	TimebaseNum = 29781
	TimebaseDen = 1789773
)

// audioFrameSize is the fixed sample count per encoded audio frame (the
// AAC frame size).
const audioFrameSize = 1024

// Backend consumes interleaved media: one RGBA frame or one fixed-size
// sample batch per call, in mux order.
type Backend interface {
	Start() error
	SendVideo(frame []byte) error
	SendAudio(samples []int16) error
	Finish() error
	BytesWritten() int64
}

// Options configures a VideoBuilder.
type Options struct {
	OutputPath string
	Metadata   map[string]string

	InputWidth, InputHeight   int
	OutputWidth, OutputHeight int
	SampleRate                int

	// FFmpegPath overrides the encoder binary location.
	FFmpegPath string
}

// Validate rejects option sets the encoder cannot start with.
func (o Options) Validate() error {
	if o.OutputPath == "" {
		return errors.New("no output path")
	}
	if o.InputWidth <= 0 || o.InputHeight <= 0 {
		return fmt.Errorf("invalid input resolution %dx%d", o.InputWidth, o.InputHeight)
	}
	if o.OutputWidth <= 0 || o.OutputHeight <= 0 {
		return fmt.Errorf("invalid output resolution %dx%d", o.OutputWidth, o.OutputHeight)
	}
	if o.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", o.SampleRate)
	}
	return nil
}

// VideoBuilder buffers pushed media and forwards it to the backend in
// pts-interleaved order, video and audio never drifting more than one
// frame apart.
type VideoBuilder struct {
	backend Backend

	frameSize int

	vFrameBuf [][]byte
	aFrameBuf []int16

	vMuxPts int64
	aMuxPts int64

	started  bool
	finished bool
}

// NewVideoBuilder wires a builder to a backend. The expected video frame
// size is width*height*4 (RGBA).
func NewVideoBuilder(backend Backend, options Options) (*VideoBuilder, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}
	return &VideoBuilder{
		backend:   backend,
		frameSize: options.InputWidth * options.InputHeight * 4,
	}, nil
}

// StartEncoding opens the backend. Must precede any push.
func (v *VideoBuilder) StartEncoding() error {
	if v.started {
		return errors.New("encoding already started")
	}
	if err := v.backend.Start(); err != nil {
		return fmt.Errorf("starting encoder backend: %w", err)
	}
	v.started = true
	return nil
}

// PushVideoData queues one RGBA frame.
func (v *VideoBuilder) PushVideoData(frame []byte) error {
	if len(frame) != v.frameSize {
		return fmt.Errorf("video frame is %d bytes, want %d", len(frame), v.frameSize)
	}
	v.vFrameBuf = append(v.vFrameBuf, frame)
	return nil
}

// PushAudioData queues samples.
func (v *VideoBuilder) PushAudioData(samples []int16) error {
	v.aFrameBuf = append(v.aFrameBuf, samples...)
	return nil
}

// StepEncoding drains the queues into the backend. Audio goes first
// whenever its mux clock has not passed video's and a full frame is
// buffered; otherwise one video frame goes; an empty queue ends the step.
func (v *VideoBuilder) StepEncoding() error {
	if !v.started {
		return errors.New("encoding not started")
	}
	for {
		if v.aMuxPts <= v.vMuxPts && len(v.aFrameBuf) >= audioFrameSize {
			batch := v.aFrameBuf[:audioFrameSize]
			v.aFrameBuf = v.aFrameBuf[audioFrameSize:]
			if err := v.backend.SendAudio(batch); err != nil {
				return fmt.Errorf("sending audio: %w", err)
			}
			v.aMuxPts++
		} else if len(v.vFrameBuf) > 0 {
			frame := v.vFrameBuf[0]
			v.vFrameBuf = v.vFrameBuf[1:]
			if err := v.backend.SendVideo(frame); err != nil {
				return fmt.Errorf("sending video: %w", err)
			}
			v.vMuxPts++
		} else {
			return nil
		}
	}
}

// FinishEncoding flushes whatever remains, including a final short audio
// batch, and closes the backend.
func (v *VideoBuilder) FinishEncoding() error {
	if v.finished {
		return nil
	}
	if err := v.StepEncoding(); err != nil {
		return err
	}
	if len(v.aFrameBuf) > 0 {
		if err := v.backend.SendAudio(v.aFrameBuf); err != nil {
			return fmt.Errorf("sending final audio: %w", err)
		}
		v.aFrameBuf = nil
	}
	if err := v.backend.Finish(); err != nil {
		return fmt.Errorf("finishing encode: %w", err)
	}
	v.finished = true
	return nil
}

// CurrentFrame is the number of video frames muxed so far.
func (v *VideoBuilder) CurrentFrame() int64 {
	return v.vMuxPts
}

// EncodedDuration is the muxed video length in seconds.
func (v *VideoBuilder) EncodedDuration() float64 {
	return float64(v.vMuxPts) * TimebaseNum / TimebaseDen
}

// EncodedSize is the number of bytes the backend has written.
func (v *VideoBuilder) EncodedSize() int64 {
	return v.backend.BytesWritten()
}
