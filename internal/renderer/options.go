package renderer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/thelolagemann/go-nsf/internal/apu"
)

// FrameRate is the nominal output frame rate used for time:N parsing.
const FrameRate = 60

type StopKind int

const (
	// StopFrames ends the render after a fixed frame count.
	StopFrames StopKind = iota
	// StopLoops ends the render after the song loops N times.
	StopLoops
	// StopNsfeDuration ends the render at the NSFe-declared track length.
	StopNsfeDuration
)

// StopCondition decides when the fade-out begins.
type StopCondition struct {
	Kind  StopKind
	Value int
}

func (s StopCondition) String() string {
	switch s.Kind {
	case StopFrames:
		if s.Value%FrameRate == 0 {
			return fmt.Sprintf("time:%d", s.Value/FrameRate)
		}
		return fmt.Sprintf("frames:%d", s.Value)
	case StopLoops:
		return fmt.Sprintf("loops:%d", s.Value)
	case StopNsfeDuration:
		return "time:nsfe"
	}
	return "unknown"
}

// ParseStopCondition accepts "time:N" (seconds), "time:nsfe",
// "frames:N" or "loops:N".
func ParseStopCondition(s string) (StopCondition, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return StopCondition{}, fmt.Errorf("stop condition format invalid, try one of 'time:3', 'time:nsfe', 'frames:180', or 'loops:2'")
	}

	switch parts[0] {
	case "time":
		if parts[1] == "nsfe" {
			return StopCondition{Kind: StopNsfeDuration}, nil
		}
		seconds, err := strconv.Atoi(parts[1])
		if err != nil {
			return StopCondition{}, fmt.Errorf("invalid time %q: %w", parts[1], err)
		}
		return StopCondition{Kind: StopFrames, Value: seconds * FrameRate}, nil
	case "frames":
		frames, err := strconv.Atoi(parts[1])
		if err != nil {
			return StopCondition{}, fmt.Errorf("invalid frame count %q: %w", parts[1], err)
		}
		return StopCondition{Kind: StopFrames, Value: frames}, nil
	case "loops":
		loops, err := strconv.Atoi(parts[1])
		if err != nil {
			return StopCondition{}, fmt.Errorf("invalid loop count %q: %w", parts[1], err)
		}
		return StopCondition{Kind: StopLoops, Value: loops}, nil
	}
	return StopCondition{}, fmt.Errorf("unknown condition type %q, valid types are 'time', 'frames', and 'loops'", parts[0])
}

// Options is the immutable per-run configuration.
type Options struct {
	InputPath  string
	OutputPath string

	TrackIndex    int
	StopCondition StopCondition
	FadeoutLength int

	// oscilloscope canvas size; the encoder upscales to the output size
	Width, Height             int
	OutputWidth, OutputHeight int
	SampleRate                int

	BackgroundPath  string
	BackgroundAlpha uint8

	FFmpegPath string

	ChannelSettings map[apu.ChannelID]apu.ChannelSettings
}

// DefaultOptions renders five minutes at 1080p with a three second
// fade-out.
func DefaultOptions() Options {
	return Options{
		TrackIndex:      1,
		StopCondition:   StopCondition{Kind: StopFrames, Value: 300 * FrameRate},
		FadeoutLength:   180,
		Width:           960,
		Height:          540,
		OutputWidth:     1920,
		OutputHeight:    1080,
		SampleRate:      44100,
		BackgroundAlpha: 255,
	}
}
