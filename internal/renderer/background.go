package renderer

import (
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

// Queue watermarks for the decode goroutine: decoding pauses once this
// many frames are buffered and resumes when consumption drains the queue
// below the low mark.
const (
	backgroundHighWater = 1800
	backgroundLowWater  = 1200
)

// VideoBackground decodes a looping backdrop video ahead of the render
// on its own goroutine, via an ffmpeg child process emitting raw RGBA.
type VideoBackground struct {
	frameSize int
	alpha     uint8

	mu     sync.Mutex
	frames [][]byte
	done   bool

	cmd *exec.Cmd
}

// OpenVideoBackground starts decoding path scaled to w x h.
func OpenVideoBackground(path string, w, h int, alpha uint8, ffmpegPath string) (*VideoBackground, error) {
	binary := ffmpegPath
	if binary == "" {
		binary = "ffmpeg"
	}

	cmd := exec.Command(binary,
		"-loglevel", "error",
		"-i", path,
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", w, h),
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", binary, err)
	}

	b := &VideoBackground{
		frameSize: w * h * 4,
		alpha:     alpha,
		cmd:       cmd,
	}
	go b.decode(stdout)
	return b, nil
}

func (b *VideoBackground) decode(stdout io.Reader) {
	for {
		frame := make([]byte, b.frameSize)
		if _, err := io.ReadFull(stdout, frame); err != nil {
			break
		}
		if b.alpha != 255 {
			modulate(frame, b.alpha)
		}

		b.mu.Lock()
		b.frames = append(b.frames, frame)
		full := len(b.frames) > backgroundHighWater
		b.mu.Unlock()

		if full {
			// wait for the renderer to drain the queue
			for {
				b.mu.Lock()
				drained := len(b.frames) <= backgroundLowWater || b.done
				b.mu.Unlock()
				if drained {
					break
				}
				time.Sleep(100 * time.Millisecond)
			}
		}
	}

	b.mu.Lock()
	b.done = true
	b.mu.Unlock()
	b.cmd.Wait()
}

// modulate scales the color channels in place, darkening the backdrop
// under the oscilloscope layer.
func modulate(frame []byte, alpha uint8) {
	for i := 0; i < len(frame); i += 4 {
		frame[i] = uint8(uint16(frame[i]) * uint16(alpha) / 255)
		frame[i+1] = uint8(uint16(frame[i+1]) * uint16(alpha) / 255)
		frame[i+2] = uint8(uint16(frame[i+2]) * uint16(alpha) / 255)
	}
}

// NextFrame pops the next backdrop frame, blocking briefly while the
// decoder catches up. Returns nil once the video is exhausted.
func (b *VideoBackground) NextFrame() []byte {
	for {
		b.mu.Lock()
		if len(b.frames) > 0 {
			frame := b.frames[0]
			b.frames = b.frames[1:]
			b.mu.Unlock()
			return frame
		}
		done := b.done
		b.mu.Unlock()

		if done {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Close stops the decoder.
func (b *VideoBackground) Close() {
	b.mu.Lock()
	b.done = true
	b.frames = nil
	b.mu.Unlock()
	if b.cmd.Process != nil {
		b.cmd.Process.Kill()
	}
}
