package encoder

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"sort"
)

// FFmpegBackend encodes through an ffmpeg child process. Raw RGBA frames
// stream over fd 3 and raw s16le samples over fd 4, so the two inputs
// stay independent of stdin/stdout.
type FFmpegBackend struct {
	options Options

	cmd        *exec.Cmd
	videoPipe  *os.File
	audioPipe  *os.File
	videoWrite *bufio.Writer
	audioWrite *bufio.Writer

	sampleBytes []byte
}

func NewFFmpegBackend(options Options) *FFmpegBackend {
	return &FFmpegBackend{options: options}
}

func (f *FFmpegBackend) args() []string {
	o := f.options
	args := []string{
		"-y", "-loglevel", "error",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", o.InputWidth, o.InputHeight),
		"-framerate", fmt.Sprintf("%d/%d", TimebaseDen, TimebaseNum),
		"-i", "pipe:3",
		"-f", "s16le",
		"-ar", fmt.Sprint(o.SampleRate),
		"-ac", "1",
		"-i", "pipe:4",
		"-map", "0:v", "-map", "1:a",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "16",
		"-tune", "animation",
		"-pix_fmt", "yuv420p",
	}
	if o.InputWidth != o.OutputWidth || o.InputHeight != o.OutputHeight {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d:flags=neighbor", o.OutputWidth, o.OutputHeight))
	}
	args = append(args,
		"-c:a", "aac",
		"-b:a", "192k",
		"-profile:a", "aac_low",
		"-movflags", "+faststart",
	)

	// deterministic argument order for the metadata map
	keys := make([]string, 0, len(o.Metadata))
	for k := range o.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-metadata", fmt.Sprintf("%s=%s", k, o.Metadata[k]))
	}

	return append(args, o.OutputPath)
}

func (f *FFmpegBackend) Start() error {
	videoRead, videoWrite, err := os.Pipe()
	if err != nil {
		return err
	}
	audioRead, audioWrite, err := os.Pipe()
	if err != nil {
		videoRead.Close()
		videoWrite.Close()
		return err
	}

	binary := f.options.FFmpegPath
	if binary == "" {
		binary = "ffmpeg"
	}

	f.cmd = exec.Command(binary, f.args()...)
	f.cmd.ExtraFiles = []*os.File{videoRead, audioRead}
	f.cmd.Stderr = os.Stderr

	if err := f.cmd.Start(); err != nil {
		videoRead.Close()
		videoWrite.Close()
		audioRead.Close()
		audioWrite.Close()
		return fmt.Errorf("starting %s: %w", binary, err)
	}

	// the child holds its own descriptors now
	videoRead.Close()
	audioRead.Close()

	f.videoPipe = videoWrite
	f.audioPipe = audioWrite
	f.videoWrite = bufio.NewWriterSize(videoWrite, 1<<20)
	f.audioWrite = bufio.NewWriterSize(audioWrite, 1<<16)
	return nil
}

func (f *FFmpegBackend) SendVideo(frame []byte) error {
	_, err := f.videoWrite.Write(frame)
	return err
}

func (f *FFmpegBackend) SendAudio(samples []int16) error {
	if cap(f.sampleBytes) < len(samples)*2 {
		f.sampleBytes = make([]byte, len(samples)*2)
	}
	buf := f.sampleBytes[:len(samples)*2]
	for i, s := range samples {
		buf[i*2] = uint8(s)
		buf[i*2+1] = uint8(uint16(s) >> 8)
	}
	_, err := f.audioWrite.Write(buf)
	return err
}

func (f *FFmpegBackend) Finish() error {
	if f.cmd == nil {
		return nil
	}
	if err := f.videoWrite.Flush(); err != nil {
		return err
	}
	if err := f.audioWrite.Flush(); err != nil {
		return err
	}
	f.videoPipe.Close()
	f.audioPipe.Close()

	if err := f.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}

// BytesWritten reports the current size of the output container.
func (f *FFmpegBackend) BytesWritten() int64 {
	info, err := os.Stat(f.options.OutputPath)
	if err != nil {
		return 0
	}
	return info.Size()
}
