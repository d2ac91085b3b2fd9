package main

import (
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/thelolagemann/go-nsf/internal/apu"
	"github.com/thelolagemann/go-nsf/internal/renderer"
	"github.com/thelolagemann/go-nsf/pkg/log"
	"github.com/thelolagemann/go-nsf/pkg/preview"
)

var (
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Bold(true)
)

func main() {
	// start pprof
	go func() {
		err := http.ListenAndServe("localhost:6060", nil)
		if err != nil {
			return
		}
	}()

	var logger = log.New()

	nsfFile := flag.String("nsf", "", "The NSF/NSFe file to render")
	outFile := flag.String("out", "", "The output video file (default: input name with .mp4)")
	track := flag.Int("track", 0, "The track to render (default: the module's starting song)")
	stop := flag.String("stop", "time:300", "When to stop: time:N (seconds), time:nsfe, frames:N or loops:N")
	fadeout := flag.Int("fadeout", -1, "Fade-out length in frames (default: the NSFe fade when declared, otherwise 180)")
	width := flag.Int("width", 960, "Oscilloscope canvas width")
	height := flag.Int("height", 540, "Oscilloscope canvas height")
	outWidth := flag.Int("out-width", 1920, "Output video width")
	outHeight := flag.Int("out-height", 1080, "Output video height")
	sampleRate := flag.Int("sample-rate", 44100, "Audio sample rate in Hz")
	background := flag.String("background", "", "Background video file")
	backgroundAlpha := flag.Int("background-alpha", 255, "Background brightness, 0-255")
	ffmpegPath := flag.String("ffmpeg", "", "Path to the ffmpeg binary (default: $PATH lookup)")
	previewAddr := flag.String("preview", "", "Serve a live websocket preview on this address, e.g. :8090")
	hide := flag.String("hide", "", "Comma-separated channels to hide, e.g. '2A03:Noise,2A03:DMC'")
	mute := flag.String("mute", "", "Comma-separated channels to mute")
	flag.Parse()

	if *nsfFile == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *outFile == "" {
		*outFile = strings.TrimSuffix(strings.TrimSuffix(*nsfFile, ".nsf"), ".nsfe") + ".mp4"
	}

	stopCondition, err := renderer.ParseStopCondition(*stop)
	if err != nil {
		logger.Fatal(err.Error())
	}

	settings := map[apu.ChannelID]apu.ChannelSettings{}
	if err := parseChannelList(*hide, settings, func(s *apu.ChannelSettings) { s.Hidden = true }); err != nil {
		logger.Fatal(err.Error())
	}
	if err := parseChannelList(*mute, settings, func(s *apu.ChannelSettings) { s.Muted = true }); err != nil {
		logger.Fatal(err.Error())
	}

	options := renderer.Options{
		InputPath:       *nsfFile,
		OutputPath:      *outFile,
		TrackIndex:      *track,
		StopCondition:   stopCondition,
		FadeoutLength:   *fadeout,
		Width:           *width,
		Height:          *height,
		OutputWidth:     *outWidth,
		OutputHeight:    *outHeight,
		SampleRate:      *sampleRate,
		BackgroundPath:  *background,
		BackgroundAlpha: uint8(*backgroundAlpha),
		FFmpegPath:      *ffmpegPath,
		ChannelSettings: settings,
	}

	r, err := renderer.New(options, logger)
	if err != nil {
		logger.Fatal(err.Error())
	}

	var previewServer *preview.Server
	if *previewAddr != "" {
		previewServer = preview.New(*previewAddr, *width, *height, *sampleRate, logger)
		previewServer.Start()
	}

	if err := r.StartEncoding(); err != nil {
		logger.Fatal(err.Error())
	}

	interactive := term.IsTerminal(int(os.Stdout.Fd()))
	lastReport := time.Now()

	for {
		more, err := r.Step()
		if err != nil {
			logger.Fatal(err.Error())
		}

		if previewServer != nil {
			previewServer.PushFrame(r.LastFrame())
			previewServer.PushStatus(r.Progress())
		}

		if interactive {
			if r.CurrentFrame()%10 == 0 {
				fmt.Print("\r\033[K" + progressLine(r))
			}
		} else if time.Since(lastReport) > 5*time.Second {
			logger.Infof("%s", r.Progress())
			lastReport = time.Now()
		}

		if !more {
			break
		}
	}

	if interactive {
		fmt.Print("\r\033[K")
	}
	if err := r.FinishEncoding(); err != nil {
		logger.Fatal(err.Error())
	}
	if previewServer != nil {
		previewServer.Close()
	}

	logger.Infof("wrote %s: %s of video (%s) in %s, %.2fx realtime",
		*outFile,
		formatDuration(r.EncodedDuration()),
		formatSize(r.EncodedSize()),
		formatDuration(r.Elapsed()),
		r.EncodeRate())
}

// parseChannelList applies one setting mutation per "CHIP:Name" entry.
func parseChannelList(list string, settings map[apu.ChannelID]apu.ChannelSettings, apply func(*apu.ChannelSettings)) error {
	if list == "" {
		return nil
	}
	for _, entry := range strings.Split(list, ",") {
		chipName, channelName, found := strings.Cut(strings.TrimSpace(entry), ":")
		if !found {
			return fmt.Errorf("invalid channel %q, expected CHIP:Name e.g. 2A03:Noise", entry)
		}
		chip, ok := apu.ParseChip(chipName)
		if !ok {
			return fmt.Errorf("unknown chip %q", chipName)
		}

		id := apu.ChannelID{Chip: chip, Name: channelName}
		s := settings[id]
		apply(&s)
		settings[id] = s
	}
	return nil
}

func progressLine(r *renderer.Renderer) string {
	var b strings.Builder

	pair := func(label, value string) {
		b.WriteString(labelStyle.Render(label + " "))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("  ")
	}

	pair("frame", fmt.Sprintf("%d", r.CurrentFrame()))
	pair("encoded", formatDuration(r.EncodedDuration()))
	pair("size", formatSize(r.EncodedSize()))
	pair("fps", fmt.Sprintf("%d (avg %d)", r.InstantaneousFPS(), r.AverageFPS()))
	pair("rate", fmt.Sprintf("%.2fx", r.EncodeRate()))
	if eta, ok := r.ETA(); ok {
		pair("eta", formatDuration(eta))
	}
	return b.String()
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d >= time.Hour {
		return fmt.Sprintf("%d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
	}
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func formatSize(bytes int64) string {
	switch {
	case bytes >= 1<<30:
		return fmt.Sprintf("%.2f GiB", float64(bytes)/(1<<30))
	case bytes >= 1<<20:
		return fmt.Sprintf("%.2f MiB", float64(bytes)/(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.2f KiB", float64(bytes)/(1<<10))
	}
	return fmt.Sprintf("%d B", bytes)
}
