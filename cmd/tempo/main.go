package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"

	"github.com/valerio/go-tempo/tempo"
	"github.com/valerio/go-tempo/tempo/audio"
	"github.com/valerio/go-tempo/tempo/output"
	"github.com/valerio/go-tempo/tempo/regscript"
	"github.com/valerio/go-tempo/tempo/timing"
)

func main() {
	app := cli.NewApp()
	app.Name = "tempo"
	app.Description = "Event-driven timing core for gb, gba and n64 sessions"
	app.Usage = "tempo run --platform <gb|gba|n64> [options]"
	app.Version = "1.0.0"
	app.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "Run a headless session, optionally replaying a register script",
			Flags:  runFlags,
			Action: runSession,
		},
		{
			Name:  "platforms",
			Usage: "List the supported platforms",
			Action: func(c *cli.Context) error {
				for _, p := range tempo.Platforms {
					fmt.Println(p)
				}
				return nil
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		slog.Error("Error running session", "error", err)
		os.Exit(1)
	}
}

var runFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "platform",
		Usage: "Platform to run: " + strings.Join(platformNames(), ", "),
		Value: string(tempo.GB),
	},
	cli.Int64Flag{
		Name:  "cycles",
		Usage: "Number of cycles to run (0 = use --frames)",
	},
	cli.IntFlag{
		Name:  "frames",
		Usage: "Number of frames to run when --cycles is not set",
		Value: 60,
	},
	cli.StringFlag{
		Name:  "script",
		Usage: "Register script with one '<cycle> <address> <value>' write per line",
	},
	cli.StringFlag{
		Name:  "wav",
		Usage: "Write the audio output to a 16-bit stereo WAV file",
	},
	cli.IntFlag{
		Name:  "sample-rate",
		Usage: "Output sample rate in Hz",
		Value: 48000,
	},
	cli.IntFlag{
		Name:  "buffer-frames",
		Usage: "Frames per block handed to the audio sink",
		Value: output.DefaultCapacity,
	},
	cli.StringFlag{
		Name:  "save-state",
		Usage: "Save the session state to this file when the run ends",
	},
	cli.StringFlag{
		Name:  "load-state",
		Usage: "Restore the session state from this file before running",
	},
	cli.BoolFlag{
		Name:  "realtime",
		Usage: "Pace the run to the platform's real frame rate",
	},
	cli.StringFlag{
		Name:  "limiter",
		Usage: "Frame pacing used by --realtime: adaptive or ticker",
		Value: "adaptive",
	},
	cli.BoolFlag{
		Name:  "fast-forward",
		Usage: "Jump from event to event instead of advancing in fixed steps",
	},
	cli.BoolFlag{
		Name:  "debug",
		Usage: "Enable debug logging",
	},
}

func platformNames() []string {
	names := make([]string, len(tempo.Platforms))
	for i, p := range tempo.Platforms {
		names[i] = string(p)
	}
	return names
}

func runSession(c *cli.Context) error {
	if c.Bool("debug") {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
		slog.SetDefault(slog.New(handler))
	}

	platform, err := tempo.ParsePlatform(c.String("platform"))
	if err != nil {
		return err
	}
	if c.Bool("realtime") && c.Bool("fast-forward") {
		return errors.New("--realtime and --fast-forward are mutually exclusive")
	}

	var script []regscript.Write
	if path := c.String("script"); path != "" {
		script, err = loadScript(path)
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	cfg := tempo.Config{
		SampleRate:   c.Int("sample-rate"),
		BufferFrames: c.Int("buffer-frames"),
		Logger:       slog.Default(),
	}

	var blocks *output.ChanSink
	wavPath := c.String("wav")
	if wavPath != "" {
		blocks = output.NewChanSink(8)
		cfg.Sink = blocks
	}

	m, err := tempo.New(platform, cfg)
	if err != nil {
		return err
	}

	if path := c.String("load-state"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read state: %w", err)
		}
		if err := m.Load(data); err != nil {
			return err
		}
		slog.Info("Loaded state", "path", path, "cycle", m.Now(), "frames", m.Frames())
	}

	cycles := c.Int64("cycles")
	if cycles <= 0 {
		frames := c.Int("frames")
		if frames <= 0 {
			return errors.New("run requires --cycles or --frames with a positive value")
		}
		cycles = int64(frames) * m.CyclesPerFrame()
	}

	opts := tempo.RunOptions{
		Until:       m.Now() + cycles,
		Script:      script,
		FastForward: c.Bool("fast-forward"),
		Logger:      slog.Default(),
	}
	if c.Bool("realtime") {
		limiter, stopLimiter, err := newLimiter(c.String("limiter"), timing.FrameDuration(m.ClockHz(), m.CyclesPerFrame()))
		if err != nil {
			return err
		}
		defer stopLimiter()
		opts.Limiter = limiter
	}

	if blocks != nil {
		file, err := os.Create(wavPath)
		if err != nil {
			return fmt.Errorf("failed to create wav file: %w", err)
		}
		defer file.Close()

		wav, err := output.NewWAVSink(file, cfg.SampleRate)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return writeBlocks(blocks, wav)
		})
	}

	slog.Info("Running session", "platform", platform, "cycles", cycles, "script_writes", len(script))

	g.Go(func() error {
		if blocks != nil {
			defer blocks.Close()
		}
		return tempo.Run(ctx, m, opts)
	})
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		slog.Info("Run interrupted", "cycle", m.Now())
	} else if err != nil {
		return err
	}

	if path := c.String("save-state"); path != "" {
		data, err := m.Save()
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write state: %w", err)
		}
		slog.Info("Saved state", "path", path, "bytes", len(data))
	}

	if psg, ok := m.(interface{ ChannelStatus() [4]audio.Status }); ok {
		for i, st := range psg.ChannelStatus() {
			slog.Debug("Channel status", "channel", i+1, "status", st.String())
		}
	}
	slog.Info("Session completed", "cycle", m.Now(), "frames", m.Frames())
	return nil
}

// newLimiter builds the named frame pacer. The returned stop func releases
// its resources once the run is over.
func newLimiter(name string, frame time.Duration) (timing.Limiter, func(), error) {
	switch strings.ToLower(name) {
	case "adaptive":
		return timing.NewAdaptiveLimiter(frame, slog.Default()), func() {}, nil
	case "ticker":
		t := timing.NewTickerLimiter(frame)
		return t, t.Stop, nil
	}
	return nil, nil, fmt.Errorf("unknown limiter %q, want adaptive or ticker", name)
}

func loadScript(path string) ([]regscript.Write, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open script: %w", err)
	}
	defer file.Close()
	return regscript.Parse(file)
}

// writeBlocks drains the producer's blocks into the WAV file. After a write
// error it keeps draining so the producer never stalls on a full channel.
func writeBlocks(blocks *output.ChanSink, wav *output.WAVSink) error {
	var werr error
	for block := range blocks.Blocks() {
		if werr == nil {
			werr = wav.Write(block)
		}
	}
	if err := wav.Close(); werr == nil {
		werr = err
	}
	if werr == nil {
		slog.Info("Wrote audio", "frames", wav.Frames())
	}
	return werr
}
