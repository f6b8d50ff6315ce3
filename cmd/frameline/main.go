// Package main provides the CLI entry point for frameline.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/frameline/pkg/adapters/autodecoder"
	"github.com/user/frameline/pkg/adapters/filesink"
	"github.com/user/frameline/pkg/adapters/ggrenderer"
	"github.com/user/frameline/pkg/adapters/helperencoder"
	"github.com/user/frameline/pkg/adapters/logger"
	"github.com/user/frameline/pkg/adapters/nativedecoder"
	"github.com/user/frameline/pkg/adapters/nullsink"
	"github.com/user/frameline/pkg/adapters/osfilesystem"
	"github.com/user/frameline/pkg/adapters/remotedecoder"
	"github.com/user/frameline/pkg/config"
	"github.com/user/frameline/pkg/export"
	"github.com/user/frameline/pkg/helperclient"
	"github.com/user/frameline/pkg/ports"
	"github.com/user/frameline/pkg/scheduler"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "frameline",
		Usage:   l10n.T("Decode, cache and export multi-track video timelines"),
		Version: version,
		Commands: []*cli.Command{
			exportCommand(),
			probeCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"C"}, Usage: l10n.T("Configuration YAML file")},
		&cli.StringFlag{Name: "helper-addr", Usage: l10n.T("Helper process address (host:port)")},
		&cli.StringFlag{Name: "helper-token", Usage: l10n.T("Helper authentication token")},
		&cli.StringFlag{Name: "ffmpeg-path", Usage: l10n.T("Path to ffmpeg executable")},
		&cli.BoolFlag{Name: "force-remote", Usage: l10n.T("Route every clip through the helper")},
		&cli.BoolFlag{Name: "no-helper", Usage: l10n.T("Never connect to the helper process")},
		&cli.StringFlag{Name: "log-level", Aliases: []string{"l"}, Value: "info", Usage: l10n.T("Log level (debug, info, warn, error)")},
		&cli.BoolFlag{Name: "quiet", Aliases: []string{"Q"}, Usage: l10n.T("Suppress all log output")},
	}
}

func exportCommand() *cli.Command {
	flags := append(commonFlags(),
		&cli.StringFlag{Name: "timeline", Aliases: []string{"t"}, Usage: l10n.T("Timeline YAML file")},
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: l10n.T("Output MP4 file path")},
		&cli.IntFlag{Name: "width", Aliases: []string{"W"}, Usage: l10n.T("Output video width")},
		&cli.IntFlag{Name: "height", Aliases: []string{"H"}, Usage: l10n.T("Output video height")},
		&cli.Float64Flag{Name: "fps", Usage: l10n.T("Output frame rate")},
		&cli.IntFlag{Name: "bitrate", Usage: l10n.T("Output bitrate in bits/sec")},
		&cli.StringFlag{Name: "codec", Usage: l10n.T("Output codec")},
		&cli.IntFlag{Name: "radius", Usage: l10n.T("Prefetch radius in frames")},
		&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: l10n.T("Enable diagnostics output")},
		&cli.StringFlag{Name: "debug-dir", Value: "./debug", Usage: l10n.T("Directory for diagnostics output")},
	)
	return &cli.Command{
		Name:   "export",
		Usage:  l10n.T("Export a timeline to an MP4 file"),
		Flags:  flags,
		Action: runExport,
	}
}

func probeCommand() *cli.Command {
	return &cli.Command{
		Name:      "probe",
		Usage:     l10n.T("Inspect a media file and report its codec and metadata"),
		ArgsUsage: "<file>",
		Flags:     commonFlags(),
		Action:    runProbe,
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Defaults()
	if path := c.String("config"); path != "" {
		var err error
		cfg, err = config.LoadFromFile(path)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
	}

	if c.IsSet("helper-addr") {
		cfg.Helper.Addr = c.String("helper-addr")
	}
	if c.IsSet("helper-token") {
		cfg.Helper.Token = c.String("helper-token")
	}
	if c.IsSet("ffmpeg-path") {
		cfg.FFmpegPath = c.String("ffmpeg-path")
	}
	if c.IsSet("force-remote") {
		cfg.ForceRemote = c.Bool("force-remote")
	}
	if c.IsSet("no-helper") {
		cfg.DisableRemote = c.Bool("no-helper")
	}
	if c.IsSet("timeline") {
		cfg.TimelinePath = c.String("timeline")
	}
	if c.IsSet("output") {
		cfg.OutputPath = c.String("output")
	}
	if c.IsSet("width") {
		cfg.Width = c.Int("width")
	}
	if c.IsSet("height") {
		cfg.Height = c.Int("height")
	}
	if c.IsSet("fps") {
		cfg.FPS = c.Float64("fps")
	}
	if c.IsSet("bitrate") {
		cfg.Bitrate = c.Int("bitrate")
	}
	if c.IsSet("codec") {
		cfg.Codec = c.String("codec")
	}
	if c.IsSet("radius") {
		cfg.PrefetchRadius = c.Int("radius")
	}
	if c.IsSet("debug") {
		cfg.Debug = c.Bool("debug")
	}
	if c.IsSet("debug-dir") {
		cfg.DebugDir = c.String("debug-dir")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	return cfg, nil
}

func newLogger(c *cli.Context, cfg config.Config) ports.Logger {
	if c.Bool("quiet") {
		return logger.NewNoop()
	}
	return logger.NewConsole(ports.ParseLogLevel(cfg.LogLevel))
}

// connectHelper dials the helper process. A nil client with a nil error
// means the helper is disabled or unreachable and decoding proceeds
// in-process only.
func connectHelper(ctx context.Context, cfg config.Config, log ports.Logger) (*helperclient.Client, error) {
	if cfg.DisableRemote || cfg.Helper.Addr == "" {
		return nil, nil
	}

	client := helperclient.New(helperclient.Options{
		Addr:           cfg.Helper.Addr,
		Token:          cfg.Helper.Token,
		RequestTimeout: time.Duration(cfg.Helper.RequestTimeoutMs) * time.Millisecond,
		DecodeTimeout:  time.Duration(cfg.Helper.DecodeTimeoutMs) * time.Millisecond,
		Logger:         log,
	})
	if err := client.Connect(ctx); err != nil {
		if cfg.ForceRemote {
			return nil, fmt.Errorf("helper connection required: %w", err)
		}
		log.Warn(l10n.F("Helper at %s unavailable, decoding in-process only: %s", cfg.Helper.Addr, err))
		return nil, nil
	}
	log.Info(l10n.F("Connected to helper at %s", cfg.Helper.Addr))
	return client, nil
}

func newFactory(cfg config.Config, client *helperclient.Client, log ports.Logger) *autodecoder.Factory {
	if cfg.FFmpegPath != "" {
		nativedecoder.SetFFmpegPath(cfg.FFmpegPath)
	}

	var helper remotedecoder.HelperAPI
	if client != nil {
		helper = client
	}
	factory := autodecoder.New(helper, remotedecoder.Options{Compress: cfg.CompressWire}, log)
	factory.ForceRemote(cfg.ForceRemote)
	return factory
}

func runExport(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.TimelinePath == "" {
		return errors.New(l10n.T("timeline file is required (--timeline)"))
	}
	if cfg.OutputPath == "" {
		return errors.New(l10n.T("output path is required (--output)"))
	}

	log := newLogger(c, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn(l10n.T("Interrupted, shutting down..."))
		cancel()
	}()

	clips, err := config.LoadTimeline(cfg.TimelinePath)
	if err != nil {
		return fmt.Errorf("load timeline: %w", err)
	}

	client, err := connectHelper(ctx, cfg, log)
	if err != nil {
		return err
	}
	if client == nil {
		return errors.New(l10n.T("export requires a helper connection for encoding"))
	}
	defer client.Close()

	fs := osfilesystem.New()
	var sink ports.DiagnosticsSink
	if cfg.Debug {
		if err := fs.MkdirAll(cfg.DebugDir); err != nil {
			return fmt.Errorf("create debug directory: %w", err)
		}
		fileSink := filesink.New(cfg.DebugDir, fs)
		if err := fileSink.Reset(); err != nil {
			return fmt.Errorf("clear stale diagnostics: %w", err)
		}
		sink = fileSink
	} else {
		sink = nullsink.New()
	}

	sched := scheduler.New(scheduler.Options{
		Radius:        cfg.PrefetchRadius,
		ScrubScale:    cfg.ScrubScale,
		DecodeTimeout: cfg.DecodeTimeout(),
		Factory:       newFactory(cfg, client, log),
		Logger:        log,
		Sink:          sink,
	})
	defer sched.Close()

	if err := sched.Initialize(ctx, clips); err != nil {
		return err
	}

	driver := export.New(export.Options{
		Settings:    cfg.ToEncodeSettings(),
		Clips:       clips,
		Source:      sched,
		Encoder:     helperencoder.New(client, log),
		Placeholder: ggrenderer.New(),
		Logger:      log,
		Sink:        sink,
	})

	log.Info(l10n.F("Exporting %d clips to %s...", len(clips), cfg.OutputPath))
	res, err := driver.Run(ctx)
	if cfg.Debug {
		if herr := sched.SaveHealth(); herr != nil {
			log.Warn(l10n.F("Failed to write diagnostics: %s", herr))
		}
	}
	if err != nil {
		return err
	}

	if res.FramesMissing > 0 {
		log.Warn(l10n.F("%d of %d frames were replaced with placeholders", res.FramesMissing, res.TotalFrames))
	}
	log.Info(l10n.F("Output saved to %s (%d frames, %d bytes)", res.OutputPath, res.FramesEncoded, res.FileSize))
	return nil
}

func runProbe(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New(l10n.T("a media file argument is required"))
	}
	path := c.Args().First()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := newLogger(c, cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := connectHelper(ctx, cfg, log)
	if err != nil {
		return err
	}
	if client != nil {
		defer client.Close()
	}

	dec, backend, err := newFactory(cfg, client, log).NewDecoder(path)
	if err != nil {
		return err
	}
	defer dec.Close()

	meta, err := dec.Open(ctx)
	if err != nil {
		return err
	}

	fmt.Println(l10n.F("File: %s", path))
	fmt.Println(l10n.F("Backend: %s", backend))
	fmt.Println(l10n.F("Codec: %s", meta.Codec))
	fmt.Println(l10n.F("Size: %dx%d", meta.Width, meta.Height))
	fmt.Println(l10n.F("Frame rate: %.3f fps", meta.FPS))
	fmt.Println(l10n.F("Frames: %d (%.2fs)", meta.FrameCount, float64(meta.DurationMs)/1000))
	return nil
}
