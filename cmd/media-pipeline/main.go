package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"media-pipeline/internal/filesystem"
	"media-pipeline/internal/journal"
	"media-pipeline/internal/logging"
	"media-pipeline/internal/media"
	"media-pipeline/internal/mediaerr"
	"media-pipeline/internal/mediatypes"
	"media-pipeline/internal/memory"
	"media-pipeline/internal/metrics"
	"media-pipeline/internal/pipeline"
	"media-pipeline/internal/startup"
	"media-pipeline/internal/transcoder"
	"media-pipeline/internal/workers"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

func main() {
	if err := newRootCmd(startup.NewViper()).Execute(); err != nil {
		os.Exit(1)
	}
}

// cli holds the state shared by every command.
type cli struct {
	v       *viper.Viper
	cfgFile string
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	c := &cli{v: v}

	root := &cobra.Command{
		Use:   "media-pipeline [DIR]",
		Short: "Normalize a directory of photos and videos for web delivery",
		Long: `media-pipeline converts HEIC stills to JPEG, transcodes MOV movies to MP4,
compresses images, removes AAE sidecars, generates thumbnails and writes
media-manifest.json describing what is left.

Running without a subcommand is the same as "media-pipeline run".`,
		Version:       startup.Version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          c.runE,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	flags.IntP("workers", "w", startup.DefaultWorkers, "files processed concurrently within a stage")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("ffmpeg", startup.DefaultFFmpegPath, "ffmpeg binary")
	flags.Bool("vips", true, "compress with libvips when available")
	flags.String("journal", "", "sqlite run journal path")
	flags.String("metrics-textfile", "", "write Prometheus metrics to this file after a run")
	flags.Int64("memory-limit", 0, "memory limit in bytes used to derive GOMEMLIMIT")
	flags.Float64("memory-ratio", memory.DefaultMemoryRatio, "fraction of --memory-limit given to the Go heap")
	flags.Bool("strict", false, "exit non-zero when any file fails")

	bindings := map[string]string{
		startup.KeyWorkers:         "workers",
		startup.KeyLogLevel:        "log-level",
		startup.KeyFFmpegPath:      "ffmpeg",
		startup.KeyUseVips:         "vips",
		startup.KeyJournalPath:     "journal",
		startup.KeyMetricsTextfile: "metrics-textfile",
		startup.KeyMemoryLimit:     "memory-limit",
		startup.KeyMemoryRatio:     "memory-ratio",
		startup.KeyStrict:          "strict",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			logging.Fatal("failed to bind flag %s: %v", flag, err)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:          "run [DIR]",
			Short:        "Run every stage over DIR (default: $MEDIA_DIR or ./public)",
			Args:         cobra.MaximumNArgs(1),
			SilenceUsage: true,
			RunE:         c.runE,
		},
		&cobra.Command{
			Use:   "classify FILE...",
			Short: "Print the media kind of each filename",
			Args:  cobra.MinimumNArgs(1),
			Run: func(cmd *cobra.Command, args []string) {
				classify(cmd.OutOrStdout(), args)
			},
		},
		c.historyCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Run: func(cmd *cobra.Command, _ []string) {
				printVersion(cmd.OutOrStdout(), startup.GetBuildInfo())
			},
		},
	)

	return root
}

func (c *cli) runE(cmd *cobra.Command, args []string) error {
	if err := startup.ReadConfigFile(c.v, c.cfgFile); err != nil {
		return err
	}
	if len(args) == 1 {
		c.v.Set(startup.KeyMediaDir, args[0])
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	return runPipeline(ctx, c.v, os.Stderr)
}

// signalContext cancels on SIGINT or SIGTERM, logging which one arrived.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			startup.LogShutdownInitiated(sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

func runPipeline(ctx context.Context, v *viper.Viper, progressOut *os.File) error {
	config, err := startup.LoadConfig(v)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	memResult := memory.Configure(config.MemoryLimit, config.MemoryRatio)
	startup.LogMemoryConfig(memResult)

	metrics.InitializeMetrics()
	info := startup.GetBuildInfo()
	metrics.SetAppInfo(info.Version, info.Commit, info.GoVersion)
	filesystem.SetObserver(metrics.NewFilesystemObserver())

	if config.UseVips {
		if err := media.InitVips(); err != nil {
			logging.Warn("libvips unavailable, using fallback encoder: %v", err)
		} else {
			defer media.ShutdownVips()
		}
	}
	useVips := config.UseVips && media.IsVipsAvailable()
	startup.LogEncoderInit(config.FFmpegPath, useVips)

	runner := transcoder.NewFFmpegRunner(config.FFmpegPath)
	defer func() {
		startup.LogShutdownStep("Cleaning up encoder processes")
		runner.Cleanup()
		startup.LogShutdownStepComplete("Encoder cleanup complete")
	}()

	video := transcoder.New(runner)
	if term.IsTerminal(int(progressOut.Fd())) {
		video.SetProgressFunc(progressPrinter(progressOut))
	}

	// Interface fields stay nil unless a component is actually configured
	var recorder pipeline.Recorder
	if config.JournalPath != "" {
		start := time.Now()
		j, err := journal.Open(ctx, config.JournalPath)
		if err != nil {
			logging.Warn("Journal disabled: %v", err)
		} else {
			defer func() {
				if err := j.Close(); err != nil {
					logging.Warn("failed to close journal: %v", err)
				}
			}()
			startup.LogJournalInit(j.Path(), time.Since(start))
			recorder = j
		}
	}

	var gate workers.Gate
	var monitor *memory.Monitor
	if config.Workers > 1 {
		monitorConfig := memory.DefaultMonitorConfig()
		monitorConfig.LimitBytes = memResult.GoMemLimit
		if m := memory.NewMonitor(monitorConfig); m.Enabled() {
			go m.Run(ctx)
			monitor = m
			gate = m
		}
	}

	startup.LogRunStarted(config.MediaDir, config.Workers)

	p := pipeline.New(pipeline.Config{
		MediaDir:   config.MediaDir,
		Workers:    config.Workers,
		Transcoder: video,
		Compressor: media.NewCompressor(useVips),
		Recorder:   recorder,
		Gate:       gate,
	})
	report, runErr := p.Run(ctx)
	if monitor != nil {
		logging.Debug("Memory at end of run: %.1f%% of limit", monitor.Usage()*100)
	}

	if config.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(config.MetricsTextfile); err != nil {
			logging.Warn("%v", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	return exitError(report, config.Strict)
}

// exitError decides the process outcome of a run that was not aborted.
func exitError(report *pipeline.Report, strict bool) error {
	failures := report.Failures()
	if failures == 0 {
		return nil
	}
	byKind := map[string]int{}
	logging.Warn("%d files failed:", failures)
	for _, s := range report.Stages {
		for _, err := range s.Errors {
			logging.Warn("  %s: %v", s.Name, err)
			byKind[failureKind(err)]++
		}
	}
	for kind, n := range byKind {
		logging.Debug("  %s failures: %d", kind, n)
	}
	if strict {
		return fmt.Errorf("%d files failed", failures)
	}
	return nil
}

func failureKind(err error) string {
	if kind := mediaerr.KindOf(err); kind != 0 {
		return kind.String()
	}
	return "other"
}

func progressPrinter(w io.Writer) transcoder.ProgressFunc {
	return func(p transcoder.Progress) {
		fmt.Fprintf(w, "\r  %s [%s] %s\x1b[K", p.File, p.Strategy, transcoder.FormatPosition(p.Position))
	}
}

func classify(w io.Writer, names []string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range names {
		kind := mediatypes.Classify(name)
		marker := ""
		if kind == mediatypes.KindImage && mediatypes.HasCompressionMarker(name) {
			marker = "compressed"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, kind, marker)
	}
	_ = tw.Flush()
}

func printVersion(w io.Writer, info startup.BuildInfo) {
	fmt.Fprintf(w, "media-pipeline %s\n", info.Version)
	fmt.Fprintf(w, "  commit:     %s\n", info.Commit)
	fmt.Fprintf(w, "  built:      %s\n", info.BuildTime)
	fmt.Fprintf(w, "  go:         %s %s/%s\n", info.GoVersion, info.OS, info.Arch)
}
