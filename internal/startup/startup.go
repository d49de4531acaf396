package startup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"media-pipeline/internal/logging"
	"media-pipeline/internal/manifest"
	"media-pipeline/internal/media"
	"media-pipeline/internal/memory"
	"media-pipeline/internal/transcoder"
	"media-pipeline/internal/workers"

	"github.com/spf13/viper"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// Configuration keys. Each is also read from the environment in upper case
// (media_dir -> MEDIA_DIR).
const (
	KeyMediaDir        = "media_dir"
	KeyWorkers         = "workers"
	KeyLogLevel        = "log_level"
	KeyFFmpegPath      = "ffmpeg_path"
	KeyUseVips         = "use_vips"
	KeyJournalPath     = "journal_path"
	KeyMetricsTextfile = "metrics_textfile"
	KeyMemoryLimit     = "memory_limit"
	KeyMemoryRatio     = "memory_ratio"
	KeyStrict          = "strict"
)

// Defaults for the keys above.
const (
	DefaultMediaDir   = "public"
	DefaultWorkers    = 1
	DefaultFFmpegPath = "ffmpeg"

	// MaxAutoWorkers caps the pool when WORKERS=0 asks for one per CPU.
	MaxAutoWorkers = 8
)

// Config holds all pipeline configuration
type Config struct {
	MediaDir        string
	Workers         int
	LogLevel        logging.LogLevel
	FFmpegPath      string
	UseVips         bool
	JournalPath     string
	MetricsTextfile string
	MemoryLimit     int64
	MemoryRatio     float64
	Strict          bool

	// Derived paths
	ThumbnailDir string
	ManifestPath string
}

// NewViper returns a viper instance with defaults and environment lookup set
// up. Flags are bound by the caller.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyMediaDir, DefaultMediaDir)
	v.SetDefault(KeyWorkers, DefaultWorkers)
	v.SetDefault(KeyLogLevel, "")
	v.SetDefault(KeyFFmpegPath, DefaultFFmpegPath)
	v.SetDefault(KeyUseVips, true)
	v.SetDefault(KeyJournalPath, "")
	v.SetDefault(KeyMetricsTextfile, "")
	v.SetDefault(KeyMemoryLimit, int64(0))
	v.SetDefault(KeyMemoryRatio, memory.DefaultMemoryRatio)
	v.SetDefault(KeyStrict, false)

	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// ReadConfigFile merges path into v. An empty path is a no-op.
func ReadConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	logging.Info("  Config file:         %s", v.ConfigFileUsed())
	return nil
}

// LoadConfig resolves and validates configuration from v
func LoadConfig(v *viper.Viper) (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	if raw := v.GetString(KeyLogLevel); raw != "" {
		if level, ok := logging.ParseLevel(raw); ok {
			logging.SetLevel(level)
		} else {
			logging.Warn("  Invalid LOG_LEVEL %q, keeping %s", raw, logging.GetLevel())
		}
	}

	config := &Config{
		MediaDir:        v.GetString(KeyMediaDir),
		Workers:         v.GetInt(KeyWorkers),
		LogLevel:        logging.GetLevel(),
		FFmpegPath:      v.GetString(KeyFFmpegPath),
		UseVips:         v.GetBool(KeyUseVips),
		JournalPath:     v.GetString(KeyJournalPath),
		MetricsTextfile: v.GetString(KeyMetricsTextfile),
		MemoryLimit:     v.GetInt64(KeyMemoryLimit),
		MemoryRatio:     v.GetFloat64(KeyMemoryRatio),
		Strict:          v.GetBool(KeyStrict),
	}

	logging.Info("  MEDIA_DIR:           %s", config.MediaDir)
	logging.Info("  WORKERS:             %d", config.Workers)
	logging.Info("  FFMPEG_PATH:         %s", config.FFmpegPath)
	logging.Info("  USE_VIPS:            %v", config.UseVips)
	logging.Info("  JOURNAL_PATH:        %s", orNone(config.JournalPath))
	logging.Info("  METRICS_TEXTFILE:    %s", orNone(config.MetricsTextfile))
	logging.Info("  MEMORY_LIMIT:        %s", formatLimit(config.MemoryLimit))
	logging.Info("  MEMORY_RATIO:        %.2f", config.MemoryRatio)
	logging.Info("  STRICT:              %v", config.Strict)
	logging.Info("  LOG_LEVEL:           %s", config.LogLevel)

	switch {
	case config.Workers == 0:
		config.Workers = workers.ForCPU(0, MaxAutoWorkers)
		logging.Info("  WORKERS=0, using %d (one per CPU)", config.Workers)
	case config.Workers < 0:
		logging.Warn("  Invalid WORKERS %d, using %d", config.Workers, DefaultWorkers)
		config.Workers = DefaultWorkers
	}
	if config.FFmpegPath == "" {
		config.FFmpegPath = DefaultFFmpegPath
	}

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	mediaDir, err := filepath.Abs(config.MediaDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve media directory path: %w", err)
	}
	config.MediaDir = mediaDir
	logging.Info("  Media directory (absolute): %s", mediaDir)

	// The media directory is never created: an absent directory is a mistake
	if err := checkDirectory(mediaDir, "media"); err != nil {
		return nil, fmt.Errorf("media directory error: %w", err)
	}

	logging.Debug("  Testing media directory write access...")
	if err := testWriteAccess(mediaDir); err != nil {
		return nil, fmt.Errorf("media directory is not writable: %w", err)
	}
	logging.Info("  [OK] Media directory is writable")

	config.ThumbnailDir = filepath.Join(mediaDir, media.ThumbnailDir)
	config.ManifestPath = manifest.Path(mediaDir)

	if config.JournalPath != "" {
		if config.JournalPath, err = filepath.Abs(config.JournalPath); err != nil {
			return nil, fmt.Errorf("failed to resolve journal path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(config.JournalPath), 0o755); err != nil {
			return nil, fmt.Errorf("journal directory error: %w", err)
		}
		logging.Info("  Journal (absolute):         %s", config.JournalPath)
	}

	return config, nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func formatLimit(limit int64) string {
	if limit <= 0 {
		return "(none)"
	}
	return memory.FormatBytes(limit)
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogMemoryConfig logs the outcome of memory.Configure
func LogMemoryConfig(result memory.ConfigResult) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("MEMORY CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	if !result.Configured {
		logging.Info("  GOMEMLIMIT: not configured")
		return
	}
	logging.Info("  Source:      %s", result.Source)
	logging.Info("  GOMEMLIMIT:  %s", memory.FormatBytes(result.GoMemLimit))
	if result.ContainerLimit > 0 {
		logging.Info("  Limit:       %s (ratio %.2f)", memory.FormatBytes(result.ContainerLimit), result.Ratio)
	}
}

// LogEncoderInit logs image and video encoder availability and checks ffmpeg.
// A missing ffmpeg is only a warning: runs without MOV files never need it.
func LogEncoderInit(ffmpegPath string, vipsEnabled bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("ENCODER INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  libvips:     %s", enabledString(vipsEnabled))
	if !vipsEnabled {
		logging.Info("  Images will be compressed with the pure Go fallback")
		logging.Warn("  Fallback output is baseline JPEG, not progressive")
	}

	if err := checkFFmpeg(ffmpegPath); err != nil {
		logging.Warn("  FFmpeg check failed: %v", err)
		logging.Warn("  MOV transcoding will fail until ffmpeg is installed")
	} else {
		logging.Info("  [OK] FFmpeg is available")
	}
}

// LogJournalInit logs journal initialization
func LogJournalInit(path string, duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("JOURNAL INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Journal %s opened in %v", path, duration)
}

// LogRunStarted logs the start of the stage sequence
func LogRunStarted(mediaDir string, workers int) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("PIPELINE RUN")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Directory:   %s", mediaDir)
	logging.Info("  Workers:     %d", workers)
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
    __  ___         ___         ____  _            ___
   /  |/  /__  ____/ (_)___ _  / __ \(_)___  ___  / (_)___  ___
  / /|_/ / _ \/ __  / / __ '/ / /_/ / / __ \/ _ \/ / / __ \/ _ \
 / /  / /  __/ /_/ / / /_/ / / ____/ / /_/ /  __/ / / / / /  __/
/_/  /_/\___/\__,_/_/\__,_/ /_/   /_/ .___/\___/_/_/_/ /_/\___/
                                   /_/
------------------------------------------------------------`
	fmt.Fprintln(os.Stderr, banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())

		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}

		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func checkDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("directory does not exist: %s", path)
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")

	if logging.IsDebugEnabled() {
		entries, err := os.ReadDir(path)
		if err == nil {
			fileCount := 0
			dirCount := 0
			for _, e := range entries {
				if e.IsDir() {
					dirCount++
				} else {
					fileCount++
				}
			}
			logging.Debug("    Contents: %d files, %d directories (top level)", fileCount, dirCount)
		}
	}

	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
		// Don't return error since write access was confirmed
	}
	return nil
}

func checkFFmpeg(path string) error {
	resolved, err := exec.LookPath(path)
	if err != nil {
		return fmt.Errorf("%s not found in PATH", path)
	}
	logging.Debug("  FFmpeg path: %s", resolved)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	version, err := transcoder.Version(ctx, resolved)
	if err != nil {
		return fmt.Errorf("failed to get ffmpeg version: %w", err)
	}
	logging.Debug("  FFmpeg version: %s", version)
	return nil
}
