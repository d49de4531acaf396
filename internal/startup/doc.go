// Package startup handles pipeline initialization, configuration loading,
// and startup/shutdown logging.
//
// This package centralizes all configuration and provides consistent
// logging throughout the run lifecycle.
//
// # Configuration
//
// Configuration is resolved by viper from, in order of precedence, command
// line flags bound by the caller, environment variables, an optional config
// file (see [ReadConfigFile]) and defaults. [NewViper] sets up the defaults and
// environment lookup; [LoadConfig] validates the result.
//
// The following keys (and their environment variables) are supported:
//
//   - media_dir (MEDIA_DIR): Directory to normalize (default: public)
//   - workers (WORKERS): Files processed concurrently within a stage, 0 for one per CPU (default: 1)
//   - log_level (LOG_LEVEL): Logging level - debug, info, warn, error (default: info)
//   - ffmpeg_path (FFMPEG_PATH): ffmpeg binary (default: ffmpeg from PATH)
//   - use_vips (USE_VIPS): Compress with libvips when available (default: true)
//   - journal_path (JOURNAL_PATH): sqlite run journal, disabled when empty
//   - metrics_textfile (METRICS_TEXTFILE): Prometheus textfile written after a run
//   - memory_limit (MEMORY_LIMIT): Memory limit in bytes for automatic GOMEMLIMIT
//   - memory_ratio (MEMORY_RATIO): Fraction of memory_limit for Go heap (default: 0.85)
//   - strict (STRICT): Exit non-zero when any file fails (default: false)
//   - GOMEMLIMIT: Direct override for Go's memory limit
//
// # Directory Setup
//
// The media directory must already exist and be writable; it is never
// created. Paths are resolved to absolute form before the run starts.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo]:
//   - Version: Application version
//   - Commit: Git commit hash
//   - BuildTime: Build timestamp
//   - GoVersion: Go compiler version
//
// # Example Usage
//
//	v := startup.NewViper()
//	config, err := startup.LoadConfig(v)
//	if err != nil {
//	    startup.LogFatal("Configuration error: %v", err)
//	}
//
//	startup.LogMemoryConfig(memory.Configure(config.MemoryLimit, config.MemoryRatio))
//	startup.LogEncoderInit(config.FFmpegPath, media.IsVipsAvailable())
//	startup.LogRunStarted(config.MediaDir, config.Workers)
//
//	// On shutdown...
//	startup.LogShutdownInitiated("SIGTERM")
//	startup.LogShutdownComplete()
package startup
