package media

import (
	"fmt"
	"sync"

	"media-pipeline/internal/logging"

	"github.com/davidbyttow/govips/v2/vips"
)

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
	vipsAvailable   bool
)

// vipsLogSettings maps the application log level onto the libvips threshold
// and a handler that forwards what passes it.
func vipsLogSettings(level logging.LogLevel) (func(string, vips.LogLevel, string), vips.LogLevel) {
	forward := func(domain string, l vips.LogLevel, msg string) {
		switch l {
		case vips.LogLevelError, vips.LogLevelCritical:
			logging.Error("[%s] %s", domain, msg)
		case vips.LogLevelWarning:
			logging.Warn("[%s] %s", domain, msg)
		default:
			logging.Debug("[%s] %s", domain, msg)
		}
	}

	switch level {
	case logging.LevelDebug:
		return forward, vips.LogLevelInfo
	case logging.LevelInfo:
		return forward, vips.LogLevelWarning
	case logging.LevelWarn:
		return forward, vips.LogLevelError
	default:
		return forward, vips.LogLevelCritical
	}
}

// InitVips initializes the libvips library
// This should be called once at startup
func InitVips() error {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return nil
	}

	// Logging must be configured before Startup
	handler, threshold := vipsLogSettings(logging.GetLevel())
	vips.LoggingSettings(handler, threshold)

	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
		ReportLeaks:      false,
		CacheTrace:       false,
		CollectStats:     false,
	})

	vipsInitialized = true
	vipsAvailable = true
	logging.Info("libvips initialized successfully (version: %s)", vips.Version)
	return nil
}

// ShutdownVips cleans up libvips resources
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		vipsAvailable = false
		logging.Info("libvips shutdown complete")
	}
}

// IsVipsAvailable returns whether libvips is available for use
func IsVipsAvailable() bool {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	return vipsAvailable
}

// compressWithVips caps the longest edge at maxEdge and exports a progressive
// JPEG that keeps the source metadata. No auto-rotation is applied.
func compressWithVips(data []byte, maxEdge, quality int) ([]byte, ImageDimensions, error) {
	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, ImageDimensions{}, fmt.Errorf("vips failed to load image: %w", err)
	}
	defer ref.Close()

	if longest := max(ref.Width(), ref.Height()); longest > maxEdge {
		scale := float64(maxEdge) / float64(longest)
		if err := ref.Resize(scale, vips.KernelLanczos3); err != nil {
			return nil, ImageDimensions{}, fmt.Errorf("vips failed to resize: %w", err)
		}
	}

	out, _, err := ref.ExportJpeg(&vips.JpegExportParams{
		Quality:        quality,
		Interlace:      true,
		StripMetadata:  false,
		OptimizeCoding: true,
	})
	if err != nil {
		return nil, ImageDimensions{}, fmt.Errorf("vips failed to export jpeg: %w", err)
	}

	return out, ImageDimensions{Width: ref.Width(), Height: ref.Height()}, nil
}
