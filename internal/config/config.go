// Package config holds the runtime configuration of the finger counter.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/ayusman/fingercount/internal/assets"
	"github.com/ayusman/fingercount/internal/overlay"
)

// maxFileSize bounds config files read by Load.
const maxFileSize = 1 << 20

// LastUsedKey is the settings key holding the JSON of the last run's config.
const LastUsedKey = "last_config"

// mainThreadUI reports whether HighGUI windows must live on the main thread,
// which the tray takes when enabled.
var mainThreadUI = runtime.GOOS == "darwin"

// LastUsedFunc returns the config JSON saved by the previous run in the
// history database at dbPath.
type LastUsedFunc func(dbPath string) ([]byte, error)

// Config represents the root configuration. Every field has a default, so a
// JSON file only needs to name the values it changes.
type Config struct {
	Camera   CameraConfig   `json:"camera"`
	Overlays OverlayConfig  `json:"overlays"`
	Detector DetectorConfig `json:"detector"`
	Record   RecordConfig   `json:"record"`

	// WindowTitle names the display window. An empty title runs headless.
	WindowTitle string `json:"window_title"`
	// ServerAddr enables the preview server when non-empty, e.g. ":8080".
	ServerAddr string `json:"server_addr"`
	// StaticDir is served under / by the preview server when set.
	StaticDir string `json:"static_dir"`
	// DBPath is the SQLite history database. Empty disables history.
	DBPath string `json:"db_path"`
	// Tray shows the system tray menu.
	Tray bool `json:"tray"`
	// Debug enables debug logging.
	Debug bool `json:"debug"`
}

// CameraConfig selects the capture device.
type CameraConfig struct {
	DeviceID int `json:"device_id"`
	Width    int `json:"width"`
	Height   int `json:"height"`
	FPS      int `json:"fps"`
}

// OverlayConfig locates the two overlay collections and where they are drawn.
type OverlayConfig struct {
	FingerDir string            `json:"finger_dir"`
	DigitDir  string            `json:"digit_dir"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	FingerAt  overlay.Placement `json:"finger_at"`
	DigitAt   overlay.Placement `json:"digit_at"`
}

// DetectorConfig tunes the landmark service.
type DetectorConfig struct {
	MinConfidence   float64 `json:"min_confidence"`
	MinTrackingConf float64 `json:"min_tracking_confidence"`
}

// RecordConfig controls the optional video recording.
type RecordConfig struct {
	Enabled bool    `json:"enabled"`
	Path    string  `json:"path"`
	FPS     float64 `json:"fps"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	dbPath := ""
	if home, err := os.UserHomeDir(); err == nil {
		dbPath = filepath.Join(home, ".fingercount", "fingercount.db")
	}

	return &Config{
		Camera: CameraConfig{
			DeviceID: 0,
			Width:    640,
			Height:   480,
			FPS:      30,
		},
		Overlays: OverlayConfig{
			FingerDir: "images/right",
			DigitDir:  "images/numbers",
			Width:     overlay.DefaultWidth,
			Height:    overlay.DefaultHeight,
			FingerAt:  assets.FingerPlacement,
			DigitAt:   assets.DigitPlacement,
		},
		Detector: DetectorConfig{
			MinConfidence:   0.75,
			MinTrackingConf: 0.5,
		},
		Record: RecordConfig{
			Enabled: false,
			Path:    "output.mp4",
			FPS:     20,
		},
		WindowTitle: "Image",
		DBPath:      dbPath,
	}
}

// Load reads a JSON config file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Decode(data)
}

// Decode parses config JSON over the defaults and validates the result.
func Decode(data []byte) (*Config, error) {
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and that both overlays fit inside the frame.
func (c *Config) Validate() error {
	var errs []error

	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		errs = append(errs, fmt.Errorf("camera size must be positive, got %dx%d", c.Camera.Width, c.Camera.Height))
	}
	if c.Camera.FPS <= 0 {
		errs = append(errs, fmt.Errorf("camera fps must be positive, got %d", c.Camera.FPS))
	}
	if c.Overlays.FingerDir == "" || c.Overlays.DigitDir == "" {
		errs = append(errs, errors.New("both overlay directories are required"))
	}
	if err := c.Overlays.FingerAt.Fits(c.Overlays.Height, c.Overlays.Width, c.Camera.Height, c.Camera.Width); err != nil {
		errs = append(errs, fmt.Errorf("finger overlay: %w", err))
	}
	if err := c.Overlays.DigitAt.Fits(c.Overlays.Height, c.Overlays.Width, c.Camera.Height, c.Camera.Width); err != nil {
		errs = append(errs, fmt.Errorf("digit overlay: %w", err))
	}
	if c.Detector.MinConfidence < 0 || c.Detector.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("min_confidence must be between 0 and 1, got %f", c.Detector.MinConfidence))
	}
	if c.Detector.MinTrackingConf < 0 || c.Detector.MinTrackingConf > 1 {
		errs = append(errs, fmt.Errorf("min_tracking_confidence must be between 0 and 1, got %f", c.Detector.MinTrackingConf))
	}
	if c.Record.Enabled {
		if c.Record.Path == "" {
			errs = append(errs, errors.New("record path is required when recording"))
		}
		if c.Record.FPS <= 0 {
			errs = append(errs, fmt.Errorf("record fps must be positive, got %f", c.Record.FPS))
		}
	}
	if c.Tray && c.WindowTitle != "" && mainThreadUI {
		errs = append(errs, errors.New("the display window cannot run beside the tray on this platform, set an empty window title"))
	}

	return errors.Join(errs...)
}

// Parse builds a Config from command line arguments. A -config file, or with
// -last the config saved by the previous run, is applied over the defaults
// first; flags given explicitly win over it. lastUsed may be nil when -last
// is not supported.
func Parse(name string, args []string, lastUsed LastUsedFunc) (*Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	path := fs.String("config", "", "path to a JSON config file")
	last := fs.Bool("last", false, "start from the config saved by the previous run")
	flagged := Default()
	bind(fs, flagged)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()
	switch {
	case *path != "" && *last:
		return nil, errors.New("-config and -last are mutually exclusive")
	case *path != "":
		loaded, err := Load(*path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	case *last:
		if lastUsed == nil {
			return nil, errors.New("-last is not supported")
		}
		data, err := lastUsed(flagged.DBPath)
		if err != nil {
			return nil, fmt.Errorf("load last config: %w", err)
		}
		loaded, err := Decode(data)
		if err != nil {
			return nil, fmt.Errorf("last config: %w", err)
		}
		cfg = loaded
	}

	// Re-bind onto the loaded config and replay only the flags that were set.
	replay := flag.NewFlagSet(name, flag.ContinueOnError)
	bind(replay, cfg)
	var setErr error
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" || f.Name == "last" || setErr != nil {
			return
		}
		setErr = replay.Set(f.Name, f.Value.String())
	})
	if setErr != nil {
		return nil, setErr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func bind(fs *flag.FlagSet, c *Config) {
	fs.IntVar(&c.Camera.DeviceID, "camera", c.Camera.DeviceID, "camera device ID")
	fs.IntVar(&c.Camera.Width, "width", c.Camera.Width, "capture width in pixels")
	fs.IntVar(&c.Camera.Height, "height", c.Camera.Height, "capture height in pixels")
	fs.IntVar(&c.Camera.FPS, "fps", c.Camera.FPS, "capture frames per second")
	fs.StringVar(&c.Overlays.FingerDir, "fingers", c.Overlays.FingerDir, "directory of the six finger-pose overlays")
	fs.StringVar(&c.Overlays.DigitDir, "digits", c.Overlays.DigitDir, "directory of the six digit overlays")
	fs.Float64Var(&c.Detector.MinConfidence, "confidence", c.Detector.MinConfidence, "minimum hand detection confidence")
	fs.BoolVar(&c.Record.Enabled, "record", c.Record.Enabled, "record the composited video")
	fs.StringVar(&c.Record.Path, "output", c.Record.Path, "recording output file")
	fs.StringVar(&c.WindowTitle, "window", c.WindowTitle, "display window title, empty for headless")
	fs.StringVar(&c.ServerAddr, "addr", c.ServerAddr, "preview server address, empty to disable")
	fs.StringVar(&c.StaticDir, "static", c.StaticDir, "static files served by the preview server")
	fs.StringVar(&c.DBPath, "db", c.DBPath, "history database path, empty to disable")
	fs.BoolVar(&c.Tray, "tray", c.Tray, "show the system tray menu")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "enable debug logging")
}
