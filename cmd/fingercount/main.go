package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/ayusman/fingercount/internal/app"
	"github.com/ayusman/fingercount/internal/assets"
	"github.com/ayusman/fingercount/internal/capture"
	"github.com/ayusman/fingercount/internal/config"
	"github.com/ayusman/fingercount/internal/detector"
	"github.com/ayusman/fingercount/internal/fingers"
	"github.com/ayusman/fingercount/internal/server"
	"github.com/ayusman/fingercount/internal/store"
	"github.com/ayusman/fingercount/internal/tray"
	"github.com/lmittmann/tint"
)

// windowDelayMs is how long the display waits for a key on every frame.
const windowDelayMs = 1

func main() {
	cfg, err := config.Parse(os.Args[0], os.Args[1:], loadLastConfig)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05",
		}),
	)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("finger counter failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	overlays, err := assets.Load(assets.Options{
		FingerDir: cfg.Overlays.FingerDir,
		DigitDir:  cfg.Overlays.DigitDir,
		Width:     cfg.Overlays.Width,
		Height:    cfg.Overlays.Height,
		FingerAt:  cfg.Overlays.FingerAt,
		DigitAt:   cfg.Overlays.DigitAt,
	}, cfg.Camera.Width, cfg.Camera.Height, logger)
	if err != nil {
		return fmt.Errorf("load overlays: %w", err)
	}
	defer overlays.Close()

	classifier, err := fingers.NewClassifier(fingers.RightHandUpright)
	if err != nil {
		return err
	}

	det := newDetector(cfg, logger)
	defer det.Close()

	appConfig := app.Config{
		Camera: capture.NewCamera(capture.CameraConfig{
			DeviceID: cfg.Camera.DeviceID,
			Width:    cfg.Camera.Width,
			Height:   cfg.Camera.Height,
			FPS:      cfg.Camera.FPS,
		}),
		Detector:   det,
		Classifier: classifier,
		Overlays:   overlays,
		Width:      cfg.Camera.Width,
		Height:     cfg.Camera.Height,
		Logger:     logger,
	}

	if cfg.WindowTitle != "" {
		appConfig.Display = capture.NewWindow(cfg.WindowTitle, windowDelayMs)
	}

	if cfg.Record.Enabled {
		rec, err := capture.NewRecorder(cfg.Record.Path, cfg.Record.FPS, cfg.Camera.Width, cfg.Camera.Height)
		if err != nil {
			return fmt.Errorf("open recorder: %w", err)
		}
		logger.Info("recording", "path", rec.Path(), "fps", cfg.Record.FPS)
		appConfig.Sinks = append(appConfig.Sinks, rec)
	}

	var st *store.Store
	if cfg.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
		st, err = store.New(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
		saveConfig(st, cfg, logger)
	}

	a, err := app.New(appConfig)
	if err != nil {
		return err
	}

	if st != nil {
		history, err := app.NewHistory(st, cfg.Camera.DeviceID, logger)
		if err != nil {
			return fmt.Errorf("start history: %w", err)
		}
		defer func() {
			if err := history.Close(); err != nil {
				logger.Warn("close history", "err", err)
			}
		}()
		a.AddObserver(history)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.ServerAddr != "" {
		hub := server.NewHub(server.DefaultEncodeInterval)
		a.AddObserver(hub)
		srv := server.New(server.Config{
			StaticDir: cfg.StaticDir,
			Store:     st,
			Hub:       hub,
			FPS:       a.FPS,
			Logger:    logger,
		})
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.ServerAddr); err != nil {
				logger.Error("server stopped", "err", err)
			}
		}()
	}

	if !cfg.Tray {
		return a.Run(ctx)
	}

	// The tray owns the main thread; the frame loop runs beside it.
	t := tray.New()
	t.OnToggle(func(enabled bool) {
		a.SetEnabled(enabled)
		logger.Info("detection toggled", "enabled", enabled)
	})
	t.OnQuit(cancel)
	if cfg.ServerAddr != "" {
		url := previewURL(cfg.ServerAddr)
		t.OnPreview(func() {
			if err := openBrowser(url); err != nil {
				logger.Warn("open preview", "url", url, "err", err)
			}
		})
	}
	a.AddObserver(t)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run(ctx)
		t.Quit()
	}()
	go func() {
		<-ctx.Done()
		t.Quit()
	}()

	t.Run()
	cancel()
	return <-errCh
}

// newDetector starts the MediaPipe landmark service. Without it the loop
// still runs and shows frames, but never finds a hand.
func newDetector(cfg *config.Config, logger *slog.Logger) detector.Detector {
	dc := detector.DefaultConfig()
	dc.MinConfidence = cfg.Detector.MinConfidence
	dc.MinTrackingConf = cfg.Detector.MinTrackingConf

	det, err := detector.NewMediaPipeDetector(dc)
	if err != nil {
		logger.Warn("hand landmark service unavailable, running without detection", "err", err)
		return detector.NewMockDetector()
	}
	return det
}

// loadLastConfig reads the config saved by saveConfig from the history
// database.
func loadLastConfig(dbPath string) ([]byte, error) {
	if dbPath == "" {
		return nil, errors.New("no history database configured")
	}
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	st, err := store.New(dbPath)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	value, err := st.Settings().Get(config.LastUsedKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errors.New("no config saved by a previous run")
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

// saveConfig stores the effective configuration as the last used one.
func saveConfig(st *store.Store, cfg *config.Config, logger *slog.Logger) {
	data, err := json.Marshal(cfg)
	if err != nil {
		logger.Warn("encode config", "err", err)
		return
	}
	if err := st.Settings().Set(config.LastUsedKey, string(data)); err != nil {
		logger.Warn("save config", "err", err)
	}
}

// previewURL turns a listen address such as ":8080" into a browsable URL.
func previewURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/api/stream"
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
