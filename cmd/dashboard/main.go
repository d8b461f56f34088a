package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/rickgao/tradewatch/internal/api"
	"github.com/rickgao/tradewatch/internal/archive"
	"github.com/rickgao/tradewatch/internal/config"
	"github.com/rickgao/tradewatch/internal/model"
	"github.com/rickgao/tradewatch/internal/session"
	"github.com/rickgao/tradewatch/internal/ui"
	"github.com/rickgao/tradewatch/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/dashboard.example.yaml", "path to config file")
	headless := flag.Bool("headless", false, "log updates instead of drawing the terminal UI")
	logJSON := flag.Bool("log-json", false, "write logs as JSON")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *headless {
		cfg.UI.Headless = true
	}

	// Set up structured logging
	logOut, closeLog, err := logOutput(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	var handler slog.Handler = slog.NewTextHandler(logOut, opts)
	if *logJSON {
		handler = slog.NewJSONHandler(logOut, opts)
	}
	logger := slog.New(handler).With("dashboard", cfg.Session.Name)
	slog.SetDefault(logger)

	logger.Info("starting dashboard",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"headless", cfg.UI.Headless,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Create API client
	apiClient := api.NewClient(
		cfg.API.BaseURL,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, cfg.API.RetryBackoff),
		api.WithUserAgent(version.UserAgent()),
	)

	sessionID := uuid.NewString()

	// Open the optional flush archive
	var recorder *archive.Recorder
	store, err := archive.Open(ctx, cfg.Archive)
	if err != nil {
		logger.Error("failed to open archive", "driver", cfg.Archive.Driver, "error", err)
		os.Exit(1)
	}
	if store != nil {
		recorder = archive.NewRecorder(archive.RecorderConfig(cfg.Archive), sessionID, store, logger)
		logger.Info("archive opened", "driver", cfg.Archive.Driver)
	}

	// Choose the display
	var (
		display session.Display
		program *tea.Program
	)
	if cfg.UI.Headless {
		display = ui.NewLogSink(logger)
	} else {
		m := ui.NewModel(apiClient, ui.Options{
			Expected:   model.BootstrapCount,
			LatestRows: cfg.UI.LatestRows,
			ReadyDelay: cfg.Bootstrap.ReadyDelay,
		})
		program = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
		display = ui.NewBridge(program)
	}

	deps := session.Deps{
		Fetcher:   apiClient,
		Display:   display,
		SessionID: sessionID,
	}
	if recorder != nil {
		deps.Archive = recorder
	}

	sess, err := session.New(cfg, deps, logger)
	if err != nil {
		logger.Error("failed to create session", "error", err)
		os.Exit(1)
	}

	// Start status server early so bootstrap progress is visible
	var statusServer *http.Server
	if cfg.Status.Port > 0 {
		statusServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Status.Port),
			Handler:           createStatusHandler(sess, recorder),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("starting status server", "port", cfg.Status.Port)
			if err := statusServer.ListenAndServe(); err != http.ErrServerClosed {
				logger.Error("status server error", "error", err)
			}
		}()
	}

	if err := sess.Start(ctx); err != nil {
		logger.Error("failed to start session", "error", err)
		os.Exit(1)
	}

	logger.Info("dashboard running",
		"session_id", sess.ID(),
		"transport", sess.Transport().String(),
	)

	// Wait for shutdown
	if program != nil {
		if _, err := program.Run(); err != nil && ctx.Err() == nil {
			logger.Error("terminal ui error", "error", err)
		}
		cancel()
	} else {
		<-ctx.Done()
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := sess.Stop(shutdownCtx); err != nil {
		logger.Warn("session stop", "error", err)
	}
	if statusServer != nil {
		statusServer.Shutdown(shutdownCtx)
	}

	logger.Info("dashboard stopped")
}

// logOutput picks the log destination. The terminal UI owns stdout, so its
// logs go to the configured file or nowhere.
func logOutput(cfg *config.DashboardConfig) (io.Writer, func(), error) {
	if cfg.UI.Headless {
		return os.Stdout, func() {}, nil
	}
	if cfg.Session.LogFile == "" {
		return io.Discard, func() {}, nil
	}
	f, err := os.OpenFile(cfg.Session.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

// createStatusHandler creates the HTTP handler for the local status endpoint.
func createStatusHandler(sess *session.Session, recorder *archive.Recorder) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		st := sess.Status()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		health.Components["session"] = st
		if st.Push != nil && st.Push.State != "open" && !st.FellBack {
			health.Status = "degraded"
		}
		if !st.Progress.Ready {
			health.Status = "starting"
		}
		if recorder != nil {
			m := recorder.Stats()
			health.Components["archive"] = m
			if m.Errors > 0 {
				health.Status = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/lanes", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sess.Registry().Stats())
	})

	return mux
}
