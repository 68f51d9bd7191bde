package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/nadavhl/secondbrain/internal/analyze"
	"github.com/nadavhl/secondbrain/internal/api"
	"github.com/nadavhl/secondbrain/internal/config"
	"github.com/nadavhl/secondbrain/internal/extract"
	"github.com/nadavhl/secondbrain/internal/gemini"
	"github.com/nadavhl/secondbrain/internal/graph"
	"github.com/nadavhl/secondbrain/internal/ingest"
	"github.com/nadavhl/secondbrain/internal/notify"
	"github.com/nadavhl/secondbrain/internal/reminder"
	"github.com/nadavhl/secondbrain/internal/retrieval"
	"github.com/nadavhl/secondbrain/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the secondbrain server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		mcpStdio, _ := cmd.Flags().GetBool("mcp")
		return runServer(mcpStdio)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running secondbrain server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show secondbrain system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP over stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "secondbrain.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer(mcpStdio bool) error {
	fmt.Fprintf(os.Stderr, "secondbrain version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Server.APIToken == "" {
		return fmt.Errorf("no API token configured (set SECONDBRAIN_API_TOKEN or server.api_token)")
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// Refuse to double-start. Check the health endpoint before claiming
	// the PID file.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("secondbrain is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("secondbrain is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	gem := gemini.New(cfg.Gemini.BaseURL, cfg.Gemini.APIKey)
	if !gem.Configured() {
		logger.Warn("GEMINI_API_KEY not set, items will be saved without analysis or search vectors")
	}

	sender := notify.NewTwilioSender(
		cfg.WhatsApp.AccountSID,
		cfg.WhatsApp.AuthToken,
		cfg.WhatsApp.FromNumber,
		&http.Client{Timeout: 15 * time.Second},
		logger,
	)
	if !sender.Configured() {
		logger.Warn("Twilio credentials not set, WhatsApp replies will be dropped")
	}

	// Assemble the save pipeline: extract, analyze, embed, link, notify.
	vectorStore := retrieval.NewSQLiteStore(store.DB())
	embedder := retrieval.NewEmbedder(gem, cfg.Gemini.EmbedModel, cfg.Gemini.EmbedDim)
	analyzer := analyze.NewAnalyzer(gem, cfg.Gemini.TextModel, logger)
	linker := graph.NewLinker(vectorStore, store, gem, cfg.Gemini.TextModel, logger)
	extractor := extract.New(&http.Client{Timeout: 20 * time.Second}, logger)
	orch := ingest.NewOrchestrator(store, extractor, analyzer, embedder, vectorStore, linker, sender, sender, cfg.WhatsApp.AppURL, logger)

	pollInterval := config.ParseDuration(cfg.Ingest.PollInterval, 500*time.Millisecond)
	worker := ingest.NewWorker(store, orch, pollInterval, logger)
	go worker.Run(ctx)

	sweeper := reminder.NewSweeper(store, sender, cfg.Reminder.BatchPerUser, cfg.WhatsApp.AppURL, logger)
	sweepInterval := config.ParseDuration(cfg.Reminder.SweepInterval, time.Hour)
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				report := sweeper.Run(ctx)
				logger.Info("reminder sweep finished",
					"users", report.UsersChecked,
					"found", report.RemindersFound,
					"sent", report.RemindersSent,
					"errors", report.Errors,
				)
			}
		}
	}()

	appHandler := api.NewAppHandler(api.AppDeps{
		Store:    store,
		Embedder: embedder,
		Vectors:  vectorStore,
		Preview:  orch,
		Sweeper:  sweeper,
		Token:    cfg.Server.APIToken,
		Log:      logger,
	})

	if mcpStdio {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Store:    store,
			Embedder: embedder,
			Vectors:  vectorStore,
			Preview:  orch,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("MCP stdio server error", "error", err)
			}
		}()
		logger.Info("MCP server started (stdio transport)")
	}

	// The webhook must be reachable by Twilio, so bind all interfaces.
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: appHandler,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "secondbrain listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("secondbrain is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop secondbrain (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to secondbrain (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)

	resp, err := client.Get(healthURL)
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if cfg.Gemini.APIKey != "" {
		printStatus("Gemini", "configured (%s / %s)", cfg.Gemini.TextModel, cfg.Gemini.EmbedModel)
	} else {
		printStatus("Gemini", "not configured")
	}

	if cfg.WhatsApp.AccountSID != "" && cfg.WhatsApp.AuthToken != "" {
		printStatus("WhatsApp", "sending from %s", cfg.WhatsApp.FromNumber)
	} else {
		printStatus("WhatsApp", "not configured")
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
