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

	"github.com/halcyon/botforge/internal/agents"
	"github.com/halcyon/botforge/internal/api"
	"github.com/halcyon/botforge/internal/assistant"
	"github.com/halcyon/botforge/internal/chat"
	"github.com/halcyon/botforge/internal/config"
	"github.com/halcyon/botforge/internal/crawler"
	"github.com/halcyon/botforge/internal/index"
	"github.com/halcyon/botforge/internal/ingest"
	"github.com/halcyon/botforge/internal/storage"
	botsync "github.com/halcyon/botforge/internal/sync"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the botforge server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running botforge server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show botforge system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "botforge.pid")
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

func runServer() error {
	fmt.Fprintf(os.Stderr, "botforge version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	apiToken, err := config.EnsureAPIToken(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("botforge is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("botforge is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the assistant pipeline: gateway, index manager, synchronizer,
	// ingestors, crawl orchestrator, chat.
	gw := assistant.NewWithBaseURL(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	indexMgr := index.NewManager(store, gw)
	syncer := botsync.New(store, gw, indexMgr, cfg.OpenAI.Model)
	agentSvc := agents.NewService(store, gw, syncer, cfg.OpenAI.Model)
	ingestSvc := ingest.NewService(store, indexMgr, syncer)
	crawlClient := crawler.NewClientWithBaseURL(cfg.Crawler.APIKey, cfg.Crawler.BaseURL)
	orchestrator := crawler.NewOrchestrator(store, crawlClient, ingestSvc, cfg.Crawler.PageLimit)
	chatSvc := chat.NewService(store, gw, cfg.Assistant.Interval(), cfg.Assistant.PollMaxAttempts)

	appHandler := api.NewAppHandler(api.AppDeps{
		Agents: agentSvc,
		Ingest: ingestSvc,
		Crawl:  orchestrator,
		Sync:   syncer,
		Chat:   chatSvc,
		Token:  apiToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: appHandler,
	}

	// Start the indexing retry worker.
	worker := ingest.NewWorker(store, ingestSvc, 500*time.Millisecond)
	go worker.Run(ctx)

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Agents: agentSvc,
		Ingest: ingestSvc,
		Chat:   chatSvc,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "botforge listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
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
		printError("botforge is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop botforge (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to botforge (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	running := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Model", "%s", cfg.OpenAI.Model)
	if cfg.Crawler.APIKey == "" {
		printStatus("Crawler", "not configured")
	} else {
		printStatus("Crawler", "%s (limit %d pages)", cfg.Crawler.BaseURL, cfg.Crawler.PageLimit)
	}

	if running {
		if client, err := newAPIClient(); err == nil {
			if resp, err := client.get("/agents?limit=100"); err == nil {
				var out struct {
					Agents []struct {
						AssistantID string `json:"assistant_id"`
					} `json:"agents"`
				}
				if decodeJSON(resp, &out) == nil {
					missing := 0
					for _, a := range out.Agents {
						if a.AssistantID == "" {
							missing++
						}
					}
					printStatus("Agents", "%s", countLabel(len(out.Agents), 100))
					if missing > 0 {
						printWarning("%d agent(s) missing a remote assistant; run `botforge fix-missing`", missing)
					}
				}
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
