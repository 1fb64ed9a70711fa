package main

import (
	"context"
	"encoding/json"
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

	"github.com/kalambet/contrarian/internal/analysis"
	"github.com/kalambet/contrarian/internal/api"
	"github.com/kalambet/contrarian/internal/config"
	"github.com/kalambet/contrarian/internal/extract"
	"github.com/kalambet/contrarian/internal/gemini"
	"github.com/kalambet/contrarian/internal/generation"
	"github.com/kalambet/contrarian/internal/jobs"
	"github.com/kalambet/contrarian/internal/news"
	"github.com/kalambet/contrarian/internal/retrieval"
	"github.com/kalambet/contrarian/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the contrarian server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running contrarian server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show contrarian system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "contrarian.pid")
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
	fmt.Fprintf(os.Stderr, "contrarian version %s\n", version)

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

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("contrarian is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("contrarian is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage. The retrieval index lives here and survives restarts;
	// job state does not.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the retrieval store.
	geminiClient := gemini.New(cfg.Gemini.BaseURL, cfg.Gemini.APIKey)
	embedder := retrieval.NewEmbedder(geminiClient, cfg.Gemini.EmbedModel)
	index := retrieval.NewSQLiteIndex(store.DB())
	splitter := retrieval.NewSplitter(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)
	ragStore := retrieval.NewStore(index, embedder, splitter).WithLedger(store)

	// Build the generation wrapper shared by all stages.
	baseBackoff, err := time.ParseDuration(cfg.Generation.BaseBackoff)
	if err != nil {
		slog.Warn("invalid base backoff, using default 2s", "value", cfg.Generation.BaseBackoff, "error", err)
		baseBackoff = 2 * time.Second
	}
	wrapper := generation.NewWrapper(geminiClient, cfg.Gemini.Model, generation.Options{
		MaxAttempts:       cfg.Generation.MaxAttempts,
		BaseBackoff:       baseBackoff,
		RequestsPerMinute: cfg.Generation.RequestsPerMinute,
	})

	// Build the stages and the orchestrator.
	newsClient := news.New(cfg.News.BaseURL, cfg.News.APIKey)
	newsStage := analysis.NewNewsStage(newsClient, wrapper, cfg.News.MaxArticles)
	fundStage := analysis.NewFundamentalsStage(ragStore, wrapper, cfg.Retrieval.TopK, cfg.Retrieval.MinContextChars)
	peerStage := analysis.NewPeersStage(analysis.NewStaticPeerLookup(analysis.DefaultPeerGroups()), wrapper)
	signalStage := analysis.NewSignalStage(wrapper)

	registry := jobs.NewRegistry()
	orchestrator := jobs.NewOrchestrator(registry, extract.New(), ragStore,
		newsStage, fundStage, peerStage, signalStage)

	// Build HTTP handler and server.
	appHandler := api.NewAppHandler(api.AppDeps{
		Registry:   registry,
		Runner:     orchestrator,
		Retriever:  ragStore,
		Generator:  wrapper,
		Ingestions: store,
		TopK:       cfg.Retrieval.TopK,
		UploadDir:  filepath.Join(cfg.Storage.DataDir, "uploads"),
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: appHandler,
	}

	// Start MCP server (SSE transport) on its own port.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Registry:  registry,
		Runner:    orchestrator,
		Retriever: ragStore,
		Generator: wrapper,
		TopK:      cfg.Retrieval.TopK,
	})
	mcpAddr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.MCPPort)
	sseSrv := server.NewSSEServer(mcpSrv)
	go func() {
		slog.Info("MCP server listening", "addr", mcpAddr)
		if err := sseSrv.Start(mcpAddr); err != nil && err != http.ErrServerClosed {
			slog.Error("MCP server error", "error", err)
		}
	}()

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "contrarian listening on %s\n", addr)
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
	sseSrv.Shutdown(shutdownCtx)
	return srv.Shutdown(shutdownCtx)
}

func printIngestionCount(client *http.Client, serverURL string) {
	resp, err := client.Get(serverURL + "/api/ingestions?limit=1000")
	if err != nil {
		return
	}
	defer resp.Body.Close()

	var body struct {
		Ingestions []api.IngestionInfo `json:"ingestions"`
	}
	if json.NewDecoder(resp.Body).Decode(&body) != nil {
		return
	}
	printStatus("Indexed reports", "%d", len(body.Ingestions))
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
		printError("contrarian is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop contrarian (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to contrarian (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
			printIngestionCount(client, serverURL)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Model", "%s", cfg.Gemini.Model)
	printStatus("Embed model", "%s", cfg.Gemini.EmbedModel)
	if cfg.News.APIKey == "" {
		printStatus("News", "no API key (news stage will report neutral sentiment)")
	} else {
		printStatus("News", "configured")
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
