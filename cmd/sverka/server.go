package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/sverka/internal/api"
	"github.com/kalambet/sverka/internal/config"
	"github.com/kalambet/sverka/internal/engine"
	"github.com/kalambet/sverka/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (and optionally the MCP stdio server) in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running sverka server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server, backend, model and index status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdin/stdout")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "sverka.pid")
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

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "sverka version %s\n", version)

	ctx, stop := signalContext()
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := fmt.Sprintf("127.0.0.1:%d", a.cfg.Server.Port)
	if healthy(addr) {
		return fmt.Errorf("server already running on %s", addr)
	}
	pidPath := pidFilePath(a.cfg.Storage.DataDir)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer os.Remove(pidPath)

	if a.cfg.Server.APIToken == "" {
		slog.Warn("SVERKA_API_TOKEN not set, work routes are unauthenticated")
	}

	deps := a.apiDeps()
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewRouter(deps),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	if withMCP {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(deps, version))
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "sverka listening on %s\n", addr)
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

func healthy(addr string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + addr + "/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
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
		printError("sverka is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop sverka (PID %d): %v", pid, err)
		os.Remove(pidPath)
		return err
	}

	printSuccess("Sent stop signal to sverka (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	if healthy(addr) {
		printStatus("Server", "running on %s", addr)
	} else {
		printStatus("Server", "stopped")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}
	reportBackend(ctx, eng, cfg)

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Taxonomy", "%s", cfg.Classification.TaxonomyPath)
	return withStore(func(ctx context.Context, s *storage.Store) error {
		infos, err := s.ListIndexes(ctx)
		if err != nil {
			return err
		}
		printStatus("Indexes", "%d stored", len(infos))
		return nil
	})
}

func reportBackend(ctx context.Context, eng engine.Engine, cfg config.Config) {
	if !eng.IsRunning(ctx) {
		printStatus("Ollama", "not reachable at %s", cfg.Ollama.BaseURL)
		return
	}
	printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
	for _, m := range []struct{ label, name string }{
		{"Chat model", cfg.Ollama.ChatModel},
		{"Embed model", cfg.Ollama.EmbedModel},
	} {
		state := colorize(colorGreen, "available")
		if !eng.HasModel(ctx, m.name) {
			state = colorize(colorYellow, "missing, pulled on first use")
		}
		printStatus(m.label, "%s (%s)", m.name, state)
	}
}
