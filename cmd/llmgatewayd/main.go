// llmgatewayd is a configurable HTTP reverse proxy translating between the
// OpenAI, Anthropic, and Ollama chat-completion wire dialects.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/llmgatewayd/llmgatewayd/internal/config"
	"github.com/llmgatewayd/llmgatewayd/internal/ingress"
	"github.com/llmgatewayd/llmgatewayd/internal/logging"
	"github.com/llmgatewayd/llmgatewayd/internal/pipeline"
	"github.com/llmgatewayd/llmgatewayd/internal/upstream"
)

var version = "v0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "llmgatewayd",
		Short:   "Reverse proxy translating between LLM provider wire dialects",
		Version: version,
	}
	root.AddCommand(newServeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load a routing config and start the proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to the routing config YAML file")
	cmd.MarkFlagRequired("config")
	return cmd
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(logging.ParseLevel(string(cfg.Logging.Level)))
	defer log.Sync()

	pool := upstream.NewPool()
	client := upstream.NewClient(pool)
	pl := pipeline.New(client, log)
	srv := ingress.New(cfg.Routes, pl, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("listening", "addr", addr, "routes", len(cfg.Routes))
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("listener failed: %w", err)
		}
		return nil
	case <-sigCh:
		log.Infow("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(ctx)
	}
}
