package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vision-ocr/vppe/internal/config"
	"github.com/vision-ocr/vppe/internal/home"
	"github.com/vision-ocr/vppe/internal/server"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the vppe server",
	Long: `Start the vppe HTTP server.

The server accepts PDF uploads, drives the OCR pipeline against the
configured Ollama instance, and streams progress over SSE. Job state
survives restarts; interrupted jobs come back as failed and can be
retried.

Ollama must be reachable at the configured base URL. Use 'vppe ollama
start' to run it locally in Docker.

Examples:
  vppe serve                    # Start on default port 8080
  vppe serve --port 3000        # Start on custom port
  vppe serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Set up logger
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		// Get home directory
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cm.WatchConfig()

		srv, err := server.New(server.Config{
			Host:          serveHost,
			Port:          servePort,
			Home:          h,
			ConfigManager: cm,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "Port to listen on")

	rootCmd.AddCommand(serveCmd)
}
