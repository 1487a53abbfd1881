package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dibuix-tech/dibuix/internal/server"
	"github.com/dibuix-tech/dibuix/internal/store"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and web API",
	Long: `Start an HTTP server exposing the document processing API used
by the web front end.

Endpoints:
  POST   /documents                             - upload a drawing
  GET    /documents                             - list documents
  GET    /documents/{id}                        - document metadata and result
  POST   /documents/{id}/process                - start asynchronous processing
  GET    /documents/{id}/export?format=...      - download the result
  GET    /documents/{id}/pages/{page}/overlay   - overlay PNG for a page
  PUT    /documents/{id}/blocks/{blockID}       - correct a block's text
  GET    /documents/{id}/corrections            - list corrections
  GET    /ws?document={id}                      - processing progress events
  GET    /health                                - health check
  GET    /metrics                               - prometheus metrics

Examples:
  dibuix serve
  dibuix serve --port 3000 --host 0.0.0.0
  dibuix serve --store ./dibuix.db --requests-per-minute 60`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int64("max-upload-size", 50, "maximum upload size in MB")
	serveCmd.Flags().Int("timeout", 300, "per-document processing timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	serveCmd.Flags().String("store", "", "path to the document store database")
	serveCmd.Flags().Bool("detector", false, "enable the technical element detector")
	serveCmd.Flags().String("detector-model", "", "override detector ONNX model path")
	serveCmd.Flags().String("onnx-lib", "", "override onnxruntime shared library path")
	serveCmd.Flags().Float64("conf-threshold", 0, "detector confidence threshold (0..1)")
	serveCmd.Flags().Float64("iou-threshold", 0, "detector IoU threshold for NMS (0..1)")
	serveCmd.Flags().Int("max-side", 0, "cap on the longest rendered page side in pixels")
	serveCmd.Flags().Int("workers", 0, "max worker goroutines for page processing (0=NumCPU)")
	serveCmd.Flags().Int("requests-per-minute", 0, "max requests per minute per client (0=unlimited)")
	serveCmd.Flags().Int("requests-per-hour", 0, "max requests per hour per client (0=unlimited)")
	serveCmd.Flags().Int("max-requests-per-day", 0, "max requests per day per client (0=unlimited)")
	serveCmd.Flags().Int64("max-data-per-day", 0, "max uploaded MB per day per client (0=unlimited)")
}

// runServe builds the pipeline and store, then serves until a shutdown
// signal arrives.
func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	host := cfg.Server.Host
	if cmd.Flags().Changed("host") {
		host, _ = cmd.Flags().GetString("host")
	}
	port := cfg.Server.Port
	if cmd.Flags().Changed("port") {
		port, _ = cmd.Flags().GetInt("port")
	}
	corsOrigin := cfg.Server.CORSOrigin
	if cmd.Flags().Changed("cors-origin") {
		corsOrigin, _ = cmd.Flags().GetString("cors-origin")
	}
	maxUploadMB := cfg.Server.MaxUploadMB
	if cmd.Flags().Changed("max-upload-size") {
		maxUploadMB, _ = cmd.Flags().GetInt64("max-upload-size")
	}
	timeoutSec := cfg.Server.TimeoutSec
	if cmd.Flags().Changed("timeout") {
		timeoutSec, _ = cmd.Flags().GetInt("timeout")
	}
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if cmd.Flags().Changed("shutdown-timeout") {
		shutdownTimeout, _ = cmd.Flags().GetInt("shutdown-timeout")
	}
	storePath := cfg.Store.Path
	if cmd.Flags().Changed("store") {
		storePath, _ = cmd.Flags().GetString("store")
	}
	requestsPerMinute := cfg.Server.RequestsPerMinute
	if cmd.Flags().Changed("requests-per-minute") {
		requestsPerMinute, _ = cmd.Flags().GetInt("requests-per-minute")
	}
	requestsPerHour := cfg.Server.RequestsPerHour
	if cmd.Flags().Changed("requests-per-hour") {
		requestsPerHour, _ = cmd.Flags().GetInt("requests-per-hour")
	}
	maxRequestsPerDay := cfg.Server.MaxRequestsPerDay
	if cmd.Flags().Changed("max-requests-per-day") {
		maxRequestsPerDay, _ = cmd.Flags().GetInt("max-requests-per-day")
	}
	maxDataPerDayMB := cfg.Server.MaxDataPerDayMB
	if cmd.Flags().Changed("max-data-per-day") {
		maxDataPerDayMB, _ = cmd.Flags().GetInt64("max-data-per-day")
	}

	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", port)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	p, err := buildPipelineFromConfig(ctx, cfg, cmd, nil)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	st, err := store.Open(storePath)
	if err != nil {
		_ = p.Close()
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	serverConfig := server.Config{
		Host:              host,
		Port:              port,
		CORSOrigin:        corsOrigin,
		MaxUploadMB:       maxUploadMB,
		ProcessTimeout:    time.Duration(timeoutSec) * time.Second,
		RequestsPerMinute: requestsPerMinute,
		RequestsPerHour:   requestsPerHour,
		MaxRequestsPerDay: maxRequestsPerDay,
		MaxDataPerDayMB:   maxDataPerDayMB,
	}

	apiServer := server.NewServer(serverConfig, p, st, slog.Default())
	defer func() { _ = apiServer.Close() }()

	mux := http.NewServeMux()
	apiServer.SetupRoutes(mux)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("starting server", "host", host, "port", port, "store", storePath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("context cancelled, initiating shutdown")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(shutdownTimeout)*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}
	if err := apiServer.Close(); err != nil {
		slog.Error("server cleanup error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
