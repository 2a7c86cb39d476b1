package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/prasenjit/go-oasmock/internal/app"
	"github.com/prasenjit/go-oasmock/internal/config"
	"github.com/prasenjit/go-oasmock/internal/tlsutil"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the oasmock server",
	Long: `Starts the oasmock server.

The server will:
  - Load the OpenAPI document named by spec.source
  - Mock declared operations according to the mock settings
  - Forward everything else to upstream.url, recording it when capture is on
  - Expose the Admin API under server.adminPrefix (default /_api)
  - With --tls, answer HTTP and HTTPS on the same port

Configuration is loaded from config.yaml in the current directory,
or specify a custom config file with the --config flag. Every key can be
overridden with an OASMOCK_ environment variable, e.g. OASMOCK_SERVER_PORT.`,
	RunE: runServe,
}

const shutdownTimeout = 5 * time.Second

func init() {
	flags := serveCmd.Flags()
	flags.IntP("port", "p", 0, "Override server port")
	flags.String("host", "", "Override listen host")
	flags.StringP("spec", "s", "", "OpenAPI document (file path or http(s) URL)")
	flags.StringP("upstream", "u", "", "Upstream URL for requests that are not mocked")
	flags.Bool("mock-by-default", false, "Mock every declared operation")
	flags.Bool("capture", false, "Record upstream responses")
	flags.Bool("tls", false, "Serve HTTPS alongside HTTP on the same port")
	flags.Bool("validate-requests", false, "Reject requests that do not match the OpenAPI document")

	// Bind flags to viper
	v.BindPFlag("server.port", flags.Lookup("port"))
	v.BindPFlag("server.host", flags.Lookup("host"))
	v.BindPFlag("spec.source", flags.Lookup("spec"))
	v.BindPFlag("upstream.url", flags.Lookup("upstream"))
	v.BindPFlag("mock.mockByDefault", flags.Lookup("mock-by-default"))
	v.BindPFlag("recording.capture", flags.Lookup("capture"))
	v.BindPFlag("server.tls.enabled", flags.Lookup("tls"))
	v.BindPFlag("mock.validateRequests", flags.Lookup("validate-requests"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	server := &http.Server{
		Handler:     a.Handler(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	var cleanup func(context.Context) error
	if cfg.Server.TLS.Enabled {
		cleanup, err = startTLSServer(server, ln, cfg, logger, errCh)
		if err != nil {
			ln.Close()
			return err
		}
	} else {
		startHTTPServer(server, ln, cfg, logger, errCh)
	}

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// closing the mux unblocks Accept on the split listeners
	if cleanup != nil {
		if err := cleanup(shutdownCtx); err != nil {
			logger.Warn("tls listener shutdown error", "error", err)
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
	return nil
}

func serveOn(server *http.Server, ln net.Listener, errCh chan<- error) {
	err := server.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
		errCh <- err
	}
}

func startHTTPServer(server *http.Server, ln net.Listener, cfg *config.Config, logger *slog.Logger, errCh chan<- error) {
	logger.Info("starting oasmock server",
		"addr", ln.Addr().String(),
		"admin", cfg.Server.AdminPrefix,
		"upstream", cfg.Upstream.URL,
		"recording", cfg.Recording.Type,
	)
	go serveOn(server, ln, errCh)
}

// startTLSServer serves HTTPS with server and plain HTTP with a twin server
// on the same listener. The returned cleanup closes the listener and the twin.
func startTLSServer(server *http.Server, ln net.Listener, cfg *config.Config, logger *slog.Logger, errCh chan<- error) (func(context.Context) error, error) {
	tlsCfg := cfg.Server.TLS
	certs := tlsutil.NewCertSource(tlsCfg.CertFile, tlsCfg.KeyFile, tlsCfg.StoreDir)
	cert, err := certs.Certificate(tlsCfg.AutoGenerate)
	if err != nil {
		return nil, fmt.Errorf("tls certificate: %w", err)
	}
	certPath, keyPath := certs.Paths()
	logger.Info("using TLS certificate", "cert", certPath, "key", keyPath)

	mux := tlsutil.NewMux(ln, tlsutil.ServerConfig(cert))
	plain := &http.Server{
		Handler:     server.Handler,
		ReadTimeout: server.ReadTimeout,
		IdleTimeout: server.IdleTimeout,
	}

	logger.Info("starting oasmock server (HTTP and HTTPS)",
		"addr", ln.Addr().String(),
		"admin", cfg.Server.AdminPrefix,
		"upstream", cfg.Upstream.URL,
		"recording", cfg.Recording.Type,
	)
	go serveOn(server, mux.Secure(), errCh)
	go serveOn(plain, mux.Plain(), errCh)

	return func(ctx context.Context) error {
		mux.Close()
		return plain.Shutdown(ctx)
	}, nil
}
