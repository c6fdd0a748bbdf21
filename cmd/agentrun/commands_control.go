package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/agentrun/internal/controltls"
)

func buildControlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "control",
		Short: "Manage the local mTLS control endpoint used by remote supervisors",
	}
	cmd.AddCommand(buildControlInitCmd(), buildControlServeCmd())
	return cmd
}

func controlCertsDir(dir string) string {
	if dir != "" {
		return dir
	}
	return filepath.Join(defaultStateDir(), "certs")
}

func buildControlInitCmd() *cobra.Command {
	var certsDir string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate and persist a CA + server + client certificate chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := controlCertsDir(certsDir)
			if controltls.ExistsInDirectory(dir) {
				fmt.Fprintf(cmd.OutOrStdout(), "certificates already exist at %s\n", dir)
				return nil
			}
			chain, err := controltls.Generate()
			if err != nil {
				return err
			}
			if err := chain.SaveToDirectory(dir); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote CA + server + client certificates to %s\n", dir)
			return nil
		},
	}
	cmd.Flags().StringVar(&certsDir, "certs", "", "directory to write the certificate chain to (default ~/.agentrun/certs)")
	return cmd
}

func buildControlServeCmd() *cobra.Command {
	var certsDir string
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the mTLS-protected control endpoint (health check only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := controlCertsDir(certsDir)
			if !controltls.ExistsInDirectory(dir) {
				return fmt.Errorf("no certificates at %s; run `agentrun control init` first", dir)
			}
			tlsConfig, err := controltls.LoadServerConfig(dir)
			if err != nil {
				return err
			}

			mux := http.NewServeMux()
			mux.HandleFunc("/healthz", handleControlHealth)

			server := &http.Server{
				Addr:         addr,
				Handler:      mux,
				TLSConfig:    tlsConfig,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				ln, err := tls.Listen("tcp", addr, tlsConfig)
				if err != nil {
					errCh <- err
					return
				}
				errCh <- server.Serve(ln)
			}()

			fmt.Fprintf(cmd.OutOrStdout(), "control endpoint listening on %s (mTLS, client cert required)\n", addr)

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case err := <-errCh:
				if err != nil && err != http.ErrServerClosed {
					return err
				}
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&certsDir, "certs", "", "directory holding the certificate chain (default ~/.agentrun/certs)")
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8443", "listen address")
	return cmd
}

func handleControlHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}
