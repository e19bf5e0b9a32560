// Package main is the circle-realtime command: the realtime server plus
// one-shot digest and presence maintenance commands.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jgirmay/circle_realtime/pkg/models"
	"github.com/jgirmay/circle_realtime/pkg/services/notifications"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := buildRootCmd().Execute(); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "circle-realtime",
		Short:        "Realtime presence and notification delivery",
		Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CIRCLE_CONFIG"),
		"Path to YAML configuration file (env overrides still apply)")

	rootCmd.AddCommand(
		buildServeCmd(&configPath),
		buildDigestCmd(&configPath),
		buildPresenceCmd(&configPath),
	)
	return rootCmd
}

func buildServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the WebSocket gateway, HTTP API and background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, *configPath)
		},
	}
}

func buildDigestCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:       "digest [daily|weekly]",
		Short:     "Send due digest emails once and exit",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(models.FrequencyDaily), string(models.FrequencyWeekly)},
		RunE: func(cmd *cobra.Command, args []string) error {
			frequency, err := notifications.ParseFrequency(args[0])
			if err != nil {
				return err
			}
			components, err := InitializeRealtime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer components.Close()

			report, err := components.Digests.Trigger(cmd.Context(), frequency)
			if err != nil {
				return fmt.Errorf("digest run failed: %w", err)
			}
			return printJSON(cmd, report)
		},
	}
}

func buildPresenceCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presence",
		Short: "Presence maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Close presence records left open by dead connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := InitializeRealtime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer components.Close()

			closed, err := components.Reconciler.RunOnce(cmd.Context())
			if err != nil {
				return fmt.Errorf("presence cleanup failed: %w", err)
			}
			return printJSON(cmd, map[string]interface{}{
				"cleaned_up": closed,
				"message":    fmt.Sprintf("Cleaned up %d stale presence records", closed),
			})
		},
	})
	return cmd
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// runServe blocks until ctx is cancelled, then shuts down gracefully
func runServe(ctx context.Context, configPath string) error {
	components, err := InitializeRealtime(ctx, configPath)
	if err != nil {
		return err
	}

	server := NewHTTPServer(components)
	components.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[INFO] Starting HTTP server on %s", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		components.Shutdown(context.Background(), nil)
		return fmt.Errorf("server startup error: %w", err)
	case <-ctx.Done():
		log.Println("[SHUTDOWN] Received signal, initiating graceful shutdown...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), components.Config.Server.ShutdownTimeout)
	defer cancel()
	components.Shutdown(shutdownCtx, server)
	return nil
}
