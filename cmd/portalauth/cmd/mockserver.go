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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/jmcleod/portalauth/mockbackend"
)

var (
	mockPort     int
	mockSecret   string
	mockTokenTTL time.Duration
)

var mockServerCmd = &cobra.Command{
	Use:   "mock-server",
	Short: "Run a development backend serving the login and profile endpoints",
	Long: `Run a development backend serving the login and profile endpoints with a
fixed set of demo accounts:

  admin/admin123    admin realm
  acme/acme123      organization realm
  alice/pw          employee realm
  mallory/pw        employee realm, suspended`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := []mockbackend.Option{
			mockbackend.WithTokenTTL(mockTokenTTL),
			mockbackend.WithLogger(slog.Default()),
		}
		if mockSecret != "" {
			opts = append(opts, mockbackend.WithSecret([]byte(mockSecret)))
		}
		backend, err := mockbackend.New(opts...)
		if err != nil {
			return err
		}
		for _, u := range mockbackend.DefaultUsers() {
			if err := backend.AddUser(u); err != nil {
				return err
			}
		}

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})
		r.Mount("/", backend.Router())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", mockPort),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner(cmd.OutOrStdout(), "Development backend")
		fmt.Fprintf(cmd.OutOrStdout(), "Listening on port %d (docs at /docs)...\n", mockPort)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(mockServerCmd)
	mockServerCmd.Flags().IntVarP(&mockPort, "port", "p", 8080, "Port to listen on")
	mockServerCmd.Flags().StringVar(&mockSecret, "secret", "", "Token signing secret (random when empty)")
	mockServerCmd.Flags().DurationVar(&mockTokenTTL, "token-ttl", time.Hour, "Lifetime of issued tokens")
}
