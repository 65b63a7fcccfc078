package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/jobchange-cli/internal/checkpoint"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve checkpoint progress over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(cfg.Checkpoint.Dir),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Error("server shutdown failed", zap.Error(err))
			}
		}()

		zap.L().Info("status server listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "serve: listen")
		}
		return nil
	},
}

// buildRouter assembles the status API.
func buildRouter(checkpointDir string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/status", handleStatus(checkpointDir))

	return r
}

// handleStatus reports both scan directions' checkpoints as JSON. A direction
// that has never run is null.
func handleStatus(dir string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		type statusResponse struct {
			Forward *checkpoint.Checkpoint `json:"forward"`
			Reverse *checkpoint.Checkpoint `json:"reverse"`
		}

		var resp statusResponse
		var err error
		if resp.Forward, err = checkpoint.NewManager(dir, false).Load(); err != nil {
			zap.L().Error("loading forward checkpoint failed", zap.Error(err))
			http.Error(w, "checkpoint unavailable", http.StatusInternalServerError)
			return
		}
		if resp.Reverse, err = checkpoint.NewManager(dir, true).Load(); err != nil {
			zap.L().Error("loading reverse checkpoint failed", zap.Error(err))
			http.Error(w, "checkpoint unavailable", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			zap.L().Error("encoding status failed", zap.Error(err))
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
