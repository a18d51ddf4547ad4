package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-formio-validator/pkg/formsource"
	"github.com/goliatone/go-formio-validator/pkg/logging"
	"github.com/goliatone/go-formio-validator/pkg/server"
)

var serveFlags struct {
	listenAddress string
	formsDir      string
	dryRun        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the validation API over HTTP",
	Long: `Serve the validation API.

Routes:
  POST /api/v1/validate             form (inline or formUrl) plus data;
                                    formUrl must match forms.url_prefixes
  POST /api/v1/forms/:name/validate form read from the forms directory
  GET  /healthz
  GET  /metrics                     when metrics are enabled

Examples:
  formvalidate serve
  formvalidate serve --config /etc/formvalidate.yaml --listen 0.0.0.0:8080
  formvalidate serve --dry-run`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
	serveCmd.Flags().StringVar(&serveFlags.formsDir, "forms", "", "override forms directory")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate config without starting the server")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveFlags.listenAddress != "" {
		cfg.Server.ListenAddress = serveFlags.listenAddress
	}
	if serveFlags.formsDir != "" {
		cfg.Forms.Dir = serveFlags.formsDir
	}
	if serveFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
		return nil
	}

	rt, err := newRuntime(cfg, cfg.Forms.Watch)
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.logger.Module("serve")

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Forms.PurgeSchedule, rt.purgeForms); err != nil {
		return fmt.Errorf("schedule form cache purge %q: %w", cfg.Forms.PurgeSchedule, err)
	}
	scheduler.Start()
	defer func() {
		<-scheduler.Stop().Done()
	}()

	gin.SetMode(gin.ReleaseMode)
	options := []server.Option{
		server.WithLogger(rt.logger),
		server.WithResolver(func(name string) (formsource.Reference, bool) {
			return resolveForm(cfg.Forms.Dir, name)
		}),
		server.WithFormURLPrefixes(cfg.Forms.URLPrefixes...),
	}
	if rt.metrics != nil {
		options = append(options,
			server.WithMetricsPath(cfg.Metrics.Path),
			server.WithMetricsHandler(rt.metrics.Handler()),
		)
	}
	api := server.New(rt.service, options...)

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddress,
		Handler:      api.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Emit(logging.LevelInfo, "Listening", map[string]any{
			"address": cfg.Server.ListenAddress,
			"forms":   cfg.Forms.Dir,
			"backend": cfg.Resources.Backend,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx := contextOrBackground(cmd)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Emit(logging.LevelInfo, "Shutting down", map[string]any{
		"timeout": cfg.Server.ShutdownTimeout.String(),
	})
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// purgeForms drops every cached form definition.
func (rt *runtime) purgeForms() {
	purged := rt.cache.Purge()
	if rt.metrics != nil {
		rt.metrics.ObserveCachePurge(purged)
	}
	rt.logger.Module("serve").Emit(logging.LevelDebug, "Form cache purged", map[string]any{"entries": purged})
}
