package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"keyrelay/config"
	"keyrelay/handlers"
	"keyrelay/hub"
	"keyrelay/logging"
	"keyrelay/monitor"
)

func newServeCmd() *cobra.Command {
	var configName string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := config.New(configName)
			err := bindFlags(v, cmd.Flags(), map[string]string{
				"server.address":   "address",
				"server.staticDir": "static-dir",
			})
			if err != nil {
				return err
			}
			err = bindFlags(v, cmd.Root().PersistentFlags(), map[string]string{
				"log.level":  "log-level",
				"log.format": "log-format",
			})
			if err != nil {
				return err
			}

			bootstrap := logging.New(v.GetString("log.level"), v.GetString("log.format"))
			cfg, err := config.Load(bootstrap, v)
			if err != nil {
				return err
			}
			logger := logging.New(cfg.Log.Level, cfg.Log.Format)
			slog.SetDefault(logger)

			ctx, stop := signalContext()
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
	cmd.Flags().StringVar(&configName, "config", "keyrelay", "config file path, or a name looked up in the working directory")
	cmd.Flags().String("address", ":8000", "listen address")
	cmd.Flags().String("static-dir", "", "directory served at / (empty disables)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	h := hub.NewHub(logger)
	mon := monitor.New(h, monitor.Options{
		Interval:    cfg.Monitor.Interval,
		ReportEvery: cfg.Monitor.ReportEvery,
		StaleAfter:  cfg.Monitor.StaleAfter,
	}, logger)

	mux := http.NewServeMux()
	handlers.NewHandler(h, mon, cfg.Transport, logger).Register(mux)
	if cfg.Server.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.Server.StaticDir)))
		logger.Info("Serving static files", slog.String("dir", cfg.Server.StaticDir))
	}

	srv := &http.Server{Addr: cfg.Server.Address, Handler: mux}

	monCtx, cancelMon := context.WithCancel(ctx)
	defer cancelMon()
	go mon.Run(monCtx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Relay starting", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down relay")
	cancelMon()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
