package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newtron-network/ifbridge/pkg/datastore"
	"github.com/newtron-network/ifbridge/pkg/kernel"
	"github.com/newtron-network/ifbridge/pkg/server"
	"github.com/newtron-network/ifbridge/pkg/util"
	"github.com/newtron-network/ifbridge/pkg/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve kernel link state for a schema module",
	Long: `Serve kernel link state for a schema module until SIGINT or SIGTERM.

The daemon subscribes to configuration changes of the module (applying
admin-status edits to kernel interfaces), answers operational pulls at the
module's top-level container and publishes a notification for every kernel
link event.

Examples:
  ifbridge serve
  ifbridge serve -m goldstone-mgmt-interfaces --redis 10.0.0.5:6379`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	module := cfg.GetModel()
	logger := util.WithModule(module)
	logger.WithFields(version.Fields()).Info("Starting ifbridge")

	reg, err := loadSchema(cfg)
	if err != nil {
		return err
	}

	k, err := kernel.NewNetlink(cfg.Netns)
	if err != nil {
		return err
	}
	defer k.Close()

	addr, closeTunnel, err := storeAddress(cfg)
	if err != nil {
		return err
	}
	defer closeTunnel()

	sess := datastore.NewSession(addr, cfg.GetRedisDB())
	if err := sess.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to data store %s: %w", addr, err)
	}
	defer sess.Close()

	metrics := server.NewMetrics()
	if cfg.MetricsAddr != "" {
		shutdown, err := serveMetrics(cfg.MetricsAddr, metrics)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	srv, err := server.New(module, reg, k, sess, metrics)
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("Shutting down")
	return nil
}

// serveMetrics exposes the engine metrics on addr. The returned function
// stops the listener.
func serveMetrics(addr string, metrics *server.Metrics) (func(), error) {
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		return nil, err
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	hs := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	logger := util.WithField("metrics_addr", addr)
	go func() {
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Metrics listener stopped: %v", err)
		}
	}()
	logger.Info("Serving /metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		hs.Shutdown(ctx)
	}, nil
}
