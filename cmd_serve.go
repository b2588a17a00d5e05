package main

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yarkm13/fetchopusd/internal/browse"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the transfer scheduler until interrupted",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sched := a.newScheduler()
	cache := browse.NewCache(a.drivers, cfg.Browse.MaxIdle)

	egrp, ctx := errgroup.WithContext(cmd.Context())
	egrp.Go(func() error { return sched.Run(ctx) })
	egrp.Go(func() error { return cache.Run(ctx, cfg.Browse.EvictInterval) })

	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		egrp.Go(func() error {
			log.Infof("Serving metrics on %s/metrics", cfg.Metrics.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "metrics listener failed")
			}
			return nil
		})
		egrp.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = egrp.Wait()
	log.Info("fetchopusd stopped")
	return err
}
