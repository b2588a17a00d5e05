package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/yarkm13/fetchopusd/internal/config"
	"github.com/yarkm13/fetchopusd/internal/driver"
	"github.com/yarkm13/fetchopusd/internal/job"
	"github.com/yarkm13/fetchopusd/internal/scheduler"
)

var (
	cfgFile string
	v       = config.New()
	cfg     *config.Config

	rootCmd = &cobra.Command{
		Use:   "fetchopusd",
		Short: "Move files between local, FTP and SSH endpoints on a schedule",
		Long: `fetchopusd keeps a queue of transfer jobs in SQLite and executes them
one at a time, retrying failed jobs on later passes. Jobs move a file or a
directory tree between the local filesystem, FTP servers and SFTP servers.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default ./fetchopus.yaml)")
	flags.String("db", "", "SQLite database path")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	cobra.CheckErr(v.BindPFlag("database.path", flags.Lookup("db")))
	cobra.CheckErr(v.BindPFlag("log.level", flags.Lookup("log-level")))
}

func initConfig(*cobra.Command, []string) error {
	var err error
	if cfg, err = config.Load(v, cfgFile); err != nil {
		return err
	}
	return config.SetupLogging(cfg)
}

// app holds what every command needs: the store and the drivers.
type app struct {
	store   *job.GormStore
	drivers *driver.Registry
	svc     *scheduler.Service
	fs      afero.Fs
}

func openApp() (*app, error) {
	store, err := job.OpenSQLite(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	fs := afero.NewOsFs()
	drivers, err := driver.NewRegistry(fs, driver.Options{
		FTPTimeout: cfg.FTP.Timeout,
		SSHTimeout: cfg.SSH.Timeout,
		KnownHosts: cfg.SSH.KnownHosts,
	})
	if err != nil {
		_ = store.Close()
		return nil, errors.Wrap(err, "failed to set up drivers")
	}
	return &app{
		store:   store,
		drivers: drivers,
		svc:     scheduler.NewService(store, store, cfg.Scheduler.MaxAttempts, cfg.Scheduler.ErrorLogMaxLength),
		fs:      fs,
	}, nil
}

func (a *app) newScheduler() *scheduler.Scheduler {
	return scheduler.New(a.svc, a.drivers, a.fs, scheduler.Config{
		Interval:     cfg.Scheduler.Interval,
		InitialDelay: cfg.Scheduler.InitialDelay,
		TempDir:      cfg.Scheduler.TempDir,
	})
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Warnf("Failed to close database: %v", err)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
