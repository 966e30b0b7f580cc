package cli

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/josephlewis42/magpie/internal/config"
	"github.com/josephlewis42/magpie/internal/core"
	"github.com/josephlewis42/magpie/internal/db"
	"github.com/josephlewis42/magpie/internal/mail"
	"github.com/josephlewis42/magpie/internal/submission"
	"github.com/josephlewis42/magpie/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web front-end and the mail poller",
	Long: `Start the upload form and results pages, and poll the configured mailbox
for emailed submissions.

The configuration file is watched: edits made by hand or through the web UI
take effect without a restart. The current configuration is saved again on
shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}
		if errs := config.Validate(cfg); len(errs) > 0 {
			for _, e := range errs {
				cmd.PrintErrf("  - %s\n", e)
			}
			return fmt.Errorf("config has %d validation error(s)", len(errs))
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		database, err := db.Open(cfg.Storage.Database)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer database.Close()
		if err := database.Migrate(); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		m, err := core.New(core.Options{
			Config:     cfg,
			ConfigPath: path,
			DB:         database,
			Logger:     logger,
			Checkers:   core.DefaultCheckers(logger),
		})
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			if err := m.SaveConfig(); err != nil {
				return err
			}
		}

		watcher, err := config.NewWatcher(path, logger, func(next *config.Config) {
			if err := m.SetConfig(next); err != nil {
				logger.Warn("ignoring configuration change", zap.Error(err))
			}
		})
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("config file will not be reloaded", zap.Error(err))
		}

		store := submission.NewStore(cfg.Storage.UploadDir)
		sched := core.NewScheduler(30*time.Second, logger)
		poller := mail.NewPoller(m, store, logger)
		sched.Every("mail", time.Duration(cfg.Mail.PollMinutes)*time.Minute, poller.Poll)

		addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			sched.Run(gctx)
			return nil
		})
		g.Go(func() error {
			return web.NewServer(m, store, database, logger).Start(gctx, addr)
		})
		runErr := g.Wait()

		watcher.Stop()
		if err := m.SaveConfig(); err != nil {
			logger.Error("saving configuration on shutdown", zap.Error(err))
		}
		logger.Info("magpie stopped")
		return runErr
	},
}

func init() {
	serveCmd.Flags().Int("port", 8080, "port to listen on (overrides server.port)")
}
