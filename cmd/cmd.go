package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/webitel/im-presence-service/config"
	"github.com/webitel/im-presence-service/infra/logging"
	"github.com/webitel/im-presence-service/internal/adapter/storage"
	"github.com/webitel/im-presence-service/internal/domain/model"
)

const (
	ServiceName      = "im-presence-service"
	ServiceNamespace = "webitel"
)

var (
	version        = "0.0.0"
	commit         = "hash"
	commitDate     = time.Now().String()
	branch         = "branch"
	buildTimestamp = ""
)

func Run() error {
	model.ServerVersion = version

	app := &cli.App{
		Name:    ServiceName,
		Usage:   "Realtime presence and direct message routing",
		Version: fmt.Sprintf("%s (%s@%s, %s)", version, branch, commit, commitDate),
		Commands: []*cli.Command{
			serverCmd(),
			migrateCmd(),
		},
	}

	return app.Run(os.Args)
}

// Both commands hand their raw arguments to the config loader, which owns
// the flag set, so flags and env vars resolve the same way everywhere.

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:            "server",
		Aliases:         []string{"s"},
		Usage:           "Run the HTTP/WebSocket server",
		SkipFlagParsing: true,
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.Args().Slice())
			if err != nil {
				return err
			}
			app := NewApp(cfg)

			startCtx, cancel := context.WithTimeout(c.Context, app.StartTimeout())
			defer cancel()
			if err := app.Start(startCtx); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			select {
			case <-stop:
			case sig := <-app.Done():
				slog.Info("fx signal received", "signal", sig.String())
			}

			slog.Info("Shutting down...")
			stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
			defer cancelStop()
			return app.Stop(stopCtx)
		},
	}
}

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:            "migrate",
		Usage:           "Apply the store schema and exit",
		SkipFlagParsing: true,
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.Args().Slice())
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Close()

			db, err := storage.Open(cfg.Database, logger.Logger)
			if err != nil {
				return err
			}
			defer storage.Close(db)

			if err := storage.Migrate(db); err != nil {
				return err
			}
			logger.Info("[MIGRATE] schema is up to date", "driver", cfg.Database.Driver)
			return nil
		},
	}
}
