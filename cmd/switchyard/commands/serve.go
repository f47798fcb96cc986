package commands

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/switchyard/switchyard/cmd/switchyard/internal/format"
	"github.com/switchyard/switchyard/pkg/cleanup"
	"github.com/switchyard/switchyard/pkg/config"
	"github.com/switchyard/switchyard/pkg/logging"
	"github.com/switchyard/switchyard/pkg/server"
	"github.com/switchyard/switchyard/pkg/userdb"
)

// newServeCommand creates the 'switchyard serve' command.
//
// This command initializes the full server runtime, which includes:
//   - a nonblocking IPv4 listening socket driven by a poll(2) event loop
//   - a fixed pool of workers consuming a bounded job queue
//   - a file-backed user database answering AUTH
//   - a cleanup registry executed once at shutdown
//
// The server runs until interrupted (SIGINT/SIGTERM) or context
// cancellation, then tears down in priority order (event loop → worker
// pool → listener → connections → user store → log sink). SIGHUP reloads
// the user database in place.
//
// Configuration is layered from built-in defaults, the optional config
// file (--config), SWITCHYARD_* environment variables and flags. While
// the server runs the config file is watched, so a log-level edit
// applies without a restart.
//
// Example usage:
//
//	switchyard serve
//	switchyard serve --server.addr 0.0.0.0 --server.port 4242
//	switchyard serve --config switchyard.yaml --server.workers 8
func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Switchyard server",
		Long: `Start the Switchyard server process.

The server accepts line-oriented AUTH, PING and QUIT commands over TCP.
A poll loop hands ready connections to a fixed pool of workers through a
bounded job queue, so a slow client never stalls the rest.

The process runs until interrupted (Ctrl+C) or killed, draining queued
jobs and tearing subsystems down in priority order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := format.FromCommand(cmd)

			fail := func(err error) error {
				_ = formatter.PrintTotalFailureSummary("start server", err, server.Suggestions(err))
				return err
			}

			configFile, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}

			manager := config.NewManager()
			if err := manager.Load(cmd.Flags(), configFile); err != nil {
				return fail(server.WrapInvalidConfig(err))
			}
			cfg := manager.Get()

			logCloser, err := logging.Configure(cfg.Log.Level, cfg.Log.Format, cfg.Log.File)
			if err != nil {
				return fail(server.WrapInvalidConfig(err))
			}

			// Component loggers stay at trace; the global level is the
			// only gate, so a config reload can adjust verbosity live.
			registry := cleanup.NewRegistry(cleanup.DefaultCapacity,
				logging.NewLogger("cleanup", zerolog.TraceLevel))
			if err := registry.Register("log sink", server.PriorityLogSink, cleanup.Op(logCloser.Close)); err != nil {
				return fail(server.WrapInit(err))
			}

			store, err := userdb.Open(cfg.Server.UsersFile, userdb.Options{
				Logger: logging.NewLogger("userdb", zerolog.TraceLevel),
			})
			if err != nil {
				wrapped := server.WrapUserDB(err)
				_ = registry.Execute()
				return fail(wrapped)
			}

			srv, err := server.New(cfg.Server, server.Deps{
				Store:    store,
				Registry: registry,
				Logger:   logging.NewLogger("server", zerolog.TraceLevel),
			})
			if err != nil {
				_ = store.Close()
				_ = registry.Execute()
				return fail(err)
			}

			if configFile != "" {
				watcher, werr := config.NewWatcher(manager, configFile, func(next config.Config) {
					logging.SetLevel(next.Log.Level)
				}, logging.NewLogger("config", zerolog.TraceLevel))
				if werr != nil {
					log.Warn().Err(werr).Msg("Config watcher unavailable, hot reload disabled")
				} else {
					go func() {
						if err := watcher.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
							log.Warn().Err(err).Msg("Config watcher stopped")
						}
					}()
					defer func() { _ = watcher.Close() }()
				}
			}

			if runErr := srv.Run(cmd.Context()); runErr != nil {
				return fail(runErr)
			}
			return nil
		},
	}

	cmd.SilenceErrors = true

	config.BindServerFlags(cmd.Flags())
	cmd.Flags().String("output", "table", "Failure output format: table or json")
	cmd.Flags().Bool("no-color", false, "Disable colored output")

	return cmd
}
