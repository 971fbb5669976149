package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/guardial/account-recovery-backend/common"
	"github.com/guardial/account-recovery-backend/httpserver"
	"github.com/guardial/account-recovery-backend/interfaces"
	"github.com/guardial/account-recovery-backend/notevault"
	"github.com/guardial/account-recovery-backend/recovery"
	"github.com/guardial/account-recovery-backend/service"
	"github.com/guardial/account-recovery-backend/storage"
	"github.com/urfave/cli/v2"
)

var flags []cli.Flag = []cli.Flag{
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8080",
		Usage: "address to listen on for API",
	},
	&cli.StringFlag{
		Name:  "metrics-addr",
		Value: "127.0.0.1:8090",
		Usage: "address to listen on for Prometheus metrics",
	},
	&cli.StringFlag{
		Name:  "storage-uri",
		Value: "",
		Usage: "snapshot backend URI (file://, s3:// or vault://); empty disables persistence",
	},
	&cli.Int64Flag{
		Name:  "snapshot-interval",
		Value: 300,
		Usage: "seconds between periodic state snapshots (0 disables)",
	},
	&cli.BoolFlag{
		Name:  "log-json",
		Value: false,
		Usage: "log in JSON format",
	},
	&cli.BoolFlag{
		Name:  "log-debug",
		Value: false,
		Usage: "log debug messages",
	},
	&cli.BoolFlag{
		Name:  "log-uid",
		Value: false,
		Usage: "generate a uuid and add to all log messages",
	},
	&cli.StringFlag{
		Name:  "log-service",
		Value: common.PackageName,
		Usage: "add 'service' tag to logs",
	},
	&cli.BoolFlag{
		Name:  "pprof",
		Value: false,
		Usage: "enable pprof debug endpoint",
	},
	&cli.Int64Flag{
		Name:  "drain-seconds",
		Value: 45,
		Usage: "seconds to wait in drain HTTP request",
	},
}

func main() {
	app := &cli.App{
		Name:  "recovery-server",
		Usage: "Serve the guardian-based account recovery API",
		Flags: flags,
		Action: func(cCtx *cli.Context) error {
			listenAddr := cCtx.String("listen-addr")
			metricsAddr := cCtx.String("metrics-addr")
			storageURI := cCtx.String("storage-uri")
			snapshotInterval := time.Duration(cCtx.Int64("snapshot-interval")) * time.Second
			logJSON := cCtx.Bool("log-json")
			logDebug := cCtx.Bool("log-debug")
			logUID := cCtx.Bool("log-uid")
			logService := cCtx.String("log-service")
			enablePprof := cCtx.Bool("pprof")
			drainDuration := time.Duration(cCtx.Int64("drain-seconds")) * time.Second

			logger := common.SetupLogger(&common.LoggingOpts{
				Debug:   logDebug,
				JSON:    logJSON,
				Service: logService,
				Version: common.Version,
			})

			if logUID {
				id := uuid.Must(uuid.NewRandom())
				logger = logger.With("uid", id.String())
			}

			state := storage.NewState()
			svc := service.New(state, logger)

			// Persistence is optional; without a backend the service runs
			// purely in memory.
			var backend interfaces.SnapshotBackend
			if storageURI != "" {
				factory := storage.NewSnapshotBackendFactory(logger)
				var err error
				backend, err = factory.SnapshotBackendFor(storageURI)
				if err != nil {
					logger.Error("Failed to create snapshot backend", "err", err, "uri", storageURI)
					return err
				}
				logger.Info("Snapshot backend configured", "backend", backend.Name(), "uri", backend.LocationURI())

				data, err := backend.Load(context.Background())
				switch {
				case errors.Is(err, interfaces.ErrSnapshotNotFound):
					logger.Info("No existing snapshot, starting fresh")
				case err != nil:
					logger.Error("Failed to load snapshot", "err", err)
					return err
				default:
					if err := svc.Restore(context.Background(), data); err != nil {
						logger.Error("Failed to restore snapshot", "err", err)
						return err
					}
					logger.Info("State restored from snapshot", "bytes", len(data))
				}
			}

			notes := notevault.New(state, recovery.NewResolver(state), logger)
			handler := httpserver.NewHandler(svc, notes, logger)

			cfg := &httpserver.HTTPServerConfig{
				ListenAddr:               listenAddr,
				MetricsAddr:              metricsAddr,
				Log:                      logger,
				EnablePprof:              enablePprof,
				DrainDuration:            drainDuration,
				GracefulShutdownDuration: 30 * time.Second,
				ReadTimeout:              60 * time.Second,
				WriteTimeout:             30 * time.Second,
			}

			server, err := httpserver.New(cfg, handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}
			server.RunInBackground()

			saveSnapshot := func(ctx context.Context) {
				data, err := svc.Snapshot(ctx)
				if err != nil {
					logger.Error("Failed to capture snapshot", "err", err)
					return
				}
				if err := backend.Save(ctx, data); err != nil {
					logger.Error("Failed to persist snapshot", "err", err)
					return
				}
				logger.Debug("Snapshot persisted", "bytes", len(data))
			}

			snapshotDone := make(chan struct{})
			if backend != nil && snapshotInterval > 0 {
				ticker := time.NewTicker(snapshotInterval)
				go func() {
					defer ticker.Stop()
					for {
						select {
						case <-ticker.C:
							saveSnapshot(context.Background())
						case <-snapshotDone:
							return
						}
					}
				}()
			}

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
			<-exit

			logger.Info("Shutting down")
			close(snapshotDone)
			if backend != nil {
				saveSnapshot(context.Background())
			}
			server.Shutdown()
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
