package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/kvgateway/cmd/flags"
	"github.com/ruteri/kvgateway/common"
	"github.com/ruteri/kvgateway/httpserver"
	"github.com/ruteri/kvgateway/storage"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:    "kvgateway",
		Usage:   "Serve a key-value store over HTTP",
		Version: common.Version,
		Flags: append(append([]cli.Flag{
			flags.StoreURLFlag,
			flags.ListenAddrFlag,
			flags.LogServiceFlagFn("kvgateway"),
		}, flags.LogFlags...), flags.ServerFlags...),
		Action: func(cCtx *cli.Context) error {
			if _, err := common.ParseLogLevel(cCtx.String(flags.LogFilterFlag.Name)); err != nil {
				return err
			}
			logger := flags.SetupLogger(cCtx)

			runtimeOpts, err := common.RuntimeOptsFromEnv(os.Getenv)
			if err != nil {
				logger.Error("Invalid runtime configuration", "err", err)
				return err
			}
			common.TuneRuntime(runtimeOpts, logger)

			storeURL := cCtx.String(flags.StoreURLFlag.Name)
			store, err := storage.NewKVStoreFactory(logger).KVStoreFromString(cCtx.Context, storeURL)
			if err != nil {
				logger.Error("Failed to open store", "url", storeURL, "err", err)
				return err
			}
			logger.Info("Store opened", "store", store.Name(), "location", store.LocationURI())

			server, err := httpserver.New(flags.ConfigureServer(cCtx, logger), httpserver.NewHandler(store, logger))
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				store.Close()
				return err
			}

			exit := make(chan os.Signal, 2)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			if err := server.RunInBackground(); err != nil {
				logger.Error("Failed to start server", "err", err)
				store.Close()
				return err
			}
			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			go func() {
				<-exit
				logger.Warn("Second signal received, exiting immediately")
				os.Exit(1)
			}()

			server.Shutdown()

			if err := store.Close(); err != nil {
				logger.Error("Failed to close store", "err", err)
				return err
			}
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
