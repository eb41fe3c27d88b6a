package main

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ruteri/tee-secret-agent/api/broker"
	"github.com/ruteri/tee-secret-agent/cmd/flags"
	"github.com/ruteri/tee-secret-agent/common"
	"github.com/ruteri/tee-secret-agent/cryptoutils"
	"github.com/ruteri/tee-secret-agent/httpserver"
	"github.com/ruteri/tee-secret-agent/interfaces"
	"github.com/ruteri/tee-secret-agent/storage"
	"github.com/urfave/cli/v2"
)

var serveFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:5001",
		Usage: "address to listen on for the broker API",
	},
	&cli.StringFlag{
		Name:     "api-key",
		EnvVars:  []string{"TAS_SERVER_API_KEY"},
		Required: true,
		Usage:    "API key clients must present",
	},
	&cli.StringSliceFlag{
		Name:     "storage",
		EnvVars:  []string{"DEVBROKER_STORAGE"},
		Required: true,
		Usage:    "secret storage URI (file://, s3://, vault://); repeat for fallback backends",
	},
	&cli.DurationFlag{
		Name:  "nonce-ttl",
		Value: broker.DefaultNonceTTL,
		Usage: "how long an issued nonce stays valid",
	},
	&cli.BoolFlag{
		Name:  "self-signed",
		Usage: "serve TLS with a generated self-signed certificate, written to --self-signed-ca",
	},
	&cli.StringFlag{
		Name:  "self-signed-ca",
		Value: "devbroker-root.pem",
		Usage: "where to write the generated certificate for clients to trust",
	},
}

var storeFlags = []cli.Flag{
	&cli.StringSliceFlag{
		Name:     "storage",
		EnvVars:  []string{"DEVBROKER_STORAGE"},
		Required: true,
		Usage:    "secret storage URI (file://, s3://, vault://)",
	},
	&cli.StringFlag{
		Name:     "key-id",
		Required: true,
		Usage:    "identifier to store the secret under",
	},
	&cli.StringFlag{
		Name:     "secret-file",
		Required: true,
		Usage:    "file holding the secret, - for stdin",
	},
}

func main() {
	app := &cli.App{
		Name:    "devbroker",
		Usage:   "Development key broker. Does NOT verify attestation evidence.",
		Version: common.Version,
		Flags:   append(append([]cli.Flag{}, flags.LogFlags...), flags.LogServiceFlagFn("devbroker")),
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "serve the broker API",
				Flags:  append(append([]cli.Flag{}, serveFlags...), flags.ServerFlags...),
				Action: runServe,
			},
			{
				Name:   "store",
				Usage:  "store a secret in the configured storage",
				Flags:  storeFlags,
				Action: runStore,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func secretStore(cCtx *cli.Context, factory *storage.StorageBackendFactory) (interfaces.SecretStore, error) {
	var locations []interfaces.StorageBackendLocation
	for _, uri := range cCtx.StringSlice("storage") {
		location, err := interfaces.NewStorageBackendLocation(uri)
		if err != nil {
			return nil, err
		}
		locations = append(locations, location)
	}
	return factory.CreateMultiBackend(locations)
}

func runServe(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	store, err := secretStore(cCtx, storage.NewStorageBackendFactory(logger))
	if err != nil {
		logger.Error("Failed to configure storage", "err", err)
		return err
	}
	logger.Info("Using secret storage", "location", store.LocationURI())

	cfg := flags.ConfigureServer(cCtx, logger, cCtx.String("listen-addr"))

	if cCtx.Bool("self-signed") {
		caPath := cCtx.String("self-signed-ca")
		cert, ca, err := cryptoutils.RandomCert([]string{"localhost", "127.0.0.1"})
		if err != nil {
			logger.Error("Failed to generate TLS certificate", "err", err)
			return err
		}
		if err := os.WriteFile(caPath, ca, 0644); err != nil {
			logger.Error("Failed to write CA certificate", "err", err)
			return err
		}
		cfg.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		logger.Info("Serving TLS with a self-signed certificate", "ca", caPath)
	}

	handler := broker.NewHandler(store, broker.NewNonceStore(cCtx.Duration("nonce-ttl")), cCtx.String("api-key"), common.Version, logger)

	server, err := httpserver.New(cfg, handler)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	logger.Warn("Evidence is NOT verified by this broker, do not use it for real secrets")
	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	server.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}

func runStore(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	var secret []byte
	var err error
	if path := cCtx.String("secret-file"); path == "-" {
		secret, err = io.ReadAll(os.Stdin)
	} else {
		secret, err = os.ReadFile(path)
	}
	if err != nil {
		return err
	}
	if len(secret) == 0 {
		return errors.New("secret is empty")
	}
	defer clear(secret)

	store, err := secretStore(cCtx, storage.NewStorageBackendFactory(logger))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cCtx.Context, time.Minute)
	defer cancel()

	keyID := cCtx.String("key-id")
	if err := store.Store(ctx, keyID, secret); err != nil {
		return err
	}
	logger.Info("Secret stored", "key_id", keyID, "location", store.LocationURI())
	return nil
}
