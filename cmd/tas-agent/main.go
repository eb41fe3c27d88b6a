package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/tee-secret-agent/api"
	"github.com/ruteri/tee-secret-agent/cmd/flags"
	"github.com/ruteri/tee-secret-agent/common"
	"github.com/ruteri/tee-secret-agent/cryptoutils"
	"github.com/ruteri/tee-secret-agent/instanceutils/diskutil"
	"github.com/ruteri/tee-secret-agent/interfaces"
	"github.com/ruteri/tee-secret-agent/provisioner"
	"github.com/urfave/cli/v2"
)

var brokerFlags = []cli.Flag{
	flags.BrokerURIFlag,
	flags.BrokerAPIKeyFlag,
	flags.BrokerRootCertFlag,
	flags.BrokerTimeoutFlag,
}

var evidenceFlags = []cli.Flag{
	flags.ReportRootFlag,
	flags.PrivilegeLevelPathFlag,
}

var outputFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "output",
		Value: provisioner.OutputStdout,
		Usage: "where to deliver the secret: stdout, file or luks",
	},
	&cli.StringFlag{
		Name:  "output-file",
		Usage: "destination file for --output file",
	},
	&cli.StringFlag{
		Name:  "luks-device",
		Usage: "block device, or glob matching one, for --output luks",
	},
	&cli.StringFlag{
		Name:  "luks-mapper-name",
		Value: "tas_persistent",
		Usage: "device-mapper name for --output luks",
	},
	&cli.StringFlag{
		Name:  "luks-mount-point",
		Value: "/persistent",
		Usage: "mount point for --output luks",
	},
}

func main() {
	configPath, configErr := flags.LoadConfigFile()

	app := &cli.App{
		Name:           "tas-agent",
		Usage:          "Provision a secret from a trusted attestation service using TEE evidence",
		Version:        common.Version,
		DefaultCommand: "provision",
		Flags:          concat(flags.LogFlags, []cli.Flag{flags.LogServiceFlagFn("tas-agent")}),
		Before: func(cCtx *cli.Context) error {
			if configErr != nil {
				return fmt.Errorf("could not load %s: %w", configPath, configErr)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "provision",
				Usage:  "attest and retrieve the secret",
				Flags:  concat(brokerFlags, evidenceFlags, outputFlags, []cli.Flag{flags.KeyIDFlag, flags.KeyBitsFlag}),
				Action: runProvision,
			},
			{
				Name:  "evidence",
				Usage: "collect an attestation report for a nonce and print it",
				Flags: concat(evidenceFlags, []cli.Flag{
					&cli.StringFlag{
						Name:     "nonce",
						Required: true,
						Usage:    "64 byte nonce to bind into the report",
					},
					&cli.BoolFlag{
						Name:  "inspect",
						Usage: "decode TDX quote measurements",
					},
				}),
				Action: runEvidence,
			},
			{
				Name:   "version",
				Usage:  "query the broker version",
				Flags:  brokerFlags,
				Action: runVersion,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func concat(groups ...[]cli.Flag) []cli.Flag {
	var all []cli.Flag
	for _, g := range groups {
		all = append(all, g...)
	}
	return all
}

func signalContext(cCtx *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
}

// failed logs err with its kind and returns an exit code error.
func failed(logger *slog.Logger, msg string, err error) error {
	logger.Error(msg, "kind", interfaces.ErrorKind(err), "step", provisioner.FailedStep(err), "err", err)
	return cli.Exit("", 1)
}

func runProvision(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	ctx, cancel := signalContext(cCtx)
	defer cancel()

	brokerClient, err := flags.NewBrokerClient(cCtx)
	if err != nil {
		return failed(logger, "Invalid broker configuration", err)
	}

	p := &provisioner.Provisioner{
		Broker:    brokerClient,
		Collector: flags.NewCollector(cCtx, logger),
		KeyBits:   cCtx.Int(flags.KeyBitsFlag.Name),
		KeyID:     cCtx.String(flags.KeyIDFlag.Name),
		Log:       logger,
	}

	secret, err := p.Provision(ctx)
	if err != nil {
		return failed(logger, "Provisioning failed", err)
	}
	defer clear(secret)

	if err := deliver(ctx, cCtx, logger, secret); err != nil {
		return failed(logger, "Could not deliver secret", err)
	}
	return nil
}

func deliver(ctx context.Context, cCtx *cli.Context, logger *slog.Logger, secret []byte) error {
	switch output := cCtx.String("output"); output {
	case provisioner.OutputStdout:
		return provisioner.WriteSecret(cCtx.App.Writer, secret)

	case provisioner.OutputFile:
		path := cCtx.String("output-file")
		if err := provisioner.WriteSecretFile(path, secret); err != nil {
			return err
		}
		logger.Info("Secret written", "path", path)
		return nil

	case provisioner.OutputLUKS:
		devicePath, err := diskutil.DevicePathForGlob(cCtx.String("luks-device"))
		if err != nil {
			return fmt.Errorf("could not find luks device: %w", err)
		}
		diskConfig := diskutil.NewDiskConfig(devicePath, cCtx.String("luks-mount-point"), cCtx.String("luks-mapper-name"))

		label, isNew, err := diskutil.ProvisionOrMountDisk(ctx, diskConfig, secret)
		if err != nil {
			return err
		}
		logger.Info("Encrypted disk ready", "device", devicePath, "mount_point", diskConfig.MountPoint, "label", label.String(), "new", isNew)
		return nil

	default:
		return fmt.Errorf("%w: unknown output %q", interfaces.ErrInvalidParameter, output)
	}
}

func runEvidence(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	ctx, cancel := signalContext(cCtx)
	defer cancel()

	nonce := []byte(cCtx.String("nonce"))
	report, err := flags.NewCollector(cCtx, logger).Collect(ctx, nonce)
	if err != nil {
		return failed(logger, "Evidence collection failed", err)
	}

	out := api.EvidenceOutput{
		TeeType:     report.Kind.String(),
		TeeEvidence: report.Encoded(),
	}

	if cCtx.Bool("inspect") {
		if report.Kind != interfaces.TeeKindTDX {
			logger.Warn("Quote inspection is only available for TDX", "tee_type", report.Kind)
		} else {
			info, err := cryptoutils.InspectTDXQuote(report.Raw)
			if err != nil {
				return failed(logger, "Could not decode quote", err)
			}
			out.ReportData = hex.EncodeToString(info.ReportData)
			out.Measurements = info.Measurements
			if !info.ReportDataMatches(nonce) {
				logger.Warn("Quote report data does not match the nonce")
			}
		}
	}

	enc := json.NewEncoder(cCtx.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runVersion(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	ctx, cancel := signalContext(cCtx)
	defer cancel()

	brokerClient, err := flags.NewBrokerClient(cCtx)
	if err != nil {
		return failed(logger, "Invalid broker configuration", err)
	}

	version, err := brokerClient.Version(ctx)
	if err != nil {
		return failed(logger, "Could not query broker", err)
	}

	_, err = fmt.Fprintln(cCtx.App.Writer, version)
	return err
}
