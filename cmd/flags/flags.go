package flags

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/ruteri/tee-secret-agent/api"
	"github.com/ruteri/tee-secret-agent/api/broker"
	"github.com/ruteri/tee-secret-agent/common"
	"github.com/ruteri/tee-secret-agent/cryptoutils"
	"github.com/ruteri/tee-secret-agent/evidence"
	"github.com/urfave/cli/v2"
)

// DefaultConfigFile is the agent's dotenv configuration file.
const DefaultConfigFile = "/etc/tas_agent/config"

// ConfigFileEnv overrides DefaultConfigFile.
const ConfigFileEnv = "TAS_AGENT_CONFIG"

// LoadConfigFile loads KEY=VALUE pairs from the agent config file into the
// environment so that flags bound to environment variables pick them up.
// Variables already set in the environment win. A missing file is not an error.
func LoadConfigFile() (string, error) {
	path := os.Getenv(ConfigFileEnv)
	if path == "" {
		path = DefaultConfigFile
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}

	if err := godotenv.Load(path); err != nil {
		return path, err
	}
	return path, nil
}

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
		Output:  cCtx.App.ErrWriter,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *api.HTTPServerConfig {
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &api.HTTPServerConfig{
		ListenAddr:               listenAddr,
		TLSCertFile:              cCtx.String(TLSCertFlag.Name),
		TLSKeyFile:               cCtx.String(TLSKeyFlag.Name),
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

// NewBrokerClient creates a broker client from the broker flags.
func NewBrokerClient(cCtx *cli.Context) (*broker.Client, error) {
	return broker.NewClient(broker.ClientConfig{
		URI:          cCtx.String(BrokerURIFlag.Name),
		APIKey:       cCtx.String(BrokerAPIKeyFlag.Name),
		RootCertPath: cCtx.String(BrokerRootCertFlag.Name),
		Timeout:      cCtx.Duration(BrokerTimeoutFlag.Name),
	})
}

// NewCollector creates an evidence collector from the evidence flags.
func NewCollector(cCtx *cli.Context, logger *slog.Logger) *evidence.Collector {
	reports := evidence.NewConfigFSReportInterface(cCtx.String(ReportRootFlag.Name))
	privilege := evidence.FilePrivilegeLevel{Path: cCtx.String(PrivilegeLevelPathFlag.Name)}
	return evidence.NewCollector(reports, privilege, logger)
}

var BrokerURIFlag = &cli.StringFlag{
	Name:     "server-uri",
	EnvVars:  []string{"TAS_SERVER_URI"},
	Required: true,
	Usage:    "attestation broker URI",
}

var BrokerAPIKeyFlag = &cli.StringFlag{
	Name:    "api-key",
	EnvVars: []string{"TAS_SERVER_API_KEY"},
	Usage:   "attestation broker API key",
}

var BrokerRootCertFlag = &cli.StringFlag{
	Name:    "root-cert",
	EnvVars: []string{"TAS_SERVER_ROOT_CERT"},
	Usage:   "PEM CA certificate trusted for the broker in addition to the system roots",
}

var BrokerTimeoutFlag = &cli.DurationFlag{
	Name:  "server-timeout",
	Value: broker.DefaultTimeout,
	Usage: "timeout of each broker request",
}

var KeyIDFlag = &cli.StringFlag{
	Name:     "key-id",
	EnvVars:  []string{"TAS_KEY_ID"},
	Required: true,
	Usage:    "identifier of the secret to provision",
}

var KeyBitsFlag = &cli.IntFlag{
	Name:    "key-bits",
	EnvVars: []string{"TAS_KEY_BITS"},
	Value:   cryptoutils.DefaultWrappingKeyBits,
	Usage:   "ephemeral wrapping key size: 2048, 3072 or 4096",
}

var ReportRootFlag = &cli.StringFlag{
	Name:    "report-root",
	EnvVars: []string{"TAS_REPORT_ROOT"},
	Value:   evidence.DefaultReportRoot,
	Usage:   "configfs-tsm report directory",
}

var PrivilegeLevelPathFlag = &cli.StringFlag{
	Name:  "privlevel-path",
	Value: evidence.DefaultPrivilegeLevelPath,
	Usage: "file holding the current SEV-SNP VMPL",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:    "log-debug",
	Aliases: []string{"d"},
	Value:   false,
	Usage:   "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var TLSCertFlag = &cli.StringFlag{
	Name:  "tls-cert",
	Usage: "PEM certificate to serve TLS with",
}
var TLSKeyFlag = &cli.StringFlag{
	Name:  "tls-key",
	Usage: "PEM private key to serve TLS with",
}

var LogFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
}

var ServerFlags = []cli.Flag{
	PprofFlag,
	DrainSecondsFlag,
	TLSCertFlag,
	TLSKeyFlag,
}
