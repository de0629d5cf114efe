package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/kvgateway/common"
	"github.com/ruteri/kvgateway/httpserver"
	"github.com/ruteri/kvgateway/interfaces"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logFilter := cCtx.String(LogFilterFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Level:   logFilter,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) *httpserver.HTTPServerConfig {
	listenAddr := cCtx.String(ListenAddrFlag.Name)
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadHeaderTimeout:        60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

var StoreURLFlag = &cli.StringFlag{
	Name:    "url",
	Aliases: []string{"u"},
	Value:   interfaces.DefaultStoreLocation,
	EnvVars: []string{"KVGATEWAY_URL"},
	Usage:   "store connection string: a path, file://, s3://bucket/prefix or http(s):// of another gateway",
}

var ListenAddrFlag = &cli.StringFlag{
	Name:    "listen-addr",
	Aliases: []string{"n"},
	Value:   "0.0.0.0:7777",
	EnvVars: []string{"KVGATEWAY_LISTEN_ADDR"},
	Usage:   "address to listen on for API",
}

var GatewayAddrFlag = &cli.StringFlag{
	Name:    "addr",
	Aliases: []string{"a"},
	Value:   "http://127.0.0.1:7777",
	EnvVars: []string{"KVGATEWAY_ADDR"},
	Usage:   "gateway to send requests to",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:    "log-json",
	Value:   false,
	EnvVars: []string{"KVGATEWAY_LOG_JSON"},
	Usage:   "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:    "log-debug",
	Value:   false,
	EnvVars: []string{"KVGATEWAY_LOG_DEBUG"},
	Usage:   "log debug messages",
}
var LogFilterFlag = &cli.StringFlag{
	Name:    "log-filter",
	Aliases: []string{"l"},
	Value:   "",
	EnvVars: []string{"KVGATEWAY_LOG_FILTER"},
	Usage:   "minimum log level: debug, info, warn or error. Overrides --log-debug",
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
var MetricsAddrFlag = &cli.StringFlag{
	Name:    "metrics-addr",
	Value:   "127.0.0.1:8090",
	EnvVars: []string{"KVGATEWAY_METRICS_ADDR"},
	Usage:   "address to listen on for Prometheus metrics",
}

var LogFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogFilterFlag,
	LogUidFlag,
}

var ServerFlags = []cli.Flag{
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
