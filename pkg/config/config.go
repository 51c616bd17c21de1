package config

import (
	"github.com/mpapenbr/sequential/pkg/telemetry/laps"
	"github.com/mpapenbr/sequential/pkg/telemetry/normalize"
	"github.com/mpapenbr/sequential/pkg/telemetry/selection"
)

// this holds the resolved configuration values from CLI
//
//nolint:lll // readablity
var (
	WaitForServices    string // duration to wait for other services to be ready
	LogLevel           string // sets the log level (zap log level values)
	SQLLogLevel        string // sets the log level for sql subsystem
	LogFormat          string // text vs json
	LogFilter          string // zapfilter rules, e.g. "debug:adapter.* info:*"
	EnableTelemetry    bool   // enable telemetry
	TelemetryEndpoint  string // endpoint for telemetry ("stdout" prints to console)
	ProfilingPort      int    // port for profiling
	DB                 string // connection string for the archive database (empty: no archive)
	MigrationSourceURL string // location of migration files
	NatsURL            string // URL of the NATS server (empty: no NATS)
	ServerAddr         string // listen addr for http server (insecure)
	TLSServerAddr      string // listen addr for http server (tls)
	TLSCertFile        string // path to TLS certificate
	TLSKeyFile         string // path to TLS key
	TLSCAFile          string // path to TLS CA
	TraefikCerts       string // path to traefik certs file
	TraefikCertDomain  string // the domain to lookup within the traefik certs
	SessionID          string // telemetry session to follow
	SourceURL          string // websocket url of the relay (dashboard input)
	Source             string // input of the dashboard: ws or nats
	ReconnectDelay     string // delay before the websocket source reconnects (0 disables)
	FlushThreshold     int    // number of frames buffered by the relay before archive flush
	ArchiveQueueSize   int    // max number of pending archive flushes
)

// Config holds the dashboard tunables
type Config struct {
	MinLapSamples  int  // laps need more samples than this to be listed as available
	LiveWindow     int  // number of most recent samples shown in the live view
	CompareDefault int  // number of laps auto-selected for comparison
	Retention      int  // max samples kept by the history store (0: unbounded)
	PrintMessage   bool // if true, the message payload will be print on debug level
}

func DefaultConfig() Config {
	return Config{
		MinLapSamples:  laps.DefaultMinSamples,
		LiveWindow:     normalize.DefaultLiveWindow,
		CompareDefault: selection.DefaultAutoSelect,
		Retention:      0,
	}
}
