package server

import (
	"github.com/spf13/pflag"

	"github.com/mpapenbr/sequential/pkg/config"
)

// AddLogFlags registers the logging and observability flags shared by the commands
func AddLogFlags(fs *pflag.FlagSet) {
	fs.StringVar(&config.LogLevel,
		"log-level",
		"info",
		"controls the log level (debug, info, warn, error, fatal)")
	fs.StringVar(&config.SQLLogLevel,
		"sql-log-level",
		"debug",
		"controls the log level for sql methods")
	fs.StringVar(&config.LogFormat,
		"log-format",
		"json",
		"controls the log output format (json, text)")
	fs.StringVar(&config.LogFilter,
		"log-filter",
		"",
		"per logger rules, e.g. \"debug:adapter.* info:*\" (log-level should be debug)")
	fs.BoolVar(&config.EnableTelemetry,
		"enable-telemetry",
		false,
		"enables telemetry")
	fs.StringVar(&config.TelemetryEndpoint,
		"telemetry-endpoint",
		"localhost:4317",
		"Endpoint that receives open telemetry data (stdout prints to console)")
	fs.IntVar(&config.ProfilingPort,
		"profiling-port",
		0,
		"port to use for providing profiling data")
}

// AddServerFlags registers the listen addresses and tls options
func AddServerFlags(fs *pflag.FlagSet, defaultAddr string) {
	fs.StringVarP(&config.ServerAddr,
		"addr",
		"a",
		defaultAddr,
		"http listen address")
	fs.StringVar(&config.TLSServerAddr,
		"tls-addr",
		"",
		"https listen address (requires certificate)")
	fs.StringVar(&config.TLSCertFile,
		"tls-cert",
		"",
		"file containing the TLS certificate")
	fs.StringVar(&config.TLSKeyFile,
		"tls-key",
		"",
		"file containing the TLS key")
	fs.StringVar(&config.TLSCAFile,
		"tls-ca",
		"",
		"file containing the root CA for client certificates")
	fs.StringVar(&config.TraefikCerts,
		"traefik-certs",
		"",
		"traefik acme file containing the certificate")
	fs.StringVar(&config.TraefikCertDomain,
		"traefik-cert-domain",
		"",
		"domain to look up in the traefik acme file")
}

// ConfiguredTLSFiles returns the certificate sources from the resolved flags
func ConfiguredTLSFiles() TLSFiles {
	return TLSFiles{
		CertFile:      config.TLSCertFile,
		KeyFile:       config.TLSKeyFile,
		CAFile:        config.TLSCAFile,
		TraefikCerts:  config.TraefikCerts,
		TraefikDomain: config.TraefikCertDomain,
	}
}

// ResetUnchangedFlags restores the defaults of flags not set by the user.
// Several commands bind the same config variables with different defaults,
// the variables hold the default of the last registration otherwise.
func ResetUnchangedFlags(fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if !f.Changed && err == nil {
			err = f.Value.Set(f.DefValue)
		}
	})
	return err
}
