package relay

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"connectrpc.com/grpchealth"
	"github.com/nats-io/nats.go"
	"github.com/pgx-contrib/pgxtrace"
	"github.com/spf13/cobra"

	"github.com/mpapenbr/sequential/log"
	"github.com/mpapenbr/sequential/pkg/archive"
	"github.com/mpapenbr/sequential/pkg/config"
	"github.com/mpapenbr/sequential/pkg/db/postgres"
	"github.com/mpapenbr/sequential/pkg/relay"
	"github.com/mpapenbr/sequential/pkg/server"
)

const healthService = "seq.relay"

func NewRelayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "starts the relay receiving telemetry from capture clients",
		Long: `The relay accepts batches on POST /ingest and forwards them to all
dashboards connected on /ws/{session}. Batches are published on NATS and
stored in the archive database when configured.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return server.ResetUnchangedFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return startRelay()
		},
	}
	server.AddServerFlags(cmd.Flags(), ":5000")
	server.AddLogFlags(cmd.Flags())
	cmd.Flags().StringVar(&config.NatsURL,
		"nats-url",
		"",
		"publish batches to this NATS server (empty: disabled)")
	cmd.Flags().IntVar(&config.FlushThreshold,
		"flush-threshold",
		relay.DefaultFlushThreshold,
		"number of frames buffered per session before they are archived")
	cmd.Flags().IntVar(&config.ArchiveQueueSize,
		"archive-queue-size",
		relay.DefaultQueueSize,
		"max number of pending archive writes, further writes are dropped")
	return cmd
}

//nolint:funlen // by design
func startRelay() error {
	_, sqlLogger, err := server.SetupLogging()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server.StartProfiling()
	if err := server.WaitForRequiredServices(ctx, config.DB, config.NatsURL); err != nil {
		return err
	}

	telemetry := server.StartTelemetry(ctx)
	if telemetry != nil {
		defer telemetry.Shutdown()
	}
	pgTracer := queryTracer(sqlLogger, telemetry != nil)

	opts := []relay.Option{
		relay.WithFlushThreshold(config.FlushThreshold),
		relay.WithQueueSize(config.ArchiveQueueSize),
	}
	if config.DB != "" {
		pool, err := postgres.NewPool(ctx, config.DB, postgres.WithTracer(pgTracer))
		if err != nil {
			return err
		}
		defer pool.Close()
		log.Info("Archive enabled")
		opts = append(opts, relay.WithArchiver(archive.NewRepository(postgres.NewBobDB(pool))))
	}
	if config.NatsURL != "" {
		nc, err := nats.Connect(config.NatsURL,
			nats.Name("seq-relay"),
			nats.MaxReconnects(-1))
		if err != nil {
			return err
		}
		defer func() {
			if err := nc.Drain(); err != nil {
				log.Warn("could not drain nats connection", log.ErrorField(err))
			}
		}()
		log.Info("Publishing to NATS", log.String("url", nc.ConnectedUrlRedacted()))
		opts = append(opts, relay.WithPublisher(relay.NewNatsPublisher(nc)))
	}

	r := relay.New(ctx, opts...)
	defer r.Stop()

	mux := http.NewServeMux()
	mux.Handle("/", r.Handler())
	checker := server.RegisterHealth(mux, healthService)
	server.SetupGoRoutinesDump()

	err = server.Serve(ctx, config.ServerAddr, mux,
		config.TLSServerAddr, server.NewTLSConfig(ctx, server.ConfiguredTLSFiles()))
	checker.SetStatus(healthService, grpchealth.StatusNotServing)
	log.Info("Relay terminated")
	return err
}

// queryTracer logs sql statements, spans are added when telemetry is enabled
func queryTracer(sqlLogger *log.Logger, withSpans bool) pgxtrace.CompositeQueryTracer {
	ret := pgxtrace.CompositeQueryTracer{
		postgres.NewMyTracer(sqlLogger, log.DebugLevel),
	}
	if withSpans {
		ret = append(ret, postgres.NewOtlpTracer())
	}
	return ret
}
