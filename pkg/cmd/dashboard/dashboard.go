package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/grpchealth"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mpapenbr/sequential/log"
	"github.com/mpapenbr/sequential/pkg/adapter"
	"github.com/mpapenbr/sequential/pkg/config"
	"github.com/mpapenbr/sequential/pkg/dashboard"
	"github.com/mpapenbr/sequential/pkg/relay"
	"github.com/mpapenbr/sequential/pkg/server"
	"github.com/mpapenbr/sequential/pkg/telemetry/history"
	"github.com/mpapenbr/sequential/pkg/telemetry/view"
)

const healthService = "seq.dashboard"

var appConfig config.Config // holds processed config values

func NewDashboardCmd() *cobra.Command {
	appConfig = config.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "follows a telemetry session and serves the dashboard",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := server.ResetUnchangedFlags(cmd.Flags()); err != nil {
				return err
			}
			switch config.Source {
			case "ws", "nats":
				return nil
			default:
				return fmt.Errorf("unknown source %q (ws, nats)", config.Source)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return startDashboard()
		},
	}
	server.AddServerFlags(cmd.Flags(), ":8080")
	server.AddLogFlags(cmd.Flags())
	cmd.Flags().StringVar(&config.Source,
		"source",
		"ws",
		"input of the dashboard (ws, nats)")
	cmd.Flags().StringVar(&config.SourceURL,
		"source-url",
		"ws://localhost:5000/ws/",
		"websocket url of the relay, the session id is appended")
	cmd.Flags().StringVar(&config.NatsURL,
		"nats-url",
		nats.DefaultURL,
		"NATS server used with --source nats")
	cmd.Flags().StringVar(&config.SessionID,
		"session-id",
		relay.DefaultSessionID,
		"telemetry session to follow")
	cmd.Flags().StringVar(&config.ReconnectDelay,
		"reconnect-delay",
		"2s",
		"delay before reconnecting the websocket source (0 disables reconnects)")
	cmd.Flags().IntVar(&appConfig.MinLapSamples,
		"min-lap-samples",
		appConfig.MinLapSamples,
		"laps need more samples than this to be available for comparison")
	cmd.Flags().IntVar(&appConfig.LiveWindow,
		"live-window",
		appConfig.LiveWindow,
		"number of recent samples shown in the live view")
	cmd.Flags().IntVar(&appConfig.CompareDefault,
		"compare-default",
		appConfig.CompareDefault,
		"number of laps selected for comparison once laps are available")
	cmd.Flags().IntVar(&appConfig.Retention,
		"retention",
		appConfig.Retention,
		"max number of samples kept (0: unbounded)")
	cmd.Flags().BoolVar(&appConfig.PrintMessage,
		"print-message",
		false,
		"if true and log level is debug, the message payload will be printed")
	return cmd
}

// websocketURL appends the session to the relay url
func websocketURL(base, session string) string {
	if session == "" {
		return base
	}
	return strings.TrimSuffix(base, "/") + "/" + session
}

//nolint:funlen // by design
func startDashboard() error {
	logger, _, err := server.SetupLogging()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server.StartProfiling()
	if telemetry := server.StartTelemetry(ctx); telemetry != nil {
		defer telemetry.Shutdown()
	}

	store := history.New(
		history.WithRetention(appConfig.Retention),
		history.WithLogger(logger.Named("history")))
	defer store.Close()

	run, cleanup, err := newSource(ctx, store, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	d := dashboard.New(view.New(store, appConfig),
		dashboard.WithNotifier(store),
		dashboard.WithLogger(logger.Named("dashboard")))
	mux := http.NewServeMux()
	mux.Handle("/", d.Handler())
	checker := server.RegisterHealth(mux, healthService)
	server.SetupGoRoutinesDump()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// the dashboard keeps serving the collected history without source
		if err := run(gctx); err != nil {
			log.Error("source stopped", log.ErrorField(err))
		}
		return nil
	})
	g.Go(func() error {
		return server.Serve(gctx, config.ServerAddr, mux,
			config.TLSServerAddr, server.NewTLSConfig(gctx, server.ConfiguredTLSFiles()))
	})
	err = g.Wait()
	checker.SetStatus(healthService, grpchealth.StatusNotServing)
	log.Info("Dashboard terminated")
	return err
}

//nolint:whitespace // can't make both editor and linter happy
func newSource(
	ctx context.Context, store *history.Store, logger *log.Logger,
) (run func(context.Context) error, cleanup func(), err error) {
	applierOpts := []adapter.ApplierOption{adapter.WithPrintMessage(appConfig.PrintMessage)}
	l := logger.Named("adapter")
	switch config.Source {
	case "nats":
		if err := server.WaitForRequiredServices(ctx, config.NatsURL); err != nil {
			return nil, nil, err
		}
		nc, err := nats.Connect(config.NatsURL, adapter.NatsConnOptions(store, l)...)
		if err != nil {
			return nil, nil, err
		}
		src := adapter.NewNatsSource(nc, config.SessionID, store, l, applierOpts...)
		return src.Run, nc.Close, nil
	default:
		delay, err := time.ParseDuration(config.ReconnectDelay)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid reconnect delay: %w", err)
		}
		src := adapter.NewWebsocketSource(
			websocketURL(config.SourceURL, config.SessionID), store,
			adapter.WithReconnectDelay(delay),
			adapter.WithApplierOptions(applierOpts...),
			adapter.WithWebsocketLogger(l))
		return src.Run, func() {}, nil
	}
}
