package feed

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/sequential/log"
	"github.com/mpapenbr/sequential/pkg/config"
	"github.com/mpapenbr/sequential/pkg/feed"
	"github.com/mpapenbr/sequential/pkg/relay"
	"github.com/mpapenbr/sequential/pkg/server"
	"github.com/mpapenbr/sequential/pkg/utils"
)

type feedOptions struct {
	relayURL      string
	input         string
	interval      time.Duration
	batchSize     int
	laps          int
	samplesPerLap int
	seed          uint64
}

var opts feedOptions

func NewFeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "sends recorded or synthetic telemetry to a relay",
		Long: `Reads a recording (one ingest message per line) or generates synthetic
laps and posts the frames in batches to the ingest endpoint of a relay.
Frames repeating the packet id of their predecessor are skipped.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return server.ResetUnchangedFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return startFeed()
		},
	}
	server.AddLogFlags(cmd.Flags())
	cmd.Flags().StringVar(&opts.relayURL,
		"relay-url",
		"http://localhost:5000",
		"base url of the relay")
	cmd.Flags().StringVar(&config.SessionID,
		"session-id",
		relay.DefaultSessionID,
		"session the frames belong to")
	cmd.Flags().StringVarP(&opts.input,
		"input",
		"i",
		"",
		"recording to replay (jsonl, - for stdin). Synthetic laps are generated if empty")
	cmd.Flags().DurationVar(&opts.interval,
		"interval",
		100*time.Millisecond,
		"delay between frames (0: as fast as possible)")
	cmd.Flags().IntVar(&opts.batchSize,
		"batch-size",
		feed.DefaultBatchSize,
		"number of frames per batch")
	cmd.Flags().IntVar(&opts.laps,
		"laps",
		5,
		"number of synthetic laps")
	cmd.Flags().IntVar(&opts.samplesPerLap,
		"samples-per-lap",
		300,
		"number of frames per synthetic lap")
	cmd.Flags().Uint64Var(&opts.seed,
		"seed",
		1,
		"seed of the synthetic data")
	return cmd
}

func startFeed() error {
	logger, _, err := server.SetupLogging()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if telemetry := server.StartTelemetry(ctx); telemetry != nil {
		defer telemetry.Shutdown()
	}

	if err := waitForRelay(ctx); err != nil {
		return err
	}
	reader, closeReader, err := newReader()
	if err != nil {
		return err
	}
	defer closeReader()

	poster, err := feed.NewPoster(opts.relayURL,
		feed.WithSessionID(config.SessionID),
		feed.WithPosterLogger(logger.Named("feed.poster")))
	if err != nil {
		return err
	}
	f := feed.NewFeeder(poster,
		feed.WithBatchSize(opts.batchSize),
		feed.WithInterval(opts.interval),
		feed.WithLogger(logger.Named("feed")))
	stats, err := f.Run(ctx, reader)
	log.Info("Feed finished",
		log.Int("frames", stats.Frames),
		log.Int("skipped", stats.Skipped),
		log.Int("batches", stats.Batches),
		log.Int("failed", stats.Failed))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func waitForRelay(ctx context.Context) error {
	timeout, err := time.ParseDuration(config.WaitForServices)
	if err != nil {
		timeout = 60 * time.Second
	}
	return utils.WaitForHTTPResponse(ctx,
		strings.TrimSuffix(opts.relayURL, "/")+"/health", timeout)
}

func newReader() (reader feed.Reader, closer func(), err error) {
	switch opts.input {
	case "":
		synth, err := feed.NewSynthetic(opts.laps, opts.samplesPerLap, opts.seed)
		return synth, func() {}, err
	case "-":
		return feed.NewJSONLReader(os.Stdin), func() {}, nil
	default:
		file, err := os.Open(opts.input)
		if err != nil {
			return nil, nil, err
		}
		return feed.NewJSONLReader(file), func() { file.Close() }, nil
	}
}
