package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ethos-works/threadqueue/pkg/config"
	"github.com/ethos-works/threadqueue/pkg/db"
	"github.com/ethos-works/threadqueue/pkg/executor"
	"github.com/ethos-works/threadqueue/pkg/queue"
	"github.com/ethos-works/threadqueue/pkg/relayer"
	"github.com/ethos-works/threadqueue/pkg/source"
	"github.com/ethos-works/threadqueue/pkg/types"
)

// CLI flag and value constants
const (
	logFormatJSON = "json"
	logFormatText = "text"

	flagConfig        = "config"
	flagLogLevel      = "log-level"
	flagLogFormat     = "log-format"
	flagQueueCapacity = "queue-capacity"
	flagProducers     = "producers"
	flagWorkerPool    = "worker-pool-count"
	flagMessages      = "messages"
	flagTopics        = "topics"
	flagPutTimeout    = "put-timeout"
	flagDrainTimeout  = "drain-timeout"
	flagDBPath        = "db-path"
)

// RootCmd is the root command for the threadqueue CLI. All commands stem from
// the root command.
var RootCmd = &cobra.Command{
	Use:   "threadqueue",
	Short: "threadqueue runs a producer/consumer message pipeline over a bounded closable queue",
	Long: `threadqueue runs a message pipeline built around a bounded, closable
blocking queue. Producers relay messages from a source into the queue and block
while it is full; a worker pool consumes them and records every delivery. When
the source is exhausted, or on SIGINT/SIGTERM, the queue is closed and the
workers drain what is left before exiting.`,
	SilenceUsage: true,
	RunE:         rootCmdHandler,
}

func init() {
	defaults := config.Default()

	RootCmd.PersistentFlags().String(flagConfig, "", "path to a YAML config file")
	RootCmd.PersistentFlags().String(flagLogLevel, zerolog.InfoLevel.String(), "logging level")
	RootCmd.PersistentFlags().String(flagLogFormat, logFormatText, "logging format [json|text]")
	RootCmd.PersistentFlags().String(flagDBPath, defaults.DBPath, "delivery record database path")
	RootCmd.Flags().Int(flagQueueCapacity, defaults.QueueCapacity, "queue capacity, 0 for unbounded")
	RootCmd.Flags().Int(flagProducers, defaults.Producers, "number of producers relaying from the source")
	RootCmd.Flags().Int(flagWorkerPool, defaults.Workers, "number of workers consuming from the queue")
	RootCmd.Flags().Uint64(flagMessages, defaults.Messages, "number of messages the source yields")
	RootCmd.Flags().StringSlice(flagTopics, defaults.Topics, "topics the source rotates through")
	RootCmd.Flags().Duration(flagPutTimeout, defaults.PutTimeout, "max wait for room before a message is dropped, 0 to block")
	RootCmd.Flags().Duration(flagDrainTimeout, defaults.DrainTimeout, "max time workers keep draining after shutdown")

	RootCmd.AddCommand(getVersionCmd())
	RootCmd.AddCommand(getDeliveriesCmd())
}

func rootCmdHandler(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// listen for and trap any OS signal to gracefully shutdown and exit
	trapSignal(cancel, logger)

	summary, err := run(ctx, logger, cfg)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), summary)
	return err
}

// Summary reports what a pipeline run did with its messages.
type Summary struct {
	Relayed   uint64
	Dropped   uint64
	Delivered uint64
	Failed    uint64
	Remaining int
	Recorded  int
}

func (s Summary) String() string {
	return fmt.Sprintf(
		"relayed=%d dropped=%d delivered=%d failed=%d remaining=%d recorded=%d",
		s.Relayed, s.Dropped, s.Delivered, s.Failed, s.Remaining, s.Recorded,
	)
}

// run wires the pipeline and blocks until the relayer has closed the queue
// and the workers have drained it, or the drain timeout expired.
func run(ctx context.Context, logger zerolog.Logger, cfg config.Config) (Summary, error) {
	store, err := db.Open(cfg.DBPath)
	if err != nil {
		return Summary{}, err
	}

	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close db")
		}
	}()

	msgQueue := newMessageQueue(cfg.QueueCapacity)

	exec, err := executor.New(logger, store, msgQueue, executor.HandlerFunc(
		func(_ context.Context, msg *types.Message) error {
			logger.Debug().Str("topic", msg.Topic).Uint64("seq", msg.Seq).Int("bytes", len(msg.Payload)).Msg("consumed message")
			return nil
		},
	))
	if err != nil {
		return Summary{}, fmt.Errorf("failed to create executor: %w", err)
	}

	r := relayer.NewRelayer(logger, msgQueue, exec, source.NewGenerator(cfg.Messages, cfg.Topics...), &relayer.Config{
		WorkerPoolCount: cfg.Producers,
		PutTimeout:      cfg.PutTimeout,
	})

	// Workers outlive ctx so they can drain the closed queue; drainCancel
	// bounds how long that may take once shutdown starts.
	drainCtx, drainCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer drainCancel()

	drained := make(chan struct{})
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return r.Start(gCtx)
	})

	g.Go(func() error {
		defer close(drained)
		exec.Start(drainCtx, cfg.Workers)
		return nil
	})

	g.Go(func() error {
		select {
		case <-drained:
			return nil
		case <-gCtx.Done():
		}

		logger.Info().Int("remaining", msgQueue.Size()).Dur("drain_timeout", cfg.DrainTimeout).Msg("draining queue...")

		t := time.NewTimer(cfg.DrainTimeout)
		defer t.Stop()

		select {
		case <-drained:
		case <-t.C:
			logger.Warn().Int("remaining", msgQueue.Size()).Msg("drain timeout expired; stopping workers")
			drainCancel()
		}

		return nil
	})

	// Block until the relayer has exited and the workers have stopped.
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	recorded, err := store.Count()
	if err != nil {
		return Summary{}, err
	}

	relayed := r.Coordinator.Stats()
	handled := exec.Stats()

	return Summary{
		Relayed:   relayed.Relayed,
		Dropped:   relayed.Dropped,
		Delivered: handled.Done,
		Failed:    handled.Failed,
		Remaining: msgQueue.Size(),
		Recorded:  recorded,
	}, nil
}

// newMessageQueue returns a queue bounded by capacity, or an unbounded one
// if capacity is not positive.
func newMessageQueue(capacity int) *queue.MemQueue[*types.Message] {
	if capacity > 0 {
		return queue.NewBoundedMemQueue[*types.Message](capacity)
	}

	return queue.NewMemQueue[*types.Message]()
}

// loadConfig layers the config file, the environment and explicitly set flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString(flagConfig)
	if err != nil {
		return config.Config{}, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	if err := config.FromEnv(&cfg); err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()

	if flags.Changed(flagLogLevel) {
		if cfg.LogLevel, err = flags.GetString(flagLogLevel); err != nil {
			return config.Config{}, err
		}
	}
	if flags.Changed(flagLogFormat) {
		if cfg.LogFormat, err = flags.GetString(flagLogFormat); err != nil {
			return config.Config{}, err
		}
	}
	if flags.Changed(flagDBPath) {
		if cfg.DBPath, err = flags.GetString(flagDBPath); err != nil {
			return config.Config{}, err
		}
	}
	if flags.Changed(flagQueueCapacity) {
		if cfg.QueueCapacity, err = flags.GetInt(flagQueueCapacity); err != nil {
			return config.Config{}, err
		}
	}
	if flags.Changed(flagProducers) {
		if cfg.Producers, err = flags.GetInt(flagProducers); err != nil {
			return config.Config{}, err
		}
	}
	if flags.Changed(flagWorkerPool) {
		if cfg.Workers, err = flags.GetInt(flagWorkerPool); err != nil {
			return config.Config{}, err
		}
	}
	if flags.Changed(flagMessages) {
		if cfg.Messages, err = flags.GetUint64(flagMessages); err != nil {
			return config.Config{}, err
		}
	}
	if flags.Changed(flagTopics) {
		if cfg.Topics, err = flags.GetStringSlice(flagTopics); err != nil {
			return config.Config{}, err
		}
	}
	if flags.Changed(flagPutTimeout) {
		if cfg.PutTimeout, err = flags.GetDuration(flagPutTimeout); err != nil {
			return config.Config{}, err
		}
	}
	if flags.Changed(flagDrainTimeout) {
		if cfg.DrainTimeout, err = flags.GetDuration(flagDrainTimeout); err != nil {
			return config.Config{}, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func newLogger(level, format string, w io.Writer) (zerolog.Logger, error) {
	logLvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, err
	}

	// workers log concurrently, so w must not see interleaved writes
	w = zerolog.SyncWriter(w)

	var logWriter io.Writer
	switch strings.ToLower(format) {
	case logFormatJSON:
		logWriter = w

	case logFormatText:
		logWriter = zerolog.ConsoleWriter{Out: w}

	default:
		return zerolog.Logger{}, fmt.Errorf("invalid logging format: %s", format)
	}

	return zerolog.New(logWriter).Level(logLvl).With().Timestamp().Logger(), nil
}

// trapSignal will listen for any OS signal and cancel the main context,
// allowing the main process to gracefully exit.
func trapSignal(cancel context.CancelFunc, logger zerolog.Logger) {
	sigCh := make(chan os.Signal, 1)

	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("caught signal; shutting down...")
		cancel()
	}()
}
