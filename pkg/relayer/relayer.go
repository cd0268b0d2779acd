package relayer

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ethos-works/threadqueue/pkg/queue"
	"github.com/ethos-works/threadqueue/pkg/types"
)

// Relayer feeds the message queue from a source. It owns the producing side
// of the queue: once it stops, it closes the queue so consumers can drain
// what is left and observe that the queue is done.
type Relayer struct {
	Logger      zerolog.Logger
	Coordinator Coordinator
	Queue       queue.Queue[*types.Message]
}

// Returns a new Relayer relaying source into sink. q is the queue behind
// sink; the relayer closes it when it stops.
func NewRelayer(logger zerolog.Logger, q queue.Queue[*types.Message], sink Sink, source Source, config *Config) *Relayer {
	return &Relayer{
		Logger:      logger,
		Coordinator: NewCoordinator(config, logger, sink, source),
		Queue:       q,
	}
}

// Start runs the coordinator until the source is exhausted, ctx is done or a
// fatal error occurs, and closes the queue on the way out.
func (r *Relayer) Start(ctx context.Context) error {
	defer r.Queue.Close()

	errChan := make(chan error, 1)

	go func() {
		errChan <- r.Coordinator.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		r.Logger.Info().Msg("shutting down relayer")
		r.Coordinator.Stop()
		<-errChan
		return nil

	case err := <-errChan:
		if err != nil {
			r.Logger.Error().Err(err).Msg("relayer failure")
			r.Coordinator.Stop()
			return err
		}

		stats := r.Coordinator.Stats()
		r.Logger.Info().
			Uint64("relayed", stats.Relayed).
			Uint64("dropped", stats.Dropped).
			Msg("relayer finished; closing queue")
		return nil
	}
}
