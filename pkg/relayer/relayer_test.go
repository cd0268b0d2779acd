package relayer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/ethos-works/threadqueue/pkg/queue"
	"github.com/ethos-works/threadqueue/pkg/relayer"
	"github.com/ethos-works/threadqueue/pkg/source"
	"github.com/ethos-works/threadqueue/pkg/testutil"
	"github.com/ethos-works/threadqueue/pkg/types"
)

func TestRelayerLifecycle(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	logger := testutil.NewTestLogger(t)
	broadcastQueue := queue.NewMemQueue[*types.Message]()
	coordinator := testutil.NewMockCoordinator(ctrl)

	r := relayer.NewRelayer(logger, broadcastQueue, relayer.QueueSink(broadcastQueue), source.NewGenerator(0), &relayer.Config{WorkerPoolCount: 1})
	r.Coordinator = coordinator

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopped := make(chan struct{})
	coordinator.EXPECT().Start(gomock.Any()).DoAndReturn(func(context.Context) error {
		<-stopped
		return nil
	})
	coordinator.EXPECT().Stop().Do(func() { close(stopped) })

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := r.Start(ctx)
	require.NoError(t, err)
	require.True(t, broadcastQueue.IsClosed())
}

func TestRelayerFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	logger := testutil.NewTestLogger(t)
	broadcastQueue := queue.NewMemQueue[*types.Message]()
	coordinator := testutil.NewMockCoordinator(ctrl)

	r := relayer.NewRelayer(logger, broadcastQueue, relayer.QueueSink(broadcastQueue), source.NewGenerator(0), &relayer.Config{WorkerPoolCount: 1})
	r.Coordinator = coordinator

	coordinator.EXPECT().Start(gomock.Any()).Return(errors.New("relayer failure"))
	coordinator.EXPECT().Stop().Return()

	err := r.Start(context.Background())
	require.Error(t, err)
	require.True(t, broadcastQueue.IsClosed())
}

func TestRelayerClosesQueueWhenExhausted(t *testing.T) {
	logger := testutil.NewTestLogger(t)
	broadcastQueue := queue.NewBoundedMemQueue[*types.Message](4)

	r := relayer.NewRelayer(logger, broadcastQueue, relayer.QueueSink(broadcastQueue), source.NewGenerator(25, "a", "b"), &relayer.Config{WorkerPoolCount: 2})

	done := make(chan error, 1)
	go func() {
		done <- r.Start(context.Background())
	}()

	var got []uint64
	for {
		msg, err := broadcastQueue.Get()
		if err != nil {
			require.ErrorIs(t, err, queue.ErrQueueClosed)
			break
		}
		got = append(got, msg.Seq)
	}

	require.NoError(t, <-done)
	require.Len(t, got, 25)
	require.True(t, broadcastQueue.IsDone())
}
