package executor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/ethos-works/threadqueue/pkg/db"
	"github.com/ethos-works/threadqueue/pkg/executor"
	"github.com/ethos-works/threadqueue/pkg/queue"
	"github.com/ethos-works/threadqueue/pkg/testutil"
	"github.com/ethos-works/threadqueue/pkg/types"
)

func TestExecutor(t *testing.T) {
	db, err := db.NewMemDB()
	require.NoError(t, err)

	logger := testutil.NewTestLogger(t)
	execQueue := queue.NewBoundedMemQueue[*types.Message](executor.DefaultQueueSize)

	handled := make(chan uint64, 8)
	handler := executor.HandlerFunc(func(_ context.Context, msg *types.Message) error {
		handled <- msg.Seq
		return nil
	})

	exec, err := executor.New(logger, db, execQueue, handler)
	require.NoError(t, err)

	// create cancelable context and start executor
	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		exec.Start(ctx, 4)
	}()

	msg := &types.Message{
		Topic:   "jobs/1",
		Payload: []byte{0x01, 0x02},
		Seq:     1,
	}

	err = exec.SubmitMessage(context.Background(), msg)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		d, err := executor.GetDelivery(db, msg.Seq)
		require.NoError(t, err)

		return d.Status == types.DeliveryStatus_DONE
	}, time.Second, 10*time.Millisecond)

	require.Equal(t, uint64(1), <-handled)
	require.Equal(t, executor.Stats{Done: 1}, exec.Stats())

	// ensure graceful cleanup
	cancel()
	<-doneCh
}

func TestExecutor_DrainsOnClose(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	db, err := db.NewMemDB()
	require.NoError(t, err)

	execQueue := queue.NewBoundedMemQueue[*types.Message](4)
	handler := testutil.NewMockHandler(ctrl)

	exec, err := executor.New(testutil.NewTestLogger(t), db, execQueue, handler)
	require.NoError(t, err)

	const total = 20

	handler.EXPECT().Handle(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, msg *types.Message) error {
			if msg.Seq%5 == 0 {
				return errors.New("rejected")
			}
			return nil
		},
	).Times(total)

	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		exec.Start(context.Background(), 3)
	}()

	for i := 1; i <= total; i++ {
		require.NoError(t, exec.SubmitMessage(context.Background(), &types.Message{Topic: "t", Seq: uint64(i)}))
	}

	execQueue.Close()

	select {
	case <-doneCh:
	case <-time.After(5 * time.Second):
		t.Fatal("workers did not stop after the queue was drained")
	}

	require.True(t, execQueue.IsDone())
	require.Equal(t, executor.Stats{Done: 16, Failed: 4}, exec.Stats())

	deliveries, err := executor.Deliveries(db)
	require.NoError(t, err)
	require.Len(t, deliveries, total)

	for i, d := range deliveries {
		require.Equal(t, uint64(i+1), d.Seq)
		if d.Seq%5 == 0 {
			require.Equal(t, types.DeliveryStatus_FAILED, d.Status)
			require.Equal(t, "rejected", d.Error)
		} else {
			require.Equal(t, types.DeliveryStatus_DONE, d.Status)
		}
	}
}

func TestExecutor_SubmitClosed(t *testing.T) {
	db, err := db.NewMemDB()
	require.NoError(t, err)

	execQueue := queue.NewMemQueue[*types.Message]()
	execQueue.Close()

	exec, err := executor.New(testutil.NewTestLogger(t), db, execQueue, executor.HandlerFunc(
		func(context.Context, *types.Message) error { return nil },
	))
	require.NoError(t, err)

	err = exec.SubmitMessage(context.Background(), &types.Message{Topic: "t", Seq: 7})
	require.ErrorIs(t, err, queue.ErrQueueClosed)

	d, err := executor.GetDelivery(db, 7)
	require.NoError(t, err)
	require.Equal(t, types.DeliveryStatus_FAILED, d.Status)

	_, err = executor.GetDelivery(db, 8)
	require.ErrorIs(t, err, executor.ErrDeliveryNotFound)
}

func TestExecutor_SubmitTimeout(t *testing.T) {
	db, err := db.NewMemDB()
	require.NoError(t, err)

	execQueue := queue.NewBoundedMemQueue[*types.Message](1)

	exec, err := executor.New(testutil.NewTestLogger(t), db, execQueue, executor.HandlerFunc(
		func(context.Context, *types.Message) error { return nil },
	))
	require.NoError(t, err)

	require.NoError(t, exec.SubmitMessage(context.Background(), &types.Message{Topic: "t", Seq: 1}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err = exec.SubmitMessage(ctx, &types.Message{Topic: "t", Seq: 2})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, execQueue.Size())

	d, err := executor.GetDelivery(db, 1)
	require.NoError(t, err)
	require.Equal(t, types.DeliveryStatus_PENDING, d.Status)

	d, err = executor.GetDelivery(db, 2)
	require.NoError(t, err)
	require.Equal(t, types.DeliveryStatus_FAILED, d.Status)
	require.Equal(t, context.DeadlineExceeded.Error(), d.Error)
}

func TestExecutor_New(t *testing.T) {
	logger := testutil.NewTestLogger(t)

	db, err := db.NewMemDB()
	require.NoError(t, err)

	q := queue.NewMemQueue[*types.Message]()
	h := executor.HandlerFunc(func(context.Context, *types.Message) error { return nil })

	_, err = executor.New(logger, nil, q, h)
	require.Error(t, err)

	_, err = executor.New(logger, db, nil, h)
	require.Error(t, err)

	_, err = executor.New(logger, db, q, nil)
	require.Error(t, err)
}
