package workers

import (
	"context"
	"conversation-engine/contract"
	"conversation-engine/domain/event"
	"conversation-engine/mocks"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func messageEvent(sequence int64) event.Event {
	evt := event.New(uuid.New(), "alice", 1700000000, event.MessageSent{Text: "hello"})
	evt.Sequence = sequence
	return evt
}

func TestEventFanout_Fanout(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	permanentSink := mocks.NewMockEventSink(ctrl)
	sessionSink := mocks.NewMockEventSink(ctrl)

	fanout := NewEventFanout(log, mockRegistry, 10, time.Second).Add(permanentSink)
	evt := messageEvent(2)

	// Given bob holds one live session
	mockRegistry.EXPECT().GetSinksForUsers([]string{"alice", "bob"}).
		Return([]contract.EventSink{sessionSink}).Times(1)
	// Then the permanent sink and the session both consume the event
	permanentSink.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)
	sessionSink.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)

	// When the event is fanned out
	fanout.Fanout(context.Background(), evt, []string{"alice", "bob"})
}

func TestEventFanout_SinkTimeout(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	slowSink := mocks.NewMockEventSink(ctrl)

	fanout := NewEventFanout(log, mockRegistry, 10, 20*time.Millisecond)

	// Given a session sink that never finishes by itself
	mockRegistry.EXPECT().GetSinksForUsers(gomock.Any()).Return([]contract.EventSink{slowSink}).Times(1)
	slowSink.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, evt event.Event) error {
			<-ctx.Done()
			return ctx.Err()
		}).Times(1)

	// When the event is fanned out
	start := time.Now()
	fanout.Fanout(context.Background(), messageEvent(2), []string{"bob"})

	// Then the sink timeout bounds the delivery
	req.Less(time.Since(start), time.Second)
}

func TestEventFanout_Run_Preserves_Order(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	sink := mocks.NewMockEventSink(ctrl)

	fanout := NewEventFanout(log, mockRegistry, 10, time.Second)

	var mu sync.Mutex
	var received []int64
	done := make(chan struct{})
	mockRegistry.EXPECT().GetSinksForUsers(gomock.Any()).Return([]contract.EventSink{sink}).Times(3)
	sink.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, evt event.Event) error {
			mu.Lock()
			defer mu.Unlock()
			received = append(received, evt.Sequence)
			if len(received) == 3 {
				close(done)
			}
			return nil
		}).Times(3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = fanout.Run(ctx) }()

	// When three events are broadcast
	for seq := int64(1); seq <= 3; seq++ {
		fanout.Broadcast(messageEvent(seq), []string{"bob"})
	}

	// Then they arrive in order
	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("events were not delivered in time")
	}
	mu.Lock()
	defer mu.Unlock()
	req.Equal([]int64{1, 2, 3}, received)
}

func TestEventFanout_Broadcast_Drops_When_Full(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)

	fanout := NewEventFanout(log, mocks.NewMockIRegistry(ctrl), 1, time.Second)

	// When two events are broadcast while nobody drains the buffer
	fanout.Broadcast(messageEvent(1), nil)
	fanout.Broadcast(messageEvent(2), nil)

	// Then only the first one is queued and the caller never blocked
	req.Len(fanout.deliveries, 1)
	d := <-fanout.deliveries
	req.Equal(int64(1), d.evt.Sequence)
}
