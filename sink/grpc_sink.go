package sink

import (
	"context"
	"conversation-engine/domain/event"
	"conversation-engine/errors"
	"time"
)

// GrpcSink is the mailbox of one live gRPC session.
// Consume is called by the fanout, the stream handler drains ConnectedUserEvent.
type GrpcSink struct {
	ConnectedUserEvent chan event.Event
	deliveryTimeout    time.Duration
}

func NewGrpcSink(bufferSize int, deliveryTimeout time.Duration) *GrpcSink {
	return &GrpcSink{
		ConnectedUserEvent: make(chan event.Event, bufferSize),
		deliveryTimeout:    deliveryTimeout,
	}
}

// Consume waits at most the delivery timeout for room in the mailbox.
// A session too slow to keep up loses the event and has to retransmit.
func (s *GrpcSink) Consume(ctx context.Context, e event.Event) error {
	select {
	case s.ConnectedUserEvent <- e:
		return nil
	default:
	}

	timer := time.NewTimer(s.deliveryTimeout)
	defer timer.Stop()
	select {
	case s.ConnectedUserEvent <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.ErrSlowConsumer
	}
}
