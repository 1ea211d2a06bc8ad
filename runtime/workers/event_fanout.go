package workers

import (
	"context"
	"conversation-engine/contract"
	"conversation-engine/domain/event"
	"log/slog"
	"sync"
	"time"
)

type delivery struct {
	evt        event.Event
	recipients []string
}

// EventFanout delivers events to permanent sinks and to the live sessions of their recipients.
//
// Broadcast never blocks: when the buffer is full the event is dropped for live
// consumers, who recover it through retransmission. Events are handed to sinks
// in the order they were broadcast, each sink call bounded by the sink timeout.
type EventFanout struct {
	log         *slog.Logger
	registry    contract.IRegistry
	sinks       []contract.EventSink
	deliveries  chan delivery
	sinkTimeout time.Duration
}

func NewEventFanout(log *slog.Logger, registry contract.IRegistry, bufferSize int, sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{
		log:         log,
		registry:    registry,
		deliveries:  make(chan delivery, bufferSize),
		sinkTimeout: sinkTimeout,
	}
}

// Add registers sinks receiving every event, whoever the recipients are.
// It must be called before Run.
func (w *EventFanout) Add(sinks ...contract.EventSink) *EventFanout {
	w.sinks = append(w.sinks, sinks...)
	return w
}

func (w *EventFanout) Broadcast(evt event.Event, recipients []string) {
	select {
	case w.deliveries <- delivery{evt: evt, recipients: recipients}:
	default:
		w.log.Warn("Fanout buffer full, dropping event",
			"conversation_id", evt.ConversationID, "sequence", evt.Sequence, "type", evt.Type)
	}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case d := <-w.deliveries:
			w.Fanout(ctx, d.evt, d.recipients)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fanout")
			return nil
		}
	}
}

// Fanout hands the event to every sink concurrently and waits for all of them,
// so the next event never overtakes this one.
func (w *EventFanout) Fanout(ctx context.Context, evt event.Event, recipients []string) {
	sinks := append(append([]contract.EventSink(nil), w.sinks...), w.registry.GetSinksForUsers(recipients)...)

	var wg sync.WaitGroup
	for _, sink := range sinks {
		wg.Add(1)
		go func(s contract.EventSink) {
			defer wg.Done()
			sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
			defer cancel()
			if err := s.Consume(sinkCtx, evt); err != nil {
				w.log.Debug("Sink failed to consume event",
					"conversation_id", evt.ConversationID, "sequence", evt.Sequence, "error", err)
			}
		}(sink)
	}
	wg.Wait()
}

// Channel exposes the delivery buffer to the health worker.
func (w *EventFanout) Channel() NamedChannel {
	return NamedChannel{Name: "event_fanout", Channel: w.deliveries}
}
