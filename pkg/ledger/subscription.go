package ledger

import (
	"context"
	"encoding/json"
	"fmt"
)

// Subscription delivers stage and task events until closed.
type Subscription struct {
	events chan *Event
	errors chan error
	cancel context.CancelFunc
}

// Events returns the event stream. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan *Event { return s.events }

// Errors returns decode errors for malformed messages.
func (s *Subscription) Errors() <-chan error { return s.errors }

// Close stops the subscription.
func (s *Subscription) Close() { s.cancel() }

// Subscribe listens on the stage and task channels of this instance. The
// subscription is confirmed before Subscribe returns, so events published
// afterwards are not missed. Caller must call Close when done.
func (l *Ledger) Subscribe(ctx context.Context) (*Subscription, error) {
	pubsub := l.rdb.Subscribe(ctx, StageEventsChannel(l.instanceName), TaskEventsChannel(l.instanceName))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	eventsChan := make(chan *Event, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &ev:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{events: eventsChan, errors: errorsChan, cancel: cancelFunc}, nil
}
