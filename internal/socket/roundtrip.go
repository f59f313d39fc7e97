package socket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/halcyonware/halcyon/internal/store"
)

// waiter is a one-shot listener set for a request/acknowledgement
// exchange. Whichever of the success event, the error event, the
// disconnect or the timeout fires first settles it; later arrivals find it
// already settled and are dropped.
type waiter struct {
	events []string
	once   sync.Once
	ch     chan waitResult
}

type waitResult struct {
	event Event
	err   error
}

func (w *waiter) deliver(ev Event) {
	w.once.Do(func() { w.ch <- waitResult{event: ev} })
}

func (w *waiter) fail(err error) {
	w.once.Do(func() { w.ch <- waitResult{err: err} })
}

// roundTrip emits one request event and waits for exactly one of
// successEvent, errorEvent, disconnect, or the configured timeout. The
// one-shot listeners are always removed before roundTrip returns.
func (s *Session) roundTrip(ctx context.Context, emitEvent string, payload any, successEvent, errorEvent string) (Event, error) {
	w := &waiter{
		events: []string{successEvent, errorEvent},
		ch:     make(chan waitResult, 1),
	}

	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		s.store.Set(store.KeyStatusMessage, "Not connected")
		return Event{}, &SocketError{Code: CodeSocketUnavailable, Message: "not connected", Details: emitEvent}
	}
	for _, name := range w.events {
		s.waiters[name] = append(s.waiters[name], w)
	}
	s.mu.Unlock()
	defer s.removeWaiter(w)

	if err := s.Emit(emitEvent, payload); err != nil {
		return Event{}, err
	}

	timer := time.NewTimer(s.cfg.RoundTripTimeout)
	defer timer.Stop()

	select {
	case res := <-w.ch:
		if res.err != nil {
			return Event{}, res.err
		}
		if res.event.Type == errorEvent {
			return res.event, errorFromEvent(res.event)
		}
		return res.event, nil
	case <-timer.C:
		return Event{}, &SocketError{Code: CodeTimeout, Message: "no acknowledgement", Details: emitEvent}
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// takeWaitersLocked removes and returns the waiters listening for event.
// Each returned waiter is also removed from its other event lists, so a
// settled exchange leaves no listener behind. Caller holds s.mu.
func (s *Session) takeWaitersLocked(event string) []*waiter {
	taken := s.waiters[event]
	if len(taken) == 0 {
		return nil
	}
	delete(s.waiters, event)
	for _, w := range taken {
		for _, other := range w.events {
			if other == event {
				continue
			}
			s.waiters[other] = removeWaiterFrom(s.waiters[other], w)
		}
	}
	return taken
}

// drainWaitersLocked removes and returns all outstanding waiters. Caller
// holds s.mu.
func (s *Session) drainWaitersLocked() []*waiter {
	seen := make(map[*waiter]bool)
	var all []*waiter
	for _, list := range s.waiters {
		for _, w := range list {
			if !seen[w] {
				seen[w] = true
				all = append(all, w)
			}
		}
	}
	s.waiters = make(map[string][]*waiter)
	return all
}

func (s *Session) removeWaiter(w *waiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range w.events {
		s.waiters[name] = removeWaiterFrom(s.waiters[name], w)
	}
}

func removeWaiterFrom(list []*waiter, w *waiter) []*waiter {
	for i, candidate := range list {
		if candidate == w {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// errorFromEvent turns an error acknowledgement into a SocketError.
func errorFromEvent(ev Event) error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := ev.Type
	if err := json.Unmarshal(ev.Data, &body); err == nil {
		if body.Error != "" {
			msg = body.Error
		} else if body.Message != "" {
			msg = body.Message
		}
	}
	return &SocketError{Code: CodeServerError, Message: msg}
}
