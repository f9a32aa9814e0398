package feed

import "sync"

// Subscription is a cancellable event stream for one conversation. Events
// are delivered in enqueue order through Events, including the settle
// marker, so a consumer that receives it has already received every
// backlog event. Settled is closed once the marker has been handed to the
// consumer. Close is idempotent and stops delivery; pending events are
// dropped.
type Subscription struct {
	events  chan Event
	settled chan struct{}
	done    chan struct{}

	mu      sync.Mutex
	pending []queued
	wake    chan struct{}

	closeOnce   sync.Once
	settledOnce sync.Once
	onClose     func()
}

type queued struct {
	event  Event
	settle bool
}

func newSubscription(onClose func()) *Subscription {
	s := &Subscription{
		events:  make(chan Event),
		settled: make(chan struct{}),
		done:    make(chan struct{}),
		wake:    make(chan struct{}, 1),
		onClose: onClose,
	}
	go s.pump()
	return s
}

// Events returns the delivery channel. It is closed after Close.
func (s *Subscription) Events() <-chan Event { return s.events }

// Settled is closed once the consumer has received the settle marker,
// and with it the whole backlog present at subscribe time.
func (s *Subscription) Settled() <-chan struct{} { return s.settled }

// Close releases the subscription. No events are delivered after it
// returns beyond one the consumer may already be receiving.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.onClose != nil {
			s.onClose()
		}
	})
}

// enqueue queues an event for delivery. Safe to call from any goroutine;
// a closed subscription discards the event.
func (s *Subscription) enqueue(ev Event) {
	s.push(queued{event: ev})
}

// markSettled queues the settle signal behind everything enqueued so far.
func (s *Subscription) markSettled() {
	s.push(queued{settle: true})
}

func (s *Subscription) push(q queued) {
	select {
	case <-s.done:
		return
	default:
	}
	s.mu.Lock()
	s.pending = append(s.pending, q)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump drains the pending queue into the events channel, preserving
// enqueue order, until the subscription is closed.
func (s *Subscription) pump() {
	defer close(s.events)
	for {
		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, q := range batch {
			ev := q.event
			if q.settle {
				ev = Event{Settle: true}
			}
			select {
			case s.events <- ev:
			case <-s.done:
				return
			}
			if q.settle {
				// The rendezvous completed, so the consumer now holds
				// every event enqueued before the marker.
				s.settledOnce.Do(func() { close(s.settled) })
			}
		}

		select {
		case <-s.wake:
		case <-s.done:
			return
		}
	}
}
