// Package events carries change notifications from the mutation paths
// to connected subscribers.
//
// The Bus is a single dispatcher goroutine owning a map of per-user
// sinks; publishers and subscribers talk to it over channels, so the
// registry needs no lock. Each subscriber gets a bounded buffer; when a
// slow consumer falls behind, the oldest pending event is dropped
// rather than stalling the dispatcher. The Server half of the package
// exposes subscriptions over TCP with encrypted frames.
package events

import (
	"errors"
	"sync"

	"github.com/fioncat/csync/pkg/metrics"
	"github.com/fioncat/csync/pkg/models"
)

const (
	// subscriberSlots is the per-subscriber event buffer.
	subscriberSlots = 500

	// ingressBacklog bounds events waiting for the dispatcher.
	ingressBacklog = 128
)

// ErrBusClosed is returned by Subscribe after the bus shut down.
var ErrBusClosed = errors.New("event bus is closed")

// Subscriber receives the events of one user. Close it when done;
// an abandoned subscriber keeps its buffer alive until the bus stops.
type Subscriber struct {
	user      string
	ch        chan models.Event
	bus       *Bus
	closeOnce sync.Once
}

// C returns the receive channel. It is closed when the subscriber is
// closed or the bus shuts down.
func (s *Subscriber) C() <-chan models.Event {
	return s.ch
}

// User returns the user name this subscriber was registered for.
func (s *Subscriber) User() string {
	return s.user
}

// Close detaches the subscriber from the bus.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		select {
		case s.bus.unsubscribe <- s:
		case <-s.bus.stopped:
		}
	})
}

type subscribeRequest struct {
	user  string
	reply chan *Subscriber
}

// Bus fans events out to per-user subscribers.
type Bus struct {
	ingress     chan models.Event
	subscribe   chan subscribeRequest
	unsubscribe chan *Subscriber
	count       chan chan int

	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewBus creates a bus and starts its dispatcher.
func NewBus() *Bus {
	b := &Bus{
		ingress:     make(chan models.Event, ingressBacklog),
		subscribe:   make(chan subscribeRequest),
		unsubscribe: make(chan *Subscriber),
		count:       make(chan chan int),
		stop:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// Publish hands an event to the dispatcher. Events published from the
// same goroutine are delivered in publication order. Publishing to a
// closed bus discards the event.
func (b *Bus) Publish(event models.Event) {
	select {
	case b.ingress <- event:
	case <-b.stopped:
	}
}

// Subscribe registers a new receiver for the given user's events.
func (b *Bus) Subscribe(user string) (*Subscriber, error) {
	req := subscribeRequest{user: user, reply: make(chan *Subscriber, 1)}
	select {
	case b.subscribe <- req:
	case <-b.stopped:
		return nil, ErrBusClosed
	}
	select {
	case sub := <-req.reply:
		return sub, nil
	case <-b.stopped:
		return nil, ErrBusClosed
	}
}

// Subscribers reports how many subscribers are attached. A closed bus
// reports zero.
func (b *Bus) Subscribers() int {
	reply := make(chan int, 1)
	select {
	case b.count <- reply:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-b.stopped:
		return 0
	}
}

// Close stops the dispatcher and closes every subscriber channel. It
// returns once the dispatcher has exited.
func (b *Bus) Close() {
	b.stopOnce.Do(func() { close(b.stop) })
	<-b.stopped
}

// dispatch owns the user → subscribers registry. It is the only
// goroutine that ever touches it.
func (b *Bus) dispatch() {
	sinks := make(map[string][]*Subscriber)

	defer func() {
		for _, subs := range sinks {
			for _, sub := range subs {
				close(sub.ch)
			}
		}
		metrics.SetEventSubscribers(0)
		close(b.stopped)
	}()

	for {
		select {
		case event := <-b.ingress:
			deliver(sinks, event)

		case req := <-b.subscribe:
			sub := &Subscriber{
				user: req.user,
				ch:   make(chan models.Event, subscriberSlots),
				bus:  b,
			}
			sinks[req.user] = append(sinks[req.user], sub)
			metrics.SetEventSubscribers(countSubscribers(sinks))
			req.reply <- sub

		case sub := <-b.unsubscribe:
			subs := sinks[sub.user]
			for i, candidate := range subs {
				if candidate == sub {
					sinks[sub.user] = append(subs[:i], subs[i+1:]...)
					close(sub.ch)
					break
				}
			}
			if len(sinks[sub.user]) == 0 {
				delete(sinks, sub.user)
			}
			metrics.SetEventSubscribers(countSubscribers(sinks))

		case reply := <-b.count:
			reply <- countSubscribers(sinks)

		case <-b.stop:
			return
		}
	}
}

// deliver partitions the event's items by owner and offers each slice
// to that owner's subscribers. A full subscriber loses its oldest
// pending event instead of blocking the dispatcher.
func deliver(sinks map[string][]*Subscriber, event models.Event) {
	for _, owner := range ownersOf(event.Items) {
		subs := sinks[owner]
		if len(subs) == 0 {
			continue
		}

		scoped := models.Event{Type: event.Type}
		for _, item := range event.Items {
			if item.Owner == owner {
				scoped.Items = append(scoped.Items, item)
			}
		}

		for _, sub := range subs {
			select {
			case sub.ch <- scoped:
				metrics.EventDelivered()
				continue
			default:
			}

			// Buffer full: evict the oldest, then retry. Only the
			// dispatcher sends, so one eviction frees one slot.
			select {
			case <-sub.ch:
				metrics.EventDropped()
			default:
			}
			select {
			case sub.ch <- scoped:
				metrics.EventDelivered()
			default:
				metrics.EventDropped()
			}
		}
	}
}

// ownersOf returns the distinct owners in order of first appearance.
func ownersOf(items []models.Metadata) []string {
	var owners []string
	seen := make(map[string]struct{}, 1)
	for _, item := range items {
		if _, ok := seen[item.Owner]; ok {
			continue
		}
		seen[item.Owner] = struct{}{}
		owners = append(owners, item.Owner)
	}
	return owners
}

func countSubscribers(sinks map[string][]*Subscriber) int {
	total := 0
	for _, subs := range sinks {
		total += len(subs)
	}
	return total
}
