// Package hub provides ordered publish/subscribe topics.
//
// A Topic delivers each published value to every attached Subscription in
// attach order, synchronously on the publisher's goroutine. Subscriptions can
// be attached and detached at any time; values published before a
// subscription was attached are never replayed to it.
package hub

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Handler receives published values. A returned error is reported as a Fault
// and does not stop delivery to the remaining subscribers.
type Handler[T any] func(T) error

// Fault describes a handler that returned an error or panicked.
type Fault struct {
	Topic        string
	Subscription string
	Err          error
}

func (f Fault) Error() string {
	return fmt.Sprintf("hub: subscriber %s on %s: %v", f.Subscription, f.Topic, f.Err)
}

func (f Fault) Unwrap() error {
	return f.Err
}

// FaultFunc is invoked on the publisher's goroutine for every Fault.
type FaultFunc func(Fault)

// ErrPanic is wrapped by the Fault raised when a handler panics.
var ErrPanic = errors.New("hub: handler panicked")

// Topic is a named, ordered list of subscriptions.
type Topic[T any] struct {
	name    string
	onFault FaultFunc

	mu   sync.RWMutex
	subs []*Subscription[T]
}

// NewTopic creates a topic. onFault may be nil.
func NewTopic[T any](name string, onFault FaultFunc) *Topic[T] {
	return &Topic[T]{name: name, onFault: onFault}
}

// Name returns the topic name.
func (t *Topic[T]) Name() string {
	return t.name
}

// Subscribe attaches fn and returns its subscription.
func (t *Topic[T]) Subscribe(fn Handler[T]) *Subscription[T] {
	s := &Subscription[T]{
		id:    uuid.NewString(),
		topic: t,
		fn:    fn,
	}

	t.mu.Lock()
	t.subs = append(t.subs, s)
	t.mu.Unlock()

	return s
}

// Unsubscribe detaches s. No delivery to s begins after it returns; one
// already running, including the one calling Unsubscribe from inside the
// handler, is left to finish. Unsubscribe never blocks on a delivery.
func (t *Topic[T]) Unsubscribe(s *Subscription[T]) {
	if s == nil || s.topic != t {
		return
	}
	s.detached.Store(true)

	t.mu.Lock()
	for i, sub := range t.subs {
		if sub == s {
			t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
			break
		}
	}
	t.mu.Unlock()
}

// Len returns the number of attached subscriptions.
func (t *Topic[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// Publish delivers v to every attached subscription in attach order and
// returns how many handlers were invoked.
func (t *Topic[T]) Publish(v T) int {
	t.mu.RLock()
	subs := make([]*Subscription[T], len(t.subs))
	copy(subs, t.subs)
	t.mu.RUnlock()

	delivered := 0
	for _, s := range subs {
		ok, err := s.deliver(v)
		if !ok {
			continue
		}
		delivered++
		if err != nil && t.onFault != nil {
			t.onFault(Fault{Topic: t.name, Subscription: s.id, Err: err})
		}
	}
	return delivered
}

// Subscription is one handler attached to a Topic.
type Subscription[T any] struct {
	id    string
	topic *Topic[T]
	fn    Handler[T]

	detached atomic.Bool
}

// ID returns the unique subscription identifier.
func (s *Subscription[T]) ID() string {
	return s.id
}

// Unsubscribe detaches the subscription from its topic.
func (s *Subscription[T]) Unsubscribe() {
	s.topic.Unsubscribe(s)
}

func (s *Subscription[T]) deliver(v T) (ok bool, err error) {
	if s.detached.Load() {
		return false, nil
	}

	ok = true
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return ok, s.fn(v)
}
