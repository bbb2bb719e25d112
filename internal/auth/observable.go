// Package auth implements the identity observer contract: a local mock provider
// with a fixed demo account and a remote provider backed by an identity service.
package auth

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"riskboard/domain/session"
	"riskboard/internal/metrics"
	"riskboard/ports"
)

// Auth events recorded in metrics
const (
	EventSignIn       = "sign_in"
	EventSignUp       = "sign_up"
	EventSignOut      = "sign_out"
	EventRejected     = "rejected"
	EventPersistError = "persist_error"
)

type subscription struct {
	cb     session.Callback
	active atomic.Bool

	// guarded by observable.mu
	initializing bool
	pending      []session.Session
}

type delivery struct {
	value   session.Session
	targets []*subscription
}

// observable owns the current session, its subscribers and the delivery queue.
// Deliveries are drained by one goroutine at a time in FIFO order; a notification
// raised while a delivery is running (including from inside a callback) is queued
// and delivered by the running dispatcher once the current delivery completes.
// The initial delivery of Subscribe bypasses the queue; changes committed while it
// runs are held on the subscription and replayed after it, in order.
type observable struct {
	mu          sync.Mutex
	current     session.Session
	subs        []*subscription
	queue       []delivery
	dispatching bool

	store   ports.CredentialStore
	metrics metrics.Recorder
	logger  *slog.Logger
}

func newObservable(ctx context.Context, store ports.CredentialStore, recorder metrics.Recorder, logger *slog.Logger) *observable {
	o := &observable{
		store:   store,
		metrics: recorder,
		logger:  logger,
	}

	id, err := store.Load(ctx)
	if err != nil {
		logger.Warn("failed to restore persisted session", "error", err)
	} else if !id.IsEmpty() {
		o.current = session.Session{Identity: id}
		logger.Info("restored persisted session", "identity", id)
	}
	return o
}

// Subscribe registers cb and delivers the current session to it before returning,
// including when called from inside another subscriber's callback.
func (o *observable) Subscribe(cb session.Callback) func() {
	sub := &subscription{cb: cb, initializing: true}
	sub.active.Store(true)

	o.mu.Lock()
	o.subs = append(o.subs, sub)
	value := o.current
	o.mu.Unlock()

	for {
		o.invoke(sub, value)

		o.mu.Lock()
		if len(sub.pending) == 0 {
			sub.initializing = false
			o.mu.Unlock()
			break
		}
		value = sub.pending[0]
		sub.pending = sub.pending[1:]
		o.mu.Unlock()
	}

	var once sync.Once
	return func() {
		once.Do(func() { o.remove(sub) })
	}
}

// Current returns the in-memory session.
func (o *observable) Current() session.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// commit replaces the session, persists it in the same critical section and
// notifies every subscriber. Persistence errors are logged, never returned.
func (o *observable) commit(ctx context.Context, next session.Session) {
	o.mu.Lock()
	o.current = next

	var err error
	if next.SignedIn() {
		err = o.store.Save(ctx, next.Identity)
	} else {
		err = o.store.Clear(ctx)
	}
	if err != nil {
		o.metrics.RecordAuthEvent(EventPersistError)
		o.logger.Warn("failed to persist session", "signed_in", next.SignedIn(), "error", err)
	}

	targets := make([]*subscription, len(o.subs))
	copy(targets, o.subs)
	o.queue = append(o.queue, delivery{value: next, targets: targets})
	o.mu.Unlock()

	o.drain()
}

func (o *observable) drain() {
	o.mu.Lock()
	if o.dispatching {
		o.mu.Unlock()
		return
	}
	o.dispatching = true

	for len(o.queue) > 0 {
		d := o.queue[0]
		o.queue = o.queue[1:]
		o.mu.Unlock()

		for _, sub := range d.targets {
			if sub.active.Load() {
				o.deliver(sub, d.value)
			}
		}

		o.mu.Lock()
	}

	o.dispatching = false
	o.mu.Unlock()
}

// deliver invokes sub, or holds value for it while its initial delivery is running
func (o *observable) deliver(sub *subscription, value session.Session) {
	o.mu.Lock()
	if sub.initializing {
		sub.pending = append(sub.pending, value)
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()
	o.invoke(sub, value)
}

func (o *observable) invoke(sub *subscription, value session.Session) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("session subscriber panicked", "panic", r)
		}
	}()
	sub.cb(value)
}

func (o *observable) remove(sub *subscription) {
	sub.active.Store(false)

	o.mu.Lock()
	defer o.mu.Unlock()
	for i, s := range o.subs {
		if s == sub {
			o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
			return
		}
	}
}

// subscriberCount is used by tests.
func (o *observable) subscriberCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs)
}
