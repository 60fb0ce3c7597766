package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"ledger/internal/live"
	applog "ledger/internal/log"
)

// DefaultGracePeriod is how long an entry keeps its computation alive after
// the last subscriber detaches.
const DefaultGracePeriod = 5 * time.Second

// ErrStopped is returned by Get when the upstream computation ended before
// producing a value.
var ErrStopped = errors.New("shared computation stopped")

// State is the lifecycle state of a shared entry.
type State int

const (
	Idle State = iota
	Active
	Draining
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Draining:
		return "draining"
	default:
		return "unknown"
	}
}

// Source starts the computation behind a shared entry. The returned channel
// must be closed once ctx is done.
type Source[T any] func(ctx context.Context) (<-chan T, error)

// Options configures shared entries.
type Options struct {
	GracePeriod time.Duration
	Logger      *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.GracePeriod < 0 {
		o.GracePeriod = 0
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Stats is a point-in-time view of an entry, used for diagnostics.
type Stats struct {
	Name        string `json:"name"`
	State       string `json:"state"`
	Subscribers int    `json:"subscribers"`
	Starts      int64  `json:"starts"`
	HasValue    bool   `json:"has_value"`
}

// Shared runs one upstream computation and multicasts its values to every
// subscriber. The computation starts with the first subscriber and stops once
// the entry has had no subscribers for the grace period.
type Shared[T any] struct {
	name   string
	source Source[T]
	grace  time.Duration
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	last     T
	hasLast  bool
	subs     map[uint64]chan T
	nextSub  uint64
	cancel   context.CancelFunc
	gen      uint64
	timer    *time.Timer
	drainSeq uint64
	starts   int64
	err      error
}

// NewShared creates an idle entry. Pass GracePeriod: DefaultGracePeriod for the
// standard teardown delay; zero stops the computation as soon as the last
// subscriber leaves.
func NewShared[T any](name string, source Source[T], opts Options) *Shared[T] {
	opts = opts.withDefaults()
	return &Shared[T]{
		name:   name,
		source: source,
		grace:  opts.GracePeriod,
		logger: opts.Logger.With(applog.FieldComponent, applog.ComponentCache, applog.FieldCacheKey, name),
		subs:   make(map[uint64]chan T),
	}
}

// Subscription is one consumer attached to a shared entry.
type Subscription[T any] struct {
	shared *Shared[T]
	id     uint64
	ch     <-chan T
	once   sync.Once
}

// C delivers the latest value on attach (when one is cached) and every value
// computed afterwards. It is closed by Close or when the upstream fails.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Close detaches the subscription. It never blocks and is safe to call more than once.
func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		s.shared.detach(s.id)
	})
}

// Subscribe attaches a new consumer.
func (e *Shared[T]) Subscribe() *Subscription[T] {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSub
	e.nextSub++
	ch := make(chan T, 1)
	e.subs[id] = ch

	switch e.state {
	case Idle:
		e.start()
	case Draining:
		e.revive()
	}
	if e.hasLast {
		ch <- e.last
	}
	return &Subscription[T]{shared: e, id: id, ch: ch}
}

// Get attaches, waits for the first value and detaches again.
func (e *Shared[T]) Get(ctx context.Context) (T, error) {
	sub := e.Subscribe()
	defer sub.Close()
	return sub.first(ctx)
}

// Err reports why the entry stopped once C has been closed by the upstream.
func (s *Subscription[T]) Err() error {
	return s.shared.Err()
}

// first waits for the next value on the subscription.
func (s *Subscription[T]) first(ctx context.Context) (T, error) {
	var zero T
	select {
	case v, ok := <-s.ch:
		if !ok {
			if err := s.shared.Err(); err != nil {
				return zero, err
			}
			return zero, ErrStopped
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Current returns the cached value without subscribing.
func (e *Shared[T]) Current() (T, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, e.hasLast
}

// Err returns the error that last terminated the upstream computation.
func (e *Shared[T]) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// State returns the current lifecycle state.
func (e *Shared[T]) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Stats returns diagnostics for the entry.
func (e *Shared[T]) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Name:        e.name,
		State:       e.state.String(),
		Subscribers: len(e.subs),
		Starts:      e.starts,
		HasValue:    e.hasLast,
	}
}

// idle reports whether the entry has no computation and no subscribers.
func (e *Shared[T]) idle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == Idle && len(e.subs) == 0
}

func (e *Shared[T]) detach(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch, ok := e.subs[id]
	if !ok {
		return
	}
	delete(e.subs, id)
	close(ch)

	if len(e.subs) == 0 && e.state == Active {
		e.drain()
	}
}

// start must be called with e.mu held.
func (e *Shared[T]) start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.gen++
	e.cancel = cancel
	e.state = Active
	e.starts++
	e.err = nil
	e.logger.Debug("Starting shared computation", applog.FieldStarts, e.starts)
	go e.run(ctx, e.gen)
}

// drain must be called with e.mu held.
func (e *Shared[T]) drain() {
	e.state = Draining
	if e.grace <= 0 {
		e.stop()
		return
	}
	e.drainSeq++
	seq := e.drainSeq
	e.timer = time.AfterFunc(e.grace, func() { e.expire(seq) })
	e.logger.Debug("Shared computation draining", "grace", e.grace)
}

// revive must be called with e.mu held.
func (e *Shared[T]) revive() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.drainSeq++
	e.state = Active
	e.logger.Debug("Shared computation revived during grace period")
}

func (e *Shared[T]) expire(seq uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Draining || e.drainSeq != seq {
		return
	}
	e.stop()
}

// stop must be called with e.mu held.
func (e *Shared[T]) stop() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.gen++
	e.timer = nil
	e.state = Idle
	var zero T
	e.last, e.hasLast = zero, false
	e.logger.Debug("Stopped shared computation")
}

func (e *Shared[T]) run(ctx context.Context, gen uint64) {
	src, err := e.source(ctx)
	if err != nil {
		e.fail(gen, err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-src:
			if !ok {
				e.fail(gen, nil)
				return
			}
			if !e.publish(gen, v) {
				return
			}
		}
	}
}

func (e *Shared[T]) publish(gen uint64, v T) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen {
		return false
	}
	e.last, e.hasLast = v, true
	for _, ch := range e.subs {
		live.Offer(ch, v)
	}
	return true
}

// fail tears the entry down when the upstream ends on its own. Subscribers see
// their channel closed and can inspect Err.
func (e *Shared[T]) fail(gen uint64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen {
		return
	}
	if err != nil {
		e.logger.Error("Shared computation failed", applog.FieldError, err)
	} else {
		e.logger.Warn("Shared computation upstream closed")
		err = ErrStopped
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
	e.stop()
	e.err = err
}

// Derive returns a source that subscribes to parent and maps every value with fn.
// The parent subscription is released when the derived computation stops.
func Derive[T, U any](parent *Shared[T], fn func(T) U) Source[U] {
	return func(ctx context.Context) (<-chan U, error) {
		sub := parent.Subscribe()
		go func() {
			<-ctx.Done()
			sub.Close()
		}()
		return live.Map(ctx, sub.C(), fn), nil
	}
}
