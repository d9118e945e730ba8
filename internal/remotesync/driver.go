// Package remotesync pushes the active canvas to the remote store after
// edits settle, creating the remote record once and updating it afterwards.
package remotesync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"srlcanvas/api/internal/canvas"
	"srlcanvas/api/internal/remote"
	"srlcanvas/api/internal/session"
)

// DefaultDelay is the quiet period before a push.
const DefaultDelay = 800 * time.Millisecond

var (
	pushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "srlcanvas_remote_push_total",
		Help: "Remote canvas pushes by operation and result",
	}, []string{"operation", "result"})

	pushSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "srlcanvas_remote_push_skipped_total",
		Help: "Canvas changes that did not schedule a push, by reason",
	}, []string{"reason"})

	pushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "srlcanvas_remote_push_duration_seconds",
		Help:    "Remote canvas push latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	})
)

type State string

const (
	StateIdle   State = "idle"
	StateSaving State = "saving"
	StateSaved  State = "saved"
	StateError  State = "error"
)

type Status struct {
	State   State
	Message string
	At      time.Time
}

// Source is the side of the session manager the driver reads from and
// records accepted pushes in.
type Source interface {
	Active() canvas.Snapshot
	Scope() string
	MarkSynced(ctx context.Context, scope, id, fingerprint string) error
}

type Driver struct {
	remote  remote.Store
	source  Source
	policy  canvas.Policy
	delay   time.Duration
	timeout time.Duration
	logger  *slog.Logger

	mu              sync.Mutex
	identity        session.Identity
	scope           string
	epoch           uint64
	pending         *task
	lastFingerprint string
	creating        bool
	recheck         bool
	stopped         bool
	status          Status
	inflight        sync.WaitGroup
}

type task struct {
	timer *time.Timer
}

type Option func(*Driver)

func WithDelay(delay time.Duration) Option {
	return func(d *Driver) {
		if delay >= 0 {
			d.delay = delay
		}
	}
}

// WithTimeout bounds a single remote write.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Driver) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

func WithPolicy(policy canvas.Policy) Option {
	return func(d *Driver) {
		if policy != nil {
			d.policy = policy
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func New(store remote.Store, source Source, opts ...Option) *Driver {
	d := &Driver{
		remote:  store,
		source:  source,
		policy:  canvas.DefaultPolicy{},
		delay:   DefaultDelay,
		timeout: 15 * time.Second,
		logger:  slog.Default(),
		status:  Status{State: StateIdle},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Attach subscribes the driver to m and returns the unsubscribe function.
func Attach(m *session.Manager, store remote.Store, opts ...Option) (*Driver, func()) {
	d := New(store, m, opts...)
	return d, m.Subscribe(d.Handle)
}

// Handle reacts to session events. A load resets the driver for the new
// scope and schedules a push of the loaded content unless it is what the
// remote store already holds; a change schedules a push of the new content.
func (d *Driver) Handle(ev session.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	switch ev.Kind {
	case session.EventLoaded:
		d.cancelLocked()
		d.epoch++
		d.identity = ev.Identity
		d.scope = ev.Scope
		d.lastFingerprint = ev.Snapshot.SyncedFingerprint
		d.recheck = false
		d.status = Status{State: StateIdle}
	case session.EventChanged:
		if ev.Scope != d.scope {
			return
		}
	}
	d.scheduleLocked(ev.Snapshot)
}

func (d *Driver) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Stop cancels any pending push; results of pushes already in flight are
// dropped.
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.epoch++
	d.cancelLocked()
}

// Flush runs a pending push immediately and waits for in-flight pushes to
// finish or ctx to end.
func (d *Driver) Flush(ctx context.Context) error {
	for i := 0; i < 3; i++ {
		d.mu.Lock()
		t := d.pending
		if t != nil {
			t.timer.Stop()
		}
		d.mu.Unlock()
		// fire is a no-op for whichever caller loses the race with the timer
		if t != nil {
			d.fire(ctx, t)
		}

		if err := d.wait(ctx); err != nil {
			return err
		}

		d.mu.Lock()
		idle := d.pending == nil
		d.mu.Unlock()
		if idle {
			return nil
		}
	}
	return nil
}

func (d *Driver) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Driver) enabledLocked() bool {
	return d.identity.Authenticated() && d.scope != "" && d.scope != canvas.GuestScope && d.remote != nil
}

func (d *Driver) scheduleLocked(snapshot canvas.Snapshot) {
	if !d.enabledLocked() {
		return
	}
	if !d.policy.Meaningful(snapshot.Document) {
		pushSkipped.WithLabelValues("empty").Inc()
		return
	}
	if snapshot.Fingerprint() == d.lastFingerprint {
		pushSkipped.WithLabelValues("unchanged").Inc()
		return
	}
	if snapshot.RemoteID == "" && d.creating {
		d.recheck = true
		pushSkipped.WithLabelValues("create_in_flight").Inc()
		return
	}

	d.cancelLocked()
	t := &task{}
	t.timer = time.AfterFunc(d.delay, func() {
		d.fire(context.Background(), t)
	})
	d.pending = t
}

func (d *Driver) cancelLocked() {
	if d.pending != nil {
		d.pending.timer.Stop()
		d.pending = nil
	}
}

// fire pushes the latest active content. It reads the source again rather
// than using the snapshot that scheduled it, so only the settled state is
// written.
func (d *Driver) fire(ctx context.Context, t *task) {
	d.mu.Lock()
	if d.stopped || d.pending != t {
		d.mu.Unlock()
		return
	}
	d.pending = nil

	scope := d.scope
	if d.source.Scope() != scope || !d.enabledLocked() {
		d.mu.Unlock()
		return
	}
	snapshot := d.source.Active()
	fingerprint := snapshot.Fingerprint()
	if !d.policy.Meaningful(snapshot.Document) || fingerprint == d.lastFingerprint {
		d.mu.Unlock()
		return
	}
	creating := snapshot.RemoteID == ""
	if creating {
		if d.creating {
			d.recheck = true
			d.mu.Unlock()
			return
		}
		d.creating = true
	}
	epoch := d.epoch
	userID := d.identity.UserID
	d.status = Status{State: StateSaving, At: time.Now()}
	d.inflight.Add(1)
	d.mu.Unlock()
	defer d.inflight.Done()

	operation := "update"
	if creating {
		operation = "create"
	}

	pushCtx, cancel := context.WithTimeout(ctx, d.timeout)
	started := time.Now()
	saved, err := d.remote.Upsert(pushCtx, remote.UpsertInput{
		ID:         snapshot.RemoteID,
		UserID:     userID,
		Title:      canvas.Title(snapshot.Meta),
		Meta:       snapshot.Meta,
		Dimensions: snapshot.Dimensions,
	})
	cancel()
	pushDuration.Observe(time.Since(started).Seconds())

	d.mu.Lock()
	if epoch != d.epoch {
		if creating {
			d.creating = false
		}
		d.mu.Unlock()
		pushTotal.WithLabelValues(operation, "dropped").Inc()
		d.logger.Debug("dropping canvas push result", "scope", scope)
		return
	}
	if err != nil {
		if creating {
			d.creating = false
		}
		d.status = Status{State: StateError, Message: err.Error(), At: time.Now()}
		d.recheck = false
		d.mu.Unlock()
		pushTotal.WithLabelValues(operation, "error").Inc()
		d.logger.Warn("canvas push failed", "scope", scope, "operation", operation, "error", err)
		return
	}
	// record the id before releasing the create guard
	if err := d.source.MarkSynced(ctx, scope, saved.ID, fingerprint); err != nil {
		d.logger.Warn("store remote canvas id failed", "scope", scope, "error", err)
	}
	if creating {
		d.creating = false
	}
	d.lastFingerprint = fingerprint
	d.status = Status{State: StateSaved, At: time.Now()}
	recheck := d.recheck
	d.recheck = false
	d.mu.Unlock()
	pushTotal.WithLabelValues(operation, "ok").Inc()

	if recheck {
		latest := d.source.Active()
		d.mu.Lock()
		if epoch == d.epoch && d.source.Scope() == scope {
			d.scheduleLocked(latest)
		}
		d.mu.Unlock()
	}
}
