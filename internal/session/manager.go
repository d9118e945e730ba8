// Package session owns the active canvas snapshot. It decides which scope is
// active for the current identity, claims guest drafts on sign-in, hydrates
// from the remote store, and writes every mutation through to local storage.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"srlcanvas/api/internal/canvas"
	"srlcanvas/api/internal/history"
	"srlcanvas/api/internal/localstore"
	"srlcanvas/api/internal/remote"
	"srlcanvas/api/internal/score"
)

// Identity is the authentication signal Sync resolves a scope from.
type Identity struct {
	UserID      string
	AuthEnabled bool
}

// Authenticated reports whether the identity selects a user scope.
func (i Identity) Authenticated() bool {
	return i.AuthEnabled && i.UserID != ""
}

// Scope returns the storage scope for the identity.
func (i Identity) Scope() string {
	if i.Authenticated() {
		return i.UserID
	}
	return canvas.GuestScope
}

type EventKind int

const (
	// EventLoaded fires after Sync made a scope active.
	EventLoaded EventKind = iota
	// EventChanged fires after the document content of the active scope changed.
	EventChanged
)

type Event struct {
	Kind     EventKind
	Scope    string
	Identity Identity
	Snapshot canvas.Snapshot
}

type Listener func(Event)

// Manager holds exactly one active snapshot. It is safe for concurrent use.
type Manager struct {
	store  *localstore.Store
	remote remote.Store
	now    func() time.Time
	logger *slog.Logger

	generation atomic.Uint64

	mu        sync.RWMutex
	scope     string
	identity  Identity
	active    canvas.Snapshot
	listeners map[int]Listener
	nextID    int
}

type Option func(*Manager)

// WithRemote enables claim uploads and remote hydration. Without it the
// manager works purely locally.
func WithRemote(store remote.Store) Option {
	return func(m *Manager) {
		m.remote = store
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New returns a manager holding a blank guest document. Call Sync to load
// persisted state.
func New(store *localstore.Store, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		now:       time.Now,
		logger:    slog.Default(),
		scope:     canvas.GuestScope,
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	now := m.now()
	m.active = canvas.Snapshot{Document: canvas.NewDocument(now), UpdatedAt: now}
	return m
}

// Subscribe registers l for load and change events. The returned function
// removes it.
func (m *Manager) Subscribe(l Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// Sync resolves the scope for identity and makes it active. Only the most
// recent call commits; older calls that finish later are discarded. Remote
// failures are logged and never returned.
func (m *Manager) Sync(ctx context.Context, identity Identity) error {
	gen := m.generation.Add(1)

	if _, err := m.store.MigrateLegacy(ctx); err != nil {
		m.logger.Warn("legacy canvas migration failed", "error", err)
	}

	if !identity.Authenticated() {
		return m.load(ctx, gen, canvas.GuestScope, identity)
	}

	userScope := identity.UserID
	userSnapshot := m.store.Read(ctx, userScope)

	if userSnapshot == nil {
		claimed, err := m.claimGuest(ctx, userScope)
		if err != nil {
			return err
		}
		userSnapshot = claimed
	}

	if userSnapshot == nil {
		if err := m.hydrate(ctx, gen, userScope, identity.UserID); err != nil {
			return err
		}
	}

	return m.load(ctx, gen, userScope, identity)
}

func (m *Manager) current(gen uint64) bool {
	return m.generation.Load() == gen
}

// claimGuest moves a meaningful guest draft into userScope and deletes the
// guest slot, so no other user can claim it. The remote upload is best
// effort.
func (m *Manager) claimGuest(ctx context.Context, userScope string) (*canvas.Snapshot, error) {
	guest := m.store.Read(ctx, canvas.GuestScope)
	if guest == nil || !m.store.Meaningful(guest.Document) {
		return nil, nil
	}

	claimed := canvas.Snapshot{
		Document:  guest.Document.Clone(),
		DarkMode:  guest.DarkMode,
		UpdatedAt: m.now(),
	}
	if err := m.store.Write(ctx, userScope, claimed); err != nil {
		return nil, fmt.Errorf("claim guest draft: %w", err)
	}
	if err := m.store.Remove(ctx, canvas.GuestScope); err != nil {
		return nil, fmt.Errorf("claim guest draft: %w", err)
	}
	m.logger.Info("claimed guest canvas draft", "scope", userScope)

	if m.remote == nil {
		return &claimed, nil
	}
	saved, err := m.remote.Upsert(ctx, remote.UpsertInput{
		UserID:     userScope,
		Title:      canvas.Title(claimed.Meta),
		Meta:       claimed.Meta,
		Dimensions: claimed.Dimensions,
	})
	if err != nil {
		m.logger.Warn("upload claimed canvas failed", "scope", userScope, "error", err)
		return &claimed, nil
	}
	fingerprint := claimed.Fingerprint()
	if err := m.MarkSynced(ctx, userScope, saved.ID, fingerprint); err != nil {
		m.logger.Warn("store claimed canvas id failed", "scope", userScope, "error", err)
	}
	claimed.RemoteID = saved.ID
	claimed.SyncedFingerprint = fingerprint
	return &claimed, nil
}

// hydrate copies the newest remote record into userScope. Dark mode stays as
// currently set since it is a local preference.
func (m *Manager) hydrate(ctx context.Context, gen uint64, userScope, userID string) error {
	if m.remote == nil {
		return nil
	}
	records, err := m.remote.ListByUser(ctx, userID)
	if err != nil {
		m.logger.Warn("load remote canvas failed", "scope", userScope, "error", err)
		return nil
	}
	latest := remote.Latest(records)
	if latest == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.current(gen) {
		return nil
	}
	now := m.now()
	doc := canvas.Normalize(canvas.Document{Meta: latest.Meta, Dimensions: latest.Dimensions}, now)
	snapshot := canvas.Snapshot{
		Document:          doc,
		DarkMode:          m.active.DarkMode,
		RemoteID:          latest.ID,
		SyncedFingerprint: doc.Fingerprint(),
		UpdatedAt:         now,
	}
	if err := m.store.Write(ctx, userScope, snapshot); err != nil {
		return fmt.Errorf("write remote canvas: %w", err)
	}
	return nil
}

// load makes scope active, falling back to defaults with the current dark
// mode when the slot is empty, and persists the result. It commits only if
// no newer Sync has started since gen.
func (m *Manager) load(ctx context.Context, gen uint64, scope string, identity Identity) error {
	snapshot := m.store.Read(ctx, scope)

	m.mu.Lock()
	if !m.current(gen) {
		m.mu.Unlock()
		m.logger.Debug("dropping stale canvas sync", "generation", gen, "scope", scope)
		return nil
	}
	now := m.now()
	if snapshot == nil {
		m.active = canvas.Snapshot{Document: canvas.NewDocument(now), DarkMode: m.active.DarkMode}
	} else {
		m.active = *snapshot
	}
	m.scope = scope
	m.identity = identity
	err := m.persistLocked(ctx)
	event := Event{Kind: EventLoaded, Scope: scope, Identity: identity, Snapshot: cloneSnapshot(m.active)}
	listeners := m.listenersLocked()
	m.mu.Unlock()

	notify(listeners, event)
	return err
}

// Active returns a copy of the active snapshot.
func (m *Manager) Active() canvas.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneSnapshot(m.active)
}

func (m *Manager) Scope() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scope
}

func (m *Manager) Identity() Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity
}

// Mutate applies patch to dimension id of the active document.
func (m *Manager) Mutate(ctx context.Context, id canvas.DimensionID, patch canvas.DimensionPatch) error {
	return m.update(ctx, true, func(s *canvas.Snapshot) error {
		doc, err := s.Document.WithDimension(id, patch)
		if err != nil {
			return err
		}
		s.Document = doc
		return nil
	})
}

func (m *Manager) SetMeta(ctx context.Context, patch canvas.MetaPatch) error {
	return m.update(ctx, true, func(s *canvas.Snapshot) error {
		s.Document = s.Document.WithMeta(patch)
		return nil
	})
}

// Reset clears metadata and dimensions. Dark mode and the remote id stay, so
// the next push overwrites the same remote record.
func (m *Manager) Reset(ctx context.Context) error {
	return m.update(ctx, true, func(s *canvas.Snapshot) error {
		s.Document = canvas.NewDocument(m.now())
		return nil
	})
}

func (m *Manager) ToggleDarkMode(ctx context.Context) error {
	return m.update(ctx, false, func(s *canvas.Snapshot) error {
		s.DarkMode = !s.DarkMode
		return nil
	})
}

// Replace swaps in a whole document, for example one picked from history.
// The document is normalized first, so the active canvas keeps exactly the
// catalogue dimensions.
func (m *Manager) Replace(ctx context.Context, doc canvas.Document, remoteID string) error {
	return m.update(ctx, true, func(s *canvas.Snapshot) error {
		s.Document = canvas.Normalize(doc, m.now())
		s.RemoteID = remoteID
		return nil
	})
}

// MarkSynced records that the remote store accepted content with fingerprint
// under id. The fingerprint is persisted so a later process does not push
// the same content again. An empty id keeps the current one. When scope is
// not active the stored slot is updated instead, if it exists. No event
// fires.
func (m *Manager) MarkSynced(ctx context.Context, scope, id, fingerprint string) error {
	apply := func(s *canvas.Snapshot) {
		if id != "" {
			s.RemoteID = id
		}
		s.SyncedFingerprint = fingerprint
	}

	m.mu.Lock()
	if scope == m.scope {
		apply(&m.active)
		err := m.persistLocked(ctx)
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	snapshot := m.store.Read(ctx, scope)
	if snapshot == nil {
		return nil
	}
	apply(snapshot)
	return m.store.Write(ctx, scope, *snapshot)
}

func (m *Manager) Metrics() score.Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return score.Calculate(m.active.Scores())
}

func (m *Manager) Stage() score.Stage {
	return score.StageFromTotal(m.Metrics().Total)
}

func (m *Manager) Validation() canvas.MetaValidation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return canvas.ValidateMeta(m.active.Meta)
}

func (m *Manager) History(records []remote.Canvas) []history.Entry {
	return history.Build(records)
}

func (m *Manager) update(ctx context.Context, content bool, apply func(*canvas.Snapshot) error) error {
	m.mu.Lock()
	next := cloneSnapshot(m.active)
	if err := apply(&next); err != nil {
		m.mu.Unlock()
		return err
	}
	m.active = next
	err := m.persistLocked(ctx)
	event := Event{Kind: EventChanged, Scope: m.scope, Identity: m.identity, Snapshot: cloneSnapshot(m.active)}
	listeners := m.listenersLocked()
	m.mu.Unlock()

	if content {
		notify(listeners, event)
	}
	return err
}

func (m *Manager) persistLocked(ctx context.Context) error {
	m.active.UpdatedAt = m.now()
	if err := m.store.Write(ctx, m.scope, m.active); err != nil {
		m.logger.Error("persist canvas failed", "scope", m.scope, "error", err)
		return fmt.Errorf("persist canvas: %w", err)
	}
	return nil
}

func (m *Manager) listenersLocked() []Listener {
	out := make([]Listener, 0, len(m.listeners))
	for i := 0; i < m.nextID; i++ {
		if l, ok := m.listeners[i]; ok {
			out = append(out, l)
		}
	}
	return out
}

func notify(listeners []Listener, event Event) {
	for _, l := range listeners {
		l(event)
	}
}

func cloneSnapshot(s canvas.Snapshot) canvas.Snapshot {
	s.Document = s.Document.Clone()
	return s
}
