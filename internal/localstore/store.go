package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"srlcanvas/api/internal/canvas"
)

const (
	// LegacyKey is the single pre-scope slot written by older releases.
	LegacyKey = "srl-canvas-storage-v1"
	// KeyPrefix namespaces scoped slots away from LegacyKey.
	KeyPrefix = "srl-canvas-storage-v2"
)

// ScopeKey returns the slot key for scope.
func ScopeKey(scope string) string {
	return KeyPrefix + ":" + scope
}

type persistedSnapshot struct {
	Meta              canvas.Meta       `json:"meta"`
	Blocks            canvas.Dimensions `json:"blocks"`
	DarkMode          bool              `json:"darkMode"`
	RemoteID          *string           `json:"remoteCanvasId"`
	SyncedFingerprint string            `json:"syncedFingerprint,omitempty"`
	UpdatedAt         string            `json:"updatedAt"`
}

// Store reads and writes one canvas snapshot per scope.
type Store struct {
	kv     KV
	policy canvas.Policy
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Store)

func WithPolicy(policy canvas.Policy) Option {
	return func(s *Store) {
		if policy != nil {
			s.policy = policy
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(kv KV, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		policy: canvas.DefaultPolicy{},
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// KV exposes the backend so sibling features can keep their own slots next
// to the canvas snapshots.
func (s *Store) KV() KV {
	return s.kv
}

func (s *Store) Policy() canvas.Policy {
	return s.policy
}

// Read returns the snapshot stored for scope, or nil when the slot is empty,
// unreadable or malformed. It never fails.
func (s *Store) Read(ctx context.Context, scope string) *canvas.Snapshot {
	raw, ok, err := s.kv.Get(ctx, ScopeKey(scope))
	if err != nil {
		s.logger.Warn("read canvas slot failed", "scope", scope, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return s.parseSnapshot(raw)
}

// Write replaces the slot for scope with snapshot. A date that does not
// normalize is stored as today, which is what Read would repair it to.
func (s *Store) Write(ctx context.Context, scope string, snapshot canvas.Snapshot) error {
	payload := persistedSnapshot{
		Meta:              snapshot.Meta,
		Blocks:            snapshot.Dimensions,
		DarkMode:          snapshot.DarkMode,
		SyncedFingerprint: snapshot.SyncedFingerprint,
		UpdatedAt:         snapshot.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if normalized, ok := canvas.NormalizeDate(payload.Meta.Date); ok {
		payload.Meta.Date = normalized
	} else {
		payload.Meta.Date = canvas.FormatDate(s.now())
	}
	if payload.Blocks == nil {
		payload.Blocks = canvas.NewDimensions()
	}
	if id := strings.TrimSpace(snapshot.RemoteID); id != "" {
		payload.RemoteID = &id
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.kv.Set(ctx, ScopeKey(scope), string(encoded)); err != nil {
		return fmt.Errorf("write scope %s: %w", scope, err)
	}
	return nil
}

// Remove deletes the slot for scope.
func (s *Store) Remove(ctx context.Context, scope string) error {
	if err := s.kv.Delete(ctx, ScopeKey(scope)); err != nil {
		return fmt.Errorf("remove scope %s: %w", scope, err)
	}
	return nil
}

// Meaningful applies the configured policy to doc.
func (s *Store) Meaningful(doc canvas.Document) bool {
	return s.policy.Meaningful(doc)
}

// MigrateLegacy moves the legacy single slot into the guest scope, unless the
// guest scope already holds meaningful data, and then deletes the legacy
// slot. It reports whether data was copied. Running it again is a no-op.
func (s *Store) MigrateLegacy(ctx context.Context) (bool, error) {
	raw, ok, err := s.kv.Get(ctx, LegacyKey)
	if err != nil {
		return false, fmt.Errorf("read legacy slot: %w", err)
	}
	if !ok {
		return false, nil
	}

	migrated := false
	if legacy := s.parseLegacy(raw); legacy != nil {
		guest := s.Read(ctx, canvas.GuestScope)
		if guest == nil || !s.policy.Meaningful(guest.Document) {
			if err := s.Write(ctx, canvas.GuestScope, *legacy); err != nil {
				return false, err
			}
			migrated = true
		}
	}

	if err := s.kv.Delete(ctx, LegacyKey); err != nil {
		return migrated, fmt.Errorf("delete legacy slot: %w", err)
	}
	return migrated, nil
}

func (s *Store) parseSnapshot(raw string) *canvas.Snapshot {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil || parsed == nil {
		return nil
	}

	now := s.now()
	doc, ok := canvas.SanitizeDocument(parsed, now)
	if !ok {
		return nil
	}

	snapshot := &canvas.Snapshot{Document: doc, UpdatedAt: now}
	if dark, ok := parsed["darkMode"].(bool); ok {
		snapshot.DarkMode = dark
	}
	if id, ok := parsed["remoteCanvasId"].(string); ok && strings.TrimSpace(id) != "" {
		snapshot.RemoteID = id
	}
	if fingerprint, ok := parsed["syncedFingerprint"].(string); ok {
		snapshot.SyncedFingerprint = fingerprint
	}
	if updated, ok := parsed["updatedAt"].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
			snapshot.UpdatedAt = ts
		}
	}
	return snapshot
}

// parseLegacy reads the {"state": {...}, "version": n} envelope.
func (s *Store) parseLegacy(raw string) *canvas.Snapshot {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil || parsed == nil {
		return nil
	}
	state, ok := parsed["state"].(map[string]any)
	if !ok {
		return nil
	}

	now := s.now()
	doc, ok := canvas.SanitizeDocument(state, now)
	if !ok {
		return nil
	}

	snapshot := &canvas.Snapshot{Document: doc, UpdatedAt: now}
	if dark, ok := state["darkMode"].(bool); ok {
		snapshot.DarkMode = dark
	}
	return snapshot
}
