package app

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"srlcanvas/api/internal/config"
	"srlcanvas/api/internal/store"
)

type fakeStore struct {
	mu        sync.Mutex
	users     map[string]store.User
	canvases  map[string]store.Canvas
	responses []store.SurveyResponse
	consents  []store.Consent
	clock     time.Time

	pingFn   func(context.Context) error
	upsertFn func(context.Context, store.Canvas) (store.Canvas, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]store.User),
		canvases: make(map[string]store.Canvas),
		clock:    time.Date(2025, 11, 28, 9, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeStore) CreateUser(_ context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == user.Email {
			return store.ErrEmailTaken
		}
	}
	user.CreatedAt = f.tick()
	user.UpdatedAt = user.CreatedAt
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) UpdateUserPassword(_ context.Context, id, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	user.PasswordHash = hash
	f.users[id] = user
	return nil
}

func (f *fakeStore) ListCanvasesByUser(_ context.Context, userID string) ([]store.Canvas, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Canvas
	for _, item := range f.canvases {
		if item.UserID == userID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (f *fakeStore) UpsertCanvas(ctx context.Context, item store.Canvas) (store.Canvas, error) {
	if f.upsertFn != nil {
		return f.upsertFn(ctx, item)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.tick()
	if existing, ok := f.canvases[item.ID]; ok {
		if existing.UserID != item.UserID {
			return store.Canvas{}, store.ErrCanvasOwnership
		}
		item.CreatedAt = existing.CreatedAt
	} else {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	f.canvases[item.ID] = item
	return item, nil
}

func (f *fakeStore) InsertSurveyResponse(_ context.Context, item store.SurveyResponse) (store.SurveyResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.CreatedAt = f.tick()
	f.responses = append(f.responses, item)
	return item, nil
}

func (f *fakeStore) LatestConsent(_ context.Context, userID string) (store.Consent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.consents) - 1; i >= 0; i-- {
		if f.consents[i].UserID == userID {
			return f.consents[i], nil
		}
	}
	return store.Consent{}, sql.ErrNoRows
}

func (f *fakeStore) InsertConsent(_ context.Context, item store.Consent) (store.Consent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.CreatedAt = f.tick()
	f.consents = append(f.consents, item)
	return item, nil
}

func (f *fakeStore) RevokeConsent(_ context.Context, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.consents) - 1; i >= 0; i-- {
		consent := &f.consents[i]
		if consent.UserID == userID && consent.Accepted && consent.RevokedAt == nil {
			revokedAt := f.tick()
			consent.RevokedAt = &revokedAt
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func newTestService(fs *fakeStore) *Service {
	svc := NewService(config.Config{JWTSecret: "test-secret", AccessTTL: time.Hour}, fs)
	svc.passwords.WithCost(bcrypt.MinCost)
	return svc
}
