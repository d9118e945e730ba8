package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTestStore(t *testing.T) (*PostgresStore, context.Context) {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("SRL_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("SRL_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := resetPublicSchema(ctx, db); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if _, err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgresStore(db), ctx
}

func TestCanvasUpsertAndOwnershipPostgres(t *testing.T) {
	s, ctx := openTestStore(t)

	for _, user := range []User{
		{ID: "user-1", DisplayName: "Eva", Email: "eva@example.com", PasswordHash: "x"},
		{ID: "user-2", DisplayName: "Rui", Email: "rui@example.com", PasswordHash: "x"},
	} {
		if err := s.CreateUser(ctx, user); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	if err := s.CreateUser(ctx, User{ID: "user-3", DisplayName: "Dup", Email: "EVA@example.com", PasswordHash: "x"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	first, err := s.UpsertCanvas(ctx, Canvas{
		ID:     "cnv-1",
		UserID: "user-1",
		Title:  "AGRODATA",
		Meta:   json.RawMessage(`{"startup":"AGRODATA","evaluator":"Eva","date":"2026-02-12"}`),
		Blocks: json.RawMessage(`{"1":{"score":3,"notes":"","evidence":""}}`),
	})
	if err != nil {
		t.Fatalf("insert canvas: %v", err)
	}
	if first.UpdatedAt.IsZero() {
		t.Fatal("expected server-assigned updated_at")
	}

	updated, err := s.UpsertCanvas(ctx, Canvas{
		ID:     "cnv-1",
		UserID: "user-1",
		Title:  "AGRODATA v2",
		Meta:   first.Meta,
		Blocks: json.RawMessage(`{"1":{"score":5,"notes":"","evidence":""}}`),
	})
	if err != nil {
		t.Fatalf("update canvas: %v", err)
	}
	if updated.Title != "AGRODATA v2" || updated.UpdatedAt.Before(first.UpdatedAt) {
		t.Fatalf("unexpected update result: %+v", updated)
	}

	if _, err := s.UpsertCanvas(ctx, Canvas{ID: "cnv-1", UserID: "user-2", Title: "stolen", Meta: first.Meta, Blocks: first.Blocks}); !errors.Is(err, ErrCanvasOwnership) {
		t.Fatalf("expected ErrCanvasOwnership, got %v", err)
	}

	items, err := s.ListCanvasesByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("list canvases: %v", err)
	}
	if len(items) != 1 || items[0].Title != "AGRODATA v2" {
		t.Fatalf("unexpected canvases: %+v", items)
	}
	others, err := s.ListCanvasesByUser(ctx, "user-2")
	if err != nil || len(others) != 0 {
		t.Fatalf("expected no canvases for user-2, got %d err=%v", len(others), err)
	}
}

func TestConsentLifecyclePostgres(t *testing.T) {
	s, ctx := openTestStore(t)
	if err := s.CreateUser(ctx, User{ID: "user-1", DisplayName: "Eva", Email: "eva@example.com", PasswordHash: "x"}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	if _, err := s.LatestConsent(ctx, "user-1"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}

	if _, err := s.InsertConsent(ctx, Consent{ID: "consent-1", UserID: "user-1", Accepted: true, ConsentVersion: "tcle_v1"}); err != nil {
		t.Fatalf("insert consent: %v", err)
	}
	latest, err := s.LatestConsent(ctx, "user-1")
	if err != nil || !latest.Accepted || latest.RevokedAt != nil {
		t.Fatalf("unexpected consent: %+v err=%v", latest, err)
	}

	revoked, err := s.RevokeConsent(ctx, "user-1")
	if err != nil || !revoked {
		t.Fatalf("expected revoke, got %v err=%v", revoked, err)
	}
	latest, err = s.LatestConsent(ctx, "user-1")
	if err != nil || latest.RevokedAt == nil {
		t.Fatalf("expected revoked consent, got %+v err=%v", latest, err)
	}

	revoked, err = s.RevokeConsent(ctx, "user-1")
	if err != nil || revoked {
		t.Fatalf("expected nothing to revoke, got %v err=%v", revoked, err)
	}

	if _, err := s.InsertSurveyResponse(ctx, SurveyResponse{ID: "resp-1", UserID: "user-1", Payload: json.RawMessage(`{"is_eligible":true}`)}); err != nil {
		t.Fatalf("insert survey response: %v", err)
	}
}
