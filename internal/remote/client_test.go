package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"srlcanvas/api/internal/canvas"
)

func TestClientSignInKeepsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/signin", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "eva@example.com", body["email"])
		_ = json.NewEncoder(w).Encode(map[string]any{"accessToken": "tok-1", "userId": "user-1", "userName": "Eva"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	session, err := client.SignIn(context.Background(), "eva@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "user-1", session.UserID)
	assert.Equal(t, "tok-1", client.Token())
}

func TestClientListAndUpsert(t *testing.T) {
	updated := time.Date(2026, time.February, 12, 10, 0, 0, 0, time.UTC)
	var upserted UpsertInput

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]any{"items": []Canvas{{
				ID:         "c-1",
				UserID:     "user-1",
				Title:      "AGRODATA",
				Meta:       canvas.Meta{Subject: "AGRODATA", Evaluator: "Eva", Date: "2026-02-12"},
				Dimensions: canvas.NewDimensions(),
				UpdatedAt:  updated,
			}}})
		case http.MethodPost:
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&upserted))
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(Canvas{ID: "c-2", UserID: upserted.UserID, Title: "AGRODATA", Meta: upserted.Meta, Dimensions: upserted.Dimensions, UpdatedAt: updated})
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithToken("tok-1"))
	ctx := context.Background()

	records, err := client.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "AGRODATA", records[0].Meta.Subject)
	assert.Len(t, records[0].Dimensions, canvas.DimensionCount)
	assert.True(t, updated.Equal(records[0].UpdatedAt))

	score := 7
	dims := canvas.NewDimensions()
	dims[4] = canvas.DimensionState{Score: &score}
	saved, err := client.Upsert(ctx, UpsertInput{UserID: "user-1", Meta: canvas.Meta{Subject: "AGRODATA"}, Dimensions: dims})
	require.NoError(t, err)
	assert.Equal(t, "c-2", saved.ID)
	assert.Empty(t, upserted.ID)
	require.NotNil(t, upserted.Dimensions[4].Score)
	assert.Equal(t, 7, *upserted.Dimensions[4].Score)
}

func TestClientRepairsMalformedRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items": [
			{"id": "c-1", "userId": "user-1", "meta": {"startup": "Acme", "evaluator": 3, "date": "12/02/2026"},
			 "blocks": {"1": {"score": 4.5}, "2": {"score": 6, "notes": "ok"}, "x": {"score": 1}, "99": {}},
			 "updatedAt": "2026-02-12T10:00:00Z"},
			{"id": 42, "meta": {}},
			{"id": "c-3", "meta": "broken", "blocks": [], "updatedAt": "2026-02-10T08:00:00Z"}
		]}`))
	}))
	defer srv.Close()

	records, err := NewClient(srv.URL, WithToken("tok")).ListByUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "Acme", first.Meta.Subject)
	assert.Empty(t, first.Meta.Evaluator)
	assert.Equal(t, "2026-02-12", first.Meta.Date)
	assert.Len(t, first.Dimensions, canvas.DimensionCount)
	assert.Nil(t, first.Dimensions[1].Score)
	require.NotNil(t, first.Dimensions[2].Score)
	assert.Equal(t, 6, *first.Dimensions[2].Score)

	second := records[1]
	assert.Equal(t, "c-3", second.ID)
	assert.Equal(t, "2026-02-10", second.Meta.Date)
	assert.Len(t, second.Dimensions, canvas.DimensionCount)
}

func TestClientRejectsForeignRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []Canvas{{ID: "c-1", UserID: "user-2"}}})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, WithToken("tok")).ListByUser(context.Background(), "user-1")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer expired" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"code": "UNAUTHORIZED", "error": "Unauthorized"})
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"code": "VALIDATION_FAILED", "error": "meta.date is invalid"})
	}))
	defer srv.Close()

	ctx := context.Background()

	_, err := NewClient(srv.URL).ListByUser(ctx, "user-1")
	assert.ErrorIs(t, err, ErrUnauthorized, "no token never reaches the server")

	_, err = NewClient(srv.URL, WithToken("expired")).ListByUser(ctx, "user-1")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = NewClient(srv.URL, WithToken("tok")).Upsert(ctx, UpsertInput{UserID: "user-1"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "VALIDATION_FAILED", apiErr.Code)
	assert.Contains(t, err.Error(), "meta.date is invalid")

	_, err = NewClient("").ListByUser(ctx, "user-1")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestClientConsentRoundTrip(t *testing.T) {
	var revoked bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/survey/consent", r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]any{"consent": nil})
		case http.MethodPost:
			var in AcceptConsentInput
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(Consent{ID: "consent-1", Accepted: true, ConsentVersion: in.ConsentVersion})
		case http.MethodDelete:
			revoked = true
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithToken("tok"))
	ctx := context.Background()

	status, err := client.ConsentStatus(ctx)
	require.NoError(t, err)
	assert.Nil(t, status)

	consent, err := client.AcceptConsent(ctx, AcceptConsentInput{ConsentVersion: "tcle_v1"})
	require.NoError(t, err)
	assert.Equal(t, "consent-1", consent.ID)
	assert.Equal(t, "tcle_v1", consent.ConsentVersion)

	require.NoError(t, client.RevokeConsent(ctx))
	assert.True(t, revoked)
}

func TestLatest(t *testing.T) {
	base := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	records := []Canvas{
		{ID: "old", UpdatedAt: base},
		{ID: "new", UpdatedAt: base.Add(time.Hour)},
		{ID: "mid", UpdatedAt: base.Add(time.Minute)},
	}
	require.NotNil(t, Latest(records))
	assert.Equal(t, "new", Latest(records).ID)
	assert.Nil(t, Latest(nil))
}

func TestClientSignOutForgetsToken(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/api/session/logout", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithToken("tok-1"))
	require.NoError(t, client.SignOut(context.Background()))
	assert.Empty(t, client.Token())

	require.NoError(t, client.SignOut(context.Background()))
	assert.Equal(t, 1, calls)
}
