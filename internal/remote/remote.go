// Package remote describes the durable canvas store the client reconciles
// with, and implements it over the HTTP API.
package remote

import (
	"context"
	"errors"
	"time"

	"srlcanvas/api/internal/canvas"
)

var (
	ErrUnauthorized  = errors.New("remote: unauthorized")
	ErrNotConfigured = errors.New("remote: not configured")
)

// Canvas is one persisted canvas record.
type Canvas struct {
	ID         string            `json:"id"`
	UserID     string            `json:"userId,omitempty"`
	Title      string            `json:"title"`
	Meta       canvas.Meta       `json:"meta"`
	Dimensions canvas.Dimensions `json:"blocks"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// UpsertInput creates a record when ID is empty and updates it otherwise.
// A blank Title is derived from Meta.
type UpsertInput struct {
	ID         string            `json:"id,omitempty"`
	UserID     string            `json:"userId"`
	Title      string            `json:"title,omitempty"`
	Meta       canvas.Meta       `json:"meta"`
	Dimensions canvas.Dimensions `json:"blocks"`
}

// Store is the contract the session and sync layers depend on. ListByUser
// returns records newest first.
type Store interface {
	ListByUser(ctx context.Context, userID string) ([]Canvas, error)
	Upsert(ctx context.Context, input UpsertInput) (Canvas, error)
}

// Latest returns the most recently updated record, or nil.
func Latest(records []Canvas) *Canvas {
	var latest *Canvas
	for i := range records {
		if latest == nil || records[i].UpdatedAt.After(latest.UpdatedAt) {
			latest = &records[i]
		}
	}
	return latest
}

// SurveyResponse is a stored research survey submission.
type SurveyResponse struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Consent is the latest research consent state of a user.
type Consent struct {
	ID             string     `json:"id"`
	Accepted       bool       `json:"accepted"`
	ConsentVersion string     `json:"consentVersion"`
	SurveyVersion  string     `json:"surveyVersion"`
	CreatedAt      time.Time  `json:"createdAt"`
	RevokedAt      *time.Time `json:"revokedAt,omitempty"`
}

// AcceptConsentInput records a new consent acceptance.
type AcceptConsentInput struct {
	ConsentVersion string         `json:"consentVersion"`
	SurveyVersion  string         `json:"surveyVersion"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Session is the result of signing in.
type Session struct {
	AccessToken string `json:"accessToken"`
	UserID      string `json:"userId"`
	UserName    string `json:"userName"`
	ExpiresAt   int64  `json:"expiresAt"`
}
