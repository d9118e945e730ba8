package store

import (
	"encoding/json"
	"time"
)

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Canvas keeps meta and blocks as the JSON the client sent; the store does
// not interpret them.
type Canvas struct {
	ID        string
	UserID    string
	Title     string
	Meta      json.RawMessage
	Blocks    json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

type SurveyResponse struct {
	ID        string
	UserID    string
	Payload   json.RawMessage
	CreatedAt time.Time
}

type Consent struct {
	ID             string
	UserID         string
	Accepted       bool
	ConsentVersion string
	SurveyVersion  string
	Metadata       json.RawMessage
	CreatedAt      time.Time
	RevokedAt      *time.Time
}
