package survey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"srlcanvas/api/internal/localstore"
	"srlcanvas/api/internal/remote"
	"srlcanvas/api/internal/util"
)

const (
	ResponsesKey   = "srl-research-survey-responses-v1"
	DraftKeyPrefix = "srl-research-survey-draft-v1"
	ConsentKey     = "srl-research-consent-v1"
)

// Storage names where a submission or consent was recorded.
type Storage string

const (
	StorageRemote Storage = "remote"
	StorageLocal  Storage = "local"
	StorageNone   Storage = "none"
)

// DraftKey returns the draft slot of a user, or of the guest when userID is
// empty.
func DraftKey(userID string) string {
	if strings.TrimSpace(userID) == "" {
		return DraftKeyPrefix + ":guest"
	}
	return DraftKeyPrefix + ":" + userID
}

// Remote is the subset of the API client the survey uses.
type Remote interface {
	SaveSurveyResponse(ctx context.Context, payload map[string]any) (remote.SurveyResponse, error)
	ConsentStatus(ctx context.Context) (*remote.Consent, error)
	AcceptConsent(ctx context.Context, input remote.AcceptConsentInput) (remote.Consent, error)
	RevokeConsent(ctx context.Context) error
}

type Draft struct {
	Values         FormValues `json:"values"`
	NextPath       string     `json:"nextPath"`
	StartedAt      *time.Time `json:"startedAtIso,omitempty"`
	CurrentStepKey string     `json:"currentStepKey,omitempty"`
	UpdatedAt      time.Time  `json:"updatedAt"`

	// MetricsSessionID ties the product metric events of one attempt.
	MetricsSessionID string `json:"metricsSessionId,omitempty"`
}

type StoredResponse struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	Payload   map[string]any `json:"payload"`
}

type Result struct {
	ID      string  `json:"id"`
	Storage Storage `json:"storage"`

	// Eligible and CompletionSeconds are set by Submit.
	Eligible          bool `json:"eligible"`
	CompletionSeconds *int `json:"completionSeconds,omitempty"`
}

type ConsentStatus struct {
	Accepted   bool       `json:"accepted"`
	AcceptedAt *time.Time `json:"acceptedAt,omitempty"`
	Storage    Storage    `json:"storage"`
	ConsentID  string     `json:"consentId,omitempty"`
}

type localConsent struct {
	ConsentVersion string     `json:"consentVersion"`
	AcceptedAt     time.Time  `json:"acceptedAt"`
	RevokedAt      *time.Time `json:"revokedAt"`
}

type Service struct {
	kv            localstore.KV
	remote        Remote
	surveyVersion string
	userAgent     string
	now           func() time.Time
	logger        *slog.Logger
}

type Option func(*Service)

// WithRemote stores submissions and consent remotely for signed-in users.
func WithRemote(r Remote) Option {
	return func(s *Service) { s.remote = r }
}

// WithActiveVersion overrides the survey version recorded on submissions.
func WithActiveVersion(version string) Option {
	return func(s *Service) {
		if v := strings.TrimSpace(version); v != "" {
			s.surveyVersion = v
		}
	}
}

func WithUserAgent(agent string) Option {
	return func(s *Service) { s.userAgent = agent }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(kv localstore.KV, opts ...Option) *Service {
	s := &Service{
		kv:            kv,
		surveyVersion: Version,
		now:           time.Now,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) remoteFor(userID string) Remote {
	if s.remote == nil || strings.TrimSpace(userID) == "" {
		return nil
	}
	return s.remote
}

// LoadDraft returns the saved draft, or nil. An unreadable draft is removed.
func (s *Service) LoadDraft(ctx context.Context, userID string) (*Draft, error) {
	key := DraftKey(userID)
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read survey draft: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var draft Draft
	if err := json.Unmarshal([]byte(raw), &draft); err != nil {
		s.logger.Warn("discarding unreadable survey draft", "key", key, "error", err)
		if err := s.kv.Delete(ctx, key); err != nil {
			return nil, fmt.Errorf("remove survey draft: %w", err)
		}
		return nil, nil
	}
	return &draft, nil
}

func (s *Service) SaveDraft(ctx context.Context, userID string, draft Draft) error {
	draft.UpdatedAt = s.now().UTC()
	encoded, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("encode survey draft: %w", err)
	}
	if err := s.kv.Set(ctx, DraftKey(userID), string(encoded)); err != nil {
		return fmt.Errorf("write survey draft: %w", err)
	}
	return nil
}

func (s *Service) ClearDraft(ctx context.Context, userID string) error {
	if err := s.kv.Delete(ctx, DraftKey(userID)); err != nil {
		return fmt.Errorf("remove survey draft: %w", err)
	}
	return nil
}

// Submit builds the payload and stores it remotely for signed-in users with
// a remote configured, otherwise at the head of the local response list.
func (s *Service) Submit(ctx context.Context, userID string, values FormValues, nextPath string, startedAt *time.Time) (Result, error) {
	payload, err := BuildPayload(PayloadInput{
		UserID:        userID,
		Values:        values,
		NextPath:      nextPath,
		StartedAt:     startedAt,
		SubmittedAt:   s.now(),
		SurveyVersion: s.surveyVersion,
		UserAgent:     s.userAgent,
	})
	if err != nil {
		return Result{}, err
	}
	record, err := payloadMap(payload)
	if err != nil {
		return Result{}, err
	}

	if r := s.remoteFor(userID); r != nil {
		saved, err := r.SaveSurveyResponse(ctx, record)
		if err != nil {
			return Result{}, fmt.Errorf("submit survey: %w", err)
		}
		return Result{ID: saved.ID, Storage: StorageRemote, Eligible: payload.Eligible, CompletionSeconds: payload.Metadata.CompletionSeconds}, nil
	}

	responses, err := s.LocalResponses(ctx)
	if err != nil {
		return Result{}, err
	}
	entry := StoredResponse{ID: util.NewID(""), CreatedAt: s.now().UTC(), Payload: record}
	responses = append([]StoredResponse{entry}, responses...)
	encoded, err := json.Marshal(responses)
	if err != nil {
		return Result{}, fmt.Errorf("encode survey responses: %w", err)
	}
	if err := s.kv.Set(ctx, ResponsesKey, string(encoded)); err != nil {
		return Result{}, fmt.Errorf("write survey responses: %w", err)
	}
	return Result{ID: entry.ID, Storage: StorageLocal, Eligible: payload.Eligible, CompletionSeconds: payload.Metadata.CompletionSeconds}, nil
}

// LocalResponses returns locally stored submissions, newest first. An
// unreadable list reads as empty.
func (s *Service) LocalResponses(ctx context.Context) ([]StoredResponse, error) {
	raw, ok, err := s.kv.Get(ctx, ResponsesKey)
	if err != nil {
		return nil, fmt.Errorf("read survey responses: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var responses []StoredResponse
	if err := json.Unmarshal([]byte(raw), &responses); err != nil {
		s.logger.Warn("ignoring unreadable survey responses", "error", err)
		return nil, nil
	}
	return responses, nil
}

func (s *Service) ConsentStatus(ctx context.Context, userID string) (ConsentStatus, error) {
	if r := s.remoteFor(userID); r != nil {
		consent, err := r.ConsentStatus(ctx)
		if err != nil {
			return ConsentStatus{}, fmt.Errorf("consent status: %w", err)
		}
		if consent == nil || !consent.Accepted || consent.RevokedAt != nil {
			return ConsentStatus{Storage: StorageNone}, nil
		}
		acceptedAt := consent.CreatedAt
		return ConsentStatus{Accepted: true, AcceptedAt: &acceptedAt, Storage: StorageRemote, ConsentID: consent.ID}, nil
	}

	local, err := s.readLocalConsent(ctx)
	if err != nil {
		return ConsentStatus{}, err
	}
	if local == nil || local.RevokedAt != nil {
		return ConsentStatus{Storage: StorageNone}, nil
	}
	acceptedAt := local.AcceptedAt
	return ConsentStatus{Accepted: true, AcceptedAt: &acceptedAt, Storage: StorageLocal, ConsentID: "local"}, nil
}

func (s *Service) AcceptConsent(ctx context.Context, userID, nextPath string) (Result, error) {
	now := s.now().UTC()
	if r := s.remoteFor(userID); r != nil {
		saved, err := r.AcceptConsent(ctx, remote.AcceptConsentInput{
			ConsentVersion: ConsentVersion,
			SurveyVersion:  Version,
			Metadata: map[string]any{
				"next_path":          nextPath,
				"accepted_at_client": now.Format(isoMillis),
				"source_route":       "/survey/consent",
				"user_agent":         s.agent(),
			},
		})
		if err != nil {
			return Result{}, fmt.Errorf("accept consent: %w", err)
		}
		return Result{ID: saved.ID, Storage: StorageRemote}, nil
	}

	if err := s.writeLocalConsent(ctx, localConsent{ConsentVersion: ConsentVersion, AcceptedAt: now}); err != nil {
		return Result{}, err
	}
	return Result{ID: now.Format(isoMillis), Storage: StorageLocal}, nil
}

// RevokeConsent withdraws the latest consent. Without one it does nothing.
func (s *Service) RevokeConsent(ctx context.Context, userID string) error {
	if r := s.remoteFor(userID); r != nil {
		if err := r.RevokeConsent(ctx); err != nil {
			return fmt.Errorf("revoke consent: %w", err)
		}
		return nil
	}

	local, err := s.readLocalConsent(ctx)
	if err != nil || local == nil {
		return err
	}
	revokedAt := s.now().UTC()
	local.RevokedAt = &revokedAt
	return s.writeLocalConsent(ctx, *local)
}

func (s *Service) readLocalConsent(ctx context.Context) (*localConsent, error) {
	raw, ok, err := s.kv.Get(ctx, ConsentKey)
	if err != nil {
		return nil, fmt.Errorf("read consent: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var consent localConsent
	if err := json.Unmarshal([]byte(raw), &consent); err != nil {
		s.logger.Warn("ignoring unreadable consent", "error", err)
		return nil, nil
	}
	return &consent, nil
}

func (s *Service) writeLocalConsent(ctx context.Context, consent localConsent) error {
	encoded, err := json.Marshal(consent)
	if err != nil {
		return fmt.Errorf("encode consent: %w", err)
	}
	if err := s.kv.Set(ctx, ConsentKey, string(encoded)); err != nil {
		return fmt.Errorf("write consent: %w", err)
	}
	return nil
}

func (s *Service) agent() string {
	if s.userAgent == "" {
		return "unknown"
	}
	return s.userAgent
}

// payloadMap converts a payload into the generic JSON object the API stores.
func payloadMap(payload Payload) (map[string]any, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode survey payload: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil, fmt.Errorf("encode survey payload: %w", err)
	}
	if out == nil {
		return nil, errors.New("encode survey payload: empty")
	}
	return out, nil
}
