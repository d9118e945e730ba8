package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"srlcanvas/api/internal/auth"
	"srlcanvas/api/internal/authpw"
	"srlcanvas/api/internal/canvas"
	"srlcanvas/api/internal/config"
	"srlcanvas/api/internal/store"
	"srlcanvas/api/internal/util"
)

// Session is the authenticated caller of a request.
type Session struct {
	Token     string
	UserID    string
	UserName  string
	JTI       string
	ExpiresAt time.Time
}

type dataStore interface {
	authpw.UserStore
	ListCanvasesByUser(context.Context, string) ([]store.Canvas, error)
	UpsertCanvas(context.Context, store.Canvas) (store.Canvas, error)
	InsertSurveyResponse(context.Context, store.SurveyResponse) (store.SurveyResponse, error)
	LatestConsent(context.Context, string) (store.Consent, error)
	InsertConsent(context.Context, store.Consent) (store.Consent, error)
	RevokeConsent(context.Context, string) (bool, error)
	Ping(context.Context) error
}

type Service struct {
	cfg       config.Config
	store     dataStore
	tokens    *auth.Issuer
	passwords *authpw.Service
	denylist  auth.Denylist
}

// NewService keeps revoked tokens in process memory.
func NewService(cfg config.Config, dataStore dataStore) *Service {
	return NewServiceWithDenylist(cfg, dataStore, auth.NewMemoryDenylist())
}

// NewServiceWithDenylist shares token revocation across API instances.
func NewServiceWithDenylist(cfg config.Config, dataStore dataStore, denylist auth.Denylist) *Service {
	return &Service{
		cfg:       cfg,
		store:     dataStore,
		tokens:    auth.NewIssuer(cfg.JWTSecret, cfg.AccessTTL),
		passwords: authpw.NewService(dataStore),
		denylist:  denylist,
	}
}

// CanvasView is the API representation of a stored canvas.
type CanvasView struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Title     string          `json:"title"`
	Meta      json.RawMessage `json:"meta"`
	Blocks    json.RawMessage `json:"blocks"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type SurveyResponseView struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

type ConsentView struct {
	ID             string     `json:"id"`
	Accepted       bool       `json:"accepted"`
	ConsentVersion string     `json:"consentVersion"`
	SurveyVersion  string     `json:"surveyVersion"`
	CreatedAt      time.Time  `json:"createdAt"`
	RevokedAt      *time.Time `json:"revokedAt,omitempty"`
}

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (store.User, error) {
	user, err := s.passwords.SignUp(ctx, req)
	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, store.ErrEmailTaken):
		return store.User{}, domainError(http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
	case errors.Is(err, authpw.ErrMissingFields),
		errors.Is(err, authpw.ErrInvalidEmail),
		errors.Is(err, authpw.ErrWeakPassword):
		return store.User{}, validationError(err.Error(), nil)
	default:
		return store.User{}, err
	}
}

// SignIn checks credentials and issues an access token.
func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (Session, error) {
	user, err := s.passwords.SignIn(ctx, req)
	if err != nil {
		if errors.Is(err, authpw.ErrInvalidCredentials) {
			return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
		}
		return Session{}, err
	}
	return s.issueSession(user)
}

func (s *Service) issueSession(user store.User) (Session, error) {
	token, claims, err := s.tokens.Issue(user.ID, user.DisplayName)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.denylist.IsRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}
	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// Logout revokes the session's token until it expires.
func (s *Service) Logout(ctx context.Context, session Session) error {
	if session.JTI == "" {
		return nil
	}
	return s.denylist.Revoke(ctx, session.JTI, session.ExpiresAt)
}

func (s *Service) ChangePassword(ctx context.Context, session Session, current, next string) error {
	err := s.passwords.ChangePassword(ctx, session.UserID, current, next)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, authpw.ErrWeakPassword):
		return validationError(err.Error(), nil)
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return domainError(http.StatusForbidden, "INVALID_CREDENTIALS", "Current password is incorrect", nil)
	default:
		return err
	}
}

// ListCanvases returns the caller's canvases, most recently updated first.
func (s *Service) ListCanvases(ctx context.Context, session Session) ([]CanvasView, error) {
	items, err := s.store.ListCanvasesByUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	views := make([]CanvasView, 0, len(items))
	for _, item := range items {
		views = append(views, canvasView(item))
	}
	return views, nil
}

// UpsertCanvas creates a canvas when input.ID is empty and updates it
// otherwise. Canvases owned by another user are never touched.
func (s *Service) UpsertCanvas(ctx context.Context, session Session, input CanvasInput) (CanvasView, error) {
	if err := input.validate(); err != nil {
		canvasUpserts.WithLabelValues("invalid").Inc()
		return CanvasView{}, err
	}
	if input.UserID != "" && input.UserID != session.UserID {
		canvasUpserts.WithLabelValues("forbidden").Inc()
		return CanvasView{}, errForbidden
	}

	meta, err := json.Marshal(input.Meta)
	if err != nil {
		return CanvasView{}, fmt.Errorf("encode meta: %w", err)
	}
	blocks, err := json.Marshal(input.Blocks)
	if err != nil {
		return CanvasView{}, fmt.Errorf("encode blocks: %w", err)
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = canvas.Title(canvas.Meta{Subject: input.Meta.Startup})
	}
	id := strings.TrimSpace(input.ID)
	operation := "update"
	if id == "" {
		id = util.NewID("")
		operation = "create"
	}

	saved, err := s.store.UpsertCanvas(ctx, store.Canvas{
		ID:     id,
		UserID: session.UserID,
		Title:  title,
		Meta:   meta,
		Blocks: blocks,
	})
	if err != nil {
		if errors.Is(err, store.ErrCanvasOwnership) {
			canvasUpserts.WithLabelValues("forbidden").Inc()
			return CanvasView{}, errForbidden
		}
		canvasUpserts.WithLabelValues("error").Inc()
		return CanvasView{}, err
	}
	canvasUpserts.WithLabelValues(operation).Inc()
	return canvasView(saved), nil
}

func (s *Service) SaveSurveyResponse(ctx context.Context, session Session, input SurveyResponseInput) (SurveyResponseView, error) {
	if err := requestValidator.Struct(input); err != nil {
		return SurveyResponseView{}, validationError("payload is required", validationDetails(err))
	}
	payload, err := json.Marshal(input.Payload)
	if err != nil {
		return SurveyResponseView{}, fmt.Errorf("encode payload: %w", err)
	}
	saved, err := s.store.InsertSurveyResponse(ctx, store.SurveyResponse{
		ID:      util.NewID(""),
		UserID:  session.UserID,
		Payload: payload,
	})
	if err != nil {
		return SurveyResponseView{}, err
	}
	return SurveyResponseView{
		ID:        saved.ID,
		UserID:    saved.UserID,
		Payload:   saved.Payload,
		CreatedAt: saved.CreatedAt,
	}, nil
}

// ConsentStatus returns the caller's latest consent record, or nil.
func (s *Service) ConsentStatus(ctx context.Context, session Session) (*ConsentView, error) {
	consent, err := s.store.LatestConsent(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	view := consentView(consent)
	return &view, nil
}

func (s *Service) AcceptConsent(ctx context.Context, session Session, input ConsentInput) (ConsentView, error) {
	if err := requestValidator.Struct(input); err != nil {
		return ConsentView{}, validationError("consentVersion and surveyVersion are required", validationDetails(err))
	}
	metadata, err := json.Marshal(input.Metadata)
	if err != nil {
		return ConsentView{}, fmt.Errorf("encode metadata: %w", err)
	}
	saved, err := s.store.InsertConsent(ctx, store.Consent{
		ID:             util.NewID(""),
		UserID:         session.UserID,
		Accepted:       true,
		ConsentVersion: strings.TrimSpace(input.ConsentVersion),
		SurveyVersion:  strings.TrimSpace(input.SurveyVersion),
		Metadata:       metadata,
	})
	if err != nil {
		return ConsentView{}, err
	}
	return consentView(saved), nil
}

// RevokeConsent is idempotent: revoking without an active consent succeeds.
func (s *Service) RevokeConsent(ctx context.Context, session Session) error {
	_, err := s.store.RevokeConsent(ctx, session.UserID)
	return err
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func canvasView(item store.Canvas) CanvasView {
	return CanvasView{
		ID:        item.ID,
		UserID:    item.UserID,
		Title:     item.Title,
		Meta:      item.Meta,
		Blocks:    item.Blocks,
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
}

func consentView(item store.Consent) ConsentView {
	return ConsentView{
		ID:             item.ID,
		Accepted:       item.Accepted,
		ConsentVersion: item.ConsentVersion,
		SurveyVersion:  item.SurveyVersion,
		CreatedAt:      item.CreatedAt,
		RevokedAt:      item.RevokedAt,
	}
}
