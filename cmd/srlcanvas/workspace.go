package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"srlcanvas/api/internal/canvas"
	"srlcanvas/api/internal/config"
	"srlcanvas/api/internal/localstore"
	"srlcanvas/api/internal/productmetrics"
	"srlcanvas/api/internal/remote"
	"srlcanvas/api/internal/remotesync"
	"srlcanvas/api/internal/session"
	"srlcanvas/api/internal/survey"
)

const (
	credentialsFile = "credentials.json"
	redisKeyPrefix  = "srlcanvas:"
	userAgent       = "srlcanvas-cli"
)

// credentials is the signed-in session kept between invocations.
type credentials struct {
	AccessToken string `json:"accessToken"`
	UserID      string `json:"userId"`
	UserName    string `json:"userName"`
	ExpiresAt   int64  `json:"expiresAt"`
}

func (c *credentials) valid(now time.Time) bool {
	return c != nil && c.AccessToken != "" && c.UserID != "" && (c.ExpiresAt == 0 || c.ExpiresAt > now.Unix())
}

// workspace wires the stores and services one command runs against.
type workspace struct {
	cfg    config.Config
	logger *slog.Logger
	now    func() time.Time

	kv      localstore.KV
	closeKV func() error

	store   *localstore.Store
	client  *remote.Client
	creds   *credentials
	manager *session.Manager
	driver  *remotesync.Driver
	detach  func()
	survey  *survey.Service
	tracker *productmetrics.Tracker
}

// openWorkspace opens the configured local store and syncs the session.
func openWorkspace(ctx context.Context, cfg config.Config, logger *slog.Logger) (*workspace, error) {
	kv, closeKV, err := openKV(cfg, logger)
	if err != nil {
		return nil, err
	}
	w, err := newWorkspace(ctx, cfg, kv, closeKV, logger, time.Now)
	if err != nil {
		if closeErr := closeKV(); closeErr != nil {
			logger.Warn("closing local store", "error", closeErr)
		}
		return nil, err
	}
	return w, nil
}

func openKV(cfg config.Config, logger *slog.Logger) (localstore.KV, func() error, error) {
	if cfg.RedisURL != "" {
		kv, err := localstore.NewRedisKV(cfg.RedisURL, redisKeyPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis store: %w", err)
		}
		return kv, kv.Close, nil
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	kv, err := localstore.OpenBadgerKV(localstore.BadgerConfig{
		Path:       filepath.Join(cfg.DataDir, "canvas"),
		SyncWrites: true,
		Logger:     logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open local store: %w", err)
	}
	return kv, kv.Close, nil
}

func newWorkspace(ctx context.Context, cfg config.Config, kv localstore.KV, closeKV func() error, logger *slog.Logger, now func() time.Time) (*workspace, error) {
	policy, err := canvas.PolicyFromExpression(cfg.MeaningfulPolicy)
	if err != nil {
		return nil, fmt.Errorf("meaningful policy: %w", err)
	}

	creds, err := readCredentials(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	if creds != nil && !creds.valid(now()) {
		logger.Info("stored session expired", "user", creds.UserID)
		creds = nil
	}

	w := &workspace{
		cfg:     cfg,
		logger:  logger,
		now:     now,
		kv:      kv,
		closeKV: closeKV,
		creds:   creds,
	}
	w.store = localstore.New(kv,
		localstore.WithPolicy(policy),
		localstore.WithClock(now),
		localstore.WithLogger(logger),
	)

	managerOpts := []session.Option{session.WithClock(now), session.WithLogger(logger)}
	surveyOpts := []survey.Option{
		survey.WithActiveVersion(cfg.SurveyActiveVersion),
		survey.WithUserAgent(userAgent),
		survey.WithClock(now),
		survey.WithLogger(logger),
	}
	if cfg.APIURL != "" && cfg.AuthEnabled {
		token := ""
		if creds != nil {
			token = creds.AccessToken
		}
		w.client = remote.NewClient(cfg.APIURL, remote.WithToken(token))
		managerOpts = append(managerOpts, session.WithRemote(w.client))
		surveyOpts = append(surveyOpts, survey.WithRemote(w.client))
	}

	w.manager = session.New(w.store, managerOpts...)
	if w.client != nil {
		w.driver, w.detach = remotesync.Attach(w.manager, w.client,
			remotesync.WithDelay(cfg.SyncDebounce),
			remotesync.WithPolicy(policy),
			remotesync.WithLogger(logger),
		)
	}
	w.survey = survey.NewService(kv, surveyOpts...)
	w.tracker = productmetrics.NewTracker(kv,
		productmetrics.WithEnabled(cfg.ProductMetricsEnabled),
		productmetrics.WithClock(now),
		productmetrics.WithLogger(logger),
	)

	if err := w.manager.Sync(ctx, w.identity()); err != nil {
		// local state stays usable without the remote
		logger.Warn("canvas sync failed", "error", err)
	}
	return w, nil
}

func (w *workspace) identity() session.Identity {
	id := session.Identity{AuthEnabled: w.cfg.AuthEnabled}
	if w.creds != nil {
		id.UserID = w.creds.UserID
	}
	return id
}

// signedInID is the signed-in user, or "" for the guest.
func (w *workspace) signedInID() string {
	if !w.identity().Authenticated() {
		return ""
	}
	return w.creds.UserID
}

func (w *workspace) remoteEnabled() bool {
	return w.client != nil
}

// signIn stores creds and re-syncs so the guest canvas is claimed.
func (w *workspace) signIn(ctx context.Context, creds credentials) error {
	if err := writeCredentials(w.cfg.DataDir, creds); err != nil {
		return err
	}
	w.creds = &creds
	if w.client != nil {
		w.client.SetToken(creds.AccessToken)
	}
	return w.manager.Sync(ctx, w.identity())
}

func (w *workspace) signOut(ctx context.Context) error {
	if w.driver != nil {
		if err := w.driver.Flush(ctx); err != nil {
			w.logger.Warn("flushing canvas before sign-out", "error", err)
		}
	}
	if w.client != nil {
		if err := w.client.SignOut(ctx); err != nil {
			w.logger.Warn("remote sign-out failed", "error", err)
		}
	}
	if err := removeCredentials(w.cfg.DataDir); err != nil {
		return err
	}
	w.creds = nil
	return w.manager.Sync(ctx, w.identity())
}

// Close pushes pending canvas changes and releases the local store.
func (w *workspace) Close(ctx context.Context) error {
	var errs []error
	if w.driver != nil {
		if err := w.driver.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush remote sync: %w", err))
		}
		if status := w.driver.Status(); status.State == remotesync.StateError {
			w.logger.Warn("canvas not saved remotely", "message", status.Message)
		}
		w.detach()
		w.driver.Stop()
	}
	if w.closeKV != nil {
		if err := w.closeKV(); err != nil {
			errs = append(errs, fmt.Errorf("close local store: %w", err))
		}
	}
	return errors.Join(errs...)
}

func readCredentials(dir string) (*credentials, error) {
	raw, err := os.ReadFile(filepath.Join(dir, credentialsFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var creds credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		slog.Warn("ignoring unreadable credentials", "error", err)
		return nil, nil
	}
	return &creds, nil
}

func writeCredentials(dir string, creds credentials) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	raw, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, credentialsFile), raw, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

func removeCredentials(dir string) error {
	err := os.Remove(filepath.Join(dir, credentialsFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func requireWorkspace() (*workspace, error) {
	if ws == nil {
		return nil, errors.New("workspace not open")
	}
	return ws, nil
}
