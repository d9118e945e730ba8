package productmetrics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"srlcanvas/api/internal/localstore"
	"srlcanvas/api/internal/util"
)

const (
	StorageKey = "srl-product-metrics-v1"
	MaxEvents  = 2000
	// DedupeWindow suppresses a repeat of the last event with the same name,
	// session and payload.
	DedupeWindow = 1200 * time.Millisecond
)

type Event struct {
	ID        string          `json:"id"`
	Name      EventName       `json:"name"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Session returns the sessionId carried in the payload.
func (e Event) Session() string {
	var body struct {
		SessionID string `json:"sessionId"`
	}
	_ = json.Unmarshal(e.Payload, &body)
	return body.SessionID
}

type Tracker struct {
	kv      localstore.KV
	enabled bool
	now     func() time.Time
	logger  *slog.Logger

	mu sync.Mutex
}

type Option func(*Tracker)

func WithEnabled(enabled bool) Option {
	return func(t *Tracker) { t.enabled = enabled }
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func NewTracker(kv localstore.KV, opts ...Option) *Tracker {
	t := &Tracker{kv: kv, enabled: true, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track appends an event unless tracking is disabled or it repeats the last
// event within DedupeWindow. It reports whether the event was recorded.
func (t *Tracker) Track(ctx context.Context, payload Payload) (bool, error) {
	if !t.enabled {
		return false, nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("encode %s payload: %w", payload.Name(), err)
	}
	next := Event{
		ID:        util.NewID("evt"),
		Name:      payload.Name(),
		Timestamp: t.now().UTC(),
		Payload:   body,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	events, err := t.read(ctx)
	if err != nil {
		return false, err
	}
	if duplicateOfLast(events, next) {
		t.logger.Debug("product metric suppressed as duplicate", "name", next.Name, "session", payload.Session())
		return false, nil
	}
	events = append(events, next)
	if err := t.write(ctx, events); err != nil {
		return false, err
	}
	return true, nil
}

func (t *Tracker) Events(ctx context.Context) ([]Event, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.read(ctx)
}

func (t *Tracker) Clear(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.kv.Delete(ctx, StorageKey); err != nil {
		return fmt.Errorf("clear product metrics: %w", err)
	}
	return nil
}

// Report summarizes the stored events.
func (t *Tracker) Report(ctx context.Context) (Report, error) {
	events, err := t.Events(ctx)
	if err != nil {
		return Report{}, err
	}
	return BuildReport(events, t.now()), nil
}

// read drops malformed entries; an unreadable log reads as empty.
func (t *Tracker) read(ctx context.Context) ([]Event, error) {
	raw, ok, err := t.kv.Get(ctx, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("read product metrics: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		t.logger.Warn("ignoring unreadable product metrics", "error", err)
		return nil, nil
	}
	events := make([]Event, 0, len(items))
	for _, item := range items {
		if event, ok := parseEvent(item); ok {
			events = append(events, event)
		}
	}
	return events, nil
}

func (t *Tracker) write(ctx context.Context, events []Event) error {
	if len(events) > MaxEvents {
		events = events[len(events)-MaxEvents:]
	}
	encoded, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("encode product metrics: %w", err)
	}
	if err := t.kv.Set(ctx, StorageKey, string(encoded)); err != nil {
		return fmt.Errorf("write product metrics: %w", err)
	}
	return nil
}

func parseEvent(raw json.RawMessage) (Event, bool) {
	var record struct {
		ID        *string         `json:"id"`
		Name      *string         `json:"name"`
		Timestamp *string         `json:"timestamp"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(raw, &record); err != nil {
		return Event{}, false
	}
	if record.ID == nil || record.Name == nil || record.Timestamp == nil {
		return Event{}, false
	}
	payload := bytes.TrimSpace(record.Payload)
	if len(payload) == 0 || payload[0] != '{' {
		return Event{}, false
	}
	// An unparseable timestamp keeps the event but never deduplicates.
	timestamp, _ := time.Parse(time.RFC3339Nano, *record.Timestamp)
	return Event{
		ID:        *record.ID,
		Name:      EventName(*record.Name),
		Timestamp: timestamp,
		Payload:   payload,
	}, true
}

func duplicateOfLast(events []Event, candidate Event) bool {
	if len(events) == 0 {
		return false
	}
	last := events[len(events)-1]
	if last.Name != candidate.Name || last.Session() != candidate.Session() {
		return false
	}
	if !samePayload(last.Payload, candidate.Payload) {
		return false
	}
	if last.Timestamp.IsZero() || candidate.Timestamp.IsZero() {
		return false
	}
	return candidate.Timestamp.Sub(last.Timestamp) <= DedupeWindow
}

// samePayload compares payloads structurally so key order does not matter.
func samePayload(a, b json.RawMessage) bool {
	var left, right any
	if json.Unmarshal(a, &left) != nil || json.Unmarshal(b, &right) != nil {
		return false
	}
	l, _ := json.Marshal(left)
	r, _ := json.Marshal(right)
	return bytes.Equal(l, r)
}

type FunnelReport struct {
	Started        int     `json:"started"`
	Completed      int     `json:"completed"`
	Abandoned      int     `json:"abandoned"`
	CompletionRate float64 `json:"completionRate"`
}

type SurveyReport struct {
	FunnelReport
	AbandonedByStep map[StepKey]int `json:"abandonedByStep"`
}

type Report struct {
	GeneratedAt time.Time    `json:"generatedAt"`
	TotalEvents int          `json:"totalEvents"`
	Canvas      FunnelReport `json:"canvas"`
	Survey      SurveyReport `json:"survey"`
}

// BuildReport counts unique sessions per event name. Completion rates are
// percentages rounded to one decimal.
func BuildReport(events []Event, now time.Time) Report {
	abandonedByStep := make(map[StepKey]int, len(Steps))
	for _, step := range Steps {
		abandonedByStep[step] = 0
	}
	for _, event := range events {
		if event.Name != SurveyStepAbandoned {
			continue
		}
		var body struct {
			StepKey StepKey `json:"stepKey"`
		}
		if err := json.Unmarshal(event.Payload, &body); err == nil && body.StepKey != "" {
			abandonedByStep[body.StepKey]++
		}
	}

	canvasStarted := uniqueSessions(events, CanvasStarted)
	canvasCompleted := uniqueSessions(events, CanvasCompleted)
	surveyStarted := uniqueSessions(events, SurveyStarted)
	surveyCompleted := uniqueSessions(events, SurveyCompleted)

	return Report{
		GeneratedAt: now.UTC(),
		TotalEvents: len(events),
		Canvas: FunnelReport{
			Started:        canvasStarted,
			Completed:      canvasCompleted,
			Abandoned:      uniqueSessions(events, CanvasAbandoned),
			CompletionRate: completionRate(canvasStarted, canvasCompleted),
		},
		Survey: SurveyReport{
			FunnelReport: FunnelReport{
				Started:        surveyStarted,
				Completed:      surveyCompleted,
				Abandoned:      uniqueSessions(events, SurveyStepAbandoned),
				CompletionRate: completionRate(surveyStarted, surveyCompleted),
			},
			AbandonedByStep: abandonedByStep,
		},
	}
}

func uniqueSessions(events []Event, name EventName) int {
	seen := make(map[string]struct{})
	for _, event := range events {
		if event.Name == name {
			seen[event.Session()] = struct{}{}
		}
	}
	return len(seen)
}

func completionRate(started, completed int) float64 {
	if started <= 0 {
		return 0
	}
	return math.Round(float64(completed)/float64(started)*1000) / 10
}
