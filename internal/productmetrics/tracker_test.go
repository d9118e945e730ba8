package productmetrics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"srlcanvas/api/internal/localstore"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *clock {
	return &clock{now: time.Date(2025, 11, 28, 9, 0, 0, 0, time.UTC)}
}

func started(session string) CanvasStartedPayload {
	return CanvasStartedPayload{SessionID: session, ScopeType: "guest"}
}

func newTracker(c *clock, opts ...Option) (*Tracker, *localstore.MemoryKV) {
	kv := localstore.NewMemoryKV()
	return NewTracker(kv, append([]Option{WithClock(c.Now)}, opts...)...), kv
}

func TestTrackSuppressesDuplicatesWithinWindow(t *testing.T) {
	c := newClock()
	tracker, _ := newTracker(c)
	ctx := context.Background()

	recorded, err := tracker.Track(ctx, started("canvas_1"))
	require.NoError(t, err)
	assert.True(t, recorded)

	c.Advance(time.Second)
	recorded, err = tracker.Track(ctx, started("canvas_1"))
	require.NoError(t, err)
	assert.False(t, recorded, "identical event within 1.2s is a duplicate")

	c.Advance(1300 * time.Millisecond)
	recorded, err = tracker.Track(ctx, started("canvas_1"))
	require.NoError(t, err)
	assert.True(t, recorded, "window is measured from the last stored event")

	recorded, err = tracker.Track(ctx, started("canvas_2"))
	require.NoError(t, err)
	assert.True(t, recorded, "other sessions are never duplicates")

	recorded, err = tracker.Track(ctx, CanvasStartedPayload{SessionID: "canvas_2", ScopeType: "authenticated"})
	require.NoError(t, err)
	assert.True(t, recorded, "different payloads are never duplicates")

	events, err := tracker.Events(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 4)
}

func TestTrackDisabled(t *testing.T) {
	tracker, kv := newTracker(newClock(), WithEnabled(false))
	recorded, err := tracker.Track(context.Background(), started("canvas_1"))
	require.NoError(t, err)
	assert.False(t, recorded)
	_, ok, _ := kv.Get(context.Background(), StorageKey)
	assert.False(t, ok)
}

func TestTrackKeepsMostRecentEvents(t *testing.T) {
	c := newClock()
	tracker, _ := newTracker(c)
	ctx := context.Background()

	seeded := make([]Event, 0, MaxEvents)
	for i := 0; i < MaxEvents; i++ {
		payload, err := json.Marshal(started(fmt.Sprintf("canvas_%d", i)))
		require.NoError(t, err)
		seeded = append(seeded, Event{ID: fmt.Sprintf("evt_%d", i), Name: CanvasStarted, Timestamp: c.Now(), Payload: payload})
	}
	require.NoError(t, tracker.write(ctx, seeded))

	for i := MaxEvents; i < MaxEvents+5; i++ {
		c.Advance(time.Millisecond)
		_, err := tracker.Track(ctx, started(fmt.Sprintf("canvas_%d", i)))
		require.NoError(t, err)
	}
	events, err := tracker.Events(ctx)
	require.NoError(t, err)
	require.Len(t, events, MaxEvents)
	assert.Equal(t, "canvas_5", events[0].Session())
	assert.Equal(t, fmt.Sprintf("canvas_%d", MaxEvents+4), events[len(events)-1].Session())
}

func TestEventsSkipMalformedEntries(t *testing.T) {
	tracker, kv := newTracker(newClock())
	ctx := context.Background()
	raw := `[
		{"id":"evt_1","name":"canvas_started","timestamp":"2025-11-28T09:00:00Z","payload":{"sessionId":"a"}},
		{"id":"evt_2","name":"canvas_started","timestamp":"2025-11-28T09:00:00Z","payload":null},
		{"id":3,"name":"canvas_started","timestamp":"2025-11-28T09:00:00Z","payload":{}},
		"junk"
	]`
	require.NoError(t, kv.Set(ctx, StorageKey, raw))

	events, err := tracker.Events(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "evt_1", events[0].ID)

	require.NoError(t, kv.Set(ctx, StorageKey, "{broken"))
	events, err = tracker.Events(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestBuildReport(t *testing.T) {
	c := newClock()
	tracker, _ := newTracker(c)
	ctx := context.Background()

	track := func(p Payload) {
		c.Advance(2 * time.Second)
		_, err := tracker.Track(ctx, p)
		require.NoError(t, err)
	}
	track(started("c1"))
	track(started("c2"))
	track(started("c3"))
	track(started("c1"))
	track(CanvasCompletedPayload{SessionID: "c1", FilledBlocks: 12, CompletionPercent: 100})
	track(CanvasAbandonedPayload{SessionID: "c2", FilledBlocks: 3, Stage: AbandonStage(3)})
	track(SurveyStartedPayload{SessionID: "s1"})
	track(SurveyStepAbandonedPayload{SessionID: "s1", StepKey: StepProfile, Reason: "route_exit"})
	track(SurveyStepAbandonedPayload{SessionID: "s1", StepKey: StepProfile, Reason: "page_unload"})

	report, err := tracker.Report(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, report.TotalEvents)
	assert.Equal(t, FunnelReport{Started: 3, Completed: 1, Abandoned: 1, CompletionRate: 33.3}, report.Canvas)
	assert.Equal(t, 1, report.Survey.Started)
	assert.Equal(t, 0.0, report.Survey.CompletionRate)
	assert.Equal(t, 1, report.Survey.Abandoned)
	assert.Equal(t, 2, report.Survey.AbandonedByStep[StepProfile])
	assert.Equal(t, 0, report.Survey.AbandonedByStep[StepTriage])
	assert.Len(t, report.Survey.AbandonedByStep, len(Steps))

	encoded, err := json.Marshal(report)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(encoded), `"abandonedByStep"`))
}

func TestCompletionRateRounding(t *testing.T) {
	assert.Equal(t, 0.0, completionRate(0, 0))
	assert.Equal(t, 66.7, completionRate(3, 2))
	assert.Equal(t, 100.0, completionRate(2, 2))
}

func TestAbandonStage(t *testing.T) {
	cases := map[int]string{0: "metadata", -1: "metadata", 1: "early_blocks", 4: "early_blocks", 5: "mid_blocks", 8: "mid_blocks", 9: "late_blocks", 12: "late_blocks"}
	for filled, want := range cases {
		assert.Equal(t, want, AbandonStage(filled), "filled=%d", filled)
	}
}

func TestCanvasSession(t *testing.T) {
	tracker, _ := newTracker(newClock())
	ctx := context.Background()

	first, created, err := tracker.CanvasSession(ctx, "guest")
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, strings.HasPrefix(first, "canvas_"))

	again, created, err := tracker.CanvasSession(ctx, "guest")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, again)

	other, _, err := tracker.CanvasSession(ctx, "user-1")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)

	require.NoError(t, tracker.EndCanvasSession(ctx, "guest"))
	next, created, err := tracker.CanvasSession(ctx, "guest")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first, next)
}
