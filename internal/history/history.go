// Package history turns remote canvas records into a deduplicated timeline
// and compares the metrics of any two entries.
package history

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"srlcanvas/api/internal/canvas"
	"srlcanvas/api/internal/remote"
	"srlcanvas/api/internal/score"
)

type Entry struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Meta      canvas.Meta `json:"meta"`
	UpdatedAt time.Time   `json:"updatedAt"`
	// EvaluatedAt is the normalized meta date, or "" when it is unusable.
	EvaluatedAt string `json:"evaluatedAt"`
	// TimelineTimestamp orders entries, in Unix milliseconds.
	TimelineTimestamp int64         `json:"timelineTimestamp"`
	Scores            []float64     `json:"scores"`
	Metrics           score.Metrics `json:"metrics"`
	FilledCount       int           `json:"filledBlocks"`
}

type Comparison struct {
	TotalDelta       float64 `json:"totalDelta"`
	RiskScoreDelta   float64 `json:"riskScoreDelta"`
	CVDelta          float64 `json:"cvDelta"`
	CompletionDelta  float64 `json:"completionDelta"`
	FilledCountDelta int     `json:"filledBlocksDelta"`
}

// Build maps records to entries, newest first, keeping only the first entry
// for each (subject, evaluator, evaluated date, scores) signature.
func Build(records []remote.Canvas) []Entry {
	entries := make([]Entry, 0, len(records))
	for _, record := range records {
		entries = append(entries, newEntry(record))
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TimelineTimestamp > entries[j].TimelineTimestamp
	})

	seen := make(map[string]struct{}, len(entries))
	out := entries[:0]
	for _, entry := range entries {
		sig := signature(entry)
		if _, ok := seen[sig]; ok {
			continue
		}
		seen[sig] = struct{}{}
		out = append(out, entry)
	}
	return out
}

// Compare returns current minus previous for each metric.
func Compare(current, previous Entry) Comparison {
	return Comparison{
		TotalDelta:       current.Metrics.Total - previous.Metrics.Total,
		RiskScoreDelta:   current.Metrics.RiskScore - previous.Metrics.RiskScore,
		CVDelta:          current.Metrics.CV - previous.Metrics.CV,
		CompletionDelta:  current.Metrics.CompletionPercent - previous.Metrics.CompletionPercent,
		FilledCountDelta: current.FilledCount - previous.FilledCount,
	}
}

func newEntry(record remote.Canvas) Entry {
	doc := canvas.Document{Meta: record.Meta, Dimensions: record.Dimensions}
	evaluatedAt, _ := canvas.NormalizeDate(record.Meta.Date)
	scores := doc.Scores()
	return Entry{
		ID:                record.ID,
		Title:             canvas.Title(record.Meta),
		Meta:              record.Meta,
		UpdatedAt:         record.UpdatedAt,
		EvaluatedAt:       evaluatedAt,
		TimelineTimestamp: timelineTimestamp(evaluatedAt, record.UpdatedAt),
		Scores:            scores,
		Metrics:           score.Calculate(scores),
		FilledCount:       doc.FilledCount(),
	}
}

// timelineTimestamp prefers the remote update time and falls back to local
// midnight of the evaluated date.
func timelineTimestamp(evaluatedAt string, updatedAt time.Time) int64 {
	if !updatedAt.IsZero() {
		return updatedAt.UnixMilli()
	}
	if evaluatedAt != "" {
		if day, err := time.ParseInLocation("2006-01-02", evaluatedAt, time.Local); err == nil {
			return day.UnixMilli()
		}
	}
	return 0
}

func signature(entry Entry) string {
	parts := make([]string, len(entry.Scores))
	for i, value := range entry.Scores {
		parts[i] = strconv.FormatFloat(value, 'f', -1, 64)
	}
	return strings.Join([]string{
		strings.ToLower(strings.TrimSpace(entry.Meta.Subject)),
		strings.ToLower(strings.TrimSpace(entry.Meta.Evaluator)),
		entry.EvaluatedAt,
		strings.Join(parts, ","),
	}, "|")
}
