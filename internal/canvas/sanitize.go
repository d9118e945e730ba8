package canvas

import (
	"math"
	"strconv"
	"time"
)

// SanitizeMeta coerces decoded JSON into Meta. It reports false when raw is
// not an object, in which case the caller should use defaults.
func SanitizeMeta(raw any, now time.Time) (Meta, bool) {
	record, ok := raw.(map[string]any)
	if !ok {
		return Meta{}, false
	}

	meta := Meta{
		Subject:   stringField(record, "startup"),
		Evaluator: stringField(record, "evaluator"),
		Date:      FormatDate(now),
	}
	if date, ok := record["date"].(string); ok {
		if normalized, ok := NormalizeDate(date); ok {
			meta.Date = normalized
		}
	}
	return meta, true
}

// SanitizeDimensions overlays valid entries of raw onto the default
// dimension set. Unknown ids are dropped and malformed fields fall back to
// their defaults. It reports false only when raw is not an object.
func SanitizeDimensions(raw any) (Dimensions, bool) {
	record, ok := raw.(map[string]any)
	if !ok {
		return nil, false
	}

	dims := NewDimensions()
	for _, dim := range Catalogue {
		entry, ok := record[strconv.Itoa(int(dim.ID))].(map[string]any)
		if !ok {
			continue
		}
		dims[dim.ID] = DimensionState{
			Score:    scoreField(entry["score"]),
			Notes:    stringField(entry, "notes"),
			Evidence: stringField(entry, "evidence"),
		}
	}
	return dims, true
}

// SanitizeDocument expects the decoded form of {"meta": ..., "blocks": ...}.
func SanitizeDocument(raw any, now time.Time) (Document, bool) {
	record, ok := raw.(map[string]any)
	if !ok {
		return Document{}, false
	}
	meta, ok := SanitizeMeta(record["meta"], now)
	if !ok {
		return Document{}, false
	}
	dims, ok := SanitizeDimensions(record["blocks"])
	if !ok {
		return Document{}, false
	}
	return Document{Meta: meta, Dimensions: dims}, true
}

// Normalize repairs a typed document the way SanitizeDocument repairs decoded
// JSON: only catalogue dimensions survive, scores off the scale are cleared
// and an unusable date becomes today.
func Normalize(doc Document, now time.Time) Document {
	out := Document{Meta: doc.Meta, Dimensions: NewDimensions()}
	if normalized, ok := NormalizeDate(doc.Meta.Date); ok {
		out.Meta.Date = normalized
	} else {
		out.Meta.Date = FormatDate(now)
	}
	for _, dim := range Catalogue {
		state, ok := doc.Dimensions[dim.ID]
		if !ok {
			continue
		}
		if state.Score != nil {
			if *state.Score < MinScore || *state.Score > MaxScore {
				state.Score = nil
			} else {
				value := *state.Score
				state.Score = &value
			}
		}
		out.Dimensions[dim.ID] = state
	}
	return out
}

func stringField(record map[string]any, key string) string {
	value, _ := record[key].(string)
	return value
}

func scoreField(raw any) *int {
	var value float64
	switch v := raw.(type) {
	case float64:
		value = v
	case int:
		value = float64(v)
	case int64:
		value = float64(v)
	default:
		return nil
	}
	if math.IsNaN(value) || value < MinScore || value > MaxScore || value != math.Trunc(value) {
		return nil
	}
	score := int(value)
	return &score
}
