// Package canvas models one startup-maturity assessment: its metadata and the
// per-dimension state of the twelve scored dimensions.
package canvas

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// GuestScope is the storage scope used before anyone signs in.
const GuestScope = "guest"

// DefaultTitle names canvases whose subject is still blank.
const DefaultTitle = "My SRL Canvas"

var (
	ErrUnknownDimension = errors.New("unknown dimension")
	ErrScoreOutOfRange  = errors.New("score out of range")
)

type Meta struct {
	Subject   string `json:"startup"`
	Evaluator string `json:"evaluator"`
	Date      string `json:"date"`
}

type DimensionState struct {
	Score    *int   `json:"score"`
	Notes    string `json:"notes"`
	Evidence string `json:"evidence"`
}

// Dimensions is keyed by dimension id; sanitized values always hold every
// catalogue id and nothing else.
type Dimensions map[DimensionID]DimensionState

type Document struct {
	Meta       Meta       `json:"meta"`
	Dimensions Dimensions `json:"blocks"`
}

// Snapshot is the unit persisted per scope. SyncedFingerprint is the
// fingerprint of the content the remote store last accepted for RemoteID.
type Snapshot struct {
	Document
	DarkMode          bool
	RemoteID          string
	SyncedFingerprint string
	UpdatedAt         time.Time
}

// NewDimensions returns every catalogue dimension unanswered.
func NewDimensions() Dimensions {
	dims := make(Dimensions, len(Catalogue))
	for _, dim := range Catalogue {
		dims[dim.ID] = DimensionState{}
	}
	return dims
}

// NewMeta returns blank metadata dated today.
func NewMeta(now time.Time) Meta {
	return Meta{Date: FormatDate(now)}
}

func NewDocument(now time.Time) Document {
	return Document{Meta: NewMeta(now), Dimensions: NewDimensions()}
}

// Clone returns a deep copy so callers can hand documents out without
// sharing score pointers or the dimension map.
func (d Document) Clone() Document {
	out := Document{Meta: d.Meta, Dimensions: make(Dimensions, len(d.Dimensions))}
	for id, state := range d.Dimensions {
		if state.Score != nil {
			value := *state.Score
			state.Score = &value
		}
		out.Dimensions[id] = state
	}
	return out
}

// Scores returns the score vector in catalogue order, unanswered as 0.
func (d Document) Scores() []float64 {
	values := make([]float64, len(Catalogue))
	for i, dim := range Catalogue {
		if state, ok := d.Dimensions[dim.ID]; ok && state.Score != nil {
			values[i] = float64(*state.Score)
		}
	}
	return values
}

// FilledCount counts dimensions with a score.
func (d Document) FilledCount() int {
	count := 0
	for _, dim := range Catalogue {
		if state, ok := d.Dimensions[dim.ID]; ok && state.Score != nil {
			count++
		}
	}
	return count
}

// Fingerprint is a digest of the stable serialization of meta and
// dimensions, used to detect content changes.
func (d Document) Fingerprint() string {
	payload, err := json.Marshal(d)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

type DimensionPatch struct {
	Score      *int
	ClearScore bool
	Notes      *string
	Evidence   *string
}

type MetaPatch struct {
	Subject   *string
	Evaluator *string
	Date      *string
}

// WithDimension returns a copy of d with patch applied to dimension id.
func (d Document) WithDimension(id DimensionID, patch DimensionPatch) (Document, error) {
	if !Known(id) {
		return d, fmt.Errorf("%w: %d", ErrUnknownDimension, id)
	}
	if patch.Score != nil && (*patch.Score < MinScore || *patch.Score > MaxScore) {
		return d, fmt.Errorf("%w: %d", ErrScoreOutOfRange, *patch.Score)
	}

	out := d.Clone()
	state := out.Dimensions[id]
	switch {
	case patch.ClearScore:
		state.Score = nil
	case patch.Score != nil:
		value := *patch.Score
		state.Score = &value
	}
	if patch.Notes != nil {
		state.Notes = *patch.Notes
	}
	if patch.Evidence != nil {
		state.Evidence = *patch.Evidence
	}
	out.Dimensions[id] = state
	return out, nil
}

// WithMeta returns a copy of d with patch applied. Recognised date layouts
// are stored in ISO form; anything else is kept as typed and reported by
// ValidateMeta.
func (d Document) WithMeta(patch MetaPatch) Document {
	out := d.Clone()
	if patch.Subject != nil {
		out.Meta.Subject = *patch.Subject
	}
	if patch.Evaluator != nil {
		out.Meta.Evaluator = *patch.Evaluator
	}
	if patch.Date != nil {
		if normalized, ok := NormalizeDate(*patch.Date); ok {
			out.Meta.Date = normalized
		} else {
			out.Meta.Date = *patch.Date
		}
	}
	return out
}

type MetaValidation struct {
	SubjectValid   bool `json:"subjectValid"`
	EvaluatorValid bool `json:"evaluatorValid"`
	DateValid      bool `json:"dateValid"`
	Valid          bool `json:"isValid"`
}

// ValidateMeta is advisory: incomplete drafts are still persisted.
func ValidateMeta(meta Meta) MetaValidation {
	result := MetaValidation{
		SubjectValid:   strings.TrimSpace(meta.Subject) != "",
		EvaluatorValid: strings.TrimSpace(meta.Evaluator) != "",
		DateValid:      IsISODate(meta.Date),
	}
	result.Valid = result.SubjectValid && result.EvaluatorValid && result.DateValid
	return result
}

func Title(meta Meta) string {
	if subject := strings.TrimSpace(meta.Subject); subject != "" {
		return subject
	}
	return DefaultTitle
}
