// Package productmetrics keeps a bounded local log of product usage events
// and summarizes it into completion rates.
package productmetrics

import "srlcanvas/api/internal/util"

type EventName string

const (
	CanvasStarted       EventName = "canvas_started"
	CanvasCompleted     EventName = "canvas_completed"
	CanvasAbandoned     EventName = "canvas_abandoned"
	SurveyStarted       EventName = "survey_started"
	SurveyStepViewed    EventName = "survey_step_viewed"
	SurveyCompleted     EventName = "survey_completed"
	SurveyStepAbandoned EventName = "survey_step_abandoned"
)

type StepKey string

const (
	StepTriage              StepKey = "triage"
	StepProfile             StepKey = "profile"
	StepDimensions1To4      StepKey = "dimensions_1_4"
	StepDimensions5To8      StepKey = "dimensions_5_8"
	StepDimensions9To12     StepKey = "dimensions_9_12"
	StepScaleAndSUS         StepKey = "scale_and_sus"
	StepAdoptionAndFollowUp StepKey = "adoption_and_followup"
)

// Steps lists the survey steps in order.
var Steps = []StepKey{
	StepTriage,
	StepProfile,
	StepDimensions1To4,
	StepDimensions5To8,
	StepDimensions9To12,
	StepScaleAndSUS,
	StepAdoptionAndFollowUp,
}

// Payload is the typed body of one event. Every payload carries the session
// it belongs to.
type Payload interface {
	Name() EventName
	Session() string
}

type CanvasStartedPayload struct {
	SessionID     string `json:"sessionId"`
	ScopeType     string `json:"scopeType"`
	RemoteEnabled bool   `json:"remoteEnabled"`
	AdvancedMode  bool   `json:"advancedMode"`
}

type CanvasCompletedPayload struct {
	SessionID         string `json:"sessionId"`
	FilledBlocks      int    `json:"filledBlocks"`
	CompletionPercent int    `json:"completionPercent"`
	AdvancedMode      bool   `json:"advancedMode"`
}

type CanvasAbandonedPayload struct {
	SessionID    string `json:"sessionId"`
	FilledBlocks int    `json:"filledBlocks"`
	Stage        string `json:"stage"`
}

type SurveyStartedPayload struct {
	SessionID        string `json:"sessionId"`
	StartedWithDraft bool   `json:"startedWithDraft"`
}

type SurveyStepViewedPayload struct {
	SessionID string  `json:"sessionId"`
	StepKey   StepKey `json:"stepKey"`
	StepIndex int     `json:"stepIndex"`
	StepCount int     `json:"stepCount"`
}

type SurveyCompletedPayload struct {
	SessionID         string `json:"sessionId"`
	Eligible          bool   `json:"eligible"`
	StepCount         int    `json:"stepCount"`
	CompletionSeconds *int   `json:"completionSeconds"`
	Storage           string `json:"storage"`
}

type SurveyStepAbandonedPayload struct {
	SessionID string  `json:"sessionId"`
	StepKey   StepKey `json:"stepKey"`
	Reason    string  `json:"reason"`
}

func (p CanvasStartedPayload) Name() EventName       { return CanvasStarted }
func (p CanvasCompletedPayload) Name() EventName     { return CanvasCompleted }
func (p CanvasAbandonedPayload) Name() EventName     { return CanvasAbandoned }
func (p SurveyStartedPayload) Name() EventName       { return SurveyStarted }
func (p SurveyStepViewedPayload) Name() EventName    { return SurveyStepViewed }
func (p SurveyCompletedPayload) Name() EventName     { return SurveyCompleted }
func (p SurveyStepAbandonedPayload) Name() EventName { return SurveyStepAbandoned }

func (p CanvasStartedPayload) Session() string       { return p.SessionID }
func (p CanvasCompletedPayload) Session() string     { return p.SessionID }
func (p CanvasAbandonedPayload) Session() string     { return p.SessionID }
func (p SurveyStartedPayload) Session() string       { return p.SessionID }
func (p SurveyStepViewedPayload) Session() string    { return p.SessionID }
func (p SurveyCompletedPayload) Session() string     { return p.SessionID }
func (p SurveyStepAbandonedPayload) Session() string { return p.SessionID }

// NewSessionID returns "<prefix>_<uuid>".
func NewSessionID(prefix string) string {
	return util.NewID(prefix)
}

// AbandonStage classifies how far a canvas got before it was left.
func AbandonStage(filledBlocks int) string {
	switch {
	case filledBlocks <= 0:
		return "metadata"
	case filledBlocks <= 4:
		return "early_blocks"
	case filledBlocks <= 8:
		return "mid_blocks"
	default:
		return "late_blocks"
	}
}
