package survey

import (
	"errors"
	"math"
	"strings"
	"time"
)

var ErrIncompleteScreening = errors.New("screening questions are incomplete")

// PayloadInput carries everything a submission records besides the answers.
type PayloadInput struct {
	UserID        string
	Values        FormValues
	NextPath      string
	StartedAt     *time.Time
	SubmittedAt   time.Time
	SurveyVersion string
	UserAgent     string
}

type Profile struct {
	PrimaryRole      string  `json:"primary_role"`
	PrimaryRoleOther *string `json:"primary_role_other"`
	ExperienceYears  string  `json:"experience_years"`
	Sector           string  `json:"sector"`
	SectorOther      *string `json:"sector_other"`
	StartupStage     string  `json:"startup_stage"`
	LocationCountry  string  `json:"location_country"`
	TeamSize         string  `json:"team_size"`
}

type ScaleFeedback struct {
	Clarity              *int    `json:"clarity_1_9"`
	Utility              *int    `json:"utility_1_9"`
	PreferredScale       string  `json:"preferred_scale"`
	PreferredScaleOther  *string `json:"preferred_scale_other"`
	PreferredScaleReason *string `json:"preferred_scale_reason"`
}

type AdoptionFeedback struct {
	UsageContexts         []string `json:"usage_contexts"`
	UsageContextOther     *string  `json:"usage_context_other"`
	NPSScore              *int     `json:"nps_score"`
	AcceptableTime        string   `json:"acceptable_time"`
	AdoptionBarriers      *string  `json:"adoption_barriers"`
	SuggestedImprovements *string  `json:"suggested_improvements"`
}

type FollowUp struct {
	WantsFinalVersion     *bool   `json:"wants_final_version"`
	AcceptsInterview      *bool   `json:"accepts_interview"`
	PreferredContact      *string `json:"preferred_contact"`
	AllowsAnonymousQuotes *bool   `json:"allows_anonymous_quotes"`
}

type SubmissionMetadata struct {
	SurveyVersion            string   `json:"survey_version"`
	SubmittedFromRoute       string   `json:"submitted_from_route"`
	NextPath                 string   `json:"next_path"`
	UserAgent                string   `json:"user_agent"`
	EstimatedDurationMinutes string   `json:"estimated_duration_minutes"`
	StartedAtClient          *string  `json:"started_at_client"`
	SubmittedAtClient        string   `json:"submitted_at_client"`
	CompletionSeconds        *int     `json:"completion_seconds"`
	CompletionMinutes        *float64 `json:"completion_minutes"`
}

// Payload is the stored form of one submission.
type Payload struct {
	UserID              *string                    `json:"user_id"`
	ConsentAccepted     bool                       `json:"consent_accepted"`
	ConsentVersion      string                     `json:"consent_version"`
	Age18OrMore         bool                       `json:"age_18_or_more"`
	ActedInEcosystem12M bool                       `json:"acted_in_ecosystem_12m"`
	ViewedSRLMaterial   bool                       `json:"viewed_srl_material"`
	Eligible            bool                       `json:"is_eligible"`
	Profile             Profile                    `json:"profile"`
	DimensionAnswers    map[string]DimensionAnswer `json:"dimension_answers"`
	ScaleFeedback       ScaleFeedback              `json:"scale_feedback"`
	SUSAnswers          map[int]*int               `json:"sus_answers"`
	AdoptionFeedback    AdoptionFeedback           `json:"adoption_feedback"`
	FollowUp            FollowUp                   `json:"follow_up"`
	Metadata            SubmissionMetadata         `json:"metadata"`
}

// BuildPayload validates the screening answers and assembles the record.
// Participants are eligible only when all three screening answers are yes.
func BuildPayload(in PayloadInput) (Payload, error) {
	age := in.Values.Age18OrMore.Bool()
	acted := in.Values.ActedInEcosystem12Months.Bool()
	viewed := in.Values.ViewedSRLMaterial.Bool()
	if age == nil || acted == nil || viewed == nil {
		return Payload{}, ErrIncompleteScreening
	}

	submittedAt := in.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now()
	}
	version := strings.TrimSpace(in.SurveyVersion)
	if version == "" {
		version = Version
	}
	userAgent := in.UserAgent
	if userAgent == "" {
		userAgent = "unknown"
	}

	var startedAtClient *string
	var completionSeconds *int
	var completionMinutes *float64
	if in.StartedAt != nil && !in.StartedAt.IsZero() {
		started := in.StartedAt.UTC().Format(isoMillis)
		startedAtClient = &started
		seconds := int(math.Max(0, math.Round(submittedAt.Sub(*in.StartedAt).Seconds())))
		minutes := math.Round(float64(seconds)/60*100) / 100
		completionSeconds = &seconds
		completionMinutes = &minutes
	}

	values := in.Values
	var userID *string
	if id := strings.TrimSpace(in.UserID); id != "" {
		userID = &id
	}
	usage := values.UsageContexts
	if usage == nil {
		usage = []string{}
	}

	return Payload{
		UserID:              userID,
		ConsentAccepted:     true,
		ConsentVersion:      ConsentVersion,
		Age18OrMore:         *age,
		ActedInEcosystem12M: *acted,
		ViewedSRLMaterial:   *viewed,
		Eligible:            *age && *acted && *viewed,
		Profile: Profile{
			PrimaryRole:      values.PrimaryRole,
			PrimaryRoleOther: trimmedOrNil(values.PrimaryRoleOther),
			ExperienceYears:  values.ExperienceYears,
			Sector:           values.Sector,
			SectorOther:      trimmedOrNil(values.SectorOther),
			StartupStage:     values.StartupStage,
			LocationCountry:  strings.TrimSpace(values.LocationCountry),
			TeamSize:         values.TeamSize,
		},
		DimensionAnswers: values.DimensionAnswers,
		ScaleFeedback: ScaleFeedback{
			Clarity:              values.ScaleClarity,
			Utility:              values.ScaleUtility,
			PreferredScale:       values.PreferredScale,
			PreferredScaleOther:  trimmedOrNil(values.PreferredScaleOther),
			PreferredScaleReason: trimmedOrNil(values.PreferredScaleReason),
		},
		SUSAnswers: values.SUSAnswers,
		AdoptionFeedback: AdoptionFeedback{
			UsageContexts:         usage,
			UsageContextOther:     trimmedOrNil(values.UsageContextOther),
			NPSScore:              values.NPSScore,
			AcceptableTime:        values.AcceptableTime,
			AdoptionBarriers:      trimmedOrNil(values.AdoptionBarriers),
			SuggestedImprovements: trimmedOrNil(values.SuggestedImprovements),
		},
		FollowUp: FollowUp{
			WantsFinalVersion:     values.WantsFinalVersion.Bool(),
			AcceptsInterview:      values.AcceptsInterview.Bool(),
			PreferredContact:      trimmedOrNil(values.PreferredContact),
			AllowsAnonymousQuotes: values.AllowsAnonymousQuotes.Bool(),
		},
		Metadata: SubmissionMetadata{
			SurveyVersion:            version,
			SubmittedFromRoute:       "/survey",
			NextPath:                 in.NextPath,
			UserAgent:                userAgent,
			EstimatedDurationMinutes: "10-12",
			StartedAtClient:          startedAtClient,
			SubmittedAtClient:        submittedAt.UTC().Format(isoMillis),
			CompletionSeconds:        completionSeconds,
			CompletionMinutes:        completionMinutes,
		},
	}, nil
}

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

func trimmedOrNil(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
