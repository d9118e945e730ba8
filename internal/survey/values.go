package survey

// YesNo is a screening or follow-up answer: "sim", "nao" or unanswered.
type YesNo string

const (
	Unanswered YesNo = ""
	Yes        YesNo = "sim"
	No         YesNo = "nao"
)

// Bool maps an answer to true, false or nil when unanswered.
func (a YesNo) Bool() *bool {
	var value bool
	switch a {
	case Yes:
		value = true
	case No:
		value = false
	default:
		return nil
	}
	return &value
}

// DimensionAnswer holds the Likert ratings of every assertion for one
// dimension, keyed by assertion key.
type DimensionAnswer struct {
	Ratings map[string]*int `json:"ratings"`
	Comment string          `json:"comment"`
}

type FormValues struct {
	Age18OrMore              YesNo `json:"age18OrMore"`
	ActedInEcosystem12Months YesNo `json:"actedInEcosystem12Months"`
	ViewedSRLMaterial        YesNo `json:"viewedSrlMaterial"`

	PrimaryRole      string `json:"primaryRole"`
	PrimaryRoleOther string `json:"primaryRoleOther"`
	ExperienceYears  string `json:"experienceYears"`
	Sector           string `json:"sector"`
	SectorOther      string `json:"sectorOther"`
	StartupStage     string `json:"startupStage"`
	LocationCountry  string `json:"locationCountry"`
	TeamSize         string `json:"teamSize"`

	DimensionAnswers map[string]DimensionAnswer `json:"dimensionAnswers"`

	ScaleClarity         *int   `json:"scaleClarity"`
	ScaleUtility         *int   `json:"scaleUtility"`
	PreferredScale       string `json:"preferredScale"`
	PreferredScaleOther  string `json:"preferredScaleOther"`
	PreferredScaleReason string `json:"preferredScaleReason"`

	SUSAnswers map[int]*int `json:"susAnswers"`

	UsageContexts         []string `json:"usageContexts"`
	UsageContextOther     string   `json:"usageContextOther"`
	NPSScore              *int     `json:"npsScore"`
	AcceptableTime        string   `json:"acceptableTime"`
	AdoptionBarriers      string   `json:"adoptionBarriers"`
	SuggestedImprovements string   `json:"suggestedImprovements"`

	WantsFinalVersion     YesNo  `json:"wantsFinalVersion"`
	AcceptsInterview      YesNo  `json:"acceptsInterview"`
	PreferredContact      string `json:"preferredContact"`
	AllowsAnonymousQuotes YesNo  `json:"allowsAnonymousQuotes"`
}

// NewFormValues returns an empty form with every dimension, assertion and
// SUS item present and unanswered.
func NewFormValues() FormValues {
	dimensions := make(map[string]DimensionAnswer, len(Dimensions))
	for _, dimension := range Dimensions {
		ratings := make(map[string]*int, len(Assertions))
		for _, assertion := range Assertions {
			ratings[assertion.Key] = nil
		}
		dimensions[dimension.Key] = DimensionAnswer{Ratings: ratings}
	}
	sus := make(map[int]*int, len(SUSItems))
	for _, item := range SUSItems {
		sus[item.Key] = nil
	}
	return FormValues{
		DimensionAnswers: dimensions,
		SUSAnswers:       sus,
		UsageContexts:    []string{},
	}
}
