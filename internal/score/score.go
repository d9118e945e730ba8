// Package score turns the twelve canvas dimension scores into aggregate
// metrics and a maturity stage.
package score

import "math"

// MaxTotal is the highest reachable total: twelve dimensions scored 9.
const MaxTotal = 12 * 9

type Metrics struct {
	Total             float64 `json:"total"`
	Mean              float64 `json:"mean"`
	StdDev            float64 `json:"stdDev"`
	CV                float64 `json:"cv"`
	RiskScore         float64 `json:"riskScore"`
	CompletionPercent float64 `json:"completion"`
}

// Calculate computes Metrics over values. NaN and infinities count as 0.
func Calculate(values []float64) Metrics {
	cleaned := make([]float64, len(values))
	total := 0.0
	for i, value := range values {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			value = 0
		}
		cleaned[i] = value
		total += value
	}

	mean := 0.0
	variance := 0.0
	if n := float64(len(cleaned)); n > 0 {
		mean = total / n
		for _, value := range cleaned {
			diff := value - mean
			variance += diff * diff
		}
		variance /= n
	}

	stdDev := math.Sqrt(variance)
	cv := 0.0
	if mean > 0 {
		cv = stdDev / mean
	}

	return Metrics{
		Total:             total,
		Mean:              mean,
		StdDev:            stdDev,
		CV:                cv,
		RiskScore:         math.Max(0, total*(1-cv)),
		CompletionPercent: total / MaxTotal * 100,
	}
}

type Stage string

const (
	StageIdeation     Stage = "Ideation"
	StageValidation   Stage = "Validation"
	StageTraction     Stage = "Traction"
	StageScale        Stage = "Scale"
	StageHighMaturity Stage = "High Maturity"
)

func (s Stage) String() string {
	return string(s)
}

// StageFromTotal maps a total onto its maturity band. Band upper bounds are
// inclusive.
func StageFromTotal(total float64) Stage {
	switch {
	case total <= 35:
		return StageIdeation
	case total <= 59:
		return StageValidation
	case total <= 83:
		return StageTraction
	case total <= 101:
		return StageScale
	default:
		return StageHighMaturity
	}
}
