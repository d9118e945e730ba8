package app

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"

	"srlcanvas/api/internal/canvas"
)

var requestValidator = validator.New(validator.WithRequiredStructEnabled())

// CanvasInput is the body of POST /api/canvases. Field names follow the
// canvas JSON written by the client.
type CanvasInput struct {
	ID     string                `json:"id" validate:"omitempty,max=128"`
	UserID string                `json:"userId" validate:"omitempty,max=128"`
	Title  string                `json:"title" validate:"max=200"`
	Meta   CanvasMetaInput       `json:"meta"`
	Blocks map[string]BlockInput `json:"blocks" validate:"max=12,dive,keys,numeric,endkeys"`
}

type CanvasMetaInput struct {
	Startup   string `json:"startup" validate:"max=200"`
	Evaluator string `json:"evaluator" validate:"max=200"`
	Date      string `json:"date" validate:"max=32"`
}

type BlockInput struct {
	Score    *int   `json:"score" validate:"omitempty,min=1,max=9"`
	Notes    string `json:"notes" validate:"max=20000"`
	Evidence string `json:"evidence" validate:"max=20000"`
}

type SurveyResponseInput struct {
	Payload map[string]any `json:"payload" validate:"required,min=1"`
}

type ConsentInput struct {
	ConsentVersion string         `json:"consentVersion" validate:"required,max=128"`
	SurveyVersion  string         `json:"surveyVersion" validate:"required,max=128"`
	Metadata       map[string]any `json:"metadata"`
}

func (in *CanvasInput) validate() error {
	if err := requestValidator.Struct(in); err != nil {
		return validationError("invalid canvas", validationDetails(err))
	}
	if in.Blocks == nil {
		in.Blocks = map[string]BlockInput{}
	}
	for key := range in.Blocks {
		id, err := strconv.Atoi(key)
		if err != nil || !canvas.Known(canvas.DimensionID(id)) {
			return validationError("invalid canvas", []map[string]string{
				{"field": "blocks." + key, "rule": "dimension"},
			})
		}
	}
	return nil
}

// validationDetails lists failing fields as {"field","rule"} pairs.
func validationDetails(err error) any {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return nil
	}
	details := make([]map[string]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule = fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
		}
		details = append(details, map[string]string{"field": fe.Namespace(), "rule": rule})
	}
	return details
}
