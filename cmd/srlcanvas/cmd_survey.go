package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"srlcanvas/api/internal/productmetrics"
	"srlcanvas/api/internal/survey"
)

func runSurveyFingerprint(cmd *cobra.Command, args []string) error {
	fingerprint := survey.EthicsFingerprint()
	if jsonOutput {
		return printJSON(cmd, map[string]string{
			"surveyVersion":  survey.Version,
			"consentVersion": survey.ConsentVersion,
			"fingerprint":    fingerprint,
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), fingerprint)
	return nil
}

func runSurveyConsentStatus(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	status, err := w.survey.ConsentStatus(commandContext(cmd), w.signedInID())
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, status)
	}
	if !status.Accepted {
		fmt.Fprintln(cmd.OutOrStdout(), "Consent not given.")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Consent accepted at %s (%s).\n", status.AcceptedAt.Format("2006-01-02 15:04"), status.Storage)
	return nil
}

func runSurveyConsentAccept(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	result, err := w.survey.AcceptConsent(commandContext(cmd), w.signedInID(), "/survey")
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Consent %s recorded (%s).\n", survey.ConsentVersion, result.Storage)
	return nil
}

func runSurveyConsentRevoke(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	if err := w.survey.RevokeConsent(commandContext(cmd), w.signedInID()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Consent withdrawn.")
	return nil
}

func runSurveyDraftShow(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	draft, err := w.survey.LoadDraft(commandContext(cmd), w.signedInID())
	if err != nil {
		return err
	}
	if draft == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "No saved draft.")
		return nil
	}
	return printJSON(cmd, draft)
}

func runSurveyDraftSave(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	path, _ := cmd.Flags().GetString("file")
	step, _ := cmd.Flags().GetString("step")
	if path == "" {
		return errors.New("--file is required")
	}
	stepIndex := -1
	if step != "" {
		if stepIndex = indexOfStep(productmetrics.StepKey(step)); stepIndex < 0 {
			return fmt.Errorf("unknown survey step %q", step)
		}
	}
	values, err := readFormValues(path)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	userID := w.signedInID()
	draft, err := w.survey.LoadDraft(ctx, userID)
	if err != nil {
		return err
	}
	if draft == nil {
		started := w.now().UTC()
		draft = &survey.Draft{
			NextPath:         "/canvas",
			StartedAt:        &started,
			MetricsSessionID: productmetrics.NewSessionID("survey"),
		}
		w.track(ctx, productmetrics.SurveyStartedPayload{SessionID: draft.MetricsSessionID})
	}
	draft.Values = values
	if step != "" {
		draft.CurrentStepKey = step
		w.track(ctx, productmetrics.SurveyStepViewedPayload{
			SessionID: draft.MetricsSessionID,
			StepKey:   productmetrics.StepKey(step),
			StepIndex: stepIndex,
			StepCount: len(productmetrics.Steps),
		})
	}
	if err := w.survey.SaveDraft(ctx, userID, *draft); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Draft saved.")
	return nil
}

func runSurveyDraftClear(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	userID := w.signedInID()
	draft, err := w.survey.LoadDraft(ctx, userID)
	if err != nil {
		return err
	}
	if draft != nil && draft.MetricsSessionID != "" && draft.CurrentStepKey != "" {
		w.track(ctx, productmetrics.SurveyStepAbandonedPayload{
			SessionID: draft.MetricsSessionID,
			StepKey:   productmetrics.StepKey(draft.CurrentStepKey),
			Reason:    "draft_cleared",
		})
	}
	if err := w.survey.ClearDraft(ctx, userID); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Draft discarded.")
	return nil
}

func runSurveySubmit(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	path, _ := cmd.Flags().GetString("file")
	nextPath, _ := cmd.Flags().GetString("next")

	ctx := commandContext(cmd)
	userID := w.signedInID()
	draft, err := w.survey.LoadDraft(ctx, userID)
	if err != nil {
		return err
	}

	var values survey.FormValues
	switch {
	case path != "":
		if values, err = readFormValues(path); err != nil {
			return err
		}
	case draft != nil:
		values = draft.Values
	default:
		return errors.New("no saved draft; pass --file")
	}

	sessionID := ""
	var startedAt *time.Time
	if draft != nil {
		sessionID = draft.MetricsSessionID
		startedAt = draft.StartedAt
	}
	if sessionID == "" {
		sessionID = productmetrics.NewSessionID("survey")
		w.track(ctx, productmetrics.SurveyStartedPayload{SessionID: sessionID, StartedWithDraft: draft != nil})
	}

	result, err := w.survey.Submit(ctx, userID, values, nextPath, startedAt)
	if err != nil {
		return err
	}
	w.track(ctx, productmetrics.SurveyCompletedPayload{
		SessionID:         sessionID,
		Eligible:          result.Eligible,
		StepCount:         len(productmetrics.Steps),
		CompletionSeconds: result.CompletionSeconds,
		Storage:           string(result.Storage),
	})
	if err := w.survey.ClearDraft(ctx, userID); err != nil {
		w.logger.Warn("survey draft not cleared", "error", err)
	}

	if jsonOutput {
		return printJSON(cmd, result)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Survey submitted (%s, id %s).\n", result.Storage, result.ID)
	if !result.Eligible {
		fmt.Fprintln(cmd.OutOrStdout(), "The screening answers make this response ineligible for the study.")
	}
	return nil
}

func runSurveyResponses(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	responses, err := w.survey.LocalResponses(commandContext(cmd))
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, responses)
	}
	if len(responses) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No responses stored on this machine.")
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tELIGIBLE")
	for _, response := range responses {
		fmt.Fprintf(tw, "%s\t%s\t%v\n", response.ID, response.CreatedAt.Format("2006-01-02 15:04"), response.Payload["is_eligible"])
	}
	return tw.Flush()
}

// readFormValues overlays the JSON file at path on an empty form.
func readFormValues(path string) (survey.FormValues, error) {
	values := survey.NewFormValues()
	raw, err := os.ReadFile(path)
	if err != nil {
		return values, fmt.Errorf("read form values: %w", err)
	}
	if err := json.Unmarshal(raw, &values); err != nil {
		return values, fmt.Errorf("parse form values %s: %w", path, err)
	}
	return values, nil
}

func indexOfStep(step productmetrics.StepKey) int {
	for i, candidate := range productmetrics.Steps {
		if candidate == step {
			return i
		}
	}
	return -1
}
