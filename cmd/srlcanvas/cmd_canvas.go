package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"srlcanvas/api/internal/canvas"
	"srlcanvas/api/internal/history"
	"srlcanvas/api/internal/productmetrics"
	"srlcanvas/api/internal/remote"
	"srlcanvas/api/internal/score"
)

type canvasView struct {
	Scope      string                `json:"scope"`
	RemoteID   string                `json:"remoteId,omitempty"`
	DarkMode   bool                  `json:"darkMode"`
	Title      string                `json:"title"`
	Meta       canvas.Meta           `json:"meta"`
	Blocks     []blockView           `json:"blocks"`
	Metrics    score.Metrics         `json:"metrics"`
	Stage      string                `json:"stage"`
	Validation canvas.MetaValidation `json:"validation"`
}

type blockView struct {
	ID       canvas.DimensionID `json:"id"`
	Key      string             `json:"key"`
	Name     string             `json:"name"`
	Score    *int               `json:"score"`
	Notes    string             `json:"notes,omitempty"`
	Evidence string             `json:"evidence,omitempty"`
}

func runShow(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	active := w.manager.Active()
	view := canvasView{
		Scope:      w.manager.Scope(),
		RemoteID:   active.RemoteID,
		DarkMode:   active.DarkMode,
		Title:      canvas.Title(active.Meta),
		Meta:       active.Meta,
		Metrics:    w.manager.Metrics(),
		Stage:      w.manager.Stage().String(),
		Validation: w.manager.Validation(),
	}
	for _, dim := range canvas.Catalogue {
		state := active.Dimensions[dim.ID]
		view.Blocks = append(view.Blocks, blockView{
			ID:       dim.ID,
			Key:      dim.Key,
			Name:     dim.Name,
			Score:    state.Score,
			Notes:    state.Notes,
			Evidence: state.Evidence,
		})
	}
	if jsonOutput {
		return printJSON(cmd, view)
	}

	metrics := w.manager.Metrics()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  [%s]\n", view.Title, view.Scope)
	fmt.Fprintf(out, "Startup: %s  Evaluator: %s  Date: %s\n", active.Meta.Subject, active.Meta.Evaluator, active.Meta.Date)
	if !view.Validation.Valid {
		fmt.Fprintln(out, "Metadata incomplete: startup, evaluator and an ISO date are required.")
	}
	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tDIMENSION\tSCORE\tNOTES")
	for _, block := range view.Blocks {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", block.ID, block.Name, formatScore(block.Score), oneLine(block.Notes))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Total %.0f/108  Mean %.2f  CV %.2f  Risk %.1f  Completion %.1f%%\n",
		metrics.Total, metrics.Mean, metrics.CV, metrics.RiskScore, metrics.CompletionPercent)
	fmt.Fprintf(out, "Stage: %s\n", view.Stage)
	return nil
}

func runScore(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	id, err := parseDimension(args[0])
	if err != nil {
		return err
	}

	var patch canvas.DimensionPatch
	if strings.EqualFold(args[1], "clear") {
		patch.ClearScore = true
	} else {
		value, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("score must be a whole number from %d to %d", canvas.MinScore, canvas.MaxScore)
		}
		patch.Score = &value
	}

	ctx := commandContext(cmd)
	before := w.manager.Active().FilledCount()
	if err := w.manager.Mutate(ctx, id, patch); err != nil {
		return err
	}
	w.trackCanvasEdit(ctx, before)

	dim, _ := canvas.Lookup(id)
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", dim.Name, formatScore(w.manager.Active().Dimensions[id].Score))
	return nil
}

func runNote(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	id, err := parseDimension(args[0])
	if err != nil {
		return err
	}

	var patch canvas.DimensionPatch
	if cmd.Flags().Changed("notes") {
		notes, _ := cmd.Flags().GetString("notes")
		patch.Notes = &notes
	}
	if cmd.Flags().Changed("evidence") {
		evidence, _ := cmd.Flags().GetString("evidence")
		patch.Evidence = &evidence
	}
	if patch.Notes == nil && patch.Evidence == nil {
		return errors.New("pass --notes or --evidence")
	}

	ctx := commandContext(cmd)
	before := w.manager.Active().FilledCount()
	if err := w.manager.Mutate(ctx, id, patch); err != nil {
		return err
	}
	w.trackCanvasEdit(ctx, before)
	fmt.Fprintln(cmd.OutOrStdout(), "Saved.")
	return nil
}

func runMeta(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}

	var patch canvas.MetaPatch
	if cmd.Flags().Changed("startup") {
		value, _ := cmd.Flags().GetString("startup")
		patch.Subject = &value
	}
	if cmd.Flags().Changed("evaluator") {
		value, _ := cmd.Flags().GetString("evaluator")
		patch.Evaluator = &value
	}
	if cmd.Flags().Changed("date") {
		value, _ := cmd.Flags().GetString("date")
		if _, ok := canvas.NormalizeDate(value); !ok {
			return fmt.Errorf("invalid date %q: use YYYY-MM-DD or DD/MM/YYYY", value)
		}
		patch.Date = &value
	}
	if patch.Subject == nil && patch.Evaluator == nil && patch.Date == nil {
		return errors.New("pass --startup, --evaluator or --date")
	}

	ctx := commandContext(cmd)
	before := w.manager.Active().FilledCount()
	if err := w.manager.SetMeta(ctx, patch); err != nil {
		return err
	}
	w.trackCanvasEdit(ctx, before)
	fmt.Fprintln(cmd.OutOrStdout(), "Saved.")
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	w.trackCanvasAbandon(ctx)
	if err := w.manager.Reset(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Canvas cleared.")
	return nil
}

func runTheme(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	if err := w.manager.ToggleDarkMode(commandContext(cmd)); err != nil {
		return err
	}
	mode := "light"
	if w.manager.Active().DarkMode {
		mode = "dark"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Theme: %s\n", mode)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	_, entries, err := w.history(commandContext(cmd))
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No saved evaluations yet.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tDATE\tTITLE\tEVALUATOR\tTOTAL\tFILLED\tSTAGE")
	for i, entry := range entries {
		date := entry.EvaluatedAt
		if date == "" {
			date = entry.UpdatedAt.Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.0f\t%d/%d\t%s\n", i, date, entry.Title, entry.Meta.Evaluator,
			entry.Metrics.Total, entry.FilledCount, canvas.DimensionCount, stageOf(entry))
	}
	return tw.Flush()
}

func runCompare(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	currentIdx, _ := cmd.Flags().GetInt("current")
	previousIdx, _ := cmd.Flags().GetInt("previous")

	_, entries, err := w.history(commandContext(cmd))
	if err != nil {
		return err
	}
	for _, idx := range []int{currentIdx, previousIdx} {
		if idx < 0 || idx >= len(entries) {
			return fmt.Errorf("history has %d entries; index %d is out of range", len(entries), idx)
		}
	}
	current, previous := entries[currentIdx], entries[previousIdx]
	diff := history.Compare(current, previous)
	if jsonOutput {
		return printJSON(cmd, map[string]any{"current": current, "previous": previous, "delta": diff})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s) vs %s (%s)\n", current.Title, current.EvaluatedAt, previous.Title, previous.EvaluatedAt)
	fmt.Fprintf(out, "Total       %+.0f\n", diff.TotalDelta)
	fmt.Fprintf(out, "Risk score  %+.1f\n", diff.RiskScoreDelta)
	fmt.Fprintf(out, "CV          %+.2f\n", diff.CVDelta)
	fmt.Fprintf(out, "Completion  %+.1f%%\n", diff.CompletionDelta)
	fmt.Fprintf(out, "Filled      %+d\n", diff.FilledCountDelta)
	return nil
}

func runOpen(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	idx, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("history index: %w", err)
	}
	ctx := commandContext(cmd)
	records, entries, err := w.history(ctx)
	if err != nil {
		return err
	}
	if idx < 0 || idx >= len(entries) {
		return fmt.Errorf("history has %d entries; index %d is out of range", len(entries), idx)
	}

	for _, record := range records {
		if record.ID != entries[idx].ID {
			continue
		}
		doc := canvas.Document{Meta: record.Meta, Dimensions: record.Dimensions}
		if err := w.manager.Replace(ctx, doc, record.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Opened %s.\n", entries[idx].Title)
		return nil
	}
	return fmt.Errorf("history entry %s not found", entries[idx].ID)
}

func (w *workspace) history(ctx context.Context) ([]remote.Canvas, []history.Entry, error) {
	userID := w.signedInID()
	if w.client == nil || userID == "" {
		return nil, nil, errors.New("history needs a signed-in user; run srlcanvas login")
	}
	records, err := w.client.ListByUser(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("load history: %w", err)
	}
	return records, w.manager.History(records), nil
}

// trackCanvasEdit opens a metrics session on the first edit of a canvas and
// closes it once every dimension is scored. Edits of an already complete
// canvas are not tracked.
func (w *workspace) trackCanvasEdit(ctx context.Context, filledBefore int) {
	if !w.cfg.ProductMetricsEnabled || filledBefore >= canvas.DimensionCount {
		return
	}
	scope := w.manager.Scope()
	sessionID, created, err := w.tracker.CanvasSession(ctx, scope)
	if err != nil {
		w.logger.Warn("canvas metrics session", "error", err)
		return
	}
	if created {
		w.track(ctx, productmetrics.CanvasStartedPayload{
			SessionID:     sessionID,
			ScopeType:     scopeType(scope),
			RemoteEnabled: w.remoteEnabled(),
		})
	}

	filled := w.manager.Active().FilledCount()
	if filled < canvas.DimensionCount {
		return
	}
	w.track(ctx, productmetrics.CanvasCompletedPayload{
		SessionID:         sessionID,
		FilledBlocks:      filled,
		CompletionPercent: int(math.Round(w.manager.Metrics().CompletionPercent)),
	})
	if err := w.tracker.EndCanvasSession(ctx, scope); err != nil {
		w.logger.Warn("canvas metrics session", "error", err)
	}
}

// trackCanvasAbandon records an incomplete canvas with content as abandoned
// before it is cleared.
func (w *workspace) trackCanvasAbandon(ctx context.Context) {
	if !w.cfg.ProductMetricsEnabled {
		return
	}
	active := w.manager.Active()
	filled := active.FilledCount()
	if filled >= canvas.DimensionCount || !w.store.Meaningful(active.Document) {
		return
	}
	scope := w.manager.Scope()
	sessionID, created, err := w.tracker.CanvasSession(ctx, scope)
	if err != nil {
		w.logger.Warn("canvas metrics session", "error", err)
		return
	}
	if !created {
		w.track(ctx, productmetrics.CanvasAbandonedPayload{
			SessionID:    sessionID,
			FilledBlocks: filled,
			Stage:        productmetrics.AbandonStage(filled),
		})
	}
	if err := w.tracker.EndCanvasSession(ctx, scope); err != nil {
		w.logger.Warn("canvas metrics session", "error", err)
	}
}

func (w *workspace) track(ctx context.Context, payload productmetrics.Payload) {
	if _, err := w.tracker.Track(ctx, payload); err != nil {
		w.logger.Warn("product metric not recorded", "event", payload.Name(), "error", err)
	}
}

// parseDimension accepts a catalogue id or key.
func parseDimension(arg string) (canvas.DimensionID, error) {
	arg = strings.TrimSpace(arg)
	if n, err := strconv.Atoi(arg); err == nil {
		id := canvas.DimensionID(n)
		if !canvas.Known(id) {
			return 0, fmt.Errorf("%w: %d", canvas.ErrUnknownDimension, n)
		}
		return id, nil
	}
	for _, dim := range canvas.Catalogue {
		if strings.EqualFold(dim.Key, arg) {
			return dim.ID, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", canvas.ErrUnknownDimension, arg)
}

func scopeType(scope string) string {
	if scope == canvas.GuestScope {
		return "guest"
	}
	return "authenticated"
}

func stageOf(entry history.Entry) string {
	return score.StageFromTotal(entry.Metrics.Total).String()
}

func formatScore(value *int) string {
	if value == nil {
		return "-"
	}
	return strconv.Itoa(*value)
}

func oneLine(text string) string {
	runes := []rune(strings.Join(strings.Fields(text), " "))
	if len(runes) > 48 {
		return string(runes[:45]) + "..."
	}
	return string(runes)
}
