package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"srlcanvas/api/internal/productmetrics"
)

func runMetricsReport(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	report, err := w.tracker.Report(commandContext(cmd))
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, report)
	}

	out := cmd.OutOrStdout()
	if !w.cfg.ProductMetricsEnabled {
		fmt.Fprintln(out, "Product metrics are disabled; showing events recorded earlier.")
	}
	fmt.Fprintf(out, "%d events\n\n", report.TotalEvents)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FUNNEL\tSTARTED\tCOMPLETED\tABANDONED\tCOMPLETION")
	fmt.Fprintf(tw, "canvas\t%d\t%d\t%d\t%.1f%%\n", report.Canvas.Started, report.Canvas.Completed, report.Canvas.Abandoned, report.Canvas.CompletionRate)
	fmt.Fprintf(tw, "survey\t%d\t%d\t%d\t%.1f%%\n", report.Survey.Started, report.Survey.Completed, report.Survey.Abandoned, report.Survey.CompletionRate)
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SURVEY STEP\tABANDONED")
	for _, step := range productmetrics.Steps {
		fmt.Fprintf(tw, "%s\t%d\n", step, report.Survey.AbandonedByStep[step])
	}
	return tw.Flush()
}

func runMetricsEvents(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	events, err := w.tracker.Events(commandContext(cmd))
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, events)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tEVENT\tSESSION")
	for _, event := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", event.Timestamp.Local().Format("2006-01-02 15:04:05"), event.Name, event.Session())
	}
	return tw.Flush()
}

func runMetricsClear(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	if err := w.tracker.Clear(commandContext(cmd)); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Event log cleared.")
	return nil
}
