package main

import "github.com/spf13/cobra"

var (
	rootCmd = &cobra.Command{
		Use:   "srlcanvas",
		Short: "Score a startup on the twelve SRL Canvas dimensions",
		Long: `srlcanvas keeps an SRL Canvas evaluation on this machine and, once you
sign in, syncs it to the canvas API so every evaluation lands in your history.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// --- Account ---
	loginCmd = &cobra.Command{
		Use:   "login",
		Short: "Sign in and claim the guest canvas",
		Args:  cobra.NoArgs,
		RunE:  runLogin, // Defined in cmd_auth.go
	}
	logoutCmd = &cobra.Command{
		Use:   "logout",
		Short: "Sign out and switch back to the guest canvas",
		Args:  cobra.NoArgs,
		RunE:  runLogout, // Defined in cmd_auth.go
	}
	whoamiCmd = &cobra.Command{
		Use:   "whoami",
		Short: "Print the signed-in user and the active scope",
		Args:  cobra.NoArgs,
		RunE:  runWhoami, // Defined in cmd_auth.go
	}

	// --- Canvas ---
	showCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the active canvas with its metrics and stage",
		Args:  cobra.NoArgs,
		RunE:  runShow, // Defined in cmd_canvas.go
	}
	scoreCmd = &cobra.Command{
		Use:   "score <dimension> <1-9|clear>",
		Short: "Score a dimension or clear its score",
		Args:  cobra.ExactArgs(2),
		RunE:  runScore, // Defined in cmd_canvas.go
	}
	noteCmd = &cobra.Command{
		Use:   "note <dimension>",
		Short: "Set the notes or evidence of a dimension",
		Args:  cobra.ExactArgs(1),
		RunE:  runNote, // Defined in cmd_canvas.go
	}
	metaCmd = &cobra.Command{
		Use:   "meta",
		Short: "Set the startup, evaluator or date of the canvas",
		Args:  cobra.NoArgs,
		RunE:  runMeta, // Defined in cmd_canvas.go
	}
	resetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Start a blank canvas in the active scope",
		Args:  cobra.NoArgs,
		RunE:  runReset, // Defined in cmd_canvas.go
	}
	themeCmd = &cobra.Command{
		Use:   "theme",
		Short: "Toggle dark mode for the active scope",
		Args:  cobra.NoArgs,
		RunE:  runTheme, // Defined in cmd_canvas.go
	}
	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "List saved evaluations, newest first",
		Args:  cobra.NoArgs,
		RunE:  runHistory, // Defined in cmd_canvas.go
	}
	openCmd = &cobra.Command{
		Use:   "open <history-index>",
		Short: "Load a saved evaluation into the active canvas",
		Args:  cobra.ExactArgs(1),
		RunE:  runOpen, // Defined in cmd_canvas.go
	}
	compareCmd = &cobra.Command{
		Use:   "compare",
		Short: "Compare the metrics of two history entries",
		Args:  cobra.NoArgs,
		RunE:  runCompare, // Defined in cmd_canvas.go
	}

	// --- Research survey ---
	surveyCmd = &cobra.Command{
		Use:   "survey",
		Short: "Answer the SRL Canvas research survey",
	}
	surveyFingerprintCmd = &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the instrument fingerprint registered with the ethics board",
		Args:  cobra.NoArgs,
		RunE:  runSurveyFingerprint, // Defined in cmd_survey.go
	}
	surveyConsentCmd = &cobra.Command{
		Use:   "consent",
		Short: "Manage research consent",
	}
	surveyConsentStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Print the current consent state",
		Args:  cobra.NoArgs,
		RunE:  runSurveyConsentStatus, // Defined in cmd_survey.go
	}
	surveyConsentAcceptCmd = &cobra.Command{
		Use:   "accept",
		Short: "Accept the research consent",
		Args:  cobra.NoArgs,
		RunE:  runSurveyConsentAccept, // Defined in cmd_survey.go
	}
	surveyConsentRevokeCmd = &cobra.Command{
		Use:   "revoke",
		Short: "Withdraw the research consent",
		Args:  cobra.NoArgs,
		RunE:  runSurveyConsentRevoke, // Defined in cmd_survey.go
	}
	surveyDraftCmd = &cobra.Command{
		Use:   "draft",
		Short: "Manage the saved survey draft",
	}
	surveyDraftShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the saved draft",
		Args:  cobra.NoArgs,
		RunE:  runSurveyDraftShow, // Defined in cmd_survey.go
	}
	surveyDraftSaveCmd = &cobra.Command{
		Use:   "save",
		Short: "Save form values as the draft",
		Args:  cobra.NoArgs,
		RunE:  runSurveyDraftSave, // Defined in cmd_survey.go
	}
	surveyDraftClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Discard the saved draft",
		Args:  cobra.NoArgs,
		RunE:  runSurveyDraftClear, // Defined in cmd_survey.go
	}
	surveySubmitCmd = &cobra.Command{
		Use:   "submit",
		Short: "Submit the survey",
		Args:  cobra.NoArgs,
		RunE:  runSurveySubmit, // Defined in cmd_survey.go
	}
	surveyResponsesCmd = &cobra.Command{
		Use:   "responses",
		Short: "List responses stored on this machine",
		Args:  cobra.NoArgs,
		RunE:  runSurveyResponses, // Defined in cmd_survey.go
	}

	// --- Product metrics ---
	metricsCmd = &cobra.Command{
		Use:   "metrics",
		Short: "Inspect the local product metrics log",
	}
	metricsReportCmd = &cobra.Command{
		Use:   "report",
		Short: "Print funnel completion for the canvas and the survey",
		Args:  cobra.NoArgs,
		RunE:  runMetricsReport, // Defined in cmd_metrics.go
	}
	metricsEventsCmd = &cobra.Command{
		Use:   "events",
		Short: "Print the raw event log",
		Args:  cobra.NoArgs,
		RunE:  runMetricsEvents, // Defined in cmd_metrics.go
	}
	metricsClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Delete the event log",
		Args:  cobra.NoArgs,
		RunE:  runMetricsClear, // Defined in cmd_metrics.go
	}
)
