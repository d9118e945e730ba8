package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"srlcanvas/api/internal/config"
)

var (
	cfg config.Config
	ws  *workspace

	configPath string
	dataDir    string
	apiURL     string
	jsonOutput bool
	verbose    bool
)

func main() {
	err := rootCmd.Execute()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	closeWorkspace(ctx)
	cancel()

	if err != nil {
		log.Fatalf("srlcanvas: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (default <data-dir>/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory for local canvases and credentials")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "canvas API base URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print machine-readable JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := loadConfig()
		if err != nil {
			return err
		}
		cfg = loaded

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		opened, err := openWorkspace(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		ws = opened
		return nil
	}

	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
	loginCmd.Flags().String("email", "", "account email")
	loginCmd.Flags().String("password", "", "account password (read from SRL_PASSWORD when empty)")
	loginCmd.Flags().Bool("signup", false, "create the account before signing in")
	loginCmd.Flags().String("name", "", "display name used with --signup")

	rootCmd.AddCommand(showCmd, scoreCmd, noteCmd, metaCmd, resetCmd, themeCmd, historyCmd, openCmd, compareCmd)
	noteCmd.Flags().String("notes", "", "dimension notes")
	noteCmd.Flags().String("evidence", "", "dimension evidence")
	metaCmd.Flags().String("startup", "", "startup being evaluated")
	metaCmd.Flags().String("evaluator", "", "evaluator name")
	metaCmd.Flags().String("date", "", "evaluation date (YYYY-MM-DD or DD/MM/YYYY)")
	compareCmd.Flags().Int("current", 0, "history index of the current entry")
	compareCmd.Flags().Int("previous", 1, "history index of the previous entry")

	rootCmd.AddCommand(surveyCmd)
	surveyCmd.AddCommand(surveyFingerprintCmd, surveyConsentCmd, surveyDraftCmd, surveySubmitCmd, surveyResponsesCmd)
	surveyConsentCmd.AddCommand(surveyConsentStatusCmd, surveyConsentAcceptCmd, surveyConsentRevokeCmd)
	surveyDraftCmd.AddCommand(surveyDraftShowCmd, surveyDraftSaveCmd, surveyDraftClearCmd)
	surveyDraftSaveCmd.Flags().String("file", "", "JSON file with form values")
	surveyDraftSaveCmd.Flags().String("step", "", "current step key")
	surveySubmitCmd.Flags().String("file", "", "JSON file with form values (defaults to the saved draft)")
	surveySubmitCmd.Flags().String("next", "/canvas", "path recorded as the post-survey destination")

	rootCmd.AddCommand(metricsCmd)
	metricsCmd.AddCommand(metricsReportCmd, metricsEventsCmd, metricsClearCmd)
}

// loadConfig reads the environment, then the YAML file, then the flags.
func loadConfig() (config.Config, error) {
	loaded := config.Load()
	if dataDir != "" {
		loaded.DataDir = dataDir
	}

	path := configPath
	if path == "" {
		path = filepath.Join(loaded.DataDir, "config.yaml")
	}
	loaded, err := config.LoadFile(path, loaded)
	if err != nil {
		return loaded, err
	}

	if dataDir != "" {
		loaded.DataDir = dataDir
	}
	if apiURL != "" {
		loaded.APIURL = apiURL
	}
	return loaded, nil
}

func closeWorkspace(ctx context.Context) {
	if ws == nil {
		return
	}
	if err := ws.Close(ctx); err != nil {
		slog.Warn("closing workspace", "error", err)
	}
	ws = nil
}
