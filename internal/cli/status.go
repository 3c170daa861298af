package cli

import (
	stderrors "errors"
	"time"

	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/sheetvault/sheetvault/internal/errors"
	"github.com/sheetvault/sheetvault/internal/models"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication and sync state",
	Long: `Display the current authentication state, the selected source and
how much of it is cached locally.

Examples:
  sheetvault status
  sheetvault status --json
  sheetvault status --metrics`,
	RunE: runStatus,
}

var statusFlags struct {
	Metrics bool
}

func init() {
	statusCmd.Flags().BoolVar(&statusFlags.Metrics, "metrics", false, "Dump internal metrics in Prometheus text format")
	RootCmd.AddCommand(statusCmd)
}

// statusReport is the JSON shape of the status output.
type statusReport struct {
	Auth    authReport    `json:"auth"`
	Source  *sourceReport `json:"source,omitempty"`
	Records int64         `json:"records"`
}

type authReport struct {
	State   string `json:"state"`
	Account string `json:"account"`
	Email   string `json:"email,omitempty"`
	Expiry  string `json:"expiry,omitempty"`
}

type sourceReport struct {
	Name          string `json:"name"`
	SpreadsheetID string `json:"spreadsheet_id"`
	SheetRange    string `json:"sheet_range"`
	Watermark     int64  `json:"watermark"`
	LastSynced    string `json:"last_synced,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if statusFlags.Metrics {
		return dumpMetrics(cmd, a)
	}

	authStatus := a.auth.Status()
	report := statusReport{
		Auth: authReport{
			State:   authStatus.State,
			Account: authStatus.Account,
			Email:   authStatus.Email,
		},
	}
	if !authStatus.Expiry.IsZero() {
		report.Auth.Expiry = authStatus.Expiry.Format(time.RFC3339)
	}

	cfg, err := a.store.GetSourceConfig(cmd.Context())
	if err != nil {
		var noCfg *errors.ErrNoSourceConfig
		if !stderrors.As(err, &noCfg) {
			return err
		}
	} else {
		report.Source = newSourceReport(cfg)
		count, err := a.store.CountRecords(cmd.Context(), cfg.ID)
		if err != nil {
			return err
		}
		report.Records = count
	}

	if globalFlags.JSON {
		return printJSON(cmd, report)
	}

	cmd.Printf("Auth:    %s (account %q)\n", report.Auth.State, report.Auth.Account)
	if report.Auth.Email != "" {
		cmd.Printf("Email:   %s\n", report.Auth.Email)
	}
	if report.Auth.Expiry != "" {
		cmd.Printf("Expiry:  %s\n", report.Auth.Expiry)
	}
	if report.Source == nil {
		cmd.Println("Source:  none selected (run \"sheetvault sources\")")
		return nil
	}
	cmd.Printf("Source:  %s (%s, range %s)\n", report.Source.Name, report.Source.SpreadsheetID, report.Source.SheetRange)
	cmd.Printf("Synced:  %d records through row %d\n", report.Records, report.Source.Watermark)
	if report.Source.LastSynced != "" {
		cmd.Printf("Last:    %s\n", report.Source.LastSynced)
	}
	return nil
}

func newSourceReport(cfg *models.SourceConfig) *sourceReport {
	r := &sourceReport{
		Name:          cfg.Name,
		SpreadsheetID: cfg.SpreadsheetID,
		SheetRange:    cfg.SheetRange,
		Watermark:     cfg.Watermark,
	}
	if !cfg.UpdatedAt.IsZero() {
		r.LastSynced = cfg.UpdatedAt.Format(time.RFC3339)
	}
	return r
}

func dumpMetrics(cmd *cobra.Command, a *app) error {
	families, err := a.metrics.Gather()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(out, mf); err != nil {
			return err
		}
	}
	return nil
}
