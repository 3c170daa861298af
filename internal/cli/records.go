package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// recordsCmd represents the records command
var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Show locally cached records",
	Long: `Print the synced records from the local database.

Works fully offline: no network access and no login is needed to read
rows that were already synced.

Examples:
  sheetvault records
  sheetvault records --limit 20
  sheetvault records --json`,
	RunE: runRecords,
}

var recordsFlags struct {
	Limit int
}

func init() {
	recordsCmd.Flags().IntVar(&recordsFlags.Limit, "limit", 0, "Show at most this many records (0 = all)")
	RootCmd.AddCommand(recordsCmd)
}

func runRecords(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg, err := a.store.GetSourceConfig(cmd.Context())
	if err != nil {
		return err
	}

	records, err := a.store.ListRecords(cmd.Context(), cfg.ID)
	if err != nil {
		return err
	}
	if recordsFlags.Limit > 0 && len(records) > recordsFlags.Limit {
		records = records[:recordsFlags.Limit]
	}

	if globalFlags.JSON {
		return printJSON(cmd, records)
	}

	if len(records) == 0 {
		cmd.Println("No records synced yet (run \"sheetvault sync\")")
		return nil
	}

	w := newTabWriter(cmd)
	fmt.Fprintln(w, "ROW\tDATE\tDESCRIPTION\tAMOUNT\tCATEGORY")
	for _, r := range records {
		fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%s\n", r.NaturalKey, r.Date, r.Description, r.Amount(), r.Category)
	}
	return w.Flush()
}
