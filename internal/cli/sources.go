package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sheetvault/sheetvault/internal/models"
)

// sourcesCmd represents the sources command
var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List and select remote spreadsheets",
	Long: `List the spreadsheets your account can sync from, and select the one
this database follows.

Selecting a different source replaces the previous selection, clears the
rows cached from it and resets the sync position, so the next sync fetches
the new sheet from the top.

Examples:
  sheetvault sources
  sheetvault sources select 1a2b3c --range "Sheet1!A:D"
  sheetvault sources select 1a2b3c --range "2025!A:E" --name "Budget 2025"`,
	RunE: runSourcesList,
}

// sourcesSelectCmd represents the sources select subcommand
var sourcesSelectCmd = &cobra.Command{
	Use:   "select <spreadsheet-id>",
	Short: "Choose the spreadsheet to sync from",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourcesSelect,
}

var sourcesSelectFlags struct {
	Range string
	Name  string
}

func init() {
	sourcesSelectCmd.Flags().StringVar(&sourcesSelectFlags.Range, "range", "", "Sheet range to sync (e.g. \"Sheet1!A:D\")")
	sourcesSelectCmd.Flags().StringVar(&sourcesSelectFlags.Name, "name", "", "Display name (defaults to the spreadsheet title)")
	_ = sourcesSelectCmd.MarkFlagRequired("range")

	sourcesCmd.AddCommand(sourcesSelectCmd)
	RootCmd.AddCommand(sourcesCmd)
}

func runSourcesList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sources, err := a.engine.ListSources(cmd.Context())
	if err != nil {
		return err
	}

	if globalFlags.JSON {
		return printJSON(cmd, sources)
	}

	if len(sources) == 0 {
		cmd.Println("No spreadsheets visible to this account")
		return nil
	}

	w := newTabWriter(cmd)
	fmt.Fprintln(w, "ID\tNAME\tMODIFIED")
	for _, s := range sources {
		modified := ""
		if !s.ModifiedAt.IsZero() {
			modified = s.ModifiedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.Name, modified)
	}
	return w.Flush()
}

func runSourcesSelect(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	spreadsheetID := args[0]
	name := sourcesSelectFlags.Name

	// Resolve the display name from the listing when not given.
	if name == "" {
		sources, err := a.engine.ListSources(cmd.Context())
		if err != nil {
			return err
		}
		for _, s := range sources {
			if s.ID == spreadsheetID {
				name = s.Name
				break
			}
		}
		if name == "" {
			name = spreadsheetID
		}
	}

	cfg := &models.SourceConfig{
		Name:          name,
		SpreadsheetID: spreadsheetID,
		SheetRange:    sourcesSelectFlags.Range,
		AccountID:     a.cfg.Auth.Account,
	}
	if err := a.store.SaveSourceConfig(cmd.Context(), cfg); err != nil {
		return err
	}

	cmd.Printf("Selected %q (%s, range %s)\n", name, spreadsheetID, sourcesSelectFlags.Range)
	cmd.Println("Run \"sheetvault sync\" to fetch it")
	return nil
}
