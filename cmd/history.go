package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/surge-downloader/trickle/internal/engine/state"
	"github.com/surge-downloader/trickle/internal/engine/types"
	"github.com/surge-downloader/trickle/internal/utils"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List finished downloads",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		jsonOut, _ := cmd.Flags().GetBool("json")

		records, err := state.ListHistory(limit)
		if err != nil {
			return fmt.Errorf("failed to read history: %w", err)
		}
		return printHistory(cmd.OutOrStdout(), records, jsonOut)
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all recorded downloads",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := state.ClearHistory()
		if err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries\n", n)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Number of entries to show (0 for all)")
	historyCmd.Flags().Bool("json", false, "Print entries as JSON")
	historyCmd.AddCommand(historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}

func printHistory(w io.Writer, records []types.TransferRecord, jsonOut bool) error {
	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Fprintln(w, "No downloads recorded.")
		return nil
	}
	for _, r := range records {
		fmt.Fprintln(w, formatRecord(r))
	}
	return nil
}

func formatRecord(r types.TransferRecord) string {
	line := fmt.Sprintf("%s  %-9s  %-10s  %s  %s",
		shortID(r.ID),
		r.Status,
		utils.ConvertBytesToHumanReadable(r.Downloaded),
		humanize.Time(time.Unix(r.FinishedAt, 0)),
		r.Filename,
	)
	if r.Error != "" {
		line += "  (" + r.Error + ")"
	}
	return line
}
