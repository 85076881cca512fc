package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/otaupdater/ota-download-manager/internal/adapter/sqlite"
	"github.com/otaupdater/ota-download-manager/internal/domain"
)

func newListCmd() *cobra.Command {
	var (
		filter  string
		asJSON  bool
		pending bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the stored transfers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mask, err := domain.ParseFilter(filter)
			if err != nil {
				return err
			}
			cfg, _, err := setup()
			if err != nil {
				return err
			}
			store, err := sqlite.Open(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("failed to open database %s: %w", cfg.Database.Path, err)
			}
			defer store.Close()

			snap, err := store.LoadSnapshot(context.Background())
			if err != nil {
				return err
			}
			recs := selectRecords(snap, mask, pending)
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(recs)
			}
			return writeTable(os.Stdout, recs)
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "comma separated categories: pending, running, active, inactive, paused, completed, cancelled, failed")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	cmd.Flags().BoolVar(&pending, "queue-order", false, "print only the pending queue, in the order it will run")
	return cmd
}

// selectRecords applies mask to the snapshot. With queueOrder set only
// pending transfers are returned, in queue order.
func selectRecords(snap *domain.Snapshot, mask domain.Filter, queueOrder bool) []domain.TransferRecord {
	recs := make([]domain.TransferRecord, 0, len(snap.Transfers))
	if queueOrder {
		byID := make(map[int64]domain.TransferRecord, len(snap.Transfers))
		for _, r := range snap.Transfers {
			byID[r.ID] = r
		}
		for _, id := range snap.Pending {
			if r, ok := byID[id]; ok && r.Status.MatchesFilter(mask) {
				recs = append(recs, r)
			}
		}
		return recs
	}
	for _, r := range snap.Transfers {
		if r.Status.MatchesFilter(mask) {
			recs = append(recs, r)
		}
	}
	return recs
}

func writeTable(w io.Writer, recs []domain.TransferRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPROGRESS\tTITLE")
	for _, r := range recs {
		title := domain.Present(r).Title
		if title == "" {
			title = r.Spec.URL
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.ID, r.Status, domain.ProgressString(r.DoneBytes, r.TotalBytes), title)
	}
	return tw.Flush()
}
