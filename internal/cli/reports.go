package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var reportsLimit int

var reportsCmd = &cobra.Command{
	Use:   "reports [id]",
	Short: "List archived scan reports, or show one as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReports,
}

func init() {
	reportsCmd.Flags().IntVarP(&reportsLimit, "limit", "n", 10, "Maximum number of reports")
}

func runReports(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		r, err := db.GetReport(ctx, args[0])
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("report %s not found", args[0])
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	reports, err := db.ListReports(ctx, reportsLimit)
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		fmt.Fprintln(out, "No reports yet. Run `horizon scan` first.")
		return nil
	}
	for _, r := range reports {
		fmt.Fprintf(out, "%s  %s  %d events, %d patterns, %d warnings\n",
			r.Timestamp.Format("2006-01-02 15:04:05"), r.ID, r.EventsProcessed, r.PatternCount, len(r.Warnings))
	}
	return nil
}
