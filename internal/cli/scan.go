package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/horizon/internal/horizon"
)

var (
	scanJSON     bool
	scanBaseline bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one scan over the queued events",
	Long:  "Restore the saved scanner state, pull queued events, scan, and save the state back.",
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print the full report as JSON")
	scanCmd.Flags().BoolVar(&scanBaseline, "baseline", false, "Re-establish the anomaly baseline after the scan")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	sc, err := newScanner(ctx, cfg, db)
	if err != nil {
		return err
	}

	res := sc.Scan(ctx)
	if res.TooSoon {
		fmt.Fprintf(cmd.OutOrStdout(), "scan skipped: next scan at %s\n", res.NextScan.Format(time.RFC3339))
		return nil
	}
	if scanBaseline {
		sc.EstablishBaseline()
		if err := sc.SaveState(ctx); err != nil {
			return err
		}
	}

	if scanJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res.Report)
	}
	printReport(cmd.OutOrStdout(), res.Report)
	return nil
}

func printReport(w io.Writer, r horizon.Report) {
	fmt.Fprintf(w, "## Scan %s\n\n", r.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "  id: %s\n", r.ID)
	fmt.Fprintf(w, "  events: %d processed, %d skipped\n", r.EventsProcessed, r.EventsSkipped)
	fmt.Fprintf(w, "  patterns: %d (%d emerging, %d strengthening, %d weakening)\n",
		r.PatternCount,
		r.Emerging.Counts[horizon.TrendEmerging],
		r.Emerging.Counts[horizon.TrendStrengthening],
		r.Emerging.Counts[horizon.TrendWeakening])
	fmt.Fprintf(w, "  anomalies: %d (avg %.3f, %d high)\n", r.Anomalies.Count, r.Anomalies.Average, len(r.Anomalies.High))
	if r.DominantTag != "" {
		fmt.Fprintf(w, "  dominant tag: %s\n", r.DominantTag)
	}

	if len(r.Resonance) > 0 {
		tags := make([]string, 0, len(r.Resonance))
		for tag := range r.Resonance {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		fmt.Fprintln(w, "\n### Resonance")
		for _, tag := range tags {
			fmt.Fprintf(w, "  %-16s %.3f\n", tag, r.Resonance[tag])
		}
	}

	if len(r.QuietDensity) > 0 {
		fmt.Fprintln(w, "\n### Quiet density")
		for _, qt := range []horizon.QuietType{horizon.QuietLowResonance, horizon.QuietKeyword, horizon.QuietStill} {
			if d, ok := r.QuietDensity[qt]; ok {
				fmt.Fprintf(w, "  %-16s %.3f\n", qt, d)
			}
		}
	}

	if len(r.Warnings) > 0 {
		fmt.Fprintln(w, "\n### Warnings")
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "  [%s] %s\n", warn.Severity, warn.Message)
		}
	}
}
