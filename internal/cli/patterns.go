package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/horizon/internal/pattern"
)

var (
	patternsMinConfidence float64
	patternsMinFrequency  int
	patternsEmerging      bool
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List detected patterns from the saved scanner state",
	RunE:  runPatterns,
}

func init() {
	patternsCmd.Flags().Float64Var(&patternsMinConfidence, "min-confidence", 0, "Only patterns at or above this confidence")
	patternsCmd.Flags().IntVarP(&patternsMinFrequency, "min-frequency", "f", 0, "Only patterns seen at least this often")
	patternsCmd.Flags().BoolVar(&patternsEmerging, "emerging", false, "List the emerging pattern table with trends instead")
}

func runPatterns(cmd *cobra.Command, args []string) error {
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

	sc, err := newScanner(ctx, cfg, db)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if patternsEmerging {
		emerging := sc.Emerging()
		if len(emerging) == 0 {
			fmt.Fprintln(out, "No emerging patterns.")
			return nil
		}
		for _, e := range emerging {
			fmt.Fprintf(out, "%s  %-13s len=%d last=%s\n", e.PatternID, e.Trend, e.Length, e.LastSeen.Format(time.RFC3339))
			fmt.Fprintf(out, "   %s\n", e.Query)
		}
		return nil
	}

	patterns := sc.Patterns(pattern.Query{
		MinConfidence: patternsMinConfidence,
		MinFrequency:  patternsMinFrequency,
	})
	if len(patterns) == 0 {
		fmt.Fprintln(out, "No patterns found.")
		return nil
	}
	for i, p := range patterns {
		fmt.Fprintf(out, "%d. [%.3f] %s (seen %d times, last %s)\n",
			i+1, p.Confidence, p.ID, p.Frequency, p.LastSeen.Format("2006-01-02 15:04:05"))
		parts := make([]string, len(p.Signature))
		for j, el := range p.Signature {
			parts[j] = fmt.Sprintf("%s/%s:%q", el.Source, el.Tag, el.Content)
		}
		fmt.Fprintf(out, "   %s\n", strings.Join(parts, " -> "))
	}
	return nil
}
