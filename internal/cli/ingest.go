package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/horizon/internal/event"
	"github.com/lazypower/horizon/internal/feed"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file.jsonl ...]",
	Short: "Queue events from JSONL feed files",
	Long: "Parse line-delimited JSON events and queue them in the database. " +
		"The next scan, from `horizon scan` or a running server, pulls them. Use - for stdin.",
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	parser := &feed.Parser{Classifier: event.NewClassifier(cfg.Engine.KeywordTags)}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var queued, duplicates, skipped int
	for _, path := range args {
		var res feed.Result
		if path == "-" {
			res, err = parser.Parse(cmd.InOrStdin())
		} else {
			res, err = parser.ParseFile(path)
		}
		if err != nil {
			return err
		}
		skipped += res.Skipped

		for _, ev := range res.Events {
			ok, err := db.InsertEvent(ctx, ev)
			if err != nil {
				return fmt.Errorf("queue %s: %w", ev.ID, err)
			}
			if ok {
				queued++
			} else {
				duplicates++
			}
		}
		if res.Skipped > 0 {
			fmt.Fprintf(os.Stderr, "%s: skipped %d malformed lines\n", path, res.Skipped)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "queued %d events (%d duplicates, %d malformed)\n", queued, duplicates, skipped)
	pending, err := db.PendingCount(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d events waiting for the next scan\n", pending)
	return nil
}
