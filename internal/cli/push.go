package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/horizon/internal/client"
)

var (
	pushURL  string
	pushScan bool
)

var pushCmd = &cobra.Command{
	Use:   "push [file.jsonl ...]",
	Short: "Send JSONL events to a running server",
	Long:  "Post line-delimited JSON events to a running `horizon serve`. Use - for stdin.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPush,
}

func init() {
	pushCmd.Flags().StringVar(&pushURL, "url", "", "Server URL (default $HORIZON_URL or http://127.0.0.1:37778)")
	pushCmd.Flags().BoolVar(&pushScan, "scan", false, "Ask the server to scan after pushing")
}

func runPush(cmd *cobra.Command, args []string) error {
	c := client.New(pushURL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	out := cmd.OutOrStdout()

	for _, path := range args {
		var r io.Reader
		if path == "-" {
			r = cmd.InOrStdin()
		} else {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open feed: %w", err)
			}
			defer f.Close()
			r = f
		}

		res, err := c.PushEvents(ctx, r)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %d accepted, %d duplicates, %d skipped\n", path, res.Accepted, res.Duplicates, res.Skipped)
	}

	if !pushScan {
		return nil
	}
	res, err := c.Scan(ctx)
	if err != nil {
		return err
	}
	if res.TooSoon {
		fmt.Fprintf(out, "scan skipped: next scan at %s\n", res.NextScan.Format(time.RFC3339))
		return nil
	}
	printReport(out, *res.Report)
	return nil
}
