package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/futures-journal/ingest"
	"github.com/rustyeddy/futures-journal/internal/app"
)

func newImportCmd(rc *RootConfig) *cobra.Command {
	var (
		userID    string
		platform  string
		path      string
		format    string
		accountID string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a broker export for one user",
		Long: `Parse, price and store every row of a Tradovate, TopstepX or manual
export. Bad rows are reported and skipped; the rest are stored and the
user's analytics are recomputed.

Examples:
  futures-journal import --user alice --platform tradovate --file fills.csv
  futures-journal import --user alice --platform manual --file trades.json --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := readRows(cmd.InOrStdin(), path, format)
			if err != nil {
				return err
			}

			return rc.open(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Pipeline.Ingest(ctx, ingest.Request{
					UserID:    userID,
					Platform:  platform,
					AccountID: accountID,
					Rows:      rows,
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(res)
				}

				fmt.Fprintf(out, "✓ Imported %d of %d rows for %s (account %s)\n",
					res.ProcessedCount, len(res.Rows), res.UserID, res.AccountID)
				for _, r := range res.Rows {
					if !r.Success {
						fmt.Fprintf(out, "  row %d [%s] %s\n", r.RowIndex, r.Stage, r.Error)
					}
				}
				if res.AggregationError != "" {
					fmt.Fprintf(out, "! analytics not refreshed: %s\n", res.AggregationError)
				}
				if res.ProcessedCount == 0 && res.ErrorCount > 0 {
					return fmt.Errorf("no rows imported")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id (required)")
	cmd.Flags().StringVarP(&platform, "platform", "p", "", "tradovate|topstepx|manual (required)")
	cmd.Flags().StringVarP(&path, "file", "f", "", "export file, - for stdin (required)")
	cmd.Flags().StringVar(&format, "format", "auto", "auto|csv|json")
	cmd.Flags().StringVar(&accountID, "account", "", "store into this account instead of the platform default")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full batch result as JSON")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("platform")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// readRows decodes path as CSV or JSON. auto picks by extension and falls
// back to sniffing the first non-blank byte.
func readRows(stdin io.Reader, path, format string) ([]ingest.Row, error) {
	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	br := bufio.NewReader(r)

	if format == "auto" {
		format = detectFormat(path, br)
	}
	switch format {
	case "csv":
		return ingest.ReadCSVRows(br)
	case "json":
		return ingest.ReadJSONRows(br)
	default:
		return nil, fmt.Errorf("unknown format %q, want auto, csv or json", format)
	}
}

func detectFormat(path string, br *bufio.Reader) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return "csv"
	case ".json":
		return "json"
	}
	peek, _ := br.Peek(512)
	peek = bytes.TrimLeft(peek, " \t\r\n")
	if len(peek) > 0 && (peek[0] == '[' || peek[0] == '{') {
		return "json"
	}
	return "csv"
}
