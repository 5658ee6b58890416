package batch

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
)

// Report formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// WriteReport writes results as an aligned table or as one JSON object per line.
func WriteReport(w io.Writer, results []Result, format string) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		for _, r := range results {
			if err := enc.Encode(r); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
		}
		return nil
	case FormatText, "":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tMETRIC\tSTATUS\tSCORE\tERROR")
		for _, r := range results {
			score := "-"
			if r.Outcome.Score != nil {
				score = strconv.FormatFloat(*r.Outcome.Score, 'f', -1, 64)
			}
			errText := r.Outcome.Error
			if errText == "" {
				errText = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Name, r.Request.Metric, r.Status, score, errText)
		}
		if err := tw.Flush(); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}
