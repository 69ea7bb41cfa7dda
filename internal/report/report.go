// Package report renders subcommand results in a uniform way.
// Every command that produces tabular data goes through one of the
// three formats here instead of hand-rolling its own output.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Format selects the output encoding.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
)

// ParseFormat validates an --output flag value.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "table":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json or csv)", s)
	}
}

// Result is anything renderable as a table. JSON output marshals the
// value itself, so results keep their full structure there.
type Result interface {
	Headers() []string
	Rows() [][]string
}

// Render writes res to w in the requested format.
func Render(w io.Writer, format Format, res Result) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(res.Headers()); err != nil {
			return err
		}
		for _, row := range res.Rows() {
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	case FormatTable, "":
		tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
		fmt.Fprintln(tw, strings.Join(res.Headers(), "\t"))
		for _, row := range res.Rows() {
			fmt.Fprintln(tw, strings.Join(row, "\t"))
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// Simple is a ready-made Result for ad-hoc tables.
type Simple struct {
	Head []string   `json:"headers"`
	Data [][]string `json:"rows"`
}

// Headers implements Result.
func (s Simple) Headers() []string { return s.Head }

// Rows implements Result.
func (s Simple) Rows() [][]string { return s.Data }
