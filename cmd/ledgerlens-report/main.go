// Command ledgerlens-report prints the spending report for one year, and
// optionally one month, of a JSON expense export.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"ledgerlens/internal/analytics"
	"ledgerlens/internal/ingest"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(2)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("ledgerlens-report", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("file", "data/expenses.json", "path to a JSON expense export")
	year := fs.String("year", strconv.Itoa(time.Now().Year()), "calendar year to report")
	month := fs.String("month", analytics.AllMonths, "month (Jan..Dec or 1-12) or All")
	format := fs.String("format", "text", "output format: text or json")
	showIssues := fs.Bool("issues", false, "list rejected records on stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f, err := analytics.ParseFilter(*year, *month)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("read %s: %w", *file, err)
	}
	res, err := ingest.Decode(data)
	if err != nil {
		return err
	}
	if len(res.Issues) > 0 {
		fmt.Fprintf(stderr, "%d record(s) rejected\n", len(res.Issues))
		if *showIssues {
			for _, is := range res.Issues {
				fmt.Fprintln(stderr, " ", is.Error())
			}
		}
	}

	report := analytics.BuildReport(res.Expenses, f)
	switch *format {
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "text":
		return writeText(stdout, report)
	default:
		return fmt.Errorf("unknown format %q", *format)
	}
}

// othersPreview is how many collapsed categories are named under Others.
const othersPreview = 5

func writeText(w io.Writer, r analytics.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)

	fmt.Fprintf(tw, "Report %d / %s\n\n", r.Filter.Year, r.Filter.Month)

	fmt.Fprintln(tw, "Month\tTotal\t")
	for _, m := range r.Monthly {
		fmt.Fprintf(tw, "%s\t%s\t\n", m.Name, m.Total)
	}

	fmt.Fprintln(tw, "\nCategory\tTotal\tShare\t")
	for _, c := range r.Categories.ChartData {
		fmt.Fprintf(tw, "%s\t%s\t%.1f%%\t\n", c.Name, c.Value, c.Percent)
		if c.IsOther {
			fmt.Fprintln(tw, othersLine(c))
		}
	}

	s := r.Summary
	fmt.Fprintf(tw, "\nTotal\t%s\t\n", s.Total)
	fmt.Fprintf(tw, "Count\t%d\t\n", s.Count)
	if s.Highest != nil {
		fmt.Fprintf(tw, "Highest\t%s\t%s\t\n", s.Highest.Amount, s.Highest.Label())
	} else {
		fmt.Fprintln(tw, "Highest\t-\t")
	}
	return tw.Flush()
}

// othersLine names the first collapsed categories of an Others entry.
func othersLine(c analytics.CategorySlice) string {
	shown, more := c.Preview(othersPreview)
	parts := make([]string, 0, len(shown))
	for _, d := range shown {
		parts = append(parts, fmt.Sprintf("%s %s", d.Name, d.Value))
	}
	line := "  Includes: " + strings.Join(parts, ", ")
	if more > 0 {
		line += fmt.Sprintf(" and %d more", more)
	}
	return line
}
