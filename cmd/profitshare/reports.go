package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"

	"profitshare/internal/amqp"
	"profitshare/internal/cli"
	"profitshare/internal/core"
	"profitshare/internal/distribution"
)

type reportFinalizeCmd struct {
	file string
	edit bool
}

func (*reportFinalizeCmd) Name() string     { return "report-finalize" }
func (*reportFinalizeCmd) Synopsis() string { return "store a report and distribute its profit" }
func (*reportFinalizeCmd) Usage() string {
	return `profitshare report-finalize -f <report.json> [-edit]

  Reads a report (period_start, period_end as RFC 3339, matrix, cash,
  outlet_expenses, prior_closing_balance, included_shareholders), computes its
  totals and applies the distribution. Omitting included_shareholders selects
  the whole roster; omitting prior_closing_balance uses the latest earlier
  report's final balance. With -edit the report must exist and is replaced.
`
}

func (c *reportFinalizeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.file, "f", "", "Report JSON file, - for stdin.")
	f.BoolVar(&c.edit, "edit", false, "Replace an existing report instead of creating one.")
}

func (c *reportFinalizeCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	report, err := decodeReport(c.file)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(ctx context.Context, app *cli.App) error {
		var (
			saved  core.ProfitReport
			result distribution.Result
		)
		if c.edit {
			saved, result, err = app.Service.Edit(ctx, report)
		} else {
			saved, result, err = app.Service.Finalize(ctx, report)
		}
		if err != nil {
			return err
		}
		printReport(saved)
		printResult(result)
		return nil
	})
}

func decodeReport(file string) (core.ProfitReport, error) {
	if file == "" {
		return core.ProfitReport{}, errors.New("-f is required")
	}
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return core.ProfitReport{}, err
	}
	return parseReport(data)
}

// parseReport decodes a report document. An absent prior_closing_balance
// asks finalization to derive it; an explicit value, zero included, is kept.
func parseReport(data []byte) (core.ProfitReport, error) {
	var report core.ProfitReport
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&report); err != nil {
		return core.ProfitReport{}, fmt.Errorf("decode report: %w", err)
	}
	var present struct {
		Prior *json.RawMessage `json:"prior_closing_balance"`
	}
	if err := json.Unmarshal(data, &present); err != nil {
		return core.ProfitReport{}, fmt.Errorf("decode report: %w", err)
	}
	report.DerivePriorClosing = present.Prior == nil
	return report, nil
}

type reportListCmd struct{}

func (*reportListCmd) Name() string           { return "report-list" }
func (*reportListCmd) Synopsis() string       { return "list stored reports by period" }
func (*reportListCmd) Usage() string          { return "profitshare report-list\n" }
func (*reportListCmd) SetFlags(*flag.FlagSet) {}

func (*reportListCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(ctx context.Context, app *cli.App) error {
		reports, err := app.Service.Reports(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTART\tEND\tFINAL BALANCE\tNET PROFIT\tRATE\tINCLUDED")
		for _, r := range reports {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
				r.ID, r.PeriodStart.Format("2006-01-02"), r.PeriodEnd.Format("2006-01-02"),
				r.Totals.FinalBalance.StringFixed(2), r.Totals.NetProfit.StringFixed(2),
				r.Comparison.PerUnitProfitRate.StringFixed(5), len(r.IncludedShareholders))
		}
		return w.Flush()
	})
}

type reportApplyCmd struct {
	id      string
	include string
	all     bool
	direct  bool
}

func (*reportApplyCmd) Name() string     { return "report-apply" }
func (*reportApplyCmd) Synopsis() string { return "re-apply a report with a new shareholder selection" }
func (*reportApplyCmd) Usage() string {
	return `profitshare report-apply -id <report> [-include <id,id,...> | -all] [-direct]

  Replaces the report's included shareholders and re-runs its distribution.
  Shareholders left out have this report's contribution reversed. When AMQP
  is configured the request is queued for the worker unless -direct is set.
`
}

func (c *reportApplyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "Report id.")
	f.StringVar(&c.include, "include", "", "Comma-separated shareholder ids. Empty excludes everyone.")
	f.BoolVar(&c.all, "all", false, "Include the whole current roster.")
	f.BoolVar(&c.direct, "direct", false, "Apply in this process even when AMQP is configured.")
}

func (c *reportApplyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.id == "" {
		fmt.Fprintln(os.Stderr, "Error: -id is required")
		return subcommands.ExitUsageError
	}
	if c.all && c.include != "" {
		fmt.Fprintln(os.Stderr, "Error: -include and -all cannot be used together")
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(ctx context.Context, app *cli.App) error {
		included := splitIDs(c.include)
		if c.all {
			for _, s := range app.Service.Shareholders() {
				included = append(included, s.ID)
			}
		}

		if app.AMQP != nil && !c.direct {
			if _, err := app.Service.Report(ctx, c.id); err != nil {
				return err
			}
			msg := amqp.NewDistributionRequestedMessage(c.id, included)
			if err := app.AMQP.PublishDistributionRequested(ctx, msg); err != nil {
				return fmt.Errorf("queue distribution request: %w", err)
			}
			fmt.Printf("queued distribution of %s for %d shareholders\n", c.id, len(included))
			return nil
		}

		result, err := app.Service.Reapply(ctx, c.id, included)
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	})
}

type reportDeleteCmd struct {
	id string
}

func (*reportDeleteCmd) Name() string     { return "report-delete" }
func (*reportDeleteCmd) Synopsis() string { return "delete a stored report" }
func (*reportDeleteCmd) Usage() string {
	return `profitshare report-delete -id <report>

  Deletes the report only. Its ledger entries stay and keep counting toward
  balances; they are listed so they can be corrected with adjust.
`
}

func (c *reportDeleteCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "Report id.")
}

func (c *reportDeleteCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(ctx context.Context, app *cli.App) error {
		orphans, err := app.Service.Delete(ctx, c.id)
		if err != nil {
			return err
		}
		if len(orphans) > 0 {
			fmt.Printf("%d ledger entries still reference %s:\n", len(orphans), c.id)
			printHistory(orphans)
		}
		return nil
	})
}

func splitIDs(s string) []string {
	ids := []string{}
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func printReport(r core.ProfitReport) {
	fmt.Printf("report %s (%s to %s)\n", r.ID, r.PeriodStart.Format("2006-01-02"), r.PeriodEnd.Format("2006-01-02"))
	fmt.Printf("  final balance  %s\n", r.Totals.FinalBalance.StringFixed(2))
	fmt.Printf("  net profit     %s\n", r.Totals.NetProfit.StringFixed(2))
	fmt.Printf("  prior closing  %s\n", r.PriorClosingBalance.StringFixed(2))
}

func printResult(res distribution.Result) {
	fmt.Printf("rate %s\n", res.Rate.StringFixed(5))
	printHistory(res.Entries)
}
