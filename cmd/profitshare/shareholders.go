package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"profitshare/internal/cli"
	"profitshare/internal/core"
	"profitshare/internal/shareholders"
)

type shareholderAddCmd struct {
	name    string
	balance string
	stake   string
}

func (*shareholderAddCmd) Name() string     { return "shareholder-add" }
func (*shareholderAddCmd) Synopsis() string { return "register a shareholder" }
func (*shareholderAddCmd) Usage() string {
	return `profitshare shareholder-add -name <name> -stake <percent> [-balance <amount>]

  Adds a shareholder with an initial balance and a stake percentage in [0, 100].
`
}

func (c *shareholderAddCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "Display name, unique case-insensitively.")
	f.StringVar(&c.balance, "balance", "0", "Initial balance.")
	f.StringVar(&c.stake, "stake", "", "Stake percentage.")
}

func (c *shareholderAddCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	balance, err := core.ParseAmount(c.balance)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error parsing balance:", err)
		return subcommands.ExitUsageError
	}
	stake, err := core.ParseAmount(c.stake)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error parsing stake:", err)
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(ctx context.Context, app *cli.App) error {
		s, err := app.Service.AddShareholder(ctx, c.name, balance, stake)
		if err != nil {
			return err
		}
		fmt.Println(s.ID)
		return nil
	})
}

type shareholderUpdateCmd struct {
	id      string
	name    string
	stake   string
	initial string
}

func (*shareholderUpdateCmd) Name() string     { return "shareholder-update" }
func (*shareholderUpdateCmd) Synopsis() string { return "change a shareholder's name, stake or initial balance" }
func (*shareholderUpdateCmd) Usage() string {
	return `profitshare shareholder-update -id <id> [-name <name>] [-stake <percent>] [-initial <amount>]

  Only the flags given are changed. The running balance follows a new initial
  balance only while the shareholder has no ledger history.
`
}

func (c *shareholderUpdateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "Shareholder id.")
	f.StringVar(&c.name, "name", "", "New name.")
	f.StringVar(&c.stake, "stake", "", "New stake percentage.")
	f.StringVar(&c.initial, "initial", "", "New initial balance.")
}

func (c *shareholderUpdateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var u shareholders.Update
	if c.name != "" {
		u.Name = &c.name
	}
	for _, field := range []struct {
		raw string
		dst **decimal.Decimal
	}{{c.stake, &u.StakePercent}, {c.initial, &u.InitialBalance}} {
		if field.raw == "" {
			continue
		}
		v, err := core.ParseAmount(field.raw)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			return subcommands.ExitUsageError
		}
		*field.dst = &v
	}
	return withApp(ctx, func(ctx context.Context, app *cli.App) error {
		s, err := app.Service.UpdateShareholder(ctx, c.id, u)
		if err != nil {
			return err
		}
		printShareholders([]core.Shareholder{s})
		return nil
	})
}

type shareholderListCmd struct{}

func (*shareholderListCmd) Name() string           { return "shareholder-list" }
func (*shareholderListCmd) Synopsis() string       { return "list the roster with current balances" }
func (*shareholderListCmd) Usage() string          { return "profitshare shareholder-list\n" }
func (*shareholderListCmd) SetFlags(*flag.FlagSet) {}

func (*shareholderListCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(ctx context.Context, app *cli.App) error {
		printShareholders(app.Service.Shareholders())
		return nil
	})
}

type shareholderRemoveCmd struct {
	id string
}

func (*shareholderRemoveCmd) Name() string     { return "shareholder-remove" }
func (*shareholderRemoveCmd) Synopsis() string { return "remove a shareholder from the roster" }
func (*shareholderRemoveCmd) Usage() string {
	return `profitshare shareholder-remove -id <id>

  Hides the shareholder from the roster and future distributions. Ledger
  history is kept.
`
}

func (c *shareholderRemoveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "Shareholder id.")
}

func (c *shareholderRemoveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(ctx context.Context, app *cli.App) error {
		return app.Service.RemoveShareholder(ctx, c.id)
	})
}

type adjustCmd struct {
	id    string
	delta string
	note  string
}

func (*adjustCmd) Name() string     { return "adjust" }
func (*adjustCmd) Synopsis() string { return "record a manual balance adjustment" }
func (*adjustCmd) Usage() string {
	return `profitshare adjust -id <id> -delta <amount> [-note <text>]

  Appends a manual ledger entry. Negative deltas record withdrawals.
`
}

func (c *adjustCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "Shareholder id.")
	f.StringVar(&c.delta, "delta", "", "Signed amount, at least one cent.")
	f.StringVar(&c.note, "note", "", "Free-text note.")
}

func (c *adjustCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	delta, err := core.ParseAmount(c.delta)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error parsing delta:", err)
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(ctx context.Context, app *cli.App) error {
		e, err := app.Service.Adjust(ctx, c.id, delta, c.note)
		if err != nil {
			return err
		}
		printHistory([]core.ShareTransaction{e})
		return nil
	})
}

type historyCmd struct {
	id string
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "show a shareholder's ledger entries" }
func (*historyCmd) Usage() string {
	return `profitshare history -id <id>

  Lists ledger entries in application order. Removed shareholders keep their
  history.
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "Shareholder id.")
}

func (c *historyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(ctx context.Context, app *cli.App) error {
		printHistory(app.Service.History(c.id))
		return nil
	})
}

func printShareholders(list []core.Shareholder) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTAKE %\tBALANCE\tINITIAL")
	for _, s := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Name, s.StakePercent, s.Balance.StringFixed(2), s.InitialBalance.StringFixed(2))
	}
	w.Flush()
}

func printHistory(entries []core.ShareTransaction) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tREPORT\tSOURCE\tACTIVE\tFROM\tDELTA\tTO\tNOTE")
	for _, e := range entries {
		report := e.ReportID
		if report == "" {
			report = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%s\t%s\t%s\t%s\n",
			e.Seq, report, e.Source, e.Active,
			e.FromAmount.StringFixed(2), e.Delta.StringFixed(2), e.ToAmount.StringFixed(2), e.Note)
	}
	w.Flush()
}
