package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"

	"github.com/google/subcommands"

	"profitshare/internal/cli"
	applog "profitshare/internal/log"
)

var commands = []subcommands.Command{
	&shareholderAddCmd{},
	&shareholderUpdateCmd{},
	&shareholderListCmd{},
	&shareholderRemoveCmd{},
	&adjustCmd{},
	&historyCmd{},
	&reportFinalizeCmd{},
	&reportListCmd{},
	&reportApplyCmd{},
	&reportDeleteCmd{},
}

func main() {
	cli.LoadEnvFile()

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	for _, c := range commands {
		commander.Register(c, "")
	}

	flag.Parse()
	ctx, stop := cli.SignalContext(context.Background())
	code := commander.Execute(ctx)
	stop()
	os.Exit(int(code))
}

// withApp opens the configured backend and report service, runs fn and
// flushes pending settings before returning.
func withApp(ctx context.Context, fn func(context.Context, *cli.App) error) subcommands.ExitStatus {
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	logger := cli.SetupLogger(cfg, applog.ComponentCLI)

	app, err := cli.OpenApp(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	runErr := fn(ctx, app)
	// flush even when ctx was cancelled mid-command
	if err := app.Close(context.WithoutCancel(ctx)); err != nil {
		logger.LogError(ctx, "Failed to persist settings", err, applog.ErrorTypeDatabase, applog.OpShutdown, nil)
		if runErr == nil {
			runErr = err
		}
	}
	if runErr != nil {
		fmt.Fprintln(os.Stderr, "Error:", runErr)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
