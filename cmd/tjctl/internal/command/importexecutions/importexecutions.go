// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package importexecutions implements the "import" command.
package importexecutions

import (
	"context"
	"errors"
	"strconv"

	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/tjctl/cmd/tjctl/internal/tjctlcmd"
	"github.com/bufdev/tjctl/internal/pkg/cliio"
	"github.com/bufdev/tjctl/internal/tjctl/tjctljournal"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlmetrics"
	"github.com/spf13/pflag"
)

const dryRunFlagName = "dry-run"

var headers = []string{
	"ACCOUNT",
	"FILES",
	"READ",
	"NEW",
	"MATCHED",
	"REJECTED",
	"UNMATCHED",
	"OPEN",
	"CLOSED",
	"REALIZED P&L",
}

// NewCommand returns a new import command.
func NewCommand(name string, builder appext.SubCommandBuilder) *appcmd.Command {
	flags := newFlags()
	return &appcmd.Command{
		Use:   name,
		Short: "Import broker executions and re-match trades",
		Long: `Import broker executions and re-match trades.

Activity Statement CSV and Flex Query XML files are read from
executions/<account>/ in the journal directory. New executions are stored,
the complete execution history of each account is matched into trades, and
the account's stored trades and import issues are replaced.

With --dry-run, the files are matched on their own and nothing is stored.

If metrics.pushgateway_url is set in tjctl.yaml, the import metrics are
pushed to the Prometheus Pushgateway when the import ends.`,
		Args: appcmd.NoArgs,
		Run: builder.NewRunFunc(
			func(ctx context.Context, container appext.Container) error {
				return run(ctx, container, flags)
			},
		),
		BindFlags: flags.Bind,
	}
}

type flags struct {
	Dir     string
	Format  string
	Account string
	DryRun  bool
}

func newFlags() *flags {
	return &flags{}
}

// Bind registers the flag definitions with the given flag set.
func (f *flags) Bind(flagSet *pflag.FlagSet) {
	tjctlcmd.BindDirFlag(flagSet, &f.Dir)
	tjctlcmd.BindFormatFlag(flagSet, &f.Format)
	flagSet.StringVar(&f.Account, tjctlcmd.AccountFlagName, "", "Import only the account with this alias")
	flagSet.BoolVar(&f.DryRun, dryRunFlagName, false, "Match the broker files without reading or writing the database")
}

func run(ctx context.Context, container appext.Container, flags *flags) (retErr error) {
	format, err := cliio.ParseFormat(flags.Format)
	if err != nil {
		return appcmd.NewInvalidArgumentError(err.Error())
	}
	config, err := tjctlcmd.ReadConfig(container, flags.Dir)
	if err != nil {
		return err
	}
	if flags.Account != "" {
		if _, ok := config.Account(flags.Account); !ok {
			return appcmd.NewInvalidArgumentErrorf("unknown account %q", flags.Account)
		}
	}
	importOptions := tjctljournal.ImportOptions{
		AccountAlias: flags.Account,
	}
	var accountSummaries []*tjctljournal.AccountSummary
	if flags.DryRun {
		accountSummaries, err = tjctljournal.MatchFiles(container.Logger(), config, importOptions)
		if err != nil {
			return err
		}
	} else {
		classifier, err := tjctljournal.LoadClassifier(config)
		if err != nil {
			return err
		}
		store, err := tjctlcmd.OpenStore(container, config)
		if err != nil {
			return err
		}
		defer func() {
			retErr = errors.Join(retErr, store.Close())
		}()
		locker := tjctlcmd.NewLocker(config)
		defer func() {
			retErr = errors.Join(retErr, locker.Close())
		}()
		metrics := tjctlmetrics.New()
		importer := tjctljournal.NewImporter(
			container.Logger(),
			config,
			store,
			locker,
			tjctljournal.ImporterWithClassifier(classifier),
			tjctljournal.ImporterWithMetrics(metrics),
		)
		accountSummaries, err = importer.Import(ctx, importOptions)
		// Push even when the import failed.
		if config.Metrics.PushgatewayURL != "" {
			if pushErr := metrics.Push(ctx, config.Metrics.PushgatewayURL, config.Metrics.PushJob); pushErr != nil {
				container.Logger().Warn("failed to push import metrics", "error", pushErr)
			}
		}
		if err != nil {
			return err
		}
	}
	rows := make([][]string, 0, len(accountSummaries))
	for _, accountSummary := range accountSummaries {
		rows = append(rows, accountSummaryToRow(accountSummary))
	}
	return cliio.Write(container.Stdout(), format, cliio.Table{Headers: headers, Rows: rows}, accountSummaries)
}

func accountSummaryToRow(accountSummary *tjctljournal.AccountSummary) []string {
	return []string{
		accountSummary.Account,
		strconv.Itoa(accountSummary.Files),
		strconv.Itoa(accountSummary.ExecutionsRead),
		strconv.Itoa(accountSummary.ExecutionsNew),
		strconv.Itoa(accountSummary.ExecutionsMatched),
		strconv.Itoa(accountSummary.Rejected),
		strconv.Itoa(accountSummary.Unmatched),
		strconv.Itoa(accountSummary.OpenTrades),
		strconv.Itoa(accountSummary.ClosedTrades),
		accountSummary.RealizedPnl.StringFixed(2),
	}
}
