// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package tradestats implements the "trade stats" command.
package tradestats

import (
	"context"
	"errors"
	"strconv"
	"time"

	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/tjctl/cmd/tjctl/internal/tjctlcmd"
	"github.com/bufdev/tjctl/internal/pkg/cliio"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlmatch"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlstats"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlstore"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
)

var headers = []string{"METRIC", "VALUE"}

// NewCommand returns a new trade stats command.
func NewCommand(name string, builder appext.SubCommandBuilder) *appcmd.Command {
	flags := newFlags()
	return &appcmd.Command{
		Use:   name,
		Short: "Summarize the performance of closed trades",
		Args:  appcmd.NoArgs,
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
	Ticker  string
}

func newFlags() *flags {
	return &flags{}
}

// Bind registers the flag definitions with the given flag set.
func (f *flags) Bind(flagSet *pflag.FlagSet) {
	tjctlcmd.BindDirFlag(flagSet, &f.Dir)
	tjctlcmd.BindFormatFlag(flagSet, &f.Format)
	flagSet.StringVar(&f.Account, tjctlcmd.AccountFlagName, "", "Filter by account alias")
	flagSet.StringVar(&f.Ticker, tjctlcmd.TickerFlagName, "", "Filter by ticker")
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
	store, err := tjctlcmd.OpenStore(container, config)
	if err != nil {
		return err
	}
	defer func() {
		retErr = errors.Join(retErr, store.Close())
	}()
	tradeRecords, err := store.ListTrades(
		ctx,
		tjctlstore.TradeFilter{
			AccountID: flags.Account,
			Ticker:    flags.Ticker,
		},
	)
	if err != nil {
		return err
	}
	trades := make([]*tjctlmatch.MatchedTrade, 0, len(tradeRecords))
	for _, tradeRecord := range tradeRecords {
		trades = append(trades, tradeRecord.MatchedTrade())
	}
	summary := tjctlstats.Summarize(trades)
	return cliio.Write(
		container.Stdout(),
		format,
		cliio.Table{Headers: headers, Rows: summaryToRows(summary)},
		[]*tjctlstats.Summary{summary},
	)
}

func summaryToRows(summary *tjctlstats.Summary) [][]string {
	return [][]string{
		{"Trades", strconv.Itoa(summary.Trades)},
		{"Closed", strconv.Itoa(summary.ClosedTrades)},
		{"Open", strconv.Itoa(summary.OpenTrades)},
		{"Wins", strconv.Itoa(summary.Wins)},
		{"Losses", strconv.Itoa(summary.Losses)},
		{"Breakeven", strconv.Itoa(summary.Breakeven)},
		{"Win rate %", nullDecimalString(summary.WinRate)},
		{"Gross profit", summary.GrossProfit.StringFixed(2)},
		{"Gross loss", summary.GrossLoss.StringFixed(2)},
		{"Net P&L", summary.NetPnl.StringFixed(2)},
		{"Profit factor", nullDecimalString(summary.ProfitFactor)},
		{"Expectancy", nullDecimalString(summary.Expectancy)},
		{"Average win", nullDecimalString(summary.AverageWin)},
		{"Average loss", nullDecimalString(summary.AverageLoss)},
		{"Largest win", nullDecimalString(summary.LargestWin)},
		{"Largest loss", nullDecimalString(summary.LargestLoss)},
		{"Max consecutive losses", strconv.Itoa(summary.MaxConsecutiveLosses)},
		{"Max drawdown", summary.MaxDrawdown.StringFixed(2)},
		{"Commission", summary.TotalCommission.StringFixed(2)},
		{"Average holding period", summary.AverageHoldingPeriod.Round(time.Minute).String()},
	}
}

func nullDecimalString(nullDecimal decimal.NullDecimal) string {
	if !nullDecimal.Valid {
		return "-"
	}
	return nullDecimal.Decimal.StringFixed(2)
}
