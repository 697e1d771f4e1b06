// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package tradelist implements the "trade list" command.
package tradelist

import (
	"context"
	"errors"
	"strings"
	"time"

	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/tjctl/cmd/tjctl/internal/tjctlcmd"
	"github.com/bufdev/tjctl/internal/pkg/cliio"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlmatch"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlstore"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
)

const (
	statusFlagName = "status"
	timeLayout     = "2006-01-02 15:04"
)

var headers = []string{
	"ID",
	"ACCOUNT",
	"TICKER",
	"DIRECTION",
	"STATUS",
	"ENTRY",
	"EXIT",
	"ENTRY PRICE",
	"EXIT PRICE",
	"SHARES",
	"REMAINING",
	"COMMISSION",
	"REALIZED P&L",
	"REGIME",
}

// NewCommand returns a new trade list command.
func NewCommand(name string, builder appext.SubCommandBuilder) *appcmd.Command {
	flags := newFlags()
	return &appcmd.Command{
		Use:   name,
		Short: "List matched trades in entry order",
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
	Status  string
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
	flagSet.StringVar(&f.Status, statusFlagName, "", "Filter by status (open, closed)")
}

func run(ctx context.Context, container appext.Container, flags *flags) (retErr error) {
	format, err := cliio.ParseFormat(flags.Format)
	if err != nil {
		return appcmd.NewInvalidArgumentError(err.Error())
	}
	status := strings.ToUpper(flags.Status)
	switch tjctlmatch.Status(status) {
	case "", tjctlmatch.StatusOpen, tjctlmatch.StatusClosed:
	default:
		return appcmd.NewInvalidArgumentErrorf("--%s must be one of: open, closed", statusFlagName)
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
			Status:    status,
		},
	)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(tradeRecords))
	for _, tradeRecord := range tradeRecords {
		rows = append(rows, tradeRecordToRow(tradeRecord, config.Location))
	}
	return cliio.Write(
		container.Stdout(),
		format,
		cliio.Table{
			Headers: headers,
			Rows:    rows,
			Totals:  totalsRow(tradeRecords),
		},
		tradeRecords,
	)
}

func tradeRecordToRow(tradeRecord *tjctlstore.TradeRecord, location *time.Location) []string {
	var exit string
	if tradeRecord.ExitDatetime != nil {
		exit = tradeRecord.ExitDatetime.In(location).Format(timeLayout)
	}
	return []string{
		tradeRecord.ID,
		tradeRecord.AccountID,
		tradeRecord.Ticker,
		tradeRecord.Direction,
		tradeRecord.Status,
		tradeRecord.EntryDatetime.In(location).Format(timeLayout),
		exit,
		tradeRecord.EntryPrice.StringFixed(4),
		nullDecimalString(tradeRecord.ExitPrice, 4),
		tradeRecord.TotalShares.String(),
		tradeRecord.RemainingShares.String(),
		tradeRecord.TotalCommission.StringFixed(2),
		nullDecimalString(tradeRecord.RealizedPnl, 2),
		tradeRecord.Regime,
	}
}

func totalsRow(tradeRecords []*tjctlstore.TradeRecord) []string {
	commission := decimal.Zero
	realizedPnl := decimal.Zero
	for _, tradeRecord := range tradeRecords {
		commission = commission.Add(tradeRecord.TotalCommission)
		if tradeRecord.RealizedPnl.Valid {
			realizedPnl = realizedPnl.Add(tradeRecord.RealizedPnl.Decimal)
		}
	}
	row := make([]string, len(headers))
	row[0] = "TOTAL"
	row[11] = commission.StringFixed(2)
	row[12] = realizedPnl.StringFixed(2)
	return row
}

func nullDecimalString(nullDecimal decimal.NullDecimal, places int32) string {
	if !nullDecimal.Valid {
		return ""
	}
	return nullDecimal.Decimal.StringFixed(places)
}
