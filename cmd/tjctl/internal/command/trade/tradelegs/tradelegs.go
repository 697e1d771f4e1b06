// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package tradelegs implements the "trade legs" command.
package tradelegs

import (
	"context"
	"errors"
	"strconv"
	"time"

	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/tjctl/cmd/tjctl/internal/tjctlcmd"
	"github.com/bufdev/tjctl/internal/pkg/cliio"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlstore"
	"github.com/spf13/pflag"
)

var headers = []string{"SEQ", "TYPE", "EXECUTION", "EXECUTED AT", "SHARES", "PRICE"}

// NewCommand returns a new trade legs command.
func NewCommand(name string, builder appext.SubCommandBuilder) *appcmd.Command {
	flags := newFlags()
	return &appcmd.Command{
		Use:   name + " <trade-id>",
		Short: "List the legs of a trade",
		Args:  appcmd.ExactArgs(1),
		Run: builder.NewRunFunc(
			func(ctx context.Context, container appext.Container) error {
				return run(ctx, container, flags)
			},
		),
		BindFlags: flags.Bind,
	}
}

type flags struct {
	Dir    string
	Format string
}

func newFlags() *flags {
	return &flags{}
}

// Bind registers the flag definitions with the given flag set.
func (f *flags) Bind(flagSet *pflag.FlagSet) {
	tjctlcmd.BindDirFlag(flagSet, &f.Dir)
	tjctlcmd.BindFormatFlag(flagSet, &f.Format)
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
	legRecords, err := store.ListLegs(ctx, container.Arg(0))
	if err != nil {
		if errors.Is(err, tjctlstore.ErrTradeNotFound) {
			return appcmd.NewInvalidArgumentError(err.Error())
		}
		return err
	}
	rows := make([][]string, 0, len(legRecords))
	for _, legRecord := range legRecords {
		rows = append(rows, []string{
			strconv.Itoa(legRecord.Sequence),
			legRecord.LegType,
			legRecord.ExecutionID,
			legRecord.ExecutedAt.In(config.Location).Format(time.DateTime),
			legRecord.Shares.String(),
			legRecord.Price.String(),
		})
	}
	return cliio.Write(container.Stdout(), format, cliio.Table{Headers: headers, Rows: rows}, legRecords)
}
