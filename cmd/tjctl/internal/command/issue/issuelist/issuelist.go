// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package issuelist implements the "issue list" command.
package issuelist

import (
	"context"
	"errors"

	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/tjctl/cmd/tjctl/internal/tjctlcmd"
	"github.com/bufdev/tjctl/internal/pkg/cliio"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlstore"
	"github.com/spf13/pflag"
)

const kindFlagName = "kind"

var headers = []string{"ACCOUNT", "KIND", "SOURCE", "MESSAGE"}

// NewCommand returns a new issue list command.
func NewCommand(name string, builder appext.SubCommandBuilder) *appcmd.Command {
	flags := newFlags()
	return &appcmd.Command{
		Use:   name,
		Short: "List rejected broker records and unmatched executions",
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
	Kind    string
}

func newFlags() *flags {
	return &flags{}
}

// Bind registers the flag definitions with the given flag set.
func (f *flags) Bind(flagSet *pflag.FlagSet) {
	tjctlcmd.BindDirFlag(flagSet, &f.Dir)
	tjctlcmd.BindFormatFlag(flagSet, &f.Format)
	flagSet.StringVar(&f.Account, tjctlcmd.AccountFlagName, "", "Filter by account alias")
	flagSet.StringVar(&f.Kind, kindFlagName, "", "Filter by kind (rejected, unmatched, match_error)")
}

func run(ctx context.Context, container appext.Container, flags *flags) (retErr error) {
	format, err := cliio.ParseFormat(flags.Format)
	if err != nil {
		return appcmd.NewInvalidArgumentError(err.Error())
	}
	kind := tjctlstore.IssueKind(flags.Kind)
	switch kind {
	case "", tjctlstore.IssueKindRejected, tjctlstore.IssueKindUnmatched, tjctlstore.IssueKindMatchError:
	default:
		return appcmd.NewInvalidArgumentErrorf("--%s must be one of: rejected, unmatched, match_error", kindFlagName)
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
	issueRecords, err := store.ListIssues(ctx, tjctlstore.IssueFilter{AccountID: flags.Account, Kind: kind})
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(issueRecords))
	for _, issueRecord := range issueRecords {
		rows = append(rows, []string{
			issueRecord.AccountID,
			string(issueRecord.Kind),
			issueRecord.Source,
			issueRecord.Message,
		})
	}
	return cliio.Write(container.Stdout(), format, cliio.Table{Headers: headers, Rows: rows}, issueRecords)
}
