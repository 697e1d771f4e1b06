// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package download implements the "download" command.
package download

import (
	"context"
	"strconv"

	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/tjctl/cmd/tjctl/internal/tjctlcmd"
	"github.com/bufdev/tjctl/internal/pkg/cliio"
	"github.com/bufdev/tjctl/internal/pkg/ibkrflexquery"
	"github.com/bufdev/tjctl/internal/standard/xtime"
	"github.com/bufdev/tjctl/internal/tjctl/tjctldownload"
	"github.com/spf13/pflag"
)

const (
	fromFlagName = "from"
	toFlagName   = "to"

	tokenEnvVar = "IBKR_TOKEN"
)

var headers = []string{
	"ACCOUNT",
	"TRADES",
	"FILE",
}

// NewCommand returns a new download command.
func NewCommand(name string, builder appext.SubCommandBuilder) *appcmd.Command {
	flags := newFlags()
	return &appcmd.Command{
		Use:   name,
		Short: "Download executions via the IBKR Flex Query API",
		Long: `Download executions via the IBKR Flex Query API.

The Flex Query set as download.query_id in tjctl.yaml is run with the token
in the IBKR_TOKEN environment variable. The statement of each configured
account is written to executions/<account>/ for the next import.`,
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
	Dir    string
	Format string
	From   string
	To     string
}

func newFlags() *flags {
	return &flags{}
}

// Bind registers the flag definitions with the given flag set.
func (f *flags) Bind(flagSet *pflag.FlagSet) {
	tjctlcmd.BindDirFlag(flagSet, &f.Dir)
	tjctlcmd.BindFormatFlag(flagSet, &f.Format)
	flagSet.StringVar(&f.From, fromFlagName, "", "The first date to download (YYYY-MM-DD), instead of the query's period")
	flagSet.StringVar(&f.To, toFlagName, "", "The last date to download (YYYY-MM-DD), instead of the query's period")
}

func run(ctx context.Context, container appext.Container, flags *flags) error {
	format, err := cliio.ParseFormat(flags.Format)
	if err != nil {
		return appcmd.NewInvalidArgumentError(err.Error())
	}
	downloadOptions, err := newDownloadOptions(flags)
	if err != nil {
		return err
	}
	token := container.Env(tokenEnvVar)
	if token == "" {
		return appcmd.NewInvalidArgumentErrorf("%s must be set", tokenEnvVar)
	}
	config, err := tjctlcmd.ReadConfig(container, flags.Dir)
	if err != nil {
		return err
	}
	downloader := tjctldownload.NewDownloader(
		container.Logger(),
		config,
		ibkrflexquery.NewClient(container.Logger()),
		token,
	)
	files, err := downloader.Download(ctx, downloadOptions)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(files))
	for _, file := range files {
		rows = append(rows, []string{file.Account, strconv.Itoa(file.Trades), file.FilePath})
	}
	return cliio.Write(container.Stdout(), format, cliio.Table{Headers: headers, Rows: rows}, files)
}

func newDownloadOptions(flags *flags) (tjctldownload.DownloadOptions, error) {
	if (flags.From == "") != (flags.To == "") {
		return tjctldownload.DownloadOptions{}, appcmd.NewInvalidArgumentErrorf("--%s and --%s must be set together", fromFlagName, toFlagName)
	}
	if flags.From == "" {
		return tjctldownload.DownloadOptions{}, nil
	}
	fromDate, err := xtime.ParseDate(flags.From)
	if err != nil {
		return tjctldownload.DownloadOptions{}, appcmd.NewInvalidArgumentErrorf("invalid --%s: %v", fromFlagName, err)
	}
	toDate, err := xtime.ParseDate(flags.To)
	if err != nil {
		return tjctldownload.DownloadOptions{}, appcmd.NewInvalidArgumentErrorf("invalid --%s: %v", toFlagName, err)
	}
	if toDate.Before(fromDate) {
		return tjctldownload.DownloadOptions{}, appcmd.NewInvalidArgumentErrorf("--%s is before --%s", toFlagName, fromFlagName)
	}
	return tjctldownload.DownloadOptions{FromDate: fromDate, ToDate: toDate}, nil
}
