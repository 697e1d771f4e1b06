// Copyright 2026 Peter Edge
//
// All rights reserved.

package main

import (
	"context"

	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/tjctl/cmd/tjctl/internal/command/config"
	"github.com/bufdev/tjctl/cmd/tjctl/internal/command/download"
	"github.com/bufdev/tjctl/cmd/tjctl/internal/command/importexecutions"
	"github.com/bufdev/tjctl/cmd/tjctl/internal/command/issue"
	"github.com/bufdev/tjctl/cmd/tjctl/internal/command/serve"
	"github.com/bufdev/tjctl/cmd/tjctl/internal/command/trade"
)

func main() {
	appcmd.Main(context.Background(), newRootCommand("tjctl"))
}

func newRootCommand(name string) *appcmd.Command {
	builder := appext.NewBuilder(name)
	return &appcmd.Command{
		Use:                 name,
		Short:               "Match broker executions into trades for a trading journal",
		BindPersistentFlags: builder.BindRoot,
		SubCommands: []*appcmd.Command{
			config.NewCommand("config", builder),
			download.NewCommand("download", builder),
			importexecutions.NewCommand("import", builder),
			trade.NewCommand("trade", builder),
			issue.NewCommand("issue", builder),
			serve.NewCommand("serve", builder),
		},
	}
}
