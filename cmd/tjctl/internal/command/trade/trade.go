// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package trade implements the "trade" command group.
package trade

import (
	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/tjctl/cmd/tjctl/internal/command/trade/tradelegs"
	"github.com/bufdev/tjctl/cmd/tjctl/internal/command/trade/tradelist"
	"github.com/bufdev/tjctl/cmd/tjctl/internal/command/trade/tradestats"
)

// NewCommand returns a new trade command group.
func NewCommand(name string, builder appext.SubCommandBuilder) *appcmd.Command {
	return &appcmd.Command{
		Use:   name,
		Short: "Inspect matched trades",
		SubCommands: []*appcmd.Command{
			tradelist.NewCommand("list", builder),
			tradelegs.NewCommand("legs", builder),
			tradestats.NewCommand("stats", builder),
		},
	}
}
