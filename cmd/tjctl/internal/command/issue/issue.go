// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package issue implements the "issue" command group.
package issue

import (
	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/tjctl/cmd/tjctl/internal/command/issue/issuelist"
)

// NewCommand returns a new issue command group.
func NewCommand(name string, builder appext.SubCommandBuilder) *appcmd.Command {
	return &appcmd.Command{
		Use:   name,
		Short: "Inspect data issues found by the latest import",
		SubCommands: []*appcmd.Command{
			issuelist.NewCommand("list", builder),
		},
	}
}
