// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package config implements the "config" command group.
package config

import (
	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/tjctl/cmd/tjctl/internal/command/config/configedit"
	"github.com/bufdev/tjctl/cmd/tjctl/internal/command/config/configinit"
	"github.com/bufdev/tjctl/cmd/tjctl/internal/command/config/configvalidate"
)

// NewCommand returns a new config command group.
func NewCommand(name string, builder appext.SubCommandBuilder) *appcmd.Command {
	return &appcmd.Command{
		Use:   name,
		Short: "Manage the journal configuration",
		SubCommands: []*appcmd.Command{
			configinit.NewCommand("init", builder),
			configedit.NewCommand("edit", builder),
			configvalidate.NewCommand("validate", builder),
		},
	}
}
