// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package serve implements the "serve" command.
package serve

import (
	"context"
	"errors"

	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/tjctl/cmd/tjctl/internal/tjctlcmd"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlmetrics"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlserve"
	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
)

const addrFlagName = "addr"

// NewCommand returns a new serve command.
func NewCommand(name string, builder appext.SubCommandBuilder) *appcmd.Command {
	flags := newFlags()
	return &appcmd.Command{
		Use:   name,
		Short: "Serve a read-only HTTP API over the journal",
		Long: `Serve a read-only HTTP API over the journal.

Endpoints:
  GET /healthz
  GET /metrics
  GET /v1/trades?account=&ticker=&status=
  GET /v1/trades/{id}
  GET /v1/trades/{id}/legs
  GET /v1/stats?account=&ticker=
  GET /v1/issues?account=&kind=`,
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
	Dir  string
	Addr string
}

func newFlags() *flags {
	return &flags{}
}

// Bind registers the flag definitions with the given flag set.
func (f *flags) Bind(flagSet *pflag.FlagSet) {
	tjctlcmd.BindDirFlag(flagSet, &f.Dir)
	flagSet.StringVar(&f.Addr, addrFlagName, "", "The address to listen on (default serve.addr from tjctl.yaml)")
}

func run(ctx context.Context, container appext.Container, flags *flags) (retErr error) {
	config, err := tjctlcmd.ReadConfig(container, flags.Dir)
	if err != nil {
		return err
	}
	addr := flags.Addr
	if addr == "" {
		addr = config.ServeAddr
	}
	store, err := tjctlcmd.OpenStore(container, config)
	if err != nil {
		return err
	}
	defer func() {
		retErr = errors.Join(retErr, store.Close())
	}()
	gin.SetMode(gin.ReleaseMode)
	handler := tjctlserve.NewHandler(container.Logger(), store, tjctlmetrics.New())
	return tjctlserve.Run(ctx, container.Logger(), addr, handler)
}
