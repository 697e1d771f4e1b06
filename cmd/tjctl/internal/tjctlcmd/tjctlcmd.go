// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package tjctlcmd provides shared wiring for tjctl commands.
package tjctlcmd

import (
	"buf.build/go/app/appext"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlconfig"
	"github.com/bufdev/tjctl/internal/tjctl/tjctllock"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlstore"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

const (
	// DirFlagName is the flag name for the journal directory.
	DirFlagName = "dir"
	// FormatFlagName is the flag name for the output format.
	FormatFlagName = "format"
	// AccountFlagName is the flag name for filtering by account alias.
	AccountFlagName = "account"
	// TickerFlagName is the flag name for filtering by ticker.
	TickerFlagName = "ticker"

	databaseDSNEnvVar   = "TJCTL_DATABASE_DSN"
	redisPasswordEnvVar = "TJCTL_REDIS_PASSWORD"
	redisLockKeyPrefix  = "tjctl:lock:"
)

// BindDirFlag binds the journal directory flag.
func BindDirFlag(flagSet *pflag.FlagSet, dir *string) {
	flagSet.StringVar(dir, DirFlagName, ".", "The journal directory containing tjctl.yaml")
}

// BindFormatFlag binds the output format flag.
func BindFormatFlag(flagSet *pflag.FlagSet, format *string) {
	flagSet.StringVar(format, FormatFlagName, "table", "Output format (table, csv, json)")
}

// ReadConfig reads the configuration in dirPath and applies environment overrides.
//
// Secrets can be set with TJCTL_DATABASE_DSN and TJCTL_REDIS_PASSWORD instead
// of the configuration file.
func ReadConfig(container appext.Container, dirPath string) (*tjctlconfig.Config, error) {
	config, err := tjctlconfig.ReadConfig(dirPath)
	if err != nil {
		return nil, err
	}
	if dsn := container.Env(databaseDSNEnvVar); dsn != "" {
		config.Database.DSN = dsn
	}
	if redisPassword := container.Env(redisPasswordEnvVar); redisPassword != "" {
		config.Lock.RedisPassword = redisPassword
	}
	return config, nil
}

// OpenStore opens the store configured for the journal.
//
// The caller must close the store.
func OpenStore(container appext.Container, config *tjctlconfig.Config) (*tjctlstore.Store, error) {
	return tjctlstore.Open(container.Logger(), config.Database)
}

// NewLocker returns the import Locker configured for the journal.
//
// The caller must close the Locker.
func NewLocker(config *tjctlconfig.Config) tjctllock.Locker {
	switch config.Lock.Type {
	case tjctlconfig.LockTypeRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     config.Lock.RedisAddr,
			Password: config.Lock.RedisPassword,
			DB:       config.Lock.RedisDB,
		})
		return tjctllock.NewRedisLocker(client, redisLockKeyPrefix, config.Lock.TTL)
	default:
		return tjctllock.NewLocalLocker()
	}
}
