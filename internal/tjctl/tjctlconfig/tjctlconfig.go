// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package tjctlconfig provides configuration parsing and validation for tjctl.
//
// Configuration is stored at <dir>/tjctl.yaml, where <dir> is the journal
// directory given by --dir.
package tjctlconfig

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	// Broker time zones are resolved without relying on the system zoneinfo.
	_ "time/tzdata"

	"github.com/bufdev/tjctl/internal/standard/xos"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlmatch"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlpath"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlregime"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlstore"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultServeAddr is the default listen address of "tjctl serve".
	DefaultServeAddr = ":8080"
	// DefaultPushJob is the default Pushgateway job of "tjctl import".
	DefaultPushJob = "tjctl_import"
)

// configTemplate is the default configuration file template with comments.
// yaml.v3 does not preserve comments, so we hardcode the template string.
const configTemplate = `# The configuration file version.
#
# Required. The only current valid version is v1.
version: v1
# The brokerage accounts in the journal.
#
# Required. Each alias names the directory executions/<alias>/ holding the
# account's IBKR Activity Statement CSVs and Flex Query XMLs. The id is the
# IBKR account id; when set, Flex Query rows for other accounts are rejected.
accounts:
  - alias: brokerage
    id: ""
# The time zone of the date/time values in broker files.
#
# Optional. IBKR statements report times in US Eastern time. Defaults to UTC.
timezone: America/New_York
# The database holding executions and matched trades.
#
# Optional. Defaults to a SQLite database at tjctl.db in this directory.
# The dsn can also be set with the TJCTL_DATABASE_DSN environment variable.
# database:
#   type: postgres
#   dsn: "host=localhost user=tjctl dbname=tjctl sslmode=disable"
#   # One of silent, error, warn, info. Defaults to silent.
#   log_level: warn
# The lock that serializes imports of the same account.
#
# Optional. Defaults to a lock within the tjctl process. Use redis when
# several tjctl processes share one database. The password can also be set
# with the TJCTL_REDIS_PASSWORD environment variable.
# lock:
#   type: redis
#   ttl: 5m
#   redis:
#     addr: localhost:6379
#     db: 0
# Trade matching.
#
# Optional. commission_policy is closing (the whole commission of a fill that
# reverses a position counts toward the trade it closes) or prorate (the
# commission is split between the closed and the new trade by shares).
# Defaults to closing.
matching:
  commission_policy: closing
# Market regime labels for trades.
#
# Optional. Reads daily closes of the benchmark from bars/<BENCHMARK>.csv
# (columns date and close) and labels each trade BULL, BEAR, NEUTRAL, or
# UNKNOWN at its entry date using two simple moving averages.
# regime:
#   benchmark: SPY
#   fast_window: 50
#   slow_window: 200
# Downloading Flex Query statements with "tjctl download".
#
# Optional. query_id is the id of an IBKR Flex Query with a Trades section at
# execution level of detail. Statements are written to the directory of the
# account with the matching id. The Flex Web Service token is read from the
# IBKR_TOKEN environment variable.
# download:
#   query_id: "123456"
# Pushing import metrics to a Prometheus Pushgateway.
#
# Optional. "tjctl import" exits when it is done, so its counters and
# durations are pushed at the end of each run, replacing the previous push of
# the same job. The job defaults to tjctl_import.
# metrics:
#   pushgateway_url: http://localhost:9091
#   job: tjctl_import
# The read-only HTTP API started by "tjctl serve".
#
# Optional. Defaults to :8080.
# serve:
#   addr: ":8080"
`

// ExternalConfig is the YAML-serializable configuration file structure.
type ExternalConfig struct {
	// Version is the configuration file version (must be "v1").
	Version string `yaml:"version"`
	// Accounts is the list of brokerage accounts.
	Accounts []ExternalAccountConfig `yaml:"accounts"`
	// Timezone is the IANA time zone of broker date/time values.
	Timezone string                 `yaml:"timezone"`
	Database ExternalDatabaseConfig `yaml:"database"`
	Lock     ExternalLockConfig     `yaml:"lock"`
	Matching ExternalMatchingConfig `yaml:"matching"`
	Regime   ExternalRegimeConfig   `yaml:"regime"`
	Download ExternalDownloadConfig `yaml:"download"`
	Metrics  ExternalMetricsConfig  `yaml:"metrics"`
	Serve    ExternalServeConfig    `yaml:"serve"`
}

// ExternalAccountConfig is a brokerage account.
type ExternalAccountConfig struct {
	// Alias is the short name used for directories and output.
	Alias string `yaml:"alias"`
	// ID is the broker's account id.
	ID string `yaml:"id"`
}

// ExternalDatabaseConfig configures the database.
type ExternalDatabaseConfig struct {
	Type     string `yaml:"type"`
	DSN      string `yaml:"dsn"`
	LogLevel string `yaml:"log_level"`
}

// ExternalLockConfig configures the import lock.
type ExternalLockConfig struct {
	Type  string                  `yaml:"type"`
	TTL   string                  `yaml:"ttl"`
	Redis ExternalRedisLockConfig `yaml:"redis"`
}

// ExternalRedisLockConfig configures the Redis connection of the import lock.
type ExternalRedisLockConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ExternalMatchingConfig configures trade matching.
type ExternalMatchingConfig struct {
	CommissionPolicy string `yaml:"commission_policy"`
}

// ExternalRegimeConfig configures regime labels.
type ExternalRegimeConfig struct {
	Benchmark  string `yaml:"benchmark"`
	FastWindow int    `yaml:"fast_window"`
	SlowWindow int    `yaml:"slow_window"`
}

// ExternalDownloadConfig configures Flex Query downloads.
type ExternalDownloadConfig struct {
	QueryID string `yaml:"query_id"`
}

// ExternalMetricsConfig configures pushing import metrics.
type ExternalMetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

// ExternalServeConfig configures the HTTP API.
type ExternalServeConfig struct {
	Addr string `yaml:"addr"`
}

// LockType is the type of the import lock.
type LockType string

const (
	// LockTypeLocal is a lock within the tjctl process.
	LockTypeLocal LockType = "local"
	// LockTypeRedis is a lock in Redis.
	LockTypeRedis LockType = "redis"
)

// Config is the validated runtime configuration derived from the config file.
type Config struct {
	// DirPath is the journal directory.
	DirPath string
	// Accounts is the list of accounts in configuration order.
	Accounts []AccountConfig
	// Location is the time zone of broker date/time values.
	Location *time.Location
	// Database configures the store. Relative SQLite paths are resolved
	// against the journal directory.
	Database tjctlstore.Config
	Lock     LockConfig
	// CommissionPolicy is the matcher's commission policy.
	CommissionPolicy tjctlmatch.CommissionPolicy
	// Regime is nil if no benchmark is configured.
	Regime *RegimeConfig
	// FlexQueryID is the IBKR Flex Query to download, or empty if not configured.
	FlexQueryID string
	Metrics     MetricsConfig
	ServeAddr   string
}

// MetricsConfig is the validated metrics configuration.
type MetricsConfig struct {
	// PushgatewayURL is empty if import metrics are not pushed.
	PushgatewayURL string
	PushJob        string
}

// AccountConfig is a validated brokerage account.
type AccountConfig struct {
	Alias string
	// ID is the broker's account id, or empty if not configured.
	ID string
}

// LockConfig is the validated import lock configuration.
type LockConfig struct {
	Type          LockType
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// RegimeConfig is the validated regime configuration.
type RegimeConfig struct {
	Benchmark  string
	FastWindow int
	SlowWindow int
}

// Account returns the account with the alias.
func (c *Config) Account(alias string) (AccountConfig, bool) {
	for _, account := range c.Accounts {
		if account.Alias == alias {
			return account, true
		}
	}
	return AccountConfig{}, false
}

// NewConfig validates an ExternalConfig and returns a runtime Config.
func NewConfig(dirPath string, externalConfig ExternalConfig) (*Config, error) {
	if externalConfig.Version != "v1" {
		return nil, fmt.Errorf("unsupported config version %q, must be v1", externalConfig.Version)
	}
	accounts, err := newAccountConfigs(externalConfig.Accounts)
	if err != nil {
		return nil, err
	}
	location := time.UTC
	if externalConfig.Timezone != "" {
		location, err = time.LoadLocation(externalConfig.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", externalConfig.Timezone, err)
		}
	}
	database, err := newDatabaseConfig(dirPath, externalConfig.Database)
	if err != nil {
		return nil, err
	}
	lock, err := newLockConfig(externalConfig.Lock)
	if err != nil {
		return nil, err
	}
	commissionPolicy, err := tjctlmatch.ParseCommissionPolicy(externalConfig.Matching.CommissionPolicy)
	if err != nil {
		return nil, fmt.Errorf("matching.commission_policy: %w", err)
	}
	regime, err := newRegimeConfig(externalConfig.Regime)
	if err != nil {
		return nil, err
	}
	metrics, err := newMetricsConfig(externalConfig.Metrics)
	if err != nil {
		return nil, err
	}
	serveAddr := externalConfig.Serve.Addr
	if serveAddr == "" {
		serveAddr = DefaultServeAddr
	}
	return &Config{
		DirPath:          dirPath,
		Accounts:         accounts,
		Location:         location,
		Database:         database,
		Lock:             lock,
		CommissionPolicy: commissionPolicy,
		Regime:           regime,
		FlexQueryID:      strings.TrimSpace(externalConfig.Download.QueryID),
		Metrics:          metrics,
		ServeAddr:        serveAddr,
	}, nil
}

// ReadConfig reads and validates the configuration file from the given journal directory.
// Returns a clear error message directing users to run "tjctl config init" if the file is missing.
func ReadConfig(dirPath string) (*Config, error) {
	filePath := tjctlpath.ConfigFilePath(dirPath)
	externalConfig, err := readExternalConfig(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("configuration file not found at %s, run \"tjctl config init\" to create one", filePath)
		}
		return nil, err
	}
	return NewConfig(dirPath, externalConfig)
}

// InitConfig creates a new configuration file with a documented template
// in the journal directory, along with the executions directory for the
// template's account. Creates the journal directory if it does not exist.
// Returns the path to the created file, or an error if the file already exists.
func InitConfig(dirPath string) (string, error) {
	filePath := tjctlpath.ConfigFilePath(dirPath)
	if _, err := os.Stat(filePath); err == nil {
		return "", fmt.Errorf("configuration file already exists: %s", filePath)
	}
	if err := os.MkdirAll(tjctlpath.ExecutionsAccountDirPath(dirPath, "brokerage"), 0o755); err != nil {
		return "", fmt.Errorf("creating journal directory: %w", err)
	}
	if err := os.WriteFile(filePath, []byte(configTemplate), 0o644); err != nil {
		return "", err
	}
	return filePath, nil
}

// ValidateConfigFile reads and validates the configuration file at the given path.
//
// Relative paths in the file are resolved against the file's directory.
func ValidateConfigFile(filePath string) error {
	externalConfig, err := readExternalConfig(filePath)
	if err != nil {
		return err
	}
	_, err = NewConfig(filepath.Dir(filePath), externalConfig)
	return err
}

// *** PRIVATE ***

func readExternalConfig(filePath string) (ExternalConfig, error) {
	var externalConfig ExternalConfig
	data, err := os.ReadFile(filePath)
	if err != nil {
		return externalConfig, fmt.Errorf("reading config file: %w", err)
	}
	if err := unmarshalYAMLStrict(data, &externalConfig); err != nil {
		return externalConfig, fmt.Errorf("parsing config file %s: %w", filePath, err)
	}
	return externalConfig, nil
}

func newAccountConfigs(externalAccountConfigs []ExternalAccountConfig) ([]AccountConfig, error) {
	if len(externalAccountConfigs) == 0 {
		return nil, errors.New("at least one account is required")
	}
	aliases := make(map[string]struct{}, len(externalAccountConfigs))
	ids := make(map[string]struct{}, len(externalAccountConfigs))
	accounts := make([]AccountConfig, 0, len(externalAccountConfigs))
	for _, externalAccountConfig := range externalAccountConfigs {
		alias := externalAccountConfig.Alias
		if alias == "" {
			return nil, errors.New("account alias is required")
		}
		if strings.ContainsAny(alias, `/\:`) || alias == "." || alias == ".." {
			return nil, fmt.Errorf("account alias %q must be usable as a directory name", alias)
		}
		if _, ok := aliases[alias]; ok {
			return nil, fmt.Errorf("duplicate account alias %q", alias)
		}
		aliases[alias] = struct{}{}
		if id := externalAccountConfig.ID; id != "" {
			if _, ok := ids[id]; ok {
				return nil, fmt.Errorf("duplicate account id %q", id)
			}
			ids[id] = struct{}{}
		}
		accounts = append(accounts, AccountConfig{
			Alias: alias,
			ID:    externalAccountConfig.ID,
		})
	}
	return accounts, nil
}

func newDatabaseConfig(dirPath string, externalDatabaseConfig ExternalDatabaseConfig) (tjctlstore.Config, error) {
	databaseType := tjctlstore.TypeSQLite
	if externalDatabaseConfig.Type != "" {
		var err error
		databaseType, err = tjctlstore.ParseType(externalDatabaseConfig.Type)
		if err != nil {
			return tjctlstore.Config{}, fmt.Errorf("database.type: %w", err)
		}
	}
	switch logLevel := strings.ToLower(externalDatabaseConfig.LogLevel); logLevel {
	case "", "silent", "error", "warn", "info":
	default:
		return tjctlstore.Config{}, fmt.Errorf("database.log_level %q must be one of: silent, error, warn, info", logLevel)
	}
	dsn := externalDatabaseConfig.DSN
	switch databaseType {
	case tjctlstore.TypeSQLite:
		if dsn == "" {
			dsn = tjctlpath.DatabaseFilePath(dirPath)
		} else {
			expanded, err := xos.ExpandHome(dsn)
			if err != nil {
				return tjctlstore.Config{}, err
			}
			dsn = tjctlpath.Resolve(dirPath, expanded)
		}
	default:
		if dsn == "" {
			return tjctlstore.Config{}, fmt.Errorf("database.dsn is required for database type %s", databaseType)
		}
	}
	return tjctlstore.Config{
		Type:     databaseType,
		DSN:      dsn,
		LogLevel: externalDatabaseConfig.LogLevel,
	}, nil
}

func newLockConfig(externalLockConfig ExternalLockConfig) (LockConfig, error) {
	lockConfig := LockConfig{
		Type:          LockTypeLocal,
		RedisAddr:     externalLockConfig.Redis.Addr,
		RedisPassword: externalLockConfig.Redis.Password,
		RedisDB:       externalLockConfig.Redis.DB,
	}
	switch LockType(strings.ToLower(externalLockConfig.Type)) {
	case "", LockTypeLocal:
	case LockTypeRedis:
		lockConfig.Type = LockTypeRedis
		if lockConfig.RedisAddr == "" {
			return LockConfig{}, errors.New("lock.redis.addr is required for lock type redis")
		}
	default:
		return LockConfig{}, fmt.Errorf("unsupported lock type %q, must be one of: local, redis", externalLockConfig.Type)
	}
	if externalLockConfig.TTL != "" {
		ttl, err := time.ParseDuration(externalLockConfig.TTL)
		if err != nil {
			return LockConfig{}, fmt.Errorf("lock.ttl: %w", err)
		}
		if ttl <= 0 {
			return LockConfig{}, fmt.Errorf("lock.ttl must be positive: %s", externalLockConfig.TTL)
		}
		lockConfig.TTL = ttl
	}
	return lockConfig, nil
}

func newMetricsConfig(externalMetricsConfig ExternalMetricsConfig) (MetricsConfig, error) {
	pushgatewayURL := strings.TrimSpace(externalMetricsConfig.PushgatewayURL)
	job := strings.TrimSpace(externalMetricsConfig.Job)
	if pushgatewayURL == "" {
		if job != "" {
			return MetricsConfig{}, errors.New("metrics.pushgateway_url is required when metrics.job is set")
		}
		return MetricsConfig{}, nil
	}
	parsedURL, err := url.Parse(pushgatewayURL)
	if err != nil || (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") || parsedURL.Host == "" {
		return MetricsConfig{}, fmt.Errorf("metrics.pushgateway_url must be an http or https URL, got %q", pushgatewayURL)
	}
	if job == "" {
		job = DefaultPushJob
	}
	return MetricsConfig{
		PushgatewayURL: pushgatewayURL,
		PushJob:        job,
	}, nil
}

func newRegimeConfig(externalRegimeConfig ExternalRegimeConfig) (*RegimeConfig, error) {
	if externalRegimeConfig.Benchmark == "" {
		if externalRegimeConfig.FastWindow != 0 || externalRegimeConfig.SlowWindow != 0 {
			return nil, errors.New("regime.benchmark is required when regime windows are set")
		}
		return nil, nil
	}
	fastWindow := externalRegimeConfig.FastWindow
	if fastWindow == 0 {
		fastWindow = tjctlregime.DefaultFastWindow
	}
	slowWindow := externalRegimeConfig.SlowWindow
	if slowWindow == 0 {
		slowWindow = tjctlregime.DefaultSlowWindow
	}
	if fastWindow < 1 || slowWindow <= fastWindow {
		return nil, fmt.Errorf("regime windows must satisfy 0 < fast_window < slow_window, got %d and %d", fastWindow, slowWindow)
	}
	return &RegimeConfig{
		Benchmark:  strings.ToUpper(externalRegimeConfig.Benchmark),
		FastWindow: fastWindow,
		SlowWindow: slowWindow,
	}, nil
}

// unmarshalYAMLStrict unmarshals the data as YAML with strict field checking.
// If the data length is 0, this is a no-op.
func unmarshalYAMLStrict(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	yamlDecoder := yaml.NewDecoder(bytes.NewReader(data))
	// Reject unknown fields.
	yamlDecoder.KnownFields(true)
	if err := yamlDecoder.Decode(v); err != nil {
		return fmt.Errorf("could not unmarshal as YAML: %w", err)
	}
	return nil
}
