// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package tjctlstore persists executions and the trades derived from them.
//
// Executions are deduplicated by execution id, and are only removed when a
// later import reports the same fills under other ids. Trades, legs,
// and import issues are derived data: every import replaces an account's
// derived rows in a single transaction, so a failed import leaves the
// previous results in place and the next import rebuilds them.
package tjctlstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/bufdev/tjctl/internal/tjctl/tjctlmatch"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const insertBatchSize = 100

// ErrTradeNotFound is returned when a trade id does not exist.
var ErrTradeNotFound = errors.New("trade not found")

// Type is a database type.
type Type string

const (
	// TypeSQLite is a SQLite database file.
	TypeSQLite Type = "sqlite"
	// TypePostgres is a PostgreSQL database.
	TypePostgres Type = "postgres"
	// TypeMySQL is a MySQL database.
	TypeMySQL Type = "mysql"
)

// ParseType parses a database type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "sqlite", "sqlite3":
		return TypeSQLite, nil
	case "postgres", "postgresql":
		return TypePostgres, nil
	case "mysql":
		return TypeMySQL, nil
	default:
		return "", fmt.Errorf("unsupported database type %q, must be one of: sqlite, postgres, mysql", s)
	}
}

// Config configures the database connection.
type Config struct {
	Type Type
	// DSN is the data source name. For SQLite, this is the file path.
	DSN string
	// LogLevel is the SQL log level: silent, error, warn, or info.
	//
	// SQL statements are logged at debug level on the store's logger.
	LogLevel        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// TradeFilter filters trades. Empty fields match everything.
type TradeFilter struct {
	AccountID string
	Ticker    string
	Status    string
}

// IssueFilter filters import issues. Empty fields match everything.
type IssueFilter struct {
	AccountID string
	Kind      IssueKind
}

// Store is a database of executions and derived trades.
type Store struct {
	logger *slog.Logger
	db     *gorm.DB
}

// Open opens the database and migrates its schema.
func Open(logger *slog.Logger, config Config) (*Store, error) {
	var dialector gorm.Dialector
	switch config.Type {
	case TypeSQLite:
		dialector = sqlite.Open(config.DSN)
	case TypePostgres:
		dialector = postgres.Open(config.DSN)
	case TypeMySQL:
		dialector = mysql.Open(config.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %q", config.Type)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(logger, config.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	switch {
	case config.MaxOpenConns > 0:
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	case config.Type == TypeSQLite:
		// SQLite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}
	if err := db.AutoMigrate(
		&ExecutionRecord{},
		&TradeRecord{},
		&LegRecord{},
		&IssueRecord{},
	); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to auto migrate: %w", err), sqlDB.Close())
	}
	return &Store{
		logger: logger,
		db:     db,
	}, nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveOption is an option for SaveExecutions.
type SaveOption func(*saveOptions)

// SaveWithSuperseded deletes the stored executions with the given execution
// ids in the same transaction as the insert.
//
// Use this when the saved executions report fills that were stored earlier
// under other ids, so the matcher never sees the same fill twice.
func SaveWithSuperseded(executionIDs []string) SaveOption {
	return func(saveOptions *saveOptions) {
		saveOptions.superseded = append(saveOptions.superseded, executionIDs...)
	}
}

// SaveExecutions inserts the executions, skipping any whose execution id is
// already stored, and returns the number of executions that were new.
func (s *Store) SaveExecutions(
	ctx context.Context,
	batchID string,
	executions []tjctlmatch.Execution,
	options ...SaveOption,
) (int, error) {
	saveOptions := &saveOptions{}
	for _, option := range options {
		option(saveOptions)
	}
	if len(executions) == 0 && len(saveOptions.superseded) == 0 {
		return 0, nil
	}
	executionRecords := make([]*ExecutionRecord, 0, len(executions))
	for _, execution := range executions {
		executionRecords = append(executionRecords, newExecutionRecord(execution, batchID))
	}
	var newCount int
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var deletedCount int64
		for chunk := range slices.Chunk(saveOptions.superseded, insertBatchSize) {
			result := tx.Where("execution_id IN ?", chunk).Delete(&ExecutionRecord{})
			if result.Error != nil {
				return fmt.Errorf("deleting superseded executions: %w", result.Error)
			}
			deletedCount += result.RowsAffected
		}
		if deletedCount > 0 {
			s.logger.Debug("deleted superseded executions", "count", deletedCount)
		}
		if len(executionRecords) == 0 {
			return nil
		}
		result := tx.
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "execution_id"}},
				DoNothing: true,
			}).
			CreateInBatches(executionRecords, insertBatchSize)
		if result.Error != nil {
			return fmt.Errorf("saving executions: %w", result.Error)
		}
		newCount = int(result.RowsAffected)
		return nil
	}); err != nil {
		return 0, err
	}
	return newCount, nil
}

// ListExecutions returns the stored executions for the account in the order
// they were executed, ties in the order they were stored.
//
// If accountID is empty, executions for all accounts are returned.
func (s *Store) ListExecutions(ctx context.Context, accountID string) ([]tjctlmatch.Execution, error) {
	query := s.db.WithContext(ctx).Model(&ExecutionRecord{})
	if accountID != "" {
		query = query.Where("account_id = ?", accountID)
	}
	var executionRecords []*ExecutionRecord
	if err := query.Order("executed_at ASC").Order("id ASC").Find(&executionRecords).Error; err != nil {
		return nil, fmt.Errorf("listing executions: %w", err)
	}
	executions := make([]tjctlmatch.Execution, 0, len(executionRecords))
	for _, executionRecord := range executionRecords {
		executions = append(executions, executionRecord.Execution())
	}
	return executions, nil
}

// ReplaceOption is an option for ReplaceTrades.
type ReplaceOption func(*replaceOptions)

// ReplaceWithRegime labels each trade with the regime returned by f.
func ReplaceWithRegime(f func(trade *tjctlmatch.MatchedTrade) string) ReplaceOption {
	return func(replaceOptions *replaceOptions) {
		replaceOptions.regime = f
	}
}

// ReplaceTrades replaces all trades and legs of the account with the given trades.
func (s *Store) ReplaceTrades(
	ctx context.Context,
	accountID string,
	batchID string,
	trades []*tjctlmatch.MatchedTrade,
	options ...ReplaceOption,
) error {
	replaceOptions := &replaceOptions{}
	for _, option := range options {
		option(replaceOptions)
	}
	var tradeRecords []*TradeRecord
	var legRecords []*LegRecord
	for _, trade := range trades {
		if trade.AccountID != accountID {
			return fmt.Errorf("trade for account %q passed when replacing trades of account %q", trade.AccountID, accountID)
		}
		var regime string
		if replaceOptions.regime != nil {
			regime = replaceOptions.regime(trade)
		}
		tradeRecord := newTradeRecord(trade, batchID, regime)
		tradeRecords = append(tradeRecords, tradeRecord)
		legRecords = append(legRecords, newLegRecords(tradeRecord.ID, trade.Legs)...)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("trade_id IN (?)", tx.Model(&TradeRecord{}).Select("id").Where("account_id = ?", accountID)).
			Delete(&LegRecord{}).Error; err != nil {
			return fmt.Errorf("deleting legs: %w", err)
		}
		if err := tx.Where("account_id = ?", accountID).Delete(&TradeRecord{}).Error; err != nil {
			return fmt.Errorf("deleting trades: %w", err)
		}
		if len(tradeRecords) > 0 {
			if err := tx.CreateInBatches(tradeRecords, insertBatchSize).Error; err != nil {
				return fmt.Errorf("saving trades: %w", err)
			}
		}
		if len(legRecords) > 0 {
			if err := tx.CreateInBatches(legRecords, insertBatchSize).Error; err != nil {
				return fmt.Errorf("saving legs: %w", err)
			}
		}
		return nil
	})
}

// ListTrades returns the trades matching the filter, ordered by entry time.
func (s *Store) ListTrades(ctx context.Context, filter TradeFilter) ([]*TradeRecord, error) {
	query := s.db.WithContext(ctx).Model(&TradeRecord{})
	if filter.AccountID != "" {
		query = query.Where("account_id = ?", filter.AccountID)
	}
	if filter.Ticker != "" {
		query = query.Where("ticker = ?", strings.ToUpper(filter.Ticker))
	}
	if filter.Status != "" {
		query = query.Where("status = ?", strings.ToUpper(filter.Status))
	}
	var tradeRecords []*TradeRecord
	if err := query.Order("entry_datetime ASC").Order("id ASC").Find(&tradeRecords).Error; err != nil {
		return nil, fmt.Errorf("listing trades: %w", err)
	}
	return tradeRecords, nil
}

// GetTrade returns the trade with the id.
//
// Returns an error that satisfies errors.Is(err, ErrTradeNotFound) if the trade does not exist.
func (s *Store) GetTrade(ctx context.Context, id string) (*TradeRecord, error) {
	var tradeRecord TradeRecord
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&tradeRecord).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTradeNotFound, id)
		}
		return nil, fmt.Errorf("getting trade %s: %w", id, err)
	}
	return &tradeRecord, nil
}

// ListLegs returns the legs of the trade in execution order.
//
// Returns an error that satisfies errors.Is(err, ErrTradeNotFound) if the trade does not exist.
func (s *Store) ListLegs(ctx context.Context, tradeID string) ([]*LegRecord, error) {
	if _, err := s.GetTrade(ctx, tradeID); err != nil {
		return nil, err
	}
	var legRecords []*LegRecord
	if err := s.db.WithContext(ctx).
		Where("trade_id = ?", tradeID).
		Order("sequence ASC").
		Find(&legRecords).Error; err != nil {
		return nil, fmt.Errorf("listing legs: %w", err)
	}
	return legRecords, nil
}

// SaveIssues replaces the import issues of the account with the given issues.
func (s *Store) SaveIssues(ctx context.Context, accountID string, issueRecords []*IssueRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", accountID).Delete(&IssueRecord{}).Error; err != nil {
			return fmt.Errorf("deleting issues: %w", err)
		}
		if len(issueRecords) == 0 {
			return nil
		}
		for _, issueRecord := range issueRecords {
			if issueRecord.AccountID != accountID {
				return fmt.Errorf("issue for account %q passed when saving issues of account %q", issueRecord.AccountID, accountID)
			}
		}
		if err := tx.CreateInBatches(issueRecords, insertBatchSize).Error; err != nil {
			return fmt.Errorf("saving issues: %w", err)
		}
		return nil
	})
}

// ListIssues returns the import issues matching the filter.
func (s *Store) ListIssues(ctx context.Context, filter IssueFilter) ([]*IssueRecord, error) {
	query := s.db.WithContext(ctx).Model(&IssueRecord{})
	if filter.AccountID != "" {
		query = query.Where("account_id = ?", filter.AccountID)
	}
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	var issueRecords []*IssueRecord
	if err := query.Order("id ASC").Find(&issueRecords).Error; err != nil {
		return nil, fmt.Errorf("listing issues: %w", err)
	}
	return issueRecords, nil
}

// *** PRIVATE ***

type saveOptions struct {
	superseded []string
}

type replaceOptions struct {
	regime func(trade *tjctlmatch.MatchedTrade) string
}

// slogWriter adapts a *slog.Logger to the gorm logger.Writer interface.
type slogWriter struct {
	logger *slog.Logger
}

func (w slogWriter) Printf(format string, args ...any) {
	w.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func newGormLogger(slogger *slog.Logger, logLevel string) logger.Interface {
	level := logger.Silent
	switch strings.ToLower(logLevel) {
	case "error":
		level = logger.Error
	case "warn":
		level = logger.Warn
	case "info":
		level = logger.Info
	}
	return logger.New(
		slogWriter{logger: slogger},
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}
