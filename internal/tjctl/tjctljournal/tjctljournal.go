// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package tjctljournal imports broker executions into the journal.
//
// An import reads the broker files of an account, persists the executions
// that are new, re-matches the account's complete execution history, and
// replaces the account's stored trades and import issues with the result.
// Re-running an import with the same files is a no-op apart from the batch
// id stamped on the derived rows.
package tjctljournal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bufdev/tjctl/internal/pkg/backoff"
	"github.com/bufdev/tjctl/internal/standard/xtime"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlconfig"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlingest"
	"github.com/bufdev/tjctl/internal/tjctl/tjctllock"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlmatch"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlmetrics"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlpath"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlregime"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlstore"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountSummary is the outcome of importing or matching one account.
type AccountSummary struct {
	Account string `json:"account"`
	// BatchID is empty for dry runs.
	BatchID string `json:"batch_id,omitempty"`
	Files   int    `json:"files"`
	// ExecutionsRead is the number of valid executions in the broker files.
	ExecutionsRead int `json:"executions_read"`
	// ExecutionsNew is the number of executions not already in the store.
	//
	// For dry runs, this equals ExecutionsRead.
	ExecutionsNew int `json:"executions_new"`
	// ExecutionsMatched is the size of the history that was matched.
	ExecutionsMatched int             `json:"executions_matched"`
	Rejected          int             `json:"rejected"`
	Unmatched         int             `json:"unmatched"`
	OpenTrades        int             `json:"open_trades"`
	ClosedTrades      int             `json:"closed_trades"`
	RealizedPnl       decimal.Decimal `json:"realized_pnl"`
	Duration          time.Duration   `json:"duration"`
	// Trades are the matched trades. They are only set for dry runs.
	Trades []*tjctlmatch.MatchedTrade `json:"-"`
}

// ImportOptions are options for Import and MatchFiles.
type ImportOptions struct {
	// AccountAlias limits the import to one account. Empty means all accounts.
	AccountAlias string
}

// Importer imports broker files into a Store.
type Importer struct {
	logger     *slog.Logger
	config     *tjctlconfig.Config
	store      *tjctlstore.Store
	locker     tjctllock.Locker
	classifier tjctlregime.Classifier
	metrics    *tjctlmetrics.Metrics
	lockPolicy backoff.Policy
}

// ImporterOption is an option for a new Importer.
type ImporterOption func(*Importer)

// ImporterWithClassifier labels each trade with the market regime at its entry.
func ImporterWithClassifier(classifier tjctlregime.Classifier) ImporterOption {
	return func(importer *Importer) {
		importer.classifier = classifier
	}
}

// ImporterWithMetrics records import metrics.
func ImporterWithMetrics(metrics *tjctlmetrics.Metrics) ImporterOption {
	return func(importer *Importer) {
		importer.metrics = metrics
	}
}

// ImporterWithLockPolicy sets how acquiring the per-account lock is retried.
//
// The default is tjctllock.DefaultPolicy.
func ImporterWithLockPolicy(lockPolicy backoff.Policy) ImporterOption {
	return func(importer *Importer) {
		importer.lockPolicy = lockPolicy
	}
}

// NewImporter returns a new Importer.
func NewImporter(
	logger *slog.Logger,
	config *tjctlconfig.Config,
	store *tjctlstore.Store,
	locker tjctllock.Locker,
	options ...ImporterOption,
) *Importer {
	importer := &Importer{
		logger:     logger,
		config:     config,
		store:      store,
		locker:     locker,
		lockPolicy: tjctllock.DefaultPolicy,
	}
	for _, option := range options {
		option(importer)
	}
	return importer
}

// Import imports the broker files of each selected account.
//
// Accounts are imported in configuration order. The first account that fails
// stops the import; accounts imported before it stay imported.
func (i *Importer) Import(ctx context.Context, importOptions ImportOptions) ([]*AccountSummary, error) {
	accounts, err := selectAccounts(i.config, importOptions.AccountAlias)
	if err != nil {
		return nil, err
	}
	accountSummaries := make([]*AccountSummary, 0, len(accounts))
	for _, account := range accounts {
		accountSummary, err := i.importAccount(ctx, account)
		if err != nil {
			return accountSummaries, fmt.Errorf("importing account %s: %w", account.Alias, err)
		}
		accountSummaries = append(accountSummaries, accountSummary)
	}
	return accountSummaries, nil
}

// MatchFiles matches the broker files of each selected account without
// reading or writing a store.
//
// Only the executions in the files are matched, so positions opened before
// the earliest file are not seen.
func MatchFiles(logger *slog.Logger, config *tjctlconfig.Config, importOptions ImportOptions) ([]*AccountSummary, error) {
	accounts, err := selectAccounts(config, importOptions.AccountAlias)
	if err != nil {
		return nil, err
	}
	accountSummaries := make([]*AccountSummary, 0, len(accounts))
	for _, account := range accounts {
		start := time.Now()
		batch, err := readAccount(config, account)
		if err != nil {
			return nil, fmt.Errorf("reading account %s: %w", account.Alias, err)
		}
		accountLogger := logger.With("account", account.Alias)
		logRejected(accountLogger, batch.Rejected)
		result := tjctlmatch.Match(batch.Executions, tjctlmatch.MatchWithCommissionPolicy(config.CommissionPolicy))
		logMatchErrors(accountLogger, result)
		accountSummary := newAccountSummary(account.Alias, "", batch, len(batch.Executions), batch.Executions, result)
		accountSummary.Duration = time.Since(start)
		accountSummary.Trades = result.Trades
		accountSummaries = append(accountSummaries, accountSummary)
	}
	return accountSummaries, nil
}

// LoadClassifier returns the regime classifier configured for the journal.
//
// If no regime benchmark is configured, this returns nil.
func LoadClassifier(config *tjctlconfig.Config) (tjctlregime.Classifier, error) {
	if config.Regime == nil {
		return nil, nil
	}
	barsFilePath := tjctlpath.BarsFilePath(config.DirPath, config.Regime.Benchmark)
	bars, err := tjctlregime.ReadBarsFile(barsFilePath)
	if err != nil {
		return nil, fmt.Errorf("reading %s bars: %w", config.Regime.Benchmark, err)
	}
	return tjctlregime.NewSMAClassifier(bars, config.Regime.FastWindow, config.Regime.SlowWindow)
}

// *** PRIVATE ***

func (i *Importer) importAccount(ctx context.Context, account tjctlconfig.AccountConfig) (_ *AccountSummary, retErr error) {
	start := time.Now()
	if i.metrics != nil {
		defer func() {
			i.metrics.ObserveImport(account.Alias, start, retErr)
		}()
	}
	lock, err := tjctllock.Acquire(ctx, i.locker, lockKey(account.Alias), i.lockPolicy)
	if err != nil {
		return nil, err
	}
	defer func() {
		retErr = errors.Join(retErr, lock.Unlock(ctx))
	}()

	batchID := uuid.NewString()
	logger := i.logger.With("account", account.Alias, "batch", batchID)
	batch, err := readAccount(i.config, account)
	if err != nil {
		return nil, err
	}
	logRejected(logger, batch.Rejected)
	newCount, err := i.store.SaveExecutions(
		ctx,
		batchID,
		batch.Executions,
		tjctlstore.SaveWithSuperseded(batch.Superseded),
	)
	if err != nil {
		return nil, err
	}
	executions, err := i.store.ListExecutions(ctx, account.Alias)
	if err != nil {
		return nil, err
	}
	result := tjctlmatch.Match(executions, tjctlmatch.MatchWithCommissionPolicy(i.config.CommissionPolicy))
	logMatchErrors(logger, result)
	if err := i.store.ReplaceTrades(
		ctx,
		account.Alias,
		batchID,
		result.Trades,
		tjctlstore.ReplaceWithRegime(i.regimeAtEntry),
	); err != nil {
		return nil, err
	}
	issueRecords := newIssueRecords(account.Alias, batchID, batch.Rejected, result)
	if err := i.store.SaveIssues(ctx, account.Alias, issueRecords); err != nil {
		return nil, err
	}

	accountSummary := newAccountSummary(account.Alias, batchID, batch, newCount, executions, result)
	accountSummary.Duration = time.Since(start)
	if i.metrics != nil {
		i.recordMetrics(accountSummary, issueRecords)
	}
	logger.Info(
		"imported account",
		"files", accountSummary.Files,
		"executions_read", accountSummary.ExecutionsRead,
		"executions_new", accountSummary.ExecutionsNew,
		"open_trades", accountSummary.OpenTrades,
		"closed_trades", accountSummary.ClosedTrades,
		"realized_pnl", accountSummary.RealizedPnl.StringFixed(2),
	)
	return accountSummary, nil
}

func (i *Importer) regimeAtEntry(trade *tjctlmatch.MatchedTrade) string {
	if i.classifier == nil {
		return ""
	}
	return string(i.classifier.Classify(xtime.TimeToDate(trade.EntryDatetime.In(i.config.Location))))
}

func (i *Importer) recordMetrics(accountSummary *AccountSummary, issueRecords []*tjctlstore.IssueRecord) {
	i.metrics.AddExecutions(accountSummary.Account, accountSummary.ExecutionsRead, accountSummary.ExecutionsNew)
	i.metrics.SetTrades(accountSummary.Account, string(tjctlmatch.StatusOpen), accountSummary.OpenTrades)
	i.metrics.SetTrades(accountSummary.Account, string(tjctlmatch.StatusClosed), accountSummary.ClosedTrades)
	issueCounts := map[tjctlstore.IssueKind]int{
		tjctlstore.IssueKindRejected:   0,
		tjctlstore.IssueKindUnmatched:  0,
		tjctlstore.IssueKindMatchError: 0,
	}
	for _, issueRecord := range issueRecords {
		issueCounts[issueRecord.Kind]++
	}
	for kind, count := range issueCounts {
		i.metrics.SetIssues(accountSummary.Account, string(kind), count)
	}
	i.metrics.SetRealizedPnl(accountSummary.Account, accountSummary.RealizedPnl)
}

func selectAccounts(config *tjctlconfig.Config, accountAlias string) ([]tjctlconfig.AccountConfig, error) {
	if accountAlias == "" {
		return config.Accounts, nil
	}
	account, ok := config.Account(accountAlias)
	if !ok {
		return nil, fmt.Errorf("unknown account %q", accountAlias)
	}
	return []tjctlconfig.AccountConfig{account}, nil
}

func readAccount(config *tjctlconfig.Config, account tjctlconfig.AccountConfig) (*tjctlingest.Batch, error) {
	return tjctlingest.ReadDir(
		account.Alias,
		tjctlpath.ExecutionsAccountDirPath(config.DirPath, account.Alias),
		tjctlingest.ReadWithLocation(config.Location),
		tjctlingest.ReadWithBrokerAccountID(account.ID),
	)
}

func lockKey(accountAlias string) string {
	return "import:" + accountAlias
}

func newIssueRecords(
	accountAlias string,
	batchID string,
	rejected []tjctlingest.Rejected,
	result *tjctlmatch.Result,
) []*tjctlstore.IssueRecord {
	issueRecords := make([]*tjctlstore.IssueRecord, 0, len(rejected)+len(result.Errors))
	for _, reject := range rejected {
		issueRecords = append(issueRecords, &tjctlstore.IssueRecord{
			AccountID: accountAlias,
			BatchID:   batchID,
			Kind:      tjctlstore.IssueKindRejected,
			Source:    reject.Source,
			Message:   reject.Reason,
		})
	}
	for j, execution := range result.Unmatched {
		message := "unmatched execution"
		if j < len(result.Errors) {
			message = result.Errors[j]
		}
		issueRecords = append(issueRecords, &tjctlstore.IssueRecord{
			AccountID: accountAlias,
			BatchID:   batchID,
			Kind:      tjctlstore.IssueKindUnmatched,
			Source:    execution.ExecutionID,
			Message:   message,
		})
	}
	// Errors that do not describe an unmatched execution.
	for j := len(result.Unmatched); j < len(result.Errors); j++ {
		issueRecords = append(issueRecords, &tjctlstore.IssueRecord{
			AccountID: accountAlias,
			BatchID:   batchID,
			Kind:      tjctlstore.IssueKindMatchError,
			Message:   result.Errors[j],
		})
	}
	return issueRecords
}

func newAccountSummary(
	accountAlias string,
	batchID string,
	batch *tjctlingest.Batch,
	newCount int,
	executions []tjctlmatch.Execution,
	result *tjctlmatch.Result,
) *AccountSummary {
	accountSummary := &AccountSummary{
		Account:           accountAlias,
		BatchID:           batchID,
		Files:             batch.Files,
		ExecutionsRead:    len(batch.Executions),
		ExecutionsNew:     newCount,
		ExecutionsMatched: len(executions),
		Rejected:          len(batch.Rejected),
		Unmatched:         len(result.Unmatched),
		RealizedPnl:       decimal.Zero,
	}
	for _, trade := range result.Trades {
		switch trade.Status {
		case tjctlmatch.StatusOpen:
			accountSummary.OpenTrades++
		case tjctlmatch.StatusClosed:
			accountSummary.ClosedTrades++
		}
		if trade.RealizedPnl.Valid {
			accountSummary.RealizedPnl = accountSummary.RealizedPnl.Add(trade.RealizedPnl.Decimal)
		}
	}
	return accountSummary
}

func logRejected(logger *slog.Logger, rejected []tjctlingest.Rejected) {
	for _, reject := range rejected {
		logger.Warn("rejected broker record", "source", reject.Source, "reason", reject.Reason)
	}
}

func logMatchErrors(logger *slog.Logger, result *tjctlmatch.Result) {
	for _, message := range result.Errors {
		logger.Warn("execution not matched", "error", message)
	}
}
