// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package tjctlingest normalizes broker statement rows into executions for the matcher.
//
// Two sources are read per account: IBKR Activity Statement CSVs and Flex
// Query XML statements. For dates covered by both, the CSV rows win and the
// XML rows for those dates are dropped, since the two sources report the same
// fills at different granularities.
//
// A row that cannot be converted never aborts a batch. It is returned as a
// Rejected record naming its source and the reason.
package tjctlingest

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/bufdev/tjctl/internal/pkg/flexquery"
	"github.com/bufdev/tjctl/internal/pkg/ibkractivitycsv"
	"github.com/bufdev/tjctl/internal/standard/xos"
	"github.com/bufdev/tjctl/internal/standard/xtime"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlmatch"
	"github.com/shopspring/decimal"
)

// Rejected is a broker row that could not be converted into an execution.
type Rejected struct {
	// Source identifies the row, such as "statement.csv:12" or "flex.xml#1001".
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// Batch is the result of reading broker files for one account.
type Batch struct {
	// Executions are sorted by execution time, ties kept in file order.
	Executions []tjctlmatch.Execution
	Rejected   []Rejected
	// Superseded are the ids of Flex Query executions dropped because an
	// Activity Statement covers their date. Copies stored by earlier imports
	// must be removed, since the Activity Statement rows replace them.
	Superseded []string
	// Files is the number of files read.
	Files int
}

// ReadOption is an option for reading broker files.
type ReadOption func(*readOptions)

// ReadWithLocation interprets broker date/time values in the given location.
//
// The default is UTC.
func ReadWithLocation(location *time.Location) ReadOption {
	return func(readOptions *readOptions) {
		if location != nil {
			readOptions.location = location
		}
	}
}

// ReadWithBrokerAccountID rejects Flex Query rows whose accountId is not brokerAccountID.
func ReadWithBrokerAccountID(brokerAccountID string) ReadOption {
	return func(readOptions *readOptions) {
		readOptions.brokerAccountID = brokerAccountID
	}
}

// ReadDir reads every .csv and .xml file under dirPath for the account.
//
// If dirPath does not exist, an empty Batch is returned.
func ReadDir(accountID string, dirPath string, options ...ReadOption) (*Batch, error) {
	filePaths, err := xos.ListFiles(dirPath, ".csv", ".xml")
	if err != nil {
		return nil, err
	}
	return ReadFiles(accountID, filePaths, options...)
}

// ReadFiles reads the given .csv and .xml files for the account.
func ReadFiles(accountID string, filePaths []string, options ...ReadOption) (*Batch, error) {
	readOptions := newReadOptions()
	for _, option := range options {
		option(readOptions)
	}
	csvBatch := &Batch{}
	xmlBatch := &Batch{}
	for _, filePath := range filePaths {
		switch strings.ToLower(filepath.Ext(filePath)) {
		case ".csv":
			statement, err := ibkractivitycsv.ParseFile(filePath, ibkractivitycsv.ParseWithLocation(readOptions.location))
			if err != nil {
				return nil, fmt.Errorf("parsing %s: %w", filePath, err)
			}
			csvBatch.add(FromActivityStatement(accountID, filepath.Base(filePath), statement))
		case ".xml":
			response, err := flexquery.ParseFile(filePath)
			if err != nil {
				return nil, fmt.Errorf("parsing %s: %w", filePath, err)
			}
			xmlBatch.add(fromFlexQuery(accountID, filepath.Base(filePath), response, readOptions))
		default:
			return nil, fmt.Errorf("unsupported broker file %s: must be .csv or .xml", filePath)
		}
	}
	batch := &Batch{
		Files: csvBatch.Files + xmlBatch.Files,
	}
	batch.Rejected = append(batch.Rejected, csvBatch.Rejected...)
	batch.Rejected = append(batch.Rejected, xmlBatch.Rejected...)
	batch.Executions = append(batch.Executions, csvBatch.Executions...)
	csvDates := executionDates(csvBatch.Executions)
	for _, execution := range xmlBatch.Executions {
		if _, ok := csvDates[xtime.TimeToDate(execution.ExecutedAt)]; ok {
			batch.Superseded = append(batch.Superseded, execution.ExecutionID)
			continue
		}
		batch.Executions = append(batch.Executions, execution)
	}
	batch.dedupe()
	batch.sort()
	slices.Sort(batch.Superseded)
	batch.Superseded = slices.Compact(batch.Superseded)
	return batch, nil
}

// FromActivityStatement converts the stock trades of an Activity Statement into executions.
//
// The side comes from the sign of the quantity, the quantity is made
// positive, and the broker's negative commission becomes a positive charge.
// Activity Statements carry no execution id, so a deterministic id is
// derived from the row's fields.
func FromActivityStatement(accountID string, fileName string, statement *ibkractivitycsv.Statement) *Batch {
	batch := &Batch{
		Files: 1,
	}
	for _, skipped := range statement.Skipped {
		batch.Rejected = append(batch.Rejected, Rejected{
			Source: fmt.Sprintf("%s:%d", fileName, skipped.Line),
			Reason: skipped.Reason,
		})
	}
	// Identical fills in one file (partial fills at the same second and
	// price) are distinguished by their occurrence count.
	occurrences := make(map[string]int)
	for _, trade := range statement.Trades {
		source := fmt.Sprintf("%s:%d", fileName, trade.Line)
		execution, err := csvTradeToExecution(accountID, trade)
		if err != nil {
			batch.Rejected = append(batch.Rejected, Rejected{Source: source, Reason: err.Error()})
			continue
		}
		fingerprint := csvFingerprint(accountID, trade)
		occurrences[fingerprint]++
		execution.ExecutionID = generateExecutionID(fingerprint, occurrences[fingerprint])
		batch.Executions = append(batch.Executions, execution)
	}
	return batch
}

// FromFlexQuery converts the stock executions of a Flex Query response into executions.
func FromFlexQuery(accountID string, fileName string, response *flexquery.Response, options ...ReadOption) *Batch {
	readOptions := newReadOptions()
	for _, option := range options {
		option(readOptions)
	}
	return fromFlexQuery(accountID, fileName, response, readOptions)
}

// *** PRIVATE ***

type readOptions struct {
	location        *time.Location
	brokerAccountID string
}

func newReadOptions() *readOptions {
	return &readOptions{
		location: time.UTC,
	}
}

func fromFlexQuery(accountID string, fileName string, response *flexquery.Response, readOptions *readOptions) *Batch {
	batch := &Batch{
		Files: 1,
	}
	for _, statement := range response.FlexStatements {
		for i, trade := range statement.Trades {
			if !trade.IsStockExecution() {
				continue
			}
			source := fmt.Sprintf("%s#%s", fileName, trade.TradeID)
			if trade.TradeID == "" {
				source = fmt.Sprintf("%s#%d", fileName, i+1)
			}
			brokerAccountID := trade.AccountID
			if brokerAccountID == "" {
				brokerAccountID = statement.AccountID
			}
			if readOptions.brokerAccountID != "" && brokerAccountID != readOptions.brokerAccountID {
				batch.Rejected = append(batch.Rejected, Rejected{
					Source: source,
					Reason: fmt.Sprintf("account %q does not match configured account %q", brokerAccountID, readOptions.brokerAccountID),
				})
				continue
			}
			execution, err := xmlTradeToExecution(accountID, trade, readOptions.location)
			if err != nil {
				batch.Rejected = append(batch.Rejected, Rejected{Source: source, Reason: err.Error()})
				continue
			}
			batch.Executions = append(batch.Executions, execution)
		}
	}
	return batch
}

func csvTradeToExecution(accountID string, trade ibkractivitycsv.Trade) (tjctlmatch.Execution, error) {
	quantity, err := parseDecimal("quantity", trade.Quantity)
	if err != nil {
		return tjctlmatch.Execution{}, err
	}
	var side tjctlmatch.Side
	switch quantity.Sign() {
	case 1:
		side = tjctlmatch.SideBuy
	case -1:
		side = tjctlmatch.SideSell
	default:
		return tjctlmatch.Execution{}, fmt.Errorf("zero quantity for %s", trade.Symbol)
	}
	return newExecution(accountID, trade.Symbol, trade.DateTime, side, quantity, trade.TradePrice, trade.Commission)
}

func xmlTradeToExecution(accountID string, trade flexquery.XMLTrade, location *time.Location) (tjctlmatch.Execution, error) {
	if trade.TradeID == "" {
		return tjctlmatch.Execution{}, fmt.Errorf("missing tradeID for %s", trade.Symbol)
	}
	var side tjctlmatch.Side
	switch strings.ToUpper(strings.TrimSpace(trade.BuySell)) {
	case "BUY":
		side = tjctlmatch.SideBuy
	case "SELL":
		side = tjctlmatch.SideSell
	default:
		// Includes cancellations such as "BUY (Ca.)".
		return tjctlmatch.Execution{}, fmt.Errorf("unsupported buySell %q for %s", trade.BuySell, trade.Symbol)
	}
	executedAt, err := trade.Time(location)
	if err != nil {
		return tjctlmatch.Execution{}, fmt.Errorf("invalid dateTime %q for %s", trade.DateTime, trade.Symbol)
	}
	quantity, err := parseDecimal("quantity", trade.Quantity)
	if err != nil {
		return tjctlmatch.Execution{}, err
	}
	execution, err := newExecution(accountID, trade.Symbol, executedAt, side, quantity, trade.TradePrice, trade.IBCommission)
	if err != nil {
		return tjctlmatch.Execution{}, err
	}
	execution.ExecutionID = trade.TradeID
	return execution, nil
}

func newExecution(
	accountID string,
	symbol string,
	executedAt time.Time,
	side tjctlmatch.Side,
	quantity decimal.Decimal,
	priceValue string,
	commissionValue string,
) (tjctlmatch.Execution, error) {
	ticker := strings.ToUpper(strings.TrimSpace(symbol))
	if ticker == "" {
		return tjctlmatch.Execution{}, errors.New("missing symbol")
	}
	quantity = quantity.Abs()
	if quantity.IsZero() {
		return tjctlmatch.Execution{}, fmt.Errorf("zero quantity for %s", ticker)
	}
	price, err := parseDecimal("price", priceValue)
	if err != nil {
		return tjctlmatch.Execution{}, err
	}
	if !price.IsPositive() {
		return tjctlmatch.Execution{}, fmt.Errorf("non-positive price %s for %s", price, ticker)
	}
	// IBKR reports commissions as negative amounts. A positive amount is a
	// rebate, which executions cannot carry.
	commission := decimal.Zero
	if strings.TrimSpace(commissionValue) != "" {
		brokerCommission, err := parseDecimal("commission", commissionValue)
		if err != nil {
			return tjctlmatch.Execution{}, err
		}
		commission = brokerCommission.Neg()
	}
	if commission.IsNegative() {
		return tjctlmatch.Execution{}, fmt.Errorf("commission rebate %s for %s", commission.Neg(), ticker)
	}
	return tjctlmatch.Execution{
		AccountID:  accountID,
		Ticker:     ticker,
		ExecutedAt: executedAt,
		Side:       side,
		Quantity:   quantity,
		Price:      price,
		Commission: commission,
	}, nil
}

func parseDecimal(name string, value string) (decimal.Decimal, error) {
	value = strings.ReplaceAll(strings.TrimSpace(value), ",", "")
	if value == "" {
		return decimal.Decimal{}, fmt.Errorf("missing %s", name)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s %q", name, value)
	}
	return d, nil
}

func csvFingerprint(accountID string, trade ibkractivitycsv.Trade) string {
	return strings.Join(
		[]string{
			accountID,
			trade.Symbol,
			trade.DateTime.UTC().Format(time.RFC3339),
			trade.Quantity,
			trade.TradePrice,
			trade.Commission,
		},
		"|",
	)
}

// generateExecutionID creates a deterministic execution ID from a row fingerprint.
func generateExecutionID(fingerprint string, occurrence int) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", fingerprint, occurrence)))
	return fmt.Sprintf("csv-%x", hash[:8])
}

func executionDates(executions []tjctlmatch.Execution) map[xtime.Date]struct{} {
	dates := make(map[xtime.Date]struct{})
	for _, execution := range executions {
		dates[xtime.TimeToDate(execution.ExecutedAt)] = struct{}{}
	}
	return dates
}

func (b *Batch) add(other *Batch) {
	b.Executions = append(b.Executions, other.Executions...)
	b.Rejected = append(b.Rejected, other.Rejected...)
	b.Files += other.Files
}

// dedupe keeps the first execution for each execution id. The same fill
// appears in every statement whose period covers it.
func (b *Batch) dedupe() {
	seen := make(map[string]struct{}, len(b.Executions))
	executions := b.Executions[:0]
	for _, execution := range b.Executions {
		if _, ok := seen[execution.ExecutionID]; ok {
			continue
		}
		seen[execution.ExecutionID] = struct{}{}
		executions = append(executions, execution)
	}
	b.Executions = executions
}

func (b *Batch) sort() {
	sort.SliceStable(b.Executions, func(i int, j int) bool {
		return b.Executions[i].ExecutedAt.Before(b.Executions[j].ExecutedAt)
	})
}
