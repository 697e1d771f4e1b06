// Copyright 2026 Peter Edge
//
// All rights reserved.

package tjctlstore

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/bufdev/tjctl/internal/tjctl/tjctlmatch"
	"github.com/shopspring/decimal"
)

// IssueKind is the kind of an import issue.
type IssueKind string

const (
	// IssueKindRejected is a broker row that could not be converted into an execution.
	IssueKindRejected IssueKind = "rejected"
	// IssueKindUnmatched is an execution the matcher set aside.
	IssueKindUnmatched IssueKind = "unmatched"
	// IssueKindMatchError is an error message reported by the matcher.
	IssueKindMatchError IssueKind = "match_error"
)

// ExecutionRecord is a persisted broker execution.
//
// Executions are the only source data in the store. Trades, legs, and issues
// are derived from them on every import.
type ExecutionRecord struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"-"`
	ExecutionID string          `gorm:"uniqueIndex;size:128;not null" json:"execution_id"`
	AccountID   string          `gorm:"index:idx_executions_account_ticker;size:64;not null" json:"account_id"`
	Ticker      string          `gorm:"index:idx_executions_account_ticker;size:32;not null" json:"ticker"`
	ExecutedAt  time.Time       `gorm:"index;not null" json:"executed_at"`
	Side        string          `gorm:"size:4;not null" json:"side"`
	Quantity    decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"quantity"`
	Price       decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"price"`
	Commission  decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"commission"`
	BatchID     string          `gorm:"size:36" json:"batch_id"`
	CreatedAt   time.Time       `json:"created_at"`
}

// TableName returns the table name for ExecutionRecord.
func (ExecutionRecord) TableName() string {
	return "executions"
}

// Execution returns the record as a matcher input.
func (r *ExecutionRecord) Execution() tjctlmatch.Execution {
	return tjctlmatch.Execution{
		ExecutionID: r.ExecutionID,
		AccountID:   r.AccountID,
		Ticker:      r.Ticker,
		ExecutedAt:  r.ExecutedAt,
		Side:        tjctlmatch.Side(r.Side),
		Quantity:    r.Quantity,
		Price:       r.Price,
		Commission:  r.Commission,
	}
}

// TradeRecord is a persisted matched trade.
type TradeRecord struct {
	// ID is derived from the trade's account, ticker, direction, and entry
	// execution, so it stays the same across re-matches of the same history.
	ID              string              `gorm:"primaryKey;size:40" json:"id"`
	AccountID       string              `gorm:"index:idx_trades_account_ticker;size:64;not null" json:"account_id"`
	Ticker          string              `gorm:"index:idx_trades_account_ticker;size:32;not null" json:"ticker"`
	Direction       string              `gorm:"size:5;not null" json:"direction"`
	Status          string              `gorm:"index;size:6;not null" json:"status"`
	EntryDatetime   time.Time           `gorm:"index;not null" json:"entry_datetime"`
	ExitDatetime    *time.Time          `json:"exit_datetime"`
	EntryPrice      decimal.Decimal     `gorm:"type:decimal(24,8);not null" json:"entry_price"`
	ExitPrice       decimal.NullDecimal `gorm:"type:decimal(24,8)" json:"exit_price"`
	TotalShares     decimal.Decimal     `gorm:"type:decimal(24,8);not null" json:"total_shares"`
	RemainingShares decimal.Decimal     `gorm:"type:decimal(24,8);not null" json:"remaining_shares"`
	ExitedShares    decimal.Decimal     `gorm:"type:decimal(24,8);not null" json:"exited_shares"`
	RealizedPnl     decimal.NullDecimal `gorm:"type:decimal(24,8)" json:"realized_pnl"`
	TotalCommission decimal.Decimal     `gorm:"type:decimal(24,8);not null" json:"total_commission"`
	// Regime is the market regime at entry, or empty if no classifier is configured.
	Regime  string `gorm:"size:16" json:"regime,omitempty"`
	BatchID string `gorm:"size:36" json:"batch_id"`
}

// TableName returns the table name for TradeRecord.
func (TradeRecord) TableName() string {
	return "trades"
}

// MatchedTrade returns the record as a matched trade without legs or lots.
func (r *TradeRecord) MatchedTrade() *tjctlmatch.MatchedTrade {
	return &tjctlmatch.MatchedTrade{
		AccountID:       r.AccountID,
		Ticker:          r.Ticker,
		Direction:       tjctlmatch.Direction(r.Direction),
		Status:          tjctlmatch.Status(r.Status),
		EntryDatetime:   r.EntryDatetime,
		ExitDatetime:    r.ExitDatetime,
		EntryPrice:      r.EntryPrice,
		ExitPrice:       r.ExitPrice,
		TotalShares:     r.TotalShares,
		RemainingShares: r.RemainingShares,
		ExitedShares:    r.ExitedShares,
		RealizedPnl:     r.RealizedPnl,
		TotalCommission: r.TotalCommission,
	}
}

// LegRecord is a persisted trade leg.
type LegRecord struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"-"`
	TradeID     string          `gorm:"index:idx_trade_legs_trade_sequence;size:40;not null" json:"trade_id"`
	Sequence    int             `gorm:"index:idx_trade_legs_trade_sequence;not null" json:"sequence"`
	ExecutionID string          `gorm:"index;size:128;not null" json:"execution_id"`
	LegType     string          `gorm:"size:5;not null" json:"leg_type"`
	Shares      decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"shares"`
	Price       decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"price"`
	ExecutedAt  time.Time       `gorm:"not null" json:"executed_at"`
}

// TableName returns the table name for LegRecord.
func (LegRecord) TableName() string {
	return "trade_legs"
}

// IssueRecord is a data problem found during the latest import of an account.
type IssueRecord struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"-"`
	AccountID string    `gorm:"index;size:64;not null" json:"account_id"`
	BatchID   string    `gorm:"size:36;not null" json:"batch_id"`
	Kind      IssueKind `gorm:"size:16;not null" json:"kind"`
	// Source is the broker row or execution id the issue refers to, if any.
	Source    string    `gorm:"size:256" json:"source,omitempty"`
	Message   string    `gorm:"size:1024;not null" json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the table name for IssueRecord.
func (IssueRecord) TableName() string {
	return "import_issues"
}

// TradeID returns the stable id of a matched trade.
func TradeID(trade *tjctlmatch.MatchedTrade) string {
	var entryExecutionID string
	if len(trade.Legs) > 0 {
		entryExecutionID = trade.Legs[0].ExecutionID
	}
	raw := fmt.Sprintf("%s|%s|%s|%s", trade.AccountID, trade.Ticker, trade.Direction, entryExecutionID)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("trd-%x", hash[:8])
}

// *** PRIVATE ***

func newExecutionRecord(execution tjctlmatch.Execution, batchID string) *ExecutionRecord {
	return &ExecutionRecord{
		ExecutionID: execution.ExecutionID,
		AccountID:   execution.AccountID,
		Ticker:      execution.Ticker,
		ExecutedAt:  execution.ExecutedAt.UTC(),
		Side:        string(execution.Side),
		Quantity:    execution.Quantity,
		Price:       execution.Price,
		Commission:  execution.Commission,
		BatchID:     batchID,
	}
}

func newTradeRecord(trade *tjctlmatch.MatchedTrade, batchID string, regime string) *TradeRecord {
	var exitDatetime *time.Time
	if trade.ExitDatetime != nil {
		utc := trade.ExitDatetime.UTC()
		exitDatetime = &utc
	}
	return &TradeRecord{
		ID:              TradeID(trade),
		AccountID:       trade.AccountID,
		Ticker:          trade.Ticker,
		Direction:       string(trade.Direction),
		Status:          string(trade.Status),
		EntryDatetime:   trade.EntryDatetime.UTC(),
		ExitDatetime:    exitDatetime,
		EntryPrice:      trade.EntryPrice,
		ExitPrice:       trade.ExitPrice,
		TotalShares:     trade.TotalShares,
		RemainingShares: trade.RemainingShares,
		ExitedShares:    trade.ExitedShares,
		RealizedPnl:     trade.RealizedPnl,
		TotalCommission: trade.TotalCommission,
		Regime:          regime,
		BatchID:         batchID,
	}
}

func newLegRecords(tradeID string, legs []tjctlmatch.TradeLeg) []*LegRecord {
	legRecords := make([]*LegRecord, 0, len(legs))
	for i, leg := range legs {
		legRecords = append(legRecords, &LegRecord{
			TradeID:     tradeID,
			Sequence:    i + 1,
			ExecutionID: leg.ExecutionID,
			LegType:     string(leg.LegType),
			Shares:      leg.Shares,
			Price:       leg.Price,
			ExecutedAt:  leg.ExecutedAt.UTC(),
		})
	}
	return legRecords
}
