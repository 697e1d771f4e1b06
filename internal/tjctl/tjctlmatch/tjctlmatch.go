// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package tjctlmatch converts brokerage executions into position-level trades.
//
// Executions are grouped by (account, ticker) and folded in chronological
// order. Same-direction executions add FIFO lots, opposite-direction
// executions close the oldest lots first. An execution larger than the open
// position closes the trade and opens a new opposite-direction trade from the
// remainder at the same price and time.
//
// Matching is a pure function of its input: the same executions in the same
// order always produce the same trades.
package tjctlmatch

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// pricePlaces is the number of decimal places for per-share prices.
	pricePlaces = 4
	// moneyPlaces is the number of decimal places for money amounts.
	moneyPlaces = 2
)

// Side is the side of an execution.
type Side string

const (
	// SideBuy is a buy execution.
	SideBuy Side = "BUY"
	// SideSell is a sell execution.
	SideSell Side = "SELL"
)

// Direction is the direction of a trade, fixed when the trade opens.
type Direction string

const (
	// DirectionLong is a trade opened by a buy.
	DirectionLong Direction = "LONG"
	// DirectionShort is a trade opened by a sell.
	DirectionShort Direction = "SHORT"
)

// Status is the status of a matched trade.
type Status string

const (
	// StatusOpen is a trade with shares still held.
	StatusOpen Status = "OPEN"
	// StatusClosed is a trade whose lots are all fully consumed.
	StatusClosed Status = "CLOSED"
)

// LegType is the role an execution plays within a trade.
type LegType string

const (
	// LegTypeEntry is the execution that opened the trade.
	LegTypeEntry LegType = "ENTRY"
	// LegTypeAdd is a same-direction execution that increased the position.
	LegTypeAdd LegType = "ADD"
	// LegTypeTrim is an opposite-direction execution that reduced the position.
	LegTypeTrim LegType = "TRIM"
	// LegTypeExit is the opposite-direction execution that flattened the position.
	LegTypeExit LegType = "EXIT"
)

// CommissionPolicy decides which trade absorbs the commission of an execution
// that both closes one trade and opens the next (a reversal).
type CommissionPolicy int

const (
	// CommissionPolicyAttributeToClosingTrade charges the full commission of a
	// reversing execution to the trade it closes. The new trade starts with zero
	// commission.
	CommissionPolicyAttributeToClosingTrade CommissionPolicy = iota + 1
	// CommissionPolicyProRate splits the commission of a reversing execution by
	// shares: the closed shares go to the closing trade, the remainder to the new trade.
	CommissionPolicyProRate
)

// String returns the configuration name of the policy.
func (p CommissionPolicy) String() string {
	switch p {
	case CommissionPolicyAttributeToClosingTrade:
		return "closing"
	case CommissionPolicyProRate:
		return "prorate"
	default:
		return fmt.Sprintf("CommissionPolicy(%d)", int(p))
	}
}

// ParseCommissionPolicy parses a policy configuration name.
func ParseCommissionPolicy(s string) (CommissionPolicy, error) {
	switch s {
	case "", "closing":
		return CommissionPolicyAttributeToClosingTrade, nil
	case "prorate":
		return CommissionPolicyProRate, nil
	default:
		return 0, fmt.Errorf("unknown commission policy %q, must be one of: closing, prorate", s)
	}
}

// Execution is a single brokerage fill.
type Execution struct {
	// ExecutionID is the broker-assigned unique identifier.
	ExecutionID string `json:"execution_id"`
	// AccountID is the brokerage account the fill belongs to.
	AccountID string `json:"account_id"`
	// Ticker is the traded symbol.
	Ticker string `json:"ticker"`
	// ExecutedAt is the fill time.
	ExecutedAt time.Time `json:"executed_at"`
	// Side is BUY or SELL.
	Side Side `json:"side"`
	// Quantity is the positive number of shares filled.
	Quantity decimal.Decimal `json:"quantity"`
	// Price is the positive fill price per share.
	Price decimal.Decimal `json:"price"`
	// Commission is the non-negative commission charged for the fill.
	Commission decimal.Decimal `json:"commission"`
}

// TradeLeg is one execution's contribution to a trade.
type TradeLeg struct {
	ExecutionID string          `json:"execution_id"`
	LegType     LegType         `json:"leg_type"`
	Shares      decimal.Decimal `json:"shares"`
	Price       decimal.Decimal `json:"price"`
	ExecutedAt  time.Time       `json:"executed_at"`
}

// Lot is an entry slice of a trade, kept after it is consumed for audit.
type Lot struct {
	ExecutionID     string          `json:"execution_id"`
	Shares          decimal.Decimal `json:"shares"`
	RemainingShares decimal.Decimal `json:"remaining_shares"`
	Price           decimal.Decimal `json:"price"`
	OpenedAt        time.Time       `json:"opened_at"`
}

// MatchedTrade is a finalized position-level trade.
type MatchedTrade struct {
	AccountID string    `json:"account_id"`
	Ticker    string    `json:"ticker"`
	Direction Direction `json:"direction"`
	Status    Status    `json:"status"`
	// EntryDatetime is the time of the ENTRY leg.
	EntryDatetime time.Time `json:"entry_datetime"`
	// ExitDatetime is the time of the EXIT leg, set only for closed trades.
	ExitDatetime *time.Time `json:"exit_datetime"`
	// EntryPrice is the weighted average entry price, rounded to 4 places.
	EntryPrice decimal.Decimal `json:"entry_price"`
	// ExitPrice is the weighted average exit price, rounded to 4 places.
	// Invalid until shares have been closed.
	ExitPrice decimal.NullDecimal `json:"exit_price"`
	// TotalShares is the sum of all ENTRY and ADD shares.
	TotalShares decimal.Decimal `json:"total_shares"`
	// RemainingShares is the sum of remaining shares across all lots.
	RemainingShares decimal.Decimal `json:"remaining_shares"`
	// ExitedShares is the sum of all TRIM and EXIT shares.
	ExitedShares decimal.Decimal `json:"exited_shares"`
	// RealizedPnl is the P&L of the closed portion net of all commission,
	// rounded to 2 places. Invalid until shares have been closed.
	RealizedPnl decimal.NullDecimal `json:"realized_pnl"`
	// TotalCommission is the commission attributed to this trade.
	TotalCommission decimal.Decimal `json:"total_commission"`
	// Legs are ordered by execution time.
	Legs []TradeLeg `json:"legs"`
	// Lots are in FIFO order.
	Lots []Lot `json:"lots"`
}

// Result contains the output of Match.
type Result struct {
	// Trades are sorted by entry time.
	Trades []*MatchedTrade
	// Unmatched are executions that could not be attributed to a trade.
	Unmatched []Execution
	// Errors describes why each unmatched execution was set aside.
	Errors []string
}

// MatchOption is an option for Match.
type MatchOption func(*matchOptions)

// MatchWithCommissionPolicy sets the commission policy for reversing executions.
//
// The default is CommissionPolicyAttributeToClosingTrade.
func MatchWithCommissionPolicy(commissionPolicy CommissionPolicy) MatchOption {
	return func(matchOptions *matchOptions) {
		matchOptions.commissionPolicy = commissionPolicy
	}
}

// GroupKey returns the partition key for an account and ticker.
func GroupKey(accountID string, ticker string) string {
	return groupKey{accountID: accountID, ticker: ticker}.String()
}

// Match matches executions into trades.
//
// Executions are sorted by time (ties keep input order), grouped by account
// and ticker, and folded independently per group. Executions that would break
// the arithmetic (non-positive quantity or price, negative commission, unknown
// side, missing identity fields, repeated execution ID) are set aside in
// Result.Unmatched with a matching entry in Result.Errors, and the rest of
// their group is still matched.
//
// The input slice is not modified.
func Match(executions []Execution, options ...MatchOption) *Result {
	matchOptions := newMatchOptions()
	for _, option := range options {
		option(matchOptions)
	}
	sorted := slices.Clone(executions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ExecutedAt.Before(sorted[j].ExecutedAt)
	})
	result := &Result{}
	// Groups are kept in first-seen order so output does not depend on map iteration.
	var keys []groupKey
	groups := make(map[groupKey][]Execution)
	seenExecutionIDs := make(map[string]struct{}, len(sorted))
	for _, execution := range sorted {
		key := groupKey{accountID: execution.AccountID, ticker: execution.Ticker}
		if err := validateExecution(execution); err != nil {
			result.Unmatched = append(result.Unmatched, execution)
			result.Errors = append(result.Errors, fmt.Sprintf("execution %q (%s): %v", execution.ExecutionID, key, err))
			continue
		}
		if _, ok := seenExecutionIDs[execution.ExecutionID]; ok {
			result.Unmatched = append(result.Unmatched, execution)
			result.Errors = append(result.Errors, fmt.Sprintf("execution %q (%s): duplicate execution id", execution.ExecutionID, key))
			continue
		}
		seenExecutionIDs[execution.ExecutionID] = struct{}{}
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], execution)
	}
	for _, key := range keys {
		result.Trades = append(result.Trades, matchGroup(groups[key], matchOptions.commissionPolicy)...)
	}
	sort.SliceStable(result.Trades, func(i, j int) bool {
		return result.Trades[i].EntryDatetime.Before(result.Trades[j].EntryDatetime)
	})
	return result
}

// *** PRIVATE ***

type matchOptions struct {
	commissionPolicy CommissionPolicy
}

func newMatchOptions() *matchOptions {
	return &matchOptions{
		commissionPolicy: CommissionPolicyAttributeToClosingTrade,
	}
}

// groupKey partitions executions by account and ticker.
type groupKey struct {
	accountID string
	ticker    string
}

func (k groupKey) String() string {
	return k.accountID + ":" + k.ticker
}

// matchGroup folds the chronologically sorted executions of a single group
// into trades. At most one trade is in progress at any point.
func matchGroup(executions []Execution, commissionPolicy CommissionPolicy) []*MatchedTrade {
	var trades []*MatchedTrade
	var current *openTrade
	for _, execution := range executions {
		if current == nil {
			current = newOpenTrade(execution, execution.Quantity, execution.Commission)
			continue
		}
		if current.isSameDirection(execution.Side) {
			current.add(execution)
			continue
		}
		remainingQuantity, remainingCommission := current.reduce(execution, commissionPolicy)
		if !current.remainingShares().IsZero() {
			continue
		}
		trades = append(trades, current.finalize())
		current = nil
		if remainingQuantity.IsPositive() {
			current = newOpenTrade(execution, remainingQuantity, remainingCommission)
		}
	}
	if current != nil {
		trades = append(trades, current.finalize())
	}
	return trades
}

// openTrade is the working state of the trade in progress for one group.
type openTrade struct {
	accountID         string
	ticker            string
	direction         Direction
	lots              []entryLot
	legs              []TradeLeg
	totalEntryShares  decimal.Decimal
	totalEntryCost    decimal.Decimal
	totalExitShares   decimal.Decimal
	totalExitProceeds decimal.Decimal
	totalCommission   decimal.Decimal
	entryDatetime     time.Time
	lastExitDatetime  time.Time
}

// entryLot is a FIFO slice of an open trade. remainingShares only decreases.
type entryLot struct {
	executionID     string
	shares          decimal.Decimal
	remainingShares decimal.Decimal
	price           decimal.Decimal
	openedAt        time.Time
}

// newOpenTrade starts a trade from shares of the execution. shares is the full
// quantity for a fresh trade, or the unclosed remainder of a reversal.
func newOpenTrade(execution Execution, shares decimal.Decimal, commission decimal.Decimal) *openTrade {
	direction := DirectionLong
	if execution.Side == SideSell {
		direction = DirectionShort
	}
	return &openTrade{
		accountID: execution.AccountID,
		ticker:    execution.Ticker,
		direction: direction,
		lots: []entryLot{
			{
				executionID:     execution.ExecutionID,
				shares:          shares,
				remainingShares: shares,
				price:           execution.Price,
				openedAt:        execution.ExecutedAt,
			},
		},
		legs: []TradeLeg{
			{
				ExecutionID: execution.ExecutionID,
				LegType:     LegTypeEntry,
				Shares:      shares,
				Price:       execution.Price,
				ExecutedAt:  execution.ExecutedAt,
			},
		},
		totalEntryShares:  shares,
		totalEntryCost:    shares.Mul(execution.Price),
		totalExitShares:   decimal.Zero,
		totalExitProceeds: decimal.Zero,
		totalCommission:   commission,
		entryDatetime:     execution.ExecutedAt,
	}
}

func (t *openTrade) isSameDirection(side Side) bool {
	return (t.direction == DirectionLong && side == SideBuy) ||
		(t.direction == DirectionShort && side == SideSell)
}

// add appends a new lot at the FIFO tail.
func (t *openTrade) add(execution Execution) {
	t.lots = append(t.lots, entryLot{
		executionID:     execution.ExecutionID,
		shares:          execution.Quantity,
		remainingShares: execution.Quantity,
		price:           execution.Price,
		openedAt:        execution.ExecutedAt,
	})
	t.legs = append(t.legs, TradeLeg{
		ExecutionID: execution.ExecutionID,
		LegType:     LegTypeAdd,
		Shares:      execution.Quantity,
		Price:       execution.Price,
		ExecutedAt:  execution.ExecutedAt,
	})
	t.totalEntryShares = t.totalEntryShares.Add(execution.Quantity)
	t.totalEntryCost = t.totalEntryCost.Add(execution.Quantity.Mul(execution.Price))
	t.totalCommission = t.totalCommission.Add(execution.Commission)
}

// reduce closes lots oldest-first with an opposite-direction execution.
//
// Returns the quantity the position could not absorb and the commission that
// goes with it. Both are zero unless the execution reverses the position.
func (t *openTrade) reduce(execution Execution, commissionPolicy CommissionPolicy) (decimal.Decimal, decimal.Decimal) {
	toClose := execution.Quantity
	closed := decimal.Zero
	for i := range t.lots {
		if !toClose.IsPositive() {
			break
		}
		lot := &t.lots[i]
		if !lot.remainingShares.IsPositive() {
			continue
		}
		closing := decimal.Min(lot.remainingShares, toClose)
		lot.remainingShares = lot.remainingShares.Sub(closing)
		toClose = toClose.Sub(closing)
		closed = closed.Add(closing)
	}
	commission := execution.Commission
	remainingCommission := decimal.Zero
	if toClose.IsPositive() && commissionPolicy == CommissionPolicyProRate {
		commission = execution.Commission.Mul(closed).Div(execution.Quantity)
		remainingCommission = execution.Commission.Sub(commission)
	}
	t.totalExitShares = t.totalExitShares.Add(closed)
	t.totalExitProceeds = t.totalExitProceeds.Add(closed.Mul(execution.Price))
	t.totalCommission = t.totalCommission.Add(commission)
	t.lastExitDatetime = execution.ExecutedAt
	legType := LegTypeTrim
	if t.remainingShares().IsZero() {
		legType = LegTypeExit
	}
	t.legs = append(t.legs, TradeLeg{
		ExecutionID: execution.ExecutionID,
		LegType:     legType,
		Shares:      closed,
		Price:       execution.Price,
		ExecutedAt:  execution.ExecutedAt,
	})
	return toClose, remainingCommission
}

func (t *openTrade) remainingShares() decimal.Decimal {
	remaining := decimal.Zero
	for _, lot := range t.lots {
		remaining = remaining.Add(lot.remainingShares)
	}
	return remaining
}

// finalize converts the working state into a MatchedTrade. Prices and money
// are rounded here and nowhere else.
func (t *openTrade) finalize() *MatchedTrade {
	remaining := t.remainingShares()
	trade := &MatchedTrade{
		AccountID:       t.accountID,
		Ticker:          t.ticker,
		Direction:       t.direction,
		Status:          StatusOpen,
		EntryDatetime:   t.entryDatetime,
		EntryPrice:      t.totalEntryCost.Div(t.totalEntryShares).Round(pricePlaces),
		TotalShares:     t.totalEntryShares,
		RemainingShares: remaining,
		ExitedShares:    t.totalExitShares,
		TotalCommission: t.totalCommission.Round(moneyPlaces),
		Legs:            slices.Clone(t.legs),
		Lots:            make([]Lot, 0, len(t.lots)),
	}
	for _, lot := range t.lots {
		trade.Lots = append(trade.Lots, Lot{
			ExecutionID:     lot.executionID,
			Shares:          lot.shares,
			RemainingShares: lot.remainingShares,
			Price:           lot.price,
			OpenedAt:        lot.openedAt,
		})
	}
	if t.totalExitShares.IsPositive() {
		trade.ExitPrice = decimal.NewNullDecimal(t.totalExitProceeds.Div(t.totalExitShares).Round(pricePlaces))
		// Cost is scaled to the fraction of the position closed.
		closedCost := t.totalEntryCost.Mul(t.totalExitShares).Div(t.totalEntryShares)
		gross := t.totalExitProceeds.Sub(closedCost)
		if t.direction == DirectionShort {
			gross = closedCost.Sub(t.totalExitProceeds)
		}
		trade.RealizedPnl = decimal.NewNullDecimal(gross.Sub(t.totalCommission).Round(moneyPlaces))
	}
	if remaining.IsZero() {
		trade.Status = StatusClosed
		exitDatetime := t.lastExitDatetime
		trade.ExitDatetime = &exitDatetime
	}
	return trade
}

func validateExecution(execution Execution) error {
	if execution.ExecutionID == "" {
		return errors.New("missing execution id")
	}
	if execution.AccountID == "" {
		return errors.New("missing account id")
	}
	if execution.Ticker == "" {
		return errors.New("missing ticker")
	}
	if execution.Side != SideBuy && execution.Side != SideSell {
		return fmt.Errorf("unknown side %q", execution.Side)
	}
	if !execution.Quantity.IsPositive() {
		return fmt.Errorf("quantity must be positive, got %s", execution.Quantity)
	}
	if !execution.Price.IsPositive() {
		return fmt.Errorf("price must be positive, got %s", execution.Price)
	}
	if execution.Commission.IsNegative() {
		return fmt.Errorf("commission must not be negative, got %s", execution.Commission)
	}
	return nil
}
