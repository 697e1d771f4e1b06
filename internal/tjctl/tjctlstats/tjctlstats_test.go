// Copyright 2026 Peter Edge
//
// All rights reserved.

package tjctlstats

import (
	"testing"
	"time"

	"github.com/bufdev/tjctl/internal/tjctl/tjctlmatch"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

func TestSummarize(t *testing.T) {
	t.Parallel()
	summary := Summarize(
		[]*tjctlmatch.MatchedTrade{
			// Listed out of exit order: exits are on days 1, 2, 3, 4, 5.
			newClosedTrade(3, "-50", "1"),
			newClosedTrade(1, "100", "1"),
			newClosedTrade(2, "-30", "1"),
			newClosedTrade(4, "0", "0.5"),
			newClosedTrade(5, "200", "2"),
			newOpenTrade("1.25"),
		},
	)
	require.Equal(t, 6, summary.Trades)
	require.Equal(t, 5, summary.ClosedTrades)
	require.Equal(t, 1, summary.OpenTrades)
	require.Equal(t, 2, summary.Wins)
	require.Equal(t, 2, summary.Losses)
	require.Equal(t, 1, summary.Breakeven)
	requireNullDecimal(t, "40", summary.WinRate)
	requireDecimal(t, "300", summary.GrossProfit)
	requireDecimal(t, "80", summary.GrossLoss)
	requireDecimal(t, "220", summary.NetPnl)
	requireNullDecimal(t, "3.75", summary.ProfitFactor)
	requireNullDecimal(t, "44", summary.Expectancy)
	requireNullDecimal(t, "150", summary.AverageWin)
	requireNullDecimal(t, "-40", summary.AverageLoss)
	requireNullDecimal(t, "200", summary.LargestWin)
	requireNullDecimal(t, "-50", summary.LargestLoss)
	// Exit order: +100, -30, -50, 0, +200.
	require.Equal(t, 2, summary.MaxConsecutiveLosses)
	requireDecimal(t, "80", summary.MaxDrawdown)
	requireDecimal(t, "6.75", summary.TotalCommission)
	// Holding periods are 1..5 days.
	require.Equal(t, 3*24*time.Hour, summary.AverageHoldingPeriod)
}

func TestSummarizeOnlyWins(t *testing.T) {
	t.Parallel()
	summary := Summarize([]*tjctlmatch.MatchedTrade{newClosedTrade(1, "10", "0")})
	requireNullDecimal(t, "100", summary.WinRate)
	require.False(t, summary.ProfitFactor.Valid)
	require.False(t, summary.AverageLoss.Valid)
	require.False(t, summary.LargestLoss.Valid)
	requireDecimal(t, "0", summary.MaxDrawdown)
}

func TestSummarizeNoClosedTrades(t *testing.T) {
	t.Parallel()
	summary := Summarize([]*tjctlmatch.MatchedTrade{newOpenTrade("1")})
	require.Equal(t, 1, summary.OpenTrades)
	require.Zero(t, summary.ClosedTrades)
	require.False(t, summary.WinRate.Valid)
	require.False(t, summary.Expectancy.Valid)
	requireDecimal(t, "0", summary.NetPnl)
	requireDecimal(t, "1", summary.TotalCommission)

	summary = Summarize(nil)
	require.Zero(t, summary.Trades)
}

func TestSummarizeMatchedTrades(t *testing.T) {
	t.Parallel()
	newExecution := func(id string, minutes int, side tjctlmatch.Side, quantity int64, price string) tjctlmatch.Execution {
		return tjctlmatch.Execution{
			ExecutionID: id,
			AccountID:   "brokerage",
			Ticker:      "AAPL",
			ExecutedAt:  testStart.Add(time.Duration(minutes) * time.Minute),
			Side:        side,
			Quantity:    decimal.NewFromInt(quantity),
			Price:       decimal.RequireFromString(price),
			Commission:  decimal.NewFromInt(1),
		}
	}
	result := tjctlmatch.Match(
		[]tjctlmatch.Execution{
			newExecution("e1", 0, tjctlmatch.SideBuy, 100, "10"),
			newExecution("e2", 30, tjctlmatch.SideSell, 100, "11"),
			newExecution("e3", 60, tjctlmatch.SideSell, 10, "20"),
			newExecution("e4", 90, tjctlmatch.SideBuy, 10, "21"),
		},
	)
	require.Len(t, result.Trades, 2)
	summary := Summarize(result.Trades)
	require.Equal(t, 1, summary.Wins)
	require.Equal(t, 1, summary.Losses)
	// Long: 1100 - 1000 - 2 = 98. Short: 200 - 210 - 2 = -12.
	requireDecimal(t, "86", summary.NetPnl)
	requireDecimal(t, "4", summary.TotalCommission)
	require.Equal(t, 30*time.Minute, summary.AverageHoldingPeriod)
}

func newClosedTrade(exitDay int, pnl string, commission string) *tjctlmatch.MatchedTrade {
	exitDatetime := testStart.Add(time.Duration(exitDay) * 24 * time.Hour)
	return &tjctlmatch.MatchedTrade{
		AccountID:       "brokerage",
		Ticker:          "AAPL",
		Direction:       tjctlmatch.DirectionLong,
		Status:          tjctlmatch.StatusClosed,
		EntryDatetime:   testStart,
		ExitDatetime:    &exitDatetime,
		RealizedPnl:     decimal.NullDecimal{Decimal: decimal.RequireFromString(pnl), Valid: true},
		TotalCommission: decimal.RequireFromString(commission),
	}
}

func newOpenTrade(commission string) *tjctlmatch.MatchedTrade {
	return &tjctlmatch.MatchedTrade{
		AccountID:       "brokerage",
		Ticker:          "MSFT",
		Direction:       tjctlmatch.DirectionShort,
		Status:          tjctlmatch.StatusOpen,
		EntryDatetime:   testStart,
		TotalCommission: decimal.RequireFromString(commission),
	}
}

func requireDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(expected).Equal(actual), "expected %s, got %s", expected, actual)
}

func requireNullDecimal(t *testing.T, expected string, actual decimal.NullDecimal) {
	t.Helper()
	require.True(t, actual.Valid, "expected %s, got null", expected)
	requireDecimal(t, expected, actual.Decimal)
}
