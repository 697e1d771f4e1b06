// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package tjctlstats summarizes the performance of matched trades.
package tjctlstats

import (
	"sort"
	"time"

	"github.com/bufdev/tjctl/internal/tjctl/tjctlmatch"
	"github.com/shopspring/decimal"
)

const (
	moneyPlaces = 2
	ratioPlaces = 2
)

var oneHundred = decimal.NewFromInt(100)

// Summary is the performance summary of a set of trades.
//
// Win/loss metrics only consider CLOSED trades. Commission covers every trade.
// Metrics that are undefined for the input, such as the profit factor with no
// losing trades, are null.
type Summary struct {
	Trades       int `json:"trades"`
	ClosedTrades int `json:"closed_trades"`
	OpenTrades   int `json:"open_trades"`
	Wins         int `json:"wins"`
	Losses       int `json:"losses"`
	Breakeven    int `json:"breakeven"`
	// WinRate is the percentage of closed trades that were wins.
	WinRate decimal.NullDecimal `json:"win_rate"`
	// GrossProfit is the sum of winning P&L.
	GrossProfit decimal.Decimal `json:"gross_profit"`
	// GrossLoss is the absolute sum of losing P&L.
	GrossLoss    decimal.Decimal     `json:"gross_loss"`
	NetPnl       decimal.Decimal     `json:"net_pnl"`
	ProfitFactor decimal.NullDecimal `json:"profit_factor"`
	// Expectancy is the average P&L per closed trade.
	Expectancy  decimal.NullDecimal `json:"expectancy"`
	AverageWin  decimal.NullDecimal `json:"average_win"`
	AverageLoss decimal.NullDecimal `json:"average_loss"`
	LargestWin  decimal.NullDecimal `json:"largest_win"`
	LargestLoss decimal.NullDecimal `json:"largest_loss"`
	// MaxConsecutiveLosses is the longest run of losing trades in exit order.
	MaxConsecutiveLosses int `json:"max_consecutive_losses"`
	// MaxDrawdown is the largest peak-to-trough decline of cumulative
	// realized P&L in exit order, as a positive amount.
	MaxDrawdown     decimal.Decimal `json:"max_drawdown"`
	TotalCommission decimal.Decimal `json:"total_commission"`
	// AverageHoldingPeriod is the mean time from entry to exit of closed trades.
	AverageHoldingPeriod time.Duration `json:"average_holding_period"`
}

// Summarize summarizes the trades.
func Summarize(trades []*tjctlmatch.MatchedTrade) *Summary {
	summary := &Summary{
		Trades:          len(trades),
		GrossProfit:     decimal.Zero,
		GrossLoss:       decimal.Zero,
		NetPnl:          decimal.Zero,
		MaxDrawdown:     decimal.Zero,
		TotalCommission: decimal.Zero,
	}
	var closedTrades []*tjctlmatch.MatchedTrade
	for _, trade := range trades {
		summary.TotalCommission = summary.TotalCommission.Add(trade.TotalCommission)
		if trade.Status != tjctlmatch.StatusClosed || !trade.RealizedPnl.Valid || trade.ExitDatetime == nil {
			summary.OpenTrades++
			continue
		}
		closedTrades = append(closedTrades, trade)
	}
	summary.ClosedTrades = len(closedTrades)
	if len(closedTrades) == 0 {
		return summary
	}
	sort.SliceStable(closedTrades, func(i int, j int) bool {
		return closedTrades[i].ExitDatetime.Before(*closedTrades[j].ExitDatetime)
	})

	var largestWin, largestLoss decimal.Decimal
	var holdingPeriod time.Duration
	var consecutiveLosses int
	cumulative := decimal.Zero
	peak := decimal.Zero
	for _, trade := range closedTrades {
		pnl := trade.RealizedPnl.Decimal
		holdingPeriod += trade.ExitDatetime.Sub(trade.EntryDatetime)
		switch pnl.Sign() {
		case 1:
			summary.Wins++
			summary.GrossProfit = summary.GrossProfit.Add(pnl)
			if summary.Wins == 1 || pnl.GreaterThan(largestWin) {
				largestWin = pnl
			}
			consecutiveLosses = 0
		case -1:
			summary.Losses++
			summary.GrossLoss = summary.GrossLoss.Add(pnl.Neg())
			if summary.Losses == 1 || pnl.LessThan(largestLoss) {
				largestLoss = pnl
			}
			consecutiveLosses++
			summary.MaxConsecutiveLosses = max(summary.MaxConsecutiveLosses, consecutiveLosses)
		default:
			summary.Breakeven++
		}
		cumulative = cumulative.Add(pnl)
		peak = decimal.Max(peak, cumulative)
		summary.MaxDrawdown = decimal.Max(summary.MaxDrawdown, peak.Sub(cumulative))
	}

	closedCount := decimal.NewFromInt(int64(len(closedTrades)))
	summary.NetPnl = summary.GrossProfit.Sub(summary.GrossLoss)
	summary.WinRate = nullDecimal(decimal.NewFromInt(int64(summary.Wins)).Mul(oneHundred).Div(closedCount).Round(ratioPlaces))
	summary.Expectancy = nullDecimal(summary.NetPnl.Div(closedCount).Round(moneyPlaces))
	summary.AverageHoldingPeriod = holdingPeriod / time.Duration(len(closedTrades))
	if summary.Wins > 0 {
		summary.AverageWin = nullDecimal(summary.GrossProfit.Div(decimal.NewFromInt(int64(summary.Wins))).Round(moneyPlaces))
		summary.LargestWin = nullDecimal(largestWin)
	}
	if summary.Losses > 0 {
		summary.AverageLoss = nullDecimal(summary.GrossLoss.Neg().Div(decimal.NewFromInt(int64(summary.Losses))).Round(moneyPlaces))
		summary.LargestLoss = nullDecimal(largestLoss)
		summary.ProfitFactor = nullDecimal(summary.GrossProfit.Div(summary.GrossLoss).Round(ratioPlaces))
	}
	return summary
}

func nullDecimal(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
