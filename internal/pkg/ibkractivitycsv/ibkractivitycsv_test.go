// Copyright 2026 Peter Edge
//
// All rights reserved.

package ibkractivitycsv

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseFile(t *testing.T) {
	t.Parallel()
	statement, err := ParseFile("testdata/sample.csv")
	require.NoError(t, err)

	// Only Stocks Order rows; Forex, SubTotal, Total and Trade discriminators are skipped.
	require.Len(t, statement.Trades, 4)
	firstTrade := statement.Trades[0]
	require.Equal(t, "AAPL", firstTrade.Symbol)
	require.Equal(t, "USD", firstTrade.CurrencyCode)
	require.Equal(t, "100", firstTrade.Quantity)
	require.Equal(t, "150.50", firstTrade.TradePrice)
	require.Equal(t, "-1", firstTrade.Commission)
	require.Equal(t, "O", firstTrade.Code)
	require.Equal(t, time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC), firstTrade.DateTime)
	require.Equal(t, 8, firstTrade.Line)

	require.Equal(t, "-40", statement.Trades[1].Quantity)
	// Thousands separators are removed.
	require.Equal(t, "1200", statement.Trades[2].Quantity)
	require.Equal(t, "-481320", statement.Trades[2].Proceeds)
	require.Equal(t, "MSFT", statement.Trades[3].Symbol)

	require.Len(t, statement.Skipped, 1)
	require.Equal(t, 14, statement.Skipped[0].Line)
	require.Contains(t, statement.Skipped[0].Reason, "not-a-date")
}

func TestParseWithLocation(t *testing.T) {
	t.Parallel()
	location := time.FixedZone("EST", -5*60*60)
	statement, err := ParseFile("testdata/sample.csv", ParseWithLocation(location))
	require.NoError(t, err)
	require.NotEmpty(t, statement.Trades)
	require.Equal(t, time.Date(2026, 1, 2, 14, 30, 0, 0, time.UTC), statement.Trades[0].DateTime.UTC())
}

func TestParseCommissionColumnVariant(t *testing.T) {
	t.Parallel()
	data := `Trades,Header,DataDiscriminator,Asset Category,Currency,Symbol,Date/Time,Quantity,T. Price,Proceeds,Comm in USD,Code
Trades,Data,Order,Stocks,USD,SPY,"2026-02-03, 09:31:00",-10,600.10,6001,-0.35,C
`
	statement, err := Parse(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, statement.Trades, 1)
	require.Equal(t, "-0.35", statement.Trades[0].Commission)
	require.Equal(t, "600.10", statement.Trades[0].TradePrice)
}

func TestParseDataBeforeHeader(t *testing.T) {
	t.Parallel()
	_, err := Parse(strings.NewReader(`Trades,Data,Order,Stocks,USD,SPY,"2026-02-03, 09:31:00",1,1,1,0,O` + "\n"))
	require.Error(t, err)
}

func TestParseMissingFile(t *testing.T) {
	t.Parallel()
	_, err := ParseFile("testdata/does-not-exist.csv")
	require.Error(t, err)
}
