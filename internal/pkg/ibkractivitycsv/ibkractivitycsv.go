// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package ibkractivitycsv parses the Trades section of IBKR Activity Statement CSV files.
//
// Activity Statement CSVs are multi-section files where each row starts with
// a section name and row type (Header, Data, SubTotal, Total). Only stock
// executions are extracted: Trades,Data rows with the Order discriminator and
// the Stocks asset category. Every other section is skipped, including
// Account Information, so identifying data is never read.
package ibkractivitycsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const (
	sectionTrades       = "Trades"
	rowTypeHeader       = "Header"
	rowTypeData         = "Data"
	discriminatorOrder  = "Order"
	assetCategoryStocks = "Stocks"
	byteOrderMark       = "\ufeff"
)

// Trade is a single stock execution from the Trades section.
//
// Numeric fields are kept as strings with thousands separators removed so
// that callers decide how to interpret them.
type Trade struct {
	// Line is the 1-based line of the row in the source file.
	Line         int
	Symbol       string
	DateTime     time.Time
	CurrencyCode string
	// Quantity is positive for buys, negative for sells.
	Quantity   string
	TradePrice string
	Proceeds   string
	// Commission is reported as a negative number for fees paid.
	Commission string
	Code       string
}

// Statement contains the stock executions parsed from a single Activity Statement CSV file.
type Statement struct {
	Trades []Trade
	// Skipped contains problems with individual rows that did not stop the parse.
	Skipped []SkippedRow
}

// SkippedRow is a Trades,Data row that could not be read.
type SkippedRow struct {
	Line   int
	Reason string
}

// ParseOption is an option for parsing.
type ParseOption func(*parseOptions)

// ParseWithLocation interprets the statement's date/time values in the given location.
//
// The default is UTC.
func ParseWithLocation(location *time.Location) ParseOption {
	return func(parseOptions *parseOptions) {
		if location != nil {
			parseOptions.location = location
		}
	}
}

// ParseFile parses a single IBKR Activity Statement CSV file.
func ParseFile(filePath string, options ...ParseOption) (_ *Statement, retErr error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer func() {
		retErr = errors.Join(retErr, file.Close())
	}()
	return Parse(file, options...)
}

// Parse parses an IBKR Activity Statement CSV from the reader.
func Parse(reader io.Reader, options ...ParseOption) (*Statement, error) {
	parseOptions := &parseOptions{
		location: time.UTC,
	}
	for _, option := range options {
		option(parseOptions)
	}
	csvReader := csv.NewReader(reader)
	// Sections have different column counts.
	csvReader.FieldsPerRecord = -1
	csvReader.TrimLeadingSpace = true
	csvReader.LazyQuotes = true

	statement := &Statement{}
	var columns map[string]int
	for {
		record, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV: %w", err)
		}
		line, _ := csvReader.FieldPos(0)
		if len(record) < 2 || strings.TrimPrefix(record[0], byteOrderMark) != sectionTrades {
			continue
		}
		switch record[1] {
		case rowTypeHeader:
			columns = headerColumns(record)
		case rowTypeData:
			if columns == nil {
				return nil, fmt.Errorf("line %d: Trades data row before Trades header", line)
			}
			trade, ok, reason := parseTrade(record, columns, parseOptions.location)
			if reason != "" {
				statement.Skipped = append(statement.Skipped, SkippedRow{Line: line, Reason: reason})
				continue
			}
			if ok {
				trade.Line = line
				statement.Trades = append(statement.Trades, trade)
			}
		}
	}
	return statement, nil
}

// *** PRIVATE ***

type parseOptions struct {
	location *time.Location
}

// headerColumns maps column names to indices. Some exports name the commission
// column "Comm/Fee" and others "Comm in USD".
func headerColumns(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if strings.HasPrefix(name, "Comm") {
			name = "Comm/Fee"
		}
		if _, ok := columns[name]; !ok {
			columns[name] = i
		}
	}
	return columns
}

// parseTrade returns the trade, whether the row is a stock order, and a
// non-empty reason if the row is a stock order that could not be read.
func parseTrade(record []string, columns map[string]int, location *time.Location) (Trade, bool, string) {
	field := func(name string) string {
		index, ok := columns[name]
		if !ok || index >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[index])
	}
	if field("DataDiscriminator") != discriminatorOrder || field("Asset Category") != assetCategoryStocks {
		return Trade{}, false, ""
	}
	symbol := field("Symbol")
	if symbol == "" {
		return Trade{}, false, "missing symbol"
	}
	dateTimeValue := field("Date/Time")
	dateTime, err := parseDateTime(dateTimeValue, location)
	if err != nil {
		return Trade{}, false, fmt.Sprintf("invalid date/time %q for %s", dateTimeValue, symbol)
	}
	return Trade{
		Symbol:       symbol,
		DateTime:     dateTime,
		CurrencyCode: field("Currency"),
		Quantity:     cleanNumber(field("Quantity")),
		TradePrice:   cleanNumber(field("T. Price")),
		Proceeds:     cleanNumber(field("Proceeds")),
		Commission:   cleanNumber(field("Comm/Fee")),
		Code:         field("Code"),
	}, true, ""
}

// parseDateTime parses an IBKR date/time string in "2026-01-02, 09:30:00" format.
func parseDateTime(s string, location *time.Location) (time.Time, error) {
	return time.ParseInLocation("2006-01-02, 15:04:05", s, location)
}

// cleanNumber strips commas from numeric strings (e.g., "-2,290" → "-2290").
func cleanNumber(s string) string {
	return strings.ReplaceAll(s, ",", "")
}
