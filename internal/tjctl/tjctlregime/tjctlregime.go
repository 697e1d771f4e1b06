// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package tjctlregime labels trades with the market regime at their entry.
//
// The regime is read from a benchmark's daily closes with two simple moving
// averages. Labels are attached after matching and never influence it.
package tjctlregime

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/bufdev/tjctl/internal/standard/xtime"
	"github.com/shopspring/decimal"
)

const (
	// DefaultFastWindow is the default number of bars in the fast moving average.
	DefaultFastWindow = 50
	// DefaultSlowWindow is the default number of bars in the slow moving average.
	DefaultSlowWindow = 200
)

// Regime is a market regime.
type Regime string

const (
	// RegimeBull is a close above a rising average stack: close > fast > slow.
	RegimeBull Regime = "BULL"
	// RegimeBear is a close below a falling average stack: close < fast < slow.
	RegimeBear Regime = "BEAR"
	// RegimeNeutral is any other arrangement.
	RegimeNeutral Regime = "NEUTRAL"
	// RegimeUnknown means there is not enough history before the date.
	RegimeUnknown Regime = "UNKNOWN"
)

// Bar is a daily close.
type Bar struct {
	Date  xtime.Date
	Close decimal.Decimal
}

// Classifier classifies dates into regimes.
type Classifier interface {
	// Classify returns the regime as of the last bar on or before date.
	Classify(date xtime.Date) Regime
}

// NewSMAClassifier returns a new Classifier over the bars.
//
// Bars may be given in any order. A date with fewer than slowWindow bars on or
// before it is RegimeUnknown.
func NewSMAClassifier(bars []Bar, fastWindow int, slowWindow int) (Classifier, error) {
	if fastWindow < 1 {
		return nil, fmt.Errorf("fast window must be positive: %d", fastWindow)
	}
	if slowWindow <= fastWindow {
		return nil, fmt.Errorf("slow window %d must be greater than fast window %d", slowWindow, fastWindow)
	}
	sortedBars := make([]Bar, len(bars))
	copy(sortedBars, bars)
	sort.SliceStable(sortedBars, func(i int, j int) bool {
		return sortedBars[i].Date.Before(sortedBars[j].Date)
	})
	for i := 1; i < len(sortedBars); i++ {
		if sortedBars[i].Date == sortedBars[i-1].Date {
			return nil, fmt.Errorf("duplicate bar for %s", sortedBars[i].Date)
		}
	}
	// prefixSums[i] is the sum of the first i closes.
	prefixSums := make([]decimal.Decimal, len(sortedBars)+1)
	prefixSums[0] = decimal.Zero
	for i, bar := range sortedBars {
		prefixSums[i+1] = prefixSums[i].Add(bar.Close)
	}
	return &smaClassifier{
		bars:       sortedBars,
		prefixSums: prefixSums,
		fastWindow: fastWindow,
		slowWindow: slowWindow,
	}, nil
}

// ReadBarsFile reads daily bars from a CSV file with a header row.
//
// The header must have a "date" column (YYYY-MM-DD) and a "close" column,
// matched case-insensitively. Other columns are ignored.
func ReadBarsFile(filePath string) (_ []Bar, retErr error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer func() {
		retErr = errors.Join(retErr, file.Close())
	}()
	bars, err := ReadBars(file)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filePath, err)
	}
	return bars, nil
}

// ReadBars reads daily bars from CSV data with a header row.
func ReadBars(reader io.Reader) ([]Bar, error) {
	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	header, err := csvReader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("missing header")
		}
		return nil, err
	}
	dateIndex, closeIndex := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "date":
			dateIndex = i
		case "close":
			closeIndex = i
		}
	}
	if dateIndex < 0 || closeIndex < 0 {
		return nil, fmt.Errorf("header must contain date and close columns: %v", header)
	}
	var bars []Bar
	for {
		record, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := csvReader.FieldPos(0)
		date, err := xtime.ParseDate(strings.TrimSpace(record[dateIndex]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid date %q", line, record[dateIndex])
		}
		closePrice, err := decimal.NewFromString(strings.TrimSpace(record[closeIndex]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid close %q", line, record[closeIndex])
		}
		bars = append(bars, Bar{Date: date, Close: closePrice})
	}
	return bars, nil
}

// *** PRIVATE ***

type smaClassifier struct {
	bars       []Bar
	prefixSums []decimal.Decimal
	fastWindow int
	slowWindow int
}

func (c *smaClassifier) Classify(date xtime.Date) Regime {
	// count is the number of bars on or before date.
	count := sort.Search(len(c.bars), func(i int) bool {
		return c.bars[i].Date.After(date)
	})
	if count < c.slowWindow {
		return RegimeUnknown
	}
	closePrice := c.bars[count-1].Close
	fast := c.average(count, c.fastWindow)
	slow := c.average(count, c.slowWindow)
	switch {
	case closePrice.GreaterThan(fast) && fast.GreaterThan(slow):
		return RegimeBull
	case closePrice.LessThan(fast) && fast.LessThan(slow):
		return RegimeBear
	default:
		return RegimeNeutral
	}
}

// average returns the mean close of the window bars ending before index end.
func (c *smaClassifier) average(end int, window int) decimal.Decimal {
	return c.prefixSums[end].Sub(c.prefixSums[end-window]).Div(decimal.NewFromInt(int64(window)))
}
