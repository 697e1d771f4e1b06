// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package flexquery parses trades from IBKR Flex Query XML statements.
package flexquery

import (
	"encoding/xml"
	"os"
	"strings"
	"time"
)

// Response is the top-level XML structure of a Flex Query statement.
type Response struct {
	XMLName        xml.Name        `xml:"FlexQueryResponse"`
	QueryName      string          `xml:"queryName,attr"`
	FlexStatements []FlexStatement `xml:"FlexStatements>FlexStatement"`
}

// FlexStatement is the statement for a single account.
type FlexStatement struct {
	AccountID string     `xml:"accountId,attr"`
	FromDate  string     `xml:"fromDate,attr"`
	ToDate    string     `xml:"toDate,attr"`
	Trades    []XMLTrade `xml:"Trades>Trade"`
}

// XMLTrade represents a trade in the IBKR Flex Query XML format.
// All fields are XML attributes.
type XMLTrade struct {
	TradeID       string `xml:"tradeID,attr"`
	AccountID     string `xml:"accountId,attr"`
	DateTime      string `xml:"dateTime,attr"`
	TradeDate     string `xml:"tradeDate,attr"`
	Symbol        string `xml:"symbol,attr"`
	AssetCategory string `xml:"assetCategory,attr"`
	BuySell       string `xml:"buySell,attr"`
	Quantity      string `xml:"quantity,attr"`
	TradePrice    string `xml:"tradePrice,attr"`
	IBCommission  string `xml:"ibCommission,attr"`
	Currency      string `xml:"currency,attr"`
	LevelOfDetail string `xml:"levelOfDetail,attr"`
}

// IsStockExecution returns true if the trade is an execution-level stock trade.
//
// Statements configured with order or closed-lot detail repeat the same fill,
// so only EXECUTION rows (or rows without a level of detail) are kept.
func (t XMLTrade) IsStockExecution() bool {
	if t.AssetCategory != "STK" {
		return false
	}
	return t.LevelOfDetail == "" || t.LevelOfDetail == "EXECUTION"
}

// Time parses the trade's dateTime attribute in the given location.
//
// Flex Queries emit "20260102;093000" by default and "2026-01-02 09:30:00"
// or "2026-01-02;09:30:00" depending on the query's date format settings. If
// dateTime is empty, tradeDate is used at midnight.
func (t XMLTrade) Time(location *time.Location) (time.Time, error) {
	value := t.DateTime
	if value == "" {
		value = t.TradeDate
	}
	value = strings.TrimSpace(value)
	var lastErr error
	for _, layout := range dateTimeLayouts {
		parsed, err := time.ParseInLocation(layout, value, location)
		if err == nil {
			return parsed, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// ForAccount returns a Response with only the statements of the account.
func (r *Response) ForAccount(accountID string) *Response {
	forAccount := &Response{
		QueryName: r.QueryName,
	}
	for _, statement := range r.FlexStatements {
		if statement.AccountID == accountID {
			forAccount.FlexStatements = append(forAccount.FlexStatements, statement)
		}
	}
	return forAccount
}

// Marshal returns the Response as indented XML.
//
// Only the attributes parsed by this package are kept.
func (r *Response) Marshal() ([]byte, error) {
	data, err := xml.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(append([]byte(xml.Header), data...), '\n'), nil
}

// Parse parses the raw XML data into a Response.
func Parse(data []byte) (*Response, error) {
	var response Response
	if err := xml.Unmarshal(data, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// ParseFile reads and parses the Flex Query XML file at the path.
func ParseFile(filePath string) (*Response, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// *** PRIVATE ***

var dateTimeLayouts = []string{
	"20060102;150405",
	"2006-01-02;15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02, 15:04:05",
	"20060102",
	"2006-01-02",
}
