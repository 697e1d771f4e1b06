// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package cliio writes command output as an aligned table, CSV, or JSON lines.
package cliio

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Format is the output format of a command.
type Format string

const (
	// FormatTable is the default format.
	FormatTable Format = "table"
	// FormatCSV is the CSV format.
	FormatCSV Format = "csv"
	// FormatJSON writes one JSON object per line.
	FormatJSON Format = "json"
)

// ParseFormat parses a format flag value. The empty string is FormatTable.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatTable:
		return FormatTable, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown format %q, must be one of: table, csv, json", s)
	}
}

// Table is tabular output with an optional totals row.
//
// The totals row is only written in the table format.
type Table struct {
	Headers []string
	Rows    [][]string
	Totals  []string
}

// Write writes the objects as JSON lines if the format is FormatJSON, and the
// table otherwise.
func Write[O any](writer io.Writer, format Format, table Table, objects []O) error {
	switch format {
	case FormatJSON:
		return WriteJSON(writer, objects...)
	case FormatCSV:
		return WriteCSV(writer, table)
	case FormatTable, "":
		return WriteTable(writer, table)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// WriteTable writes the table with aligned columns.
//
// If the table has a totals row, it follows a blank line and shares the
// column alignment of the data rows.
func WriteTable(writer io.Writer, table Table) error {
	tabWriter := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)
	lines := make([][]string, 0, len(table.Rows)+3)
	lines = append(lines, table.Headers)
	lines = append(lines, table.Rows...)
	if len(table.Totals) > 0 {
		lines = append(lines, make([]string, len(table.Headers)), table.Totals)
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(tabWriter, strings.Join(line, "\t")); err != nil {
			return err
		}
	}
	return tabWriter.Flush()
}

// WriteCSV writes the headers and rows of the table as CSV.
func WriteCSV(writer io.Writer, table Table) error {
	csvWriter := csv.NewWriter(writer)
	if err := csvWriter.Write(table.Headers); err != nil {
		return err
	}
	// WriteAll flushes.
	return csvWriter.WriteAll(table.Rows)
}

// WriteJSON writes each object as a JSON line.
func WriteJSON[O any](writer io.Writer, objects ...O) error {
	encoder := json.NewEncoder(writer)
	for _, object := range objects {
		if err := encoder.Encode(object); err != nil {
			return err
		}
	}
	return nil
}
