// Copyright 2026 Peter Edge
//
// All rights reserved.

package cliio

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

type testObject struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestParseFormat(t *testing.T) {
	t.Parallel()
	for input, expected := range map[string]Format{
		"":      FormatTable,
		"table": FormatTable,
		"CSV":   FormatCSV,
		"json":  FormatJSON,
	} {
		actual, err := ParseFormat(input)
		require.NoError(t, err, input)
		require.Equal(t, expected, actual, input)
	}
	_, err := ParseFormat("xml")
	require.Error(t, err)
}

func TestWrite(t *testing.T) {
	t.Parallel()
	table := Table{
		Headers: []string{"NAME", "COUNT"},
		Rows:    [][]string{{"alpha", "1"}, {"b", "22"}},
		Totals:  []string{"TOTAL", "23"},
	}
	objects := []testObject{{Name: "alpha", Count: 1}, {Name: "b", Count: 22}}

	var buffer bytes.Buffer
	require.NoError(t, Write(&buffer, FormatTable, table, objects))
	require.Equal(
		t,
		"NAME   COUNT\n"+
			"alpha  1\n"+
			"b      22\n"+
			"       \n"+
			"TOTAL  23\n",
		buffer.String(),
	)

	buffer.Reset()
	require.NoError(t, Write(&buffer, FormatCSV, table, objects))
	require.Equal(t, "NAME,COUNT\nalpha,1\nb,22\n", buffer.String())

	buffer.Reset()
	require.NoError(t, Write(&buffer, FormatJSON, table, objects))
	require.Equal(t, "{\"name\":\"alpha\",\"count\":1}\n{\"name\":\"b\",\"count\":22}\n", buffer.String())

	require.Error(t, Write(&buffer, Format("xml"), table, objects))
}

func TestWriteTableWithoutTotals(t *testing.T) {
	t.Parallel()
	var buffer bytes.Buffer
	require.NoError(t, WriteTable(&buffer, Table{Headers: []string{"A", "B"}, Rows: [][]string{{"x", "y"}}}))
	require.Equal(t, "A  B\nx  y\n", buffer.String())
}
