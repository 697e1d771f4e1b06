// Copyright 2026 Peter Edge
//
// All rights reserved.

package tjctldownload

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/bufdev/tjctl/internal/pkg/flexquery"
	"github.com/bufdev/tjctl/internal/standard/xtime"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlconfig"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlpath"
	"github.com/stretchr/testify/require"
)

const statementXML = `<FlexQueryResponse queryName="journal" type="AF">
  <FlexStatements count="2">
    <FlexStatement accountId="U1" fromDate="20260101" toDate="20260131">
      <Trades>
        <Trade accountId="U1" tradeID="1001" dateTime="20260102;093000" symbol="AAPL" assetCategory="STK" buySell="BUY" quantity="100" tradePrice="10" ibCommission="-1" levelOfDetail="EXECUTION" />
        <Trade accountId="U1" tradeID="1002" dateTime="20260105;101500" symbol="AAPL" assetCategory="STK" buySell="SELL" quantity="-100" tradePrice="12" ibCommission="-1" levelOfDetail="EXECUTION" />
      </Trades>
    </FlexStatement>
    <FlexStatement accountId="U9" fromDate="20260101" toDate="20260131">
      <Trades>
        <Trade accountId="U9" tradeID="2001" dateTime="20260106;110000" symbol="MSFT" assetCategory="STK" buySell="BUY" quantity="10" tradePrice="400" ibCommission="0" levelOfDetail="EXECUTION" />
      </Trades>
    </FlexStatement>
  </FlexStatements>
</FlexQueryResponse>
`

func TestDownload(t *testing.T) {
	t.Parallel()
	config := newTestConfig(t, "555")
	client := &fakeClient{data: []byte(statementXML)}
	downloader := NewDownloader(slog.New(slog.DiscardHandler), config, client, "secret")
	fromDate := xtime.Date{Year: 2026, Month: 1, Day: 1}
	toDate := xtime.Date{Year: 2026, Month: 1, Day: 31}
	files, err := downloader.Download(context.Background(), DownloadOptions{FromDate: fromDate, ToDate: toDate})
	require.NoError(t, err)
	require.Equal(t, "secret", client.token)
	require.Equal(t, "555", client.queryID)
	require.Equal(t, fromDate, client.fromDate)
	require.Equal(t, toDate, client.toDate)

	require.Len(t, files, 1)
	require.Equal(t, "brokerage", files[0].Account)
	require.Equal(t, 2, files[0].Trades)
	require.Equal(
		t,
		filepath.Join(tjctlpath.ExecutionsAccountDirPath(config.DirPath, "brokerage"), "flex-20260101-20260131.xml"),
		files[0].FilePath,
	)
	response, err := flexquery.ParseFile(files[0].FilePath)
	require.NoError(t, err)
	require.Len(t, response.FlexStatements, 1)
	require.Equal(t, "U1", response.FlexStatements[0].AccountID)
	require.Len(t, response.FlexStatements[0].Trades, 2)
	require.Equal(t, "1002", response.FlexStatements[0].Trades[1].TradeID)

	// Downloading the same period again replaces the file.
	_, err = downloader.Download(context.Background(), DownloadOptions{})
	require.NoError(t, err)
	entries, err := os.ReadDir(filepath.Dir(files[0].FilePath))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "flex-20260101-20260131.xml", entries[0].Name())
	require.True(t, client.fromDate.IsZero())
}

func TestDownloadWithoutQueryID(t *testing.T) {
	t.Parallel()
	client := &fakeClient{data: []byte(statementXML)}
	downloader := NewDownloader(slog.New(slog.DiscardHandler), newTestConfig(t, ""), client, "secret")
	_, err := downloader.Download(context.Background(), DownloadOptions{})
	require.ErrorContains(t, err, "download.query_id")
	require.Empty(t, client.queryID)
}

func TestDownloadClientError(t *testing.T) {
	t.Parallel()
	clientErr := errors.New("flex query error 1012: token expired")
	downloader := NewDownloader(slog.New(slog.DiscardHandler), newTestConfig(t, "555"), &fakeClient{err: clientErr}, "secret")
	_, err := downloader.Download(context.Background(), DownloadOptions{})
	require.ErrorIs(t, err, clientErr)
}

func TestDownloadInvalidStatement(t *testing.T) {
	t.Parallel()
	downloader := NewDownloader(slog.New(slog.DiscardHandler), newTestConfig(t, "555"), &fakeClient{data: []byte("<not")}, "secret")
	_, err := downloader.Download(context.Background(), DownloadOptions{})
	require.ErrorContains(t, err, "parsing flex query statement")
}

type fakeClient struct {
	data     []byte
	err      error
	token    string
	queryID  string
	fromDate xtime.Date
	toDate   xtime.Date
}

func (c *fakeClient) Download(_ context.Context, token string, queryID string, fromDate xtime.Date, toDate xtime.Date) ([]byte, error) {
	c.token = token
	c.queryID = queryID
	c.fromDate = fromDate
	c.toDate = toDate
	return c.data, c.err
}

func newTestConfig(t *testing.T, queryID string) *tjctlconfig.Config {
	t.Helper()
	config, err := tjctlconfig.NewConfig(
		t.TempDir(),
		tjctlconfig.ExternalConfig{
			Version: "v1",
			Accounts: []tjctlconfig.ExternalAccountConfig{
				{Alias: "brokerage", ID: "U1"},
				{Alias: "ira", ID: "U3"},
				{Alias: "cash"},
			},
			Timezone: "America/New_York",
			Download: tjctlconfig.ExternalDownloadConfig{QueryID: queryID},
		},
	)
	require.NoError(t, err)
	return config
}
