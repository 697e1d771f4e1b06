// Copyright 2026 Peter Edge
//
// All rights reserved.

package tjctlserve

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/bufdev/tjctl/internal/tjctl/tjctlmatch"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlmetrics"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlstore"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2026, 1, 5, 14, 30, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestHealth(t *testing.T) {
	t.Parallel()
	handler, _ := newTestHandler(t)
	recorder := doRequest(t, handler, "/healthz")
	require.Equal(t, http.StatusOK, recorder.Code)
	require.JSONEq(t, `{"status":"ok"}`, recorder.Body.String())
}

func TestListTrades(t *testing.T) {
	t.Parallel()
	handler, _ := newTestHandler(t)

	var response struct {
		Trades []*tjctlstore.TradeRecord `json:"trades"`
	}
	recorder := doRequest(t, handler, "/v1/trades")
	require.Equal(t, http.StatusOK, recorder.Code)
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	require.Len(t, response.Trades, 3)

	recorder = doRequest(t, handler, "/v1/trades?status=open&ticker=aapl")
	require.Equal(t, http.StatusOK, recorder.Code)
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	require.Len(t, response.Trades, 1)
	require.Equal(t, "SHORT", response.Trades[0].Direction)
	require.False(t, response.Trades[0].RealizedPnl.Valid)

	recorder = doRequest(t, handler, "/v1/trades?account=ira")
	require.Equal(t, http.StatusOK, recorder.Code)
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	require.Empty(t, response.Trades)

	recorder = doRequest(t, handler, "/v1/trades?status=pending")
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	require.Contains(t, recorder.Body.String(), "pending")
}

func TestGetTradeAndLegs(t *testing.T) {
	t.Parallel()
	handler, tradeID := newTestHandler(t)

	var tradeRecord tjctlstore.TradeRecord
	recorder := doRequest(t, handler, "/v1/trades/"+tradeID)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &tradeRecord))
	require.Equal(t, tradeID, tradeRecord.ID)
	require.Equal(t, "CLOSED", tradeRecord.Status)
	require.True(t, tradeRecord.RealizedPnl.Decimal.Equal(decimal.NewFromInt(198)))

	var legsResponse struct {
		Legs []*tjctlstore.LegRecord `json:"legs"`
	}
	recorder = doRequest(t, handler, "/v1/trades/"+tradeID+"/legs")
	require.Equal(t, http.StatusOK, recorder.Code)
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &legsResponse))
	require.Len(t, legsResponse.Legs, 2)
	require.Equal(t, "ENTRY", legsResponse.Legs[0].LegType)
	require.Equal(t, "EXIT", legsResponse.Legs[1].LegType)

	recorder = doRequest(t, handler, "/v1/trades/trd-missing")
	require.Equal(t, http.StatusNotFound, recorder.Code)
	recorder = doRequest(t, handler, "/v1/trades/trd-missing/legs")
	require.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestStats(t *testing.T) {
	t.Parallel()
	handler, _ := newTestHandler(t)
	var summary struct {
		Trades       int             `json:"trades"`
		ClosedTrades int             `json:"closed_trades"`
		OpenTrades   int             `json:"open_trades"`
		Wins         int             `json:"wins"`
		NetPnl       decimal.Decimal `json:"net_pnl"`
	}
	recorder := doRequest(t, handler, "/v1/stats?account=brokerage")
	require.Equal(t, http.StatusOK, recorder.Code)
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &summary))
	require.Equal(t, 3, summary.Trades)
	require.Equal(t, 1, summary.ClosedTrades)
	require.Equal(t, 2, summary.OpenTrades)
	require.Equal(t, 1, summary.Wins)
	require.True(t, summary.NetPnl.Equal(decimal.NewFromInt(198)))
}

func TestListIssues(t *testing.T) {
	t.Parallel()
	handler, _ := newTestHandler(t)
	recorder := doRequest(t, handler, "/v1/issues?kind=rejected")
	require.Equal(t, http.StatusOK, recorder.Code)
	var response struct {
		Issues []*tjctlstore.IssueRecord `json:"issues"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	require.Len(t, response.Issues, 1)
	require.Equal(t, "jan.csv:4", response.Issues[0].Source)

	recorder = doRequest(t, handler, "/v1/issues?kind=other")
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestMetrics(t *testing.T) {
	t.Parallel()
	handler, _ := newTestHandler(t)
	recorder := doRequest(t, handler, "/metrics")
	require.Equal(t, http.StatusOK, recorder.Code)
	body := recorder.Body.String()
	require.Contains(t, body, `tjctl_executions_read_total{account="brokerage"} 3`)
	require.Contains(t, body, `tjctl_trades{account="brokerage",status="CLOSED"} 1`)
	require.Contains(t, body, `tjctl_trades{account="brokerage",status="OPEN"} 2`)
	require.Contains(t, body, `tjctl_import_issues{account="brokerage",kind="rejected"} 1`)
	require.Contains(t, body, `tjctl_realized_pnl{account="brokerage"} 198`)
}

func TestRun(t *testing.T) {
	t.Parallel()
	handler, _ := newTestHandler(t)
	ctx, cancel := context.WithCancel(context.Background())
	errC := make(chan error, 1)
	go func() {
		errC <- Run(ctx, slog.New(slog.DiscardHandler), "127.0.0.1:0", handler)
	}()
	cancel()
	require.NoError(t, <-errC)

	require.Error(t, Run(context.Background(), slog.New(slog.DiscardHandler), "bad-address", handler))
}

func newTestHandler(t *testing.T) (*Handler, string) {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)
	store, err := tjctlstore.Open(
		logger,
		tjctlstore.Config{
			Type: tjctlstore.TypeSQLite,
			DSN:  filepath.Join(t.TempDir(), "tjctl.db"),
		},
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	executions := []tjctlmatch.Execution{
		newExecution("e1", "AAPL", 0, tjctlmatch.SideBuy, "100", "10", "1"),
		newExecution("e2", "AAPL", 1, tjctlmatch.SideSell, "150", "12", "1"),
		newExecution("e3", "MSFT", 2, tjctlmatch.SideBuy, "10", "400", "0"),
	}
	_, err = store.SaveExecutions(ctx, "batch-1", executions)
	require.NoError(t, err)
	result := tjctlmatch.Match(executions)
	require.Len(t, result.Trades, 3)
	require.NoError(t, store.ReplaceTrades(ctx, "brokerage", "batch-1", result.Trades))
	require.NoError(
		t,
		store.SaveIssues(
			ctx,
			"brokerage",
			[]*tjctlstore.IssueRecord{
				{AccountID: "brokerage", BatchID: "batch-1", Kind: tjctlstore.IssueKindRejected, Source: "jan.csv:4", Message: "zero quantity for AAPL"},
			},
		),
	)
	metrics := tjctlmetrics.New()
	metrics.AddExecutions("brokerage", 3, 3)
	return NewHandler(logger, store, metrics), tjctlstore.TradeID(result.Trades[0])
}

func doRequest(t *testing.T, handler http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(http.MethodGet, target, nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func newExecution(
	executionID string,
	ticker string,
	minutes int,
	side tjctlmatch.Side,
	quantity string,
	price string,
	commission string,
) tjctlmatch.Execution {
	return tjctlmatch.Execution{
		ExecutionID: executionID,
		AccountID:   "brokerage",
		Ticker:      ticker,
		ExecutedAt:  testStart.Add(time.Duration(minutes) * time.Minute),
		Side:        side,
		Quantity:    decimal.RequireFromString(quantity),
		Price:       decimal.RequireFromString(price),
		Commission:  decimal.RequireFromString(commission),
	}
}
