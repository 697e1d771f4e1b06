// Copyright 2026 Peter Edge
//
// All rights reserved.

package ibkrflexquery

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bufdev/tjctl/internal/pkg/backoff"
	"github.com/bufdev/tjctl/internal/standard/xtime"
	"github.com/stretchr/testify/require"
)

const statementXML = `<FlexQueryResponse queryName="journal" type="AF"><FlexStatements count="0"></FlexStatements></FlexQueryResponse>`

var testPolicy = backoff.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

func TestDownload(t *testing.T) {
	t.Parallel()
	var getStatementCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/SendRequest", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if r.Header.Get("User-Agent") != "Java" || query.Get("t") != "token" || query.Get("q") != "123" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if query.Get("fd") != "20260101" || query.Get("td") != "20260131" || query.Get("v") != "3" {
			http.Error(w, "bad dates", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `<FlexStatementResponse><Status>Success</Status><ReferenceCode>ref-1</ReferenceCode></FlexStatementResponse>`)
	})
	mux.HandleFunc("/GetStatement", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "ref-1" {
			http.Error(w, "bad reference code", http.StatusBadRequest)
			return
		}
		if getStatementCalls.Add(1) == 1 {
			fmt.Fprint(w, `<FlexStatementResponse><Status>Warn</Status><ErrorCode>1019</ErrorCode><ErrorMessage>Statement generation in progress</ErrorMessage></FlexStatementResponse>`)
			return
		}
		fmt.Fprint(w, statementXML)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := NewClient(slog.New(slog.DiscardHandler), ClientWithBaseURL(server.URL+"/"), ClientWithPolicy(testPolicy))
	data, err := client.Download(
		context.Background(),
		"token",
		"123",
		xtime.Date{Year: 2026, Month: 1, Day: 1},
		xtime.Date{Year: 2026, Month: 1, Day: 31},
	)
	require.NoError(t, err)
	require.Equal(t, statementXML, string(data))
	require.Equal(t, int32(2), getStatementCalls.Load())
}

func TestDownloadNonRetryableError(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `<FlexStatementResponse><Status>Fail</Status><ErrorCode>1012</ErrorCode><ErrorMessage>Token has expired.</ErrorMessage></FlexStatementResponse>`)
	}))
	t.Cleanup(server.Close)
	client := NewClient(slog.New(slog.DiscardHandler), ClientWithBaseURL(server.URL), ClientWithPolicy(testPolicy))
	_, err := client.Download(context.Background(), "token", "123", xtime.Date{}, xtime.Date{})
	require.ErrorContains(t, err, "Token has expired. (code: 1012)")
	require.Equal(t, int32(1), calls.Load())
}

func TestDownloadRetriesExhausted(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<FlexStatementResponse><Status>Fail</Status><ErrorCode>1001</ErrorCode><ErrorMessage>busy</ErrorMessage></FlexStatementResponse>`)
	}))
	t.Cleanup(server.Close)
	client := NewClient(slog.New(slog.DiscardHandler), ClientWithBaseURL(server.URL), ClientWithPolicy(testPolicy))
	_, err := client.Download(context.Background(), "token", "123", xtime.Date{}, xtime.Date{})
	require.ErrorContains(t, err, "failed after 3 attempts")
}

func TestDownloadHTTPError(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)
	client := NewClient(slog.New(slog.DiscardHandler), ClientWithBaseURL(server.URL), ClientWithPolicy(testPolicy))
	_, err := client.Download(context.Background(), "token", "123", xtime.Date{}, xtime.Date{})
	require.ErrorContains(t, err, "unexpected status 502")
}

func TestDownloadInvalidArguments(t *testing.T) {
	t.Parallel()
	client := NewClient(slog.New(slog.DiscardHandler))
	ctx := context.Background()
	_, err := client.Download(ctx, "", "123", xtime.Date{}, xtime.Date{})
	require.Error(t, err)
	_, err = client.Download(ctx, "token", "", xtime.Date{}, xtime.Date{})
	require.Error(t, err)
	_, err = client.Download(ctx, "token", "123", xtime.Date{Year: 2026, Month: 1, Day: 1}, xtime.Date{})
	require.Error(t, err)
}
