// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package tjctlserve serves a read-only HTTP API over the journal store.
package tjctlserve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bufdev/tjctl/internal/tjctl/tjctlmatch"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlmetrics"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlstats"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlstore"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const (
	apiBasePath     = "/v1"
	shutdownTimeout = 10 * time.Second
)

// Handler is the http.Handler of the API.
type Handler struct {
	logger  *slog.Logger
	store   *tjctlstore.Store
	metrics *tjctlmetrics.Metrics
	router  *gin.Engine
}

// NewHandler returns a new Handler.
//
// If metrics is nil, /metrics is not served.
func NewHandler(logger *slog.Logger, store *tjctlstore.Store, metrics *tjctlmetrics.Metrics) *Handler {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))
	handler := &Handler{
		logger:  logger,
		store:   store,
		metrics: metrics,
		router:  router,
	}
	handler.registerRoutes()
	return handler
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Run serves the handler on addr until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, logger *slog.Logger, addr string, handler http.Handler) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errC := make(chan error, 1)
	go func() {
		errC <- server.Serve(listener)
	}()
	logger.Info("serving", "addr", listener.Addr().String())
	select {
	case err := <-errC:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errC; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// *** PRIVATE ***

func (h *Handler) registerRoutes() {
	h.router.GET("/healthz", h.getHealth)
	if h.metrics != nil {
		metricsHandler := gin.WrapH(h.metrics.Handler())
		h.router.GET("/metrics", func(c *gin.Context) {
			if err := h.refreshMetrics(c.Request.Context()); err != nil {
				h.writeInternalError(c, err)
				return
			}
			metricsHandler(c)
		})
	}
	api := h.router.Group(apiBasePath)
	{
		api.GET("/trades", h.listTrades)
		api.GET("/trades/:id", h.getTrade)
		api.GET("/trades/:id/legs", h.listLegs)
		api.GET("/stats", h.getStats)
		api.GET("/issues", h.listIssues)
	}
}

func (h *Handler) getHealth(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		writeError(c, http.StatusServiceUnavailable, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) listTrades(c *gin.Context) {
	tradeFilter, err := newTradeFilter(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	tradeRecords, err := h.store.ListTrades(c.Request.Context(), tradeFilter)
	if err != nil {
		h.writeInternalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": tradeRecords})
}

func (h *Handler) getTrade(c *gin.Context) {
	tradeRecord, err := h.store.GetTrade(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, tjctlstore.ErrTradeNotFound) {
			writeError(c, http.StatusNotFound, err)
			return
		}
		h.writeInternalError(c, err)
		return
	}
	c.JSON(http.StatusOK, tradeRecord)
}

func (h *Handler) listLegs(c *gin.Context) {
	legRecords, err := h.store.ListLegs(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, tjctlstore.ErrTradeNotFound) {
			writeError(c, http.StatusNotFound, err)
			return
		}
		h.writeInternalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"legs": legRecords})
}

func (h *Handler) getStats(c *gin.Context) {
	tradeFilter, err := newTradeFilter(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	tradeRecords, err := h.store.ListTrades(c.Request.Context(), tradeFilter)
	if err != nil {
		h.writeInternalError(c, err)
		return
	}
	trades := make([]*tjctlmatch.MatchedTrade, 0, len(tradeRecords))
	for _, tradeRecord := range tradeRecords {
		trades = append(trades, tradeRecord.MatchedTrade())
	}
	c.JSON(http.StatusOK, tjctlstats.Summarize(trades))
}

func (h *Handler) listIssues(c *gin.Context) {
	issueFilter := tjctlstore.IssueFilter{
		AccountID: c.Query("account"),
		Kind:      tjctlstore.IssueKind(c.Query("kind")),
	}
	switch issueFilter.Kind {
	case "", tjctlstore.IssueKindRejected, tjctlstore.IssueKindUnmatched, tjctlstore.IssueKindMatchError:
	default:
		writeError(c, http.StatusBadRequest, fmt.Errorf("unknown issue kind %q", issueFilter.Kind))
		return
	}
	issueRecords, err := h.store.ListIssues(c.Request.Context(), issueFilter)
	if err != nil {
		h.writeInternalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"issues": issueRecords})
}

// refreshMetrics sets the trade and issue gauges from the store, since
// imports run in other processes.
func (h *Handler) refreshMetrics(ctx context.Context) error {
	tradeRecords, err := h.store.ListTrades(ctx, tjctlstore.TradeFilter{})
	if err != nil {
		return err
	}
	issueRecords, err := h.store.ListIssues(ctx, tjctlstore.IssueFilter{})
	if err != nil {
		return err
	}
	type accountCounts struct {
		statusCounts map[tjctlmatch.Status]int
		kindCounts   map[tjctlstore.IssueKind]int
		realizedPnl  decimal.Decimal
	}
	accountIDToCounts := make(map[string]*accountCounts)
	getAccountCounts := func(accountID string) *accountCounts {
		counts, ok := accountIDToCounts[accountID]
		if !ok {
			counts = &accountCounts{
				statusCounts: map[tjctlmatch.Status]int{tjctlmatch.StatusOpen: 0, tjctlmatch.StatusClosed: 0},
				kindCounts: map[tjctlstore.IssueKind]int{
					tjctlstore.IssueKindRejected:   0,
					tjctlstore.IssueKindUnmatched:  0,
					tjctlstore.IssueKindMatchError: 0,
				},
				realizedPnl: decimal.Zero,
			}
			accountIDToCounts[accountID] = counts
		}
		return counts
	}
	for _, tradeRecord := range tradeRecords {
		counts := getAccountCounts(tradeRecord.AccountID)
		counts.statusCounts[tjctlmatch.Status(tradeRecord.Status)]++
		if tradeRecord.RealizedPnl.Valid {
			counts.realizedPnl = counts.realizedPnl.Add(tradeRecord.RealizedPnl.Decimal)
		}
	}
	for _, issueRecord := range issueRecords {
		getAccountCounts(issueRecord.AccountID).kindCounts[issueRecord.Kind]++
	}
	for accountID, counts := range accountIDToCounts {
		for status, count := range counts.statusCounts {
			h.metrics.SetTrades(accountID, string(status), count)
		}
		for kind, count := range counts.kindCounts {
			h.metrics.SetIssues(accountID, string(kind), count)
		}
		h.metrics.SetRealizedPnl(accountID, counts.realizedPnl)
	}
	return nil
}

func (h *Handler) writeInternalError(c *gin.Context, err error) {
	h.logger.Error("request failed", "path", c.FullPath(), "error", err)
	writeError(c, http.StatusInternalServerError, err)
}

func newTradeFilter(c *gin.Context) (tjctlstore.TradeFilter, error) {
	status := strings.ToUpper(c.Query("status"))
	switch tjctlmatch.Status(status) {
	case "", tjctlmatch.StatusOpen, tjctlmatch.StatusClosed:
	default:
		return tjctlstore.TradeFilter{}, fmt.Errorf("unknown status %q, must be one of: open, closed", c.Query("status"))
	}
	return tjctlstore.TradeFilter{
		AccountID: c.Query("account"),
		Ticker:    c.Query("ticker"),
		Status:    status,
	}, nil
}

func writeError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug(
			"request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
