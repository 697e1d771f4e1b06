// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package ibkrflexquery provides an API client for the IBKR Flex Query Web Service.
//
// The Flex Query Web Service is a two-step REST API:
//  1. SendRequest: Submits a query and returns a reference code.
//  2. GetStatement: Polls with the reference code until the XML statement is ready.
//
// Both endpoints require a Flex Web Service token and a "Java" User-Agent
// header. Transient errors (1001 server busy, 1019 statement generating) are
// retried with exponential backoff.
package ibkrflexquery

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bufdev/tjctl/internal/pkg/backoff"
	"github.com/bufdev/tjctl/internal/standard/xtime"
)

const (
	// DefaultBaseURL is the base URL of the Flex Web Service.
	DefaultBaseURL = "https://ndcdyn.interactivebrokers.com/AccountManagement/FlexWebService"

	userAgent  = "Java"
	apiVersion = "3"
)

// DefaultPolicy is the default retry policy for each API call.
var DefaultPolicy = backoff.Policy{
	MaxAttempts:  10,
	InitialDelay: 2 * time.Second,
	MaxDelay:     30 * time.Second,
}

// Client downloads Flex Query statements from IBKR.
type Client interface {
	// Download runs the query and returns the statement XML.
	//
	// The token is the Flex Web Service token generated in the IBKR portal.
	// fromDate and toDate optionally override the query's configured period.
	// If one is set, both must be set. IBKR limits each request to 365 days.
	Download(ctx context.Context, token string, queryID string, fromDate xtime.Date, toDate xtime.Date) ([]byte, error)
}

// ClientOption is an option for a new Client.
type ClientOption func(*client)

// ClientWithBaseURL sets the base URL of the Flex Web Service.
func ClientWithBaseURL(baseURL string) ClientOption {
	return func(client *client) {
		client.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// ClientWithHTTPClient sets the HTTP client.
//
// The default is http.DefaultClient.
func ClientWithHTTPClient(httpClient *http.Client) ClientOption {
	return func(client *client) {
		client.httpClient = httpClient
	}
}

// ClientWithPolicy sets the retry policy of each API call.
//
// The default is DefaultPolicy.
func ClientWithPolicy(policy backoff.Policy) ClientOption {
	return func(client *client) {
		client.policy = policy
	}
}

// NewClient returns a new Client.
func NewClient(logger *slog.Logger, options ...ClientOption) Client {
	client := &client{
		logger:     logger,
		httpClient: http.DefaultClient,
		baseURL:    DefaultBaseURL,
		policy:     DefaultPolicy,
	}
	for _, option := range options {
		option(client)
	}
	return client
}

// *** PRIVATE ***

// retryableErrorCodes are IBKR error codes that indicate a transient failure.
var retryableErrorCodes = map[string]bool{
	"1001": true, // Statement could not be generated at this time.
	"1018": true, // Too many requests have been made from this token.
	"1019": true, // Statement generation in progress.
}

type client struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	policy     backoff.Policy
}

// statusResponse is the response of SendRequest, and of GetStatement while
// the statement is not ready.
type statusResponse struct {
	XMLName       xml.Name `xml:"FlexStatementResponse"`
	Status        string   `xml:"Status"`
	ReferenceCode string   `xml:"ReferenceCode"`
	ErrorCode     string   `xml:"ErrorCode"`
	ErrorMessage  string   `xml:"ErrorMessage"`
}

func (s *statusResponse) err() (bool, error) {
	return retryableErrorCodes[s.ErrorCode], fmt.Errorf("%s (code: %s)", s.ErrorMessage, s.ErrorCode)
}

func (c *client) Download(ctx context.Context, token string, queryID string, fromDate xtime.Date, toDate xtime.Date) ([]byte, error) {
	if token == "" {
		return nil, errors.New("token is required")
	}
	if queryID == "" {
		return nil, errors.New("query ID is required")
	}
	if fromDate.IsZero() != toDate.IsZero() {
		return nil, errors.New("fromDate and toDate must both be set or both be zero")
	}
	referenceCode, err := c.sendRequest(ctx, token, queryID, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("sending flex query request: %w", err)
	}
	c.logger.Info("flex query request sent", "reference_code", referenceCode)
	data, err := c.getStatement(ctx, token, referenceCode)
	if err != nil {
		return nil, fmt.Errorf("getting flex query statement: %w", err)
	}
	return data, nil
}

func (c *client) sendRequest(ctx context.Context, token string, queryID string, fromDate xtime.Date, toDate xtime.Date) (string, error) {
	values := url.Values{}
	values.Set("t", token)
	values.Set("q", queryID)
	if !fromDate.IsZero() {
		values.Set("fd", formatDate(fromDate))
		values.Set("td", formatDate(toDate))
	}
	values.Set("v", apiVersion)
	return backoff.Retry(
		ctx,
		c.policy,
		func(ctx context.Context, attempt int) (string, bool, error) {
			if attempt > 0 {
				c.logger.Info("retrying flex query request", "attempt", attempt+1)
			}
			body, err := c.get(ctx, "/SendRequest", values)
			if err != nil {
				return "", false, err
			}
			var response statusResponse
			if err := xml.Unmarshal(body, &response); err != nil {
				return "", false, fmt.Errorf("parsing send response: %w", err)
			}
			if response.Status != "Success" {
				retryable, err := response.err()
				if retryable {
					c.logger.Warn("transient IBKR error, will retry", "code", response.ErrorCode, "message", response.ErrorMessage)
				}
				return "", retryable, err
			}
			return response.ReferenceCode, false, nil
		},
	)
}

func (c *client) getStatement(ctx context.Context, token string, referenceCode string) ([]byte, error) {
	values := url.Values{}
	values.Set("t", token)
	values.Set("q", referenceCode)
	values.Set("v", apiVersion)
	return backoff.Retry(
		ctx,
		c.policy,
		func(ctx context.Context, attempt int) ([]byte, bool, error) {
			if attempt > 0 {
				c.logger.Info("waiting for flex query statement", "attempt", attempt+1)
			}
			body, err := c.get(ctx, "/GetStatement", values)
			if err != nil {
				return nil, false, err
			}
			if !strings.HasPrefix(strings.TrimSpace(string(body)), "<FlexStatementResponse") {
				return body, false, nil
			}
			var response statusResponse
			if err := xml.Unmarshal(body, &response); err != nil {
				return nil, false, fmt.Errorf("parsing statement response: %w", err)
			}
			retryable, err := response.err()
			if retryable {
				c.logger.Warn("transient IBKR error, will retry", "code", response.ErrorCode, "message", response.ErrorMessage)
			}
			return nil, retryable, err
		},
	)
}

func (c *client) get(ctx context.Context, path string, values url.Values) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+values.Encode(), nil)
	if err != nil {
		return nil, err
	}
	request.Header.Set("User-Agent", userAgent)
	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(response.Body)
	if closeErr := response.Body.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, err
	}
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", response.StatusCode, string(body))
	}
	return body, nil
}

func formatDate(date xtime.Date) string {
	return fmt.Sprintf("%04d%02d%02d", date.Year, date.Month, date.Day)
}
