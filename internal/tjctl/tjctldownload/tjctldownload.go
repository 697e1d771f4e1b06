// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package tjctldownload downloads IBKR Flex Query statements into the journal.
//
// The statement of each configured account is written to the account's
// executions directory, where the next import picks it up.
package tjctldownload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bufdev/tjctl/internal/pkg/flexquery"
	"github.com/bufdev/tjctl/internal/pkg/ibkrflexquery"
	"github.com/bufdev/tjctl/internal/standard/xtime"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlconfig"
	"github.com/bufdev/tjctl/internal/tjctl/tjctlpath"
)

// File is a statement written for an account.
type File struct {
	Account  string `json:"account"`
	FilePath string `json:"file_path"`
	// Trades is the number of Trade rows in the statement.
	Trades int `json:"trades"`
}

// DownloadOptions are options for Download.
type DownloadOptions struct {
	// FromDate and ToDate override the query's period. Both or neither must be set.
	FromDate xtime.Date
	ToDate   xtime.Date
}

// Downloader downloads Flex Query statements.
type Downloader struct {
	logger *slog.Logger
	config *tjctlconfig.Config
	client ibkrflexquery.Client
	token  string
}

// NewDownloader returns a new Downloader.
//
// The token is the Flex Web Service token.
func NewDownloader(
	logger *slog.Logger,
	config *tjctlconfig.Config,
	client ibkrflexquery.Client,
	token string,
) *Downloader {
	return &Downloader{
		logger: logger,
		config: config,
		client: client,
		token:  token,
	}
}

// Download runs the configured Flex Query and writes the statement of each
// configured account with an id.
//
// Statements for account ids that are not configured are skipped with a warning.
func (d *Downloader) Download(ctx context.Context, downloadOptions DownloadOptions) ([]*File, error) {
	if d.config.FlexQueryID == "" {
		return nil, errors.New("download.query_id is not set in tjctl.yaml")
	}
	data, err := d.client.Download(ctx, d.token, d.config.FlexQueryID, downloadOptions.FromDate, downloadOptions.ToDate)
	if err != nil {
		return nil, err
	}
	response, err := flexquery.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing flex query statement: %w", err)
	}
	configuredAccountIDs := make(map[string]struct{})
	var files []*File
	for _, account := range d.config.Accounts {
		if account.ID == "" {
			d.logger.Warn("account has no id, skipping download", "account", account.Alias)
			continue
		}
		configuredAccountIDs[account.ID] = struct{}{}
		forAccount := response.ForAccount(account.ID)
		if len(forAccount.FlexStatements) == 0 {
			d.logger.Warn("no flex statement for account", "account", account.Alias, "id", account.ID)
			continue
		}
		file, err := d.writeStatement(account.Alias, forAccount)
		if err != nil {
			return nil, err
		}
		d.logger.Info("flex statement written", "account", account.Alias, "path", file.FilePath, "trades", file.Trades)
		files = append(files, file)
	}
	for _, statement := range response.FlexStatements {
		if _, ok := configuredAccountIDs[statement.AccountID]; !ok {
			d.logger.Warn("flex statement for unconfigured account skipped", "id", statement.AccountID)
		}
	}
	return files, nil
}

// *** PRIVATE ***

func (d *Downloader) writeStatement(accountAlias string, response *flexquery.Response) (*File, error) {
	data, err := response.Marshal()
	if err != nil {
		return nil, err
	}
	dirPath := tjctlpath.ExecutionsAccountDirPath(d.config.DirPath, accountAlias)
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating executions directory: %w", err)
	}
	filePath := filepath.Join(dirPath, statementFileName(response))
	if err := writeFileAtomic(filePath, data); err != nil {
		return nil, err
	}
	var trades int
	for _, statement := range response.FlexStatements {
		trades += len(statement.Trades)
	}
	return &File{
		Account:  accountAlias,
		FilePath: filePath,
		Trades:   trades,
	}, nil
}

// statementFileName names the file by the statement period, so downloading
// the same period again replaces the earlier file.
func statementFileName(response *flexquery.Response) string {
	var fromDate, toDate string
	for _, statement := range response.FlexStatements {
		if fromDate == "" || statement.FromDate < fromDate {
			fromDate = statement.FromDate
		}
		if statement.ToDate > toDate {
			toDate = statement.ToDate
		}
	}
	return fmt.Sprintf("flex-%s-%s.xml", fromDate, toDate)
}

func writeFileAtomic(filePath string, data []byte) (retErr error) {
	file, err := os.CreateTemp(filepath.Dir(filePath), ".flex-*.xml")
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			retErr = errors.Join(retErr, os.Remove(file.Name()))
		}
	}()
	if _, err := file.Write(data); err != nil {
		return errors.Join(err, file.Close())
	}
	if err := file.Close(); err != nil {
		return err
	}
	return os.Rename(file.Name(), filePath)
}
