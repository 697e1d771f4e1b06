// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package tjctlpath derives file paths from the tjctl journal directory.
// All layout is defined here so callers don't duplicate path construction logic.
//
// The journal directory (--dir flag) contains:
//
//	tjctl.yaml                  Config file
//	tjctl.db                    Default SQLite database
//	executions/<alias>/         User-managed broker files (Activity Statement CSVs, Flex Query XMLs)
//	bars/<TICKER>.csv           Optional benchmark daily closes for regime labels
package tjctlpath

import (
	"path/filepath"
	"strings"
)

// ConfigFileName is the well-known config file name within the journal directory.
const ConfigFileName = "tjctl.yaml"

// DatabaseFileName is the default SQLite database file name within the journal directory.
const DatabaseFileName = "tjctl.db"

// ConfigFilePath returns the path to the config file within the journal directory.
func ConfigFilePath(dirPath string) string {
	return filepath.Join(dirPath, ConfigFileName)
}

// DatabaseFilePath returns the path to the default SQLite database within the journal directory.
func DatabaseFilePath(dirPath string) string {
	return filepath.Join(dirPath, DatabaseFileName)
}

// ExecutionsDirPath returns the directory containing per-account broker files.
func ExecutionsDirPath(dirPath string) string {
	return filepath.Join(dirPath, "executions")
}

// ExecutionsAccountDirPath returns the directory for a specific account's broker files.
func ExecutionsAccountDirPath(dirPath string, alias string) string {
	return filepath.Join(dirPath, "executions", alias)
}

// BarsDirPath returns the directory containing benchmark daily bars.
func BarsDirPath(dirPath string) string {
	return filepath.Join(dirPath, "bars")
}

// BarsFilePath returns the daily bars file for a ticker.
func BarsFilePath(dirPath string, ticker string) string {
	return filepath.Join(dirPath, "bars", strings.ToUpper(ticker)+".csv")
}

// Resolve returns path joined to dirPath if path is relative, and path otherwise.
func Resolve(dirPath string, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dirPath, path)
}
