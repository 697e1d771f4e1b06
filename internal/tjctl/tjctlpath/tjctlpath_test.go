// Copyright 2026 Peter Edge
//
// All rights reserved.

package tjctlpath

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPaths(t *testing.T) {
	t.Parallel()
	require.Equal(t, filepath.Join("journal", "tjctl.yaml"), ConfigFilePath("journal"))
	require.Equal(t, filepath.Join("journal", "tjctl.db"), DatabaseFilePath("journal"))
	require.Equal(t, filepath.Join("journal", "executions"), ExecutionsDirPath("journal"))
	require.Equal(t, filepath.Join("journal", "executions", "ira"), ExecutionsAccountDirPath("journal", "ira"))
	require.Equal(t, filepath.Join("journal", "bars"), BarsDirPath("journal"))
	require.Equal(t, filepath.Join("journal", "bars", "SPY.csv"), BarsFilePath("journal", "spy"))
}

func TestResolve(t *testing.T) {
	t.Parallel()
	require.Equal(t, filepath.Join("journal", "data", "x.db"), Resolve("journal", filepath.Join("data", "x.db")))
	require.Equal(t, "/var/lib/x.db", Resolve("journal", "/var/lib/x.db"))
	require.Equal(t, "", Resolve("journal", ""))
}
