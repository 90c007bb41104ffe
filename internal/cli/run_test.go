package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/synccore/internal/store"
	"github.com/roach88/synccore/internal/testutil"
)

func executeRun(t *testing.T, opts *RunOptions, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := newRunCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestRunNonExistentConfig(t *testing.T) {
	opts := &RunOptions{RootOptions: &RootOptions{Format: "text"}}
	_, err := executeRun(t, opts, "--config", filepath.Join(t.TempDir(), "missing.cue"), "--for", "10ms")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestRunInvalidConfig(t *testing.T) {
	path := writeConfig(t, "system.yaml", "maximum_priority: 1000\n")
	opts := &RunOptions{RootOptions: &RootOptions{Format: "text"}}

	_, err := executeRun(t, opts, "--config", path, "--for", "10ms")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestRunNodeOutOfRange(t *testing.T) {
	opts := &RunOptions{RootOptions: &RootOptions{Format: "text"}}
	_, err := executeRun(t, opts, "--node", "3", "--for", "10ms")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "node 3 is not in 1..1")
}

func TestRunMemoryTransportNeedsCluster(t *testing.T) {
	path := writeConfig(t, "system.yaml", "nodes: 2\ntransport: memory\n")
	opts := &RunOptions{RootOptions: &RootOptions{Format: "text"}}

	_, err := executeRun(t, opts, "--config", path, "--node", "1", "--for", "10ms")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "needs a cluster")
}

func TestRunDefaultsWithTimeout(t *testing.T) {
	opts := &RunOptions{RootOptions: &RootOptions{Format: "text"}}

	out, err := executeRun(t, opts, "--for", "50ms")
	require.NoError(t, err)
	assert.Contains(t, out, "Kernel started: 1 node(s), 100 ticks/s.")
	assert.NotContains(t, out, "Press Ctrl-C")
	assert.Contains(t, out, "node 1:")
	assert.Contains(t, out, "0 proxies")
}

func TestRunClusterWithJournal(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "journal.db")
	path := writeConfig(t, "system.yaml", "nodes: 3\n")
	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "json"},
		IDs:         testutil.NewFixedRunIDGenerator("run-cli"),
	}

	out, err := executeRun(t, opts, "--config", path, "--db", dbPath, "--for", "50ms")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		RunID  string     `json:"run_id"`
		Data   RunSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-cli", resp.RunID)
	require.Len(t, resp.Data.Nodes, 3)
	for i, n := range resp.Data.Nodes {
		assert.Equal(t, uint32(i+1), n.Node)
		assert.Zero(t, n.Tasks)
	}

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	runs, err := st.ReadRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-cli", runs[0].ID)
	assert.Equal(t, uint32(0), runs[0].Node)
	assert.Contains(t, runs[0].Config, `"nodes":3`)
}

func TestRunHelpText(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())
	help := buf.String()
	assert.Contains(t, help, "--config")
	assert.Contains(t, help, "--db")
	assert.Contains(t, help, "--for")
	assert.Contains(t, help, "--node")
	assert.Contains(t, help, "tcp transport")
}
