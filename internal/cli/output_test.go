package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]uint32{"nodes": 2}))
	var ok CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &ok))
	assert.Equal(t, "ok", ok.Status)
	assert.Equal(t, map[string]any{"nodes": float64(2)}, ok.Data)
	assert.Nil(t, ok.Error)

	buf.Reset()
	details := []ValidationError{{Code: "E104", Message: "maximum_priority: invalid value 1000", Line: 3}}
	require.NoError(t, formatter.Error("E104", "configuration invalid", details))
	var failed CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &failed))
	assert.Equal(t, "error", failed.Status)
	require.NotNil(t, failed.Error)
	assert.Equal(t, "E104", failed.Error.Code)
	assert.Equal(t, "configuration invalid", failed.Error.Message)
	assert.NotNil(t, failed.Error.Details)
	assert.NotContains(t, buf.String(), "run_id")
}

func TestOutputFormatter_Text(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		details any
		want    []string
		absent  []string
	}{
		{
			name:   "plain",
			want:   []string{"Error [E105]", "peer for node 2 missing"},
			absent: []string{"Details:"},
		},
		{
			name:    "verbose_with_details",
			verbose: true,
			details: map[string]string{"file": "two_nodes.cue"},
			want:    []string{"Error [E105]", "Details:"},
		},
		{
			name:    "details_hidden_without_verbose",
			details: map[string]string{"file": "two_nodes.cue"},
			want:    []string{"Error [E105]"},
			absent:  []string{"Details:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}

			require.NoError(t, formatter.Error("E105", "peer for node 2 missing", tt.details))
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
			for _, a := range tt.absent {
				assert.NotContains(t, buf.String(), a)
			}
		})
	}

	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}
	require.NoError(t, formatter.Success("Configuration valid"))
	assert.Contains(t, buf.String(), "Configuration valid")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	for _, verbose := range []bool{true, false} {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: verbose}

		formatter.VerboseLog("loading %s", "system.cue")
		if verbose {
			assert.Contains(t, buf.String(), "loading system.cue")
		} else {
			assert.Empty(t, buf.String())
		}
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad path")))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))

	wrapped := WrapExitError(ExitFailure, "journal", assert.AnError)
	assert.Equal(t, "journal: "+assert.AnError.Error(), wrapped.Error())
	assert.ErrorIs(t, wrapped, assert.AnError)
}

func TestMarkAndStatusColors(t *testing.T) {
	old := color.NoColor
	t.Cleanup(func() { color.NoColor = old })
	color.NoColor = true

	assert.Equal(t, "✓", mark(true))
	assert.Equal(t, "✗", mark(false))
	for _, s := range []string{"SUCCESSFUL", "BLOCKED", "TIMEOUT", "NOT_ALLOWED"} {
		assert.Equal(t, s, colorStatus(s))
	}

	color.NoColor = false
	assert.NotEqual(t, "✗", mark(false))
	assert.Contains(t, colorStatus("NOT_ALLOWED"), "NOT_ALLOWED")
}
