package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cro-platform/molcore/internal/config"
)

// --- Command creation and flag tests ---

func TestNewRootCommand_Creation(t *testing.T) {
	cmd := NewRootCommand()

	assert.Equal(t, "molcore", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)
	assert.Contains(t, cmd.Version, Version)
	assert.True(t, cmd.SilenceUsage)
	assert.True(t, cmd.SilenceErrors)
}

func TestNewRootCommand_PersistentFlags(t *testing.T) {
	cmd := NewRootCommand()
	pf := cmd.PersistentFlags()

	flags := []struct {
		name      string
		shorthand string
	}{
		{"config", "c"},
		{"log-level", ""},
		{"output", "o"},
		{"verbose", "v"},
		{"no-color", ""},
		{"timeout", ""},
		{"server", ""},
		{"api-key", ""},
	}

	for _, f := range flags {
		t.Run(f.name, func(t *testing.T) {
			flag := pf.Lookup(f.name)
			require.NotNil(t, flag, "flag %q should be registered", f.name)
			if f.shorthand != "" {
				assert.Equal(t, f.shorthand, flag.Shorthand)
			}
		})
	}
}

func TestNewRootCommand_SubcommandsMounted(t *testing.T) {
	cmd := NewRootCommand()

	expectedSubs := []string{"ingest", "jobs", "replay-events"}
	subNames := make([]string, 0, len(cmd.Commands()))
	for _, sub := range cmd.Commands() {
		subNames = append(subNames, sub.Name())
	}

	for _, expected := range expectedSubs {
		assert.Contains(t, subNames, expected, "subcommand %q should be mounted", expected)
	}
}

func TestNewRootCommand_DefaultFlagValues(t *testing.T) {
	cmd := NewRootCommand()
	pf := cmd.PersistentFlags()

	logLevel, err := pf.GetString("log-level")
	require.NoError(t, err)
	assert.Equal(t, "info", logLevel)

	output, err := pf.GetString("output")
	require.NoError(t, err)
	assert.Equal(t, "text", output)

	verbose, err := pf.GetBool("verbose")
	require.NoError(t, err)
	assert.False(t, verbose)

	noColor, err := pf.GetBool("no-color")
	require.NoError(t, err)
	assert.False(t, noColor)

	timeout, err := pf.GetDuration("timeout")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, timeout)
}

// --- CLIContext tests ---

func TestGetCLIContext_Success(t *testing.T) {
	cmd := &cobra.Command{}
	expected := &CLIContext{
		OutputFormat: "json",
		Verbose:      true,
		NoColor:      false,
	}

	ctx := context.WithValue(context.Background(), cliContextKey{}, expected)
	cmd.SetContext(ctx)

	got, err := GetCLIContext(cmd)
	require.NoError(t, err)
	assert.Equal(t, expected.OutputFormat, got.OutputFormat)
	assert.Equal(t, expected.Verbose, got.Verbose)
}

func TestGetCLIContext_NilContext(t *testing.T) {
	cmd := &cobra.Command{}
	// Do not set context at all; cobra defaults to nil.

	got, err := GetCLIContext(cmd)
	assert.Error(t, err)
	assert.Nil(t, got)
	assert.Contains(t, err.Error(), "context")
}

func TestGetCLIContext_MissingContext(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background()) // context set but no CLIContext value

	got, err := GetCLIContext(cmd)
	assert.Error(t, err)
	assert.Nil(t, got)
	assert.Contains(t, err.Error(), "CLIContext not found")
}

// --- PrintResult tests ---

type testData struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type testTableData struct {
	headers []string
	rows    [][]string
}

func (d *testTableData) TableHeaders() []string { return d.headers }
func (d *testTableData) TableRows() [][]string  { return d.rows }

type testStringer struct{ val string }

func (s testStringer) String() string { return s.val }

func newCmdWithCLIContext(format string) *cobra.Command {
	cmd := &cobra.Command{}
	cliCtx := &CLIContext{OutputFormat: format}
	ctx := context.WithValue(context.Background(), cliContextKey{}, cliCtx)
	cmd.SetContext(ctx)
	return cmd
}

func TestPrintResult_JSON(t *testing.T) {
	cmd := newCmdWithCLIContext("json")
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	data := testData{Name: "benzene", Count: 42}
	err := PrintResult(cmd, data)
	require.NoError(t, err)

	var decoded testData
	err = json.Unmarshal(buf.Bytes(), &decoded)
	require.NoError(t, err)
	assert.Equal(t, "benzene", decoded.Name)
	assert.Equal(t, 42, decoded.Count)

	// Verify indentation.
	assert.Contains(t, buf.String(), "  ")
}

func TestPrintResult_Text(t *testing.T) {
	cmd := newCmdWithCLIContext("text")
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	err := PrintResult(cmd, "hello world")
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", buf.String())
}

func TestPrintResult_Text_Stringer(t *testing.T) {
	cmd := newCmdWithCLIContext("text")
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	err := PrintResult(cmd, testStringer{val: "custom-string"})
	require.NoError(t, err)
	assert.Equal(t, "custom-string\n", buf.String())
}

func TestPrintResult_Text_Struct(t *testing.T) {
	cmd := newCmdWithCLIContext("text")
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	data := testData{Name: "test", Count: 1}
	err := PrintResult(cmd, data)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "test")
	assert.Contains(t, buf.String(), "1")
}

func TestPrintResult_Table(t *testing.T) {
	cmd := newCmdWithCLIContext("table")
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	data := &testTableData{
		headers: []string{"ID", "Name"},
		rows: [][]string{
			{"1", "Benzene"},
			{"2", "Naphthalene"},
		},
	}

	err := PrintResult(cmd, data)
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "Name")
	assert.Contains(t, output, "Benzene")
	assert.Contains(t, output, "Naphthalene")
	// Verify separator line exists.
	assert.Contains(t, output, "--")
}

func TestPrintResult_Table_FallbackToText(t *testing.T) {
	cmd := newCmdWithCLIContext("table")
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	// Non-tableProvider data falls back to text.
	err := PrintResult(cmd, "plain string")
	require.NoError(t, err)
	assert.Equal(t, "plain string\n", buf.String())
}

func TestPrintResult_FallbackToJSON(t *testing.T) {
	// Command without CLIContext should fall back to JSON.
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	data := testData{Name: "fallback", Count: 99}
	err := PrintResult(cmd, data)
	require.NoError(t, err)

	var decoded testData
	err = json.Unmarshal(buf.Bytes(), &decoded)
	require.NoError(t, err)
	assert.Equal(t, "fallback", decoded.Name)
	assert.Equal(t, 99, decoded.Count)
}

// --- PrintError / PrintSuccess tests ---

func TestPrintError_FormatsCorrectly(t *testing.T) {
	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetErr(&buf)

	PrintError(cmd, assert.AnError)
	assert.Contains(t, buf.String(), "Error:")
	assert.Contains(t, buf.String(), assert.AnError.Error())
}

func TestPrintError_NilError(t *testing.T) {
	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetErr(&buf)

	PrintError(cmd, nil)
	assert.Empty(t, buf.String())
}

func TestPrintSuccess_FormatsCorrectly(t *testing.T) {
	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	PrintSuccess(cmd, "operation completed")
	assert.Equal(t, "OK: operation completed\n", buf.String())
}

// --- FormatTable tests ---

func TestFormatTable_BasicTable(t *testing.T) {
	headers := []string{"ID", "Name", "Status"}
	rows := [][]string{
		{"1", "Alpha", "Active"},
		{"2", "Beta", "Inactive"},
	}

	result := FormatTable(headers, rows)

	lines := strings.Split(strings.TrimRight(result, "\n"), "\n")
	require.Len(t, lines, 4) // header + separator + 2 data rows

	// Header line contains all headers.
	assert.Contains(t, lines[0], "ID")
	assert.Contains(t, lines[0], "Name")
	assert.Contains(t, lines[0], "Status")

	// Separator line contains dashes.
	assert.True(t, strings.Contains(lines[1], "--"))

	// Data rows contain values.
	assert.Contains(t, lines[2], "Alpha")
	assert.Contains(t, lines[2], "Active")
	assert.Contains(t, lines[3], "Beta")
	assert.Contains(t, lines[3], "Inactive")
}

func TestFormatTable_EmptyHeaders(t *testing.T) {
	result := FormatTable([]string{}, [][]string{{"a", "b"}})
	assert.Empty(t, result)
}

func TestFormatTable_UnevenRows(t *testing.T) {
	headers := []string{"Col1", "Col2", "Col3"}
	rows := [][]string{
		{"a"},           // fewer columns than headers
		{"x", "y", "z"}, // exact match
	}

	result := FormatTable(headers, rows)

	// Should not panic and should produce output.
	assert.NotEmpty(t, result)
	lines := strings.Split(strings.TrimRight(result, "\n"), "\n")
	require.Len(t, lines, 4)

	// Short row should still render without panic.
	assert.Contains(t, lines[2], "a")
	// Full row renders all values.
	assert.Contains(t, lines[3], "x")
	assert.Contains(t, lines[3], "y")
	assert.Contains(t, lines[3], "z")
}

func TestFormatTable_WideColumns(t *testing.T) {
	headers := []string{"ID", "Description"}
	rows := [][]string{
		{"1", "A very long description that exceeds the header width significantly"},
	}

	result := FormatTable(headers, rows)
	lines := strings.Split(strings.TrimRight(result, "\n"), "\n")
	require.Len(t, lines, 3)

	// The separator for Description column should be as wide as the longest value.
	sepParts := strings.Split(strings.TrimSpace(lines[1]), "  ")
	require.Len(t, sepParts, 2)
	assert.True(t, len(sepParts[1]) > len("Description"),
		"separator width should match longest content, got %d", len(sepParts[1]))
}

func TestFormatTable_SingleColumn(t *testing.T) {
	headers := []string{"Name"}
	rows := [][]string{
		{"Alice"},
		{"Bob"},
	}

	result := FormatTable(headers, rows)
	assert.Contains(t, result, "Name")
	assert.Contains(t, result, "Alice")
	assert.Contains(t, result, "Bob")
}

// --- initConfig tests ---

func TestInitConfig_FallbackDefaults(t *testing.T) {
	// Use a non-existent path and ensure no default files exist in test env.
	opts := &RootOptions{ConfigPath: ""}

	// Save and restore working directory to avoid side effects.
	origDir, err := os.Getwd()
	require.NoError(t, err)
	tmpDir := t.TempDir()
	require.NoError(t, os.Chdir(tmpDir))
	defer func() { _ = os.Chdir(origDir) }()

	cfg, err := initConfig(opts)
	require.NoError(t, err)
	assert.NotNil(t, cfg, "should return a defaulted config when no file found")
}

// --- padRight tests ---

func TestPadRight_Exact(t *testing.T) {
	result := padRight("hello", 5)
	assert.Equal(t, "hello", result)
	assert.Len(t, result, 5)
}

func TestPadRight_Shorter(t *testing.T) {
	result := padRight("hi", 6)
	assert.Equal(t, "hi    ", result)
	assert.Len(t, result, 6)
}

func TestPadRight_Longer(t *testing.T) {
	result := padRight("longstring", 4)
	assert.Equal(t, "longstring", result, "should not truncate")
}

func TestPadRight_Empty(t *testing.T) {
	result := padRight("", 3)
	assert.Equal(t, "   ", result)
	assert.Len(t, result, 3)
}

func TestPadRight_ZeroWidth(t *testing.T) {
	result := padRight("abc", 0)
	assert.Equal(t, "abc", result)
}

// --- Execute smoke test ---

func TestExecute_HelpFlag(t *testing.T) {
	origArgs := os.Args
	defer func() { os.Args = origArgs }()

	os.Args = []string{"molcore", "--help"}

	rootCmd := NewRootCommand()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)

	err := rootCmd.Execute()
	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "molcore")
}

func TestExecute_VersionFlag(t *testing.T) {
	rootCmd := NewRootCommand()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)

	rootCmd.SetArgs([]string{"--version"})
	err := rootCmd.Execute()
	assert.NoError(t, err)
	assert.Contains(t, buf.String(), Version)
}

// --- initLogger tests ---

func TestInitLogger_DefaultLevel(t *testing.T) {
	cfg := &config.Config{}
	opts := &RootOptions{LogLevel: "info", Verbose: false}

	logger, err := initLogger(cfg, opts)
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestInitLogger_VerboseOverride(t *testing.T) {
	cfg := &config.Config{}
	opts := &RootOptions{LogLevel: "info", Verbose: true}

	logger, err := initLogger(cfg, opts)
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestInitLogger_ExplicitDebug(t *testing.T) {
	cfg := &config.Config{}
	opts := &RootOptions{LogLevel: "debug", Verbose: false}

	logger, err := initLogger(cfg, opts)
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

// --- initClient tests ---

func TestInitClient_ExplicitServerAddr(t *testing.T) {
	cfg := &config.Config{}
	opts := &RootOptions{
		ServerAddr: "http://custom:9999",
		Timeout:    10 * time.Second,
	}

	apiClient, err := initClient(cfg, opts)
	require.NoError(t, err)
	assert.NotNil(t, apiClient)
}

func TestInitClient_DefaultAddr(t *testing.T) {
	cfg := &config.Config{}
	opts := &RootOptions{
		ServerAddr: "",
		Timeout:    30 * time.Second,
	}

	apiClient, err := initClient(cfg, opts)
	require.NoError(t, err)
	assert.NotNil(t, apiClient)
}

func TestInitClient_EmptyAPIKeyDefaultsToAnonymous(t *testing.T) {
	cfg := &config.Config{}
	opts := &RootOptions{ServerAddr: "http://localhost:8080", APIKey: ""}

	apiClient, err := initClient(cfg, opts)
	require.NoError(t, err)
	assert.NotNil(t, apiClient)
}
