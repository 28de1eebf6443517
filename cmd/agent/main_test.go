package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadQuery(t *testing.T) {
	var out bytes.Buffer
	query, err := readQuery(strings.NewReader("  How many albums?  \n"), &out)

	require.NoError(t, err)
	assert.Equal(t, "How many albums?", query)
	assert.Contains(t, out.String(), "Enter a question")
}

func TestReadQuery_WithoutNewline(t *testing.T) {
	query, err := readQuery(strings.NewReader("count tracks"), &bytes.Buffer{})

	require.NoError(t, err)
	assert.Equal(t, "count tracks", query)
}

func TestReadQuery_Empty(t *testing.T) {
	_, err := readQuery(strings.NewReader("\n"), &bytes.Buffer{})

	assert.Error(t, err)
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()

	ask, _, err := root.Find([]string{"ask"})
	require.NoError(t, err)
	assert.Equal(t, "ask [query]", ask.Use)
	assert.NotNil(t, ask.Flags().Lookup("chart"))
	assert.NotNil(t, ask.Flags().Lookup("max-steps"))

	tools, _, err := root.Find([]string{"tools"})
	require.NoError(t, err)
	assert.Equal(t, "tools", tools.Use)
}

func TestLoadConfig_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.env")
	require.NoError(t, os.WriteFile(path, []byte("LLM_PROVIDER=ollama\nDB_DSN=chinook.db\nMAX_STEPS=4\n"), 0o600))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 4, cfg.Agent.MaxSteps)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
