package setup

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterCreatesConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "client", "config.json")
	binary := filepath.Join(dir, "mcp-server-lite")
	require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\n"), 0o755))

	written, err := Register(Options{ConfigPath: configPath, BinaryPath: binary, DataDir: filepath.Join(dir, "data")})
	require.NoError(t, err)
	assert.Equal(t, configPath, written)

	cfg, err := LoadClientConfig(configPath)
	require.NoError(t, err)
	entry, ok := cfg.MCPServers[ServerKey]
	require.True(t, ok)
	assert.Equal(t, binary, entry.Command)
	assert.Equal(t, filepath.Join(dir, "data"), entry.Env["CBC_DATA_DIR"])
}

func TestRegisterPreservesOtherEntries(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	existing := `{"theme":"dark","mcpServers":{"other":{"command":"/bin/other"}}}`
	require.NoError(t, os.WriteFile(configPath, []byte(existing), 0o644))

	_, err := Register(Options{ConfigPath: configPath, BinaryPath: "/opt/cbc/mcp-server-lite"})
	require.NoError(t, err)

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.JSONEq(t, `"dark"`, string(raw["theme"]))

	cfg, err := LoadClientConfig(configPath)
	require.NoError(t, err)
	assert.Len(t, cfg.MCPServers, 2)
	assert.Equal(t, "/bin/other", cfg.MCPServers["other"].Command)
	assert.Nil(t, cfg.MCPServers[ServerKey].Env)
}

func TestLoadClientConfigErrors(t *testing.T) {
	cfg, err := LoadClientConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Empty(t, cfg.MCPServers)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	_, err = LoadClientConfig(bad)
	assert.Error(t, err)
}

func TestGetStatus(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")

	status, err := GetStatus(configPath)
	require.NoError(t, err)
	assert.False(t, status.Registered)
	assert.NotEmpty(t, status.Issues)

	dataDir := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	binary := filepath.Join(dir, "mcp-server-lite")
	require.NoError(t, os.WriteFile(binary, nil, 0o755))

	_, err = Register(Options{ConfigPath: configPath, BinaryPath: binary, DataDir: dataDir})
	require.NoError(t, err)

	status, err = GetStatus(configPath)
	require.NoError(t, err)
	assert.True(t, status.Registered)
	assert.Equal(t, binary, status.ServerPath)
	assert.Equal(t, dataDir, status.DataDir)
	assert.Empty(t, status.Issues)
}
