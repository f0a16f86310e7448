package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcbridge-core/internal/core/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  format: json
  file: bridge.log
servers:
  - server_id: survival
    enabled: true
    host: mc.example.com
    port: 8765
    token: tok-1
    enable_ai_chat: true
    text2image: true
    heartbeat_interval: 15s
    connect_timeout: 5s
    reconnect:
      initial_delay: 2s
      max_delay: 30s
      max_attempts: 10
    message:
      forward_chat: true
      forward_chat_format: "[{player}] {message}"
      forward_join_leave: true
      target_sessions: [group-1]
    command:
      enabled: true
      filter_mode: white
      commands: [list, say]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	require.Len(t, cfg.Servers, 1)

	s := cfg.Servers[0]
	assert.Equal(t, "survival", s.ServerID)
	assert.Equal(t, "mc.example.com", s.Host)
	assert.Equal(t, 15*time.Second, s.HeartbeatInterval)
	assert.Equal(t, 2*time.Second, s.Reconnect.InitialDelay)
	assert.Equal(t, 10, s.Reconnect.MaxAttempts)
	assert.Equal(t, "[{player}] {message}", s.Message.ForwardChatFormat)
	assert.Equal(t, []string{"group-1"}, s.Message.TargetSessions)
	assert.True(t, s.EnableAIChat)
	assert.True(t, s.Text2Image)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
servers:
  - server_id: s1
    token: tok-1
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)

	s := cfg.Servers[0]
	assert.Equal(t, "localhost", s.Host)
	assert.Equal(t, 8765, s.Port)
	assert.Equal(t, "<{player}> {message}", s.Message.ForwardChatFormat)
	assert.Equal(t, "white", s.Command.FilterMode)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeConfigError))
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "servers: [{{{")
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeConfigError))
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing server_id",
			yaml: "servers:\n  - token: tok-1\n",
		},
		{
			name: "missing token",
			yaml: "servers:\n  - server_id: s1\n",
		},
		{
			name: "duplicate server_id",
			yaml: "servers:\n  - {server_id: s1, token: a}\n  - {server_id: s1, token: b}\n",
		},
		{
			name: "invalid port",
			yaml: "servers:\n  - {server_id: s1, token: a, port: 70000}\n",
		},
		{
			name: "invalid filter_mode",
			yaml: "servers:\n  - {server_id: s1, token: a, command: {filter_mode: gray}}\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)
			_, err := Load(path)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.CodeConfigError))
		})
	}
}

func TestServer_Lookup(t *testing.T) {
	cfg := &Config{Servers: []ServerConfig{
		{ServerID: "s1"},
		{ServerID: "s2"},
	}}
	require.NotNil(t, cfg.Server("s2"))
	assert.Equal(t, "s2", cfg.Server("s2").ServerID)
	assert.Nil(t, cfg.Server("nope"))
}

func TestAllowCommand(t *testing.T) {
	white := ServerConfig{Command: CommandConfig{
		Enabled:    true,
		FilterMode: "white",
		Commands:   []string{"list", "say"},
	}}
	assert.True(t, white.AllowCommand("list"))
	assert.False(t, white.AllowCommand("op"))

	black := ServerConfig{Command: CommandConfig{
		Enabled:    true,
		FilterMode: "black",
		Commands:   []string{"stop"},
	}}
	assert.True(t, black.AllowCommand("list"))
	assert.False(t, black.AllowCommand("stop"))

	// 命令功能未启用时一律拒绝
	disabled := ServerConfig{Command: CommandConfig{FilterMode: "black"}}
	assert.False(t, disabled.AllowCommand("list"))
}
