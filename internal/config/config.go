// Package config 定义桥接器的 YAML 配置与加载逻辑
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"mcbridge-core/internal/core/errors"
	"mcbridge-core/internal/core/log"
)

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file,omitempty"`
}

// ReconnectConfig 重连策略配置
type ReconnectConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

// MessageConfig 消息转发配置
type MessageConfig struct {
	ForwardChat       bool     `yaml:"forward_chat"`
	ForwardChatFormat string   `yaml:"forward_chat_format"`
	ForwardJoinLeave  bool     `yaml:"forward_join_leave"`
	TargetSessions    []string `yaml:"target_sessions"`
}

// CommandConfig 远程命令配置
// FilterMode 取 white / black，white 仅放行列表内命令，black 拒绝列表内命令
type CommandConfig struct {
	Enabled    bool     `yaml:"enabled"`
	FilterMode string   `yaml:"filter_mode"`
	Commands   []string `yaml:"commands"`
}

// ServerConfig 单个 Minecraft 服务器的接入配置
type ServerConfig struct {
	ServerID          string          `yaml:"server_id"`
	Enabled           bool            `yaml:"enabled"`
	Host              string          `yaml:"host"`
	Port              int             `yaml:"port"`
	Token             string          `yaml:"token"`
	EnableAIChat      bool            `yaml:"enable_ai_chat"`
	Text2Image        bool            `yaml:"text2image"`
	HeartbeatInterval time.Duration   `yaml:"heartbeat_interval"`
	ConnectTimeout    time.Duration   `yaml:"connect_timeout"`
	Reconnect         ReconnectConfig `yaml:"reconnect"`
	Message           MessageConfig   `yaml:"message"`
	Command           CommandConfig   `yaml:"command"`
}

// Config 桥接器配置根
type Config struct {
	Log     LogConfig      `yaml:"log"`
	Servers []ServerConfig `yaml:"servers"`
}

// Default 返回带默认值的配置
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load 从 YAML 文件加载配置并应用默认值
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeConfigError, "failed to read config file: %s", path)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, errors.CodeConfigError, "failed to parse config file")
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Debugf("Loaded config from %s (%d servers)", path, len(cfg.Servers))
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	for i := range c.Servers {
		s := &c.Servers[i]
		if s.Host == "" {
			s.Host = "localhost"
		}
		if s.Port == 0 {
			s.Port = 8765
		}
		if s.Message.ForwardChatFormat == "" {
			s.Message.ForwardChatFormat = "<{player}> {message}"
		}
		if s.Command.FilterMode == "" {
			s.Command.FilterMode = "white"
		}
	}
}

// Validate 校验配置的完整性
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Servers))
	for i := range c.Servers {
		s := &c.Servers[i]
		if s.ServerID == "" {
			return errors.Newf(errors.CodeConfigError, "servers[%d]: server_id is required", i)
		}
		if seen[s.ServerID] {
			return errors.Newf(errors.CodeConfigError, "duplicate server_id: %s", s.ServerID)
		}
		seen[s.ServerID] = true

		if s.Token == "" {
			return errors.Newf(errors.CodeConfigError, "server %s: token is required", s.ServerID)
		}
		if s.Port < 1 || s.Port > 65535 {
			return errors.Newf(errors.CodeConfigError, "server %s: invalid port %d", s.ServerID, s.Port)
		}
		if mode := s.Command.FilterMode; mode != "white" && mode != "black" {
			return errors.Newf(errors.CodeConfigError,
				"server %s: filter_mode must be white or black, got %q", s.ServerID, mode)
		}
	}
	return nil
}

// Server 按 id 查找服务器配置，未找到时返回 nil
func (c *Config) Server(serverID string) *ServerConfig {
	for i := range c.Servers {
		if c.Servers[i].ServerID == serverID {
			return &c.Servers[i]
		}
	}
	return nil
}

// AllowCommand 按过滤模式判断命令是否允许执行
func (s *ServerConfig) AllowCommand(command string) bool {
	if !s.Command.Enabled {
		return false
	}
	listed := false
	for _, c := range s.Command.Commands {
		if c == command {
			listed = true
			break
		}
	}
	if s.Command.FilterMode == "black" {
		return !listed
	}
	return listed
}
