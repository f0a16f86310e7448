package client

import (
	"math/rand"
	"time"

	"mcbridge-core/internal/protocol"
)

// 连接默认值
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultConnectTimeout    = 10 * time.Second
)

// ReconnectConfig 重连配置
type ReconnectConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"` // 初始延迟（1秒）
	MaxDelay     time.Duration `yaml:"max_delay"`     // 最大延迟（60秒）
	MaxAttempts  int           `yaml:"max_attempts"`  // 最大尝试次数（0=无限）
	Backoff      float64       `yaml:"-"`             // 退避因子（2.0=指数退避）
	JitterFactor float64       `yaml:"-"`             // 抖动因子（0.0-1.0）
}

// DefaultReconnectConfig 默认重连配置
var DefaultReconnectConfig = ReconnectConfig{
	InitialDelay: 1 * time.Second,
	MaxDelay:     60 * time.Second,
	MaxAttempts:  0,
	Backoff:      2.0,
	JitterFactor: 0.2, // ±20% 随机抖动，避免同时重连形成风暴
}

// normalized 补齐零值字段，保证退避参数有效
func (rc ReconnectConfig) normalized() ReconnectConfig {
	if rc.InitialDelay <= 0 {
		rc.InitialDelay = DefaultReconnectConfig.InitialDelay
	}
	if rc.MaxDelay <= 0 {
		rc.MaxDelay = DefaultReconnectConfig.MaxDelay
	}
	if rc.Backoff < 1.0 {
		rc.Backoff = DefaultReconnectConfig.Backoff
	}
	if rc.JitterFactor < 0 || rc.JitterFactor >= 1.0 {
		rc.JitterFactor = DefaultReconnectConfig.JitterFactor
	}
	return rc
}

// nextDelay 计算下一次退避延迟（指数退避，封顶）
func nextDelay(current time.Duration, cfg ReconnectConfig) time.Duration {
	next := time.Duration(float64(current) * cfg.Backoff)
	if next > cfg.MaxDelay {
		next = cfg.MaxDelay
	}
	return next
}

// addJitter 添加随机抖动
func addJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	// 抖动范围: delay * (1 - jitterFactor) 到 delay * (1 + jitterFactor)
	jitter := float64(delay) * jitterFactor * (2*rand.Float64() - 1)
	return time.Duration(float64(delay) + jitter)
}

// MessageHandler 入站消息回调
type MessageHandler func(serverID string, msg *protocol.Message)

// ConnectHandler 连接建立回调
type ConnectHandler func(serverID string, info *protocol.ServerInfo)

// DisconnectHandler 连接断开回调，reason 为人类可读的断开原因
type DisconnectHandler func(serverID string, reason string)

// Options 客户端配置
type Options struct {
	ServerID string
	Host     string
	Port     int
	Token    string

	HeartbeatInterval time.Duration
	ConnectTimeout    time.Duration
	Reconnect         ReconnectConfig

	// SendRate 出站消息限速（条/秒），0 表示不限速；心跳不受限
	SendRate float64

	OnMessage    MessageHandler
	OnConnect    ConnectHandler
	OnDisconnect DisconnectHandler
}

// normalized 补齐零值字段
func (o Options) normalized() Options {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	o.Reconnect = o.Reconnect.normalized()
	return o
}
