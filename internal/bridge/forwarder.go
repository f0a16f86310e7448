// Package bridge 负责把服务器事件消息格式化后转发到外部会话
package bridge

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"mcbridge-core/internal/core/log"
	"mcbridge-core/internal/protocol"
)

// DefaultChatFormat 聊天转发的默认格式模板
const DefaultChatFormat = "<{player}> {message}"

// Sink 由宿主平台实现，负责把文本投递到目标会话
type Sink interface {
	Deliver(session, text string) error
}

// SinkFunc 函数适配器
type SinkFunc func(session, text string) error

func (f SinkFunc) Deliver(session, text string) error {
	return f(session, text)
}

// ForwardingConfig 单个服务器的转发规则
type ForwardingConfig struct {
	ForwardChat      bool     // 转发玩家聊天
	ChatFormat       string   // 聊天格式模板，支持 {player} 与 {message} 占位符
	ForwardJoinLeave bool     // 转发进出服事件
	TargetSessions   []string // 转发目标会话
}

func (c ForwardingConfig) normalized() ForwardingConfig {
	if c.ChatFormat == "" {
		c.ChatFormat = DefaultChatFormat
	}
	return c
}

// Forwarder 按服务器规则把事件消息扇出到目标会话
type Forwarder struct {
	sink Sink

	mu      sync.RWMutex
	configs map[string]ForwardingConfig
}

// NewForwarder 创建转发器
func NewForwarder(sink Sink) *Forwarder {
	return &Forwarder{
		sink:    sink,
		configs: make(map[string]ForwardingConfig),
	}
}

// Register 注册服务器的转发规则，重复注册覆盖旧规则
func (f *Forwarder) Register(serverID string, cfg ForwardingConfig) {
	f.mu.Lock()
	f.configs[serverID] = cfg.normalized()
	f.mu.Unlock()
}

// Unregister 移除服务器的转发规则
func (f *Forwarder) Unregister(serverID string) {
	f.mu.Lock()
	delete(f.configs, serverID)
	f.mu.Unlock()
}

// HandleMessage 处理来自服务器的消息，完成了转发时返回 true
//
// 仅处理 MESSAGE_FORWARD / PLAYER_JOIN / PLAYER_QUIT，其余类型直接返回 false
func (f *Forwarder) HandleMessage(serverID string, msg *protocol.Message) bool {
	f.mu.RLock()
	cfg, ok := f.configs[serverID]
	f.mu.RUnlock()
	if !ok {
		return false
	}

	switch msg.Type {
	case protocol.TypeMessageForward:
		if !cfg.ForwardChat {
			return false
		}
	case protocol.TypePlayerJoin, protocol.TypePlayerQuit:
		if !cfg.ForwardJoinLeave {
			return false
		}
	default:
		return false
	}

	if len(cfg.TargetSessions) == 0 {
		log.Debugf("No target sessions configured for server %s, skipping forward", serverID)
		return false
	}

	text := f.format(msg, cfg)
	if text == "" {
		return false
	}

	delivered := false
	for _, session := range cfg.TargetSessions {
		if err := f.sink.Deliver(session, text); err != nil {
			log.Warnf("Failed to deliver message to session %s: %v", session, err)
			continue
		}
		delivered = true
	}
	return delivered
}

// format 按消息类型生成转发文本
func (f *Forwarder) format(msg *protocol.Message, cfg ForwardingConfig) string {
	switch msg.Type {
	case protocol.TypeMessageForward:
		player := msg.Source.PlayerName()
		if player == "" {
			player = "未知"
		}
		content := StripColorCodes(msg.ForwardContent())
		text := strings.ReplaceAll(cfg.ChatFormat, "{player}", player)
		return strings.ReplaceAll(text, "{message}", content)

	case protocol.TypePlayerJoin:
		name, _ := msg.JoinedPlayer()
		if name == "" {
			name = "未知"
		}
		return "🟢 " + name + " 加入了服务器 " + onlineSuffix(msg)

	case protocol.TypePlayerQuit:
		name, _ := msg.JoinedPlayer()
		if name == "" {
			name = "未知"
		}
		return "🔴 " + name + " " + quitText(msg.QuitReason()) + "了服务器 " + onlineSuffix(msg)
	}
	return ""
}

func onlineSuffix(msg *protocol.Message) string {
	return "(" + strconv.Itoa(msg.OnlineCount()) + "/" + strconv.Itoa(msg.MaxPlayers()) + ")"
}

func quitText(reason string) string {
	switch reason {
	case "KICK":
		return "被踢出"
	case "TIMEOUT":
		return "超时断开"
	default:
		return "离开"
	}
}

var colorCodeRe = regexp.MustCompile(`§[0-9a-fk-or]`)

// StripColorCodes 移除 Minecraft 颜色代码（§ 后跟一个样式字符）
func StripColorCodes(text string) string {
	return colorCodeRe.ReplaceAllString(text, "")
}
