// Package protocol 定义与 Minecraft 服务器通信的消息协议
//
// WebSocket 通道使用 JSON 消息信封（Message），REST 通道使用统一响应
// 信封（APIResponse）。所有字段名与服务端插件的 camelCase 命名保持一致，
// 属于互操作契约，不得改动。
package protocol

import (
	"encoding/json"
)

// MessageType WebSocket 消息类型
type MessageType string

const (
	TypeHeartbeat       MessageType = "HEARTBEAT"
	TypeHeartbeatAck    MessageType = "HEARTBEAT_ACK"
	TypeConnectionAck   MessageType = "CONNECTION_ACK"
	TypeChatRequest     MessageType = "CHAT_REQUEST"
	TypeChatResponse    MessageType = "CHAT_RESPONSE"
	TypeMessageForward  MessageType = "MESSAGE_FORWARD"
	TypeMessageIncoming MessageType = "MESSAGE_INCOMING"
	TypePlayerJoin      MessageType = "PLAYER_JOIN"
	TypePlayerQuit      MessageType = "PLAYER_QUIT"
	TypeCommandRequest  MessageType = "COMMAND_REQUEST"
	TypeCommandResponse MessageType = "COMMAND_RESPONSE"
	TypeStatusUpdate    MessageType = "STATUS_UPDATE"
	TypeError           MessageType = "ERROR"
	TypeDisconnect      MessageType = "DISCONNECT"
)

var knownMessageTypes = map[MessageType]bool{
	TypeHeartbeat:       true,
	TypeHeartbeatAck:    true,
	TypeConnectionAck:   true,
	TypeChatRequest:     true,
	TypeChatResponse:    true,
	TypeMessageForward:  true,
	TypeMessageIncoming: true,
	TypePlayerJoin:      true,
	TypePlayerQuit:      true,
	TypeCommandRequest:  true,
	TypeCommandResponse: true,
	TypeStatusUpdate:    true,
	TypeError:           true,
	TypeDisconnect:      true,
}

// ParseMessageType 解析消息类型，无效值回落到 ERROR
// 解码器绝不因未知枚举值失败
func ParseMessageType(s string) MessageType {
	t := MessageType(s)
	if knownMessageTypes[t] {
		return t
	}
	return TypeError
}

// UnmarshalJSON 实现未知类型到 ERROR 的回落
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*t = TypeError
		return nil
	}
	*t = ParseMessageType(s)
	return nil
}

// SourceType 消息源类型
type SourceType string

const (
	SourcePlayer SourceType = "PLAYER"
	SourceServer SourceType = "SERVER"
	SourceSystem SourceType = "SYSTEM"
)

// ParseSourceType 解析消息源类型，无效值回落到 PLAYER
func ParseSourceType(s string) SourceType {
	switch SourceType(s) {
	case SourcePlayer, SourceServer, SourceSystem:
		return SourceType(s)
	default:
		return SourcePlayer
	}
}

func (t *SourceType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*t = SourcePlayer
		return nil
	}
	*t = ParseSourceType(s)
	return nil
}

// TargetType 消息目标类型
type TargetType string

const (
	TargetPlayer    TargetType = "PLAYER"
	TargetBroadcast TargetType = "BROADCAST"
	TargetServer    TargetType = "SERVER"
)

// ParseTargetType 解析消息目标类型，无效值回落到 BROADCAST
func ParseTargetType(s string) TargetType {
	switch TargetType(s) {
	case TargetPlayer, TargetBroadcast, TargetServer:
		return TargetType(s)
	default:
		return TargetBroadcast
	}
}

func (t *TargetType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*t = TargetBroadcast
		return nil
	}
	*t = ParseTargetType(s)
	return nil
}

// ChatMode 聊天模式（用于 AI 聊天）
type ChatMode string

const (
	ChatModeGroup   ChatMode = "GROUP"
	ChatModePrivate ChatMode = "PRIVATE"
)

// CommandExecutor 命令执行者标识
const ExecutorConsole = "CONSOLE"
