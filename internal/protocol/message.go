package protocol

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"mcbridge-core/internal/core/errors"
)

// MessageSource 消息源信息
// 仅由服务端填充，本系统的出站消息从不携带 source
type MessageSource struct {
	Type   SourceType        `json:"type"`
	Server *SourceServerInfo `json:"server,omitempty"`
	Player *SourcePlayerInfo `json:"player,omitempty"`
}

// SourceServerInfo 消息源的服务器标识
type SourceServerInfo struct {
	Name     string `json:"name,omitempty"`
	Platform string `json:"platform,omitempty"`
}

// SourcePlayerInfo 消息源的玩家标识
type SourcePlayerInfo struct {
	UUID        string `json:"uuid,omitempty"`
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// PlayerName 返回源玩家名称，source 或 player 缺失时为空串
func (s *MessageSource) PlayerName() string {
	if s == nil || s.Player == nil {
		return ""
	}
	return s.Player.Name
}

// PlayerUUID 返回源玩家 UUID，缺失时为空串
func (s *MessageSource) PlayerUUID() string {
	if s == nil || s.Player == nil {
		return ""
	}
	return s.Player.UUID
}

// MessageTarget 消息目标信息
type MessageTarget struct {
	Type       TargetType `json:"type"`
	PlayerUUID string     `json:"playerUuid,omitempty"`
	PlayerName string     `json:"playerName,omitempty"`
}

// Payload 开放的键值载荷，具体形状由消息类型决定
type Payload map[string]any

// Message WebSocket 通道的消息信封
type Message struct {
	Type      MessageType    `json:"type"`
	ID        string         `json:"id"`
	Source    *MessageSource `json:"source,omitempty"`
	Target    *MessageTarget `json:"target,omitempty"`
	Payload   Payload        `json:"payload,omitempty"`
	Timestamp int64          `json:"timestamp"`
	ReplyTo   string         `json:"replyTo,omitempty"`
}

// NewMessage 创建带有新 id 和当前时间戳的消息
func NewMessage(t MessageType) *Message {
	return &Message{
		Type:      t,
		ID:        uuid.New().String(),
		Timestamp: time.Now().UnixMilli(),
	}
}

// Decode 解析 WebSocket 帧
//
// 只有 JSON 语法错误返回错误；未知或缺失的 type 解码为 ERROR 消息，
// 原始 payload 保留，供上层记录
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidData, "malformed message frame")
	}
	if msg.Type == "" {
		msg.Type = TypeError
	}
	return &msg, nil
}

// Encode 序列化消息
//
// type/id/timestamp 总是输出；target/payload/replyTo 仅在非空时输出；
// source 由 omitempty 规则自然省略（出站消息从不填充）
func Encode(msg *Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidData, "failed to encode message")
	}
	return data, nil
}
