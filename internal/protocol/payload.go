package protocol

import (
	"encoding/json"

	"mcbridge-core/internal/core/errors"
)

// 已知消息类型的载荷访问器
//
// payload 是开放的 map，这里按消息类型提供类型化视图；
// 字段缺失时返回零值，调用方无需判空

func (p Payload) getString(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

func (p Payload) getBool(key string) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return false
}

func (p Payload) getInt(key string) int {
	// JSON 数字解码为 float64
	if v, ok := p[key].(float64); ok {
		return int(v)
	}
	return 0
}

func (p Payload) getMap(key string) map[string]any {
	if v, ok := p[key].(map[string]any); ok {
		return v
	}
	return nil
}

// ForwardContent 返回 MESSAGE_FORWARD 的聊天内容
func (m *Message) ForwardContent() string {
	return m.Payload.getString("content")
}

// ChatContent 返回 CHAT_REQUEST 的内容
func (m *Message) ChatContent() string {
	return m.Payload.getString("content")
}

// ChatModeOf 返回 CHAT_REQUEST 的聊天模式，缺省为 GROUP
func (m *Message) ChatModeOf() ChatMode {
	if mode := m.Payload.getString("chatMode"); mode == string(ChatModePrivate) {
		return ChatModePrivate
	}
	return ChatModeGroup
}

// JoinedPlayer 返回 PLAYER_JOIN / PLAYER_QUIT 携带的玩家信息
func (m *Message) JoinedPlayer() (name, uuid string) {
	player := m.Payload.getMap("player")
	if player == nil {
		return "", ""
	}
	if v, ok := player["name"].(string); ok {
		name = v
	}
	if v, ok := player["uuid"].(string); ok {
		uuid = v
	}
	return name, uuid
}

// OnlineCount 返回 PLAYER_JOIN / PLAYER_QUIT 携带的在线人数
func (m *Message) OnlineCount() int {
	return m.Payload.getInt("onlineCount")
}

// MaxPlayers 返回 PLAYER_JOIN / PLAYER_QUIT 携带的最大玩家数
func (m *Message) MaxPlayers() int {
	return m.Payload.getInt("maxPlayers")
}

// QuitReason 返回 PLAYER_QUIT 的离开原因（QUIT / KICK / TIMEOUT）
func (m *Message) QuitReason() string {
	return m.Payload.getString("reason")
}

// DisconnectReason 返回 DISCONNECT 的原因和说明
func (m *Message) DisconnectReason() (reason, detail string) {
	return m.Payload.getString("reason"), m.Payload.getString("message")
}

// ErrorInfo 返回 ERROR 的错误码和消息
func (m *Message) ErrorInfo() (code int, message string) {
	return m.Payload.getInt("code"), m.Payload.getString("message")
}

// CommandOutput 返回 COMMAND_RESPONSE 的执行结果
func (m *Message) CommandOutput() (ok bool, output string) {
	return m.Payload.getBool("success"), m.Payload.getString("output")
}

// ============================================================================
// CONNECTION_ACK
// ============================================================================

// ConnectionAck 握手确认帧
// 注意：ack 帧的会话信息位于顶层 data 字段而非 payload，这是服务端协议的
// 固定形状
type ConnectionAck struct {
	Type MessageType `json:"type"`
	Data struct {
		SessionID  string     `json:"sessionId"`
		ServerInfo ServerInfo `json:"serverInfo"`
	} `json:"data"`
}

// SessionID 返回握手分配的会话 id
func (a *ConnectionAck) SessionID() string {
	return a.Data.SessionID
}

// ServerInfo 返回握手携带的服务器元数据
func (a *ConnectionAck) ServerInfo() *ServerInfo {
	return &a.Data.ServerInfo
}

// DecodeConnectionAck 解析握手确认帧
// 首帧类型不是 CONNECTION_ACK 时返回 HANDSHAKE_FAILED
func DecodeConnectionAck(data []byte) (*ConnectionAck, error) {
	var ack ConnectionAck
	if err := json.Unmarshal(data, &ack); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidData, "malformed handshake frame")
	}
	if ack.Type != TypeConnectionAck {
		return nil, errors.Newf(errors.CodeHandshakeFailed,
			"unexpected first frame type: %s", ack.Type)
	}
	return &ack, nil
}
