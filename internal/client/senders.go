package client

import (
	"time"

	"github.com/gorilla/websocket"

	"mcbridge-core/internal/core/log"
	"mcbridge-core/internal/protocol"
)

// 出站发送器
//
// 所有发送都是尽力而为：未连接时直接返回 false，不排队不缓存，
// 调用方自行检查连接状态或容忍静默丢弃

// SendMessage 发送任意消息，仅在已连接时写出
func (c *Client) SendMessage(msg *protocol.Message) bool {
	if c.limiter != nil && !c.limiter.Allow() {
		log.Warnf("[MC-%s] send rate exceeded, dropping %s", c.opts.ServerID, msg.Type)
		return false
	}
	return c.write(msg)
}

// SendChatResponse 发送 AI 聊天响应
func (c *Client) SendChatResponse(replyTo string, targetType protocol.TargetType,
	chatMode protocol.ChatMode, content, playerUUID string, success bool, errorMessage string) bool {

	msg := protocol.NewMessage(protocol.TypeChatResponse)
	msg.ReplyTo = replyTo
	msg.Target = &protocol.MessageTarget{
		Type:       targetType,
		PlayerUUID: playerUUID,
	}
	msg.Payload = protocol.Payload{
		"content":  content,
		"chatMode": string(chatMode),
		"success":  success,
	}
	if !success && errorMessage != "" {
		msg.Payload["errorMessage"] = errorMessage
	}
	return c.SendMessage(msg)
}

// SendIncomingMessage 将外部平台的消息桥接到 MC 服务器
func (c *Client) SendIncomingMessage(platform, userID, userName, content string,
	targetType protocol.TargetType, playerUUID string) bool {

	msg := protocol.NewMessage(protocol.TypeMessageIncoming)
	msg.Target = &protocol.MessageTarget{
		Type:       targetType,
		PlayerUUID: playerUUID,
	}
	msg.Payload = protocol.Payload{
		"source": map[string]any{
			"platform": platform,
			"userId":   userID,
			"userName": userName,
		},
		"content": content,
	}
	return c.SendMessage(msg)
}

// SendCommandRequest 发送命令执行请求
func (c *Client) SendCommandRequest(command, executor, playerUUID string) bool {
	if executor == "" {
		executor = protocol.ExecutorConsole
	}
	msg := protocol.NewMessage(protocol.TypeCommandRequest)
	msg.Payload = protocol.Payload{
		"command":  command,
		"executor": executor,
	}
	if playerUUID != "" {
		msg.Payload["playerUuid"] = playerUUID
	}
	return c.SendMessage(msg)
}

// sendHeartbeat 发送心跳，不经过限速器
func (c *Client) sendHeartbeat() bool {
	return c.write(protocol.NewMessage(protocol.TypeHeartbeat))
}

// sendHeartbeatAck 回应心跳，id 原样镜像
func (c *Client) sendHeartbeatAck(id string) bool {
	msg := &protocol.Message{
		Type:      protocol.TypeHeartbeatAck,
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	}
	return c.write(msg)
}

// write 序列化并写出一帧
// writeMu 保证心跳循环与外部发送方共用 socket 时的单写者约束
func (c *Client) write(msg *protocol.Message) bool {
	if !c.Connected() {
		return false
	}
	conn := c.currentConn()
	if conn == nil {
		return false
	}

	data, err := protocol.Encode(msg)
	if err != nil {
		// 载荷形状在调用点静态已知，序列化失败属于编程错误
		log.Errorf("[MC-%s] encode %s failed: %v", c.opts.ServerID, msg.Type, err)
		return false
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Errorf("[MC-%s] send %s failed: %v", c.opts.ServerID, msg.Type, err)
		return false
	}
	return true
}
