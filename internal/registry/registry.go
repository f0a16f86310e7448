// Package registry 管理多个 Minecraft 服务器的连接对
//
// 每个服务器 id 对应一个 {WebSocket 传输客户端, REST 查询客户端} 连接对，
// 注册表提供统一的生命周期管理与跨服务器事件回调
package registry

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"mcbridge-core/internal/client"
	"mcbridge-core/internal/core/dispose"
	"mcbridge-core/internal/core/errors"
	"mcbridge-core/internal/core/log"
	"mcbridge-core/internal/protocol"
	"mcbridge-core/internal/query"
)

// MessageHandler 跨服务器消息回调，serverID 标识消息来源
type MessageHandler func(serverID string, msg *protocol.Message)

// ConnectHandler 连接建立回调，携带握手获得的服务器信息快照
type ConnectHandler func(serverID string, info *protocol.ServerInfo)

// DisconnectHandler 断开回调，携带断开原因
type DisconnectHandler func(serverID, reason string)

// ServerConfig 单个服务器的接入配置
type ServerConfig struct {
	ID      string
	Host    string
	Port    int
	Token   string
	Enabled bool

	Transport client.Options // 传输层可选覆盖（心跳、重连、限速）
}

// Connection 一个服务器的连接对
type Connection struct {
	Config    ServerConfig
	Transport *client.Client
	Query     *query.Client
}

// Registry 连接注册表
// 回调为单槽：后设置的处理器覆盖先前的
type Registry struct {
	*dispose.ManagerBase

	mu          sync.RWMutex
	connections map[string]*Connection

	cbMu         sync.RWMutex
	onMessage    MessageHandler
	onConnect    ConnectHandler
	onDisconnect DisconnectHandler
}

// New 创建连接注册表
func New(parentCtx context.Context) *Registry {
	r := &Registry{
		connections: make(map[string]*Connection),
	}
	r.ManagerBase = dispose.NewManager("ConnectionRegistry", parentCtx)
	r.AddCleanHandler(func() error {
		r.StopAll()
		return nil
	})
	return r
}

// OnMessage 设置消息回调，覆盖之前的设置
func (r *Registry) OnMessage(h MessageHandler) {
	r.cbMu.Lock()
	r.onMessage = h
	r.cbMu.Unlock()
}

// OnConnect 设置连接建立回调，覆盖之前的设置
func (r *Registry) OnConnect(h ConnectHandler) {
	r.cbMu.Lock()
	r.onConnect = h
	r.cbMu.Unlock()
}

// OnDisconnect 设置断开回调，覆盖之前的设置
func (r *Registry) OnDisconnect(h DisconnectHandler) {
	r.cbMu.Lock()
	r.onDisconnect = h
	r.cbMu.Unlock()
}

// Add 注册一个服务器，id 已存在时返回错误
func (r *Registry) Add(cfg ServerConfig) (*Connection, error) {
	if cfg.ID == "" {
		return nil, errors.New(errors.CodeInvalidParam, "server id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[cfg.ID]; exists {
		return nil, errors.Newf(errors.CodeAlreadyExists, "server already registered: %s", cfg.ID)
	}

	opts := cfg.Transport
	opts.ServerID = cfg.ID
	opts.Host = cfg.Host
	opts.Port = cfg.Port
	opts.Token = cfg.Token
	opts.OnMessage = func(serverID string, msg *protocol.Message) {
		r.dispatchMessage(serverID, msg)
	}
	opts.OnConnect = func(serverID string, info *protocol.ServerInfo) {
		r.cbMu.RLock()
		h := r.onConnect
		r.cbMu.RUnlock()
		if h != nil {
			h(serverID, info)
		}
	}
	opts.OnDisconnect = func(serverID, reason string) {
		r.cbMu.RLock()
		h := r.onDisconnect
		r.cbMu.RUnlock()
		if h != nil {
			h(serverID, reason)
		}
	}

	conn := &Connection{
		Config:    cfg,
		Transport: client.New(r.Ctx(), opts),
		Query:     query.New(cfg.ID, cfg.Host, cfg.Port, cfg.Token),
	}
	r.connections[cfg.ID] = conn

	log.Infof("Registered server %s (%s:%d, enabled=%v)", cfg.ID, cfg.Host, cfg.Port, cfg.Enabled)
	return conn, nil
}

func (r *Registry) dispatchMessage(serverID string, msg *protocol.Message) {
	r.cbMu.RLock()
	h := r.onMessage
	r.cbMu.RUnlock()
	if h != nil {
		h(serverID, msg)
	}
}

// Remove 从注册表移除一个服务器，id 不存在时返回错误
//
// 只做表项移除，不停止连接：优雅下线应先 Stop 再 Remove，
// 避免移除操作携带隐式副作用
func (r *Registry) Remove(serverID string) error {
	r.mu.Lock()
	_, exists := r.connections[serverID]
	if exists {
		delete(r.connections, serverID)
	}
	r.mu.Unlock()

	if !exists {
		return errors.Newf(errors.CodeNotFound, "server not registered: %s", serverID)
	}

	log.Infof("Removed server %s", serverID)
	return nil
}

// Get 查找连接对，不存在时返回 nil
func (r *Registry) Get(serverID string) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connections[serverID]
}

// All 返回所有连接对的快照
func (r *Registry) All() map[string]*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[string]*Connection, len(r.connections))
	for id, conn := range r.connections {
		snapshot[id] = conn
	}
	return snapshot
}

// Connected 返回当前已建连的连接对快照
func (r *Registry) Connected() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		if conn.Transport.Connected() {
			out = append(out, conn)
		}
	}
	return out
}

// Start 启动指定服务器的传输客户端
func (r *Registry) Start(serverID string) error {
	conn := r.Get(serverID)
	if conn == nil {
		return errors.Newf(errors.CodeNotFound, "server not registered: %s", serverID)
	}
	conn.Transport.Start()
	return nil
}

// Stop 停止指定服务器的传输客户端
func (r *Registry) Stop(serverID string) error {
	conn := r.Get(serverID)
	if conn == nil {
		return errors.Newf(errors.CodeNotFound, "server not registered: %s", serverID)
	}
	conn.Transport.Disconnect()
	return nil
}

// StartAll 启动所有启用的服务器，跳过 Enabled == false 的条目
func (r *Registry) StartAll() {
	for id, conn := range r.All() {
		if !conn.Config.Enabled {
			log.Debugf("Skipping disabled server %s", id)
			continue
		}
		conn.Transport.Start()
	}
}

// StopAll 并发停止所有服务器并等待完成
func (r *Registry) StopAll() {
	var g errgroup.Group
	for id, conn := range r.All() {
		id, conn := id, conn
		g.Go(func() error {
			conn.Transport.Stop()
			conn.Query.Close()
			log.Debugf("Stopped server %s", id)
			return nil
		})
	}
	_ = g.Wait()
}

// ============================================================================
// 便捷发送
// ============================================================================

// SendChatResponse 向指定服务器发送聊天回复，未注册或未连接时返回 false
func (r *Registry) SendChatResponse(serverID, replyTo string, targetType protocol.TargetType,
	chatMode protocol.ChatMode, content, playerUUID string, success bool, errorMessage string) bool {
	conn := r.Get(serverID)
	if conn == nil {
		return false
	}
	return conn.Transport.SendChatResponse(replyTo, targetType, chatMode, content, playerUUID, success, errorMessage)
}

// SendIncomingMessage 向指定服务器注入外部平台消息
func (r *Registry) SendIncomingMessage(serverID, platform, userID, userName, content string,
	targetType protocol.TargetType, playerUUID string) bool {
	conn := r.Get(serverID)
	if conn == nil {
		return false
	}
	return conn.Transport.SendIncomingMessage(platform, userID, userName, content, targetType, playerUUID)
}

// SendCommandRequest 向指定服务器下发命令请求
func (r *Registry) SendCommandRequest(serverID, command, executor, playerUUID string) bool {
	conn := r.Get(serverID)
	if conn == nil {
		return false
	}
	return conn.Transport.SendCommandRequest(command, executor, playerUUID)
}
