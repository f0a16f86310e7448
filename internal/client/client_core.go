// Package client 维护到单个 Minecraft 服务器的 WebSocket 长连接
//
// 每个 Client 对应一条逻辑连接：监督循环负责建连、握手与断线重连，
// 心跳循环维持链路活性，接收循环按到达顺序分发入站消息
package client

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"mcbridge-core/internal/core/dispose"
	"mcbridge-core/internal/protocol"
)

// ConnectionState 连接状态
type ConnectionState int32

const (
	StateNotConnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

// String 返回状态名
func (s ConnectionState) String() string {
	switch s {
	case StateNotConnected:
		return "not_connected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// Client 与单个 Minecraft 服务器通信的 WebSocket 客户端
type Client struct {
	*dispose.ManagerBase

	opts Options

	// WebSocket 连接，仅由监督循环赋值
	conn   *websocket.Conn
	connMu sync.RWMutex

	// 单写者约束：心跳与外部发送共用同一 socket
	writeMu sync.Mutex

	state   atomic.Int32
	running atomic.Bool

	// 每次 Start 派生一个运行上下文，Disconnect 取消它以打断
	// 拨号、握手与退避等待
	runMu     sync.Mutex
	runCancel context.CancelFunc

	// 出站限速器（可选）
	limiter *rate.Limiter

	// 握手后更新的会话信息
	mu         sync.RWMutex
	sessionID  string
	serverInfo *protocol.ServerInfo

	// 监督循环退出通知（用于测试同步）
	done chan struct{}
}

// New 创建客户端，不发起连接
func New(ctx context.Context, opts Options) *Client {
	opts = opts.normalized()

	c := &Client{
		ManagerBase: dispose.NewManager(fmt.Sprintf("Client[%s]", opts.ServerID), ctx),
		opts:        opts,
	}

	if opts.SendRate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.SendRate), int(opts.SendRate)+1)
	}

	c.AddCleanHandler(func() error {
		c.running.Store(false)
		c.cancelRun()
		c.closeConn()
		return nil
	})

	return c
}

// ServerID 返回服务器标识
func (c *Client) ServerID() string {
	return c.opts.ServerID
}

// State 返回当前连接状态
func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Connected 是否已连接
func (c *Client) Connected() bool {
	return c.State() == StateConnected
}

// SessionID 返回当前会话标识，未连接时为空串
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// ServerInfo 返回最近一次握手获得的服务器信息快照
func (c *Client) ServerInfo() *protocol.ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.serverInfo == nil {
		return nil
	}
	info := *c.serverInfo
	return &info
}

func (c *Client) setState(s ConnectionState) {
	c.state.Store(int32(s))
}

// wsURL 构造连接地址 ws://{host}:{port}/ws?token={token}
func (c *Client) wsURL() string {
	return fmt.Sprintf("ws://%s:%d/ws?token=%s",
		c.opts.Host, c.opts.Port, url.QueryEscape(c.opts.Token))
}

// newRunCtx 派生本代监督循环的上下文
func (c *Client) newRunCtx() context.Context {
	ctx, cancel := context.WithCancel(c.Ctx())
	c.runMu.Lock()
	c.runCancel = cancel
	c.runMu.Unlock()
	return ctx
}

// cancelRun 取消当前监督循环的上下文
func (c *Client) cancelRun() {
	c.runMu.Lock()
	if c.runCancel != nil {
		c.runCancel()
	}
	c.runMu.Unlock()
}

func (c *Client) currentConn() *websocket.Conn {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
}

func (c *Client) closeConn() {
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
}
