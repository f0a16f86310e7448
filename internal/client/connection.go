package client

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"mcbridge-core/internal/core/errors"
	"mcbridge-core/internal/core/log"
	"mcbridge-core/internal/protocol"
	"mcbridge-core/internal/utils/timeutil"
)

// Start 启动监督循环，幂等；不等待首次连接
func (c *Client) Start() {
	if !c.running.CompareAndSwap(false, true) {
		log.Debugf("[MC-%s] already running", c.opts.ServerID)
		return
	}
	// 上一代监督循环的上下文已被取消，等它收尾后再起新循环，
	// 保证任意时刻最多只有一个监督循环在跑
	if prev := c.done; prev != nil {
		<-prev
	}
	ctx := c.newRunCtx()
	c.done = make(chan struct{})
	go c.run(ctx)
	log.Infof("[MC-%s] connection supervisor started", c.opts.ServerID)
}

// Disconnect 协作式关闭：取消本代监督循环的上下文并关闭连接，
// 拨号、握手、退避等待中的循环都会被打断；可重复调用
func (c *Client) Disconnect() {
	if c.running.CompareAndSwap(true, false) {
		c.setState(StateDisconnecting)
	}
	c.cancelRun()
	c.closeConn()
}

// Stop 停止客户端并释放资源
func (c *Client) Stop() {
	c.Disconnect()
	c.Close()
	c.setState(StateNotConnected)
	log.Infof("[MC-%s] stopped", c.opts.ServerID)
}

// Done 返回监督循环退出通知通道，未启动时为 nil
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// run 监督循环：连接失败按指数退避重试，连接断开后自动重连，
// 直到本代上下文被 Disconnect/Stop 取消
func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	defer c.setState(StateNotConnected)

	cfg := c.opts.Reconnect
	delay := cfg.InitialDelay
	attempts := 0

	timer := timeutil.NewSafeTimer(delay)
	defer timer.Stop()

	for ctx.Err() == nil {
		if err := c.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			attempts++
			log.Warnf("[MC-%s] connect attempt %d failed: %v", c.opts.ServerID, attempts, err)

			if cfg.MaxAttempts > 0 && attempts >= cfg.MaxAttempts {
				log.Errorf("[MC-%s] max reconnect attempts (%d) reached, giving up",
					c.opts.ServerID, cfg.MaxAttempts)
				return
			}

			wait := addJitter(delay, cfg.JitterFactor)
			log.Infof("[MC-%s] retrying in %v", c.opts.ServerID, wait.Round(time.Millisecond))
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				return
			case <-timer.C():
			}
			delay = nextDelay(delay, cfg)
			continue
		}

		// 连接成功，退避回到初始值
		delay = cfg.InitialDelay
		attempts = 0

		hbCtx, cancelHeartbeat := context.WithCancel(ctx)
		go c.heartbeatLoop(hbCtx)

		reason := c.readLoop()

		cancelHeartbeat()
		c.closeConn()
		c.setState(StateNotConnected)

		// 主动停止时不触发断开回调
		if ctx.Err() != nil {
			return
		}
		c.fireDisconnect(reason)
	}
}

// connect 建立连接并完成握手：拨号后在限定时间内等待且仅等待一个
// CONNECTION_ACK 帧，从中提取会话标识和服务器信息
func (c *Client) connect(ctx context.Context) error {
	c.setState(StateConnecting)
	log.Infof("[MC-%s] connecting to %s:%d", c.opts.ServerID, c.opts.Host, c.opts.Port)

	dialer := websocket.Dialer{
		HandshakeTimeout: c.opts.ConnectTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		c.setState(StateNotConnected)
		return errors.Wrap(err, errors.CodeConnectionError, "websocket dial failed")
	}

	// 提前登记连接，Disconnect 关闭它即可打断握手读
	c.setConn(conn)

	// 握手超时约束只作用在首帧上
	_ = conn.SetReadDeadline(time.Now().Add(c.opts.ConnectTimeout))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		c.closeConn()
		c.setState(StateNotConnected)
		return errors.Wrap(err, errors.CodeHandshakeFailed, "waiting for CONNECTION_ACK")
	}

	ack, err := protocol.DecodeConnectionAck(frame)
	if err != nil {
		c.closeConn()
		c.setState(StateNotConnected)
		return err
	}
	_ = conn.SetReadDeadline(time.Time{})

	// 停止请求可能赶在握手完成之前到达，提交前再确认一次
	if ctx.Err() != nil {
		c.closeConn()
		c.setState(StateNotConnected)
		return errors.New(errors.CodeConnectionError, "stopped during handshake")
	}

	info := ack.ServerInfo()
	c.mu.Lock()
	c.sessionID = ack.SessionID()
	c.serverInfo = info
	c.mu.Unlock()

	c.setState(StateConnected)

	log.Infof("[MC-%s] connected to %s (%s %s), session=%s",
		c.opts.ServerID, info.Name, info.Platform, info.MinecraftVersion, ack.SessionID())

	c.fireConnect(info)
	return nil
}

// readLoop 接收循环，返回断开原因
// 入站帧严格按到达顺序解码并分发，不做并发派发
func (c *Client) readLoop() string {
	conn := c.currentConn()
	if conn == nil {
		return "connection closed"
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if c.running.Load() {
				log.Warnf("[MC-%s] read error: %v", c.opts.ServerID, err)
			}
			return "connection lost"
		}

		msg, err := protocol.Decode(frame)
		if err != nil {
			// 单帧解码失败只跳过，不中断循环
			log.Warnf("[MC-%s] dropping malformed frame: %v", c.opts.ServerID, err)
			continue
		}

		switch msg.Type {
		case protocol.TypeHeartbeat:
			// 回应服务器心跳，id 原样镜像
			c.sendHeartbeatAck(msg.ID)

		case protocol.TypeHeartbeatAck:
			// 心跳已确认，无需处理

		case protocol.TypeDisconnect:
			reason, detail := msg.DisconnectReason()
			log.Warnf("[MC-%s] server requested disconnect: %s - %s",
				c.opts.ServerID, reason, detail)
			return "server disconnect: " + reason

		case protocol.TypeError:
			code, errMsg := msg.ErrorInfo()
			log.Errorf("[MC-%s] server error %d: %s", c.opts.ServerID, code, errMsg)

		default:
			c.dispatch(msg)
		}
	}
}

// dispatch 调用消息回调，吞掉回调中的 panic，保证一个异常的
// 处理器不会杀死接收循环
func (c *Client) dispatch(msg *protocol.Message) {
	handler := c.opts.OnMessage
	if handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[MC-%s] message handler panic: %v", c.opts.ServerID, r)
		}
	}()
	handler(c.opts.ServerID, msg)
}

func (c *Client) fireConnect(info *protocol.ServerInfo) {
	handler := c.opts.OnConnect
	if handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[MC-%s] connect handler panic: %v", c.opts.ServerID, r)
		}
	}()
	handler(c.opts.ServerID, info)
}

func (c *Client) fireDisconnect(reason string) {
	handler := c.opts.OnDisconnect
	if handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[MC-%s] disconnect handler panic: %v", c.opts.ServerID, r)
		}
	}()
	handler(c.opts.ServerID, reason)
}

// heartbeatLoop 心跳循环，仅在连接期间运行
// 不等待 ack，ack 在接收循环中顺带消费
func (c *Client) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.sendHeartbeat() {
				log.Debugf("[MC-%s] heartbeat send failed", c.opts.ServerID)
			}
		}
	}
}
