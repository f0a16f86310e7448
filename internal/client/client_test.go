package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcbridge-core/internal/protocol"
	"mcbridge-core/internal/testutils"
)

func TestReconnectConfig_Normalized(t *testing.T) {
	cfg := ReconnectConfig{}.normalized()
	assert.Equal(t, DefaultReconnectConfig.InitialDelay, cfg.InitialDelay)
	assert.Equal(t, DefaultReconnectConfig.MaxDelay, cfg.MaxDelay)
	assert.Equal(t, DefaultReconnectConfig.Backoff, cfg.Backoff)
	assert.Equal(t, DefaultReconnectConfig.JitterFactor, cfg.JitterFactor)

	// 显式配置不被覆盖
	cfg = ReconnectConfig{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		MaxAttempts:  3,
		Backoff:      1.5,
		JitterFactor: 0.1,
	}.normalized()
	assert.Equal(t, 500*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 5*time.Second, cfg.MaxDelay)
	assert.Equal(t, 3, cfg.MaxAttempts)
}

// 退避序列单调递增直到封顶
func TestNextDelay_ExponentialAndCapped(t *testing.T) {
	cfg := DefaultReconnectConfig

	delay := cfg.InitialDelay
	expected := []time.Duration{
		2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 32 * time.Second, 60 * time.Second, 60 * time.Second,
	}
	for i, want := range expected {
		delay = nextDelay(delay, cfg)
		assert.Equal(t, want, delay, "step %d", i)
	}
}

func TestAddJitter_Bounds(t *testing.T) {
	base := 10 * time.Second
	for i := 0; i < 1000; i++ {
		got := addJitter(base, 0.2)
		assert.GreaterOrEqual(t, got, 8*time.Second)
		assert.LessOrEqual(t, got, 12*time.Second)
	}

	// 抖动关闭时返回原值
	assert.Equal(t, base, addJitter(base, 0))
}

func TestOptions_Normalized(t *testing.T) {
	opts := Options{}.normalized()
	assert.Equal(t, DefaultHeartbeatInterval, opts.HeartbeatInterval)
	assert.Equal(t, DefaultConnectTimeout, opts.ConnectTimeout)
	assert.Equal(t, DefaultReconnectConfig.InitialDelay, opts.Reconnect.InitialDelay)
}

func TestWSURL_EscapesToken(t *testing.T) {
	c := New(context.Background(), Options{
		ServerID: "s1",
		Host:     "localhost",
		Port:     8765,
		Token:    "a b&c",
	})
	defer c.Stop()

	assert.Equal(t, "ws://localhost:8765/ws?token=a+b%26c", c.wsURL())
}

// newTestClient 连接到模拟服务器，重连参数调小以适合测试
func newTestClient(t *testing.T, srv *testutils.MockServer, opts Options) *Client {
	t.Helper()
	opts.ServerID = "test"
	opts.Host = srv.Host()
	opts.Port = srv.Port()
	if opts.Token == "" {
		opts.Token = srv.Token
	}
	if opts.Reconnect.InitialDelay == 0 {
		opts.Reconnect = ReconnectConfig{
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     200 * time.Millisecond,
			JitterFactor: 0,
		}
	}
	return New(context.Background(), opts)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestClient_ConnectHandshake(t *testing.T) {
	srv, err := testutils.NewMockServer("secret")
	require.NoError(t, err)
	defer srv.Stop()

	connected := make(chan *protocol.ServerInfo, 1)
	c := newTestClient(t, srv, Options{
		OnConnect: func(serverID string, info *protocol.ServerInfo) {
			connected <- info
		},
	})
	defer c.Stop()

	c.Start()
	select {
	case info := <-connected:
		assert.Equal(t, "Mock Server", info.Name)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for connection")
	}

	assert.True(t, c.Connected())
	assert.Equal(t, StateConnected, c.State())
	assert.NotEmpty(t, c.SessionID())
	require.NotNil(t, c.ServerInfo())
	assert.Equal(t, "Paper", c.ServerInfo().Platform)
}

func TestClient_InvalidTokenKeepsRetrying(t *testing.T) {
	srv, err := testutils.NewMockServer("secret")
	require.NoError(t, err)
	defer srv.Stop()

	c := newTestClient(t, srv, Options{Token: "wrong"})
	defer c.Stop()

	c.Start()
	time.Sleep(300 * time.Millisecond)
	assert.False(t, c.Connected())
	assert.Empty(t, c.SessionID())
}

// 服务器心跳必须以镜像 id 回应
func TestClient_HeartbeatAckMirrorsID(t *testing.T) {
	srv, err := testutils.NewMockServer("secret")
	require.NoError(t, err)
	defer srv.Stop()

	c := newTestClient(t, srv, Options{})
	defer c.Stop()
	c.Start()
	require.True(t, srv.WaitConnected(5*time.Second))

	hb := protocol.NewMessage(protocol.TypeHeartbeat)
	hb.ID = "hb-42"
	srv.Push(hb)

	ok := waitFor(t, 3*time.Second, func() bool {
		for _, msg := range srv.Received() {
			if msg.Type == protocol.TypeHeartbeatAck && msg.ID == "hb-42" {
				return true
			}
		}
		return false
	})
	assert.True(t, ok, "expected HEARTBEAT_ACK with mirrored id")
}

func TestClient_SendMessage(t *testing.T) {
	srv, err := testutils.NewMockServer("secret")
	require.NoError(t, err)
	defer srv.Stop()

	c := newTestClient(t, srv, Options{})
	defer c.Stop()

	// 未连接时发送失败而不 panic
	assert.False(t, c.SendMessage(protocol.NewMessage(protocol.TypeChatResponse)))

	c.Start()
	require.True(t, waitFor(t, 5*time.Second, c.Connected))

	assert.True(t, c.SendChatResponse("req-1", protocol.TargetBroadcast,
		protocol.ChatModeGroup, "hello", "", true, ""))

	ok := waitFor(t, 3*time.Second, func() bool {
		for _, msg := range srv.Received() {
			if msg.Type == protocol.TypeChatResponse && msg.ReplyTo == "req-1" {
				return msg.ChatContent() == "hello"
			}
		}
		return false
	})
	assert.True(t, ok, "expected CHAT_RESPONSE to arrive at server")
}

// 并发发送共用一条连接，帧不得交错损坏
func TestClient_ConcurrentSends(t *testing.T) {
	srv, err := testutils.NewMockServer("secret")
	require.NoError(t, err)
	defer srv.Stop()

	c := newTestClient(t, srv, Options{})
	defer c.Stop()
	c.Start()
	require.True(t, waitFor(t, 5*time.Second, c.Connected))

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.SendChatResponse(fmt.Sprintf("req-%d", i), protocol.TargetBroadcast,
				protocol.ChatModeGroup, "hello", "", true, "")
		}(i)
	}
	wg.Wait()

	ok := waitFor(t, 5*time.Second, func() bool {
		seen := 0
		for _, msg := range srv.Received() {
			if msg.Type == protocol.TypeChatResponse {
				seen++
			}
		}
		return seen == n
	})
	assert.True(t, ok, "expected all concurrent sends to arrive intact")
}

func TestClient_DispatchesMessagesInOrder(t *testing.T) {
	srv, err := testutils.NewMockServer("secret")
	require.NoError(t, err)
	defer srv.Stop()

	var order []string
	var done atomic.Int32
	c := newTestClient(t, srv, Options{
		OnMessage: func(serverID string, msg *protocol.Message) {
			order = append(order, msg.ID) // 回调串行执行，无需加锁
			done.Add(1)
		},
	})
	defer c.Stop()
	c.Start()
	require.True(t, srv.WaitConnected(5*time.Second))

	for _, id := range []string{"m-1", "m-2", "m-3"} {
		msg := protocol.NewMessage(protocol.TypeMessageForward)
		msg.ID = id
		srv.Push(msg)
	}

	require.True(t, waitFor(t, 3*time.Second, func() bool { return done.Load() == 3 }))
	assert.Equal(t, []string{"m-1", "m-2", "m-3"}, order)
}

// 回调 panic 不得杀死接收循环
func TestClient_HandlerPanicIsSwallowed(t *testing.T) {
	srv, err := testutils.NewMockServer("secret")
	require.NoError(t, err)
	defer srv.Stop()

	var handled atomic.Int32
	c := newTestClient(t, srv, Options{
		OnMessage: func(serverID string, msg *protocol.Message) {
			if msg.ForwardContent() == "boom" {
				panic("handler exploded")
			}
			handled.Add(1)
		},
	})
	defer c.Stop()
	c.Start()
	require.True(t, srv.WaitConnected(5*time.Second))

	bad := protocol.NewMessage(protocol.TypeMessageForward)
	bad.Payload = protocol.Payload{"content": "boom"}
	srv.Push(bad)

	good := protocol.NewMessage(protocol.TypeMessageForward)
	good.Payload = protocol.Payload{"content": "fine"}
	srv.Push(good)

	require.True(t, waitFor(t, 3*time.Second, func() bool { return handled.Load() == 1 }))
	assert.True(t, c.Connected())
}

func TestClient_ReconnectAfterConnectionLost(t *testing.T) {
	srv, err := testutils.NewMockServer("secret")
	require.NoError(t, err)
	defer srv.Stop()

	var connects atomic.Int32
	disconnected := make(chan string, 4)
	c := newTestClient(t, srv, Options{
		OnConnect: func(serverID string, info *protocol.ServerInfo) {
			connects.Add(1)
		},
		OnDisconnect: func(serverID, reason string) {
			disconnected <- reason
		},
	})
	defer c.Stop()
	c.Start()
	require.True(t, waitFor(t, 5*time.Second, func() bool { return connects.Load() == 1 }))

	firstSession := c.SessionID()
	srv.CloseConnections()

	select {
	case reason := <-disconnected:
		assert.Contains(t, reason, "lost")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for disconnect callback")
	}

	// 自动重连并建立新会话
	require.True(t, waitFor(t, 5*time.Second, func() bool { return connects.Load() == 2 }))
	require.True(t, waitFor(t, 5*time.Second, c.Connected))
	assert.NotEqual(t, firstSession, c.SessionID())
}

func TestClient_StopIsIdempotent(t *testing.T) {
	srv, err := testutils.NewMockServer("secret")
	require.NoError(t, err)
	defer srv.Stop()

	c := newTestClient(t, srv, Options{})
	c.Start()
	require.True(t, waitFor(t, 5*time.Second, c.Connected))

	c.Stop()
	c.Stop()
	assert.False(t, c.Connected())
	assert.Equal(t, StateNotConnected, c.State())
}

// 握手尚未完成时调用 Disconnect，客户端不得在其返回后进入已连接状态
func TestClient_DisconnectDuringConnecting(t *testing.T) {
	srv, err := testutils.NewMockServer("secret")
	require.NoError(t, err)
	defer srv.Stop()
	srv.SetAckDelay(500 * time.Millisecond)

	c := newTestClient(t, srv, Options{})
	defer c.Stop()
	c.Start()
	require.True(t, waitFor(t, 3*time.Second, func() bool {
		return c.State() == StateConnecting
	}))

	c.Disconnect()

	select {
	case <-c.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("supervisor did not exit after Disconnect")
	}

	// 延迟到达的 CONNECTION_ACK 不得把客户端翻回已连接
	time.Sleep(700 * time.Millisecond)
	assert.False(t, c.Connected())
	assert.Equal(t, StateNotConnected, c.State())
	assert.Empty(t, c.SessionID())
}

// Disconnect 必须打断退避等待，不等满整个退避窗口
func TestClient_DisconnectInterruptsBackoff(t *testing.T) {
	srv, err := testutils.NewMockServer("secret")
	require.NoError(t, err)
	srv.Stop() // 让拨号必定失败

	c := newTestClient(t, srv, Options{
		Reconnect: ReconnectConfig{
			InitialDelay: 30 * time.Second,
			MaxDelay:     60 * time.Second,
			JitterFactor: 0,
		},
	})
	defer c.Stop()
	c.Start()

	// 首次拨号失败后进入退避等待
	time.Sleep(200 * time.Millisecond)
	c.Disconnect()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor stuck in backoff after Disconnect")
	}
}

// 快速 Disconnect/Start 轮换不得复活旧监督循环
func TestClient_RapidRestartCycles(t *testing.T) {
	srv, err := testutils.NewMockServer("secret")
	require.NoError(t, err)
	defer srv.Stop()

	c := newTestClient(t, srv, Options{})
	defer c.Stop()

	for i := 0; i < 5; i++ {
		c.Start()
		c.Disconnect()
	}

	c.Start()
	require.True(t, waitFor(t, 5*time.Second, c.Connected))

	c.Disconnect()
	select {
	case <-c.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("supervisor did not exit after final Disconnect")
	}
	assert.False(t, c.Connected())
	assert.Equal(t, StateNotConnected, c.State())
}
