// Package testutils 提供测试用的模拟 Minecraft 服务器
//
// 同一个监听端口同时提供 /ws WebSocket 端点与 /api/v1 REST 端点，
// 响应数据可按需覆盖
package testutils

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"mcbridge-core/internal/protocol"
)

// MockServer 模拟 Minecraft 桥接插件的服务端
type MockServer struct {
	Token string

	// 可覆盖的响应数据
	Info    protocol.ServerInfo
	Status  protocol.ServerStatus
	Players []protocol.PlayerInfo
	Detail  protocol.PlayerDetail
	Logs    []protocol.LogEntry

	// OnMessage 收到 WebSocket 消息时的脚本钩子，可为 nil
	OnMessage func(msg *protocol.Message)

	listener net.Listener
	server   *http.Server
	upgrader websocket.Upgrader

	mu           sync.Mutex
	conns        []*websocket.Conn
	received     []*protocol.Message
	lastLogLines int
	failREST     bool
	ackDelay     time.Duration
}

// NewMockServer 创建并启动模拟服务器，监听随机空闲端口
func NewMockServer(token string) (*MockServer, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	s := &MockServer{
		Token:    token,
		listener: listener,
		Info: protocol.ServerInfo{
			Name:             "Mock Server",
			Platform:         "Paper",
			PlatformVersion:  "1.21.1-R0.1",
			MinecraftVersion: "1.21.1",
			MaxPlayers:       20,
			OnlineCount:      1,
		},
	}

	router := mux.NewRouter()
	router.HandleFunc("/ws", s.handleWS)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/server/info", s.authed(s.handleServerInfo)).Methods(http.MethodGet)
	api.HandleFunc("/server/status", s.authed(s.handleServerStatus)).Methods(http.MethodGet)
	api.HandleFunc("/players", s.authed(s.handlePlayers)).Methods(http.MethodGet)
	api.HandleFunc("/players/name/{name}", s.authed(s.handlePlayerDetail)).Methods(http.MethodGet)
	api.HandleFunc("/players/{uuid}", s.authed(s.handlePlayerDetail)).Methods(http.MethodGet)
	api.HandleFunc("/command/execute", s.authed(s.handleCommand)).Methods(http.MethodPost)
	api.HandleFunc("/logs", s.authed(s.handleLogs)).Methods(http.MethodGet)

	s.server = &http.Server{Handler: router}
	go s.server.Serve(listener)
	return s, nil
}

// Host 返回监听地址
func (s *MockServer) Host() string {
	host, _, _ := net.SplitHostPort(s.listener.Addr().String())
	return host
}

// Port 返回监听端口
func (s *MockServer) Port() int {
	_, port, _ := net.SplitHostPort(s.listener.Addr().String())
	n, _ := strconv.Atoi(port)
	return n
}

// Stop 关闭服务器与所有 WebSocket 连接
func (s *MockServer) Stop() {
	s.CloseConnections()
	s.server.Close()
}

// SetAckDelay 推迟 CONNECTION_ACK 的发送，用于构造长时间停留在
// 连接中状态的客户端
func (s *MockServer) SetAckDelay(d time.Duration) {
	s.mu.Lock()
	s.ackDelay = d
	s.mu.Unlock()
}

// SetRESTFailure 让后续 REST 请求返回非零响应码
func (s *MockServer) SetRESTFailure(fail bool) {
	s.mu.Lock()
	s.failREST = fail
	s.mu.Unlock()
}

// Received 返回通过 WebSocket 收到的消息快照
func (s *MockServer) Received() []*protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*protocol.Message, len(s.received))
	copy(out, s.received)
	return out
}

// LastLogLines 返回最近一次 /logs 请求的 lines 参数
func (s *MockServer) LastLogLines() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastLogLines
}

// ============================================================================
// WebSocket 端点
// ============================================================================

func (s *MockServer) handleWS(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("token") != s.Token {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	delay := s.ackDelay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	// 握手确认帧，会话信息位于顶层 data 字段
	ack := map[string]any{
		"type": string(protocol.TypeConnectionAck),
		"data": map[string]any{
			"sessionId":  uuid.New().String(),
			"serverInfo": s.Info,
		},
	}
	data, _ := json.Marshal(ack)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		conn.Close()
		return
	}

	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.mu.Unlock()

	go s.readLoop(conn)
}

func (s *MockServer) readLoop(conn *websocket.Conn) {
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			continue
		}

		s.mu.Lock()
		s.received = append(s.received, msg)
		s.mu.Unlock()

		if msg.Type == protocol.TypeHeartbeat {
			ack := protocol.NewMessage(protocol.TypeHeartbeatAck)
			ack.ID = msg.ID
			s.writeTo(conn, ack)
		}
		if s.OnMessage != nil {
			s.OnMessage(msg)
		}
	}
}

func (s *MockServer) writeTo(conn *websocket.Conn, msg *protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conn.WriteMessage(websocket.TextMessage, data)
}

// Push 把消息广播到所有已建立的 WebSocket 连接
func (s *MockServer) Push(msg *protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		conn.WriteMessage(websocket.TextMessage, data)
	}
}

// CloseConnections 强制断开所有 WebSocket 连接，用于重连测试
func (s *MockServer) CloseConnections() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for _, conn := range conns {
		conn.Close()
	}
}

// WaitConnected 等待至少一条 WebSocket 连接建立
func (s *MockServer) WaitConnected(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		n := len(s.conns)
		s.mu.Unlock()
		if n > 0 {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// ============================================================================
// REST 端点
// ============================================================================

func (s *MockServer) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.Token {
			s.writeEnvelope(w, 401, "unauthorized", nil)
			return
		}
		s.mu.Lock()
		fail := s.failREST
		s.mu.Unlock()
		if fail {
			s.writeEnvelope(w, 500, "internal error", nil)
			return
		}
		next(w, r)
	}
}

func (s *MockServer) writeEnvelope(w http.ResponseWriter, code int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(protocol.APIResponse{
		Code:      code,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *MockServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeEnvelope(w, 0, "ok", map[string]string{"status": "healthy"})
}

func (s *MockServer) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	s.writeEnvelope(w, 0, "ok", s.Info)
}

func (s *MockServer) handleServerStatus(w http.ResponseWriter, r *http.Request) {
	s.writeEnvelope(w, 0, "ok", s.Status)
}

func (s *MockServer) handlePlayers(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	s.writeEnvelope(w, 0, "ok", protocol.PlayerPage{
		Players: s.Players,
		Total:   len(s.Players),
		Page:    page,
		Size:    size,
	})
}

func (s *MockServer) handlePlayerDetail(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if name, ok := vars["name"]; ok && name != s.Detail.Name {
		s.writeEnvelope(w, 404, "player not found", nil)
		return
	}
	if id, ok := vars["uuid"]; ok && id != s.Detail.UUID {
		s.writeEnvelope(w, 404, "player not found", nil)
		return
	}
	s.writeEnvelope(w, 0, "ok", s.Detail)
}

func (s *MockServer) handleCommand(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Command string `json:"command"`
		Async   bool   `json:"async"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeEnvelope(w, 400, "bad request", nil)
		return
	}
	result := protocol.CommandResult{Success: true, Output: "executed: " + body.Command}
	if body.Async {
		result.Output = ""
		result.TaskID = uuid.New().String()
	}
	s.writeEnvelope(w, 0, "ok", result)
}

func (s *MockServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	lines, _ := strconv.Atoi(r.URL.Query().Get("lines"))
	s.mu.Lock()
	s.lastLogLines = lines
	s.mu.Unlock()

	logs := s.Logs
	if lines > 0 && lines < len(logs) {
		logs = logs[len(logs)-lines:]
	}
	s.writeEnvelope(w, 0, "ok", protocol.LogPage{Logs: logs, Total: len(logs)})
}
