package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcbridge-core/internal/core/errors"
	"mcbridge-core/internal/protocol"
	"mcbridge-core/internal/testutils"
)

func newTestPair(t *testing.T) (*testutils.MockServer, *Client) {
	t.Helper()
	srv, err := testutils.NewMockServer("secret")
	require.NoError(t, err)
	t.Cleanup(srv.Stop)

	c := New("test", srv.Host(), srv.Port(), srv.Token)
	t.Cleanup(c.Close)
	return srv, c
}

func TestClient_ServerInfo(t *testing.T) {
	srv, c := newTestPair(t)
	srv.Info.Name = "Survival"
	srv.Info.MOTD = "welcome"

	info, err := c.ServerInfo()
	require.NoError(t, err)
	assert.Equal(t, "Survival", info.Name)
	assert.Equal(t, "welcome", info.MOTD)
	assert.Equal(t, 20, info.MaxPlayers)
}

func TestClient_ServerStatus(t *testing.T) {
	srv, c := newTestPair(t)
	srv.Status = protocol.ServerStatus{
		TPS:    protocol.TPSInfo{TPS1m: 19.8, TPS5m: 20.0, TPS15m: 20.0},
		Memory: protocol.MemoryInfo{Used: 2048, Max: 4096, UsagePercent: 50.0},
		Worlds: []protocol.WorldInfo{{Name: "world", PlayerCount: 2}},
	}

	status, err := c.ServerStatus()
	require.NoError(t, err)
	assert.InDelta(t, 19.8, status.TPS.TPS1m, 0.001)
	assert.Equal(t, int64(2048), status.Memory.Used)
	require.Len(t, status.Worlds, 1)
	assert.Equal(t, "world", status.Worlds[0].Name)
}

func TestClient_HealthCheck(t *testing.T) {
	srv, c := newTestPair(t)
	assert.True(t, c.HealthCheck())

	srv.Stop()
	assert.False(t, c.HealthCheck())
}

func TestClient_Players(t *testing.T) {
	srv, c := newTestPair(t)
	srv.Players = []protocol.PlayerInfo{
		{UUID: "u-1", Name: "Steve", World: "world"},
		{UUID: "u-2", Name: "Alex", World: "world_nether"},
	}

	players, total, err := c.Players(1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, players, 2)
	assert.Equal(t, "Steve", players[0].Name)
}

func TestClient_PlayerDetail(t *testing.T) {
	srv, c := newTestPair(t)
	srv.Detail = protocol.PlayerDetail{
		PlayerInfo: protocol.PlayerInfo{UUID: "u-1", Name: "Steve"},
		Health:     18.5,
		Level:      30,
	}

	byUUID, err := c.PlayerByUUID("u-1")
	require.NoError(t, err)
	assert.Equal(t, "Steve", byUUID.Name)
	assert.InDelta(t, 18.5, byUUID.Health, 0.001)

	byName, err := c.PlayerByName("Steve")
	require.NoError(t, err)
	assert.Equal(t, "u-1", byName.UUID)
	assert.Equal(t, 30, byName.Level)
}

func TestClient_PlayerDetail_NotFound(t *testing.T) {
	srv, c := newTestPair(t)
	srv.Detail = protocol.PlayerDetail{
		PlayerInfo: protocol.PlayerInfo{UUID: "u-1", Name: "Steve"},
	}

	detail, err := c.PlayerByUUID("nope")
	require.Error(t, err)
	assert.Nil(t, detail)
	assert.True(t, errors.IsCode(err, errors.CodeServiceUnavailable))
}

// 缓存命中时不再访问服务器
func TestClient_PlayerDetail_Cached(t *testing.T) {
	srv, c := newTestPair(t)
	srv.Detail = protocol.PlayerDetail{
		PlayerInfo: protocol.PlayerInfo{UUID: "u-1", Name: "Steve"},
	}

	first, err := c.PlayerByUUID("u-1")
	require.NoError(t, err)

	// 服务器故障后缓存内的条目仍可读
	srv.SetRESTFailure(true)
	second, err := c.PlayerByUUID("u-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// 未缓存的键必须透传失败
	_, err = c.PlayerByUUID("u-other")
	require.Error(t, err)
}

func TestClient_ExecuteCommand(t *testing.T) {
	_, c := newTestPair(t)

	result, err := c.ExecuteCommand("say hello", "", "", false)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "executed: say hello", result.Output)
	assert.Empty(t, result.TaskID)

	// 异步执行只返回任务 id
	result, err = c.ExecuteCommand("save-all", "", "", true)
	require.NoError(t, err)
	assert.NotEmpty(t, result.TaskID)
	assert.Empty(t, result.Output)
}

func TestClient_Logs(t *testing.T) {
	srv, c := newTestPair(t)
	srv.Logs = []protocol.LogEntry{
		{Timestamp: 1, Level: "INFO", Message: "started"},
		{Timestamp: 2, Level: "WARN", Message: "lag spike"},
	}

	logs, err := c.Logs(LogQuery{Lines: 50})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "lag spike", logs[1].Message)
	assert.Equal(t, 50, srv.LastLogLines())
}

// 行数在请求发出前钳制到上限
func TestClient_Logs_ClampsLines(t *testing.T) {
	srv, c := newTestPair(t)

	_, err := c.Logs(LogQuery{Lines: 5000})
	require.NoError(t, err)
	assert.Equal(t, MaxLogLines, srv.LastLogLines())

	// 零值使用默认行数
	_, err = c.Logs(LogQuery{})
	require.NoError(t, err)
	assert.Equal(t, 100, srv.LastLogLines())
}

func TestClient_TransportFailure(t *testing.T) {
	srv, c := newTestPair(t)
	srv.Stop()

	info, err := c.ServerInfo()
	require.Error(t, err)
	assert.Nil(t, info)
	assert.True(t, errors.IsCode(err, errors.CodeNetworkError))
}

func TestClient_ServerSideError(t *testing.T) {
	srv, c := newTestPair(t)
	srv.SetRESTFailure(true)

	_, _, err := c.Players(1, 10)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeServiceUnavailable))
}

func TestClient_Unauthorized(t *testing.T) {
	srv, err := testutils.NewMockServer("secret")
	require.NoError(t, err)
	defer srv.Stop()

	c := New("test", srv.Host(), srv.Port(), "wrong-token")
	defer c.Close()

	_, err = c.ServerInfo()
	require.Error(t, err)
}

func TestClient_Timeout(t *testing.T) {
	_, c := newTestPair(t)
	c.SetTimeout(1 * time.Nanosecond)

	_, err := c.ServerInfo()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeTimeout) ||
		errors.IsCode(err, errors.CodeNetworkError))
}
