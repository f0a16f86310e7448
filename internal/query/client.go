// Package query 提供与 Minecraft 服务器通信的 REST API 客户端
//
// 无持久连接，每次调用一次性发起带超时的认证请求；普通失败（连接拒绝、
// 超时、非零响应码）以带错误码的 error 返回，绝不 panic
package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"mcbridge-core/internal/core/errors"
	"mcbridge-core/internal/core/log"
	"mcbridge-core/internal/protocol"
)

// REST 默认值
const (
	DefaultRequestTimeout = 30 * time.Second
	HealthCheckTimeout    = 5 * time.Second
	MaxLogLines           = 1000

	playerCacheSize = 256
	playerCacheTTL  = 30 * time.Second
)

// apiEnvelope REST 响应信封，data 延迟解码
type apiEnvelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

type cachedDetail struct {
	detail   *protocol.PlayerDetail
	cachedAt time.Time
}

// Client 与单个 Minecraft 服务器通信的 REST API 客户端
// 方法可被多个 goroutine 并发调用，共享同一连接池
type Client struct {
	serverID string
	baseURL  string
	token    string
	timeout  time.Duration

	httpOnce   sync.Once
	httpClient *http.Client

	// 玩家详情缓存，按 uuid 或 name:<name> 为键
	playerCache *lru.Cache[string, cachedDetail]
}

// New 创建 REST 客户端
func New(serverID, host string, port int, token string) *Client {
	cache, _ := lru.New[string, cachedDetail](playerCacheSize)
	return &Client{
		serverID:    serverID,
		baseURL:     fmt.Sprintf("http://%s:%d/api/v1", host, port),
		token:       token,
		timeout:     DefaultRequestTimeout,
		playerCache: cache,
	}
}

// SetTimeout 覆盖默认请求超时
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// client 懒创建共享连接池
func (c *Client) client() *http.Client {
	c.httpOnce.Do(func() {
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        8,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	})
	return c.httpClient
}

// Close 关闭空闲连接并清空缓存
func (c *Client) Close() {
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
	c.playerCache.Purge()
}

// doRequest 发起一次请求并解析响应信封
func (c *Client) doRequest(method, endpoint string, query url.Values, body any, timeout time.Duration) (*apiEnvelope, error) {
	reqURL := c.baseURL + endpoint
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "failed to marshal request")
		}
		reqBody = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client().Do(req)
	if err != nil {
		log.Warnf("[MC-%s] request %s %s failed: %v", c.serverID, method, endpoint, err)
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.Wrap(err, errors.CodeTimeout, "request timed out")
		}
		return nil, errors.Wrap(err, errors.CodeNetworkError, "request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeNetworkError, "failed to read response")
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, errors.Wrapf(err, errors.CodeInvalidData,
			"malformed response (HTTP %d)", resp.StatusCode)
	}

	if envelope.Code != 0 {
		return &envelope, errors.Newf(errors.CodeServiceUnavailable,
			"server error %d: %s", envelope.Code, envelope.Message)
	}
	return &envelope, nil
}

func (c *Client) get(endpoint string, query url.Values) (*apiEnvelope, error) {
	return c.doRequest(http.MethodGet, endpoint, query, nil, c.timeout)
}

func (c *Client) post(endpoint string, body any) (*apiEnvelope, error) {
	return c.doRequest(http.MethodPost, endpoint, nil, body, c.timeout)
}

// decodeData 解码响应信封中的 data 字段
func decodeData[T any](envelope *apiEnvelope) (*T, error) {
	var v T
	if len(envelope.Data) == 0 {
		return nil, errors.New(errors.CodeInvalidData, "response has no data")
	}
	if err := json.Unmarshal(envelope.Data, &v); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidData, "failed to decode response data")
	}
	return &v, nil
}

// ============================================================================
// 服务器 API
// ============================================================================

// ServerInfo 获取服务器信息
func (c *Client) ServerInfo() (*protocol.ServerInfo, error) {
	envelope, err := c.get("/server/info", nil)
	if err != nil {
		return nil, err
	}
	return decodeData[protocol.ServerInfo](envelope)
}

// ServerStatus 获取服务器运行状态（TPS、内存、世界、插件统计）
func (c *Client) ServerStatus() (*protocol.ServerStatus, error) {
	envelope, err := c.get("/server/status", nil)
	if err != nil {
		return nil, err
	}
	return decodeData[protocol.ServerStatus](envelope)
}

// HealthCheck 健康探测，不需要认证，尽力而为
func (c *Client) HealthCheck() bool {
	envelope, err := c.doRequest(http.MethodGet, "/health", nil, nil, HealthCheckTimeout)
	return err == nil && envelope.Code == 0
}

// ============================================================================
// 玩家 API
// ============================================================================

// Players 获取在线玩家分页列表，返回 (列表, 总数, 错误)
func (c *Client) Players(page, size int) ([]protocol.PlayerInfo, int, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))

	envelope, err := c.get("/players", q)
	if err != nil {
		return nil, 0, err
	}
	result, err := decodeData[protocol.PlayerPage](envelope)
	if err != nil {
		return nil, 0, err
	}
	return result.Players, result.Total, nil
}

// PlayerByUUID 通过 UUID 获取玩家详细信息
func (c *Client) PlayerByUUID(uuid string) (*protocol.PlayerDetail, error) {
	return c.playerDetail(uuid, "/players/"+url.PathEscape(uuid))
}

// PlayerByName 通过名称获取玩家详细信息
func (c *Client) PlayerByName(name string) (*protocol.PlayerDetail, error) {
	return c.playerDetail("name:"+name, "/players/name/"+url.PathEscape(name))
}

// playerDetail 带 LRU 缓存的玩家详情查询
func (c *Client) playerDetail(cacheKey, endpoint string) (*protocol.PlayerDetail, error) {
	if entry, ok := c.playerCache.Get(cacheKey); ok {
		if time.Since(entry.cachedAt) < playerCacheTTL {
			return entry.detail, nil
		}
		c.playerCache.Remove(cacheKey)
	}

	envelope, err := c.get(endpoint, nil)
	if err != nil {
		return nil, err
	}
	detail, err := decodeData[protocol.PlayerDetail](envelope)
	if err != nil {
		return nil, err
	}

	c.playerCache.Add(cacheKey, cachedDetail{detail: detail, cachedAt: time.Now()})
	return detail, nil
}

// ============================================================================
// 命令 API
// ============================================================================

// ExecuteCommand 在服务器上执行命令
// async 为真时结果只携带 taskId，不等待命令输出
func (c *Client) ExecuteCommand(command, executor, playerUUID string, async bool) (*protocol.CommandResult, error) {
	if executor == "" {
		executor = protocol.ExecutorConsole
	}
	body := map[string]any{
		"command":  command,
		"executor": executor,
		"async":    async,
	}
	if playerUUID != "" {
		body["playerUuid"] = playerUUID
	}

	envelope, err := c.post("/command/execute", body)
	if err != nil {
		return nil, err
	}
	return decodeData[protocol.CommandResult](envelope)
}

// ============================================================================
// 日志 API
// ============================================================================

// LogQuery 日志检索条件
type LogQuery struct {
	Lines     int    // 行数，客户端侧封顶 MaxLogLines
	Level     string // 日志级别过滤
	Keyword   string // 关键字过滤
	StartTime int64  // 毫秒时间戳
	EndTime   int64  // 毫秒时间戳
}

// Logs 检索服务器日志尾部
func (c *Client) Logs(q LogQuery) ([]protocol.LogEntry, error) {
	lines := q.Lines
	if lines <= 0 {
		lines = 100
	}
	// 上游请求发出前先钳制
	if lines > MaxLogLines {
		lines = MaxLogLines
	}

	params := url.Values{}
	params.Set("lines", strconv.Itoa(lines))
	if q.Level != "" {
		params.Set("level", q.Level)
	}
	if q.Keyword != "" {
		params.Set("keyword", q.Keyword)
	}
	if q.StartTime > 0 {
		params.Set("startTime", strconv.FormatInt(q.StartTime, 10))
	}
	if q.EndTime > 0 {
		params.Set("endTime", strconv.FormatInt(q.EndTime, 10))
	}

	envelope, err := c.get("/logs", params)
	if err != nil {
		return nil, err
	}
	result, err := decodeData[protocol.LogPage](envelope)
	if err != nil {
		return nil, err
	}
	return result.Logs, nil
}
