package protocol

// 数据快照结构，字段名与服务端 camelCase 命名一一对应

// ServerInfo 握手或 REST 接口返回的服务器信息快照
// 每次成功（重）连接后整体替换
type ServerInfo struct {
	Name             string `json:"name"`
	Platform         string `json:"platform"`
	PlatformVersion  string `json:"platformVersion"`
	MinecraftVersion string `json:"minecraftVersion"`
	MOTD             string `json:"motd"`
	MaxPlayers       int    `json:"maxPlayers"`
	OnlineCount      int    `json:"onlineCount"`
	Uptime           int64  `json:"uptime"`
	UptimeFormatted  string `json:"uptimeFormatted"`
}

// PlayerInfo 基本玩家信息
type PlayerInfo struct {
	UUID        string `json:"uuid"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Ping        int    `json:"ping"`
	World       string `json:"world"`
	GameMode    string `json:"gameMode"`
	IsOp        bool   `json:"isOp"`
}

// PlayerDetail 详细玩家信息
type PlayerDetail struct {
	PlayerInfo

	Health              float64        `json:"health"`
	MaxHealth           float64        `json:"maxHealth"`
	FoodLevel           int            `json:"foodLevel"`
	Level               int            `json:"level"`
	Exp                 float64        `json:"exp"`
	TotalExp            int            `json:"totalExp"`
	Location            map[string]any `json:"location,omitempty"`
	IsFlying            bool           `json:"isFlying"`
	OnlineTime          int64          `json:"onlineTime"`
	OnlineTimeFormatted string         `json:"onlineTimeFormatted"`
	FirstPlayed         int64          `json:"firstPlayed"`
	LastPlayed          int64          `json:"lastPlayed"`
}

// TPSInfo 服务器 TPS 快照
type TPSInfo struct {
	TPS1m  float64 `json:"tps1m"`
	TPS5m  float64 `json:"tps5m"`
	TPS15m float64 `json:"tps15m"`
}

// MemoryInfo 服务器内存快照
type MemoryInfo struct {
	Used         int64   `json:"used"`
	Max          int64   `json:"max"`
	Free         int64   `json:"free"`
	UsagePercent float64 `json:"usagePercent"`
}

// PluginsInfo 插件统计
type PluginsInfo struct {
	Total   int `json:"total"`
	Enabled int `json:"enabled"`
}

// WorldInfo 世界信息
type WorldInfo struct {
	Name         string `json:"name"`
	PlayerCount  int    `json:"playerCount"`
	LoadedChunks int    `json:"loadedChunks"`
	Environment  string `json:"environment"`
}

// ServerStatus 服务器运行状态
type ServerStatus struct {
	TPS     TPSInfo     `json:"tps"`
	Memory  MemoryInfo  `json:"memory"`
	Worlds  []WorldInfo `json:"worlds"`
	Plugins PluginsInfo `json:"plugins"`
}

// LogEntry 服务器日志条目
type LogEntry struct {
	Timestamp int64  `json:"timestamp"`
	Level     string `json:"level"`
	Logger    string `json:"logger"`
	Message   string `json:"message"`
}

// CommandResult 命令执行结果
type CommandResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	TaskID  string `json:"taskId,omitempty"`
}

// PlayerPage 分页玩家列表
type PlayerPage struct {
	Players []PlayerInfo `json:"players"`
	Total   int          `json:"total"`
	Page    int          `json:"page"`
	Size    int          `json:"size"`
}

// LogPage 日志查询结果
type LogPage struct {
	Logs  []LogEntry `json:"logs"`
	Total int        `json:"total"`
}

// APIResponse REST 通道的统一响应信封，code == 0 表示成功
type APIResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// Success 响应是否成功
func (r *APIResponse) Success() bool {
	return r.Code == 0
}
