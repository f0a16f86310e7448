package version

var (
	// Version 版本号，构建时通过 -ldflags 注入
	Version = "dev"

	// BuildTime 构建时间，通过 -ldflags 注入
	BuildTime = ""

	// GitCommit Git 提交哈希，通过 -ldflags 注入
	GitCommit = ""
)

// GetVersion 获取完整版本信息
func GetVersion() string {
	version := "v" + Version
	if BuildTime != "" {
		version += " (built " + BuildTime + ")"
	}
	if len(GitCommit) >= 8 {
		version += " commit " + GitCommit[:8]
	}
	return version
}

// GetShortVersion 获取简短版本号
func GetShortVersion() string {
	return "v" + Version
}
