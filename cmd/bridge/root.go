// mcbridge 命令行入口，加载配置后托管所有服务器连接
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"

	"mcbridge-core/internal/bridge"
	"mcbridge-core/internal/config"
	"mcbridge-core/internal/core/dispose"
	"mcbridge-core/internal/core/log"
	"mcbridge-core/internal/protocol"
	"mcbridge-core/internal/registry"
	"mcbridge-core/internal/version"
)

// 全局标志
var (
	configFile string
	logLevel   string
	noColor    bool
)

// rootCmd 代表根命令，直接运行即启动桥接器
var rootCmd = &cobra.Command{
	Use:   "mcbridge",
	Short: "Minecraft chat bridge core",
	Long: `mcbridge maintains WebSocket and REST connections to Minecraft
bridge plugin servers, forwarding in-game chat and player events
to external sessions and relaying messages and commands back.

Quick Start:
  mcbridge -c config.yaml       Start with the given configuration
  mcbridge version              Show version information`,
	Version: version.GetVersion(),
	Run:     runBridge,
}

// Execute 执行根命令
func Execute() {
	// 全局 panic recovery
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("FATAL: main goroutine panic recovered: %v", r)
			fmt.Fprintf(os.Stderr, "\nPANIC: %v\n", r)
			fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", string(debug.Stack()))
			os.Exit(2)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug/info/warn/error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(versionCmd)
}

func runBridge(cmd *cobra.Command, args []string) {
	output := NewOutput(noColor)

	cfg, err := config.Load(configFile)
	if err != nil {
		output.Error("Failed to load config: %v", err)
		os.Exit(1)
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logFile, err := log.Configure(log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		output.Error("Failed to configure logging: %v", err)
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	// dispose 包通过函数注入使用主日志系统
	dispose.SetLogger(func(level, format string, args ...interface{}) {
		switch level {
		case "debug":
			log.Debugf(format, args...)
		case "warn":
			log.Warnf(format, args...)
		case "error":
			log.Errorf(format, args...)
		default:
			log.Infof(format, args...)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := registry.New(ctx)
	forwarder := bridge.NewForwarder(bridge.SinkFunc(func(session, text string) error {
		// 宿主平台未接入时退化为日志投递
		log.Infof("[forward -> %s] %s", session, text)
		return nil
	}))

	reg.OnMessage(func(serverID string, msg *protocol.Message) {
		forwarder.HandleMessage(serverID, msg)
	})
	reg.OnConnect(func(serverID string, info *protocol.ServerInfo) {
		output.Success("Connected to server %s (%s %s)", serverID, info.Platform, info.MinecraftVersion)
	})
	reg.OnDisconnect(func(serverID, reason string) {
		output.Warning("Disconnected from server %s: %s", serverID, reason)
	})

	for _, sc := range cfg.Servers {
		if _, err := reg.Add(serverConfig(sc)); err != nil {
			output.Error("Failed to register server %s: %v", sc.ServerID, err)
			continue
		}
		forwarder.Register(sc.ServerID, bridge.ForwardingConfig{
			ForwardChat:      sc.Message.ForwardChat,
			ChatFormat:       sc.Message.ForwardChatFormat,
			ForwardJoinLeave: sc.Message.ForwardJoinLeave,
			TargetSessions:   sc.Message.TargetSessions,
		})
	}

	output.Header(fmt.Sprintf("mcbridge %s", version.GetShortVersion()))
	output.Info("Managing %d server(s), press Ctrl+C to stop", len(cfg.Servers))
	reg.StartAll()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	output.Info("Received %s, shutting down...", sig)
	reg.StopAll()
	reg.Close()
	output.Success("Shutdown complete")
}

// serverConfig 把 YAML 配置映射为注册表配置
func serverConfig(sc config.ServerConfig) registry.ServerConfig {
	out := registry.ServerConfig{
		ID:      sc.ServerID,
		Host:    sc.Host,
		Port:    sc.Port,
		Token:   sc.Token,
		Enabled: sc.Enabled,
	}
	out.Transport.HeartbeatInterval = sc.HeartbeatInterval
	out.Transport.ConnectTimeout = sc.ConnectTimeout
	out.Transport.Reconnect.InitialDelay = sc.Reconnect.InitialDelay
	out.Transport.Reconnect.MaxDelay = sc.Reconnect.MaxDelay
	out.Transport.Reconnect.MaxAttempts = sc.Reconnect.MaxAttempts
	return out
}
