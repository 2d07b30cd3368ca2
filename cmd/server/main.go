// @title ShopMind API
// @version 0.1.0
// @description 多代理电商导购助手 API 服务
// @host localhost:19980
// @BasePath /api/v1
// @schemes http
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shopmind/backend/internal/infrastructure/config"
	applog "github.com/shopmind/backend/internal/infrastructure/log"
	"github.com/shopmind/backend/internal/infrastructure/singleton"
	"github.com/shopmind/backend/internal/wire"
)

// 构建信息（通过 ldflags 注入）
var (
	version = "dev"
	commit  = "none"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:     "shopmind",
		Short:   "Multi-agent shopping assistant backend",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// 初始化日志系统
			applog.Init(nil)
			if configPath != "" {
				return os.Setenv(config.EnvConfigFile, configPath)
			}
			return nil
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (overrides "+config.EnvConfigFile+")")

	serveCmd := newServeCmd()
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newReindexCmd())
	rootCmd.AddCommand(newTrainIntentCmd())
	rootCmd.AddCommand(newTrainRecommendCmd())

	// 不带子命令时直接启动服务
	rootCmd.RunE = serveCmd.RunE

	if err := rootCmd.Execute(); err != nil {
		_ = applog.Close()
		os.Exit(1)
	}
	_ = applog.Close()
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, WebSocket and MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	logger := applog.GetLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		return err
	}

	// 单例检查：端口已被健康实例占用时直接退出
	listener, err := singleton.CheckAndLock(cfg.Server.HTTPPort, "/health")
	if errors.Is(err, singleton.ErrAlreadyRunning) {
		logger.Info("Another instance is already running, exiting", "port", cfg.Server.HTTPPort)
		return nil
	}
	if err != nil {
		logger.Error("Failed to acquire server port", "error", err)
		return err
	}
	// 关闭临时 listener，实际监听由 HTTP 服务器负责
	_ = listener.Close()

	// Wire 自动生成的初始化函数
	app, cleanup, err := wire.InitializeAll(cfg)
	if err != nil {
		logger.Error("Failed to initialize application", "error", err)
		return err
	}
	defer cleanup()

	if err := app.Start(); err != nil {
		logger.Error("Failed to start application", "error", err)
		return err
	}

	// 优雅关闭
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down application...")
	if err := app.Stop(); err != nil {
		logger.Error("Error during application shutdown", "error", err)
	}
	logger.Info("Application stopped")
	return nil
}
