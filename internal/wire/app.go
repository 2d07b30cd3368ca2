package wire

import (
	"context"
	"errors"
	"net/http"
	"time"

	"log/slog"

	appIntent "github.com/shopmind/backend/internal/application/intent"
	"github.com/shopmind/backend/internal/application/retrieval"
	"github.com/shopmind/backend/internal/domain/events"
	"github.com/shopmind/backend/internal/infrastructure/config"
	applog "github.com/shopmind/backend/internal/infrastructure/log"
	"github.com/shopmind/backend/internal/infrastructure/websocket"
	"github.com/shopmind/backend/internal/interfaces"
)

// startupTimeout 启动阶段建集合与加载模型的超时
const startupTimeout = 2 * time.Minute

// App 应用主结构，组合所有服务
type App struct {
	HTTPServer *interfaces.HTTPServer
	MCPServer  *interfaces.MCPServer
	wsHub      *websocket.Hub
	eventBus   events.EventBus
	indexer    *retrieval.Indexer
	classifier *appIntent.Classifier
	mlConfig   *config.MLConfig
	logger     *slog.Logger

	unsubscribers []func()
}

// NewApp 创建应用实例
func NewApp(
	httpServer *interfaces.HTTPServer,
	mcpServer *interfaces.MCPServer,
	wsHub *websocket.Hub,
	eventBus events.EventBus,
	indexer *retrieval.Indexer,
	classifier *appIntent.Classifier,
	mlConfig *config.MLConfig,
) *App {
	return &App{
		HTTPServer: httpServer,
		MCPServer:  mcpServer,
		wsHub:      wsHub,
		eventBus:   eventBus,
		indexer:    indexer,
		classifier: classifier,
		mlConfig:   mlConfig,
		logger:     applog.NewModuleLogger("app", "main"),
	}
}

// Start 启动所有服务
func (a *App) Start() error {
	a.logger.Info("Starting ShopMind backend application")

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	if err := a.indexer.EnsureCollections(ctx); err != nil {
		return err
	}

	// 启动 WebSocket Hub 并注册事件订阅者
	a.wsHub.Start()
	a.setupEventSubscribers()

	// 模型缺失时会先训练，放到后台，未就绪前分类器返回兜底先验
	go func() {
		if err := a.classifier.WarmStart(context.Background()); err != nil {
			a.logger.Error("Failed to warm start intent classifier",
				"error", err,
			)
		}
	}()
	if a.mlConfig != nil && a.mlConfig.WatchArtifacts {
		if err := a.classifier.StartWatching(); err != nil {
			a.logger.Warn("Failed to watch model artifacts",
				"error", err,
			)
		}
	}

	// 启动 HTTP 服务器（goroutine）
	go func() {
		if err := a.HTTPServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Failed to start HTTP server",
				"error", err,
			)
		}
	}()

	// MCP 服务器通过 HTTP Handler 提供服务，已在 HTTP 服务器中注册 /mcp/sse 端点
	a.logger.Info("ShopMind backend application started successfully")
	return nil
}

// setupEventSubscribers 注册事件订阅者
func (a *App) setupEventSubscribers() {
	if a.eventBus == nil {
		return
	}

	// 消息与关闭事件推送给会话订阅者
	a.unsubscribers = append(a.unsubscribers, a.eventBus.SubscribeMultiple(
		[]events.EventType{
			events.ChatMessageCreated,
			events.ChatClosed,
		},
		a.wsHub,
	))
	a.logger.Info("WebSocket hub subscribed to chat events")

	// 实体变更与会话关闭同步到向量索引
	a.unsubscribers = append(a.unsubscribers, a.indexer.Subscribe(a.eventBus))
	a.logger.Info("Indexer subscribed to entity events")
}

// Stop 停止所有服务
func (a *App) Stop() error {
	a.logger.Info("Stopping ShopMind backend application")

	var firstErr error
	if err := a.HTTPServer.Stop(); err != nil {
		a.logger.Error("Failed to stop HTTP server",
			"error", err,
		)
		firstErr = err
	}

	a.classifier.Close()

	for _, unsubscribe := range a.unsubscribers {
		unsubscribe()
	}
	// 关闭事件总线，等待已发布事件处理完成
	if a.eventBus != nil {
		a.eventBus.Close()
		a.logger.Info("Event bus closed")
	}

	a.wsHub.Stop()

	a.logger.Info("ShopMind backend application stopped")
	return firstErr
}
