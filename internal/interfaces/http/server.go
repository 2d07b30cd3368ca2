package http

import (
	"context"
	"net/http"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/shopmind/backend/internal/infrastructure/config"
	"github.com/shopmind/backend/internal/infrastructure/log"
	"github.com/shopmind/backend/internal/interfaces/http/handler"
	"github.com/shopmind/backend/internal/interfaces/http/middleware"
	"github.com/shopmind/backend/internal/interfaces/mcp"

	_ "github.com/shopmind/backend/docs" // Swagger docs
)

// HTTPServer HTTP 服务器
type HTTPServer struct {
	router   *gin.Engine
	httpPort string
	server   *http.Server
	logger   *slog.Logger
}

// NewServer 创建 HTTP 服务器
func NewServer(
	chatHandler *handler.ChatHandler,
	searchHandler *handler.SearchHandler,
	mcpServer *mcp.MCPServer,
	cfg *config.ServerConfig,
) *HTTPServer {
	router := gin.Default()
	router.Use(middleware.RequestID(), middleware.EnsureUTF8Body())

	logger := log.NewModuleLogger("http", "server")

	// 注册路由
	api := router.Group("/api/v1")
	{
		// 会话相关路由
		chats := api.Group("/chats")
		{
			chats.POST("", chatHandler.Create)
			chats.GET("", chatHandler.List)
			chats.POST("/:id/messages", chatHandler.SubmitTurn)
			chats.GET("/:id/messages", chatHandler.History)
			chats.POST("/:id/close", chatHandler.Close)
			chats.POST("/:id/read", chatHandler.MarkRead)
			chats.DELETE("/:id", chatHandler.Delete)
			chats.GET("/:id/ws", chatHandler.Subscribe)
		}

		// 检索相关路由
		api.POST("/search", searchHandler.Search)
		api.GET("/products/:id/similar", searchHandler.Similar)
		api.POST("/admin/reindex", searchHandler.Reindex)
	}

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Swagger UI
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// MCP SSE 端点
	if mcpServer != nil {
		router.Any("/mcp/sse", gin.WrapH(mcpServer.GetHandler()))
	}

	port := ":19980"
	if cfg != nil && cfg.HTTPPort != "" {
		port = cfg.HTTPPort
	}
	return &HTTPServer{
		router:   router,
		httpPort: port,
		logger:   logger,
	}
}

// Handler 路由（测试用）
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Start 启动服务器，阻塞到关闭
func (s *HTTPServer) Start() error {
	s.server = &http.Server{
		Addr:              s.httpPort,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("HTTP server starting",
		"port", s.httpPort,
	)

	return s.server.ListenAndServe()
}

// Shutdown 优雅关闭
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Stop 停止服务器
func (s *HTTPServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}
