package router

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/Edcode-bot/gasmeup-sub000/internal/chain"
	"github.com/Edcode-bot/gasmeup-sub000/internal/handler"
	"github.com/Edcode-bot/gasmeup-sub000/internal/logger"
	"github.com/Edcode-bot/gasmeup-sub000/internal/logic"
	"github.com/Edcode-bot/gasmeup-sub000/internal/monitor"
	"github.com/gin-gonic/gin"
)

// HealthChecker 链连接健康检查
type HealthChecker interface {
	Health(ctx context.Context) map[string]interface{}
}

// IndexReporter 事件索引进度
type IndexReporter interface {
	Progress() []monitor.ChainProgress
}

// Deps 路由依赖
type Deps struct {
	Registry      *chain.Registry
	SupportLogic  *logic.SupportLogic
	StatsLogic    *logic.StatsLogic
	Notifications handler.NotificationLister
	Health        HealthChecker
	Indexer       IndexReporter
	Submit        SubmitPolicy
}

// SubmitPolicy 服务端代付提交接口的开关，零值表示关闭
type SubmitPolicy struct {
	Enabled bool
	Token   string // 非空时要求 Authorization: Bearer <token>
}

func Setup(deps Deps) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(logger.GinLogger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		body := gin.H{
			"status":  "ok",
			"service": "gasmeup-settlement",
		}
		if deps.Health != nil {
			body["chains"] = deps.Health.Health(c.Request.Context())
		}
		if deps.Indexer != nil {
			body["indexer"] = deps.Indexer.Progress()
		}
		c.JSON(200, body)
	})

	// API版本组
	v1 := r.Group("/api/v1")
	{
		chainHandler := handler.NewChainHandler(deps.Registry)
		v1.GET("/chains", chainHandler.ListChains)

		supportHandler := handler.NewSupportHandler(deps.SupportLogic)
		v1.GET("/fees/preview", supportHandler.PreviewFee)

		supports := v1.Group("/supports")
		{
			supports.POST("", submitGuard(deps.Submit), supportHandler.SubmitSupport)
			supports.GET("/:chain_id/:tx_hash/status", supportHandler.GetStatus)
			supports.POST("/:chain_id/:tx_hash/reconcile", supportHandler.Reconcile)
		}

		statsHandler := handler.NewStatsHandler(deps.StatsLogic)

		v1.GET("/builders/:address/supports", supportHandler.ListReceived)
		v1.GET("/builders/:address/stats", statsHandler.GetBuilderStats)
		v1.GET("/supporters/:address/supports", supportHandler.ListSent)
		v1.GET("/projects/:id/supports", supportHandler.ListByProject)

		v1.GET("/stats/chains", statsHandler.GetChainStats)

		if deps.Notifications != nil {
			notificationHandler := handler.NewNotificationHandler(deps.Notifications)
			v1.GET("/users/:address/notifications", notificationHandler.ListNotifications)
		}

		leaderboard := v1.Group("/leaderboard")
		{
			leaderboard.GET("/supporters", statsHandler.GetTopSupporters)
			leaderboard.GET("/builders", statsHandler.GetTopBuilders)
		}
	}

	return r
}

// submitGuard 提交接口使用服务端私钥付款，未开启时一律拒绝
func submitGuard(policy SubmitPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !policy.Enabled {
			handler.ErrorResponse(c, http.StatusForbidden, "server-side submission is disabled")
			c.Abort()
			return
		}
		if policy.Token != "" {
			token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(token), []byte(policy.Token)) != 1 {
				logger.Warn("Rejected support submission from %s: bad api token", c.ClientIP())
				handler.ErrorResponse(c, http.StatusUnauthorized, "invalid api token")
				c.Abort()
				return
			}
		}
		c.Next()
	}
}

// CORS中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
