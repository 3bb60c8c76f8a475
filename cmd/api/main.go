// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/yourusername/kumi-board/internal/auth"
	"github.com/yourusername/kumi-board/internal/circular"
	"github.com/yourusername/kumi-board/internal/config"
	"github.com/yourusername/kumi-board/internal/jobs"
	"github.com/yourusername/kumi-board/internal/model"
	"github.com/yourusername/kumi-board/internal/store"
	"github.com/yourusername/kumi-board/internal/web"
)

func main() {
	// 設定の読み込み（JWT_SECRET が無ければここで起動失敗）
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// データベースの初期化（失敗した場合はサーバーを起動しない）
	db, err := store.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// 配布通知ワーカーの初期化（Redis未設定の場合は通知なしで起動）
	var notifier circular.Notifier
	if cfg.QueueRedisURL != "" {
		opt, err := redis.ParseURL(cfg.QueueRedisURL)
		if err != nil {
			log.Fatalf("Failed to parse QUEUE_REDIS_URL: %v", err)
		}
		rdb := redis.NewClient(opt)
		jobStore := jobs.NewStore(rdb, 24*time.Hour)
		manager, err := jobs.NewManager(cfg.QueueRedisURL, db, jobStore, log.New(os.Stderr, "jobs: ", log.LstdFlags))
		if err != nil {
			log.Fatalf("Failed to initialize job manager: %v", err)
		}
		manager.StartWorkers()
		notifier = manager
	} else {
		log.Printf("QUEUE_REDIS_URL is not set; running without delivery workers")
	}

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()
	router.SetHTMLTemplate(web.Templates())

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowOrigins = origins
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	// ルーティングの設定
	setupRoutes(router, cfg, db, notifier)

	// サーバーの起動
	addr := ":" + cfg.Port
	log.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "kumi-board-api",
		"version": "0.1.0",
	})
}

// setupRoutes は認証と回覧板まわりの配線を行います。
func setupRoutes(router *gin.Engine, cfg *config.Config, db *store.Store, notifier circular.Notifier) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	tokens := auth.NewTokenService(cfg.JWTSecret)
	authManager := auth.NewManager(tokens, db)
	circularHandler := circular.NewHandler(db, notifier)

	authRoutes := router.Group("/auth")
	{
		authRoutes.GET("/login", authManager.ShowLogin)
		authRoutes.POST("/login", authManager.Login)
		authRoutes.GET("/register", authManager.ShowRegister)
		authRoutes.POST("/register", authManager.Register)
		authRoutes.POST("/logout", authManager.Logout)
	}

	// ログイン必須のページ
	protected := router.Group("")
	protected.Use(authManager.RequireLogin())
	{
		protected.GET("/", circularHandler.Home)
		protected.GET("/circulars/:id", circularHandler.Show)
		protected.POST("/circulars/:id/read", circularHandler.MarkRead)

		// 回覧板の作成は管理者と組長のみ
		protected.POST("/circulars",
			authManager.RequireRole(model.RoleAdmin, model.RoleLeader),
			circularHandler.Create,
		)

		// 組の管理は管理者のみ
		admin := protected.Group("/groups")
		admin.Use(authManager.RequireRole(model.RoleAdmin))
		{
			admin.GET("", circularHandler.ListGroups)
			admin.POST("", circularHandler.CreateGroup)
		}
	}
}
