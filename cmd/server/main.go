package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/langchou/tesbridge/internal/api/handlers"
	"github.com/langchou/tesbridge/internal/api/teslemetry"
	"github.com/langchou/tesbridge/internal/config"
	"github.com/langchou/tesbridge/internal/coordinator"
	"github.com/langchou/tesbridge/internal/entity"
	"github.com/langchou/tesbridge/internal/integration"
	"github.com/langchou/tesbridge/internal/notifier"
	"github.com/langchou/tesbridge/internal/repository"
	"github.com/langchou/tesbridge/pkg/ws"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	logger.Info("Starting Tesbridge", zap.String("port", cfg.ServerPort))

	// 创建 context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Token：文件优先于环境变量
	token, err := config.LoadToken(cfg.TokenFile)
	if err != nil {
		logger.Warn("Failed to read token file", zap.String("file", cfg.TokenFile), zap.Error(err))
	}
	if token == "" {
		token = cfg.AccessToken
	}

	client := teslemetry.NewClient(cfg.APIHost, token)

	// 创建 WebSocket Hub
	wsHub := ws.NewHub(logger)

	entry := integration.NewEntry(client, integration.Options{
		Logger:          logger,
		VehicleInterval: cfg.VehicleInterval,
		Sleep: coordinator.SleepConfig{
			ActiveInterval: cfg.VehicleInterval,
			SleepInterval:  cfg.VehicleSleepInterval,
			SleepAfter:     cfg.SleepAfterIdle,
			RearmAfter:     cfg.SleepRearmAfter,
		},
		EnergyLiveInterval: cfg.EnergyLiveInterval,
		EnergyInfoInterval: cfg.EnergyInfoInterval,
		Wake: entity.WakeConfig{
			Step:   cfg.WakeStep,
			Budget: cfg.WakeBudget,
		},
		OnStateChange: wsHub.BroadcastEntryState,
	})

	wsHub.SetInitDataProvider(func() interface{} {
		return entry.Status()
	})
	go wsHub.Run(ctx)

	entry.Subscribe(func(u coordinator.Update) {
		wsHub.BroadcastStateUpdate(notifier.StatePayload{
			Kind:    u.Kind,
			ID:      u.ID,
			Success: u.Success,
			Time:    u.Time,
			Data:    u.Data,
		})
	})

	// 数据库（可选）
	var (
		productRepo *repository.ProductRepository
		stateRepo   *repository.StateRepository
	)
	if cfg.DatabaseURL != "" {
		db, err := repository.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("Failed to connect database", zap.Error(err))
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
		logger.Info("Database migrated successfully")

		productRepo = repository.NewProductRepository(db)
		stateRepo = repository.NewStateRepository(db)

		recorder := repository.NewRecorder(stateRepo, logger)
		entry.Subscribe(recorder.Handle)
		go recorder.Run(ctx)
	}

	// MQTT（可选）
	var mqttClient *notifier.MQTT
	if cfg.MQTTBroker != "" {
		mqttClient, err = notifier.NewMQTT(ctx, notifier.MQTTConfig{
			BrokerURL: cfg.MQTTBroker,
			ClientID:  cfg.MQTTClientID,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			TopicRoot: cfg.MQTTTopicRoot,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to start mqtt client", zap.Error(err))
		}

		n := notifier.New(mqttClient, cfg.MQTTTopicRoot, logger)
		entry.Subscribe(n.Handle)
		go n.Run(ctx)
	}

	syncProducts := func(ctx context.Context) {
		if productRepo == nil {
			return
		}
		if err := productRepo.SyncAll(ctx, entry.Products()); err != nil {
			logger.Error("Failed to save products", zap.Error(err))
		}
	}

	// 加载集成（如果已有 token）
	if client.HasToken() {
		go func() {
			if err := entry.SetupWithRetry(ctx, 0); err != nil {
				logger.Error("Failed to set up integration", zap.Error(err))
				return
			}
			syncProducts(ctx)
		}()
	} else {
		logger.Warn("No access token configured, POST /api/auth/token to authenticate")
	}

	// 创建 HTTP 处理器
	handler := handlers.NewHandler(logger, entry, wsHub, func(token string) error {
		syncProducts(ctx)
		return config.SaveToken(cfg.TokenFile, token)
	})
	if stateRepo != nil {
		handler.SetHistory(stateRepo)
	}

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// 注册路由
	handler.RegisterRoutes(router)

	// 启动 HTTP 服务器
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 停止轮询
	entry.Unload()

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	if mqttClient != nil {
		mqttClient.Close(shutdownCtx)
	}
	if stateRepo != nil {
		if err := stateRepo.CloseOpen(shutdownCtx, time.Now()); err != nil {
			logger.Error("Failed to close open states", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

// initLogger 初始化日志
func initLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, _ := config.Build()
	return logger
}

// corsMiddleware CORS 中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
