package server

import (
	"context"
	"net/http"
	"time"

	"live-butler/app/config"
	"live-butler/app/database"
	"live-butler/app/filewatcher"
	"live-butler/app/handler"
	"live-butler/app/logger"
	"live-butler/app/middleware"
	"live-butler/app/model"
	"live-butler/app/service"
	"live-butler/app/utils/aihelper"
	"live-butler/app/utils/bilihelper"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
)

// Server 表示 HTTP 服务器及其背后的后台服务
type Server struct {
	Config *config.Config
	Logger *logger.Logger
	gin    *gin.Engine
	http   *http.Server

	manager *service.ServiceManager
	webhook *service.WebhookService
	replies *service.DelayedReplyService
	polling *service.DynamicPollingService
	cron    *cron.Cron
}

// New 创建一个新的 Server 实例并完成各服务的组装
func New(cfg *config.Config, log *logger.Logger) *Server {
	router := gin.Default()

	s := &Server{
		gin: router,
		http: &http.Server{
			Addr:    ":" + cfg.Server.Port,
			Handler: router,
		},
		Config: cfg,
		Logger: log,
	}

	s.setupServices()
	s.setupRoutes()
	s.setupCron()

	return s
}

// setupServices 组装流水线各协作方并注册到服务管理器
func (s *Server) setupServices() {
	cfg := s.Config
	log := s.Logger
	db := database.GetDB()

	biliClient := bilihelper.New(&cfg.Bilibili)
	aiClient := aihelper.New(cfg, log, biliClient)

	audioSvc := service.NewAudioService(cfg, log)
	s.manager = service.NewServiceManager(log, audioSvc, service.NewAIAdapter(aiClient), cfg.IsAudioOnlyRoom)

	dispatcher := service.NewReplyDispatcher(cfg, log, biliClient)
	s.replies = service.NewDelayedReplyService(cfg, log, db, dispatcher.Execute)

	s.webhook = service.NewWebhookService(cfg, log, db)
	recordingHandler := service.NewRecordingHandler(cfg, log, s.manager, s.replies)
	s.webhook.RegisterHandler("bililive-recorder", recordingHandler)
	s.webhook.RegisterHandler("blrec", recordingHandler)
	s.webhook.RegisterHandler("filewatcher", recordingHandler)

	callback := service.NewDynamicReplyCallback(cfg, log, s.replies)
	s.polling = service.NewDynamicPollingService(cfg, log, service.NewBiliFeedAdapter(biliClient), callback)
	for roomID, room := range cfg.Rooms {
		if room.AnchorUID == "" {
			continue
		}
		if err := s.polling.AddAnchor(room.AnchorUID, service.AnchorConfig{RoomID: roomID}); err != nil {
			log.Warnf("添加主播到动态轮询失败: uid=%s, 错误: %v", room.AnchorUID, err)
		}
	}

	watcher := filewatcher.New(cfg, log, s.webhook)

	// 注册顺序即启动顺序，webhook 依赖的服务先起
	s.manager.Register(audioSvc)
	s.manager.Register(s.replies)
	s.manager.Register(s.webhook)
	s.manager.Register(watcher)
	if cfg.Dynamic.Enabled {
		s.manager.Register(s.polling)
	}
}

// setupRoutes 设置API路由
func (s *Server) setupRoutes() {
	authHandler := handler.NewAuthHandler(s.Config)
	webhookHandler := handler.NewWebhookHandler(s.Config, s.Logger, s.webhook)
	manageHandler := handler.NewManageHandler(s.Config, s.Logger, s.manager, s.webhook, s.replies, s.polling)

	// 录制工具回调，不走 JWT（回调方无法携带令牌）
	webhook := s.gin.Group("/webhook")
	{
		webhook.POST("/bililive-recorder", webhookHandler.HandleRecorder)
		webhook.POST("/blrec", webhookHandler.HandleBlrec)
	}

	api := s.gin.Group("/api")

	// 健康检查不需要认证
	api.GET("/health", manageHandler.GetHealth)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.RefreshToken)
	}

	// 需要JWT验证的管理路由
	protected := api.Group("/")
	protected.Use(middleware.JWTAuth(s.Config))
	{
		protected.GET("/me", authHandler.Me)

		services := protected.Group("/services")
		{
			services.GET("/", manageHandler.ListServices)
			services.POST("/:name/start", manageHandler.StartService)
			services.POST("/:name/stop", manageHandler.StopService)
			services.POST("/:name/restart", manageHandler.RestartService)
		}

		tasks := protected.Group("/tasks")
		{
			tasks.GET("/", manageHandler.ListTasks)
			tasks.DELETE("/:id", manageHandler.CancelTask)
		}

		webhookAdmin := protected.Group("/webhook")
		{
			webhookAdmin.GET("/status", manageHandler.WebhookStatus)
			webhookAdmin.GET("/history", manageHandler.WebhookHistory)
			webhookAdmin.POST("/reprocess", manageHandler.Reprocess)
		}

		anchors := protected.Group("/anchors")
		{
			anchors.GET("/", manageHandler.ListAnchors)
			anchors.POST("/", manageHandler.AddAnchor)
			anchors.DELETE("/:uid", manageHandler.RemoveAnchor)
			anchors.POST("/:uid/live-start", manageHandler.SetLiveStartTime)
		}
	}
}

// setupCron 注册周期清理任务
func (s *Server) setupCron() {
	s.cron = cron.New()

	// 每天清理 7 天前的 webhook 处理记录
	s.cron.AddFunc("@daily", func() {
		db := database.GetDB()
		if db == nil {
			return
		}
		cutoff := time.Now().AddDate(0, 0, -7)
		result := db.Where("created_at < ?", cutoff).Delete(&model.WebhookRecord{})
		if result.Error != nil {
			s.Logger.Errorf("清理历史记录失败: %v", result.Error)
			return
		}
		if result.RowsAffected > 0 {
			s.Logger.Infof("已清理 %d 条历史记录", result.RowsAffected)
		}
	})
}

// Start 启动后台服务与 HTTP 服务器
func (s *Server) Start() error {
	if err := s.manager.StartAll(); err != nil {
		return err
	}
	s.cron.Start()

	s.Logger.Infof("在端口 %s 启动服务器", s.http.Addr)
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.cron.Stop()

	// 停止后台服务，延迟任务会等待在途执行完成
	s.manager.StopAll()

	// 关闭数据库连接
	if err := database.Close(); err != nil {
		s.Logger.Errorf("关闭数据库连接失败: %v", err)
	}
	return s.http.Shutdown(ctx)
}
