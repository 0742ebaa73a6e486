package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PadDeck/cache"
	"PadDeck/config"
	"PadDeck/core/audio"
	"PadDeck/db"
	"PadDeck/ingest"
	"PadDeck/logger"
	"PadDeck/repository"
	"PadDeck/storage"

	"github.com/gorilla/mux"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	})

	// 设置服务器超时
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 初始化 MinIO 客户端
	if err := storage.InitMinio(cfg); err != nil {
		logger.Fatal("初始化 MinIO 失败", logger.ErrorField(err))
	}

	// Connect to the database
	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("连接数据库失败", logger.ErrorField(err))
	}
	defer db.CloseDB()

	// 连接 GORM 并迁移表结构
	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("连接 GORM 失败", logger.ErrorField(err))
	}
	defer db.CloseGormDB()
	if err := db.MigrateSchema(); err != nil {
		logger.Fatal("迁移数据库表结构失败", logger.ErrorField(err))
	}

	// Redis 不可用时降级运行：最近播放层是可选的
	recentAvailable := true
	if err := cache.ConnectRedis(cfg); err != nil {
		logger.Warn("连接 Redis 失败，最近播放层不可用", logger.ErrorField(err))
		recentAvailable = false
	} else {
		defer cache.CloseRedis()
	}

	assetRepo := repository.NewMySQLAssetRepository()
	assetStore := storage.NewMinioAssetStore(assetRepo, cfg.MinioBucket)

	// 音频管线装配
	ctxMgr := audio.NewContextManager(func() (audio.OutputContext, error) {
		return audio.NewOtoContext(cfg.SampleRate, cfg.ChannelCount)
	})
	engine := audio.NewEngine(ctxMgr)

	bufferCache := audio.NewBufferCache(cfg.CacheMaxEntries, cfg.CacheMaxBytes)
	bufferCache.StartSweeper(30 * time.Second)
	defer bufferCache.StopSweeper()

	decoder := audio.NewDecoder(assetStore, audio.DecoderConfig{
		SampleRate:        cfg.SampleRate,
		ChannelCount:      cfg.ChannelCount,
		LoadConcurrency:   cfg.LoadConcurrency,
		DecodeConcurrency: cfg.DecodeConcurrency,
	})

	var recorder audio.PlayRecorder
	var recentSource audio.RecentSource
	if recentAvailable {
		recorder = cache.RecordPlayed
		recentSource = cache.RecentlyPlayed
	}

	controls := audio.NewControls(engine, bufferCache, decoder, audio.NewStrategyRegistry(), recorder, audio.ControlsConfig{
		MaxRetries:           cfg.TriggerMaxRetries,
		EnableSilentFallback: cfg.EnableSilentFallback,
		DefaultFadeSeconds:   cfg.DefaultFadeSeconds,
	})

	preloader := audio.NewPreloader(bufferCache, decoder, recentSource)
	preloader.Start()
	defer preloader.Stop()

	armed := audio.NewArmedQueue(controls)

	// 素材导入目录监听（可选）
	if cfg.IngestWatchDir != "" {
		watcher, err := ingest.NewWatcher(cfg.IngestWatchDir, assetStore, preloader)
		if err != nil {
			logger.Warn("启动素材导入监听失败", logger.ErrorField(err))
		} else {
			watcher.Start()
			defer watcher.Stop()
		}
	}

	apiHandler := NewAPIHandler(controls, engine, preloader, armed, assetStore, assetRepo, cfg)

	// 使用 gorilla/mux 创建路由器
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// 垫位控制
	router.HandleFunc("/api/pads/trigger", apiHandler.TriggerPadHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/pads/stop", apiHandler.StopPadHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/pads/fade", apiHandler.FadeOutPadHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/pads/stop-all", apiHandler.StopAllHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/pads/fade-all", apiHandler.FadeAllOutHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/pads/active", apiHandler.ActivePlaybackHandler).Methods(http.MethodGet)

	// 预热
	router.HandleFunc("/api/preload/page", apiHandler.PreloadPageHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/preload/hover", apiHandler.PreloadHoverHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/preload/recent", apiHandler.PreloadRecentHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/preload/all", apiHandler.PreloadAllHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/preload/stats", apiHandler.PreloadStatsHandler).Methods(http.MethodGet)

	// 武装队列
	router.HandleFunc("/api/armed", apiHandler.ListArmedHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/armed", apiHandler.ArmPadHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/armed", apiHandler.DisarmPadHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/armed/next", apiHandler.PlayNextArmedHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/armed/clear", apiHandler.ClearArmedHandler).Methods(http.MethodPost)

	// 素材库
	router.HandleFunc("/api/assets", apiHandler.ListAssetsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/assets/upload", apiHandler.UploadAssetHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/assets/{id}", apiHandler.DeleteAssetHandler).Methods(http.MethodDelete)

	// 最近播放
	router.HandleFunc("/api/recent", apiHandler.RecentPlayedHandler).Methods(http.MethodGet)

	// 进度流
	router.HandleFunc("/ws/progress", apiHandler.ProgressStreamHandler)

	server.Handler = router

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 在goroutine中启动服务器
	go func() {
		logger.Info("服务启动", logger.String("port", cfg.ServerPort))

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("启动服务失败", logger.ErrorField(err))
		}
	}()

	// 等待中断信号
	<-stop
	logger.Info("正在关闭服务...")

	// 先停掉所有播放再关闭 HTTP
	engine.StopAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("服务强制关闭", logger.ErrorField(err))
	}

	logger.Info("服务已停止")
}
