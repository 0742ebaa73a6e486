package cmd

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"PadDeck/config"
	"PadDeck/core/audio"
	"PadDeck/db"
	"PadDeck/ingest"
	"PadDeck/logger"
	"PadDeck/repository"
	"PadDeck/storage"

	"github.com/spf13/cobra"
)

var ingestDir string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "素材导入目录监听",
	Long:  `独立运行导入目录监听器：把拖入目录的音频文件上传到素材库，不启动HTTP服务。`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		logger.InitLogger(logger.Config{
			Level:      logger.LogLevel(cfg.LogLevel),
			OutputPath: cfg.LogPath,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		})

		dir := ingestDir
		if dir == "" {
			dir = cfg.IngestWatchDir
		}
		if dir == "" {
			log.Fatal("未指定导入目录，使用 --dir 或 INGEST_WATCH_DIR")
		}

		if err := storage.InitMinio(cfg); err != nil {
			log.Fatalf("初始化MinIO失败: %v", err)
		}
		if err := db.ConnectDB(cfg); err != nil {
			log.Fatalf("连接数据库失败: %v", err)
		}
		defer db.CloseDB()

		assetRepo := repository.NewMySQLAssetRepository()
		assetStore := storage.NewMinioAssetStore(assetRepo, cfg.MinioBucket)

		// 导入模式不预热缓存，给预热器一个空消费端即可
		bufferCache := audio.NewBufferCache(cfg.CacheMaxEntries, cfg.CacheMaxBytes)
		decoder := audio.NewDecoder(assetStore, audio.DecoderConfig{
			SampleRate:        cfg.SampleRate,
			ChannelCount:      cfg.ChannelCount,
			LoadConcurrency:   cfg.LoadConcurrency,
			DecodeConcurrency: cfg.DecodeConcurrency,
		})
		preloader := audio.NewPreloader(bufferCache, decoder, nil)

		watcher, err := ingest.NewWatcher(dir, assetStore, preloader)
		if err != nil {
			log.Fatalf("启动导入监听失败: %v", err)
		}
		watcher.Start()
		defer watcher.Stop()

		fmt.Printf("正在监听导入目录: %s （Ctrl+C 退出）\n", dir)

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop

		fmt.Println("导入监听已退出")
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVarP(&ingestDir, "dir", "d", "", "导入目录路径，默认取 INGEST_WATCH_DIR")
}
