package cmd

import (
	"context"
	"fmt"
	"log"

	"PadDeck/config"
	"PadDeck/storage"

	"github.com/minio/minio-go/v7"
	"github.com/spf13/cobra"
)

var (
	minioPrefix string
	minioStats  bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO存储桶管理",
	Long:  `查看MinIO存储桶中的素材文件，支持按前缀过滤和统计信息。`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("开始连接MinIO服务器...")

		// 加载配置
		cfg := config.Load()
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		// 初始化MinIO客户端
		if err := storage.InitMinio(cfg); err != nil {
			log.Fatalf("无法连接到MinIO: %v", err)
		}
		fmt.Println("MinIO连接成功！")

		client := storage.GetMinioClient()
		ctx := context.Background()

		var count int
		var totalBytes int64
		for object := range client.ListObjects(ctx, cfg.MinioBucket, minio.ListObjectsOptions{
			Prefix:    minioPrefix,
			Recursive: true,
		}) {
			if object.Err != nil {
				log.Fatalf("列出文件失败: %v", object.Err)
			}
			count++
			totalBytes += object.Size
			if !minioStats {
				fmt.Printf("  %s (%d bytes)\n", object.Key, object.Size)
			}
		}

		if minioStats {
			fmt.Printf("\n存储桶统计: %d 个文件, 共 %d bytes\n", count, totalBytes)
		}

		fmt.Println("\nMinIO操作完成！")
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "按前缀过滤文件")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "只显示存储桶统计信息")

	minioCmd.Example = `  # 列出所有素材文件
  paddeck_server minio

  # 按前缀过滤文件
  paddeck_server minio -p "assets/"

  # 显示存储桶统计信息
  paddeck_server minio -s`
}
