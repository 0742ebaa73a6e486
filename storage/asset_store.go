package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"PadDeck/logger"
	"PadDeck/model"
	"PadDeck/repository"

	"github.com/minio/minio-go/v7"
)

// MinioAssetStore 组合 MySQL 元数据与 MinIO 对象存储，
// 对播放核心呈现按 ID 取素材的存储协作方接口
type MinioAssetStore struct {
	repo   repository.AssetRepository
	bucket string
}

// NewMinioAssetStore 创建素材存储
func NewMinioAssetStore(repo repository.AssetRepository, bucket string) *MinioAssetStore {
	return &MinioAssetStore{
		repo:   repo,
		bucket: bucket,
	}
}

// FetchAsset 获取素材的元数据和原始字节
// 素材不存在时返回 (nil, nil)，调用方据此区分"缺失"与"读取失败"
func (s *MinioAssetStore) FetchAsset(ctx context.Context, assetID int64) (*model.AssetData, error) {
	asset, err := s.repo.GetAssetByID(assetID)
	if err != nil {
		return nil, fmt.Errorf("查询素材元数据失败: %w", err)
	}
	if asset == nil {
		return nil, nil
	}

	client := GetMinioClient()
	if client == nil {
		return nil, fmt.Errorf("MinIO客户端未初始化")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	object, err := client.GetObject(ctx, s.bucket, asset.ObjectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取素材对象失败: %w", err)
	}
	defer object.Close()

	raw, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("读取素材对象失败: %w", err)
	}

	logger.Debug("素材读取成功",
		logger.Int64("assetId", assetID),
		logger.Int("bytes", len(raw)))

	return &model.AssetData{
		ID:          asset.ID,
		RawBytes:    raw,
		DisplayName: asset.DisplayName,
		MimeType:    asset.MimeType,
	}, nil
}

// UploadAsset 上传素材字节并登记元数据，返回新素材 ID
func (s *MinioAssetStore) UploadAsset(ctx context.Context, displayName, mimeType string, data []byte) (int64, error) {
	client := GetMinioClient()
	if client == nil {
		return 0, fmt.Errorf("MinIO客户端未初始化")
	}

	objectKey := fmt.Sprintf("assets/%d_%s", time.Now().UnixNano(), displayName)

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	_, err := client.PutObject(ctx, s.bucket, objectKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: mimeType,
	})
	if err != nil {
		return 0, fmt.Errorf("上传素材对象失败: %w", err)
	}

	id, err := s.repo.CreateAsset(&model.AudioAsset{
		DisplayName: displayName,
		MimeType:    mimeType,
		ObjectKey:   objectKey,
		SizeBytes:   int64(len(data)),
	})
	if err != nil {
		return 0, fmt.Errorf("登记素材元数据失败: %w", err)
	}

	logger.Info("素材上传完成",
		logger.Int64("assetId", id),
		logger.String("displayName", displayName),
		logger.Int("bytes", len(data)))

	return id, nil
}

// ListAssetIDs 列出全部素材 ID，供全库后台预热使用
func (s *MinioAssetStore) ListAssetIDs(ctx context.Context) ([]int64, error) {
	assets, err := s.repo.ListAssets()
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(assets))
	for _, a := range assets {
		ids = append(ids, a.ID)
	}
	return ids, nil
}
