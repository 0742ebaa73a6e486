package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"PadDeck/logger"

	"github.com/redis/go-redis/v9"
)

const (
	recentKeyPrefix  = "recent:"
	recentMaxEntries = 50
	recentTTL        = 24 * time.Hour
)

// RecordPlayed 记录一次播放，供预加载的"最近播放"档使用
// 列表去重后头插，超出上限自动裁剪
func RecordPlayed(ctx context.Context, profileID string, assetID int64) error {
	if RedisClient == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := recentKeyPrefix + profileID
	value := strconv.FormatInt(assetID, 10)

	pipe := RedisClient.TxPipeline()
	pipe.LRem(ctx, key, 0, value)
	pipe.LPush(ctx, key, value)
	pipe.LTrim(ctx, key, 0, recentMaxEntries-1)
	pipe.Expire(ctx, key, recentTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn("记录最近播放失败",
			logger.String("profileId", profileID),
			logger.Int64("assetId", assetID),
			logger.ErrorField(err))
		return err
	}

	return nil
}

// RecentlyPlayed 获取最近播放的素材 ID，最新在前
// Redis 不可用或读取失败时返回空列表，预加载按无最近记录处理
func RecentlyPlayed(ctx context.Context, profileID string, limit int) ([]int64, error) {
	if RedisClient == nil {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if limit <= 0 || limit > recentMaxEntries {
		limit = recentMaxEntries
	}

	key := recentKeyPrefix + profileID

	// 最多重试2次
	maxRetries := 2
	retryDelay := 100 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		values, err := RedisClient.LRange(ctx, key, 0, int64(limit-1)).Result()
		if err != nil {
			if err == redis.Nil {
				return nil, nil
			}

			if attempt < maxRetries-1 {
				logger.Warn("获取最近播放失败，准备重试",
					logger.String("profileId", profileID),
					logger.Int("attempt", attempt+1),
					logger.ErrorField(err))

				time.Sleep(retryDelay)
				retryDelay *= 2 // 指数退避
				continue
			}

			logger.Error("获取最近播放最终失败",
				logger.String("profileId", profileID),
				logger.Int("totalAttempts", maxRetries),
				logger.ErrorField(err))
			return nil, nil
		}

		ids := make([]int64, 0, len(values))
		for _, v := range values {
			id, parseErr := strconv.ParseInt(v, 10, 64)
			if parseErr != nil {
				continue
			}
			ids = append(ids, id)
		}
		return ids, nil
	}

	return nil, nil
}

// ClearRecentlyPlayed 清空某配置档的最近播放记录
func ClearRecentlyPlayed(ctx context.Context, profileID string) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return RedisClient.Del(ctx, recentKeyPrefix+profileID).Err()
}
