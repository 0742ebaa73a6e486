package audio

import (
	"sync"
	"time"

	"PadDeck/logger"
)

// CacheState 区分缓存查询的三种结果
type CacheState int

const (
	CacheMiss    CacheState = iota // 不存在
	CacheHit                       // 命中解码成功的缓冲
	CacheFailure                   // 命中失败标记，之前的解码已确认失败
)

// 保护窗口：最近访问过的条目在非紧急淘汰时不被清除
const recentAccessProtection = 30 * time.Second

// 失败标记的记账开销估算
const failureMarkerSize = 64

// 周期清扫：使用量越过字节上限的这个比例就开始回收
const sweepHighWatermark = 0.85

// 周期清扫的回收目标比例
const sweepLowWatermark = 0.70

type cacheEntry struct {
	assetID    int64
	buffer     *Buffer // nil 表示解码失败标记
	lastAccess time.Time
	size       int64
}

// BufferCache 按素材 ID 缓存解码后的音频缓冲
// 条目数和估算字节数双上限，插入后恒不超限；
// 触发路径和预加载路径都通过同一套 Get/Put/Invalidate 访问
type BufferCache struct {
	mu         sync.Mutex
	entries    map[int64]*cacheEntry
	maxEntries int
	maxBytes   int64
	totalBytes int64

	now func() time.Time

	sweepStop chan struct{}
	sweepWG   sync.WaitGroup
}

// NewBufferCache 创建缓冲缓存
func NewBufferCache(maxEntries int, maxBytes int64) *BufferCache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	if maxBytes < 1 {
		maxBytes = 1
	}
	return &BufferCache{
		entries:    make(map[int64]*cacheEntry),
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		now:        time.Now,
	}
}

// Get 查询缓存，命中时刷新访问时间
// 永不报错：Miss / Hit / Failure 三种状态始终可区分
func (c *BufferCache) Get(assetID int64) (*Buffer, CacheState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[assetID]
	if !ok {
		return nil, CacheMiss
	}

	entry.lastAccess = c.now()
	if entry.buffer == nil {
		return nil, CacheFailure
	}
	return entry.buffer, CacheHit
}

// Put 插入缓冲，buffer 为 nil 时记录失败标记，
// 避免对已知损坏的素材反复解码
func (c *BufferCache) Put(assetID int64, buffer *Buffer) {
	size := int64(failureMarkerSize)
	if buffer != nil {
		size = buffer.ByteSize()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[assetID]; ok {
		c.totalBytes -= old.size
		delete(c.entries, assetID)
	}

	// 单条缓冲超过字节上限时放弃缓存，否则插入后必然超限
	if size > c.maxBytes {
		logger.Warn("缓冲超过缓存字节上限，拒绝缓存",
			logger.Int64("assetId", assetID),
			logger.Int64("bytes", size),
			logger.Int64("maxBytes", c.maxBytes))
		return
	}

	// 插入前先腾出空间，保证插入后仍在上限内
	c.evictForLocked(size)

	c.entries[assetID] = &cacheEntry{
		assetID:    assetID,
		buffer:     buffer,
		lastAccess: c.now(),
		size:       size,
	}
	c.totalBytes += size

	logger.Debug("缓冲已入缓存",
		logger.Int64("assetId", assetID),
		logger.Bool("failureMarker", buffer == nil),
		logger.Int64("bytes", size),
		logger.Int("entries", len(c.entries)))
}

// Invalidate 强制移除条目，用于失败后允许重新解码
func (c *BufferCache) Invalidate(assetID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[assetID]; ok {
		c.totalBytes -= entry.size
		delete(c.entries, assetID)
	}
}

// Len 当前条目数
func (c *BufferCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// TotalBytes 当前估算占用
func (c *BufferCache) TotalBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalBytes
}

// evictForLocked 为新条目腾出空间，调用方需持锁
// 淘汰顺序：失败标记优先，然后按最久未访问；
// 30 秒内访问过的条目受保护，除非硬上限仍然超出（紧急淘汰）
func (c *BufferCache) evictForLocked(incoming int64) {
	if !c.overLimitLocked(incoming) {
		return
	}

	// 第一轮：清掉所有失败标记
	for id, entry := range c.entries {
		if entry.buffer == nil {
			c.totalBytes -= entry.size
			delete(c.entries, id)
		}
	}

	// 第二轮：最久未访问优先，跳过保护窗口内的条目
	c.evictOldestLocked(incoming, true)

	// 紧急淘汰：仍然超限时不再保护
	if c.overLimitLocked(incoming) {
		c.evictOldestLocked(incoming, false)
	}
}

func (c *BufferCache) overLimitLocked(incoming int64) bool {
	return len(c.entries)+1 > c.maxEntries || c.totalBytes+incoming > c.maxBytes
}

func (c *BufferCache) evictOldestLocked(incoming int64, protectRecent bool) {
	cutoff := c.now().Add(-recentAccessProtection)

	for c.overLimitLocked(incoming) {
		var oldest *cacheEntry
		for _, entry := range c.entries {
			if protectRecent && entry.lastAccess.After(cutoff) {
				continue
			}
			if oldest == nil || entry.lastAccess.Before(oldest.lastAccess) {
				oldest = entry
			}
		}
		if oldest == nil {
			return
		}

		c.totalBytes -= oldest.size
		delete(c.entries, oldest.assetID)

		logger.Debug("缓存条目已淘汰",
			logger.Int64("assetId", oldest.assetID),
			logger.Bool("urgent", !protectRecent))
	}
}

// StartSweeper 启动周期清扫，使用量越过 85% 字节上限时回收到 70%
// 独立于插入时的淘汰
func (c *BufferCache) StartSweeper(interval time.Duration) {
	c.mu.Lock()
	if c.sweepStop != nil {
		c.mu.Unlock()
		return
	}
	c.sweepStop = make(chan struct{})
	stop := c.sweepStop
	c.mu.Unlock()

	c.sweepWG.Add(1)
	go func() {
		defer c.sweepWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.sweep()
			}
		}
	}()
}

// StopSweeper 停止周期清扫
func (c *BufferCache) StopSweeper() {
	c.mu.Lock()
	if c.sweepStop == nil {
		c.mu.Unlock()
		return
	}
	close(c.sweepStop)
	c.sweepStop = nil
	c.mu.Unlock()
	c.sweepWG.Wait()
}

func (c *BufferCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	highWater := int64(float64(c.maxBytes) * sweepHighWatermark)
	if c.totalBytes < highWater {
		return
	}

	target := int64(float64(c.maxBytes) * sweepLowWatermark)
	cutoff := c.now().Add(-recentAccessProtection)
	evicted := 0

	for c.totalBytes > target {
		var oldest *cacheEntry
		for _, entry := range c.entries {
			if entry.lastAccess.After(cutoff) {
				continue
			}
			if oldest == nil || entry.lastAccess.Before(oldest.lastAccess) {
				oldest = entry
			}
		}
		if oldest == nil {
			break
		}
		c.totalBytes -= oldest.size
		delete(c.entries, oldest.assetID)
		evicted++
	}

	if evicted > 0 {
		logger.Info("缓存周期清扫完成",
			logger.Int("evicted", evicted),
			logger.Int64("totalBytes", c.totalBytes))
	}
}
