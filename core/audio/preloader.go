package audio

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"PadDeck/logger"

	"github.com/google/uuid"
)

// PreloadPriority 预热优先级，数值越小越优先
type PreloadPriority int

const (
	PriorityImmediate PreloadPriority = iota // 即将触发（当前页可见垫）
	PriorityHigh                             // 最近播放过
	PriorityMedium                           // 悬停等交互信号
	PriorityLow                              // 素材库后台预热
)

func (p PreloadPriority) String() string {
	switch p {
	case PriorityImmediate:
		return "immediate"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// maxAttemptsFor 各优先级的最大尝试次数
func maxAttemptsFor(p PreloadPriority) int {
	switch p {
	case PriorityImmediate:
		return 3
	case PriorityLow:
		return 1
	default:
		return 2
	}
}

// 预热批次大小与重试退避
const (
	preloadBatchSize      = 8
	preloadRetryBaseDelay = 500 * time.Millisecond

	// 低优先级任务仅在没有更高优先级工作时处理
	preloadIdleDelay = 2 * time.Second
)

type preloadTask struct {
	assetID       int64
	priority      PreloadPriority
	enqueuedAt    time.Time
	attempts      int
	nextAttemptAt time.Time
}

// PreloadStats 预热统计
type PreloadStats struct {
	Requested     int64   `json:"requested"`
	Completed     int64   `json:"completed"`
	Failed        int64   `json:"failed"`
	Pending       int     `json:"pending"`
	AvgLoadMillis float64 `json:"avgLoadMillis"`
	CacheHitRatio float64 `json:"cacheHitRatio"`
}

// RecentSource 最近播放来源，允许为 nil
type RecentSource func(ctx context.Context, profileID string, limit int) ([]int64, error)

// Preloader 后台预热服务
// 单个排水协程按优先级消费任务队列，批量走解码流水线；
// 去重时保留更高优先级和更早的入队时间
type Preloader struct {
	cache   *BufferCache
	decoder *Decoder
	recent  RecentSource

	mu      sync.Mutex
	pending map[int64]*preloadTask

	notify   chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool

	requested   int64
	completed   int64
	failed      int64
	loadSamples []float64
	hits        int64
	lookups     int64
}

// NewPreloader 创建预热服务
func NewPreloader(cache *BufferCache, decoder *Decoder, recent RecentSource) *Preloader {
	return &Preloader{
		cache:    cache,
		decoder:  decoder,
		recent:   recent,
		pending:  make(map[int64]*preloadTask),
		notify:   make(chan struct{}, 1),
		stopChan: make(chan struct{}),
	}
}

// Start 启动排水协程
func (p *Preloader) Start() {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.wg.Add(1)
	go p.drainLoop()
	logger.Info("预热服务已启动")
}

// Stop 停止排水协程并等待退出
func (p *Preloader) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()

	close(p.stopChan)
	p.wg.Wait()
	logger.Info("预热服务已停止")
}

// RequestPreload 批量请求预热
// 已缓存的素材直接跳过；与在途任务重复时合并，
// 保留二者中更高的优先级和更早的入队时间
func (p *Preloader) RequestPreload(assetIDs []int64, priority PreloadPriority) {
	if len(assetIDs) == 0 {
		return
	}

	now := time.Now()
	enqueued := 0

	p.mu.Lock()
	for _, id := range assetIDs {
		p.lookups++
		if _, state := p.cache.Get(id); state != CacheMiss {
			p.hits++
			continue
		}

		if existing, ok := p.pending[id]; ok {
			if priority < existing.priority {
				existing.priority = priority
			}
			continue
		}

		p.pending[id] = &preloadTask{
			assetID:    id,
			priority:   priority,
			enqueuedAt: now,
		}
		p.requested++
		enqueued++
	}
	p.mu.Unlock()

	if enqueued > 0 {
		logger.Debug("预热任务入队",
			logger.Int("count", enqueued),
			logger.String("priority", priority.String()))
		p.wake()
	}
}

// PreloadRecent 预热某配置档的最近播放素材
func (p *Preloader) PreloadRecent(ctx context.Context, profileID string, limit int) {
	if p.recent == nil {
		return
	}

	ids, err := p.recent(ctx, profileID, limit)
	if err != nil {
		logger.Warn("读取最近播放失败，跳过预热",
			logger.String("profileId", profileID),
			logger.ErrorField(err))
		return
	}
	p.RequestPreload(ids, PriorityHigh)
}

// Stats 当前统计快照
func (p *Preloader) Stats() PreloadStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := PreloadStats{
		Requested: p.requested,
		Completed: p.completed,
		Failed:    p.failed,
		Pending:   len(p.pending),
	}

	if len(p.loadSamples) > 0 {
		var sum float64
		for _, v := range p.loadSamples {
			sum += v
		}
		s.AvgLoadMillis = sum / float64(len(p.loadSamples))
	}
	if p.lookups > 0 {
		s.CacheHitRatio = float64(p.hits) / float64(p.lookups)
	}
	return s
}

func (p *Preloader) wake() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// drainLoop 排水循环：有任务时按批处理，无任务时等通知
func (p *Preloader) drainLoop() {
	defer p.wg.Done()

	for {
		batch, wait := p.nextBatch()

		if len(batch) == 0 {
			select {
			case <-p.stopChan:
				return
			case <-p.notify:
				continue
			case <-time.After(wait):
				continue
			}
		}

		select {
		case <-p.stopChan:
			return
		default:
		}

		p.processBatch(batch)
	}
}

// nextBatch 取下一批任务
// 优先级高者先出，同优先级按入队时间；低优先级任务只在
// 队列中没有更高优先级工作时纳入批次
func (p *Preloader) nextBatch() ([]*preloadTask, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	ready := make([]*preloadTask, 0, len(p.pending))
	hasHigher := false
	wait := preloadIdleDelay

	for _, t := range p.pending {
		if t.priority < PriorityLow {
			hasHigher = true
		}
		if t.nextAttemptAt.After(now) {
			if d := t.nextAttemptAt.Sub(now); d < wait {
				wait = d
			}
			continue
		}
		ready = append(ready, t)
	}

	if hasHigher {
		filtered := ready[:0]
		for _, t := range ready {
			if t.priority < PriorityLow {
				filtered = append(filtered, t)
			}
		}
		ready = filtered
	}

	sort.Slice(ready, func(i, j int) bool {
		if ready[i].priority != ready[j].priority {
			return ready[i].priority < ready[j].priority
		}
		return ready[i].enqueuedAt.Before(ready[j].enqueuedAt)
	})

	if len(ready) > preloadBatchSize {
		ready = ready[:preloadBatchSize]
	}
	return ready, wait
}

// processBatch 批量解码一批任务并回填缓存
func (p *Preloader) processBatch(batch []*preloadTask) {
	ids := make([]int64, len(batch))
	byID := make(map[int64]*preloadTask, len(batch))
	for i, t := range batch {
		ids[i] = t.assetID
		byID[t.assetID] = t
	}

	batchID := uuid.NewString()
	logger.Debug("预热批次开始",
		logger.String("batchId", batchID),
		logger.Int("size", len(ids)))

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	results, errs := p.decoder.DecodeManyPipelined(ctx, ids)
	cancel()
	elapsed := float64(time.Since(start).Milliseconds())

	p.mu.Lock()
	defer p.mu.Unlock()

	// 滚动窗口，只保留最近的加载耗时样本
	p.loadSamples = append(p.loadSamples, elapsed)
	if len(p.loadSamples) > 64 {
		p.loadSamples = p.loadSamples[len(p.loadSamples)-64:]
	}

	for id, buf := range results {
		p.cache.Put(id, buf)
		delete(p.pending, id)
		p.completed++
	}

	for id, err := range errs {
		t := byID[id]
		if t == nil {
			continue
		}
		t.attempts++

		transient := errors.Is(err, ErrTransientLoad)
		if transient && t.attempts < maxAttemptsFor(t.priority) {
			backoff := preloadRetryBaseDelay << (t.attempts - 1)
			t.nextAttemptAt = time.Now().Add(backoff)
			continue
		}

		// 尝试用尽或确定性失败：写失败标记避免反复解码
		if !transient {
			p.cache.Put(id, nil)
		}
		delete(p.pending, id)
		p.failed++

		logger.Warn("预热失败",
			logger.Int64("assetId", id),
			logger.String("priority", t.priority.String()),
			logger.Int("attempts", t.attempts),
			logger.ErrorField(err))
	}

	if len(p.pending) > 0 {
		p.wake()
	}
}
