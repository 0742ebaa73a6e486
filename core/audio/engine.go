package audio

import (
	"fmt"
	"math"
	"sync"
	"time"

	"PadDeck/logger"
	"PadDeck/model"

	"github.com/google/uuid"
)

const (
	// 避免爆音的极短淡出，用于停止和重触发抢占
	clickGuardFadeSeconds = 0.1

	// 监控循环的节拍，保证 100ms 以内的粒度
	defaultMonitorTick = 33 * time.Millisecond

	// 进度重发阈值
	progressDeltaThreshold  = 0.001 // ≥0.1% 进度变化
	remainingDeltaThreshold = 0.010 // ≥10ms 剩余时间变化
)

// SelectionState 句柄携带的选择算法状态快照，供 UI 展示和外部停止后重建
type SelectionState struct {
	Type             model.PlaybackType `json:"playbackType"`
	CandidateIDs     []int64            `json:"candidateIds"`
	CurrentAssetID   int64              `json:"currentAssetId"`
	CurrentIndex     int                `json:"currentIndex"`
	RemainingIndices []int              `json:"remainingIndices,omitempty"`
}

// StartParams 启动播放的参数
type StartParams struct {
	DisplayName string
	PadInfo     model.PadInfo
	Selection   SelectionState
}

// Handle 一次活跃播放
// 每个播放键同一时刻至多存在一个句柄
type Handle struct {
	Key         string
	DisplayName string
	PadInfo     model.PadInfo
	Selection   SelectionState

	source    Source
	startTime float64
	duration  float64
	gain      float64

	fading       bool
	fadeStart    float64
	fadeFrom     float64
	fadeDuration float64
}

// Engine 播放引擎：创建和销毁播放源，追踪所有并发播放，
// 机械地维护"每键至多一个句柄"的不变量（是否重触发的策略在 Controls）
type Engine struct {
	mu      sync.Mutex
	ctxMgr  *ContextManager
	out     OutputContext
	handles map[string]*Handle

	subs         map[string]chan ProgressUpdate
	lastReported map[string]ProgressUpdate

	loopRunning bool
	tick        time.Duration
}

// NewEngine 创建播放引擎，输出上下文在第一次播放时惰性获取
func NewEngine(ctxMgr *ContextManager) *Engine {
	return &Engine{
		ctxMgr:       ctxMgr,
		handles:      make(map[string]*Handle),
		subs:         make(map[string]chan ProgressUpdate),
		lastReported: make(map[string]ProgressUpdate),
		tick:         defaultMonitorTick,
	}
}

// StartPlayback 为播放键启动一次新播放
// 该键已有句柄时先以极短淡出终止旧句柄再注册新句柄；
// 首个句柄注册时启动监控循环
func (e *Engine) StartPlayback(buf *Buffer, key string, params StartParams) (*Handle, error) {
	if buf == nil {
		return nil, fmt.Errorf("播放缓冲为空")
	}

	e.mu.Lock()

	if e.out == nil {
		out, err := e.ctxMgr.GetContext()
		if err != nil {
			e.mu.Unlock()
			return nil, err
		}
		e.out = out
	}

	if old, ok := e.handles[key]; ok {
		delete(e.handles, key)
		delete(e.lastReported, key)
		go detachedFade(old.source, old.gain)
	}

	h := &Handle{
		Key:         key,
		DisplayName: params.DisplayName,
		PadInfo:     params.PadInfo,
		Selection:   params.Selection,
		startTime:   e.out.Now(),
		duration:    buf.DurationSeconds(),
		gain:        1.0,
	}

	src, err := e.out.NewSource(buf, func() { e.handleEnded(key, h) })
	if err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("创建播放源失败: %w", err)
	}
	h.source = src
	e.handles[key] = h

	if !e.loopRunning {
		e.loopRunning = true
		go e.runLoop()
	}

	e.mu.Unlock()

	src.Play()

	logger.Debug("播放已启动",
		logger.String("key", key),
		logger.String("displayName", params.DisplayName),
		logger.Float64("duration", h.duration))

	return h, nil
}

// detachedFade 对被抢占的旧播放源做后台短淡出再停止
func detachedFade(src Source, fromGain float64) {
	const steps = 5
	stepSleep := time.Duration(clickGuardFadeSeconds*float64(time.Second)) / steps

	for i := steps - 1; i > 0; i-- {
		src.SetGain(fromGain * float64(i) / steps)
		time.Sleep(stepSleep)
	}
	src.Stop()
}

// handleEnded 平台侧自然结束通知
func (e *Engine) handleEnded(key string, h *Handle) {
	e.mu.Lock()
	if e.handles[key] != h {
		// 该键已被新播放占用
		e.mu.Unlock()
		return
	}
	delete(e.handles, key)
	delete(e.lastReported, key)
	e.publishLocked(removalUpdate(h, 1.0))
	e.mu.Unlock()

	logger.Debug("播放自然结束", logger.String("key", key))
}

// Stop 停止某键的播放：极短淡出后硬停，避免振幅突变产生的爆音
func (e *Engine) Stop(playbackKey string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, ok := e.handles[playbackKey]
	if !ok {
		return
	}
	e.beginFadeLocked(h, clickGuardFadeSeconds, true)
}

// FadeOut 按给定时长线性淡出到静音
// 对已在淡出的句柄再次调用是空操作；淡出完成时的硬停清理
// 带句柄同一性校验，防止延迟回调误删复用该键的新句柄
func (e *Engine) FadeOut(playbackKey string, durationSeconds float64) {
	if durationSeconds <= 0 {
		durationSeconds = clickGuardFadeSeconds
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	h, ok := e.handles[playbackKey]
	if !ok || h.fading {
		return
	}
	e.beginFadeLocked(h, durationSeconds, false)
}

// StopAll 停止所有活跃播放，已在淡出的句柄跳过
func (e *Engine) StopAll() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, h := range e.handles {
		if h.fading {
			continue
		}
		e.beginFadeLocked(h, clickGuardFadeSeconds, false)
	}
}

// FadeAllOut 淡出所有活跃播放，已在淡出的句柄不重启淡出
func (e *Engine) FadeAllOut(durationSeconds float64) {
	if durationSeconds <= 0 {
		durationSeconds = clickGuardFadeSeconds
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, h := range e.handles {
		if h.fading {
			continue
		}
		e.beginFadeLocked(h, durationSeconds, false)
	}
}

// beginFadeLocked 进入淡出状态并安排完成后的硬停清理，调用方需持锁
// force 为真时可以把已在进行的淡出提前收尾，但不会拉长它
func (e *Engine) beginFadeLocked(h *Handle, durationSeconds float64, force bool) {
	now := e.out.Now()

	if h.fading {
		if !force {
			return
		}
		remaining := h.fadeStart + h.fadeDuration - now
		if remaining <= durationSeconds {
			return
		}
		h.fadeDuration = (now - h.fadeStart) + durationSeconds
	} else {
		h.fading = true
		h.fadeStart = now
		h.fadeFrom = h.gain
		h.fadeDuration = durationSeconds
	}

	key := h.Key
	delay := time.Duration(durationSeconds*float64(time.Second)) + 10*time.Millisecond
	time.AfterFunc(delay, func() { e.finalizeFade(key, h) })
}

// finalizeFade 淡出完成后的硬停清理
// 仅当淡出开始时捕获的句柄仍是该键的活句柄时才移除
func (e *Engine) finalizeFade(key string, h *Handle) {
	e.mu.Lock()
	if e.handles[key] != h {
		e.mu.Unlock()
		return
	}
	delete(e.handles, key)
	delete(e.lastReported, key)
	h.source.Stop()
	e.publishLocked(removalUpdate(h, progressAt(e.out.Now(), h)))
	e.mu.Unlock()

	logger.Debug("淡出完成，播放已停止", logger.String("key", key))
}

// IsPlaying 某键是否存在活跃句柄
func (e *Engine) IsPlaying(playbackKey string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.handles[playbackKey]
	return ok
}

// IsFading 某键的句柄是否正在淡出
func (e *Engine) IsFading(playbackKey string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, ok := e.handles[playbackKey]
	return ok && h.fading
}

// ActiveKeys 所有活跃播放键
func (e *Engine) ActiveKeys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	keys := make([]string, 0, len(e.handles))
	for key := range e.handles {
		keys = append(keys, key)
	}
	return keys
}

// GetHandle 获取某键的活句柄
func (e *Engine) GetHandle(playbackKey string) *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handles[playbackKey]
}

// ActiveCount 活跃播放数
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handles)
}

// SubscribeProgress 订阅进度流，返回订阅 ID 和只读通道
// 通道写满时丢弃本次更新，不阻塞监控循环
func (e *Engine) SubscribeProgress(bufferSize int) (string, <-chan ProgressUpdate) {
	if bufferSize < 1 {
		bufferSize = 64
	}

	id := uuid.NewString()
	ch := make(chan ProgressUpdate, bufferSize)

	e.mu.Lock()
	e.subs[id] = ch
	e.mu.Unlock()

	return id, ch
}

// UnsubscribeProgress 取消订阅并关闭通道
func (e *Engine) UnsubscribeProgress(id string) {
	e.mu.Lock()
	ch, ok := e.subs[id]
	if ok {
		delete(e.subs, id)
	}
	e.mu.Unlock()

	if ok {
		close(ch)
	}
}

// runLoop 协作式监控循环
// 每个节拍内处理完所有活跃句柄再让出，保证同一节拍的进度快照彼此一致；
// 句柄清空后自行退出，下一次 StartPlayback 重新启动
func (e *Engine) runLoop() {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	for range ticker.C {
		if !e.tickOnce() {
			return
		}
	}
}

func (e *Engine) tickOnce() bool {
	e.mu.Lock()

	if len(e.handles) == 0 {
		e.loopRunning = false
		e.mu.Unlock()
		return false
	}

	now := e.out.Now()

	for key, h := range e.handles {
		// 淡出增益推进：相对音频时钟的线性斜坡
		if h.fading && h.fadeDuration > 0 {
			t := (now - h.fadeStart) / h.fadeDuration
			if t > 1 {
				t = 1
			}
			if t < 0 {
				t = 0
			}
			g := h.fadeFrom * (1 - t)
			h.gain = g
			h.source.SetGain(g)
		}

		u := snapshotUpdate(now, h)

		last, reported := e.lastReported[key]
		changed := !reported ||
			math.Abs(u.Progress-last.Progress) >= progressDeltaThreshold ||
			math.Abs(u.RemainingSeconds-last.RemainingSeconds) >= remainingDeltaThreshold ||
			u.IsFading != last.IsFading

		if changed {
			e.lastReported[key] = u
			e.publishLocked(u)
		}
	}

	e.mu.Unlock()
	return true
}

// publishLocked 向所有订阅者非阻塞推送，调用方需持锁
func (e *Engine) publishLocked(u ProgressUpdate) {
	for _, ch := range e.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

func progressAt(now float64, h *Handle) float64 {
	if h.duration <= 0 {
		return 1
	}
	p := (now - h.startTime) / h.duration
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return p
}

func snapshotUpdate(now float64, h *Handle) ProgressUpdate {
	elapsed := now - h.startTime
	remaining := h.duration - elapsed
	if remaining < 0 {
		remaining = 0
	}

	return ProgressUpdate{
		Key:              h.Key,
		DisplayName:      h.DisplayName,
		Progress:         progressAt(now, h),
		RemainingSeconds: remaining,
		TotalSeconds:     h.duration,
		IsFading:         h.fading,
		PadInfo:          h.PadInfo,
	}
}

func removalUpdate(h *Handle, progress float64) ProgressUpdate {
	return ProgressUpdate{
		Key:              h.Key,
		DisplayName:      h.DisplayName,
		Progress:         progress,
		RemainingSeconds: 0,
		TotalSeconds:     h.duration,
		IsFading:         h.fading,
		Removed:          true,
		PadInfo:          h.PadInfo,
	}
}
