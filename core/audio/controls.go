package audio

import (
	"context"
	"errors"
	"time"

	"PadDeck/logger"
	"PadDeck/model"
)

// TriggerOutcome 一次触发的最终结果
type TriggerOutcome string

const (
	OutcomePlaying TriggerOutcome = "playing" // 播放已开始
	OutcomeStopped TriggerOutcome = "stopped" // 按活跃垫策略停止了播放
	OutcomeIgnored TriggerOutcome = "ignored" // 按活跃垫策略忽略了触发
	OutcomeError   TriggerOutcome = "error"   // 所有恢复手段用尽后失败
)

// TriggerRequest 触发一个垫位的完整请求
type TriggerRequest struct {
	PadInfo     model.PadInfo
	AssetIDs    []int64
	Type        model.PlaybackType
	Behavior    model.ActivePadBehavior
	DisplayName string
	Observer    EventObserver
}

// PlayRecorder 播放记录的落地端，允许为 nil（未配置最近播放层时）
type PlayRecorder func(ctx context.Context, profileID string, assetID int64) error

// ControlsConfig 控制面配置
type ControlsConfig struct {
	MaxRetries           int
	EnableSilentFallback bool
	DefaultFadeSeconds   float64
}

// 触发重试的基础退避
const triggerRetryBaseDelay = 100 * time.Millisecond

// 静音兜底缓冲的时长
const silentFallbackSeconds = 0.5

// Controls 播放控制面
// 触发入口在这里汇聚选择算法、缓存、解码和引擎，
// 失败恢复（换素材、重试、静音兜底）全部收敛在触发路径内
type Controls struct {
	engine     *Engine
	cache      *BufferCache
	decoder    *Decoder
	strategies *StrategyRegistry
	recorder   PlayRecorder
	cfg        ControlsConfig
}

// NewControls 创建控制面
func NewControls(engine *Engine, cache *BufferCache, decoder *Decoder, strategies *StrategyRegistry, recorder PlayRecorder, cfg ControlsConfig) *Controls {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 3
	}
	if cfg.DefaultFadeSeconds <= 0 {
		cfg.DefaultFadeSeconds = 3.0
	}
	return &Controls{
		engine:     engine,
		cache:      cache,
		decoder:    decoder,
		strategies: strategies,
		recorder:   recorder,
		cfg:        cfg,
	}
}

// Trigger 触发一个垫位
// 活跃垫策略 → 选素材 → 取缓冲（缓存/解码）→ 失败换兄弟素材 →
// 有限重试 → 可选静音兜底 → 启动播放。
// 选择算法状态只在实际播出的素材上推进
func (c *Controls) Trigger(ctx context.Context, req TriggerRequest) (TriggerOutcome, error) {
	key := req.PadInfo.PlaybackKey()

	if len(req.AssetIDs) == 0 {
		emit(req.Observer, PadEvent{Type: EventError, Key: key, DisplayName: req.DisplayName, Message: "未配置任何素材"})
		return OutcomeError, ErrEmptyCandidates
	}

	if c.engine.IsPlaying(key) {
		switch req.Behavior {
		case model.BehaviorContinue:
			return OutcomeIgnored, nil
		case model.BehaviorStop:
			c.engine.Stop(key)
			return OutcomeStopped, nil
		case model.BehaviorRestart:
			// 落入启动路径，引擎会抢占旧句柄
		default:
			return OutcomeIgnored, nil
		}
	}

	strategy := c.strategies.ForPad(key, req.Type)
	sel, err := strategy.SelectNext(req.AssetIDs)
	if err != nil {
		emit(req.Observer, PadEvent{Type: EventError, Key: key, DisplayName: req.DisplayName, Message: err.Error()})
		return OutcomeError, err
	}

	buf, playedIndex, err := c.resolveBuffer(ctx, key, sel, req)
	if err != nil {
		if c.cfg.EnableSilentFallback {
			logger.Warn("素材全部不可用，使用静音兜底",
				logger.String("key", key),
				logger.ErrorField(err))
			buf = SilentBuffer(c.decoder.sampleRate, c.decoder.channels, silentFallbackSeconds)
			playedIndex = sel.Index
		} else {
			emit(req.Observer, PadEvent{Type: EventError, Key: key, DisplayName: req.DisplayName, AssetID: sel.AssetID, Message: err.Error()})
			return OutcomeError, err
		}
	}

	// 播放确认后才推进算法状态，且以实际播出的索引推进
	strategy.UpdateState(playedIndex, req.AssetIDs)

	playedID := req.AssetIDs[playedIndex]
	params := StartParams{
		DisplayName: req.DisplayName,
		PadInfo:     req.PadInfo,
		Selection:   c.selectionSnapshot(strategy, req, playedID, playedIndex),
	}

	h, err := c.engine.StartPlayback(buf, key, params)
	if err != nil {
		emit(req.Observer, PadEvent{Type: EventError, Key: key, DisplayName: req.DisplayName, AssetID: playedID, Message: err.Error()})
		return OutcomeError, err
	}

	emit(req.Observer, PadEvent{
		Type:            EventReady,
		Key:             key,
		DisplayName:     req.DisplayName,
		AssetID:         playedID,
		DurationSeconds: h.duration,
	})

	if c.recorder != nil {
		go func(profileID string, assetID int64) {
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if rerr := c.recorder(rctx, profileID, assetID); rerr != nil {
				logger.Warn("记录最近播放失败", logger.ErrorField(rerr))
			}
		}(req.PadInfo.ProfileID, playedID)
	}

	return OutcomePlaying, nil
}

// resolveBuffer 为触发取得可播放的缓冲
// 首选素材失败后按候选顺序尝试兄弟素材，再对首选做带退避的有限重试
func (c *Controls) resolveBuffer(ctx context.Context, key string, sel Selection, req TriggerRequest) (*Buffer, int, error) {
	buf, err := c.acquireBuffer(ctx, key, sel.AssetID, req)
	if err == nil {
		return buf, sel.Index, nil
	}
	firstErr := err

	logger.Warn("首选素材加载失败，尝试兄弟素材",
		logger.String("key", key),
		logger.Int64("assetId", sel.AssetID),
		logger.ErrorField(err))

	// 按候选顺序尝试其余素材
	for idx, id := range req.AssetIDs {
		if idx == sel.Index {
			continue
		}
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		buf, err = c.acquireBuffer(ctx, key, id, req)
		if err == nil {
			return buf, idx, nil
		}
	}

	// 全部候选失败：对首选做带指数退避的有限重试
	delay := triggerRetryBaseDelay
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2

		// 清掉失败标记，否则重试会原样命中
		c.cache.Invalidate(sel.AssetID)

		logger.Debug("重试加载首选素材",
			logger.String("key", key),
			logger.Int64("assetId", sel.AssetID),
			logger.Int("attempt", attempt))

		buf, err = c.acquireBuffer(ctx, key, sel.AssetID, req)
		if err == nil {
			return buf, sel.Index, nil
		}
	}

	return nil, 0, firstErr
}

// acquireBuffer 从缓存或解码管线取得单个素材的缓冲
// 确定性失败（素材不存在 / 解码失败）写入失败标记，
// 瞬时失败不写标记，下次触发可直接重试
func (c *Controls) acquireBuffer(ctx context.Context, key string, assetID int64, req TriggerRequest) (*Buffer, error) {
	if buf, state := c.cache.Get(assetID); state == CacheHit {
		return buf, nil
	} else if state == CacheFailure {
		return nil, ErrDecodeFailed
	}

	emit(req.Observer, PadEvent{Type: EventLoading, Key: key, DisplayName: req.DisplayName, AssetID: assetID})

	buf, err := c.decoder.DecodeInstant(ctx, assetID, func() {
		emit(req.Observer, PadEvent{Type: EventInstant, Key: key, DisplayName: req.DisplayName, AssetID: assetID})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDecodeFailed) {
			c.cache.Put(assetID, nil)
		}
		return nil, err
	}

	c.cache.Put(assetID, buf)
	return buf, nil
}

// selectionSnapshot 构造句柄携带的选择算法状态快照
func (c *Controls) selectionSnapshot(strategy Strategy, req TriggerRequest, playedID int64, playedIndex int) SelectionState {
	state := SelectionState{
		Type:           req.Type,
		CandidateIDs:   req.AssetIDs,
		CurrentAssetID: playedID,
		CurrentIndex:   playedIndex,
	}
	if rr, ok := strategy.(*RoundRobinStrategy); ok {
		state.RemainingIndices = rr.Remaining()
	}
	return state
}

// Stop 停止某垫位的播放
func (c *Controls) Stop(pad model.PadInfo) {
	c.engine.Stop(pad.PlaybackKey())
}

// FadeOut 按给定时长淡出某垫位，时长非正时使用默认淡出时长
func (c *Controls) FadeOut(pad model.PadInfo, durationSeconds float64) {
	if durationSeconds <= 0 {
		durationSeconds = c.cfg.DefaultFadeSeconds
	}
	c.engine.FadeOut(pad.PlaybackKey(), durationSeconds)
}

// StopAll 停止所有播放
func (c *Controls) StopAll() {
	c.engine.StopAll()
}

// FadeAllOut 淡出所有播放
func (c *Controls) FadeAllOut(durationSeconds float64) {
	if durationSeconds <= 0 {
		durationSeconds = c.cfg.DefaultFadeSeconds
	}
	c.engine.FadeAllOut(durationSeconds)
}

// ActiveKeys 所有活跃播放键
func (c *Controls) ActiveKeys() []string {
	return c.engine.ActiveKeys()
}

// IsPlaying 某垫位是否在播放
func (c *Controls) IsPlaying(pad model.PadInfo) bool {
	return c.engine.IsPlaying(pad.PlaybackKey())
}

// InvalidateAsset 素材内容变更或删除后清掉对应的缓存条目
func (c *Controls) InvalidateAsset(assetID int64) {
	c.cache.Invalidate(assetID)
}
