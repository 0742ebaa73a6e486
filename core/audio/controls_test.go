package audio

import (
	"context"
	"testing"
	"time"

	"PadDeck/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type controlsFixture struct {
	controls *Controls
	engine   *Engine
	cache    *BufferCache
	store    *fakeStore
	ctx      *fakeContext
	recorded chan int64
}

func newControlsFixture(t *testing.T, cfg ControlsConfig) *controlsFixture {
	t.Helper()

	fc := newFakeContext()
	engine := NewEngine(NewContextManager(func() (OutputContext, error) { return fc, nil }))
	store := newFakeStore()
	cache := NewBufferCache(32, 1<<26)
	decoder := NewDecoder(store, DecoderConfig{SampleRate: 48000, ChannelCount: 2})

	recorded := make(chan int64, 8)
	recorder := func(ctx context.Context, profileID string, assetID int64) error {
		recorded <- assetID
		return nil
	}

	return &controlsFixture{
		controls: NewControls(engine, cache, decoder, NewStrategyRegistry(), recorder, cfg),
		engine:   engine,
		cache:    cache,
		store:    store,
		ctx:      fc,
		recorded: recorded,
	}
}

func collectEvents(events *[]PadEvent) EventObserver {
	return func(ev PadEvent) { *events = append(*events, ev) }
}

func eventTypes(events []PadEvent) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestTriggerColdPathPlaysAndCaches(t *testing.T) {
	f := newControlsFixture(t, ControlsConfig{MaxRetries: 1})
	f.store.addWavAsset(1, 48000, 0.5)
	pad := testPad("p", 0, 0)

	var events []PadEvent
	outcome, err := f.controls.Trigger(context.Background(), TriggerRequest{
		PadInfo:     pad,
		AssetIDs:    []int64{1},
		Type:        model.PlaybackSequential,
		Behavior:    model.BehaviorRestart,
		DisplayName: "kick",
		Observer:    collectEvents(&events),
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomePlaying, outcome)
	assert.True(t, f.engine.IsPlaying(pad.PlaybackKey()))

	// 冷路径事件序列：loading → instant → ready
	assert.Equal(t, []EventType{EventLoading, EventInstant, EventReady}, eventTypes(events))
	assert.Greater(t, events[2].DurationSeconds, 0.0)

	// 解码结果已入缓存
	_, state := f.cache.Get(1)
	assert.Equal(t, CacheHit, state)

	// 播放记录异步落地
	select {
	case id := <-f.recorded:
		assert.Equal(t, int64(1), id)
	case <-time.After(time.Second):
		t.Fatal("play not recorded")
	}
}

func TestTriggerWarmPathSkipsLoading(t *testing.T) {
	f := newControlsFixture(t, ControlsConfig{MaxRetries: 1})
	f.cache.Put(1, testBuffer(48000, 2, 0.5))
	pad := testPad("p", 0, 0)

	var events []PadEvent
	outcome, err := f.controls.Trigger(context.Background(), TriggerRequest{
		PadInfo:  pad,
		AssetIDs: []int64{1},
		Type:     model.PlaybackSequential,
		Behavior: model.BehaviorRestart,
		Observer: collectEvents(&events),
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomePlaying, outcome)

	// 命中缓存：不碰存储，直接 ready
	assert.Equal(t, 0, f.store.fetchCount(1))
	assert.Equal(t, []EventType{EventReady}, eventTypes(events))
}

func TestTriggerEmptyCandidates(t *testing.T) {
	f := newControlsFixture(t, ControlsConfig{MaxRetries: 1})

	var events []PadEvent
	outcome, err := f.controls.Trigger(context.Background(), TriggerRequest{
		PadInfo:  testPad("p", 0, 0),
		Behavior: model.BehaviorRestart,
		Observer: collectEvents(&events),
	})

	assert.Equal(t, OutcomeError, outcome)
	assert.ErrorIs(t, err, ErrEmptyCandidates)
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
}

func TestTriggerActivePadBehaviors(t *testing.T) {
	f := newControlsFixture(t, ControlsConfig{MaxRetries: 1})
	f.cache.Put(1, testBuffer(48000, 2, 5.0))
	pad := testPad("p", 0, 0)

	req := TriggerRequest{
		PadInfo:  pad,
		AssetIDs: []int64{1},
		Type:     model.PlaybackSequential,
		Behavior: model.BehaviorRestart,
	}

	outcome, err := f.controls.Trigger(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, OutcomePlaying, outcome)

	// continue：忽略重触发
	req.Behavior = model.BehaviorContinue
	outcome, err = f.controls.Trigger(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Equal(t, 1, f.ctx.sourceCount())

	// restart：抢占并重新播放
	req.Behavior = model.BehaviorRestart
	outcome, err = f.controls.Trigger(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, OutcomePlaying, outcome)
	assert.Equal(t, 2, f.ctx.sourceCount())

	// stop：只停不播
	req.Behavior = model.BehaviorStop
	outcome, err = f.controls.Trigger(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStopped, outcome)
	assert.True(t, f.engine.IsFading(pad.PlaybackKey()))
}

func TestTriggerFallsBackToSibling(t *testing.T) {
	f := newControlsFixture(t, ControlsConfig{MaxRetries: 1})
	f.store.addCorruptAsset(1)
	f.store.addWavAsset(2, 48000, 0.5)
	pad := testPad("p", 0, 0)

	outcome, err := f.controls.Trigger(context.Background(), TriggerRequest{
		PadInfo:  pad,
		AssetIDs: []int64{1, 2},
		Type:     model.PlaybackSequential,
		Behavior: model.BehaviorRestart,
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomePlaying, outcome)

	// 实际播放的是兄弟素材
	h := f.engine.GetHandle(pad.PlaybackKey())
	require.NotNil(t, h)
	assert.Equal(t, int64(2), h.Selection.CurrentAssetID)
	assert.Equal(t, 1, h.Selection.CurrentIndex)

	// 损坏素材留下失败标记
	_, state := f.cache.Get(1)
	assert.Equal(t, CacheFailure, state)
}

func TestTriggerRetriesTransientFailure(t *testing.T) {
	f := newControlsFixture(t, ControlsConfig{MaxRetries: 2})
	f.store.addWavAsset(1, 48000, 0.5)
	f.store.transient[1] = 2 // 前两次读取失败

	outcome, err := f.controls.Trigger(context.Background(), TriggerRequest{
		PadInfo:  testPad("p", 0, 0),
		AssetIDs: []int64{1},
		Type:     model.PlaybackSequential,
		Behavior: model.BehaviorRestart,
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomePlaying, outcome)
	assert.GreaterOrEqual(t, f.store.fetchCount(1), 3)
}

func TestTriggerExhaustedWithoutFallback(t *testing.T) {
	f := newControlsFixture(t, ControlsConfig{MaxRetries: 1})
	f.store.addCorruptAsset(1)
	pad := testPad("p", 0, 0)

	var events []PadEvent
	outcome, err := f.controls.Trigger(context.Background(), TriggerRequest{
		PadInfo:  pad,
		AssetIDs: []int64{1},
		Type:     model.PlaybackSequential,
		Behavior: model.BehaviorRestart,
		Observer: collectEvents(&events),
	})

	assert.Equal(t, OutcomeError, outcome)
	assert.Error(t, err)
	assert.False(t, f.engine.IsPlaying(pad.PlaybackKey()))

	// 最后一个事件是 error
	require.NotEmpty(t, events)
	assert.Equal(t, EventError, events[len(events)-1].Type)
}

func TestTriggerSilentFallback(t *testing.T) {
	f := newControlsFixture(t, ControlsConfig{MaxRetries: 1, EnableSilentFallback: true})
	f.store.missing[1] = true
	pad := testPad("p", 0, 0)

	outcome, err := f.controls.Trigger(context.Background(), TriggerRequest{
		PadInfo:  pad,
		AssetIDs: []int64{1},
		Type:     model.PlaybackSequential,
		Behavior: model.BehaviorRestart,
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomePlaying, outcome)
	assert.True(t, f.engine.IsPlaying(pad.PlaybackKey()))
}

func TestTriggerAdvancesStrategyOnActualPlayback(t *testing.T) {
	f := newControlsFixture(t, ControlsConfig{MaxRetries: 1})
	f.store.addCorruptAsset(1)
	f.store.addWavAsset(2, 48000, 0.2)
	f.store.addWavAsset(3, 48000, 0.2)
	pad := testPad("p", 0, 0)

	req := TriggerRequest{
		PadInfo:  pad,
		AssetIDs: []int64{1, 2, 3},
		Type:     model.PlaybackSequential,
		Behavior: model.BehaviorRestart,
	}

	// 首选 1 损坏，实际播出 2
	outcome, err := f.controls.Trigger(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, OutcomePlaying, outcome)

	// 游标从实际播出的索引推进：下一次选 3
	outcome, err = f.controls.Trigger(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, OutcomePlaying, outcome)

	h := f.engine.GetHandle(pad.PlaybackKey())
	require.NotNil(t, h)
	assert.Equal(t, int64(3), h.Selection.CurrentAssetID)
}

func TestTriggerContextCancellation(t *testing.T) {
	f := newControlsFixture(t, ControlsConfig{MaxRetries: 3})
	f.store.transient[1] = 100

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := f.controls.Trigger(ctx, TriggerRequest{
		PadInfo:  testPad("p", 0, 0),
		AssetIDs: []int64{1},
		Type:     model.PlaybackSequential,
		Behavior: model.BehaviorRestart,
	})

	assert.Equal(t, OutcomeError, outcome)
	assert.Error(t, err)
}
