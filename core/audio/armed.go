package audio

import (
	"context"
	"errors"
	"sync"

	"PadDeck/logger"
	"PadDeck/model"
)

// ErrQueueEmpty 武装队列为空
var ErrQueueEmpty = errors.New("armed queue is empty")

// ArmedTrack 预先武装、等待按序触发的垫位
type ArmedTrack struct {
	Key         string             `json:"key"`
	DisplayName string             `json:"displayName"`
	PadInfo     model.PadInfo      `json:"padInfo"`
	AssetIDs    []int64            `json:"assetIds"`
	Type        model.PlaybackType `json:"playbackType"`
}

// ArmedQueue 武装队列：先排好一串垫位，现场逐个点播
// 同一播放键重复武装时替换原位置上的条目而不追加
type ArmedQueue struct {
	mu       sync.Mutex
	tracks   []ArmedTrack
	controls *Controls
}

// NewArmedQueue 创建武装队列
func NewArmedQueue(controls *Controls) *ArmedQueue {
	return &ArmedQueue{controls: controls}
}

// Arm 把垫位加入队尾；该键已在队列中时原位替换
func (q *ArmedQueue) Arm(track ArmedTrack) {
	if track.Key == "" {
		track.Key = track.PadInfo.PlaybackKey()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for i, t := range q.tracks {
		if t.Key == track.Key {
			q.tracks[i] = track
			logger.Debug("武装条目已替换", logger.String("key", track.Key))
			return
		}
	}

	q.tracks = append(q.tracks, track)
	logger.Debug("武装条目已入队",
		logger.String("key", track.Key),
		logger.Int("queueLen", len(q.tracks)))
}

// Disarm 按键移除条目
func (q *ArmedQueue) Disarm(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, t := range q.tracks {
		if t.Key == key {
			q.tracks = append(q.tracks[:i], q.tracks[i+1:]...)
			return true
		}
	}
	return false
}

// PlayNext 弹出队首并触发播放
// 按重启语义触发：武装的意义是"现在就播"，不受活跃垫策略影响
func (q *ArmedQueue) PlayNext(ctx context.Context, observer EventObserver) (TriggerOutcome, error) {
	q.mu.Lock()
	if len(q.tracks) == 0 {
		q.mu.Unlock()
		return OutcomeError, ErrQueueEmpty
	}
	track := q.tracks[0]
	q.tracks = q.tracks[1:]
	q.mu.Unlock()

	return q.controls.Trigger(ctx, TriggerRequest{
		PadInfo:     track.PadInfo,
		AssetIDs:    track.AssetIDs,
		Type:        track.Type,
		Behavior:    model.BehaviorRestart,
		DisplayName: track.DisplayName,
		Observer:    observer,
	})
}

// List 队列内容的副本
func (q *ArmedQueue) List() []ArmedTrack {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]ArmedTrack, len(q.tracks))
	copy(out, q.tracks)
	return out
}

// Clear 清空队列
func (q *ArmedQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = nil
}
