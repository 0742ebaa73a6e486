package audio

import (
	"time"

	"PadDeck/model"
)

// EventType 触发过程中的加载状态事件类型
type EventType string

const (
	EventInstant EventType = "instant" // 字节已就绪，可给出即时反馈
	EventLoading EventType = "loading" // 进入解码等待
	EventReady   EventType = "ready"   // 播放已开始
	EventError   EventType = "error"   // 触发最终失败
)

// PadEvent 单一观察通道上的加载状态事件
// 用判别字段代替多个回调参数，保留 instant/loading/ready/error 的全部区分
type PadEvent struct {
	Type            EventType `json:"type"`
	Key             string    `json:"key"`
	DisplayName     string    `json:"displayName,omitempty"`
	AssetID         int64     `json:"assetId,omitempty"`
	DurationSeconds float64   `json:"durationSeconds,omitempty"`
	Message         string    `json:"message,omitempty"`
	Timestamp       int64     `json:"timestamp"`
}

// EventObserver 接收某次触发的加载状态事件，可为 nil
type EventObserver func(PadEvent)

func emit(obs EventObserver, ev PadEvent) {
	if obs == nil {
		return
	}
	ev.Timestamp = time.Now().UnixMilli()
	obs(ev)
}

// ProgressUpdate 活跃播放的进度快照
// 监控循环只在有意义的变化时重新发布
type ProgressUpdate struct {
	Key              string        `json:"key"`
	DisplayName      string        `json:"displayName"`
	Progress         float64       `json:"progress"`
	RemainingSeconds float64       `json:"remainingSeconds"`
	TotalSeconds     float64       `json:"totalSeconds"`
	IsFading         bool          `json:"isFading"`
	Removed          bool          `json:"removed,omitempty"`
	PadInfo          model.PadInfo `json:"padInfo"`
}
