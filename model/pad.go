package model

import "fmt"

// PlaybackType 多素材垫的选择算法
type PlaybackType string

const (
	PlaybackSequential PlaybackType = "sequential"  // 顺序轮播
	PlaybackRandom     PlaybackType = "random"      // 完全随机
	PlaybackRoundRobin PlaybackType = "round_robin" // 随机不重复，一轮内每个素材恰好播一次
)

// ActivePadBehavior 再次触发正在播放的垫时的策略
type ActivePadBehavior string

const (
	BehaviorContinue ActivePadBehavior = "continue" // 忽略新触发，继续播放
	BehaviorStop     ActivePadBehavior = "stop"     // 停止播放，不重新开始
	BehaviorRestart  ActivePadBehavior = "restart"  // 停止后重新开始
)

// PadInfo 唯一定位一个可触发的垫位：配置档 + 页 + 垫序号
type PadInfo struct {
	ProfileID string `json:"profileId"`
	PageIndex int    `json:"pageIndex"`
	PadIndex  int    `json:"padIndex"`
}

// PlaybackKey 生成播放键
// 对 (profileId, pageIndex, padIndex) 三元组唯一且确定，
// 是活跃播放去重和寻址的唯一机制
func (p PadInfo) PlaybackKey() string {
	return fmt.Sprintf("%s-%d-%d", p.ProfileID, p.PageIndex, p.PadIndex)
}

// PadConfig 单个垫的配置
type PadConfig struct {
	PadIndex    int               `json:"padIndex"`
	AssetIDs    []int64           `json:"assetIds"`
	Type        PlaybackType      `json:"playbackType"`
	Behavior    ActivePadBehavior `json:"activePadBehavior"`
	DisplayName string            `json:"displayName"`
}
