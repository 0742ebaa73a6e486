package audio

import (
	"math/rand/v2"
	"sync"

	"PadDeck/model"
)

// Selection 一次选择的结果
type Selection struct {
	AssetID int64
	Index   int
}

// Strategy 播放选择算法
// SelectNext 只读地给出下一个候选，UpdateState 在播放确认后推进游标；
// 拆成两步是为了解码失败换素材时不污染算法状态
type Strategy interface {
	SelectNext(candidateIDs []int64) (Selection, error)
	UpdateState(selectedIndex int, candidateIDs []int64)
}

// SequentialStrategy 顺序轮播：单向游标，到尾回绕
type SequentialStrategy struct {
	mu     sync.Mutex
	cursor int
}

// NewSequentialStrategy 创建顺序策略
func NewSequentialStrategy() *SequentialStrategy {
	return &SequentialStrategy{}
}

func (s *SequentialStrategy) SelectNext(candidateIDs []int64) (Selection, error) {
	if len(candidateIDs) == 0 {
		return Selection{}, ErrEmptyCandidates
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 候选列表可能在两次调用之间增删，游标夹回范围内
	idx := s.cursor
	if idx >= len(candidateIDs) || idx < 0 {
		idx = 0
	}
	return Selection{AssetID: candidateIDs[idx], Index: idx}, nil
}

func (s *SequentialStrategy) UpdateState(selectedIndex int, candidateIDs []int64) {
	if len(candidateIDs) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = (selectedIndex + 1) % len(candidateIDs)
}

// RandomStrategy 完全随机：均匀选取，不避免连续重复
type RandomStrategy struct{}

// NewRandomStrategy 创建随机策略
func NewRandomStrategy() *RandomStrategy {
	return &RandomStrategy{}
}

func (s *RandomStrategy) SelectNext(candidateIDs []int64) (Selection, error) {
	if len(candidateIDs) == 0 {
		return Selection{}, ErrEmptyCandidates
	}

	idx := rand.IntN(len(candidateIDs))
	return Selection{AssetID: candidateIDs[idx], Index: idx}, nil
}

func (s *RandomStrategy) UpdateState(selectedIndex int, candidateIDs []int64) {}

// RoundRobinStrategy 随机不重复：维护本轮未播放索引池，
// 每次从池中随机取一个并移除，池空后开始新一轮。
// 保证一轮内每个候选恰好播一次
type RoundRobinStrategy struct {
	mu        sync.Mutex
	remaining []int
}

// NewRoundRobinStrategy 创建轮询策略
func NewRoundRobinStrategy() *RoundRobinStrategy {
	return &RoundRobinStrategy{}
}

func (s *RoundRobinStrategy) SelectNext(candidateIDs []int64) (Selection, error) {
	if len(candidateIDs) == 0 {
		return Selection{}, ErrEmptyCandidates
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pool := s.validPoolLocked(len(candidateIDs))
	if len(pool) == 0 {
		// 新一轮
		pool = make([]int, len(candidateIDs))
		for i := range pool {
			pool[i] = i
		}
		s.remaining = pool
	}

	idx := pool[rand.IntN(len(pool))]
	return Selection{AssetID: candidateIDs[idx], Index: idx}, nil
}

func (s *RoundRobinStrategy) UpdateState(selectedIndex int, candidateIDs []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool := s.validPoolLocked(len(candidateIDs))
	filtered := pool[:0]
	for _, idx := range pool {
		if idx != selectedIndex {
			filtered = append(filtered, idx)
		}
	}
	s.remaining = filtered
}

// validPoolLocked 过滤掉因候选列表收缩而越界的索引，调用方需持锁
func (s *RoundRobinStrategy) validPoolLocked(n int) []int {
	valid := s.remaining[:0]
	for _, idx := range s.remaining {
		if idx >= 0 && idx < n {
			valid = append(valid, idx)
		}
	}
	s.remaining = valid
	return valid
}

// Remaining 返回本轮剩余索引的副本，供 UI 展示和外部停止后重建轮次状态
func (s *RoundRobinStrategy) Remaining() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]int, len(s.remaining))
	copy(out, s.remaining)
	return out
}

// SetRemaining 重建本轮剩余池
func (s *RoundRobinStrategy) SetRemaining(indices []int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.remaining = make([]int, len(indices))
	copy(s.remaining, indices)
}

// StrategyRegistry 按垫位键和播放类型保存策略实例
// 状态按垫位隔离：两个同为顺序模式的垫各自持有独立游标，
// 触发 A 不会推进 B 的游标
type StrategyRegistry struct {
	mu   sync.Mutex
	pads map[string]map[model.PlaybackType]Strategy
}

// NewStrategyRegistry 创建策略注册表
func NewStrategyRegistry() *StrategyRegistry {
	return &StrategyRegistry{
		pads: make(map[string]map[model.PlaybackType]Strategy),
	}
}

// ForPad 获取某垫位某类型的策略实例，不存在则创建
func (r *StrategyRegistry) ForPad(playbackKey string, t model.PlaybackType) Strategy {
	r.mu.Lock()
	defer r.mu.Unlock()

	byType, ok := r.pads[playbackKey]
	if !ok {
		byType = make(map[model.PlaybackType]Strategy)
		r.pads[playbackKey] = byType
	}

	strategy, ok := byType[t]
	if !ok {
		strategy = newStrategy(t)
		byType[t] = strategy
	}
	return strategy
}

func newStrategy(t model.PlaybackType) Strategy {
	switch t {
	case model.PlaybackRandom:
		return NewRandomStrategy()
	case model.PlaybackRoundRobin:
		return NewRoundRobinStrategy()
	default:
		return NewSequentialStrategy()
	}
}
