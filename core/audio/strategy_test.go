package audio

import (
	"testing"

	"PadDeck/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequentialStrategyCycles(t *testing.T) {
	s := NewSequentialStrategy()
	candidates := []int64{10, 20, 30}

	var played []int64
	for i := 0; i < 4; i++ {
		sel, err := s.SelectNext(candidates)
		require.NoError(t, err)
		s.UpdateState(sel.Index, candidates)
		played = append(played, sel.AssetID)
	}

	// 到尾回绕
	assert.Equal(t, []int64{10, 20, 30, 10}, played)
}

func TestSequentialStrategySelectWithoutUpdateDoesNotAdvance(t *testing.T) {
	s := NewSequentialStrategy()
	candidates := []int64{10, 20, 30}

	sel1, err := s.SelectNext(candidates)
	require.NoError(t, err)
	sel2, err := s.SelectNext(candidates)
	require.NoError(t, err)

	// 未确认播放时游标不动
	assert.Equal(t, sel1.AssetID, sel2.AssetID)
}

func TestSequentialStrategyCursorClampsOnShrink(t *testing.T) {
	s := NewSequentialStrategy()
	candidates := []int64{10, 20, 30}

	sel, err := s.SelectNext(candidates)
	require.NoError(t, err)
	s.UpdateState(sel.Index, candidates)
	sel, err = s.SelectNext(candidates)
	require.NoError(t, err)
	s.UpdateState(sel.Index, candidates)

	// 候选收缩后游标夹回范围内
	shrunk := []int64{10}
	sel, err = s.SelectNext(shrunk)
	require.NoError(t, err)
	assert.Equal(t, int64(10), sel.AssetID)
	assert.Equal(t, 0, sel.Index)
}

func TestRandomStrategyBounds(t *testing.T) {
	s := NewRandomStrategy()
	candidates := []int64{10, 20, 30, 40}

	seen := make(map[int64]bool)
	for i := 0; i < 50; i++ {
		sel, err := s.SelectNext(candidates)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, sel.Index, 0)
		assert.Less(t, sel.Index, len(candidates))
		assert.Equal(t, candidates[sel.Index], sel.AssetID)
		seen[sel.AssetID] = true
	}

	// 50 次选择后全部候选都出现过（单候选命中概率 1-(3/4)^50）
	assert.Len(t, seen, len(candidates))
}

func TestRoundRobinStrategyFullRound(t *testing.T) {
	s := NewRoundRobinStrategy()
	candidates := []int64{10, 20, 30, 40, 50}

	for round := 0; round < 3; round++ {
		seen := make(map[int64]bool)
		for i := 0; i < len(candidates); i++ {
			sel, err := s.SelectNext(candidates)
			require.NoError(t, err)
			assert.False(t, seen[sel.AssetID], "一轮内不应重复: round=%d asset=%d", round, sel.AssetID)
			seen[sel.AssetID] = true
			s.UpdateState(sel.Index, candidates)
		}
		assert.Len(t, seen, len(candidates))
	}
}

func TestRoundRobinStrategyFailedSelectionStaysInPool(t *testing.T) {
	s := NewRoundRobinStrategy()
	candidates := []int64{10, 20}

	sel, err := s.SelectNext(candidates)
	require.NoError(t, err)

	// 不调用 UpdateState 模拟解码失败换素材：池不变
	again, err := s.SelectNext(candidates)
	require.NoError(t, err)
	_ = again

	s.UpdateState(sel.Index, candidates)
	assert.Len(t, s.Remaining(), 1)
}

func TestRoundRobinStrategyRebuildRemaining(t *testing.T) {
	s := NewRoundRobinStrategy()
	candidates := []int64{10, 20, 30}

	s.SetRemaining([]int{2})
	sel, err := s.SelectNext(candidates)
	require.NoError(t, err)
	assert.Equal(t, int64(30), sel.AssetID)
}

func TestStrategyEmptyCandidates(t *testing.T) {
	for _, s := range []Strategy{NewSequentialStrategy(), NewRandomStrategy(), NewRoundRobinStrategy()} {
		_, err := s.SelectNext(nil)
		assert.ErrorIs(t, err, ErrEmptyCandidates)
	}
}

func TestStrategyRegistryIsolatesPads(t *testing.T) {
	r := NewStrategyRegistry()
	candidates := []int64{10, 20, 30}

	padA := testPad("p", 0, 0).PlaybackKey()
	padB := testPad("p", 0, 1).PlaybackKey()

	sa := r.ForPad(padA, model.PlaybackSequential)
	sb := r.ForPad(padB, model.PlaybackSequential)

	// 推进 A 两次
	for i := 0; i < 2; i++ {
		sel, err := sa.SelectNext(candidates)
		require.NoError(t, err)
		sa.UpdateState(sel.Index, candidates)
	}

	// B 的游标不受影响
	sel, err := sb.SelectNext(candidates)
	require.NoError(t, err)
	assert.Equal(t, int64(10), sel.AssetID)

	// 同垫位同类型返回同一实例
	assert.Same(t, sa, r.ForPad(padA, model.PlaybackSequential))
}
