package audio

import (
	"fmt"
	"sync"

	"PadDeck/logger"
)

// OutputContext 平台音频输出上下文
// 真实实现包在 oto 之上，测试注入假实现
type OutputContext interface {
	// NewSource 为一个缓冲创建独立播放源，播放自然结束时回调 onEnded
	NewSource(buf *Buffer, onEnded func()) (Source, error)
	// Now 返回音频时钟的当前秒数，单调递增
	Now() float64
	// Suspended 上下文是否处于挂起状态
	Suspended() bool
	// Resume 恢复被挂起的上下文
	Resume() error
}

// Source 单次播放的活跃源
type Source interface {
	Play()
	SetGain(gain float64)
	Stop()
}

// ContextFactory 创建输出上下文，环境不支持音频输出时返回错误
type ContextFactory func() (OutputContext, error)

// ContextManager 持有唯一的输出上下文，首次使用时惰性创建
type ContextManager struct {
	mu      sync.Mutex
	ctx     OutputContext
	factory ContextFactory
}

// NewContextManager 创建上下文管理器
func NewContextManager(factory ContextFactory) *ContextManager {
	return &ContextManager{factory: factory}
}

// GetContext 返回单例输出上下文，首次调用时创建
// 环境不支持音频输出时返回 ErrUnavailable；
// 上下文处于挂起状态时机会性地尝试恢复，但不阻塞调用方
func (m *ContextManager) GetContext() (OutputContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx == nil {
		ctx, err := m.factory()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		m.ctx = ctx
		logger.Info("音频输出上下文已创建")
	}

	if m.ctx.Suspended() {
		ctx := m.ctx
		go func() {
			if err := ctx.Resume(); err != nil {
				logger.Warn("音频上下文恢复失败", logger.ErrorField(err))
			}
		}()
	}

	return m.ctx, nil
}

// ResumeContext 显式恢复上下文，应在用户交互处理器中调用
// 首次交互前调用方不能假设音频可以播放
func (m *ContextManager) ResumeContext() error {
	ctx, err := m.GetContext()
	if err != nil {
		return err
	}
	if !ctx.Suspended() {
		return nil
	}
	if err := ctx.Resume(); err != nil {
		return fmt.Errorf("恢复音频上下文失败: %w", err)
	}
	return nil
}
