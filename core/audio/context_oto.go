package audio

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// otoContext 基于 ebitengine/oto 的真实输出上下文
// 硬件混音由 oto 底层完成，每个播放源一个独立 Player
type otoContext struct {
	ctx          *oto.Context
	start        time.Time
	sampleRate   int
	channelCount int

	mu        sync.Mutex
	suspended bool
}

// NewOtoContext 创建平台音频输出上下文
// 无音频设备的环境下 oto 初始化失败，调用方会把错误映射为 ErrUnavailable
func NewOtoContext(sampleRate, channelCount int) (OutputContext, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channelCount,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("创建 oto 上下文失败: %w", err)
	}
	<-ready

	return &otoContext{
		ctx:          ctx,
		start:        time.Now(),
		sampleRate:   sampleRate,
		channelCount: channelCount,
	}, nil
}

func (c *otoContext) Now() float64 {
	return time.Since(c.start).Seconds()
}

func (c *otoContext) Suspended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suspended
}

func (c *otoContext) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.suspended {
		return nil
	}
	if err := c.ctx.Resume(); err != nil {
		return err
	}
	c.suspended = false
	return nil
}

// Suspend 挂起输出上下文
func (c *otoContext) Suspend() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.suspended {
		return nil
	}
	if err := c.ctx.Suspend(); err != nil {
		return err
	}
	c.suspended = true
	return nil
}

func (c *otoContext) NewSource(buf *Buffer, onEnded func()) (Source, error) {
	if buf == nil || len(buf.PCM) == 0 {
		return nil, fmt.Errorf("空的播放缓冲")
	}

	reader := &trackingReader{r: bytes.NewReader(buf.PCM)}
	player := c.ctx.NewPlayer(reader)

	return &otoSource{
		player:  player,
		reader:  reader,
		onEnded: onEnded,
	}, nil
}

// trackingReader 记录底层数据是否已读尽，用于自然结束检测
type trackingReader struct {
	r  *bytes.Reader
	mu sync.Mutex
	// 数据读尽不代表播放结束，oto 内部还有缓冲未放完
	exhausted bool
}

func (tr *trackingReader) Read(p []byte) (int, error) {
	n, err := tr.r.Read(p)
	if err == io.EOF {
		tr.mu.Lock()
		tr.exhausted = true
		tr.mu.Unlock()
	}
	return n, err
}

func (tr *trackingReader) Exhausted() bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.exhausted
}

// otoSource 单次播放源
type otoSource struct {
	player  *oto.Player
	reader  *trackingReader
	onEnded func()

	mu      sync.Mutex
	started bool
	stopped bool
}

func (s *otoSource) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.stopped {
		return
	}
	s.started = true
	s.player.Play()

	// 平台侧的"播放结束"通知：数据读尽且播放器排空后回调一次
	go s.watchEnded()
}

func (s *otoSource) watchEnded() {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.Lock()
		stopped := s.stopped
		s.mu.Unlock()
		if stopped {
			return
		}

		if s.reader.Exhausted() && !s.player.IsPlaying() {
			if s.onEnded != nil {
				s.onEnded()
			}
			return
		}
	}
}

func (s *otoSource) SetGain(gain float64) {
	if gain < 0 {
		gain = 0
	}
	if gain > 1 {
		gain = 1
	}
	s.player.SetVolume(gain)
}

func (s *otoSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	s.player.Close()
}
