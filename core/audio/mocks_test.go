package audio

import (
	"context"
	"fmt"
	"sync"

	"PadDeck/model"
)

// fakeClock provides deterministic audio-context time for tests.
type fakeClock struct {
	mu  sync.Mutex
	now float64
}

func (c *fakeClock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(seconds float64) {
	c.mu.Lock()
	c.now += seconds
	c.mu.Unlock()
}

// fakeContext implements OutputContext without real audio hardware.
type fakeContext struct {
	clock *fakeClock

	mu        sync.Mutex
	suspended bool
	sources   []*fakeSource
}

func newFakeContext() *fakeContext {
	return &fakeContext{clock: &fakeClock{}}
}

func (c *fakeContext) NewSource(buf *Buffer, onEnded func()) (Source, error) {
	src := &fakeSource{buf: buf, onEnded: onEnded, gain: 1.0}
	c.mu.Lock()
	c.sources = append(c.sources, src)
	c.mu.Unlock()
	return src, nil
}

func (c *fakeContext) Now() float64 { return c.clock.Now() }

func (c *fakeContext) Suspended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suspended
}

func (c *fakeContext) Resume() error {
	c.mu.Lock()
	c.suspended = false
	c.mu.Unlock()
	return nil
}

func (c *fakeContext) setSuspended(v bool) {
	c.mu.Lock()
	c.suspended = v
	c.mu.Unlock()
}

func (c *fakeContext) sourceCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sources)
}

func (c *fakeContext) lastSource() *fakeSource {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sources) == 0 {
		return nil
	}
	return c.sources[len(c.sources)-1]
}

// fakeSource implements Source and records its lifecycle.
type fakeSource struct {
	mu      sync.Mutex
	buf     *Buffer
	onEnded func()
	gain    float64
	playing bool
	stopped bool
}

func (s *fakeSource) Play() {
	s.mu.Lock()
	s.playing = true
	s.mu.Unlock()
}

func (s *fakeSource) SetGain(gain float64) {
	s.mu.Lock()
	s.gain = gain
	s.mu.Unlock()
}

func (s *fakeSource) Stop() {
	s.mu.Lock()
	s.playing = false
	s.stopped = true
	s.mu.Unlock()
}

func (s *fakeSource) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *fakeSource) currentGain() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gain
}

// fireEnded simulates the platform natural-end callback.
func (s *fakeSource) fireEnded() {
	s.mu.Lock()
	cb := s.onEnded
	s.playing = false
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// fakeStore implements AssetStore from an in-memory map.
// Behavior per asset is controlled through failure sets.
type fakeStore struct {
	mu        sync.Mutex
	assets    map[int64]*model.AssetData
	missing   map[int64]bool
	corrupt   map[int64]bool
	transient map[int64]int // remaining transient failures before success
	fetches   map[int64]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		assets:    make(map[int64]*model.AssetData),
		missing:   make(map[int64]bool),
		corrupt:   make(map[int64]bool),
		transient: make(map[int64]int),
		fetches:   make(map[int64]int),
	}
}

// addWavAsset registers a playable mono WAV asset of the given duration.
func (s *fakeStore) addWavAsset(id int64, sampleRate int, seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[id] = &model.AssetData{
		ID:          id,
		DisplayName: fmt.Sprintf("asset-%d", id),
		MimeType:    "audio/wav",
		RawBytes:    buildWav(sampleRate, 1, seconds),
	}
}

func (s *fakeStore) addCorruptAsset(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[id] = &model.AssetData{
		ID:          id,
		DisplayName: fmt.Sprintf("asset-%d", id),
		MimeType:    "audio/wav",
		RawBytes:    []byte("not a wav file at all"),
	}
	s.corrupt[id] = true
}

func (s *fakeStore) FetchAsset(ctx context.Context, assetID int64) (*model.AssetData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetches[assetID]++

	if n := s.transient[assetID]; n > 0 {
		s.transient[assetID] = n - 1
		return nil, fmt.Errorf("simulated storage outage")
	}
	if s.missing[assetID] {
		return nil, nil
	}

	asset, ok := s.assets[assetID]
	if !ok {
		return nil, nil
	}
	return asset, nil
}

func (s *fakeStore) fetchCount(assetID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[assetID]
}

// buildWav produces a minimal valid 16-bit PCM WAV payload.
func buildWav(sampleRate, channels int, seconds float64) []byte {
	frames := int(float64(sampleRate) * seconds)
	dataLen := frames * channels * 2

	buf := make([]byte, 44+dataLen)
	copy(buf[0:4], "RIFF")
	putUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	putUint32(buf[16:20], 16)
	putUint16(buf[20:22], 1) // PCM
	putUint16(buf[22:24], uint16(channels))
	putUint32(buf[24:28], uint32(sampleRate))
	putUint32(buf[28:32], uint32(sampleRate*channels*2))
	putUint16(buf[32:34], uint16(channels*2))
	putUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	putUint32(buf[40:44], uint32(dataLen))
	// 数据区留零即静音，解码器照常接受
	return buf
}

// buildWav8 produces an 8-bit unsigned PCM WAV payload with explicit sample bytes.
func buildWav8(sampleRate, channels int, data []byte) []byte {
	buf := make([]byte, 44+len(data))
	copy(buf[0:4], "RIFF")
	putUint32(buf[4:8], uint32(36+len(data)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	putUint32(buf[16:20], 16)
	putUint16(buf[20:22], 1) // PCM
	putUint16(buf[22:24], uint16(channels))
	putUint32(buf[24:28], uint32(sampleRate))
	putUint32(buf[28:32], uint32(sampleRate*channels))
	putUint16(buf[32:34], uint16(channels))
	putUint16(buf[34:36], 8)
	copy(buf[36:40], "data")
	putUint32(buf[40:44], uint32(len(data)))
	copy(buf[44:], data)
	return buf
}

func putUint16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// testBuffer builds an in-memory PCM buffer of the given duration.
func testBuffer(sampleRate, channels int, seconds float64) *Buffer {
	frames := int(float64(sampleRate) * seconds)
	return &Buffer{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		PCM:          make([]byte, frames*channels*2),
	}
}

func testPad(profileID string, page, pad int) model.PadInfo {
	return model.PadInfo{ProfileID: profileID, PageIndex: page, PadIndex: pad}
}
