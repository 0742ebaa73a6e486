package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferCachePutGet(t *testing.T) {
	c := NewBufferCache(10, 1<<20)

	buf := testBuffer(48000, 2, 0.1)
	c.Put(1, buf)

	got, state := c.Get(1)
	require.Equal(t, CacheHit, state)
	assert.Same(t, buf, got)

	got, state = c.Get(2)
	assert.Equal(t, CacheMiss, state)
	assert.Nil(t, got)
}

func TestBufferCacheFailureMarker(t *testing.T) {
	c := NewBufferCache(10, 1<<20)

	c.Put(7, nil)

	got, state := c.Get(7)
	assert.Equal(t, CacheFailure, state)
	assert.Nil(t, got)

	// 失效后恢复为未缓存
	c.Invalidate(7)
	_, state = c.Get(7)
	assert.Equal(t, CacheMiss, state)
}

func TestBufferCacheEntryLimit(t *testing.T) {
	c := NewBufferCache(3, 1<<30)

	// 人工时钟让所有条目都超出保护窗口
	now := time.Now()
	c.now = func() time.Time { return now }

	for id := int64(1); id <= 5; id++ {
		now = now.Add(time.Minute)
		c.Put(id, testBuffer(48000, 2, 0.01))
	}

	assert.Equal(t, 3, c.Len())

	// 最旧的条目被逐出，最新的保留
	_, state := c.Get(1)
	assert.Equal(t, CacheMiss, state)
	_, state = c.Get(5)
	assert.Equal(t, CacheHit, state)
}

func TestBufferCacheByteLimit(t *testing.T) {
	buf := testBuffer(48000, 2, 0.1)
	c := NewBufferCache(100, buf.ByteSize()*2)

	now := time.Now()
	c.now = func() time.Time { return now }

	for id := int64(1); id <= 4; id++ {
		now = now.Add(time.Minute)
		c.Put(id, testBuffer(48000, 2, 0.1))
	}

	assert.LessOrEqual(t, c.TotalBytes(), buf.ByteSize()*2)
	assert.Equal(t, 2, c.Len())
}

func TestBufferCacheEvictsFailureMarkersFirst(t *testing.T) {
	c := NewBufferCache(3, 1<<30)

	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put(1, testBuffer(48000, 2, 0.01))
	now = now.Add(time.Minute)
	c.Put(2, nil) // failure marker
	now = now.Add(time.Minute)
	c.Put(3, testBuffer(48000, 2, 0.01))
	now = now.Add(time.Minute)
	c.Put(4, testBuffer(48000, 2, 0.01))

	// 失败标记比更旧的有效条目先被逐出
	_, state := c.Get(2)
	assert.Equal(t, CacheMiss, state)
	_, state = c.Get(1)
	assert.Equal(t, CacheHit, state)
}

func TestBufferCacheRecentAccessProtection(t *testing.T) {
	c := NewBufferCache(2, 1<<30)

	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put(1, testBuffer(48000, 2, 0.01))
	c.Put(2, testBuffer(48000, 2, 0.01))

	// 两个条目都在保护窗口内，插入第三个触发紧急逐出，
	// 缓存仍然不超限
	c.Put(3, testBuffer(48000, 2, 0.01))
	assert.LessOrEqual(t, c.Len(), 2)

	_, state := c.Get(3)
	assert.Equal(t, CacheHit, state)
}

func TestBufferCacheRejectsOversizedBuffer(t *testing.T) {
	c := NewBufferCache(10, 1024)

	// 单条缓冲超过字节上限：不缓存，占用保持不超限
	c.Put(1, testBuffer(48000, 2, 0.1))

	_, state := c.Get(1)
	assert.Equal(t, CacheMiss, state)
	assert.Equal(t, 0, c.Len())
	assert.LessOrEqual(t, c.TotalBytes(), int64(1024))

	// 超限的替换同样移除旧条目且不插入新条目
	small := testBuffer(8000, 1, 0.01)
	require.LessOrEqual(t, small.ByteSize(), int64(1024))
	c.Put(2, small)
	c.Put(2, testBuffer(48000, 2, 0.1))

	_, state = c.Get(2)
	assert.Equal(t, CacheMiss, state)
	assert.Equal(t, int64(0), c.TotalBytes())
}

func TestBufferCachePutReplacesExisting(t *testing.T) {
	c := NewBufferCache(10, 1<<20)

	first := testBuffer(48000, 2, 0.1)
	second := testBuffer(48000, 2, 0.2)

	c.Put(1, first)
	c.Put(1, second)

	got, state := c.Get(1)
	require.Equal(t, CacheHit, state)
	assert.Same(t, second, got)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, second.ByteSize(), c.TotalBytes())
}
