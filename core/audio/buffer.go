package audio

// Buffer 解码后的 PCM 缓冲，s16le 交错存储
// 解码完成后不再修改；同一素材的并发播放共享同一个 Buffer，
// 各自持有独立的播放源
type Buffer struct {
	ChannelCount int
	SampleRate   int
	PCM          []byte
}

// DurationSeconds 计算缓冲时长
func (b *Buffer) DurationSeconds() float64 {
	if b == nil || b.SampleRate <= 0 || b.ChannelCount <= 0 {
		return 0
	}
	frames := len(b.PCM) / (2 * b.ChannelCount)
	return float64(frames) / float64(b.SampleRate)
}

// ByteSize 估算内存占用，用于缓存的字节上限
func (b *Buffer) ByteSize() int64 {
	if b == nil {
		return 0
	}
	return int64(len(b.PCM))
}

// SilentBuffer 生成一段静音缓冲，作为可选的优雅降级兜底
func SilentBuffer(sampleRate, channelCount int, seconds float64) *Buffer {
	frames := int(float64(sampleRate) * seconds)
	if frames < 1 {
		frames = 1
	}
	return &Buffer{
		ChannelCount: channelCount,
		SampleRate:   sampleRate,
		PCM:          make([]byte, frames*channelCount*2),
	}
}
