package audio

import "errors"

// 播放核心的错误分类
// 解码器和缓冲缓存不把错误抛出公共边界之外，
// 由 Controls 统一决定重试、换素材兜底还是上报错误
var (
	// ErrNotFound 存储中没有该素材的字节，不可重试
	ErrNotFound = errors.New("asset not found in storage")

	// ErrDecodeFailed 字节存在但格式损坏或不支持，不可重试
	ErrDecodeFailed = errors.New("audio decode failed")

	// ErrEmptyCandidates 垫未配置任何素材就被触发，契约违规
	ErrEmptyCandidates = errors.New("no candidate assets configured")

	// ErrTransientLoad 临时性读取失败，可按退避策略重试
	ErrTransientLoad = errors.New("transient load failure")

	// ErrUnavailable 当前环境没有可用的音频输出
	ErrUnavailable = errors.New("audio output unavailable")
)
