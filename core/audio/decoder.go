package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"PadDeck/logger"
	"PadDeck/model"

	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// AssetStore 存储协作方：按 ID 取素材的元数据和原始字节
// 素材不存在时返回 (nil, nil)
type AssetStore interface {
	FetchAsset(ctx context.Context, assetID int64) (*model.AssetData, error)
}

// DecoderConfig 解码器配置
type DecoderConfig struct {
	// 目标采样率和声道数，与输出上下文一致
	SampleRate   int
	ChannelCount int
	// 批量解码的两个独立并发上限：读取受 I/O 限制，解码受 CPU 限制
	LoadConcurrency   int
	DecodeConcurrency int
}

// Decoder 从存储读取素材字节并解码为 PCM 缓冲
// 解码失败不抛出边界之外，统一折叠为错误返回值供调用方兜底
type Decoder struct {
	store       AssetStore
	loadSlots   chan struct{}
	decodeSlots chan struct{}
	sampleRate  int
	channels    int
}

// NewDecoder 创建解码器
func NewDecoder(store AssetStore, cfg DecoderConfig) *Decoder {
	if cfg.LoadConcurrency < 1 {
		cfg.LoadConcurrency = 4
	}
	if cfg.DecodeConcurrency < 1 {
		cfg.DecodeConcurrency = 2
	}
	if cfg.SampleRate < 1 {
		cfg.SampleRate = 48000
	}
	if cfg.ChannelCount < 1 {
		cfg.ChannelCount = 2
	}
	return &Decoder{
		store:       store,
		loadSlots:   make(chan struct{}, cfg.LoadConcurrency),
		decodeSlots: make(chan struct{}, cfg.DecodeConcurrency),
		sampleRate:  cfg.SampleRate,
		channels:    cfg.ChannelCount,
	}
}

// DecodeOne 读取并解码单个素材
// 失败分类：素材缺失 ErrNotFound，字节损坏 ErrDecodeFailed，
// 存储临时故障 ErrTransientLoad（可重试）
func (d *Decoder) DecodeOne(ctx context.Context, assetID int64) (*Buffer, error) {
	asset, err := d.store.FetchAsset(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransientLoad, err)
	}
	if asset == nil {
		return nil, fmt.Errorf("%w: assetId=%d", ErrNotFound, assetID)
	}

	buf, err := d.decodeBytes(asset.RawBytes, asset.MimeType)
	if err != nil {
		logger.Warn("素材解码失败",
			logger.Int64("assetId", assetID),
			logger.String("mimeType", asset.MimeType),
			logger.ErrorField(err))
		return nil, fmt.Errorf("%w: assetId=%d: %v", ErrDecodeFailed, assetID, err)
	}

	return buf, nil
}

// DecodeInstant 触发时的快速路径
// 跳过批量机制直接解码；字节就绪后立即回调 onPartialReady，
// 让播放反馈在最终缓冲验证完成之前先行。大素材仍然整体解码，
// "渐进"指的是回调调度提前，不是采样级增量解码
func (d *Decoder) DecodeInstant(ctx context.Context, assetID int64, onPartialReady func()) (*Buffer, error) {
	asset, err := d.store.FetchAsset(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransientLoad, err)
	}
	if asset == nil {
		return nil, fmt.Errorf("%w: assetId=%d", ErrNotFound, assetID)
	}

	if onPartialReady != nil {
		onPartialReady()
	}

	buf, err := d.decodeBytes(asset.RawBytes, asset.MimeType)
	if err != nil {
		return nil, fmt.Errorf("%w: assetId=%d: %v", ErrDecodeFailed, assetID, err)
	}
	return buf, nil
}

// DecodeManyPipelined 批量流水线解码
// 读取和解码各自受独立并发上限约束；某个文件的字节一到就开始解码，
// 不等整批读取完成，最大化 I/O 与 CPU 的重叠
func (d *Decoder) DecodeManyPipelined(ctx context.Context, assetIDs []int64) (map[int64]*Buffer, map[int64]error) {
	results := make(map[int64]*Buffer, len(assetIDs))
	errs := make(map[int64]error)

	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, assetID := range assetIDs {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()

			select {
			case d.loadSlots <- struct{}{}:
			case <-ctx.Done():
				mu.Lock()
				errs[id] = fmt.Errorf("%w: %v", ErrTransientLoad, ctx.Err())
				mu.Unlock()
				return
			}

			asset, err := d.store.FetchAsset(ctx, id)
			<-d.loadSlots

			if err != nil {
				mu.Lock()
				errs[id] = fmt.Errorf("%w: %v", ErrTransientLoad, err)
				mu.Unlock()
				return
			}
			if asset == nil {
				mu.Lock()
				errs[id] = fmt.Errorf("%w: assetId=%d", ErrNotFound, id)
				mu.Unlock()
				return
			}

			select {
			case d.decodeSlots <- struct{}{}:
			case <-ctx.Done():
				mu.Lock()
				errs[id] = fmt.Errorf("%w: %v", ErrTransientLoad, ctx.Err())
				mu.Unlock()
				return
			}

			buf, err := d.decodeBytes(asset.RawBytes, asset.MimeType)
			<-d.decodeSlots

			mu.Lock()
			if err != nil {
				errs[id] = fmt.Errorf("%w: assetId=%d: %v", ErrDecodeFailed, id, err)
			} else {
				results[id] = buf
			}
			mu.Unlock()
		}(assetID)
	}

	wg.Wait()
	return results, errs
}

// decodeBytes 按格式解码原始字节为目标采样率/声道的 PCM 缓冲
// 第三方解码器的 panic 在此兜住，不向上传播
func (d *Decoder) decodeBytes(raw []byte, mimeType string) (buf *Buffer, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf = nil
			err = fmt.Errorf("解码器异常: %v", r)
		}
	}()

	if len(raw) == 0 {
		return nil, fmt.Errorf("素材字节为空")
	}

	format := detectFormat(mimeType, raw)

	var samples []int16
	var channels, rate int

	switch format {
	case "wav":
		samples, channels, rate, err = decodeWav(raw)
	case "mp3":
		samples, channels, rate, err = decodeMP3(raw)
	case "ogg":
		samples, channels, rate, err = decodeOgg(raw)
	default:
		return nil, fmt.Errorf("不支持的音频格式: %s", mimeType)
	}
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("解码结果为空")
	}

	samples, channels = conformChannels(samples, channels, d.channels)
	if rate != d.sampleRate {
		samples = resampleInterleaved(samples, channels, rate, d.sampleRate)
		rate = d.sampleRate
	}

	return &Buffer{
		ChannelCount: channels,
		SampleRate:   rate,
		PCM:          int16ToPCMBytes(samples),
	}, nil
}

// detectFormat 先看 MIME 类型，再用魔数嗅探
func detectFormat(mimeType string, raw []byte) string {
	mt := strings.ToLower(mimeType)
	switch {
	case strings.Contains(mt, "wav"):
		return "wav"
	case strings.Contains(mt, "ogg"), strings.Contains(mt, "vorbis"):
		return "ogg"
	case strings.Contains(mt, "mpeg"), strings.Contains(mt, "mp3"):
		return "mp3"
	}

	if len(raw) >= 4 {
		switch {
		case bytes.HasPrefix(raw, []byte("RIFF")):
			return "wav"
		case bytes.HasPrefix(raw, []byte("OggS")):
			return "ogg"
		case bytes.HasPrefix(raw, []byte("ID3")):
			return "mp3"
		case raw[0] == 0xFF && raw[1]&0xE0 == 0xE0:
			return "mp3"
		}
	}
	return ""
}

func decodeWav(raw []byte) ([]int16, int, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(raw))
	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("wav 解码失败: %w", err)
	}
	if pcm == nil || pcm.Format == nil || len(pcm.Data) == 0 {
		return nil, 0, 0, fmt.Errorf("wav 数据为空")
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}

	samples := make([]int16, len(pcm.Data))
	shift := uint(0)
	if bitDepth > 16 {
		shift = uint(bitDepth - 16)
	}
	for i, v := range pcm.Data {
		switch {
		case bitDepth > 16:
			samples[i] = int16(v >> shift)
		case bitDepth == 8:
			// 8 位 WAV 是无符号 0-255，先移回有符号再放大
			samples[i] = int16(v-128) << 8
		case bitDepth < 16:
			samples[i] = int16(v << uint(16-bitDepth))
		default:
			samples[i] = int16(v)
		}
	}

	return samples, pcm.Format.NumChannels, pcm.Format.SampleRate, nil
}

func decodeMP3(raw []byte) ([]int16, int, int, error) {
	dec, err := gomp3.NewDecoder(bytes.NewReader(raw))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("mp3 解码失败: %w", err)
	}

	// go-mp3 固定输出双声道 s16le
	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("mp3 读取失败: %w", err)
	}

	return pcmBytesToInt16(data), 2, dec.SampleRate(), nil
}

func decodeOgg(raw []byte) ([]int16, int, int, error) {
	data, format, err := oggvorbis.ReadAll(bytes.NewReader(raw))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("ogg 解码失败: %w", err)
	}

	samples := make([]int16, len(data))
	for i, f := range data {
		if f > 1 {
			f = 1
		}
		if f < -1 {
			f = -1
		}
		samples[i] = int16(f * 32767)
	}

	return samples, format.Channels, format.SampleRate, nil
}

// conformChannels 声道适配：单声道复制扩展，多声道裁剪或均值缩混
func conformChannels(samples []int16, srcChannels, dstChannels int) ([]int16, int) {
	if srcChannels == dstChannels || srcChannels < 1 {
		return samples, srcChannels
	}

	frames := len(samples) / srcChannels
	out := make([]int16, frames*dstChannels)

	for f := 0; f < frames; f++ {
		if srcChannels == 1 {
			for c := 0; c < dstChannels; c++ {
				out[f*dstChannels+c] = samples[f]
			}
			continue
		}
		if dstChannels == 1 {
			var sum int
			for c := 0; c < srcChannels; c++ {
				sum += int(samples[f*srcChannels+c])
			}
			out[f] = int16(sum / srcChannels)
			continue
		}
		for c := 0; c < dstChannels; c++ {
			src := c
			if src >= srcChannels {
				src = srcChannels - 1
			}
			out[f*dstChannels+c] = samples[f*srcChannels+src]
		}
	}

	return out, dstChannels
}

// resampleInterleaved 线性插值重采样，逐声道处理交错数据
func resampleInterleaved(samples []int16, channels, srcRate, dstRate int) []int16 {
	if srcRate == dstRate || srcRate < 1 || dstRate < 1 || channels < 1 {
		return samples
	}

	srcFrames := len(samples) / channels
	if srcFrames < 2 {
		return samples
	}

	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	out := make([]int16, dstFrames*channels)
	ratio := float64(srcRate) / float64(dstRate)

	for f := 0; f < dstFrames; f++ {
		srcPos := float64(f) * ratio
		i0 := int(srcPos)
		if i0 >= srcFrames-1 {
			i0 = srcFrames - 2
		}
		frac := srcPos - float64(i0)

		for c := 0; c < channels; c++ {
			a := float64(samples[i0*channels+c])
			b := float64(samples[(i0+1)*channels+c])
			out[f*channels+c] = int16(a + (b-a)*frac)
		}
	}

	return out
}

func pcmBytesToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(uint16(data[2*i]) | uint16(data[2*i+1])<<8)
	}
	return samples
}

func int16ToPCMBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[2*i] = byte(s)
		data[2*i+1] = byte(uint16(s) >> 8)
	}
	return data
}
