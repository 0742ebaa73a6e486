package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"PadDeck/core/audio"
	"PadDeck/logger"
	"PadDeck/storage"

	"github.com/fsnotify/fsnotify"
)

// 文件大小稳定检测的轮询间隔和最大等待
const (
	stabilizeInterval = 500 * time.Millisecond
	stabilizeTimeout  = 30 * time.Second
)

// Watcher 监听导入目录，新音频文件落盘后自动上传并预热
// 拖一个文件进目录等价于走一次上传接口
type Watcher struct {
	dir       string
	store     *storage.MinioAssetStore
	preloader *audio.Preloader

	fsw      *fsnotify.Watcher
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewWatcher 创建导入目录监听器，目录不存在时自动创建
func NewWatcher(dir string, store *storage.MinioAssetStore, preloader *audio.Preloader) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	return &Watcher{
		dir:       dir,
		store:     store,
		preloader: preloader,
		fsw:       fsw,
		stopChan:  make(chan struct{}),
	}, nil
}

// Start 启动监听协程
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.watchLoop()
	logger.Info("素材导入监听已启动", logger.String("dir", w.dir))
}

// Stop 停止监听并等待处理中的文件完成
func (w *Watcher) Stop() {
	close(w.stopChan)
	w.fsw.Close()
	w.wg.Wait()
	logger.Info("素材导入监听已停止")
}

func (w *Watcher) watchLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopChan:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isAudioFile(event.Name) {
				continue
			}

			// 同一文件的 Create/Write 事件可能连发，
			// ingestFile 内部的稳定检测会吸收重复
			w.wg.Add(1)
			go func(path string) {
				defer w.wg.Done()
				w.ingestFile(path)
			}(event.Name)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("导入目录监听错误", logger.ErrorField(err))
		}
	}
}

func isAudioFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".mp3", ".ogg", ".oga":
		return true
	default:
		return false
	}
}

// ingestFile 等文件写入稳定后上传并预热，成功后删除源文件
func (w *Watcher) ingestFile(path string) {
	if !w.waitStable(path) {
		logger.Warn("文件长时间未写入完成，跳过导入", logger.String("path", path))
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("读取导入文件失败",
			logger.String("path", path),
			logger.ErrorField(err))
		return
	}
	if len(data) == 0 {
		return
	}

	displayName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	mimeType := mimeTypeFor(path)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	assetID, err := w.store.UploadAsset(ctx, displayName, mimeType, data)
	if err != nil {
		logger.Error("导入文件上传失败",
			logger.String("path", path),
			logger.ErrorField(err))
		return
	}

	logger.Info("文件已导入素材库",
		logger.String("path", path),
		logger.Int64("assetId", assetID),
		logger.Int("bytes", len(data)))

	w.preloader.RequestPreload([]int64{assetID}, audio.PriorityLow)

	if err := os.Remove(path); err != nil {
		logger.Warn("删除已导入文件失败",
			logger.String("path", path),
			logger.ErrorField(err))
	}
}

// waitStable 轮询文件大小直到连续两次一致，视为写入完成
func (w *Watcher) waitStable(path string) bool {
	deadline := time.Now().Add(stabilizeTimeout)
	var lastSize int64 = -1

	for time.Now().Before(deadline) {
		select {
		case <-w.stopChan:
			return false
		case <-time.After(stabilizeInterval):
		}

		info, err := os.Stat(path)
		if err != nil {
			return false
		}

		if info.Size() == lastSize && lastSize > 0 {
			return true
		}
		lastSize = info.Size()
	}
	return false
}

func mimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".ogg", ".oga":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
