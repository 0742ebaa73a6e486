package server

import (
	"encoding/json"
	"net/http"

	"PadDeck/cache"
	"PadDeck/config"
	"PadDeck/core/audio"
	"PadDeck/logger"
	"PadDeck/repository"
	"PadDeck/storage"
)

// APIHandler 处理所有API请求
type APIHandler struct {
	controls  *audio.Controls
	engine    *audio.Engine
	preloader *audio.Preloader
	armed     *audio.ArmedQueue
	store     *storage.MinioAssetStore
	assetRepo repository.AssetRepository
	cfg       *config.Config
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(
	controls *audio.Controls,
	engine *audio.Engine,
	preloader *audio.Preloader,
	armed *audio.ArmedQueue,
	store *storage.MinioAssetStore,
	assetRepo repository.AssetRepository,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		controls:  controls,
		engine:    engine,
		preloader: preloader,
		armed:     armed,
		store:     store,
		assetRepo: assetRepo,
		cfg:       cfg,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("写入响应失败", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// RecentPlayedHandler 查询某配置档的最近播放素材
func (h *APIHandler) RecentPlayedHandler(w http.ResponseWriter, r *http.Request) {
	profileID := r.URL.Query().Get("profileId")
	if profileID == "" {
		writeError(w, http.StatusBadRequest, "缺少 profileId 参数")
		return
	}

	ids, err := cache.RecentlyPlayed(r.Context(), profileID, 50)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "最近播放暂不可用")
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"assetIds": ids})
}
