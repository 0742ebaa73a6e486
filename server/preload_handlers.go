package server

import (
	"encoding/json"
	"net/http"

	"PadDeck/core/audio"
	"PadDeck/logger"
	"PadDeck/model"
)

// flattenPadAssetIDs 将整页垫配置展平成去重后的素材 ID 列表，保持首次出现顺序
func flattenPadAssetIDs(pads []model.PadConfig) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, pad := range pads {
		for _, id := range pad.AssetIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// PreloadPageHandler 预热当前页的全部素材（最高优先级）
// 接受整页垫配置，也兼容裸素材 ID 列表
func (h *APIHandler) PreloadPageHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Pads     []model.PadConfig `json:"pads"`
		AssetIDs []int64           `json:"assetIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "请求体解析失败")
		return
	}

	ids := flattenPadAssetIDs(append(body.Pads, model.PadConfig{AssetIDs: body.AssetIDs}))

	h.preloader.RequestPreload(ids, audio.PriorityImmediate)
	writeJSON(w, http.StatusOK, map[string]int{"requested": len(ids)})
}

// PreloadHoverHandler 悬停信号触发的预热（中等优先级）
func (h *APIHandler) PreloadHoverHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AssetIDs []int64 `json:"assetIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "请求体解析失败")
		return
	}

	h.preloader.RequestPreload(body.AssetIDs, audio.PriorityMedium)
	writeJSON(w, http.StatusOK, map[string]int{"requested": len(body.AssetIDs)})
}

// PreloadRecentHandler 预热某配置档最近播放过的素材（高优先级）
func (h *APIHandler) PreloadRecentHandler(w http.ResponseWriter, r *http.Request) {
	profileID := r.URL.Query().Get("profileId")
	if profileID == "" {
		writeError(w, http.StatusBadRequest, "缺少 profileId 参数")
		return
	}

	h.preloader.PreloadRecent(r.Context(), profileID, 50)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// PreloadAllHandler 后台预热整个素材库（最低优先级）
func (h *APIHandler) PreloadAllHandler(w http.ResponseWriter, r *http.Request) {
	ids, err := h.store.ListAssetIDs(r.Context())
	if err != nil {
		logger.Error("列出素材失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "列出素材失败")
		return
	}

	h.preloader.RequestPreload(ids, audio.PriorityLow)
	writeJSON(w, http.StatusOK, map[string]int{"requested": len(ids)})
}

// PreloadStatsHandler 预热统计
func (h *APIHandler) PreloadStatsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.preloader.Stats())
}
