package server

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"PadDeck/core/audio"
	"PadDeck/logger"

	"github.com/gorilla/mux"
)

// 按扩展名猜测 MIME 类型，表单未携带时兜底
func mimeTypeForFilename(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
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

// UploadAssetHandler 上传音频素材
// Expected multipart form fields:
// - assetFile: the audio file (WAV, MP3, OGG)
// - displayName: display name (optional, defaults to filename)
func (h *APIHandler) UploadAssetHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil { // 32MB max memory
		writeError(w, http.StatusBadRequest, fmt.Sprintf("表单解析失败: %v", err))
		return
	}

	file, header, err := r.FormFile("assetFile")
	if err != nil {
		writeError(w, http.StatusBadRequest, "缺少 assetFile 字段")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "读取上传文件失败")
		return
	}

	displayName := r.FormValue("displayName")
	if displayName == "" {
		displayName = header.Filename
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = mimeTypeForFilename(header.Filename)
	}

	assetID, err := h.store.UploadAsset(r.Context(), displayName, mimeType, data)
	if err != nil {
		logger.Error("素材上传失败",
			logger.String("filename", header.Filename),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "素材上传失败")
		return
	}

	logger.Info("素材已上传",
		logger.Int64("assetId", assetID),
		logger.String("displayName", displayName),
		logger.Int("bytes", len(data)))

	// 新素材低优先级预热，避免首次触发时的解码等待
	h.preloader.RequestPreload([]int64{assetID}, audio.PriorityLow)

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"assetId":     assetID,
		"displayName": displayName,
		"mimeType":    mimeType,
	})
}

// ListAssetsHandler 列出素材库
func (h *APIHandler) ListAssetsHandler(w http.ResponseWriter, r *http.Request) {
	assets, err := h.assetRepo.ListAssets()
	if err != nil {
		logger.Error("查询素材库失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "查询素材库失败")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"assets": assets})
}

// DeleteAssetHandler 删除素材（软删除）
func (h *APIHandler) DeleteAssetHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "无效的素材ID")
		return
	}

	if err := h.assetRepo.DeleteAsset(id); err != nil {
		logger.Error("删除素材失败", logger.Int64("assetId", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "删除素材失败")
		return
	}

	h.controls.InvalidateAsset(id)

	writeJSON(w, http.StatusOK, map[string]interface{}{"assetId": id, "status": "deleted"})
}
