package server

import (
	"encoding/json"
	"net/http"

	"PadDeck/core/audio"
	"PadDeck/logger"
	"PadDeck/model"
)

// triggerRequestBody 触发请求体
type triggerRequestBody struct {
	PadInfo     model.PadInfo           `json:"padInfo"`
	AssetIDs    []int64                 `json:"assetIds"`
	Type        model.PlaybackType      `json:"playbackType"`
	Behavior    model.ActivePadBehavior `json:"activePadBehavior"`
	DisplayName string                  `json:"displayName"`
}

// TriggerPadHandler 触发一个垫位
// 同步返回触发结果，加载状态事件随响应一并带回
func (h *APIHandler) TriggerPadHandler(w http.ResponseWriter, r *http.Request) {
	var body triggerRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "请求体解析失败")
		return
	}

	if body.Type == "" {
		body.Type = model.PlaybackSequential
	}
	if body.Behavior == "" {
		body.Behavior = model.BehaviorRestart
	}

	var events []audio.PadEvent
	outcome, err := h.controls.Trigger(r.Context(), audio.TriggerRequest{
		PadInfo:     body.PadInfo,
		AssetIDs:    body.AssetIDs,
		Type:        body.Type,
		Behavior:    body.Behavior,
		DisplayName: body.DisplayName,
		Observer:    func(ev audio.PadEvent) { events = append(events, ev) },
	})

	resp := map[string]interface{}{
		"outcome": outcome,
		"key":     body.PadInfo.PlaybackKey(),
		"events":  events,
	}
	if err != nil {
		resp["error"] = err.Error()
		writeJSON(w, http.StatusOK, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type padTargetBody struct {
	PadInfo         model.PadInfo `json:"padInfo"`
	DurationSeconds float64       `json:"durationSeconds,omitempty"`
}

// StopPadHandler 停止一个垫位
func (h *APIHandler) StopPadHandler(w http.ResponseWriter, r *http.Request) {
	var body padTargetBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "请求体解析失败")
		return
	}

	h.controls.Stop(body.PadInfo)
	writeJSON(w, http.StatusOK, map[string]string{"key": body.PadInfo.PlaybackKey(), "status": "stopping"})
}

// FadeOutPadHandler 淡出一个垫位
func (h *APIHandler) FadeOutPadHandler(w http.ResponseWriter, r *http.Request) {
	var body padTargetBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "请求体解析失败")
		return
	}

	h.controls.FadeOut(body.PadInfo, body.DurationSeconds)
	writeJSON(w, http.StatusOK, map[string]string{"key": body.PadInfo.PlaybackKey(), "status": "fading"})
}

// StopAllHandler 停止所有播放
func (h *APIHandler) StopAllHandler(w http.ResponseWriter, r *http.Request) {
	h.controls.StopAll()
	logger.Info("停止全部播放")
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

// FadeAllOutHandler 淡出所有播放
func (h *APIHandler) FadeAllOutHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DurationSeconds float64 `json:"durationSeconds,omitempty"`
	}
	// 空请求体时使用默认淡出时长
	_ = json.NewDecoder(r.Body).Decode(&body)

	h.controls.FadeAllOut(body.DurationSeconds)
	writeJSON(w, http.StatusOK, map[string]string{"status": "fading"})
}

// ActivePlaybackHandler 列出所有活跃播放及其选择算法状态
func (h *APIHandler) ActivePlaybackHandler(w http.ResponseWriter, r *http.Request) {
	keys := h.engine.ActiveKeys()

	type activeEntry struct {
		Key         string               `json:"key"`
		DisplayName string               `json:"displayName"`
		PadInfo     model.PadInfo        `json:"padInfo"`
		IsFading    bool                 `json:"isFading"`
		Selection   audio.SelectionState `json:"selection"`
	}

	entries := make([]activeEntry, 0, len(keys))
	for _, key := range keys {
		handle := h.engine.GetHandle(key)
		if handle == nil {
			continue
		}
		entries = append(entries, activeEntry{
			Key:         handle.Key,
			DisplayName: handle.DisplayName,
			PadInfo:     handle.PadInfo,
			IsFading:    h.engine.IsFading(key),
			Selection:   handle.Selection,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"active": entries})
}
