package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"PadDeck/core/audio"
)

// ArmPadHandler 把垫位加入武装队列
func (h *APIHandler) ArmPadHandler(w http.ResponseWriter, r *http.Request) {
	var track audio.ArmedTrack
	if err := json.NewDecoder(r.Body).Decode(&track); err != nil {
		writeError(w, http.StatusBadRequest, "请求体解析失败")
		return
	}
	if len(track.AssetIDs) == 0 {
		writeError(w, http.StatusBadRequest, "武装条目未配置素材")
		return
	}

	h.armed.Arm(track)
	writeJSON(w, http.StatusOK, map[string]interface{}{"queue": h.armed.List()})
}

// DisarmPadHandler 按键移除武装条目
func (h *APIHandler) DisarmPadHandler(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "缺少 key 参数")
		return
	}

	removed := h.armed.Disarm(key)
	writeJSON(w, http.StatusOK, map[string]interface{}{"removed": removed, "queue": h.armed.List()})
}

// PlayNextArmedHandler 触发武装队列的队首
func (h *APIHandler) PlayNextArmedHandler(w http.ResponseWriter, r *http.Request) {
	var events []audio.PadEvent
	outcome, err := h.armed.PlayNext(r.Context(), func(ev audio.PadEvent) { events = append(events, ev) })

	if errors.Is(err, audio.ErrQueueEmpty) {
		writeError(w, http.StatusNotFound, "武装队列为空")
		return
	}

	resp := map[string]interface{}{"outcome": outcome, "events": events}
	if err != nil {
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListArmedHandler 查看武装队列
func (h *APIHandler) ListArmedHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"queue": h.armed.List()})
}

// ClearArmedHandler 清空武装队列
func (h *APIHandler) ClearArmedHandler(w http.ResponseWriter, r *http.Request) {
	h.armed.Clear()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
