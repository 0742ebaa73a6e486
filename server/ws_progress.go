package server

import (
	"net/http"
	"time"

	"PadDeck/logger"

	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsWriteTimeout = 5 * time.Second

// ProgressStreamHandler 把引擎的进度流推给 WebSocket 客户端
// 每个连接独立订阅；客户端断开或写失败时取消订阅并关闭连接
func (h *APIHandler) ProgressStreamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket 升级失败", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	subID, updates := h.engine.SubscribeProgress(128)
	defer h.engine.UnsubscribeProgress(subID)

	logger.Debug("进度订阅已建立", logger.String("subscriberId", subID))

	// 读循环只用来感知客户端断开
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			logger.Debug("进度订阅客户端断开", logger.String("subscriberId", subID))
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(update); err != nil {
				logger.Warn("进度推送失败，关闭连接",
					logger.String("subscriberId", subID),
					logger.ErrorField(err))
				return
			}
		}
	}
}
