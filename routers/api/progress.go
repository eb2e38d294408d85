package api

import (
	"net/http"
	"time"

	"VideoRitz-server/models"
	"VideoRitz-server/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// 项目进度 WebSocket 推送：以对象存储里的流水线状态为唯一来源，
// 后台执行器负责写入，这里只轮询并在阶段/进度变化时推送
func ProjectProgressWebSocket(c *gin.Context) {
	projectID := c.Param("project_id")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "WebSocket升级失败"})
		return
	}
	defer conn.Close()

	var st models.PipelineState
	found, err := service.GetJSON(service.StateKey(projectID), &st)
	if err != nil || !found {
		_ = conn.WriteJSON(map[string]interface{}{"error": "pipeline state not found"})
		return
	}
	_ = conn.WriteJSON(st)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	prevStage := st.Stage
	prevProgress := st.Progress

	for range ticker.C {
		var cur models.PipelineState
		found, err := service.GetJSON(service.StateKey(projectID), &cur)
		if err != nil || !found {
			// 读取失败继续重试，状态对象不会消失
			continue
		}

		if cur.Stage != prevStage || cur.Progress != prevProgress {
			if err := conn.WriteJSON(cur); err != nil {
				break
			}
			prevStage = cur.Stage
			prevProgress = cur.Progress
		}

		if cur.Stage == models.StageDone || cur.Stage == models.StageError {
			_ = conn.WriteJSON(cur)
			break
		}
	}
}
