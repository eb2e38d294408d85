package api

import (
	"log"
	"net/http"
	"strconv"

	"VideoRitz-server/models"
	"VideoRitz-server/service"

	"github.com/gin-gonic/gin"
)

// 获取分镜脚本（确认前供前端展示 / 编辑）
func GetStoryboard(c *gin.Context) {
	projectID := c.Param("project_id")

	var st models.PipelineState
	found, err := service.GetJSON(service.StateKey(projectID), &st)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取流水线状态失败: " + err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "项目流水线状态不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stage": st.Stage, "shots": st.Shots})
}

// 确认分镜脚本：接受编辑后的分镜（可增删改），重排 index 后启动分镜流水线
func ConfirmStoryboard(c *gin.Context) {
	projectID := c.Param("project_id")
	var req struct {
		Shots []models.Shot `json:"shots"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var st models.PipelineState
	found, err := service.GetJSON(service.StateKey(projectID), &st)
	if err != nil || !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "项目流水线状态不存在"})
		return
	}
	if st.Stage != models.StageStoryboardReview {
		c.JSON(http.StatusConflict, gin.H{"error": "当前阶段不可确认分镜: " + st.Stage})
		return
	}

	// 请求未带 shots 视为原样确认
	if len(req.Shots) > 0 {
		st.Shots = req.Shots
	}
	if len(st.Shots) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "分镜列表为空"})
		return
	}
	st.Shots = models.ReindexShots(st.Shots)
	st.Stage = models.StageGenerating
	st.SetProgress(16)
	if err := service.PutJSON(service.StateKey(projectID), &st); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "保存分镜失败: " + err.Error()})
		return
	}

	project, err := models.GetProjectByID(projectID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "项目未找到: " + err.Error()})
		return
	}
	if err := service.EnqueueRunShots(projectID, project.Theme); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "任务入队失败: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"project_id": projectID, "shot_count": len(st.Shots)})
}

// 恢复中断的流水线：已完成分镜保留，仅重跑未完成子集
func ResumeProject(c *gin.Context) {
	projectID := c.Param("project_id")

	project, err := models.GetProjectByID(projectID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "项目未找到: " + err.Error()})
		return
	}
	if err := service.EnqueueResume(projectID, project.Theme); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "任务入队失败: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"project_id": projectID, "message": "恢复任务已入队"})
}

// 手动重试单个失败分镜
func RetryShot(c *gin.Context) {
	projectID := c.Param("project_id")
	idx, err := strconv.Atoi(c.Param("shot_index"))
	if err != nil || idx < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "shot_index 非法"})
		return
	}

	var st models.PipelineState
	found, gerr := service.GetJSON(service.StateKey(projectID), &st)
	if gerr != nil || !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "项目流水线状态不存在"})
		return
	}
	if st.ShotByIndex(idx) == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "分镜不存在"})
		return
	}

	if err := service.EnqueueRetryShot(projectID, idx); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "任务入队失败: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"project_id": projectID, "shot_index": idx})
}

// 触发成片合成（素材就绪后；合成失败可重复调用，不会重新生成素材）
func AssembleProject(c *gin.Context) {
	projectID := c.Param("project_id")

	var st models.PipelineState
	found, err := service.GetJSON(service.StateKey(projectID), &st)
	if err != nil || !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "项目流水线状态不存在"})
		return
	}
	if st.SuccessCount() == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "没有可用的分镜视频，无法合成"})
		return
	}

	if err := service.EnqueueMontage(projectID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "任务入队失败: " + err.Error()})
		return
	}
	log.Printf("[API] 合成任务已入队: project=%s, 可用分镜 %d", projectID, st.SuccessCount())
	c.JSON(http.StatusOK, gin.H{"project_id": projectID, "usable_shots": st.SuccessCount()})
}
