package api

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"VideoRitz-server/models"
	"VideoRitz-server/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// 创建项目：上传参考图、落目录库、写项目元数据，随后排队生成分镜脚本
func CreateProject(c *gin.Context) {
	var req struct {
		Theme     string `form:"theme"`
		ShotCount int    `form:"shot_count"`
		Format    string `form:"format"`
		VideoRef  string `form:"video_ref"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Theme == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "theme 不能为空"})
		return
	}

	// 默认分镜数量
	if req.ShotCount <= 0 {
		req.ShotCount = 5
	}
	switch req.Format {
	case models.FormatWide, models.FormatTall, models.FormatSquare:
	case "":
		req.Format = models.FormatWide
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format 仅支持 16:9 / 9:16 / 1:1"})
		return
	}

	projectID := uuid.NewString()

	// 参考图可选，最多带 3 张
	refCount := 0
	if form, err := c.MultipartForm(); err == nil && form != nil {
		files := form.File["refs"]
		if len(files) > 3 {
			files = files[:3]
		}
		for i, fh := range files {
			f, err := fh.Open()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("参考图 %d 打开失败: %v", i, err)})
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("参考图 %d 读取失败: %v", i, err)})
				return
			}
			if _, err := service.UploadToMinIO(bytes.NewReader(data), service.RefKey(projectID, i), int64(len(data))); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "参考图上传失败: " + err.Error()})
				return
			}
			refCount++
		}
	}

	project := models.Project{
		ID:        projectID,
		Theme:     req.Theme,
		Format:    req.Format,
		ShotCount: req.ShotCount,
		Status:    models.ProjectStatusCreated,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := models.CreateProject(&project); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "创建项目失败: " + err.Error()})
		return
	}

	// 项目元数据与初始流水线状态入对象存储
	if err := service.PutJSON(service.ProjectMetaKey(projectID), project); err != nil {
		log.Printf("项目元数据写入失败 %s: %v", projectID, err)
	}
	st := models.NewPipelineState(req.Format)
	st.SetProgress(5)
	if err := service.PutJSON(service.StateKey(projectID), st); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "初始化流水线状态失败: " + err.Error()})
		return
	}

	if err := service.EnqueueStoryboard(projectID, req.Theme, req.ShotCount, req.VideoRef); err != nil {
		log.Printf("分镜脚本任务入队失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "任务入队失败: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"project_id": projectID,
		"ref_count":  refCount,
		"status":     project.Status,
	})
}

// 获取项目详情：目录库记录 + 最新流水线状态
func GetProject(c *gin.Context) {
	projectID := c.Param("project_id")

	project, err := models.GetProjectByID(projectID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "项目未找到: " + err.Error()})
		return
	}

	var st models.PipelineState
	found, err := service.GetJSON(service.StateKey(projectID), &st)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取流水线状态失败: " + err.Error()})
		return
	}
	var statePtr *models.PipelineState
	if found {
		statePtr = &st
	}

	c.JSON(http.StatusOK, gin.H{
		"project": project,
		"state":   statePtr,
	})
}

// 项目列表
func ListProjects(c *gin.Context) {
	projects, err := models.ListProjects()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取项目列表失败: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// 删除项目：先打断在途流水线，再删目录库记录（对象存储中的素材保留）
func DeleteProject(c *gin.Context) {
	projectID := c.Param("project_id")

	if service.CancelProject(projectID) {
		log.Printf("项目 %s 删除前已中止在途流水线", projectID)
	}
	if err := models.DeleteProjectByID(projectID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除项目失败: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"deleteAt": time.Now(),
		"message":  "项目已删除",
	})
}

// 中止在途流水线（批次边界生效，已完成素材保留，可随后 resume）
func CancelPipeline(c *gin.Context) {
	projectID := c.Param("project_id")
	if !service.CancelProject(projectID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "项目当前没有在途流水线"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "已发出中止信号"})
}
