package routers

import (
	"VideoRitz-server/routers/api"

	"github.com/gin-gonic/gin"
)

func InitRouter() *gin.Engine {
	r := gin.Default()
	v1 := r.Group("/v1/api")
	{
		v1.POST("/projects", api.CreateProject)
		v1.GET("/projects", api.ListProjects)
		v1.GET("/projects/:project_id", api.GetProject)
		v1.DELETE("/projects/:project_id", api.DeleteProject)
		v1.GET("/projects/:project_id/storyboard", api.GetStoryboard)
		v1.POST("/projects/:project_id/confirm", api.ConfirmStoryboard)
		v1.POST("/projects/:project_id/resume", api.ResumeProject)
		v1.POST("/projects/:project_id/cancel", api.CancelPipeline)
		v1.POST("/projects/:project_id/shots/:shot_index/retry", api.RetryShot)
		v1.POST("/projects/:project_id/assemble", api.AssembleProject)
	}
	r.GET("/projects/:project_id/wss", api.ProjectProgressWebSocket)
	return r
}
