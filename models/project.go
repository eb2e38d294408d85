package models

import "time"

// 项目状态常量（目录库的粗粒度标签；详细进度以 MinIO 中的 pipeline-state.json 为准）
const (
	ProjectStatusCreated    = "created"    // 项目已创建，分镜脚本生成中
	ProjectStatusReview     = "review"     // 分镜脚本待用户确认
	ProjectStatusProcessing = "processing" // 分镜流水线执行中
	ProjectStatusMontage    = "montage"    // 素材就绪，等待/正在合成成片
	ProjectStatusDone       = "done"       // 成片已生成
	ProjectStatusFailed     = "failed"     // 流水线失败
)

type Project struct {
	ID            string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Theme         string    `json:"theme"`
	Format        string    `json:"format"`
	ShotCount     int       `json:"shotCount"`
	Status        string    `json:"status"`
	FinalVideoUrl string    `json:"finalVideoUrl"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (Project) TableName() string {
	return "project"
}
