package service

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"VideoRitz-server/config"

	"github.com/hibiken/asynq"
)

const (
	TypeStoryboard = "pipeline:storyboard"
	TypeRunShots   = "pipeline:run"
	TypeResume     = "pipeline:resume"
	TypeRetryShot  = "pipeline:retry_shot"
	TypeMontage    = "pipeline:montage"
)

// PipelinePayload 流水线任务载荷，各任务类型按需取字段
type PipelinePayload struct {
	ProjectID           string `json:"project_id"`
	Theme               string `json:"theme"`
	NumShots            int    `json:"num_shots,omitempty"`
	ShotIndex           int    `json:"shot_index,omitempty"`
	VideoRefDescription string `json:"video_ref_description,omitempty"`
}

var QueueClient *asynq.Client

// InitQueue 初始化
func InitQueue() {
	QueueClient = asynq.NewClient(asynq.RedisClientOpt{
		Addr:     config.AppConfig.Redis.Addr,
		Password: config.AppConfig.Redis.Password,
	})
}

// enqueue 统一入队。流水线自带分镜级重试与断点恢复，
// asynq 层不做自动重试，避免整条流水线被盲目重放
func enqueue(taskType string, p PipelinePayload, timeout time.Duration) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(taskType, payload,
		asynq.MaxRetry(0),
		asynq.Timeout(timeout),
		asynq.Retention(24*time.Hour), // 任务结果在 Redis 保留时间
	)

	info, err := QueueClient.Enqueue(task)
	if err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}

	log.Printf("[Queue] Task Enqueued: type=%s, project=%s, id=%s", taskType, p.ProjectID, info.ID)
	return nil
}

func EnqueueStoryboard(projectID, theme string, numShots int, videoRefDescription string) error {
	return enqueue(TypeStoryboard, PipelinePayload{
		ProjectID:           projectID,
		Theme:               theme,
		NumShots:            numShots,
		VideoRefDescription: videoRefDescription,
	}, 10*time.Minute)
}

// EnqueueRunShots 分镜全流程较慢（逐批生图/放大/动画），给足超时
func EnqueueRunShots(projectID, theme string) error {
	return enqueue(TypeRunShots, PipelinePayload{ProjectID: projectID, Theme: theme}, 2*time.Hour)
}

func EnqueueResume(projectID, theme string) error {
	return enqueue(TypeResume, PipelinePayload{ProjectID: projectID, Theme: theme}, 2*time.Hour)
}

func EnqueueRetryShot(projectID string, shotIndex int) error {
	return enqueue(TypeRetryShot, PipelinePayload{ProjectID: projectID, ShotIndex: shotIndex}, 1*time.Hour)
}

func EnqueueMontage(projectID string) error {
	return enqueue(TypeMontage, PipelinePayload{ProjectID: projectID}, 1*time.Hour)
}
