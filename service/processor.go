package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"VideoRitz-server/config"

	"github.com/hibiken/asynq"
)

// Processor 消费流水线队列任务
type Processor struct {
	Orch *Orchestrator
}

func NewProcessor() *Processor {
	return &Processor{Orch: NewOrchestrator()}
}

// StartProcessor 启动任务消费者
func (p *Processor) StartProcessor(concurrency int) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     config.AppConfig.Redis.Addr,
			Password: config.AppConfig.Redis.Password,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeStoryboard, p.HandleStoryboard)
	mux.HandleFunc(TypeRunShots, p.HandleRunShots)
	mux.HandleFunc(TypeResume, p.HandleResume)
	mux.HandleFunc(TypeRetryShot, p.HandleRetryShot)
	mux.HandleFunc(TypeMontage, p.HandleMontage)

	log.Printf("Starting Pipeline Processor with concurrency %d...", concurrency)
	go func() {
		if err := srv.Run(mux); err != nil {
			log.Fatalf("could not run server: %v", err)
		}
	}()
}

func decodePayload(t *asynq.Task) (PipelinePayload, error) {
	var p PipelinePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("unmarshal payload failed: %w", err)
	}
	if p.ProjectID == "" {
		return p, fmt.Errorf("empty project id in payload")
	}
	return p, nil
}

func (p *Processor) HandleStoryboard(ctx context.Context, t *asynq.Task) error {
	payload, err := decodePayload(t)
	if err != nil {
		return err
	}
	log.Printf("[Processor] storyboard: project=%s theme=%q shots=%d",
		payload.ProjectID, payload.Theme, payload.NumShots)

	refs := loadRefImages(payload.ProjectID)
	return p.Orch.RunStoryboard(payload.ProjectID, payload.Theme, payload.NumShots, refs, payload.VideoRefDescription)
}

func (p *Processor) HandleRunShots(ctx context.Context, t *asynq.Task) error {
	payload, err := decodePayload(t)
	if err != nil {
		return err
	}
	log.Printf("[Processor] run shots: project=%s", payload.ProjectID)
	return p.Orch.RunShots(ctx, payload.ProjectID, payload.Theme, nil)
}

func (p *Processor) HandleResume(ctx context.Context, t *asynq.Task) error {
	payload, err := decodePayload(t)
	if err != nil {
		return err
	}
	log.Printf("[Processor] resume: project=%s", payload.ProjectID)
	return p.Orch.Resume(ctx, payload.ProjectID, payload.Theme)
}

func (p *Processor) HandleRetryShot(ctx context.Context, t *asynq.Task) error {
	payload, err := decodePayload(t)
	if err != nil {
		return err
	}
	log.Printf("[Processor] retry shot: project=%s index=%d", payload.ProjectID, payload.ShotIndex)
	return p.Orch.RetryShot(ctx, payload.ProjectID, payload.ShotIndex)
}

func (p *Processor) HandleMontage(ctx context.Context, t *asynq.Task) error {
	payload, err := decodePayload(t)
	if err != nil {
		return err
	}
	log.Printf("[Processor] montage: project=%s", payload.ProjectID)
	return AssembleProject(ctx, p.Orch, payload.ProjectID)
}
