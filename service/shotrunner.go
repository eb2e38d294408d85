package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"time"

	"VideoRitz-server/config"
	"VideoRitz-server/models"
)

// ShotDeps 分镜阶段对供应商与对象存储的全部外部调用面。
// 生产路径用 productionShotDeps，测试注入替身即可驱动完整状态机
type ShotDeps struct {
	GenerateImage func(prompt string, refImages []RefImage, aspectRatio string) ([]byte, error)
	SubmitUpscale func(imageBase64 string) (string, error)
	PollUpscale   func(taskID string) (UpscalePollResult, error)
	Upload        func(reader io.Reader, objectName string, size int64) (string, error)
	ObjectExists  func(key string) bool
	PublicURL     func(objectName string) (string, error)
	GetObject     func(key string) ([]byte, error)
	Fetch         func(sourceURL, objectName string) (string, error)
}

func productionShotDeps() ShotDeps {
	return ShotDeps{
		GenerateImage: GenerateImage,
		SubmitUpscale: SubmitUpscale,
		PollUpscale:   PollUpscale,
		Upload:        UploadToMinIO,
		ObjectExists:  ObjectExists,
		PublicURL:     PublicURL,
		GetObject:     GetObject,
		Fetch:         downloadAndUpload,
	}
}

// ShotRunner 驱动单个分镜走完 image -> upscale -> animate 三级状态机。
// 故障隔离在分镜边界内：任何阶段失败只落到本分镜的 failed/failError，
// 绝不越界打断同批次的兄弟分镜。状态更新一律经 Updates 通道交给单写者归并。
type ShotRunner struct {
	ProjectID string
	Format    string
	RefImages []RefImage
	Animators []Animator
	Cfg       config.PipelineConfig
	Deps      ShotDeps
	Updates   chan<- models.ShotUpdate
}

// Run 执行完整分镜流水线，异常时固定延迟后整条重跑一次；
// 第二次仍失败则记录 failed/failError，不再自动重试
func (r *ShotRunner) Run(ctx context.Context, shot models.Shot) {
	if r.Deps.GenerateImage == nil {
		r.Deps = productionShotDeps()
	}
	r.Updates <- models.ShotUpdate{Index: shot.Index, ClearFailure: true}

	err := r.runOnce(ctx, shot)
	if err != nil && ctx.Err() == nil {
		log.Printf("[Shot %d] %s 失败，%ds 后重跑整条流水线: %v",
			shot.Index, shot.Name, r.Cfg.RetryDelaySec, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(r.Cfg.RetryDelaySec) * time.Second):
		}
		err = r.runOnce(ctx, shot)
	}

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Printf("[Shot %d] %s 终态失败: %v", shot.Index, shot.Name, err)
		r.Updates <- models.ShotUpdate{Index: shot.Index, Failed: true, FailError: err.Error()}
	}
}

// runOnce 三个阶段依次执行，每阶段成功即持久化产物并上报增量更新
func (r *ShotRunner) runOnce(ctx context.Context, shot models.Shot) error {
	imageBytes, err := r.stageImage(ctx, shot)
	if err != nil {
		return fmt.Errorf("image stage: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	upscaledKey, err := r.stageUpscale(ctx, shot, imageBytes)
	if err != nil {
		return fmt.Errorf("upscale stage: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := r.stageAnimate(ctx, shot, upscaledKey); err != nil {
		return fmt.Errorf("animate stage: %w", err)
	}
	return nil
}

// stageImage 文生图并转存，返回图像字节供放大阶段复用
func (r *ShotRunner) stageImage(_ context.Context, shot models.Shot) ([]byte, error) {
	imageBytes, err := r.Deps.GenerateImage(shot.ImagePrompt, r.RefImages, r.Format)
	if err != nil {
		return nil, err
	}

	key := ImageKey(r.ProjectID, shot.Index)
	url, err := r.Deps.Upload(bytes.NewReader(imageBytes), key, int64(len(imageBytes)))
	if err != nil {
		return nil, err
	}
	r.Updates <- models.ShotUpdate{Index: shot.Index, ImageUrl: url}
	return imageBytes, nil
}

// stageUpscale 放大关键帧。对应产物已存在时幂等跳过（重跑不浪费放大额度），
// 否则提交任务并有界轮询到终态
func (r *ShotRunner) stageUpscale(ctx context.Context, shot models.Shot, imageBytes []byte) (string, error) {
	key := UpscaledKey(r.ProjectID, shot.Index)
	if r.Deps.ObjectExists(key) {
		url, err := r.Deps.PublicURL(key)
		if err != nil {
			return "", err
		}
		log.Printf("[Shot %d] 放大产物已存在，跳过", shot.Index)
		r.Updates <- models.ShotUpdate{Index: shot.Index, UpscaledUrl: url}
		return key, nil
	}

	taskID, err := r.Deps.SubmitUpscale(base64.StdEncoding.EncodeToString(imageBytes))
	if err != nil {
		return "", &ProviderSubmitError{Provider: "freepik upscale", Err: err}
	}
	r.Updates <- models.ShotUpdate{Index: shot.Index, UpscaleTaskId: taskID}

	resultURL, err := pollUntil(ctx, "upscale", r.Cfg.UpscalePoll, func() (bool, string, error) {
		res, err := r.Deps.PollUpscale(taskID)
		if err != nil {
			return false, "", err
		}
		switch res.Status {
		case UpscaleStatusCompleted:
			return true, res.URL, nil
		case UpscaleStatusFailed:
			return false, "", &ProviderFailedError{Provider: "freepik upscale", Status: res.Status}
		}
		return false, "", nil
	})
	if err != nil {
		return "", err
	}

	url, err := r.Deps.Fetch(resultURL, key)
	if err != nil {
		return "", err
	}
	r.Updates <- models.ShotUpdate{Index: shot.Index, UpscaledUrl: url}
	return key, nil
}

// stageAnimate 图生视频。按优先级尝试降级链：提交被拒才换下一家；
// 提交成功后轮询失败不会中途换供应商
func (r *ShotRunner) stageAnimate(ctx context.Context, shot models.Shot, imageKey string) error {
	imageBytes, err := r.Deps.GetObject(imageKey)
	if err != nil {
		return err
	}
	imageURL, err := r.Deps.PublicURL(imageKey)
	if err != nil {
		return err
	}
	image := AnimateImage{
		Base64: base64.StdEncoding.EncodeToString(imageBytes),
		URL:    imageURL,
	}

	var chosen Animator
	var taskID string
	var lastErr error
	for _, a := range r.Animators {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		id, err := a.Submit(image, shot.MotionPrompt, r.Cfg.ClipDurSec)
		if err != nil {
			lastErr = &ProviderSubmitError{Provider: a.Name(), Err: err}
			log.Printf("[Shot %d] %s 提交被拒，尝试下一家: %v", shot.Index, a.Name(), err)
			continue
		}
		chosen, taskID = a, id
		log.Printf("[Shot %d] 使用 %s 生成视频, task=%s", shot.Index, a.Name(), taskID)
		break
	}
	if chosen == nil {
		if lastErr == nil {
			lastErr = fmt.Errorf("no animator configured")
		}
		return fmt.Errorf("所有图生视频供应商提交失败: %w", lastErr)
	}
	r.Updates <- models.ShotUpdate{Index: shot.Index, AnimateTaskId: taskID}

	resultURL, err := pollUntil(ctx, "animate", r.Cfg.AnimatePoll, func() (bool, string, error) {
		res, err := chosen.Poll(taskID)
		if err != nil {
			return false, "", err
		}
		switch res.Status {
		case AnimateStatusDone:
			return true, res.VideoURL, nil
		case AnimateStatusFailed:
			return false, "", &ProviderFailedError{Provider: chosen.Name(), Status: res.Status}
		}
		return false, "", nil
	})
	if err != nil {
		return err
	}

	url, err := r.Deps.Fetch(resultURL, VideoKey(r.ProjectID, shot.Index))
	if err != nil {
		return err
	}
	r.Updates <- models.ShotUpdate{Index: shot.Index, VideoUrl: url}
	return nil
}

// DefaultAnimators 降级链：Kling 直连 -> Freepik Pro -> Freepik Std
func DefaultAnimators() []Animator {
	return []Animator{NewKlingAnimator(), NewFreepikProAnimator(), NewFreepikStdAnimator()}
}
