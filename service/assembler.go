package service

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"VideoRitz-server/models"
)

// AssembleProject 成片合成：拉齐素材、算 xfade 计划、转码、回传。
// 转码失败时项目停在 montage 阶段并带错误信息，可直接重触发，无需重新生成素材
func AssembleProject(ctx context.Context, o *Orchestrator, projectID string) error {
	st, err := o.LoadState(projectID)
	if err != nil {
		return err
	}
	if st.SuccessCount() == 0 {
		return fmt.Errorf("project %s has no completed shots to assemble", projectID)
	}

	st.Stage = models.StageMontage
	st.Error = ""
	st.SetProgress(85)
	o.SaveState(projectID, st)
	_ = o.updateCatalog(projectID, models.ProjectStatusMontage, "")

	tmpDir, err := os.MkdirTemp("", "montage-"+projectID+"-")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	clips, err := fetchClips(ctx, projectID, st, tmpDir)
	if err != nil {
		return err
	}

	musicPath, musicDur := "", 0.0
	if st.MusicUrl != "" {
		musicPath, musicDur, err = fetchMusic(ctx, projectID, tmpDir)
		if err != nil {
			// 配乐素材损坏不拦截成片，退化为无声合成
			log.Printf("[Montage %s] 配乐素材不可用，按无配乐合成: %v", projectID, err)
			musicPath, musicDur = "", 0
		}
	}

	mc := o.Cfg.Montage
	plan, err := BuildMontagePlan(st.Format, clips, musicPath, musicDur, mc)
	if err != nil {
		return fmt.Errorf("build montage plan: %w", err)
	}
	log.Printf("[Montage %s] %d clips, total %.3fs, music=%v", projectID, len(clips), plan.Total, plan.Audio != nil)

	st.SetProgress(90)
	o.SaveState(projectID, st)

	outPath := filepath.Join(tmpDir, "final.mp4")
	if err := RunFFmpeg(ctx, plan, mc.EncodeTimeoutFactor, outPath); err != nil {
		st.Error = fmt.Sprintf("montage failed: %v", err)
		o.SaveState(projectID, st)
		return err
	}

	finalBytes, err := os.ReadFile(outPath)
	if err != nil {
		return fmt.Errorf("read rendered output: %w", err)
	}
	finalURL, err := UploadToMinIO(bytes.NewReader(finalBytes), FinalKey(projectID), int64(len(finalBytes)))
	if err != nil {
		st.Error = fmt.Sprintf("final upload failed: %v", err)
		o.SaveState(projectID, st)
		return err
	}

	st.FinalVideoUrl = finalURL
	st.Stage = models.StageDone
	st.Error = ""
	st.SetProgress(100)
	o.SaveState(projectID, st)
	_ = o.updateCatalog(projectID, models.ProjectStatusDone, finalURL)
	log.Printf("[Montage %s] 成片完成: %s", projectID, finalURL)
	return nil
}

// fetchClips 按 index 升序落地所有成功分镜并实测时长
func fetchClips(ctx context.Context, projectID string, st *models.PipelineState, tmpDir string) ([]Clip, error) {
	var clips []Clip
	for _, s := range st.Shots {
		if !s.Completed() {
			continue
		}
		b, err := GetObject(VideoKey(projectID, s.Index))
		if err != nil {
			return nil, fmt.Errorf("fetch shot %d video: %w", s.Index, err)
		}
		path := filepath.Join(tmpDir, fmt.Sprintf("shot_%d.mp4", s.Index))
		if err := os.WriteFile(path, b, 0o644); err != nil {
			return nil, fmt.Errorf("write shot %d clip: %w", s.Index, err)
		}
		dur, err := ProbeDuration(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("probe shot %d: %w", s.Index, err)
		}
		clips = append(clips, Clip{Path: path, Duration: dur})
	}
	return clips, nil
}

func fetchMusic(ctx context.Context, projectID, tmpDir string) (string, float64, error) {
	b, err := GetObject(MusicKey(projectID))
	if err != nil {
		return "", 0, err
	}
	path := filepath.Join(tmpDir, "track.mp3")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", 0, err
	}
	dur, err := ProbeDuration(ctx, path)
	if err != nil {
		return "", 0, err
	}
	return path, dur, nil
}
