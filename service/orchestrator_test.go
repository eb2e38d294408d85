package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"VideoRitz-server/config"
	"VideoRitz-server/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAnimator 一轮即成的图生视频替身
type fakeAnimator struct {
	mu      sync.Mutex
	submits []string
}

func (f *fakeAnimator) Name() string { return "fake" }

func (f *fakeAnimator) Submit(image AnimateImage, prompt string, durationSec int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, prompt)
	return fmt.Sprintf("anim-%d", len(f.submits)), nil
}

func (f *fakeAnimator) Poll(taskID string) (AnimatePollResult, error) {
	return AnimatePollResult{Status: AnimateStatusDone, VideoURL: "https://vendor/" + taskID + ".mp4"}, nil
}

// fakeStages 可按 prompt 定点失败的分镜阶段替身，记录生图调用
type fakeStages struct {
	mu       sync.Mutex
	imageGen []string
	failOn   map[string]bool
}

func (f *fakeStages) imageCalls(prompt string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.imageGen {
		if p == prompt {
			n++
		}
	}
	return n
}

func (f *fakeStages) deps() ShotDeps {
	return ShotDeps{
		GenerateImage: func(prompt string, refs []RefImage, ar string) ([]byte, error) {
			f.mu.Lock()
			f.imageGen = append(f.imageGen, prompt)
			fail := f.failOn[prompt]
			f.mu.Unlock()
			if fail {
				return nil, fmt.Errorf("image provider rejected prompt")
			}
			return []byte("png"), nil
		},
		SubmitUpscale: func(b64 string) (string, error) { return "up-1", nil },
		PollUpscale: func(id string) (UpscalePollResult, error) {
			return UpscalePollResult{Status: UpscaleStatusCompleted, URL: "https://vendor/up.png"}, nil
		},
		Upload:       func(r io.Reader, key string, size int64) (string, error) { return "https://oss/" + key, nil },
		ObjectExists: func(key string) bool { return false },
		PublicURL:    func(key string) (string, error) { return "https://oss/" + key, nil },
		GetObject:    func(key string) ([]byte, error) { return []byte("png"), nil },
		Fetch:        func(src, key string) (string, error) { return "https://oss/" + key, nil },
	}
}

func fastPipelineConfig() config.PipelineConfig {
	var p config.PipelineConfig
	config.ApplyPipelineDefaults(&p)
	p.RetryDelaySec = 1
	p.UpscalePoll = config.PollConfig{IntervalSec: 1, MaxAttempts: 3}
	p.AnimatePoll = config.PollConfig{IntervalSec: 1, MaxAttempts: 3}
	p.MusicPoll = config.PollConfig{IntervalSec: 1, MaxAttempts: 2}
	return p
}

func newTestOrchestrator(st *models.PipelineState, stages *fakeStages, statuses *[]string) *Orchestrator {
	return &Orchestrator{
		Animators: []Animator{&fakeAnimator{}},
		Cfg:       fastPipelineConfig(),
		loadState: func(string) (*models.PipelineState, error) { return st, nil },
		saveState: func(string, *models.PipelineState) error { return nil },
		updateCatalog: func(id, status, finalURL string) error {
			*statuses = append(*statuses, status)
			return nil
		},
		loadStoryboard: func(string) (*StoryboardResult, bool, error) { return nil, false, nil },
		submitMusic:    func(prompt, style, title string) (string, error) { return "", fmt.Errorf("no music in test") },
		pollMusic:      func(string) (MusicPollResult, error) { return MusicPollResult{}, nil },
		fetchAsset:     func(src, key string) (string, error) { return "https://oss/" + key, nil },
		loadRefs:       func(string) []RefImage { return nil },
		shotDeps:       stages.deps(),
	}
}

func TestShotRunner_AutoRetryThenFailed(t *testing.T) {
	stages := &fakeStages{failOn: map[string]bool{"always-bad": true}}
	updates := make(chan models.ShotUpdate, 16)
	runner := &ShotRunner{
		ProjectID: "p-retry",
		Format:    models.FormatWide,
		Animators: []Animator{&fakeAnimator{}},
		Cfg:       fastPipelineConfig(),
		Deps:      stages.deps(),
		Updates:   updates,
	}

	runner.Run(context.Background(), models.Shot{Index: 0, ImagePrompt: "always-bad"})
	close(updates)

	// 整条流水线恰好自动重跑一次，随后进入终态失败
	assert.Equal(t, 2, stages.imageCalls("always-bad"))

	var last models.ShotUpdate
	for u := range updates {
		last = u
	}
	assert.True(t, last.Failed)
	assert.NotEmpty(t, last.FailError)
	assert.Contains(t, last.FailError, "image stage")
}

func TestRunShots_FailureIsolatedToSiblings(t *testing.T) {
	st := &models.PipelineState{
		Stage:  models.StageGenerating,
		Format: models.FormatWide,
		Shots: []models.Shot{
			{Index: 0, ImagePrompt: "ok-0"},
			{Index: 1, ImagePrompt: "bad-1"},
			{Index: 2, ImagePrompt: "ok-2"},
		},
	}
	stages := &fakeStages{failOn: map[string]bool{"bad-1": true}}
	var statuses []string
	o := newTestOrchestrator(st, stages, &statuses)

	err := o.RunShots(context.Background(), "p-iso", "theme", nil)
	require.NoError(t, err)

	// 一个分镜失败不拖垮同批次兄弟分镜
	assert.NotEmpty(t, st.Shots[0].VideoUrl)
	assert.NotEmpty(t, st.Shots[2].VideoUrl)
	assert.True(t, st.Shots[1].Failed)
	assert.NotEmpty(t, st.Shots[1].FailError)
	assert.Empty(t, st.Shots[1].VideoUrl)

	// 部分成功照样推进到 montage 就绪态
	assert.Equal(t, models.StageMontage, st.Stage)
	assert.Contains(t, statuses, models.ProjectStatusMontage)
	assert.NotContains(t, statuses, models.ProjectStatusFailed)
}

func TestRunShots_AllFailedSetsErrorStage(t *testing.T) {
	st := &models.PipelineState{
		Stage:  models.StageGenerating,
		Format: models.FormatWide,
		Shots: []models.Shot{
			{Index: 0, ImagePrompt: "bad-0"},
			{Index: 1, ImagePrompt: "bad-1"},
		},
	}
	stages := &fakeStages{failOn: map[string]bool{"bad-0": true, "bad-1": true}}
	var statuses []string
	o := newTestOrchestrator(st, stages, &statuses)

	err := o.RunShots(context.Background(), "p-allfail", "theme", nil)
	require.Error(t, err)
	assert.Equal(t, models.StageError, st.Stage)
	assert.NotEmpty(t, st.Error)
	assert.Contains(t, statuses, models.ProjectStatusFailed)
	assert.NotContains(t, statuses, models.ProjectStatusMontage)
}

func TestResume_ReprocessesOnlyIncompleteShots(t *testing.T) {
	st := &models.PipelineState{
		Stage:  models.StageGenerating,
		Format: models.FormatWide,
		Shots: []models.Shot{
			{Index: 0, ImagePrompt: "done-0", VideoUrl: "https://oss/keep.mp4"},
			{Index: 1, ImagePrompt: "todo-1"},
			{Index: 2, ImagePrompt: "todo-2"},
		},
	}
	stages := &fakeStages{}
	var statuses []string
	o := newTestOrchestrator(st, stages, &statuses)

	err := o.Resume(context.Background(), "p-resume", "theme")
	require.NoError(t, err)

	// 已完成分镜不重跑、引用原样保留
	assert.Equal(t, 0, stages.imageCalls("done-0"))
	assert.Equal(t, "https://oss/keep.mp4", st.Shots[0].VideoUrl)

	assert.Equal(t, 1, stages.imageCalls("todo-1"))
	assert.Equal(t, 1, stages.imageCalls("todo-2"))
	assert.NotEmpty(t, st.Shots[1].VideoUrl)
	assert.NotEmpty(t, st.Shots[2].VideoUrl)
	assert.Equal(t, models.StageMontage, st.Stage)
}

func TestResume_AllCompleteGoesStraightToMontage(t *testing.T) {
	st := &models.PipelineState{
		Stage:  models.StageAnimating,
		Format: models.FormatWide,
		Shots: []models.Shot{
			{Index: 0, ImagePrompt: "done-0", VideoUrl: "https://oss/0.mp4"},
			{Index: 1, ImagePrompt: "done-1", VideoUrl: "https://oss/1.mp4"},
		},
	}
	stages := &fakeStages{}
	var statuses []string
	o := newTestOrchestrator(st, stages, &statuses)

	err := o.Resume(context.Background(), "p-complete", "theme")
	require.NoError(t, err)

	// 全部已完成：不触碰任何供应商，直接进入 montage 就绪态
	assert.Empty(t, stages.imageGen)
	assert.Equal(t, models.StageMontage, st.Stage)
	assert.Equal(t, 85, st.Progress)
}

func TestRetryShot_RerunsSingleFailedShot(t *testing.T) {
	st := &models.PipelineState{
		Stage:  models.StageMontage,
		Format: models.FormatWide,
		Shots: []models.Shot{
			{Index: 0, ImagePrompt: "done-0", VideoUrl: "https://oss/0.mp4"},
			{Index: 1, ImagePrompt: "retry-1", Failed: true, FailError: "animate stage: timeout"},
		},
	}
	stages := &fakeStages{}
	var statuses []string
	o := newTestOrchestrator(st, stages, &statuses)

	err := o.RetryShot(context.Background(), "p-retryshot", 1)
	require.NoError(t, err)

	// 只重跑指定分镜，失败标记被清掉
	assert.Equal(t, 0, stages.imageCalls("done-0"))
	assert.Equal(t, 1, stages.imageCalls("retry-1"))
	assert.False(t, st.Shots[1].Failed)
	assert.Empty(t, st.Shots[1].FailError)
	assert.NotEmpty(t, st.Shots[1].VideoUrl)
}

func TestRetryShot_UnknownIndex(t *testing.T) {
	st := &models.PipelineState{
		Format: models.FormatWide,
		Shots:  []models.Shot{{Index: 0, ImagePrompt: "a"}},
	}
	stages := &fakeStages{}
	var statuses []string
	o := newTestOrchestrator(st, stages, &statuses)

	err := o.RetryShot(context.Background(), "p-unknown", 7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
