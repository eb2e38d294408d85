package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"sync"

	"VideoRitz-server/config"
	"VideoRitz-server/models"
)

// 项目级取消注册表（projectID -> cancelFunc）：
// 外部中止信号在批次边界与昂贵网络调用前生效，轮询循环在下一次唤醒点退出
var projectCancelRegistry = struct {
	sync.RWMutex
	m map[string]context.CancelFunc
}{
	m: make(map[string]context.CancelFunc),
}

func RegisterProjectCancel(projectID string, cancel context.CancelFunc) {
	projectCancelRegistry.Lock()
	defer projectCancelRegistry.Unlock()
	projectCancelRegistry.m[projectID] = cancel
}

func UnregisterProjectCancel(projectID string) {
	projectCancelRegistry.Lock()
	defer projectCancelRegistry.Unlock()
	delete(projectCancelRegistry.m, projectID)
}

// CancelProject 外部调用以中止项目流水线，返回是否实际找到并取消
func CancelProject(projectID string) bool {
	projectCancelRegistry.Lock()
	defer projectCancelRegistry.Unlock()
	if cancel, ok := projectCancelRegistry.m[projectID]; ok {
		cancel()
		delete(projectCancelRegistry.m, projectID)
		return true
	}
	return false
}

// Orchestrator 项目流水线编排器。PipelineState 的唯一写者：
// 分镜 goroutine 发出的更新消息由这里统一归并落盘。
// 对存储 / 目录库 / 配乐供应商的调用经函数字段注入，测试可整体替换
type Orchestrator struct {
	Animators []Animator
	Cfg       config.PipelineConfig

	loadState      func(projectID string) (*models.PipelineState, error)
	saveState      func(projectID string, st *models.PipelineState) error
	updateCatalog  func(id, status, finalVideoUrl string) error
	loadStoryboard func(projectID string) (*StoryboardResult, bool, error)
	submitMusic    func(prompt, style, title string) (string, error)
	pollMusic      func(taskID string) (MusicPollResult, error)
	fetchAsset     func(sourceURL, objectName string) (string, error)
	loadRefs       func(projectID string) []RefImage
	shotDeps       ShotDeps
}

func NewOrchestrator() *Orchestrator {
	return &Orchestrator{
		Animators: DefaultAnimators(),
		Cfg:       config.AppConfig.Pipeline,
		loadState: func(projectID string) (*models.PipelineState, error) {
			var st models.PipelineState
			found, err := GetJSON(StateKey(projectID), &st)
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, fmt.Errorf("pipeline state not found for project %s", projectID)
			}
			return &st, nil
		},
		saveState: func(projectID string, st *models.PipelineState) error {
			return PutJSON(StateKey(projectID), st)
		},
		updateCatalog: models.UpdateProjectStatus,
		loadStoryboard: func(projectID string) (*StoryboardResult, bool, error) {
			var sb StoryboardResult
			found, err := GetJSON(StoryboardKey(projectID), &sb)
			return &sb, found, err
		},
		submitMusic: SubmitMusic,
		pollMusic:   PollMusic,
		fetchAsset:  downloadAndUpload,
		loadRefs:    loadRefImages,
		shotDeps:    productionShotDeps(),
	}
}

// SaveState checkpoint 写入；失败只告警不打断流程（尽力而为）
func (o *Orchestrator) SaveState(projectID string, st *models.PipelineState) {
	if err := o.saveState(projectID, st); err != nil {
		log.Printf("[Pipeline %s] checkpoint 写入失败: %v", projectID, err)
	}
}

// LoadState 读取流水线状态；恢复路径上读失败必须致命上抛
func (o *Orchestrator) LoadState(projectID string) (*models.PipelineState, error) {
	return o.loadState(projectID)
}

// RunStoryboard 分镜脚本生成，完成后停在 storyboard-review 等待人工确认
func (o *Orchestrator) RunStoryboard(projectID, theme string, numShots int, refImages []RefImage, videoRefDescription string) error {
	st := &models.PipelineState{Stage: models.StageStoryboard, Format: models.FormatWide}
	if prev, err := o.LoadState(projectID); err == nil {
		st = prev
		st.Stage = models.StageStoryboard
	} else {
		// 读不到已有 checkpoint 时退回空状态重建，但错误要留痕
		log.Printf("[Pipeline %s] 既有状态读取失败，按全新状态重建: %v", projectID, err)
	}
	st.SetProgress(8)
	o.SaveState(projectID, st)

	styleAnalysis := ""
	if videoRefDescription != "" {
		analysis, err := AnalyzeReferenceVideo(videoRefDescription)
		if err != nil {
			// 风格分析是锦上添花，失败不拦截脚本生成
			log.Printf("[Pipeline %s] 参考视频分析失败: %v", projectID, err)
		} else {
			styleAnalysis = analysis
		}
	}

	result, err := GenerateStoryboard(theme, numShots, refImages, styleAnalysis)
	if err != nil {
		st.Stage = models.StageError
		st.Error = fmt.Sprintf("storyboard generation failed: %v", err)
		o.SaveState(projectID, st)
		_ = o.updateCatalog(projectID, models.ProjectStatusFailed, "")
		return err
	}

	if err := PutJSON(StoryboardKey(projectID), result); err != nil {
		log.Printf("[Pipeline %s] storyboard.json 写入失败: %v", projectID, err)
	}

	st.Shots = result.Shots
	st.Stage = models.StageStoryboardReview
	st.SetProgress(15)
	o.SaveState(projectID, st)
	_ = o.updateCatalog(projectID, models.ProjectStatusReview, "")
	log.Printf("[Pipeline %s] 分镜脚本已生成 (%d shots)，等待确认", projectID, len(result.Shots))
	return nil
}

// musicOutcome 配乐任务的最终产出（url 为空表示失败或无配乐）
type musicOutcome struct {
	url string
}

// RunShots 处理指定 index 集合的分镜（nil 表示全部未完成的分镜），配乐并行生成。
// 每个批次结束后写 checkpoint，崩溃最多丢掉在途批次的工作量
func (o *Orchestrator) RunShots(ctx context.Context, projectID, theme string, onlyIndices []int) error {
	runCtx, cancel := context.WithCancel(ctx)
	RegisterProjectCancel(projectID, cancel)
	defer UnregisterProjectCancel(projectID)

	st, err := o.LoadState(projectID)
	if err != nil {
		return err
	}

	// 挑出本轮要跑的分镜
	var pending []models.Shot
	if onlyIndices != nil {
		want := make(map[int]bool, len(onlyIndices))
		for _, i := range onlyIndices {
			want[i] = true
		}
		for _, s := range st.Shots {
			if want[s.Index] {
				pending = append(pending, s)
			}
		}
	} else {
		_, pending = st.SplitByCompletion()
	}
	if len(pending) == 0 {
		st.Stage = models.StageMontage
		st.SetProgress(85)
		o.SaveState(projectID, st)
		_ = o.updateCatalog(projectID, models.ProjectStatusMontage, "")
		return nil
	}

	_ = o.updateCatalog(projectID, models.ProjectStatusProcessing, "")

	// 配乐并行：同步提交拿 taskId（入 checkpoint），轮询丢给后台，批次跑完再收结果
	musicCh := o.startMusic(runCtx, projectID, theme, st)

	runner := &ShotRunner{
		ProjectID: projectID,
		Format:    st.Format,
		RefImages: o.loadRefs(projectID),
		Animators: o.Animators,
		Cfg:       o.Cfg,
		Deps:      o.shotDeps,
	}

	total := len(pending)
	batchSize := o.Cfg.BatchSize
	for batchStart := 0; batchStart < total; batchStart += batchSize {
		if runCtx.Err() != nil {
			log.Printf("[Pipeline %s] 已中止，不再启动新批次", projectID)
			o.SaveState(projectID, st)
			return runCtx.Err()
		}

		end := batchStart + batchSize
		if end > total {
			end = total
		}
		batch := pending[batchStart:end]

		// 粗粒度阶段标签：按批次位置三等分，仅供进度展示
		ratio := float64(batchStart) / float64(total)
		switch {
		case ratio < 0.33:
			st.Stage = models.StageGenerating
		case ratio < 0.66:
			st.Stage = models.StageUpscaling
		default:
			st.Stage = models.StageAnimating
		}
		st.SetProgress(16)

		o.runBatch(runCtx, runner, st, batch)

		done := end
		st.SetProgress(16 + done*64/total)
		// 批次 checkpoint 先于下一批次启动（happens-before）
		o.SaveState(projectID, st)
		log.Printf("[Pipeline %s] 批次完成 %d/%d (成功 %d, 失败 %d)",
			projectID, done, total, st.SuccessCount(), st.FailedCount())
	}

	if runCtx.Err() != nil {
		return runCtx.Err()
	}

	if st.SuccessCount() == 0 {
		st.Stage = models.StageError
		st.Error = fmt.Sprintf("all %d shots failed", st.FailedCount())
		o.SaveState(projectID, st)
		_ = o.updateCatalog(projectID, models.ProjectStatusFailed, "")
		return fmt.Errorf("project %s: %s", projectID, st.Error)
	}

	// 等配乐收尾；配乐失败或缺失不拦截合成，成片无配乐照样出
	st.Stage = models.StageMusic
	st.SetProgress(82)
	o.SaveState(projectID, st)
	if musicCh != nil {
		select {
		case <-runCtx.Done():
			return runCtx.Err()
		case out := <-musicCh:
			st.MusicUrl = out.url
		}
	}

	st.Stage = models.StageMontage
	st.SetProgress(85)
	o.SaveState(projectID, st)
	_ = o.updateCatalog(projectID, models.ProjectStatusMontage, "")
	log.Printf("[Pipeline %s] 素材就绪，可触发合成 (成功 %d/%d, music=%v)",
		projectID, st.SuccessCount(), len(st.Shots), st.MusicUrl != "")
	return nil
}

// runBatch 批内分镜全并发，等全部落定（单个失败不影响兄弟分镜）；
// 更新消息由本函数单点消费并归并进状态
func (o *Orchestrator) runBatch(ctx context.Context, runner *ShotRunner, st *models.PipelineState, batch []models.Shot) {
	updates := make(chan models.ShotUpdate, 16)
	runner.Updates = updates

	var wg sync.WaitGroup
	for _, shot := range batch {
		wg.Add(1)
		go func(s models.Shot) {
			defer wg.Done()
			runner.Run(ctx, s)
		}(shot)
	}
	go func() {
		wg.Wait()
		close(updates)
	}()

	for u := range updates {
		st.ApplyShotUpdate(u)
	}
}

// startMusic 已有配乐则直接跳过；否则提交任务并在后台有界轮询
func (o *Orchestrator) startMusic(ctx context.Context, projectID, theme string, st *models.PipelineState) <-chan musicOutcome {
	if st.MusicUrl != "" {
		return nil
	}

	sb, found, err := o.loadStoryboard(projectID)
	if err != nil || !found {
		log.Printf("[Pipeline %s] storyboard.json 读取失败，跳过配乐: found=%v err=%v", projectID, found, err)
		return nil
	}

	taskID := st.MusicTaskId
	if taskID == "" {
		id, err := o.submitMusic(sb.MusicPrompt, sb.MusicStyle, theme)
		if err != nil {
			log.Printf("[Pipeline %s] 配乐提交失败，成片将无配乐: %v", projectID, err)
			return nil
		}
		taskID = id
		st.MusicTaskId = taskID
	}

	ch := make(chan musicOutcome, 1)
	go func() {
		defer close(ch)
		audioURL, err := pollUntil(ctx, "music", o.Cfg.MusicPoll, func() (bool, string, error) {
			res, err := o.pollMusic(taskID)
			if err != nil {
				return false, "", err
			}
			switch res.Status {
			case MusicStatusSuccess:
				return true, res.AudioURL, nil
			case MusicStatusFailed:
				return false, "", &ProviderFailedError{Provider: "suno", Status: res.Status}
			}
			return false, "", nil
		})
		if err != nil {
			log.Printf("[Pipeline %s] 配乐生成失败: %v", projectID, err)
			ch <- musicOutcome{}
			return
		}
		stored, err := o.fetchAsset(audioURL, MusicKey(projectID))
		if err != nil {
			log.Printf("[Pipeline %s] 配乐转存失败: %v", projectID, err)
			ch <- musicOutcome{}
			return
		}
		ch <- musicOutcome{url: stored}
	}()
	return ch
}

// Resume 从最近一次 checkpoint 恢复：已完成的分镜原样保留，
// 只重跑未完成子集；全部已完成则直接进入 montage 就绪态
func (o *Orchestrator) Resume(ctx context.Context, projectID, theme string) error {
	st, err := o.LoadState(projectID)
	if err != nil {
		return fmt.Errorf("resume load state: %w", err)
	}

	if st.Stage == models.StageStoryboardReview {
		log.Printf("[Pipeline %s] 停在分镜确认点，等待用户确认，不自动推进", projectID)
		return nil
	}

	complete, incomplete := st.SplitByCompletion()
	log.Printf("[Pipeline %s] 恢复: 已完成 %d, 待重跑 %d", projectID, len(complete), len(incomplete))

	if len(incomplete) == 0 {
		st.Stage = models.StageMontage
		st.SetProgress(85)
		o.SaveState(projectID, st)
		_ = o.updateCatalog(projectID, models.ProjectStatusMontage, "")
		return nil
	}

	indices := make([]int, 0, len(incomplete))
	for _, s := range incomplete {
		indices = append(indices, s.Index)
	}
	return o.RunShots(ctx, projectID, theme, indices)
}

// RetryShot 手动重跑单个失败分镜：清失败标记后从 image 阶段整条重来
// （放大阶段的幂等跳过保证已有产物不会重复付费）
func (o *Orchestrator) RetryShot(ctx context.Context, projectID string, index int) error {
	runCtx, cancel := context.WithCancel(ctx)
	RegisterProjectCancel(projectID, cancel)
	defer UnregisterProjectCancel(projectID)

	st, err := o.LoadState(projectID)
	if err != nil {
		return err
	}
	shot := st.ShotByIndex(index)
	if shot == nil {
		return fmt.Errorf("shot %d not found in project %s", index, projectID)
	}

	runner := &ShotRunner{
		ProjectID: projectID,
		Format:    st.Format,
		RefImages: o.loadRefs(projectID),
		Animators: o.Animators,
		Cfg:       o.Cfg,
		Deps:      o.shotDeps,
	}
	o.runBatch(runCtx, runner, st, []models.Shot{*shot})
	o.SaveState(projectID, st)

	if s := st.ShotByIndex(index); s != nil && s.Failed {
		return fmt.Errorf("shot %d retry failed: %s", index, s.FailError)
	}
	return nil
}

// loadRefImages 把项目创建时上传的参考图从对象存储读回（重试/恢复场景用）
func loadRefImages(projectID string) []RefImage {
	var refs []RefImage
	for i := 0; ; i++ {
		key := RefKey(projectID, i)
		if !ObjectExists(key) {
			break
		}
		b, err := GetObject(key)
		if err != nil {
			log.Printf("[Pipeline %s] 参考图读取失败 %s: %v", projectID, key, err)
			break
		}
		refs = append(refs, RefImage{Base64: base64.StdEncoding.EncodeToString(b), MimeType: "image/png"})
	}
	return refs
}
