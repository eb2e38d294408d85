package models

// 项目级流水线阶段（区别于分镜自身的阶段推进）
const (
	StageIdle             = "idle"
	StageUploading        = "uploading"
	StageStoryboard       = "storyboard"
	StageStoryboardReview = "storyboard-review" // 人工确认点：不确认不往下走
	StageGenerating       = "generating"
	StageUpscaling        = "upscaling"
	StageAnimating        = "animating"
	StageMusic            = "music"
	StageMontage          = "montage"
	StageDone             = "done"
	StageError            = "error"
)

// 画幅枚举
const (
	FormatWide   = "16:9"
	FormatTall   = "9:16"
	FormatSquare = "1:1"
)

// PipelineState 每个项目一份，写入 MinIO 的 pipeline-state.json。
// 每个批次和每次阶段切换后由编排器持久化（checkpoint），恢复时整体读回。
type PipelineState struct {
	Stage         string `json:"stage"`
	Shots         []Shot `json:"shots"`
	MusicTaskId   string `json:"musicTaskId,omitempty"`
	MusicUrl      string `json:"musicUrl,omitempty"`
	FinalVideoUrl string `json:"finalVideoUrl,omitempty"`
	Error         string `json:"error,omitempty"`
	Progress      int    `json:"progress"`
	Format        string `json:"format"`
}

func NewPipelineState(format string) *PipelineState {
	if format == "" {
		format = FormatWide
	}
	return &PipelineState{Stage: StageIdle, Format: format}
}

// SetProgress 进度只增不减；仅供展示，控制流不依赖它
func (st *PipelineState) SetProgress(p int) {
	if p > 100 {
		p = 100
	}
	if p > st.Progress {
		st.Progress = p
	}
}

// SuccessCount 已拿到最终视频的分镜数
func (st *PipelineState) SuccessCount() int {
	n := 0
	for i := range st.Shots {
		if st.Shots[i].Completed() {
			n++
		}
	}
	return n
}

func (st *PipelineState) FailedCount() int {
	n := 0
	for i := range st.Shots {
		if st.Shots[i].Failed {
			n++
		}
	}
	return n
}

// SplitByCompletion 恢复时把分镜分成已完成/未完成两组：
// 已完成的原样保留，未完成的重新走完整分镜流水线
func (st *PipelineState) SplitByCompletion() (complete, incomplete []Shot) {
	for i := range st.Shots {
		if st.Shots[i].Completed() {
			complete = append(complete, st.Shots[i])
		} else {
			incomplete = append(incomplete, st.Shots[i])
		}
	}
	return complete, incomplete
}

// ShotByIndex 返回指定 index 的分镜指针，找不到返回 nil
func (st *PipelineState) ShotByIndex(index int) *Shot {
	for i := range st.Shots {
		if st.Shots[i].Index == index {
			return &st.Shots[i]
		}
	}
	return nil
}

// ApplyShotUpdate 单写者归并：分镜 goroutine 不直接改共享状态，
// 更新以消息形式交给唯一的消费者调用本方法落到对应分镜上
func (st *PipelineState) ApplyShotUpdate(u ShotUpdate) {
	s := st.ShotByIndex(u.Index)
	if s == nil {
		return
	}
	if u.ImageUrl != "" {
		s.ImageUrl = u.ImageUrl
	}
	if u.UpscaleTaskId != "" {
		s.UpscaleTaskId = u.UpscaleTaskId
	}
	if u.UpscaledUrl != "" {
		s.UpscaledUrl = u.UpscaledUrl
	}
	if u.AnimateTaskId != "" {
		s.AnimateTaskId = u.AnimateTaskId
	}
	if u.VideoUrl != "" {
		s.VideoUrl = u.VideoUrl
	}
	if u.ClearFailure {
		s.ResetFailure()
	}
	if u.Failed {
		s.Failed = true
		s.FailError = u.FailError
	}
}

// ShotUpdate 分镜状态机发出的增量更新（按 index 寻址，零值字段不生效）
type ShotUpdate struct {
	Index         int
	ImageUrl      string
	UpscaleTaskId string
	UpscaledUrl   string
	AnimateTaskId string
	VideoUrl      string
	Failed        bool
	FailError     string
	ClearFailure  bool
}
