package models

// Shot 一个分镜单元：流水线按 image -> upscale -> animate 逐级填充资源字段
type Shot struct {
	Index        int    `json:"index"`
	Name         string `json:"name"`
	ImagePrompt  string `json:"imagePrompt"`
	MotionPrompt string `json:"motionPrompt"`
	MusicCue     string `json:"musicCue"`

	ImageUrl    string `json:"imageUrl,omitempty"`
	UpscaledUrl string `json:"upscaledUrl,omitempty"`
	VideoUrl    string `json:"videoUrl,omitempty"`

	UpscaleTaskId string `json:"upscaleTaskId,omitempty"`
	AnimateTaskId string `json:"animateTaskId,omitempty"`

	Failed    bool   `json:"failed,omitempty"`
	FailError string `json:"failError,omitempty"`
}

// Completed 分镜是否到达终态成功（拿到最终视频资源）
func (s *Shot) Completed() bool {
	return s.VideoUrl != ""
}

// ResetFailure 重跑前清除失败标记（已成功阶段的产物保留）
func (s *Shot) ResetFailure() {
	s.Failed = false
	s.FailError = ""
}

// ReindexShots 确认分镜表后重排 index：用户可能删除/调序，保证 0 起始连续
func ReindexShots(shots []Shot) []Shot {
	out := make([]Shot, len(shots))
	copy(out, shots)
	for i := range out {
		out[i].Index = i
	}
	return out
}
