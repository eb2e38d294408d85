package service

import (
	"fmt"
	"math"

	"VideoRitz-server/config"
	"VideoRitz-server/models"
)

// Clip 参与合成的一段分镜素材（时长由 ffprobe 实测，不信任标称值）
type Clip struct {
	Path     string
	Duration float64
}

// Join 相邻两段之间的一次 xfade 衔接
type Join struct {
	Transition string
	Offset     float64 // 在输出时间轴上的起始偏移（秒）
}

// AudioPlan 配乐的循环 / 截断 / 淡入淡出计划
type AudioPlan struct {
	Path       string
	Duration   float64
	ExtraLoops int // -stream_loop 的值（0 = 不循环）
	FadeIn     float64
	FadeOut    float64
	FadeOutAt  float64
}

// MontagePlan 一次成片合成的完整计划：片头 + 分镜 + 片尾 + 衔接 + 配乐
type MontagePlan struct {
	Width, Height int
	FPS           int
	IntroDur      float64
	OutroDur      float64
	Clips         []Clip
	Joins         []Join
	VideoFade     float64
	Total         float64
	Audio         *AudioPlan
}

// 分镜间轮换的转场库；片头片尾固定用 fade
var clipTransitions = []string{"dissolve", "slideleft", "circleopen", "wiperight"}

// ResolutionForFormat 画幅到输出分辨率
func ResolutionForFormat(format string) (w, h int) {
	switch format {
	case models.FormatTall:
		return 1080, 1920
	case models.FormatSquare:
		return 1080, 1080
	default:
		return 1920, 1080
	}
}

// BuildMontagePlan 计算整条 xfade 链的偏移。
// 每次衔接吃掉一个交叠时长 X，偏移累加器从 intro-X 起步，
// 每段入场推进 (该段时长 - X)，总时长 = 末次偏移 + 片尾时长
func BuildMontagePlan(format string, clips []Clip, musicPath string, musicDur float64, mc config.MontageConfig) (*MontagePlan, error) {
	if len(clips) == 0 {
		return nil, fmt.Errorf("montage requires at least one clip")
	}
	x := mc.CrossfadeSec
	for i, c := range clips {
		if c.Duration <= x {
			return nil, fmt.Errorf("clip %d duration %.3fs not longer than crossfade %.3fs", i, c.Duration, x)
		}
	}
	if mc.IntroSec <= x || mc.OutroSec <= x {
		return nil, fmt.Errorf("intro/outro duration must exceed crossfade %.3fs", x)
	}

	w, h := ResolutionForFormat(format)
	plan := &MontagePlan{
		Width:     w,
		Height:    h,
		FPS:       mc.FPS,
		IntroDur:  mc.IntroSec,
		OutroDur:  mc.OutroSec,
		Clips:     clips,
		VideoFade: mc.VideoFadeSec,
	}

	offset := mc.IntroSec - x
	plan.Joins = append(plan.Joins, Join{Transition: "fade", Offset: offset})
	for i := 1; i < len(clips); i++ {
		offset += clips[i-1].Duration - x
		t := clipTransitions[(i-1)%len(clipTransitions)]
		plan.Joins = append(plan.Joins, Join{Transition: t, Offset: offset})
	}
	offset += clips[len(clips)-1].Duration - x
	plan.Joins = append(plan.Joins, Join{Transition: "fade", Offset: offset})

	plan.Total = offset + mc.OutroSec

	if musicPath != "" && musicDur > 0 {
		ap := &AudioPlan{
			Path:      musicPath,
			Duration:  musicDur,
			FadeIn:    mc.AudioFadeInSec,
			FadeOut:   mc.AudioFadeOutSec,
			FadeOutAt: plan.Total - mc.AudioFadeOutSec,
		}
		if musicDur < plan.Total {
			ap.ExtraLoops = int(math.Ceil(plan.Total/musicDur)) - 1
		}
		plan.Audio = ap
	}
	return plan, nil
}
