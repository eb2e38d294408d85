package service

import (
	"strings"
	"testing"

	"VideoRitz-server/config"
	"VideoRitz-server/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultMontageConfig() config.MontageConfig {
	var p config.PipelineConfig
	config.ApplyPipelineDefaults(&p)
	return p.Montage
}

func TestResolutionForFormat(t *testing.T) {
	w, h := ResolutionForFormat(models.FormatWide)
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)

	w, h = ResolutionForFormat(models.FormatTall)
	assert.Equal(t, 1080, w)
	assert.Equal(t, 1920, h)

	w, h = ResolutionForFormat(models.FormatSquare)
	assert.Equal(t, 1080, w)
	assert.Equal(t, 1080, h)

	// 未知画幅回落到横屏
	w, h = ResolutionForFormat("4:3")
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)
}

func TestBuildMontagePlan_SingleClip(t *testing.T) {
	mc := defaultMontageConfig()
	clips := []Clip{{Path: "shot_0.mp4", Duration: 5.0}}

	plan, err := BuildMontagePlan(models.FormatWide, clips, "", 0, mc)
	require.NoError(t, err)

	// 单分镜也有片头片尾两次衔接
	require.Len(t, plan.Joins, 2)
	assert.Equal(t, "fade", plan.Joins[0].Transition)
	assert.Equal(t, "fade", plan.Joins[1].Transition)
	assert.InDelta(t, 0.8, plan.Joins[0].Offset, 1e-9) // 1.5 - 0.7
	assert.InDelta(t, 5.1, plan.Joins[1].Offset, 1e-9) // 0.8 + 5.0 - 0.7
	assert.InDelta(t, 7.1, plan.Total, 1e-9)           // 5.1 + 2.0
	assert.Nil(t, plan.Audio)
}

func TestBuildMontagePlan_OffsetAccumulator(t *testing.T) {
	mc := defaultMontageConfig()
	clips := []Clip{
		{Path: "shot_0.mp4", Duration: 5.0},
		{Path: "shot_1.mp4", Duration: 5.0},
		{Path: "shot_2.mp4", Duration: 5.0},
		{Path: "shot_3.mp4", Duration: 5.0},
	}

	plan, err := BuildMontagePlan(models.FormatWide, clips, "", 0, mc)
	require.NoError(t, err)

	// N 个分镜 N+1 次衔接，每次衔接吃掉一个交叠时长
	require.Len(t, plan.Joins, 5)
	wantOffsets := []float64{0.8, 5.1, 9.4, 13.7, 18.0}
	for i, want := range wantOffsets {
		assert.InDelta(t, want, plan.Joins[i].Offset, 1e-9, "join %d", i)
	}
	// intro + outro + ΣD - (N+1)*X = 1.5 + 2.0 + 20.0 - 5*0.7
	assert.InDelta(t, 20.0, plan.Total, 1e-9)
}

func TestBuildMontagePlan_TransitionRotation(t *testing.T) {
	mc := defaultMontageConfig()
	clips := make([]Clip, 6)
	for i := range clips {
		clips[i] = Clip{Path: "c.mp4", Duration: 5.0}
	}

	plan, err := BuildMontagePlan(models.FormatWide, clips, "", 0, mc)
	require.NoError(t, err)
	require.Len(t, plan.Joins, 7)

	// 片头片尾固定 fade，分镜间按库轮换
	assert.Equal(t, "fade", plan.Joins[0].Transition)
	assert.Equal(t, "fade", plan.Joins[6].Transition)
	assert.Equal(t, "dissolve", plan.Joins[1].Transition)
	assert.Equal(t, "slideleft", plan.Joins[2].Transition)
	assert.Equal(t, "circleopen", plan.Joins[3].Transition)
	assert.Equal(t, "wiperight", plan.Joins[4].Transition)
	assert.Equal(t, "dissolve", plan.Joins[5].Transition) // 轮回第一种
}

func TestBuildMontagePlan_VariedClipDurations(t *testing.T) {
	mc := defaultMontageConfig()
	clips := []Clip{
		{Path: "a.mp4", Duration: 4.2},
		{Path: "b.mp4", Duration: 6.7},
		{Path: "c.mp4", Duration: 5.05},
	}

	plan, err := BuildMontagePlan(models.FormatTall, clips, "", 0, mc)
	require.NoError(t, err)

	sum := 4.2 + 6.7 + 5.05
	want := 1.5 + 2.0 + sum - 4*0.7
	assert.InDelta(t, want, plan.Total, 1e-9)
	assert.Equal(t, 1080, plan.Width)
	assert.Equal(t, 1920, plan.Height)
}

func TestBuildMontagePlan_AudioShorterThanTotal(t *testing.T) {
	mc := defaultMontageConfig()
	clips := []Clip{
		{Path: "a.mp4", Duration: 5.0},
		{Path: "b.mp4", Duration: 5.0},
		{Path: "c.mp4", Duration: 5.0},
		{Path: "d.mp4", Duration: 5.0},
	}

	// total 20.0，配乐 8s 需要整体播 3 遍 => 额外循环 2 次
	plan, err := BuildMontagePlan(models.FormatWide, clips, "track.mp3", 8.0, mc)
	require.NoError(t, err)
	require.NotNil(t, plan.Audio)
	assert.Equal(t, 2, plan.Audio.ExtraLoops)
	assert.InDelta(t, 18.0, plan.Audio.FadeOutAt, 1e-9) // 20.0 - 2.0
	assert.InDelta(t, 1.5, plan.Audio.FadeIn, 1e-9)
}

func TestBuildMontagePlan_FourClipScenario(t *testing.T) {
	mc := defaultMontageConfig()
	clips := make([]Clip, 4)
	for i := range clips {
		clips[i] = Clip{Path: "c.mp4", Duration: 5.0}
	}

	// 15s 配乐对 20.0s 成片：整体播 2 遍后裁到成片长度
	plan, err := BuildMontagePlan(models.FormatWide, clips, "track.mp3", 15.0, mc)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, plan.Total, 1e-9)
	require.NotNil(t, plan.Audio)
	assert.Equal(t, 1, plan.Audio.ExtraLoops)

	args := BuildFFmpegArgs(plan, "out.mp4")
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-stream_loop 1 -i track.mp3")
	assert.Contains(t, joined, "-t 20.000 out.mp4")
}

func TestBuildMontagePlan_AudioLongerThanTotal(t *testing.T) {
	mc := defaultMontageConfig()
	clips := []Clip{{Path: "a.mp4", Duration: 5.0}}

	plan, err := BuildMontagePlan(models.FormatWide, clips, "track.mp3", 120.0, mc)
	require.NoError(t, err)
	require.NotNil(t, plan.Audio)
	assert.Equal(t, 0, plan.Audio.ExtraLoops)
	assert.InDelta(t, 5.1, plan.Audio.FadeOutAt, 1e-9) // 7.1 - 2.0
}

func TestBuildMontagePlan_Errors(t *testing.T) {
	mc := defaultMontageConfig()

	_, err := BuildMontagePlan(models.FormatWide, nil, "", 0, mc)
	assert.Error(t, err)

	// 分镜比交叠时长还短，xfade 无从谈起
	_, err = BuildMontagePlan(models.FormatWide, []Clip{{Path: "a.mp4", Duration: 0.5}}, "", 0, mc)
	assert.Error(t, err)
}

func TestBuildFFmpegArgs(t *testing.T) {
	mc := defaultMontageConfig()
	clips := []Clip{
		{Path: "/tmp/shot_0.mp4", Duration: 5.0},
		{Path: "/tmp/shot_1.mp4", Duration: 5.0},
	}
	plan, err := BuildMontagePlan(models.FormatWide, clips, "/tmp/track.mp3", 8.0, mc)
	require.NoError(t, err)

	args := BuildFFmpegArgs(plan, "/tmp/final.mp4")
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "-i /tmp/shot_0.mp4")
	assert.Contains(t, joined, "-i /tmp/shot_1.mp4")
	assert.Contains(t, joined, "color=c=black:s=1920x1080:r=30")
	assert.Contains(t, joined, "-stream_loop 1 -i /tmp/track.mp3") // total 11.4, 配乐 8s 播 2 遍
	assert.Contains(t, joined, "-map [vout]")
	assert.Contains(t, joined, "-map [aout]")
	assert.Equal(t, "/tmp/final.mp4", args[len(args)-1])
}

func TestBuildFilterGraph(t *testing.T) {
	mc := defaultMontageConfig()
	clips := []Clip{
		{Path: "a.mp4", Duration: 5.0},
		{Path: "b.mp4", Duration: 5.0},
	}
	plan, err := BuildMontagePlan(models.FormatWide, clips, "", 0, mc)
	require.NoError(t, err)

	graph := buildFilterGraph(plan, -1)

	// 片头+2 分镜+片尾共 4 路归一化输入
	for _, label := range []string{"[0:v]", "[1:v]", "[2:v]", "[3:v]"} {
		assert.Contains(t, graph, label)
	}
	// 偏移统一毫秒精度
	assert.Contains(t, graph, "xfade=transition=fade:duration=0.700:offset=0.800")
	assert.Contains(t, graph, "xfade=transition=dissolve:duration=0.700:offset=5.100")
	assert.Contains(t, graph, "xfade=transition=fade:duration=0.700:offset=9.400")
	// 整片淡入淡出收口在成片末尾
	assert.Contains(t, graph, "fade=t=out:st=10.200:d=1.200[vout]") // 11.4 - 1.2
	assert.NotContains(t, graph, "[aout]")
}

func TestBuildFilterGraph_WithAudio(t *testing.T) {
	mc := defaultMontageConfig()
	clips := []Clip{{Path: "a.mp4", Duration: 5.0}}
	plan, err := BuildMontagePlan(models.FormatWide, clips, "track.mp3", 60.0, mc)
	require.NoError(t, err)

	graph := buildFilterGraph(plan, 3)
	assert.Contains(t, graph, "[3:a]atrim=0:7.100")
	assert.Contains(t, graph, "afade=t=in:st=0:d=1.500")
	assert.Contains(t, graph, "afade=t=out:st=5.100:d=2.000[aout]")
}
