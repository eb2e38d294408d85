package service

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ProbeDuration 用 ffprobe 读容器时长（秒）
func ProbeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, &TranscodeError{Err: err, Detail: fmt.Sprintf("ffprobe %s: %s", path, tail(stderr.String()))}
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration %q: %w", stdout.String(), err)
	}
	return d, nil
}

// BuildFFmpegArgs 把合成计划翻译为一条 ffmpeg 命令的参数。
// 输入顺序: 0=片头(lavfi), 1..N=分镜, N+1=片尾(lavfi), 末尾可选配乐
func BuildFFmpegArgs(plan *MontagePlan, outPath string) []string {
	args := []string{"-y"}

	colorSrc := fmt.Sprintf("color=c=black:s=%dx%d:r=%d", plan.Width, plan.Height, plan.FPS)
	args = append(args, "-f", "lavfi", "-t", ffSec(plan.IntroDur), "-i", colorSrc)
	for _, c := range plan.Clips {
		args = append(args, "-i", c.Path)
	}
	args = append(args, "-f", "lavfi", "-t", ffSec(plan.OutroDur), "-i", colorSrc)

	audioIdx := -1
	if plan.Audio != nil {
		if plan.Audio.ExtraLoops > 0 {
			args = append(args, "-stream_loop", strconv.Itoa(plan.Audio.ExtraLoops))
		}
		args = append(args, "-i", plan.Audio.Path)
		audioIdx = len(plan.Clips) + 2
	}

	args = append(args, "-filter_complex", buildFilterGraph(plan, audioIdx))
	args = append(args, "-map", "[vout]")
	if plan.Audio != nil {
		args = append(args, "-map", "[aout]", "-c:a", "aac", "-b:a", "192k")
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "20",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-t", ffSec(plan.Total),
		outPath,
	)
	return args
}

// buildFilterGraph 归一化各路输入后串 xfade 链，末端叠加整片淡入淡出
func buildFilterGraph(plan *MontagePlan, audioIdx int) string {
	var sb strings.Builder
	segCount := len(plan.Clips) + 2

	for i := 0; i < segCount; i++ {
		fmt.Fprintf(&sb, "[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,"+
			"pad=%d:%d:(ow-iw)/2:(oh-ih)/2,fps=%d,format=yuv420p,settb=AVTB[v%d];",
			i, plan.Width, plan.Height, plan.Width, plan.Height, plan.FPS, i)
	}

	prev := "v0"
	for j, join := range plan.Joins {
		out := fmt.Sprintf("x%d", j)
		fmt.Fprintf(&sb, "[%s][v%d]xfade=transition=%s:duration=%s:offset=%s[%s];",
			prev, j+1, join.Transition, ffSec(crossfadeOf(plan)), ffSec(join.Offset), out)
		prev = out
	}

	fadeOutAt := plan.Total - plan.VideoFade
	fmt.Fprintf(&sb, "[%s]fade=t=in:st=0:d=%s,fade=t=out:st=%s:d=%s[vout]",
		prev, ffSec(plan.VideoFade), ffSec(fadeOutAt), ffSec(plan.VideoFade))

	if plan.Audio != nil {
		fmt.Fprintf(&sb, ";[%d:a]atrim=0:%s,asetpts=PTS-STARTPTS,"+
			"afade=t=in:st=0:d=%s,afade=t=out:st=%s:d=%s[aout]",
			audioIdx, ffSec(plan.Total),
			ffSec(plan.Audio.FadeIn), ffSec(plan.Audio.FadeOutAt), ffSec(plan.Audio.FadeOut))
	}
	return sb.String()
}

// crossfadeOf 交叠时长可以从任意相邻偏移反推，这里直接从计划取首段关系
func crossfadeOf(plan *MontagePlan) float64 {
	return plan.IntroDur - plan.Joins[0].Offset
}

// ffSec 时间参数统一毫秒精度，避免浮点尾数污染滤镜图
func ffSec(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// RunFFmpeg 执行合成，编码超时按成片时长放大（下限兜底），
// 失败时带回 stderr 尾部便于定位滤镜图错误
func RunFFmpeg(ctx context.Context, plan *MontagePlan, encodeTimeoutFactor int, outPath string) error {
	timeout := time.Duration(plan.Total*float64(encodeTimeoutFactor)) * time.Second
	if timeout < 2*time.Minute {
		timeout = 2 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := BuildFFmpegArgs(plan, outPath)
	cmd := exec.CommandContext(runCtx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &TranscodeError{Err: err, Detail: tail(stderr.String())}
	}
	return nil
}

// tail 截取命令输出末尾，ffmpeg 的有效报错几乎都在最后几行
func tail(s string) string {
	const keep = 2000
	if len(s) > keep {
		return s[len(s)-keep:]
	}
	return s
}
