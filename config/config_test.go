package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyPipelineDefaults_FillsZeroValues(t *testing.T) {
	var p PipelineConfig
	ApplyPipelineDefaults(&p)

	assert.Equal(t, 3, p.BatchSize)
	assert.Equal(t, 5, p.RetryDelaySec)
	assert.Equal(t, 5, p.ClipDurSec)
	assert.Equal(t, 5, p.UpscalePoll.IntervalSec)
	assert.Equal(t, 120, p.UpscalePoll.MaxAttempts)
	assert.Equal(t, 15, p.AnimatePoll.IntervalSec)
	assert.Equal(t, 80, p.AnimatePoll.MaxAttempts)
	assert.Equal(t, 10, p.MusicPoll.IntervalSec)
	assert.Equal(t, 60, p.MusicPoll.MaxAttempts)

	assert.InDelta(t, 0.7, p.Montage.CrossfadeSec, 1e-9)
	assert.InDelta(t, 1.5, p.Montage.IntroSec, 1e-9)
	assert.InDelta(t, 2.0, p.Montage.OutroSec, 1e-9)
	assert.InDelta(t, 1.2, p.Montage.VideoFadeSec, 1e-9)
	assert.Equal(t, 30, p.Montage.FPS)
	assert.Equal(t, 6, p.Montage.EncodeTimeoutFactor)
}

func TestApplyPipelineDefaults_KeepsExplicitValues(t *testing.T) {
	p := PipelineConfig{
		BatchSize:  5,
		ClipDurSec: 10,
	}
	p.Montage.CrossfadeSec = 1.0
	ApplyPipelineDefaults(&p)

	assert.Equal(t, 5, p.BatchSize)
	assert.Equal(t, 10, p.ClipDurSec)
	assert.InDelta(t, 1.0, p.Montage.CrossfadeSec, 1e-9)
	// 未给的照常补默认
	assert.Equal(t, 5, p.RetryDelaySec)
}
