package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
	} `yaml:"redis"`
	MinIO struct {
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Bucket    string `yaml:"bucket"`
		UseSSL    bool   `yaml:"use_ssl"`
		Domain    string `yaml:"domain"`
	} `yaml:"minio"`

	Providers struct {
		Claude struct {
			APIKey string `yaml:"api_key"`
			Model  string `yaml:"model"`
		} `yaml:"claude"`
		Gemini struct {
			APIKey string `yaml:"api_key"`
			Model  string `yaml:"model"`
		} `yaml:"gemini"`
		Freepik struct {
			APIKey string `yaml:"api_key"`
		} `yaml:"freepik"`
		Kling struct {
			AccessKey string `yaml:"access_key"`
			SecretKey string `yaml:"secret_key"`
		} `yaml:"kling"`
		Suno struct {
			APIKey string `yaml:"api_key"`
		} `yaml:"suno"`
	} `yaml:"providers"`

	Pipeline PipelineConfig `yaml:"pipeline"`
}

// PollConfig 轮询参数：固定间隔 + 最大次数（超出视为超时失败，不会无限挂起）
type PollConfig struct {
	IntervalSec int `yaml:"interval_sec"`
	MaxAttempts int `yaml:"max_attempts"`
}

type PipelineConfig struct {
	BatchSize     int        `yaml:"batch_size"`
	RetryDelaySec int        `yaml:"retry_delay_sec"`
	ClipDurSec    int        `yaml:"clip_dur_sec"`
	UpscalePoll   PollConfig `yaml:"upscale_poll"`
	AnimatePoll   PollConfig `yaml:"animate_poll"`
	MusicPoll     PollConfig `yaml:"music_poll"`

	Montage MontageConfig `yaml:"montage"`
}

type MontageConfig struct {
	CrossfadeSec    float64 `yaml:"crossfade_sec"`
	IntroSec        float64 `yaml:"intro_sec"`
	OutroSec        float64 `yaml:"outro_sec"`
	VideoFadeSec    float64 `yaml:"video_fade_sec"`
	AudioFadeInSec  float64 `yaml:"audio_fade_in_sec"`
	AudioFadeOutSec float64 `yaml:"audio_fade_out_sec"`
	FPS             int     `yaml:"fps"`
	// ffmpeg 墙钟超时 = 成片时长 * EncodeTimeoutFactor，下限 2 分钟
	EncodeTimeoutFactor int `yaml:"encode_timeout_factor"`
}

var AppConfig *Config

func InitConfig() {
	f, err := os.Open("config/config.yaml")
	if err != nil {
		log.Fatalf("配置文件读取失败: %v", err)
	}
	defer f.Close()
	decoder := yaml.NewDecoder(f)
	AppConfig = &Config{}
	if err := decoder.Decode(AppConfig); err != nil {
		log.Fatalf("配置文件解析失败: %v", err)
	}
	ApplyPipelineDefaults(&AppConfig.Pipeline)
}

// ApplyPipelineDefaults 填充缺省的流水线参数（批大小与轮询间隔对齐上游供应商的并发上限）
func ApplyPipelineDefaults(p *PipelineConfig) {
	if p.BatchSize <= 0 {
		p.BatchSize = 3
	}
	if p.RetryDelaySec <= 0 {
		p.RetryDelaySec = 5
	}
	if p.ClipDurSec <= 0 {
		p.ClipDurSec = 5
	}
	if p.UpscalePoll.IntervalSec <= 0 {
		p.UpscalePoll.IntervalSec = 5
	}
	if p.UpscalePoll.MaxAttempts <= 0 {
		p.UpscalePoll.MaxAttempts = 120
	}
	if p.AnimatePoll.IntervalSec <= 0 {
		p.AnimatePoll.IntervalSec = 15
	}
	if p.AnimatePoll.MaxAttempts <= 0 {
		p.AnimatePoll.MaxAttempts = 80
	}
	if p.MusicPoll.IntervalSec <= 0 {
		p.MusicPoll.IntervalSec = 10
	}
	if p.MusicPoll.MaxAttempts <= 0 {
		p.MusicPoll.MaxAttempts = 60
	}

	m := &p.Montage
	if m.CrossfadeSec <= 0 {
		m.CrossfadeSec = 0.7
	}
	if m.IntroSec <= 0 {
		m.IntroSec = 1.5
	}
	if m.OutroSec <= 0 {
		m.OutroSec = 2.0
	}
	if m.VideoFadeSec <= 0 {
		m.VideoFadeSec = 1.2
	}
	if m.AudioFadeInSec <= 0 {
		m.AudioFadeInSec = 1.5
	}
	if m.AudioFadeOutSec <= 0 {
		m.AudioFadeOutSec = 2.0
	}
	if m.FPS <= 0 {
		m.FPS = 30
	}
	if m.EncodeTimeoutFactor <= 0 {
		m.EncodeTimeoutFactor = 6
	}
}
