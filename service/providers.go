package service

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"VideoRitz-server/models"
)

// 供应商调用共用的 HTTP 客户端；生成类接口响应慢，超时放宽
var providerClient = &http.Client{Timeout: 120 * time.Second}

// RefImage 用户上传的参考图（base64 编码后随 prompt 一起发给生成模型）
type RefImage struct {
	Base64   string `json:"base64"`
	MimeType string `json:"mimeType"`
}

// StoryboardResult 分镜脚本生成结果
type StoryboardResult struct {
	Shots       []models.Shot `json:"shots"`
	MusicPrompt string        `json:"musicPrompt"`
	MusicStyle  string        `json:"musicStyle"`
}

// Animator 图生视频能力接口。编排核心只依赖 submit/poll 契约，
// 具体厂商按优先级排成降级链（提交失败才换下一家，轮询失败不换）
type Animator interface {
	Name() string
	Submit(image AnimateImage, prompt string, durationSec int) (string, error)
	Poll(taskID string) (AnimatePollResult, error)
}

// AnimateImage 输入图像：Kling 直连要原始 base64，Freepik 走公网 URL
type AnimateImage struct {
	Base64 string
	URL    string
}

const (
	AnimateStatusRunning = "running"
	AnimateStatusDone    = "done"
	AnimateStatusFailed  = "failed"
)

type AnimatePollResult struct {
	Status   string
	VideoURL string
}

// readErrBody 把供应商返回的错误响应体收进错误信息，便于排查
func readErrBody(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 2000))
	return strings.TrimSpace(string(b))
}

func providerHTTPError(provider string, resp *http.Response) error {
	return fmt.Errorf("%s error %d: %s", provider, resp.StatusCode, readErrBody(resp))
}

// stripCodeFence 去掉模型输出外层的 markdown 代码块包裹
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.Index(s, "\n"); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// DownloadBytes 下载供应商产出的资源
func DownloadBytes(sourceURL string) ([]byte, error) {
	resp, err := providerClient.Get(sourceURL)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download status %d: %s", resp.StatusCode, readErrBody(resp))
	}
	return io.ReadAll(resp.Body)
}

// downloadAndUpload 下载资源并转存到 MinIO，返回存储侧 URL
func downloadAndUpload(sourceURL, objectName string) (string, error) {
	resp, err := providerClient.Get(sourceURL)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download status %d: %s", resp.StatusCode, readErrBody(resp))
	}
	return UploadToMinIO(resp.Body, objectName, resp.ContentLength)
}
