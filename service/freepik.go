package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"VideoRitz-server/config"
)

const (
	freepikUpscaleBase = "https://api.freepik.com/v1/ai/image-upscaler-precision-v2"
	freepikMCPURL      = "https://api.freepik.com/mcp"
)

// Upscaler 状态
const (
	UpscaleStatusQueued     = "QUEUED"
	UpscaleStatusInProgress = "IN_PROGRESS"
	UpscaleStatusCompleted  = "COMPLETED"
	UpscaleStatusFailed     = "FAILED"
)

type UpscalePollResult struct {
	Status string
	URL    string
}

// SubmitUpscale 提交放大任务；接口要求 data:image/... 前缀的 base64
func SubmitUpscale(imageBase64 string) (string, error) {
	if !strings.HasPrefix(imageBase64, "data:") {
		imageBase64 = "data:image/png;base64," + imageBase64
	}
	body, _ := json.Marshal(map[string]interface{}{
		"image": imageBase64,
		"scale": 4,
	})

	req, err := http.NewRequest(http.MethodPost, freepikUpscaleBase, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("x-freepik-api-key", config.AppConfig.Providers.Freepik.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := providerClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", providerHTTPError("freepik upscale", resp)
	}

	var data struct {
		Data struct {
			TaskID string `json:"task_id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("decode response failed: %w", err)
	}
	if data.Data.TaskID == "" {
		return "", fmt.Errorf("freepik upscale: response missing task_id")
	}
	return data.Data.TaskID, nil
}

// PollUpscale 查询放大任务状态
func PollUpscale(taskID string) (UpscalePollResult, error) {
	req, err := http.NewRequest(http.MethodGet, freepikUpscaleBase+"/"+taskID, nil)
	if err != nil {
		return UpscalePollResult{}, err
	}
	req.Header.Set("x-freepik-api-key", config.AppConfig.Providers.Freepik.APIKey)

	resp, err := providerClient.Do(req)
	if err != nil {
		return UpscalePollResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return UpscalePollResult{}, providerHTTPError("freepik upscale", resp)
	}

	var data struct {
		Data struct {
			Status    string `json:"status"`
			Generated []struct {
				URL string `json:"url"`
			} `json:"generated"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return UpscalePollResult{}, fmt.Errorf("decode response failed: %w", err)
	}

	res := UpscalePollResult{Status: data.Data.Status}
	if res.Status == UpscaleStatusCompleted {
		if len(data.Data.Generated) == 0 {
			return res, fmt.Errorf("freepik upscale: completed but no result url")
		}
		res.URL = data.Data.Generated[0].URL
	}
	return res, nil
}

// ============================================================================
// Freepik MCP 图生视频（Animator 降级链的第二、三级）
// ============================================================================

type mcpResponse struct {
	Result *struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// mcpCall 调用 MCP tools/call，返回 text 负载解析后的 JSON
func mcpCall(tool string, args map[string]string, out interface{}) error {
	body, _ := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "tools/call",
		"id":      time.Now().UnixMilli(),
		"params":  map[string]interface{}{"name": tool, "arguments": args},
	})

	req, err := http.NewRequest(http.MethodPost, freepikMCPURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("x-freepik-api-key", config.AppConfig.Providers.Freepik.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := providerClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return providerHTTPError("freepik mcp", resp)
	}

	var data mcpResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return fmt.Errorf("decode response failed: %w", err)
	}
	if data.Error != nil {
		return fmt.Errorf("freepik mcp error %d: %s", data.Error.Code, data.Error.Message)
	}
	if data.Result == nil || len(data.Result.Content) == 0 || data.Result.Content[0].Text == "" {
		return fmt.Errorf("freepik mcp: no response text")
	}
	return json.Unmarshal([]byte(data.Result.Content[0].Text), out)
}

// FreepikAnimator Freepik 托管的 Kling 图生视频；Pro/Std 只差 tool 名
type FreepikAnimator struct {
	name       string
	createTool string
	pollTool   string
}

func NewFreepikProAnimator() *FreepikAnimator {
	return &FreepikAnimator{
		name:       "freepik-pro",
		createTool: "create_video_kling_2_1_pro",
		pollTool:   "get_video_status",
	}
}

func NewFreepikStdAnimator() *FreepikAnimator {
	return &FreepikAnimator{
		name:       "freepik-std",
		createTool: "create_video_kling_2_1_std",
		pollTool:   "get_video_status",
	}
}

func (a *FreepikAnimator) Name() string { return a.name }

func (a *FreepikAnimator) Submit(image AnimateImage, prompt string, durationSec int) (string, error) {
	if image.URL == "" {
		return "", fmt.Errorf("%s: image url required", a.name)
	}
	// Freepik 侧只接受 5s / 10s 档位
	dur := "5"
	if durationSec >= 10 {
		dur = "10"
	}
	var result struct {
		TaskID string `json:"task_id"`
		Status string `json:"status"`
	}
	err := mcpCall(a.createTool, map[string]string{
		"image":    image.URL,
		"prompt":   prompt,
		"duration": dur,
	}, &result)
	if err != nil {
		return "", err
	}
	if result.TaskID == "" {
		return "", fmt.Errorf("%s: response missing task_id", a.name)
	}
	return result.TaskID, nil
}

func (a *FreepikAnimator) Poll(taskID string) (AnimatePollResult, error) {
	var result struct {
		Status    string `json:"status"`
		Generated []struct {
			URL string `json:"url"`
		} `json:"generated"`
	}
	if err := mcpCall(a.pollTool, map[string]string{"task_id": taskID}, &result); err != nil {
		return AnimatePollResult{}, err
	}

	switch strings.ToUpper(result.Status) {
	case "COMPLETED", "SUCCEEDED":
		if len(result.Generated) == 0 || result.Generated[0].URL == "" {
			return AnimatePollResult{}, fmt.Errorf("%s: completed but no video url", a.name)
		}
		return AnimatePollResult{Status: AnimateStatusDone, VideoURL: result.Generated[0].URL}, nil
	case "FAILED", "ERROR":
		return AnimatePollResult{Status: AnimateStatusFailed}, nil
	}
	return AnimatePollResult{Status: AnimateStatusRunning}, nil
}
