package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"VideoRitz-server/config"

	"github.com/golang-jwt/jwt"
)

var klingBaseURL = "https://api-singapore.klingai.com"

// KlingAnimator Kling 官方 API 直连，降级链第一优先
type KlingAnimator struct{}

func NewKlingAnimator() *KlingAnimator { return &KlingAnimator{} }

func (a *KlingAnimator) Name() string { return "kling" }

// klingToken 每次请求现签 30 分钟有效的 HS256 JWT
func klingToken() (string, error) {
	cfg := config.AppConfig.Providers.Kling
	now := time.Now().Unix()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": cfg.AccessKey,
		"exp": now + 1800,
		"nbf": now - 5,
	})
	return token.SignedString([]byte(cfg.SecretKey))
}

func (a *KlingAnimator) Submit(image AnimateImage, prompt string, durationSec int) (string, error) {
	if image.Base64 == "" {
		return "", fmt.Errorf("kling: base64 image required")
	}
	// Kling 要裸 base64，不能带 data: 前缀
	raw := image.Base64
	if i := strings.Index(raw, ";base64,"); i >= 0 {
		raw = raw[i+len(";base64,"):]
	}

	token, err := klingToken()
	if err != nil {
		return "", fmt.Errorf("kling sign token failed: %w", err)
	}

	body, _ := json.Marshal(map[string]interface{}{
		"model_name": "kling-v2-5-turbo",
		"image":      raw,
		"prompt":     prompt,
		"duration":   fmt.Sprintf("%d", durationSec),
		"cfg_scale":  0.5,
		"mode":       "pro",
	})

	req, err := http.NewRequest(http.MethodPost, klingBaseURL+"/v1/videos/image2video", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := providerClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", providerHTTPError("kling", resp)
	}

	var data struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    struct {
			TaskID string `json:"task_id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("decode response failed: %w", err)
	}
	if data.Code != 0 {
		return "", fmt.Errorf("kling error %d: %s", data.Code, data.Message)
	}
	return data.Data.TaskID, nil
}

func (a *KlingAnimator) Poll(taskID string) (AnimatePollResult, error) {
	token, err := klingToken()
	if err != nil {
		return AnimatePollResult{}, fmt.Errorf("kling sign token failed: %w", err)
	}

	req, err := http.NewRequest(http.MethodGet, klingBaseURL+"/v1/videos/image2video/"+taskID, nil)
	if err != nil {
		return AnimatePollResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := providerClient.Do(req)
	if err != nil {
		return AnimatePollResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return AnimatePollResult{}, providerHTTPError("kling", resp)
	}

	var data struct {
		Data struct {
			TaskStatus string `json:"task_status"`
			TaskResult struct {
				Videos []struct {
					URL string `json:"url"`
				} `json:"videos"`
			} `json:"task_result"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return AnimatePollResult{}, fmt.Errorf("decode response failed: %w", err)
	}

	switch data.Data.TaskStatus {
	case "succeed":
		// 终态成功但没给视频地址，继续轮询也等不来结果
		if len(data.Data.TaskResult.Videos) == 0 || data.Data.TaskResult.Videos[0].URL == "" {
			return AnimatePollResult{}, fmt.Errorf("kling: task succeed but no video url")
		}
		return AnimatePollResult{Status: AnimateStatusDone, VideoURL: data.Data.TaskResult.Videos[0].URL}, nil
	case "failed":
		return AnimatePollResult{Status: AnimateStatusFailed}, nil
	}
	return AnimatePollResult{Status: AnimateStatusRunning}, nil
}
