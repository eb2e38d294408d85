package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"VideoRitz-server/config"
)

const sunoBaseURL = "https://api.sunoapi.org"

// Music 生成状态
const (
	MusicStatusPending    = "PENDING"
	MusicStatusProcessing = "PROCESSING"
	MusicStatusSuccess    = "SUCCESS"
	MusicStatusFailed     = "FAILED"
)

type MusicPollResult struct {
	Status   string
	AudioURL string
	Duration float64
}

func sunoRequest(method, path string, body []byte) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, sunoBaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+config.AppConfig.Providers.Suno.APIKey)
	req.Header.Set("Content-Type", "application/json")
	return providerClient.Do(req)
}

// SubmitMusic 提交配乐生成（纯器乐）
func SubmitMusic(prompt, style, title string) (string, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"prompt":       prompt,
		"customMode":   true,
		"style":        style,
		"title":        title,
		"instrumental": true,
		"model":        "V4_5ALL",
	})

	resp, err := sunoRequest(http.MethodPost, "/api/v1/generate", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", providerHTTPError("suno", resp)
	}

	var data struct {
		Data struct {
			TaskID string `json:"taskId"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("decode response failed: %w", err)
	}
	if data.Data.TaskID == "" {
		return "", fmt.Errorf("suno: response missing taskId")
	}
	return data.Data.TaskID, nil
}

// PollMusic 查询配乐生成状态
func PollMusic(taskID string) (MusicPollResult, error) {
	resp, err := sunoRequest(http.MethodGet, "/api/v1/generate/record-info?taskId="+taskID, nil)
	if err != nil {
		return MusicPollResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return MusicPollResult{}, providerHTTPError("suno", resp)
	}

	var data struct {
		Data struct {
			Status   string `json:"status"`
			Response struct {
				SunoData []struct {
					AudioURL string  `json:"audioUrl"`
					Duration float64 `json:"duration"`
				} `json:"sunoData"`
			} `json:"response"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return MusicPollResult{}, fmt.Errorf("decode response failed: %w", err)
	}

	res := MusicPollResult{Status: data.Data.Status}
	if res.Status == "" {
		res.Status = MusicStatusPending
	}
	if res.Status == MusicStatusSuccess {
		songs := data.Data.Response.SunoData
		if len(songs) == 0 || songs[0].AudioURL == "" {
			return res, fmt.Errorf("suno: success but no audio url")
		}
		res.AudioURL = songs[0].AudioURL
		res.Duration = songs[0].Duration
	}
	return res, nil
}
