package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"VideoRitz-server/config"
	"VideoRitz-server/models"
)

const claudeBaseURL = "https://api.anthropic.com/v1/messages"

type claudeContentBlock struct {
	Type   string             `json:"type"`
	Text   string             `json:"text,omitempty"`
	Source *claudeImageSource `json:"source,omitempty"`
}

type claudeImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string               `json:"role"`
	Content []claudeContentBlock `json:"content"`
}

type claudeResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func callClaude(system string, content []claudeContentBlock, maxTokens int) (string, error) {
	cfg := config.AppConfig.Providers.Claude
	body, err := json.Marshal(claudeRequest{
		Model:     cfg.Model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  []claudeMessage{{Role: "user", Content: content}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request failed: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, claudeBaseURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("x-api-key", cfg.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("Content-Type", "application/json")

	resp, err := providerClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", providerHTTPError("claude", resp)
	}

	var data claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("decode response failed: %w", err)
	}
	if len(data.Content) == 0 || data.Content[0].Text == "" {
		return "", fmt.Errorf("claude returned no text")
	}
	return data.Content[0].Text, nil
}

const storyboardSystemTmpl = `You are a cinematic storyboard director. Given a theme and optional reference images, create exactly %d shots for a 30-second cinematic video.

For each shot, provide:
1. A name (short, descriptive)
2. An image generation prompt (detailed - describe composition, lighting, camera angle, mood)
3. A motion prompt (describe camera movement and subtle animations)
4. A music cue (what the music should feel like at this point)

Also provide a single music generation prompt and style for the full track (instrumental, cinematic).

IMPORTANT RULES:
- If reference images are provided, ANALYZE them carefully and incorporate their visual style, color palette, lighting, composition, and mood into your image prompts.
- Maintain visual consistency across all shots (same characters, same style, same color palette).
- Describe characters in detail in EVERY shot they appear in for AI image consistency.%s

Respond in valid JSON only, no markdown. Schema:
{"shots":[{"index":0,"name":"...","imagePrompt":"...","motionPrompt":"...","musicCue":"..."}],"musicPrompt":"...","musicStyle":"..."}`

// GenerateStoryboard 分镜脚本生成：theme + 参考图 (+ 可选风格分析) -> 分镜列表 + 音乐提示
func GenerateStoryboard(theme string, numShots int, refImages []RefImage, styleAnalysis string) (*StoryboardResult, error) {
	styleCtx := ""
	if styleAnalysis != "" {
		styleCtx = "\n\nREFERENCE VIDEO ANALYSIS (replicate this cinematic style):\n" + styleAnalysis
	}
	system := fmt.Sprintf(storyboardSystemTmpl, numShots, styleCtx)

	// 参考图放在文本前面，模型先看图再读题
	var content []claudeContentBlock
	for _, img := range refImages {
		content = append(content, claudeContentBlock{
			Type: "image",
			Source: &claudeImageSource{
				Type:      "base64",
				MediaType: img.MimeType,
				Data:      img.Base64,
			},
		})
	}
	content = append(content, claudeContentBlock{
		Type: "text",
		Text: fmt.Sprintf("Theme: %s\n\nGenerate a cinematic storyboard with %d shots.", theme, numShots),
	})

	raw, err := callClaude(system, content, 4096)
	if err != nil {
		return nil, err
	}

	// 模型偶尔无视指令包一层 ```json，先剥壳再解析
	cleaned := stripCodeFence(raw)
	var result StoryboardResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, fmt.Errorf("storyboard JSON 解析失败: %w", err)
	}
	if len(result.Shots) == 0 {
		return nil, fmt.Errorf("storyboard 中没有 shots 数据")
	}
	result.Shots = models.ReindexShots(result.Shots)
	return &result, nil
}

// AnalyzeReferenceVideo 参考视频风格分析，输出文本拼进分镜生成的提示词
func AnalyzeReferenceVideo(videoDescription string) (string, error) {
	system := `You are a cinematic video analyst. Analyze the described reference video and extract:
1. Visual style (color palette, lighting, contrast, grain/texture)
2. Camera movements (pan, tilt, dolly, crane, tracking, static)
3. Transitions (fade, crossfade, cut, dissolve, wipe)
4. Pacing and timing (shot duration, rhythm, tempo)
5. Mood and atmosphere (emotional tone, energy level)
6. Composition patterns (framing, depth of field, rule of thirds)

Be specific and detailed. This analysis will be used to guide AI storyboard generation.`

	content := []claudeContentBlock{{
		Type: "text",
		Text: "Analyze this reference video for cinematic style replication:\n\n" + videoDescription,
	}}
	return callClaude(system, content, 2048)
}
