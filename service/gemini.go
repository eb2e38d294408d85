package service

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"VideoRitz-server/config"
)

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiRequest struct {
	Contents []struct {
		Parts []geminiPart `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		ResponseModalities []string `json:"responseModalities"`
		ImageConfig        struct {
			AspectRatio string `json:"aspectRatio"`
		} `json:"imageConfig"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GenerateImage 文生图：prompt + 参考图 + 画幅 -> PNG 字节。响应里没有图像负载即失败
func GenerateImage(prompt string, refImages []RefImage, aspectRatio string) ([]byte, error) {
	cfg := config.AppConfig.Providers.Gemini
	apiURL := fmt.Sprintf(
		"https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s",
		cfg.Model, cfg.APIKey,
	)

	var parts []geminiPart
	for _, ref := range refImages {
		parts = append(parts, geminiPart{
			InlineData: &geminiInlineData{MimeType: ref.MimeType, Data: ref.Base64},
		})
	}
	textPrefix := ""
	if len(refImages) > 0 {
		textPrefix = "Using these reference images for visual consistency (same style, same characters, same atmosphere), create: "
	}
	parts = append(parts, geminiPart{Text: textPrefix + prompt})

	var reqBody geminiRequest
	reqBody.Contents = []struct {
		Parts []geminiPart `json:"parts"`
	}{{Parts: parts}}
	reqBody.GenerationConfig.ResponseModalities = []string{"IMAGE", "TEXT"}
	reqBody.GenerationConfig.ImageConfig.AspectRatio = aspectRatio

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request failed: %w", err)
	}

	resp, err := providerClient.Post(apiURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, providerHTTPError("gemini", resp)
	}

	var data geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode response failed: %w", err)
	}

	if len(data.Candidates) > 0 {
		for _, part := range data.Candidates[0].Content.Parts {
			if part.InlineData != nil {
				return base64.StdEncoding.DecodeString(part.InlineData.Data)
			}
		}
	}
	return nil, fmt.Errorf("no image returned from gemini")
}
