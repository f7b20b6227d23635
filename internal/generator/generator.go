// Package generator is the client of the synthetic image service used when
// searched sources cannot fill an item's quota.
package generator

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"image-collector/internal/common/config"
	apperrors "image-collector/internal/common/errors"
	apphttp "image-collector/internal/common/http"
)

const SourceName = "ai-generated"

const defaultStyle = "photorealistic, plain background, educational"

// ImageGenerator produces synthetic candidates for an item.
type ImageGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}

type GenerateRequest struct {
	ItemName string `json:"itemName"`
	Category string `json:"category"`
	Count    int    `json:"count"`
	Style    string `json:"style,omitempty"`
}

type GeneratedImage struct {
	Data   []byte
	Format string
	Prompt string
	Model  string
}

type GenerateResult struct {
	Images        []GeneratedImage
	ApprovedCount int
	RejectedCount int
	Cost          float64
}

// Client calls the generation service over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	style   string
	client  *apphttp.Client
}

func NewClient(cfg config.GeneratorConfig, client *apphttp.Client) *Client {
	style := cfg.Style
	if style == "" {
		style = defaultStyle
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		style:   style,
		client:  client,
	}
}

type generateResponse struct {
	Images []struct {
		Data   string `json:"data"`
		Format string `json:"format"`
		Prompt string `json:"prompt"`
		Model  string `json:"model"`
	} `json:"images"`
	ApprovedCount int     `json:"approvedCount"`
	RejectedCount int     `json:"rejectedCount"`
	Cost          float64 `json:"cost"`
}

// Generate requests req.Count images. Images the service returns in an
// undecodable form are counted as rejected rather than failing the call.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if c.baseURL == "" {
		return nil, apperrors.NewSourceUnavailableError(SourceName, errors.New("generator base url not configured"))
	}
	if req.Count <= 0 {
		return &GenerateResult{}, nil
	}
	if req.Style == "" {
		req.Style = c.style
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/images/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, apperrors.NewSourceUnavailableError(SourceName, err)
	}
	if err := apphttp.CheckStatus(resp); err != nil {
		return nil, apperrors.NewSourceUnavailableError(SourceName, err)
	}
	defer resp.Body.Close()

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperrors.NewSourceUnavailableError(SourceName, fmt.Errorf("decode response: %w", err))
	}

	result := &GenerateResult{
		ApprovedCount: out.ApprovedCount,
		RejectedCount: out.RejectedCount,
		Cost:          out.Cost,
	}
	for _, img := range out.Images {
		data, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil || len(data) == 0 {
			result.RejectedCount++
			continue
		}
		result.Images = append(result.Images, GeneratedImage{
			Data:   data,
			Format: img.Format,
			Prompt: img.Prompt,
			Model:  img.Model,
		})
	}
	if len(result.Images) > req.Count {
		result.Images = result.Images[:req.Count]
	}
	return result, nil
}
