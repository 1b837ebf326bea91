//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package openai

import (
	"context"
	"fmt"

	"github.com/pgEdge/pgedge-librarian-server/internal/llm"
)

// ImageProvider implements the llm.ImageProvider interface on the images
// generation endpoint.
type ImageProvider struct {
	client *Client
	model  string
}

// NewImageProvider creates a new OpenAI image provider.
func NewImageProvider(apiKey string, opts ...ImageOption) *ImageProvider {
	p := &ImageProvider{
		client: NewClient(apiKey),
		model:  defaultImageModel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ImageOption configures the image provider.
type ImageOption func(*ImageProvider)

// WithImageModel sets the image model (the deployment name on Azure).
func WithImageModel(model string) ImageOption {
	return func(p *ImageProvider) {
		p.model = model
	}
}

// WithImageClient sets a custom client.
func WithImageClient(client *Client) ImageOption {
	return func(p *ImageProvider) {
		p.client = client
	}
}

type imageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Size           string `json:"size,omitempty"`
	Quality        string `json:"quality,omitempty"`
	N              int    `json:"n"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type imageResponse struct {
	Data []struct {
		B64JSON       string `json:"b64_json"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

// GenerateImage requests images for the prompt. A response without image
// data is an error.
func (p *ImageProvider) GenerateImage(ctx context.Context, req llm.ImageRequest) (*llm.ImageResponse, error) {
	n := req.Count
	if n < 1 {
		n = 1
	}
	format := req.ResponseFormat
	if format == "" {
		format = "b64_json"
	}

	body := imageRequest{
		Model:          p.model,
		Prompt:         req.Prompt,
		Size:           req.Size,
		Quality:        req.Quality,
		N:              n,
		ResponseFormat: format,
	}

	var imgResp imageResponse
	if err := p.client.do(ctx, p.model, "/images/generations", body, &imgResp); err != nil {
		return nil, err
	}

	out := &llm.ImageResponse{}
	for _, d := range imgResp.Data {
		if d.B64JSON == "" {
			continue
		}
		out.Images = append(out.Images, llm.GeneratedImage{
			B64JSON:       d.B64JSON,
			RevisedPrompt: d.RevisedPrompt,
		})
	}
	if len(out.Images) == 0 {
		return nil, fmt.Errorf("no image data returned")
	}

	return out, nil
}

// ModelName returns the model name.
func (p *ImageProvider) ModelName() string {
	return p.model
}

// Ensure ImageProvider implements the interface.
var _ llm.ImageProvider = (*ImageProvider)(nil)
