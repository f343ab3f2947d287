package ai

import (
	"context"
	"github.com/myrjola/casegen/internal/errors"
	"google.golang.org/genai"
	"strings"
)

func generateGemini(ctx context.Context, cfg Config, req Request) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  req.Credential,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", errors.Wrap(err, "create gemini client")
	}

	parts := []*genai.Part{{Text: req.User}}
	if len(req.Image) > 0 {
		mimeType := req.ImageMIMEType
		if mimeType == "" {
			mimeType = "image/png"
		}
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{Data: req.Image, MIMEType: mimeType}})
	}

	resp, err := client.Models.GenerateContent(ctx, cfg.GeminiModel,
		[]*genai.Content{{Role: string(genai.RoleUser), Parts: parts}},
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: req.System}}},
			ResponseMIMEType:  "application/json",
		},
	)
	if err != nil {
		return "", errors.Wrap(err, "generate content")
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini response has no candidates")
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}
