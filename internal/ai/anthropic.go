package ai

import (
	"context"
	"encoding/base64"
	"github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/myrjola/casegen/internal/errors"
	"strings"
)

func generateAnthropic(ctx context.Context, cfg Config, req Request) (string, error) {
	client := anthropic.NewClient(aoption.WithAPIKey(strings.TrimSpace(req.Credential)))

	blocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(req.User)}
	if len(req.Image) > 0 {
		mimeType := req.ImageMIMEType
		if mimeType == "" {
			mimeType = "image/png"
		}
		blocks = append(blocks, anthropic.NewImageBlockBase64(mimeType, base64.StdEncoding.EncodeToString(req.Image)))
	}

	msg, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(cfg.AnthropicModel),
		MaxTokens: int64(cfg.MaxTokens),
		System:    []anthropic.TextBlockParam{{Text: req.System}},
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	})
	if err != nil {
		return "", errors.Wrap(err, "create message")
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}
	return b.String(), nil
}
