package ai

import (
	"context"
	"encoding/base64"
	"github.com/myrjola/casegen/internal/errors"
	"github.com/sashabaranov/go-openai"
)

func generateOpenAI(ctx context.Context, cfg Config, req Request) (string, error) {
	client := openai.NewClient(req.Credential)

	user := openai.ChatCompletionMessage{ //nolint:exhaustruct // this is better for readability
		Role:    openai.ChatMessageRoleUser,
		Content: req.User,
	}
	if len(req.Image) > 0 {
		user.Content = ""
		user.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: req.User},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
				URL: dataURL(req.ImageMIMEType, req.Image),
			}},
		}
	}

	completion, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{ //nolint:exhaustruct // this is better for readability
		Model:     cfg.OpenAIModel,
		MaxTokens: cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			user,
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "create chat completion")
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("chat completion has no choices")
	}
	return completion.Choices[0].Message.Content, nil
}

func dataURL(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "image/png"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
