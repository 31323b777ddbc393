package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/mrsingh-rishi/voice-agent/model"
)

// DefaultOllamaBaseURL is Ollama's OpenAI-compatible endpoint.
const DefaultOllamaBaseURL = "http://localhost:11434/v1"

// OpenAIClient talks to any OpenAI-compatible chat completion API, which
// includes a local Ollama server.
type OpenAIClient struct {
	Client    *openai.Client
	Model     string
	MaxTokens int
}

// NewOpenAIClient validates its inputs like the other provider constructors.
func NewOpenAIClient(apiKey, baseURL, modelName string, maxTokens int) (*OpenAIClient, error) {
	if modelName == "" {
		return nil, fmt.Errorf("model is required")
	}
	if apiKey == "" && baseURL == "" {
		return nil, fmt.Errorf("API key is required for the default OpenAI endpoint")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAIClient{
		Client:    openai.NewClientWithConfig(cfg),
		Model:     modelName,
		MaxTokens: maxTokens,
	}, nil
}

// Chat sends the conversation and returns the first choice's content.
func (c *OpenAIClient) Chat(ctx context.Context, messages []model.Utterance) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.Model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	if c.MaxTokens > 0 {
		req.MaxTokens = c.MaxTokens
	}
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		if m.Role == model.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := c.Client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", errors.Wrap(err, "chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
