package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/pkg/errors"

	"github.com/mrsingh-rishi/voice-agent/model"
)

const defaultAnthropicMaxTokens = 256

// conversationStart stands in for the user when the history opens with the
// assistant's greeting; the Messages API wants a user message first.
const conversationStart = "(The user joined the conversation.)"

// AnthropicClient implements ChatClient on the Anthropic Messages API.
type AnthropicClient struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicClient creates a client. baseURL may be empty.
func NewAnthropicClient(apiKey, baseURL, modelName string, maxTokens int) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if modelName == "" {
		return nil, fmt.Errorf("model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	return &AnthropicClient{
		client:    anthropic.NewClient(opts...),
		model:     modelName,
		maxTokens: int64(maxTokens),
	}, nil
}

func (c *AnthropicClient) Chat(ctx context.Context, messages []model.Utterance) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  toAnthropicMessages(messages),
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", errors.Wrap(err, "anthropic messages")
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}
	return b.String(), nil
}

// toAnthropicMessages merges consecutive same-role utterances and makes
// sure the conversation starts with a user turn.
func toAnthropicMessages(messages []model.Utterance) []anthropic.MessageParam {
	type turn struct {
		role  model.Role
		parts []string
	}
	var turns []turn
	for _, m := range messages {
		if n := len(turns); n > 0 && turns[n-1].role == m.Role {
			turns[n-1].parts = append(turns[n-1].parts, m.Content)
			continue
		}
		turns = append(turns, turn{role: m.Role, parts: []string{m.Content}})
	}
	if len(turns) > 0 && turns[0].role == model.RoleAssistant {
		turns = append([]turn{{role: model.RoleUser, parts: []string{conversationStart}}}, turns...)
	}

	out := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		block := anthropic.NewTextBlock(strings.Join(t.parts, "\n\n"))
		if t.role == model.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}
