package ai

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/covox/relay/pkg/logging"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a conversation handed to the model.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Answer kinds mirror the questionnaire question types.
const (
	KindName        = "name"
	KindYesNo       = "yes_no"
	KindScale       = "scale_1_10"
	KindTopicText   = "topic_text"
	KindTopicEntity = "topic_entity"
)

type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
}

// Client wraps the OpenAI API behind the narrow contracts the relay needs:
// answer validation, compliance classification, and token streaming.
type Client struct {
	api    chatAPI
	model  string
	logger *logging.Logger
}

// NewClient creates an AI client. The api is typically *openai.Client.
func NewClient(api chatAPI, model string, logger *logging.Logger) *Client {
	if api == nil {
		panic("ai: chat API cannot be nil")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{api: api, model: model, logger: logger}
}

// complete runs a single non-streaming completion and returns the text.
func (c *Client) complete(ctx context.Context, msgs []ChatMessage, maxTokens int, jsonOnly bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  toOpenAIMessages(msgs),
		MaxTokens: maxTokens,
	}
	if jsonOnly {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("ai: completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func toOpenAIMessages(msgs []ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// extractJSON pulls the outermost JSON object out of a model reply that may
// wrap it in prose or code fences.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}
