package ai

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// StreamResponse generates an assistant reply for the conversation history
// and invokes emit once per token as it arrives. An error from emit aborts
// the stream and is returned unchanged.
func (c *Client) StreamResponse(ctx context.Context, history []ChatMessage, emit func(token string) error) error {
	stream, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toOpenAIMessages(history),
		Stream:   true,
	})
	if err != nil {
		return fmt.Errorf("ai: open stream: %w", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("ai: stream recv: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		token := resp.Choices[0].Delta.Content
		if token == "" {
			continue
		}
		if err := emit(token); err != nil {
			return err
		}
	}
}
