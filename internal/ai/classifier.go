package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Classification is the compliance verdict for one transcript snippet.
type Classification struct {
	Violation bool     `json:"violation"`
	Phrases   []string `json:"phrases"`
}

const classifierSystemPrompt = "You review live call transcripts for policy violations: abusive or threatening " +
	"language, harassment, solicitation of payment card or social security numbers, and sharing of other " +
	"sensitive personal data. Use the earlier snippets only as context for judging the current one. " +
	"Respond with JSON only: {\"violation\": true|false, \"phrases\": [\"...\"]} where phrases are exact " +
	"substrings of the transcript that triggered the verdict. Use an empty list when there is no violation."

// ClassifyTranscript classifies the current snippet against the recent
// context window (oldest to newest).
func (c *Client) ClassifyTranscript(ctx context.Context, current string, window []string) (Classification, error) {
	var sb strings.Builder
	if len(window) > 0 {
		sb.WriteString("Earlier snippets from this call, oldest first:\n")
		for _, snippet := range window {
			sb.WriteString("- ")
			sb.WriteString(snippet)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Current snippet: ")
	sb.WriteString(current)

	content, err := c.complete(ctx, []ChatMessage{
		{Role: RoleSystem, Content: classifierSystemPrompt},
		{Role: RoleUser, Content: sb.String()},
	}, 300, true)
	if err != nil {
		return Classification{}, fmt.Errorf("ai: classify transcript: %w", err)
	}

	var verdict Classification
	if err := json.Unmarshal([]byte(extractJSON(content)), &verdict); err != nil {
		return Classification{}, fmt.Errorf("ai: decode classification: %w", err)
	}
	return verdict, nil
}
