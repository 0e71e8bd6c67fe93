package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// AnswerInput describes one questionnaire answer to validate.
type AnswerInput struct {
	QuestionID string
	Prompt     string
	Kind       string
	Answer     string
}

// AnswerVerdict is the validator's decision. For a valid verdict exactly one
// of the value fields is meaningful, selected by the question kind: Text for
// name/yes_no/topic_text, Number for scale_1_10, EntityName for topic_entity.
type AnswerVerdict struct {
	Valid      bool
	Text       string
	Number     int
	EntityName string
	Feedback   string
}

const validatorSystemPrompt = "You validate a single answer given over the phone during a voice questionnaire. " +
	"Callers speak informally; transcripts may contain filler words. " +
	"Respond with JSON only, in the form {\"valid\": true|false, \"value\": ..., \"feedback\": \"...\"}. " +
	"When the answer is invalid, feedback is one short spoken sentence telling the caller what you need; " +
	"when valid, feedback may be empty."

var kindInstructions = map[string]string{
	KindName: "The answer is valid only if a person's name can be extracted. " +
		"Set value to the extracted name as a string.",
	KindYesNo: "The answer is valid only if the caller's intent is unambiguously yes or no. " +
		"Set value to exactly the string \"yes\" or \"no\".",
	KindScale: "The answer is valid only if it unambiguously implies an integer from 1 to 10. " +
		"Set value to that integer.",
	KindTopicText: "The answer is valid only if it is topically related to the question. " +
		"Set value to the answer as cleaned free text.",
	KindTopicEntity: "The answer is valid only if a company or organization name can be extracted. " +
		"Set value to an object {\"name\": \"<extracted name>\"}.",
}

// ValidateAnswer submits one (question, answer) pair for validation and
// coerces the model's verdict into the shape the question kind requires.
// A malformed or shape-violating verdict is returned as an error so the
// caller can re-ask without charging the caller an invalid attempt.
func (c *Client) ValidateAnswer(ctx context.Context, in AnswerInput) (AnswerVerdict, error) {
	instructions, ok := kindInstructions[in.Kind]
	if !ok {
		return AnswerVerdict{}, fmt.Errorf("ai: unknown question kind %q", in.Kind)
	}

	user := fmt.Sprintf("Question (%s): %s\n%s\nCaller's answer: %s",
		in.Kind, in.Prompt, instructions, in.Answer)

	content, err := c.complete(ctx, []ChatMessage{
		{Role: RoleSystem, Content: validatorSystemPrompt},
		{Role: RoleUser, Content: user},
	}, 200, true)
	if err != nil {
		return AnswerVerdict{}, fmt.Errorf("ai: validate answer: %w", err)
	}

	verdict, err := parseAnswerVerdict(in.Kind, content)
	if err != nil {
		c.logger.Warn("ai: unusable validation verdict",
			"question_id", in.QuestionID, "kind", in.Kind, "error", err)
		return AnswerVerdict{}, err
	}
	return verdict, nil
}

type rawVerdict struct {
	Valid    bool            `json:"valid"`
	Value    json.RawMessage `json:"value"`
	Feedback string          `json:"feedback"`
}

func parseAnswerVerdict(kind, content string) (AnswerVerdict, error) {
	var raw rawVerdict
	if err := json.Unmarshal([]byte(extractJSON(content)), &raw); err != nil {
		return AnswerVerdict{}, fmt.Errorf("ai: decode verdict: %w", err)
	}

	verdict := AnswerVerdict{Valid: raw.Valid, Feedback: strings.TrimSpace(raw.Feedback)}
	if !raw.Valid {
		return verdict, nil
	}

	switch kind {
	case KindName, KindTopicText:
		text, err := decodeString(raw.Value)
		if err != nil || strings.TrimSpace(text) == "" {
			return AnswerVerdict{}, fmt.Errorf("ai: %s verdict missing text value", kind)
		}
		verdict.Text = strings.TrimSpace(text)

	case KindYesNo:
		text, err := decodeString(raw.Value)
		if err != nil {
			return AnswerVerdict{}, fmt.Errorf("ai: yes_no verdict missing value")
		}
		text = strings.ToLower(strings.TrimSpace(text))
		if text != "yes" && text != "no" {
			return AnswerVerdict{}, fmt.Errorf("ai: yes_no verdict has value %q", text)
		}
		verdict.Text = text

	case KindScale:
		n, err := decodeInt(raw.Value)
		if err != nil {
			return AnswerVerdict{}, fmt.Errorf("ai: scale verdict: %w", err)
		}
		if n < 1 || n > 10 {
			return AnswerVerdict{}, fmt.Errorf("ai: scale verdict %d out of range", n)
		}
		verdict.Number = n

	case KindTopicEntity:
		name, err := decodeEntityName(raw.Value)
		if err != nil || strings.TrimSpace(name) == "" {
			return AnswerVerdict{}, fmt.Errorf("ai: topic_entity verdict missing name")
		}
		verdict.EntityName = strings.TrimSpace(name)

	default:
		return AnswerVerdict{}, fmt.Errorf("ai: unknown question kind %q", kind)
	}

	return verdict, nil
}

func decodeString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}

func decodeInt(raw json.RawMessage) (int, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("non-integer value %v", f)
		}
		return int(f), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("value is neither number nor string")
	}
	return strconv.Atoi(strings.TrimSpace(s))
}

func decodeEntityName(raw json.RawMessage) (string, error) {
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Name != "" {
		return obj.Name, nil
	}
	return decodeString(raw)
}
