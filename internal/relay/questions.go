package relay

import "strings"

// QuestionType selects the validation semantics for a question.
type QuestionType string

const (
	QuestionName        QuestionType = "name"
	QuestionYesNo       QuestionType = "yes_no"
	QuestionScale       QuestionType = "scale_1_10"
	QuestionTopicText   QuestionType = "topic_text"
	QuestionTopicEntity QuestionType = "topic_entity"
)

// Question is one entry of the fixed, ordered questionnaire. The list is
// immutable at runtime.
type Question struct {
	ID     string
	Prompt string
	Type   QuestionType
}

// DefaultQuestions returns the stock intake questionnaire.
func DefaultQuestions() []Question {
	return []Question{
		{ID: "name", Prompt: "Let's get started. What is your name?", Type: QuestionName},
		{ID: "used_before", Prompt: "Have you used our service before? Please answer yes or no.", Type: QuestionYesNo},
		{ID: "satisfaction", Prompt: "On a scale of one to ten, how satisfied are you with our service?", Type: QuestionScale},
		{ID: "improvement", Prompt: "What is one thing we could improve about the service?", Type: QuestionTopicText},
		{ID: "company", Prompt: "And which company are you calling from?", Type: QuestionTopicEntity},
	}
}

// CompanyEntity is the normalized answer for a topic_entity question.
type CompanyEntity struct {
	Name    string `json:"name"`
	IsKnown bool   `json:"isKnown"`
}

// CompanyPolicy decides allow-list membership for extracted company names.
// Fold selects case-insensitive matching; the default is exact.
type CompanyPolicy struct {
	Known []string
	Fold  bool
}

// IsKnown reports whether name is on the allow-list under the policy.
func (p CompanyPolicy) IsKnown(name string) bool {
	for _, known := range p.Known {
		if name == known {
			return true
		}
		if p.Fold && strings.EqualFold(name, known) {
			return true
		}
	}
	return false
}
