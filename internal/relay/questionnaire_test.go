package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covox/relay/internal/ai"
	"github.com/covox/relay/pkg/logging"
)

type frame struct {
	token string
	last  bool
}

// recordingSender captures outbound frames for assertions.
type recordingSender struct {
	mu     sync.Mutex
	frames []frame
}

func (s *recordingSender) SendText(token string, last bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame{token: token, last: last})
	return nil
}

// turns groups captured frames into spoken turns, one per terminal frame.
func (s *recordingSender) turns() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	var sb strings.Builder
	for _, f := range s.frames {
		if f.last {
			out = append(out, sb.String())
			sb.Reset()
			continue
		}
		sb.WriteString(f.token)
	}
	return out
}

type scriptedValidator struct {
	mu       sync.Mutex
	verdicts []ai.AnswerVerdict
	errs     []error
	inputs   []ai.AnswerInput
}

func (v *scriptedValidator) ValidateAnswer(_ context.Context, in ai.AnswerInput) (ai.AnswerVerdict, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.inputs = append(v.inputs, in)
	if len(v.errs) > 0 {
		err := v.errs[0]
		v.errs = v.errs[1:]
		if err != nil {
			return ai.AnswerVerdict{}, err
		}
	}
	if len(v.verdicts) == 0 {
		return ai.AnswerVerdict{Valid: true, Text: in.Answer}, nil
	}
	verdict := v.verdicts[0]
	v.verdicts = v.verdicts[1:]
	return verdict, nil
}

type fakeControl struct {
	mu       sync.Mutex
	calls    []string
	messages []string
	err      error
}

func (c *fakeControl) EndCallWithMessage(_ context.Context, callSid, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, callSid)
	c.messages = append(c.messages, message)
	return c.err
}

func (c *fakeControl) hangups() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *fakeControl) spoken() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.messages))
	copy(out, c.messages)
	return out
}

type fakeOutcomes struct {
	mu      sync.Mutex
	records []OutcomeRecord
	err     error
}

func (o *fakeOutcomes) SaveOutcome(_ context.Context, rec OutcomeRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, rec)
	return o.err
}

func (o *fakeOutcomes) saved() []OutcomeRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]OutcomeRecord, len(o.records))
	copy(out, o.records)
	return out
}

func quietLogger() *logging.Logger {
	return logging.NewWithWriter(new(strings.Builder), "error", "text")
}

func twoQuestions() []Question {
	return []Question{
		{ID: "name", Prompt: "What is your name?", Type: QuestionName},
		{ID: "satisfaction", Prompt: "How satisfied are you, one to ten?", Type: QuestionScale},
	}
}

func newTestEngine(t *testing.T, cfg QuestionnaireConfig) *QuestionnaireEngine {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	if cfg.Questions == nil {
		cfg.Questions = twoQuestions()
	}
	if cfg.SilenceTimeout == 0 {
		cfg.SilenceTimeout = time.Hour
	}
	return NewQuestionnaireEngine(cfg)
}

func TestQuestionnaireHappyPath(t *testing.T) {
	validator := &scriptedValidator{verdicts: []ai.AnswerVerdict{
		{Valid: true, Text: "Ada"},
		{Valid: true, Number: 9},
	}}
	control := &fakeControl{}
	outcomes := &fakeOutcomes{}
	engine := newTestEngine(t, QuestionnaireConfig{
		Validator: validator, Control: control, Outcomes: outcomes,
	})
	send := &recordingSender{}
	ctx := context.Background()

	engine.OnSetup(ctx, "CA1", send)
	engine.OnPrompt(ctx, "CA1", "my name is Ada", send)
	engine.OnPrompt(ctx, "CA1", "a nine", send)

	turns := send.turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "What is your name?", turns[0])
	assert.Equal(t, "How satisfied are you, one to ten?", turns[1])

	recs := outcomes.saved()
	require.Len(t, recs, 1)
	assert.Equal(t, "CA1", recs[0].CallSid)
	assert.Equal(t, StatusCompleted, recs[0].Status)
	assert.Equal(t, ReasonCompleted, recs[0].TerminationReason)
	assert.Equal(t, "Ada", recs[0].Answers["name"])
	assert.Equal(t, 9, recs[0].Answers["satisfaction"])

	assert.Equal(t, 1, control.hangups())
	assert.Equal(t, []string{completionMessage}, control.spoken())
}

func TestQuestionnaireInvalidAnswersTerminate(t *testing.T) {
	validator := &scriptedValidator{verdicts: []ai.AnswerVerdict{
		{Valid: false, Feedback: "Please tell me your name."},
		{Valid: false},
		{Valid: false},
	}}
	control := &fakeControl{}
	outcomes := &fakeOutcomes{}
	engine := newTestEngine(t, QuestionnaireConfig{
		Validator: validator, Control: control, Outcomes: outcomes, MaxInvalid: 3,
	})
	send := &recordingSender{}
	ctx := context.Background()

	engine.OnSetup(ctx, "CA1", send)
	engine.OnPrompt(ctx, "CA1", "mumble", send)
	engine.OnPrompt(ctx, "CA1", "mumble", send)
	engine.OnPrompt(ctx, "CA1", "mumble", send)

	turns := send.turns()
	require.Len(t, turns, 3)
	assert.Equal(t, "Please tell me your name. What is your name?", turns[1])
	assert.Equal(t, defaultInvalidFeedback+" What is your name?", turns[2])

	recs := outcomes.saved()
	require.Len(t, recs, 1)
	assert.Equal(t, StatusTerminated, recs[0].Status)
	assert.Equal(t, ReasonInvalidAnswers, recs[0].TerminationReason)
	assert.Empty(t, recs[0].Answers)
	assert.Equal(t, 1, control.hangups())
	assert.Equal(t, []string{invalidAnswersMessage}, control.spoken())
}

func TestQuestionnaireValidAnswerResetsInvalidCount(t *testing.T) {
	validator := &scriptedValidator{verdicts: []ai.AnswerVerdict{
		{Valid: false},
		{Valid: false},
		{Valid: true, Text: "Ada"},
		{Valid: false},
		{Valid: false},
		{Valid: true, Number: 5},
	}}
	outcomes := &fakeOutcomes{}
	engine := newTestEngine(t, QuestionnaireConfig{Validator: validator, Outcomes: outcomes})
	send := &recordingSender{}
	ctx := context.Background()

	engine.OnSetup(ctx, "CA1", send)
	for i := 0; i < 6; i++ {
		engine.OnPrompt(ctx, "CA1", "something", send)
	}

	recs := outcomes.saved()
	require.Len(t, recs, 1)
	assert.Equal(t, StatusCompleted, recs[0].Status)
}

func TestQuestionnaireValidatorErrorDoesNotCount(t *testing.T) {
	validator := &scriptedValidator{
		errs: []error{errors.New("model unavailable"), nil, nil},
		verdicts: []ai.AnswerVerdict{
			{Valid: true, Text: "Ada"},
			{Valid: true, Number: 7},
		},
	}
	outcomes := &fakeOutcomes{}
	engine := newTestEngine(t, QuestionnaireConfig{Validator: validator, Outcomes: outcomes})
	send := &recordingSender{}
	ctx := context.Background()

	engine.OnSetup(ctx, "CA1", send)
	engine.OnPrompt(ctx, "CA1", "my name is Ada", send)

	turns := send.turns()
	require.Len(t, turns, 2)
	assert.Equal(t, retryAfterErrorMessage+" What is your name?", turns[1])

	// The re-asked question is still question one.
	engine.OnPrompt(ctx, "CA1", "Ada", send)
	engine.OnPrompt(ctx, "CA1", "seven", send)
	recs := outcomes.saved()
	require.Len(t, recs, 1)
	assert.Equal(t, StatusCompleted, recs[0].Status)
}

func TestQuestionnaireSilenceTimeout(t *testing.T) {
	validator := &scriptedValidator{}
	control := &fakeControl{}
	outcomes := &fakeOutcomes{}
	engine := newTestEngine(t, QuestionnaireConfig{
		Validator: validator, Control: control, Outcomes: outcomes,
		SilenceTimeout: 20 * time.Millisecond,
	})
	send := &recordingSender{}

	engine.OnSetup(context.Background(), "CA1", send)

	require.Eventually(t, func() bool {
		return len(outcomes.saved()) == 1
	}, time.Second, 5*time.Millisecond)

	recs := outcomes.saved()
	assert.Equal(t, StatusTerminated, recs[0].Status)
	assert.Equal(t, ReasonSilence, recs[0].TerminationReason)
	assert.Equal(t, 1, control.hangups())
	assert.Equal(t, []string{silenceMessage}, control.spoken())
}

func TestQuestionnairePromptDisarmsWatchdog(t *testing.T) {
	validator := &scriptedValidator{verdicts: []ai.AnswerVerdict{
		{Valid: true, Text: "Ada"},
		{Valid: true, Number: 8},
	}}
	outcomes := &fakeOutcomes{}
	engine := newTestEngine(t, QuestionnaireConfig{
		Validator: validator, Outcomes: outcomes, SilenceTimeout: 40 * time.Millisecond,
	})
	send := &recordingSender{}
	ctx := context.Background()

	engine.OnSetup(ctx, "CA1", send)
	time.Sleep(25 * time.Millisecond)
	engine.OnPrompt(ctx, "CA1", "Ada", send)
	time.Sleep(25 * time.Millisecond)
	engine.OnPrompt(ctx, "CA1", "eight", send)

	recs := outcomes.saved()
	require.Len(t, recs, 1)
	assert.Equal(t, ReasonCompleted, recs[0].TerminationReason, "answers inside the window must not trip the silence watchdog")
}

func TestQuestionnaireFinalizeIsIdempotent(t *testing.T) {
	validator := &scriptedValidator{verdicts: []ai.AnswerVerdict{
		{Valid: true, Text: "Ada"},
		{Valid: true, Number: 10},
	}}
	control := &fakeControl{}
	outcomes := &fakeOutcomes{}
	engine := newTestEngine(t, QuestionnaireConfig{
		Validator: validator, Control: control, Outcomes: outcomes,
	})
	send := &recordingSender{}
	ctx := context.Background()

	engine.OnSetup(ctx, "CA1", send)
	engine.OnPrompt(ctx, "CA1", "Ada", send)
	engine.OnPrompt(ctx, "CA1", "ten", send)
	// A trailing utterance after completion must be ignored.
	engine.OnPrompt(ctx, "CA1", "hello?", send)

	assert.Len(t, outcomes.saved(), 1)
	assert.Equal(t, 1, control.hangups())
}

func TestQuestionnaireRecordFailureStillEndsCall(t *testing.T) {
	validator := &scriptedValidator{verdicts: []ai.AnswerVerdict{
		{Valid: true, Text: "Ada"},
		{Valid: true, Number: 2},
	}}
	control := &fakeControl{}
	outcomes := &fakeOutcomes{err: errors.New("redis down")}
	engine := newTestEngine(t, QuestionnaireConfig{
		Validator: validator, Control: control, Outcomes: outcomes,
	})
	send := &recordingSender{}
	ctx := context.Background()

	engine.OnSetup(ctx, "CA1", send)
	engine.OnPrompt(ctx, "CA1", "Ada", send)
	engine.OnPrompt(ctx, "CA1", "two", send)

	assert.Equal(t, 1, control.hangups(), "a failed record write must not block hangup")
	assert.Equal(t, []string{completionMessage}, control.spoken())
}

func TestQuestionnaireCompanyAnswerNormalized(t *testing.T) {
	questions := []Question{
		{ID: "company", Prompt: "Which company are you calling from?", Type: QuestionTopicEntity},
	}
	validator := &scriptedValidator{verdicts: []ai.AnswerVerdict{
		{Valid: true, EntityName: "twilio"},
	}}
	outcomes := &fakeOutcomes{}
	engine := newTestEngine(t, QuestionnaireConfig{
		Questions: questions,
		Validator: validator,
		Outcomes:  outcomes,
		Companies: CompanyPolicy{Known: []string{"Twilio"}, Fold: true},
	})
	send := &recordingSender{}
	ctx := context.Background()

	engine.OnSetup(ctx, "CA1", send)
	engine.OnPrompt(ctx, "CA1", "I'm calling from twilio", send)

	recs := outcomes.saved()
	require.Len(t, recs, 1)
	entity, ok := recs[0].Answers["company"].(CompanyEntity)
	require.True(t, ok, "company answer should be a CompanyEntity, got %T", recs[0].Answers["company"])
	assert.Equal(t, "twilio", entity.Name)
	assert.True(t, entity.IsKnown)
}

func TestQuestionnaireFarewellSingleChannel(t *testing.T) {
	validator := &scriptedValidator{verdicts: []ai.AnswerVerdict{
		{Valid: true, Text: "Ada"},
		{Valid: true, Number: 4},
	}}
	control := &fakeControl{}
	engine := newTestEngine(t, QuestionnaireConfig{Validator: validator, Control: control})
	send := &recordingSender{}
	ctx := context.Background()

	engine.OnSetup(ctx, "CA1", send)
	engine.OnPrompt(ctx, "CA1", "Ada", send)
	engine.OnPrompt(ctx, "CA1", "four", send)

	assert.Equal(t, []string{completionMessage}, control.spoken())
	for _, turn := range send.turns() {
		assert.NotEqual(t, completionMessage, turn,
			"the farewell must not also be streamed over the session")
	}
}

func TestQuestionnaireFarewellOverSessionWithoutControl(t *testing.T) {
	validator := &scriptedValidator{verdicts: []ai.AnswerVerdict{
		{Valid: true, Text: "Ada"},
		{Valid: true, Number: 4},
	}}
	engine := newTestEngine(t, QuestionnaireConfig{Validator: validator})
	send := &recordingSender{}
	ctx := context.Background()

	engine.OnSetup(ctx, "CA1", send)
	engine.OnPrompt(ctx, "CA1", "Ada", send)
	engine.OnPrompt(ctx, "CA1", "four", send)

	turns := send.turns()
	require.NotEmpty(t, turns)
	assert.Equal(t, completionMessage, turns[len(turns)-1])
}

func TestQuestionnaireLatePromptFinalizesCompleted(t *testing.T) {
	validator := &scriptedValidator{}
	control := &fakeControl{}
	outcomes := &fakeOutcomes{}
	engine := newTestEngine(t, QuestionnaireConfig{
		Validator: validator, Control: control, Outcomes: outcomes,
	})
	send := &recordingSender{}

	// Drive the session past the last question without finalizing, the state
	// the re-entry guard exists for.
	sess := engine.sessions.Create("CA1")
	sess.RecordAnswer("name", "Ada")
	sess.RecordAnswer("satisfaction", 6)

	engine.OnPrompt(context.Background(), "CA1", "anyone there?", send)

	recs := outcomes.saved()
	require.Len(t, recs, 1)
	assert.Equal(t, StatusCompleted, recs[0].Status)
	assert.Equal(t, ReasonCompleted, recs[0].TerminationReason)
	assert.Equal(t, 1, control.hangups())
}

func TestQuestionnaireUnknownSessionIgnored(t *testing.T) {
	engine := newTestEngine(t, QuestionnaireConfig{Validator: &scriptedValidator{}})
	send := &recordingSender{}

	engine.OnPrompt(context.Background(), "CA-missing", "hello", send)
	assert.Empty(t, send.turns())
}

func TestQuestionnaireValidatorReceivesQuestionContext(t *testing.T) {
	validator := &scriptedValidator{verdicts: []ai.AnswerVerdict{{Valid: true, Text: "Ada"}}}
	engine := newTestEngine(t, QuestionnaireConfig{Validator: validator})
	send := &recordingSender{}
	ctx := context.Background()

	engine.OnSetup(ctx, "CA1", send)
	engine.OnPrompt(ctx, "CA1", "Ada speaking", send)

	require.Len(t, validator.inputs, 1)
	in := validator.inputs[0]
	assert.Equal(t, "name", in.QuestionID)
	assert.Equal(t, "What is your name?", in.Prompt)
	assert.Equal(t, string(QuestionName), in.Kind)
	assert.Equal(t, "Ada speaking", in.Answer)
}
