package relay

import (
	"context"
	"time"

	"github.com/covox/relay/internal/ai"
	"github.com/covox/relay/internal/observability/metrics"
	"github.com/covox/relay/pkg/logging"
)

// Spoken lines for terminal and recovery turns.
const (
	completionMessage      = "That was the last question. Thank you for your time, goodbye!"
	invalidAnswersMessage  = "I was unable to understand your answers. Let's try again another time, goodbye."
	silenceMessage         = "I have not heard from you in a while, so I will end the call now. Goodbye."
	retryAfterErrorMessage = "Sorry, I had trouble processing that."
	defaultInvalidFeedback = "I didn't quite catch that."
)

// AnswerValidator judges one caller answer against its question.
type AnswerValidator interface {
	ValidateAnswer(ctx context.Context, in ai.AnswerInput) (ai.AnswerVerdict, error)
}

// CallControl ends the underlying telephone call after a spoken farewell.
type CallControl interface {
	EndCallWithMessage(ctx context.Context, callSid, message string) error
}

// OutcomeStore persists finalized call outcomes.
type OutcomeStore interface {
	SaveOutcome(ctx context.Context, rec OutcomeRecord) error
}

// QuestionnaireEngine drives the fixed-question intake flow: it asks
// questions in order, validates answers, enforces the invalid-attempt
// ceiling and the silence watchdog, and finalizes each call exactly once.
type QuestionnaireEngine struct {
	sessions       *SessionStore
	questions      []Question
	validator      AnswerValidator
	control        CallControl
	outcomes       OutcomeStore
	companies      CompanyPolicy
	silenceTimeout time.Duration
	maxInvalid     int
	metrics        *metrics.RelayMetrics
	logger         *logging.Logger
}

// QuestionnaireConfig wires a QuestionnaireEngine. Validator is required;
// Control and Outcomes are optional and degrade to log-only behavior.
type QuestionnaireConfig struct {
	Questions      []Question
	Validator      AnswerValidator
	Control        CallControl
	Outcomes       OutcomeStore
	Companies      CompanyPolicy
	SilenceTimeout time.Duration
	MaxInvalid     int
	Metrics        *metrics.RelayMetrics
	Logger         *logging.Logger
}

func NewQuestionnaireEngine(cfg QuestionnaireConfig) *QuestionnaireEngine {
	if cfg.Validator == nil {
		panic("relay: questionnaire engine requires a validator")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if len(cfg.Questions) == 0 {
		cfg.Questions = DefaultQuestions()
	}
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = 30 * time.Second
	}
	if cfg.MaxInvalid <= 0 {
		cfg.MaxInvalid = 3
	}
	if cfg.Control == nil {
		cfg.Logger.Warn("questionnaire engine running without call control; calls will not be hung up")
	}
	return &QuestionnaireEngine{
		sessions:       NewSessionStore(),
		questions:      cfg.Questions,
		validator:      cfg.Validator,
		control:        cfg.Control,
		outcomes:       cfg.Outcomes,
		companies:      cfg.Companies,
		silenceTimeout: cfg.SilenceTimeout,
		maxInvalid:     cfg.MaxInvalid,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
	}
}

// OnSetup registers the call and speaks the first question.
func (e *QuestionnaireEngine) OnSetup(ctx context.Context, callSid string, send Sender) {
	sess := e.sessions.Create(callSid)
	e.logger.Info("questionnaire session started", "call_sid", callSid, "questions", len(e.questions))

	e.speak(send, e.questions[0].Prompt)
	e.arm(sess, send)
}

// OnPrompt handles one caller utterance: validate, count or store, advance
// or finalize.
func (e *QuestionnaireEngine) OnPrompt(ctx context.Context, callSid, text string, send Sender) {
	sess := e.sessions.Get(callSid)
	if sess == nil {
		e.logger.Warn("prompt for unknown session", "call_sid", callSid)
		return
	}
	if sess.Terminated() {
		e.logger.Warn("prompt after finalize ignored", "call_sid", callSid)
		return
	}
	sess.Disarm()

	idx := sess.Index()
	if idx >= len(e.questions) {
		// All questions already answered but the session is not finalized;
		// close it out rather than leaving the call hanging.
		e.logger.Warn("prompt after last question; finalizing", "call_sid", callSid)
		e.finalize(ctx, sess, StatusCompleted, ReasonCompleted, completionMessage, send)
		return
	}
	question := e.questions[idx]

	verdict, err := e.validator.ValidateAnswer(ctx, ai.AnswerInput{
		QuestionID: question.ID,
		Prompt:     question.Prompt,
		Kind:       string(question.Type),
		Answer:     text,
	})
	if err != nil {
		// Validator failures are not the caller's fault: re-ask without
		// counting an attempt.
		e.logger.Error("answer validation failed", "call_sid", callSid, "question", question.ID, "error", err)
		e.speak(send, retryAfterErrorMessage+" "+question.Prompt)
		e.arm(sess, send)
		return
	}

	if !verdict.Valid {
		attempts := sess.RecordInvalid()
		e.logger.Info("invalid answer", "call_sid", callSid, "question", question.ID, "attempts", attempts)
		if attempts >= e.maxInvalid {
			e.finalize(ctx, sess, StatusTerminated, ReasonInvalidAnswers, invalidAnswersMessage, send)
			return
		}
		feedback := verdict.Feedback
		if feedback == "" {
			feedback = defaultInvalidFeedback
		}
		e.speak(send, feedback+" "+question.Prompt)
		e.arm(sess, send)
		return
	}

	next := sess.RecordAnswer(question.ID, e.normalizedValue(question, verdict))
	e.logger.Info("answer recorded", "call_sid", callSid, "question", question.ID)

	if next >= len(e.questions) {
		e.finalize(ctx, sess, StatusCompleted, ReasonCompleted, completionMessage, send)
		return
	}
	e.speak(send, e.questions[next].Prompt)
	e.arm(sess, send)
}

// OnInterrupt is a no-op for the questionnaire: prompts are short and the
// flow re-asks rather than truncating history.
func (e *QuestionnaireEngine) OnInterrupt(ctx context.Context, callSid, utterance string, send Sender) {
	e.logger.Info("interrupt ignored in questionnaire mode", "call_sid", callSid)
}

// OnDisconnect drops the live session. A finalized call keeps its persisted
// outcome; an abandoned one simply vanishes.
func (e *QuestionnaireEngine) OnDisconnect(callSid string) {
	e.sessions.Remove(callSid)
	e.logger.Info("questionnaire session closed", "call_sid", callSid)
}

// normalizedValue converts a verdict into the stored answer shape for the
// question type.
func (e *QuestionnaireEngine) normalizedValue(q Question, v ai.AnswerVerdict) any {
	switch q.Type {
	case QuestionScale:
		return v.Number
	case QuestionTopicEntity:
		return CompanyEntity{Name: v.EntityName, IsKnown: e.companies.IsKnown(v.EntityName)}
	default:
		return v.Text
	}
}

// finalize latches the terminal state, persists the outcome, then speaks the
// farewell and hangs up. Persistence happens before any downstream effect;
// a failed write is logged and the call still ends.
func (e *QuestionnaireEngine) finalize(ctx context.Context, sess *Session, status, reason, farewell string, send Sender) {
	if !sess.BeginTermination(status, reason) {
		return
	}
	sess.Disarm()

	if e.outcomes != nil {
		rec := OutcomeRecord{
			CallSid:           sess.CallSid,
			Answers:           sess.AnswersCopy(),
			Status:            status,
			TerminationReason: reason,
			RecordedAt:        time.Now().UTC(),
		}
		if err := e.outcomes.SaveOutcome(ctx, rec); err != nil {
			e.logger.Error("outcome record write failed", "call_sid", sess.CallSid, "error", err)
			e.metrics.ObserveRecordFailure()
		}
	}

	e.metrics.ObserveFinalized(reason)
	e.logger.Info("call finalized", "call_sid", sess.CallSid, "status", status, "reason", reason)

	// The farewell goes through exactly one channel: the call-control sink
	// speaks it while hanging up, so streaming it over the session too would
	// have the caller hear it twice. Without a sink the session is the only
	// voice path left.
	if e.control != nil {
		if err := e.control.EndCallWithMessage(ctx, sess.CallSid, farewell); err != nil {
			e.logger.Error("hangup failed", "call_sid", sess.CallSid, "error", err)
		}
		return
	}
	e.speak(send, farewell)
}

// onSilence runs on the watchdog goroutine when the caller stays quiet past
// the timeout.
func (e *QuestionnaireEngine) onSilence(sess *Session, send Sender) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	e.logger.Info("silence timeout", "call_sid", sess.CallSid)
	e.finalize(ctx, sess, StatusTerminated, ReasonSilence, silenceMessage, send)
}

func (e *QuestionnaireEngine) arm(sess *Session, send Sender) {
	sess.Arm(e.silenceTimeout, func() { e.onSilence(sess, send) })
}

// speak sends one complete assistant turn: a single token frame followed by
// the terminal frame.
func (e *QuestionnaireEngine) speak(send Sender, text string) {
	if err := send.SendText(text, false); err != nil {
		e.logger.Error("send text frame failed", "error", err)
		return
	}
	e.metrics.ObserveFrameSent()
	if err := send.SendText("", true); err != nil {
		e.logger.Error("send terminal frame failed", "error", err)
		return
	}
	e.metrics.ObserveFrameSent()
}
