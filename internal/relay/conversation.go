package relay

import (
	"context"
	"strings"
	"sync"

	"github.com/covox/relay/internal/ai"
	"github.com/covox/relay/internal/observability/metrics"
	"github.com/covox/relay/pkg/logging"
)

const (
	streamFallbackMessage = "I ran into a temporary issue while generating a response."
	emptyResponseMessage  = "I am sorry, I could not generate a response."
)

// ResponseStreamer produces an assistant reply token by token.
type ResponseStreamer interface {
	StreamResponse(ctx context.Context, history []ai.ChatMessage, emit func(token string) error) error
}

// ConversationEngine drives free-form dialogue: each caller utterance is
// appended to the call's history, answered with streamed tokens, and
// truncated on barge-in so the history reflects only what the caller heard.
type ConversationEngine struct {
	mu            sync.Mutex
	conversations map[string][]ai.ChatMessage

	streamer     ResponseStreamer
	systemPrompt string
	metrics      *metrics.RelayMetrics
	logger       *logging.Logger
}

type ConversationConfig struct {
	Streamer     ResponseStreamer
	SystemPrompt string
	Metrics      *metrics.RelayMetrics
	Logger       *logging.Logger
}

func NewConversationEngine(cfg ConversationConfig) *ConversationEngine {
	if cfg.Streamer == nil {
		panic("relay: conversation engine requires a streamer")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = "You are a helpful voice assistant. Keep answers short and speakable."
	}
	return &ConversationEngine{
		conversations: make(map[string][]ai.ChatMessage),
		streamer:      cfg.Streamer,
		systemPrompt:  cfg.SystemPrompt,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
	}
}

// OnSetup resets the call's history to just the system turn.
func (e *ConversationEngine) OnSetup(ctx context.Context, callSid string, send Sender) {
	e.mu.Lock()
	e.conversations[callSid] = []ai.ChatMessage{{Role: ai.RoleSystem, Content: e.systemPrompt}}
	e.mu.Unlock()
	e.logger.Info("conversation session started", "call_sid", callSid)
}

// OnPrompt appends the caller turn, streams the reply, and records the full
// assistant turn in history. The terminal frame is sent exactly once per
// turn regardless of how the stream ended.
func (e *ConversationEngine) OnPrompt(ctx context.Context, callSid, text string, send Sender) {
	e.mu.Lock()
	history, ok := e.conversations[callSid]
	if !ok {
		e.mu.Unlock()
		e.logger.Warn("prompt for unknown conversation", "call_sid", callSid)
		return
	}
	history = append(history, ai.ChatMessage{Role: ai.RoleUser, Content: text})
	e.conversations[callSid] = history
	snapshot := make([]ai.ChatMessage, len(history))
	copy(snapshot, history)
	e.mu.Unlock()

	var sb strings.Builder
	streamErr := e.streamer.StreamResponse(ctx, snapshot, func(token string) error {
		if err := send.SendText(token, false); err != nil {
			return err
		}
		e.metrics.ObserveFrameSent()
		sb.WriteString(token)
		return nil
	})

	reply := strings.TrimSpace(sb.String())
	if streamErr != nil {
		e.logger.Error("response stream failed", "call_sid", callSid, "error", streamErr)
		reply = streamFallbackMessage
		if err := send.SendText(reply, false); err != nil {
			e.logger.Error("send fallback frame failed", "call_sid", callSid, "error", err)
		} else {
			e.metrics.ObserveFrameSent()
		}
	} else if reply == "" {
		reply = emptyResponseMessage
		if err := send.SendText(reply, false); err != nil {
			e.logger.Error("send fallback frame failed", "call_sid", callSid, "error", err)
		} else {
			e.metrics.ObserveFrameSent()
		}
	}

	if err := send.SendText("", true); err != nil {
		e.logger.Error("send terminal frame failed", "call_sid", callSid, "error", err)
	} else {
		e.metrics.ObserveFrameSent()
	}

	e.mu.Lock()
	e.conversations[callSid] = append(e.conversations[callSid], ai.ChatMessage{Role: ai.RoleAssistant, Content: reply})
	e.mu.Unlock()
}

// OnInterrupt truncates the interrupted assistant turn so history matches
// what the caller actually heard before barging in. The most recent
// assistant turn containing the utterance is cut at the end of its first
// occurrence; later assistant turns are dropped, other turns are kept.
func (e *ConversationEngine) OnInterrupt(ctx context.Context, callSid, utterance string, send Sender) {
	if utterance == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	history, ok := e.conversations[callSid]
	if !ok {
		return
	}

	target := -1
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == ai.RoleAssistant && strings.Contains(history[i].Content, utterance) {
			target = i
			break
		}
	}
	if target < 0 {
		e.logger.Info("interrupt utterance not found in history", "call_sid", callSid)
		return
	}

	cut := strings.Index(history[target].Content, utterance) + len(utterance)
	truncated := make([]ai.ChatMessage, 0, len(history))
	truncated = append(truncated, history[:target]...)
	truncated = append(truncated, ai.ChatMessage{Role: ai.RoleAssistant, Content: history[target].Content[:cut]})
	for _, msg := range history[target+1:] {
		if msg.Role != ai.RoleAssistant {
			truncated = append(truncated, msg)
		}
	}
	e.conversations[callSid] = truncated
	e.logger.Info("history truncated after interrupt", "call_sid", callSid)
}

// OnDisconnect drops the call's history.
func (e *ConversationEngine) OnDisconnect(callSid string) {
	e.mu.Lock()
	delete(e.conversations, callSid)
	e.mu.Unlock()
	e.logger.Info("conversation session closed", "call_sid", callSid)
}

// historySnapshot is a test hook.
func (e *ConversationEngine) historySnapshot(callSid string) []ai.ChatMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	history := e.conversations[callSid]
	out := make([]ai.ChatMessage, len(history))
	copy(out, history)
	return out
}
