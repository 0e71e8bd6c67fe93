package compliance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/covox/relay/internal/ai"
	"github.com/covox/relay/pkg/logging"
)

// Track value carrying caller speech. Agent-side audio is fanned out
// unclassified.
const inboundTrack = "inbound_track"

// Classifier judges one transcript snippet against its recent context.
type Classifier interface {
	ClassifyTranscript(ctx context.Context, current string, window []string) (ai.Classification, error)
}

// Pipeline is the transcript processing chain: dedup, classification with a
// rolling context window, enrichment, and observer fan-out.
type Pipeline struct {
	dedup      *DedupCache
	windows    *ContextWindows
	classifier Classifier
	hub        *Hub
	logger     *logging.Logger
	tracer     trace.Tracer
}

type PipelineConfig struct {
	Dedup      *DedupCache
	Windows    *ContextWindows
	Classifier Classifier
	Hub        *Hub
	Logger     *logging.Logger
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Hub == nil {
		panic("compliance: pipeline requires a hub")
	}
	if cfg.Dedup == nil {
		cfg.Dedup = NewDedupCache(0)
	}
	if cfg.Windows == nil {
		cfg.Windows = NewContextWindows(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Pipeline{
		dedup:      cfg.Dedup,
		windows:    cfg.Windows,
		classifier: cfg.Classifier,
		hub:        cfg.Hub,
		logger:     cfg.Logger,
		tracer:     otel.Tracer("compliance"),
	}
}

// HandleTranscription processes one transcription webhook. It returns the
// observer delivery count and whether the payload was a suppressed
// duplicate. Classifier failures degrade to unenriched fan-out.
func (p *Pipeline) HandleTranscription(ctx context.Context, payload Payload) (delivered int, duplicate bool) {
	ctx, span := p.tracer.Start(ctx, "compliance.transcription",
		trace.WithAttributes(attribute.String("call_sid", payload.CallSid())))
	defer span.End()

	if p.dedup.IsDuplicate(payload) {
		p.logger.Info("duplicate transcript suppressed", "call_sid", payload.CallSid())
		span.SetAttributes(attribute.Bool("duplicate", true))
		return 0, true
	}

	if payload.Track() == inboundTrack {
		if text := payload.TranscriptText(); text != "" {
			p.classify(ctx, payload, text)
		}
	}

	return p.broadcast(payload), false
}

// classify enriches the payload in place and feeds the window. A classifier
// error leaves the payload unenriched and the window untouched, so the next
// snippet is judged against clean context.
func (p *Pipeline) classify(ctx context.Context, payload Payload, text string) {
	callSid := payload.CallSid()
	if p.classifier == nil {
		p.windows.Append(callSid, text)
		return
	}

	window := p.windows.Snapshot(callSid)
	verdict, err := p.classifier.ClassifyTranscript(ctx, text, window)
	if err != nil {
		p.logger.Error("transcript classification failed", "call_sid", callSid, "error", err)
		return
	}

	verdict = hardenVerdict(verdict, text, window)
	payload["compliance_violation"] = verdict.Violation
	payload["violation_phrases"] = verdict.Phrases
	if verdict.Violation {
		p.logger.Warn("compliance violation flagged", "call_sid", callSid, "phrases", len(verdict.Phrases))
	}
	p.windows.Append(callSid, text)
}

// hardenVerdict keeps only phrases literally present in the transcript or
// its context, case-insensitively. A violation with no surviving phrases is
// downgraded: the model asserted something it could not quote.
func hardenVerdict(v ai.Classification, text string, window []string) ai.Classification {
	haystack := strings.ToLower(strings.Join(append(append([]string{}, window...), text), "\n"))
	seen := make(map[string]struct{}, len(v.Phrases))
	kept := make([]string, 0, len(v.Phrases))
	for _, phrase := range v.Phrases {
		trimmed := strings.TrimSpace(phrase)
		if trimmed == "" {
			continue
		}
		folded := strings.ToLower(trimmed)
		if !strings.Contains(haystack, folded) {
			continue
		}
		if _, dup := seen[folded]; dup {
			continue
		}
		seen[folded] = struct{}{}
		kept = append(kept, trimmed)
	}
	v.Phrases = kept
	if len(kept) == 0 {
		v.Violation = false
	}
	return v
}

// HandleSummary processes an end-of-call summary webhook: the call's context
// window is dropped and the event is fanned out as-is.
func (p *Pipeline) HandleSummary(ctx context.Context, payload Payload) int {
	_, span := p.tracer.Start(ctx, "compliance.summary",
		trace.WithAttributes(attribute.String("call_sid", payload.CallSid())))
	defer span.End()

	p.windows.Clear(payload.CallSid())
	return p.broadcast(payload)
}

func (p *Pipeline) broadcast(payload Payload) int {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("marshal event for fan-out failed", "error", fmt.Errorf("compliance: %w", err))
		return 0
	}
	return p.hub.Broadcast(data)
}
