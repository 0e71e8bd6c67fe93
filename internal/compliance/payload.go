// Package compliance receives live transcription webhooks, deduplicates and
// classifies them, and fans the enriched events out to connected observers.
package compliance

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// TranscriptionEvent is the webhook event value carrying transcript text.
const TranscriptionEvent = "transcription-content"

// Payload is one decoded webhook body. Keys are kept as delivered so the
// fan-out preserves everything the upstream sent.
type Payload map[string]any

// ParsePayload decodes a webhook request body. Form-encoded bodies become a
// flat string map; anything else is tried as JSON first, then as a raw
// query string when the content type is missing or wrong.
func ParsePayload(r *http.Request) (Payload, error) {
	ct := r.Header.Get("Content-Type")
	if ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			ct = mt
		}
	}

	switch ct {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		return parseForm(r)
	case "application/json":
		return parseJSON(r.Body)
	default:
		// Missing or unexpected content type: try JSON first, then decode
		// the raw body as a query string. net/http ignores bodies without a
		// form content type, so ParseForm cannot serve this path.
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("compliance: read body: %w", err)
		}
		if p, err := parseJSON(strings.NewReader(string(body))); err == nil {
			return p, nil
		}
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("compliance: decode body: %w", err)
		}
		p := make(Payload, len(values))
		for key, vals := range values {
			if len(vals) > 0 {
				p[key] = vals[0]
			}
		}
		return p, nil
	}
}

func parseForm(r *http.Request) (Payload, error) {
	err := r.ParseMultipartForm(1 << 20)
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, fmt.Errorf("compliance: parse form: %w", err)
	}
	p := make(Payload, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) > 0 {
			p[key] = values[0]
		}
	}
	return p, nil
}

func parseJSON(r io.Reader) (Payload, error) {
	var p Payload
	dec := json.NewDecoder(io.LimitReader(r, 1<<20))
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("compliance: decode json: %w", err)
	}
	return p, nil
}

func (p Payload) str(key string) string {
	v, _ := p[key].(string)
	return v
}

// CallSid returns the call identifier.
func (p Payload) CallSid() string { return p.str("CallSid") }

// Event returns the webhook event name.
func (p Payload) Event() string { return p.str("TranscriptionEvent") }

// Track returns which side of the call the snippet came from.
func (p Payload) Track() string { return p.str("Track") }

// IsFinal reports whether the snippet is a final (not partial) result.
// Anything other than an explicit "false" counts as final.
func (p Payload) IsFinal() bool {
	return !strings.EqualFold(p.str("Final"), "false")
}

// TranscriptText extracts the transcript from TranscriptionData, which
// arrives either as a JSON object, a JSON-encoded string, or plain text.
func (p Payload) TranscriptText() string {
	raw, ok := p["TranscriptionData"]
	if !ok {
		return ""
	}
	switch data := raw.(type) {
	case map[string]any:
		text, _ := data["transcript"].(string)
		return text
	case string:
		var nested map[string]any
		if err := json.Unmarshal([]byte(data), &nested); err == nil {
			if text, ok := nested["transcript"].(string); ok {
				return text
			}
			return ""
		}
		return data
	default:
		return ""
	}
}
