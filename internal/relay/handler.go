package relay

import (
	"context"
	"encoding/json"
	"net/http"

	"golang.org/x/net/websocket"

	"github.com/covox/relay/internal/observability/metrics"
	"github.com/covox/relay/pkg/logging"
)

// SessionEngine is the protocol-facing contract both relay modes implement.
type SessionEngine interface {
	OnSetup(ctx context.Context, callSid string, send Sender)
	OnPrompt(ctx context.Context, callSid, text string, send Sender)
	OnInterrupt(ctx context.Context, callSid, utterance string, send Sender)
	OnDisconnect(callSid string)
}

// Handler owns the websocket endpoint for relay sessions. Each connection
// serves exactly one call; the first setup frame binds the call SID.
type Handler struct {
	engine  SessionEngine
	metrics *metrics.RelayMetrics
	logger  *logging.Logger
}

func NewHandler(engine SessionEngine, m *metrics.RelayMetrics, logger *logging.Logger) *Handler {
	if engine == nil {
		panic("relay: handler requires a session engine")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{engine: engine, metrics: m, logger: logger}
}

// ServeHTTP upgrades the connection and runs the session loop.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(h.serve).ServeHTTP(w, r)
}

func (h *Handler) serve(conn *websocket.Conn) {
	defer conn.Close()
	h.metrics.SessionOpened()
	defer h.metrics.SessionClosed()

	ctx := conn.Request().Context()
	send := &wsSender{conn: conn}

	var callSid string
	defer func() {
		if callSid != "" {
			h.engine.OnDisconnect(callSid)
		}
	}()

	for {
		var raw string
		if err := websocket.Message.Receive(conn, &raw); err != nil {
			h.logger.Info("session connection closed", "call_sid", callSid, "error", err)
			return
		}

		msg, err := ParseMessage(raw)
		if err != nil {
			h.logger.Warn("dropping malformed frame", "call_sid", callSid, "error", err)
			continue
		}
		h.metrics.ObserveMessage(msg.Type)

		switch msg.Type {
		case MessageTypeSetup:
			if msg.CallSid == "" {
				h.logger.Warn("setup frame without call SID")
				continue
			}
			callSid = msg.CallSid
			h.engine.OnSetup(ctx, callSid, send)
		case MessageTypePrompt:
			if callSid == "" || msg.VoicePrompt == "" {
				h.logger.Warn("dropping prompt frame", "call_sid", callSid)
				continue
			}
			h.engine.OnPrompt(ctx, callSid, msg.VoicePrompt, send)
		case MessageTypeInterrupt:
			if callSid == "" || msg.UtteranceUntilInterrupt == "" {
				h.logger.Warn("dropping interrupt frame", "call_sid", callSid)
				continue
			}
			h.engine.OnInterrupt(ctx, callSid, msg.UtteranceUntilInterrupt, send)
		default:
			h.logger.Warn("unknown frame type", "call_sid", callSid, "type", msg.Type)
		}
	}
}

// wsSender serializes outbound text frames onto one connection.
type wsSender struct {
	conn *websocket.Conn
}

func (s *wsSender) SendText(token string, last bool) error {
	data, err := json.Marshal(NewTextFrame(token, last))
	if err != nil {
		return err
	}
	return websocket.Message.Send(s.conn, string(data))
}
