package handlers

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"net/http"

	"github.com/covox/relay/internal/config"
	"github.com/covox/relay/pkg/logging"
)

// TwiMLHandler serves the voice webhook that points Twilio at the relay
// websocket endpoint.
type TwiMLHandler struct {
	cfg    *config.Config
	logger *logging.Logger
}

func NewTwiMLHandler(cfg *config.Config, logger *logging.Logger) *TwiMLHandler {
	if cfg == nil {
		panic("handlers: twiml handler requires config")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TwiMLHandler{cfg: cfg, logger: logger}
}

// ServeTwiML answers Twilio's incoming-call webhook with a ConversationRelay
// connect verb.
func (h *TwiMLHandler) ServeTwiML(w http.ResponseWriter, r *http.Request) {
	wsURL := h.cfg.WebSocketURL()
	h.logger.Info("serving twiml", "ws_url", wsURL)

	var buf bytes.Buffer
	buf.WriteString("<Response><Connect><ConversationRelay url=\"")
	_ = xml.EscapeText(&buf, []byte(wsURL))
	buf.WriteString("\" welcomeGreeting=\"")
	_ = xml.EscapeText(&buf, []byte(h.cfg.WelcomeGreeting))
	buf.WriteString("\" interruptSensitivity=\"high\" /></Connect></Response>")

	w.Header().Set("Content-Type", "text/xml")
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("write twiml response failed", "error", err)
	}
}

// HealthCheck reports service liveness.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
