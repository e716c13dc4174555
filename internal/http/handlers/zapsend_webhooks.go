// Package handlers contains the HTTP handlers for the public webhook and
// the admin API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/quitaai/cobranca-ai-platform/internal/engine"
	"github.com/quitaai/cobranca-ai-platform/internal/messaging/zapclient"
	"github.com/quitaai/cobranca-ai-platform/internal/observability/metrics"
	"github.com/quitaai/cobranca-ai-platform/pkg/logging"
)

const maxWebhookBody = 64 << 10

// MessageSender delivers outbound replies. *zapclient.Client satisfies it.
type MessageSender interface {
	SendText(ctx context.Context, req zapclient.SendTextRequest) (*zapclient.MessageResponse, error)
}

// SignatureVerifier validates inbound webhook signatures.
type SignatureVerifier interface {
	VerifyWebhookSignature(timestamp, signature string, payload []byte) error
}

// inboundEvent is the ZapSend webhook envelope.
type inboundEvent struct {
	Event string `json:"event"`
	Data  struct {
		MessageID string `json:"message_id"`
		From      string `json:"from"`
		Name      string `json:"name,omitempty"`
		Text      string `json:"text"`
		Timestamp int64  `json:"timestamp,omitempty"`
	} `json:"data"`
}

// ZapSendWebhookHandler receives inbound WhatsApp messages, runs them
// through the engine and sends the reply back through the provider.
type ZapSendWebhookHandler struct {
	engine   *engine.Engine
	sender   MessageSender
	verifier SignatureVerifier
	metrics  *metrics.MessagingMetrics
	logger   *logging.Logger
	dedupe   *messageDeduper
}

// NewZapSendWebhookHandler wires the webhook handler. The *zapclient.Client
// serves as both sender and verifier in production.
func NewZapSendWebhookHandler(eng *engine.Engine, sender MessageSender, verifier SignatureVerifier, m *metrics.MessagingMetrics, logger *logging.Logger) *ZapSendWebhookHandler {
	if eng == nil {
		panic("handlers: engine cannot be nil")
	}
	if sender == nil || verifier == nil {
		panic("handlers: sender and verifier cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ZapSendWebhookHandler{
		engine:   eng,
		sender:   sender,
		verifier: verifier,
		metrics:  m,
		logger:   logger,
		dedupe:   newMessageDeduper(15 * time.Minute),
	}
}

// HandleInbound is mounted at POST /webhooks/zapsend.
func (h *ZapSendWebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	defer func() {
		h.metrics.ObserveWebhookLatency(time.Since(started).Seconds())
	}()

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.metrics.ObserveInbound("read_error")
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	ts := r.Header.Get("X-ZapSend-Timestamp")
	sig := r.Header.Get("X-ZapSend-Signature")
	if err := h.verifier.VerifyWebhookSignature(ts, sig, payload); err != nil {
		h.logger.Warn("webhook signature rejected", "error", err)
		h.metrics.ObserveInbound("invalid_signature")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var event inboundEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.metrics.ObserveInbound("decode_error")
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if event.Event != "message.received" {
		// Delivery receipts and status events are acknowledged and dropped.
		h.metrics.ObserveInbound("ignored")
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if event.Data.From == "" {
		h.metrics.ObserveInbound("decode_error")
		http.Error(w, "missing sender", http.StatusBadRequest)
		return
	}

	if event.Data.MessageID != "" && !h.dedupe.firstSeen(event.Data.MessageID) {
		h.metrics.ObserveInbound("duplicate")
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	receivedAt := time.Now().UTC()
	if event.Data.Timestamp > 0 {
		receivedAt = time.Unix(event.Data.Timestamp, 0).UTC()
	}

	reply, err := h.engine.ProcessTurn(r.Context(), engine.Message{
		Sender:     event.Data.From,
		Text:       event.Data.Text,
		Name:       event.Data.Name,
		ReceivedAt: receivedAt,
	})
	if err != nil {
		if errors.Is(err, engine.ErrLockTimeout) {
			// The provider retries on 503; the duplicate guard above keeps
			// the retry from double-processing once the first turn lands.
			h.metrics.ObserveInbound("busy")
			http.Error(w, "sender busy, retry later", http.StatusServiceUnavailable)
			return
		}
		h.logger.Error("turn processing failed", "sender", event.Data.From, "error", err)
		h.metrics.ObserveInbound("error")
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}

	if _, sendErr := h.sender.SendText(r.Context(), zapclient.SendTextRequest{
		To:   event.Data.From,
		Text: reply.Text,
	}); sendErr != nil {
		// The turn is already recorded; the reply send is best effort here
		// and surfaced through metrics for the retry worker.
		h.logger.Error("failed to send reply", "sender", event.Data.From, "error", sendErr)
		h.metrics.ObserveOutbound("error")
	} else {
		h.metrics.ObserveOutbound("sent")
	}

	h.metrics.ObserveInbound("processed")
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "processed",
		"intent":          reply.Intent,
		"should_escalate": reply.ShouldEscalate,
	})
}

// messageDeduper remembers provider message IDs long enough to absorb
// webhook redeliveries.
type messageDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
}

func newMessageDeduper(ttl time.Duration) *messageDeduper {
	return &messageDeduper{seen: make(map[string]time.Time), ttl: ttl}
}

func (d *messageDeduper) firstSeen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for key, at := range d.seen {
		if now.Sub(at) > d.ttl {
			delete(d.seen, key)
		}
	}
	if _, ok := d.seen[id]; ok {
		return false
	}
	d.seen[id] = now
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
