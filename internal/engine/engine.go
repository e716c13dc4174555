package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/quitaai/cobranca-ai-platform/internal/observability/metrics"
	"github.com/quitaai/cobranca-ai-platform/pkg/logging"
)

var engineTracer = otel.Tracer("cobranca/engine")

// fallbackReplyText is returned when a turn panics mid-pipeline. The
// sender's context is left untouched so the retry starts clean.
const fallbackReplyText = "Tive uma instabilidade aqui, mas já estou de volta. Pode repetir sua última mensagem, por favor?"

// TelemetrySink receives one record per completed turn. Implementations
// must not block the calling goroutine.
type TelemetrySink interface {
	Record(ctx context.Context, rec TelemetryRecord)
}

// Options carries the engine's tunables, typically filled from config.
type Options struct {
	Weights            SourceWeights
	RelevanceThreshold float64
	Intensifiers       IntensifierMultipliers
	GuardrailKeywords  []string
	// EnableClassifier turns the bundled naive Bayes source on.
	EnableClassifier bool
}

// Engine runs the full turn pipeline: normalize, detect emotion, resolve
// intent, transition billing state, generate a guarded reply and record the
// turn in memory and telemetry.
type Engine struct {
	normalizer *Normalizer
	emotions   *EmotionDetector
	guardrail  *Guardrail
	ensemble   *Ensemble
	generator  *ResponseGenerator
	memory     *MemoryStore
	telemetry  TelemetrySink
	metrics    *metrics.EngineMetrics
	logger     *logging.Logger
	degraded   bool
}

// New wires the engine. memory is required; telemetry, metrics and logger
// may be nil.
func New(opts Options, memory *MemoryStore, telemetry TelemetrySink, m *metrics.EngineMetrics, logger *logging.Logger) *Engine {
	if memory == nil {
		panic("engine: memory store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	rules := NewRuleSource()
	guardrail := NewGuardrail(opts.GuardrailKeywords)

	var classifier StatisticalClassifier
	degraded := true
	if opts.EnableClassifier {
		classifier = NewBayesClassifier(rules.Examples())
		degraded = false
	} else {
		logger.Warn("statistical classifier disabled, intent resolution runs in degraded mode")
	}

	return &Engine{
		normalizer: NewNormalizer(),
		emotions:   NewEmotionDetector(opts.Intensifiers, logger),
		guardrail:  guardrail,
		ensemble:   NewEnsemble(guardrail, rules, classifier, opts.Weights, opts.RelevanceThreshold, logger),
		generator:  NewResponseGenerator(),
		memory:     memory,
		telemetry:  telemetry,
		metrics:    m,
		logger:     logger,
		degraded:   degraded,
	}
}

// Memory exposes the underlying store for admin endpoints.
func (e *Engine) Memory() *MemoryStore { return e.memory }

// ProcessTurn handles one inbound message end to end. A lock timeout on the
// sender's context is returned as an error so the transport can signal a
// retry; any panic inside the pipeline is converted into a safe fallback
// reply with the sender's context untouched.
func (e *Engine) ProcessTurn(ctx context.Context, msg Message) (reply Reply, err error) {
	ctx, span := engineTracer.Start(ctx, "engine.process_turn")
	defer span.End()
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("turn pipeline panicked, returning fallback reply",
				"sender", msg.Sender, "panic", fmt.Sprintf("%v", r))
			reply = Reply{Text: fallbackReplyText, Intent: IntentUnknown}
			err = nil
		}
	}()

	if strings.TrimSpace(msg.Text) == "" {
		// Nothing to interpret; ask again without touching any state.
		text, _ := e.generator.Generate(IntentUnknown, EmotionalState{}, ContextSnapshot{Name: msg.Name})
		return Reply{Text: text, Intent: IntentUnknown}, nil
	}

	normalized := e.normalizer.Normalize(msg.Text)
	emotion := e.emotions.Detect(ctx, normalized.Text)

	handle, err := e.memory.Acquire(ctx, msg.Sender, msg.Name)
	if err != nil {
		return Reply{}, fmt.Errorf("engine: acquire context for %s: %w", msg.Sender, err)
	}
	defer handle.Release()

	snap := handle.Snapshot()
	decision := e.ensemble.Resolve(ctx, normalized, emotion, snap)

	span.SetAttributes(
		attribute.String("engine.intent", string(decision.Intent)),
		attribute.String("engine.emotion", string(emotion.Emotion)),
	)

	if decision.Intent == IntentOutOfScope {
		reply = Reply{
			Text:       e.guardrail.RedirectReply(),
			Intent:     IntentOutOfScope,
			Confidence: decision.Confidence,
		}
		handle.Update(TurnUpdate{
			Turn:    Turn{Inbound: msg.Text, Reply: reply.Text, Intent: decision.Intent, At: started.UTC()},
			Emotion: emotion,
		})
		e.metrics.RecordGuardrailRedirect()
		e.finishTurn(ctx, msg.Sender, decision, emotion, nil, snap.State, snap.State, "", started)
		return reply, nil
	}

	nextState, negotiation := NextState(snap.State, decision.Intent)
	facts := extractFacts(normalized.Text, decision.Intent)

	text, templateID := e.generator.Generate(decision.Intent, emotion, snap)
	text, redirected := e.guardrail.EnsureOnTopic(text)
	if redirected {
		e.metrics.RecordGuardrailRedirect()
	}

	reply = Reply{
		Text:             text,
		Intent:           decision.Intent,
		Confidence:       decision.Confidence,
		ShouldEscalate:   shouldEscalate(decision.Intent, emotion),
		SuggestedActions: suggestedActions(decision.Intent),
	}

	handle.Update(TurnUpdate{
		Turn:                 Turn{Inbound: msg.Text, Reply: reply.Text, Intent: decision.Intent, At: started.UTC()},
		Emotion:              emotion,
		Facts:                facts,
		State:                nextState,
		TemplateID:           templateID,
		IncrementNegotiation: negotiation,
	})

	e.finishTurn(ctx, msg.Sender, decision, emotion, facts, snap.State, nextState, templateID, started)
	return reply, nil
}

func (e *Engine) finishTurn(ctx context.Context, sender string, decision IntentDecision, emotion EmotionalState, facts map[string]string, before, after BillingState, templateID string, started time.Time) {
	e.metrics.RecordTurn(string(decision.Intent), string(emotion.Emotion), time.Since(started))
	e.logger.Info("turn processed",
		"sender", sender,
		"intent", decision.Intent,
		"confidence", decision.Confidence,
		"source", decision.Source,
		"emotion", emotion.Emotion,
		"state_before", before,
		"state_after", after,
		"degraded", e.degraded,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	if e.telemetry != nil {
		e.telemetry.Record(ctx, TelemetryRecord{
			Sender:      sender,
			Intent:      decision.Intent,
			Confidence:  decision.Confidence,
			Emotion:     emotion.Emotion,
			Intensity:   emotion.Intensity,
			FactsDelta:  facts,
			StateBefore: before,
			StateAfter:  after,
			TemplateID:  templateID,
			At:          started.UTC(),
		})
	}
}

func shouldEscalate(intent Intent, emotion EmotionalState) bool {
	// Help requests escalate too: a debtor explicitly asking for a person
	// is handed off rather than kept in the automated loop.
	if intent == IntentDispute || intent == IntentHelpRequest {
		return true
	}
	return emotion.Emotion.IsNegative() && emotion.Intensity > highIntensityThreshold
}

func suggestedActions(intent Intent) []string {
	switch intent {
	case IntentPaymentConfirmation:
		return []string{"verify_payment"}
	case IntentNegotiationRequest, IntentFinancialHardship:
		return []string{"send_installment_simulation"}
	case IntentInformationRequest:
		return []string{"send_invoice_copy"}
	case IntentDispute:
		return []string{"open_dispute_ticket", "pause_collection"}
	case IntentHelpRequest:
		return []string{"handoff_to_agent"}
	case IntentScheduling:
		return []string{"schedule_reminder"}
	}
	return nil
}

// extractFacts pulls durable facts out of the normalized message. Values
// are overwritten on repeat mentions; the memory store merges them
// last-write-wins.
func extractFacts(normalized string, intent Intent) map[string]string {
	facts := make(map[string]string)
	padded := " " + normalized + " "

	if intent == IntentFinancialHardship {
		switch {
		case strings.Contains(normalized, "desempreg") || strings.Contains(normalized, "perdi meu emprego"):
			facts[FactHardshipReason] = "desemprego"
		default:
			facts[FactHardshipReason] = "dificuldade financeira"
		}
	}

	for _, method := range []string{"pix", "boleto", "cartão", "dinheiro"} {
		if strings.Contains(padded, " "+method+" ") {
			facts[FactPreferredPayment] = method
			break
		}
	}

	if intent == IntentScheduling {
		for _, phrase := range []string{
			"amanhã", "semana que vem", "mês que vem", "na sexta",
			"na segunda", "na terça", "na quarta", "na quinta", "no sábado",
		} {
			if strings.Contains(normalized, phrase) {
				facts[FactPromisedDate] = phrase
				break
			}
		}
		if _, ok := facts[FactPromisedDate]; !ok {
			if idx := strings.Index(normalized, "pago dia "); idx >= 0 {
				rest := strings.Fields(normalized[idx+len("pago dia "):])
				if len(rest) > 0 {
					facts[FactPromisedDate] = "dia " + rest[0]
				}
			}
		}
	}

	if len(facts) == 0 {
		return nil
	}
	return facts
}
