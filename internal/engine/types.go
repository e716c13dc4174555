// Package engine implements the Portuguese-language conversational engine
// that interprets inbound debt-collection chat messages and produces a
// single, on-topic, emotionally-aware reply.
package engine

import "time"

// Intent is a resolved conversational intent from the fixed catalog.
type Intent string

const (
	IntentGreeting            Intent = "greeting"
	IntentPaymentConfirmation Intent = "payment_confirmation"
	IntentNegotiationRequest  Intent = "negotiation_request"
	IntentInformationRequest  Intent = "information_request"
	IntentDispute             Intent = "dispute"
	IntentScheduling          Intent = "scheduling"
	IntentFarewell            Intent = "farewell"
	IntentHelpRequest         Intent = "help_request"
	IntentAnxiety             Intent = "anxiety"
	IntentFinancialHardship   Intent = "financial_hardship"
	IntentOutOfScope          Intent = "out_of_scope"
	IntentUnknown             Intent = "unknown"
)

// Emotion is an emotional category from the fixed lexicon.
type Emotion string

const (
	EmotionNeutral     Emotion = "neutral"
	EmotionAnger       Emotion = "anger"
	EmotionSadness     Emotion = "sadness"
	EmotionAnxiety     Emotion = "anxiety"
	EmotionFrustration Emotion = "frustration"
	EmotionRelief      Emotion = "relief"
)

// IsNegative reports whether the emotion belongs to the negative set used
// for escalation decisions.
func (e Emotion) IsNegative() bool {
	switch e {
	case EmotionAnger, EmotionSadness, EmotionAnxiety, EmotionFrustration:
		return true
	}
	return false
}

// EmotionalState is the detector's verdict for one message.
type EmotionalState struct {
	Emotion    Emotion   `json:"emotion"`
	Intensity  float64   `json:"intensity"`
	Confidence float64   `json:"confidence"`
	Indicators []string  `json:"indicators,omitempty"`
	At         time.Time `json:"at"`
}

// Source identifies which ensemble source won an intent decision.
type Source string

const (
	SourceRule        Source = "rule"
	SourceStatistical Source = "statistical"
	SourceMemory      Source = "memory"
	SourceEmotional   Source = "emotional"
	SourceFallback    Source = "fallback"
	SourceGuardrail   Source = "guardrail"
)

// IntentDecision is the ensemble's resolved intent for one message.
type IntentDecision struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Source     Source  `json:"source"`
}

// BillingState is the negotiation/payment status tracked per sender.
type BillingState string

const (
	StatePending                 BillingState = "pending"
	StateNegotiating             BillingState = "negotiating"
	StateDisputed                BillingState = "disputed"
	StatePaidPendingVerification BillingState = "paid_pending_verification"
)

// Message is one inbound chat message.
type Message struct {
	Sender     string
	Text       string
	Name       string
	ReceivedAt time.Time
}

// Reply is the engine's answer for one turn.
type Reply struct {
	Text             string   `json:"text"`
	Intent           Intent   `json:"intent"`
	Confidence       float64  `json:"confidence"`
	ShouldEscalate   bool     `json:"should_escalate"`
	SuggestedActions []string `json:"suggested_actions,omitempty"`
}

// Turn is one inbound message plus the engine's reply, as stored in the
// conversation history.
type Turn struct {
	Inbound string    `json:"inbound"`
	Reply   string    `json:"reply"`
	Intent  Intent    `json:"intent"`
	At      time.Time `json:"at"`
}

// TelemetryRecord is the structured side-effect record emitted after every
// turn for the learning/reporting subsystem.
type TelemetryRecord struct {
	Sender      string            `json:"sender"`
	Intent      Intent            `json:"intent"`
	Confidence  float64           `json:"confidence"`
	Emotion     Emotion           `json:"emotion"`
	Intensity   float64           `json:"intensity"`
	FactsDelta  map[string]string `json:"facts_delta,omitempty"`
	StateBefore BillingState      `json:"state_before"`
	StateAfter  BillingState      `json:"state_after"`
	TemplateID  string            `json:"template_id,omitempty"`
	At          time.Time         `json:"at"`
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
