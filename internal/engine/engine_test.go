package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu      sync.Mutex
	records []TelemetryRecord
}

func (s *captureSink) Record(_ context.Context, rec TelemetryRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

func (s *captureSink) last(t *testing.T) TelemetryRecord {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.records)
	return s.records[len(s.records)-1]
}

func newTestEngine(t *testing.T, cfg MemoryStoreConfig) (*Engine, *captureSink) {
	t.Helper()
	store := newTestStore(t, cfg)
	sink := &captureSink{}
	eng := New(Options{EnableClassifier: true}, store, sink, nil, testLogger())
	return eng, sink
}

func TestProcessTurnPaymentConfirmation(t *testing.T) {
	eng, sink := newTestEngine(t, MemoryStoreConfig{})

	reply, err := eng.ProcessTurn(context.Background(), Message{
		Sender: "+5511999990000",
		Text:   "já paguei o boleto",
		Name:   "Maria",
	})
	require.NoError(t, err)

	assert.Equal(t, IntentPaymentConfirmation, reply.Intent)
	assert.GreaterOrEqual(t, reply.Confidence, 0.7)
	assert.Contains(t, reply.SuggestedActions, "verify_payment")
	assert.False(t, reply.ShouldEscalate)

	snap, found, err := eng.Memory().Peek(context.Background(), "+5511999990000")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, StatePaidPendingVerification, snap.State)
	assert.Equal(t, 1, snap.HistoryLen)

	rec := sink.last(t)
	assert.Equal(t, StatePending, rec.StateBefore)
	assert.Equal(t, StatePaidPendingVerification, rec.StateAfter)
}

func TestProcessTurnSlangAndTypos(t *testing.T) {
	eng, _ := newTestEngine(t, MemoryStoreConfig{})

	reply, err := eng.ProcessTurn(context.Background(), Message{
		Sender: "sender",
		Text:   "oi, ja pagei o boleto hj!!!",
	})
	require.NoError(t, err)
	assert.Equal(t, IntentPaymentConfirmation, reply.Intent)
}

func TestProcessTurnHardshipMovesToNegotiating(t *testing.T) {
	eng, sink := newTestEngine(t, MemoryStoreConfig{})

	reply, err := eng.ProcessTurn(context.Background(), Message{
		Sender: "sender",
		Text:   "não tenho como pagar, estou desempregado",
	})
	require.NoError(t, err)
	assert.Equal(t, IntentFinancialHardship, reply.Intent)

	snap, found, err := eng.Memory().Peek(context.Background(), "sender")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, StateNegotiating, snap.State)
	assert.Equal(t, 1, snap.NegotiationAttempts)
	assert.Equal(t, "desemprego", snap.Facts[FactHardshipReason])

	rec := sink.last(t)
	assert.Equal(t, "desemprego", rec.FactsDelta[FactHardshipReason])
}

func TestProcessTurnOutOfScopeRedirects(t *testing.T) {
	eng, _ := newTestEngine(t, MemoryStoreConfig{})

	// Establish a billing state first.
	_, err := eng.ProcessTurn(context.Background(), Message{Sender: "sender", Text: "quero parcelar a dívida"})
	require.NoError(t, err)

	reply, err := eng.ProcessTurn(context.Background(), Message{
		Sender: "sender",
		Text:   "futebol brasileiro é o melhor do mundo",
	})
	require.NoError(t, err)
	assert.Equal(t, IntentOutOfScope, reply.Intent)
	assert.Equal(t, RedirectTemplates[0], reply.Text)
	assert.False(t, reply.ShouldEscalate)

	// Off-topic turns never move the billing state machine.
	snap, found, err := eng.Memory().Peek(context.Background(), "sender")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, StateNegotiating, snap.State)
	assert.Equal(t, 2, snap.HistoryLen)
}

func TestProcessTurnEmptyInputAsksForClarification(t *testing.T) {
	eng, _ := newTestEngine(t, MemoryStoreConfig{})

	reply, err := eng.ProcessTurn(context.Background(), Message{Sender: "sender", Text: "   "})
	require.NoError(t, err)
	assert.Equal(t, IntentUnknown, reply.Intent)
	assert.NotEmpty(t, reply.Text)

	// No context is created for empty input.
	assert.Zero(t, eng.Memory().Len())
}

func TestProcessTurnDisputeEscalates(t *testing.T) {
	eng, _ := newTestEngine(t, MemoryStoreConfig{})

	reply, err := eng.ProcessTurn(context.Background(), Message{
		Sender: "sender",
		Text:   "não reconheço essa cobrança indevida",
	})
	require.NoError(t, err)
	assert.Equal(t, IntentDispute, reply.Intent)
	assert.True(t, reply.ShouldEscalate)
	assert.Contains(t, reply.SuggestedActions, "open_dispute_ticket")

	snap, _, err := eng.Memory().Peek(context.Background(), "sender")
	require.NoError(t, err)
	assert.Equal(t, StateDisputed, snap.State)
}

func TestShouldEscalate(t *testing.T) {
	tests := []struct {
		name    string
		intent  Intent
		emotion EmotionalState
		want    bool
	}{
		{"dispute", IntentDispute, EmotionalState{Emotion: EmotionNeutral}, true},
		{"help request hands off to a person", IntentHelpRequest, EmotionalState{Emotion: EmotionNeutral}, true},
		{"intense negative emotion", IntentNegotiationRequest, EmotionalState{Emotion: EmotionAnger, Intensity: 0.8}, true},
		{"mild negative emotion", IntentNegotiationRequest, EmotionalState{Emotion: EmotionAnger, Intensity: 0.5}, false},
		{"intense positive emotion", IntentGreeting, EmotionalState{Emotion: EmotionRelief, Intensity: 0.9}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, shouldEscalate(tc.intent, tc.emotion))
		})
	}
}

func TestProcessTurnHelpRequestEscalates(t *testing.T) {
	eng, _ := newTestEngine(t, MemoryStoreConfig{})

	reply, err := eng.ProcessTurn(context.Background(), Message{
		Sender: "sender",
		Text:   "quero falar com atendente, pode me ajudar",
	})
	require.NoError(t, err)
	assert.Equal(t, IntentHelpRequest, reply.Intent)
	assert.True(t, reply.ShouldEscalate)
	assert.Contains(t, reply.SuggestedActions, "handoff_to_agent")
}

func TestProcessTurnLockTimeout(t *testing.T) {
	store := newTestStore(t, MemoryStoreConfig{LockTimeout: 50 * time.Millisecond})
	eng := New(Options{}, store, nil, nil, testLogger())

	handle, err := store.Acquire(context.Background(), "sender", "")
	require.NoError(t, err)
	defer handle.Release()

	_, err = eng.ProcessTurn(context.Background(), Message{Sender: "sender", Text: "oi"})
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestProcessTurnTTLEvictionResetsConversation(t *testing.T) {
	eng, _ := newTestEngine(t, MemoryStoreConfig{TTL: 10 * time.Millisecond})

	_, err := eng.ProcessTurn(context.Background(), Message{Sender: "sender", Text: "quero parcelar"})
	require.NoError(t, err)

	time.Sleep(25 * time.Millisecond)
	require.Equal(t, 1, eng.Memory().EvictExpired(context.Background()))

	_, err = eng.ProcessTurn(context.Background(), Message{Sender: "sender", Text: "oi, bom dia"})
	require.NoError(t, err)

	snap, found, err := eng.Memory().Peek(context.Background(), "sender")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, StatePending, snap.State)
	assert.Equal(t, 1, snap.HistoryLen)
}

func TestProcessTurnPreferredPaymentFact(t *testing.T) {
	eng, _ := newTestEngine(t, MemoryStoreConfig{})

	_, err := eng.ProcessTurn(context.Background(), Message{
		Sender: "sender",
		Text:   "posso pagar por pix qual o valor",
	})
	require.NoError(t, err)

	snap, _, err := eng.Memory().Peek(context.Background(), "sender")
	require.NoError(t, err)
	assert.Equal(t, "pix", snap.Facts[FactPreferredPayment])
}
