package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quitaai/cobranca-ai-platform/pkg/logging"
)

func newTestEnsemble(classifier StatisticalClassifier) *Ensemble {
	return NewEnsemble(NewGuardrail(nil), NewRuleSource(), classifier, DefaultWeights(), 0.25, testLogger())
}

func TestEnsembleGuardrailShortCircuits(t *testing.T) {
	e := newTestEnsemble(nil)

	d := e.Resolve(context.Background(), NormalizedText{Text: "futebol brasileiro é o melhor do mundo"}, EmotionalState{}, ContextSnapshot{})
	assert.Equal(t, IntentOutOfScope, d.Intent)
	assert.Equal(t, 1.0, d.Confidence)
	assert.Equal(t, SourceGuardrail, d.Source)
}

func TestEnsembleClearPaymentConfirmation(t *testing.T) {
	e := newTestEnsemble(nil)

	d := e.Resolve(context.Background(), NormalizedText{Text: "já paguei o boleto"}, EmotionalState{}, ContextSnapshot{})
	assert.Equal(t, IntentPaymentConfirmation, d.Intent)
	assert.GreaterOrEqual(t, d.Confidence, 0.7)
	assert.Equal(t, SourceRule, d.Source)
}

func TestEnsembleWithClassifierPaymentConfirmation(t *testing.T) {
	e := newTestEnsemble(NewBayesClassifier(NewRuleSource().Examples()))

	d := e.Resolve(context.Background(), NormalizedText{Text: "já paguei o boleto"}, EmotionalState{}, ContextSnapshot{})
	assert.Equal(t, IntentPaymentConfirmation, d.Intent)
	assert.GreaterOrEqual(t, d.Confidence, 0.7)
}

func TestEnsembleEmotionalContextInfluence(t *testing.T) {
	e := newTestEnsemble(nil)
	sad := EmotionalState{Emotion: EmotionSadness, Intensity: 0.8}

	d := e.Resolve(context.Background(), NormalizedText{Text: "quero parcelar estou desempregado"}, sad, ContextSnapshot{})
	assert.Equal(t, IntentNegotiationRequest, d.Intent)
	assert.Greater(t, d.Confidence, 0.4)
}

func TestEnsembleMemoryCannotRescueIrrelevantText(t *testing.T) {
	e := newTestEnsemble(nil)
	snap := ContextSnapshot{
		LastIntent: IntentNegotiationRequest,
		Facts:      map[string]string{FactHardshipReason: "desemprego"},
	}

	// Strong priors never override the relevance gate: text neither the
	// rules nor the classifier consider relevant falls back regardless.
	d := e.Resolve(context.Background(), NormalizedText{Text: "e a parcela"}, EmotionalState{}, snap)
	assert.Equal(t, SourceFallback, d.Source)
}

func TestMemoryPriors(t *testing.T) {
	snap := ContextSnapshot{
		LastIntent: IntentNegotiationRequest,
		Facts: map[string]string{
			FactHardshipReason: "desemprego",
			FactPromisedDate:   "amanhã",
		},
	}

	priors := memoryPriors(snap)
	assert.Greater(t, priors[IntentNegotiationRequest], priors[IntentScheduling])
	assert.Greater(t, priors[IntentFinancialHardship], 0.0)
	assert.NotContains(t, priors, IntentDispute)

	assert.Nil(t, memoryPriors(ContextSnapshot{LastIntent: IntentOutOfScope}))
}

func TestEmotionalBoosts(t *testing.T) {
	boosts := emotionalBoosts(EmotionalState{Emotion: EmotionAnger, Intensity: 0.5})
	assert.InDelta(t, 0.4, boosts[IntentDispute], 1e-9)

	assert.Nil(t, emotionalBoosts(EmotionalState{Emotion: EmotionNeutral, Intensity: 0.5}))
	assert.Nil(t, emotionalBoosts(EmotionalState{Emotion: EmotionAnger, Intensity: 0}))
}

func TestEnsembleRelevanceGateFallsBack(t *testing.T) {
	e := newTestEnsemble(nil)

	d := e.Resolve(context.Background(), NormalizedText{Text: "ok entendi"}, EmotionalState{}, ContextSnapshot{})
	assert.Equal(t, SourceFallback, d.Source)
}

type failingClassifier struct{}

func (failingClassifier) Classify(context.Context, string) (Intent, float64, error) {
	return "", 0, errors.New("model unavailable")
}

func (failingClassifier) Name() string { return "failing" }

func TestEnsembleClassifierFailureDegrades(t *testing.T) {
	e := newTestEnsemble(failingClassifier{})

	d := e.Resolve(context.Background(), NormalizedText{Text: "já paguei o boleto"}, EmotionalState{}, ContextSnapshot{})
	assert.Equal(t, IntentPaymentConfirmation, d.Intent)
	assert.GreaterOrEqual(t, d.Confidence, 0.7)
}

func testLogger() *logging.Logger {
	return logging.New("error")
}
