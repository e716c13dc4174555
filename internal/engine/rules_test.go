package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuleSourceScore(t *testing.T) {
	rules := NewRuleSource()

	scores := rules.Score(NormalizedText{Text: "já paguei o boleto"})
	assert.Equal(t, 1.0, scores[IntentPaymentConfirmation])
	assert.Greater(t, scores[IntentPaymentConfirmation], scores[IntentInformationRequest])

	scores = rules.Score(NormalizedText{Text: "quero parcelar a dívida"})
	assert.Greater(t, scores[IntentNegotiationRequest], 0.0)
}

func TestRuleSourceScoreEmpty(t *testing.T) {
	rules := NewRuleSource()
	assert.Nil(t, rules.Score(NormalizedText{Text: "   "}))
}

func TestRuleSourceSignalTagBoost(t *testing.T) {
	rules := NewRuleSource()

	without := rules.Score(NormalizedText{Text: "quero negociar"})
	with := rules.Score(NormalizedText{Text: "quero negociar", Tags: []string{"negotiation-signal"}})
	assert.Greater(t, with[IntentNegotiationRequest], without[IntentNegotiationRequest])
}

func TestRuleSourceKeywordDensity(t *testing.T) {
	rules := NewRuleSource()

	intent, density := rules.KeywordDensity(NormalizedText{Text: "boleto"})
	assert.Equal(t, IntentInformationRequest, intent)
	assert.Equal(t, 1.0, density)

	intent, density = rules.KeywordDensity(NormalizedText{Text: "nada a ver com nada"})
	assert.Equal(t, IntentUnknown, intent)
	assert.Zero(t, density)
}

func TestRuleSourceExamplesCoverCatalog(t *testing.T) {
	examples := NewRuleSource().Examples()
	for _, intent := range []Intent{
		IntentGreeting, IntentPaymentConfirmation, IntentNegotiationRequest,
		IntentInformationRequest, IntentDispute, IntentScheduling,
		IntentFarewell, IntentHelpRequest, IntentAnxiety, IntentFinancialHardship,
	} {
		assert.NotEmpty(t, examples[intent], "intent %s has no training examples", intent)
	}
}
