package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatBRL(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{123456, "R$ 1.234,56"},
		{5000, "R$ 50,00"},
		{99, "R$ 0,99"},
		{100000000, "R$ 1.000.000,00"},
		{-990, "-R$ 9,90"},
		{0, "R$ 0,00"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, FormatBRL(tc.cents))
	}
}

func TestGenerateFillsPlaceholders(t *testing.T) {
	g := NewResponseGenerator()
	snap := ContextSnapshot{
		Name:            "Maria Silva",
		OpenAmountCents: 123456,
		DueDate:         time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
	}

	text, id := g.Generate(IntentGreeting, EmotionalState{}, snap)
	assert.Equal(t, "greeting-first", id)
	assert.Contains(t, text, "Maria")
	assert.NotContains(t, text, "Silva")
	assert.Contains(t, text, "R$ 1.234,56")
	assert.Contains(t, text, "10/03/2026")
	assert.NotContains(t, text, "{{")
}

func TestGenerateMissingContextFields(t *testing.T) {
	g := NewResponseGenerator()

	text, _ := g.Generate(IntentGreeting, EmotionalState{}, ContextSnapshot{})
	assert.NotContains(t, text, "{{")
	assert.NotContains(t, text, "  ")
}

func TestGenerateDepthSelection(t *testing.T) {
	g := NewResponseGenerator()

	_, first := g.Generate(IntentGreeting, EmotionalState{}, ContextSnapshot{HistoryLen: 0})
	assert.Equal(t, "greeting-first", first)

	_, later := g.Generate(IntentGreeting, EmotionalState{}, ContextSnapshot{HistoryLen: 8})
	assert.Equal(t, "greeting-back", later)
}

func TestGenerateAvoidsRepeatingTemplate(t *testing.T) {
	g := NewResponseGenerator()
	snap := ContextSnapshot{LastTemplateID: "payment-received"}

	_, id := g.Generate(IntentPaymentConfirmation, EmotionalState{}, snap)
	assert.Equal(t, "payment-received-alt", id)
}

func TestGenerateEmpatheticOpeningForHardship(t *testing.T) {
	g := NewResponseGenerator()
	emotion := EmotionalState{Emotion: EmotionSadness, Intensity: 0.8}

	text, id := g.Generate(IntentFinancialHardship, emotion, ContextSnapshot{Name: "João"})
	assert.Equal(t, "hardship-empathy", id)
	assert.True(t, strings.HasPrefix(text, "Sinto muito"))
}

func TestGenerateUnknownIntentAsksForClarification(t *testing.T) {
	g := NewResponseGenerator()

	text, id := g.Generate(IntentUnknown, EmotionalState{}, ContextSnapshot{})
	assert.Equal(t, "clarify", id)
	assert.Contains(t, text, "fatura")
}

func TestGenerateUnmappedIntentFallsBackToClarify(t *testing.T) {
	g := NewResponseGenerator()

	_, id := g.Generate(IntentOutOfScope, EmotionalState{}, ContextSnapshot{})
	assert.Equal(t, "clarify", id)
}
