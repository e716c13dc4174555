package engine

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/quitaai/cobranca-ai-platform/pkg/logging"
)

var emotionTracer = otel.Tracer("cobranca/emotion-detector")

// neutralBaselineConfidence is reported when no emotion category scores.
const neutralBaselineConfidence = 0.5

// IntensifierMultipliers tunes how intensifier words amplify or dampen an
// emotion score.
type IntensifierMultipliers struct {
	High   float64
	Medium float64
	Low    float64
}

// DefaultIntensifiers returns the stock multiplier set.
func DefaultIntensifiers() IntensifierMultipliers {
	return IntensifierMultipliers{High: 1.5, Medium: 1.2, Low: 0.8}
}

type emotionLexicon struct {
	emotion  Emotion
	keywords []string
	phrases  []string
}

// EmotionDetector scores normalized text against a fixed Portuguese emotion
// lexicon. Keyword hits score +1, multi-word phrase hits +2.
type EmotionDetector struct {
	lexicon      []emotionLexicon
	intensifiers IntensifierMultipliers
	logger       *logging.Logger
}

// NewEmotionDetector creates a detector with the built-in lexicon.
func NewEmotionDetector(m IntensifierMultipliers, logger *logging.Logger) *EmotionDetector {
	if logger == nil {
		logger = logging.Default()
	}
	if m.High == 0 {
		m = DefaultIntensifiers()
	}
	return &EmotionDetector{
		lexicon:      defaultEmotionLexicon,
		intensifiers: m,
		logger:       logger,
	}
}

// Detect returns the emotional state for a normalized message. Intensity and
// confidence are always within [0,1]; when nothing matches it returns
// neutral with intensity 0.
func (d *EmotionDetector) Detect(ctx context.Context, normalized string) EmotionalState {
	_, span := emotionTracer.Start(ctx, "emotion.detect")
	defer span.End()

	now := time.Now().UTC()
	text := strings.TrimSpace(normalized)
	if text == "" {
		return neutralState(now)
	}
	padded := " " + text + " "

	multiplier := d.intensifierMultiplier(padded)

	var (
		best           Emotion
		bestScore      float64
		bestIndicators []string
	)
	for _, lex := range d.lexicon {
		score := 0.0
		var indicators []string
		for _, kw := range lex.keywords {
			if strings.Contains(padded, " "+kw+" ") {
				score++
				indicators = append(indicators, kw)
			}
		}
		for _, ph := range lex.phrases {
			if strings.Contains(text, ph) {
				score += 2
				indicators = append(indicators, ph)
			}
		}
		if score == 0 {
			continue
		}
		score *= multiplier
		// First category reaching the maximum wins, in lexicon order.
		if score > bestScore {
			best, bestScore, bestIndicators = lex.emotion, score, indicators
		}
	}

	if bestScore == 0 {
		return neutralState(now)
	}

	intensity := clamp01(bestScore / 5)
	state := EmotionalState{
		Emotion:    best,
		Intensity:  intensity,
		Confidence: clamp01(intensity * 1.2),
		Indicators: bestIndicators,
		At:         now,
	}

	span.SetAttributes(
		attribute.String("emotion.category", string(state.Emotion)),
		attribute.Float64("emotion.intensity", state.Intensity),
	)
	d.logger.Debug("emotion detected",
		"category", state.Emotion,
		"intensity", state.Intensity,
		"indicators", strings.Join(state.Indicators, ","),
	)
	return state
}

// intensifierMultiplier returns the multiplier for the strongest intensifier
// tier present in the text.
func (d *EmotionDetector) intensifierMultiplier(padded string) float64 {
	for _, w := range highIntensifiers {
		if strings.Contains(padded, " "+w+" ") {
			return d.intensifiers.High
		}
	}
	for _, w := range mediumIntensifiers {
		if strings.Contains(padded, " "+w+" ") {
			return d.intensifiers.Medium
		}
	}
	for _, w := range lowIntensifiers {
		if strings.Contains(padded, " "+w+" ") {
			return d.intensifiers.Low
		}
	}
	return 1.0
}

func neutralState(now time.Time) EmotionalState {
	return EmotionalState{
		Emotion:    EmotionNeutral,
		Intensity:  0,
		Confidence: neutralBaselineConfidence,
		At:         now,
	}
}

var (
	highIntensifiers   = []string{"muito", "demais", "extremamente", "totalmente", "super"}
	mediumIntensifiers = []string{"bastante", "bem", "tão"}
	lowIntensifiers    = []string{"pouco", "meio", "levemente"}
)

// defaultEmotionLexicon is evaluated in declaration order; the first
// category to reach the top score wins ties deterministically.
var defaultEmotionLexicon = []emotionLexicon{
	{
		emotion: EmotionAnger,
		keywords: []string{
			"raiva", "absurdo", "palhaçada", "ridículo", "revoltado",
			"indignado", "odeio", "inaceitável",
		},
		phrases: []string{
			"que absurdo", "isso é um absurdo", "vou processar",
			"não aceito", "vocês são uns ladrões",
		},
	},
	{
		emotion: EmotionSadness,
		keywords: []string{
			"triste", "difícil", "desempregado", "desemprego", "doente",
			"perdi",
		},
		phrases: []string{
			"estou desempregado", "perdi meu emprego", "situação difícil",
			"não tenho dinheiro", "momento complicado",
		},
	},
	{
		emotion: EmotionAnxiety,
		keywords: []string{
			"preocupado", "preocupada", "medo", "nervoso", "nervosa",
			"desesperado", "desesperada", "aflito", "urgente",
		},
		phrases: []string{
			"estou com medo", "não sei o que fazer", "me ajuda por favor",
			"nome sujo", "vou ser negativado", "vão me negativar",
		},
	},
	{
		emotion: EmotionFrustration,
		keywords: []string{
			"cansado", "cansada", "chateado", "chateada", "saco",
		},
		phrases: []string{
			"de novo isso", "já falei", "quantas vezes",
			"não aguento mais", "toda hora",
		},
	},
	{
		emotion: EmotionRelief,
		keywords: []string{
			"obrigado", "obrigada", "ótimo", "consegui", "resolvido",
			"aliviado", "aliviada",
		},
		phrases: []string{
			"que bom", "muito obrigado", "graças a deus", "já resolvi",
		},
	},
}
