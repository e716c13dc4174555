package engine

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/quitaai/cobranca-ai-platform/pkg/logging"
)

var ensembleTracer = otel.Tracer("cobranca/intent-ensemble")

const (
	// memoryLastIntentBoost is added to the sender's previous intent.
	memoryLastIntentBoost = 0.6
	// memoryFactBoost is added to intents supported by stored facts.
	memoryFactBoost = 0.4

	// fallbackDensityFloor is the minimum keyword density the fallback
	// heuristic accepts before giving up and returning unknown.
	fallbackDensityFloor = 0.1

	fallbackConfidence = 0.4
	unknownConfidence  = 0.2

	// highIntensityThreshold triggers the reweight toward memory.
	highIntensityThreshold = 0.7
)

// SourceWeights are the ensemble combination weights.
type SourceWeights struct {
	Rule        float64
	Statistical float64
	Memory      float64
	Emotional   float64
}

// DefaultWeights returns the stock ensemble weights.
func DefaultWeights() SourceWeights {
	return SourceWeights{Rule: 0.4, Statistical: 0.3, Memory: 0.2, Emotional: 0.1}
}

// Ensemble resolves one intent per message by combining the rule source, an
// optional statistical classifier, memory-derived priors and emotional
// boosts.
type Ensemble struct {
	guardrail  *Guardrail
	rules      *RuleSource
	classifier StatisticalClassifier
	weights    SourceWeights
	threshold  float64
	logger     *logging.Logger
}

// NewEnsemble wires the ensemble. A nil classifier selects NoopClassifier.
func NewEnsemble(guardrail *Guardrail, rules *RuleSource, classifier StatisticalClassifier, weights SourceWeights, threshold float64, logger *logging.Logger) *Ensemble {
	if guardrail == nil {
		panic("engine: guardrail cannot be nil")
	}
	if rules == nil {
		rules = NewRuleSource()
	}
	if classifier == nil {
		classifier = NoopClassifier{}
	}
	if weights == (SourceWeights{}) {
		weights = DefaultWeights()
	}
	if threshold <= 0 {
		threshold = 0.25
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Ensemble{
		guardrail:  guardrail,
		rules:      rules,
		classifier: classifier,
		weights:    weights,
		threshold:  threshold,
		logger:     logger,
	}
}

type candidate struct {
	intent   Intent
	total    float64
	bySource map[Source]float64
}

// Resolve returns the winning intent decision for a normalized message.
func (e *Ensemble) Resolve(ctx context.Context, normalized NormalizedText, emotion EmotionalState, snap ContextSnapshot) IntentDecision {
	ctx, span := ensembleTracer.Start(ctx, "ensemble.resolve")
	defer span.End()

	// Hard guardrail runs before everything else: no billing-domain
	// overlap at all means the ensemble is skipped entirely.
	if !e.guardrail.InScope(normalized) {
		span.SetAttributes(attribute.Bool("ensemble.out_of_scope", true))
		return IntentDecision{Intent: IntentOutOfScope, Confidence: 1.0, Source: SourceGuardrail}
	}

	ruleScores := e.rules.Score(normalized)

	statIntent, statConf, err := e.classifier.Classify(ctx, normalized.Text)
	if err != nil {
		e.logger.Warn("statistical classifier failed, continuing without it",
			"classifier", e.classifier.Name(), "error", err)
		statIntent, statConf = IntentUnknown, 0
	}
	statActive := statIntent != IntentUnknown && statConf > 0

	memScores := memoryPriors(snap)
	emoScores := emotionalBoosts(emotion)

	// Relevance gate: memory and emotion alone cannot rescue a message
	// neither text source considers relevant.
	if maxScore(ruleScores) < e.threshold && (!statActive || statConf < e.threshold) {
		intent, density := e.rules.KeywordDensity(normalized)
		if intent != IntentUnknown && density >= fallbackDensityFloor {
			return IntentDecision{Intent: intent, Confidence: fallbackConfidence, Source: SourceFallback}
		}
		return IntentDecision{Intent: IntentUnknown, Confidence: unknownConfidence, Source: SourceFallback}
	}

	weights := e.weights
	if emotion.Intensity > highIntensityThreshold {
		// Strong emotion makes recent context more predictive than a
		// statistical model trained on single messages.
		weights.Statistical -= 0.1
		weights.Memory += 0.1
	}

	candidates := make(map[Intent]*candidate)
	add := func(intent Intent, src Source, weighted float64) {
		if weighted <= 0 {
			return
		}
		c, ok := candidates[intent]
		if !ok {
			c = &candidate{intent: intent, bySource: make(map[Source]float64)}
			candidates[intent] = c
		}
		c.total += weighted
		c.bySource[src] += weighted
	}

	for intent, score := range ruleScores {
		add(intent, SourceRule, weights.Rule*score)
	}
	if statActive {
		add(statIntent, SourceStatistical, weights.Statistical*statConf)
	}
	for intent, score := range memScores {
		add(intent, SourceMemory, weights.Memory*score)
	}
	for intent, score := range emoScores {
		add(intent, SourceEmotional, weights.Emotional*score)
	}

	if len(candidates) == 0 {
		return IntentDecision{Intent: IntentUnknown, Confidence: unknownConfidence, Source: SourceFallback}
	}

	activeWeight := 0.0
	if len(ruleScores) > 0 {
		activeWeight += weights.Rule
	}
	if statActive {
		activeWeight += weights.Statistical
	}
	if len(memScores) > 0 {
		activeWeight += weights.Memory
	}
	if len(emoScores) > 0 {
		activeWeight += weights.Emotional
	}

	ranked := make([]*candidate, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, c)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].total != ranked[j].total {
			return ranked[i].total > ranked[j].total
		}
		pi, pj := sourcePriority(ranked[i].primarySource()), sourcePriority(ranked[j].primarySource())
		if pi != pj {
			return pi < pj
		}
		return ranked[i].intent < ranked[j].intent
	})

	winner := ranked[0]
	decision := IntentDecision{
		Intent:     winner.intent,
		Confidence: clamp01(winner.total / activeWeight),
		Source:     winner.primarySource(),
	}
	span.SetAttributes(
		attribute.String("ensemble.intent", string(decision.Intent)),
		attribute.Float64("ensemble.confidence", decision.Confidence),
		attribute.String("ensemble.source", string(decision.Source)),
	)
	return decision
}

// primarySource is the source that contributed the most weighted score;
// ties fall back to the fixed priority order.
func (c *candidate) primarySource() Source {
	best, bestVal := SourceRule, -1.0
	for _, src := range []Source{SourceRule, SourceStatistical, SourceMemory, SourceEmotional} {
		if v, ok := c.bySource[src]; ok && v > bestVal {
			best, bestVal = src, v
		}
	}
	return best
}

func sourcePriority(s Source) int {
	switch s {
	case SourceRule:
		return 0
	case SourceStatistical:
		return 1
	case SourceMemory:
		return 2
	case SourceEmotional:
		return 3
	default:
		return 4
	}
}

func maxScore(scores map[Intent]float64) float64 {
	best := 0.0
	for _, v := range scores {
		if v > best {
			best = v
		}
	}
	return best
}

// memoryPriors derives intent boosts from the sender's stored context.
func memoryPriors(snap ContextSnapshot) map[Intent]float64 {
	out := make(map[Intent]float64)
	switch snap.LastIntent {
	case "", IntentUnknown, IntentOutOfScope:
	default:
		out[snap.LastIntent] += memoryLastIntentBoost
	}
	if _, ok := snap.Facts[FactHardshipReason]; ok {
		out[IntentFinancialHardship] += memoryFactBoost
		out[IntentNegotiationRequest] += memoryFactBoost * 0.75
	}
	if _, ok := snap.Facts[FactPreferredPayment]; ok {
		out[IntentPaymentConfirmation] += memoryFactBoost * 0.5
	}
	if _, ok := snap.Facts[FactPromisedDate]; ok {
		out[IntentScheduling] += memoryFactBoost * 0.75
	}
	if len(out) == 0 {
		return nil
	}
	for intent, v := range out {
		out[intent] = clamp01(v)
	}
	return out
}

// emotionalBoostTable maps emotions to the intents they make more likely.
// The applied boost is the table value scaled by intensity.
var emotionalBoostTable = map[Emotion]map[Intent]float64{
	EmotionAnger: {
		IntentDispute:            0.8,
		IntentNegotiationRequest: 0.4,
	},
	EmotionSadness: {
		IntentFinancialHardship:  0.8,
		IntentNegotiationRequest: 0.5,
	},
	EmotionAnxiety: {
		IntentAnxiety:            0.8,
		IntentHelpRequest:        0.3,
		IntentInformationRequest: 0.2,
	},
	EmotionFrustration: {
		IntentDispute:     0.4,
		IntentHelpRequest: 0.4,
	},
	EmotionRelief: {
		IntentPaymentConfirmation: 0.4,
		IntentFarewell:            0.3,
	},
}

func emotionalBoosts(emotion EmotionalState) map[Intent]float64 {
	if emotion.Intensity <= 0 {
		return nil
	}
	table, ok := emotionalBoostTable[emotion.Emotion]
	if !ok {
		return nil
	}
	out := make(map[Intent]float64, len(table))
	for intent, boost := range table {
		out[intent] = clamp01(boost * emotion.Intensity)
	}
	return out
}
