package engine

import (
	"context"
	"math"
	"sort"
	"strings"
)

// StatisticalClassifier is the optional ensemble source. Implementations
// return the most likely intent with a confidence in [0,1]; returning
// IntentUnknown with zero confidence contributes nothing.
type StatisticalClassifier interface {
	Classify(ctx context.Context, text string) (Intent, float64, error)
	// Name identifies the implementation in logs and telemetry.
	Name() string
}

// NoopClassifier is the null implementation selected when no statistical
// model is configured. The ensemble degrades gracefully to the remaining
// sources.
type NoopClassifier struct{}

func (NoopClassifier) Classify(context.Context, string) (Intent, float64, error) {
	return IntentUnknown, 0, nil
}

func (NoopClassifier) Name() string { return "noop" }

// BayesClassifier is a lightweight multinomial naive Bayes model trained at
// construction time on the rule catalog examples. It ships as the bundled
// optional capability; swapping in an external model only requires another
// StatisticalClassifier implementation.
type BayesClassifier struct {
	intents     []Intent
	tokenCounts map[Intent]map[string]int
	totalTokens map[Intent]int
	vocabSize   int
}

// NewBayesClassifier trains the model on the given per-intent examples.
func NewBayesClassifier(examples map[Intent][]string) *BayesClassifier {
	c := &BayesClassifier{
		tokenCounts: make(map[Intent]map[string]int),
		totalTokens: make(map[Intent]int),
	}
	vocab := make(map[string]struct{})
	for intent, list := range examples {
		counts := make(map[string]int)
		for _, example := range list {
			for _, tok := range strings.Fields(example) {
				counts[tok]++
				c.totalTokens[intent]++
				vocab[tok] = struct{}{}
			}
		}
		if len(counts) == 0 {
			continue
		}
		c.tokenCounts[intent] = counts
		c.intents = append(c.intents, intent)
	}
	c.vocabSize = len(vocab)
	// Deterministic argmax regardless of map iteration order.
	sort.Slice(c.intents, func(i, j int) bool { return c.intents[i] < c.intents[j] })
	return c
}

// Classify returns the intent with the highest posterior. Confidence is the
// winner's share of the posterior mass; messages with no known token return
// IntentUnknown with zero confidence.
func (c *BayesClassifier) Classify(_ context.Context, text string) (Intent, float64, error) {
	tokens := strings.Fields(strings.TrimSpace(text))
	if len(tokens) == 0 || len(c.intents) == 0 {
		return IntentUnknown, 0, nil
	}

	known := 0
	for _, tok := range tokens {
		for _, counts := range c.tokenCounts {
			if counts[tok] > 0 {
				known++
				break
			}
		}
	}
	if known == 0 {
		return IntentUnknown, 0, nil
	}

	// Uniform prior across intents; Laplace-smoothed token likelihoods.
	logPosteriors := make([]float64, len(c.intents))
	for i, intent := range c.intents {
		counts := c.tokenCounts[intent]
		denom := float64(c.totalTokens[intent] + c.vocabSize)
		lp := 0.0
		for _, tok := range tokens {
			lp += math.Log(float64(counts[tok]+1) / denom)
		}
		logPosteriors[i] = lp
	}

	maxLP := logPosteriors[0]
	for _, lp := range logPosteriors[1:] {
		if lp > maxLP {
			maxLP = lp
		}
	}
	sum := 0.0
	probs := make([]float64, len(logPosteriors))
	for i, lp := range logPosteriors {
		probs[i] = math.Exp(lp - maxLP)
		sum += probs[i]
	}

	bestIdx, bestProb := 0, 0.0
	for i, p := range probs {
		if p > bestProb {
			bestIdx, bestProb = i, p
		}
	}
	confidence := clamp01(bestProb / sum)

	// A posterior barely above uniform is noise, not signal.
	if confidence <= 1.5/float64(len(c.intents)) {
		return IntentUnknown, 0, nil
	}
	return c.intents[bestIdx], confidence, nil
}

func (c *BayesClassifier) Name() string { return "naive-bayes" }
