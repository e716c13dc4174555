package engine

import "strings"

// ruleCatalog holds per-intent example phrases and keywords plus a
// specificity boost for intents whose wording is unambiguous.
type ruleCatalog struct {
	intent   Intent
	keywords []string
	phrases  []string
	boost    float64
}

// RuleSource scores a normalized message against the intent example
// catalog. The score grows with how much of the message the matches cover
// and how dense the hits are.
type RuleSource struct {
	catalog []ruleCatalog
}

// NewRuleSource builds the rule source with the built-in catalog.
func NewRuleSource() *RuleSource {
	return &RuleSource{catalog: defaultRuleCatalog}
}

// Score returns per-intent rule scores in [0,1]. Intents with no match are
// absent from the map.
func (r *RuleSource) Score(normalized NormalizedText) map[Intent]float64 {
	text := strings.TrimSpace(normalized.Text)
	if text == "" {
		return nil
	}
	padded := " " + text + " "
	msgLen := len([]rune(text))
	tokens := len(strings.Fields(text))

	scores := make(map[Intent]float64)
	for _, entry := range r.catalog {
		matchedChars := 0
		hits := 0
		for _, ph := range entry.phrases {
			if strings.Contains(text, ph) {
				matchedChars += len([]rune(ph))
				hits++
			}
		}
		for _, kw := range entry.keywords {
			if strings.Contains(padded, " "+kw+" ") {
				matchedChars += len([]rune(kw))
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		coverage := float64(matchedChars) / float64(msgLen)
		density := float64(hits) / float64(tokens)
		score := clamp01((0.6*coverage + 0.4*density) * entry.boost)
		scores[entry.intent] = score
	}

	// Signal tags from the normalizer reinforce their intent.
	for _, tag := range normalized.Tags {
		if intent, ok := signalIntents[tag]; ok {
			scores[intent] = clamp01(scores[intent] + 0.2)
		}
	}
	return scores
}

// KeywordDensity is the lightweight fallback heuristic used when neither
// the rule source nor the statistical classifier clears the relevance
// threshold: plain hit count over token count, no boosts.
func (r *RuleSource) KeywordDensity(normalized NormalizedText) (Intent, float64) {
	text := strings.TrimSpace(normalized.Text)
	if text == "" {
		return IntentUnknown, 0
	}
	padded := " " + text + " "
	tokens := len(strings.Fields(text))

	best, bestDensity := IntentUnknown, 0.0
	for _, entry := range r.catalog {
		hits := 0
		for _, kw := range entry.keywords {
			if strings.Contains(padded, " "+kw+" ") {
				hits++
			}
		}
		for _, ph := range entry.phrases {
			if strings.Contains(text, ph) {
				hits++
			}
		}
		density := float64(hits) / float64(tokens)
		if density > bestDensity {
			best, bestDensity = entry.intent, density
		}
	}
	return best, bestDensity
}

// Examples exposes the catalog to the statistical classifier for training.
func (r *RuleSource) Examples() map[Intent][]string {
	out := make(map[Intent][]string, len(r.catalog))
	for _, entry := range r.catalog {
		examples := make([]string, 0, len(entry.keywords)+len(entry.phrases))
		examples = append(examples, entry.keywords...)
		examples = append(examples, entry.phrases...)
		out[entry.intent] = examples
	}
	return out
}

var signalIntents = map[string]Intent{
	"payment-confirmed-signal": IntentPaymentConfirmation,
	"negotiation-signal":       IntentNegotiationRequest,
	"hardship-signal":          IntentFinancialHardship,
	"dispute-signal":           IntentDispute,
	"billing-doc-signal":       IntentInformationRequest,
}

var defaultRuleCatalog = []ruleCatalog{
	{
		intent:   IntentGreeting,
		keywords: []string{"oi", "olá", "opa"},
		phrases:  []string{"bom dia", "boa tarde", "boa noite", "tudo bem"},
		boost:    1.0,
	},
	{
		intent:   IntentPaymentConfirmation,
		keywords: []string{"paguei", "comprovante", "quitei"},
		phrases: []string{
			"já paguei", "acabei de pagar", "fiz o pagamento",
			"pagamento feito", "paguei o boleto", "segue o comprovante",
			"já quitei",
		},
		boost: 1.3,
	},
	{
		intent:   IntentNegotiationRequest,
		keywords: []string{"parcelar", "parcelamento", "negociar", "acordo", "desconto", "renegociar"},
		phrases: []string{
			"quero parcelar", "posso parcelar", "fazer um acordo",
			"tem desconto", "dividir em parcelas", "quero negociar",
		},
		boost: 1.1,
	},
	{
		intent:   IntentInformationRequest,
		keywords: []string{"valor", "vencimento", "saldo", "fatura", "boleto"},
		phrases: []string{
			"qual o valor", "quanto estou devendo", "quando vence",
			"segunda via", "me manda o boleto", "qual a data",
		},
		boost: 1.0,
	},
	{
		intent:   IntentDispute,
		keywords: []string{"indevida", "indevido", "fraude"},
		phrases: []string{
			"não reconheço", "não comprei", "não contratei",
			"cobrança indevida", "já cancelei", "isso é um erro",
			"não devo nada", "vou procurar o procon",
		},
		boost: 1.3,
	},
	{
		intent:   IntentScheduling,
		keywords: []string{"agendar", "lembrar", "lembrete"},
		phrases: []string{
			"pago semana que vem", "pago amanhã", "pago dia",
			"me lembra depois", "só mês que vem", "pago na sexta",
		},
		boost: 1.0,
	},
	{
		intent:   IntentFarewell,
		keywords: []string{"tchau", "obrigado", "obrigada", "valeu"},
		phrases:  []string{"até mais", "até logo", "boa noite pra você"},
		boost:    0.9,
	},
	{
		intent:   IntentHelpRequest,
		keywords: []string{"ajuda", "ajudar", "atendente", "humano"},
		phrases: []string{
			"como faço", "não entendi", "pode me ajudar",
			"falar com atendente", "falar com alguém",
		},
		boost: 1.0,
	},
	{
		intent:   IntentAnxiety,
		keywords: []string{"preocupado", "preocupada", "desesperado", "desesperada"},
		phrases: []string{
			"nome sujo", "vou ser negativado", "vão me protestar",
			"estou com medo", "serasa", "spc",
		},
		boost: 1.0,
	},
	{
		intent:   IntentFinancialHardship,
		keywords: []string{"desempregado", "desempregada", "desemprego"},
		phrases: []string{
			"estou sem dinheiro", "não tenho como pagar",
			"perdi meu emprego", "estou apertado", "sem condições",
			"não tenho dinheiro",
		},
		boost: 1.2,
	},
}
