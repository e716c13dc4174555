package engine

import "strings"

// RedirectTemplates are the fixed replies used whenever the conversation
// must be steered back to the billing domain. Out-of-scope input always
// produces exactly one of these, verbatim.
var RedirectTemplates = []string{
	"Posso te ajudar apenas com assuntos da sua fatura em aberto. Quer saber o valor, pedir a segunda via do boleto ou negociar um parcelamento?",
	"Esse assunto foge do que consigo tratar por aqui. Sobre a sua fatura, posso ajudar com pagamento, parcelamento ou dúvidas do boleto.",
}

// redirectClause is appended to a generated reply that drifted off-topic.
const redirectClause = " Sobre a sua fatura, posso ajudar com pagamento, parcelamento ou dúvidas do boleto."

// Guardrail keeps both input and output constrained to the billing domain.
// A message with zero overlap with the keyword set is out of scope.
type Guardrail struct {
	keywords []string
	phrases  []string
}

// NewGuardrail builds the guardrail with the built-in billing keyword set
// plus any extra configured keywords.
func NewGuardrail(extraKeywords []string) *Guardrail {
	g := &Guardrail{
		keywords: append([]string{}, guardrailKeywords...),
		phrases:  append([]string{}, guardrailPhrases...),
	}
	for _, kw := range extraKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(kw, " ") {
			g.phrases = append(g.phrases, kw)
		} else {
			g.keywords = append(g.keywords, kw)
		}
	}
	return g
}

// InScope reports whether a normalized message overlaps the billing domain
// at all. Signal tags from the normalizer count as overlap.
func (g *Guardrail) InScope(normalized NormalizedText) bool {
	if len(normalized.Tags) > 0 {
		return true
	}
	return g.containsDomainTerm(normalized.Text)
}

// RedirectReply returns the fixed redirect message for out-of-scope input.
func (g *Guardrail) RedirectReply() string {
	return RedirectTemplates[0]
}

// EnsureOnTopic checks a generated reply candidate; if the candidate itself
// has no billing-domain overlap it gets the redirect clause appended.
func (g *Guardrail) EnsureOnTopic(candidate string) (string, bool) {
	if g.containsDomainTerm(strings.ToLower(candidate)) {
		return candidate, false
	}
	return strings.TrimSpace(candidate) + redirectClause, true
}

func (g *Guardrail) containsDomainTerm(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	padded := " " + text + " "
	for _, kw := range g.keywords {
		if strings.Contains(padded, " "+kw+" ") {
			return true
		}
	}
	for _, ph := range g.phrases {
		if strings.Contains(text, ph) {
			return true
		}
	}
	return false
}

// guardrailKeywords is the billing vocabulary plus the conversational
// courtesy words that keep greetings and confirmations in scope.
var guardrailKeywords = []string{
	// billing domain
	"boleto", "fatura", "conta", "carnê", "pagamento", "pagar", "paguei",
	"pago", "quitei", "dívida", "débito", "parcela", "parcelar",
	"parcelamento", "cobrança", "valor", "vencimento", "vencida",
	"negociar", "negociação", "acordo", "desconto", "pix", "comprovante",
	"juros", "atraso", "atrasado", "saldo", "devendo", "cartão",
	"dinheiro", "serasa", "spc", "negativado", "indevida", "indevido",
	"desempregado", "desempregada", "desemprego", "salário",
	// conversational courtesy
	"oi", "olá", "opa", "sim", "não", "ok", "tchau", "obrigado",
	"obrigada", "valeu", "ajuda", "ajudar", "atendente", "quando",
	"quanto", "entendi",
}

var guardrailPhrases = []string{
	"bom dia", "boa tarde", "boa noite", "tudo bem", "segunda via",
	"nome sujo", "sem dinheiro", "como faço",
}
