package engine

import (
	"fmt"
	"strings"
)

// Tone buckets pick the register of the reply.
type tone string

const (
	toneNeutral    tone = "neutral"
	toneEmpathetic tone = "empathetic"
	tonePositive   tone = "positive"
)

// Conversation depth buckets. Replies introduce themselves on first
// contact and drop the preamble once the conversation is established.
type depth string

const (
	depthFirst       depth = "first"
	depthEarly       depth = "early"
	depthEstablished depth = "established"
)

const earlyDepthTurns = 5

type responseTemplate struct {
	id    string
	tone  tone
	depth depth // empty matches any depth
	text  string
}

// ResponseGenerator renders the reply for a resolved intent from the
// template catalog, filling {{name}}, {{amount}} and {{due_date}} from the
// sender's context.
type ResponseGenerator struct {
	catalog map[Intent][]responseTemplate
}

// NewResponseGenerator builds the generator with the built-in catalog.
func NewResponseGenerator() *ResponseGenerator {
	return &ResponseGenerator{catalog: defaultTemplates}
}

// Generate picks and renders a template. It avoids repeating the template
// used on the previous turn when an alternative exists, and returns the
// chosen template id for telemetry.
func (g *ResponseGenerator) Generate(intent Intent, emotion EmotionalState, snap ContextSnapshot) (string, string) {
	list := g.catalog[intent]
	if len(list) == 0 {
		list = g.catalog[IntentUnknown]
	}

	wantTone := toneFor(intent, emotion)
	wantDepth := depthFor(snap.HistoryLen)

	pick := selectTemplate(list, wantTone, wantDepth, snap.LastTemplateID)
	return renderTemplate(pick.text, snap), pick.id
}

func toneFor(intent Intent, emotion EmotionalState) tone {
	switch intent {
	case IntentFinancialHardship, IntentAnxiety:
		return toneEmpathetic
	case IntentPaymentConfirmation, IntentFarewell:
		return tonePositive
	}
	if emotion.Emotion.IsNegative() && emotion.Intensity > 0.3 {
		return toneEmpathetic
	}
	if emotion.Emotion == EmotionRelief {
		return tonePositive
	}
	return toneNeutral
}

func depthFor(historyLen int) depth {
	switch {
	case historyLen == 0:
		return depthFirst
	case historyLen < earlyDepthTurns:
		return depthEarly
	default:
		return depthEstablished
	}
}

// selectTemplate narrows by tone, then depth, then filters out the template
// used on the previous turn. Every narrowing step keeps the previous pool
// when it would otherwise become empty.
func selectTemplate(list []responseTemplate, wantTone tone, wantDepth depth, lastID string) responseTemplate {
	pool := list
	if narrowed := filterTemplates(pool, func(t responseTemplate) bool { return t.tone == wantTone }); len(narrowed) > 0 {
		pool = narrowed
	}
	if narrowed := filterTemplates(pool, func(t responseTemplate) bool { return t.depth == "" || t.depth == wantDepth }); len(narrowed) > 0 {
		pool = narrowed
	}
	if len(pool) > 1 && lastID != "" {
		if narrowed := filterTemplates(pool, func(t responseTemplate) bool { return t.id != lastID }); len(narrowed) > 0 {
			pool = narrowed
		}
	}
	return pool[0]
}

func filterTemplates(list []responseTemplate, keep func(responseTemplate) bool) []responseTemplate {
	var out []responseTemplate
	for _, t := range list {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

// renderTemplate substitutes the supported placeholders. Placeholders with
// no value are removed together with one leading space so the sentence
// still reads naturally.
func renderTemplate(text string, snap ContextSnapshot) string {
	name := strings.TrimSpace(snap.Name)
	if name != "" {
		text = strings.ReplaceAll(text, "{{name}}", firstName(name))
	} else {
		text = strings.ReplaceAll(text, ", {{name}}", "")
		text = strings.ReplaceAll(text, " {{name}}", "")
		text = strings.ReplaceAll(text, "{{name}}", "")
	}

	if snap.OpenAmountCents > 0 {
		text = strings.ReplaceAll(text, "{{amount}}", FormatBRL(snap.OpenAmountCents))
	} else {
		text = strings.ReplaceAll(text, " de {{amount}}", "")
		text = strings.ReplaceAll(text, "{{amount}}", "o valor em aberto")
	}

	if !snap.DueDate.IsZero() {
		text = strings.ReplaceAll(text, "{{due_date}}", snap.DueDate.Format("02/01/2006"))
	} else {
		text = strings.ReplaceAll(text, " em {{due_date}}", "")
		text = strings.ReplaceAll(text, "{{due_date}}", "a data de vencimento")
	}

	return strings.Join(strings.Fields(text), " ")
}

func firstName(full string) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return full
	}
	return fields[0]
}

// FormatBRL renders cents in Brazilian currency format, e.g. 123456 cents
// becomes "R$ 1.234,56".
func FormatBRL(cents int64) string {
	negative := cents < 0
	if negative {
		cents = -cents
	}
	reais := cents / 100
	rest := cents % 100

	digits := fmt.Sprintf("%d", reais)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}

	sign := ""
	if negative {
		sign = "-"
	}
	return fmt.Sprintf("%sR$ %s,%02d", sign, b.String(), rest)
}

var defaultTemplates = map[Intent][]responseTemplate{
	IntentGreeting: {
		{id: "greeting-first", tone: toneNeutral, depth: depthFirst,
			text: "Olá, {{name}}! Aqui é o atendimento digital de cobrança. Você tem uma fatura de {{amount}} com vencimento em {{due_date}}. Posso te ajudar com o pagamento, parcelamento ou enviar a segunda via."},
		{id: "greeting-back", tone: toneNeutral,
			text: "Oi, {{name}}! Que bom falar com você de novo. Sua fatura de {{amount}} continua em aberto. Como posso ajudar hoje?"},
	},
	IntentPaymentConfirmation: {
		{id: "payment-received", tone: tonePositive,
			text: "Ótima notícia, {{name}}! Registrei aqui que o pagamento foi feito. Assim que a compensação for confirmada, normalmente em até 2 dias úteis, seu nome fica totalmente regularizado. Se tiver o comprovante, pode enviar por aqui."},
		{id: "payment-received-alt", tone: tonePositive,
			text: "Perfeito, {{name}}! Anotei a confirmação do pagamento. A baixa da fatura acontece após a compensação bancária. Qualquer coisa, é só me chamar."},
	},
	IntentNegotiationRequest: {
		{id: "negotiation-offer", tone: toneNeutral,
			text: "Claro, {{name}}! Sua fatura de {{amount}} pode ser parcelada em até 12 vezes no cartão ou com entrada mais parcelas no boleto. Quer que eu envie uma simulação?"},
		{id: "negotiation-empathetic", tone: toneEmpathetic,
			text: "Entendo, {{name}}, e quero achar uma saída que caiba no seu bolso. O valor de {{amount}} pode ser parcelado em condições facilitadas. Me conta quanto você consegue pagar por mês que eu monto uma proposta."},
	},
	IntentInformationRequest: {
		{id: "info-summary", tone: toneNeutral,
			text: "Sua fatura em aberto é de {{amount}}, com vencimento em {{due_date}}. Quer que eu envie a segunda via do boleto ou o código Pix?"},
		{id: "info-summary-alt", tone: toneNeutral,
			text: "Claro, {{name}}! O valor em aberto é de {{amount}} e o vencimento foi em {{due_date}}. Posso mandar o boleto atualizado agora mesmo."},
	},
	IntentDispute: {
		{id: "dispute-open", tone: toneEmpathetic,
			text: "Entendo sua preocupação, {{name}}, e peço desculpas pelo transtorno. Registrei sua contestação da cobrança de {{amount}} e ela será analisada por um atendente. Enquanto isso, nenhuma ação de cobrança será feita."},
		{id: "dispute-open-alt", tone: toneEmpathetic,
			text: "Sinto muito pelo incômodo, {{name}}. Sua contestação foi registrada e vamos apurar a origem da cobrança. Um atendente vai entrar em contato para resolver isso com você."},
	},
	IntentScheduling: {
		{id: "schedule-promise", tone: toneNeutral,
			text: "Combinado, {{name}}! Anotei aqui seu compromisso de pagamento. Vou te enviar um lembrete com o boleto atualizado perto da data. Obrigado por avisar!"},
	},
	IntentFarewell: {
		{id: "farewell", tone: tonePositive,
			text: "Obrigado pelo contato, {{name}}! Qualquer dúvida sobre sua fatura, é só mandar mensagem por aqui. Tenha um ótimo dia!"},
	},
	IntentHelpRequest: {
		{id: "help-human", tone: toneNeutral,
			text: "Sem problemas, {{name}}! Já pedi para um atendente assumir a conversa. Enquanto isso, se quiser, posso adiantar o valor da fatura ou a segunda via do boleto."},
	},
	IntentAnxiety: {
		{id: "anxiety-reassure", tone: toneEmpathetic,
			text: "Fica tranquilo, {{name}}, estou aqui para te ajudar a resolver isso. Sua fatura de {{amount}} ainda pode ser regularizada sem maiores consequências. Quer ver as opções de pagamento ou parcelamento?"},
	},
	IntentFinancialHardship: {
		{id: "hardship-empathy", tone: toneEmpathetic,
			text: "Sinto muito pelo momento difícil, {{name}}. Ninguém planeja passar por isso. Temos condições especiais para o seu caso: o valor de {{amount}} pode ser parcelado com entrada reduzida. Quer que eu monte uma proposta?"},
		{id: "hardship-empathy-alt", tone: toneEmpathetic,
			text: "Entendo, {{name}}, e agradeço por me contar. Vamos encontrar juntos uma condição que caiba no seu orçamento agora. Posso simular um parcelamento da sua fatura de {{amount}} com parcelas menores."},
	},
	IntentUnknown: {
		{id: "clarify", tone: toneNeutral,
			text: "Desculpe, {{name}}, não consegui entender direito. Você quer saber o valor da fatura, pedir a segunda via do boleto ou negociar um parcelamento?"},
	},
}
