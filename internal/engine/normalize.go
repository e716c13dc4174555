package engine

import (
	"strings"
	"unicode"
)

// NormalizedText is the canonical form of an inbound message plus the
// intent signal tags detected while normalizing.
type NormalizedText struct {
	Text string
	Tags []string
}

// Normalizer canonicalizes informal Brazilian Portuguese chat text. It is a
// pure function over its dictionaries: it never fails and unrecognized
// tokens pass through unchanged.
type Normalizer struct {
	slang     map[string]string
	spelling  map[string]string
	vocab     []string
	protected map[string]struct{}
	signals   []signalRule
}

type signalRule struct {
	tag      string
	keywords []string
	phrases  []string
}

// NewNormalizer builds a normalizer with the built-in slang, spelling and
// domain vocabulary tables.
func NewNormalizer() *Normalizer {
	n := &Normalizer{
		slang:    defaultSlang,
		spelling: defaultSpelling,
		vocab:    defaultVocabulary,
		signals:  defaultSignals,
	}

	// Every token the tables can emit must be immune to fuzzy correction,
	// otherwise a second pass could rewrite a first-pass output.
	n.protected = make(map[string]struct{}, len(n.vocab)*2)
	for _, w := range n.vocab {
		n.protected[w] = struct{}{}
	}
	for _, out := range n.slang {
		for _, w := range strings.Fields(out) {
			n.protected[w] = struct{}{}
		}
	}
	for _, out := range n.spelling {
		for _, w := range strings.Fields(out) {
			n.protected[w] = struct{}{}
		}
	}
	for _, w := range portugueseStopwords {
		n.protected[w] = struct{}{}
	}
	return n
}

// Normalize lowercases, strips disallowed punctuation, collapses character
// runs, expands slang and corrects spelling. Idempotent:
// Normalize(Normalize(x).Text).Text == Normalize(x).Text.
func (n *Normalizer) Normalize(raw string) NormalizedText {
	text := strings.ToLower(strings.TrimSpace(raw))
	text = stripPunctuation(text)
	text = collapseRuns(text)

	tokens := strings.Fields(text)
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		for _, corrected := range strings.Fields(n.correctToken(tok)) {
			out = append(out, corrected)
		}
	}

	normalized := strings.Join(out, " ")
	return NormalizedText{
		Text: normalized,
		Tags: n.detectSignals(normalized),
	}
}

func (n *Normalizer) correctToken(tok string) string {
	if rep, ok := n.slang[tok]; ok {
		return rep
	}
	if rep, ok := n.spelling[tok]; ok {
		return rep
	}
	if _, ok := n.protected[tok]; ok {
		return tok
	}
	// Nearest-neighbor correction against the domain vocabulary. Short
	// tokens are left alone: with a distance budget of 2 almost anything
	// three runes long would "match" something.
	if len([]rune(tok)) < 4 {
		return tok
	}
	best, bestDist := "", 3
	for _, w := range n.vocab {
		d := levenshtein(tok, w)
		if d < bestDist || (d == bestDist && best != "" && len(w) < len(best)) {
			best, bestDist = w, d
		}
	}
	if best != "" && bestDist <= 2 {
		return best
	}
	return tok
}

func (n *Normalizer) detectSignals(text string) []string {
	var tags []string
	padded := " " + text + " "
	for _, rule := range n.signals {
		matched := false
		for _, kw := range rule.keywords {
			if strings.Contains(padded, " "+kw+" ") {
				matched = true
				break
			}
		}
		if !matched {
			for _, ph := range rule.phrases {
				if strings.Contains(text, ph) {
					matched = true
					break
				}
			}
		}
		if matched {
			tags = append(tags, rule.tag)
		}
	}
	return tags
}

// stripPunctuation keeps letters, digits, spaces, currency symbols and the
// separators that appear inside monetary values ("r$ 1.234,56").
func stripPunctuation(text string) string {
	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text))
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == '$':
			b.WriteRune(r)
		case (r == '.' || r == ',') && i > 0 && i < len(runes)-1 &&
			unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]):
			b.WriteRune(r)
		case r == '-' && i > 0 && i < len(runes)-1 &&
			unicode.IsLetter(runes[i-1]) && unicode.IsLetter(runes[i+1]):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return b.String()
}

// collapseRuns reduces runs of 3+ repeated runes to exactly 2.
func collapseRuns(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	var prev rune
	run := 0
	for _, r := range text {
		if r == prev {
			run++
		} else {
			prev, run = r, 1
		}
		if run <= 2 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// levenshtein computes the edit distance between two strings, rune-wise.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

var defaultSlang = map[string]string{
	"vc":   "você",
	"vcs":  "vocês",
	"q":    "que",
	"pq":   "porque",
	"tb":   "também",
	"tbm":  "também",
	"blz":  "beleza",
	"vlw":  "valeu",
	"obg":  "obrigado",
	"obgd": "obrigado",
	"hj":   "hoje",
	"amnh": "amanhã",
	"msg":  "mensagem",
	"pgto": "pagamento",
	"pgt":  "pagamento",
	"cmg":  "comigo",
	"nao":  "não",
	"ja":   "já",
	"eh":   "é",
	"ta":   "tá",
	"to":   "estou",
	"tou":  "estou",
	"oii":  "oi",
	"kk":   "",
	"rs":   "",
	"mt":   "muito",
	"mto":  "muito",
	"dnv":  "de novo",
	"qdo":  "quando",
	"qto":  "quanto",
	"pfv":  "por favor",
	"pfvr": "por favor",
	"pff":  "por favor",
	"agr":  "agora",
	"dps":  "depois",
}

var defaultSpelling = map[string]string{
	"pagei":      "paguei",
	"voce":       "você",
	"divida":     "dívida",
	"negosiar":   "negociar",
	"vensimento": "vencimento",
	"parcelah":   "parcelar",
	"dinhero":    "dinheiro",
	"credito":    "crédito",
	"debito":     "débito",
	"cartao":     "cartão",
	"juro":       "juros",
}

// defaultVocabulary is the domain word list used for nearest-neighbor
// correction. Corrections always land on one of these words.
var defaultVocabulary = []string{
	"pagar", "paguei", "pagamento", "pago",
	"boleto", "fatura", "conta", "carnê",
	"parcela", "parcelar", "parcelamento",
	"negociar", "negociação", "acordo", "desconto",
	"dívida", "débito", "valor", "vencimento", "vencida",
	"atraso", "atrasado", "juros", "cobrança",
	"comprovante", "pix", "cartão", "dinheiro", "transferência",
	"banco", "agência", "segunda", "via",
	"desempregado", "desemprego", "salário", "receber",
	"prazo", "hoje", "amanhã", "semana", "quando", "quanto",
	"muito", "pouco", "obrigado", "você", "quero", "posso", "ajuda",
	"preocupado", "nervoso", "absurdo", "não", "sim",
}

var portugueseStopwords = []string{
	"de", "do", "da", "dos", "das", "o", "a", "os", "as", "e", "é", "em",
	"um", "uma", "para", "pra", "com", "meu", "minha", "seu", "sua", "que",
	"não", "sim", "eu", "me", "mim", "se", "já", "ao", "à", "no", "na",
	"por", "mais", "menos", "bem", "mal", "foi", "ser", "estou", "está",
	"tá", "vou", "ter", "tenho", "como", "mas", "ou", "porque", "também",
	"isso", "esse", "essa", "este", "aqui", "lá", "dia", "bom", "boa",
	"noite", "tarde", "olá", "oi", "tudo", "tchau", "até", "logo", "favor",
	"beleza", "valeu", "agora", "depois", "novo", "nova",
	"pode", "podem", "quer", "mandar", "manda", "enviar", "envia",
	"falar", "falo", "fala", "fazer", "faço", "faz", "ver", "vejo",
	"sei", "saber", "preciso", "precisa", "consigo", "consegue",
	"ainda", "nada", "coisa", "então", "assim", "outro", "outra",
	"mesmo", "mesma", "gente", "senhor", "senhora", "obrigada",
}

var defaultSignals = []signalRule{
	{
		tag:      "payment-confirmed-signal",
		keywords: []string{"paguei", "comprovante"},
		phrases:  []string{"já paguei", "pagamento feito", "acabei de pagar", "fiz o pagamento"},
	},
	{
		tag:      "negotiation-signal",
		keywords: []string{"parcelar", "parcelamento", "negociar", "acordo", "desconto"},
	},
	{
		tag:      "hardship-signal",
		keywords: []string{"desempregado", "desemprego"},
		phrases:  []string{"sem dinheiro", "não tenho como pagar", "não tenho dinheiro", "perdi meu emprego"},
	},
	{
		tag:     "dispute-signal",
		phrases: []string{"não reconheço", "não comprei", "não contratei", "cobrança indevida", "já cancelei"},
	},
	{
		tag:      "billing-doc-signal",
		keywords: []string{"boleto", "fatura", "carnê"},
		phrases:  []string{"segunda via"},
	},
}
