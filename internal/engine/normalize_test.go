package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCanonicalizesInformalText(t *testing.T) {
	n := NewNormalizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "lowercase and punctuation strip",
			input: "JÁ Paguei!!! O Boleto???",
			want:  "já paguei o boleto",
		},
		{
			name:  "slang expansion",
			input: "vc pode me mandar a 2 via hj pfv",
			want:  "você pode me mandar a 2 via hoje por favor",
		},
		{
			name:  "repeated character collapse plus correction",
			input: "nãooo quero pagar issooo",
			want:  "não quero pagar issoo",
		},
		{
			name:  "spelling table",
			input: "pagei a divida no debito",
			want:  "paguei a dívida no débito",
		},
		{
			name:  "fuzzy correction against domain vocabulary",
			input: "quero parselar o boletu",
			want:  "quero parcelar o boleto",
		},
		{
			name:  "monetary value survives",
			input: "o valor é R$ 1.234,56?",
			want:  "o valor é r$ 1.234,56",
		},
		{
			name:  "unknown tokens pass through",
			input: "xyzzy plugh",
			want:  "xyzzy plugh",
		},
		{
			name:  "laughter dropped",
			input: "kkkk tá bom",
			want:  "tá bom",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := n.Normalize(tc.input)
			assert.Equal(t, tc.want, got.Text)
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	n := NewNormalizer()

	inputs := []string{
		"JÁ Paguei!!! O Boleto???",
		"vc pode me mandar a 2 via hj pfv",
		"nãooo quero pagar issooo",
		"quero parselar o boletu, to desempregadoo",
		"vlw blz, dps falo cmg mesmo",
		"o valor é R$ 1.234,56?",
		"",
		"   ",
		"kkkkkk que absurdooo",
	}

	for _, in := range inputs {
		first := n.Normalize(in)
		second := n.Normalize(first.Text)
		assert.Equal(t, first.Text, second.Text, "input %q", in)
	}
}

func TestNormalizeEmitsSignalTags(t *testing.T) {
	n := NewNormalizer()

	tests := []struct {
		input string
		tag   string
	}{
		{"já paguei o boleto", "payment-confirmed-signal"},
		{"quero parcelar a dívida", "negotiation-signal"},
		{"estou desempregado, sem dinheiro", "hardship-signal"},
		{"não reconheço essa cobrança", "dispute-signal"},
		{"me manda a segunda via da fatura", "billing-doc-signal"},
	}

	for _, tc := range tests {
		got := n.Normalize(tc.input)
		assert.Contains(t, got.Tags, tc.tag, "input %q", tc.input)
	}

	neutral := n.Normalize("bom dia, tudo bem?")
	assert.Empty(t, neutral.Tags)
}

func TestNormalizeNeverFails(t *testing.T) {
	n := NewNormalizer()

	for _, in := range []string{"", "    ", "!!!", "🙂🙂🙂", "a"} {
		assert.NotPanics(t, func() { n.Normalize(in) })
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"boleto", "boleto", 0},
		{"boletu", "boleto", 1},
		{"parcelr", "parcelar", 1},
		{"pix", "pagar", 5},
		{"ação", "acao", 2},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, levenshtein(tc.a, tc.b), "%q vs %q", tc.a, tc.b)
	}
}
