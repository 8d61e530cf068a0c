package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_Categories(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected Category
	}{
		{"emotional portuguese", "Estou exausta e sem dormir", Emotional},
		{"emotional english", "I feel so anxious and overwhelmed lately", Emotional},
		{"research portuguese", "Quais as últimas notícias sobre sono?", Research},
		{"research english", "Any recent studies on meditation?", Research},
		{"trend", "o que está bombando no tiktok hoje", Trend},
		{"technical portuguese", "meu código dá erro de compilação", Technical},
		{"technical english", "why does this function throw a bug", Technical},
		{"generic", "me conta uma receita de bolo", Generic},
		{"empty", "", Generic},
		{"case insensitive", "ESTOU MUITO TRISTE HOJE", Emotional},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.text, 0))
		})
	}
}

func TestClassify_PriorityOrder(t *testing.T) {
	t.Run("emotional wins over technical", func(t *testing.T) {
		got := Classify("estou triste porque meu código não compila", 0)
		assert.Equal(t, Emotional, got)
	})

	t.Run("emotional wins over research", func(t *testing.T) {
		got := Classify("I'm exhausted, any studies on burnout?", 0)
		assert.Equal(t, Emotional, got)
	})

	t.Run("research wins over trend", func(t *testing.T) {
		got := Classify("latest research on viral trends", 0)
		assert.Equal(t, Research, got)
	})

	t.Run("trend wins over technical", func(t *testing.T) {
		got := Classify("is this javascript framework trending?", 0)
		assert.Equal(t, Trend, got)
	})

	t.Run("order contract", func(t *testing.T) {
		assert.Equal(t, []Category{Emotional, Research, Trend, Technical, Generic}, PriorityOrder)
	})
}

func TestClassify_LongConversationBias(t *testing.T) {
	// Weak signal only: no strong emotional keyword present.
	weak := "hoje foi um dia difícil demais"

	t.Run("short conversation stays generic", func(t *testing.T) {
		assert.Equal(t, Generic, Classify(weak, 0))
		assert.Equal(t, Generic, Classify(weak, 10))
	})

	t.Run("long conversation becomes emotional", func(t *testing.T) {
		assert.Equal(t, Emotional, Classify(weak, 11))
		assert.Equal(t, Emotional, Classify(weak, 50))
	})

	t.Run("bias never overrides a strong match", func(t *testing.T) {
		// Technical keyword plus weak emotional term in a long conversation:
		// strong categories are checked first.
		got := Classify("esse bug está pesado demais", 20)
		assert.Equal(t, Technical, got)
	})
}
