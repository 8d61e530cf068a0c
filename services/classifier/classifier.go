// Package classifier labels inbound queries with a category so the router
// can pick the backend best suited to answer them. Classification is a pure
// keyword heuristic; no model call is ever made.
package classifier

import "strings"

// Category is the classifier's label for a single request
type Category string

const (
	Emotional Category = "emotional"
	Research  Category = "research"
	Trend     Category = "trend"
	Technical Category = "technical"
	Generic   Category = "generic"
)

// PriorityOrder is the fixed tie-break order when a query matches more than
// one category. Emotional comes first: misrouting a distress signal to a
// technical-only backend is the worst failure mode, so emotional safety wins
// every tie. This ordering is a contract, not an implementation accident.
var PriorityOrder = []Category{Emotional, Research, Trend, Technical, Generic}

// longConversationThreshold is the prior-message count past which a weak
// emotional signal is enough to keep the conversation on the emotional track.
const longConversationThreshold = 10

// Vocabulary is bilingual (pt-BR first, then English) because the product's
// user base writes in both.
var keywords = map[Category][]string{
	Emotional: {
		"triste", "tristeza", "ansios", "ansiedade", "exaust", "cansad",
		"sem dormir", "insonia", "insônia", "sozinh", "deprimid", "depress",
		"chorar", "chorando", "medo", "angustia", "angústia", "estress",
		"desanimad", "sobrecarregad", "nao aguento", "não aguento",
		"anxious", "anxiety", "exhausted", "lonely", "hopeless", "overwhelmed",
		"burnout", "can't sleep", "cant sleep", "stressed", "sadness",
	},
	Research: {
		"pesquisa", "estudo", "noticia", "notícia", "ultimas", "últimas",
		"recente", "fonte", "evidencia", "evidência", "artigo cientifico",
		"latest", "news", "research", "study", "studies", "paper", "sources",
	},
	Trend: {
		"bombando", "viral", "tendencia", "tendência", "meme", "hype",
		"tiktok", "reels", "influencer", "trending", "trend", "moda agora",
	},
	Technical: {
		"codigo", "código", "funcao", "função", "erro", "programa", "compil",
		"code", "bug", "api", "function", "error", "debug", "deploy", "sql",
		"python", "javascript", "typescript", "regex", "stack trace",
	},
}

// weakEmotional are low-signal terms that only count once a conversation is
// already long, biasing toward emotional continuity.
var weakEmotional = []string{
	"dificil", "difícil", "pesado", "demais", "hard day", "tired", "rough",
}

// Classify determines the category of a single request. priorMessageCount is
// advisory: long conversations with a weak emotional signal stay emotional.
// The PriorityOrder contract is never violated by the bias.
func Classify(text string, priorMessageCount int) Category {
	lower := strings.ToLower(text)

	for _, cat := range PriorityOrder {
		if cat == Generic {
			break
		}
		if matchesAny(lower, keywords[cat]) {
			return cat
		}
	}

	if priorMessageCount > longConversationThreshold && matchesAny(lower, weakEmotional) {
		return Emotional
	}

	return Generic
}

func matchesAny(lower string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
