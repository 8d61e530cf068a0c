package providers

import (
	"errors"
	"fmt"

	"github.com/serenova/aicore/config"
	"github.com/serenova/aicore/services/classifier"
)

var (
	// ErrProviderNotFound is returned when a provider is not registered
	ErrProviderNotFound = errors.New("provider not found")

	// ErrCyclicFallback is returned when the fallback graph contains a cycle
	ErrCyclicFallback = errors.New("fallback chain contains a cycle")
)

// notPreferredRank is the affinity rank for a category a provider carries no
// affinity for: usable, but ranked after every explicit preference.
const notPreferredRank = 100

// priorityOrder is the fixed static tie-break order for provider selection
var priorityOrder = []ID{OpenAI, Anthropic, Gemini, Perplexity, Grok}

// affinities lists, per provider, the categories it is preferred for, best
// first. A category absent from a provider's list means "not preferred but
// usable".
var affinities = map[ID][]classifier.Category{
	OpenAI:     {classifier.Technical, classifier.Generic},
	Anthropic:  {classifier.Emotional, classifier.Generic},
	Gemini:     {classifier.Generic, classifier.Technical},
	Perplexity: {classifier.Research, classifier.Trend},
	Grok:       {classifier.Trend},
}

// fallbacks is the hand-curated provider substitution map. Each provider
// names at most one fallback; the configured graph must be acyclic. The
// router walks this exactly one hop.
var defaultFallbacks = map[ID]ID{
	Anthropic:  OpenAI,
	OpenAI:     Gemini,
	Perplexity: Gemini,
	Grok:       OpenAI,
}

// Registry holds the configured backend set with its capability metadata.
// It is built once at process startup and injected into the router and
// orchestrator; it has no mutable state after construction.
type Registry struct {
	providers map[ID]Provider
	fallbacks map[ID]ID
}

// NewRegistry creates a registry over the given providers using the default
// fallback chain. It fails if the fallback graph is cyclic.
func NewRegistry(list []Provider) (*Registry, error) {
	return NewRegistryWithFallbacks(list, defaultFallbacks)
}

// NewRegistryWithFallbacks creates a registry with a caller-supplied
// fallback map, verifying the configured graph is acyclic.
func NewRegistryWithFallbacks(list []Provider, fallbacks map[ID]ID) (*Registry, error) {
	if err := validateAcyclic(fallbacks); err != nil {
		return nil, err
	}

	r := &Registry{
		providers: make(map[ID]Provider, len(list)),
		fallbacks: fallbacks,
	}
	for _, p := range list {
		r.providers[p.ID()] = p
	}
	return r, nil
}

// NewRegistryFromConfig builds the full five-backend registry from
// configuration. Backends without credentials are still registered; their
// availability predicate reports false.
func NewRegistryFromConfig(cfg config.ProvidersConfig) (*Registry, error) {
	return NewRegistry([]Provider{
		NewOpenAI(cfg.OpenAI),
		NewAnthropic(cfg.Anthropic),
		NewGemini(cfg.Gemini),
		NewPerplexity(cfg.Perplexity),
		NewGrok(cfg.Grok),
	})
}

// validateAcyclic verifies no fallback chain loops back on itself
func validateAcyclic(fallbacks map[ID]ID) error {
	for start := range fallbacks {
		seen := map[ID]bool{start: true}
		current := start
		for {
			next, ok := fallbacks[current]
			if !ok {
				break
			}
			if seen[next] {
				return fmt.Errorf("%w: starting from %s", ErrCyclicFallback, start)
			}
			seen[next] = true
			current = next
		}
	}
	return nil
}

// Get retrieves a provider by ID
func (r *Registry) Get(id ID) (Provider, error) {
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, id)
	}
	return p, nil
}

// List returns the registered provider IDs in static priority order
func (r *Registry) List() []ID {
	ids := make([]ID, 0, len(r.providers))
	for _, id := range priorityOrder {
		if _, ok := r.providers[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// IsAvailable reports whether the provider's credential is configured.
// Unknown providers are never available.
func (r *Registry) IsAvailable(id ID) bool {
	p, ok := r.providers[id]
	return ok && p.IsAvailable()
}

// AffinityRank returns the provider's preference rank for a category.
// Lower is better; a category the provider carries no affinity for returns
// notPreferredRank, meaning usable but ranked last.
func (r *Registry) AffinityRank(id ID, category classifier.Category) int {
	for i, cat := range affinities[id] {
		if cat == category {
			return i
		}
	}
	return notPreferredRank
}

// Fallback returns the configured substitution for a provider, if any
func (r *Registry) Fallback(id ID) (ID, bool) {
	fb, ok := r.fallbacks[id]
	return fb, ok
}

// BestForCategory returns the available provider with the best affinity
// rank for the category, breaking ties by the static priority order. The
// second return is false when no provider is available at all.
func (r *Registry) BestForCategory(category classifier.Category) (ID, bool) {
	best := ID("")
	bestRank := notPreferredRank + 1
	for _, id := range priorityOrder {
		if !r.IsAvailable(id) {
			continue
		}
		if rank := r.AffinityRank(id, category); rank < bestRank {
			best = id
			bestRank = rank
		}
	}
	return best, best != ""
}
