package providers

import (
	"context"
	"testing"

	"github.com/serenova/aicore/config"
	"github.com/serenova/aicore/services/classifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider is a minimal Provider for registry tests
type stubProvider struct {
	id        ID
	available bool
}

func (s *stubProvider) ID() ID                   { return s.id }
func (s *stubProvider) Name() string             { return string(s.id) }
func (s *stubProvider) IsAvailable() bool        { return s.available }
func (s *stubProvider) CostPer1KTokens() float64 { return 0.001 }

func (s *stubProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	return &CompletionResponse{Text: "stub", Provider: s.id}, nil
}

func newStubRegistry(t *testing.T, available ...ID) *Registry {
	t.Helper()
	avail := make(map[ID]bool, len(available))
	for _, id := range available {
		avail[id] = true
	}
	list := make([]Provider, 0, 5)
	for _, id := range []ID{OpenAI, Anthropic, Gemini, Perplexity, Grok} {
		list = append(list, &stubProvider{id: id, available: avail[id]})
	}
	r, err := NewRegistry(list)
	require.NoError(t, err)
	return r
}

func TestNewRegistryWithFallbacks_CycleDetection(t *testing.T) {
	list := []Provider{
		&stubProvider{id: OpenAI, available: true},
		&stubProvider{id: Anthropic, available: true},
	}

	t.Run("direct cycle rejected", func(t *testing.T) {
		_, err := NewRegistryWithFallbacks(list, map[ID]ID{
			OpenAI:    Anthropic,
			Anthropic: OpenAI,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCyclicFallback)
	})

	t.Run("self loop rejected", func(t *testing.T) {
		_, err := NewRegistryWithFallbacks(list, map[ID]ID{OpenAI: OpenAI})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCyclicFallback)
	})

	t.Run("longer cycle rejected", func(t *testing.T) {
		_, err := NewRegistryWithFallbacks(list, map[ID]ID{
			OpenAI:    Gemini,
			Gemini:    Anthropic,
			Anthropic: OpenAI,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCyclicFallback)
	})

	t.Run("acyclic chain accepted", func(t *testing.T) {
		r, err := NewRegistryWithFallbacks(list, map[ID]ID{
			Anthropic: OpenAI,
			OpenAI:    Gemini,
		})
		require.NoError(t, err)
		require.NotNil(t, r)
	})
}

func TestRegistry_Get(t *testing.T) {
	r := newStubRegistry(t, OpenAI)

	t.Run("registered provider", func(t *testing.T) {
		p, err := r.Get(OpenAI)
		require.NoError(t, err)
		assert.Equal(t, OpenAI, p.ID())
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := r.Get(ID("mistral"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrProviderNotFound)
	})
}

func TestRegistry_List_PriorityOrder(t *testing.T) {
	r := newStubRegistry(t)
	assert.Equal(t, []ID{OpenAI, Anthropic, Gemini, Perplexity, Grok}, r.List())
}

func TestRegistry_AffinityRank(t *testing.T) {
	r := newStubRegistry(t)

	t.Run("preferred categories are ranked in order", func(t *testing.T) {
		assert.Equal(t, 0, r.AffinityRank(OpenAI, classifier.Technical))
		assert.Equal(t, 1, r.AffinityRank(OpenAI, classifier.Generic))
		assert.Equal(t, 0, r.AffinityRank(Anthropic, classifier.Emotional))
		assert.Equal(t, 0, r.AffinityRank(Perplexity, classifier.Research))
		assert.Equal(t, 1, r.AffinityRank(Perplexity, classifier.Trend))
		assert.Equal(t, 0, r.AffinityRank(Grok, classifier.Trend))
	})

	t.Run("unlisted category is usable but last", func(t *testing.T) {
		assert.Equal(t, notPreferredRank, r.AffinityRank(Grok, classifier.Emotional))
		assert.Equal(t, notPreferredRank, r.AffinityRank(OpenAI, classifier.Research))
	})
}

func TestRegistry_BestForCategory(t *testing.T) {
	t.Run("picks affinity match among available", func(t *testing.T) {
		r := newStubRegistry(t, OpenAI, Anthropic, Perplexity)

		id, ok := r.BestForCategory(classifier.Emotional)
		require.True(t, ok)
		assert.Equal(t, Anthropic, id)

		id, ok = r.BestForCategory(classifier.Research)
		require.True(t, ok)
		assert.Equal(t, Perplexity, id)
	})

	t.Run("ties broken by priority order", func(t *testing.T) {
		// OpenAI and Anthropic both rank Generic second; OpenAI sits earlier
		// in the static priority order.
		r := newStubRegistry(t, OpenAI, Anthropic)
		id, ok := r.BestForCategory(classifier.Generic)
		require.True(t, ok)
		assert.Equal(t, OpenAI, id)
	})

	t.Run("falls back to any available provider", func(t *testing.T) {
		// Grok has no affinity for Emotional but is the only one up.
		r := newStubRegistry(t, Grok)
		id, ok := r.BestForCategory(classifier.Emotional)
		require.True(t, ok)
		assert.Equal(t, Grok, id)
	})

	t.Run("no provider available", func(t *testing.T) {
		r := newStubRegistry(t)
		_, ok := r.BestForCategory(classifier.Generic)
		assert.False(t, ok)
	})
}

func TestRegistry_Fallback(t *testing.T) {
	r := newStubRegistry(t)

	fb, ok := r.Fallback(Anthropic)
	require.True(t, ok)
	assert.Equal(t, OpenAI, fb)

	fb, ok = r.Fallback(OpenAI)
	require.True(t, ok)
	assert.Equal(t, Gemini, fb)

	_, ok = r.Fallback(Gemini)
	assert.False(t, ok)
}

func TestNewRegistryFromConfig(t *testing.T) {
	cfg := config.ProvidersConfig{
		OpenAI: config.ProviderConfig{APIKey: "sk-test"},
	}

	r, err := NewRegistryFromConfig(cfg)
	require.NoError(t, err)

	// All five backends are registered; only the configured one is available.
	assert.Len(t, r.List(), 5)
	assert.True(t, r.IsAvailable(OpenAI))
	assert.False(t, r.IsAvailable(Anthropic))
	assert.False(t, r.IsAvailable(Gemini))
	assert.False(t, r.IsAvailable(Perplexity))
	assert.False(t, r.IsAvailable(Grok))
}
