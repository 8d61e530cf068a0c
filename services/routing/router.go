// Package routing decides which AI backend answers a request. The decision
// combines the classifier's category, the registry's affinity table and each
// backend's availability, with a single-hop fallback substitution when the
// preferred backend is down.
package routing

import (
	"errors"
	"fmt"

	"github.com/serenova/aicore/services/classifier"
	"github.com/serenova/aicore/services/providers"
)

// ErrNoProviderAvailable is returned when no backend can serve the request
var ErrNoProviderAvailable = errors.New("no provider available")

// Decision is the outcome of routing one inbound query. ChosenProvider is
// overwritten at most once, by fallback substitution; Reason is only ever
// appended to, preserving the audit trail.
type Decision struct {
	ChosenProvider providers.ID        `json:"chosen_provider"`
	Category       classifier.Category `json:"category"`
	Reason         string              `json:"reason"`
	Available      bool                `json:"available"`
}

// appendReason extends the audit trail without replacing the original reason
func (d *Decision) appendReason(msg string) {
	if d.Reason == "" {
		d.Reason = msg
		return
	}
	d.Reason = d.Reason + "; " + msg
}

// Router produces routing decisions. It is a pure decision component: it
// performs no I/O and records nothing; audit logging is the caller's job.
type Router struct {
	registry *providers.Registry
}

// NewRouter creates a router over the given registry
func NewRouter(registry *providers.Registry) *Router {
	return &Router{registry: registry}
}

// Decide routes a query to a backend.
//
// The preferred backend is the one with the best affinity rank for the
// query's category. When it is unavailable the configured fallback is
// substituted, exactly one hop: the fallback's own fallback is never
// attempted automatically. When neither is available the decision comes
// back with Available=false and the caller must surface a service
// unavailable error; this is never silently swallowed.
func (r *Router) Decide(text string, priorMessageCount int) *Decision {
	category := classifier.Classify(text, priorMessageCount)

	primary := r.preferredFor(category)
	decision := &Decision{
		ChosenProvider: primary,
		Category:       category,
	}
	decision.appendReason(fmt.Sprintf("category %s prefers %s", category, primary))

	if r.registry.IsAvailable(primary) {
		decision.Available = true
		return decision
	}

	if fallback, ok := r.registry.Fallback(primary); ok && r.registry.IsAvailable(fallback) {
		decision.ChosenProvider = fallback
		decision.Available = true
		decision.appendReason(fmt.Sprintf("fallback to %s because %s is unavailable", fallback, primary))
		return decision
	}

	decision.Available = false
	decision.appendReason(fmt.Sprintf("%s and its fallback are unavailable", primary))
	return decision
}

// preferredFor returns the backend with the best affinity rank for the
// category, ignoring availability. Availability and fallback substitution
// are handled by Decide so the audit trail names the preferred backend even
// when it is down.
func (r *Router) preferredFor(category classifier.Category) providers.ID {
	best := providers.ID("")
	bestRank := -1
	for _, id := range r.registry.List() {
		rank := r.registry.AffinityRank(id, category)
		if bestRank == -1 || rank < bestRank {
			best = id
			bestRank = rank
		}
	}
	return best
}
