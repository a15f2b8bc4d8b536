// Package reporter owns the enqueue/process contract for asynchronous
// conversion delivery. Providers snapshot configuration into payloads at
// enqueue time and reconcile the snapshot against live settings at process
// time, so conversions queued during a credential outage are never lost.
package reporter

import (
	"context"
	"time"
)

// Attribution credits a fraction of a conversion's value to one click hash.
type Attribution struct {
	Hash     string  `json:"hash"`
	Fraction float64 `json:"fraction"`
}

// Event is one completed attribution event from the upstream engine.
// ClickIDs maps click hash -> provider name -> provider click identifier.
type Event struct {
	Attributions []Attribution                `json:"attributions"`
	ClickIDs     map[string]map[string]string `json:"click_ids"`
	Campaigns    map[string]string            `json:"campaigns"`
	OccurredAt   time.Time                    `json:"occurred_at"`
}

// Provider is one reporting destination. Enqueue returns the job bodies the
// queue persists verbatim; Process reports whether delivery succeeded, and a
// false return hands recovery to the queue's retry/backoff.
type Provider interface {
	Name() string
	Enqueue(ctx context.Context, ev Event) ([]Payload, error)
	Process(ctx context.Context, p Payload) bool
}

// Registry is the ordered list of providers, built once at startup.
type Registry struct {
	providers []Provider
}

// NewRegistry creates a registry with the given providers, in order.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register inserts a provider, replacing any existing entry with the same
// name and preserving every other entry and the overall order. Registration
// is unconditional: a provider with broken credentials must still queue.
func (r *Registry) Register(p Provider) {
	for i, existing := range r.providers {
		if existing.Name() == p.Name() {
			r.providers[i] = p
			return
		}
	}
	r.providers = append(r.providers, p)
}

// Get returns the provider with the given name.
func (r *Registry) Get(name string) (Provider, bool) {
	for _, p := range r.providers {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// Providers returns the registered providers in registration order.
func (r *Registry) Providers() []Provider {
	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}
