package plugin

import (
	"fmt"

	"github.com/dnws-project/dnws-go/pkg/logger"
)

// Registration binds a route prefix to a plugin and its phase flags.
type Registration struct {
	Prefix         string
	Identifier     string
	Plugin         Plugin
	PreProcessing  bool
	PostProcessing bool
}

func (r Registration) validate() error {
	supporter, ok := r.Plugin.(PhaseSupporter)
	if !ok {
		return nil
	}
	if r.PreProcessing && !supporter.Supports(PhasePreProcess) {
		return fmt.Errorf("plugin %q at %q: %w: %s", r.Identifier, r.Prefix, ErrUnsupportedPhase, PhasePreProcess)
	}
	if r.PostProcessing && !supporter.Supports(PhasePostProcess) {
		return fmt.Errorf("plugin %q at %q: %w: %s", r.Identifier, r.Prefix, ErrUnsupportedPhase, PhasePostProcess)
	}
	return nil
}

// Registry is the ordered, read-only set of registrations shared by every
// connection. Prefixes are unique.
type Registry struct {
	registrations []Registration
}

// NewRegistry builds a registry in the given order. A repeated prefix
// replaces the earlier registration in its original position.
func NewRegistry(regs ...Registration) *Registry {
	r := &Registry{}
	index := make(map[string]int, len(regs))
	for _, reg := range regs {
		if i, dup := index[reg.Prefix]; dup {
			logger.Warnf("plugin %s replaces %s at duplicate prefix %q", reg.Identifier, r.registrations[i].Identifier, reg.Prefix)
			r.registrations[i] = reg
			continue
		}
		index[reg.Prefix] = len(r.registrations)
		r.registrations = append(r.registrations, reg)
	}
	return r
}

// Len returns the number of registrations.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.registrations)
}

// Registrations returns a copy of the registrations in iteration order.
func (r *Registry) Registrations() []Registration {
	if r == nil {
		return nil
	}
	out := make([]Registration, len(r.registrations))
	copy(out, r.registrations)
	return out
}

// Each calls fn for every registration in iteration order, stopping at the first error.
func (r *Registry) Each(fn func(Registration) error) error {
	if r == nil {
		return nil
	}
	for _, reg := range r.registrations {
		if err := fn(reg); err != nil {
			return err
		}
	}
	return nil
}
