package hooks

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-marketplace-hooks/inbound"
	"github.com/goliatone/go-marketplace-hooks/pipeline"
)

// StepPack is a named group of handlers contributed by another module. Prefix
// handlers run before the default steps, Suffix handlers after persistence.
type StepPack struct {
	Name   string
	Prefix []inbound.Handler
	Suffix []inbound.Handler
}

// StepPacks collects step packs and turns them into builder options in name
// order, so the resulting chain does not depend on registration order.
type StepPacks struct {
	mu    sync.RWMutex
	packs map[string]StepPack
}

func NewStepPacks() *StepPacks {
	return &StepPacks{packs: map[string]StepPack{}}
}

func (p *StepPacks) Register(pack StepPack) error {
	if p == nil {
		return fmt.Errorf("hooks: step packs are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("hooks: step pack name is required")
	}
	if len(pack.Prefix) == 0 && len(pack.Suffix) == 0 {
		return fmt.Errorf("hooks: step pack %q has no handlers", name)
	}
	for _, handler := range append(append([]inbound.Handler(nil), pack.Prefix...), pack.Suffix...) {
		if handler == nil {
			return fmt.Errorf("hooks: step pack %q contains a nil handler", name)
		}
	}

	normalized := StepPack{
		Name:   name,
		Prefix: append([]inbound.Handler(nil), pack.Prefix...),
		Suffix: append([]inbound.Handler(nil), pack.Suffix...),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.packs[name]; exists {
		return fmt.Errorf("hooks: step pack %q already registered", name)
	}
	p.packs[name] = normalized
	return nil
}

func (p *StepPacks) Packs() []StepPack {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.packs))
	for name := range p.packs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]StepPack, 0, len(names))
	for _, name := range names {
		pack := p.packs[name]
		out = append(out, StepPack{
			Name:   pack.Name,
			Prefix: append([]inbound.Handler(nil), pack.Prefix...),
			Suffix: append([]inbound.Handler(nil), pack.Suffix...),
		})
	}
	return out
}

func (p *StepPacks) Names() []string {
	packs := p.Packs()
	names := make([]string, 0, len(packs))
	for _, pack := range packs {
		names = append(names, pack.Name)
	}
	return names
}

// Options returns one WithPrefix and one WithSuffix option covering every
// registered pack.
func (p *StepPacks) Options() []Option {
	var prefix, suffix []inbound.Handler
	for _, pack := range p.Packs() {
		prefix = append(prefix, pack.Prefix...)
		suffix = append(suffix, pack.Suffix...)
	}
	var opts []Option
	if len(prefix) > 0 {
		opts = append(opts, pipeline.WithPrefix(prefix...))
	}
	if len(suffix) > 0 {
		opts = append(opts, pipeline.WithSuffix(suffix...))
	}
	return opts
}
