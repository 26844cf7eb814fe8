// Package phase runs an ordered plan of load phases, one after another,
// against the same target.
package phase

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"octapulse/internal/core"
)

var (
	// ErrInvariant means fewer or more outcomes were recorded than
	// operations were issued. It indicates a defect, not a target problem.
	ErrInvariant = errors.New("recorded outcomes do not match issued operations")

	// ErrUnknownKind is returned when a phase names a kind with no builder.
	ErrUnknownKind = errors.New("unknown phase kind")
)

// Built-in phase kinds.
const (
	KindRead  = "read"
	KindWrite = "write"
	KindGet   = "get"
)

// Spec describes a phase before its factory is built.
type Spec struct {
	Name      string
	Kind      string
	Path      string // request path template, kind specific
	Requests  int    // 0 = the run's total
	ImageSize int    // write payload edge in pixels, 0 = default
	Data      string // CSV or JSON rows exposed to Path as ${data.<column>}
	DataMode  string // sequential (default) or random
}

// DefaultSpecs is the plan used when none is configured: cache-miss reads
// followed by uploads.
func DefaultSpecs() []Spec {
	return []Spec{
		{Name: KindRead, Kind: KindRead},
		{Name: KindWrite, Kind: KindWrite},
	}
}

// Phase is a named factory ready to be dispatched.
type Phase struct {
	Name     string
	Requests int
	Factory  core.Factory
}

// Builder turns a Spec into an operation factory for cfg.
type Builder func(spec Spec, cfg core.RunConfig) (core.Factory, error)

// Registry maps phase kinds to builders.
type Registry map[string]Builder

// Kinds returns the registered kinds, sorted.
func (r Registry) Kinds() []string {
	kinds := make([]string, 0, len(r))
	for k := range r {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Build resolves every spec. It fails on the first unknown kind or builder
// error.
func (r Registry) Build(specs []Spec, cfg core.RunConfig) ([]Phase, error) {
	phases := make([]Phase, 0, len(specs))
	for _, s := range specs {
		b, ok := r[s.Kind]
		if !ok {
			return nil, fmt.Errorf("phase %q: %w %q (known: %s)",
				s.Name, ErrUnknownKind, s.Kind, strings.Join(r.Kinds(), ", "))
		}
		f, err := b(s, cfg)
		if err != nil {
			return nil, fmt.Errorf("phase %q: %w", s.Name, err)
		}
		name := s.Name
		if name == "" {
			name = s.Kind
		}
		phases = append(phases, Phase{Name: name, Requests: s.Requests, Factory: f})
	}
	return phases, nil
}

// Select keeps the specs whose name is in names, in plan order. An empty
// names keeps everything.
func Select(specs []Spec, names []string) ([]Spec, error) {
	if len(names) == 0 {
		return specs, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	out := make([]Spec, 0, len(names))
	for _, s := range specs {
		name := s.Name
		if name == "" {
			name = s.Kind
		}
		if want[name] {
			out = append(out, s)
			delete(want, name)
		}
	}
	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for n := range want {
			missing = append(missing, n)
		}
		sort.Strings(missing)
		return nil, fmt.Errorf("no such phase: %s", strings.Join(missing, ", "))
	}
	return out, nil
}
