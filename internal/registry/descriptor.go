package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Input is the single argument every compile function receives.
type Input struct {
	Code    string         `json:"code"`
	Options map[string]any `json:"options,omitempty"`
}

// CompileFunc is the transformation a plugin performs. Its semantics are
// opaque to the dispatcher.
type CompileFunc func(ctx context.Context, in Input) (any, error)

// ProviderURLs is one entry of a resource's provider catalog.
type ProviderURLs struct {
	Provider string   `json:"provider" yaml:"provider"`
	URLs     []string `json:"urls" yaml:"urls"`
}

// Resource is a named dependency retrievable from several providers. The
// order of Providers is the declaration order used for fallback.
type Resource struct {
	Name      string         `json:"name"`
	Providers []ProviderURLs `json:"providers"`
}

var ErrInvalidResource = errors.New("registry: invalid resource")

func (r Resource) validate() error {
	if len(r.Providers) == 0 {
		return fmt.Errorf("%w: %q has no providers", ErrInvalidResource, r.Name)
	}
	seen := map[string]bool{}
	for _, p := range r.Providers {
		if p.Provider == "" {
			return fmt.Errorf("%w: %q has an unnamed provider", ErrInvalidResource, r.Name)
		}
		if seen[p.Provider] {
			return fmt.Errorf("%w: %q lists provider %q twice", ErrInvalidResource, r.Name, p.Provider)
		}
		seen[p.Provider] = true
		if len(p.URLs) == 0 {
			return fmt.Errorf("%w: %q provider %q has no urls", ErrInvalidResource, r.Name, p.Provider)
		}
	}
	return nil
}

// URLs returns the catalog entry for provider.
func (r Resource) URLs(provider string) ([]string, bool) {
	for _, p := range r.Providers {
		if p.Provider == provider {
			return p.URLs, true
		}
	}
	return nil, false
}

// Descriptor declares one transformation plugin.
type Descriptor struct {
	Name         string
	From         []string
	To           []string
	Dependencies []Resource
	Async        bool
	Isolated     bool

	// Entry names the global function Compile calls in the environment the
	// dependencies were loaded into. Empty for plugins implemented in Go.
	Entry   string
	Compile CompileFunc

	from set
	to   set
}

// Accepts reports whether d converts the already normalized pair.
func (d *Descriptor) Accepts(from, to string) bool {
	return d.from.has(from) && d.to.has(to)
}

// Mode is "isolated" or "inline".
func (d *Descriptor) Mode() string {
	if d.Isolated {
		return "isolated"
	}
	return "inline"
}

type set map[string]struct{}

func (s set) has(k string) bool {
	_, ok := s[k]
	return ok
}

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
