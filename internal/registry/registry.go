// Package registry holds the static table of transformation plugins and the
// alias table used to normalize format names before lookup.
//
// A Registry is immutable once New returns and may be shared between
// goroutines without locking.
package registry

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAmbiguousPlugin = errors.New("registry: ambiguous plugin")
	ErrInvalidAlias    = errors.New("registry: invalid alias table")
	ErrEmptyRegistry   = errors.New("registry: no plugins")
)

// PluginNotFoundError is returned by Resolve when no descriptor converts the
// requested pair. From and To are the names as the caller gave them.
type PluginNotFoundError struct {
	From string
	To   string
}

func (e *PluginNotFoundError) Error() string {
	return fmt.Sprintf("no plugin converts %q to %q", e.From, e.To)
}

// AliasTable maps a canonical format name to its accepted synonyms.
type AliasTable map[string][]string

type Registry struct {
	descs    []*Descriptor
	byName   map[string]*Descriptor
	synonyms map[string]string
}

// New validates descs and aliases and returns the registry. Name sets are
// case-folded and alias-normalized up front so lookups never branch on shape.
func New(descs []Descriptor, aliases AliasTable) (*Registry, error) {
	if len(descs) == 0 {
		return nil, ErrEmptyRegistry
	}
	syn, err := buildSynonyms(aliases)
	if err != nil {
		return nil, err
	}
	r := &Registry{
		byName:   make(map[string]*Descriptor, len(descs)),
		synonyms: syn,
	}
	for i := range descs {
		d := descs[i]
		if err := r.add(&d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func buildSynonyms(aliases AliasTable) (map[string]string, error) {
	canon := make(map[string]bool, len(aliases))
	for k := range aliases {
		canon[fold(k)] = true
	}
	syn := map[string]string{}
	for k, list := range aliases {
		key := fold(k)
		for _, s := range list {
			s = fold(s)
			if s == "" || s == key {
				continue
			}
			if canon[s] {
				return nil, fmt.Errorf("%w: synonym %q of %q is itself canonical", ErrInvalidAlias, s, key)
			}
			if prev, ok := syn[s]; ok && prev != key {
				return nil, fmt.Errorf("%w: synonym %q claimed by %q and %q", ErrInvalidAlias, s, prev, key)
			}
			syn[s] = key
		}
	}
	return syn, nil
}

func (r *Registry) add(d *Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("registry: plugin without a name")
	}
	if _, dup := r.byName[d.Name]; dup {
		return fmt.Errorf("%w: name %q registered twice", ErrAmbiguousPlugin, d.Name)
	}
	if d.Compile == nil {
		return fmt.Errorf("registry: plugin %q has no compile function", d.Name)
	}
	d.from = r.normalizeSet(d.From)
	d.to = r.normalizeSet(d.To)
	if len(d.from) == 0 || len(d.to) == 0 {
		return fmt.Errorf("registry: plugin %q needs input and output names", d.Name)
	}
	d.From = d.from.sorted()
	d.To = d.to.sorted()
	for _, res := range d.Dependencies {
		if err := res.validate(); err != nil {
			return fmt.Errorf("plugin %q: %w", d.Name, err)
		}
	}
	for _, other := range r.descs {
		if from, to, ok := overlap(d, other); ok {
			return fmt.Errorf("%w: %q and %q both convert %q to %q", ErrAmbiguousPlugin, other.Name, d.Name, from, to)
		}
	}
	r.descs = append(r.descs, d)
	r.byName[d.Name] = d
	return nil
}

func overlap(a, b *Descriptor) (string, string, bool) {
	for from := range a.from {
		if !b.from.has(from) {
			continue
		}
		for to := range a.to {
			if b.to.has(to) {
				return from, to, true
			}
		}
	}
	return "", "", false
}

func (r *Registry) normalizeSet(names []string) set {
	s := make(set, len(names))
	for _, n := range names {
		if n = r.Normalize(n); n != "" {
			s[n] = struct{}{}
		}
	}
	return s
}

// Normalize case-folds name and rewrites a known synonym to its canonical key.
// Normalize(Normalize(x)) == Normalize(x).
func (r *Registry) Normalize(name string) string {
	n := fold(name)
	if c, ok := r.synonyms[n]; ok {
		return c
	}
	return n
}

// Resolve returns the unique descriptor converting from into to.
func (r *Registry) Resolve(from, to string) (*Descriptor, error) {
	nf, nt := r.Normalize(from), r.Normalize(to)
	for _, d := range r.descs {
		if d.Accepts(nf, nt) {
			return d, nil
		}
	}
	return nil, &PluginNotFoundError{From: from, To: to}
}

// Descriptors lists the registered plugins in registration order.
func (r *Registry) Descriptors() []*Descriptor {
	return append([]*Descriptor(nil), r.descs...)
}

func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Aliases returns the synonyms known for canonical, sorted.
func (r *Registry) Aliases(canonical string) []string {
	c := fold(canonical)
	s := set{}
	for syn, key := range r.synonyms {
		if key == c {
			s[syn] = struct{}{}
		}
	}
	return s.sorted()
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
