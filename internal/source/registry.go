package source

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed adapters/*.yaml
var builtinFS embed.FS

// Registry holds adapters by platform key. It is populated once at startup
// and only read afterwards.
type Registry struct {
	adapters map[string]*Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]*Adapter)}
}

// LoadBuiltin returns a registry with the adapters shipped in the binary.
func LoadBuiltin() (*Registry, error) {
	r := NewRegistry()
	entries, err := fs.ReadDir(builtinFS, "adapters")
	if err != nil {
		return nil, fmt.Errorf("reading builtin adapters: %w", err)
	}
	for _, entry := range entries {
		name := path.Join("adapters", entry.Name())
		data, err := builtinFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		if err := r.Merge(data); err != nil {
			return nil, fmt.Errorf("loading %s: %w", name, err)
		}
	}
	return r, nil
}

// ParseAdapters decodes adapter YAML. A document is either a single adapter
// mapping or a mapping with an "adapters" list; several documents may be
// separated by "---".
func ParseAdapters(data []byte) ([]*Adapter, error) {
	var out []*Adapter
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var node yaml.Node
		if err := dec.Decode(&node); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("parsing adapters: %w", err)
		}

		var list struct {
			Adapters []*Adapter `yaml:"adapters"`
		}
		if err := node.Decode(&list); err != nil {
			return nil, fmt.Errorf("parsing adapters: %w", err)
		}
		if len(list.Adapters) > 0 {
			out = append(out, list.Adapters...)
			continue
		}

		var single Adapter
		if err := node.Decode(&single); err != nil {
			return nil, fmt.Errorf("parsing adapter: %w", err)
		}
		out = append(out, &single)
	}
	return out, nil
}

// Register validates a and adds it, replacing any adapter with the same key.
func (r *Registry) Register(a *Adapter) error {
	a.applyDefaults()
	if err := a.Validate(); err != nil {
		return err
	}
	if prev, ok := r.adapters[a.Key]; ok && a.buildURL == nil {
		a.buildURL = prev.buildURL
	}
	r.adapters[a.Key] = a
	return nil
}

// Merge parses data and registers every adapter in it.
func (r *Registry) Merge(data []byte) error {
	adapters, err := ParseAdapters(data)
	if err != nil {
		return err
	}
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			return err
		}
	}
	return nil
}

// LoadFile merges the adapters in a YAML file.
func (r *Registry) LoadFile(name string) error {
	data, err := os.ReadFile(name)
	if err != nil {
		return fmt.Errorf("reading adapters file: %w", err)
	}
	if err := r.Merge(data); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Get returns the adapter for key.
func (r *Registry) Get(key string) (*Adapter, bool) {
	a, ok := r.adapters[key]
	return a, ok
}

// Keys returns all platform keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Enabled returns the adapters that are not disabled, sorted by key.
func (r *Registry) Enabled() []*Adapter {
	var out []*Adapter
	for _, k := range r.Keys() {
		if a := r.adapters[k]; !a.Disabled {
			out = append(out, a)
		}
	}
	return out
}

// Disable marks the given platforms disabled. Unknown keys are an error.
func (r *Registry) Disable(keys ...string) error {
	for _, k := range keys {
		a, ok := r.adapters[k]
		if !ok {
			return fmt.Errorf("cannot disable unknown platform %q", k)
		}
		a.Disabled = true
	}
	return nil
}

// SetURLBuilder replaces the template-based search URL builder of key.
func (r *Registry) SetURLBuilder(key string, fn URLBuilder) error {
	a, ok := r.adapters[key]
	if !ok {
		return fmt.Errorf("unknown platform %q", key)
	}
	a.buildURL = fn
	return nil
}
