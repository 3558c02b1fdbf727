package identity

import (
	"sort"
)

// Registry is the static logical name -> address/identifier mapping.
type Registry struct {
	entries map[string]string
}

func NewRegistry(entries map[string]string) *Registry {
	copied := make(map[string]string, len(entries))
	for k, v := range entries {
		copied[k] = v
	}
	return &Registry{entries: copied}
}

func (r *Registry) Lookup(name string) (string, bool) {
	v, ok := r.entries[name]
	return v, ok
}

type Entry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// All returns every mapping sorted by name.
func (r *Registry) All() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for k, v := range r.entries {
		out = append(out, Entry{Name: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
