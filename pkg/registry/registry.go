// Package registry holds the static list of RAG backends the gateway can reach.
package registry

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/soundprediction/kodabi-gateway/pkg/errs"
)

// BackendEntry is the network location of one named RAG backend.
type BackendEntry struct {
	Name string `json:"rag_name"`
	Host string `json:"rag_ip"`
	Port string `json:"rag_port"`
}

// Address returns host:port.
func (e BackendEntry) Address() string {
	return fmt.Sprintf("%s:%s", e.Host, e.Port)
}

// String returns a human readable description of the entry.
func (e BackendEntry) String() string {
	return fmt.Sprintf("%s: [%s:%s]", e.Name, e.Host, e.Port)
}

// Registry is an ordered, read-only list of backends. It is safe for
// concurrent use because nothing mutates it after construction.
type Registry struct {
	entries []BackendEntry
}

// New builds a registry from entries, keeping their order.
func New(entries ...BackendEntry) *Registry {
	cp := make([]BackendEntry, len(entries))
	copy(cp, entries)
	return &Registry{entries: cp}
}

// Load reads and parses the registry document at path.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Handler(errs.ReadFileFailed, err, "path: %s, error: %v", path, err)
	}
	reg, err := Parse(data)
	if err != nil {
		return nil, errs.Handler(errs.FileJSONParseFailed, err, "path: %s, error: %v", path, err)
	}
	return reg, nil
}

type document struct {
	Services *[]wireEntry `json:"services"`
}

type wireEntry struct {
	Name *string `json:"rag_name"`
	Host *string `json:"rag_ip"`
	Port *string `json:"rag_port"`
}

// Parse decodes a registry document of the form
// {"services":[{"rag_name":..,"rag_ip":..,"rag_port":..}]}.
// Every field is required; a document without services is rejected.
func Parse(data []byte) (*Registry, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Services == nil {
		return nil, fmt.Errorf("missing field `services`")
	}

	entries := make([]BackendEntry, 0, len(*doc.Services))
	for i, w := range *doc.Services {
		switch {
		case w.Name == nil:
			return nil, fmt.Errorf("services[%d]: missing field `rag_name`", i)
		case w.Host == nil:
			return nil, fmt.Errorf("services[%d]: missing field `rag_ip`", i)
		case w.Port == nil:
			return nil, fmt.Errorf("services[%d]: missing field `rag_port`", i)
		}
		entries = append(entries, BackendEntry{Name: *w.Name, Host: *w.Host, Port: *w.Port})
	}
	return &Registry{entries: entries}, nil
}

// FindByName returns the first entry called name.
func (r *Registry) FindByName(name string) (BackendEntry, bool) {
	if r == nil {
		return BackendEntry{}, false
	}
	for _, e := range r.entries {
		if e.Name == name {
			return e, true
		}
	}
	return BackendEntry{}, false
}

// Entries returns a copy of the entries in load order.
func (r *Registry) Entries() []BackendEntry {
	if r == nil {
		return nil
	}
	cp := make([]BackendEntry, len(r.entries))
	copy(cp, r.entries)
	return cp
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Validate reports every entry that cannot be dispatched to, and names that
// are shadowed by an earlier duplicate. Lookups do not depend on it.
func (r *Registry) Validate() error {
	var result *multierror.Error
	seen := make(map[string]int)
	for i, e := range r.Entries() {
		if e.Name == "" {
			result = multierror.Append(result, fmt.Errorf("services[%d]: empty rag_name", i))
		}
		if e.Host == "" {
			result = multierror.Append(result, fmt.Errorf("services[%d] %q: empty rag_ip", i, e.Name))
		}
		if e.Port == "" {
			result = multierror.Append(result, fmt.Errorf("services[%d] %q: empty rag_port", i, e.Name))
		}
		if first, ok := seen[e.Name]; ok {
			result = multierror.Append(result, fmt.Errorf("services[%d] %q: shadowed by services[%d]", i, e.Name, first))
			continue
		}
		seen[e.Name] = i
	}
	return result.ErrorOrNil()
}
