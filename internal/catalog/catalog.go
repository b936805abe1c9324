// Package catalog is the relay's provider registry: a static table mapping
// logical model names to a provider and the provider's own model id.
//
// The table ships embedded as models.yaml and is loaded once at startup.
// There are no runtime mutations; adding a model is a change to the table.
package catalog

import (
	_ "embed"
	"fmt"
	"sort"

	"github.com/liammagee/six-authors-in-search-of-a-character/pkg/models"
	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var defaultTable []byte

// UnknownModelError is returned when a logical model is not in the table.
type UnknownModelError struct {
	Name string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("model %q not supported", e.Name)
}

// Catalog is an immutable logical-model lookup. Safe for concurrent use.
type Catalog struct {
	entries map[string]models.ModelEntry
	order   []string // table order
}

type tableFile struct {
	Models []models.ModelEntry `yaml:"models"`
}

// Default returns the catalog built from the embedded table.
func Default() *Catalog {
	c, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded table invalid: %v", err))
	}
	return c
}

// Parse builds a catalog from a YAML table.
func Parse(data []byte) (*Catalog, error) {
	var tf tableFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse model table: %w", err)
	}
	return New(tf.Models)
}

// New builds a catalog from entries. Names must be unique and every
// provider must be known.
func New(entries []models.ModelEntry) (*Catalog, error) {
	c := &Catalog{entries: make(map[string]models.ModelEntry, len(entries))}
	for _, e := range entries {
		if e.Name == "" || e.WireModelID == "" {
			return nil, fmt.Errorf("model entry %+v: name and model are required", e)
		}
		if !e.Provider.Valid() {
			return nil, fmt.Errorf("model %q: unknown provider %q", e.Name, e.Provider)
		}
		if _, dup := c.entries[e.Name]; dup {
			return nil, fmt.Errorf("model %q declared twice", e.Name)
		}
		c.entries[e.Name] = e
		c.order = append(c.order, e.Name)
	}
	return c, nil
}

// Resolve returns the entry for a logical model name.
func (c *Catalog) Resolve(name string) (models.ModelEntry, error) {
	e, ok := c.entries[name]
	if !ok {
		return models.ModelEntry{}, &UnknownModelError{Name: name}
	}
	return e, nil
}

// Has reports whether name resolves.
func (c *Catalog) Has(name string) bool {
	_, ok := c.entries[name]
	return ok
}

// ListByProvider groups logical names by provider, each group in table order.
// Providers without models are omitted.
func (c *Catalog) ListByProvider() map[models.Provider][]string {
	out := make(map[models.Provider][]string)
	for _, name := range c.order {
		p := c.entries[name].Provider
		out[p] = append(out[p], name)
	}
	return out
}

// Providers returns the providers that have at least one model, in canonical order.
func (c *Catalog) Providers() []models.Provider {
	grouped := c.ListByProvider()
	var out []models.Provider
	for _, p := range models.AllProviders {
		if len(grouped[p]) > 0 {
			out = append(out, p)
		}
	}
	return out
}

// Names returns every logical name, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.order))
	copy(names, c.order)
	sort.Strings(names)
	return names
}

// Entries returns all entries in table order.
func (c *Catalog) Entries() []models.ModelEntry {
	out := make([]models.ModelEntry, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.entries[name])
	}
	return out
}
