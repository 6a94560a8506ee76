// Package facet assigns unique skills to the categorical dimensions of
// the taxonomy: independent facets (skill nature, transferability,
// cognitive complexity and so on) and skill families. Assignment is
// embedding-first with optional LLM re-ranking among close candidates.
package facet

import (
	_ "embed"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed facets.yaml
var facetsYAML []byte

//go:embed families.yaml
var familiesYAML []byte

// Value is one assignable value of a facet.
type Value struct {
	Code        string   `yaml:"code"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
	Level       int      `yaml:"level"`
}

// EmbeddingText is the definition text embedded for similarity matching.
func (v Value) EmbeddingText() string {
	parts := []string{v.Name, v.Description}
	if len(v.Keywords) > 0 {
		kw := v.Keywords
		if len(kw) > 15 {
			kw = kw[:15]
		}
		parts = append(parts, strings.Join(kw, " "))
	}
	return strings.Join(parts, ". ")
}

// Facet is one independent categorical dimension.
type Facet struct {
	ID          string  `yaml:"id"`
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	MultiValue  bool    `yaml:"multi_value"`
	Values      []Value `yaml:"values"`
}

// Value looks up a value by code.
func (f Facet) Value(code string) (Value, bool) {
	for _, v := range f.Values {
		if v.Code == code {
			return v, true
		}
	}
	return Value{}, false
}

// Family is a predefined skill family within a domain.
type Family struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Domain      string   `yaml:"domain"`
	Keywords    []string `yaml:"keywords"`
}

// EmbeddingText is the family definition text embedded for matching.
func (f Family) EmbeddingText() string {
	return f.Name + ". " + f.Description
}

// Domain groups related families.
type Domain struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
}

// Catalog holds the full facet and family configuration.
type Catalog struct {
	Facets   []Facet
	Families []Family
	Domains  []Domain
}

// Facet looks up a facet by id.
func (c *Catalog) Facet(id string) (Facet, bool) {
	for _, f := range c.Facets {
		if f.ID == id {
			return f, true
		}
	}
	return Facet{}, false
}

// DomainName resolves a domain key to its display name.
func (c *Catalog) DomainName(key string) string {
	for _, d := range c.Domains {
		if d.Key == key {
			return d.Name
		}
	}
	return key
}

// LoadCatalog parses and validates the embedded facet and family
// definitions. Catalog errors are configuration errors and fatal.
func LoadCatalog() (*Catalog, error) {
	var facets struct {
		Facets []Facet `yaml:"facets"`
	}
	if err := yaml.Unmarshal(facetsYAML, &facets); err != nil {
		return nil, eris.Wrap(err, "facet: parse facets catalog")
	}

	var families struct {
		Families []Family `yaml:"families"`
		Domains  []Domain `yaml:"domains"`
	}
	if err := yaml.Unmarshal(familiesYAML, &families); err != nil {
		return nil, eris.Wrap(err, "facet: parse families catalog")
	}

	c := &Catalog{
		Facets:   facets.Facets,
		Families: families.Families,
		Domains:  families.Domains,
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) validate() error {
	if len(c.Facets) == 0 {
		return eris.New("facet: catalog has no facets")
	}

	seenFacet := make(map[string]bool)
	for _, f := range c.Facets {
		if f.ID == "" {
			return eris.New("facet: facet with empty id")
		}
		if seenFacet[f.ID] {
			return eris.Errorf("facet: duplicate facet id %q", f.ID)
		}
		seenFacet[f.ID] = true
		if len(f.Values) == 0 {
			return eris.Errorf("facet: facet %q has no values", f.ID)
		}

		seenValue := make(map[string]bool)
		for _, v := range f.Values {
			if !strings.HasPrefix(v.Code, f.ID+".") {
				return eris.Errorf("facet: value %q not under facet %q", v.Code, f.ID)
			}
			if seenValue[v.Code] {
				return eris.Errorf("facet: duplicate value code %q", v.Code)
			}
			seenValue[v.Code] = true
		}
	}

	domains := make(map[string]bool)
	for _, d := range c.Domains {
		domains[d.Key] = true
	}
	seenFamily := make(map[string]bool)
	for _, fam := range c.Families {
		if fam.Key == "" {
			return eris.New("facet: family with empty key")
		}
		if seenFamily[fam.Key] {
			return eris.Errorf("facet: duplicate family key %q", fam.Key)
		}
		seenFamily[fam.Key] = true
		if !domains[fam.Domain] {
			return eris.Errorf("facet: family %q references unknown domain %q", fam.Key, fam.Domain)
		}
	}

	return nil
}
