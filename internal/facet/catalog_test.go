package facet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalog(t *testing.T) {
	t.Parallel()

	c, err := LoadCatalog()
	require.NoError(t, err)

	wantFacets := []string{"NAT", "TRF", "COG", "CTX", "FUT", "LRN", "DIG", "FLD", "LVL"}
	gotFacets := make([]string, len(c.Facets))
	for i, f := range c.Facets {
		gotFacets[i] = f.ID
	}
	assert.Equal(t, wantFacets, gotFacets)

	lvl, ok := c.Facet("LVL")
	require.True(t, ok)
	assert.Len(t, lvl.Values, 7)
	for i, v := range lvl.Values {
		assert.Equal(t, i+1, v.Level)
	}

	nat, ok := c.Facet("NAT")
	require.True(t, ok)
	tec, ok := nat.Value("NAT.TEC")
	require.True(t, ok)
	assert.Equal(t, "Technical/Procedural", tec.Name)
	assert.NotEmpty(t, tec.Keywords)

	// Field of Education is the only facet a skill may hold several
	// values of; the twelve broad fields are the whole value set.
	fld, ok := c.Facet("FLD")
	require.True(t, ok)
	assert.True(t, fld.MultiValue)
	assert.Len(t, fld.Values, 12)
	for _, f := range c.Facets {
		if f.ID != "FLD" {
			assert.False(t, f.MultiValue, f.ID)
		}
	}

	assert.NotEmpty(t, c.Families)
	assert.Equal(t, "ICT and Digital", c.DomainName("ict_digital"))
	assert.Equal(t, "no_such_domain", c.DomainName("no_such_domain"))
}

func TestValueEmbeddingText(t *testing.T) {
	t.Parallel()

	v := Value{
		Name:        "Technical",
		Description: "Hands-on skills",
		Keywords:    []string{"operate", "install"},
	}
	text := v.EmbeddingText()
	assert.Contains(t, text, "Technical")
	assert.Contains(t, text, "Hands-on skills")
	assert.Contains(t, text, "operate install")

	bare := Value{Name: "Cognitive", Description: "Thinking"}
	assert.Equal(t, "Cognitive. Thinking", bare.EmbeddingText())
}

func TestValueEmbeddingTextCapsKeywords(t *testing.T) {
	t.Parallel()

	kw := make([]string, 30)
	for i := range kw {
		kw[i] = "kw"
	}
	v := Value{Name: "N", Description: "D", Keywords: kw}
	assert.Equal(t, 15, strings.Count(v.EmbeddingText(), "kw"))
}

func TestFamilyEmbeddingText(t *testing.T) {
	t.Parallel()

	fam := Family{
		Name:        "Software Development and Programming",
		Description: "Writing software",
		Keywords:    []string{"python"},
	}
	got := fam.EmbeddingText()
	assert.Equal(t, "Software Development and Programming. Writing software", got)
	assert.NotContains(t, got, "python")
}

func TestCatalogValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Catalog {
		return &Catalog{
			Facets: []Facet{{
				ID:     "NAT",
				Values: []Value{{Code: "NAT.TEC"}, {Code: "NAT.COG"}},
			}},
			Domains:  []Domain{{Key: "ict_digital", Name: "ICT"}},
			Families: []Family{{Key: "software_development", Domain: "ict_digital"}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Catalog)
		wantErr string
	}{
		{
			name:   "valid catalog passes",
			mutate: func(*Catalog) {},
		},
		{
			name:    "no facets",
			mutate:  func(c *Catalog) { c.Facets = nil },
			wantErr: "no facets",
		},
		{
			name:    "duplicate facet id",
			mutate:  func(c *Catalog) { c.Facets = append(c.Facets, c.Facets[0]) },
			wantErr: "duplicate facet id",
		},
		{
			name:    "facet without values",
			mutate:  func(c *Catalog) { c.Facets[0].Values = nil },
			wantErr: "has no values",
		},
		{
			name:    "value code outside its facet",
			mutate:  func(c *Catalog) { c.Facets[0].Values[1].Code = "TRF.UNI" },
			wantErr: "not under facet",
		},
		{
			name:    "duplicate value code",
			mutate:  func(c *Catalog) { c.Facets[0].Values[1].Code = "NAT.TEC" },
			wantErr: "duplicate value code",
		},
		{
			name:    "duplicate family key",
			mutate:  func(c *Catalog) { c.Families = append(c.Families, c.Families[0]) },
			wantErr: "duplicate family key",
		},
		{
			name:    "family with unknown domain",
			mutate:  func(c *Catalog) { c.Families[0].Domain = "mystery" },
			wantErr: "unknown domain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := valid()
			tt.mutate(c)
			err := c.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
