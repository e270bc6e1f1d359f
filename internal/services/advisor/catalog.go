package advisor

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/LeonardoBeccarini/cropgenius/internal/model/entities"
)

// CatalogTreatment is a treatment plus the crops and diseases it applies to.
// Empty Crops or Diseases match everything.
type CatalogTreatment struct {
	entities.Treatment `yaml:",inline"`
	Crops              []string `yaml:"crops"`
	Diseases           []string `yaml:"diseases"`
}

// Catalog is the advisor's knowledge of crop economics and available treatments.
//
//	crops:
//	  maize: {expected_yield: 3500, price_per_unit: 0.35, unit: kg}
//	treatments:
//	  - {name: Neem Oil Spray, category: organic, effectiveness: 0.75, cost: 15.50, crops: [maize]}
type Catalog struct {
	Crops      map[string]entities.CropEconomicProfile `yaml:"crops"`
	Treatments []CatalogTreatment                      `yaml:"treatments"`
}

// LoadCatalog reads, normalizes and validates the catalog file at path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %q: %w", path, err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var raw Catalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("catalog: parse yaml: %w", err)
	}
	c, err := normalize(raw)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return c, nil
}

func normKey(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func normalize(raw Catalog) (*Catalog, error) {
	c := &Catalog{
		Crops:      make(map[string]entities.CropEconomicProfile, len(raw.Crops)),
		Treatments: make([]CatalogTreatment, 0, len(raw.Treatments)),
	}
	for name, p := range raw.Crops {
		key := normKey(name)
		if key == "" {
			return nil, fmt.Errorf("crops: empty crop name")
		}
		if _, dup := c.Crops[key]; dup {
			return nil, fmt.Errorf("crops.%s: defined twice", key)
		}
		if !(p.ExpectedYield > 0) {
			return nil, fmt.Errorf("crops.%s.expected_yield %v must be greater than 0", key, p.ExpectedYield)
		}
		if !(p.PricePerUnit >= 0) {
			return nil, fmt.Errorf("crops.%s.price_per_unit %v must not be negative", key, p.PricePerUnit)
		}
		if u := normKey(p.Unit); u != "" && u != "kg" {
			return nil, fmt.Errorf("crops.%s.unit %q unsupported: want kg", key, p.Unit)
		}
		p.CropType = key
		p.Unit = "kg"
		c.Crops[key] = p
	}

	for i, t := range raw.Treatments {
		if strings.TrimSpace(t.Name) == "" {
			return nil, fmt.Errorf("treatments[%d].name is empty", i)
		}
		cat, err := entities.ParseCategory(string(t.Category))
		if err != nil {
			return nil, fmt.Errorf("treatments[%d].category: %w", i, err)
		}
		if !(t.Effectiveness >= 0 && t.Effectiveness <= 1) {
			return nil, fmt.Errorf("treatments[%d].effectiveness %v out of range [0,1]", i, t.Effectiveness)
		}
		if !(t.Cost >= 0) {
			return nil, fmt.Errorf("treatments[%d].cost %v must not be negative", i, t.Cost)
		}
		t.Category = cat
		t.Crops = normList(t.Crops)
		t.Diseases = normList(t.Diseases)
		c.Treatments = append(c.Treatments, t)
	}
	return c, nil
}

func normList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if k := normKey(s); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func matches(list []string, v string) bool {
	if len(list) == 0 {
		return true
	}
	v = normKey(v)
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Profile returns the economic profile of crop, matched case-insensitively.
func (c *Catalog) Profile(crop string) (entities.CropEconomicProfile, bool) {
	if c == nil {
		return entities.CropEconomicProfile{}, false
	}
	p, ok := c.Crops[normKey(crop)]
	return p, ok
}

// TreatmentsFor returns, in catalog order, the treatments applicable to crop and disease.
func (c *Catalog) TreatmentsFor(crop, disease string) []entities.Treatment {
	if c == nil {
		return nil
	}
	out := make([]entities.Treatment, 0, len(c.Treatments))
	for _, t := range c.Treatments {
		if matches(t.Crops, crop) && matches(t.Diseases, disease) {
			out = append(out, t.Treatment)
		}
	}
	return out
}

// CatalogStore holds the active catalog and swaps it atomically on reload.
type CatalogStore struct {
	p atomic.Pointer[Catalog]
}

func NewCatalogStore(c *Catalog) *CatalogStore {
	s := &CatalogStore{}
	if c == nil {
		c = &Catalog{Crops: map[string]entities.CropEconomicProfile{}}
	}
	s.p.Store(c)
	return s
}

func (s *CatalogStore) Load() *Catalog   { return s.p.Load() }
func (s *CatalogStore) Store(c *Catalog) { s.p.Store(c) }
