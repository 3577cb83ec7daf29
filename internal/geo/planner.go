package geo

import (
	"github.com/twpayne/go-geom"
)

// Mode selects the kind of provider query.
type Mode int

const (
	// Nearby searches around a center within a radius.
	Nearby Mode = iota + 1
	// Text is a free-text search, optionally biased to a center.
	Text
	// Country scans the whole country in one call.
	Country
)

// String returns the mode name used in logs.
func (m Mode) String() string {
	switch m {
	case Nearby:
		return "nearby"
	case Text:
		return "text"
	case Country:
		return "country"
	default:
		return "unknown"
	}
}

// Query describes one provider call.
type Query struct {
	Mode    Mode   `json:"mode"`
	Center  Point  `json:"center"`
	RadiusM int    `json:"radius_m,omitempty"`
	Keyword string `json:"keyword,omitempty"`
	Text    string `json:"text,omitempty"`
	Lang    string `json:"lang,omitempty"`
}

// Area is a query center with its search radius.
type Area struct {
	Center  Point `json:"center"`
	RadiusM int   `json:"radius_m"`
}

// Vocabulary holds the search terms used to build queries.
type Vocabulary struct {
	Languages      []string `yaml:"languages" mapstructure:"languages"`
	Core           []string `yaml:"core" mapstructure:"core"`
	Qualifiers     []string `yaml:"qualifiers" mapstructure:"qualifiers"`
	Chains         []string `yaml:"chains" mapstructure:"chains"`
	Municipalities []string `yaml:"municipalities" mapstructure:"municipalities"`
}

// PlanConfig bounds the number of queries each stage produces.
type PlanConfig struct {
	Vocabulary            Vocabulary
	BaselineLangs         int // languages used for keyword variants
	BaselineKeywords      int // core keywords per language
	TextChains            int // chain names per municipality
	TextQualifiers        int // qualifiers per municipality
	GridRadiusM           int
	ExpansionRadiusM      int
	ExpansionKeywords     int
	MaxExpansionSeeds     int
	CompletenessThreshold int
	OptionalQuery         string
}

// DefaultPlanConfig mirrors the production sweep sizes.
func DefaultPlanConfig() PlanConfig {
	return PlanConfig{
		Vocabulary:            DefaultVocabulary(),
		BaselineLangs:         2,
		BaselineKeywords:      5,
		TextChains:            3,
		TextQualifiers:        3,
		GridRadiusM:           2000,
		ExpansionRadiusM:      800,
		ExpansionKeywords:     3,
		MaxExpansionSeeds:     250,
		CompletenessThreshold: 15,
		OptionalQuery:         "pharmacy",
	}
}

// DefaultVocabulary is the multilingual term set for Montenegro.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Languages:  []string{"sr", "hr", "en", "sq", "it", "de", "bs", "me", "fr", "es"},
		Core:       []string{"apoteka", "апотека", "pharmacy", "chemist", "ljekarna", "barnatore"},
		Qualifiers: []string{"dežurna apoteka", "24h apoteka", "non stop apoteka", "hitna apoteka", "24/7 pharmacy", "apteka"},
		Chains:     []string{"Montefarm", "BENU", "Galenika"},
		Municipalities: []string{
			"Andrijevica", "Bar", "Berane", "Bijelo Polje", "Budva", "Cetinje", "Danilovgrad",
			"Gusinje", "Herceg Novi", "Kolašin", "Kotor", "Mojkovac", "Nikšić", "Petnjica",
			"Plav", "Pljevlja", "Plužine", "Podgorica", "Rožaje", "Šavnik", "Tivat", "Tuzi",
			"Ulcinj", "Žabljak", "Zeta",
		},
	}
}

// Expansion is the query group issued around one discovered seed.
type Expansion struct {
	Seed    Point   `json:"seed"`
	Queries []Query `json:"queries"`
}

// Planner turns areas and discovered seeds into provider queries.
type Planner struct {
	cfg  PlanConfig
	tess Tessellator
}

// NewPlanner creates a Planner. tess covers the national polygon for the country sweep.
func NewPlanner(cfg PlanConfig, tess Tessellator) *Planner {
	return &Planner{cfg: cfg, tess: tess}
}

// Baseline returns the city-first queries: one unkeyworded nearby search, the
// core keyword variants, and chain/qualifier text searches per municipality.
func (p *Planner) Baseline(area Area) []Query {
	v := p.cfg.Vocabulary
	langs := head(v.Languages, p.cfg.BaselineLangs)
	lang := first(v.Languages)

	out := []Query{{Mode: Nearby, Center: area.Center, RadiusM: area.RadiusM, Lang: lang}}
	for _, l := range langs {
		for _, kw := range head(v.Core, p.cfg.BaselineKeywords) {
			out = append(out, Query{Mode: Nearby, Center: area.Center, RadiusM: area.RadiusM, Keyword: kw, Lang: l})
		}
	}

	terms := append(append([]string{}, head(v.Chains, p.cfg.TextChains)...), head(v.Qualifiers, p.cfg.TextQualifiers)...)
	for _, m := range v.Municipalities {
		for _, l := range langs {
			for _, kw := range terms {
				out = append(out, Query{Mode: Text, Center: area.Center, RadiusM: area.RadiusM, Text: kw + " " + m, Lang: l})
			}
		}
	}
	return out
}

// NeedsCountrySweep reports whether a baseline result count is below the
// completeness threshold.
func (p *Planner) NeedsCountrySweep(found int) bool {
	return found < p.cfg.CompletenessThreshold
}

// Country returns one unkeyworded nearby query per grid centroid of poly.
func (p *Planner) Country(poly *geom.Polygon) []Query {
	if poly == nil || p.tess == nil {
		return nil
	}
	centroids := p.tess.Centroids(poly)
	out := make([]Query, 0, len(centroids))
	for _, c := range centroids {
		out = append(out, Query{Mode: Nearby, Center: c, RadiusM: p.cfg.GridRadiusM, Lang: first(p.cfg.Vocabulary.Languages)})
	}
	return out
}

// Expansion returns query groups around the distinct seeds, capped at
// MaxExpansionSeeds. Seeds are taken in the order given.
func (p *Planner) Expansion(seeds []Point) []Expansion {
	seen := make(map[string]bool, len(seeds))
	var out []Expansion
	for _, s := range seeds {
		if p.cfg.MaxExpansionSeeds >= 0 && len(out) >= p.cfg.MaxExpansionSeeds {
			break
		}
		k := s.Key()
		if seen[k] {
			continue
		}
		seen[k] = true

		lang := first(p.cfg.Vocabulary.Languages)
		qs := []Query{{Mode: Nearby, Center: s, RadiusM: p.cfg.ExpansionRadiusM, Lang: lang}}
		for _, kw := range head(p.cfg.Vocabulary.Core, p.cfg.ExpansionKeywords) {
			qs = append(qs, Query{Mode: Nearby, Center: s, RadiusM: p.cfg.ExpansionRadiusM, Keyword: kw, Lang: lang})
		}
		out = append(out, Expansion{Seed: s, Queries: qs})
	}
	return out
}

// Optional returns the single nearby query sent to each secondary provider.
func (p *Planner) Optional(area Area) Query {
	return Query{Mode: Nearby, Center: area.Center, RadiusM: area.RadiusM, Keyword: p.cfg.OptionalQuery}
}

func head(s []string, n int) []string {
	if n < 0 || n > len(s) {
		return s
	}
	return s[:n]
}

func first(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}
