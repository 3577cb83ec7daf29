// Package registry is the static list of syncable cities with the search
// center and radius used for each.
package registry

import (
	_ "embed"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/pharmacy-harvester/internal/geo"
)

//go:embed cities.yaml
var defaultCities []byte

// City is one syncable municipality.
type City struct {
	Slug    string  `yaml:"slug" json:"slug"`
	NameME  string  `yaml:"name_me" json:"name_me"`
	NameEN  string  `yaml:"name_en" json:"name_en"`
	Lat     float64 `yaml:"lat" json:"lat"`
	Lng     float64 `yaml:"lng" json:"lng"`
	RadiusM int     `yaml:"radius_m" json:"radius"`
}

// HasCoords reports whether the city has a usable search center.
func (c City) HasCoords() bool {
	return (c.Lat != 0 || c.Lng != 0) && c.RadiusM > 0
}

// Area returns the search center and radius.
func (c City) Area() geo.Area {
	return geo.Area{Center: geo.Point{Lat: c.Lat, Lng: c.Lng}, RadiusM: c.RadiusM}
}

// Cities indexes cities by slug. Aliases map alternative slugs onto a
// canonical one (e.g. zeta -> golubovci).
type Cities struct {
	list    []City
	bySlug  map[string]City
	aliases map[string]string
}

type citiesFile struct {
	Cities  []City            `yaml:"cities"`
	Aliases map[string]string `yaml:"aliases"`
}

// Default returns the embedded city list.
func Default() *Cities {
	c, err := Parse(defaultCities)
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads a city list from path, or the embedded default when path is empty.
func Load(path string) (*Cities, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read cities %s", path)
	}
	return Parse(data)
}

// Parse decodes a YAML city list.
func Parse(data []byte) (*Cities, error) {
	var f citiesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "registry: parse cities")
	}

	c := &Cities{
		bySlug:  make(map[string]City, len(f.Cities)),
		aliases: make(map[string]string, len(f.Aliases)),
	}
	for _, city := range f.Cities {
		slug := strings.ToLower(strings.TrimSpace(city.Slug))
		if slug == "" {
			return nil, eris.New("registry: city without slug")
		}
		if _, dup := c.bySlug[slug]; dup {
			return nil, eris.Errorf("registry: duplicate city %q", slug)
		}
		city.Slug = slug
		c.bySlug[slug] = city
		c.list = append(c.list, city)
	}
	for from, to := range f.Aliases {
		c.aliases[strings.ToLower(from)] = strings.ToLower(to)
	}
	return c, nil
}

// Lookup resolves slug, following aliases.
func (c *Cities) Lookup(slug string) (City, bool) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if to, ok := c.aliases[slug]; ok {
		slug = to
	}
	city, ok := c.bySlug[slug]
	return city, ok
}

// All returns the cities in file order.
func (c *Cities) All() []City {
	return append([]City(nil), c.list...)
}

// Municipalities returns the local city names sorted, for text-query planning.
func (c *Cities) Municipalities() []string {
	out := make([]string, 0, len(c.list))
	for _, city := range c.list {
		out = append(out, city.NameME)
	}
	sort.Strings(out)
	return out
}
