// Package provider adapts every external pharmacy source to one contract:
// given a query, return normalized candidates. Adapters never return errors;
// a failing source logs the reason and yields an empty slice.
package provider

import (
	"context"

	"github.com/sells-group/pharmacy-harvester/internal/geo"
	"github.com/sells-group/pharmacy-harvester/internal/model"
)

// Provider is a geodata source queried by seed or text.
type Provider interface {
	// Name is the stable identifier used in logs and breakers.
	Name() string
	// Source is the candidate source type this provider emits.
	Source() model.Source
	// Enabled reports whether the provider has the credentials it needs.
	Enabled() bool
	// Supports reports whether the provider can serve the query mode.
	Supports(mode geo.Mode) bool
	// Search runs one query. Failures degrade to an empty result.
	Search(ctx context.Context, q geo.Query) []model.Candidate
}

// DocumentSource is a registry or chain document scraped for pharmacy rows.
type DocumentSource interface {
	Name() string
	// Rows fetches the document and returns the parsed rows. Failures degrade
	// to an empty result.
	Rows(ctx context.Context) []model.RegistryRow
}

// Enabled filters providers down to those with credentials.
func Enabled(ps []Provider) []Provider {
	out := make([]Provider, 0, len(ps))
	for _, p := range ps {
		if p != nil && p.Enabled() {
			out = append(out, p)
		}
	}
	return out
}

// Supporting filters providers down to those that serve mode.
func Supporting(ps []Provider, mode geo.Mode) []Provider {
	out := make([]Provider, 0, len(ps))
	for _, p := range ps {
		if p.Supports(mode) {
			out = append(out, p)
		}
	}
	return out
}
