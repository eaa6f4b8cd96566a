package resolve

import (
	"strings"

	"github.com/sells-group/registry-link/pkg/sam"
)

// Strategy is one registry search in the fallback chain.
type Strategy struct {
	// Name labels the strategy in logs and metrics.
	Name string
	// Applies reports whether the strategy can run for q.
	Applies func(q Query) bool
	// Build turns the query into a registry search.
	Build func(q Query) sam.Query
}

// Strategy names.
const (
	StrategyNameState = "name_state"
	StrategyName      = "name"
	StrategyDomain    = "domain"
	StrategyKeyword   = "keyword"
)

// DefaultStrategies returns the chain in order of decreasing precision:
// exact name in state, exact name anywhere, website, free-text keyword.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{
			Name:    StrategyNameState,
			Applies: func(Query) bool { return true },
			Build: func(q Query) sam.Query {
				return sam.Query{
					LegalName:  Normalize(q.SubjectName),
					StateCode:  strings.ToUpper(strings.TrimSpace(q.StateHint)),
					ActiveOnly: true,
				}
			},
		},
		{
			Name:    StrategyName,
			Applies: func(q Query) bool { return strings.TrimSpace(q.StateHint) != "" },
			Build: func(q Query) sam.Query {
				return sam.Query{LegalName: Normalize(q.SubjectName), ActiveOnly: true}
			},
		},
		{
			Name:    StrategyDomain,
			Applies: func(q Query) bool { return NormalizeDomain(q.DomainHint) != "" },
			Build: func(q Query) sam.Query {
				return sam.Query{URL: NormalizeDomain(q.DomainHint)}
			},
		},
		{
			Name:    StrategyKeyword,
			Applies: func(Query) bool { return true },
			Build: func(q Query) sam.Query {
				return sam.Query{Keyword: Normalize(q.SubjectName)}
			},
		},
	}
}

// NormalizeDomain strips protocol, www prefix, path and case from a URL.
func NormalizeDomain(rawURL string) string {
	d := strings.ToLower(strings.TrimSpace(rawURL))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "www.")
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	return d
}
