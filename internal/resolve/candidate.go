package resolve

import (
	"strings"
	"time"

	"github.com/sells-group/registry-link/pkg/sam"
)

// StatusUnknown is the status given to registry records that carry none.
const StatusUnknown = "Unknown"

// Query is one resolution request: who to look for and optional hints.
type Query struct {
	SubjectName string `json:"subject_name" yaml:"name"`
	StateHint   string `json:"state_hint,omitempty" yaml:"state"`
	DomainHint  string `json:"domain_hint,omitempty" yaml:"domain"`
}

// Candidate is a registry record under evaluation. Optional attributes use
// their zero value when the registry omits them; StatusCode is StatusUnknown.
type Candidate struct {
	ID             string    `json:"id"`
	LegalName      string    `json:"legal_name"`
	AlternateName  string    `json:"alternate_name,omitempty"`
	StatusCode     string    `json:"status_code"`
	ExpirationDate time.Time `json:"expiration_date,omitzero"`
	StateCode      string    `json:"state_code,omitempty"`
	City           string    `json:"city,omitempty"`
	CAGECode       string    `json:"cage_code,omitempty"`
	URL            string    `json:"url,omitempty"`
}

// HasAlternateName reports whether the registry supplied a trade name.
func (c Candidate) HasAlternateName() bool {
	return strings.TrimSpace(c.AlternateName) != ""
}

// ScoredCandidate pairs a candidate with its match score.
type ScoredCandidate struct {
	Candidate Candidate `json:"candidate"`
	Score     float64   `json:"score"`
}

// expirationLayouts are the date formats the registry has been seen to use.
var expirationLayouts = []string{"2006-01-02", "01/02/2006", time.RFC3339}

// FromEntity maps a raw registry record into a Candidate, substituting
// defaults for anything missing.
func FromEntity(e sam.Entity) Candidate {
	reg := e.Registration
	c := Candidate{
		ID:            strings.TrimSpace(reg.UEI),
		LegalName:     strings.TrimSpace(reg.LegalBusinessName),
		AlternateName: deref(reg.DBAName),
		StatusCode:    deref(reg.RegistrationStatus),
		CAGECode:      deref(reg.CAGECode),
	}
	if c.StatusCode == "" {
		c.StatusCode = StatusUnknown
	}
	if exp := deref(reg.RegistrationExpirationDate); exp != "" {
		for _, layout := range expirationLayouts {
			if t, err := time.Parse(layout, exp); err == nil {
				c.ExpirationDate = t
				break
			}
		}
	}

	if e.Core != nil {
		if info := e.Core.EntityInformation; info != nil {
			c.URL = deref(info.EntityURL)
		}
		if addr := e.Core.PhysicalAddress; addr != nil {
			c.StateCode = strings.ToUpper(deref(addr.StateOrProvinceCode))
			c.City = deref(addr.City)
		}
	}
	return c
}

// FromEntities maps a slice of raw records.
func FromEntities(entities []sam.Entity) []Candidate {
	out := make([]Candidate, 0, len(entities))
	for _, e := range entities {
		out = append(out, FromEntity(e))
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
