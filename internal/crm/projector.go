// Package crm writes resolution outcomes back onto Salesforce Accounts.
package crm

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/registry-link/internal/resolve"
	"github.com/sells-group/registry-link/pkg/salesforce"
)

// SourceSalesforce is the source id carried by events that originate in
// Salesforce. Only those subjects are projected.
const SourceSalesforce = "salesforce"

// Account custom fields written by the projector.
const (
	FieldUEI         = "Registry_UEI__c"
	FieldLegalName   = "Registry_Legal_Name__c"
	FieldStatus      = "Registry_Status__c"
	FieldExpiration  = "Registry_Expiration__c"
	FieldScore       = "Registry_Match_Score__c"
	FieldMatchStatus = "Registry_Match_Status__c"
	FieldCheckedAt   = "Registry_Checked_At__c"
)

// Match status picklist values.
const (
	StatusMatched = "Matched"
	StatusPending = "Pending Review"
	StatusNoMatch = "No Match"
)

// Update pairs an Account with the outcome to write onto it.
type Update struct {
	AccountID string
	Outcome   resolve.Outcome
}

// Projector writes outcomes to Salesforce. A Projector with a nil client
// does nothing, so callers need not check whether Salesforce is configured.
type Projector struct {
	client salesforce.Client
	now    func() time.Time
}

// NewProjector returns a Projector writing through c. c may be nil.
func NewProjector(c salesforce.Client) *Projector {
	return &Projector{client: c, now: time.Now}
}

// Enabled reports whether the projector has a Salesforce client.
func (p *Projector) Enabled() bool {
	return p != nil && p.client != nil
}

// Project writes one outcome onto an Account.
func (p *Projector) Project(ctx context.Context, accountID string, o resolve.Outcome) error {
	if !p.Enabled() || accountID == "" || o == nil {
		return nil
	}
	if err := salesforce.UpdateAccount(ctx, p.client, accountID, Fields(o, p.now())); err != nil {
		zap.L().Error("crm: project outcome failed",
			zap.String("account_id", accountID),
			zap.String("disposition", string(o.Disposition())),
			zap.Error(err),
		)
		return eris.Wrap(err, "crm: project")
	}
	return nil
}

// ProjectBatch writes many outcomes with the Collections API. It returns the
// number of records Salesforce rejected.
func (p *Projector) ProjectBatch(ctx context.Context, updates []Update) (int, error) {
	if !p.Enabled() {
		return 0, nil
	}
	now := p.now()
	records := make([]salesforce.CollectionRecord, 0, len(updates))
	for _, u := range updates {
		if u.AccountID == "" || u.Outcome == nil {
			continue
		}
		records = append(records, salesforce.CollectionRecord{ID: u.AccountID, Fields: Fields(u.Outcome, now)})
	}
	if len(records) == 0 {
		return 0, nil
	}

	results, err := salesforce.UpdateAccounts(ctx, p.client, records)
	if err != nil {
		return 0, eris.Wrap(err, "crm: project batch")
	}
	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
			zap.L().Warn("crm: account update rejected",
				zap.String("account_id", r.ID),
				zap.Strings("errors", r.Errors),
			)
		}
	}
	return failed, nil
}

// Fields builds the Account field map for an outcome. Pending and NoMatch
// outcomes only touch the status fields so an earlier link is kept.
func Fields(o resolve.Outcome, checkedAt time.Time) map[string]any {
	fields := map[string]any{
		FieldCheckedAt: checkedAt.UTC().Format(time.RFC3339),
	}
	switch v := o.(type) {
	case resolve.Matched:
		c := v.Candidate
		fields[FieldMatchStatus] = StatusMatched
		fields[FieldUEI] = c.ID
		fields[FieldLegalName] = c.LegalName
		fields[FieldStatus] = c.StatusCode
		fields[FieldScore] = roundScore(v.Score)
		if c.ExpirationDate.IsZero() {
			fields[FieldExpiration] = nil
		} else {
			fields[FieldExpiration] = c.ExpirationDate.Format(time.DateOnly)
		}
	case resolve.Pending:
		fields[FieldMatchStatus] = StatusPending
		if len(v.Top) > 0 {
			fields[FieldScore] = roundScore(v.Top[0].Score)
		}
	case resolve.NoMatch:
		fields[FieldMatchStatus] = StatusNoMatch
	}
	return fields
}

func roundScore(s float64) float64 {
	return math.Round(s*10000) / 10000
}
