package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Account represents the Salesforce Account fields used for registry resolution.
type Account struct {
	ID           string `json:"Id" salesforce:"Id"`
	Name         string `json:"Name" salesforce:"Name"`
	Website      string `json:"Website" salesforce:"Website"`
	BillingState string `json:"BillingState" salesforce:"BillingState"`
	RegistryUEI  string `json:"Registry_UEI__c" salesforce:"Registry_UEI__c"`
	MatchStatus  string `json:"Registry_Match_Status__c" salesforce:"Registry_Match_Status__c"`
}

// accountFields are the SOQL fields selected for Account queries.
var accountFields = []string{
	"Id", "Name", "Website", "BillingState", "Registry_UEI__c", "Registry_Match_Status__c",
}

// FindAccountByID queries Salesforce for an Account by its ID.
// Returns nil if no account is found.
func FindAccountByID(ctx context.Context, c Client, id string) (*Account, error) {
	soql := fmt.Sprintf(
		"SELECT %s FROM Account WHERE Id = '%s' LIMIT 1",
		strings.Join(accountFields, ", "),
		escapeSoql(id),
	)

	var accounts []Account
	if err := c.Query(ctx, soql, &accounts); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find account by id %s", id))
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return &accounts[0], nil
}

// FindUnlinkedAccounts returns up to limit Accounts that have never been
// resolved against the registry.
func FindUnlinkedAccounts(ctx context.Context, c Client, limit int) ([]Account, error) {
	if limit <= 0 {
		limit = maxBatchSize
	}
	soql := fmt.Sprintf(
		"SELECT %s FROM Account WHERE Registry_Match_Status__c = null AND Name != null ORDER BY CreatedDate DESC LIMIT %d",
		strings.Join(accountFields, ", "),
		limit,
	)

	var accounts []Account
	if err := c.Query(ctx, soql, &accounts); err != nil {
		return nil, eris.Wrap(err, "sf: find unlinked accounts")
	}
	return accounts, nil
}

// UpdateAccount updates an Account record with the given fields.
func UpdateAccount(ctx context.Context, c Client, accountID string, fields map[string]any) error {
	if accountID == "" {
		return eris.New("sf: account id is required")
	}
	if len(fields) == 0 {
		return eris.New("sf: no fields to update")
	}
	if err := c.UpdateOne(ctx, "Account", accountID, fields); err != nil {
		return eris.Wrap(err, fmt.Sprintf("sf: update account %s", accountID))
	}
	return nil
}

// UpdateAccounts splits records into batches of 200 (SF Collections API
// limit) and sends them via UpdateCollection. Results are returned in input
// order; a failed batch stops the run.
func UpdateAccounts(ctx context.Context, c Client, records []CollectionRecord) ([]CollectionResult, error) {
	results := make([]CollectionResult, 0, len(records))
	for start := 0; start < len(records); start += maxBatchSize {
		end := min(start+maxBatchSize, len(records))
		batch, err := c.UpdateCollection(ctx, "Account", records[start:end])
		if err != nil {
			return results, eris.Wrap(err, fmt.Sprintf("sf: update accounts batch %d-%d", start, end))
		}
		results = append(results, batch...)
	}
	return results, nil
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
