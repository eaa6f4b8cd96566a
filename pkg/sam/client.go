// Package sam provides a client for the SAM.gov Entity Management API, the
// registry of entities registered to do business with the U.S. government.
package sam

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/registry-link/internal/resilience"
)

// DefaultBaseURL is the production Entity Management API root.
const DefaultBaseURL = "https://api.sam.gov/entity-information/v3"

// Client searches the entity registry.
type Client interface {
	Search(ctx context.Context, q Query) ([]Entity, error)
}

// Query selects entities. Empty fields are not sent.
type Query struct {
	LegalName  string
	StateCode  string
	ActiveOnly bool
	URL        string
	Keyword    string
}

// Values encodes the query as API parameters.
func (q Query) Values() url.Values {
	v := url.Values{}
	if q.LegalName != "" {
		v.Set("legalBusinessName", q.LegalName)
	}
	if q.StateCode != "" {
		v.Set("physicalAddressProvinceOrStateCode", q.StateCode)
	}
	if q.ActiveOnly {
		v.Set("registrationStatus", "A")
	}
	if q.URL != "" {
		v.Set("entityURL", q.URL)
	}
	if q.Keyword != "" {
		v.Set("q", q.Keyword)
	}
	return v
}

// searchResponse is the envelope returned by GET /entities.
type searchResponse struct {
	TotalRecords int      `json:"totalRecords"`
	EntityData   []Entity `json:"entityData"`
}

// Option configures the SAM client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithPageSize sets the number of entities requested per search.
func WithPageSize(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

type httpClient struct {
	apiKey   string
	baseURL  string
	pageSize int
	http     *http.Client
	limiter  *rate.Limiter
}

// NewClient creates a SAM.gov entity search client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:   apiKey,
		baseURL:  DefaultBaseURL,
		pageSize: 10,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search runs one entity search. A 429 comes back as a
// *resilience.StatusError so callers can decide whether to retry; an empty
// result set is not an error.
func (c *httpClient) Search(ctx context.Context, q Query) ([]Entity, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "sam: rate limit")
		}
	}

	params := q.Values()
	params.Set("api_key", c.apiKey)
	params.Set("includeSections", "entityRegistration,coreData")
	params.Set("size", strconv.Itoa(c.pageSize))

	reqURL := fmt.Sprintf("%s/entities?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sam: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "sam: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "sam: read response body")
	}

	// SAM answers 404 when a filter matches nothing.
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Wrap(resilience.NewStatusError(resp.StatusCode, body), "sam: search")
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "sam: unmarshal response")
	}
	return result.EntityData, nil
}
