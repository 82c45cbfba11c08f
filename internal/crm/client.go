// Package crm is the client for the upstream provisioning record source.
package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/provtrack/tierwatch/pkg/models"
	"github.com/provtrack/tierwatch/pkg/soql"
)

// Sentinel errors for record source failures. Any of these aborts the whole
// analysis run; the previously published result stays untouched.
var (
	ErrCRMUnreachable = errors.New("crm unreachable")
	ErrCRMQueryError  = errors.New("crm query error")
	ErrCRMTimeout     = errors.New("crm query timeout")
)

// Client is the interface for fetching provisioning records.
type Client interface {
	FetchCompletedRecords(ctx context.Context, req FetchRequest) ([]models.RawRecord, error)
	Ready(ctx context.Context) error
}

// FetchRequest defines parameters for a record fetch. Zero values mean no
// filter: all completed records for all deployments.
type FetchRequest struct {
	SinceSequence int64
	DeploymentID  string
	Limit         int
}

// HTTPClient implements Client against the CRM's REST query API.
type HTTPClient struct {
	baseURL  string
	username string
	password string
	orgID    string
	client   *http.Client
}

// NewHTTPClient creates a new CRM HTTP client.
func NewHTTPClient(baseURL, username, password, orgID string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:  baseURL,
		username: username,
		password: password,
		orgID:    orgID,
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) FetchCompletedRecords(ctx context.Context, req FetchRequest) ([]models.RawRecord, error) {
	qb := soql.QueryBuilder{}
	query := qb.BuildRecordQuery(soql.RecordQueryParams{
		SinceSequence: req.SinceSequence,
		DeploymentID:  req.DeploymentID,
		Statuses:      []string{"Completed"},
		Limit:         req.Limit,
	})

	params := url.Values{"q": {query}}
	u := fmt.Sprintf("%s/services/data/v1/query?%s", c.baseURL, params.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrCRMQueryError, resp.StatusCode)
	}

	var queryResp recordQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&queryResp); err != nil {
		return nil, fmt.Errorf("decoding crm response: %w", err)
	}

	if queryResp.Records == nil {
		return []models.RawRecord{}, nil
	}
	return queryResp.Records, nil
}

func (c *HTTPClient) Ready(ctx context.Context) error {
	u := fmt.Sprintf("%s/services/data/v1/status", c.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCRMUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: crm not ready (status %d)", ErrCRMUnreachable, resp.StatusCode)
	}

	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	if c.orgID != "" {
		req.Header.Set("X-Org-ID", c.orgID)
	}
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrCRMTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrCRMTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrCRMUnreachable, err)
	}

	return fmt.Errorf("%w: %v", ErrCRMUnreachable, err)
}

type recordQueryResponse struct {
	TotalSize int                `json:"total_size"`
	Done      bool               `json:"done"`
	Records   []models.RawRecord `json:"records"`
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
