// Package snow reads the ServiceNow CMDB: companies, site locations, and the
// configuration items monitored on each site. It is the system of record for
// what the monitoring tree ought to look like; the only field ever written
// back is each item's monitoring id.
package snow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// activeCIQuery selects items in a monitorable install state that are
// flagged for monitoring. Statuses: 1 Installed, 101 Active,
// 109 Duplicate Active, 107 Duplicate Installed.
const activeCIQuery = "install_status=1^ORinstall_status=101^ORinstall_status=109^ORinstall_status=107^u_prtg_implementation=true"

// ciPageSize bounds one table API page when listing configuration items.
const ciPageSize = 1000

// Client wraps the ServiceNow table API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	retries    int
	backoff    time.Duration
}

// NewClient creates a CMDB client from the given config.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL(),
		username:   cfg.Username,
		password:   cfg.Password,
		retries:    cfg.Retries,
		backoff:    cfg.Backoff,
	}
}

// GetCompany fetches the active company with the given name.
// Returns NotFoundError / AmbiguousError on zero / multiple matches.
func (c *Client) GetCompany(ctx context.Context, name string) (*Company, error) {
	params := url.Values{}
	params.Set("sysparm_query", "active=true^name="+name)

	var resp listResponse[companyRecord]
	if err := c.doJSON(ctx, http.MethodGet, "/api/now/table/core_company", params, nil, &resp); err != nil {
		return nil, fmt.Errorf("get company %q: %w", name, err)
	}
	switch len(resp.Result) {
	case 0:
		return nil, &NotFoundError{Kind: "company", Name: name}
	case 1:
		return mapCompany(resp.Result[0]), nil
	default:
		return nil, &AmbiguousError{Kind: "company", Name: name, Count: len(resp.Result)}
	}
}

// GetLocation fetches the active site location with the given name,
// resolving its country reference.
func (c *Client) GetLocation(ctx context.Context, name string) (*Location, error) {
	params := url.Values{}
	params.Set("sysparm_query", "u_active=true^name="+name)

	var resp listResponse[locationRecord]
	if err := c.doJSON(ctx, http.MethodGet, "/api/now/table/cmn_location", params, nil, &resp); err != nil {
		return nil, fmt.Errorf("get location %q: %w", name, err)
	}
	switch len(resp.Result) {
	case 0:
		return nil, &NotFoundError{Kind: "location", Name: name}
	case 1:
		return c.mapLocation(ctx, resp.Result[0])
	default:
		return nil, &AmbiguousError{Kind: "location", Name: name, Count: len(resp.Result)}
	}
}

// GetCompanyLocations lists all active site locations of a company, ordered
// by state then city.
func (c *Client) GetCompanyLocations(ctx context.Context, companyName string) ([]Location, error) {
	params := url.Values{}
	params.Set("sysparm_query", "u_active=true^company.name="+companyName+"^ORDERBYstate^ORDERBYcity")
	params.Set("sysparm_limit", "1000")

	var resp listResponse[locationRecord]
	if err := c.doJSON(ctx, http.MethodGet, "/api/now/table/cmn_location", params, nil, &resp); err != nil {
		return nil, fmt.Errorf("list locations of %q: %w", companyName, err)
	}
	locations := make([]Location, 0, len(resp.Result))
	for _, rec := range resp.Result {
		loc, err := c.mapLocation(ctx, rec)
		if err != nil {
			return nil, err
		}
		locations = append(locations, *loc)
	}
	return locations, nil
}

// GetConfigItems lists every active, monitoring-flagged root item on a
// company site, ordered by name. Manufacturer references are resolved once
// per distinct link.
func (c *Client) GetConfigItems(ctx context.Context, company *Company, location *Location) ([]ConfigItem, error) {
	query := activeCIQuery +
		"^company.name=" + company.Name +
		"^location.name=" + location.Name +
		"^u_cc_type=root^ORu_cc_typeISEMPTY" +
		"^ORDERBYname"

	var records []ciRecord
	for offset := 0; ; offset += ciPageSize {
		params := url.Values{}
		params.Set("sysparm_query", query)
		params.Set("sysparm_display_value", "true")
		params.Set("sysparm_limit", strconv.Itoa(ciPageSize))
		params.Set("sysparm_offset", strconv.Itoa(offset))

		var resp listResponse[ciRecord]
		if err := c.doJSON(ctx, http.MethodGet, "/api/now/table/cmdb_ci", params, nil, &resp); err != nil {
			return nil, fmt.Errorf("list configuration items of %q at %q: %w", company.Name, location.Name, err)
		}
		records = append(records, resp.Result...)
		if len(resp.Result) < ciPageSize {
			break
		}
	}

	// Sites share a handful of manufacturers; resolve each link once.
	memo := make(map[string]*Manufacturer)
	items := make([]ConfigItem, 0, len(records))
	for _, rec := range records {
		ci, err := c.mapConfigItem(ctx, rec, memo)
		if err != nil {
			return nil, err
		}
		items = append(items, *ci)
	}
	return items, nil
}

// GetDeviceCount returns the number of monitorable items on a company site
// without fetching them. Drives the grouping gate.
func (c *Client) GetDeviceCount(ctx context.Context, company *Company, location *Location) (int, error) {
	params := url.Values{}
	params.Set("sysparm_count", "true")
	params.Set("sysparm_query", activeCIQuery+
		"^company.name="+company.Name+
		"^location.name="+location.Name+
		"^u_cc_type=root^ORu_cc_typeISEMPTY")

	var resp statsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/now/stats/cmdb_ci", params, nil, &resp); err != nil {
		return 0, fmt.Errorf("count configuration items of %q at %q: %w", company.Name, location.Name, err)
	}
	count, err := strconv.Atoi(resp.Result.Stats.Count)
	if err != nil {
		return 0, fmt.Errorf("parse item count %q: %w", resp.Result.Stats.Count, err)
	}
	return count, nil
}

// UpdateConfigItem writes the item's monitoring id back to the CMDB. No
// other field is ever written. The instance echoes the updated record; a
// mismatched echo means the write did not stick.
func (c *Client) UpdateConfigItem(ctx context.Context, ci *ConfigItem) error {
	want := strconv.Itoa(ci.MonitoringID)
	payload := map[string]string{"u_prtg_id": want}

	var resp recordResponse[ciRecord]
	path := "/api/now/table/cmdb_ci/" + url.PathEscape(ci.ID)
	if err := c.doJSON(ctx, http.MethodPatch, path, nil, payload, &resp); err != nil {
		return fmt.Errorf("update configuration item %q: %w", ci.ID, err)
	}
	if got := resp.Result.MonitoringID; got != want {
		return fmt.Errorf("update configuration item %q: wrote u_prtg_id=%s, instance returned %q", ci.ID, want, got)
	}
	return nil
}

// ResolveReference dereferences a record link and returns the target's
// sys_id and name.
func (c *Client) ResolveReference(ctx context.Context, link string) (id, name string, err error) {
	var resp recordResponse[struct {
		SysID string `json:"sys_id"`
		Name  string `json:"name"`
	}]
	if err := c.do(ctx, http.MethodGet, link, nil, &resp); err != nil {
		return "", "", fmt.Errorf("resolve reference %s: %w", link, err)
	}
	return resp.Result.SysID, resp.Result.Name, nil
}

// CIURL returns the canonical browser link for a configuration item.
func (c *Client) CIURL(sysID string) string {
	return c.baseURL + "/cmdb_ci?sys_id=" + url.QueryEscape(sysID)
}

// LocationURL returns the canonical browser link for a location record.
func (c *Client) LocationURL(sysID string) string {
	return c.baseURL + "/cmn_location?sys_id=" + url.QueryEscape(sysID)
}

// doJSON performs a request against a table API path.
func (c *Client) doJSON(ctx context.Context, method, path string, params url.Values, body, result any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return c.do(ctx, method, u, body, result)
}

// do performs a request against an absolute URL with JSON
// serialization/deserialization and bounded retry on transient failures.
func (c *Client) do(ctx context.Context, method, rawURL string, body, result any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = data
	}

	delay := c.backoff
	for attempt := 0; ; attempt++ {
		err := c.doOnce(ctx, method, rawURL, payload, result)
		if err == nil {
			return nil
		}
		var re retryableError
		if !errors.As(err, &re) {
			return err
		}
		if attempt == c.retries {
			return &TransientError{Attempts: attempt + 1, Err: re.err}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (c *Client) doOnce(ctx context.Context, method, rawURL string, payload []byte, result any) error {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retryableError{fmt.Errorf("http %s %s: %w", method, rawURL, err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return retryableError{fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= 400 {
		apiErr := fmt.Errorf("table API %s returned %d: %s", method, resp.StatusCode, errorDetail(respBody))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return retryableError{apiErr}
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// errorDetail extracts the message from a table API error envelope, falling
// back to the raw body.
func errorDetail(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Detail  string `json:"detail"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		if envelope.Error.Detail != "" {
			return envelope.Error.Message + ": " + envelope.Error.Detail
		}
		return envelope.Error.Message
	}
	return string(body)
}
