// Package prtg drives the PRTG monitoring platform: reading the object
// tree (probes, groups, devices) and mutating it through the clone, move,
// property and delete endpoints. The API is GET-based; credentials ride as
// query parameters on every call.
package prtg

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	groupColumns  = "objid,name,active,status,parentid,priority,tags,location"
	deviceColumns = "objid,name,active,status,parentid,priority,tags,location,host"
)

// Client wraps the platform's HTTP API.
type Client struct {
	httpClient        *http.Client
	baseURL           string
	auth              url.Values
	templateGroup     int
	templateDevice    int
	retries           int
	backoff           time.Duration
	pollInterval      time.Duration
	visibilityTimeout time.Duration
}

// NewClient creates a platform client from the given config. Credential
// precedence when several are set: token, then passhash, then password
// (Config.Validate rejects that case up front).
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	if cfg.VisibilityTimeout == 0 {
		cfg.VisibilityTimeout = 30 * time.Second
	}
	auth := url.Values{}
	switch {
	case cfg.Token != "":
		auth.Set("apitoken", cfg.Token)
	case cfg.Username != "" && cfg.Passhash != "":
		auth.Set("username", cfg.Username)
		auth.Set("passhash", cfg.Passhash)
	default:
		auth.Set("username", cfg.Username)
		auth.Set("password", cfg.Password)
	}
	return &Client{
		httpClient:        &http.Client{Timeout: cfg.Timeout},
		baseURL:           cfg.BaseURL(),
		auth:              auth,
		templateGroup:     cfg.TemplateGroup,
		templateDevice:    cfg.TemplateDevice,
		retries:           cfg.Retries,
		backoff:           cfg.Backoff,
		pollInterval:      500 * time.Millisecond,
		visibilityTimeout: cfg.VisibilityTimeout,
	}
}

// Ping verifies connectivity and credentials.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.get(ctx, "/api/healthstatus.json", nil); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}

// DeviceURL returns the human browser link for an object.
func (c *Client) DeviceURL(id int) string {
	return fmt.Sprintf("%s/device.htm?id=%d", c.baseURL, id)
}

// GetProbe fetches a probe by id.
func (c *Client) GetProbe(ctx context.Context, id int) (*Probe, error) {
	rows, err := c.tableRows(ctx, "probes", groupColumns, url.Values{"filter_objid": {strconv.Itoa(id)}})
	if err != nil {
		return nil, fmt.Errorf("get probe %d: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, &NotFoundError{Kind: "probe", ID: id}
	}
	p := rows[0].group()
	return &p, nil
}

// GetProbesByName lists probes with the exact given name.
func (c *Client) GetProbesByName(ctx context.Context, name string) ([]Probe, error) {
	rows, err := c.tableRows(ctx, "probes", groupColumns, url.Values{"filter_name": {name}})
	if err != nil {
		return nil, fmt.Errorf("get probes named %q: %w", name, err)
	}
	probes := make([]Probe, 0, len(rows))
	for _, r := range rows {
		probes = append(probes, r.group())
	}
	return probes, nil
}

// GetGroup fetches a group by id.
func (c *Client) GetGroup(ctx context.Context, id int) (*Group, error) {
	rows, err := c.tableRows(ctx, "groups", groupColumns, url.Values{"filter_objid": {strconv.Itoa(id)}})
	if err != nil {
		return nil, fmt.Errorf("get group %d: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, &NotFoundError{Kind: "group", ID: id}
	}
	g := rows[0].group()
	return &g, nil
}

// GetGroupsByName lists groups with the exact given name, optionally
// narrowed to direct children of parentID (0 = anywhere).
func (c *Client) GetGroupsByName(ctx context.Context, name string, parentID int) ([]Group, error) {
	filters := url.Values{"filter_name": {name}}
	if parentID > 0 {
		filters.Set("filter_parentid", strconv.Itoa(parentID))
	}
	rows, err := c.tableRows(ctx, "groups", groupColumns, filters)
	if err != nil {
		return nil, fmt.Errorf("get groups named %q: %w", name, err)
	}
	groups := make([]Group, 0, len(rows))
	for _, r := range rows {
		groups = append(groups, r.group())
	}
	return groups, nil
}

// GetDevice fetches a device by id.
func (c *Client) GetDevice(ctx context.Context, id int) (*Device, error) {
	rows, err := c.tableRows(ctx, "devices", deviceColumns, url.Values{"filter_objid": {strconv.Itoa(id)}})
	if err != nil {
		return nil, fmt.Errorf("get device %d: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, &NotFoundError{Kind: "device", ID: id}
	}
	d := rows[0].device()
	return &d, nil
}

// GetDevicesByGroup lists every device anywhere below the given container,
// not just direct children.
func (c *Client) GetDevicesByGroup(ctx context.Context, groupID int) ([]Device, error) {
	rows, err := c.tableRows(ctx, "devices", deviceColumns, url.Values{"id": {strconv.Itoa(groupID)}})
	if err != nil {
		return nil, fmt.Errorf("get devices of group %d: %w", groupID, err)
	}
	devices := make([]Device, 0, len(rows))
	for _, r := range rows {
		devices = append(devices, r.device())
	}
	return devices, nil
}

// GetParent returns the container directly above an object. The object's
// own row carries its parent id; the parent may be a group or a probe.
func (c *Client) GetParent(ctx context.Context, id int) (*Group, error) {
	var parentID int
	d, err := c.GetDevice(ctx, id)
	switch {
	case err == nil:
		parentID = d.ParentID
	case isNotFound(err):
		g, gerr := c.GetGroup(ctx, id)
		if gerr != nil {
			return nil, fmt.Errorf("get parent of %d: %w", id, gerr)
		}
		parentID = g.ParentID
	default:
		return nil, err
	}

	g, err := c.GetGroup(ctx, parentID)
	if err == nil {
		return g, nil
	}
	if !isNotFound(err) {
		return nil, err
	}
	return c.GetProbe(ctx, parentID)
}

// AddGroup clones the group template under parentID, waits for the clone
// to become visible, then applies the group's properties. Returns the
// created group with its platform id.
func (c *Client) AddGroup(ctx context.Context, group Group, parentID int) (*Group, error) {
	if c.templateGroup == 0 {
		return nil, errors.New("prtg: template_group not configured")
	}
	params := url.Values{}
	params.Set("id", strconv.Itoa(c.templateGroup))
	params.Set("name", group.Name)
	params.Set("targetid", strconv.Itoa(parentID))
	id, err := c.clone(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("add group %q: %w", group.Name, err)
	}
	if err := c.waitVisible(ctx, func(ctx context.Context) error {
		_, err := c.GetGroup(ctx, id)
		return err
	}); err != nil {
		return nil, fmt.Errorf("add group %q (id %d): %w", group.Name, id, err)
	}

	created := group
	created.ID = id
	created.ParentID = parentID
	if err := c.applyGroupProps(ctx, &created); err != nil {
		return nil, fmt.Errorf("add group %q (id %d): %w", group.Name, id, err)
	}
	return &created, nil
}

// AddDevice clones the device template under parentID, waits for the clone
// to become visible, then applies the device's properties. Returns the
// created device with its platform id.
func (c *Client) AddDevice(ctx context.Context, device Device, parentID int) (*Device, error) {
	if c.templateDevice == 0 {
		return nil, errors.New("prtg: template_device not configured")
	}
	params := url.Values{}
	params.Set("id", strconv.Itoa(c.templateDevice))
	params.Set("name", device.Name)
	params.Set("host", device.Host)
	params.Set("targetid", strconv.Itoa(parentID))
	id, err := c.clone(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("add device %q: %w", device.Name, err)
	}
	if err := c.waitVisible(ctx, func(ctx context.Context) error {
		_, err := c.GetDevice(ctx, id)
		return err
	}); err != nil {
		return nil, fmt.Errorf("add device %q (id %d): %w", device.Name, id, err)
	}

	created := device
	created.ID = id
	created.ParentID = parentID
	if err := c.applyDeviceProps(ctx, &created); err != nil {
		return nil, fmt.Errorf("add device %q (id %d): %w", device.Name, id, err)
	}
	return &created, nil
}

func (c *Client) applyGroupProps(ctx context.Context, g *Group) error {
	if g.Active {
		if err := c.Resume(ctx, g.ID); err != nil {
			return err
		}
	} else {
		if err := c.Pause(ctx, g.ID); err != nil {
			return err
		}
	}
	if g.Priority != 0 {
		if err := c.SetPriority(ctx, g.ID, g.Priority); err != nil {
			return err
		}
	}
	if len(g.Tags) > 0 {
		if err := c.SetTags(ctx, g.ID, g.Tags); err != nil {
			return err
		}
	}
	if g.Location != "" {
		if err := c.SetLocation(ctx, g.ID, g.Location); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) applyDeviceProps(ctx context.Context, d *Device) error {
	if d.Active {
		if err := c.Resume(ctx, d.ID); err != nil {
			return err
		}
	} else {
		if err := c.Pause(ctx, d.ID); err != nil {
			return err
		}
	}
	if d.Priority != 0 {
		if err := c.SetPriority(ctx, d.ID, d.Priority); err != nil {
			return err
		}
	}
	if len(d.Tags) > 0 {
		if err := c.SetTags(ctx, d.ID, d.Tags); err != nil {
			return err
		}
	}
	if d.ServiceURL != "" {
		if err := c.SetServiceURL(ctx, d.ID, d.ServiceURL); err != nil {
			return err
		}
	}
	if d.Icon != "" {
		if err := c.SetIcon(ctx, d.ID, d.Icon); err != nil {
			return err
		}
	}
	if d.Location != "" {
		if err := c.SetLocation(ctx, d.ID, d.Location); err != nil {
			return err
		}
	}
	return nil
}

// Rename changes an object's display name.
func (c *Client) Rename(ctx context.Context, id int, name string) error {
	params := url.Values{}
	params.Set("id", strconv.Itoa(id))
	params.Set("value", name)
	if _, err := c.get(ctx, "/api/rename.htm", params); err != nil {
		return fmt.Errorf("rename %d: %w", id, err)
	}
	return nil
}

// SetHost changes the address a device is polled at.
func (c *Client) SetHost(ctx context.Context, id int, host string) error {
	return c.setProperty(ctx, id, "host", host)
}

// SetPriority sets an object's priority (1 to 5).
func (c *Client) SetPriority(ctx context.Context, id, value int) error {
	if value < 1 || value > 5 {
		return fmt.Errorf("prtg: priority must be between 1 and 5, got %d", value)
	}
	params := url.Values{}
	params.Set("id", strconv.Itoa(id))
	params.Set("prio", strconv.Itoa(value))
	if _, err := c.get(ctx, "/api/setpriority.htm", params); err != nil {
		return fmt.Errorf("set priority on %d: %w", id, err)
	}
	return nil
}

// SetTags replaces an object's tags. The platform splits the property on
// whitespace, so callers must supply whitespace-free tags.
func (c *Client) SetTags(ctx context.Context, id int, tags []string) error {
	return c.setProperty(ctx, id, "tags", strings.Join(tags, " "))
}

// SetLocation sets the geo location string.
func (c *Client) SetLocation(ctx context.Context, id int, location string) error {
	return c.setProperty(ctx, id, "location", location)
}

// SetServiceURL sets the back-link shown on the object's detail page.
func (c *Client) SetServiceURL(ctx context.Context, id int, serviceURL string) error {
	return c.setProperty(ctx, id, "serviceurl", serviceURL)
}

// SetIcon sets the device icon file.
func (c *Client) SetIcon(ctx context.Context, id int, icon string) error {
	return c.setProperty(ctx, id, "deviceicon", icon)
}

// SetInheritLocation toggles whether the object inherits its location from
// its parent.
func (c *Client) SetInheritLocation(ctx context.Context, id int, inherit bool) error {
	value := "0"
	if inherit {
		value = "1"
	}
	return c.setProperty(ctx, id, "locationgroup_", value)
}

// Resume activates monitoring on an object.
func (c *Client) Resume(ctx context.Context, id int) error {
	return c.pauseAction(ctx, id, 1)
}

// Pause suspends monitoring on an object.
func (c *Client) Pause(ctx context.Context, id int) error {
	return c.pauseAction(ctx, id, 0)
}

func (c *Client) pauseAction(ctx context.Context, id, action int) error {
	params := url.Values{}
	params.Set("id", strconv.Itoa(id))
	params.Set("action", strconv.Itoa(action))
	if _, err := c.get(ctx, "/api/pause.htm", params); err != nil {
		return fmt.Errorf("pause action %d on %d: %w", action, id, err)
	}
	return nil
}

// MoveObject reparents an object under targetID.
func (c *Client) MoveObject(ctx context.Context, id, targetID int) error {
	params := url.Values{}
	params.Set("id", strconv.Itoa(id))
	params.Set("targetid", strconv.Itoa(targetID))
	if _, err := c.get(ctx, "/api/moveobject.htm", params); err != nil {
		return fmt.Errorf("move %d under %d: %w", id, targetID, err)
	}
	return nil
}

// DeleteObject removes an object and everything below it.
func (c *Client) DeleteObject(ctx context.Context, id int) error {
	params := url.Values{}
	params.Set("id", strconv.Itoa(id))
	params.Set("approve", "1")
	if _, err := c.get(ctx, "/api/deleteobject.htm", params); err != nil {
		return fmt.Errorf("delete %d: %w", id, err)
	}
	return nil
}

// GetObjectProperty reads a single object property (e.g. "serviceurl",
// "deviceicon") that table queries do not expose.
func (c *Client) GetObjectProperty(ctx context.Context, id int, name string) (string, error) {
	params := url.Values{}
	params.Set("id", strconv.Itoa(id))
	params.Set("name", name)
	params.Set("show", "nohtmlencode")
	resp, err := c.get(ctx, "/api/getobjectproperty.htm", params)
	if err != nil {
		return "", fmt.Errorf("get property %s of %d: %w", name, id, err)
	}
	var out struct {
		Result string `xml:"result"`
	}
	if err := xml.Unmarshal(resp.body, &out); err != nil {
		return "", fmt.Errorf("unmarshal property %s of %d: %w", name, id, err)
	}
	return strings.TrimSpace(out.Result), nil
}

func (c *Client) setProperty(ctx context.Context, id int, name, value string) error {
	params := url.Values{}
	params.Set("id", strconv.Itoa(id))
	params.Set("name", name)
	params.Set("value", value)
	if _, err := c.get(ctx, "/api/setobjectproperty.htm", params); err != nil {
		return fmt.Errorf("set %s on %d: %w", name, id, err)
	}
	return nil
}

// clone duplicates a template object and returns the new object's id,
// parsed from the redirect target. On failure the platform serves an
// error page instead of redirecting, which would leave the template id in
// the final URL, so a missing redirect is treated as failure outright.
func (c *Client) clone(ctx context.Context, params url.Values) (int, error) {
	resp, err := c.get(ctx, "/api/duplicateobject.htm", params)
	if err != nil {
		return 0, err
	}
	if strings.HasSuffix(resp.finalURL.Path, "duplicateobject.htm") {
		return 0, errors.New("clone did not redirect to the new object")
	}
	id, err := strconv.Atoi(resp.finalURL.Query().Get("id"))
	if err != nil || id == 0 {
		return 0, fmt.Errorf("clone redirect %q carries no object id", resp.finalURL.Path)
	}
	return id, nil
}

// waitVisible polls until a freshly cloned object shows up in table
// queries. Clones apply asynchronously on the platform side, so a short
// window of not-found answers is normal.
func (c *Client) waitVisible(ctx context.Context, fetch func(context.Context) error) error {
	deadline := time.Now().Add(c.visibilityTimeout)
	delay := c.pollInterval
	for {
		err := fetch(ctx)
		if err == nil {
			return nil
		}
		if !isNotFound(err) || time.Now().After(deadline) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if delay < 4*time.Second {
			delay *= 2
		}
	}
}

func (c *Client) tableRows(ctx context.Context, content, columns string, filters url.Values) ([]tableRow, error) {
	params := url.Values{}
	params.Set("content", content)
	params.Set("columns", columns)
	for k, vs := range filters {
		for _, v := range vs {
			params.Add(k, v)
		}
	}
	resp, err := c.get(ctx, "/api/table.json", params)
	if err != nil {
		return nil, err
	}

	switch content {
	case "probes":
		var out probesResponse
		if err := json.Unmarshal(resp.body, &out); err != nil {
			return nil, fmt.Errorf("unmarshal probes table: %w", err)
		}
		return out.Probes, nil
	case "groups":
		var out groupsResponse
		if err := json.Unmarshal(resp.body, &out); err != nil {
			return nil, fmt.Errorf("unmarshal groups table: %w", err)
		}
		return out.Groups, nil
	default:
		var out devicesResponse
		if err := json.Unmarshal(resp.body, &out); err != nil {
			return nil, fmt.Errorf("unmarshal devices table: %w", err)
		}
		return out.Devices, nil
	}
}

type apiResponse struct {
	body     []byte
	finalURL *url.URL
}

// get performs a request with credentials attached and bounded retry on
// transient failures.
func (c *Client) get(ctx context.Context, path string, params url.Values) (*apiResponse, error) {
	merged := url.Values{}
	for k, vs := range c.auth {
		for _, v := range vs {
			merged.Add(k, v)
		}
	}
	for k, vs := range params {
		for _, v := range vs {
			merged.Add(k, v)
		}
	}
	rawURL := c.baseURL + path + "?" + merged.Encode()

	delay := c.backoff
	for attempt := 0; ; attempt++ {
		resp, err := c.getOnce(ctx, path, rawURL)
		if err == nil {
			return resp, nil
		}
		var re retryableError
		if !errors.As(err, &re) {
			return nil, err
		}
		if attempt == c.retries {
			return nil, &TransientError{Attempts: attempt + 1, Err: re.err}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (c *Client) getOnce(ctx context.Context, path, rawURL string) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	// Error messages carry the path only; the query string holds
	// credentials.
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, retryableError{fmt.Errorf("http GET %s: %w", path, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retryableError{fmt.Errorf("read response of %s: %w", path, err)}
	}

	if resp.StatusCode >= 400 {
		apiErr := fmt.Errorf("API %s returned %d: %s", path, resp.StatusCode, errorDetail(body))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, retryableError{apiErr}
		}
		return nil, apiErr
	}

	return &apiResponse{body: body, finalURL: resp.Request.URL}, nil
}

// errorDetail extracts the message from the platform's XML error body,
// falling back to the raw body.
func errorDetail(body []byte) string {
	var out struct {
		Error string `xml:"error"`
	}
	if err := xml.Unmarshal(body, &out); err == nil && out.Error != "" {
		return out.Error
	}
	return strings.TrimSpace(string(body))
}

func isNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
