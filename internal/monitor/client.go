// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tomtom215/cmdbsync/internal/config"
	"github.com/tomtom215/cmdbsync/internal/logging"
	"github.com/tomtom215/cmdbsync/internal/models"
	"github.com/tomtom215/cmdbsync/internal/upstream"
)

// Client is a PRTG HTTP API client.
type Client struct {
	api    *upstream.Client
	rootID int
	resume bool
}

// tableObject is one row of /api/table.json.
type tableObject struct {
	ObjID    int    `json:"objid"`
	Name     string `json:"name"`
	ParentID int    `json:"parentid"`
	Host     string `json:"host"`
	Tags     string `json:"tags"`
}

type tableResponse struct {
	Groups  []tableObject `json:"groups"`
	Devices []tableObject `json:"devices"`
}

// NewClient creates a PRTG client.
func NewClient(cfg *config.MonitorConfig) *Client {
	return newClient(cfg, &http.Client{})
}

func newClient(cfg *config.MonitorConfig, httpClient *http.Client) *Client {
	// Clone responses redirect to the new object; the ID is read from Location.
	hc := *httpClient
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	token, username, passhash := cfg.APIToken, cfg.Username, cfg.Passhash
	return &Client{
		api: upstream.New(upstream.Options{
			System:     "monitor",
			BaseURL:    cfg.URL,
			Timeout:    cfg.Timeout,
			RateLimit:  cfg.RateLimit,
			RateBurst:  cfg.RateBurst,
			HTTPClient: &hc,
			Authorize: func(r *http.Request) {
				q := r.URL.Query()
				if token != "" {
					q.Set("apitoken", token)
				} else {
					q.Set("username", username)
					q.Set("passhash", passhash)
				}
				r.URL.RawQuery = q.Encode()
			},
		}),
		rootID: cfg.RootGroupID,
		resume: cfg.ResumeCreated,
	}
}

// BreakerState returns the circuit breaker state of the monitor connection.
func (c *Client) BreakerState() string {
	return c.api.BreakerState()
}

func (c *Client) table(ctx context.Context, op, content string, filter url.Values) ([]tableObject, error) {
	params := url.Values{}
	params.Set("content", content)
	params.Set("columns", "objid,name,parentid,host,tags")
	params.Set("count", "*")
	for k, vs := range filter {
		params[k] = vs
	}

	var resp tableResponse
	if err := c.api.DoJSON(ctx, upstream.Request{
		Operation: op,
		Path:      "/api/table.json",
		Query:     params,
	}, &resp); err != nil {
		return nil, err
	}
	if content == "devices" {
		return resp.Devices, nil
	}
	return resp.Groups, nil
}

func (c *Client) children(ctx context.Context, content string, parentID int) ([]tableObject, error) {
	return c.table(ctx, "fetch_"+content, content, url.Values{"filter_parentid": {strconv.Itoa(parentID)}})
}

// FetchTree implements Reader. Company groups are looked up directly under
// the configured root group.
func (c *Client) FetchTree(ctx context.Context, name string) (*models.MonitorGroup, error) {
	companies, err := c.children(ctx, "groups", c.rootID)
	if err != nil {
		return nil, fmt.Errorf("fetch company groups: %w", err)
	}

	key := models.NormalizeName(name)
	var company *models.MonitorGroup
	for _, g := range companies {
		if models.NormalizeName(g.Name) == key {
			company = &models.MonitorGroup{ID: g.ObjID, Name: g.Name, ParentID: g.ParentID}
			break
		}
	}
	if company == nil {
		return nil, nil
	}

	locations, err := c.children(ctx, "groups", company.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch location groups of %s: %w", name, err)
	}
	company.Devices, err = c.devices(ctx, company.ID)
	if err != nil {
		return nil, err
	}
	for _, l := range locations {
		loc := &models.MonitorGroup{ID: l.ObjID, Name: l.Name, ParentID: l.ParentID}
		if loc.Devices, err = c.devices(ctx, loc.ID); err != nil {
			return nil, err
		}
		company.Groups = append(company.Groups, loc)
	}

	logging.Ctx(ctx).Debug().Str("company", name).Int("group_id", company.ID).
		Int("locations", len(company.Groups)).Int("devices", company.DeviceCount()).Msg("Fetched monitor tree")
	return company, nil
}

func (c *Client) devices(ctx context.Context, parentID int) ([]*models.MonitorDevice, error) {
	rows, err := c.children(ctx, "devices", parentID)
	if err != nil {
		return nil, fmt.Errorf("fetch devices of group %d: %w", parentID, err)
	}
	out := make([]*models.MonitorDevice, 0, len(rows))
	for _, d := range rows {
		out = append(out, &models.MonitorDevice{
			ID:       d.ObjID,
			Name:     d.Name,
			ParentID: d.ParentID,
			Host:     d.Host,
			Tags:     strings.Fields(d.Tags),
		})
	}
	return out, nil
}

// TemplateExists implements TemplateSource.
func (c *Client) TemplateExists(ctx context.Context, kind models.NodeKind, id int) (bool, error) {
	content := "groups"
	if kind == models.KindDevice {
		content = "devices"
	}
	rows, err := c.table(ctx, "template_exists", content, url.Values{"filter_objid": {strconv.Itoa(id)}})
	if err != nil {
		return false, err
	}
	for _, r := range rows {
		if r.ObjID == id {
			return true, nil
		}
	}
	return false, nil
}

// CloneGroup implements TemplateSource.
func (c *Client) CloneGroup(ctx context.Context, spec models.GroupSpec) (int, error) {
	id, err := c.duplicate(ctx, spec.TemplateID, spec.Name, spec.ParentID, "")
	if err != nil {
		return 0, fmt.Errorf("clone group %q: %w", spec.Name, err)
	}
	if err := c.resumeObject(ctx, id); err != nil {
		return id, fmt.Errorf("resume group %q: %w", spec.Name, err)
	}
	return id, nil
}

// CloneDevice implements TemplateSource.
func (c *Client) CloneDevice(ctx context.Context, spec *models.DeviceSpec) (int, error) {
	id, err := c.duplicate(ctx, spec.TemplateID, spec.Name, spec.ParentID, spec.Host)
	if err != nil {
		return 0, fmt.Errorf("clone device %q: %w", spec.Name, err)
	}
	if err := c.applyDevice(ctx, id, spec); err != nil {
		return id, fmt.Errorf("configure device %q (%d): %w", spec.Name, id, err)
	}
	if err := c.resumeObject(ctx, id); err != nil {
		return id, fmt.Errorf("resume device %q (%d): %w", spec.Name, id, err)
	}
	return id, nil
}

func (c *Client) applyDevice(ctx context.Context, id int, spec *models.DeviceSpec) error {
	props := []struct{ name, value string }{
		{"serviceurl", spec.ServiceURL},
		{"location", spec.Location},
		{"tags", strings.Join(spec.Tags, " ")},
		{"deviceicon", spec.Icon},
	}
	if spec.Location != "" {
		// The location is the device's own, not the group's.
		props = append(props, struct{ name, value string }{"locationgroup", "0"})
	}
	for _, p := range props {
		if p.value == "" {
			continue
		}
		if err := c.setProperty(ctx, id, p.name, p.value); err != nil {
			return err
		}
	}

	if spec.Priority > 0 {
		if err := c.setPriority(ctx, id, spec.Priority); err != nil {
			return err
		}
	}

	creds := spec.Credentials
	if creds.InheritSetting == "" || creds.Inherits() {
		return nil
	}
	if err := c.setProperty(ctx, id, creds.InheritSetting, "0"); err != nil {
		return err
	}
	for _, f := range creds.Fields {
		if !f.Overrides() {
			continue
		}
		if err := c.setProperty(ctx, id, f.Setting, f.Value); err != nil {
			return err
		}
	}
	return nil
}

// duplicate clones templateID under targetID and returns the new object ID.
func (c *Client) duplicate(ctx context.Context, templateID int, name string, targetID int, host string) (int, error) {
	params := url.Values{}
	params.Set("id", strconv.Itoa(templateID))
	params.Set("name", name)
	params.Set("targetid", strconv.Itoa(targetID))
	if host != "" {
		params.Set("host", host)
	}

	resp, err := c.api.Do(ctx, upstream.Request{
		Operation: "clone",
		Path:      "/api/duplicateobject.htm",
		Query:     params,
	})
	if err != nil {
		var se *upstream.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(se.Body), "not valid") {
			return 0, fmt.Errorf("%w: %d: %w", models.ErrTemplateNotFound, templateID, err)
		}
		return 0, err
	}

	id := parseObjectID(resp)
	if id == 0 || id == templateID {
		return 0, fmt.Errorf("clone of %d returned no new object id", templateID)
	}
	return id, nil
}

// parseObjectID reads the id parameter of the redirect target.
func parseObjectID(resp *upstream.Response) int {
	target := resp.Header.Get("Location")
	if target == "" && resp.URL != nil {
		target = resp.URL.String()
	}
	u, err := url.Parse(target)
	if err != nil {
		return 0
	}
	id, err := strconv.Atoi(u.Query().Get("id"))
	if err != nil {
		return 0
	}
	return id
}

func (c *Client) setProperty(ctx context.Context, id int, name, value string) error {
	_, err := c.api.Do(ctx, upstream.Request{
		Operation: "set_property",
		Path:      "/api/setobjectproperty.htm",
		Query:     url.Values{"id": {strconv.Itoa(id)}, "name": {name}, "value": {value}},
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	return nil
}

func (c *Client) setPriority(ctx context.Context, id, prio int) error {
	if prio < 1 || prio > 5 {
		return fmt.Errorf("priority %d out of range 1..5", prio)
	}
	_, err := c.api.Do(ctx, upstream.Request{
		Operation: "set_priority",
		Path:      "/api/setpriority.htm",
		Query:     url.Values{"id": {strconv.Itoa(id)}, "prio": {strconv.Itoa(prio)}},
	})
	if err != nil {
		return fmt.Errorf("set priority: %w", err)
	}
	return nil
}

// resumeObject unpauses a clone. Clones start paused.
func (c *Client) resumeObject(ctx context.Context, id int) error {
	if !c.resume {
		return nil
	}
	_, err := c.api.Do(ctx, upstream.Request{
		Operation: "resume",
		Path:      "/api/pause.htm",
		Query:     url.Values{"id": {strconv.Itoa(id)}, "action": {"1"}},
	})
	return err
}
