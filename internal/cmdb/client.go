// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

/*
Package cmdb reads configuration items from the ServiceNow Table API.

The reader queries cmdb_ci for installed, monitor-flagged items, resolves the
company and location references once per fetch, re-applies the scope rules
client-side and normalizes every record into a models.DeviceRecord. Records
missing a required field are rejected one by one; the fetch itself only fails
when ServiceNow cannot be reached.

API Reference: https://developer.servicenow.com/dev.do#!/reference/api/latest/rest/c_TableAPI
*/
package cmdb

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tomtom215/cmdbsync/internal/config"
	"github.com/tomtom215/cmdbsync/internal/upstream"
)

const tablePath = "/api/now/table/"

// field is one column of a record fetched with sysparm_display_value=all.
// Reference columns also carry a link.
type field struct {
	Value        string `json:"value"`
	DisplayValue string `json:"display_value"`
	Link         string `json:"link,omitempty"`
}

// record is a raw Table API row.
type record map[string]field

func (r record) value(name string) string {
	return r[name].Value
}

func (r record) display(name string) string {
	f := r[name]
	if f.DisplayValue != "" {
		return f.DisplayValue
	}
	return f.Value
}

type listResponse struct {
	Result []record `json:"result"`
}

type getResponse struct {
	Result record `json:"result"`
}

// Client is a ServiceNow Table API client.
type Client struct {
	api      *upstream.Client
	cfg      config.CMDBConfig
	pageSize int
}

// NewClient creates a ServiceNow client authenticating with basic auth.
func NewClient(cfg *config.CMDBConfig) *Client {
	return newClient(cfg, nil)
}

func newClient(cfg *config.CMDBConfig, httpClient *http.Client) *Client {
	username, password := cfg.Username, cfg.Password
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 500
	}
	return &Client{
		api: upstream.New(upstream.Options{
			System:     "cmdb",
			BaseURL:    cfg.BaseURL(),
			Timeout:    cfg.Timeout,
			RateLimit:  cfg.RateLimit,
			RateBurst:  cfg.RateBurst,
			HTTPClient: httpClient,
			Authorize: func(r *http.Request) {
				r.SetBasicAuth(username, password)
			},
		}),
		cfg:      *cfg,
		pageSize: pageSize,
	}
}

// BreakerState returns the circuit breaker state of the CMDB connection.
func (c *Client) BreakerState() string {
	return c.api.BreakerState()
}

// list pages through table with the encoded query, calling fn for every row.
func (c *Client) list(ctx context.Context, op, table, query string, fields []string, fn func(record) error) error {
	for offset := 0; ; offset += c.pageSize {
		params := url.Values{}
		params.Set("sysparm_query", query)
		params.Set("sysparm_display_value", "all")
		params.Set("sysparm_exclude_reference_link", "false")
		params.Set("sysparm_limit", strconv.Itoa(c.pageSize))
		params.Set("sysparm_offset", strconv.Itoa(offset))
		if len(fields) > 0 {
			params.Set("sysparm_fields", strings.Join(fields, ","))
		}

		var page listResponse
		if err := c.api.DoJSON(ctx, upstream.Request{
			Operation: op,
			Path:      tablePath + table,
			Query:     params,
		}, &page); err != nil {
			return err
		}

		for _, row := range page.Result {
			if err := fn(row); err != nil {
				return err
			}
		}
		if len(page.Result) < c.pageSize {
			return nil
		}
	}
}

// get fetches one record by sys_id.
func (c *Client) get(ctx context.Context, op, table, sysID string, fields []string) (record, error) {
	params := url.Values{}
	params.Set("sysparm_display_value", "all")
	if len(fields) > 0 {
		params.Set("sysparm_fields", strings.Join(fields, ","))
	}

	var resp getResponse
	if err := c.api.DoJSON(ctx, upstream.Request{
		Operation: op,
		Path:      tablePath + table + "/" + url.PathEscape(sysID),
		Query:     params,
	}, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// WriteBackMonitorID stores the monitor object ID on the configuration item.
func (c *Client) WriteBackMonitorID(ctx context.Context, sysID string, monitorID int) error {
	_, err := c.api.Do(ctx, upstream.Request{
		Operation: "writeback_monitor_id",
		Method:    http.MethodPatch,
		Path:      tablePath + "cmdb_ci/" + url.PathEscape(sysID),
		Body:      map[string]string{"u_prtg_id": strconv.Itoa(monitorID)},
	})
	if err != nil {
		return fmt.Errorf("write back monitor id for %s: %w", sysID, err)
	}
	return nil
}
