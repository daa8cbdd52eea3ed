// Package client is the HTTP client for the coordination control-plane API.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hypermesh-online/meshcoord/pkg/model"
)

// Client talks to the meshcoordd REST API.
type Client struct {
	baseURL   string
	authToken string
	http      *http.Client
}

// New returns a Client for the given server URL. token may be empty when the
// server runs without authentication.
func New(serverURL, token string) *Client {
	return &Client{
		baseURL:   serverURL,
		authToken: token,
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

// do performs an HTTP request with optional JSON body and decodes the JSON
// response into out (when out is non-nil).
func (c *Client) do(method, path string, body, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// --- Nodes ---

func (c *Client) ListNodes() ([]model.NodeInfo, error) {
	var nodes []model.NodeInfo
	err := c.do(http.MethodGet, "/api/v1/nodes", nil, &nodes)
	return nodes, err
}

func (c *Client) GetNode(key string) (*model.NodeInfo, error) {
	var node model.NodeInfo
	if err := c.do(http.MethodGet, "/api/v1/nodes/"+url.PathEscape(key), nil, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

func (c *Client) RemoveNode(key, reason string) error {
	path := "/api/v1/nodes/" + url.PathEscape(key)
	if reason != "" {
		path += "?reason=" + url.QueryEscape(reason)
	}
	return c.do(http.MethodDelete, path, nil, nil)
}

// --- Assets ---

func (c *Client) ListAssets() ([]model.DistributedAssetState, error) {
	var states []model.DistributedAssetState
	err := c.do(http.MethodGet, "/api/v1/assets", nil, &states)
	return states, err
}

func (c *Client) AllocateAsset(id string, rt model.ResourceType) (*model.AllocationDecision, error) {
	req := map[string]any{"id": id, "type": rt, "proof_valid": true}
	var decision model.AllocationDecision
	if err := c.do(http.MethodPost, "/api/v1/assets", req, &decision); err != nil {
		return nil, err
	}
	return &decision, nil
}

func (c *Client) MigrateAsset(id, targetKey string) (*model.MigrationStatus, error) {
	req := map[string]string{"target": targetKey}
	var st model.MigrationStatus
	if err := c.do(http.MethodPost, "/api/v1/assets/"+url.PathEscape(id)+"/migrate", req, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) ReleaseAsset(id string) error {
	return c.do(http.MethodDelete, "/api/v1/assets/"+url.PathEscape(id), nil, nil)
}

// --- Migrations ---

func (c *Client) ListMigrations() ([]model.MigrationStatus, error) {
	var out []model.MigrationStatus
	err := c.do(http.MethodGet, "/api/v1/migrations", nil, &out)
	return out, err
}

func (c *Client) MigrationHistory() ([]model.MigrationStatus, error) {
	var out []model.MigrationStatus
	err := c.do(http.MethodGet, "/api/v1/migrations/history", nil, &out)
	return out, err
}

func (c *Client) CancelMigration(assetID string) error {
	return c.do(http.MethodDelete, "/api/v1/migrations/"+url.PathEscape(assetID), nil, nil)
}

// --- Market ---

func (c *Client) SubmitOffer(offer model.ResourceOffer) error {
	return c.do(http.MethodPost, "/api/v1/market/offers", offer, nil)
}

func (c *Client) SubmitRequest(req model.ResourceRequest) ([]model.ResourceOffer, error) {
	var out struct {
		MatchedOffers []model.ResourceOffer `json:"matched_offers"`
	}
	err := c.do(http.MethodPost, "/api/v1/market/requests", req, &out)
	return out.MatchedOffers, err
}

func (c *Client) ListOffers() ([]model.ResourceOffer, error) {
	var out []model.ResourceOffer
	err := c.do(http.MethodGet, "/api/v1/market/offers", nil, &out)
	return out, err
}

func (c *Client) ListAgreements() ([]model.SharingAgreement, error) {
	var out []model.SharingAgreement
	err := c.do(http.MethodGet, "/api/v1/market/agreements", nil, &out)
	return out, err
}

func (c *Client) CancelAgreement(id string) error {
	return c.do(http.MethodPost, "/api/v1/market/agreements/"+url.PathEscape(id)+"/cancel", nil, nil)
}

func (c *Client) CompleteAgreement(id string) error {
	return c.do(http.MethodPost, "/api/v1/market/agreements/"+url.PathEscape(id)+"/complete", nil, nil)
}

// --- Topology and events ---

func (c *Client) GetTopology() (*model.NetworkTopology, error) {
	var topo model.NetworkTopology
	if err := c.do(http.MethodGet, "/api/v1/topology", nil, &topo); err != nil {
		return nil, err
	}
	return &topo, nil
}

func (c *Client) ListPartitions(openOnly bool) ([]model.NetworkPartition, error) {
	path := "/api/v1/topology/partitions"
	if openOnly {
		path += "?open=true"
	}
	var out []model.NetworkPartition
	err := c.do(http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) ListEvents(limit int) ([]model.Event, error) {
	var out []model.Event
	err := c.do(http.MethodGet, "/api/v1/events?limit="+strconv.Itoa(limit), nil, &out)
	return out, err
}

func (c *Client) FleetStatus() (*model.FleetMetrics, error) {
	var m model.FleetMetrics
	if err := c.do(http.MethodGet, "/api/v1/status", nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
