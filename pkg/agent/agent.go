// Package agent implements the node-side agent that communicates with the
// coordination control plane via its REST API.
package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/hypermesh-online/meshcoord/pkg/model"
)

// NodeAgent runs on every mesh node. It registers with the control plane,
// sends periodic heartbeats with probed metrics, and reports which peers it
// can reach.
type NodeAgent struct {
	NodeID    model.NodeID
	ServerURL string
	Client    *http.Client
}

// NewNodeAgent creates a NodeAgent targeting the given control plane URL.
func NewNodeAgent(id model.NodeID, serverURL string) *NodeAgent {
	return &NodeAgent{
		NodeID:    id,
		ServerURL: serverURL,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// registerPayload mirrors the control plane's join request body.
type registerPayload struct {
	ID           string                 `json:"id"`
	Address      string                 `json:"address"`
	PublicKey    []byte                 `json:"public_key,omitempty"`
	TrustScore   float64                `json:"trust_score"`
	Capabilities model.NodeCapabilities `json:"capabilities"`
}

// Register joins this node to the fleet by POSTing to /api/v1/nodes. The
// capabilities are probed from the local hardware when caps is nil.
func (a *NodeAgent) Register(caps *model.NodeCapabilities) error {
	if caps == nil {
		probed := ProbeCapabilities()
		caps = &probed
	}
	payload := registerPayload{
		ID:           a.NodeID.Key(),
		Address:      a.NodeID.Address,
		PublicKey:    a.NodeID.PublicKey,
		TrustScore:   a.NodeID.TrustScore,
		Capabilities: *caps,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal registration: %w", err)
	}
	resp, err := a.Client.Post(a.ServerURL+"/api/v1/nodes", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("register node: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusConflict {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("register node: unexpected status %d: %s", resp.StatusCode, string(b))
	}
	log.Printf("agent: node %s registered", a.NodeID.ShortKey())
	return nil
}

// Heartbeat sends a single heartbeat without metrics.
func (a *NodeAgent) Heartbeat() error {
	return sendHeartbeat(a.Client, a.ServerURL, a.NodeID, nil, nil)
}

// ReportMetrics sends probed metrics and free capacity as part of the beat.
func (a *NodeAgent) ReportMetrics(m model.PerformanceMetrics, avail model.AvailableResources) error {
	return sendHeartbeat(a.Client, a.ServerURL, a.NodeID, &m, &avail)
}

// ReportReachability tells the control plane which peers this node can
// currently reach. The partition detector consumes these reports.
func (a *NodeAgent) ReportReachability(peers []model.NodeID) error {
	keys := make([]string, 0, len(peers))
	for _, p := range peers {
		keys = append(keys, p.Key())
	}
	body, err := json.Marshal(map[string][]string{"peers": keys})
	if err != nil {
		return fmt.Errorf("marshal reachability: %w", err)
	}
	url := a.ServerURL + "/api/v1/nodes/" + a.NodeID.Key() + "/reachability"
	resp, err := a.Client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("report reachability: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("report reachability: status %d: %s", resp.StatusCode, string(b))
	}
	return nil
}
