package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/hypermesh-online/meshcoord/pkg/model"
)

// heartbeatPayload mirrors the control plane's heartbeat request body.
type heartbeatPayload struct {
	Metrics   *model.PerformanceMetrics `json:"metrics,omitempty"`
	Available *model.AvailableResources `json:"available,omitempty"`
}

// sendHeartbeat POSTs to /api/v1/nodes/{id}/heartbeat, optionally including
// metrics and free capacity in the request body.
func sendHeartbeat(client *http.Client, serverURL string, id model.NodeID, metrics *model.PerformanceMetrics, avail *model.AvailableResources) error {
	url := serverURL + "/api/v1/nodes/" + id.Key() + "/heartbeat"
	var body io.Reader = http.NoBody
	if metrics != nil || avail != nil {
		b, err := json.Marshal(heartbeatPayload{Metrics: metrics, Available: avail})
		if err != nil {
			return fmt.Errorf("marshal heartbeat: %w", err)
		}
		body = bytes.NewReader(b)
	}
	resp, err := client.Post(url, "application/json", body)
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("heartbeat: status %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

// StartHeartbeatLoop runs periodic heartbeats at the given interval until ctx
// is cancelled. Each beat carries freshly probed metrics; a probe failure
// downgrades the beat to a bare heartbeat rather than skipping it.
func StartHeartbeatLoop(ctx context.Context, agent *NodeAgent, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log.Printf("agent: heartbeat loop started (every %s)", interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("agent: heartbeat loop stopped")
			return
		case <-ticker.C:
			metrics, avail, err := ProbeUtilization()
			if err != nil {
				log.Printf("agent: probe error: %v", err)
				if err := agent.Heartbeat(); err != nil {
					log.Printf("agent: heartbeat error: %v", err)
				}
				continue
			}
			if err := agent.ReportMetrics(metrics, avail); err != nil {
				log.Printf("agent: heartbeat error: %v", err)
			}
		}
	}
}
