package apiserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hypermesh-online/meshcoord/pkg/coordinator"
	"github.com/hypermesh-online/meshcoord/pkg/model"
	"github.com/hypermesh-online/meshcoord/pkg/store"
)

const (
	nodeKeyA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	nodeKeyB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func newTestServer(t *testing.T, opts ServerOptions) *Server {
	t.Helper()
	c := coordinator.New(coordinator.DefaultConfig(), store.NewMemoryStore())
	return NewServer(c, opts)
}

func doRequest(t *testing.T, srv *Server, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *strings.Reader
	if body == "" {
		rdr = strings.NewReader("")
	} else {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func joinNode(t *testing.T, srv *Server, key string) {
	t.Helper()
	body := `{"id":"` + key + `","address":"10.0.0.1:9000","capabilities":{"cpu_cores":8,"memory_bytes":17179869184,"supported":["cpu","memory"]}}`
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/nodes", body, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("join node: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, DefaultServerOptions())
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doRequest(t, srv, http.MethodGet, path, "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestJoinAndGetNode(t *testing.T) {
	srv := newTestServer(t, DefaultServerOptions())
	joinNode(t, srv, nodeKeyA)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/nodes", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list nodes: expected 200, got %d", rec.Code)
	}
	var nodes []model.NodeInfo
	if err := json.NewDecoder(rec.Body).Decode(&nodes); err != nil {
		t.Fatalf("decode node list: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(nodes))
	}
	if nodes[0].Status != model.StatusActive {
		t.Fatalf("expected active node, got %s", nodes[0].Status)
	}
	if nodes[0].NodeID.TrustScore != 1.0 {
		t.Fatalf("trust score should default to 1.0, got %v", nodes[0].NodeID.TrustScore)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/nodes/"+nodeKeyA, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get node: expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/nodes/"+nodeKeyB, "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown node: expected 404, got %d", rec.Code)
	}
}

func TestJoinNodeRejectsBadKey(t *testing.T) {
	srv := newTestServer(t, DefaultServerOptions())
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/nodes", `{"id":"not-hex"}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed node key, got %d", rec.Code)
	}
}

func TestNodeHeartbeatWithMetrics(t *testing.T) {
	srv := newTestServer(t, DefaultServerOptions())
	joinNode(t, srv, nodeKeyA)

	body := `{"metrics":{"cpu_utilization":0.4,"memory_utilization":0.3,"avg_response_ms":12,"success_rate":0.99},"available":{"cpu_cores":4,"memory_bytes":8589934592}}`
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/nodes/"+nodeKeyA+"/heartbeat", body, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("heartbeat: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/nodes/"+nodeKeyA, "", "")
	var info model.NodeInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode node: %v", err)
	}
	if info.Metrics.SuccessRate != 0.99 {
		t.Fatalf("metrics not applied: %+v", info.Metrics)
	}
	if info.Available.CPUCores != 4 {
		t.Fatalf("available not applied: %+v", info.Available)
	}
}

func TestAllocateAndFetchAsset(t *testing.T) {
	srv := newTestServer(t, DefaultServerOptions())
	joinNode(t, srv, nodeKeyA)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/assets",
		`{"id":"asset-1","type":"cpu","proof_valid":true}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("allocate: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var decision model.AllocationDecision
	if err := json.NewDecoder(rec.Body).Decode(&decision); err != nil {
		t.Fatalf("decode decision: %v", err)
	}
	if decision.TargetNode.Key() != nodeKeyA {
		t.Fatalf("asset placed on %s, expected %s", decision.TargetNode.Key(), nodeKeyA)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/assets/asset-1", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get asset: expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/assets/asset-999", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown asset: expected 404, got %d", rec.Code)
	}
}

func TestAllocateAssetRejectedProofIsConflict(t *testing.T) {
	srv := newTestServer(t, DefaultServerOptions())
	joinNode(t, srv, nodeKeyA)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/assets",
		`{"id":"asset-1","type":"cpu","proof_valid":false}`, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for rejected proof, got %d", rec.Code)
	}
}

func TestMigrateAsset(t *testing.T) {
	srv := newTestServer(t, DefaultServerOptions())
	joinNode(t, srv, nodeKeyA)
	joinNode(t, srv, nodeKeyB)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/assets",
		`{"id":"asset-1","type":"cpu","proof_valid":true}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("allocate: expected 201, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/assets/asset-1/migrate",
		`{"target":"`+nodeKeyB+`"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("migrate: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var st model.MigrationStatus
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.State != model.MigrationCompleted {
		t.Fatalf("expected completed migration, got %s", st.State)
	}
	// The target body names the asset by ID only; the plan must still carry
	// the tracked resource type.
	if st.Plan.AssetID.Type != model.ResourceCPU {
		t.Fatalf("plan lost the resource type: %+v", st.Plan.AssetID)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/assets/asset-999/migrate",
		`{"target":"`+nodeKeyB+`"}`, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown asset migrate: expected 404, got %d", rec.Code)
	}
}

func TestAuthRequiredWhenKeysConfigured(t *testing.T) {
	opts := DefaultServerOptions()
	opts.APIKeys = map[string]APIKeyInfo{
		"viewer-token": {Description: "ro", Role: RoleViewer},
		"agent-token":  {Description: "node-agent", Role: RoleAgent},
		"admin-token":  {Description: "rw", Role: RoleAdmin},
	}
	srv := newTestServer(t, opts)

	// Probes stay open.
	if rec := doRequest(t, srv, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz with auth enabled: expected 200, got %d", rec.Code)
	}

	if rec := doRequest(t, srv, http.MethodGet, "/api/v1/nodes", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", rec.Code)
	}
	if rec := doRequest(t, srv, http.MethodGet, "/api/v1/nodes", "", "bogus"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: expected 401, got %d", rec.Code)
	}
	if rec := doRequest(t, srv, http.MethodGet, "/api/v1/nodes", "", "viewer-token"); rec.Code != http.StatusOK {
		t.Fatalf("viewer read: expected 200, got %d", rec.Code)
	}

	// Viewers cannot write, admins can.
	body := `{"id":"` + nodeKeyA + `","capabilities":{"supported":["cpu"]}}`
	if rec := doRequest(t, srv, http.MethodPost, "/api/v1/nodes", body, "viewer-token"); rec.Code != http.StatusForbidden {
		t.Fatalf("viewer write: expected 403, got %d", rec.Code)
	}
	if rec := doRequest(t, srv, http.MethodPost, "/api/v1/nodes", body, "admin-token"); rec.Code != http.StatusCreated {
		t.Fatalf("admin write: expected 201, got %d", rec.Code)
	}
	if rec := doRequest(t, srv, http.MethodDelete, "/api/v1/nodes/"+nodeKeyA, "", "viewer-token"); rec.Code != http.StatusForbidden {
		t.Fatalf("viewer delete: expected 403, got %d", rec.Code)
	}

	// Agents may write to their self-reporting endpoints but nowhere else.
	agentBody := `{"id":"` + nodeKeyB + `","capabilities":{"supported":["cpu"]}}`
	if rec := doRequest(t, srv, http.MethodPost, "/api/v1/nodes", agentBody, "agent-token"); rec.Code != http.StatusCreated {
		t.Fatalf("agent join: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := doRequest(t, srv, http.MethodPost, "/api/v1/nodes/"+nodeKeyB+"/heartbeat", `{}`, "agent-token"); rec.Code != http.StatusOK {
		t.Fatalf("agent heartbeat: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	alloc := `{"id":"asset-1","type":"cpu","proof_valid":true}`
	if rec := doRequest(t, srv, http.MethodPost, "/api/v1/assets", alloc, "agent-token"); rec.Code != http.StatusForbidden {
		t.Fatalf("agent allocate: expected 403, got %d", rec.Code)
	}
	if rec := doRequest(t, srv, http.MethodDelete, "/api/v1/nodes/"+nodeKeyB, "", "agent-token"); rec.Code != http.StatusForbidden {
		t.Fatalf("agent delete: expected 403, got %d", rec.Code)
	}
}

func TestMarketRoundTrip(t *testing.T) {
	srv := newTestServer(t, DefaultServerOptions())
	provider, err := ParseNodeKey(nodeKeyA)
	if err != nil {
		t.Fatalf("parse provider key: %v", err)
	}
	consumer, err := ParseNodeKey(nodeKeyB)
	if err != nil {
		t.Fatalf("parse consumer key: %v", err)
	}

	offer, _ := json.Marshal(model.ResourceOffer{
		Provider: provider, ResourceType: model.ResourceCPU, Amount: 8, PricePerHour: 0.10,
	})
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/market/offers", string(offer), "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit offer: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	request, _ := json.Marshal(model.ResourceRequest{
		Consumer: consumer, ResourceType: model.ResourceCPU, Amount: 4,
		MaxPricePerHour: 0.20, Duration: 2 * time.Hour,
	})
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/market/requests", string(request), "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit request: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/market/agreements", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list agreements: expected 200, got %d", rec.Code)
	}
	var agreements []model.SharingAgreement
	if err := json.NewDecoder(rec.Body).Decode(&agreements); err != nil {
		t.Fatalf("decode agreements: %v", err)
	}
	if len(agreements) != 1 {
		t.Fatalf("expected 1 agreement, got %d", len(agreements))
	}
	if agreements[0].Status != model.AgreementActive {
		t.Fatalf("expected active agreement, got %s", agreements[0].Status)
	}
}

func TestPrometheusExposition(t *testing.T) {
	srv := newTestServer(t, DefaultServerOptions())
	rec := doRequest(t, srv, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rec.Code)
	}
	out := rec.Body.String()
	for _, series := range []string{"meshcoord_requests_total", "meshcoord_nodes_total", "meshcoord_events_processed_total"} {
		if !strings.Contains(out, series) {
			t.Fatalf("metrics output missing %s:\n%s", series, out)
		}
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(t, DefaultServerOptions())
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/status", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", rec.Code)
	}
	var m model.FleetMetrics
	if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
		t.Fatalf("decode fleet metrics: %v", err)
	}
}
