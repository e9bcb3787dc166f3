//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weir-lab/project-weir/internal/admin"
	"github.com/weir-lab/project-weir/internal/core/aggregation"
	"github.com/weir-lab/project-weir/internal/engine"
	"github.com/weir-lab/project-weir/internal/ingestion"
	"github.com/weir-lab/project-weir/internal/server"
)

// capturePublisher collects every result the engine emits so tests can
// assert on the publish side of the pipeline.
type capturePublisher struct {
	mu      sync.Mutex
	results []*aggregation.Result
}

func (p *capturePublisher) Publish(_ context.Context, res *aggregation.Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, res)
	return nil
}

func (p *capturePublisher) Results() []*aggregation.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*aggregation.Result, len(p.results))
	copy(out, p.results)
	return out
}

type integrationHarness struct {
	baseURL    string
	client     *http.Client
	engine     *engine.Engine
	published  *capturePublisher
	cancel     context.CancelFunc
	serverDone chan error
	engineDone chan error
}

func (h *integrationHarness) close(t *testing.T) {
	t.Helper()

	h.cancel()
	select {
	case <-h.serverDone:
	case <-time.After(5 * time.Second):
		t.Log("server shutdown timed out")
	}
	select {
	case <-h.engineDone:
	case <-time.After(5 * time.Second):
		t.Log("engine shutdown timed out")
	}
}

func startHarness(t *testing.T) *integrationHarness {
	t.Helper()

	published := &capturePublisher{}
	eng := engine.New(engine.Options{
		Publisher:     published,
		SweepInterval: 200 * time.Millisecond,
	})

	ingestionSvc := ingestion.NewService(eng, "organization_id", 1)
	adminSvc := admin.NewService(eng)

	port := freePort(t)
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	httpServer := server.New(addr, eng, "release")
	ingestionSvc.RegisterRoutes(httpServer.Engine)
	adminSvc.RegisterRoutes(httpServer.Engine)

	ctx, cancel := context.WithCancel(context.Background())
	serverDone := make(chan error, 1)
	engineDone := make(chan error, 1)
	go func() { serverDone <- httpServer.Run(ctx) }()
	go func() { engineDone <- eng.Run(ctx) }()

	baseURL := "http://" + addr
	waitForHealthy(t, baseURL)

	return &integrationHarness{
		baseURL:    baseURL,
		client:     &http.Client{Timeout: 5 * time.Second},
		engine:     eng,
		published:  published,
		cancel:     cancel,
		serverDone: serverDone,
		engineDone: engineDone,
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func waitForHealthy(t *testing.T, baseURL string) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, err := http.Get(baseURL + "/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)
}

func postJSON(t *testing.T, client *http.Client, endpoint string, payload interface{}) (int, []byte) {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, respBody
}

func TestCoreAPI_IngestAndForceClose(t *testing.T) {
	h := startHarness(t)
	defer h.close(t)

	// Register a tumbling sum over order amounts, grouped by region.
	status, body := postJSON(t, h.client, h.baseURL+"/v1/definitions", map[string]interface{}{
		"name": "order_totals",
		"match": map[string]interface{}{
			"event_types": []string{"order.created"},
		},
		"window": map[string]interface{}{
			"kind":     "tumbling",
			"duration": "1h",
		},
		"metrics": []map[string]interface{}{
			{"field": "amount", "operation": "sum", "group_by": []string{"region"}},
		},
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	// Two matching events on the same partition key, one unmatched type.
	for _, evt := range []map[string]interface{}{
		{
			"event_type": "order.created",
			"payload":    map[string]interface{}{"amount": 10, "region": "eu", "organization_id": "org-1"},
		},
		{
			"event_type": "order.created",
			"payload":    map[string]interface{}{"amount": 32.5, "region": "us", "organization_id": "org-1"},
		},
		{
			"event_type": "user.login",
			"payload":    map[string]interface{}{"organization_id": "org-1"},
		},
	} {
		status, body = postJSON(t, h.client, h.baseURL+"/v1/events", evt)
		require.Equal(t, http.StatusAccepted, status, string(body))
	}

	// Flush the open window and assert on the published result.
	status, body = postJSON(t, h.client, h.baseURL+"/v1/force-close", map[string]string{
		"aggregation":   "order_totals",
		"partition_key": "org-1",
	})
	require.Equal(t, http.StatusOK, status, string(body))

	require.Eventually(t, func() bool {
		return len(h.published.Results()) == 1
	}, 5*time.Second, 50*time.Millisecond)

	res := h.published.Results()[0]
	require.Equal(t, "order_totals", res.AggregationName)
	require.Equal(t, "org-1", res.PartitionKey)
	require.Equal(t, aggregation.CauseForceClose, res.Cause)
	require.EqualValues(t, 2, res.EventCount)

	metric := res.Metrics["amount"]
	require.Equal(t, "42.5", metric.Value.String())
	require.Len(t, metric.Groups, 2)
	require.Equal(t, "10", metric.Groups["eu"].Value.String())
	require.Equal(t, "32.5", metric.Groups["us"].Value.String())

	// Stats reflect the processed traffic.
	resp, err := h.client.Get(h.baseURL + "/v1/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var snap engine.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	require.EqualValues(t, 3, snap.EventsIngested)
	require.EqualValues(t, 1, snap.EventsUnmatched)
	require.EqualValues(t, 1, snap.WindowsClosed)
}

func TestCoreAPI_SweepClosesIdleSession(t *testing.T) {
	h := startHarness(t)
	defer h.close(t)

	status, body := postJSON(t, h.client, h.baseURL+"/v1/definitions", map[string]interface{}{
		"name": "user_sessions",
		"window": map[string]interface{}{
			"kind":        "session",
			"session_gap": "300ms",
		},
		"metrics": []map[string]interface{}{
			{"field": "page", "operation": "distinct"},
		},
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = postJSON(t, h.client, h.baseURL+"/v1/events", map[string]interface{}{
		"event_type":    "page.view",
		"partition_key": "user-7",
		"payload":       map[string]interface{}{"page": "/home"},
	})
	require.Equal(t, http.StatusAccepted, status, string(body))

	// The key goes idle; the sweep closes the session without another event.
	require.Eventually(t, func() bool {
		results := h.published.Results()
		return len(results) == 1 && results[0].Cause == aggregation.CauseSweep
	}, 5*time.Second, 50*time.Millisecond)

	res := h.published.Results()[0]
	require.Equal(t, "user_sessions", res.AggregationName)
	require.Equal(t, "user-7", res.PartitionKey)
	require.EqualValues(t, 1, res.EventCount)
}
