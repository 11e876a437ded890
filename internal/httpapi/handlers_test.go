package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"

	"github.com/hamed0406/reachmon/internal/config"
	"github.com/hamed0406/reachmon/internal/domain"
	apimw "github.com/hamed0406/reachmon/internal/httpapi/middleware"
	"github.com/hamed0406/reachmon/internal/monitor"
	"github.com/hamed0406/reachmon/internal/probe"
	"github.com/hamed0406/reachmon/internal/repo/memory"
	"github.com/hamed0406/reachmon/internal/sink"
)

// ---- test helpers ----

type fakeProber struct {
	ok bool
}

func (f fakeProber) Probe(_ context.Context, t domain.Target) domain.ProbeResult {
	if f.ok {
		return domain.Succeeded(t, time.Now(), 12*time.Millisecond)
	}
	return domain.Failed(t, time.Now(), domain.ReasonRefusedConnection, "connection refused")
}

type fakeScanner struct {
	open []int
}

func (f fakeScanner) Scan(_ context.Context, host string, ports []int, _ time.Duration, _ int) (probe.ScanReport, error) {
	rep := probe.ScanReport{Host: host, StartedAt: time.Now()}
	isOpen := map[int]bool{}
	for _, p := range f.open {
		isOpen[p] = true
	}
	for _, p := range ports {
		rep.Ports = append(rep.Ports, probe.PortStatus{Port: p, Open: isOpen[p]})
		if isOpen[p] {
			rep.Open = append(rep.Open, p)
		}
	}
	return rep, nil
}

type fakeDNS struct{}

func (fakeDNS) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	if host == "db.internal" {
		return []net.IPAddr{{IP: net.ParseIP("192.0.2.60")}}, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

func (fakeDNS) LookupCNAME(_ context.Context, host string) (string, error) { return host + ".", nil }

func (fakeDNS) LookupNS(context.Context, string) ([]*net.NS, error) { return nil, &net.DNSError{IsNotFound: true} }

type fixture struct {
	srv   *Server
	store *memory.Store
	ts    *httptest.Server
}

func setup(t *testing.T) *fixture {
	t.Helper()
	log := zap.NewNop()
	store := memory.New()
	defaults := config.Monitor{
		Interval:          time.Minute,
		Timeout:           2 * time.Second,
		FailureThreshold:  3,
		RecoveryThreshold: 2,
	}
	// the monitor is never run; registrations only touch its registry
	mon := monitor.New(log, fakeProber{ok: true}, sink.Discard{}, monitor.Options{Store: store})

	srv := &Server{
		Logger:      log,
		Monitor:     mon,
		Defaults:    defaults,
		Results:     store,
		Transitions: store,
		Scans:       store,
		Prober:      fakeProber{ok: true},
		Scanner:     fakeScanner{open: []int{22}},
		Resolver:    fakeDNS{},
		Metrics:     sdkmetric.NewManualReader(),
	}
	keys := apimw.Keys{
		Public: []string{"pub_test"},
		Admin:  []string{"adm_test"},
	}
	// very high rate limits to avoid flakiness in tests
	ts := httptest.NewServer(srv.Router(keys, nil, 10_000, 10_000, 10_000, 10_000))
	t.Cleanup(ts.Close)
	return &fixture{srv: srv, store: store, ts: ts}
}

func (f *fixture) do(t *testing.T, method, path, key string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, _ := http.NewRequest(method, f.ts.URL+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

// ---- tests ----

func TestAddTarget_OK_Duplicate_Invalid(t *testing.T) {
	f := setup(t)

	// 1) Add OK, defaults filled in
	resp := f.do(t, http.MethodPost, "/api/targets", "adm_test", map[string]any{"host": "198.51.100.7", "port": 443})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("want 201, got %d", resp.StatusCode)
	}
	var added domain.Target
	decodeBody(t, resp, &added)
	if added.ID == "" {
		t.Fatalf("expected an id")
	}
	if added.Interval != time.Minute || added.Timeout != 2*time.Second || added.FailureThreshold != 3 {
		t.Fatalf("defaults not applied: %+v", added)
	}

	// persisted through the monitor
	saved, _ := f.store.List(context.Background())
	if len(saved) != 1 || saved[0].ID != added.ID {
		t.Fatalf("store = %+v", saved)
	}

	// 2) Same host and port -> 409 with the existing id
	resp = f.do(t, http.MethodPost, "/api/targets", "adm_test", map[string]any{"host": "198.51.100.7", "port": 443})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("want 409, got %d", resp.StatusCode)
	}
	var dup map[string]string
	decodeBody(t, resp, &dup)
	if dup["id"] != string(added.ID) {
		t.Fatalf("conflict id = %q, want %q", dup["id"], added.ID)
	}

	// 3) Invalid host -> 400
	resp = f.do(t, http.MethodPost, "/api/targets", "adm_test", map[string]any{"host": "bad host!"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", resp.StatusCode)
	}

	// 4) Timeout above interval -> 400
	resp = f.do(t, http.MethodPost, "/api/targets", "adm_test", map[string]any{
		"host": "192.0.2.1", "port": 22, "interval": "1s", "timeout": "5s",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", resp.StatusCode)
	}
}

func TestAddTarget_RequiresAdmin(t *testing.T) {
	f := setup(t)

	resp := f.do(t, http.MethodPost, "/api/targets", "", map[string]any{"host": "192.0.2.1"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no key: want 401, got %d", resp.StatusCode)
	}
	resp = f.do(t, http.MethodPost, "/api/targets", "pub_test", map[string]any{"host": "192.0.2.1"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("public key: want 403, got %d", resp.StatusCode)
	}
}

func TestGetListDeleteTarget(t *testing.T) {
	f := setup(t)
	id, err := f.srv.Monitor.Register(context.Background(), domain.Target{
		Host: "192.0.2.10", Port: 80,
		Interval: time.Minute, Timeout: time.Second,
		FailureThreshold: 3, RecoveryThreshold: 2,
	})
	if err != nil {
		t.Fatal(err)
	}

	resp := f.do(t, http.MethodGet, "/api/targets", "pub_test", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: want 200, got %d", resp.StatusCode)
	}
	var list []domain.Target
	decodeBody(t, resp, &list)
	if len(list) != 1 || list[0].ID != id {
		t.Fatalf("list = %+v", list)
	}

	resp = f.do(t, http.MethodGet, "/api/targets/"+string(id), "pub_test", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: want 200, got %d", resp.StatusCode)
	}
	var view struct {
		Target domain.Target       `json:"target"`
		State  *domain.TargetState `json:"state"`
	}
	decodeBody(t, resp, &view)
	if view.State == nil || view.State.Status != domain.StatusUnknown {
		t.Fatalf("state = %+v, want unknown", view.State)
	}

	resp = f.do(t, http.MethodDelete, "/api/targets/"+string(id), "adm_test", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: want 204, got %d", resp.StatusCode)
	}
	resp = f.do(t, http.MethodGet, "/api/targets/"+string(id), "pub_test", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: want 404, got %d", resp.StatusCode)
	}

	// deleting again is a no-op
	resp = f.do(t, http.MethodDelete, "/api/targets/"+string(id), "adm_test", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("second delete: want 204, got %d", resp.StatusCode)
	}
}

func TestResultsAndTransitions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	tgt := domain.Target{ID: "t1", Host: "192.0.2.20", Port: 22}
	base := time.Now().Add(-time.Minute)

	for i := 0; i < 3; i++ {
		_ = f.store.Append(ctx, domain.Failed(tgt, base.Add(time.Duration(i)*time.Second), domain.ReasonTimeout, "i/o timeout"))
	}
	_ = f.store.AppendTransition(ctx, domain.TransitionEvent{
		TargetID: "t1", Host: tgt.Host, Port: tgt.Port,
		From: domain.StatusUnknown, To: domain.StatusDown, At: base,
	})

	resp := f.do(t, http.MethodGet, "/api/targets/t1/results?limit=2", "pub_test", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history: want 200, got %d", resp.StatusCode)
	}
	var hist []map[string]any
	decodeBody(t, resp, &hist)
	if len(hist) != 2 {
		t.Fatalf("history len = %d, want 2", len(hist))
	}
	if hist[0]["reason"] != "timeout" {
		t.Fatalf("reason = %v", hist[0]["reason"])
	}
	if _, ok := hist[0]["latency_ms"]; ok {
		t.Fatalf("failed result must not carry latency_ms")
	}

	resp = f.do(t, http.MethodGet, "/api/results/latest", "pub_test", nil)
	var latest []map[string]any
	decodeBody(t, resp, &latest)
	if len(latest) != 1 {
		t.Fatalf("latest len = %d, want 1", len(latest))
	}

	resp = f.do(t, http.MethodGet, "/api/targets/t1/transitions", "pub_test", nil)
	var trans []domain.TransitionEvent
	decodeBody(t, resp, &trans)
	if len(trans) != 1 || trans[0].To != domain.StatusDown {
		t.Fatalf("transitions = %+v", trans)
	}

	// unknown target: empty list, not null
	resp = f.do(t, http.MethodGet, "/api/targets/nope/transitions", "pub_test", nil)
	var empty []domain.TransitionEvent
	decodeBody(t, resp, &empty)
	if empty == nil || len(empty) != 0 {
		t.Fatalf("want empty list, got %v", empty)
	}
}

func TestAdhocProbe(t *testing.T) {
	f := setup(t)

	resp := f.do(t, http.MethodPost, "/api/probe", "adm_test", map[string]any{"host": "192.0.2.30", "port": 443})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	var res map[string]any
	decodeBody(t, resp, &res)
	if res["success"] != true || res["method"] != "tcp" {
		t.Fatalf("probe = %v", res)
	}

	// not tracked
	if n := len(f.srv.Monitor.List()); n != 0 {
		t.Fatalf("ad-hoc probe registered %d targets", n)
	}

	resp = f.do(t, http.MethodPost, "/api/probe", "adm_test", map[string]any{"host": "192.0.2.30", "timeout": "soon"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad timeout: want 400, got %d", resp.StatusCode)
	}
}

func TestScanPersistsAndLists(t *testing.T) {
	f := setup(t)

	resp := f.do(t, http.MethodPost, "/api/scan", "adm_test", map[string]any{"host": "192.0.2.40", "ports": "21-23"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("scan: want 200, got %d", resp.StatusCode)
	}
	var rep probe.ScanReport
	decodeBody(t, resp, &rep)
	if len(rep.Ports) != 3 || len(rep.Open) != 1 || rep.Open[0] != 22 {
		t.Fatalf("report = %+v", rep)
	}

	resp = f.do(t, http.MethodGet, "/api/scans?host=192.0.2.40", "pub_test", nil)
	var rows []map[string]any
	decodeBody(t, resp, &rows)
	if len(rows) != 3 {
		t.Fatalf("scan rows = %d, want 3", len(rows))
	}

	resp = f.do(t, http.MethodPost, "/api/scan", "adm_test", map[string]any{"host": "192.0.2.40", "ports": "0-5"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad ports: want 400, got %d", resp.StatusCode)
	}
	resp = f.do(t, http.MethodPost, "/api/scan", "adm_test", map[string]any{"host": "192.0.2.40", "ports": "22", "workers": 100000})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("too many workers: want 400, got %d", resp.StatusCode)
	}
	resp = f.do(t, http.MethodPost, "/api/scan", "adm_test", map[string]any{"host": "a b", "ports": "22"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad host: want 400, got %d", resp.StatusCode)
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	f := setup(t)

	resp := f.do(t, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: want 200, got %d", resp.StatusCode)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(f.srv.Metrics))
	m, err := sink.NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatal(err)
	}
	tgt := domain.Target{ID: "t1", Host: "192.0.2.50", Port: 80}
	_ = m.RecordResult(context.Background(), domain.Succeeded(tgt, time.Now(), 5*time.Millisecond))

	resp = f.do(t, http.MethodGet, "/api/metrics", "pub_test", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics: want 200, got %d", resp.StatusCode)
	}
	var points []metricPoint
	decodeBody(t, resp, &points)
	var sawCount, sawLatency bool
	for _, p := range points {
		switch p.Name {
		case "reachmon.probe.results":
			sawCount = p.Value == 1 && p.Attributes["outcome"] == "success"
		case "reachmon.probe.latency":
			sawLatency = p.Count == 1
		}
	}
	if !sawCount || !sawLatency {
		t.Fatalf("points = %+v", points)
	}
}

func TestDNSDiagnose(t *testing.T) {
	f := setup(t)

	resp := f.do(t, http.MethodGet, "/api/dns?host=db.internal", "pub_test", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	var rep probe.DNSReport
	decodeBody(t, resp, &rep)
	if rep.Class != probe.DNSResolves || len(rep.Addresses) != 1 {
		t.Fatalf("report = %+v", rep)
	}

	resp = f.do(t, http.MethodGet, "/api/dns?host=gone.internal", "pub_test", nil)
	decodeBody(t, resp, &rep)
	if rep.Class != probe.DNSNXDomain {
		t.Fatalf("class = %q, want nxdomain", rep.Class)
	}

	resp = f.do(t, http.MethodGet, "/api/dns", "pub_test", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing host: want 400, got %d", resp.StatusCode)
	}
}
