// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/tcbridge/internal/bridge"
	"grimm.is/tcbridge/internal/config"
	"grimm.is/tcbridge/internal/errors"
	"grimm.is/tcbridge/internal/iface"
	"grimm.is/tcbridge/internal/logging"
	"grimm.is/tcbridge/internal/metrics"
	"grimm.is/tcbridge/internal/qos"
)

type fakeBridge struct {
	mu        sync.Mutex
	created   []string
	destroyed int
	createErr error
	ctxErr    error
	snap      bridge.Snapshot
}

func (f *fakeBridge) Create(ctx context.Context, ifaces []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctxErr = ctx.Err()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = ifaces
	f.snap.Active = true
	f.snap.Interfaces = ifaces
	f.snap.Status = bridge.StatusUp
	return nil
}

func (f *fakeBridge) Destroy(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctxErr = ctx.Err()
	f.destroyed++
	f.snap.Active = false
	f.snap.Interfaces = []string{}
	f.snap.Status = bridge.StatusDown
}

func (f *fakeBridge) Status(ctx context.Context) bridge.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

type fakeShaper struct {
	applied  []qos.RawRule
	cleared  [][]string
	applyErr error
	ctxErrs  []error
	status   map[string]qos.TcStatus
}

func (f *fakeShaper) ApplyRaw(ctx context.Context, raw qos.RawRule) (qos.Summary, error) {
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	if f.applyErr != nil {
		return qos.Summary{}, f.applyErr
	}
	f.applied = append(f.applied, raw)
	return qos.Summary{Message: "TC rules applied successfully to 1 interfaces (netem)"}, nil
}

func (f *fakeShaper) Clear(ctx context.Context, ifaces []string) (qos.Summary, error) {
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	f.cleared = append(f.cleared, ifaces)
	return qos.Summary{Message: "TC rules cleared from 1 interfaces"}, nil
}

func (f *fakeShaper) Status(ctx context.Context, dev string) (qos.TcStatus, error) {
	if dev == "bad!" {
		return qos.TcStatus{}, errors.New(errors.KindInvalidSpec, "invalid interface name")
	}
	st, ok := f.status[dev]
	if !ok {
		return qos.TcStatus{}, errors.Errorf(errors.KindNotFound, "interface %s not found", dev)
	}
	return st, nil
}

type fakeLister struct {
	list []iface.Info
	err  error
}

func (f fakeLister) List() ([]iface.Info, error) { return f.list, f.err }

// lockedBuffer collects log output written from handler and ws goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixture struct {
	srv    *Server
	bridge *fakeBridge
	shaper *fakeShaper
	logs   *lockedBuffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	br := &fakeBridge{snap: bridge.Snapshot{Name: "br0", Interfaces: []string{}, Status: bridge.StatusDown}}
	sh := &fakeShaper{status: map[string]qos.TcStatus{
		"eth0": {Interface: "eth0", HasRules: true, Description: "qdisc netem 1: root"},
	}}
	logs := &lockedBuffer{}
	srv := NewServer(Options{
		Bridge: br,
		Shaper: sh,
		Interfaces: fakeLister{list: []iface.Info{
			{Name: "eth0", IP: "10.0.0.2", Status: iface.StatusUp},
			{Name: "eth1", IP: iface.NoIP, Status: iface.StatusDown},
		}},
		TCDefaults:   *config.Default().TCDefaults,
		Metrics:      metrics.New(),
		ServeMetrics: true,
		Version:      "1.2.3",
		Logger:       logging.New(logging.Config{Level: logging.LevelInfo, Output: logs}),
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &fixture{srv: srv, bridge: br, shaper: sh, logs: logs}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestInterfaces(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "GET", "/api/interfaces", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var list []iface.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "eth0", list[0].Name)
	assert.Equal(t, iface.NoIP, list[1].IP)
}

func TestInterfaces_Error(t *testing.T) {
	srv := NewServer(Options{
		Bridge:     &fakeBridge{},
		Shaper:     &fakeShaper{},
		Interfaces: fakeLister{err: errors.New(errors.KindCommandFailed, "netlink unavailable")},
	})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/interfaces", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "netlink unavailable")
}

func TestBridgeLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "POST", "/api/bridge/create", `{"interfaces": ["eth0", "eth1"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "Bridge created successfully", resp.Message)
	assert.Equal(t, []string{"eth0", "eth1"}, f.bridge.created)

	rec = f.do(t, "GET", "/api/bridge/status", "")
	var snap bridge.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.True(t, snap.Active)
	assert.Equal(t, []string{"eth0", "eth1"}, snap.Interfaces)

	rec = f.do(t, "POST", "/api/bridge/destroy", "")
	resp = decodeResponse(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "Bridge destroyed successfully", resp.Message)
	assert.Equal(t, 1, f.bridge.destroyed)
}

func TestBridgeCreate_Failures(t *testing.T) {
	f := newFixture(t)

	resp := decodeResponse(t, f.do(t, "POST", "/api/bridge/create", `{"interfaces": []}`))
	assert.False(t, resp.Success)
	assert.Equal(t, "No interfaces selected", resp.Message)

	resp = decodeResponse(t, f.do(t, "POST", "/api/bridge/create", ""))
	assert.False(t, resp.Success)
	assert.Equal(t, "No interfaces selected", resp.Message)

	f.bridge.createErr = errors.New(errors.KindCommandFailed, "add_bridge: exit status 1")
	resp = decodeResponse(t, f.do(t, "POST", "/api/bridge/create", `{"interfaces": ["eth0"]}`))
	assert.False(t, resp.Success)
	assert.Equal(t, "Error creating bridge: add_bridge: exit status 1", resp.Message)
}

func TestMutationsOutliveClientDisconnect(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	send := func(path, body string) Response {
		req := httptest.NewRequest("POST", path, strings.NewReader(body)).WithContext(ctx)
		rec := httptest.NewRecorder()
		f.srv.Handler().ServeHTTP(rec, req)
		return decodeResponse(t, rec)
	}

	assert.True(t, send("/api/bridge/create", `{"interfaces": ["eth0"]}`).Success)
	assert.NoError(t, f.bridge.ctxErr)
	assert.True(t, send("/api/bridge/destroy", "").Success)
	assert.NoError(t, f.bridge.ctxErr)

	assert.True(t, send("/api/tc/apply", `{"interfaces": ["eth0"], "delay": 50}`).Success)
	assert.True(t, send("/api/tc/clear", `{"interfaces": ["eth0"]}`).Success)
	require.Len(t, f.shaper.ctxErrs, 2)
	for _, err := range f.shaper.ctxErrs {
		assert.NoError(t, err)
	}
}

func TestMutationFailureLogsAttributes(t *testing.T) {
	f := newFixture(t)

	err := errors.New(errors.KindCommandFailed, "ip link set eth1 master br0 exited with status 1")
	err = errors.Attr(err, "exit_code", 1)
	f.bridge.createErr = errors.Attr(err, "step", "add_interface")
	resp := decodeResponse(t, f.do(t, "POST", "/api/bridge/create", `{"interfaces": ["eth1"]}`))
	assert.False(t, resp.Success)

	f.shaper.applyErr = errors.Attr(errors.New(errors.KindCommandFailed, "tc failed"), "interface", "eth0")
	resp = decodeResponse(t, f.do(t, "POST", "/api/tc/apply", `{"interfaces": ["eth0"], "delay": 50}`))
	assert.False(t, resp.Success)

	logs := f.logs.String()
	assert.Contains(t, logs, `msg="bridge create failed"`)
	assert.Contains(t, logs, "step=add_interface")
	assert.Contains(t, logs, "exit_code=1")
	assert.Contains(t, logs, `msg="tc apply failed"`)
	assert.Contains(t, logs, "interface=eth0")
}

func TestMalformedBody(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "POST", "/api/bridge/create", `{"interfaces": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrInvalidBody, decodeResponse(t, rec).Message)
}

func TestBodyTooLarge(t *testing.T) {
	f := newFixture(t)
	big := `{"interfaces": ["` + strings.Repeat("a", int(DefaultServerConfig().MaxBodyBytes)) + `"]}`
	rec := f.do(t, "POST", "/api/bridge/create", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Nil(t, f.bridge.created)
}

func TestTCApply(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "POST", "/api/tc/apply", `{"interfaces": ["eth0"], "delay": "50", "packet_loss": 1}`)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Message, "applied successfully")
	require.Len(t, f.shaper.applied, 1)
	assert.Equal(t, []string{"eth0"}, f.shaper.applied[0].Interfaces)
	assert.JSONEq(t, `"50"`, string(f.shaper.applied[0].Delay))
}

func TestTCApply_Failures(t *testing.T) {
	f := newFixture(t)

	resp := decodeResponse(t, f.do(t, "POST", "/api/tc/apply", `{"delay": 10}`))
	assert.False(t, resp.Success)
	assert.Equal(t, "No interfaces selected for TC rules", resp.Message)

	f.shaper.applyErr = errors.New(errors.KindInvalidSpec, "packet_loss must be between 0 and 100")
	resp = decodeResponse(t, f.do(t, "POST", "/api/tc/apply", `{"interfaces": ["eth0"], "packet_loss": 200}`))
	assert.False(t, resp.Success)
	assert.Equal(t, "Invalid TC rule values: packet_loss must be between 0 and 100", resp.Message)

	f.shaper.applyErr = errors.New(errors.KindCommandFailed, "failed on eth0")
	resp = decodeResponse(t, f.do(t, "POST", "/api/tc/apply", `{"interfaces": ["eth0"]}`))
	assert.False(t, resp.Success)
	assert.Equal(t, "Error applying TC rules: failed on eth0", resp.Message)
}

func TestTCClear(t *testing.T) {
	f := newFixture(t)

	resp := decodeResponse(t, f.do(t, "POST", "/api/tc/clear", `{"interfaces": ["eth0"]}`))
	assert.True(t, resp.Success)
	assert.Equal(t, [][]string{{"eth0"}}, f.shaper.cleared)

	resp = decodeResponse(t, f.do(t, "POST", "/api/tc/clear", `{}`))
	assert.False(t, resp.Success)
	assert.Equal(t, "No interfaces selected for TC rules", resp.Message)
}

func TestTCStatus(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "GET", "/api/tc/status/eth0", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st qos.TcStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.HasRules)
	assert.Equal(t, "eth0", st.Interface)

	rec = f.do(t, "GET", "/api/tc/status/eth9", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, errors.KindNotFound.String(), body.Kind)

	rec = f.do(t, "GET", "/api/tc/status/bad!", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTCDefaults(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "GET", "/api/tc/defaults", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"bandwidth_mbit":100,"delay_ms":50,"jitter_ms":10,"packet_loss_pct":1}`, rec.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "GET", "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "1.2.3", health["version"])

	rec = f.do(t, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tcbridge_bridge_active")
}

func TestMetricsDisabled(t *testing.T) {
	srv := NewServer(Options{Bridge: &fakeBridge{}, Shaper: &fakeShaper{}, Interfaces: fakeLister{}, Metrics: metrics.New()})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouting(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusNotFound, f.do(t, "GET", "/api/nope", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(t, "GET", "/api/bridge/create", "").Code)
	assert.Empty(t, f.bridge.created)
}

func TestRequestID(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "GET", "/api/bridge/status", "")
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.NotEmpty(t, rec.Header().Get("Server"))

	req := httptest.NewRequest("GET", "/api/bridge/status", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestMaxBodyMiddleware_SkipsGet(t *testing.T) {
	var got int
	h := maxBodyMiddleware(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		n, _ := buf.ReadFrom(r.Body)
		got = int(n)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", strings.NewReader("0123456789")))
	assert.Equal(t, 10, got)
}
