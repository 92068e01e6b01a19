package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/3leaps/spoolwatch/internal/errors"
	"github.com/3leaps/spoolwatch/internal/metrics"
	"github.com/3leaps/spoolwatch/internal/server/handlers"
	"github.com/3leaps/spoolwatch/pkg/detect"
	"github.com/3leaps/spoolwatch/pkg/eventlog"
	"github.com/3leaps/spoolwatch/pkg/history"
	"github.com/3leaps/spoolwatch/pkg/monitor"
	"github.com/3leaps/spoolwatch/pkg/provider/fixture"
	"github.com/3leaps/spoolwatch/pkg/provider/handles"
	"github.com/3leaps/spoolwatch/pkg/query"
	"github.com/3leaps/spoolwatch/pkg/spool"
)

func newTestServer(t *testing.T) (*Server, *fixture.Spooler, *history.Store) {
	t.Helper()
	sp := fixture.New(&fixture.State{Devices: []fixture.Device{
		{
			Name: "Office",
			Jobs: []fixture.Job{
				{ID: 1, Document: "report.pdf", TotalPages: 3},
				{ID: 2, Document: "memo.txt", TotalPages: 1},
			},
		},
		{Name: "Lobby", ReadOnly: true},
	}})
	svc := query.New(handles.New(sp, handles.Options{}), nil)

	store, err := history.Open(context.Background(), history.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	srv := New("127.0.0.1", 0,
		WithDevices(&handlers.DeviceHandlers{Devices: svc, Events: store, Sessions: store}),
		WithWatch(svc.Reader(), monitor.Options{Interval: 20 * time.Millisecond, StopGrace: time.Second, WatchDevice: true}),
		WithMetrics(metrics.NewCollector(), "/metrics"),
	)
	return srv, sp, store
}

func serve(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.HTTPError {
	t.Helper()
	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv := New("127.0.0.1", 0)

	rec := serve(t, srv, http.MethodGet, "/does-not-exist")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_Port(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"default port", 8080},
		{"custom port", 9000},
		{"zero port", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New("127.0.0.1", tt.port)
			assert.Equal(t, tt.port, srv.Port())
		})
	}

	assert.Equal(t, "127.0.0.1:9000", New("127.0.0.1", 9000).Addr())
}

func TestServer_MethodNotAllowed(t *testing.T) {
	srv := New("127.0.0.1", 0)

	rec := serve(t, srv, http.MethodPost, "/version")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "METHOD_NOT_ALLOWED", decodeError(t, rec).Code)
}

func TestServer_RoutesRegistered(t *testing.T) {
	handlers.InitHealthManager("test")
	srv, _, _ := newTestServer(t)

	endpoints := []struct {
		method string
		path   string
		want   int
	}{
		{"GET", "/health", http.StatusOK},
		{"GET", "/health/live", http.StatusOK},
		{"GET", "/health/ready", http.StatusOK},
		{"GET", "/health/startup", http.StatusOK},
		{"GET", "/version", http.StatusOK},
		{"GET", "/metrics", http.StatusOK},
		{"GET", "/devices", http.StatusOK},
		{"GET", "/devices/Office/status", http.StatusOK},
		{"GET", "/devices/Office/paper", http.StatusOK},
		{"GET", "/devices/Office/jobs", http.StatusOK},
		{"GET", "/devices/Office/jobs/1", http.StatusOK},
		{"GET", "/devices/Office/history?window=1h", http.StatusOK},
		{"GET", "/devices/Office/events", http.StatusOK},
		{"GET", "/sessions", http.StatusOK},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			rec := serve(t, srv, ep.method, ep.path)
			assert.Equal(t, ep.want, rec.Code, "endpoint %s %s should return %d", ep.method, ep.path, ep.want)
		})
	}
}

func TestServer_DevicesOmittedWithoutService(t *testing.T) {
	srv := New("127.0.0.1", 0)
	assert.Equal(t, http.StatusNotFound, serve(t, srv, http.MethodGet, "/devices").Code)
	assert.Equal(t, http.StatusNotFound, serve(t, srv, http.MethodGet, "/metrics").Code)
}

func TestServer_Jobs(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := serve(t, srv, http.MethodGet, "/devices/Office/jobs")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Device string            `json:"device"`
		Count  int               `json:"count"`
		Jobs   []spool.JobRecord `json:"jobs"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "Office", body.Device)
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "report.pdf", body.Jobs[0].DocumentName)

	rec = serve(t, srv, http.MethodGet, "/devices/Office/jobs/99")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)

	rec = serve(t, srv, http.MethodGet, "/devices/Office/jobs/abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Controls(t *testing.T) {
	srv, sp, _ := newTestServer(t)

	rec := serve(t, srv, http.MethodPost, "/devices/Office/jobs/2/cancel")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, sp.Jobs("Office"), 1)

	rec = serve(t, srv, http.MethodPost, "/devices/Office/jobs/1/explode")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, srv, http.MethodPost, "/devices/Office/jobs/42/pause")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, srv, http.MethodPost, "/devices/Lobby/pause")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", decodeError(t, rec).Code)

	rec = serve(t, srv, http.MethodPost, "/devices/Office/purge")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, sp.Jobs("Office"))

	rec = serve(t, srv, http.MethodPost, "/devices/Nowhere/pause")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Events(t *testing.T) {
	srv, _, store := newTestServer(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute).UTC()
	for i, k := range []detect.Kind{detect.KindJobAdded, detect.KindJobRemoved, detect.KindJobAdded} {
		_, err := store.Append(ctx, "sess-1", detect.Event{Kind: k, Device: "Office", JobID: i + 1, Timestamp: base.Add(time.Duration(i) * time.Second)})
		require.NoError(t, err)
	}

	var body struct {
		Count  int             `json:"count"`
		Events []history.Entry `json:"events"`
	}
	rec := serve(t, srv, http.MethodGet, "/devices/Office/events?kind=job_added&limit=10")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, 3, body.Events[0].JobID)
	assert.Equal(t, eventlog.TypeJobAdded, body.Events[0].Record.Type)

	rec = serve(t, srv, http.MethodGet, "/devices/Office/events?kind=bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, srv, http.MethodGet, "/devices/Office/events?since=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, srv, http.MethodGet, "/devices/Office/events?since=1h&job=2")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 1, body.Count)
}

func TestServer_Watch(t *testing.T) {
	srv, sp, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer srv.watch.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/devices/Office/watch?jobs=1,3&watch_device=false"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	next := func() eventlog.Record {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var rec eventlog.Record
		require.NoError(t, conn.ReadJSON(&rec))
		return rec
	}
	nextJob := func() (string, eventlog.JobData) {
		t.Helper()
		for {
			rec := next()
			if rec.Type == eventlog.TypeSession {
				continue
			}
			var jd eventlog.JobData
			require.NoError(t, json.Unmarshal(rec.Data, &jd))
			return rec.Type, jd
		}
	}

	typ, jd := nextJob()
	assert.Equal(t, eventlog.TypeJobAdded, typ)
	assert.Equal(t, 1, jd.JobID)

	require.NoError(t, sp.RemoveJob("Office", 1))
	typ, jd = nextJob()
	assert.Equal(t, eventlog.TypeJobRemoved, typ)
	assert.Equal(t, 1, jd.JobID)

	assert.Equal(t, 1, srv.watch.Clients())
}

func TestServer_WatchBadRequest(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := serve(t, srv, http.MethodGet, "/devices/Office/watch?interval=never")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BAD_REQUEST", decodeError(t, rec).Code)
}
