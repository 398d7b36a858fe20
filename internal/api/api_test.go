package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zoravur/orderfeed/internal/metrics"
	"github.com/zoravur/orderfeed/internal/order"
	"github.com/zoravur/orderfeed/internal/protocol"
	"github.com/zoravur/orderfeed/internal/service"
	"github.com/zoravur/orderfeed/internal/store/memory"
)

type fixture struct {
	srv  *httptest.Server
	reg  *service.Registry
	prom *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := service.NewRegistry()
	prom := prometheus.NewRegistry()
	srv := httptest.NewServer(SetupRoutes(Deps{
		Orders:   service.NewOrders(memory.New(), reg),
		Registry: reg,
		Logger:   zaptest.NewLogger(t),
		Metrics:  metrics.NewServerMetrics(prom, "http"),
		Gatherer: prom,
	}))
	t.Cleanup(func() {
		reg.Close()
		srv.Close()
	})
	return &fixture{srv: srv, reg: reg, prom: prom}
}

func (f *fixture) do(t *testing.T, method, path, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *fixture) dial(t *testing.T, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/orders/" + id + "/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

type frame struct {
	Type string          `json:"type"`
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

func readFrame(t *testing.T, conn *websocket.Conn) (frame, order.Snapshot) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	var snap order.Snapshot
	if f.Type == protocol.TypeSnapshot {
		require.NoError(t, json.Unmarshal(f.Data, &snap))
	}
	return f, snap
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)

	var created order.Snapshot
	require.Equal(t, http.StatusCreated, f.do(t, "POST", "/api/orders", `{"menu_url":"https://pizza.example"}`, &created))
	assert.Equal(t, order.StateOpen, created.State)
	assert.NotNil(t, created.Entries)

	var snap order.Snapshot
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/api/orders/1/entries", `{"buyer":"Ada","food":"Margherita","price":"9.50"}`, &snap))
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, order.Millicents(950000), snap.Total)

	require.Equal(t, http.StatusOK, f.do(t, "POST", "/api/orders/1/entries", `{"buyer":"Bob","food":"Calzone","price_millicents":1100000}`, &snap))
	assert.Equal(t, order.Millicents(2050000), snap.Total)

	require.Equal(t, http.StatusOK, f.do(t, "PUT", "/api/orders/1/entries/1/paid", `{"paid":true}`, &snap))
	assert.True(t, snap.Entries[0].Paid)

	require.Equal(t, http.StatusOK, f.do(t, "DELETE", "/api/orders/1/entries/2", "", &snap))
	assert.Len(t, snap.Entries, 1)

	require.Equal(t, http.StatusOK, f.do(t, "PUT", "/api/orders/1/state", `{"state":"closed"}`, &snap))
	assert.Equal(t, "closed", snap.StateName)
	require.Equal(t, http.StatusOK, f.do(t, "PUT", "/api/orders/1/state", `{"state":3}`, &snap))
	assert.Equal(t, order.StateDelivered, snap.State)

	var got order.Snapshot
	require.Equal(t, http.StatusOK, f.do(t, "GET", "/api/orders/1", "", &got))
	assert.Equal(t, snap.Rev, got.Rev)

	var list []order.Snapshot
	require.Equal(t, http.StatusOK, f.do(t, "GET", "/api/orders", "", &list))
	assert.Len(t, list, 1)
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusCreated, f.do(t, "POST", "/api/orders", `{"menu_url":"a.example"}`, nil))

	for _, tc := range []struct {
		method, path, body string
		want               int
	}{
		{"GET", "/api/orders/99", "", http.StatusNotFound},
		{"GET", "/api/orders/abc", "", http.StatusBadRequest},
		{"POST", "/api/orders", `{"menu_url":""}`, http.StatusBadRequest},
		{"POST", "/api/orders", `{"menu":"x"}`, http.StatusBadRequest},
		{"POST", "/api/orders/1/entries", `{"buyer":"A","food":"Pho","price":"3"}`, http.StatusBadRequest},
		{"POST", "/api/orders/1/entries", `{"buyer":"Ann","food":"Pho"}`, http.StatusBadRequest},
		{"POST", "/api/orders/1/entries", `{"buyer":"Ann","food":"Pho","price_millicents":-1}`, http.StatusBadRequest},
		{"POST", "/api/orders/99/entries", `{"buyer":"Ann","food":"Pho","price":"3"}`, http.StatusNotFound},
		{"DELETE", "/api/orders/1/entries/42", "", http.StatusNotFound},
		{"PUT", "/api/orders/1/entries/42/paid", `{}`, http.StatusBadRequest},
		{"PUT", "/api/orders/1/state", `{"state":"delivered"}`, http.StatusBadRequest},
		{"PUT", "/api/orders/1/state", `{"state":"eaten"}`, http.StatusBadRequest},
	} {
		var body map[string]string
		status := f.do(t, tc.method, tc.path, tc.body, &body)
		assert.Equal(t, tc.want, status, "%s %s %s", tc.method, tc.path, tc.body)
		assert.NotEmpty(t, body["error"], "%s %s", tc.method, tc.path)
	}
}

func TestStreamPushesEveryChange(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusCreated, f.do(t, "POST", "/api/orders", `{"menu_url":"a.example"}`, nil))

	conn := f.dial(t, "1")
	fr, first := readFrame(t, conn)
	assert.Equal(t, protocol.TypeSnapshot, fr.Type)
	assert.Equal(t, int64(1), first.Rev)

	var resp order.Snapshot
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/api/orders/1/entries", `{"buyer":"Ada","food":"Ramen","price":"12"}`, &resp))
	_, pushed := readFrame(t, conn)
	assert.Equal(t, resp, pushed)

	require.Equal(t, http.StatusOK, f.do(t, "PUT", "/api/orders/1/state", `{"state":"closed"}`, &resp))
	_, pushed = readFrame(t, conn)
	assert.Equal(t, order.StateClosed, pushed.State)
	assert.Equal(t, resp.Rev, pushed.Rev)
}

func TestStreamClientMessages(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusCreated, f.do(t, "POST", "/api/orders", `{"menu_url":"a.example"}`, nil))
	conn := f.dial(t, "1")
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "PING", "id": "p1"}))
	fr, _ := readFrame(t, conn)
	assert.Equal(t, protocol.TypePong, fr.Type)
	assert.Equal(t, "p1", fr.ID)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "RESYNC", "id": "r1"}))
	fr, snap := readFrame(t, conn)
	assert.Equal(t, protocol.TypeSnapshot, fr.Type)
	assert.Equal(t, "r1", fr.ID)
	assert.Equal(t, int64(1), snap.Rev)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("nonsense")))
	fr, _ = readFrame(t, conn)
	assert.Equal(t, protocol.TypeError, fr.Type)
}

func TestStreamUnknownOrderIs404(t *testing.T) {
	f := newFixture(t)
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/orders/5/stream"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 0, f.reg.Len())
}

func TestStreamEndsOnRegistryClose(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusCreated, f.do(t, "POST", "/api/orders", `{"menu_url":"a.example"}`, nil))
	conn := f.dial(t, "1")
	readFrame(t, conn)

	f.reg.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestDisconnectedViewerIsReaped(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusCreated, f.do(t, "POST", "/api/orders", `{"menu_url":"a.example"}`, nil))
	conn := f.dial(t, "1")
	readFrame(t, conn)
	require.Equal(t, 1, f.reg.Count(1))

	conn.Close()
	require.Eventually(t, func() bool {
		f.reg.Reap()
		return f.reg.Count(1) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLiveViewAndMetrics(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusCreated, f.do(t, "POST", "/api/orders", `{"menu_url":"a.example"}`, nil))
	conn := f.dial(t, "1")
	readFrame(t, conn)

	var view struct {
		Orders []struct {
			Key         int64 `json:"key"`
			Subscribers int   `json:"subscribers"`
		} `json:"orders"`
		Subscriptions int `json:"subscriptions"`
	}
	require.Equal(t, http.StatusOK, f.do(t, "GET", "/api/live", "", &view))
	require.Len(t, view.Orders, 1)
	assert.Equal(t, int64(1), view.Orders[0].Key)
	assert.Equal(t, 1, view.Subscriptions)

	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Regexp(t, `orderfeed_http_requests_total\{handler="/api/orders/?",status="201"\} 1`, buf.String())
}

func TestRequestIDEchoed(t *testing.T) {
	f := newFixture(t)
	req, err := http.NewRequest("GET", f.srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "trace-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "trace-123", resp.Header.Get("X-Request-ID"))

	resp, err = http.Get(f.srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Len(t, resp.Header.Get("X-Request-ID"), 36)
}
