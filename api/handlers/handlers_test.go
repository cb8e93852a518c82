package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/framerelay/relay/internal/relay"
	"github.com/framerelay/relay/internal/transport"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	relay *relay.Server
	http  *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger, _ := test.NewNullLogger()
	log := logrus.NewEntry(logger)

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := relay.NewServer(ctx, relay.ServerOptions{
		Listener: relay.ListenerOptions{Addr: "127.0.0.1:0"},
		Logger:   log,
	})
	if err != nil {
		cancel()
		t.Fatalf("NewServer: %v", err)
	}
	done := make(chan struct{})
	go func() {
		srv.Run(ctx)
		close(done)
	}()

	router := NewRouter(
		NewSessionHandler(srv.Hub()),
		NewWebSocketHandler(srv, 0, log),
		nil,
		log,
	)
	hs := httptest.NewServer(router)

	t.Cleanup(func() {
		hs.Close()
		cancel()
		<-done
	})
	return &testEnv{relay: srv, http: hs}
}

func (e *testEnv) dialTCP(t *testing.T) net.Conn {
	t.Helper()
	c, err := net.DialTimeout("tcp", e.relay.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func (e *testEnv) waitMembers(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for e.relay.Hub().Count() != n {
		if time.Now().After(deadline) {
			t.Fatalf("relay has %d members, want %d", e.relay.Hub().Count(), n)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	env.dialTCP(t)
	env.waitMembers(t, 1)

	var body struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}
	if code := getJSON(t, env.http.URL+"/health", &body); code != http.StatusOK {
		t.Errorf("expected status 200, got %d", code)
	}
	if body.Status != "ok" || body.Sessions != 1 {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestListAndGetSessions(t *testing.T) {
	env := newTestEnv(t)
	env.dialTCP(t)
	env.dialTCP(t)
	env.waitMembers(t, 2)

	var list struct {
		Sessions []SessionResponse `json:"sessions"`
		Total    int               `json:"total"`
	}
	if code := getJSON(t, env.http.URL+"/api/sessions", &list); code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", code)
	}
	if list.Total != 2 || len(list.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %+v", list)
	}

	s := list.Sessions[0]
	if s.Transport != "tcp" || s.State != "active" || s.ID == "" {
		t.Errorf("unexpected session: %+v", s)
	}
	if _, err := time.Parse(time.RFC3339, s.JoinedAt); err != nil {
		t.Errorf("joinedAt %q is not RFC3339", s.JoinedAt)
	}

	var one SessionResponse
	if code := getJSON(t, env.http.URL+"/api/sessions/"+s.ID, &one); code != http.StatusOK {
		t.Errorf("expected status 200, got %d", code)
	}
	if one.ID != s.ID {
		t.Errorf("got session %q, want %q", one.ID, s.ID)
	}

	var errResp ErrorResponse
	if code := getJSON(t, env.http.URL+"/api/sessions/missing", &errResp); code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", code)
	}
	if errResp.Error.Code != "SESSION_NOT_FOUND" {
		t.Errorf("expected SESSION_NOT_FOUND, got %q", errResp.Error.Code)
	}
}

func TestDeleteSession(t *testing.T) {
	env := newTestEnv(t)
	c := env.dialTCP(t)
	env.waitMembers(t, 1)

	id := env.relay.Hub().Sessions()[0].ID

	req, _ := http.NewRequest(http.MethodDelete, env.http.URL+"/api/sessions/"+id, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", resp.StatusCode)
	}

	env.waitMembers(t, 0)
	c.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := c.Read(make([]byte, 1)); err == nil {
		t.Error("expected the disconnected client to see the connection close")
	}

	req, _ = http.NewRequest(http.MethodDelete, env.http.URL+"/api/sessions/"+id, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected status 404 for second delete, got %d", resp.StatusCode)
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	a := env.dialTCP(t)
	env.dialTCP(t)
	env.waitMembers(t, 2)

	a.Write([]byte("frame"))

	deadline := time.Now().Add(time.Second)
	var st StatsResponse
	for {
		getJSON(t, env.http.URL+"/api/stats", &st)
		if st.FramesReceived == 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if st.ActiveSessions != 2 || st.TotalSessions != 2 {
		t.Errorf("unexpected sessions in stats: %+v", st)
	}
	if st.FramesReceived != 1 || st.FramesFannedOut != 1 {
		t.Errorf("unexpected frame counters: %+v", st)
	}
}

func TestWebSocketJoinsSameHub(t *testing.T) {
	env := newTestEnv(t)
	tcp := env.dialTCP(t)

	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"
	ws, err := transport.DialWebSocket(context.Background(), wsURL, 0)
	if err != nil {
		t.Fatalf("DialWebSocket: %v", err)
	}
	defer ws.Close()
	env.waitMembers(t, 2)

	kinds := map[string]int{}
	for _, s := range env.relay.Hub().Sessions() {
		kinds[string(s.Transport)]++
	}
	if kinds["tcp"] != 1 || kinds["websocket"] != 1 {
		t.Errorf("unexpected transports: %v", kinds)
	}

	tcp.Write([]byte("from tcp"))
	ws.SetReadDeadline(time.Now().Add(time.Second))
	f, err := ws.ReadFrame()
	if err != nil || string(f) != "from tcp" {
		t.Fatalf("websocket read %q, %v", f, err)
	}

	if err := ws.WriteFrame(transport.Frame("from ws")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	buf := make([]byte, 64)
	tcp.SetReadDeadline(time.Now().Add(time.Second))
	n, err := tcp.Read(buf)
	if err != nil || string(buf[:n]) != "from ws" {
		t.Errorf("tcp read %q, %v", buf[:n], err)
	}
}

func TestWebSocketRejectsPlainHTTP(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.http.URL + "/ws")
	if err != nil {
		t.Fatalf("GET /ws: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", resp.StatusCode)
	}
	if env.relay.Hub().Count() != 0 {
		t.Error("plain request created a session")
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
	w := httptest.NewRecorder()
	env.http.Config.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}
