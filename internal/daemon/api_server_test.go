package daemon

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"cgmanager/internal/amcp"
	"cgmanager/internal/api"
	"cgmanager/internal/caspar"
	"cgmanager/internal/config"
	"cgmanager/internal/logging"
	"cgmanager/internal/media"
	"cgmanager/internal/routes"
	"cgmanager/internal/testsupport"
)

type apiFixture struct {
	engine *amcp.MockServer
	hub    *eventHub
	server *httptest.Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	engine := testsupport.StartEngine(t)
	conn := testsupport.Connect(t, engine.Addr())
	exec := caspar.NewExecutor(conn, logging.NewNop())
	if err := bootstrapChannels(exec, []config.Channel{
		{ID: 1, Groups: []string{"background", "main"}},
		{ID: 2, Groups: []string{"main"}},
	}); err != nil {
		t.Fatalf("bootstrapChannels: %v", err)
	}
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	store := media.NewStore(db)
	svc := api.NewService(api.Options{
		Executor: exec,
		Engine:   conn,
		Media:    store,
		Scanner:  media.NewScanner(exec, store, logging.NewNop()),
		Routes:   routes.NewManager(routes.NewStore(db), exec, logging.NewNop()),
		Logger:   logging.NewNop(),
	})
	hub := newEventHub(logging.NewNop())
	exec.OnEvent(hub.publish)
	srv := newAPIServer("", svc, hub, logging.NewNop())
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(func() {
		hub.close()
		ts.Close()
	})
	return &apiFixture{engine: engine, hub: hub, server: ts}
}

func (f *apiFixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestAPICreateAndDeleteEffect(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/channels/1/effects",
		`{"type":"color","group":"main","options":{"color":"#ff0000"}}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected a request id header")
	}
	var effect api.Effect
	decodeBody(t, resp, &effect)
	if !effect.Active || effect.Type != "color" || len(effect.Layers) != 1 {
		t.Fatalf("unexpected effect %+v", effect)
	}
	if producer, ok := f.engine.Layer(amcp.At(1, 1)); !ok || producer != "#FF0000" {
		t.Fatalf("engine layer 1-1 = %q %v", producer, ok)
	}

	resp = f.do(t, http.MethodGet, "/api/channels/1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var ch api.Channel
	decodeBody(t, resp, &ch)
	if len(ch.Layers) != 1 || ch.Layers[0].Effects[0] != effect.ID {
		t.Fatalf("unexpected layout %+v", ch)
	}

	resp = f.do(t, http.MethodDelete, "/api/effects/"+effect.ID, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if _, ok := f.engine.Layer(amcp.At(1, 1)); ok {
		t.Fatal("expected layer 1-1 cleared")
	}
	resp = f.do(t, http.MethodGet, "/api/effects/"+effect.ID, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestAPIErrorMapping(t *testing.T) {
	f := newAPIFixture(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown channel", http.MethodGet, "/api/channels/9", "", http.StatusNotFound},
		{"bad channel id", http.MethodGet, "/api/channels/abc", "", http.StatusBadRequest},
		{"bad json", http.MethodPost, "/api/channels/1/effects", `{"type":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/channels/1/effects", `{"kind":"video"}`, http.StatusBadRequest},
		{"unknown kind", http.MethodPost, "/api/channels/1/effects", `{"type":"laser","group":"main"}`, http.StatusBadRequest},
		{"unknown group", http.MethodPost, "/api/channels/1/effects", `{"type":"color","group":"nope","options":{"color":"#000000"}}`, http.StatusNotFound},
		{"unknown effect", http.MethodPost, "/api/effects/missing/activate", "", http.StatusNotFound},
		{"empty command", http.MethodPost, "/api/amcp", `{"command":" "}`, http.StatusBadRequest},
		{"unknown route", http.MethodPost, "/api/routes/missing/enable", "", http.StatusNotFound},
		{"wrong method", http.MethodPut, "/api/status", "", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := f.do(t, tc.method, tc.path, tc.body)
			if resp.StatusCode != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, resp.StatusCode)
			}
			if tc.want == http.StatusMethodNotAllowed {
				return
			}
			var body api.ErrorResponse
			decodeBody(t, resp, &body)
			if strings.TrimSpace(body.Error) == "" {
				t.Fatal("expected an error message")
			}
		})
	}
}

func TestAPIRawCommandReturnsFailures(t *testing.T) {
	f := newAPIFixture(t)
	f.engine.Fail("INFO", 404)

	resp := f.do(t, http.MethodPost, "/api/amcp", `{"command":"INFO 1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var result api.CommandResult
	decodeBody(t, resp, &result)
	if len(result.Responses) != 1 || result.Responses[0].Code != 404 {
		t.Fatalf("unexpected responses %+v", result.Responses)
	}
}

func TestAPIMediaAndRoutes(t *testing.T) {
	f := newAPIFixture(t)
	f.engine.SetMedia(`"AMB" MOVIE 6445960 20170413141407 268 1/25`)

	resp := f.do(t, http.MethodPost, "/api/media/refresh", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d", resp.StatusCode)
	}
	resp = f.do(t, http.MethodGet, "/api/media?type=movie", "")
	var list api.MediaListResponse
	decodeBody(t, resp, &list)
	if len(list.Items) != 1 || list.Items[0].ID != "AMB" {
		t.Fatalf("unexpected media %+v", list.Items)
	}

	resp = f.do(t, http.MethodPost, "/api/routes", `{"name":"pgm","sourceChannel":2,"destChannel":1,"destGroup":"main"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create route: expected 201, got %d", resp.StatusCode)
	}
	var route api.Route
	decodeBody(t, resp, &route)
	if !route.Enabled || !route.Active {
		t.Fatalf("unexpected route %+v", route)
	}
	if producer, _ := f.engine.Layer(amcp.At(1, 1)); producer != "route://2" {
		t.Fatalf("engine layer 1-1 = %q", producer)
	}

	resp = f.do(t, http.MethodPost, "/api/routes/"+route.ID+"/disable", "")
	decodeBody(t, resp, &route)
	if route.Enabled || route.Active {
		t.Fatalf("expected disabled route, got %+v", route)
	}
	resp = f.do(t, http.MethodDelete, "/api/routes/"+route.ID, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete route: expected 204, got %d", resp.StatusCode)
	}
	resp = f.do(t, http.MethodGet, "/api/routes", "")
	var routesResp api.RouteListResponse
	decodeBody(t, resp, &routesResp)
	if len(routesResp.Routes) != 0 {
		t.Fatalf("expected no routes, got %+v", routesResp.Routes)
	}
}

func TestEventsStreamEffectActivation(t *testing.T) {
	f := newAPIFixture(t)

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial events: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for f.hub.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp := f.do(t, http.MethodPost, "/api/channels/2/effects", `{"type":"video","group":"main","options":{"clip":"AMB"}}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	seen := map[string]api.Event{}
	for len(seen) < 2 {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read event: %v (seen %v)", err, seen)
		}
		var ev api.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if ev.ID == "" {
			t.Fatalf("event without id: %s", payload)
		}
		seen[ev.Kind] = ev
	}
	activated, ok := seen[string(caspar.EventEffectActivated)]
	if !ok || activated.Channel != 2 || activated.Effect != "video" {
		t.Fatalf("missing activation event in %v", seen)
	}
	if reconciled, ok := seen[string(caspar.EventReconciled)]; !ok || reconciled.Channel != 2 {
		t.Fatalf("missing reconcile event in %v", seen)
	}

	f.hub.close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
				t.Fatalf("expected going-away close, got %v", err)
			}
			break
		}
	}
}
