package callback_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
	"github.com/sophialabs/expectmock/internal/infrastructure/outbound/callback"
	"github.com/sophialabs/expectmock/internal/infrastructure/ports"
	"github.com/sophialabs/expectmock/internal/testutil"
)

// connect dials the hub and returns the connection with the announced client id.
func connect(t *testing.T, srv *httptest.Server, query string) (*websocket.Conn, string) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	var reg callback.Message
	if err := conn.ReadJSON(&reg); err != nil {
		t.Fatalf("read registration: %v", err)
	}
	if reg.Type != callback.TypeRegistration || reg.ClientID == "" {
		t.Fatalf("unexpected registration message: %+v", reg)
	}
	return conn, reg.ClientID
}

// answer replies to the next message with typ and value.
func answer(t *testing.T, conn *websocket.Conn, wantType, typ, value string) <-chan callback.Message {
	t.Helper()
	got := make(chan callback.Message, 1)
	go func() {
		var msg callback.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		got <- msg
		if msg.Type != wantType {
			return
		}
		_ = conn.WriteJSON(callback.Message{Type: typ, CorrelationID: msg.CorrelationID, Value: json.RawMessage(value), Error: "boom"})
	}()
	return got
}

func waitForClient(t *testing.T, hub *callback.Hub, id string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, c := range hub.Clients() {
			if c == id {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("client %q never registered", id)
}

func newHub(t *testing.T) (*callback.Hub, *httptest.Server) {
	t.Helper()
	hub := callback.NewHub(&testutil.NoopLogger{})
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv
}

func TestHub_RequestToResponse(t *testing.T) {
	hub, srv := newHub(t)
	conn, id := connect(t, srv, "")
	waitForClient(t, hub, id)

	sent := answer(t, conn, callback.TypeResponseCallback, callback.TypeHTTPResponse, `{"statusCode":202,"body":"from client"}`)

	resp, err := hub.RequestToResponse(context.Background(), id, &expectation.Request{Method: "GET", Path: "/cb"})
	if err != nil {
		t.Fatalf("RequestToResponse failed: %v", err)
	}
	if resp.StatusCode != 202 || string(resp.Body) != "from client" {
		t.Errorf("response = %d %q", resp.StatusCode, resp.Body)
	}

	msg := <-sent
	if !strings.Contains(string(msg.Value), `"/cb"`) {
		t.Errorf("request not sent to client: %s", msg.Value)
	}
	if msg.ClientID != id {
		t.Errorf("clientId = %q, want %q", msg.ClientID, id)
	}
}

func TestHub_RequestToForwardAndForwardedResponse(t *testing.T) {
	hub, srv := newHub(t)
	conn, id := connect(t, srv, "?clientId=fixed-client")
	if id != "fixed-client" {
		t.Fatalf("client id = %q, want fixed-client", id)
	}
	waitForClient(t, hub, id)

	answer(t, conn, callback.TypeForwardCallback, callback.TypeHTTPRequest, `{"method":"PUT","path":"/upstream"}`)
	out, err := hub.RequestToForward(context.Background(), id, &expectation.Request{Method: "GET", Path: "/a"})
	if err != nil {
		t.Fatalf("RequestToForward failed: %v", err)
	}
	if out.Method != "PUT" || out.Path != "/upstream" {
		t.Errorf("forward request = %s %s", out.Method, out.Path)
	}

	sent := answer(t, conn, callback.TypeForwardedResponse, callback.TypeHTTPResponse, `{"statusCode":299}`)
	resp, err := hub.ForwardedResponse(context.Background(), id, out, &expectation.Response{StatusCode: 200})
	if err != nil {
		t.Fatalf("ForwardedResponse failed: %v", err)
	}
	if resp.StatusCode != 299 {
		t.Errorf("status = %d, want 299", resp.StatusCode)
	}

	var ex callback.ForwardedExchange
	if err := json.Unmarshal((<-sent).Value, &ex); err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if !strings.Contains(string(ex.HTTPResponse), `"statusCode":200`) {
		t.Errorf("forwarded response not sent: %s", ex.HTTPResponse)
	}
}

func TestHub_Failures(t *testing.T) {
	hub, srv := newHub(t)

	if _, err := hub.RequestToResponse(context.Background(), "nobody", &expectation.Request{}); !errors.Is(err, ports.ErrUnknownClient) {
		t.Errorf("expected ErrUnknownClient, got %v", err)
	}

	conn, id := connect(t, srv, "")
	waitForClient(t, hub, id)

	answer(t, conn, callback.TypeResponseCallback, callback.TypeError, `null`)
	if _, err := hub.RequestToResponse(context.Background(), id, &expectation.Request{}); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected client error, got %v", err)
	}

	answer(t, conn, "never", "", "")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := hub.RequestToResponse(ctx, id, &expectation.Request{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub, srv := newHub(t)
	conn, id := connect(t, srv, "")
	waitForClient(t, hub, id)

	go func() {
		var msg callback.Message
		_ = conn.ReadJSON(&msg)
		_ = conn.Close()
	}()

	_, err := hub.RequestToResponse(context.Background(), id, &expectation.Request{})
	if !errors.Is(err, callback.ErrClientClosed) {
		t.Errorf("expected ErrClientClosed, got %v", err)
	}
}

func TestHub_DuplicateClientID(t *testing.T) {
	hub, srv := newHub(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?clientId=dup"

	const dialers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		accepted  []*websocket.Conn
		conflicts int
	)
	for range dialers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted = append(accepted, conn)
			case resp != nil && resp.StatusCode == http.StatusConflict:
				conflicts++
			default:
				t.Errorf("unexpected dial failure: %v", err)
			}
		}()
	}
	wg.Wait()
	for _, conn := range accepted {
		t.Cleanup(func() { _ = conn.Close() })
	}

	if len(accepted) != 1 || conflicts != dialers-1 {
		t.Fatalf("expected 1 accepted and %d conflicts, got %d and %d", dialers-1, len(accepted), conflicts)
	}
	waitForClient(t, hub, "dup")

	conn := accepted[0]
	var reg callback.Message
	if err := conn.ReadJSON(&reg); err != nil || reg.ClientID != "dup" {
		t.Fatalf("unexpected registration: %+v %v", reg, err)
	}

	answer(t, conn, callback.TypeResponseCallback, callback.TypeHTTPResponse, `{"statusCode":200}`)
	if _, err := hub.RequestToResponse(context.Background(), "dup", &expectation.Request{}); err != nil {
		t.Errorf("expected the first connection to stay registered, got %v", err)
	}
}
