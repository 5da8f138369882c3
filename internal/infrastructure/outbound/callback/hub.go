package callback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
	"github.com/sophialabs/expectmock/internal/infrastructure/codec"
	"github.com/sophialabs/expectmock/internal/infrastructure/ports"
)

var _ ports.ObjectCallbacks = (*Hub)(nil)

// Message types exchanged with callback clients.
const (
	// Server to client.
	TypeRegistration      = "registration"
	TypeResponseCallback  = "responseCallback"
	TypeForwardCallback   = "forwardCallback"
	TypeForwardedResponse = "forwardedResponse"

	// Client to server.
	TypeHTTPResponse = "httpResponse"
	TypeHTTPRequest  = "httpRequest"
	TypeError        = "error"
)

// ErrClientClosed indicates the client disconnected before answering.
var ErrClientClosed = errors.New("callback client disconnected")

// Message is the JSON envelope of every websocket frame. Replies carry the
// CorrelationID of the message they answer.
type Message struct {
	Type          string          `json:"type"`
	CorrelationID string          `json:"correlationId,omitempty"`
	ClientID      string          `json:"clientId,omitempty"`
	Value         json.RawMessage `json:"value,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// ForwardedExchange is the value of a forwardedResponse message.
type ForwardedExchange struct {
	HTTPRequest  json.RawMessage `json:"httpRequest"`
	HTTPResponse json.RawMessage `json:"httpResponse"`
}

type client struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Message
	closed  chan struct{}
}

func (c *client) write(msg Message, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.conn.WriteJSON(msg)
}

// Hub accepts callback clients over websocket and round-trips requests to them.
type Hub struct {
	upgrader     websocket.Upgrader
	logger       ports.Logger
	writeTimeout time.Duration

	mu      sync.RWMutex
	clients map[string]*client
	// reserved holds ids whose connection is still being upgraded.
	reserved map[string]struct{}
}

// NewHub creates a hub. Clients connect through ServeHTTP.
func NewHub(logger ports.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:       logger,
		writeTimeout: 10 * time.Second,
		clients:      make(map[string]*client),
		reserved:     make(map[string]struct{}),
	}
}

// ServeHTTP upgrades the connection and registers the client. The client id is
// taken from the clientId query parameter or generated, and announced to the
// client in a registration message. An id that is connected, or still being
// registered by another connection, is refused with 409 before the upgrade.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("clientId")
	if id == "" {
		id = uuid.NewString()
	}

	if !h.reserve(id) {
		http.Error(w, fmt.Sprintf("client id %q already connected", id), http.StatusConflict)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.release(id, nil)
		h.logger.Warn("callback upgrade failed", "error", err)
		return
	}

	c := &client{id: id, conn: conn, pending: make(map[string]chan Message), closed: make(chan struct{})}
	if err := c.write(Message{Type: TypeRegistration, ClientID: id}, h.writeTimeout); err != nil {
		h.release(id, nil)
		h.logger.Warn("callback registration failed", "client", id, "error", err)
		_ = conn.Close()
		return
	}

	h.release(id, c)
	h.logger.Info("callback client connected", "client", id, "remote", r.RemoteAddr)

	h.readLoop(c)
}

// reserve claims id for a connection being upgraded. It fails when id is
// connected or already reserved.
func (h *Hub) reserve(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[id]; ok {
		return false
	}
	if _, ok := h.reserved[id]; ok {
		return false
	}
	h.reserved[id] = struct{}{}
	return true
}

// release drops the reservation of id and registers c under it, if not nil.
func (h *Hub) release(id string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.reserved, id)
	if c != nil {
		h.clients[id] = c
	}
}

func (h *Hub) readLoop(c *client) {
	defer h.disconnect(c)

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("callback client read failed", "client", c.id, "error", err)
			}
			return
		}

		c.mu.Lock()
		ch, ok := c.pending[msg.CorrelationID]
		delete(c.pending, msg.CorrelationID)
		c.mu.Unlock()

		if !ok {
			h.logger.Debug("uncorrelated callback message", "client", c.id, "type", msg.Type)
			continue
		}
		ch <- msg
	}
}

func (h *Hub) disconnect(c *client) {
	h.mu.Lock()
	if h.clients[c.id] == c {
		delete(h.clients, c.id)
	}
	h.mu.Unlock()

	close(c.closed)
	_ = c.conn.Close()
	h.logger.Info("callback client disconnected", "client", c.id)
}

// Clients returns the ids of connected clients, sorted.
func (h *Hub) Clients() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	}
}

// RequestToResponse sends req to clientID as a responseCallback and returns the
// response the client answers with.
func (h *Hub) RequestToResponse(ctx context.Context, clientID string, req *expectation.Request) (*expectation.Response, error) {
	value, err := codec.EncodeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	reply, err := h.roundTrip(ctx, clientID, TypeResponseCallback, value)
	if err != nil {
		return nil, err
	}
	return decodeReply(reply, TypeHTTPResponse, codec.DecodeResponse)
}

// RequestToForward sends req to clientID as a forwardCallback and returns the
// request the client wants forwarded instead.
func (h *Hub) RequestToForward(ctx context.Context, clientID string, req *expectation.Request) (*expectation.Request, error) {
	value, err := codec.EncodeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	reply, err := h.roundTrip(ctx, clientID, TypeForwardCallback, value)
	if err != nil {
		return nil, err
	}
	return decodeReply(reply, TypeHTTPRequest, codec.DecodeRequest)
}

// ForwardedResponse sends the forwarded exchange to clientID and returns the
// response the client wants relayed to the caller.
func (h *Hub) ForwardedResponse(ctx context.Context, clientID string, req *expectation.Request, resp *expectation.Response) (*expectation.Response, error) {
	var ex ForwardedExchange
	var err error
	if ex.HTTPRequest, err = codec.EncodeRequest(req); err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	if ex.HTTPResponse, err = codec.EncodeResponse(resp); err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	value, err := json.Marshal(ex)
	if err != nil {
		return nil, fmt.Errorf("failed to encode exchange: %w", err)
	}

	reply, err := h.roundTrip(ctx, clientID, TypeForwardedResponse, value)
	if err != nil {
		return nil, err
	}
	return decodeReply(reply, TypeHTTPResponse, codec.DecodeResponse)
}

// roundTrip sends one message to clientID and waits for the correlated reply.
func (h *Hub) roundTrip(ctx context.Context, clientID, typ string, value json.RawMessage) (Message, error) {
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return Message{}, fmt.Errorf("%w: %q", ports.ErrUnknownClient, clientID)
	}

	correlationID := uuid.NewString()
	ch := make(chan Message, 1)
	c.mu.Lock()
	c.pending[correlationID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, correlationID)
		c.mu.Unlock()
	}()

	if err := c.write(Message{Type: typ, CorrelationID: correlationID, ClientID: clientID, Value: value}, h.writeTimeout); err != nil {
		return Message{}, fmt.Errorf("failed to send %s to client %q: %w", typ, clientID, err)
	}

	select {
	case reply := <-ch:
		return reply, nil
	case <-c.closed:
		return Message{}, fmt.Errorf("%w: %q", ErrClientClosed, clientID)
	case <-ctx.Done():
		return Message{}, fmt.Errorf("waiting for client %q: %w", clientID, ctx.Err())
	}
}

func decodeReply[T any](reply Message, want string, decode func([]byte) (T, error)) (T, error) {
	var zero T
	switch reply.Type {
	case want:
	case TypeError:
		return zero, fmt.Errorf("callback client error: %s", reply.Error)
	default:
		return zero, fmt.Errorf("callback client replied %q, want %q", reply.Type, want)
	}
	out, err := decode(reply.Value)
	if err != nil {
		return zero, fmt.Errorf("invalid %s from callback client: %w", want, err)
	}
	return out, nil
}
