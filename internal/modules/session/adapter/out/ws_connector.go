package out

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	sessionout "taskmesh/internal/modules/session/port/out"
	"taskmesh/internal/platform/id"
)

// WSConnector links two replicas over a LAN websocket. The offering side
// binds an ephemeral listener; its description carries the dial URL plus a
// session token, and the answering side dials back once it has accepted.
type WSConnector struct {
	ids id.Generator
}

func NewWSConnector(ids id.Generator) sessionout.Connector {
	return &WSConnector{ids: ids}
}

type wsDescription struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

func (c *WSConnector) Open(context.Context) (sessionout.Conn, error) {
	return &wsConn{
		token:     c.ids.New(),
		discovery: make(chan struct{}),
	}, nil
}

type wsConn struct {
	token     string
	discovery chan struct{}

	mu       sync.Mutex
	handlers sessionout.ConnHandlers
	listener net.Listener
	server   *http.Server
	dialURL  string
	closed   bool
}

func (c *wsConn) SetHandlers(h sessionout.ConnHandlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = h
}

// CreateChannel binds the listener. The listener is the channel's local
// endpoint, which is why it must exist before the offer is generated.
func (c *wsConn) CreateChannel(string) error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("bind channel listener: %w", err)
	}
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/channel", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != c.token {
			http.Error(w, "unknown token", http.StatusForbidden)
			return
		}
		socket, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c.attach(socket)
	})
	server := &http.Server{Handler: mux}

	c.mu.Lock()
	c.listener = listener
	c.server = server
	c.mu.Unlock()

	go func() { _ = server.Serve(listener) }()
	close(c.discovery)
	return nil
}

func (c *wsConn) CreateOffer(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener == nil {
		return fmt.Errorf("offer generated without a channel")
	}
	return nil
}

// CreateAnswer dials the offering side. The websocket opening on both ends
// is the channel-open event.
func (c *wsConn) CreateAnswer(ctx context.Context) error {
	c.mu.Lock()
	dialURL := c.dialURL
	c.mu.Unlock()
	if dialURL == "" {
		return fmt.Errorf("answer generated before offer applied")
	}
	socket, _, err := websocket.DefaultDialer.DialContext(ctx, dialURL, nil)
	if err != nil {
		return fmt.Errorf("dial offering peer: %w", err)
	}
	c.attach(socket)
	return nil
}

func (c *wsConn) ApplyRemote(_ context.Context, description string) error {
	desc := wsDescription{}
	if err := json.Unmarshal([]byte(description), &desc); err != nil {
		return fmt.Errorf("decode peer description: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if desc.URL != "" {
		c.dialURL = fmt.Sprintf("%s?token=%s", desc.URL, desc.Token)
	}
	if c.discoveryOpen() {
		close(c.discovery)
	}
	return nil
}

func (c *wsConn) discoveryOpen() bool {
	select {
	case <-c.discovery:
		return false
	default:
		return true
	}
}

func (c *wsConn) DiscoveryDone() <-chan struct{} { return c.discovery }

func (c *wsConn) LocalDescription() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	desc := wsDescription{Token: c.token}
	if c.listener != nil {
		desc.URL = fmt.Sprintf("ws://%s/channel", c.listener.Addr())
	}
	payload, err := json.Marshal(desc)
	if err != nil {
		return ""
	}
	return string(payload)
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	server := c.server
	c.closed = true
	c.mu.Unlock()
	if server != nil {
		return server.Close()
	}
	return nil
}

func (c *wsConn) attach(socket *websocket.Conn) {
	ch := &wsChannel{socket: socket}
	c.mu.Lock()
	onOpen := c.handlers.OnChannelOpen
	onMessage := c.handlers.OnMessage
	c.mu.Unlock()

	go func() {
		for {
			_, payload, err := socket.ReadMessage()
			if err != nil {
				return
			}
			if onMessage != nil {
				onMessage(payload)
			}
		}
	}()
	if onOpen != nil {
		go onOpen(ch)
	}
}

type wsChannel struct {
	mu     sync.Mutex
	socket *websocket.Conn
}

func (ch *wsChannel) Send(payload []byte) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.socket.WriteMessage(websocket.TextMessage, payload)
}

func (ch *wsChannel) Close() error {
	return ch.socket.Close()
}
