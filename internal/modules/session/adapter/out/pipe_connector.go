package out

import (
	"context"
	"fmt"
	"strings"
	"sync"

	sessionout "taskmesh/internal/modules/session/port/out"
)

// PipeHub pairs in-process connections by rendezvous token. It backs tests
// and same-process demos with the full negotiation surface of a real
// transport, including the asynchronous channel-open race.
type PipeHub struct {
	mu    sync.Mutex
	conns map[string]*pipeConn
	seq   int
}

func NewPipeHub() *PipeHub {
	return &PipeHub{conns: make(map[string]*pipeConn)}
}

func (h *PipeHub) Connector() sessionout.Connector {
	return &PipeConnector{hub: h}
}

type PipeConnector struct {
	hub *PipeHub
}

func (c *PipeConnector) Open(context.Context) (sessionout.Conn, error) {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	c.hub.seq++
	conn := &pipeConn{
		hub:       c.hub,
		token:     fmt.Sprintf("pipe:%d", c.hub.seq),
		discovery: make(chan struct{}),
	}
	// In-process transport has no candidates to gather.
	close(conn.discovery)
	c.hub.conns[conn.token] = conn
	return conn, nil
}

type pipeConn struct {
	hub       *PipeHub
	token     string
	discovery chan struct{}

	mu        sync.Mutex
	handlers  sessionout.ConnHandlers
	remote    string
	channeled bool
	closed    bool
}

func (c *pipeConn) SetHandlers(h sessionout.ConnHandlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = h
}

func (c *pipeConn) CreateChannel(string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channeled = true
	return nil
}

func (c *pipeConn) CreateOffer(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.channeled {
		return fmt.Errorf("offer generated without a channel")
	}
	return nil
}

func (c *pipeConn) CreateAnswer(context.Context) error { return nil }

// ApplyRemote records the peer token. When both ends point at each other the
// hub establishes the channel and fires OnChannelOpen on both sides.
func (c *pipeConn) ApplyRemote(_ context.Context, description string) error {
	if !strings.HasPrefix(description, "pipe:") {
		return fmt.Errorf("not a pipe description: %q", description)
	}
	c.hub.mu.Lock()
	peer, ok := c.hub.conns[description]
	c.hub.mu.Unlock()
	if !ok {
		return fmt.Errorf("no connection at %q", description)
	}

	c.mu.Lock()
	c.remote = peer.token
	c.mu.Unlock()

	peer.mu.Lock()
	mutual := peer.remote == c.token
	peer.mu.Unlock()
	if mutual {
		c.establish(peer)
		peer.establish(c)
	}
	return nil
}

func (c *pipeConn) establish(peer *pipeConn) {
	c.mu.Lock()
	handler := c.handlers.OnChannelOpen
	c.mu.Unlock()
	if handler != nil {
		go handler(&pipeChannel{local: c, peer: peer})
	}
}

func (c *pipeConn) DiscoveryDone() <-chan struct{} { return c.discovery }

func (c *pipeConn) LocalDescription() string { return c.token }

func (c *pipeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.hub.mu.Lock()
	delete(c.hub.conns, c.token)
	c.hub.mu.Unlock()
	return nil
}

type pipeChannel struct {
	local *pipeConn
	peer  *pipeConn
}

func (ch *pipeChannel) Send(payload []byte) error {
	ch.peer.mu.Lock()
	closed := ch.peer.closed
	handler := ch.peer.handlers.OnMessage
	ch.peer.mu.Unlock()
	if closed {
		return fmt.Errorf("peer connection closed")
	}
	if handler == nil {
		return nil
	}
	buf := append([]byte(nil), payload...)
	go handler(buf)
	return nil
}

func (ch *pipeChannel) Close() error { return nil }
