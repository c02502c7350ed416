package out

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/multiformats/go-multiaddr"

	sessionout "taskmesh/internal/modules/session/port/out"
)

const (
	channelProtocol protocol.ID = "/taskmesh/channel/1.0.0"

	maxFrameSize = 8 << 20
)

// Libp2pConnector negotiates sessions over libp2p. The "description" peers
// exchange out-of-band is the node's peer id plus its gathered listen
// multiaddrs; candidate discovery is the wait for the host to publish
// addresses. The channel is a libp2p stream carrying length-prefixed frames.
type Libp2pConnector struct{}

func NewLibp2pConnector() sessionout.Connector {
	return &Libp2pConnector{}
}

type libp2pDescription struct {
	PeerID string   `json:"peer_id"`
	Addrs  []string `json:"addrs"`
}

func (c *Libp2pConnector) Open(context.Context) (sessionout.Conn, error) {
	h, err := libp2p.New(
		libp2p.ListenAddrStrings("/ip4/0.0.0.0/tcp/0", "/ip6/::/tcp/0"),
	)
	if err != nil {
		return nil, fmt.Errorf("start libp2p host: %w", err)
	}
	conn := &libp2pConn{
		host:      h,
		discovery: make(chan struct{}),
	}
	h.SetStreamHandler(channelProtocol, conn.handleStream)
	go conn.watchAddrs()
	return conn, nil
}

type libp2pConn struct {
	host      host.Host
	discovery chan struct{}

	mu        sync.Mutex
	handlers  sessionout.ConnHandlers
	channeled bool
	remote    peer.ID
	closed    bool
}

func (c *libp2pConn) SetHandlers(h sessionout.ConnHandlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = h
}

func (c *libp2pConn) CreateChannel(string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channeled = true
	return nil
}

func (c *libp2pConn) CreateOffer(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.channeled {
		return fmt.Errorf("offer generated without a channel")
	}
	return nil
}

func (c *libp2pConn) CreateAnswer(context.Context) error { return nil }

// ApplyRemote learns the peer's addresses. The side that created the channel
// dials; the other side waits for the inbound stream.
func (c *libp2pConn) ApplyRemote(ctx context.Context, description string) error {
	desc := libp2pDescription{}
	if err := json.Unmarshal([]byte(description), &desc); err != nil {
		return fmt.Errorf("decode peer description: %w", err)
	}
	pid, err := peer.Decode(desc.PeerID)
	if err != nil {
		return fmt.Errorf("decode peer id: %w", err)
	}
	addrs := make([]multiaddr.Multiaddr, 0, len(desc.Addrs))
	for _, raw := range desc.Addrs {
		addr, err := multiaddr.NewMultiaddr(raw)
		if err != nil {
			return fmt.Errorf("decode peer addr: %w", err)
		}
		info, err := peer.AddrInfoFromP2pAddr(addr)
		if err != nil {
			return fmt.Errorf("decode peer addr: %w", err)
		}
		addrs = append(addrs, info.Addrs...)
	}
	c.host.Peerstore().AddAddrs(pid, addrs, peerstore.PermanentAddrTTL)

	c.mu.Lock()
	c.remote = pid
	dial := c.channeled
	c.mu.Unlock()

	if !dial {
		return nil
	}
	if err := c.host.Connect(ctx, peer.AddrInfo{ID: pid, Addrs: addrs}); err != nil {
		return fmt.Errorf("connect to peer: %w", err)
	}
	stream, err := c.host.NewStream(ctx, pid, channelProtocol)
	if err != nil {
		return fmt.Errorf("open channel stream: %w", err)
	}
	c.handleStream(stream)
	return nil
}

func (c *libp2pConn) DiscoveryDone() <-chan struct{} { return c.discovery }

func (c *libp2pConn) LocalDescription() string {
	desc := libp2pDescription{
		PeerID: c.host.ID().String(),
		Addrs:  renderListenAddrs(c.host),
	}
	payload, err := json.Marshal(desc)
	if err != nil {
		return ""
	}
	return string(payload)
}

func (c *libp2pConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.host.Close()
}

// watchAddrs signals discovery once the host has published listen addresses.
// Some environments never produce any, so callers bound the wait themselves.
func (c *libp2pConn) watchAddrs() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		if len(c.host.Addrs()) > 0 {
			close(c.discovery)
			return
		}
	}
}

func (c *libp2pConn) handleStream(stream network.Stream) {
	ch := &libp2pChannel{stream: stream}
	c.mu.Lock()
	onOpen := c.handlers.OnChannelOpen
	onMessage := c.handlers.OnMessage
	c.mu.Unlock()

	go ch.readLoop(onMessage)
	if onOpen != nil {
		go onOpen(ch)
	}
}

type libp2pChannel struct {
	stream network.Stream
	mu     sync.Mutex
}

func (ch *libp2pChannel) Send(payload []byte) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))
	if _, err := ch.stream.Write(header); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := ch.stream.Write(payload); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (ch *libp2pChannel) Close() error {
	return ch.stream.Close()
}

func (ch *libp2pChannel) readLoop(onMessage func(payload []byte)) {
	header := make([]byte, 4)
	for {
		if _, err := io.ReadFull(ch.stream, header); err != nil {
			return
		}
		size := binary.BigEndian.Uint32(header)
		if size > maxFrameSize {
			_ = ch.stream.Reset()
			return
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(ch.stream, payload); err != nil {
			return
		}
		if onMessage != nil {
			onMessage(payload)
		}
	}
}

func renderListenAddrs(h host.Host) []string {
	out := make([]string, 0, len(h.Addrs()))
	for _, addr := range h.Addrs() {
		full := addr.Encapsulate(multiaddr.StringCast("/p2p/" + h.ID().String()))
		out = append(out, full.String())
	}
	return out
}
