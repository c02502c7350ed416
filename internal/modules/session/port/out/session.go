package out

import "context"

// Connector abstracts the point-to-point transport stack. The core drives
// connections through this capability set and never sees sockets, streams or
// NAT traversal.
type Connector interface {
	Open(ctx context.Context) (Conn, error)
}

// ConnHandlers receive the transport's asynchronous events. OnChannelOpen
// fires the moment the negotiated channel becomes usable on this side;
// OnMessage fires once per inbound payload.
type ConnHandlers struct {
	OnChannelOpen func(ch Channel)
	OnMessage     func(payload []byte)
}

// Conn is one connection under negotiation. CreateChannel must be called
// before CreateOffer so the channel is part of the negotiated description.
// LocalDescription reflects candidates gathered so far; callers decide how
// long to wait on DiscoveryDone before reading it.
type Conn interface {
	SetHandlers(h ConnHandlers)
	CreateChannel(label string) error
	CreateOffer(ctx context.Context) error
	CreateAnswer(ctx context.Context) error
	ApplyRemote(ctx context.Context, description string) error
	DiscoveryDone() <-chan struct{}
	LocalDescription() string
	Close() error
}

// Channel is an established reliable ordered byte stream.
type Channel interface {
	Send(payload []byte) error
	Close() error
}
