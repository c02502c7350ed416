package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"taskmesh/internal/modules/session/domain"
	sessionout "taskmesh/internal/modules/session/port/out"
	apperrors "taskmesh/internal/platform/errors"
	"taskmesh/internal/platform/id"
	"taskmesh/internal/platform/wire"
)

// Handlers are the manager's upward-facing events: decoded inbound envelopes,
// handshake completion, and channel readiness. All three may be invoked from
// transport goroutines; subscribers do their own serialization.
type Handlers struct {
	OnEnvelope    func(sessionID string, env wire.Envelope)
	OnEstablished func(sessionID string)
	OnChannelOpen func(sessionID string)
}

type session struct {
	id      string
	role    domain.Role
	state   domain.State
	conn    sessionout.Conn
	channel sessionout.Channel
	ready   chan struct{}
}

// Manager owns every peer session and drives the offer/answer handshake.
// One mutex guards the session collection and per-session state transitions.
type Manager struct {
	connector        sessionout.Connector
	ids              id.Generator
	discoveryTimeout time.Duration
	logger           *slog.Logger
	handlers         Handlers

	// ctx is cancelled by Dispose and aborts in-flight discovery waits.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*session
	disposed bool
}

func NewManager(connector sessionout.Connector, ids id.Generator, discoveryTimeout time.Duration, logger *slog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		connector:        connector,
		ids:              ids,
		discoveryTimeout: discoveryTimeout,
		logger:           logger,
		ctx:              ctx,
		cancel:           cancel,
		sessions:         make(map[string]*session),
	}
}

// SetHandlers must be called before any session exists.
func (m *Manager) SetHandlers(h Handlers) {
	m.handlers = h
}

// CreateOffer opens a fresh initiator session and returns its offer blob.
// The outbound channel is created before the offer is generated so it is
// part of the negotiated description.
func (m *Manager) CreateOffer(ctx context.Context) (string, error) {
	conn, sess, err := m.openSession(ctx, "", domain.RoleInitiator)
	if err != nil {
		return "", err
	}
	if err := conn.CreateChannel("ops"); err != nil {
		m.dropSession(sess.id)
		return "", fmt.Errorf("create channel: %w", err)
	}
	if err := conn.CreateOffer(ctx); err != nil {
		m.dropSession(sess.id)
		return "", fmt.Errorf("create offer: %w", err)
	}
	if err := m.waitDiscovery(ctx, conn); err != nil {
		m.dropSession(sess.id)
		return "", err
	}
	blob := domain.SignalBlob{
		SessionID:   sess.id,
		Kind:        domain.BlobOffer,
		Description: conn.LocalDescription(),
	}
	encoded, err := blob.Encode()
	if err != nil {
		m.dropSession(sess.id)
		return "", err
	}
	m.transition(sess.id, domain.StateOfferSent)
	return encoded, nil
}

// AcceptOffer consumes a peer's offer blob and returns the answer blob. The
// responder session echoes the offer's session id so the initiator can match
// the answer back. The handshake counts as complete once the answer exists.
func (m *Manager) AcceptOffer(ctx context.Context, raw string) (string, error) {
	blob, err := domain.DecodeSignalBlob(raw)
	if err != nil {
		return "", err
	}
	if blob.Kind != domain.BlobOffer {
		return "", fmt.Errorf("%w: expected offer, got %s", domain.ErrMalformedBlob, blob.Kind)
	}
	conn, sess, err := m.openSession(ctx, blob.SessionID, domain.RoleResponder)
	if err != nil {
		return "", err
	}
	m.transition(sess.id, domain.StateOfferReceived)
	if err := conn.ApplyRemote(ctx, blob.Description); err != nil {
		m.dropSession(sess.id)
		return "", fmt.Errorf("apply offer: %w", err)
	}
	if err := conn.CreateAnswer(ctx); err != nil {
		m.dropSession(sess.id)
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := m.waitDiscovery(ctx, conn); err != nil {
		m.dropSession(sess.id)
		return "", err
	}
	answer := domain.SignalBlob{
		SessionID:   sess.id,
		Kind:        domain.BlobAnswer,
		Description: conn.LocalDescription(),
	}
	encoded, err := answer.Encode()
	if err != nil {
		m.dropSession(sess.id)
		return "", err
	}
	m.transition(sess.id, domain.StateAnswerExchanged)
	if m.handlers.OnEstablished != nil {
		m.handlers.OnEstablished(sess.id)
	}
	return encoded, nil
}

// ApplyAnswer completes an initiator handshake. An unknown or stale session
// id fails with ErrSessionNotFound and mutates nothing.
func (m *Manager) ApplyAnswer(ctx context.Context, raw string) error {
	blob, err := domain.DecodeSignalBlob(raw)
	if err != nil {
		return err
	}
	if blob.Kind != domain.BlobAnswer {
		return fmt.Errorf("%w: expected answer, got %s", domain.ErrMalformedBlob, blob.Kind)
	}
	m.mu.Lock()
	sess, ok := m.sessions[blob.SessionID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrSessionNotFound, blob.SessionID)
	}
	if err := sess.conn.ApplyRemote(ctx, blob.Description); err != nil {
		return fmt.Errorf("apply answer: %w", err)
	}
	m.transition(sess.id, domain.StateAnswerExchanged)
	if m.handlers.OnEstablished != nil {
		m.handlers.OnEstablished(sess.id)
	}
	return nil
}

// Broadcast encodes the envelope once and sends it to every session whose
// channel is open. Sessions still negotiating are skipped; zero open channels
// is success. Per-channel send failures are logged, never surfaced.
func (m *Manager) Broadcast(_ context.Context, env wire.Envelope) error {
	payload, err := wire.Encode(env)
	if err != nil {
		return err
	}
	m.mu.Lock()
	type target struct {
		id      string
		channel sessionout.Channel
	}
	targets := make([]target, 0, len(m.sessions))
	for _, sess := range m.sessions {
		if sess.channel != nil {
			targets = append(targets, target{id: sess.id, channel: sess.channel})
		}
	}
	m.mu.Unlock()

	for _, tgt := range targets {
		if err := tgt.channel.Send(payload); err != nil {
			m.logger.Warn("send to session failed", "session", tgt.id, "error", err)
		}
	}
	return nil
}

// AwaitChannel blocks until the session's channel opens, the context ends,
// or the manager is disposed.
func (m *Manager) AwaitChannel(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrSessionNotFound, sessionID)
	}
	select {
	case <-sess.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.ctx.Done():
		return apperrors.ErrDisposed
	}
}

// Sessions lists every live session in id order.
func (m *Manager) Sessions() []domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, domain.Session{ID: sess.id, Role: sess.role, State: sess.state})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Dispose tears everything down: aborts in-flight discovery waits, closes
// every channel and connection, clears the collection. Safe to call twice.
func (m *Manager) Dispose() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	sessions := make([]*session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sess.state = domain.StateClosed
		sessions = append(sessions, sess)
	}
	m.sessions = make(map[string]*session)
	m.mu.Unlock()

	m.cancel()
	for _, sess := range sessions {
		if sess.channel != nil {
			if err := sess.channel.Close(); err != nil {
				m.logger.Debug("close channel", "session", sess.id, "error", err)
			}
		}
		if err := sess.conn.Close(); err != nil {
			m.logger.Debug("close connection", "session", sess.id, "error", err)
		}
	}
}

func (m *Manager) openSession(ctx context.Context, sessionID string, role domain.Role) (sessionout.Conn, *session, error) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return nil, nil, apperrors.ErrDisposed
	}
	m.mu.Unlock()

	conn, err := m.connector.Open(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("open connection: %w", err)
	}
	if sessionID == "" {
		sessionID = m.ids.New()
	}
	sess := &session{
		id:    sessionID,
		role:  role,
		state: domain.StateCreated,
		conn:  conn,
		ready: make(chan struct{}),
	}
	conn.SetHandlers(sessionout.ConnHandlers{
		OnChannelOpen: func(ch sessionout.Channel) { m.handleChannelOpen(sess.id, ch) },
		OnMessage:     func(payload []byte) { m.handleMessage(sess.id, payload) },
	})

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		_ = conn.Close()
		return nil, nil, apperrors.ErrDisposed
	}
	if _, exists := m.sessions[sess.id]; exists {
		m.mu.Unlock()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("session %s already exists", sess.id)
	}
	m.sessions[sess.id] = sess
	m.mu.Unlock()
	return conn, sess, nil
}

// waitDiscovery bounds the candidate-gathering wait. Some transport stacks
// never signal completion, so a timeout proceeds with whatever is gathered.
func (m *Manager) waitDiscovery(ctx context.Context, conn sessionout.Conn) error {
	timer := time.NewTimer(m.discoveryTimeout)
	defer timer.Stop()
	select {
	case <-conn.DiscoveryDone():
		return nil
	case <-timer.C:
		m.logger.Debug("discovery timed out, proceeding with gathered candidates")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.ctx.Done():
		return apperrors.ErrDisposed
	}
}

func (m *Manager) handleChannelOpen(sessionID string, ch sessionout.Channel) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		_ = ch.Close()
		return
	}
	alreadyOpen := sess.channel != nil
	sess.channel = ch
	sess.state = domain.StateChannelOpen
	if !alreadyOpen {
		close(sess.ready)
	}
	m.mu.Unlock()

	m.logger.Info("session channel open", "session", sessionID)
	if !alreadyOpen && m.handlers.OnChannelOpen != nil {
		m.handlers.OnChannelOpen(sessionID)
	}
}

// handleMessage decodes one inbound payload. Anything that is not a valid
// wire envelope is dropped without surfacing; manual-transfer paths deliver
// partial or corrupted bytes often enough that this must be routine.
func (m *Manager) handleMessage(sessionID string, payload []byte) {
	env, err := wire.Decode(payload)
	if err != nil {
		m.logger.Debug("dropping malformed message", "session", sessionID, "error", err)
		return
	}
	if m.handlers.OnEnvelope != nil {
		m.handlers.OnEnvelope(sessionID, env)
	}
}

func (m *Manager) transition(sessionID string, state domain.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[sessionID]; ok {
		// Channel open is terminal until close; a late handshake
		// transition must not roll it back.
		if sess.state == domain.StateChannelOpen && state != domain.StateClosed {
			return
		}
		sess.state = state
	}
}

func (m *Manager) dropSession(sessionID string) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	if ok {
		_ = sess.conn.Close()
	}
}
